package graph

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sectorpulse/internal/sector"
)

// Format selects the layout of the dependency table.
type Format string

const (
	FormatMatrix   Format = "matrix" // rows = suppliers, columns = clients
	FormatEdgeList Format = "edges"  // source,target,weight
)

// LoadOptions configures a table load.
type LoadOptions struct {
	Format    Format
	Delimiter rune
	Whitelist sector.Whitelist
}

// DefaultLoadOptions matches the national input-output export: a ';' matrix
// restricted to the key industries.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Format:    FormatMatrix,
		Delimiter: ';',
		Whitelist: sector.NewWhitelist(sector.KeyIndustries),
	}
}

// LoadReport summarizes what a load kept and skipped.
type LoadReport struct {
	Suppliers      int      `json:"suppliers"`
	Edges          int      `json:"edges"`
	DroppedRows    []string `json:"dropped_rows,omitempty"`
	DroppedColumns []string `json:"dropped_columns,omitempty"`
	Malformed      int      `json:"malformed"`
	NonPositive    int      `json:"non_positive"`
	Empty          int      `json:"empty"`
}

// Load reads and normalizes a dependency table from path. On a missing or
// unreadable file it returns an empty graph and an error wrapping ErrDataUnavailable.
func Load(path string, opts LoadOptions) (*Graph, LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return Empty(), LoadReport{}, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	defer f.Close()

	g, report, err := Read(f, opts)
	if err != nil {
		return Empty(), report, err
	}
	log.Debug().
		Str("path", path).
		Int("suppliers", report.Suppliers).
		Int("edges", report.Edges).
		Int("malformed", report.Malformed).
		Msg("Dependency graph loaded")
	return g, report, nil
}

// Read parses a dependency table from r and returns the normalized graph.
func Read(r io.Reader, opts LoadOptions) (*Graph, LoadReport, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = defaultDelimiter(opts.Format)
	}
	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return Empty(), LoadReport{}, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	var (
		raw    map[string][]Edge
		report LoadReport
	)
	switch opts.Format {
	case FormatEdgeList:
		raw, report, err = parseEdgeList(records, opts.Whitelist)
	case FormatMatrix, "":
		raw, report = parseMatrix(records, opts.Whitelist)
	default:
		err = fmt.Errorf("unknown graph format %q", opts.Format)
	}
	if err != nil {
		return Empty(), report, err
	}

	g := Normalize(New(raw))
	report.Suppliers = len(g.adj)
	report.Edges = g.EdgeCount()
	return g, report, nil
}

func defaultDelimiter(f Format) rune {
	if f == FormatEdgeList {
		return ','
	}
	return ';'
}

type column struct {
	index int
	code  string
}

func parseMatrix(records [][]string, wl sector.Whitelist) (map[string][]Edge, LoadReport) {
	var report LoadReport
	adj := make(map[string][]Edge)

	start := 0
	for start < len(records) && blank(records[start]) {
		start++
	}
	if start == len(records) {
		return adj, report
	}
	header := records[start]
	rows := records[start+1:]

	// The header either starts with a corner cell or lists clients only.
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	offset := 1
	if len(header) < width {
		offset = 0
	}

	var clients []column
	for i := offset; i < len(header); i++ {
		code := sector.Clean(header[i])
		if code == "" {
			continue
		}
		if !wl.Allows(code) {
			report.DroppedColumns = append(report.DroppedColumns, code)
			continue
		}
		clients = append(clients, column{index: i - offset + 1, code: code})
		if _, ok := adj[code]; !ok {
			adj[code] = nil
		}
	}

	for _, row := range rows {
		if blank(row) {
			continue
		}
		supplier := sector.Clean(row[0])
		if supplier == "" {
			continue
		}
		if !wl.Allows(supplier) {
			report.DroppedRows = append(report.DroppedRows, supplier)
			continue
		}
		if _, ok := adj[supplier]; !ok {
			adj[supplier] = nil
		}
		for _, col := range clients {
			if col.index >= len(row) {
				continue
			}
			w, ok := parseCell(row[col.index], supplier, col.code, &report)
			if !ok {
				continue
			}
			adj[supplier] = addEdge(adj[supplier], col.code, w)
		}
	}
	return adj, report
}

func parseEdgeList(records [][]string, wl sector.Whitelist) (map[string][]Edge, LoadReport, error) {
	var report LoadReport
	adj := make(map[string][]Edge)
	if len(records) == 0 {
		return adj, report, nil
	}

	idx := map[string]int{"source": -1, "target": -1, "weight": -1}
	for i, h := range records[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, ok := idx[key]; ok {
			idx[key] = i
		}
	}
	if idx["source"] < 0 || idx["target"] < 0 {
		return adj, report, fmt.Errorf("%w: edge list needs source and target columns", ErrDataUnavailable)
	}

	for _, row := range records[1:] {
		if blank(row) || idx["source"] >= len(row) || idx["target"] >= len(row) {
			continue
		}
		src := sector.Clean(row[idx["source"]])
		dst := sector.Clean(row[idx["target"]])
		if !wl.Allows(src) {
			report.DroppedRows = append(report.DroppedRows, src)
			continue
		}
		if !wl.Allows(dst) {
			report.DroppedColumns = append(report.DroppedColumns, dst)
			continue
		}
		if _, ok := adj[src]; !ok {
			adj[src] = nil
		}
		w := 1.0
		if idx["weight"] >= 0 && idx["weight"] < len(row) {
			var ok bool
			if w, ok = parseCell(row[idx["weight"]], src, dst, &report); !ok {
				continue
			}
		}
		adj[src] = addEdge(adj[src], dst, w)
	}
	return adj, report, nil
}

// parseCell parses one weight. Both '.' and ',' decimal separators are accepted.
func parseCell(raw, supplier, client string, report *LoadReport) (float64, bool) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\t':
			return -1
		case ',':
			return '.'
		}
		return r
	}, raw)
	if s == "" {
		report.Empty++
		return 0, false
	}
	w, err := strconv.ParseFloat(s, 64)
	if err == nil && (math.IsNaN(w) || math.IsInf(w, 0)) {
		err = strconv.ErrSyntax
	}
	if err != nil {
		report.Malformed++
		log.Debug().Err(&MalformedValueError{Supplier: supplier, Client: client, Raw: raw, Err: err}).
			Msg("Skipping dependency cell")
		return 0, false
	}
	if w <= 0 {
		report.NonPositive++
		return 0, false
	}
	return w, true
}

func addEdge(edges []Edge, target string, w float64) []Edge {
	for i := range edges {
		if edges[i].Target == target {
			edges[i].Weight += w
			return edges
		}
	}
	return append(edges, Edge{Target: target, Weight: w})
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
