package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sectorpulse/internal/application/simulate"
	"github.com/sawpanic/sectorpulse/internal/graph"
	"github.com/sawpanic/sectorpulse/internal/persistence"
	"github.com/sawpanic/sectorpulse/internal/sector"
)

// maxBodyBytes bounds simulation request bodies
const maxBodyBytes = 1 << 20

// writeJSON encodes before writing the header so encoding failures become a 500.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal Server Error","code":"encode_failed"}` + "\n"))
		return
	}
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// writeError writes standardized error response
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed for this endpoint")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Status()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var storage *persistence.HealthCheck
	if s.storage != nil {
		check := s.storage.Health(r.Context())
		storage = &check
	}

	status := "healthy"
	if len(st.Warnings) > 0 || st.Nodes == 0 || (storage != nil && !storage.Healthy) {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(s.started).Truncate(time.Second).String(),
		Nodes:      st.Nodes,
		Edges:      st.Edges,
		Sectors:    st.Sectors,
		ReloadedAt: st.ReloadedAt,
		Warnings:   st.Warnings,
		Storage:    storage,
		RateLimits: s.limits.Summary(),
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAlloc:      mem.Alloc,
			NumGC:         mem.NumGC,
		},
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	g := s.svc.Graph()
	writeJSON(w, http.StatusOK, GraphResponse{
		Nodes:     g.NodeCount(),
		Edges:     g.EdgeCount(),
		Adjacency: g.Adjacency(),
	})
}

func (s *Server) handleSector(w http.ResponseWriter, r *http.Request) {
	id := sector.Clean(mux.Vars(r)["sector"])
	g := s.svc.Graph()
	if !g.HasNode(id) {
		writeError(w, r, http.StatusNotFound, "sector_not_found", "Sector "+id+" is not in the dependency graph")
		return
	}
	edges := g.Edges(id)
	if edges == nil {
		edges = []graph.Edge{}
	}
	writeJSON(w, http.StatusOK, SectorResponse{
		Sector:        id,
		Label:         sector.Label(id),
		OutgoingTotal: g.OutgoingTotal(id),
		Edges:         edges,
		Top:           g.TopDependencies(id, s.config.TopN),
	})
}

func (s *Server) handleStability(w http.ResponseWriter, r *http.Request) {
	report := graph.CheckStability(s.svc.Graph())
	writeJSON(w, http.StatusOK, StabilityResponse{Stable: report.Stable(), StabilityReport: report})
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	snap, source := s.svc.Baseline(r.Context())
	out := ScoresResponse{Source: source, Count: len(snap), Scores: make([]SectorScore, 0, len(snap))}
	for _, id := range snap.IDs() {
		out.Scores = append(out.Scores, SectorScore{Sector: id, Label: sector.Label(id), Score: snap[id]})
	}
	writeJSON(w, http.StatusOK, out)
}

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
)

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "archive_disabled", "Run archive is not configured")
		return
	}
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRunLimit {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be between 1 and "+strconv.Itoa(maxRunLimit))
			return
		}
		limit = n
	}
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("List runs failed")
		writeError(w, r, http.StatusInternalServerError, "archive_error", "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []persistence.SimulationRun{}
	}
	writeJSON(w, http.StatusOK, RunsResponse{Count: len(runs), Runs: runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "archive_disabled", "Run archive is not configured")
		return
	}
	id := mux.Vars(r)["id"]
	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("run_id", id).Msg("Get run failed")
		writeError(w, r, http.StatusInternalServerError, "archive_error", "Failed to read run")
		return
	}
	if run == nil {
		writeError(w, r, http.StatusNotFound, "run_not_found", "Run "+id+" is not archived")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var body SimulateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	req, err := body.ToRequest()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp, err := s.svc.Run(r.Context(), req)
	switch {
	case errors.Is(err, simulate.ErrNoShocks):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case err != nil:
		writeError(w, r, http.StatusServiceUnavailable, "simulation_failed", err.Error())
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}
