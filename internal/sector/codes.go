// Package sector holds the sector catalogue shared by the loaders and the engine.
package sector

import (
	"sort"
	"strings"
)

// KeyIndustries is the default whitelist of PKD division codes tracked by the index.
var KeyIndustries = []string{
	"01", "10", "16", "23", "24", "29", "31", "35",
	"41", "46", "47", "49", "55", "62", "68",
}

var labels = map[string]string{
	"01": "Agriculture",
	"10": "Food manufacturing",
	"16": "Wood products",
	"23": "Non-metallic minerals",
	"24": "Basic metals",
	"29": "Motor vehicles",
	"31": "Furniture",
	"35": "Energy",
	"41": "Construction",
	"46": "Wholesale trade",
	"47": "Retail trade",
	"49": "Land transport",
	"55": "Accommodation",
	"62": "IT services",
	"68": "Real estate",
}

// Clean normalizes a raw header or row label such as "( 01 )" to "01".
func Clean(raw string) string {
	s := strings.TrimPrefix(raw, "\ufeff")
	s = strings.ReplaceAll(s, "(", "")
	s = strings.ReplaceAll(s, ")", "")
	return strings.TrimSpace(s)
}

// Label returns a human readable name for a code, or the code itself.
func Label(code string) string {
	if l, ok := labels[code]; ok {
		return l
	}
	return code
}

// Whitelist is a set of accepted sector codes. The zero value accepts everything.
type Whitelist struct {
	codes map[string]struct{}
}

// NewWhitelist builds a whitelist from codes; an empty list accepts every code.
func NewWhitelist(codes []string) Whitelist {
	if len(codes) == 0 {
		return Whitelist{}
	}
	w := Whitelist{codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		w.codes[Clean(c)] = struct{}{}
	}
	return w
}

// Allows reports whether code is accepted.
func (w Whitelist) Allows(code string) bool {
	if w.codes == nil {
		return true
	}
	_, ok := w.codes[code]
	return ok
}

// Codes returns the whitelisted codes in ascending order, nil when unrestricted.
func (w Whitelist) Codes() []string {
	if w.codes == nil {
		return nil
	}
	out := make([]string, 0, len(w.codes))
	for c := range w.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
