package scores

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sawpanic/sectorpulse/internal/sector"
)

// Shock perturbs one sector before a simulation.
type Shock struct {
	Sector   string  `json:"sector"`
	Value    float64 `json:"value"`
	Relative bool    `json:"relative"`
}

// String renders the shock in the form accepted by ParseShock.
func (s Shock) String() string {
	if s.Relative {
		return fmt.Sprintf("%s=%+g", s.Sector, s.Value)
	}
	return fmt.Sprintf("%s=%g", s.Sector, s.Value)
}

// ParseShock parses "62=80" (absolute) or "62=+10" / "62=-15" (relative).
func ParseShock(raw string) (Shock, error) {
	id, val, ok := strings.Cut(raw, "=")
	if !ok {
		return Shock{}, fmt.Errorf("invalid shock %q: want SECTOR=VALUE", raw)
	}
	id = sector.Clean(id)
	if id == "" {
		return Shock{}, fmt.Errorf("invalid shock %q: empty sector", raw)
	}
	return ParseShockValue(id, val)
}

// ParseShockValue parses the value half of a shock for sector id.
func ParseShockValue(id, val string) (Shock, error) {
	val = strings.TrimSpace(val)
	relative := strings.HasPrefix(val, "+") || strings.HasPrefix(val, "-")
	v, err := strconv.ParseFloat(strings.ReplaceAll(val, ",", "."), 64)
	if err == nil && !finite(v) {
		err = strconv.ErrSyntax
	}
	if err != nil {
		return Shock{}, fmt.Errorf("invalid shock value %q for %s: %w", val, id, err)
	}
	if !relative && (v < Min || v > Max) {
		return Shock{}, fmt.Errorf("shock value %g for %s outside [0,100]", v, id)
	}
	return Shock{Sector: id, Value: v, Relative: relative}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Apply returns a copy of base with shocks applied in order, each clamped.
func Apply(base Snapshot, shocks []Shock) Snapshot {
	out := base.Clone()
	for _, s := range shocks {
		if s.Relative {
			out.Set(s.Sector, out.Get(s.Sector)+s.Value)
			continue
		}
		out.Set(s.Sector, s.Value)
	}
	return out
}
