package http

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sawpanic/sectorpulse/internal/application/simulate"
	"github.com/sawpanic/sectorpulse/internal/graph"
	"github.com/sawpanic/sectorpulse/internal/net/ratelimit"
	"github.com/sawpanic/sectorpulse/internal/persistence"
	"github.com/sawpanic/sectorpulse/internal/propagation"
	"github.com/sawpanic/sectorpulse/internal/scores"
	"github.com/sawpanic/sectorpulse/internal/sector"
)

var validate = validator.New()

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                           `json:"status"` // "healthy" or "degraded"
	Timestamp  time.Time                        `json:"timestamp"`
	Uptime     string                           `json:"uptime"`
	Nodes      int                              `json:"nodes"`
	Edges      int                              `json:"edges"`
	Sectors    int                              `json:"sectors"`
	ReloadedAt time.Time                        `json:"reloaded_at"`
	Warnings   []string                         `json:"warnings,omitempty"`
	Storage    *persistence.HealthCheck         `json:"storage,omitempty"`
	RateLimits map[string]ratelimit.RouteStatus `json:"rate_limits"`
	System     SystemInfo                       `json:"system"`
}

// RunsResponse lists archived runs, newest first
type RunsResponse struct {
	Count int                         `json:"count"`
	Runs  []persistence.SimulationRun `json:"runs"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// GraphResponse is the full adjacency
type GraphResponse struct {
	Nodes     int                     `json:"nodes"`
	Edges     int                     `json:"edges"`
	Adjacency map[string][]graph.Edge `json:"adjacency"`
}

// SectorResponse is the outgoing side of one sector
type SectorResponse struct {
	Sector        string       `json:"sector"`
	Label         string       `json:"label"`
	OutgoingTotal float64      `json:"outgoing_total"`
	Edges         []graph.Edge `json:"edges"`
	Top           []graph.Edge `json:"top"`
}

// StabilityResponse wraps the stability report
type StabilityResponse struct {
	Stable bool `json:"stable"`
	graph.StabilityReport
}

// SectorScore is one row of the baseline
type SectorScore struct {
	Sector string  `json:"sector"`
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
}

// ScoresResponse is the current baseline snapshot
type ScoresResponse struct {
	Source string        `json:"source"`
	Count  int           `json:"count"`
	Scores []SectorScore `json:"scores"`
}

// SimulateRequest is the body of POST /simulate and of each stream message.
// Shock values are absolute ("80") or relative ("+10", "-15").
type SimulateRequest struct {
	Shocks          map[string]string `json:"shocks" validate:"required,min=1,dive,keys,required,endkeys,required"`
	ImpactThreshold *float64          `json:"impact_threshold,omitempty" validate:"omitempty,gt=0"`
	MaxDepth        *int              `json:"max_depth,omitempty" validate:"omitempty,gte=1,lte=100000"`
	Trace           bool              `json:"trace"`
}

// StreamMessage is one frame sent on /simulate/stream
type StreamMessage struct {
	Type   string              `json:"type"` // "update", "done" or "error"
	Update *propagation.Update `json:"update,omitempty"`
	Result *simulate.Response  `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// Stream message types
const (
	MessageUpdate = "update"
	MessageDone   = "done"
	MessageError  = "error"
)

// Validate checks the request shape
func (req *SimulateRequest) Validate() error {
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ToRequest validates req and parses its shocks in sector order
func (req *SimulateRequest) ToRequest() (simulate.Request, error) {
	if err := req.Validate(); err != nil {
		return simulate.Request{}, err
	}
	ids := make([]string, 0, len(req.Shocks))
	for id := range req.Shocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := simulate.Request{Trace: req.Trace}
	for _, id := range ids {
		sh, err := scores.ParseShockValue(sector.Clean(id), req.Shocks[id])
		if err != nil {
			return simulate.Request{}, err
		}
		out.Shocks = append(out.Shocks, sh)
	}
	if req.ImpactThreshold != nil {
		out.ImpactThreshold = *req.ImpactThreshold
	}
	if req.MaxDepth != nil {
		out.MaxDepth = *req.MaxDepth
	}
	return out, nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must contain at least %s entries", field, e.Param())
		case "gt", "gte", "lte":
			return fmt.Errorf("%s: must be %s %s", field, e.Tag(), e.Param())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
