// Package breaker guards calls to remote stores with a circuit breaker.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// Config tunes the trip rule and recovery.
type Config struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" validate:"gte=1"`
	MinRequests         uint32        `yaml:"min_requests"`
	FailureRatio        float64       `yaml:"failure_ratio" validate:"gte=0,lte=1"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	HalfOpenRequests    uint32        `yaml:"half_open_requests"`
}

// DefaultConfig trips after 3 consecutive failures or a 5% failure rate
// over at least 20 requests.
func DefaultConfig() Config {
	return Config{
		ConsecutiveFailures: 3,
		MinRequests:         20,
		FailureRatio:        0.05,
		Interval:            60 * time.Second,
		Timeout:             60 * time.Second,
		HalfOpenRequests:    1,
	}
}

// Breaker wraps a gobreaker circuit breaker.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a named breaker. State changes are logged and passed to
// onChange when it is non-nil.
func New(name string, cfg Config, onChange func(name string, from, to gobreaker.State)) *Breaker {
	def := DefaultConfig()
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = def.ConsecutiveFailures
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
			return true
		}
		if cfg.MinRequests == 0 || counts.Requests < cfg.MinRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > cfg.FailureRatio
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
		if onChange != nil {
			onChange(name, from, to)
		}
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker. Rejections are reported as ErrOpen.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrOpen
	}
	return v, err
}

// Do runs fn with ctx through the breaker. A cancelled ctx is not counted
// as a failure of the remote store.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var cancelled error
	_, err := b.Execute(func() (any, error) {
		err := fn(ctx)
		if err != nil && ctx.Err() != nil {
			cancelled = err
			return nil, nil
		}
		return nil, err
	})
	if cancelled != nil {
		return cancelled
	}
	return err
}

// State returns the current state name: closed, half-open or open.
func (b *Breaker) State() string { return b.cb.State().String() }

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.cb.Name() }

// Counts exposes the current window counters.
func (b *Breaker) Counts() gobreaker.Counts { return b.cb.Counts() }
