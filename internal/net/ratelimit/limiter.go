package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter provides per-client rate limiting using token bucket algorithm
type Limiter struct {
	mu      sync.RWMutex
	clients map[string]*client
	rps     float64 // Requests per second
	burst   int     // Burst capacity
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a new rate limiter with the specified RPS and burst capacity
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		clients: make(map[string]*client),
		rps:     rps,
		burst:   burst,
		now:     time.Now,
	}
}

// getLimiter returns or creates the token bucket of a client key
func (l *Limiter) getLimiter(key string) *rate.Limiter {
	now := l.now()

	l.mu.RLock()
	c, exists := l.clients[key]
	l.mu.RUnlock()

	if exists {
		l.mu.Lock()
		c.lastSeen = now
		l.mu.Unlock()
		return c.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if c, exists := l.clients[key]; exists {
		c.lastSeen = now
		return c.limiter
	}

	c = &client{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst), lastSeen: now}
	l.clients[key] = c
	return c.limiter
}

// Allow returns true if a request from the client is allowed
func (l *Limiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

// RetryAfter reports how long the client must wait for its next token
func (l *Limiter) RetryAfter(key string) time.Duration {
	r := l.getLimiter(key).Reserve()
	defer r.Cancel()
	return r.Delay()
}

// Prune forgets clients idle for longer than idle and returns how many were removed
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Stats returns statistics for all client limiters
func (l *Limiter) Stats() map[string]LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]LimiterStats)
	now := l.now()

	for key, c := range l.clients {
		reservation := c.limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel() // Cancel the reservation since we're just checking

		stats[key] = LimiterStats{
			Client:          key,
			RPS:             float64(c.limiter.Limit()),
			Burst:           c.limiter.Burst(),
			TokensAvailable: c.limiter.Tokens(),
			NextAllowedAt:   now.Add(delay),
			Delay:           delay,
			LastSeen:        c.lastSeen,
		}
	}

	return stats
}

// LimiterStats represents statistics for a single client limiter
type LimiterStats struct {
	Client          string        `json:"client"`
	RPS             float64       `json:"rps"`
	Burst           int           `json:"burst"`
	TokensAvailable float64       `json:"tokens_available"`
	NextAllowedAt   time.Time     `json:"next_allowed_at"`
	Delay           time.Duration `json:"delay"`
	LastSeen        time.Time     `json:"last_seen"`
}

// IsThrottled returns true if the limiter is currently throttling requests
func (s *LimiterStats) IsThrottled() bool {
	return s.Delay > 0
}

// RouteStatus summarizes one route class for health reporting
type RouteStatus struct {
	RPS       float64 `json:"rps"`
	Burst     int     `json:"burst"`
	Clients   int     `json:"clients"`
	Throttled int     `json:"throttled"`
}

// Manager holds one Limiter per route class, e.g. "simulate" and "read"
type Manager struct {
	limiters map[string]*Limiter
	mu       sync.RWMutex
}

// NewManager creates a new rate limiter manager
func NewManager() *Manager {
	return &Manager{
		limiters: make(map[string]*Limiter),
	}
}

// AddRoute adds a rate limiter for a route class
func (m *Manager) AddRoute(name string, rps float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.limiters[name] = NewLimiter(rps, burst)
}

// GetLimiter returns the rate limiter for a route class
func (m *Manager) GetLimiter(route string) (*Limiter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limiter, exists := m.limiters[route]
	return limiter, exists
}

// Allow returns true if the client may call the route
func (m *Manager) Allow(route, key string) bool {
	limiter, exists := m.GetLimiter(route)
	if !exists {
		return true // No limiter configured, allow request
	}
	return limiter.Allow(key)
}

// Prune drops idle clients from every route
func (m *Manager) Prune(idle time.Duration) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	removed := 0
	for _, limiter := range m.limiters {
		removed += limiter.Prune(idle)
	}
	return removed
}

// Stats returns statistics for all routes and their clients
func (m *Manager) Stats() map[string]map[string]LimiterStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]map[string]LimiterStats)
	for route, limiter := range m.limiters {
		stats[route] = limiter.Stats()
	}
	return stats
}

// Summary condenses Stats into per-route client and throttle counts.
func (m *Manager) Summary() map[string]RouteStatus {
	all := m.Stats()

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]RouteStatus, len(m.limiters))
	for route, limiter := range m.limiters {
		status := RouteStatus{RPS: limiter.rps, Burst: limiter.burst}
		for _, st := range all[route] {
			status.Clients++
			if st.IsThrottled() {
				status.Throttled++
			}
		}
		out[route] = status
	}
	return out
}
