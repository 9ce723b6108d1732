package http

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sectorpulse/internal/application/simulate"
	"github.com/sawpanic/sectorpulse/internal/metrics"
	"github.com/sawpanic/sectorpulse/internal/net/ratelimit"
	"github.com/sawpanic/sectorpulse/internal/persistence"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Rate limit route classes
const (
	routeRead     = "read"
	routeSimulate = "simulate"
)

// Server serves the simulation API
type Server struct {
	router  *mux.Router
	server  *http.Server
	svc     *simulate.Service
	metrics *metrics.Registry
	limits  *ratelimit.Manager
	storage persistence.RepositoryHealth
	runs    RunReader
	config  ServerConfig
	started time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	ReadRPS        float64
	ReadBurst      int
	SimulateRPS    float64
	SimulateBurst  int
	AllowedOrigins []string
	TopN           int
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           "127.0.0.1:8080", // Local-only by default
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 5 * time.Second,
		ReadRPS:        20,
		ReadBurst:      40,
		SimulateRPS:    2,
		SimulateBurst:  5,
		AllowedOrigins: []string{"localhost", "127.0.0.1"},
		TopN:           5,
	}
}

// NewServer creates a new HTTP server instance. A nil registry gets a fresh one.
func NewServer(config ServerConfig, svc *simulate.Service, reg *metrics.Registry) *Server {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	if config.TopN <= 0 {
		config.TopN = DefaultServerConfig().TopN
	}

	limits := ratelimit.NewManager()
	limits.AddRoute(routeRead, config.ReadRPS, config.ReadBurst)
	limits.AddRoute(routeSimulate, config.SimulateRPS, config.SimulateBurst)

	s := &Server{
		router:  mux.NewRouter(),
		svc:     svc,
		metrics: reg,
		limits:  limits,
		config:  config,
		started: time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Middleware for all routes
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	// Streaming bypasses the request timeout
	s.router.Handle("/simulate/stream", s.rateLimit(routeSimulate, http.HandlerFunc(s.handleStream))).Methods(http.MethodGet)

	// API routes (JSON only)
	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(s.jsonContentTypeMiddleware)

	api.Handle("/health", http.HandlerFunc(s.handleHealth)).Methods(http.MethodGet)
	api.Handle("/graph", s.rateLimit(routeRead, http.HandlerFunc(s.handleGraph))).Methods(http.MethodGet)
	api.Handle("/graph/stability", s.rateLimit(routeRead, http.HandlerFunc(s.handleStability))).Methods(http.MethodGet)
	api.Handle("/graph/{sector}", s.rateLimit(routeRead, http.HandlerFunc(s.handleSector))).Methods(http.MethodGet)
	api.Handle("/scores", s.rateLimit(routeRead, http.HandlerFunc(s.handleScores))).Methods(http.MethodGet)
	api.Handle("/simulate", s.rateLimit(routeSimulate, http.HandlerFunc(s.handleSimulate))).Methods(http.MethodPost)
	api.Handle("/runs", s.rateLimit(routeRead, http.HandlerFunc(s.handleRuns))).Methods(http.MethodGet)
	api.Handle("/runs/{id}", s.rateLimit(routeRead, http.HandlerFunc(s.handleRun))).Methods(http.MethodGet)

	s.router.NotFoundHandler = s.jsonContentTypeMiddleware(http.HandlerFunc(s.handleNotFound))
	s.router.MethodNotAllowedHandler = s.jsonContentTypeMiddleware(http.HandlerFunc(s.handleMethodNotAllowed))
}

// RunReader reads archived simulation runs.
type RunReader interface {
	Get(ctx context.Context, id string) (*persistence.SimulationRun, error)
	List(ctx context.Context, limit int) ([]persistence.SimulationRun, error)
}

// SetRunStore serves archived runs on /runs.
func (s *Server) SetRunStore(r RunReader) {
	s.runs = r
}

// SetStorageHealth adds the storage check to /health.
func (s *Server) SetStorageHealth(h persistence.RepositoryHealth) {
	s.storage = h
}

// Handler exposes the router, e.g. for httptest
func (s *Server) Handler() http.Handler { return s.router }

// requestIDMiddleware adds unique request ID to each request
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()[:8]
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs and measures every request
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Capture response status
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		route := routeTemplate(r)
		s.metrics.RecordHTTP(route, r.Method, wrapper.statusCode, duration)

		log.Info().
			Str("request_id", requestID(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// timeoutMiddleware enforces request timeouts
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.RequestTimeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware echoes allowed origins
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.config.AllowedOrigins {
			if allowed != "" && strings.Contains(origin, allowed) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonContentTypeMiddleware sets JSON content type for API responses
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects clients over the budget of a route class
func (s *Server) rateLimit(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !s.limits.Allow(route, key) {
			if limiter, ok := s.limits.GetLimiter(route); ok {
				retry := limiter.RetryAfter(key)
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			}
			w.Header().Set("Content-Type", "application/json")
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", "Too many requests, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server and idle-client pruning. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.limits.Prune(10 * time.Minute); n > 0 {
					log.Debug().Int("clients", n).Msg("Pruned idle rate limit clients")
				}
			}
		}
	}()

	log.Info().Str("addr", s.config.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// responseWrapper captures HTTP status codes for logging
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rw *responseWrapper) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
