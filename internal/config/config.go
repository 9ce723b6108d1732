// Package config loads the SectorPulse configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/sectorpulse/internal/cache"
	"github.com/sawpanic/sectorpulse/internal/events"
	"github.com/sawpanic/sectorpulse/internal/forecast"
	"github.com/sawpanic/sectorpulse/internal/graph"
	"github.com/sawpanic/sectorpulse/internal/infrastructure/db"
	"github.com/sawpanic/sectorpulse/internal/net/breaker"
	"github.com/sawpanic/sectorpulse/internal/propagation"
	"github.com/sawpanic/sectorpulse/internal/scoring"
	"github.com/sawpanic/sectorpulse/internal/sector"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SECTORPULSE_"

var validate = validator.New()

// Config is the complete application configuration
type Config struct {
	LogLevel    string             `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	Graph       GraphConfig        `yaml:"graph"`
	Scores      ScoresConfig       `yaml:"scores"`
	Propagation propagation.Config `yaml:"propagation"`
	Scoring     ScoringConfig      `yaml:"scoring"`
	Forecast    forecast.Config    `yaml:"forecast"`
	HTTP        HTTPConfig         `yaml:"http"`
	Database    db.Config          `yaml:"database"`
	Redis       cache.Config       `yaml:"redis"`
	Events      events.Config      `yaml:"events"`
	Breaker     breaker.Config     `yaml:"breaker"`
	Watch       WatchConfig        `yaml:"watch"`
	Archive     ArchiveConfig      `yaml:"archive"`
}

// GraphConfig locates and shapes the dependency table
type GraphConfig struct {
	Path      string   `yaml:"path" validate:"required"`
	Format    string   `yaml:"format" validate:"oneof=matrix edges"`
	Delimiter string   `yaml:"delimiter"`
	Whitelist []string `yaml:"whitelist"`
	TopN      int      `yaml:"top_n" validate:"gte=1"`
}

// ScoresConfig locates the master score table
type ScoresConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// ScoringConfig holds the inputs and formula of the health index
type ScoringConfig struct {
	HardPath       string `yaml:"hard_path"`
	SoftPath       string `yaml:"soft_path"`
	Seed           int64  `yaml:"seed"`
	scoring.Config `yaml:",inline"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Addr           string        `yaml:"addr" validate:"required"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps" validate:"gt=0"`
	RateLimitBurst int           `yaml:"rate_limit_burst" validate:"gte=1"`
	SimulateRPS    float64       `yaml:"simulate_rps" validate:"gt=0"`
	SimulateBurst  int           `yaml:"simulate_burst" validate:"gte=1"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// WatchConfig controls hot reload of input tables
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// ArchiveConfig controls the on-disk run archive
type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Graph: GraphConfig{
			Path:      "data/connections.csv",
			Format:    string(graph.FormatMatrix),
			Delimiter: ";",
			Whitelist: append([]string(nil), sector.KeyIndustries...),
			TopN:      5,
		},
		Scores:      ScoresConfig{Path: "data/MASTER_DATA.csv"},
		Propagation: propagation.DefaultConfig(),
		Scoring: ScoringConfig{
			HardPath: "data/hard_data.csv",
			SoftPath: "data/soft_data.csv",
			Seed:     42,
			Config:   scoring.DefaultConfig(),
		},
		Forecast: forecast.DefaultConfig(),
		HTTP: HTTPConfig{
			Addr:           "127.0.0.1:8080",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: 5 * time.Second,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			SimulateRPS:    2,
			SimulateBurst:  5,
			AllowedOrigins: []string{"localhost", "127.0.0.1"},
		},
		Database: db.DefaultConfig(),
		Redis:    cache.DefaultConfig(),
		Events:   events.DefaultConfig(),
		Breaker:  breaker.DefaultConfig(),
		Watch:    WatchConfig{Enabled: true, Debounce: 500 * time.Millisecond},
		Archive:  ArchiveConfig{Dir: "out/runs"},
	}
}

// LoadConfig reads path over the defaults, applies environment overrides and
// validates the result. A missing file yields the defaults; an empty path
// skips the file entirely.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv applies SECTORPULSE_* overrides plus the PG_* and REDIS_ADDR
// variables shared with other tools.
func (c *Config) ApplyEnv() {
	str := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	str("LOG_LEVEL", &c.LogLevel)
	str("GRAPH_PATH", &c.Graph.Path)
	str("GRAPH_FORMAT", &c.Graph.Format)
	str("SCORES_PATH", &c.Scores.Path)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("ARCHIVE_DIR", &c.Archive.Dir)

	if v := os.Getenv(EnvPrefix + "IMPACT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Propagation.ImpactThreshold = f
		}
	}
	if v := os.Getenv(EnvPrefix + "MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Propagation.MaxDepth = n
		}
	}
	if v := os.Getenv(EnvPrefix + "WHITELIST"); v != "" {
		c.Graph.Whitelist = splitList(v)
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
		c.Events.Addr = addr
	}
	if v := os.Getenv(EnvPrefix + "EVENTS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Events.Enabled = b
		}
	}

	c.Database.ApplyEnv()
}

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if utf8.RuneCountInString(c.Graph.Delimiter) > 1 {
		return fmt.Errorf("graph.delimiter must be a single character, got %q", c.Graph.Delimiter)
	}
	if err := c.Scoring.Config.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Events.Enabled && c.Events.Addr == "" {
		return fmt.Errorf("events.addr is required when events are enabled")
	}
	return nil
}

// GraphLoadOptions converts the graph section into loader options
func (c *Config) GraphLoadOptions() graph.LoadOptions {
	opts := graph.LoadOptions{
		Format:    graph.Format(c.Graph.Format),
		Whitelist: sector.NewWhitelist(c.Graph.Whitelist),
	}
	if r, _ := utf8.DecodeRuneInString(c.Graph.Delimiter); r != utf8.RuneError {
		opts.Delimiter = r
	}
	return opts
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Namespace()
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s], got %v", field, e.Param(), e.Value())
		case "gt", "gte", "lt", "lte":
			return fmt.Errorf("%s: must be %s %s, got %v", field, e.Tag(), e.Param(), e.Value())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
