package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/sectorpulse/internal/config"
)

const (
	appName = "SectorPulse"
	version = "v1.0.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand
type app struct {
	configPath string
	logLevel   string
	jsonOut    bool

	cfg *config.Config
	out io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "sectorpulse",
		Short:   "Sector health index and shock propagation simulator",
		Version: version,
		Long: `SectorPulse scores industry health and simulates how a shock to one
sector spreads to its clients through the input-output dependency graph.

Output is a table on a terminal and JSON otherwise (or with --json).`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "configs/sectorpulse.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Force JSON output")

	rootCmd.AddCommand(
		a.simulateCmd(),
		a.graphCmd(),
		a.scoreCmd(),
		a.forecastCmd(),
		a.serveCmd(),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if err := setupLogging(cfg.LogLevel, os.Stderr); err != nil {
		return err
	}
	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	return nil
}

// setupLogging writes human-readable logs to terminals and JSON elsewhere.
func setupLogging(level string, w *os.File) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if term.IsTerminal(int(w.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}
	return nil
}

// tableOutput reports whether results should be rendered as a table.
func (a *app) tableOutput() bool {
	if a.jsonOut {
		return false
	}
	f, ok := a.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
