package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/pthm-cable/sentry/config"
	"github.com/pthm-cable/sentry/game"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for the end-of-run snapshot")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = use config, unlimited if both are 0)")
	stepsPerUpdate := flag.Int("steps-per-update", 1, "Simulation ticks per update call")
	traceVision := flag.Bool("trace-vision", false, "Log every candidate test at debug level")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := game.NewLogger(os.Stdout, *logLevel)
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *traceVision {
		cfg.Debug.TraceVision = true
	}
	for _, w := range cfg.Validate() {
		slog.Warn("config", "warning", w)
	}

	limit := cfg.Sim.MaxTicks
	if *maxTicks > 0 {
		limit = *maxTicks
	}

	g := game.NewGameWithOptions(game.Options{
		Config:         cfg,
		Logger:         logger,
		LogStats:       *logStats,
		StatsWindowSec: *statsWindow,
		StepsPerUpdate: *stepsPerUpdate,
		OutputDir:      *outputDir,
		SnapshotDir:    *snapshotDir,
	})
	defer g.Unload()

	slog.Info("starting headless simulation",
		"dt", cfg.Sim.DT,
		"max_ticks", limit,
		"steps_per_update", *stepsPerUpdate,
		"output_dir", *outputDir,
	)

	for {
		g.UpdateHeadless()

		if limit > 0 && int(g.Tick()) >= limit {
			slog.Info("max ticks reached", "tick", g.Tick(), "state", g.State().String())
			return
		}
	}
}
