package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"equityintel/internal/app"
	"equityintel/internal/common"
	"equityintel/internal/models"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	runSession   = flag.String("run", "", "Run one session now (morning or close) and exit")
	runDate      = flag.String("date", "", "Business date for -run/-recover (YYYY-MM-DD, default today)")
	runRecover   = flag.Bool("recover", false, "Run the recovery sweep once and exit")
	backfill     = flag.String("backfill", "", "Backfill a date range (FROM:TO, both YYYY-MM-DD) and exit")
	catchUp      = flag.Bool("catchup", false, "Bypass budget caps for -run (backlog recovery)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("equityintel version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("equityintel.toml"); err == nil {
			configFiles = append(configFiles, "equityintel.toml")
		} else if _, err := os.Stat("deployments/local/equityintel.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/equityintel.toml")
		}
	}

	// Load configuration (defaults -> file1 -> file2 -> ... -> env)
	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetFullVersion())
	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("version", common.GetFullVersion()).
		Msg("Configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	// One-shot modes run a single entry point and exit.
	if *runSession != "" || *runRecover || *backfill != "" {
		var code int
		switch {
		case *runSession != "":
			code = runOnce(application)
		case *runRecover:
			code = recoverOnce(application)
		default:
			code = backfillOnce(application)
		}
		application.Close()
		os.Exit(code)
	}

	// No one-shot flag: run the scheduler loop until interrupted.
	if err := application.Scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
		os.Exit(1)
	}
	if !application.Scheduler.IsRunning() {
		logger.Warn().Msg("Scheduler disabled and no one-shot flag given, nothing to do")
		return
	}

	logger.Info().Msg("Scheduler running - Press Ctrl+C to stop")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
}

func runOnce(application *app.App) int {
	session := models.Session(*runSession)
	if !session.Valid() {
		logger.Error().Str("session", *runSession).Msg("Invalid session, expected morning or close")
		return 1
	}
	date := *runDate
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	result, err := application.Orchestrator.RunSession(context.Background(), date, session, *catchUp)
	if err != nil {
		logger.Error().Str("date", date).Str("session", *runSession).Err(err).Msg("Session run failed")
		return 1
	}
	logger.Info().
		Str("date", date).
		Str("session", *runSession).
		Int("queued", result.Queued).
		Int("done", result.Done).
		Int("signals", result.Signals).
		Msg("Session run finished")
	return 0
}

func recoverOnce(application *app.App) int {
	date := *runDate
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	result, err := application.Orchestrator.RunRecovery(context.Background(), date)
	if err != nil {
		logger.Error().Str("report_date", date).Err(err).Msg("Recovery sweep failed")
		return 1
	}
	logger.Info().
		Str("report_date", date).
		Int("checked_days", result.CheckedDays).
		Int("missing_days", result.MissingDays).
		Int("repaired_days", result.RepairedDays).
		Msg("Recovery sweep finished")
	return 0
}

func backfillOnce(application *app.App) int {
	parts := strings.SplitN(*backfill, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		logger.Error().Str("range", *backfill).Msg("Invalid backfill range, expected FROM:TO")
		return 1
	}

	result, err := application.Orchestrator.RunBackfill(context.Background(), parts[0], parts[1])
	if err != nil {
		logger.Error().Str("range", *backfill).Err(err).Msg("Backfill failed")
		return 1
	}
	logger.Info().
		Str("range", *backfill).
		Int("queued", result.Queued).
		Int("done", result.Done).
		Msg("Backfill finished")
	return 0
}
