// -----------------------------------------------------------------------
// Last Modified: Friday, 8th November 2025 4:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/app"
	"github.com/ternarybob/llmstxt-crawler/internal/common"
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
	configFiles  configPaths // Multiple -config flags supported, later ones override earlier
	serverPort   = flag.Int("port", 0, "Server port (reserved, overrides config)")
	serverHost   = flag.String("host", "", "Server host (reserved, overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("llmstxt-crawler version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Auto-discover config file if none given.
	if len(configFiles) == 0 {
		if _, err := os.Stat("llmstxt.toml"); err == nil {
			configFiles = append(configFiles, "llmstxt.toml")
		} else if _, err := os.Stat("deployments/local/llmstxt.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/llmstxt.toml")
		}
	}

	// Startup sequence (required order):
	// 1. Load config (defaults -> file(s) -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		if len(configFiles) == 0 {
			tempLogger.Fatal().Err(err).Msg("Failed to load configuration: no config file found")
		} else {
			tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		}
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *serverPort, *serverHost)

	logger := common.SetupLogger(config)
	common.PrintBanner(config, logger)

	logger.Debug().
		Str("sqlite_path", config.Storage.SQLite.Path).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Bool("scheduler_enabled", config.Scheduler.Enabled).
		Int("worker_concurrency", config.Worker.Concurrency).
		Msg("resolved configuration")

	logger.Info().Strs("config_files", configFiles).Msg("configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("interrupt signal received, shutting down")

	if err := application.Close(); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
	common.PrintShutdownBanner(logger)
}
