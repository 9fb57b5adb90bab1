// Package cmd implements the pitboss CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pitboss/internal/app"
	"github.com/derickschaefer/pitboss/internal/config"
	"github.com/derickschaefer/pitboss/internal/logging"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	Token   string
	BaseURL string
	Format  string
	Out     string
	Timeout string
	Rate    float64
	Quiet   bool
	Verbose bool
	Debug   bool
}

// rootCmd is the base command. Running `pitboss` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "pitboss",
	Short: "pitboss: casino back-office reference data and dashboards",
	Long: `pitboss is a command-line tool for the casino back-office API.

It resolves the Platform → Operator → Brand hierarchy, assembles the
analytics dashboard from raw game rounds and serves both over HTTP.

Quick start:
  pitboss config init                  # create a config.json
  pitboss session login --token $TOKEN # save a bearer token
  pitboss ref platforms                # list platforms
  pitboss dashboard --from 2024-01-01  # totals, hourly series and leaderboards`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initLogging configures zerolog from config and flags. Logs go to stderr so
// they never mix with rendered output.
func initLogging() {
	level := config.DefaultLogLevel
	format := config.DefaultLogFormat
	if cfg, err := config.Load(globalFlags.Token); err == nil {
		level, format = cfg.LogLevel, cfg.LogFormat
	}
	switch {
	case globalFlags.Debug:
		level = "debug"
	case globalFlags.Quiet:
		level = "error"
	}
	logging.Init(logging.Config{Level: level, Format: format})
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(cfg), nil
}

// loadConfig resolves config and applies the CLI flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.Token)
	if err != nil {
		return nil, err
	}

	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.BaseURL != "" {
		cfg.BaseURL = globalFlags.BaseURL
	}
	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.Timeout != "" {
		d, err := time.ParseDuration(globalFlags.Timeout)
		if err != nil {
			return nil, fmt.Errorf("--timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}
	return cfg, nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.Token, "token", "",
		"bearer token (overrides env "+config.EnvToken+" and the saved session)")
	pf.StringVar(&globalFlags.BaseURL, "base-url", "",
		"back-office API base URL (overrides env "+config.EnvBaseURL+" and config.json)")
	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"HTTP request timeout (e.g. 30s, 2m)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max API requests per second (default: 5.0)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log HTTP requests and cache activity (token redacted)")
}
