package loadgen

import (
	"fmt"
	"os"

	"github.com/googly1030/intern-platform/pkg/logger"
)

// SetupLogging initializes the global logger. An empty logFile logs to
// stdout; verbose lowers the level to debug.
func SetupLogging(logFile string, verbose bool) error {
	level := "info"
	if verbose {
		level = "debug"
	}
	if err := logger.InitWithConfig(logger.Config{Level: level, Format: "console", OutputPath: logFile}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// ShowHelp prints usage information for the load tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Submission Batch Load Tool
==========================

Drives one batch end to end against a running scoring service: creates the
batch, adds generated candidates, starts it, waits for every member to reach
a terminal status, then checks the leaderboard and the CSV export.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -repos string
        Comma-separated repository URLs assigned round-robin (required)
  -submissions int
        Number of batch members to create (default 20)
  -name string
        Batch name (default "load run")
  -chunk int
        Members per add request (default 25)
  -top int
        Number of leaderboard entries to fetch (default 10)
  -workers int
        Number of concurrent workers (default 4)
  -timeout duration
        HTTP request timeout (default 30s)
  -poll duration
        Delay between batch status polls (default 2s)
  -wait duration
        Upper bound on waiting for the batch (default 15m)
  -output string
        File for the batch CSV export (default: none)
  -log string
        Log file (default: stdout)
  -verbose
        Enable debug logging
  -help
        Show this help message

Examples:
  go run ./cmd/loadgen -repos https://github.com/acme/todo,https://github.com/acme/shop
  go run ./cmd/loadgen -repos https://github.com/acme/todo -submissions 200 -workers 8 -output results.csv
`)
}
