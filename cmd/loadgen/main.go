package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/googly1030/intern-platform/internal/loadgen"
	"github.com/googly1030/intern-platform/pkg/logger"
)

// Default configuration constants.
const (
	defaultSubmissions = 20
	defaultTopN        = 10
	defaultWorkers     = 4
	defaultTimeout     = 30 * time.Second
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		repos       = flag.String("repos", "", "Comma-separated repository URLs assigned round-robin")
		submissions = flag.Int("submissions", defaultSubmissions, "Number of batch members to create")
		name        = flag.String("name", loadgen.DefaultBatchName, "Batch name")
		chunkSize   = flag.Int("chunk", loadgen.DefaultChunkSize, "Members per add request")
		topN        = flag.Int("top", defaultTopN, "Number of leaderboard entries to fetch")
		workers     = flag.Int("workers", defaultWorkers, "Number of concurrent workers")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		poll        = flag.Duration("poll", loadgen.DefaultPollInterval, "Delay between batch status polls")
		wait        = flag.Duration("wait", loadgen.DefaultWait, "Upper bound on waiting for the batch")
		outputFile  = flag.String("output", "", "File for the batch CSV export")
		logFile     = flag.String("log", "", "Log file (default: stdout)")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	if err := loadgen.SetupLogging(*logFile, *verbose); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &loadgen.Config{
		BaseURL:      strings.TrimRight(*baseURL, "/"),
		Repos:        splitList(*repos),
		Submissions:  *submissions,
		BatchName:    *name,
		ChunkSize:    *chunkSize,
		TopN:         *topN,
		Workers:      *workers,
		Timeout:      *timeout,
		PollInterval: *poll,
		Wait:         *wait,
		OutputFile:   *outputFile,
		LogFile:      *logFile,
		Verbose:      *verbose,
	}

	if _, err := loadgen.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "load run failed", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
