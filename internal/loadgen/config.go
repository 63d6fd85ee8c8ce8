package loadgen

import (
	"time"

	service "github.com/googly1030/intern-platform/internal/app"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/types"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the scoring service
	Repos        []string      // Repository URLs assigned round-robin to candidates
	Submissions  int           // Number of batch members to create
	BatchName    string        // Name of the batch created for the run
	ChunkSize    int           // Members per add request
	TopN         int           // Number of leaderboard entries to fetch
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	PollInterval time.Duration // Delay between batch status polls
	Wait         time.Duration // Upper bound on waiting for the batch to finish
	OutputFile   string        // Destination of the CSV export
	LogFile      string        // Log file for run output
	Verbose      bool          // Enable verbose logging
}

// Wire types shared with the service.
type (
	SubmissionInput = service.SubmissionInput
	BatchInput      = service.BatchInput
	AddResult       = service.AddResult
	StartResult     = service.StartResult
	Batch           = model.Batch
	Entry           = types.Entry
)

type addRequest struct {
	Submissions []SubmissionInput `json:"submissions"`
}

// Stats holds run statistics.
type Stats struct {
	SubmissionsGenerated int
	SubmissionsAdded     int
	SubmissionsRejected  int
	Completed            int
	Failed               int
	RankingsRetrieved    int
	LeaderboardEntries   int
	ExportRows           int
	StartTime            time.Time
	EndTime              time.Time
	Duration             time.Duration
}

func (c *Config) normalize() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Wait <= 0 {
		c.Wait = DefaultWait
	}
	if c.BatchName == "" {
		c.BatchName = DefaultBatchName
	}
}
