package loadgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// ErrNoRepos is returned when a run has no repositories to assign.
var ErrNoRepos = errors.New("at least one repository URL is required")

// Run executes one batch load run end to end.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	cfg.normalize()
	if len(cfg.Repos) == 0 {
		return nil, ErrNoRepos
	}
	stats := &Stats{StartTime: time.Now()}
	client := NewHTTPClient(cfg.BaseURL, cfg.Timeout)
	log := logger.Get()

	log.Info(ctx, "starting batch load run",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("submissions", cfg.Submissions),
		logger.Int("repos", len(cfg.Repos)),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	// Step 1: Check service health
	if _, err := client.Raw(ctx, "/healthz"); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate candidates
	inputs := GenerateSubmissions(cfg.Submissions, cfg.Repos)
	stats.SubmissionsGenerated = len(inputs)

	// Step 3: Create the batch and add its members
	var batch Batch
	if err := client.Post(ctx, "/batches", BatchInput{Name: cfg.BatchName}, http.StatusCreated, &batch); err != nil {
		return stats, fmt.Errorf("create batch: %w", err)
	}
	ctx = logger.WithFields(ctx, logger.String("batch_id", batch.ID))
	log.Info(ctx, "batch created")

	ids, err := addSubmissions(ctx, client, cfg, batch.ID, inputs, stats)
	if err != nil {
		return stats, fmt.Errorf("add submissions: %w", err)
	}

	// Step 4: Start processing
	var started StartResult
	if err := client.Post(ctx, batchPath(batch.ID, "start"), nil, http.StatusAccepted, &started); err != nil {
		return stats, fmt.Errorf("start batch: %w", err)
	}
	stats.SubmissionsRejected += started.Rejected
	log.Info(ctx, "batch started",
		logger.Int("enqueued", started.Enqueued),
		logger.Int("rejected", started.Rejected))

	// Step 5: Wait for every member to finish
	batch, err = waitForBatch(ctx, client, batch.ID, cfg.PollInterval, cfg.Wait)
	if err != nil {
		return stats, err
	}
	stats.Completed = batch.Completed
	stats.Failed = batch.Failed

	// Step 6: Retrieve rankings concurrently
	ranks, err := retrieveRankings(ctx, client, ids, cfg.Workers)
	if err != nil {
		return stats, fmt.Errorf("ranking retrieval failed: %w", err)
	}
	stats.RankingsRetrieved = len(ranks)

	// Step 7: Get the batch leaderboard
	leaderboard, err := getLeaderboard(ctx, client, batch.ID, cfg.TopN)
	if err != nil {
		return stats, err
	}
	stats.LeaderboardEntries = len(leaderboard)

	// Step 8: Verify results
	if err := VerifyLeaderboard(leaderboard); err != nil {
		return stats, fmt.Errorf("leaderboard verification failed: %w", err)
	}
	if err := VerifyAgainstRanks(leaderboard, ranks); err != nil {
		return stats, fmt.Errorf("rank verification failed: %w", err)
	}
	displayTopPerformers(ctx, leaderboard)

	// Step 9: Export and check the row count
	if err := exportResults(ctx, client, cfg, batch, stats); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

// addSubmissions posts inputs in chunks through a pool of workers and
// returns the ids of every added member.
func addSubmissions(ctx context.Context, client *HTTPClient, cfg *Config, batchID string, inputs []SubmissionInput, stats *Stats) ([]string, error) {
	chunks := chunk(inputs, cfg.ChunkSize)
	jobs := make(chan []SubmissionInput, len(chunks))
	for _, c := range chunks {
		jobs <- c
	}
	close(jobs)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ids      []string
		added    atomic.Int64
		rejected atomic.Int64
		firstErr error
	)
	for range min(cfg.Workers, len(chunks)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for members := range jobs {
				var res AddResult
				err := client.Post(ctx, batchPath(batchID, "submissions"), addRequest{Submissions: members}, http.StatusCreated, &res)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					ids = append(ids, res.IDs...)
				}
				mu.Unlock()
				if err != nil {
					logger.Get().Debug(ctx, "add chunk failed", logger.Error(err))
					continue
				}
				added.Add(int64(len(res.IDs)))
				rejected.Add(int64(res.Rejected))
			}
		}()
	}
	wg.Wait()

	stats.SubmissionsAdded = int(added.Load())
	stats.SubmissionsRejected = int(rejected.Load())
	logger.Get().Info(ctx, "submissions added",
		logger.Int("added", stats.SubmissionsAdded),
		logger.Int("chunks", len(chunks)))
	return ids, firstErr
}

// waitForBatch polls the batch until it completes or wait elapses.
func waitForBatch(ctx context.Context, client *HTTPClient, batchID string, interval, wait time.Duration) (Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var b Batch
		if err := client.Get(ctx, batchPath(batchID, ""), &b); err != nil {
			return b, fmt.Errorf("poll batch: %w", err)
		}
		if b.Status == model.BatchCompleted {
			logger.Get().Info(ctx, "batch completed",
				logger.Int("completed", b.Completed),
				logger.Int("failed", b.Failed))
			return b, nil
		}
		logger.Get().Debug(ctx, "batch in progress",
			logger.Int("completed", b.Completed),
			logger.Int("failed", b.Failed),
			logger.Int("pending", b.Pending))

		select {
		case <-ctx.Done():
			return b, fmt.Errorf("batch %s did not complete: %w", batchID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func exportResults(ctx context.Context, client *HTTPClient, cfg *Config, batch Batch, stats *Stats) error {
	data, err := client.Raw(ctx, batchPath(batch.ID, "export"))
	if err != nil {
		return fmt.Errorf("export batch: %w", err)
	}
	rows, err := CountExportRows(data)
	if err != nil {
		return err
	}
	stats.ExportRows = rows
	if rows != batch.Total {
		return fmt.Errorf("export has %d rows, batch has %d members", rows, batch.Total)
	}

	if cfg.OutputFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), directoryPermission); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(cfg.OutputFile, data, filePermission); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	logger.Get().Info(ctx, "export saved", logger.String("file", cfg.OutputFile))
	return nil
}

func batchPath(id, action string) string {
	p := "/batches/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

// displayFinalStats logs the run summary.
func displayFinalStats(ctx context.Context, stats *Stats) {
	successRate := 0.0
	if stats.SubmissionsAdded > 0 {
		successRate = float64(stats.Completed) / float64(stats.SubmissionsAdded) * PercentageMultiplier
	}
	logger.Get().Info(ctx, "load run finished",
		logger.Int("generated", stats.SubmissionsGenerated),
		logger.Int("added", stats.SubmissionsAdded),
		logger.Int("rejected", stats.SubmissionsRejected),
		logger.Int("completed", stats.Completed),
		logger.Int("failed", stats.Failed),
		logger.Int("ranked", stats.RankingsRetrieved),
		logger.Int("leaderboard", stats.LeaderboardEntries),
		logger.Int("export_rows", stats.ExportRows),
		logger.Float64("success_rate", successRate),
		logger.Duration("duration", stats.Duration))
}
