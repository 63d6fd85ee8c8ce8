package loadgen

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/googly1030/intern-platform/pkg/logger"
)

// VerifyLeaderboard checks that entries are ordered by score and carry
// competition ranks: ties share a rank and the next distinct score skips ahead.
func VerifyLeaderboard(entries []Entry) error {
	for i, e := range entries {
		want := i + 1
		if i > 0 {
			prev := entries[i-1]
			if e.OverallScore > prev.OverallScore {
				return fmt.Errorf("entry %d (%s) scores %d above previous %d", i, e.SubmissionID, e.OverallScore, prev.OverallScore)
			}
			if e.OverallScore == prev.OverallScore {
				want = prev.Rank
			}
		}
		if e.Rank != want {
			return fmt.Errorf("entry %d (%s) has rank %d, want %d", i, e.SubmissionID, e.Rank, want)
		}
	}
	return nil
}

// VerifyAgainstRanks checks every leaderboard entry against the rank lookup
// of the same submission.
func VerifyAgainstRanks(entries []Entry, ranks map[string]Entry) error {
	for _, e := range entries {
		r, ok := ranks[e.SubmissionID]
		if !ok {
			return fmt.Errorf("leaderboard entry %s has no rank", e.SubmissionID)
		}
		if r.Rank != e.Rank || r.OverallScore != e.OverallScore {
			return fmt.Errorf("submission %s: leaderboard rank %d score %d, lookup rank %d score %d",
				e.SubmissionID, e.Rank, e.OverallScore, r.Rank, r.OverallScore)
		}
	}
	return nil
}

// CountExportRows returns the number of data rows in a CSV export.
func CountExportRows(data []byte) (int, error) {
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return 0, fmt.Errorf("parse export: %w", err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("export has no header")
	}
	return len(rows) - 1, nil
}

// displayTopPerformers logs the leaderboard entries.
func displayTopPerformers(ctx context.Context, entries []Entry) {
	if len(entries) == 0 {
		logger.Get().Info(ctx, "no scored submissions in batch")
		return
	}
	for _, e := range entries {
		logger.Get().Info(ctx, "top performer",
			logger.Int("rank", e.Rank),
			logger.String("submission_id", e.SubmissionID),
			logger.String("candidate", e.CandidateName),
			logger.Int("score", e.OverallScore),
			logger.String("grade", string(e.Grade)))
	}
}
