package loadgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/googly1030/intern-platform/pkg/logger"
)

// retrieveRankings fetches the in-batch rank of every id. Members that never
// produced a score are not ranked and are skipped.
func retrieveRankings(ctx context.Context, client *HTTPClient, ids []string, workers int) (map[string]Entry, error) {
	var (
		mu       sync.Mutex
		unranked atomic.Int64
		ranks    = make(map[string]Entry, len(ids))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		g.Go(func() error {
			var e Entry
			err := client.Get(gctx, "/submissions/"+url.PathEscape(id)+"/rank?scope=batch", &e)
			var se *StatusError
			if errors.As(err, &se) && se.Code == http.StatusNotFound {
				unranked.Add(1)
				return nil
			}
			if err != nil {
				return fmt.Errorf("rank %s: %w", id, err)
			}
			mu.Lock()
			ranks[id] = e
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Get().Info(ctx, "rankings retrieved",
		logger.Int("ranked", len(ranks)),
		logger.Int("unranked", int(unranked.Load())))
	return ranks, nil
}

// getLeaderboard fetches the top entries of one batch.
func getLeaderboard(ctx context.Context, client *HTTPClient, batchID string, topN int) ([]Entry, error) {
	q := url.Values{}
	q.Set("batch_id", batchID)
	if topN > 0 {
		q.Set("limit", strconv.Itoa(topN))
	}
	var entries []Entry
	if err := client.Get(ctx, "/leaderboard?"+q.Encode(), &entries); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return entries, nil
}
