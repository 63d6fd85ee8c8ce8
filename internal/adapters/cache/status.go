package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/googly1030/intern-platform/internal/adapters/repository"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/pkg/logger"
	"github.com/googly1030/intern-platform/pkg/metrics"
)

const statusKeyPrefix = "scoring:status:"

// StatusCache mirrors the latest StatusView of each submission.
type StatusCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewStatusCache creates a mirror whose entries expire after ttl.
func NewStatusCache(client redis.UniversalClient, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func statusKey(id string) string { return statusKeyPrefix + id }

// Set stores v under its submission id.
func (c *StatusCache) Set(ctx context.Context, v model.StatusView) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return c.client.Set(ctx, statusKey(v.ID), b, c.ttl).Err()
}

// Get returns the mirrored view. ok is false on a miss.
func (c *StatusCache) Get(ctx context.Context, id string) (v model.StatusView, ok bool, err error) {
	raw, err := c.client.Get(ctx, statusKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.StatusView{}, false, nil
	}
	if err != nil {
		return model.StatusView{}, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.StatusView{}, false, fmt.Errorf("decode status: %w", err)
	}
	return v, true, nil
}

// MirroredStore writes every status change through to the StatusCache after
// the underlying store accepts it. Mirror failures are logged, never returned.
type MirroredStore struct {
	repository.Store
	cache *StatusCache
	log   logger.Logger
}

// NewMirroredStore wraps store.
func NewMirroredStore(store repository.Store, cache *StatusCache) *MirroredStore {
	return &MirroredStore{Store: store, cache: cache, log: logger.Get().Named("status-cache")}
}

func (m *MirroredStore) mirror(ctx context.Context, id string) {
	sub, err := m.Store.LoadSubmission(ctx, id)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, sub.View()); err != nil {
		metrics.RecordErrorByComponent("status_cache", "write")
		m.log.Warn(ctx, "status mirror write failed", logger.String("submission_id", id), logger.Error(err))
	}
}

// SaveSubmission persists s and mirrors its status.
func (m *MirroredStore) SaveSubmission(ctx context.Context, s model.Submission) error {
	if err := m.Store.SaveSubmission(ctx, s); err != nil {
		return err
	}
	m.mirror(ctx, s.ID)
	return nil
}

// UpdateStatus persists u and mirrors the result.
func (m *MirroredStore) UpdateStatus(ctx context.Context, id string, u model.StatusUpdate) error {
	if err := m.Store.UpdateStatus(ctx, id, u); err != nil {
		return err
	}
	m.mirror(ctx, id)
	return nil
}

// SaveReport persists r and mirrors the completed status.
func (m *MirroredStore) SaveReport(ctx context.Context, id string, r model.ScoreReport) error {
	if err := m.Store.SaveReport(ctx, id, r); err != nil {
		return err
	}
	m.mirror(ctx, id)
	return nil
}
