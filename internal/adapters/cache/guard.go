package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/googly1030/intern-platform/internal/domain/dedupe"
	"github.com/googly1030/intern-platform/pkg/logger"
)

const ownerKeyPrefix = "scoring:owner:"

// releaseScript deletes the claim only while this process still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisGuard is an ownership guard shared by every worker process. A claim
// is a SETNX key with a TTL so a crashed owner cannot block a job forever.
type RedisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
	token  string
	held   atomic.Int64
	log    logger.Logger
}

var _ dedupe.Guard = (*RedisGuard)(nil)

// NewRedisGuard creates a guard whose claims expire after ttl.
func NewRedisGuard(client redis.UniversalClient, ttl time.Duration) *RedisGuard {
	return &RedisGuard{
		client: client,
		ttl:    ttl,
		token:  uuid.NewString(),
		log:    logger.Get().Named("redis-guard"),
	}
}

func ownerKey(id string) string { return ownerKeyPrefix + id }

// Acquire claims id. A Redis error denies the claim; the job is redelivered.
func (g *RedisGuard) Acquire(ctx context.Context, id string) bool {
	ok, err := g.client.SetNX(ctx, ownerKey(id), g.token, g.ttl).Result()
	if err != nil {
		g.log.Error(ctx, "claim failed", logger.String("submission_id", id), logger.Error(err))
		return false
	}
	if ok {
		g.held.Add(1)
	}
	return ok
}

// Release drops this process's claim on id.
func (g *RedisGuard) Release(ctx context.Context, id string) {
	n, err := releaseScript.Run(ctx, g.client, []string{ownerKey(id)}, g.token).Int()
	if err != nil {
		g.log.Warn(ctx, "release failed", logger.String("submission_id", id), logger.Error(err))
		return
	}
	if n > 0 {
		g.held.Add(-1)
	}
}

// Size returns the number of claims this process holds.
func (g *RedisGuard) Size() int64 { return g.held.Load() }
