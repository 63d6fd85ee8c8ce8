package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/googly1030/intern-platform/internal/adapters/repository"
	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStatusCache(t *testing.T) {
	Convey("Given a status cache", t, func() {
		mr, client := newRedis(t)
		ctx := context.Background()
		c := NewStatusCache(client, time.Minute)

		Convey("A miss is not an error", func() {
			_, ok, err := c.Get(ctx, "s1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("Views round trip under the status key with a TTL", func() {
			v := model.StatusView{ID: "s1", Status: model.StatusProcessing, Stage: model.StageAIReview, Progress: 42}
			So(c.Set(ctx, v), ShouldBeNil)
			So(mr.Exists("scoring:status:s1"), ShouldBeTrue)
			So(mr.TTL("scoring:status:s1"), ShouldEqual, time.Minute)

			got, ok, err := c.Get(ctx, "s1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(got, ShouldResemble, v)

			mr.FastForward(2 * time.Minute)
			_, ok, _ = c.Get(ctx, "s1")
			So(ok, ShouldBeFalse)
		})

		Convey("Corrupt entries surface a decode error", func() {
			So(mr.Set("scoring:status:bad", "{"), ShouldBeNil)
			_, _, err := c.Get(ctx, "bad")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestMirroredStore(t *testing.T) {
	Convey("Given a store mirrored into redis", t, func() {
		mr, client := newRedis(t)
		ctx := context.Background()
		c := NewStatusCache(client, time.Minute)
		store := NewMirroredStore(repository.NewMemoryStore(), c)

		So(store.SaveSubmission(ctx, model.Submission{ID: "s1", Status: model.StatusPending, Stage: model.StagePending}), ShouldBeNil)

		Convey("Every status write is visible in the mirror", func() {
			So(store.UpdateStatus(ctx, "s1", model.StatusUpdate{
				Status: model.StatusProcessing, Stage: model.StageCloning, Progress: 14,
			}), ShouldBeNil)
			v, ok, _ := c.Get(ctx, "s1")
			So(ok, ShouldBeTrue)
			So(v.Stage, ShouldEqual, model.StageCloning)
			So(v.Progress, ShouldEqual, 14)

			So(store.SaveReport(ctx, "s1", model.ScoreReport{OverallScore: 70, GeneratedAt: time.Now()}), ShouldBeNil)
			v, _, _ = c.Get(ctx, "s1")
			So(v.Status, ShouldEqual, model.StatusCompleted)
			So(v.Progress, ShouldEqual, 100)
		})

		Convey("Store errors pass through without touching the mirror", func() {
			err := store.UpdateStatus(ctx, "missing", model.StatusUpdate{})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(mr.Exists("scoring:status:missing"), ShouldBeFalse)
		})

		Convey("A mirror outage does not fail the write", func() {
			mr.Close()
			So(store.UpdateStatus(ctx, "s1", model.StatusUpdate{
				Status: model.StatusProcessing, Stage: model.StageAnalyzing, Progress: 28,
			}), ShouldBeNil)
		})
	})
}

func TestRedisGuard(t *testing.T) {
	Convey("Given two processes sharing a redis guard", t, func() {
		mr, client := newRedis(t)
		ctx := context.Background()
		a := NewRedisGuard(client, time.Minute)
		b := NewRedisGuard(client, time.Minute)

		Convey("Only one can own a submission", func() {
			So(a.Acquire(ctx, "s1"), ShouldBeTrue)
			So(b.Acquire(ctx, "s1"), ShouldBeFalse)
			So(a.Size(), ShouldEqual, 1)
			So(b.Size(), ShouldEqual, 0)
		})

		Convey("Only the owner can release", func() {
			So(a.Acquire(ctx, "s1"), ShouldBeTrue)
			b.Release(ctx, "s1")
			So(b.Acquire(ctx, "s1"), ShouldBeFalse)

			a.Release(ctx, "s1")
			So(a.Size(), ShouldEqual, 0)
			So(b.Acquire(ctx, "s1"), ShouldBeTrue)
		})

		Convey("A crashed owner's claim expires", func() {
			So(a.Acquire(ctx, "s1"), ShouldBeTrue)
			mr.FastForward(2 * time.Minute)
			So(b.Acquire(ctx, "s1"), ShouldBeTrue)
		})

		Convey("A redis outage denies the claim", func() {
			mr.Close()
			So(a.Acquire(ctx, "s1"), ShouldBeFalse)
		})
	})
}

func TestNewClientValidation(t *testing.T) {
	Convey("NewClient needs an address and a live server", t, func() {
		_, err := NewClient(context.Background(), RedisConfig{})
		So(err, ShouldNotBeNil)

		mr := miniredis.RunT(t)
		cfg := DefaultRedisConfig()
		cfg.Addr = mr.Addr()
		client, err := NewClient(context.Background(), cfg)
		So(err, ShouldBeNil)
		So(client.Close(), ShouldBeNil)
	})
}
