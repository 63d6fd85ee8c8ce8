package progress_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/internal/domain/progress"
	. "github.com/smartystreets/goconvey/convey"
)

func event(id string, stage model.Stage) model.ProgressEvent {
	return model.ProgressEvent{SubmissionID: id, Stage: stage, Progress: stage.Progress()}
}

func TestBroadcaster(t *testing.T) {
	ctx := context.Background()

	Convey("Given a broadcaster with two subscribers on one submission", t, func() {
		b := progress.NewBroadcaster(progress.WithBufferSize(4))
		first := b.Subscribe(ctx, "sub-1")
		second := b.Subscribe(ctx, "sub-1")
		other := b.Subscribe(ctx, "sub-2")
		defer first.Close()
		defer second.Close()
		defer other.Close()

		Convey("When an event is published", func() {
			b.Publish(ctx, event("sub-1", model.StageCloning))

			Convey("Then both subscribers receive it with a sequence number", func() {
				e1 := <-first.C
				e2 := <-second.C
				So(e1.Stage, ShouldEqual, model.StageCloning)
				So(e1.Seq, ShouldBeGreaterThan, 0)
				So(e1.Seq, ShouldEqual, e2.Seq)
				So(e1.Timestamp.IsZero(), ShouldBeFalse)
			})

			Convey("And the other submission's subscriber receives nothing", func() {
				So(len(other.C), ShouldEqual, 0)
			})
		})

		Convey("When events are published in order", func() {
			b.Publish(ctx, event("sub-1", model.StageCloning))
			b.Publish(ctx, event("sub-1", model.StageAnalyzing))

			Convey("Then sequence numbers increase", func() {
				a := <-first.C
				c := <-first.C
				So(c.Seq, ShouldBeGreaterThan, a.Seq)
				So(c.Stage, ShouldEqual, model.StageAnalyzing)
			})
		})

		Convey("When a subscriber falls behind", func() {
			for i := 0; i < 10; i++ {
				b.Publish(ctx, event("sub-1", model.StageCloning))
			}

			Convey("Then extra events are dropped instead of blocking", func() {
				So(len(first.C), ShouldEqual, 4)
			})
		})

		Convey("When a subscription is closed twice", func() {
			first.Close()
			first.Close()

			Convey("Then its channel is closed and stats shrink", func() {
				_, open := <-first.C
				So(open, ShouldBeFalse)
				st := b.Stats()
				So(st.Connections, ShouldEqual, 2)
				So(st.Subscriptions["sub-1"], ShouldEqual, 1)
			})
		})
	})

	Convey("Given a subscription bound to a context", t, func() {
		b := progress.NewBroadcaster()
		cctx, cancel := context.WithCancel(ctx)
		sub := b.Subscribe(cctx, "sub-1")

		Convey("When the context is cancelled", func() {
			cancel()

			Convey("Then the subscription is released", func() {
				select {
				case _, open := <-sub.C:
					So(open, ShouldBeFalse)
				case <-time.After(time.Second):
					So("subscription not released", ShouldBeEmpty)
				}
				So(b.Stats().Connections, ShouldEqual, 0)
			})
		})
	})

	Convey("Given no subscribers", t, func() {
		b := progress.NewBroadcaster()

		Convey("Then publishing is a no-op", func() {
			So(func() { b.Publish(ctx, event("nobody", model.StageScoring)) }, ShouldNotPanic)
			So(b.Stats().Connections, ShouldEqual, 0)
		})
	})
}

func TestBroadcasterConcurrency(t *testing.T) {
	Convey("Given concurrent subscribe, publish and close", t, func() {
		b := progress.NewBroadcaster(progress.WithBufferSize(1))
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			id := fmt.Sprintf("sub-%d", i%3)
			go func() {
				defer wg.Done()
				s := b.Subscribe(ctx, id)
				s.Close()
			}()
			go func() {
				defer wg.Done()
				b.Publish(ctx, event(id, model.StageScoring))
			}()
		}
		wg.Wait()

		Convey("Then every subscription is released", func() {
			So(b.Stats().Connections, ShouldEqual, 0)
		})
	})
}
