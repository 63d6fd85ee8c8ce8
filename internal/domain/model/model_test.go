package model_test

import (
	"testing"
	"time"

	model "github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestStageProgress(t *testing.T) {
	convey.Convey("Given the pipeline stage order", t, func() {
		convey.Convey("Then progress follows i*100/7", func() {
			want := map[model.Stage]int{
				model.StagePending:     0,
				model.StageCloning:     14,
				model.StageAnalyzing:   28,
				model.StageAIReview:    42,
				model.StageAIDetection: 57,
				model.StageDeployment:  71,
				model.StageScoring:     85,
				model.StageCompleted:   100,
			}
			for stage, p := range want {
				convey.So(stage.Progress(), convey.ShouldEqual, p)
			}
		})

		convey.Convey("Then run stages exclude pending and terminals", func() {
			stages := model.RunStages()
			convey.So(stages, convey.ShouldHaveLength, 6)
			convey.So(stages[0], convey.ShouldEqual, model.StageCloning)
			convey.So(stages[5], convey.ShouldEqual, model.StageScoring)
		})

		convey.Convey("Then indices are monotonic", func() {
			prev := -1
			for _, s := range append([]model.Stage{model.StagePending}, append(model.RunStages(), model.StageCompleted)...) {
				convey.So(s.Index(), convey.ShouldBeGreaterThan, prev)
				prev = s.Index()
			}
			convey.So(model.StageFailed.Index(), convey.ShouldEqual, -1)
		})

		convey.Convey("Then terminal states are recognised", func() {
			convey.So(model.StageCompleted.Terminal(), convey.ShouldBeTrue)
			convey.So(model.StageFailed.Terminal(), convey.ShouldBeTrue)
			convey.So(model.StageScoring.Terminal(), convey.ShouldBeFalse)
			convey.So(model.StatusFailed.Terminal(), convey.ShouldBeTrue)
			convey.So(model.StatusProcessing.Terminal(), convey.ShouldBeFalse)
		})
	})
}

func TestStatusUpdateApply(t *testing.T) {
	convey.Convey("Given a submission mid-run", t, func() {
		started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		sub := model.Submission{ID: "s-1", Status: model.StatusProcessing, Stage: model.StageDeployment, Progress: 71, StartedAt: &started}

		convey.Convey("When a failure update carries a lower progress", func() {
			model.StatusUpdate{
				Status:       model.StatusFailed,
				Stage:        model.StageFailed,
				Progress:     0,
				ErrorMessage: "boom",
				FailedStage:  model.StageDeployment,
			}.Apply(&sub, started.Add(time.Minute))

			convey.Convey("Then progress is kept", func() {
				convey.So(sub.Progress, convey.ShouldEqual, 71)
				convey.So(sub.Status, convey.ShouldEqual, model.StatusFailed)
				convey.So(sub.FailedStage, convey.ShouldEqual, model.StageDeployment)
				convey.So(sub.View().ErrorMessage, convey.ShouldEqual, "boom")
			})
		})

		convey.Convey("When the run completes", func() {
			done := started.Add(90 * time.Second)
			model.StatusUpdate{Status: model.StatusCompleted, Stage: model.StageCompleted, Progress: 100, ProcessedAt: &done}.Apply(&sub, done)

			convey.Convey("Then duration is derived", func() {
				convey.So(sub.Progress, convey.ShouldEqual, 100)
				convey.So(sub.Duration, convey.ShouldEqual, 90*time.Second)
			})
		})
	})
}

func TestSubmissionFilter(t *testing.T) {
	convey.Convey("Given a filter on batch and status", t, func() {
		f := model.SubmissionFilter{BatchID: "b-1", Status: model.StatusCompleted}
		convey.So(f.Matches(model.Submission{BatchID: "b-1", Status: model.StatusCompleted}), convey.ShouldBeTrue)
		convey.So(f.Matches(model.Submission{BatchID: "b-2", Status: model.StatusCompleted}), convey.ShouldBeFalse)
		convey.So(f.Matches(model.Submission{BatchID: "b-1", Status: model.StatusFailed}), convey.ShouldBeFalse)
		convey.So(model.SubmissionFilter{}.Matches(model.Submission{}), convey.ShouldBeTrue)
	})
}
