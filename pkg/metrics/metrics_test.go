package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it uses the pipeline namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "intern")
				So(manager.subsystem, ShouldEqual, "pipeline")
				So(manager.Enabled(), ShouldBeTrue)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("test"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(false),
				WithRefreshInterval(10*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.metricPrefix, ShouldEqual, "test")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.Enabled(), ShouldBeFalse)
				So(manager.RefreshInterval(), ShouldEqual, 10*time.Second)
			})

			Convey("And metric names carry the prefix", func() {
				manager.submissionsCreated.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if strings.HasSuffix(f.GetName(), "test_submissions_created_total") {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "intern")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording pipeline outcomes", func() {
			before := testutil.ToFloat64(globalManager.submissionsFinished.WithLabelValues("completed"))
			RecordSubmissionCreated()
			RecordSubmissionFinished("completed")
			RecordOverallScore(72)
			RecordAIRisk(0.75)

			Convey("Then the outcome counter moves", func() {
				after := testutil.ToFloat64(globalManager.submissionsFinished.WithLabelValues("completed"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When recording stage metrics", func() {
			before := testutil.ToFloat64(globalManager.stageRetries.WithLabelValues("cloning"))
			So(func() {
				RecordStageLatency("cloning", 120)
				RecordStageRetry("cloning")
				RecordStageFailure("cloning")
				RecordStageDegradation("ai_review")
			}, ShouldNotPanic)

			Convey("Then retries are counted per stage", func() {
				So(testutil.ToFloat64(globalManager.stageRetries.WithLabelValues("cloning"))-before, ShouldEqual, 1)
			})
		})

		Convey("When recording queue and worker metrics", func() {
			UpdateQueueSize(3)
			UpdateQueueCapacity(100)

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
			})

			So(func() {
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueRejected()
				RecordQueueAckFailure()
				UpdateWorkerCount(4)
				UpdateWorkerActiveCount(2)
				UpdateWorkerIdleCount(2)
				UpdateWorkerJobsPerSecond(1.5)
				RecordWorkerProcessingLatency(900)
				RecordWorkerError()
				RecordWorkerSkipped("duplicate")
				RecordWorkerPanic()
			}, ShouldNotPanic)
		})

		Convey("When recording broadcaster and store metrics", func() {
			before := testutil.ToFloat64(globalManager.progressDropped)
			RecordProgressDropped()
			So(func() {
				UpdateProgressSubscribers(5)
				RecordProgressPublished()
				RecordStoreLatency("save_report", 2)
				UpdateRankingEntries(10)
				UpdateBatchesActive(1)
			}, ShouldNotPanic)

			Convey("Then drops are counted", func() {
				So(testutil.ToFloat64(globalManager.progressDropped)-before, ShouldEqual, 1)
			})
		})

		Convey("When recording HTTP, error and system metrics", func() {
			So(func() {
				RecordHTTPRequest("/submissions", "POST", "202")
				RecordHTTPRequestDuration("/submissions", "POST", "202", 4)
				RecordErrorByComponent("pipeline", "transient")
				RecordErrorByEndpoint("/submissions", "POST", "bad_request")
				UpdateSystemMemoryUsage(1024 * 1024 * 100)
				UpdateSystemGoroutineCount(42)
				RecordSystemGCPauseTime(1.0)
			}, ShouldNotPanic)
		})

		Convey("When gathering from the registry", func() {
			RecordSubmissionCreated()
			families, err := GetRegistry().Gather()

			Convey("Then pipeline metrics are exposed", func() {
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "intern_pipeline_submissions_created_total")
			})
		})
	})
}

func TestProcessRefreshInterval(t *testing.T) {
	Convey("Given the process-wide manager", t, func() {
		defer SetRefreshInterval(defaultRefreshInterval)

		Convey("When a positive interval is set", func() {
			SetRefreshInterval(2 * time.Second)
			So(RefreshInterval(), ShouldEqual, 2*time.Second)
		})

		Convey("When a non-positive interval is set", func() {
			SetRefreshInterval(2 * time.Second)
			SetRefreshInterval(0)
			So(RefreshInterval(), ShouldEqual, 2*time.Second)
		})
	})
}
