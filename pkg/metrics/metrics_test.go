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

			Convey("Then it uses the service namespace and refresh interval", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "levitate")
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithRefreshInterval(3*time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.generations.WithLabelValues("success").Inc()

			Convey("Then metric names and labels follow the options", func() {
				So(manager.RefreshInterval(), ShouldEqual, 3*time.Second)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, f := range families {
					if f.GetName() == "test_unit_generations_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
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
				So(manager.namespace, ShouldEqual, "levitate")
				So(manager.histogramBuckets, ShouldResemble, defaultLatencyBuckets)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When a generation succeeds", func() {
			before := testutil.ToFloat64(globalManager.generations.WithLabelValues("success"))
			IncGenerationsInFlight()
			RecordStageDuration("analyzing", 40*time.Millisecond)
			RecordLabels("high", "bright/uplifting")
			RecordTempo(128)
			RecordAudioDuration(90 * time.Second)
			RecordGeneration("success")
			DecGenerationsInFlight()

			Convey("Then the outcome counter moves and nothing is left in flight", func() {
				So(testutil.ToFloat64(globalManager.generations.WithLabelValues("success")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.generationsActive), ShouldEqual, 0)
				So(testutil.ToFloat64(globalManager.labelsAssigned.WithLabelValues("high", "bright/uplifting")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When dependencies are called", func() {
			So(func() {
				RecordUpload("accepted")
				RecordUploadBytes(1 << 20)
				RecordStorageOperation("fetch", "ok", 12*time.Millisecond)
				RecordImageGeneration("error", 2*time.Second)
				RecordError("imagegen", "remote")
			}, ShouldNotPanic)

			Convey("Then the labelled counters are exported", func() {
				So(testutil.ToFloat64(globalManager.storageOps.WithLabelValues("fetch", "ok")), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(globalManager.errorsByComponent.WithLabelValues("imagegen", "remote")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording HTTP and system metrics", func() {
			So(func() {
				RecordHTTPRequest("/generate", "POST", "200")
				RecordHTTPRequestDuration("/generate", "POST", "200", 1500)
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)

			Convey("Then the registry exposes them", func() {
				expected := `
# HELP levitate_api_system_goroutines Number of goroutines
# TYPE levitate_api_system_goroutines gauge
levitate_api_system_goroutines 12
`
				err := testutil.GatherAndCompare(GetRegistry(), strings.NewReader(expected), "levitate_api_system_goroutines")
				So(err, ShouldBeNil)
			})
		})
	})
}
