package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/okian/sciperf/internal/adapters/repository"
	service "github.com/okian/sciperf/internal/app"
	"github.com/okian/sciperf/internal/domain/model"
	"github.com/okian/sciperf/internal/domain/scalar"
	"github.com/okian/sciperf/internal/domain/stats"
	"github.com/okian/sciperf/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type recordingReporter struct {
	mu       sync.Mutex
	warnings []stats.Warning
}

func (r *recordingReporter) Report(_ context.Context, w stats.Warning) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, w)
}

func (r *recordingReporter) ops(kind stats.WarningKind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, w := range r.warnings {
		if w.Kind == kind {
			out = append(out, w.Op)
		}
	}
	return out
}

// depthSlices builds ten slices where slice i holds {i, i+2}; the slice at
// emptyPixel has no rows.
func depthSlices(emptyPixel int64) []model.Slice {
	out := make([]model.Slice, 0, 10)
	for i := int64(0); i < 10; i++ {
		var values []float64
		if i != emptyPixel {
			values = []float64{float64(i), float64(i + 2)}
		}
		out = append(out, model.Slice{PixelID: i, Data: model.SingleColumn("fiveSigmaDepth", values)})
	}
	return out
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			So(svc.Store(), ShouldNotBeNil)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		store := repository.NewMemoryStore()
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(16),
			service.WithStore(store),
			service.WithReporter(stats.Discard),
			service.WithClipPercentile(90),
			service.WithLogger(logger.Get()),
		)

		Convey("Then it should use the given store", func() {
			So(svc.Store(), ShouldEqual, store)
		})
	})
}

func TestService_Evaluate(t *testing.T) {
	Convey("Given a service and a median metric", t, func() {
		ctx := context.Background()
		reporter := &recordingReporter{}
		svc := service.New(service.WithWorkerCount(3), service.WithQueueSize(2), service.WithReporter(reporter))
		median := scalar.MustNew(scalar.KindMedian, scalar.WithColumns("fiveSigmaDepth"))

		Convey("When evaluating slices with one empty slice", func() {
			result, err := svc.Evaluate(ctx, median, depthSlices(3), scalar.CommonSummary()...)
			So(err, ShouldBeNil)

			Convey("Then the run header describes the metric", func() {
				So(result.RunID, ShouldNotBeEmpty)
				So(result.Metric, ShouldEqual, "Median")
				So(result.Column, ShouldEqual, "fiveSigmaDepth")
				So(result.Dtype, ShouldEqual, "float")
				So(result.FinishedAt.Before(result.StartedAt), ShouldBeFalse)
			})

			Convey("Then every slice has a value and the empty one is masked", func() {
				So(result.Slices, ShouldEqual, 10)
				So(result.Masked, ShouldEqual, 1)
				So(result.Values[3].Masked, ShouldBeTrue)
				So(result.Values[3].Reason, ShouldEqual, "empty_input")
				So(result.Values[4].Value, ShouldEqual, 5.0)
			})

			Convey("Then summaries run over the unmasked values", func() {
				So(result.Summary["Median"], ShouldEqual, 6.0)
				So(result.Summary["Min"], ShouldEqual, 1.0)
				So(result.Summary["Max"], ShouldEqual, 10.0)
				So(result.Summary["Mean"], ShouldAlmostEqual, 51.0/9, 1e-12)
				So(result.Summary, ShouldContainKey, "25th%ile")
			})

			Convey("Then the plotting hints are filled in", func() {
				So(result.OptimalBins, ShouldBeGreaterThanOrEqualTo, 1)
				So(result.ClipMin, ShouldEqual, 2.0)
				So(result.ClipMax, ShouldEqual, 10.0)
			})

			Convey("Then the store holds the same result", func() {
				stored, err := svc.Store().Result(ctx, result.RunID)
				So(err, ShouldBeNil)
				So(stored.Summary, ShouldResemble, result.Summary)
			})
		})

		Convey("When every slice is empty", func() {
			slices := []model.Slice{
				{PixelID: 1, Data: model.SingleColumn("fiveSigmaDepth", nil)},
				{PixelID: 2, Data: model.SingleColumn("fiveSigmaDepth", nil)},
			}
			result, err := svc.Evaluate(ctx, median, slices, scalar.MustNew(scalar.KindMean))

			Convey("Then the run still completes with warnings", func() {
				So(err, ShouldBeNil)
				So(result.Masked, ShouldEqual, 2)
				So(result.Summary, ShouldBeEmpty)
				So(result.OptimalBins, ShouldEqual, stats.DefaultMaxBins)
				So(result.ClipMin, ShouldEqual, 0.0)
				So(result.ClipMax, ShouldEqual, 0.0)
				So(reporter.ops(stats.EmptyInput), ShouldContain, "summary")
			})
		})

		Convey("When there are no slices", func() {
			_, err := svc.Evaluate(ctx, median, nil)
			So(errors.Is(err, service.ErrNoSlices), ShouldBeTrue)
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := svc.Evaluate(cctx, median, depthSlices(-1))
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})

		Convey("When two runs share the service", func() {
			var wg sync.WaitGroup
			results := make([]repository.MetricResult, 2)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], _ = svc.Evaluate(ctx, median, depthSlices(-1))
				}(i)
			}
			wg.Wait()

			Convey("Then both runs are kept apart", func() {
				So(results[0].RunID, ShouldNotEqual, results[1].RunID)
				So(results[0].Slices, ShouldEqual, 10)
				So(results[1].Slices, ShouldEqual, 10)
				So(len(svc.Store().Runs(ctx)), ShouldEqual, 2)
			})
		})
	})
}
