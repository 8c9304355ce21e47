package stats_test

import (
	"bytes"
	"context"
	"math"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sciperf/internal/domain/model"
	"github.com/okian/sciperf/internal/domain/stats"
	"github.com/okian/sciperf/pkg/logger"
)

type recorder struct {
	mu       sync.Mutex
	warnings []stats.Warning
}

func (r *recorder) Report(_ context.Context, w stats.Warning) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, w)
}

func (r *recorder) kinds() []stats.WarningKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stats.WarningKind, 0, len(r.warnings))
	for _, w := range r.warnings {
		out = append(out, w.Kind)
	}
	return out
}

func oneToHundred() []float64 {
	data := make([]float64, 100)
	for i := range data {
		data[i] = float64(i + 1)
	}
	return data
}

func TestOptimalBins(t *testing.T) {
	ctx := context.Background()

	Convey("Given OptimalBins", t, func() {
		rec := &recorder{}

		Convey("When data is empty", func() {
			n := stats.OptimalBins(ctx, nil, stats.WithReporter(rec))

			Convey("Then maxBins is returned with an empty input warning", func() {
				So(n, ShouldEqual, stats.DefaultMaxBins)
				So(rec.kinds(), ShouldResemble, []stats.WarningKind{stats.EmptyInput})
			})
		})

		Convey("When every value is masked or non-finite", func() {
			n := stats.OptimalBinsMasked(ctx, model.MaskedColumn{
				Values: []float64{1, math.NaN(), math.Inf(1)},
				Mask:   []bool{true, false, false},
			}, stats.WithReporter(rec), stats.WithMaxBins(50))

			Convey("Then the fallback is maxBins", func() {
				So(n, ShouldEqual, 50)
				So(rec.kinds(), ShouldResemble, []stats.WarningKind{stats.EmptyInput})
			})
		})

		Convey("When the data follows the Freedman-Diaconis rule without clamping", func() {
			n := stats.OptimalBins(ctx, oneToHundred(), stats.WithReporter(rec))

			Convey("Then the bin count is truncated from 4.64", func() {
				So(n, ShouldEqual, 4)
				So(rec.kinds(), ShouldBeEmpty)
			})
		})

		Convey("When the computed count exceeds maxBins", func() {
			n := stats.OptimalBins(ctx, oneToHundred(), stats.WithReporter(rec), stats.WithMaxBins(3))

			Convey("Then it is clamped to maxBins", func() {
				So(n, ShouldEqual, 3)
				So(rec.kinds(), ShouldResemble, []stats.WarningKind{stats.Clamped})
			})
		})

		Convey("When the computed count is below minBins", func() {
			n := stats.OptimalBins(ctx, oneToHundred(), stats.WithReporter(rec), stats.WithMinBins(10))

			Convey("Then it is raised to minBins", func() {
				So(n, ShouldEqual, 10)
				So(rec.kinds(), ShouldResemble, []stats.WarningKind{stats.Clamped})
			})
		})

		Convey("When every value is identical", func() {
			n := stats.OptimalBins(ctx, []float64{5, 5, 5, 5}, stats.WithReporter(rec))

			Convey("Then the NaN count falls back to maxBins", func() {
				So(n, ShouldEqual, stats.DefaultMaxBins)
				So(rec.kinds(), ShouldResemble, []stats.WarningKind{stats.DegenerateNumeric})
			})
		})

		Convey("When the range excludes every value", func() {
			n := stats.OptimalBins(ctx, oneToHundred(), stats.WithReporter(rec), stats.WithRange(1000, 2000))

			Convey("Then maxBins is returned with an empty input warning", func() {
				So(n, ShouldEqual, stats.DefaultMaxBins)
				So(rec.kinds(), ShouldResemble, []stats.WarningKind{stats.EmptyInput})
			})
		})

		Convey("When bin limits are inconsistent", func() {
			n := stats.OptimalBins(ctx, nil, stats.WithMinBins(0), stats.WithMaxBins(-5))

			Convey("Then they are normalized before use", func() {
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When called from many goroutines", func() {
			var wg sync.WaitGroup
			results := make([]int, 16)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i] = stats.OptimalBins(ctx, oneToHundred())
				}(i)
			}
			wg.Wait()

			Convey("Then every call agrees", func() {
				for _, r := range results {
					So(r, ShouldEqual, 4)
				}
			})
		})

		Convey("Then the result always lies in [minBins, maxBins]", func() {
			inputs := [][]float64{nil, {1}, {1, 1}, {1, 2}, oneToHundred(), {0, 1e9, -1e9, 3}}
			for _, in := range inputs {
				n := stats.OptimalBins(ctx, in, stats.WithMinBins(2), stats.WithMaxBins(20))
				So(n, ShouldBeBetweenOrEqual, 2, 20)
			}
		})
	})
}

func TestPercentileClipping(t *testing.T) {
	ctx := context.Background()

	Convey("Given PercentileClipping", t, func() {
		rec := &recorder{}

		Convey("When data is empty", func() {
			lo, hi := stats.PercentileClipping(ctx, nil, 95, stats.WithReporter(rec))

			Convey("Then (0, 0) is returned", func() {
				So(lo, ShouldEqual, 0)
				So(hi, ShouldEqual, 0)
				So(rec.kinds(), ShouldResemble, []stats.WarningKind{stats.EmptyInput})
			})
		})

		Convey("When retaining 100 percent", func() {
			lo, hi := stats.PercentileClipping(ctx, []float64{3, -7, 12, 0.5}, 100)

			Convey("Then the full range is returned", func() {
				So(lo, ShouldEqual, -7)
				So(hi, ShouldEqual, 12)
			})
		})

		Convey("When one outlier lies far from the median", func() {
			lo, hi := stats.PercentileClipping(ctx, []float64{1, 2, 3, 4, 100}, 80)

			Convey("Then the outlier is dropped", func() {
				So(lo, ShouldEqual, 1)
				So(hi, ShouldEqual, 4)
			})
		})

		Convey("When the cut index would round up", func() {
			// floor(3 * 0.9) = 2 points kept, not 3.
			lo, hi := stats.PercentileClipping(ctx, []float64{10, 11, 50}, 90)

			Convey("Then it is truncated", func() {
				So(lo, ShouldEqual, 10)
				So(hi, ShouldEqual, 11)
			})
		})

		Convey("When the percentile retains no points", func() {
			lo, hi := stats.PercentileClipping(ctx, []float64{1, 2, 3}, 10, stats.WithReporter(rec))

			Convey("Then (0, 0) is returned with a warning", func() {
				So(lo, ShouldEqual, 0)
				So(hi, ShouldEqual, 0)
				So(rec.kinds(), ShouldResemble, []stats.WarningKind{stats.EmptyInput})
			})
		})

		Convey("When masked entries are present", func() {
			lo, hi := stats.PercentileClippingMasked(ctx, model.MaskedColumn{
				Values: []float64{-1000, 1, 2, 3},
				Mask:   []bool{true, false, false, false},
			}, 100)

			Convey("Then they are ignored", func() {
				So(lo, ShouldEqual, 1)
				So(hi, ShouldEqual, 3)
			})
		})
	})
}

func TestLogReporter(t *testing.T) {
	Convey("Given a log reporter", t, func() {
		var buf bytes.Buffer
		r := stats.NewLogReporter(logger.New(&buf))

		Convey("When a warning is reported", func() {
			r.Report(context.Background(), stats.Warning{
				Kind:     stats.Clamped,
				Op:       "OptimalBins",
				Message:  "optimal bin calculation tried to make 300 bins, returning 200",
				Fallback: 200,
			})

			Convey("Then it is logged with its kind", func() {
				So(buf.String(), ShouldContainSubstring, "clamped")
				So(buf.String(), ShouldContainSubstring, "returning 200")
			})
		})

		Convey("When Discard is used", func() {
			Convey("Then nothing panics", func() {
				So(func() { stats.Discard.Report(context.Background(), stats.Warning{}) }, ShouldNotPanic)
			})
		})
	})
}
