package numeric_test

import (
	"math"
	"testing"

	"github.com/okian/sciperf/pkg/numeric"
	. "github.com/smartystreets/goconvey/convey"
)

func TestReductions(t *testing.T) {
	Convey("Given a small sample", t, func() {
		xs := []float64{22.0, 20.0, 21.0}

		Convey("Then mean, sum and bounds follow the arithmetic definitions", func() {
			So(numeric.Mean(xs), ShouldAlmostEqual, 21.0)
			So(numeric.Sum(xs), ShouldAlmostEqual, 63.0)
			lo, hi := numeric.Bounds(xs)
			So(lo, ShouldEqual, 20.0)
			So(hi, ShouldEqual, 22.0)
		})

		Convey("Then the population standard deviation divides by n", func() {
			So(numeric.PopStdDev(xs), ShouldAlmostEqual, math.Sqrt(2.0/3.0), 1e-12)
		})

		Convey("Then the input order is untouched by Percentile", func() {
			_ = numeric.Percentile(xs, 50)
			So(xs, ShouldResemble, []float64{22.0, 20.0, 21.0})
		})
	})
}

func TestPercentile(t *testing.T) {
	Convey("Given the values 1..4", t, func() {
		xs := []float64{4, 1, 3, 2}

		Convey("Then percentiles interpolate linearly between ranks", func() {
			So(numeric.Percentile(xs, 0), ShouldEqual, 1)
			So(numeric.Percentile(xs, 100), ShouldEqual, 4)
			So(numeric.Percentile(xs, 25), ShouldAlmostEqual, 1.75, 1e-12)
			So(numeric.Percentile(xs, 75), ShouldAlmostEqual, 3.25, 1e-12)
			So(numeric.Median(xs), ShouldAlmostEqual, 2.5, 1e-12)
			So(numeric.IQR(xs), ShouldAlmostEqual, 1.5, 1e-12)
		})

		Convey("And a single value is every percentile", func() {
			So(numeric.Percentile([]float64{7}, 33), ShouldEqual, 7)
		})
	})
}

func TestNaNPropagation(t *testing.T) {
	Convey("Given a sample holding a NaN", t, func() {
		for _, xs := range [][]float64{{math.NaN(), 1, 2}, {1, math.NaN(), 2}, {1, 2, math.NaN()}} {
			So(numeric.HasNaN(xs), ShouldBeTrue)

			lo, hi := numeric.Bounds(xs)
			So(math.IsNaN(lo), ShouldBeTrue)
			So(math.IsNaN(hi), ShouldBeTrue)
			So(math.IsNaN(numeric.Percentile(xs, 50)), ShouldBeTrue)
			So(math.IsNaN(numeric.Median(xs)), ShouldBeTrue)
			So(math.IsNaN(numeric.IQR(xs)), ShouldBeTrue)
		}
		So(numeric.HasNaN([]float64{1, math.Inf(1)}), ShouldBeFalse)
	})
}

func TestFinite(t *testing.T) {
	Convey("Given values with NaN and infinities", t, func() {
		xs := []float64{1, math.NaN(), 2, math.Inf(1), 3, math.Inf(-1)}

		Convey("Then only the finite values remain", func() {
			So(numeric.Finite(xs), ShouldResemble, []float64{1, 2, 3})
		})

		Convey("And a clean slice comes back unchanged", func() {
			clean := []float64{1, 2}
			So(numeric.Finite(clean), ShouldResemble, clean)
		})
	})
}
