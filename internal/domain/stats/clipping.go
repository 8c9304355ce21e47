package stats

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/okian/sciperf/internal/domain/model"
	"github.com/okian/sciperf/pkg/numeric"
)

// PercentileClipping returns the min and max of the values whose absolute
// deviation from the median is among the closest percentile% of all
// deviations. The retained count is floor(n*percentile/100); ties in the
// deviation ranking keep input order. Percentiles above 100 keep everything.
//
// Non-finite values are ignored. Empty input, or a percentile small enough
// to retain nothing, yields (0, 0) and an EmptyInput warning.
func PercentileClipping(ctx context.Context, data []float64, percentile float64, opts ...Option) (float64, float64) {
	o := newOptions(opts)
	const op = "PercentileClipping"

	data = numeric.Finite(data)
	if len(data) == 0 {
		o.reporter.Report(ctx, Warning{
			Kind:    EmptyInput,
			Op:      op,
			Message: "no data available for percentile clipping: returning (0, 0)",
		})
		return 0, 0
	}

	median := numeric.Median(data)
	idx := make([]int, len(data))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(data[idx[a]]-median) < math.Abs(data[idx[b]]-median)
	})

	keep := int(math.Floor(float64(len(data)) * percentile / 100))
	if keep > len(idx) {
		keep = len(idx)
	}
	if keep <= 0 {
		o.reporter.Report(ctx, Warning{
			Kind:    EmptyInput,
			Op:      op,
			Message: fmt.Sprintf("percentile %g retains no points out of %d: returning (0, 0)", percentile, len(data)),
		})
		return 0, 0
	}

	lo, hi := data[idx[0]], data[idx[0]]
	for _, i := range idx[1:keep] {
		lo = math.Min(lo, data[i])
		hi = math.Max(hi, data[i])
	}
	return lo, hi
}

// PercentileClippingMasked is PercentileClipping over the unmasked entries
// of m.
func PercentileClippingMasked(ctx context.Context, m model.MaskedColumn, percentile float64, opts ...Option) (float64, float64) {
	return PercentileClipping(ctx, m.Compressed(), percentile, opts...)
}
