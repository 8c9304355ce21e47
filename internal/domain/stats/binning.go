// Package stats provides the data-range utilities used to present per-slice
// metric values: histogram bin counts and outlier-robust value ranges.
//
// Data problems never abort a call. The functions return a documented
// fallback and emit a Warning on the injected Reporter.
package stats

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/sciperf/internal/domain/model"
	"github.com/okian/sciperf/pkg/numeric"
)

// OptimalBins returns a histogram bin count for data using the
// Freedman-Diaconis rule: width = 2*IQR*n^(-1/3), bins = (max-min)/width.
//
// Non-finite values are treated as masked. The result is always in
// [minBins, maxBins]:
//   - no data, or no data inside the range: maxBins (EmptyInput)
//   - more than maxBins or fewer than minBins: clamped (Clamped)
//   - not a number, e.g. constant data: maxBins (DegenerateNumeric)
func OptimalBins(ctx context.Context, data []float64, opts ...Option) int {
	o := newOptions(opts)
	const op = "OptimalBins"

	data = numeric.Finite(data)
	if len(data) == 0 {
		o.reporter.Report(ctx, Warning{
			Kind:     EmptyInput,
			Op:       op,
			Message:  fmt.Sprintf("no unmasked data available for calculating optimal bin size: returning %d bins", o.maxBins),
			Fallback: float64(o.maxBins),
		})
		return o.maxBins
	}

	lo, hi := numeric.Bounds(data)
	if o.hasBinMin {
		lo = o.binMin
	}
	if o.hasBinMax {
		hi = o.binMax
	}

	inRange := make([]float64, 0, len(data))
	for _, v := range data {
		if v >= lo && v <= hi {
			inRange = append(inRange, v)
		}
	}
	if len(inRange) == 0 {
		o.reporter.Report(ctx, Warning{
			Kind:     EmptyInput,
			Op:       op,
			Message:  fmt.Sprintf("no data available for calculating optimal bin size within range of %f, %f: returning %d bins", lo, hi, o.maxBins),
			Fallback: float64(o.maxBins),
		})
		return o.maxBins
	}

	iqr := numeric.IQR(inRange)
	width := 2 * iqr * math.Pow(float64(len(inRange)), -1.0/3.0)
	nbins := (hi - lo) / width

	switch {
	case math.IsNaN(nbins):
		o.reporter.Report(ctx, Warning{
			Kind:     DegenerateNumeric,
			Op:       op,
			Message:  fmt.Sprintf("optimal bin calculation calculated NaN: returning %d", o.maxBins),
			Fallback: float64(o.maxBins),
		})
		return o.maxBins
	case nbins > float64(o.maxBins):
		o.reporter.Report(ctx, Warning{
			Kind:     Clamped,
			Op:       op,
			Message:  fmt.Sprintf("optimal bin calculation tried to make %.0f bins, returning %d", nbins, o.maxBins),
			Fallback: float64(o.maxBins),
		})
		return o.maxBins
	case nbins < float64(o.minBins):
		o.reporter.Report(ctx, Warning{
			Kind:     Clamped,
			Op:       op,
			Message:  fmt.Sprintf("optimal bin calculation tried to make %.0f bins, returning %d", nbins, o.minBins),
			Fallback: float64(o.minBins),
		})
		return o.minBins
	}
	return int(nbins)
}

// OptimalBinsMasked is OptimalBins over the unmasked entries of m.
func OptimalBinsMasked(ctx context.Context, m model.MaskedColumn, opts ...Option) int {
	return OptimalBins(ctx, m.Compressed(), opts...)
}
