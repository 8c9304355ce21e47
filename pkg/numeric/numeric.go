// Package numeric holds the array reductions shared by the metric library and
// the statistical utilities. Standard deviations are population ones (divided by n).
//
// All functions expect a non-empty input unless documented otherwise; empty
// input policy belongs to the callers. A NaN anywhere in the input makes
// every reduction NaN, wherever it sits; callers that want NaN ignored drop
// it first with Finite.
package numeric

import (
	"math"
	"slices"

	"github.com/aclements/go-moremath/stats"
)

// Mean returns the arithmetic mean of xs.
func Mean(xs []float64) float64 {
	return stats.Mean(xs)
}

// Sum returns the sum of xs. Sum of an empty slice is 0.
func Sum(xs []float64) float64 {
	return stats.Sample{Xs: xs}.Sum()
}

// Bounds returns the minimum and maximum of xs.
func Bounds(xs []float64) (lo, hi float64) {
	if HasNaN(xs) {
		return math.NaN(), math.NaN()
	}
	return stats.Bounds(xs)
}

// PopStdDev returns the population standard deviation of xs.
func PopStdDev(xs []float64) float64 {
	mean := stats.Mean(xs)
	var sumSq float64
	for _, v := range xs {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// Percentile returns the p-th percentile (p in [0, 100]) of xs using linear
// interpolation between closest ranks, rank = p/100*(n-1).
// xs is not modified.
func Percentile(xs []float64, p float64) float64 {
	if HasNaN(xs) {
		return math.NaN()
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	return SortedPercentile(sorted, p)
}

// SortedPercentile is Percentile for input already in ascending order.
func SortedPercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower < 0 {
		return sorted[0]
	}
	if upper >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*frac
}

// Median returns the 50th percentile of xs.
func Median(xs []float64) float64 {
	return Percentile(xs, 50)
}

// IQR returns the inter-quartile range P75 - P25 of xs.
func IQR(xs []float64) float64 {
	if HasNaN(xs) {
		return math.NaN()
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	return SortedPercentile(sorted, 75) - SortedPercentile(sorted, 25)
}

// HasNaN reports whether any value of xs is NaN.
func HasNaN(xs []float64) bool {
	return slices.ContainsFunc(xs, math.IsNaN)
}

// Finite returns the finite values of xs, dropping NaN and infinities.
// The input is returned as-is when every value is finite.
func Finite(xs []float64) []float64 {
	for i, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out := make([]float64, i, len(xs))
			copy(out, xs[:i])
			for _, w := range xs[i+1:] {
				if !math.IsNaN(w) && !math.IsInf(w, 0) {
					out = append(out, w)
				}
			}
			return out
		}
	}
	return xs
}
