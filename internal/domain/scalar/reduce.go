package scalar

import (
	"math"

	"github.com/okian/sciperf/pkg/numeric"
)

// robustRmsScale converts an inter-quartile range to a standard deviation
// for normally distributed data.
const robustRmsScale = 1.349

func mean(values []float64) float64   { return numeric.Mean(values) }
func median(values []float64) float64 { return numeric.Median(values) }
func sum(values []float64) float64    { return numeric.Sum(values) }
func rms(values []float64) float64    { return numeric.PopStdDev(values) }
func count(values []float64) float64  { return float64(len(values)) }

func minimum(values []float64) float64 {
	lo, _ := numeric.Bounds(values)
	return lo
}

func maximum(values []float64) float64 {
	_, hi := numeric.Bounds(values)
	return hi
}

func fullRange(values []float64) float64 {
	lo, hi := numeric.Bounds(values)
	return hi - lo
}

func robustRms(values []float64) float64 {
	return numeric.IQR(values) / robustRmsScale
}

func percentile(p float64) reducer {
	return func(values []float64) float64 {
		return numeric.Percentile(values, p)
	}
}

// coaddedDepth stacks single-visit limiting magnitudes in flux space.
func coaddedDepth(m5 []float64) float64 {
	var flux float64
	for _, m := range m5 {
		flux += math.Pow(10, 0.8*m)
	}
	return 1.25 * math.Log10(flux)
}

// CoaddDepths returns the coadded depth reached by nvisits visits that each
// reach singleVisitDepth: 1.25*log10(n*10^(0.8*m)).
func CoaddDepths(nvisits int, singleVisitDepth float64) float64 {
	return 1.25 * math.Log10(float64(nvisits)*math.Pow(10, 0.8*singleVisitDepth))
}
