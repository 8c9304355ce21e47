package stats

// Default bin limits for OptimalBins.
const (
	DefaultMaxBins = 200
	DefaultMinBins = 1
)

// DefaultClipPercentile is the share of points PercentileClipping keeps when
// callers have no better choice.
const DefaultClipPercentile = 95.0

// Option applies a configuration option to a utility call.
type Option func(*options)

type options struct {
	binMin, binMax       float64
	hasBinMin, hasBinMax bool
	maxBins, minBins     int
	reporter             Reporter
}

func newOptions(opts []Option) options {
	o := options{
		maxBins:  DefaultMaxBins,
		minBins:  DefaultMinBins,
		reporter: Discard,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.minBins < 1 {
		o.minBins = 1
	}
	if o.maxBins < o.minBins {
		o.maxBins = o.minBins
	}
	return o
}

// WithRange restricts OptimalBins to values in [lo, hi] and uses that span
// as the histogram range.
func WithRange(lo, hi float64) Option {
	return func(o *options) {
		o.binMin, o.hasBinMin = lo, true
		o.binMax, o.hasBinMax = hi, true
	}
}

// WithMin sets only the lower bound of the histogram range.
func WithMin(lo float64) Option {
	return func(o *options) {
		o.binMin, o.hasBinMin = lo, true
	}
}

// WithMax sets only the upper bound of the histogram range.
func WithMax(hi float64) Option {
	return func(o *options) {
		o.binMax, o.hasBinMax = hi, true
	}
}

// WithMaxBins caps the bin count (default 200).
func WithMaxBins(n int) Option {
	return func(o *options) {
		o.maxBins = n
	}
}

// WithMinBins sets the smallest bin count returned (default 1).
func WithMinBins(n int) Option {
	return func(o *options) {
		o.minBins = n
	}
}

// WithReporter injects the diagnostics channel. Warnings are discarded when
// no reporter is given.
func WithReporter(r Reporter) Option {
	return func(o *options) {
		if r != nil {
			o.reporter = r
		}
	}
}
