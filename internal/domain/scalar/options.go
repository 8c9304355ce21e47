package scalar

// Option applies a configuration option to a metric under construction.
type Option func(*options)

type options struct {
	columns       []string
	name          string
	percentile    float64
	percentileSet bool
}

// WithColumns declares the input columns. Simple metrics accept exactly one;
// passing more is reported by New as a configuration error.
func WithColumns(columns ...string) Option {
	return func(o *options) {
		o.columns = append([]string{}, columns...)
	}
}

// WithMetricName overrides the default metric name.
func WithMetricName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithPercentile sets p for KindPercentile metrics, p in [0, 100].
func WithPercentile(p float64) Option {
	return func(o *options) {
		o.percentile = p
		o.percentileSet = true
	}
}
