package scalar

// CommonSummary returns the summary statistics reported for every per-slice
// metric: mean, robust rms, median, quartiles and extremes over the
// metricdata column.
func CommonSummary() []Metric {
	return []Metric{
		MustNew(KindMean),
		MustNew(KindRobustRms),
		MustNew(KindMedian),
		MustNew(KindPercentile, WithMetricName("25th%ile"), WithPercentile(25)),
		MustNew(KindPercentile, WithMetricName("75th%ile"), WithPercentile(75)),
		MustNew(KindMin),
		MustNew(KindMax),
	}
}
