package benchmark

import "maps"

// Option applies a configuration option to Scale.
type Option func(*options)

type options struct {
	requested map[string]int
}

// WithRequestedVisits supplies the per-filter visit counts the survey
// proposals request. Only the Requested profile uses them; filters absent
// from the map get one visit.
func WithRequestedVisits(nvisits map[string]int) Option {
	return func(o *options) {
		o.requested = maps.Clone(nvisits)
		if o.requested == nil {
			o.requested = map[string]int{}
		}
	}
}
