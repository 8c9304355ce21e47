// Package benchmark holds the survey science requirement targets that
// metric results are compared against, scaled to the length of a run.
package benchmark

import (
	"maps"
	"math"

	"github.com/okian/sciperf/internal/domain/model"
	"github.com/okian/sciperf/internal/domain/scalar"
)

// Profile names a benchmark target set.
type Profile string

// Known profiles.
const (
	Design    Profile = "design"
	Stretch   Profile = "stretch"
	Requested Profile = "requested"
)

// BaselineYears is the run length the tabulated targets refer to.
const BaselineYears = 10.0

// Filters lists the survey filters in wavelength order.
var Filters = []string{"u", "g", "r", "i", "z", "y"}

// Values is one set of benchmark targets.
type Values struct {
	Profile          Profile            `json:"profile" yaml:"profile"`
	RunLength        float64            `json:"run_length_years" yaml:"run_length_years"`
	Area             float64            `json:"area_sqdeg" yaml:"area_sqdeg"`
	NVisitsTotal     int                `json:"nvisits_total" yaml:"nvisits_total"`
	NVisits          map[string]int     `json:"nvisits" yaml:"nvisits"`
	Seeing           map[string]float64 `json:"seeing" yaml:"seeing"`
	SkyBrightness    map[string]float64 `json:"sky_brightness" yaml:"sky_brightness"`
	SingleVisitDepth map[string]float64 `json:"single_visit_depth" yaml:"single_visit_depth"`
	CoaddedDepth     map[string]float64 `json:"coadded_depth" yaml:"coadded_depth"`

	// NVisitsRun is the number of visits the run performed in the evaluated
	// proposals. It is filled by the caller, not by Scale.
	NVisitsRun int `json:"nvisits_run,omitempty" yaml:"nvisits_run,omitempty"`
}

var (
	skyBrightness = map[string]float64{"u": 21.8, "g": 22, "r": 21.3, "i": 20, "z": 19.1, "y": 17.5}
	seeing        = map[string]float64{"u": 0.77, "g": 0.73, "r": 0.7, "i": 0.67, "z": 0.65, "y": 0.63}

	designTargets = Values{
		Area:             18000,
		NVisitsTotal:     825,
		NVisits:          map[string]int{"u": 56, "g": 80, "r": 184, "i": 184, "z": 160, "y": 160},
		SingleVisitDepth: map[string]float64{"u": 23.9, "g": 25.0, "r": 24.7, "i": 24.0, "z": 23.3, "y": 22.1},
	}
	stretchTargets = Values{
		Area:             20000,
		NVisitsTotal:     1000,
		NVisits:          map[string]int{"u": 70, "g": 100, "r": 230, "i": 230, "z": 200, "y": 200},
		SingleVisitDepth: map[string]float64{"u": 24.0, "g": 25.1, "r": 24.8, "i": 24.1, "z": 23.4, "y": 22.2},
	}
)

// ParseProfile validates a profile name.
func ParseProfile(name string) (Profile, error) {
	switch p := Profile(name); p {
	case Design, Stretch, Requested:
		return p, nil
	default:
		return "", &model.ConfigurationError{
			Component: "benchmark",
			Reason:    "could not recognize benchmark " + name + ", use design, stretch or requested",
		}
	}
}

// Scale returns the targets of profile for a run of runLength years.
// Visit counts scale as floor(v*runLength/10); a filter whose scaled count
// is zero gets one visit. Requested starts from the design targets and takes
// per-filter visit counts from WithRequestedVisits.
func Scale(runLength float64, profile Profile, opts ...Option) (Values, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	var base Values
	switch profile {
	case Design, Requested:
		base = designTargets
	case Stretch:
		base = stretchTargets
	default:
		return Values{}, &model.ConfigurationError{
			Component: "benchmark",
			Reason:    "could not recognize benchmark " + string(profile) + ", use design, stretch or requested",
		}
	}

	scale := runLength / BaselineYears
	v := Values{
		Profile:          profile,
		RunLength:        runLength,
		Area:             base.Area,
		NVisitsTotal:     int(math.Floor(float64(base.NVisitsTotal) * scale)),
		NVisits:          make(map[string]int, len(Filters)),
		Seeing:           maps.Clone(seeing),
		SkyBrightness:    maps.Clone(skyBrightness),
		SingleVisitDepth: maps.Clone(base.SingleVisitDepth),
		CoaddedDepth:     make(map[string]float64, len(Filters)),
	}
	for _, f := range Filters {
		v.NVisits[f] = int(math.Floor(float64(base.NVisits[f]) * scale))
	}

	if profile == Requested {
		if o.requested == nil {
			return Values{}, &model.ConfigurationError{
				Component: "benchmark",
				Reason:    "requested benchmark needs per-filter visit counts",
			}
		}
		for _, f := range Filters {
			v.NVisits[f] = o.requested[f]
		}
	}

	for _, f := range Filters {
		if v.NVisits[f] == 0 {
			v.NVisits[f] = 1
		}
		v.CoaddedDepth[f] = scalar.CoaddDepths(v.NVisits[f], v.SingleVisitDepth[f])
	}
	return v, nil
}
