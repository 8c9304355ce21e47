package slicer

import (
	"github.com/okian/sciperf/internal/domain/sky"
	"github.com/okian/sciperf/internal/domain/stats"
)

// Option applies a configuration option to the Healpix slicer.
type Option func(*Healpix)

// WithLonCol sets the longitude (RA) column.
func WithLonCol(name string) Option {
	return func(s *Healpix) {
		if name != "" {
			s.lonCol = name
		}
	}
}

// WithLatCol sets the latitude (Dec) column.
func WithLatCol(name string) Option {
	return func(s *Healpix) {
		if name != "" {
			s.latCol = name
		}
	}
}

// WithLookup replaces the nearest-pixel lookup. The lookup must use the
// slicer's resolution.
func WithLookup(l sky.PixelLookup) Option {
	return func(s *Healpix) {
		if l != nil {
			s.lookup = l
		}
	}
}

// WithDegrees declares the coordinate columns to be in degrees rather than
// radians.
func WithDegrees() Option {
	return func(s *Healpix) {
		s.degrees = true
	}
}

// WithReporter receives the warning for visits skipped for invalid
// coordinates.
func WithReporter(r stats.Reporter) Option {
	return func(s *Healpix) {
		if r != nil {
			s.reporter = r
		}
	}
}
