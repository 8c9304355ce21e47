// Package slicer partitions a table of visits into sky cells.
package slicer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/soniakeys/unit"

	"github.com/okian/sciperf/internal/domain/model"
	"github.com/okian/sciperf/internal/domain/sky"
	"github.com/okian/sciperf/internal/domain/stats"
	"github.com/okian/sciperf/pkg/healpix"
	"github.com/okian/sciperf/pkg/metrics"
)

// Default coordinate columns of OpSim visit tables.
const (
	DefaultLonCol = "fieldRA"
	DefaultLatCol = "fieldDec"
)

// ErrMissingCoordinates is returned when the table lacks the lon/lat columns.
var ErrMissingCoordinates = errors.New("slicer: coordinate column missing")

// Healpix assigns every visit to the HEALPix pixel nearest its pointing.
type Healpix struct {
	ring     healpix.Ring
	lookup   sky.PixelLookup
	lonCol   string
	latCol   string
	degrees  bool
	reporter stats.Reporter
}

// NewHealpix returns a slicer at resolution nside.
func NewHealpix(nside int, opts ...Option) (*Healpix, error) {
	ring, err := healpix.NewRing(nside)
	if err != nil {
		return nil, err
	}
	s := &Healpix{
		ring:     ring,
		lookup:   ring,
		lonCol:   DefaultLonCol,
		latCol:   DefaultLatCol,
		reporter: stats.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Nside returns the resolution.
func (s *Healpix) Nside() int { return s.ring.Nside() }

// NPix returns the number of cells on the sky.
func (s *Healpix) NPix() int64 { return s.ring.NPix() }

// PixArea returns the area of one cell in steradians.
func (s *Healpix) PixArea() float64 { return s.ring.PixArea() }

// Columns returns the coordinate columns the slicer reads.
func (s *Healpix) Columns() []string { return []string{s.lonCol, s.latCol} }

// Slice groups the rows of table by pixel. Only pixels holding at least one
// visit are returned, in ascending pixel order; row order is kept within a
// pixel. Rows whose coordinates are not finite, or whose latitude lies
// beyond a pole, belong to no pixel: they are skipped and reported as one
// InvalidCoordinates warning.
func (s *Healpix) Slice(ctx context.Context, table model.DataSlice) ([]model.Slice, error) {
	lon, err := table.Column(s.lonCol)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingCoordinates, err)
	}
	lat, err := table.Column(s.latCol)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingCoordinates, err)
	}

	kept := make([]int, 0, len(lon))
	ra := make([]unit.Angle, 0, len(lon))
	dec := make([]unit.Angle, 0, len(lat))
	for i := range lon {
		var r, d unit.Angle
		if s.degrees {
			r, d = unit.AngleFromDeg(lon[i]), unit.AngleFromDeg(lat[i])
		} else {
			r, d = unit.Angle(lon[i]), unit.Angle(lat[i])
		}
		if !validPointing(r, d) {
			continue
		}
		kept = append(kept, i)
		ra = append(ra, r)
		dec = append(dec, d)
	}
	if skipped := len(lon) - len(kept); skipped > 0 {
		metrics.RecordVisitsSkipped(skipped)
		s.reporter.Report(ctx, stats.Warning{
			Kind:    stats.InvalidCoordinates,
			Op:      "Slice",
			Message: fmt.Sprintf("skipped %d of %d visits without a valid %s/%s pointing", skipped, len(lon), s.lonCol, s.latCol),
		})
	}

	pix, err := sky.RADecToPixWith(s.lookup, ra, dec)
	if err != nil {
		return nil, err
	}

	rows := map[int64][]int{}
	for i, p := range pix {
		rows[p] = append(rows[p], kept[i])
	}
	ids := make([]int64, 0, len(rows))
	for p := range rows {
		ids = append(ids, p)
	}
	slices.Sort(ids)

	out := make([]model.Slice, 0, len(ids))
	for _, p := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, model.Slice{PixelID: p, Data: table.Rows(rows[p])})
	}
	return out, nil
}

// poleSlack absorbs rounding in a latitude of exactly 90 degrees.
const poleSlack = 1e-12

func validPointing(ra, dec unit.Angle) bool {
	r, d := ra.Rad(), dec.Rad()
	if math.IsNaN(r) || math.IsInf(r, 0) || math.IsNaN(d) {
		return false
	}
	return math.Abs(d) <= math.Pi/2+poleSlack
}
