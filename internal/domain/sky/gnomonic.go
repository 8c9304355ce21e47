// Package sky holds the spherical geometry used to place visits on the sky:
// tangent-plane projection and conversion of equatorial coordinates to
// pixel ids.
package sky

import (
	"errors"
	"fmt"

	"github.com/soniakeys/unit"
)

// ErrLengthMismatch is returned when paired coordinate arrays differ in
// length.
var ErrLengthMismatch = errors.New("sky: ra and dec lengths differ")

// GnomonicProject projects the point (ra, dec) onto the plane tangent to
// the sphere at (raCenter, decCenter).
//
// A point exactly 90 degrees from the center has cos c = 0 and projects to
// infinity. The division is not guarded: an infinity or NaN is returned.
func GnomonicProject(ra, dec, raCenter, decCenter unit.Angle) (x, y float64) {
	sinDec, cosDec := dec.Sincos()
	sinDecC, cosDecC := decCenter.Sincos()
	sinDRA, cosDRA := (ra - raCenter).Sincos()

	cosc := sinDecC*sinDec + cosDecC*cosDec*cosDRA
	x = cosDec * sinDRA / cosc
	y = (cosDecC*sinDec - sinDecC*cosDec*cosDRA) / cosc
	return x, y
}

// GnomonicProjectToXY projects each (ra[i], dec[i]) with GnomonicProject.
func GnomonicProjectToXY(ra, dec []unit.Angle, raCenter, decCenter unit.Angle) (x, y []float64, err error) {
	if len(ra) != len(dec) {
		return nil, nil, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(ra), len(dec))
	}
	x = make([]float64, len(ra))
	y = make([]float64, len(ra))
	for i := range ra {
		x[i], y[i] = GnomonicProject(ra[i], dec[i], raCenter, decCenter)
	}
	return x, y, nil
}
