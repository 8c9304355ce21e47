package sky

import (
	"fmt"
	"math"

	"github.com/soniakeys/unit"

	"github.com/okian/sciperf/pkg/healpix"
)

// PixelLookup finds the pixel nearest to a point given in spherical polar
// coordinates: colatitude theta and longitude phi, in radians.
type PixelLookup interface {
	Ang2Pix(theta, phi float64) (int64, error)
}

// RADecToPix returns the HEALPix RING pixel of each (ra[i], dec[i]) at
// resolution nside.
func RADecToPix(nside int, ra, dec []unit.Angle) ([]int64, error) {
	ring, err := healpix.NewRing(nside)
	if err != nil {
		return nil, err
	}
	return RADecToPixWith(ring, ra, dec)
}

// RADecToPixWith is RADecToPix with an injected lookup. Declination is
// converted to colatitude as theta = pi/2 - dec.
func RADecToPixWith(lookup PixelLookup, ra, dec []unit.Angle) ([]int64, error) {
	if len(ra) != len(dec) {
		return nil, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(ra), len(dec))
	}
	pix := make([]int64, len(ra))
	for i := range ra {
		theta := colatitude(dec[i])
		p, err := lookup.Ang2Pix(theta, ra[i].Rad())
		if err != nil {
			return nil, fmt.Errorf("sky: point %d (ra=%g, dec=%g): %w", i, ra[i].Rad(), dec[i].Rad(), err)
		}
		pix[i] = p
	}
	return pix, nil
}

// poleTolerance absorbs rounding when a declination of exactly 90 degrees
// north or south was converted from degrees.
const poleTolerance = 1e-12

func colatitude(dec unit.Angle) float64 {
	theta := math.Pi/2 - dec.Rad()
	switch {
	case theta < 0 && theta > -poleTolerance:
		return 0
	case theta > math.Pi && theta < math.Pi+poleTolerance:
		return math.Pi
	}
	return theta
}
