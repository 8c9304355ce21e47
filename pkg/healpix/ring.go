// Package healpix implements the subset of the HEALPix equal-area sphere
// pixelization needed to bin sky positions: RING-scheme ang2pix and the
// resolution helpers around it.
package healpix

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors.
var (
	ErrInvalidNside = errors.New("healpix: nside must be a positive power of two")
	ErrInvalidTheta = errors.New("healpix: theta must be in [0, pi]")
)

// MaxNside is the largest resolution whose pixel ids fit in int64 safely.
const MaxNside = 1 << 29

// Ring is a RING-ordered pixelization at a fixed resolution.
type Ring struct {
	nside int64
}

// NewRing validates nside and returns the pixelization.
func NewRing(nside int) (Ring, error) {
	if !ValidNside(nside) {
		return Ring{}, fmt.Errorf("%w: got %d", ErrInvalidNside, nside)
	}
	return Ring{nside: int64(nside)}, nil
}

// ValidNside reports whether nside is a usable resolution.
func ValidNside(nside int) bool {
	return nside > 0 && nside <= MaxNside && nside&(nside-1) == 0
}

// Nside returns the resolution parameter.
func (r Ring) Nside() int { return int(r.nside) }

// NPix returns the number of pixels, 12*nside^2.
func (r Ring) NPix() int64 { return 12 * r.nside * r.nside }

// PixArea returns the area of one pixel in steradians.
func (r Ring) PixArea() float64 { return 4 * math.Pi / float64(r.NPix()) }

// Ang2Pix returns the RING pixel containing the point at colatitude theta
// and longitude phi, both in radians.
func (r Ring) Ang2Pix(theta, phi float64) (int64, error) {
	if math.IsNaN(theta) || theta < 0 || theta > math.Pi {
		return 0, fmt.Errorf("%w: got %g", ErrInvalidTheta, theta)
	}
	if math.IsNaN(phi) || math.IsInf(phi, 0) {
		return 0, fmt.Errorf("healpix: phi must be finite, got %g", phi)
	}

	n := r.nside
	z := math.Cos(theta)
	za := math.Abs(z)
	tt := math.Mod(phi, 2*math.Pi)
	if tt < 0 {
		tt += 2 * math.Pi
	}
	tt *= 2 / math.Pi // in [0, 4)

	if za <= 2.0/3.0 {
		// equatorial region
		temp1 := float64(n) * (0.5 + tt)
		temp2 := float64(n) * z * 0.75
		jp := int64(temp1 - temp2) // ascending edge line
		jm := int64(temp1 + temp2) // descending edge line

		ir := n + 1 + jp - jm // ring number counted from z = 2/3, in [1, 2n+1]
		kshift := 1 - (ir & 1)
		ip := (jp + jm - n + kshift + 1) / 2
		ip = mod(ip, 4*n)

		return 2*n*(n-1) + (ir-1)*4*n + ip, nil
	}

	// polar caps
	tp := tt - math.Floor(tt)
	tmp := float64(n) * math.Sqrt(3*(1-za))
	jp := int64(tp * tmp)
	jm := int64((1 - tp) * tmp)

	ir := jp + jm + 1 // ring number counted from the closest pole
	ip := int64(tt * float64(ir))
	ip = mod(ip, 4*ir)

	if z > 0 {
		return 2*ir*(ir-1) + ip, nil
	}
	return 12*n*n - 2*ir*(ir+1) + ip, nil
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
