// Public domain.

// Package astrometry converts Gaia style astrometry to the galactic
// cartesian phase space coordinates of a fit.
//
// Positions are heliocentric X, Y, Z in pc shifted to the local standard of
// rest, velocities U, V, W in km/s corrected for the solar motion.
package astrometry

import (
	"math"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/errors"
)

// KmsPerMasYr converts proper motion over parallax, (mas/yr)/mas, to km/s.
const KmsPerMasYr = 4.740470463533348

// J2000 orientation of the galactic frame.
var (
	RANGP   = unit.AngleFromDeg(192.85948) // right ascension of the north galactic pole
	DecNGP  = unit.AngleFromDeg(27.12825)  // declination of the north galactic pole
	ThetaCP = unit.AngleFromDeg(122.93192) // galactic longitude of the north celestial pole
)

// Sun holds the position and velocity of the Sun relative to the local
// standard of rest: 25 pc above the plane, with the solar motion of
// Schönrich, Binney & Dehnen (2010).
var Sun = [6]float64{0, 0, 25, 11.1, 12.24, 7.25}

// Frame is an equatorial to galactic rotation, stored by rows.
type Frame [3]coord.Cart

// NewFrame builds the rotation for a galactic pole at (raNGP, decNGP) and
// a celestial pole at galactic longitude theta, after Johnson & Soderblom
// (1987).
func NewFrame(raNGP, decNGP, theta unit.Angle) Frame {
	st, ct := math.Sincos(theta.Rad())
	sd, cd := math.Sincos(decNGP.Rad())
	sa, ca := math.Sincos(raNGP.Rad())
	t1 := mat.NewDense(3, 3, []float64{ct, st, 0, st, -ct, 0, 0, 0, 1})
	t2 := mat.NewDense(3, 3, []float64{-sd, 0, cd, 0, -1, 0, cd, 0, sd})
	t3 := mat.NewDense(3, 3, []float64{ca, sa, 0, sa, -ca, 0, 0, 0, 1})
	var t mat.Dense
	t.Product(t1, t2, t3)
	var f Frame
	for i := range f {
		f[i] = coord.Cart{X: t.At(i, 0), Y: t.At(i, 1), Z: t.At(i, 2)}
	}
	return f
}

// Galactic is the J2000 frame.
var Galactic = NewFrame(RANGP, DecNGP, ThetaCP)

// Rotate returns the galactic components of equatorial vector v.
func (f *Frame) Rotate(v *coord.Cart) coord.Cart {
	return coord.Cart{X: f[0].Dot(v), Y: f[1].Dot(v), Z: f[2].Dot(v)}
}

// Astrometry is the measured state of a star.  PMRA includes the cos(Dec)
// factor.
type Astrometry struct {
	RA, Dec  unit.Angle
	Parallax float64 // mas
	PMRA     float64 // mas/yr
	PMDec    float64 // mas/yr
	RV       float64 // km/s
}

// Heliocentric returns the galactic position, pc, and velocity, km/s, of
// the star relative to the Sun.
func (a *Astrometry) Heliocentric(f *Frame) (pos, vel coord.Cart) {
	sd, cd := math.Sincos(a.Dec.Rad())
	sa, ca := math.Sincos(a.RA.Rad())
	los := coord.Cart{X: cd * ca, Y: cd * sa, Z: sd}
	east := coord.Cart{X: -sa, Y: ca}
	north := coord.Cart{X: -sd * ca, Y: -sd * sa, Z: cd}

	var p coord.Cart
	p.MulScalar(&los, 1000/a.Parallax)

	var v, t coord.Cart
	v.MulScalar(&los, a.RV)
	t.MulScalar(&east, KmsPerMasYr*a.PMRA/a.Parallax)
	v.Add(&v, &t)
	t.MulScalar(&north, KmsPerMasYr*a.PMDec/a.Parallax)
	v.Add(&v, &t)

	return f.Rotate(&p), f.Rotate(&v)
}

// LSR returns the phase space vector X, Y, Z, U, V, W relative to the
// local standard of rest.
func (a *Astrometry) LSR(f *Frame) []float64 {
	p, v := a.Heliocentric(f)
	return []float64{
		p.X + Sun[0], p.Y + Sun[1], p.Z + Sun[2],
		v.X + Sun[3], v.Y + Sun[4], v.Z + Sun[5],
	}
}

// vector order of astrometric means and covariances: ra and dec in
// degrees, parallax in mas, proper motions in mas/yr, rv in km/s.
func (a *Astrometry) vector() []float64 {
	return []float64{a.RA.Deg(), a.Dec.Deg(), a.Parallax, a.PMRA, a.PMDec, a.RV}
}

func fromVector(x []float64) Astrometry {
	return Astrometry{
		RA:       unit.AngleFromDeg(x[0]),
		Dec:      unit.AngleFromDeg(x[1]),
		Parallax: x[2],
		PMRA:     x[3],
		PMDec:    x[4],
		RV:       x[5],
	}
}

// Convert returns the LSR phase space Gaussian of a star with astrometry a
// and covariance cov, in the order and units ra (deg), dec (deg), parallax,
// pmra, pmdec, rv.  The covariance is propagated with the Jacobian of the
// transformation, estimated by central differences.
func Convert(a Astrometry, cov mat.Symmetric, f *Frame) ([]float64, *mat.SymDense, error) {
	if !(a.Parallax > 0) {
		return nil, nil, errors.Dataf("parallax %g not positive", a.Parallax)
	}
	if cov.SymmetricDim() != 6 {
		return nil, nil, errors.Newf("astrometric covariance dimension %d", cov.SymmetricDim())
	}
	x0 := a.vector()
	jac := mat.NewDense(6, 6, nil)
	x := make([]float64, 6)
	for j := range x0 {
		h := 1e-6 * math.Max(math.Abs(x0[j]), 1)
		if j == 2 {
			h = math.Min(h, x0[2]/2)
		}
		copy(x, x0)
		x[j] = x0[j] + h
		ap := fromVector(x)
		plus := ap.LSR(f)
		x[j] = x0[j] - h
		am := fromVector(x)
		minus := am.LSR(f)
		for i := range plus {
			jac.Set(i, j, (plus[i]-minus[i])/(2*h))
		}
	}
	var jc, jcj mat.Dense
	jc.Mul(jac, cov)
	jcj.Mul(&jc, jac.T())
	out := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			out.SetSym(i, j, (jcj.At(i, j)+jcj.At(j, i))/2)
		}
	}
	return a.LSR(f), out, nil
}
