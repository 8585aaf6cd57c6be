// Public domain.

// Package orbit propagates 6D Gaussians in galactic phase space forward in
// time.
//
// States are ordered X, Y, Z (pc) and U, V, W (km/s), in the local standard
// of rest with X toward the galactic centre, Y in the direction of galactic
// rotation and Z toward the north galactic pole.  Times are in Myr.
//
// All propagators here are linear, state' = T(t)·state, so a Gaussian is
// carried exactly: mean' = T·mean and cov' = T·cov·Tᵀ.
package orbit

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/errors"
)

// Dim is the dimension of phase space.
const Dim = 6

// KmsToPcMyr converts a speed in km/s to pc/Myr.
const KmsToPcMyr = 1.0227121650537077

// Propagator carries a Gaussian state forward by age Myr.  It is
// deterministic.  Outside its validity domain it returns an error marked
// errors.ErrPropagation.
type Propagator interface {
	Propagate(mean []float64, cov mat.Symmetric, age float64) ([]float64, *mat.SymDense, error)
}

// LinearModel supplies the transition matrix of a linear propagator.
type LinearModel interface {
	Transition(age float64) *mat.Dense
}

// Linear is the Propagator of a LinearModel for ages in [0, MaxAge].
type Linear struct {
	Model  LinearModel
	MaxAge float64 // zero means no limit
}

// Propagate implements Propagator.
func (l *Linear) Propagate(mean []float64, cov mat.Symmetric, age float64) ([]float64, *mat.SymDense, error) {
	if err := l.check(mean, age); err != nil {
		return nil, nil, err
	}
	if cov.SymmetricDim() != len(mean) {
		return nil, nil, errors.Newf("orbit: covariance dimension %d, mean %d",
			cov.SymmetricDim(), len(mean))
	}
	t := l.Model.Transition(age)
	m := mat.NewVecDense(len(mean), nil)
	m.MulVec(t, mat.NewVecDense(len(mean), mean))

	var tc, tct mat.Dense
	tc.Mul(t, cov)
	tct.Mul(&tc, t.T())
	c := mat.NewSymDense(len(mean), nil)
	for i := 0; i < len(mean); i++ {
		for j := i; j < len(mean); j++ {
			c.SetSym(i, j, (tct.At(i, j)+tct.At(j, i))/2)
		}
	}
	out := m.RawVector().Data
	if !finite(out) || !finite(c.RawSymmetric().Data) {
		return nil, nil, errors.Mark(
			errors.Newf("orbit: non-finite state after %g Myr", age), errors.ErrPropagation)
	}
	return out, c, nil
}

// Trace carries a single phase space point forward by age Myr.  It is the
// orbit trace of one star or birth site, for callers that hold no
// covariance, and agrees with the mean returned by Propagate.
func (l *Linear) Trace(state []float64, age float64) ([]float64, error) {
	if err := l.check(state, age); err != nil {
		return nil, err
	}
	out := mat.NewVecDense(len(state), nil)
	out.MulVec(l.Model.Transition(age), mat.NewVecDense(len(state), state))
	if !finite(out.RawVector().Data) {
		return nil, errors.Mark(
			errors.Newf("orbit: non-finite state after %g Myr", age), errors.ErrPropagation)
	}
	return out.RawVector().Data, nil
}

func (l *Linear) check(state []float64, age float64) error {
	if len(state) != Dim {
		return errors.Newf("orbit: state dimension %d, want %d", len(state), Dim)
	}
	if math.IsNaN(age) || age < 0 || (l.MaxAge > 0 && age > l.MaxAge) {
		return errors.Mark(errors.Newf("orbit: age %g outside [0, %g]", age, l.MaxAge),
			errors.ErrPropagation)
	}
	if !finite(state) {
		return errors.Mark(errors.New("orbit: non-finite initial state"), errors.ErrPropagation)
	}
	return nil
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// New returns the named propagator: "static", "ballistic" or "epicyclic",
// valid to maxAge Myr.
func New(name string, maxAge float64) (*Linear, error) {
	var m LinearModel
	switch name {
	case "static":
		m = Static{}
	case "ballistic":
		m = Ballistic{}
	case "epicyclic":
		m = NewEpicyclic(DefaultGalaxy)
	default:
		return nil, errors.Configf("unknown propagator %q", name)
	}
	return &Linear{Model: m, MaxAge: maxAge}, nil
}

// Static does not move anything.  It is the propagator of fits that ignore
// dynamics, and of tests.
type Static struct{}

// Transition returns the identity.
func (Static) Transition(float64) *mat.Dense {
	t := mat.NewDense(Dim, Dim, nil)
	for i := 0; i < Dim; i++ {
		t.Set(i, i, 1)
	}
	return t
}

// Ballistic moves stars in straight lines at constant velocity.
type Ballistic struct{}

// Transition returns [[I, tI], [0, I]] with the velocity block scaled to
// pc.
func (Ballistic) Transition(age float64) *mat.Dense {
	t := Static{}.Transition(age)
	for i := 0; i < 3; i++ {
		t.Set(i, 3+i, KmsToPcMyr*age)
	}
	return t
}
