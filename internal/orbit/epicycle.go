// Public domain.

package orbit

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// kmsKpcToMyr converts a frequency in km/s/kpc to 1/Myr.
const kmsKpcToMyr = KmsToPcMyr * 1e-3

// Galaxy holds the local galactic parameters of the epicyclic
// approximation.
type Galaxy struct {
	A  float64 // Oort constant, km/s/kpc
	B  float64 // Oort constant, km/s/kpc
	Nu float64 // vertical oscillation frequency, 1/Myr
}

// DefaultGalaxy uses the Oort constants of Bovy (2017) and a vertical
// frequency for a local mid-plane density of 0.1 solar masses per pc³.
var DefaultGalaxy = Galaxy{A: 15.3, B: -11.9, Nu: 0.0752}

// Epicyclic integrates the linearised equations of motion about a circular
// orbit through the local standard of rest, Hill's equations in the plane
// plus an independent harmonic vertical oscillation,
//
//	dX/dt = c·U       dU/dt = -2Ω·V + 4ΩA·X/c
//	dY/dt = c·V       dV/dt = 2Ω·U
//	dZ/dt = c·W       dW/dt = -ν²·Z/c
//
// with Ω = A - B and c the km/s to pc/Myr conversion.  The transition
// matrix is the matrix exponential exp(F·t) of the system above.
type Epicyclic struct {
	f *mat.Dense
}

// NewEpicyclic builds the epicyclic model for the galactic parameters g.
func NewEpicyclic(g Galaxy) *Epicyclic {
	a := g.A * kmsKpcToMyr
	omega := (g.A - g.B) * kmsKpcToMyr
	c := KmsToPcMyr
	f := mat.NewDense(Dim, Dim, nil)
	for i := 0; i < 3; i++ {
		f.Set(i, 3+i, c)
	}
	f.Set(3, 0, 4*omega*a/c)
	f.Set(3, 4, -2*omega)
	f.Set(4, 3, 2*omega)
	f.Set(5, 2, -g.Nu*g.Nu/c)
	return &Epicyclic{f: f}
}

// Transition returns exp(F·age).
func (e *Epicyclic) Transition(age float64) *mat.Dense {
	var ft mat.Dense
	ft.Scale(age, e.f)
	t := mat.NewDense(Dim, Dim, nil)
	t.Exp(&ft)
	return t
}

// EpicyclicFrequency returns κ = sqrt(-4BΩ) in 1/Myr, the in-plane
// oscillation frequency of the model.
func (g Galaxy) EpicyclicFrequency() float64 {
	omega := (g.A - g.B) * kmsKpcToMyr
	return math.Sqrt(-4 * g.B * kmsKpcToMyr * omega)
}
