// Public domain.

package component

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/errors"
)

// Dim is the dimension of the component Gaussian.
const Dim = 6

// Shape names.
const (
	Sphere = "sphere"
	Ellip  = "ellip"
	Axis   = "axis"
	Free   = "free"
)

// Walker spreads, in the units of the parameter vector.
const (
	spreadPos  = 10         // pc
	spreadVel  = 2          // km/s
	spreadLnD  = 0.09531018 // ln 1.1
	spreadCorr = 0.05
	spreadAge  = 1 // Myr
)

// Parametrization maps between parameter vectors and birth Gaussians for
// one shape of covariance.
//
// Every parameter vector starts with the six components of the mean and
// ends with the age.  Between them are natural logs of standard
// deviations and, for the free shape, correlations.
type Parametrization interface {
	Shape() string
	NPars() int
	// Decode returns the birth Gaussian and age of v.
	Decode(v []float64) (mean []float64, cov *mat.SymDense, age float64, err error)
	// Encode returns the parameter vector closest to the given Gaussian.
	Encode(mean []float64, cov mat.Symmetric, age float64) []float64
	// LnDispersions returns the slice of v holding log standard deviations.
	LnDispersions(v []float64) []float64
	// Spread returns a per-parameter scale for scattering walkers.
	Spread() []float64
	// Names labels the parameters.
	Names() []string
}

// Lookup returns the Parametrization of a shape name.
func Lookup(shape string) (Parametrization, error) {
	switch shape {
	case Sphere:
		return sphere, nil
	case Ellip:
		return ellip, nil
	case Axis:
		return axis, nil
	case Free:
		return free{}, nil
	}
	return nil, errors.Configf("unknown component shape %q", shape)
}

var meanNames = []string{"X", "Y", "Z", "U", "V", "W"}

// diagonal is a shape with an axis aligned covariance, where the six axes
// share standard deviations by group.
type diagonal struct {
	name   string
	group  [Dim]int // dispersion index of each axis
	labels []string // dispersion names
}

var (
	sphere = &diagonal{Sphere, [Dim]int{0, 0, 0, 1, 1, 1}, []string{"dX", "dV"}}
	ellip  = &diagonal{Ellip, [Dim]int{0, 1, 2, 3, 3, 3}, []string{"dX", "dY", "dZ", "dV"}}
	axis   = &diagonal{Axis, [Dim]int{0, 1, 2, 3, 4, 5}, []string{"dX", "dY", "dZ", "dU", "dV", "dW"}}
)

func (d *diagonal) Shape() string { return d.name }
func (d *diagonal) NPars() int    { return Dim + len(d.labels) + 1 }

func (d *diagonal) Decode(v []float64) ([]float64, *mat.SymDense, float64, error) {
	if err := checkVector(d, v); err != nil {
		return nil, nil, 0, err
	}
	cov := mat.NewSymDense(Dim, nil)
	for i, g := range d.group {
		s := math.Exp(v[Dim+g])
		cov.SetSym(i, i, s*s)
	}
	return append([]float64{}, v[:Dim]...), cov, v[len(v)-1], nil
}

func (d *diagonal) Encode(mean []float64, cov mat.Symmetric, age float64) []float64 {
	v := make([]float64, d.NPars())
	copy(v, mean)
	sum := make([]float64, len(d.labels))
	n := make([]float64, len(d.labels))
	for i, g := range d.group {
		sum[g] += cov.At(i, i)
		n[g]++
	}
	for g := range sum {
		v[Dim+g] = 0.5 * math.Log(sum[g]/n[g])
	}
	v[len(v)-1] = age
	return v
}

func (d *diagonal) LnDispersions(v []float64) []float64 {
	return v[Dim : Dim+len(d.labels)]
}

func (d *diagonal) Spread() []float64 {
	s := make([]float64, d.NPars())
	for i := 0; i < Dim; i++ {
		s[i] = spreadPos
		if i >= 3 {
			s[i] = spreadVel
		}
	}
	for g := range d.labels {
		s[Dim+g] = spreadLnD
	}
	s[len(s)-1] = spreadAge
	return s
}

func (d *diagonal) Names() []string {
	names := append(append([]string{}, meanNames...), d.labels...)
	return append(names, "age")
}

// free is the full covariance shape: six log standard deviations then the
// fifteen correlations of the upper triangle in row order.
type free struct{}

const nCorr = Dim * (Dim - 1) / 2

func (free) Shape() string { return Free }
func (free) NPars() int    { return Dim + Dim + nCorr + 1 }

func (f free) Decode(v []float64) ([]float64, *mat.SymDense, float64, error) {
	if err := checkVector(f, v); err != nil {
		return nil, nil, 0, err
	}
	var sd [Dim]float64
	for i := range sd {
		sd[i] = math.Exp(v[Dim+i])
	}
	cov := mat.NewSymDense(Dim, nil)
	k := 2 * Dim
	for i := 0; i < Dim; i++ {
		cov.SetSym(i, i, sd[i]*sd[i])
		for j := i + 1; j < Dim; j++ {
			r := v[k]
			k++
			if !(r > -1 && r < 1) {
				return nil, nil, 0, errors.Newf("correlation %s_%s = %g outside (-1, 1)",
					meanNames[i], meanNames[j], r)
			}
			cov.SetSym(i, j, r*sd[i]*sd[j])
		}
	}
	return append([]float64{}, v[:Dim]...), cov, v[len(v)-1], nil
}

func (f free) Encode(mean []float64, cov mat.Symmetric, age float64) []float64 {
	v := make([]float64, f.NPars())
	copy(v, mean)
	var sd [Dim]float64
	for i := range sd {
		sd[i] = math.Sqrt(cov.At(i, i))
		v[Dim+i] = math.Log(sd[i])
	}
	k := 2 * Dim
	for i := 0; i < Dim; i++ {
		for j := i + 1; j < Dim; j++ {
			v[k] = cov.At(i, j) / (sd[i] * sd[j])
			k++
		}
	}
	v[len(v)-1] = age
	return v
}

func (free) LnDispersions(v []float64) []float64 { return v[Dim : 2*Dim] }

func (f free) Spread() []float64 {
	s := axis.Spread()
	s = s[:2*Dim]
	for i := 0; i < nCorr; i++ {
		s = append(s, spreadCorr)
	}
	return append(s, spreadAge)
}

func (free) Names() []string {
	names := append([]string{}, meanNames...)
	for _, n := range meanNames {
		names = append(names, "d"+n)
	}
	for i := 0; i < Dim; i++ {
		for j := i + 1; j < Dim; j++ {
			names = append(names, fmt.Sprintf("%s_%s_corr", meanNames[i], meanNames[j]))
		}
	}
	return append(names, "age")
}

func checkVector(p Parametrization, v []float64) error {
	if len(v) != p.NPars() {
		return errors.Newf("%s component: %d parameters, want %d", p.Shape(), len(v), p.NPars())
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.Newf("%s component: parameter %d not finite", p.Shape(), i)
		}
	}
	return nil
}
