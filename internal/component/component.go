// Public domain.

// Package component models a stellar association as a 6D Gaussian at birth
// which is carried to the present by an orbit propagator.
//
// A Component is immutable.  A new parameter vector makes a new Component.
// The propagated Gaussian of a component is computed on first use for each
// propagator and epoch and cached, so a component evaluated against every
// star of an E-step is propagated once.
package component

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/orbit"
)

// Component is a birth Gaussian with an age.
type Component struct {
	par  Parametrization
	v    []float64
	mean []float64
	cov  *mat.SymDense
	age  float64

	mu    sync.Mutex
	cache map[cacheKey]*projection
}

// The dynamic type of a propagator used as a cache key must be comparable.
type cacheKey struct {
	prop  orbit.Propagator
	epoch float64
}

type projection struct {
	mean []float64
	cov  *mat.SymDense
	err  error
}

// New decodes parameter vector v of parametrization p.
func New(p Parametrization, v []float64) (*Component, error) {
	mean, cov, age, err := p.Decode(v)
	if err != nil {
		return nil, err
	}
	return &Component{
		par:  p,
		v:    append([]float64{}, v...),
		mean: mean,
		cov:  cov,
		age:  age,
	}, nil
}

// FromGaussian returns the component of parametrization p closest to the
// given birth Gaussian.
func FromGaussian(p Parametrization, mean []float64, cov mat.Symmetric, age float64) (*Component, error) {
	return New(p, p.Encode(mean, cov, age))
}

// Parametrization returns the shape of c.
func (c *Component) Parametrization() Parametrization { return c.par }

// Vector returns a copy of the parameter vector of c.
func (c *Component) Vector() []float64 { return append([]float64{}, c.v...) }

// Mean returns the birth mean.  It must not be modified.
func (c *Component) Mean() []float64 { return c.mean }

// Cov returns the birth covariance.  It must not be modified.
func (c *Component) Cov() *mat.SymDense { return c.cov }

// Age returns the age in Myr.
func (c *Component) Age() float64 { return c.age }

// MeanCovAt returns the Gaussian of c propagated from birth to epoch, in
// Myr relative to the present.  Results are cached.  The returned values
// must not be modified.
func (c *Component) MeanCovAt(prop orbit.Propagator, epoch float64) ([]float64, *mat.SymDense, error) {
	k := cacheKey{prop, epoch}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.cache[k]; ok {
		return p.mean, p.cov, p.err
	}
	p := new(projection)
	t := c.age + epoch
	if t < 0 {
		p.err = errors.Mark(errors.Newf("epoch %g precedes birth at %g", epoch, -c.age),
			errors.ErrPropagation)
	} else {
		p.mean, p.cov, p.err = prop.Propagate(c.mean, c.cov, t)
	}
	if c.cache == nil {
		c.cache = make(map[cacheKey]*projection)
	}
	c.cache[k] = p
	return p.mean, p.cov, p.err
}

// Bounds are the limits of the component prior.
type Bounds struct {
	MaxAge        float64 // Myr
	MinDispersion float64 // pc or km/s
	MaxDispersion float64
	MinEigenvalue float64 // of the birth covariance
	MaxEigenvalue float64
}

// LogPrior returns the log prior density of c.  It is flat, zero, inside
// the bounds and -Inf outside them or when c cannot be propagated to the
// present.
func (c *Component) LogPrior(b Bounds, prop orbit.Propagator) float64 {
	if c.age < 0 || (b.MaxAge > 0 && c.age > b.MaxAge) {
		return math.Inf(-1)
	}
	for _, ld := range c.par.LnDispersions(c.v) {
		d := math.Exp(ld)
		if d < b.MinDispersion || (b.MaxDispersion > 0 && d > b.MaxDispersion) {
			return math.Inf(-1)
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(c.cov, false) {
		return math.Inf(-1)
	}
	for _, ev := range eig.Values(nil) {
		if !(ev > 0) || ev < b.MinEigenvalue || (b.MaxEigenvalue > 0 && ev > b.MaxEigenvalue) {
			return math.Inf(-1)
		}
	}
	if prop != nil {
		if _, _, err := c.MeanCovAt(prop, 0); err != nil {
			return math.Inf(-1)
		}
	}
	return 0
}

// Split returns two copies of c with ages loAge and hiAge.
func (c *Component) Split(loAge, hiAge float64) (lo, hi *Component, err error) {
	n := len(c.v) - 1
	vl := c.Vector()
	vl[n] = loAge
	vh := c.Vector()
	vh[n] = hiAge
	if lo, err = New(c.par, vl); err != nil {
		return nil, nil, err
	}
	if hi, err = New(c.par, vh); err != nil {
		return nil, nil, err
	}
	return lo, hi, nil
}

// FromData returns the weighted mean and covariance of the star means,
// normalizing by the sum of weights.  Nil weights weigh every star
// equally.
func FromData(means [][]float64, weights []float64) ([]float64, *mat.SymDense, error) {
	if len(means) == 0 {
		return nil, nil, errors.Dataf("no stars")
	}
	if weights != nil && len(weights) != len(means) {
		return nil, nil, errors.Newf("%d weights for %d stars", len(weights), len(means))
	}
	d := len(means[0])
	wsum := 0.
	if weights == nil {
		wsum = float64(len(means))
	} else {
		for _, w := range weights {
			wsum += w
		}
	}
	if !(wsum > 0) {
		return nil, nil, errors.Dataf("weights sum to %g", wsum)
	}
	col := make([]float64, len(means))
	mean := make([]float64, d)
	for j := range mean {
		for i, m := range means {
			col[i] = m[j]
		}
		mean[j] = stat.Mean(col, weights)
	}
	cov := mat.NewSymDense(d, nil)
	for j := 0; j < d; j++ {
		for k := j; k < d; k++ {
			s := 0.
			for i, m := range means {
				w := 1.
				if weights != nil {
					w = weights[i]
				}
				s += w * (m[j] - mean[j]) * (m[k] - mean[k])
			}
			cov.SetSym(j, k, s/wsum)
		}
	}
	return mean, cov, nil
}
