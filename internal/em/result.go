// Public domain.

package em

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/component"
	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/membership"
)

// Result is the state of a fit after its last E-step.
type Result struct {
	Shape   string
	Vectors [][]float64    // parameter vector of each component
	Spans   [][][3]float64 // 16th, 50th, 84th percentiles of each parameter, nil before an M-step
	Weights []float64

	// SamplerConverged reports for each component whether the sampler of
	// its last M-step met its convergence criteria.  A component that
	// stopped at the step budget, or was never fitted, is low confidence.
	SamplerConverged []bool

	// Memberships has a column per component, and a last background
	// column when Background is set.
	Memberships *mat.Dense
	Background  bool

	LnLike     float64
	BIC        float64
	NStars     int
	Iterations int
	Stable     int // iterations within tolerance at the end
	State      State
	Converged  bool
	Stats      membership.Stats
}

// BIC returns the Bayesian information criterion of k components of npars
// parameters each, fitted to n stars with log likelihood lnL.
func BIC(k, npars, n int, lnL float64) float64 {
	return float64(k*npars)*math.Log(float64(n)) - 2*lnL
}

// Result returns the result of the last E-step, nil before the first.
func (d *Driver) Result() *Result {
	if d.memb == nil {
		return nil
	}
	k := len(d.comps)
	r := &Result{
		Shape:            d.par.Shape(),
		Vectors:          make([][]float64, k),
		Spans:            make([][][3]float64, k),
		Weights:          append([]float64{}, d.weights...),
		SamplerConverged: append([]bool{}, d.sampled...),
		Memberships:      mat.DenseCopyOf(d.memb),
		Background:       d.env.Engine.HasBackground(),
		LnLike:           d.lnL,
		BIC:              BIC(k, d.par.NPars(), d.env.Engine.Table().Len(), d.lnL),
		NStars:           d.env.Engine.Table().Len(),
		Iterations:       d.iter,
		Stable:           d.stable,
		State:            d.state,
		Converged:        d.state == Converged,
		Stats:            d.stats,
	}
	for j, c := range d.comps {
		r.Vectors[j] = c.Vector()
		if d.spans[j] != nil {
			r.Spans[j] = append([][3]float64{}, d.spans[j]...)
		}
	}
	return r
}

// Components rebuilds the components of r.
func (r *Result) Components() ([]*component.Component, error) {
	p, err := component.Lookup(r.Shape)
	if err != nil {
		return nil, err
	}
	comps := make([]*component.Component, len(r.Vectors))
	for j, v := range r.Vectors {
		if comps[j], err = component.New(p, v); err != nil {
			return nil, errors.Wrapf(err, "component %d", j)
		}
	}
	return comps, nil
}

// Age returns the age of component j and its 16th and 84th percentiles.
// Without percentiles all three are the fitted age.
func (r *Result) Age(j int) (age, lo, hi float64) {
	v := r.Vectors[j]
	age = v[len(v)-1]
	s := r.Spans[j]
	if len(s) != len(v) {
		return age, age, age
	}
	a := s[len(s)-1]
	return age, a[0], a[2]
}

// LowConfidence returns the indexes of the components whose last sampler
// did not converge.
func (r *Result) LowConfidence() []int {
	var low []int
	for j := range r.Vectors {
		if j >= len(r.SamplerConverged) || !r.SamplerConverged[j] {
			low = append(low, j)
		}
	}
	return low
}

// Err returns nil for a converged fit of converged components and an
// error marked errors.ErrNonConvergence otherwise.
func (r *Result) Err() error {
	if !r.Converged {
		return errors.Mark(errors.Newf("fit of %d components stopped in %v after %d iterations",
			len(r.Vectors), r.State, r.Iterations), errors.ErrNonConvergence)
	}
	if low := r.LowConfidence(); low != nil {
		return errors.Mark(errors.Newf("samplers of components %v stopped before convergence", low),
			errors.ErrNonConvergence)
	}
	return nil
}

// Resume returns a driver continuing the fit of r.  The driver starts in
// E_STEP with the memberships of r, or in the terminal state of r.
func Resume(cfg Config, env Env, r *Result) (*Driver, error) {
	p, err := component.Lookup(r.Shape)
	if err != nil {
		return nil, err
	}
	comps, err := r.Components()
	if err != nil {
		return nil, err
	}
	d, err := New(cfg, env, p, comps, r.Weights)
	if err != nil {
		return nil, err
	}
	if r.Memberships == nil {
		return nil, errors.New("em: result has no memberships")
	}
	n, cols := r.Memberships.Dims()
	want := len(comps)
	if env.Engine.HasBackground() {
		want++
	}
	if n != env.Engine.Table().Len() || cols != want {
		return nil, errors.Newf("em: %d by %d memberships for %d stars and %d columns",
			n, cols, env.Engine.Table().Len(), want)
	}
	d.spans = make([][][3]float64, len(comps))
	copy(d.spans, r.Spans)
	d.sampled = make([]bool, len(comps))
	copy(d.sampled, r.SamplerConverged)
	d.iter = r.Iterations
	d.stable = r.Stable
	d.memb = mat.DenseCopyOf(r.Memberships)
	d.lnL = r.LnLike
	d.stats = r.Stats
	d.fresh = true
	d.state = EStep
	if r.State.Done() {
		d.state = r.State
	}
	return d, nil
}
