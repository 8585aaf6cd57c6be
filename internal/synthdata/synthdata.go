// Public domain.

// Package synthdata draws synthetic star tables from known components.
//
// Each star of a group is a point drawn from the component's Gaussian at
// the present, observed with independent Gaussian errors.  Field stars are
// drawn uniformly in a box.
package synthdata

import (
	"fmt"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/component"
	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/orbit"
	"github.com/nishamrutha/chronostar/internal/stars"
)

// DefaultErrors are measurement standard errors, pc and km/s.
var DefaultErrors = []float64{1, 1, 1, 0.3, 0.3, 0.3}

// FieldLabel is the truth label of field stars.
const FieldLabel = -1

// Group is a component and the number of stars drawn from it.
type Group struct {
	Component *component.Component
	N         int
}

// Field is a population of stars uniform in the box [Lo, Hi].
type Field struct {
	N      int
	Lo, Hi []float64
}

// Options control a draw.
type Options struct {
	Propagator orbit.Propagator
	Errors     []float64 // nil for DefaultErrors
	Field      *Field    // may be nil
	Seed       uint64
}

// Generate draws stars from groups and the field of opt.  Labels holds the
// group index of each star, or FieldLabel.
func Generate(groups []Group, opt Options) (ss []stars.Star, labels []int, err error) {
	if opt.Propagator == nil {
		return nil, nil, errors.New("synthdata: no propagator")
	}
	sd := opt.Errors
	if sd == nil {
		sd = DefaultErrors
	}
	if len(sd) != stars.Dim {
		return nil, nil, errors.Newf("synthdata: %d errors, want %d", len(sd), stars.Dim)
	}
	rng := xrand.New(&xrand.PCGSource{})
	rng.Seed(opt.Seed)
	observe := func(x []float64, id string, label int) {
		m := make([]float64, stars.Dim)
		for i := range m {
			m[i] = x[i] + sd[i]*rng.NormFloat64()
		}
		ss = append(ss, stars.Star{ID: id, Mean: m, Cov: stars.CovFromErrors(sd, nil)})
		labels = append(labels, label)
	}

	x := make([]float64, stars.Dim)
	z := mat.NewVecDense(stars.Dim, nil)
	var l mat.TriDense
	for g, gr := range groups {
		mean, cov, err := gr.Component.MeanCovAt(opt.Propagator, 0)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "group %d", g)
		}
		var ch mat.Cholesky
		if !ch.Factorize(cov) {
			return nil, nil, errors.Mark(errors.Newf("synthdata: group %d covariance not positive-definite", g),
				errors.ErrNumericalInstability)
		}
		ch.LTo(&l)
		for n := 0; n < gr.N; n++ {
			for i := 0; i < stars.Dim; i++ {
				z.SetVec(i, rng.NormFloat64())
			}
			var lz mat.VecDense
			lz.MulVec(&l, z)
			for i := range x {
				x[i] = mean[i] + lz.AtVec(i)
			}
			observe(x, fmt.Sprintf("g%d-%d", g, n), g)
		}
	}
	if f := opt.Field; f != nil {
		if len(f.Lo) != stars.Dim || len(f.Hi) != stars.Dim {
			return nil, nil, errors.New("synthdata: field box not 6 dimensional")
		}
		for n := 0; n < f.N; n++ {
			for i := range x {
				x[i] = f.Lo[i] + (f.Hi[i]-f.Lo[i])*rng.Float64()
			}
			observe(x, fmt.Sprintf("f-%d", n), FieldLabel)
		}
	}
	return ss, labels, nil
}

// Table is Generate followed by stars.NewTable.
func Table(groups []Group, opt Options) (*stars.Table, []int, error) {
	ss, labels, err := Generate(groups, opt)
	if err != nil {
		return nil, nil, err
	}
	tb, err := stars.NewTable(ss)
	return tb, labels, err
}
