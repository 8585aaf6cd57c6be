// Public domain.

// Package checkpoint stores fit results in gob files.
//
// A file holds a format version, then one record per component (shape,
// parameter vector, age, percentiles), then the fit metadata: weights,
// memberships, log likelihood, iteration and convergence state.  Reading a
// file back gives a result equal to the one written.
package checkpoint

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/em"
	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/membership"
)

// Version is the file format version.
const Version = 1

// Component is the record of one component.
type Component struct {
	Shape  string
	Vector []float64
	Age    float64
	Spans  [][3]float64
}

// Meta is the fit metadata.
type Meta struct {
	Shape            string
	Weights          []float64
	SamplerConverged []bool
	NStars           int
	Columns          int
	Membership       []float64 // row major
	Background       bool
	LnLike           float64
	BIC              float64
	Iterations       int
	Stable           int
	State            em.State
	Converged        bool
	Stats            membership.Stats
}

// Encode writes r to w.
func Encode(w io.Writer, r *em.Result) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(Version); err != nil {
		return err
	}
	if err := enc.Encode(len(r.Vectors)); err != nil {
		return err
	}
	for j, v := range r.Vectors {
		c := Component{Shape: r.Shape, Vector: v, Age: v[len(v)-1], Spans: r.Spans[j]}
		if err := enc.Encode(&c); err != nil {
			return errors.Wrapf(err, "component %d", j)
		}
	}
	if r.Memberships == nil {
		return errors.New("checkpoint: result has no memberships")
	}
	n, cols := r.Memberships.Dims()
	m := Meta{
		Shape:            r.Shape,
		Weights:          r.Weights,
		SamplerConverged: r.SamplerConverged,
		NStars:           n,
		Columns:          cols,
		Membership:       mat.DenseCopyOf(r.Memberships).RawMatrix().Data,
		Background:       r.Background,
		LnLike:           r.LnLike,
		BIC:              r.BIC,
		Iterations:       r.Iterations,
		Stable:           r.Stable,
		State:            r.State,
		Converged:        r.Converged,
		Stats:            r.Stats,
	}
	return enc.Encode(&m)
}

// Decode reads a result written by Encode.
func Decode(rd io.Reader) (*em.Result, error) {
	dec := gob.NewDecoder(rd)
	var version, k int
	if err := dec.Decode(&version); err != nil {
		return nil, err
	}
	if version != Version {
		return nil, errors.Dataf("checkpoint version %d, want %d", version, Version)
	}
	if err := dec.Decode(&k); err != nil {
		return nil, err
	}
	r := &em.Result{
		Vectors: make([][]float64, k),
		Spans:   make([][][3]float64, k),
	}
	shapes := make([]string, k)
	for j := range r.Vectors {
		var c Component
		if err := dec.Decode(&c); err != nil {
			return nil, errors.Wrapf(err, "component %d", j)
		}
		shapes[j] = c.Shape
		r.Vectors[j] = c.Vector
		if len(c.Spans) > 0 {
			r.Spans[j] = c.Spans
		}
	}
	var m Meta
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(err, "metadata")
	}
	for j, sh := range shapes {
		if sh != m.Shape {
			return nil, errors.Dataf("component %d is %s, fit is %s", j, sh, m.Shape)
		}
	}
	r.Shape = m.Shape
	if len(m.Membership) != m.NStars*m.Columns || m.NStars == 0 || m.Columns == 0 {
		return nil, errors.Dataf("%d membership values for %d stars and %d columns",
			len(m.Membership), m.NStars, m.Columns)
	}
	r.Weights = m.Weights
	if r.Weights == nil {
		r.Weights = []float64{}
	}
	// components without a recorded sampler outcome are low confidence
	r.SamplerConverged = make([]bool, k)
	copy(r.SamplerConverged, m.SamplerConverged)
	r.Memberships = mat.NewDense(m.NStars, m.Columns, m.Membership)
	r.Background = m.Background
	r.LnLike = m.LnLike
	r.BIC = m.BIC
	r.NStars = m.NStars
	r.Iterations = m.Iterations
	r.Stable = m.Stable
	r.State = m.State
	r.Converged = m.Converged
	r.Stats = m.Stats
	return r, nil
}

// WriteFile writes r to fn, creating parent directories.  The file is
// written under a temporary name and renamed, so a reader never sees a
// partial checkpoint.
func WriteFile(fn string, r *em.Result) error {
	if err := os.MkdirAll(filepath.Dir(fn), 0o755); err != nil {
		return err
	}
	tmp := fn + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err = Encode(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "writing %s", fn)
	}
	if err = f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, fn)
}

// ReadFile reads a result from fn.
func ReadFile(fn string) (*em.Result, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", fn)
	}
	return r, nil
}
