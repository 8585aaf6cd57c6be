// Public domain.

// Package stars holds the observed star table of a fit.
//
// Each star is a 6D Gaussian in galactic cartesian phase space, X, Y, Z in
// pc and U, V, W in km/s, with the covariance of its measurement errors.  A
// star without a measured radial velocity carries a very large variance
// along the corresponding direction rather than a missing dimension.
package stars

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/errors"
)

// Dim is the dimension of a star's phase space coordinates.
const Dim = 6

// Cartesian column names.
var (
	MeanColumns  = []string{"X", "Y", "Z", "U", "V", "W"}
	ErrorColumns = []string{"X_error", "Y_error", "Z_error", "U_error", "V_error", "W_error"}
)

// CorrColumn returns the name of the correlation column of axes i < j.
func CorrColumn(i, j int) string {
	return MeanColumns[i] + "_" + MeanColumns[j] + "_corr"
}

// Star is one observed star.  Stars are not modified after loading.
type Star struct {
	ID    string
	Mean  []float64
	Cov   *mat.SymDense
	Epoch float64 // Myr relative to the present

	// Background log overlap, when the table supplies one.
	BgLnOverlap float64
	HasBg       bool
}

// Table is a star table with its Gaussians laid out for batch overlap
// evaluation.
type Table struct {
	Stars []Star

	means [][]float64
	covs  []*mat.SymDense
}

// NewTable validates stars and builds a table of them.
func NewTable(stars []Star) (*Table, error) {
	t := &Table{
		Stars: stars,
		means: make([][]float64, len(stars)),
		covs:  make([]*mat.SymDense, len(stars)),
	}
	for i := range stars {
		s := &stars[i]
		if err := s.validate(); err != nil {
			return nil, errors.Wrapf(err, "star %d (%s)", i, s.ID)
		}
		t.means[i] = s.Mean
		t.covs[i] = s.Cov
	}
	return t, nil
}

func (s *Star) validate() error {
	if len(s.Mean) != Dim || s.Cov == nil || s.Cov.SymmetricDim() != Dim {
		return errors.Dataf("want a %d dimensional Gaussian", Dim)
	}
	for _, m := range s.Mean {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return errors.Dataf("mean %v not finite", s.Mean)
		}
	}
	if math.IsNaN(s.Epoch) || math.IsInf(s.Epoch, 0) {
		return errors.Dataf("epoch not finite")
	}
	var ch mat.Cholesky
	if !ch.Factorize(s.Cov) {
		return errors.Dataf("covariance not positive-definite")
	}
	return nil
}

// Len returns the number of stars.
func (t *Table) Len() int { return len(t.Stars) }

// Means returns the star means, indexed like Stars.
func (t *Table) Means() [][]float64 { return t.means }

// Covs returns the star covariances, indexed like Stars.
func (t *Table) Covs() []*mat.SymDense { return t.covs }

// Epochs returns the distinct star epochs, in order of first appearance.
func (t *Table) Epochs() []float64 {
	var es []float64
	seen := map[float64]bool{}
	for _, s := range t.Stars {
		if !seen[s.Epoch] {
			seen[s.Epoch] = true
			es = append(es, s.Epoch)
		}
	}
	return es
}

// CovFromErrors builds a covariance from standard errors and the
// correlations of the upper triangle in row order; corr may be nil.
func CovFromErrors(sd []float64, corr []float64) *mat.SymDense {
	n := len(sd)
	c := mat.NewSymDense(n, nil)
	k := 0
	for i := 0; i < n; i++ {
		c.SetSym(i, i, sd[i]*sd[i])
		for j := i + 1; j < n; j++ {
			if corr != nil {
				c.SetSym(i, j, corr[k]*sd[i]*sd[j])
			}
			k++
		}
	}
	return c
}
