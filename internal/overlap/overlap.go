// Public domain.

// Package overlap evaluates the overlap integral of two multivariate
// Gaussians,
//
//	∫ N(x; μs, Σs) N(x; μc, Σc) dx = N(μs; μc, Σs+Σc)
//
// in log form.  It is the inner loop of a fit: every E-step evaluates it once
// for each star and component.
package overlap

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/errors"
)

var ln2Pi = math.Log(2 * math.Pi)

// LogOverlap returns the log of the overlap integral of the Gaussians
// (starMean, starCov) and (compMean, compCov).
//
// The result is symmetric in its two Gaussians.  If the summed covariance
// is not positive-definite the error is marked
// errors.ErrNumericalInstability and the value is -Inf.
func LogOverlap(starMean []float64, starCov mat.Symmetric, compMean []float64, compCov mat.Symmetric) (float64, error) {
	var e Evaluator
	return e.LogOverlap(starMean, starCov, compMean, compCov)
}

// Evaluator holds the workspace of one overlap evaluation so that repeated
// evaluations do not allocate.  The zero value is ready to use.  An
// Evaluator must not be used concurrently.
type Evaluator struct {
	d    int
	sum  *mat.SymDense
	chol mat.Cholesky
	diff *mat.VecDense
	sol  *mat.VecDense
}

func (e *Evaluator) resize(d int) {
	if e.d == d {
		return
	}
	e.d = d
	e.sum = mat.NewSymDense(d, nil)
	e.diff = mat.NewVecDense(d, nil)
	e.sol = mat.NewVecDense(d, nil)
}

// LogOverlap is the allocation free form of the package level LogOverlap.
func (e *Evaluator) LogOverlap(starMean []float64, starCov mat.Symmetric, compMean []float64, compCov mat.Symmetric) (float64, error) {
	d := len(starMean)
	if d == 0 || len(compMean) != d ||
		starCov.SymmetricDim() != d || compCov.SymmetricDim() != d {
		return math.NaN(), errors.Newf("overlap: dimension mismatch, means %d and %d, covariances %d and %d",
			d, len(compMean), starCov.SymmetricDim(), compCov.SymmetricDim())
	}
	e.resize(d)
	e.sum.AddSym(starCov, compCov)
	if !e.chol.Factorize(e.sum) {
		return math.Inf(-1), errors.Mark(
			errors.New("overlap: covariance sum not positive-definite"),
			errors.ErrNumericalInstability)
	}
	for i, m := range starMean {
		e.diff.SetVec(i, m-compMean[i])
	}
	if err := e.chol.SolveVecTo(e.sol, e.diff); err != nil {
		return math.Inf(-1), errors.Mark(
			errors.Wrap(err, "overlap: solving against covariance sum"),
			errors.ErrNumericalInstability)
	}
	lo := -0.5 * (float64(d)*ln2Pi + e.chol.LogDet() + mat.Dot(e.diff, e.sol))
	if math.IsNaN(lo) || math.IsInf(lo, 1) {
		return math.Inf(-1), errors.Mark(
			errors.Newf("overlap: non-finite result %g", lo),
			errors.ErrNumericalInstability)
	}
	return lo, nil
}

// Batch evaluates the log overlap of every star Gaussian (means[i], covs[i])
// against one fixed component Gaussian, writing dst[i].
//
// A star whose overlap is numerically unstable gets -Inf and is counted in
// instabilities; it does not stop the batch.  Any other failure, such as a
// dimension mismatch, is returned as err.
func (e *Evaluator) Batch(means [][]float64, covs []*mat.SymDense, compMean []float64, compCov mat.Symmetric, dst []float64) (instabilities int, err error) {
	if len(covs) != len(means) || len(dst) != len(means) {
		return 0, errors.Newf("overlap: batch of %d means, %d covariances, %d results",
			len(means), len(covs), len(dst))
	}
	for i, m := range means {
		lo, oerr := e.LogOverlap(m, covs[i], compMean, compCov)
		switch {
		case oerr == nil:
		case errors.Is(oerr, errors.ErrNumericalInstability):
			instabilities++
		default:
			return instabilities, errors.Wrapf(oerr, "star %d", i)
		}
		dst[i] = lo
	}
	return instabilities, nil
}
