// Public domain.

package stars

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/nishamrutha/chronostar/internal/errors"
)

// Background supplies the log overlap of a star with the field population,
// the mixture term that absorbs stars belonging to no component.  Values
// are amplitudes, log expected star counts per unit phase space volume,
// comparable with component overlaps scaled by component weights.
type Background interface {
	LogOverlap(s *Star) (float64, error)
}

// Column is the Background read from the star table itself.
type Column struct{}

// LogOverlap returns the table value of s.
func (Column) LogOverlap(s *Star) (float64, error) {
	if !s.HasBg {
		return 0, errors.Dataf("star %s: no background log overlap", s.ID)
	}
	return s.BgLnOverlap, nil
}

// KDE is a Gaussian kernel density estimate of the field population built
// from the means of a reference sample, scaled by the sample size.
type KDE struct {
	points [][]float64
	kernel *distmv.Normal
	lnN    float64
}

// NewKDE builds a KDE of points with Scott's rule bandwidth, the sample
// covariance scaled by n^(-2/(d+4)).
func NewKDE(points [][]float64) (*KDE, error) {
	n := len(points)
	if n < 2 {
		return nil, errors.Dataf("kernel density: %d reference stars, need at least 2", n)
	}
	d := len(points[0])
	x := mat.NewDense(n, d, nil)
	for i, p := range points {
		if len(p) != d {
			return nil, errors.Dataf("kernel density: reference star %d has dimension %d", i, len(p))
		}
		x.SetRow(i, p)
	}
	cov := mat.NewSymDense(d, nil)
	stat.CovarianceMatrix(cov, x, nil)
	factor := math.Pow(float64(n), -2/float64(d+4))
	cov.ScaleSym(factor, cov)
	kernel, ok := distmv.NewNormal(make([]float64, d), cov, nil)
	if !ok {
		return nil, errors.Dataf("kernel density: reference covariance not positive-definite")
	}
	return &KDE{points: points, kernel: kernel, lnN: math.Log(float64(n))}, nil
}

// LogDensity returns the log of the normalized density at x.
func (k *KDE) LogDensity(x []float64) float64 {
	lp := make([]float64, len(k.points))
	diff := make([]float64, len(x))
	for i, p := range k.points {
		floats.SubTo(diff, x, p)
		lp[i] = k.kernel.LogProb(diff)
	}
	return floats.LogSumExp(lp) - k.lnN
}

// LogOverlap returns the log of the scaled density at the mean of s.
func (k *KDE) LogOverlap(s *Star) (float64, error) {
	if len(s.Mean) != len(k.points[0]) {
		return 0, errors.Dataf("star %s: dimension %d against kernel density of %d",
			s.ID, len(s.Mean), len(k.points[0]))
	}
	return k.LogDensity(s.Mean) + k.lnN, nil
}
