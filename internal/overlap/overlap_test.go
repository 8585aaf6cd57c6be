// Public domain.

package overlap_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/overlap"
)

func identity(d int, s float64) *mat.SymDense {
	c := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		c.SetSym(i, i, s)
	}
	return c
}

func ExampleLogOverlap() {
	zero := make([]float64, 6)
	lo, err := overlap.LogOverlap(zero, identity(6, 1), zero, identity(6, 1))
	fmt.Printf("%.6f %v\n", lo, err)
	fmt.Printf("%.6f\n", -3*math.Log(4*math.Pi))
	// Output:
	// -7.593073 <nil>
	// -7.593073
}

func TestSymmetry(t *testing.T) {
	m1 := []float64{1, -2, 3, 0.5, 0, -1}
	m2 := []float64{0, 0, 1, 1, 2, -3}
	c1 := mat.NewSymDense(6, nil)
	c2 := identity(6, 2)
	for i := 0; i < 6; i++ {
		c1.SetSym(i, i, float64(i+1))
		if i > 0 {
			c1.SetSym(i, i-1, 0.3)
		}
	}
	a, err := overlap.LogOverlap(m1, c1, m2, c2)
	require.NoError(t, err)
	b, err := overlap.LogOverlap(m2, c2, m1, c1)
	require.NoError(t, err)
	assert.InDelta(t, a, b, 1e-12)
}

// In one dimension the integral is easy to evaluate on a grid.
func TestOneDimensionalGrid(t *testing.T) {
	gauss := func(x, m, v float64) float64 {
		return math.Exp(-(x-m)*(x-m)/(2*v)) / math.Sqrt(2*math.Pi*v)
	}
	cases := []struct{ m1, v1, m2, v2 float64 }{
		{0, 1, 0, 1},
		{0, 1, 3, 0.5},
		{-2, 4, 1, 0.25},
		{5, 0.1, 4.5, 2},
	}
	const lo, hi, n = -30., 30., 200000
	h := (hi - lo) / n
	for _, c := range cases {
		sum := 0.
		for i := 0; i <= n; i++ {
			x := lo + float64(i)*h
			f := gauss(x, c.m1, c.v1) * gauss(x, c.m2, c.v2)
			if i == 0 || i == n {
				f /= 2
			}
			sum += f
		}
		want := math.Log(sum * h)
		got, err := overlap.LogOverlap(
			[]float64{c.m1}, identity(1, c.v1), []float64{c.m2}, identity(1, c.v2))
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-6, "case %+v", c)
	}
}

func TestNotPositiveDefinite(t *testing.T) {
	zero := make([]float64, 3)
	lo, err := overlap.LogOverlap(zero, identity(3, -1), zero, identity(3, 0.5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNumericalInstability))
	assert.True(t, math.IsInf(lo, -1))
}

func TestDimensionMismatch(t *testing.T) {
	_, err := overlap.LogOverlap(make([]float64, 3), identity(3, 1),
		make([]float64, 6), identity(6, 1))
	require.Error(t, err)
	assert.False(t, errors.Is(err, errors.ErrNumericalInstability))
}

// A star without a radial velocity measurement carries a huge variance in
// one velocity axis.  The overlap must still be finite.
func TestDegenerateRadialVelocity(t *testing.T) {
	star := identity(6, 1)
	star.SetSym(4, 4, 1e8)
	lo, err := overlap.LogOverlap(make([]float64, 6), star,
		[]float64{0.1, 0, 0, 0, 30, 0}, identity(6, 1))
	require.NoError(t, err)
	assert.False(t, math.IsInf(lo, 0) || math.IsNaN(lo))
}

func TestBatch(t *testing.T) {
	var e overlap.Evaluator
	means := [][]float64{make([]float64, 2), {1, 1}, {0, 3}}
	covs := []*mat.SymDense{identity(2, 1), identity(2, -5), identity(2, 2)}
	dst := make([]float64, 3)
	n, err := e.Batch(means, covs, []float64{0, 0}, identity(2, 1), dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, math.IsInf(dst[1], -1))
	for _, i := range []int{0, 2} {
		want, err := overlap.LogOverlap(means[i], covs[i], []float64{0, 0}, identity(2, 1))
		require.NoError(t, err)
		assert.Equal(t, want, dst[i])
	}

	_, err = e.Batch(means, covs[:2], []float64{0, 0}, identity(2, 1), dst)
	assert.Error(t, err)
}
