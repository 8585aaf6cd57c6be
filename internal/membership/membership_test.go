// Public domain.

package membership

import (
	"context"
	"math"
	"testing"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/component"
	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/orbit"
	"github.com/nishamrutha/chronostar/internal/stars"
	"github.com/nishamrutha/chronostar/internal/workpool"
)

func unit6() *mat.SymDense {
	return stars.CovFromErrors([]float64{1, 1, 1, 1, 1, 1}, nil)
}

func table(t *testing.T, means ...[]float64) *stars.Table {
	ss := make([]stars.Star, len(means))
	for i, m := range means {
		ss[i] = stars.Star{Mean: m, Cov: unit6(), BgLnOverlap: -20, HasBg: true}
	}
	tb, err := stars.NewTable(ss)
	require.NoError(t, err)
	return tb
}

func sphere(t *testing.T, x, u, lnDX, lnDV, age float64) *component.Component {
	p, err := component.Lookup(component.Sphere)
	require.NoError(t, err)
	c, err := component.New(p, []float64{x, 0, 0, u, 0, 0, lnDX, lnDV, age})
	require.NoError(t, err)
	return c
}

func static(t *testing.T) orbit.Propagator {
	p, err := orbit.New("static", 100)
	require.NoError(t, err)
	return p
}

func assertRowsSumToOne(t *testing.T, memb *mat.Dense) {
	n, _ := memb.Dims()
	for i := 0; i < n; i++ {
		assert.InDelta(t, 1, floats.Sum(mat.Row(nil, i, memb)), 1e-9, "row %d", i)
	}
}

func TestUnitSelfOverlap(t *testing.T) {
	tb := table(t, make([]float64, 6))
	e, err := NewEngine(tb, Config{Propagator: static(t)})
	require.NoError(t, err)
	lnols, st, err := e.LogOverlaps(context.Background(),
		[]*component.Component{sphere(t, 0, 0, 0, 0, 0)}, []float64{1})
	require.NoError(t, err)
	assert.InDelta(t, -3*math.Log(4*math.Pi), lnols.At(0, 0), 1e-12)
	assert.Equal(t, 1, st.Evaluations)
	memb, uniform := Normalize(lnols)
	assert.Zero(t, uniform)
	assert.Equal(t, 1., memb.At(0, 0))
}

func TestRowsSumToOne(t *testing.T) {
	tb := table(t,
		[]float64{0, 0, 0, 0, 0, 0},
		[]float64{5, 1, 0, 2, 0, 0},
		[]float64{50, 0, 0, 0, 0, 0},
		[]float64{-20, 3, 1, 0, 1, 1},
	)
	comps := []*component.Component{
		sphere(t, 0, 0, 1, 0, 5),
		sphere(t, 40, 0, 2, 1, 10),
		sphere(t, -20, 0, 0.5, 0.5, 1),
	}
	weights := []float64{2, 1, 1}
	for _, bg := range []stars.Background{nil, stars.Column{}} {
		e, err := NewEngine(tb, Config{Propagator: static(t), Background: bg})
		require.NoError(t, err)
		for k := 0; k <= len(comps); k++ {
			if k == 0 && bg == nil {
				continue
			}
			lnols, _, err := e.LogOverlaps(context.Background(), comps[:k], weights[:k])
			require.NoError(t, err)
			memb, _ := Normalize(lnols)
			_, cols := memb.Dims()
			want := k
			if bg != nil {
				want++
			}
			assert.Equal(t, want, cols)
			assertRowsSumToOne(t, memb)
		}
	}
}

func TestNoComponentsWithoutBackground(t *testing.T) {
	e, err := NewEngine(table(t, make([]float64, 6)), Config{Propagator: static(t)})
	require.NoError(t, err)
	_, _, err = e.LogOverlaps(context.Background(), nil, nil)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestBackgroundOnly(t *testing.T) {
	e, err := NewEngine(table(t, make([]float64, 6), []float64{1, 1, 1, 1, 1, 1}),
		Config{Propagator: static(t), Background: stars.Column{}})
	require.NoError(t, err)
	assert.True(t, e.HasBackground())
	lnols, _, err := e.LogOverlaps(context.Background(), nil, nil)
	require.NoError(t, err)
	memb, _ := Normalize(lnols)
	assert.Equal(t, []float64{1, 1}, Column(memb, 0))
	assert.InDelta(t, -40, TotalLogLikelihood(lnols), 1e-12)
}

func TestIdempotentAndPoolIndependent(t *testing.T) {
	var means [][]float64
	for i := 0; i < 200; i++ {
		x := float64(i%20) - 10
		means = append(means, []float64{x, x / 2, 0, float64(i % 3), 0, 0})
	}
	tb := table(t, means...)
	comps := []*component.Component{sphere(t, -5, 0, 1, 0, 3), sphere(t, 5, 1, 1, 0, 8)}
	w := []float64{120, 80}
	prop, err := orbit.New("epicyclic", 100)
	require.NoError(t, err)

	serial, err := NewEngine(tb, Config{Propagator: prop, Background: stars.Column{}})
	require.NoError(t, err)
	a, _, err := serial.LogOverlaps(context.Background(), comps, w)
	require.NoError(t, err)
	b, _, err := serial.LogOverlaps(context.Background(), comps, w)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))

	pool := workpool.New(4)
	defer pool.Close()
	reg := metrics.NewRegistry()
	par, err := NewEngine(tb, Config{Propagator: prop, Background: stars.Column{}, Pool: pool, Metrics: reg})
	require.NoError(t, err)
	c, st, err := par.LogOverlaps(context.Background(), comps, w)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, c))
	assert.Equal(t, 400, st.Evaluations)
	assert.Equal(t, int64(400), metrics.GetOrRegisterCounter(MetricEvaluations, reg).Count())
}

func TestSeparatedComponents(t *testing.T) {
	var means [][]float64
	for i := 0; i < 10; i++ {
		d := float64(i)/10 - 0.5
		means = append(means, []float64{d, -d, 0, 0, d, 0})
		means = append(means, []float64{100 + d, d, 0, 0, 0, d})
	}
	tb := table(t, means...)
	e, err := NewEngine(tb, Config{Propagator: static(t)})
	require.NoError(t, err)
	comps := []*component.Component{sphere(t, 0, 0, 0, 0, 0), sphere(t, 100, 0, 0, 0, 0)}
	lnols, _, err := e.LogOverlaps(context.Background(), comps, []float64{10, 10})
	require.NoError(t, err)
	memb, _ := Normalize(lnols)
	for i := range means {
		own := i % 2
		assert.Greater(t, memb.At(i, own), 0.99)
		assert.Less(t, memb.At(i, 1-own), 0.01)
	}
	assert.InDeltaSlice(t, []float64{10, 10}, ColumnSums(memb, 2), 1e-9)
	assert.Len(t, Members(memb, 0, 0.5), 10)
	for i, a := range Assign(memb) {
		assert.Equal(t, i%2, a)
	}
}

// brokenPropagator returns a covariance that is not positive-definite.
type brokenPropagator struct{}

func (brokenPropagator) Propagate(mean []float64, cov mat.Symmetric, age float64) ([]float64, *mat.SymDense, error) {
	c := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		c.SetSym(i, i, -10)
	}
	return append([]float64{}, mean...), c, nil
}

func TestInstabilitiesAndUniformRows(t *testing.T) {
	tb := table(t, make([]float64, 6), []float64{1, 0, 0, 0, 0, 0})
	e, err := NewEngine(tb, Config{Propagator: brokenPropagator{}})
	require.NoError(t, err)
	lnols, st, err := e.LogOverlaps(context.Background(),
		[]*component.Component{sphere(t, 0, 0, 0, 0, 1)}, []float64{1})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Instabilities)
	memb, uniform := Normalize(lnols)
	assert.Equal(t, 2, uniform)
	assertRowsSumToOne(t, memb)
	assert.Equal(t, 0., TotalLogLikelihood(lnols))

	// a component older than the propagator allows loses every star
	e, err = NewEngine(tb, Config{Propagator: static(t), Background: stars.Column{}})
	require.NoError(t, err)
	lnols, st, err = e.LogOverlaps(context.Background(),
		[]*component.Component{sphere(t, 0, 0, 0, 0, 150)}, []float64{1})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Unpropagated)
	memb, _ = Normalize(lnols)
	assert.Equal(t, []float64{0, 0}, Column(memb, 0))
}

func TestCancelled(t *testing.T) {
	e, err := NewEngine(table(t, make([]float64, 6)), Config{Propagator: static(t)})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = e.LogOverlaps(ctx, []*component.Component{sphere(t, 0, 0, 0, 0, 0)}, []float64{1})
	assert.ErrorIs(t, err, context.Canceled)
}
