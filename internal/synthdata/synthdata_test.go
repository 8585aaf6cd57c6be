// Public domain.

package synthdata_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/nishamrutha/chronostar/internal/component"
	"github.com/nishamrutha/chronostar/internal/orbit"
	"github.com/nishamrutha/chronostar/internal/synthdata"
)

func TestGenerate(t *testing.T) {
	p, err := component.Lookup(component.Sphere)
	require.NoError(t, err)
	c, err := component.New(p, []float64{50, -20, 10, 2, -3, 1, 1.6094379124341003, 0, 10})
	require.NoError(t, err)
	prop, err := orbit.New("ballistic", 100)
	require.NoError(t, err)
	mean, cov, err := c.MeanCovAt(prop, 0)
	require.NoError(t, err)

	opt := synthdata.Options{
		Propagator: prop,
		Seed:       4,
		Field:      &synthdata.Field{N: 10, Lo: []float64{-100, -100, -100, -10, -10, -10}, Hi: []float64{100, 100, 100, 10, 10, 10}},
	}
	tb, labels, err := synthdata.Table([]synthdata.Group{{Component: c, N: 2000}}, opt)
	require.NoError(t, err)
	require.Equal(t, 2010, tb.Len())
	assert.Equal(t, 0, labels[0])
	assert.Equal(t, synthdata.FieldLabel, labels[2009])
	assert.Equal(t, "g0-0", tb.Stars[0].ID)
	assert.Equal(t, "f-9", tb.Stars[2009].ID)

	col := make([]float64, 2000)
	for d := 0; d < 6; d++ {
		for i := range col {
			col[i] = tb.Stars[i].Mean[d]
		}
		m, sd := stat.MeanStdDev(col, nil)
		want := math.Hypot(math.Sqrt(cov.At(d, d)), synthdata.DefaultErrors[d])
		assert.InDelta(t, mean[d], m, 4*want/math.Sqrt(2000), "mean %d", d)
		assert.InEpsilon(t, want, sd, 0.1, "sd %d", d)
	}
	for i := 2000; i < 2010; i++ {
		assert.GreaterOrEqual(t, tb.Stars[i].Mean[0], -105.)
		assert.LessOrEqual(t, tb.Stars[i].Mean[0], 105.)
	}

	again, _, err := synthdata.Generate([]synthdata.Group{{Component: c, N: 2000}}, opt)
	require.NoError(t, err)
	assert.Equal(t, tb.Stars[17].Mean, again[17].Mean)
}

func TestGenerateErrors(t *testing.T) {
	_, _, err := synthdata.Generate(nil, synthdata.Options{})
	assert.Error(t, err)
	prop, err := orbit.New("static", 0)
	require.NoError(t, err)
	_, _, err = synthdata.Generate(nil, synthdata.Options{Propagator: prop, Errors: []float64{1}})
	assert.Error(t, err)
}
