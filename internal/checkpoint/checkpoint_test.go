// Public domain.

package checkpoint_test

import (
	"bytes"
	"context"
	"encoding/gob"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nishamrutha/chronostar/internal/checkpoint"
	"github.com/nishamrutha/chronostar/internal/component"
	"github.com/nishamrutha/chronostar/internal/em"
	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/mcmc"
	"github.com/nishamrutha/chronostar/internal/membership"
	"github.com/nishamrutha/chronostar/internal/orbit"
	"github.com/nishamrutha/chronostar/internal/stars"
	"github.com/nishamrutha/chronostar/internal/synthdata"
)

type fixture struct {
	cfg em.Config
	env em.Env
	par component.Parametrization
}

func newFixture(t *testing.T) *fixture {
	prop, err := orbit.New("ballistic", 100)
	require.NoError(t, err)
	par, err := component.Lookup(component.Sphere)
	require.NoError(t, err)
	c, err := component.New(par, []float64{0, 0, 0, 1, 0, 0, math.Log(6), 0, 5})
	require.NoError(t, err)
	ss, _, err := synthdata.Generate([]synthdata.Group{{Component: c, N: 25}},
		synthdata.Options{Propagator: prop, Seed: 1})
	require.NoError(t, err)
	for i := range ss {
		ss[i].BgLnOverlap = -30
		ss[i].HasBg = true
	}
	tb, err := stars.NewTable(ss)
	require.NoError(t, err)
	eng, err := membership.NewEngine(tb, membership.Config{Propagator: prop, Background: stars.Column{}})
	require.NoError(t, err)
	sc := mcmc.DefaultConfig()
	sc.MaxSteps = 30
	return &fixture{
		cfg: em.Config{
			MaxIterations: 5,
			Tolerance:     0.1,
			Patience:      10,
			Method:        em.Ensemble,
			Bounds:        component.Bounds{MaxAge: 100, MinDispersion: 1e-3, MaxDispersion: 1e4},
			Seed:          8,
		},
		env: em.Env{Engine: eng, Sampler: mcmc.NewSampler(sc, nil, nil, nil)},
		par: par,
	}
}

// afterIterations returns a driver in E_STEP after n iterations.
func (f *fixture) afterIterations(t *testing.T, n int) *em.Driver {
	d, err := em.New(f.cfg, f.env, f.par, nil, nil)
	require.NoError(t, err)
	for d.Iteration() < n || d.State() != em.EStep {
		require.NoError(t, d.Step(context.Background()))
	}
	return d
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	d := f.afterIterations(t, 1)
	r := d.Result()
	require.True(t, r.Background)

	fn := filepath.Join(t.TempDir(), "1", "A", "result.gob")
	require.NoError(t, checkpoint.WriteFile(fn, r))
	back, err := checkpoint.ReadFile(fn)
	require.NoError(t, err)
	assert.Equal(t, r, back)
	assert.Equal(t, []bool{false}, back.SamplerConverged, "30 steps are short of the sampler's minimum")
	assert.True(t, errors.Is(back.Err(), errors.ErrNonConvergence))

	r.SamplerConverged[0] = true
	var buf bytes.Buffer
	require.NoError(t, checkpoint.Encode(&buf, r))
	flipped, err := checkpoint.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, flipped.SamplerConverged)
	r.SamplerConverged[0] = false

	// the next iteration from the file is the next iteration of the live fit
	resumed, err := em.Resume(f.cfg, f.env, back)
	require.NoError(t, err)
	for _, dr := range []*em.Driver{d, resumed} {
		for i := 0; i < 3; i++ {
			require.NoError(t, dr.Step(context.Background()))
		}
	}
	assert.Equal(t, d.Result(), resumed.Result())
	assert.Equal(t, 2, resumed.Iteration())
}

func TestRoundTripBeforeMStep(t *testing.T) {
	f := newFixture(t)
	d, err := em.New(f.cfg, f.env, f.par, nil, nil)
	require.NoError(t, err)
	require.NoError(t, d.Step(context.Background()))
	require.NoError(t, d.EStep(context.Background()))
	r := d.Result()
	require.Nil(t, r.Spans[0])
	require.Equal(t, []bool{false}, r.SamplerConverged)
	require.Equal(t, []int{0}, r.LowConfidence())

	var buf bytes.Buffer
	require.NoError(t, checkpoint.Encode(&buf, r))
	back, err := checkpoint.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, r, back)
}

func TestDecodeErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(checkpoint.Version+1))
	_, err := checkpoint.Decode(&buf)
	assert.True(t, errors.Is(err, errors.ErrData))

	f := newFixture(t)
	d := f.afterIterations(t, 1)
	buf.Reset()
	require.NoError(t, checkpoint.Encode(&buf, d.Result()))
	_, err = checkpoint.Decode(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
	assert.Error(t, err)

	_, err = checkpoint.ReadFile(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}
