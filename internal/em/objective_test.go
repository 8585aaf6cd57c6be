// Public domain.

package em

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nishamrutha/chronostar/internal/orbit"
	"github.com/nishamrutha/chronostar/internal/overlap"
	"github.com/nishamrutha/chronostar/internal/stars"
)

func TestWeightedLogOverlap(t *testing.T) {
	ss := append([]stars.Star{}, oneGroup(t).Stars...)
	for i := range ss {
		ss[i].Epoch = float64(i % 2 * 2)
	}
	tb, err := stars.NewTable(ss)
	require.NoError(t, err)
	prop, err := orbit.New("ballistic", 100)
	require.NoError(t, err)
	c := sphere(t, 20, math.Log(8), math.Log(2), 5)

	var members []int
	memb := make([]float64, tb.Len())
	for i := range memb {
		memb[i] = float64(i) / float64(tb.Len())
		if i != 3 {
			members = append(members, i)
		}
	}
	bs := gather(tb, members, memb)
	require.Len(t, bs, 2)
	assert.Equal(t, 0., bs[0].epoch)
	assert.Equal(t, 2., bs[1].epoch)
	assert.Len(t, bs[0].means, 20)
	assert.Len(t, bs[1].means, 19)

	want := 0.
	for _, i := range members {
		m, cv, err := c.MeanCovAt(prop, ss[i].Epoch)
		require.NoError(t, err)
		lnol, err := overlap.LogOverlap(ss[i].Mean, ss[i].Cov, m, cv)
		require.NoError(t, err)
		want += memb[i] * lnol
	}
	assert.InDelta(t, want, weightedLogOverlap(c, prop, bs), 1e-6)
	assert.Equal(t, 0., weightedLogOverlap(c, prop, nil))
}
