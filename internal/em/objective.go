// Public domain.

package em

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/component"
	"github.com/nishamrutha/chronostar/internal/orbit"
	"github.com/nishamrutha/chronostar/internal/overlap"
	"github.com/nishamrutha/chronostar/internal/stars"
)

// epochBatch is the member stars of a component observed at one epoch,
// with their memberships.
type epochBatch struct {
	epoch float64
	means [][]float64
	covs  []*mat.SymDense
	memb  []float64
}

// gather groups members of tb by epoch, in order of first appearance.
func gather(tb *stars.Table, members []int, memb []float64) []epochBatch {
	var bs []epochBatch
	at := map[float64]int{}
	means, covs := tb.Means(), tb.Covs()
	for _, i := range members {
		e := tb.Stars[i].Epoch
		b, ok := at[e]
		if !ok {
			b = len(bs)
			at[e] = b
			bs = append(bs, epochBatch{epoch: e})
		}
		bs[b].means = append(bs[b].means, means[i])
		bs[b].covs = append(bs[b].covs, covs[i])
		bs[b].memb = append(bs[b].memb, memb[i])
	}
	return bs
}

// weightedLogOverlap returns Σ memb·ln overlap of c with the stars of bs.
// It is -Inf when c cannot be propagated to an epoch or an overlap is
// numerically unstable.  It is safe for concurrent use.
func weightedLogOverlap(c *component.Component, prop orbit.Propagator, bs []epochBatch) float64 {
	var ev overlap.Evaluator
	var dst []float64
	sum := 0.
	for _, b := range bs {
		m, cv, err := c.MeanCovAt(prop, b.epoch)
		if err != nil {
			return math.Inf(-1)
		}
		if cap(dst) < len(b.means) {
			dst = make([]float64, len(b.means))
		}
		dst = dst[:len(b.means)]
		if n, err := ev.Batch(b.means, b.covs, m, cv, dst); err != nil || n > 0 {
			return math.Inf(-1)
		}
		sum += floats.Dot(b.memb, dst)
	}
	return sum
}
