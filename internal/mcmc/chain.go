// Public domain.

package mcmc

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Chain is the record of an ensemble run: for every step, the position
// and log probability of every walker.
type Chain struct {
	Walkers int
	Params  int
	Steps   int

	samples  []float64 // step major, then walker, then parameter
	logProbs []float64 // step major, then walker
}

// newChain returns an empty chain with room for capSteps steps.  It grows
// past them as needed.
func newChain(walkers, params, capSteps int) *Chain {
	return &Chain{
		Walkers:  walkers,
		Params:   params,
		samples:  make([]float64, 0, capSteps*walkers*params),
		logProbs: make([]float64, 0, capSteps*walkers),
	}
}

func (c *Chain) append(pos [][]float64, lp []float64) {
	for _, p := range pos {
		c.samples = append(c.samples, p...)
	}
	c.logProbs = append(c.logProbs, lp...)
	c.Steps++
}

// At returns the position of walker w after step s.  The slice must not be
// modified.
func (c *Chain) At(s, w int) []float64 {
	i := (s*c.Walkers + w) * c.Params
	return c.samples[i : i+c.Params : i+c.Params]
}

// LogProb returns the log probability of walker w after step s.
func (c *Chain) LogProb(s, w int) float64 {
	return c.logProbs[s*c.Walkers+w]
}

// Trace returns parameter p of walker w over steps [from, Steps).
func (c *Chain) Trace(w, p, from int) []float64 {
	t := make([]float64, 0, c.Steps-from)
	for s := from; s < c.Steps; s++ {
		t = append(t, c.At(s, w)[p])
	}
	return t
}

// Flat returns parameter p of every walker over steps [from, Steps).
func (c *Chain) Flat(p, from int) []float64 {
	f := make([]float64, 0, (c.Steps-from)*c.Walkers)
	for s := from; s < c.Steps; s++ {
		for w := 0; w < c.Walkers; w++ {
			f = append(f, c.At(s, w)[p])
		}
	}
	return f
}

// Percentiles returns the 16th, 50th and 84th percentiles of each
// parameter over steps [from, Steps).
func (c *Chain) Percentiles(from int) [][3]float64 {
	pc := make([][3]float64, c.Params)
	for p := range pc {
		f := c.Flat(p, from)
		if len(f) == 0 {
			continue
		}
		sort.Float64s(f)
		pc[p] = [3]float64{
			stat.Quantile(0.16, stat.Empirical, f, nil),
			stat.Quantile(0.50, stat.Empirical, f, nil),
			stat.Quantile(0.84, stat.Empirical, f, nil),
		}
	}
	return pc
}

// Mean returns the mean position over steps [from, Steps).
func (c *Chain) Mean(from int) []float64 {
	m := make([]float64, c.Params)
	for p := range m {
		m[p] = stat.Mean(c.Flat(p, from), nil)
	}
	return m
}
