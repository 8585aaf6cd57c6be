// Public domain.

package mcmc

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/logger"
)

// worst stands in for -Inf log probabilities so that simplex arithmetic on
// function values stays finite.
const worst = 1e300

// Optimize maximizes prob.LogProb with the Nelder-Mead simplex method,
// with the evaluation budget of MaxSteps ensemble steps.  It is the point
// estimate alternative to Run.  The result has no chain; its percentiles
// are all the optimum.
func (s *Sampler) Optimize(ctx context.Context, prob Problem) (*Result, error) {
	np := len(prob.Start)
	if np == 0 {
		return nil, errors.New("mcmc: no parameters")
	}
	start := prob.LogProb(prob.Start)
	f := func(x []float64) float64 {
		if ctx.Err() != nil {
			return worst
		}
		lp := prob.LogProb(x)
		if !finite(lp) {
			return worst
		}
		return -lp
	}
	settings := &optimize.Settings{
		FuncEvaluations: s.cfg.MaxSteps * s.Walkers(np),
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-8,
			Relative:   1e-10,
			Iterations: s.cfg.CheckInterval,
		},
	}
	nm := &optimize.NelderMead{}
	if prob.Spread != nil {
		nm.SimplexSize = 0
		for _, sp := range prob.Spread {
			nm.SimplexSize = math.Max(nm.SimplexSize, sp)
		}
	}
	r, err := optimize.Minimize(optimize.Problem{Func: f}, prob.Start, settings, nm)
	res := &Result{
		Best:        append([]float64{}, prob.Start...),
		BestLogProb: start,
	}
	if r != nil && -r.F > res.BestLogProb && r.F < worst {
		res.Best = append(res.Best[:0], r.X...)
		res.BestLogProb = -r.F
	}
	if r != nil {
		res.Steps = r.Stats.FuncEvaluations
		res.Converged = err == nil && r.Status == optimize.FunctionConvergence && ctx.Err() == nil
	}
	if !finite(res.BestLogProb) {
		return nil, errors.Mark(errors.New("mcmc: optimizer found no finite log probability"),
			errors.ErrNumericalInstability)
	}
	res.Representative = append([]float64{}, res.Best...)
	res.Percentiles = make([][3]float64, np)
	for p, b := range res.Best {
		res.Percentiles[p] = [3]float64{b, b, b}
	}
	s.log.Debug("optimization done",
		zap.Int(logger.FieldSteps, res.Steps),
		zap.Bool(logger.FieldConverged, res.Converged),
		zap.Float64(logger.FieldLnPost, res.BestLogProb))
	return res, nil
}
