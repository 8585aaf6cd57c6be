// Public domain.

// Package mcmc samples the posterior of one component's parameters.
//
// The sampler is the affine invariant ensemble sampler of Goodman & Weare
// (2010) with the stretch move, updating the two halves of the ensemble in
// turn.  Every random number comes from one seeded generator on the
// control goroutine.  Workers only evaluate log probabilities, so a run
// with a given seed produces the same chain for any number of workers.
package mcmc

import (
	"context"
	"math"

	metrics "github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
	xrand "golang.org/x/exp/rand"

	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/logger"
	"github.com/nishamrutha/chronostar/internal/workpool"
)

// MetricAcceptance is the histogram of acceptance fractions, in permille.
const MetricAcceptance = "mcmc.acceptance_permille"

// Config controls a sampler run.
type Config struct {
	WalkersPerParam int
	MinSteps        int
	MaxSteps        int
	CheckInterval   int     // steps between convergence checks
	TauFactor       float64 // converged when steps > TauFactor·τ
	TauTolerance    float64 // and τ changed by less than this fraction
	BurninFraction  float64 // leading fraction of steps left out of summaries
	Stretch         float64 // stretch move scale a
	Representative  string  // "map" or "mean"
	InitRedraws     int     // attempts to redraw a walker with non-finite log probability
}

// DefaultConfig returns the configuration defaults of a fit.
func DefaultConfig() Config {
	return Config{
		WalkersPerParam: 2,
		MinSteps:        200,
		MaxSteps:        5000,
		CheckInterval:   100,
		TauFactor:       50,
		TauTolerance:    0.01,
		BurninFraction:  0.25,
		Stretch:         2,
		Representative:  "map",
		InitRedraws:     100,
	}
}

// Problem is a posterior to sample.
type Problem struct {
	// LogProb returns the log posterior density.  It is called
	// concurrently and must be safe for that.
	LogProb func(x []float64) float64
	// Start is the initial position; it becomes the first walker.
	Start []float64
	// Spread scales the random offsets of the other walkers.
	Spread []float64
	// NonNegative lists parameters reflected to be >= 0 at initialisation.
	NonNegative []int
}

// Result summarizes a run.
type Result struct {
	Chain          *Chain
	Best           []float64 // highest log probability position seen
	BestLogProb    float64
	Representative []float64 // Best, or the posterior mean
	Percentiles    [][3]float64
	Tau            []float64 // at the last convergence check, nil if none ran
	Acceptance     float64
	Steps          int
	Converged      bool
}

// Sampler runs ensembles on a worker pool.
type Sampler struct {
	cfg     Config
	pool    *workpool.Pool
	log     *zap.Logger
	metrics metrics.Registry
}

// NewSampler returns a sampler.  pool may be nil to evaluate on the calling
// goroutine; log and reg may be nil.
func NewSampler(cfg Config, pool *workpool.Pool, log *zap.Logger, reg metrics.Registry) *Sampler {
	return &Sampler{cfg: cfg, pool: pool, log: logger.Nop(log).Named("mcmc"), metrics: reg}
}

// Walkers returns the ensemble size for npars parameters: WalkersPerParam
// per parameter, at least two per parameter, and even.
func (s *Sampler) Walkers(npars int) int {
	n := s.cfg.WalkersPerParam * npars
	if n < 2*npars {
		n = 2 * npars
	}
	if n%2 == 1 {
		n++
	}
	return n
}

func (s *Sampler) do(n int, fn func(w, i int)) {
	if s.pool == nil {
		for i := 0; i < n; i++ {
			fn(0, i)
		}
		return
	}
	s.pool.Do(n, fn)
}

// Run samples prob starting from a ball around prob.Start, seeded by seed.
//
// Run stops when the chain has converged, at MaxSteps, or when ctx is done;
// the last two return a result with Converged false and a nil error.
func (s *Sampler) Run(ctx context.Context, prob Problem, seed uint64) (*Result, error) {
	np := len(prob.Start)
	if np == 0 || len(prob.Spread) != np {
		return nil, errors.Newf("mcmc: %d start parameters, %d spreads", np, len(prob.Spread))
	}
	nw := s.Walkers(np)
	rng := xrand.New(&xrand.PCGSource{})
	rng.Seed(seed)

	pos, lp := s.initialize(prob, nw, rng)
	res := &Result{BestLogProb: math.Inf(-1)}
	for w := range pos {
		if lp[w] > res.BestLogProb || res.Best == nil {
			res.Best = append([]float64{}, pos[w]...)
			res.BestLogProb = lp[w]
		}
	}
	if math.IsInf(res.BestLogProb, -1) || math.IsNaN(res.BestLogProb) {
		return nil, errors.Mark(errors.New("mcmc: no walker with finite log probability"),
			errors.ErrNumericalInstability)
	}

	chain := newChain(nw, np, min(s.cfg.MinSteps, s.cfg.MaxSteps))
	half := nw / 2
	props := make([][]float64, half)
	for i := range props {
		props[i] = make([]float64, np)
	}
	z := make([]float64, half)
	lnU := make([]float64, half)
	plp := make([]float64, half)
	a := s.cfg.Stretch
	accepted := 0
	var prevTau []float64

	for step := 1; step <= s.cfg.MaxSteps; step++ {
		if ctx.Err() != nil {
			s.log.Warn("sampling cancelled", zap.Int(logger.FieldSteps, chain.Steps))
			break
		}
		for h := 0; h < 2; h++ {
			active, other := h*half, (1-h)*half
			// all draws for the half-step, on this goroutine
			for i := 0; i < half; i++ {
				u := rng.Float64()
				z[i] = ((a-1)*u + 1) * ((a-1)*u + 1) / a
				j := other + rng.Intn(half)
				x, y := pos[active+i], pos[j]
				for p := range props[i] {
					props[i][p] = y[p] + z[i]*(x[p]-y[p])
				}
				lnU[i] = math.Log(rng.Float64())
			}
			s.do(half, func(_, i int) {
				plp[i] = prob.LogProb(props[i])
			})
			for i := 0; i < half; i++ {
				k := active + i
				if math.IsNaN(plp[i]) {
					continue
				}
				lnq := float64(np-1)*math.Log(z[i]) + plp[i] - lp[k]
				if lnU[i] < lnq {
					copy(pos[k], props[i])
					lp[k] = plp[i]
					accepted++
					if plp[i] > res.BestLogProb {
						copy(res.Best, props[i])
						res.BestLogProb = plp[i]
					}
				}
			}
		}
		chain.append(pos, lp)

		if step >= s.cfg.MinSteps && step%s.cfg.CheckInterval == 0 {
			tau := chain.Tau(0)
			res.Tau = tau
			if s.converged(step, tau, prevTau) {
				res.Converged = true
				break
			}
			prevTau = tau
		}
	}

	res.Chain = chain
	res.Steps = chain.Steps
	if chain.Steps > 0 {
		res.Acceptance = float64(accepted) / float64(chain.Steps*nw)
	}
	s.summarize(res)
	if s.metrics != nil {
		metrics.GetOrRegisterHistogram(MetricAcceptance, s.metrics,
			metrics.NewUniformSample(1028)).Update(int64(res.Acceptance * 1000))
	}
	s.log.Debug("sampling done",
		zap.Int(logger.FieldSteps, res.Steps),
		zap.Int(logger.FieldWalkers, nw),
		zap.Float64(logger.FieldAcceptance, res.Acceptance),
		zap.Float64s(logger.FieldTau, res.Tau),
		zap.Bool(logger.FieldConverged, res.Converged),
		zap.Float64(logger.FieldLnPost, res.BestLogProb))
	return res, nil
}

func (s *Sampler) converged(step int, tau, prevTau []float64) bool {
	if prevTau == nil {
		return false
	}
	for p, t := range tau {
		if math.IsNaN(t) || float64(step) <= s.cfg.TauFactor*t {
			return false
		}
		if math.Abs(prevTau[p]-t)/t >= s.cfg.TauTolerance {
			return false
		}
	}
	return true
}

func (s *Sampler) summarize(res *Result) {
	c := res.Chain
	if c.Steps == 0 {
		res.Representative = append([]float64{}, res.Best...)
		res.Percentiles = make([][3]float64, len(res.Best))
		for p, b := range res.Best {
			res.Percentiles[p] = [3]float64{b, b, b}
		}
		return
	}
	burn := int(s.cfg.BurninFraction * float64(c.Steps))
	if burn >= c.Steps {
		burn = c.Steps - 1
	}
	res.Percentiles = c.Percentiles(burn)
	if s.cfg.Representative == "mean" {
		res.Representative = c.Mean(burn)
	} else {
		res.Representative = append([]float64{}, res.Best...)
	}
}

// initialize scatters walkers around the start position.  Walker 0 is the
// start itself.
func (s *Sampler) initialize(prob Problem, nw int, rng *xrand.Rand) ([][]float64, []float64) {
	np := len(prob.Start)
	pos := make([][]float64, nw)
	lp := make([]float64, nw)
	draw := func(w int) {
		p := pos[w]
		for i := range p {
			p[i] = prob.Start[i] + prob.Spread[i]*rng.NormFloat64()
		}
		for _, i := range prob.NonNegative {
			p[i] = math.Abs(p[i])
		}
	}
	for w := range pos {
		pos[w] = make([]float64, np)
		if w == 0 {
			copy(pos[0], prob.Start)
			continue
		}
		draw(w)
	}
	pending := make([]int, nw)
	for i := range pending {
		pending[i] = i
	}
	for try := 0; ; try++ {
		s.do(len(pending), func(_, i int) {
			w := pending[i]
			lp[w] = prob.LogProb(pos[w])
		})
		var bad []int
		for _, w := range pending {
			if w != 0 && !finite(lp[w]) {
				bad = append(bad, w)
			}
		}
		if len(bad) == 0 || try >= s.cfg.InitRedraws {
			if len(bad) > 0 {
				s.log.Debug("walkers start at non-finite log probability", zap.Int("count", len(bad)))
			}
			break
		}
		for _, w := range bad {
			draw(w)
		}
		pending = bad
	}
	for w := range lp {
		if math.IsNaN(lp[w]) {
			lp[w] = math.Inf(-1)
		}
	}
	return pos, lp
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
