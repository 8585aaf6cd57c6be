// Public domain.

// Package em fits a mixture of components to a star table by
// expectation-maximization.
//
// A Driver is a state machine:
//
//	INIT -> E_STEP -> M_STEP -> CHECK_CONVERGENCE -> E_STEP | CONVERGED | MAX_ITERS_REACHED
//
// The E-step computes memberships of the current components.  The M-step
// refits every component to the stars weighted by its membership column,
// by ensemble sampling or by simplex optimization, and sets the mixture
// weights to the expected star counts.  The check evaluates memberships of
// the new components and compares log likelihoods.
package em

import (
	"context"
	"fmt"
	"math"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/component"
	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/logger"
	"github.com/nishamrutha/chronostar/internal/mcmc"
	"github.com/nishamrutha/chronostar/internal/membership"
)

// Metric names.
const (
	MetricEStep = "em.estep"
	MetricMStep = "em.mstep"
)

// State is a state of a Driver.
type State int

// Driver states.
const (
	Init State = iota
	EStep
	MStep
	CheckConvergence
	Converged
	MaxItersReached
)

var stateNames = [...]string{
	Init:             "INIT",
	EStep:            "E_STEP",
	MStep:            "M_STEP",
	CheckConvergence: "CHECK_CONVERGENCE",
	Converged:        "CONVERGED",
	MaxItersReached:  "MAX_ITERS_REACHED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Done reports whether s is terminal.
func (s State) Done() bool { return s == Converged || s == MaxItersReached }

// Method names of the M-step.
const (
	Ensemble   = "ensemble"
	NelderMead = "nelder-mead"
)

// Config controls a fit.
type Config struct {
	MaxIterations   int
	Tolerance       float64 // on the change of total log likelihood
	Patience        int     // consecutive iterations within Tolerance
	MemberThreshold float64 // stars below it are left out of an M-step
	PruneThreshold  float64 // components with fewer expected members are removed, 0 never
	Method          string
	Bounds          component.Bounds
	Seed            uint64
}

// Env holds the collaborators of a Driver.
type Env struct {
	Engine  *membership.Engine
	Sampler *mcmc.Sampler
	Logger  *zap.Logger
	Metrics metrics.Registry // may be nil
}

// Driver runs one fit with a fixed parametrization.
type Driver struct {
	cfg Config
	env Env
	par component.Parametrization
	log *zap.Logger

	state   State
	comps   []*component.Component
	weights []float64
	spans   [][][3]float64 // percentiles of the last M-step, per component
	sampled []bool         // the last M-step sampler of each component converged
	iter    int
	stable  int

	// E-step products for comps and weights
	fresh bool
	lnols *mat.Dense
	memb  *mat.Dense
	lnL   float64
	stats membership.Stats
}

// New returns a driver in state INIT.
//
// With no initial components the fit starts from one component, the
// Gaussian of all star means at age 0.  Nil weights start every component
// with an equal share of the stars.
func New(cfg Config, env Env, par component.Parametrization, init []*component.Component, weights []float64) (*Driver, error) {
	if env.Engine == nil || env.Sampler == nil {
		return nil, errors.New("em: missing engine or sampler")
	}
	if par == nil {
		return nil, errors.New("em: no parametrization")
	}
	switch cfg.Method {
	case "", Ensemble, NelderMead:
	default:
		return nil, errors.Configf("unknown M-step method %q", cfg.Method)
	}
	if weights != nil && len(weights) != len(init) {
		return nil, errors.Newf("em: %d weights for %d components", len(weights), len(init))
	}
	for i, c := range init {
		if c.Parametrization().Shape() != par.Shape() {
			return nil, errors.Newf("em: component %d is %s, fit is %s",
				i, c.Parametrization().Shape(), par.Shape())
		}
	}
	d := &Driver{
		cfg:   cfg,
		env:   env,
		par:   par,
		log:   logger.Nop(env.Logger).Named("em"),
		comps: append([]*component.Component{}, init...),
	}
	if weights != nil {
		d.weights = append([]float64{}, weights...)
	}
	return d, nil
}

// State returns the current state.
func (d *Driver) State() State { return d.state }

// Iteration returns the number of completed M-steps.
func (d *Driver) Iteration() int { return d.iter }

// Components returns the current components.
func (d *Driver) Components() []*component.Component {
	return append([]*component.Component{}, d.comps...)
}

// Weights returns the current mixture weights, expected star counts.
func (d *Driver) Weights() []float64 { return append([]float64{}, d.weights...) }

// Memberships returns the membership matrix of the last E-step, nil
// before the first one.
func (d *Driver) Memberships() *mat.Dense { return d.memb }

// LogLikelihood returns the total log likelihood of the last E-step.
func (d *Driver) LogLikelihood() float64 { return d.lnL }

// Step performs the action of the current state and moves to the next
// state.  Step in a terminal state does nothing.
func (d *Driver) Step(ctx context.Context) error {
	switch d.state {
	case Init:
		return d.ready()
	case EStep:
		if !d.fresh {
			if err := d.EStep(ctx); err != nil {
				return err
			}
		}
		d.state = MStep
	case MStep:
		if err := d.MStep(ctx); err != nil {
			return err
		}
		d.state = CheckConvergence
	case CheckConvergence:
		if err := d.check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run steps d to a terminal state and returns the result.  An error from a
// step stops the run; the result of the last E-step, if any, is still
// returned with it.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	for !d.state.Done() {
		if err := d.Step(ctx); err != nil {
			if d.memb != nil {
				return d.Result(), err
			}
			return nil, err
		}
	}
	return d.Result(), nil
}

func (d *Driver) initialize() error {
	if len(d.comps) == 0 {
		mean, cov, err := component.FromData(d.env.Engine.Table().Means(), nil)
		if err != nil {
			return err
		}
		c, err := component.FromGaussian(d.par, mean, cov, 0)
		if err != nil {
			return errors.Wrap(err, "initial component")
		}
		d.comps = []*component.Component{c}
		d.weights = nil
	}
	if d.weights == nil {
		n := float64(d.env.Engine.Table().Len())
		d.weights = make([]float64, len(d.comps))
		for i := range d.weights {
			d.weights[i] = n / float64(len(d.comps))
		}
	}
	if d.spans == nil {
		d.spans = make([][][3]float64, len(d.comps))
	}
	if d.sampled == nil {
		d.sampled = make([]bool, len(d.comps))
	}
	d.log.Info("fit initialized",
		zap.Int(logger.FieldNComps, len(d.comps)),
		zap.Int(logger.FieldStars, d.env.Engine.Table().Len()))
	return nil
}

// EStep computes memberships of the current components and weights.
func (d *Driver) EStep(ctx context.Context) error {
	if d.state == Init {
		return errors.New("em: E-step before initialization")
	}
	start := time.Now()
	lnols, st, err := d.env.Engine.LogOverlaps(ctx, d.comps, d.weights)
	if err != nil {
		return errors.Wrap(err, "E-step")
	}
	memb, uniform := membership.Normalize(lnols)
	st.UniformRows = uniform
	if uniform > 0 {
		d.log.Warn("stars with no finite overlap", zap.Int(logger.FieldStars, uniform))
	}
	d.lnols, d.memb, d.stats = lnols, memb, st
	d.lnL = membership.TotalLogLikelihood(lnols)
	d.fresh = true
	if d.env.Metrics != nil {
		metrics.GetOrRegisterTimer(MetricEStep, d.env.Metrics).UpdateSince(start)
	}
	return nil
}

// MStep refits every component to its membership column of the last
// E-step and updates the weights.
func (d *Driver) MStep(ctx context.Context) error {
	if d.memb == nil || !d.fresh {
		return errors.New("em: M-step without current memberships")
	}
	start := time.Now()
	tb := d.env.Engine.Table()
	prop := d.env.Engine.Propagator()
	k := len(d.comps)
	comps := make([]*component.Component, k)
	spans := make([][][3]float64, k)
	sampled := make([]bool, k)
	for j := range d.comps {
		memb := membership.Column(d.memb, j)
		members := membership.Members(d.memb, j, d.cfg.MemberThreshold)
		batches := gather(tb, members, memb)
		prob := mcmc.Problem{
			LogProb: func(x []float64) float64 {
				c, err := component.New(d.par, x)
				if err != nil {
					return math.Inf(-1)
				}
				lp := c.LogPrior(d.cfg.Bounds, prop)
				if math.IsInf(lp, -1) {
					return lp
				}
				return lp + weightedLogOverlap(c, prop, batches)
			},
			Start:       d.comps[j].Vector(),
			Spread:      d.par.Spread(),
			NonNegative: []int{d.par.NPars() - 1},
		}
		var res *mcmc.Result
		var err error
		if d.cfg.Method == NelderMead {
			res, err = d.env.Sampler.Optimize(ctx, prob)
		} else {
			res, err = d.env.Sampler.Run(ctx, prob, d.seed(j))
		}
		if err != nil {
			return errors.Wrapf(err, "M-step component %d", j)
		}
		if comps[j], err = component.New(d.par, res.Representative); err != nil {
			return errors.Wrapf(err, "M-step component %d", j)
		}
		spans[j] = res.Percentiles
		sampled[j] = res.Converged
		if !res.Converged {
			d.log.Warn("component sampler did not converge",
				zap.Int(logger.FieldIteration, d.iter+1),
				zap.Int(logger.FieldComponent, j),
				zap.Int(logger.FieldSteps, res.Steps))
		}
		d.log.Debug("component fitted",
			zap.Int(logger.FieldIteration, d.iter+1),
			zap.Int(logger.FieldComponent, j),
			zap.Int(logger.FieldMembers, len(members)),
			zap.Int(logger.FieldSteps, res.Steps),
			zap.Bool(logger.FieldConverged, res.Converged),
			zap.Float64(logger.FieldLnPost, res.BestLogProb),
			zap.Float64("age", comps[j].Age()))
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	d.comps = comps
	d.spans = spans
	d.sampled = sampled
	d.weights = membership.ColumnSums(d.memb, k)
	d.fresh = false
	d.iter++
	if d.cfg.PruneThreshold > 0 {
		if gone := d.Prune(d.cfg.PruneThreshold); len(gone) > 0 {
			d.log.Info("components pruned", zap.Ints(logger.FieldComponent, gone))
		}
	}
	if d.env.Metrics != nil {
		metrics.GetOrRegisterTimer(MetricMStep, d.env.Metrics).UpdateSince(start)
	}
	return nil
}

// seed returns the sampler seed of component j in the current iteration.
// It depends only on the configured seed, the component count, the
// iteration and j, so a resumed fit draws what an uninterrupted one would.
func (d *Driver) seed(j int) uint64 {
	return d.cfg.Seed + uint64(len(d.comps))<<40 + uint64(d.iter)<<20 + uint64(j)
}

func (d *Driver) check(ctx context.Context) error {
	prev := d.lnL
	if err := d.EStep(ctx); err != nil {
		return err
	}
	delta := d.lnL - prev
	if math.Abs(delta) < d.cfg.Tolerance {
		d.stable++
	} else {
		d.stable = 0
	}
	switch {
	case d.stable >= d.cfg.Patience:
		d.state = Converged
	case d.iter >= d.cfg.MaxIterations:
		d.state = MaxItersReached
		d.log.Warn("iteration cap reached",
			zap.Int(logger.FieldIteration, d.iter),
			zap.Float64(logger.FieldDelta, delta))
	default:
		d.state = EStep
	}
	d.log.Info("iteration",
		zap.Int(logger.FieldIteration, d.iter),
		zap.Int(logger.FieldNComps, len(d.comps)),
		zap.Float64(logger.FieldLnLike, d.lnL),
		zap.Float64(logger.FieldDelta, delta),
		zap.Stringer(logger.FieldState, d.state))
	return nil
}

// Split replaces component i by two copies with ages loAge and hiAge, each
// with half its weight.  The next step is an E-step.
func (d *Driver) Split(i int, loAge, hiAge float64) error {
	if err := d.ready(); err != nil {
		return err
	}
	if i < 0 || i >= len(d.comps) {
		return errors.Newf("em: no component %d of %d", i, len(d.comps))
	}
	lo, hi, err := d.comps[i].Split(loAge, hiAge)
	if err != nil {
		return err
	}
	w := d.weights[i] / 2
	comps := append([]*component.Component{}, d.comps[:i]...)
	comps = append(comps, lo, hi)
	d.comps = append(comps, d.comps[i+1:]...)
	weights := append([]float64{}, d.weights[:i]...)
	weights = append(weights, w, w)
	d.weights = append(weights, d.weights[i+1:]...)
	spans := append([][][3]float64{}, d.spans[:i]...)
	spans = append(spans, nil, nil)
	d.spans = append(spans, d.spans[i+1:]...)
	sampled := append([]bool{}, d.sampled[:i]...)
	sampled = append(sampled, false, false)
	d.sampled = append(sampled, d.sampled[i+1:]...)
	d.restart()
	return nil
}

// Prune removes the components with weight below minMass and returns
// their former indexes.
func (d *Driver) Prune(minMass float64) []int {
	if d.ready() != nil {
		return nil
	}
	var gone []int
	keep := 0
	for i, c := range d.comps {
		if d.weights[i] < minMass {
			gone = append(gone, i)
			continue
		}
		d.comps[keep] = c
		d.weights[keep] = d.weights[i]
		d.spans[keep] = d.spans[i]
		d.sampled[keep] = d.sampled[i]
		keep++
	}
	if gone == nil {
		return nil
	}
	d.comps = d.comps[:keep]
	d.weights = d.weights[:keep]
	d.spans = d.spans[:keep]
	d.sampled = d.sampled[:keep]
	d.fresh = false
	if d.state != MStep && d.state != CheckConvergence {
		d.restart()
	}
	return gone
}

// ready leaves INIT, if d is there.
func (d *Driver) ready() error {
	if d.state != Init {
		return nil
	}
	if err := d.initialize(); err != nil {
		return err
	}
	d.state = EStep
	return nil
}

// restart invalidates the E-step and convergence count after a change to
// the component list.
func (d *Driver) restart() {
	d.fresh = false
	d.stable = 0
	d.state = EStep
}
