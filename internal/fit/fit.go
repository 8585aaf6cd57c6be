// Public domain.

// Package fit searches for the number of components that best explains a
// star table.
//
// The search fits one component, then repeatedly tries splitting each
// component of the best fit into a younger and an older copy and refits.
// The split with the lowest BIC is kept when it improves on the best fit
// by more than a margin.  Every fit is stored under
// <results_dir>/<K>/<label>/result.gob, and a stored fit is loaded rather
// than recomputed, so an interrupted search picks up where it stopped.
package fit

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/nishamrutha/chronostar/internal/checkpoint"
	"github.com/nishamrutha/chronostar/internal/component"
	"github.com/nishamrutha/chronostar/internal/em"
	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/logger"
)

// File names in the results directory.
const (
	ResultFile  = "result.gob"
	FinalFile   = "final.gob"
	SummaryFile = "summary.yaml"
)

// Config controls a search.
type Config struct {
	MaxComponents int
	BICMargin     float64
	ResultsDir    string // empty disables storing and loading fits
}

// Run is one EM fit of the search.
type Run struct {
	K      int
	Label  string
	Result *em.Result
	Loaded bool // read from the results directory
}

// Search is the outcome of a search.
type Search struct {
	Best  *em.Result
	Label string
	Runs  []Run
}

// Orchestrator runs searches.
type Orchestrator struct {
	cfg   Config
	emCfg em.Config
	env   em.Env
	par   component.Parametrization
	log   *zap.Logger
}

// New returns an orchestrator fitting components of parametrization par.
func New(cfg Config, emCfg em.Config, env em.Env, par component.Parametrization) (*Orchestrator, error) {
	if cfg.MaxComponents < 1 {
		return nil, errors.Configf("max_components %d, want at least 1", cfg.MaxComponents)
	}
	if par == nil {
		return nil, errors.New("fit: no parametrization")
	}
	return &Orchestrator{
		cfg:   cfg,
		emCfg: emCfg,
		env:   env,
		par:   par,
		log:   logger.Nop(env.Logger).Named("fit"),
	}, nil
}

// Fit searches from init, or from one component fitted to the whole
// data set when init is empty.
//
// The returned search always holds the best fit so far when any fit
// completed, also when an error stopped the search.
func (o *Orchestrator) Fit(ctx context.Context, init []*component.Component) (*Search, error) {
	s := &Search{}
	k := len(init)
	if k == 0 {
		k = 1
	}
	r, err := o.run(ctx, s, k, "A", func() (*em.Driver, error) {
		return em.New(o.emCfg, o.env, o.par, init, nil)
	})
	if err != nil {
		return o.finish(s, err)
	}
	s.Best, s.Label = r, fmt.Sprintf("%d/A", k)
	return o.search(ctx, s)
}

// Resume continues a search from a stored best fit r.
func (o *Orchestrator) Resume(ctx context.Context, r *em.Result) (*Search, error) {
	if r.Shape != o.par.Shape() {
		return nil, errors.Configf("result of shape %s, fit shape %s", r.Shape, o.par.Shape())
	}
	s := &Search{Best: r, Label: "resumed"}
	return o.search(ctx, s)
}

func (o *Orchestrator) search(ctx context.Context, s *Search) (*Search, error) {
	for {
		k := len(s.Best.Vectors)
		if k >= o.cfg.MaxComponents {
			o.log.Info("component limit reached", zap.Int(logger.FieldNComps, k))
			break
		}
		if k == 0 {
			break
		}
		var best *em.Result
		var bestLabel string
		for i := 0; i < k; i++ {
			lo, hi := SplitAges(s.Best, i)
			parent := s.Best
			label := Label(i)
			r, err := o.run(ctx, s, k+1, label, func() (*em.Driver, error) {
				comps, err := parent.Components()
				if err != nil {
					return nil, err
				}
				d, err := em.New(o.emCfg, o.env, o.par, comps, parent.Weights)
				if err != nil {
					return nil, err
				}
				return d, d.Split(i, lo, hi)
			})
			if err != nil {
				return o.finish(s, err)
			}
			if best == nil || r.BIC < best.BIC {
				best, bestLabel = r, label
			}
		}
		improved := best.BIC < s.Best.BIC-o.cfg.BICMargin
		o.log.Info("split search",
			zap.Int(logger.FieldNComps, k+1),
			zap.String(logger.FieldLabel, bestLabel),
			zap.Float64(logger.FieldBIC, best.BIC),
			zap.Float64("previous_bic", s.Best.BIC),
			zap.Bool("accepted", improved))
		if !improved {
			break
		}
		s.Best, s.Label = best, fmt.Sprintf("%d/%s", k+1, bestLabel)
	}
	return o.finish(s, nil)
}

// run returns the fit stored for k and label, or fits it with the driver
// of mk and stores it.
func (o *Orchestrator) run(ctx context.Context, s *Search, k int, label string, mk func() (*em.Driver, error)) (*em.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn := o.resultPath(k, label)
	if fn != "" {
		if r, err := checkpoint.ReadFile(fn); err == nil {
			o.log.Info("fit loaded",
				zap.Int(logger.FieldNComps, k),
				zap.String(logger.FieldLabel, label),
				zap.String(logger.FieldFile, fn))
			s.Runs = append(s.Runs, Run{K: k, Label: label, Result: r, Loaded: true})
			return r, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			o.log.Warn("stored fit unreadable, refitting",
				zap.String(logger.FieldFile, fn), zap.Error(err))
		}
	}
	d, err := mk()
	if err != nil {
		return nil, err
	}
	r, err := d.Run(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "fit %d/%s", k, label)
	}
	if cerr := r.Err(); cerr != nil {
		o.log.Warn("fit did not converge",
			zap.Int(logger.FieldNComps, k),
			zap.String(logger.FieldLabel, label),
			zap.Error(cerr))
	}
	o.log.Info("fit done",
		zap.Int(logger.FieldNComps, len(r.Vectors)),
		zap.String(logger.FieldLabel, label),
		zap.Int(logger.FieldIteration, r.Iterations),
		zap.Float64(logger.FieldLnLike, r.LnLike),
		zap.Float64(logger.FieldBIC, r.BIC),
		zap.Bool(logger.FieldConverged, r.Converged))
	if fn != "" {
		if err := checkpoint.WriteFile(fn, r); err != nil {
			return nil, err
		}
	}
	s.Runs = append(s.Runs, Run{K: k, Label: label, Result: r})
	return r, nil
}

func (o *Orchestrator) resultPath(k int, label string) string {
	if o.cfg.ResultsDir == "" {
		return ""
	}
	return filepath.Join(o.cfg.ResultsDir, strconv.Itoa(k), label, ResultFile)
}

// finish stores the best fit and its summary.
func (o *Orchestrator) finish(s *Search, err error) (*Search, error) {
	if s.Best == nil {
		return nil, err
	}
	if o.cfg.ResultsDir != "" {
		if werr := checkpoint.WriteFile(filepath.Join(o.cfg.ResultsDir, FinalFile), s.Best); werr != nil {
			return s, errors.Join(err, werr)
		}
		sum, serr := Summarize(s, o.env.Engine.Propagator())
		if serr == nil {
			serr = sum.WriteFile(filepath.Join(o.cfg.ResultsDir, SummaryFile))
		}
		if serr != nil {
			return s, errors.Join(err, serr)
		}
	}
	return s, err
}

// Label names the split of component i.
func Label(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return strconv.Itoa(i)
}

// SplitAges returns the ages of the two components replacing component i
// of r: the 16th and 84th percentiles of its age.  When the percentiles
// coincide, as after an optimizer fit, they are spread by a quarter of the
// age, at least 1 Myr.
func SplitAges(r *em.Result, i int) (lo, hi float64) {
	age, lo, hi := r.Age(i)
	if hi-lo < 1e-6 {
		w := math.Max(1, 0.25*age)
		lo, hi = age-w, age+w
	}
	return math.Max(0, lo), hi
}
