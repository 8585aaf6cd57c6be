// Public domain.

package cstprog

import (
	"os"
	"path/filepath"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"go.uber.org/zap"

	"github.com/nishamrutha/chronostar/internal/astrometry"
	"github.com/nishamrutha/chronostar/internal/component"
	"github.com/nishamrutha/chronostar/internal/config"
	"github.com/nishamrutha/chronostar/internal/em"
	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/logger"
	"github.com/nishamrutha/chronostar/internal/mcmc"
	"github.com/nishamrutha/chronostar/internal/membership"
	"github.com/nishamrutha/chronostar/internal/orbit"
	"github.com/nishamrutha/chronostar/internal/stars"
	"github.com/nishamrutha/chronostar/internal/workpool"
)

// MetricsFile is the name of the metrics dump in the results directory.
const MetricsFile = "metrics.txt"

// loadConfig reads the configuration file, if any, applies command line
// overrides and validates.
func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg := config.Default()
	if g.config != "" {
		f, err := os.Open(g.config)
		if err != nil {
			return nil, errors.Mark(err, errors.ErrConfig)
		}
		cfg, err = config.Decode(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", g.config)
		}
	}
	if g.dataFile != "" {
		cfg.Data.File = g.dataFile
	}
	if g.resultsDir != "" {
		cfg.Run.ResultsDir = g.resultsDir
	}
	if g.workers > 0 {
		cfg.Run.Workers = g.workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Run.Repeatable {
		cfg.Run.Seed = uint64(time.Now().UnixNano())
	}
	return cfg, nil
}

// runEnv holds everything built from a configuration.
type runEnv struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics metrics.Registry
	pool    *workpool.Pool
	prop    *orbit.Linear
	par     component.Parametrization
}

func newRunEnv(cfg *config.Config, verbosity int) (*runEnv, error) {
	opt := logger.Options{Level: logger.VerbosityLevel(cfg.Log.Level, verbosity)}
	if cfg.Log.JSONFile {
		opt.Dir = cfg.Run.ResultsDir
	}
	log, err := logger.New(opt)
	if err != nil {
		return nil, err
	}
	prop, err := orbit.New(cfg.Model.Propagator, cfg.Model.MaxAge)
	if err != nil {
		return nil, err
	}
	par, err := component.Lookup(cfg.Model.Shape)
	if err != nil {
		return nil, err
	}
	return &runEnv{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewRegistry(),
		pool:    workpool.New(cfg.Run.Workers),
		prop:    prop,
		par:     par,
	}, nil
}

// close writes the metrics and releases the workers.
func (r *runEnv) close() {
	r.pool.Close()
	if dir := r.cfg.Run.ResultsDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			if f, err := os.Create(filepath.Join(dir, MetricsFile)); err == nil {
				metrics.WriteOnce(r.metrics, f)
				f.Close()
			}
		}
	}
	r.log.Sync()
}

// readTable reads the star table of fn in the configured format.
func (r *runEnv) readTable(fn string) (*stars.Table, error) {
	d := r.cfg.Data
	bgCol := ""
	if r.cfg.EM.UseBackground && d.BackgroundKDE == "" {
		bgCol = d.BackgroundColumn
	}
	var tb *stars.Table
	var err error
	if d.Format == "astrometry" {
		tb, err = astrometry.ReadFile(fn, astrometry.Options{
			MissingRVError:   d.MissingRVError,
			BackgroundColumn: bgCol,
		})
	} else {
		tb, err = stars.ReadFile(fn, stars.ReadOptions{BackgroundColumn: bgCol})
	}
	if err != nil {
		return nil, err
	}
	r.log.Info("star table read", zap.String(logger.FieldFile, fn), zap.Int(logger.FieldStars, tb.Len()))
	return tb, nil
}

// background returns the configured background model of tb, nil for none.
func (r *runEnv) background(tb *stars.Table) (stars.Background, error) {
	d := r.cfg.Data
	if !r.cfg.EM.UseBackground {
		return nil, nil
	}
	if d.BackgroundKDE != "" {
		ref, err := r.readTable(d.BackgroundKDE)
		if err != nil {
			return nil, errors.Wrap(err, "background reference")
		}
		return stars.NewKDE(ref.Means())
	}
	for i := range tb.Stars {
		if !tb.Stars[i].HasBg {
			return nil, errors.Dataf("star %d (%s): no %s value, set em.use_background = false to fit without a background",
				i, tb.Stars[i].ID, d.BackgroundColumn)
		}
	}
	return stars.Column{}, nil
}

// engine builds the membership engine of tb.
func (r *runEnv) engine(tb *stars.Table) (*membership.Engine, error) {
	bg, err := r.background(tb)
	if err != nil {
		return nil, err
	}
	return membership.NewEngine(tb, membership.Config{
		Propagator: r.prop,
		Background: bg,
		Pool:       r.pool,
		Logger:     r.log,
		Metrics:    r.metrics,
	})
}

func (r *runEnv) emConfig() em.Config {
	c := r.cfg
	return em.Config{
		MaxIterations:   c.EM.MaxIterations,
		Tolerance:       c.EM.Tolerance,
		Patience:        c.EM.Patience,
		MemberThreshold: c.EM.MemberThreshold,
		PruneThreshold:  c.EM.PruneThreshold,
		Method:          c.MCMC.Method,
		Bounds: component.Bounds{
			MaxAge:        c.Model.MaxAge,
			MinDispersion: c.Model.MinDispersion,
			MaxDispersion: c.Model.MaxDispersion,
			MinEigenvalue: c.Model.MinEigenvalue,
			MaxEigenvalue: c.Model.MaxEigenvalue,
		},
		Seed: c.Run.Seed,
	}
}

func (r *runEnv) sampler() *mcmc.Sampler {
	m := r.cfg.MCMC
	sc := mcmc.DefaultConfig()
	sc.WalkersPerParam = m.WalkersPerParam
	sc.MinSteps = m.MinSteps
	sc.MaxSteps = m.MaxSteps
	sc.CheckInterval = m.CheckInterval
	sc.TauFactor = m.TauFactor
	sc.TauTolerance = m.TauTolerance
	sc.BurninFraction = m.BurninFraction
	sc.Stretch = m.Stretch
	sc.Representative = m.Representative
	return mcmc.NewSampler(sc, r.pool, r.log, r.metrics)
}
