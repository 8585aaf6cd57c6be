// Public domain.

// Package config holds the typed run configuration of chronostar.
//
// A configuration file is TOML, organized in the sections data, model, em,
// mcmc, fit, run and log.  Every key has a default, so an empty file is a
// valid configuration once data.file is supplied, for example on the
// command line.  Keys that are not recognized are an error.
package config

import (
	"io"
	"math"
	"runtime"

	"github.com/BurntSushi/toml"

	"github.com/nishamrutha/chronostar/internal/errors"
)

// Config is the complete configuration of a run.
type Config struct {
	Data  Data  `toml:"data"`
	Model Model `toml:"model"`
	EM    EM    `toml:"em"`
	MCMC  MCMC  `toml:"mcmc"`
	Fit   Fit   `toml:"fit"`
	Run   Run   `toml:"run"`
	Log   Log   `toml:"log"`
}

// Data describes the input star table.
type Data struct {
	File             string  `toml:"file"`
	Format           string  `toml:"format"` // cartesian or astrometry
	BackgroundColumn string  `toml:"background_column"`
	BackgroundKDE    string  `toml:"background_kde_file"`
	MissingRVError   float64 `toml:"missing_rv_error"` // km/s
}

// Model selects the component shape, the propagator and the prior bounds.
type Model struct {
	Shape         string  `toml:"shape"`      // sphere, ellip, axis, free
	Propagator    string  `toml:"propagator"` // epicyclic, ballistic, static
	MaxAge        float64 `toml:"max_age"`    // Myr
	MinDispersion float64 `toml:"min_dispersion"`
	MaxDispersion float64 `toml:"max_dispersion"`
	MinEigenvalue float64 `toml:"min_eigenvalue"`
	MaxEigenvalue float64 `toml:"max_eigenvalue"`
}

// EM controls the expectation-maximization loop.
type EM struct {
	MaxIterations   int     `toml:"max_iterations"`
	Tolerance       float64 `toml:"tolerance"`
	Patience        int     `toml:"patience"`
	UseBackground   bool    `toml:"use_background"`
	MemberThreshold float64 `toml:"member_threshold"`
	PruneThreshold  float64 `toml:"prune_threshold"`
}

// MCMC controls the per-component sampler.
type MCMC struct {
	Method          string  `toml:"method"` // ensemble or nelder-mead
	WalkersPerParam int     `toml:"walkers_per_param"`
	MinSteps        int     `toml:"min_steps"`
	MaxSteps        int     `toml:"max_steps"`
	CheckInterval   int     `toml:"check_interval"`
	TauFactor       float64 `toml:"tau_factor"`
	TauTolerance    float64 `toml:"tau_tolerance"`
	BurninFraction  float64 `toml:"burnin_fraction"`
	Stretch         float64 `toml:"stretch"`
	Representative  string  `toml:"representative"` // map or mean
}

// Fit controls the component count search.
type Fit struct {
	MaxComponents int     `toml:"max_components"`
	BICMargin     float64 `toml:"bic_margin"`
	InitFile      string  `toml:"init_file"`
}

// Run holds process level options.
type Run struct {
	ResultsDir string `toml:"results_dir"`
	Workers    int    `toml:"workers"`
	Seed       uint64 `toml:"seed"`
	Repeatable bool   `toml:"repeatable"`
}

// Log configures logging.
type Log struct {
	Level    string `toml:"level"`
	JSONFile bool   `toml:"json_file"`
}

// Default returns the configuration used for any key a file leaves unset.
func Default() *Config {
	return &Config{
		Data: Data{
			Format:           "cartesian",
			BackgroundColumn: "background_log_overlap",
			MissingRVError:   1e4,
		},
		Model: Model{
			Shape:         "sphere",
			Propagator:    "epicyclic",
			MaxAge:        500,
			MinDispersion: 1e-3,
			MaxDispersion: 1e3,
			MinEigenvalue: 1e-6,
			MaxEigenvalue: 1e8,
		},
		EM: EM{
			MaxIterations:   100,
			Tolerance:       0.1,
			Patience:        3,
			UseBackground:   true,
			MemberThreshold: 1e-5,
		},
		MCMC: MCMC{
			Method:          "ensemble",
			WalkersPerParam: 2,
			MinSteps:        200,
			MaxSteps:        5000,
			CheckInterval:   100,
			TauFactor:       50,
			TauTolerance:    0.01,
			BurninFraction:  0.25,
			Stretch:         2,
			Representative:  "map",
		},
		Fit: Fit{
			MaxComponents: 20,
		},
		Run: Run{
			ResultsDir: "results",
			Workers:    runtime.GOMAXPROCS(0),
			Seed:       3,
			Repeatable: true,
		},
		Log: Log{
			Level:    "info",
			JSONFile: true,
		},
	}
}

// Load reads a configuration file over the defaults and validates it.
func Load(fn string) (*Config, error) {
	c := Default()
	md, err := toml.DecodeFile(fn, c)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "reading %s", fn), errors.ErrConfig)
	}
	if err := rejectUndecoded(md); err != nil {
		return nil, errors.Wrapf(err, "reading %s", fn)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", fn)
	}
	return c, nil
}

// Decode reads a configuration from r over the defaults.  It does not
// validate, so that command line overrides can be applied first.
func Decode(r io.Reader) (*Config, error) {
	c := Default()
	md, err := toml.NewDecoder(r).Decode(c)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding config"), errors.ErrConfig)
	}
	if err := rejectUndecoded(md); err != nil {
		return nil, err
	}
	return c, nil
}

func rejectUndecoded(md toml.MetaData) error {
	keys := md.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return errors.Configf("unknown config keys %v", names)
}

// Validate checks ranges and enumerations.  Errors are marked ErrConfig.
func (c *Config) Validate() error {
	if c.Data.File == "" {
		return errors.Configf("data.file is required")
	}
	if !oneOf(c.Data.Format, "cartesian", "astrometry") {
		return errors.Configf("data.format %q: want cartesian or astrometry", c.Data.Format)
	}
	if !positive(c.Data.MissingRVError) {
		return errors.Configf("data.missing_rv_error must be positive")
	}
	m := &c.Model
	if !oneOf(m.Shape, "sphere", "ellip", "axis", "free") {
		return errors.Configf("model.shape %q: want sphere, ellip, axis or free", m.Shape)
	}
	if !oneOf(m.Propagator, "epicyclic", "ballistic", "static") {
		return errors.Configf("model.propagator %q: want epicyclic, ballistic or static", m.Propagator)
	}
	if !positive(m.MaxAge) {
		return errors.Configf("model.max_age must be positive")
	}
	if !positive(m.MinDispersion) || !(m.MaxDispersion > m.MinDispersion) {
		return errors.Configf("model dispersion bounds [%g, %g] invalid",
			m.MinDispersion, m.MaxDispersion)
	}
	if !positive(m.MinEigenvalue) || !(m.MaxEigenvalue > m.MinEigenvalue) {
		return errors.Configf("model eigenvalue bounds [%g, %g] invalid",
			m.MinEigenvalue, m.MaxEigenvalue)
	}
	e := &c.EM
	if e.MaxIterations < 1 {
		return errors.Configf("em.max_iterations must be at least 1")
	}
	if !positive(e.Tolerance) {
		return errors.Configf("em.tolerance must be positive")
	}
	if e.Patience < 1 {
		return errors.Configf("em.patience must be at least 1")
	}
	if e.MemberThreshold < 0 || e.MemberThreshold >= 1 {
		return errors.Configf("em.member_threshold must be in [0, 1)")
	}
	if e.PruneThreshold < 0 {
		return errors.Configf("em.prune_threshold must not be negative")
	}
	s := &c.MCMC
	if !oneOf(s.Method, "ensemble", "nelder-mead") {
		return errors.Configf("mcmc.method %q: want ensemble or nelder-mead", s.Method)
	}
	if !oneOf(s.Representative, "map", "mean") {
		return errors.Configf("mcmc.representative %q: want map or mean", s.Representative)
	}
	switch {
	case s.WalkersPerParam < 1:
		return errors.Configf("mcmc.walkers_per_param must be at least 1")
	case s.MinSteps < 1, s.MaxSteps < s.MinSteps:
		return errors.Configf("mcmc steps: need 1 <= min_steps <= max_steps")
	case s.CheckInterval < 1:
		return errors.Configf("mcmc.check_interval must be at least 1")
	case !positive(s.TauFactor), !positive(s.TauTolerance):
		return errors.Configf("mcmc tau_factor and tau_tolerance must be positive")
	case s.BurninFraction < 0 || s.BurninFraction >= 1:
		return errors.Configf("mcmc.burnin_fraction must be in [0, 1)")
	case !(s.Stretch > 1):
		return errors.Configf("mcmc.stretch must be greater than 1")
	}
	if c.Fit.MaxComponents < 1 {
		return errors.Configf("fit.max_components must be at least 1")
	}
	if c.Fit.BICMargin < 0 {
		return errors.Configf("fit.bic_margin must not be negative")
	}
	if c.Run.Workers < 1 {
		return errors.Configf("run.workers must be at least 1")
	}
	if c.Run.ResultsDir == "" {
		return errors.Configf("run.results_dir is required")
	}
	return nil
}

func oneOf(s string, choices ...string) bool {
	for _, c := range choices {
		if s == c {
			return true
		}
	}
	return false
}

func positive(x float64) bool {
	return x > 0 && !math.IsInf(x, 1)
}
