// Public domain.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nishamrutha/chronostar/internal/errors"
)

func TestDecodeOverridesDefaults(t *testing.T) {
	c, err := Decode(strings.NewReader(`
[data]
file = "stars.csv"

[model]
shape = "ellip"
max_age = 80.0

[mcmc]
method = "nelder-mead"
max_steps = 1000

[run]
seed = 42
`))
	require.NoError(t, err)
	assert.Equal(t, "stars.csv", c.Data.File)
	assert.Equal(t, "ellip", c.Model.Shape)
	assert.Equal(t, 80.0, c.Model.MaxAge)
	assert.Equal(t, "nelder-mead", c.MCMC.Method)
	assert.Equal(t, 1000, c.MCMC.MaxSteps)
	assert.Equal(t, uint64(42), c.Run.Seed)

	// untouched keys keep their defaults
	d := Default()
	assert.Equal(t, d.Model.Propagator, c.Model.Propagator)
	assert.Equal(t, d.EM.Tolerance, c.EM.Tolerance)
	assert.Equal(t, d.MCMC.MinSteps, c.MCMC.MinSteps)
	assert.True(t, c.Run.Repeatable)
	require.NoError(t, c.Validate())
}

func TestUnknownKeysRejected(t *testing.T) {
	_, err := Decode(strings.NewReader(`
[em]
max_iterations = 10
max_iter = 10
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "em.max_iter")
}

func TestSyntaxErrorIsConfigError(t *testing.T) {
	_, err := Decode(strings.NewReader("[em\nmax_iterations = 1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestLoad(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "chronostar.toml")
	require.NoError(t, os.WriteFile(fn, []byte(`
[data]
file = "s.csv"
[fit]
max_components = 4
`), 0o644))
	c, err := Load(fn)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Fit.MaxComponents)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no data file", func(c *Config) { c.Data.File = "" }},
		{"format", func(c *Config) { c.Data.Format = "votable" }},
		{"shape", func(c *Config) { c.Model.Shape = "blob" }},
		{"propagator", func(c *Config) { c.Model.Propagator = "nbody" }},
		{"max age", func(c *Config) { c.Model.MaxAge = 0 }},
		{"dispersion bounds", func(c *Config) { c.Model.MaxDispersion = c.Model.MinDispersion }},
		{"eigenvalue bounds", func(c *Config) { c.Model.MinEigenvalue = -1 }},
		{"iterations", func(c *Config) { c.EM.MaxIterations = 0 }},
		{"patience", func(c *Config) { c.EM.Patience = 0 }},
		{"member threshold", func(c *Config) { c.EM.MemberThreshold = 1 }},
		{"method", func(c *Config) { c.MCMC.Method = "hmc" }},
		{"representative", func(c *Config) { c.MCMC.Representative = "median" }},
		{"steps", func(c *Config) { c.MCMC.MaxSteps = c.MCMC.MinSteps - 1 }},
		{"burnin", func(c *Config) { c.MCMC.BurninFraction = 1 }},
		{"stretch", func(c *Config) { c.MCMC.Stretch = 1 }},
		{"components", func(c *Config) { c.Fit.MaxComponents = 0 }},
		{"workers", func(c *Config) { c.Run.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Data.File = "stars.csv"
			require.NoError(t, c.Validate())
			tt.modify(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfig))
		})
	}
}
