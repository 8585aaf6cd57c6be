// Public domain.

package fit

import (
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nishamrutha/chronostar/internal/component"
	"github.com/nishamrutha/chronostar/internal/em"
	"github.com/nishamrutha/chronostar/internal/orbit"
)

// Summary is the human readable digest of a search.
type Summary struct {
	Label      string         `yaml:"label"`
	Shape      string         `yaml:"shape"`
	Components int            `yaml:"components"`
	Stars      int            `yaml:"stars"`
	LnLike     float64        `yaml:"lnlike"`
	BIC        float64        `yaml:"bic"`
	Converged  bool           `yaml:"converged"`
	Iterations int            `yaml:"iterations"`
	Background float64        `yaml:"background_members,omitempty"`
	Groups     []GroupSummary `yaml:"groups"`
	Runs       []RunSummary   `yaml:"runs,omitempty"`
}

// GroupSummary describes one fitted component.
type GroupSummary struct {
	Members       float64   `yaml:"members"`
	Age           float64   `yaml:"age"`
	AgeLo         float64   `yaml:"age_16"`
	AgeHi         float64   `yaml:"age_84"`
	LowConfidence bool      `yaml:"low_confidence,omitempty"` // sampler stopped before convergence
	BirthMean     []float64 `yaml:"birth_mean,flow"`
	Mean          []float64 `yaml:"current_mean,flow,omitempty"`
	Dispersions   []float64 `yaml:"dispersions,flow"`
}

// RunSummary is one line of the search history.
type RunSummary struct {
	K         int     `yaml:"k"`
	Label     string  `yaml:"label"`
	BIC       float64 `yaml:"bic"`
	Converged bool    `yaml:"converged"`
	Loaded    bool    `yaml:"loaded,omitempty"`
}

// Summarize digests the best fit of s.  Current means are computed with
// prop when it is not nil.
func Summarize(s *Search, prop orbit.Propagator) (*Summary, error) {
	sum, err := SummarizeResult(s.Best, prop)
	if err != nil {
		return nil, err
	}
	sum.Label = s.Label
	for _, r := range s.Runs {
		sum.Runs = append(sum.Runs, RunSummary{
			K:         r.K,
			Label:     r.Label,
			BIC:       r.Result.BIC,
			Converged: r.Result.Converged,
			Loaded:    r.Loaded,
		})
	}
	return sum, nil
}

// SummarizeResult digests one fit.
func SummarizeResult(r *em.Result, prop orbit.Propagator) (*Summary, error) {
	comps, err := r.Components()
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		Shape:      r.Shape,
		Components: len(comps),
		Stars:      r.NStars,
		LnLike:     r.LnLike,
		BIC:        r.BIC,
		Converged:  r.Converged,
		Iterations: r.Iterations,
	}
	if r.Background {
		n, cols := r.Memberships.Dims()
		for i := 0; i < n; i++ {
			sum.Background += r.Memberships.At(i, cols-1)
		}
	}
	for j, c := range comps {
		sum.Groups = append(sum.Groups, group(r, j, c, prop))
	}
	return sum, nil
}

func group(r *em.Result, j int, c *component.Component, prop orbit.Propagator) GroupSummary {
	g := GroupSummary{BirthMean: append([]float64{}, c.Mean()...)}
	g.Age, g.AgeLo, g.AgeHi = r.Age(j)
	if j < len(r.Weights) {
		g.Members = r.Weights[j]
	}
	g.LowConfidence = j >= len(r.SamplerConverged) || !r.SamplerConverged[j]
	for _, ld := range c.Parametrization().LnDispersions(c.Vector()) {
		g.Dispersions = append(g.Dispersions, math.Exp(ld))
	}
	if prop != nil {
		if m, _, err := c.MeanCovAt(prop, 0); err == nil {
			g.Mean = append([]float64{}, m...)
		}
	}
	return g
}

// WriteFile writes s as YAML.
func (s *Summary) WriteFile(fn string) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(fn, b, 0o644)
}
