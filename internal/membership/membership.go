// Public domain.

// Package membership computes the probabilities that each star belongs to
// each component of a mixture, or to the background.
//
// The E-step of a fit is two calls.  LogOverlaps builds the N by K+1 matrix
// of weighted log overlaps, ln w_k + ln ∫ star·component, with the
// background term, when there is one, in the last column.  Normalize turns
// each row into probabilities by log-sum-exp.
package membership

import (
	"context"
	"math"

	metrics "github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/component"
	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/logger"
	"github.com/nishamrutha/chronostar/internal/orbit"
	"github.com/nishamrutha/chronostar/internal/overlap"
	"github.com/nishamrutha/chronostar/internal/stars"
	"github.com/nishamrutha/chronostar/internal/workpool"
)

// Metric names.
const (
	MetricEvaluations   = "overlap.evaluations"
	MetricInstabilities = "overlap.instabilities"
)

// Config holds the collaborators of an Engine.
type Config struct {
	Propagator orbit.Propagator
	Background stars.Background // nil disables the background term
	Pool       *workpool.Pool   // nil evaluates on the calling goroutine
	Logger     *zap.Logger
	Metrics    metrics.Registry // nil disables metrics
}

// Stats counts the anomalies of one evaluation.
type Stats struct {
	Evaluations   int // star component overlaps evaluated
	Instabilities int // overlaps set to -Inf for a non positive-definite covariance sum
	Unpropagated  int // components that could not be propagated, whole column -Inf
	UniformRows   int // stars with no finite overlap, given uniform probabilities
}

// Engine evaluates memberships of one star table.
type Engine struct {
	tb   *stars.Table
	cfg  Config
	log  *zap.Logger
	bg   []float64
	eval []overlap.Evaluator // one per worker
}

// NewEngine prepares an engine for tb.  Background log overlaps are
// computed here, once for the life of the engine.
func NewEngine(tb *stars.Table, cfg Config) (*Engine, error) {
	if cfg.Propagator == nil {
		return nil, errors.New("membership: no propagator")
	}
	e := &Engine{
		tb:  tb,
		cfg: cfg,
		log: logger.Nop(cfg.Logger).Named("membership"),
	}
	workers := 1
	if cfg.Pool != nil {
		workers = cfg.Pool.Workers()
	}
	e.eval = make([]overlap.Evaluator, workers)
	if cfg.Background != nil {
		e.bg = make([]float64, tb.Len())
		errs := make([]error, tb.Len())
		e.do(tb.Len(), func(_, i int) {
			e.bg[i], errs[i] = cfg.Background.LogOverlap(&tb.Stars[i])
		})
		for _, err := range errs {
			if err != nil {
				return nil, errors.Wrap(err, "background")
			}
		}
	}
	return e, nil
}

func (e *Engine) do(n int, fn func(w, i int)) {
	if e.cfg.Pool == nil {
		for i := 0; i < n; i++ {
			fn(0, i)
		}
		return
	}
	e.cfg.Pool.Do(n, fn)
}

// HasBackground reports whether matrices of e have a background column.
func (e *Engine) HasBackground() bool { return e.bg != nil }

// Table returns the star table of e.
func (e *Engine) Table() *stars.Table { return e.tb }

// Propagator returns the propagator components are evaluated with.
func (e *Engine) Propagator() orbit.Propagator { return e.cfg.Propagator }

// Background returns the background log overlaps, nil without a
// background.
func (e *Engine) Background() []float64 { return e.bg }

// LogOverlaps returns the N by K(+1) matrix of weighted log overlaps of
// the stars with comps, weights w_k, and the background.
//
// K = 0 is allowed with a background, giving every star to the background.
// The result depends only on its arguments: calling it twice returns equal
// matrices.
func (e *Engine) LogOverlaps(ctx context.Context, comps []*component.Component, weights []float64) (*mat.Dense, Stats, error) {
	var st Stats
	k := len(comps)
	if len(weights) != k {
		return nil, st, errors.Newf("membership: %d weights for %d components", len(weights), k)
	}
	cols := k
	if e.bg != nil {
		cols++
	}
	if cols == 0 {
		return nil, st, errors.Configf("no components and no background")
	}
	n := e.tb.Len()
	if err := ctx.Err(); err != nil {
		return nil, st, err
	}

	// propagate every component to every epoch once, before the parallel loop
	type proj struct {
		mean []float64
		cov  *mat.SymDense
	}
	epochs := e.tb.Epochs()
	projs := make([]map[float64]proj, k)
	lnw := make([]float64, k)
	for c, comp := range comps {
		lnw[c] = math.Log(weights[c])
		projs[c] = make(map[float64]proj, len(epochs))
		for _, ep := range epochs {
			m, cv, err := comp.MeanCovAt(e.cfg.Propagator, ep)
			if err != nil {
				e.log.Warn("component not propagated",
					zap.Int(logger.FieldComponent, c), zap.Error(err))
				st.Unpropagated++
				projs[c] = nil
				break
			}
			projs[c][ep] = proj{m, cv}
		}
	}

	lnols := mat.NewDense(n, cols, nil)
	unstable := make([]int, len(e.eval))
	means, covs := e.tb.Means(), e.tb.Covs()
	e.do(n, func(w, i int) {
		ev := &e.eval[w]
		s := &e.tb.Stars[i]
		for c := 0; c < k; c++ {
			if projs[c] == nil {
				lnols.Set(i, c, math.Inf(-1))
				continue
			}
			p := projs[c][s.Epoch]
			lo, err := ev.LogOverlap(means[i], covs[i], p.mean, p.cov)
			if err != nil {
				// dimensions were validated at load, so this is instability
				unstable[w]++
				lo = math.Inf(-1)
			}
			lnols.Set(i, c, lo+lnw[c])
		}
		if e.bg != nil {
			lnols.Set(i, k, e.bg[i])
		}
	})
	st.Evaluations = n * k
	for _, u := range unstable {
		st.Instabilities += u
	}
	if st.Instabilities > 0 {
		e.log.Warn("numerically unstable overlaps",
			zap.Int(logger.FieldInstabilities, st.Instabilities))
	}
	if e.cfg.Metrics != nil {
		metrics.GetOrRegisterCounter(MetricEvaluations, e.cfg.Metrics).Inc(int64(st.Evaluations))
		metrics.GetOrRegisterCounter(MetricInstabilities, e.cfg.Metrics).Inc(int64(st.Instabilities))
	}
	if err := ctx.Err(); err != nil {
		return nil, st, err
	}
	return lnols, st, nil
}

// Normalize converts log overlaps to membership probabilities, each row
// divided by its log-sum-exp.  A row in which every entry is -Inf gets
// uniform probabilities; uniform counts such rows.
func Normalize(lnols *mat.Dense) (memb *mat.Dense, uniform int) {
	n, cols := lnols.Dims()
	memb = mat.NewDense(n, cols, nil)
	row := make([]float64, cols)
	for i := 0; i < n; i++ {
		mat.Row(row, i, lnols)
		lse := floats.LogSumExp(row)
		if math.IsInf(lse, -1) || math.IsNaN(lse) {
			uniform++
			for j := range row {
				row[j] = 1 / float64(cols)
			}
		} else {
			for j, l := range row {
				row[j] = math.Exp(l - lse)
			}
		}
		memb.SetRow(i, row)
	}
	return memb, uniform
}

// TotalLogLikelihood returns Σ_i ln Σ_j exp(lnols_ij), the log likelihood
// of the mixture.  Rows with no finite entry are left out.
func TotalLogLikelihood(lnols *mat.Dense) float64 {
	n, cols := lnols.Dims()
	row := make([]float64, cols)
	total := 0.
	for i := 0; i < n; i++ {
		mat.Row(row, i, lnols)
		lse := floats.LogSumExp(row)
		if math.IsInf(lse, -1) || math.IsNaN(lse) {
			continue
		}
		total += lse
	}
	return total
}

// ColumnSums returns the sums of the first k columns of memb, the expected
// star count of each component.
func ColumnSums(memb *mat.Dense, k int) []float64 {
	n, _ := memb.Dims()
	sums := make([]float64, k)
	for j := 0; j < k; j++ {
		for i := 0; i < n; i++ {
			sums[j] += memb.At(i, j)
		}
	}
	return sums
}

// Column returns a copy of column j of memb.
func Column(memb *mat.Dense, j int) []float64 {
	n, _ := memb.Dims()
	return mat.Col(make([]float64, n), j, memb)
}

// Members returns the indexes of stars whose membership in column j is at
// least threshold.
func Members(memb *mat.Dense, j int, threshold float64) []int {
	n, _ := memb.Dims()
	var m []int
	for i := 0; i < n; i++ {
		if memb.At(i, j) >= threshold {
			m = append(m, i)
		}
	}
	return m
}

// Assign returns, for each star, the column of its highest membership.
func Assign(memb *mat.Dense) []int {
	n, cols := memb.Dims()
	a := make([]int, n)
	row := make([]float64, cols)
	for i := range a {
		mat.Row(row, i, memb)
		a[i] = floats.MaxIdx(row)
	}
	return a
}
