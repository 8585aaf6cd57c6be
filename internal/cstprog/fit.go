// Public domain.

package cstprog

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nishamrutha/chronostar/internal/checkpoint"
	"github.com/nishamrutha/chronostar/internal/em"
	"github.com/nishamrutha/chronostar/internal/fit"
	"github.com/nishamrutha/chronostar/internal/logger"
)

func newFitCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "fit",
		Short: "Fit components and search the number of components",
		Long: `fit reads the star table, fits one component, then repeatedly splits each
component in turn and keeps the best split while it lowers the BIC.  Every
fit is stored under the results directory, so an interrupted search run
again with the same configuration picks up the stored fits.  With
fit.init_file set, the search continues from that stored result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			env, err := newRunEnv(cfg, g.verbosity)
			if err != nil {
				return err
			}
			defer env.close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runFit(ctx, env, cmd.OutOrStdout())
		},
	}
}

func runFit(ctx context.Context, env *runEnv, out io.Writer) error {
	cfg := env.cfg
	tb, err := env.readTable(cfg.Data.File)
	if err != nil {
		return err
	}
	eng, err := env.engine(tb)
	if err != nil {
		return err
	}
	o, err := fit.New(fit.Config{
		MaxComponents: cfg.Fit.MaxComponents,
		BICMargin:     cfg.Fit.BICMargin,
		ResultsDir:    cfg.Run.ResultsDir,
	}, env.emConfig(), em.Env{
		Engine:  eng,
		Sampler: env.sampler(),
		Logger:  env.log,
		Metrics: env.metrics,
	}, env.par)
	if err != nil {
		return err
	}
	var s *fit.Search
	if fn := cfg.Fit.InitFile; fn != "" {
		r, rerr := checkpoint.ReadFile(fn)
		if rerr != nil {
			return rerr
		}
		env.log.Info("resuming", zap.String(logger.FieldFile, fn), zap.Int(logger.FieldNComps, len(r.Vectors)))
		s, err = o.Resume(ctx, r)
	} else {
		s, err = o.Fit(ctx, nil)
	}
	if s != nil && s.Best != nil {
		if rerr := report(out, s, env); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// report writes a table of the fitted groups of the best fit of s.
func report(out io.Writer, s *fit.Search, env *runEnv) error {
	sum, err := fit.Summarize(s, env.prop)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "best fit %s: %d components, %d stars, lnL %.2f, BIC %.2f\n",
		sum.Label, sum.Components, sum.Stars, sum.LnLike, sum.BIC)
	w := table.NewWriter()
	w.SetOutputMirror(out)
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"group", "members", "age", "age 16%", "age 84%", "X", "Y", "Z", "U", "V", "W", "sampler"})
	for j, gs := range sum.Groups {
		row := table.Row{fit.Label(j), f1(gs.Members), f1(gs.Age), f1(gs.AgeLo), f1(gs.AgeHi)}
		m := gs.Mean
		if m == nil {
			m = gs.BirthMean
		}
		for _, x := range m {
			row = append(row, f1(x))
		}
		if gs.LowConfidence {
			row = append(row, "low confidence")
		} else {
			row = append(row, "converged")
		}
		w.AppendRow(row)
	}
	if s.Best.Background {
		w.AppendFooter(table.Row{"field", f1(sum.Background)})
	}
	w.Render()
	return nil
}

func f1(x float64) string { return fmt.Sprintf("%.1f", x) }
