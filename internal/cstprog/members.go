// Public domain.

package cstprog

import (
	"context"
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/checkpoint"
	"github.com/nishamrutha/chronostar/internal/em"
	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/fit"
	"github.com/nishamrutha/chronostar/internal/logger"
	"github.com/nishamrutha/chronostar/internal/membership"
	"github.com/nishamrutha/chronostar/internal/stars"
)

const (
	// BackgroundHeader is the membership column of the field.
	BackgroundHeader = "background"
	// GroupHeader is the column of the most probable group of each star.
	GroupHeader = "group"
)

func newMembersCmd(g *globalFlags) *cobra.Command {
	var resultFile, outFile string
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Write membership probabilities of a stored fit",
		Long: `members evaluates the components of a stored fit against the star table
of the configuration and writes one row of membership probabilities per
star.  The table need not be the one fitted.`,
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
			if resultFile == "" {
				resultFile = filepath.Join(cfg.Run.ResultsDir, fit.FinalFile)
			}
			if outFile == "" {
				outFile = filepath.Join(cfg.Run.ResultsDir, "members.csv")
			}
			r, err := checkpoint.ReadFile(resultFile)
			if err != nil {
				return err
			}
			tb, err := env.readTable(cfg.Data.File)
			if err != nil {
				return err
			}
			memb, err := memberships(cmd.Context(), env, r, tb)
			if err != nil {
				return err
			}
			if err := writeFile(outFile, func(w io.Writer) error {
				return writeMembers(w, tb, memb, len(r.Vectors))
			}); err != nil {
				return err
			}
			env.log.Info("memberships written", zap.String(logger.FieldFile, outFile))
			return nil
		},
	}
	cmd.Flags().StringVar(&resultFile, "result", "", "stored fit, default results_dir/final.gob")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output CSV, default results_dir/members.csv")
	return cmd
}

// memberships runs one E-step of the components of r over tb.
func memberships(ctx context.Context, env *runEnv, r *em.Result, tb *stars.Table) (*mat.Dense, error) {
	if r.Shape != env.par.Shape() {
		return nil, errors.Configf("result of shape %s, configured shape %s", r.Shape, env.par.Shape())
	}
	comps, err := r.Components()
	if err != nil {
		return nil, err
	}
	eng, err := env.engine(tb)
	if err != nil {
		return nil, err
	}
	lnols, st, err := eng.LogOverlaps(ctx, comps, r.Weights)
	if err != nil {
		return nil, err
	}
	memb, uniform := membership.Normalize(lnols)
	if st.Instabilities > 0 || uniform > 0 {
		env.log.Warn("degenerate overlaps",
			zap.Int(logger.FieldInstabilities, st.Instabilities),
			zap.Int(logger.FieldUniformRows, uniform))
	}
	return memb, nil
}

// writeMembers writes a header of source_id, the component labels,
// BackgroundHeader for a background column and GroupHeader, then a row per
// star ending with the header of its highest membership.
func writeMembers(w io.Writer, tb *stars.Table, memb *mat.Dense, k int) error {
	_, cols := memb.Dims()
	cw := csv.NewWriter(w)
	header := []string{"source_id"}
	for j := 0; j < k; j++ {
		header = append(header, fit.Label(j))
	}
	if cols > k {
		header = append(header, BackgroundHeader)
	}
	header = append(header, GroupHeader)
	if err := cw.Write(header); err != nil {
		return err
	}
	best := membership.Assign(memb)
	row := make([]string, len(header))
	for i := range tb.Stars {
		row[0] = tb.Stars[i].ID
		for j := 0; j < cols; j++ {
			row[j+1] = strconv.FormatFloat(memb.At(i, j), 'g', 6, 64)
		}
		row[cols+1] = header[best[i]+1]
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
