// Public domain.

package cstprog

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/mcc"
	"github.com/nishamrutha/chronostar/internal/stars"
)

// TruthLabelHeader is the group column of a truth table.  Its values are
// group indexes, negative for field stars.
const TruthLabelHeader = "label"

type scoreFlags struct {
	members   string
	truth     string
	component string
	group     int
	threshold float64
}

func newScoreCmd() *cobra.Command {
	f := &scoreFlags{}
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score memberships of a component against known groups",
		Long: `score compares the membership probabilities of one fitted component, as
written by members, with the true group of each star, as written by synth.
Stars are predicted members at or above the threshold probability.  The
confusion matrix and its Matthews correlation coefficient are written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := score(f)
			if err != nil {
				return err
			}
			return c.Report(cmd.OutOrStdout(), f.threshold, precision(f.threshold))
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.members, "members", "members.csv", "membership CSV")
	fl.StringVar(&f.truth, "truth", "truth.csv", "truth CSV of source_id and label")
	fl.StringVar(&f.component, "component", "A", "fitted component label")
	fl.IntVar(&f.group, "group", 0, "true group index")
	fl.Float64Var(&f.threshold, "threshold", 0.5, "membership probability threshold")
	return cmd
}

func score(f *scoreFlags) (mcc.Confusion, error) {
	truth := map[string]int{}
	err := scanFile(f.truth, func(r *stars.Record) error {
		l, err := r.Float(TruthLabelHeader)
		if err != nil {
			return err
		}
		truth[stars.ID(r)] = int(l)
		return nil
	})
	if err != nil {
		return mcc.Confusion{}, err
	}
	var scores []float64
	var actual []bool
	err = scanFile(f.members, func(r *stars.Record) error {
		id := stars.ID(r)
		l, ok := truth[id]
		if !ok {
			return errors.Dataf("row %d: star %s not in %s", r.Row, id, f.truth)
		}
		p, err := r.Float(f.component)
		if err != nil {
			return err
		}
		scores = append(scores, p)
		actual = append(actual, l == f.group)
		return nil
	})
	if err != nil {
		return mcc.Confusion{}, err
	}
	return mcc.Classify(scores, actual, f.threshold), nil
}

func scanFile(fn string, fields func(*stars.Record) error) error {
	f, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	return errors.Wrapf(stars.ScanCSV(f, fields), "reading %s", fn)
}

// precision returns the number of decimals needed to show x, at most 6.
func precision(x float64) int {
	s := strconv.FormatFloat(x, 'f', -1, 64)
	for i, c := range s {
		if c == '.' {
			if p := len(s) - i - 1; p < 6 {
				return p
			}
			return 6
		}
	}
	return 0
}
