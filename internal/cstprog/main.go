// Public domain.

// Package cstprog is the chronostar program.
package cstprog

import (
	"fmt"
	"io"
	"os"

	"github.com/soniakeys/exit"
	"github.com/spf13/cobra"
)

const versionString = "chronostar version 0.1 Go source."
const copyrightString = "Public domain."

// Main runs the program with the command line of the process.
func Main() {
	defer exit.Handler()
	if err := NewRootCmd(os.Stdout).Execute(); err != nil {
		exit.Log(err)
	}
}

// flags common to all commands
type globalFlags struct {
	config     string
	verbosity  int
	dataFile   string
	resultsDir string
	workers    int
}

// NewRootCmd returns the command tree, writing reports to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "chronostar",
		Short: "Kinematic traceback of stellar associations",
		Long: `chronostar fits a mixture of Gaussian components, each a stellar
association born at some age and carried forward by galactic orbits, plus a
field background, to a table of stars in 6D phase space.

Commands:
  fit      fit components and search the number of components by BIC
  members  membership probabilities of a star table for a stored fit
  score    Matthews correlation coefficient of memberships against truth
  synth    write a synthetic star table drawn from known components
  version  display version and copyright`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	pf := root.PersistentFlags()
	pf.StringVarP(&g.config, "config", "c", "", "TOML configuration file")
	pf.CountVarP(&g.verbosity, "verbose", "v", "increase log verbosity (-v, -vv)")
	pf.StringVar(&g.dataFile, "data", "", "star table, overrides data.file")
	pf.StringVar(&g.resultsDir, "results", "", "results directory, overrides run.results_dir")
	pf.IntVar(&g.workers, "workers", 0, "worker goroutines, overrides run.workers")

	root.AddCommand(
		newFitCmd(g),
		newMembersCmd(g),
		newScoreCmd(),
		newSynthCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Display version and copyright",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), versionString)
				fmt.Fprintln(cmd.OutOrStdout(), copyrightString)
			},
		},
	)
	return root
}
