// Public domain.

package cstprog

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/nishamrutha/chronostar/internal/component"
	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/orbit"
	"github.com/nishamrutha/chronostar/internal/stars"
	"github.com/nishamrutha/chronostar/internal/synthdata"
)

// SynthSpec is the TOML description of a synthetic data set.
//
//	shape = "sphere"
//	propagator = "epicyclic"
//	seed = 1
//
//	[[group]]
//	vector = [0, 0, 0, 0, 0, 0, 1.6, 0, 20]
//	n = 50
//
//	[field]
//	n = 200
//	lo = [-500, -500, -500, -50, -50, -50]
//	hi = [500, 500, 500, 50, 50, 50]
type SynthSpec struct {
	Shape      string       `toml:"shape"`
	Propagator string       `toml:"propagator"`
	Seed       uint64       `toml:"seed"`
	Errors     []float64    `toml:"errors"`
	Groups     []SynthGroup `toml:"group"`
	Field      *SynthField  `toml:"field"`
}

// SynthGroup is one component, given by its parameter vector.
type SynthGroup struct {
	Vector []float64 `toml:"vector"`
	N      int       `toml:"n"`
}

// SynthField is a uniform field population.
type SynthField struct {
	N  int       `toml:"n"`
	Lo []float64 `toml:"lo"`
	Hi []float64 `toml:"hi"`
}

// DecodeSynthSpec reads a spec and fills defaults.
func DecodeSynthSpec(rd io.Reader) (*SynthSpec, error) {
	s := &SynthSpec{Shape: component.Sphere, Propagator: "epicyclic"}
	md, err := toml.NewDecoder(rd).Decode(s)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding synth spec"), errors.ErrConfig)
	}
	if u := md.Undecoded(); len(u) > 0 {
		return nil, errors.Configf("unknown synth spec keys %v", u)
	}
	if len(s.Groups) == 0 && (s.Field == nil || s.Field.N == 0) {
		return nil, errors.Configf("synth spec has no stars")
	}
	return s, nil
}

// Generate draws the stars of s.  With a field, every star carries the
// log density of the field box as its background overlap.
func (s *SynthSpec) Generate() ([]stars.Star, []int, error) {
	par, err := component.Lookup(s.Shape)
	if err != nil {
		return nil, nil, err
	}
	prop, err := orbit.New(s.Propagator, 0)
	if err != nil {
		return nil, nil, err
	}
	opt := synthdata.Options{Propagator: prop, Errors: s.Errors, Seed: s.Seed}
	groups := make([]synthdata.Group, len(s.Groups))
	for i, g := range s.Groups {
		c, err := component.New(par, g.Vector)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "group %d", i)
		}
		groups[i] = synthdata.Group{Component: c, N: g.N}
	}
	lnBg := 0.
	if f := s.Field; f != nil && f.N > 0 {
		opt.Field = &synthdata.Field{N: f.N, Lo: f.Lo, Hi: f.Hi}
		for i := range f.Lo {
			if i >= len(f.Hi) || !(f.Hi[i] > f.Lo[i]) {
				return nil, nil, errors.Configf("field dimension %d empty", i)
			}
			lnBg -= math.Log(f.Hi[i] - f.Lo[i])
		}
	}
	ss, labels, err := synthdata.Generate(groups, opt)
	if err != nil {
		return nil, nil, err
	}
	if opt.Field != nil {
		for i := range ss {
			ss[i].BgLnOverlap, ss[i].HasBg = lnBg, true
		}
	}
	return ss, labels, nil
}

func newSynthCmd() *cobra.Command {
	var outFile, truthFile, bgColumn string
	cmd := &cobra.Command{
		Use:   "synth <spec.toml>",
		Short: "Write a synthetic star table",
		Long: `synth draws stars from the components and field described in a TOML
file, adds measurement errors and writes a cartesian star table, with a
background column when a field is given, and a truth table of the group
index of each star.  Field stars have label -1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			spec, err := DecodeSynthSpec(f)
			f.Close()
			if err != nil {
				return errors.Wrapf(err, "reading %s", args[0])
			}
			ss, labels, err := spec.Generate()
			if err != nil {
				return err
			}
			if err := writeFile(outFile, func(w io.Writer) error {
				return stars.WriteCSV(w, ss, bgColumn)
			}); err != nil {
				return err
			}
			if err := writeFile(truthFile, func(w io.Writer) error {
				return writeTruth(w, ss, labels)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d stars written to %s\n", len(ss), outFile)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&outFile, "out", "o", "stars.csv", "star table")
	fl.StringVar(&truthFile, "truth", "truth.csv", "truth table")
	fl.StringVar(&bgColumn, "background-column", "background_log_overlap", "background column name")
	return cmd
}

func writeTruth(w io.Writer, ss []stars.Star, labels []int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"source_id", TruthLabelHeader}); err != nil {
		return err
	}
	for i := range ss {
		if err := cw.Write([]string{ss[i].ID, strconv.Itoa(labels[i])}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeFile(fn string, write func(io.Writer) error) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", fn)
	}
	return f.Close()
}
