// Public domain.

package astrometry

import (
	"io"
	"math"
	"os"

	"github.com/soniakeys/unit"

	"github.com/nishamrutha/chronostar/internal/errors"
	"github.com/nishamrutha/chronostar/internal/stars"
)

// Gaia column names, in vector order.
var (
	Columns      = []string{"ra", "dec", "parallax", "pmra", "pmdec", "radial_velocity"}
	ErrorColumns = []string{"ra_error", "dec_error", "parallax_error", "pmra_error", "pmdec_error", "radial_velocity_error"}
)

// masPerDeg converts the Gaia ra and dec errors, mas, to degrees.
const masPerDeg = 3.6e6

// Options control reading an astrometric table.
type Options struct {
	MissingRVError   float64 // km/s, error given to stars without radial velocity
	BackgroundColumn string
	Frame            *Frame // nil means Galactic
}

// ReadCSV reads a table of Gaia astrometry and converts every row to a
// LSR cartesian star.
//
// Required columns are ra, dec, parallax, pmra, pmdec and their errors.
// Correlations ra_dec_corr ... pmra_pmdec_corr are optional.  A missing or
// empty radial_velocity is replaced by 0 with error opt.MissingRVError.
func ReadCSV(rd io.Reader, opt Options) (*stars.Table, error) {
	f := opt.Frame
	if f == nil {
		f = &Galactic
	}
	if !(opt.MissingRVError > 0) {
		return nil, errors.Configf("missing radial velocity error %g not positive", opt.MissingRVError)
	}
	var ss []stars.Star
	err := stars.ScanCSV(rd, func(r *stars.Record) error {
		s, err := row(r, f, opt)
		if err != nil {
			return err
		}
		ss = append(ss, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ss) == 0 {
		return nil, errors.Dataf("no stars")
	}
	return stars.NewTable(ss)
}

// ReadFile reads an astrometric table from a file.
func ReadFile(fn string, opt Options) (*stars.Table, error) {
	fl, err := os.Open(fn)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "reading %s", fn), errors.ErrData)
	}
	defer fl.Close()
	t, err := ReadCSV(fl, opt)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", fn)
	}
	return t, nil
}

func row(r *stars.Record, f *Frame, opt Options) (stars.Star, error) {
	s := stars.Star{ID: stars.ID(r)}
	x, err := r.Floats(Columns[:5])
	if err != nil {
		return s, err
	}
	sd, err := r.Floats(ErrorColumns[:5])
	if err != nil {
		return s, err
	}
	rv, hasRV, err := r.OptFloat(Columns[5], 0)
	if err != nil {
		return s, err
	}
	rvErr := opt.MissingRVError
	if hasRV {
		if rvErr, err = r.Float(ErrorColumns[5]); err != nil {
			return s, err
		}
	}
	x = append(x, rv)
	sd = append(sd, rvErr)
	for i, e := range sd {
		if !(e > 0) {
			return s, errors.Dataf("row %d: column %s: error %g not positive", r.Row, ErrorColumns[i], e)
		}
	}
	dec := unit.AngleFromDeg(x[1])
	sd[0] /= masPerDeg * math.Cos(dec.Rad())
	sd[1] /= masPerDeg

	corr := make([]float64, 0, 15)
	for i := 0; i < 6; i++ {
		for j := i + 1; j < 6; j++ {
			c := 0.
			if j < 5 {
				name := Columns[i] + "_" + Columns[j] + "_corr"
				if c, _, err = r.OptFloat(name, 0); err != nil {
					return s, err
				}
			}
			corr = append(corr, c)
		}
	}
	a := Astrometry{
		RA:       unit.AngleFromDeg(x[0]),
		Dec:      dec,
		Parallax: x[2],
		PMRA:     x[3],
		PMDec:    x[4],
		RV:       rv,
	}
	if s.Mean, s.Cov, err = Convert(a, stars.CovFromErrors(sd, corr), f); err != nil {
		return s, errors.Wrapf(err, "row %d", r.Row)
	}
	if s.Epoch, _, err = r.OptFloat("epoch", 0); err != nil {
		return s, err
	}
	if opt.BackgroundColumn != "" {
		if s.BgLnOverlap, s.HasBg, err = r.OptFloat(opt.BackgroundColumn, 0); err != nil {
			return s, err
		}
	}
	return s, nil
}
