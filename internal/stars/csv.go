// Public domain.

package stars

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/nishamrutha/chronostar/internal/errors"
)

// Record is one data row of a CSV table, read by column name.
type Record struct {
	Row    int // 1 based data row number, the header is row 0
	index  map[string]int
	fields []string
}

// Has reports whether the table has the named column.
func (r *Record) Has(col string) bool {
	_, ok := r.index[col]
	return ok
}

// String returns the named field, or "" if the table lacks the column.
func (r *Record) String(col string) string {
	if i, ok := r.index[col]; ok && i < len(r.fields) {
		return strings.TrimSpace(r.fields[i])
	}
	return ""
}

// Float parses the named column.  A missing column or an unparsable or
// non-finite value is an ErrData error.
func (r *Record) Float(col string) (float64, error) {
	if !r.Has(col) {
		return 0, errors.Dataf("row %d: missing column %s", r.Row, col)
	}
	s := r.String(col)
	x, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, errors.Dataf("row %d: column %s: bad value %q", r.Row, col, s)
	}
	return x, nil
}

// OptFloat parses the named column, returning def if the column is absent
// or the field empty.  ok reports whether a value was present.
func (r *Record) OptFloat(col string, def float64) (x float64, ok bool, err error) {
	if r.String(col) == "" {
		return def, false, nil
	}
	x, err = r.Float(col)
	return x, err == nil, err
}

// Floats parses a list of required columns.
func (r *Record) Floats(cols []string) ([]float64, error) {
	x := make([]float64, len(cols))
	for i, c := range cols {
		var err error
		if x[i], err = r.Float(c); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// ScanCSV reads a CSV table with a header line, calling fn for each data
// row.  Blank lines are skipped; lines starting with # are comments.
func ScanCSV(rd io.Reader, fn func(*Record) error) error {
	cr := csv.NewReader(rd)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err == io.EOF {
		return errors.Dataf("empty table")
	}
	if err != nil {
		return errors.Mark(errors.Wrap(err, "header"), errors.ErrData)
	}
	rec := &Record{index: make(map[string]int, len(header))}
	for i, h := range header {
		rec.index[strings.TrimSpace(h)] = i
	}
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		rec.Row++
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "row %d", rec.Row), errors.ErrData)
		}
		rec.fields = fields
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// ReadOptions select the optional columns of a cartesian star table.
type ReadOptions struct {
	BackgroundColumn string // "" disables reading a background column
}

// ReadCSV reads a cartesian star table.
//
// Required columns are X Y Z U V W and X_error ... W_error.  Optional
// columns are the correlations X_Y_corr ... V_W_corr, default zero,
// source_id or name, epoch and the background column.
func ReadCSV(rd io.Reader, opt ReadOptions) (*Table, error) {
	var ss []Star
	err := ScanCSV(rd, func(r *Record) error {
		s, err := cartesianStar(r, opt)
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
	return NewTable(ss)
}

// ReadFile reads a cartesian star table from a file.
func ReadFile(fn string, opt ReadOptions) (*Table, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "reading %s", fn), errors.ErrData)
	}
	defer f.Close()
	t, err := ReadCSV(f, opt)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", fn)
	}
	return t, nil
}

// ID returns the identifier of a row: source_id, else name, else the row
// number.
func ID(r *Record) string {
	if id := r.String("source_id"); id != "" {
		return id
	}
	if id := r.String("name"); id != "" {
		return id
	}
	return strconv.Itoa(r.Row)
}

func cartesianStar(r *Record, opt ReadOptions) (Star, error) {
	s := Star{ID: ID(r)}
	var err error
	if s.Mean, err = r.Floats(MeanColumns); err != nil {
		return s, err
	}
	sd, err := r.Floats(ErrorColumns)
	if err != nil {
		return s, err
	}
	for i, e := range sd {
		if !(e > 0) {
			return s, errors.Dataf("row %d: column %s: error %g not positive", r.Row, ErrorColumns[i], e)
		}
	}
	corr := make([]float64, 0, Dim*(Dim-1)/2)
	for i := 0; i < Dim; i++ {
		for j := i + 1; j < Dim; j++ {
			c, _, err := r.OptFloat(CorrColumn(i, j), 0)
			if err != nil {
				return s, err
			}
			if c <= -1 || c >= 1 {
				return s, errors.Dataf("row %d: column %s: correlation %g outside (-1, 1)",
					r.Row, CorrColumn(i, j), c)
			}
			corr = append(corr, c)
		}
	}
	s.Cov = CovFromErrors(sd, corr)
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

// WriteCSV writes stars as a cartesian table that ReadCSV reads back,
// including the background column when every star has a value.
func WriteCSV(w io.Writer, stars []Star, bgColumn string) error {
	cw := csv.NewWriter(w)
	header := append([]string{"source_id"}, MeanColumns...)
	header = append(header, ErrorColumns...)
	for i := 0; i < Dim; i++ {
		for j := i + 1; j < Dim; j++ {
			header = append(header, CorrColumn(i, j))
		}
	}
	header = append(header, "epoch")
	withBg := bgColumn != "" && len(stars) > 0
	for _, s := range stars {
		withBg = withBg && s.HasBg
	}
	if withBg {
		header = append(header, bgColumn)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	ff := func(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) }
	for _, s := range stars {
		row := []string{s.ID}
		for _, m := range s.Mean {
			row = append(row, ff(m))
		}
		sd := make([]float64, Dim)
		for i := range sd {
			sd[i] = math.Sqrt(s.Cov.At(i, i))
			row = append(row, ff(sd[i]))
		}
		for i := 0; i < Dim; i++ {
			for j := i + 1; j < Dim; j++ {
				row = append(row, ff(s.Cov.At(i, j)/(sd[i]*sd[j])))
			}
		}
		row = append(row, ff(s.Epoch))
		if withBg {
			row = append(row, ff(s.BgLnOverlap))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
