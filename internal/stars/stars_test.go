// Public domain.

package stars

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/errors"
)

const table = `# two stars
source_id,X,Y,Z,U,V,W,X_error,Y_error,Z_error,U_error,V_error,W_error,X_U_corr,background_log_overlap
s1,1,2,3,4,5,6,1,1,1,0.5,0.5,0.5,0.2,-30.5
s2,0,0,0,0,0,0,2,2,2,1,1,1e4,,-28

`

func TestReadCSV(t *testing.T) {
	tb, err := ReadCSV(strings.NewReader(table), ReadOptions{BackgroundColumn: "background_log_overlap"})
	require.NoError(t, err)
	require.Equal(t, 2, tb.Len())
	s := tb.Stars[0]
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, s.Mean)
	assert.InDelta(t, 0.25, s.Cov.At(3, 3), 1e-15)
	assert.InDelta(t, 0.2*1*0.5, s.Cov.At(0, 3), 1e-15)
	assert.True(t, s.HasBg)
	assert.Equal(t, -30.5, s.BgLnOverlap)

	s = tb.Stars[1]
	assert.Equal(t, 0., s.Cov.At(0, 3))
	assert.Equal(t, 1e8, s.Cov.At(5, 5))
	assert.Equal(t, []float64{0}, tb.Epochs())
	assert.Len(t, tb.Means(), 2)
	assert.Same(t, tb.Stars[1].Cov, tb.Covs()[1])
}

func TestReadCSVErrors(t *testing.T) {
	header := "X,Y,Z,U,V,W,X_error,Y_error,Z_error,U_error,V_error,W_error"
	tests := []struct {
		name, body, want string
	}{
		{"missing column", "X,Y,Z\n1,2,3\n", "missing column U"},
		{"bad value", header + "\n1,2,3,4,5,six,1,1,1,1,1,1\n", "column W"},
		{"non-finite", header + "\n1,2,3,4,5,NaN,1,1,1,1,1,1\n", "column W"},
		{"zero error", header + "\n1,2,3,4,5,6,1,1,0,1,1,1\n", "Z_error"},
		{"empty", "", "empty table"},
		{"header only", header + "\n", "no stars"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.body), ReadOptions{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrData))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNonPositiveDefinite(t *testing.T) {
	cov := CovFromErrors([]float64{1, 1, 1, 1, 1, 1}, nil)
	cov.SetSym(0, 1, 1.5)
	_, err := NewTable([]Star{{ID: "bad", Mean: make([]float64, 6), Cov: cov}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrData))
	assert.Contains(t, err.Error(), "bad")
}

func TestReadFileAndWriteCSV(t *testing.T) {
	tb, err := ReadCSV(strings.NewReader(table), ReadOptions{BackgroundColumn: "bg"})
	require.NoError(t, err)
	for i := range tb.Stars {
		tb.Stars[i].BgLnOverlap = float64(-i)
		tb.Stars[i].HasBg = true
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tb.Stars, "bg"))
	fn := filepath.Join(t.TempDir(), "stars.csv")
	require.NoError(t, os.WriteFile(fn, buf.Bytes(), 0o644))

	back, err := ReadFile(fn, ReadOptions{BackgroundColumn: "bg"})
	require.NoError(t, err)
	require.Equal(t, tb.Len(), back.Len())
	for i, s := range tb.Stars {
		b := back.Stars[i]
		assert.Equal(t, s.ID, b.ID)
		assert.Equal(t, s.Mean, b.Mean)
		assert.True(t, mat.EqualApprox(s.Cov, b.Cov, 1e-9))
		assert.Equal(t, s.BgLnOverlap, b.BgLnOverlap)
	}

	_, err = ReadFile(filepath.Join(t.TempDir(), "none.csv"), ReadOptions{})
	assert.True(t, errors.Is(err, errors.ErrData))
}

func TestColumnBackground(t *testing.T) {
	s := &Star{ID: "a", BgLnOverlap: -12, HasBg: true}
	v, err := Column{}.LogOverlap(s)
	require.NoError(t, err)
	assert.Equal(t, -12., v)
	_, err = Column{}.LogOverlap(&Star{ID: "b"})
	assert.True(t, errors.Is(err, errors.ErrData))
}

func TestKDE(t *testing.T) {
	// a 1D sample symmetric about zero
	var pts [][]float64
	for i := -50; i <= 50; i++ {
		pts = append(pts, []float64{float64(i) / 10})
	}
	k, err := NewKDE(pts)
	require.NoError(t, err)

	// the density integrates to one
	sum := 0.
	const h = 0.01
	for x := -15.; x <= 15; x += h {
		sum += math.Exp(k.LogDensity([]float64{x})) * h
	}
	assert.InDelta(t, 1, sum, 1e-3)
	assert.InDelta(t, k.LogDensity([]float64{1.3}), k.LogDensity([]float64{-1.3}), 1e-9)
	assert.Greater(t, k.LogDensity([]float64{0}), k.LogDensity([]float64{4}))

	v, err := k.LogOverlap(&Star{Mean: []float64{0}})
	require.NoError(t, err)
	assert.InDelta(t, k.LogDensity([]float64{0})+math.Log(101), v, 1e-12)

	_, err = NewKDE(pts[:1])
	assert.True(t, errors.Is(err, errors.ErrData))
}
