// Public domain.

package astrometry

import (
	"math"
	"strings"
	"testing"

	"github.com/soniakeys/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/nishamrutha/chronostar/internal/errors"
)

// Johnson & Soderblom (1987) table, B1950 pole.
func TestFrameB1950(t *testing.T) {
	f := NewFrame(unit.AngleFromDeg(192.25), unit.AngleFromDeg(27.4), unit.AngleFromDeg(123))
	want := [3][3]float64{
		{-0.06699, -0.87276, -0.48354},
		{0.49273, -0.45035, 0.74458},
		{-0.86760, -0.18837, 0.46020},
	}
	for i, row := range want {
		assert.InDelta(t, row[0], f[i].X, 1e-4)
		assert.InDelta(t, row[1], f[i].Y, 1e-4)
		assert.InDelta(t, row[2], f[i].Z, 1e-4)
	}
}

func TestHeliocentricDirections(t *testing.T) {
	gc := Astrometry{RA: unit.AngleFromDeg(266.40499), Dec: unit.AngleFromDeg(-28.93617), Parallax: 1}
	p, _ := gc.Heliocentric(&Galactic)
	assert.InDelta(t, 1000, p.X, 1e-3)
	assert.InDelta(t, 0, p.Y, 1e-3)
	assert.InDelta(t, 0, p.Z, 1e-3)

	ngp := Astrometry{RA: RANGP, Dec: DecNGP, Parallax: 10, RV: 10}
	lsr := ngp.LSR(&Galactic)
	assert.InDeltaSlice(t, []float64{0, 0, 125, 11.1, 12.24, 17.25}, lsr, 1e-6)
}

func TestConvertCovariance(t *testing.T) {
	a := Astrometry{RA: RANGP, Dec: DecNGP, Parallax: 5}
	sd := []float64{1e-7, 2e-7, 0.1, 0.3, 0.2, 2} // deg, deg, mas, mas/yr, mas/yr, km/s
	cov := mat.NewSymDense(6, nil)
	for i, s := range sd {
		cov.SetSym(i, i, s*s)
	}
	mean, c, err := Convert(a, cov, &Galactic)
	require.NoError(t, err)
	assert.InDelta(t, 225, mean[2], 1e-6)

	// traces are invariant under the rotation
	d := 1000 / a.Parallax
	deg := math.Pi / 180
	cd := math.Cos(DecNGP.Rad())
	wantPos := math.Pow(1000*sd[2]/(a.Parallax*a.Parallax), 2) +
		d*d*(math.Pow(sd[0]*deg*cd, 2)+math.Pow(sd[1]*deg, 2))
	wantVel := math.Pow(KmsPerMasYr/a.Parallax, 2)*(sd[3]*sd[3]+sd[4]*sd[4]) + sd[5]*sd[5]
	assert.InEpsilon(t, wantPos, c.At(0, 0)+c.At(1, 1)+c.At(2, 2), 1e-5)
	assert.InEpsilon(t, wantVel, c.At(3, 3)+c.At(4, 4)+c.At(5, 5), 1e-6)
	// looking at the pole, radial velocity is W
	assert.InEpsilon(t, sd[5]*sd[5], c.At(5, 5), 1e-6)

	_, _, err = Convert(Astrometry{Parallax: -1}, cov, &Galactic)
	assert.True(t, errors.Is(err, errors.ErrData))
}

const gaia = `source_id,ra,ra_error,dec,dec_error,parallax,parallax_error,pmra,pmra_error,pmdec,pmdec_error,radial_velocity,radial_velocity_error,ra_dec_corr
1,45.0,0.05,20.0,0.04,8.0,0.05,10.0,0.07,-20.0,0.06,15.0,0.5,0.1
2,46.0,0.05,21.0,0.04,7.5,0.05,11.0,0.07,-19.0,0.06,,,0.0
`

func TestReadCSV(t *testing.T) {
	tb, err := ReadCSV(strings.NewReader(gaia), Options{MissingRVError: 1e4})
	require.NoError(t, err)
	require.Equal(t, 2, tb.Len())
	with, without := tb.Stars[0], tb.Stars[1]
	assert.Equal(t, "1", with.ID)
	vtrace := func(c *mat.SymDense) float64 { return c.At(3, 3) + c.At(4, 4) + c.At(5, 5) }
	assert.Less(t, vtrace(with.Cov), 10.)
	assert.Greater(t, vtrace(without.Cov), 1e7)
	// the huge radial velocity variance leaves positions alone
	assert.Less(t, without.Cov.At(0, 0), 1.)

	_, err = ReadCSV(strings.NewReader(gaia), Options{})
	assert.True(t, errors.Is(err, errors.ErrConfig))
	_, err = ReadCSV(strings.NewReader("ra,dec\n1,2\n"), Options{MissingRVError: 1e4})
	assert.True(t, errors.Is(err, errors.ErrData))
}
