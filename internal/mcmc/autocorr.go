// Public domain.

package mcmc

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// sokalC is the window constant of the automatic windowing of Sokal (1989).
const sokalC = 5

// ACF returns the normalized autocorrelation function of x, computed by
// FFT of the zero padded series.  ACF(x)[0] is 1.  A constant series has
// an ACF of zeros after lag 0.
func ACF(x []float64) []float64 {
	n := len(x)
	acf := make([]float64, n)
	if n == 0 {
		return acf
	}
	m := 1
	for m < 2*n {
		m <<= 1
	}
	mean := stat.Mean(x, nil)
	padded := make([]float64, m)
	for i, v := range x {
		padded[i] = v - mean
	}
	fft := fourier.NewFFT(m)
	coeff := fft.Coefficients(nil, padded)
	for i, c := range coeff {
		coeff[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	seq := fft.Sequence(nil, coeff)
	acf[0] = 1
	if !(seq[0] > 0) {
		return acf
	}
	for i := 1; i < n; i++ {
		acf[i] = seq[i] / seq[0]
	}
	return acf
}

// IntegratedTime estimates the integrated autocorrelation time of a
// parameter from the traces of all walkers.  The ACF is averaged over
// walkers, then summed over lags up to the first window M with
// M >= 5 τ(M).
func IntegratedTime(traces [][]float64) float64 {
	if len(traces) == 0 || len(traces[0]) == 0 {
		return math.NaN()
	}
	n := len(traces[0])
	f := make([]float64, n)
	for _, t := range traces {
		for i, a := range ACF(t) {
			f[i] += a
		}
	}
	for i := range f {
		f[i] /= float64(len(traces))
	}
	tau := 0.
	for m := 0; m < n; m++ {
		tau += f[m]
		if m > 0 {
			tau += f[m]
		}
		// tau here is 2 Σ_{t<=m} f(t) - 1
		if float64(m) >= sokalC*tau {
			return tau
		}
	}
	return tau
}

// Tau returns the integrated autocorrelation time of every parameter of c
// over steps [from, Steps).
func (c *Chain) Tau(from int) []float64 {
	tau := make([]float64, c.Params)
	traces := make([][]float64, c.Walkers)
	for p := range tau {
		for w := range traces {
			traces[w] = c.Trace(w, p, from)
		}
		tau[p] = IntegratedTime(traces)
	}
	return tau
}
