package mfcc

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// hannWindow returns the periodic Hann window used for spectral analysis.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// powerSpectrogram returns |STFT|^2 with frames centred on multiples of the
// hop length. The signal is zero padded by FFTSize/2 on both sides.
func (e *Extractor) powerSpectrogram(samples []float32) [][]float64 {
	nfft := e.cfg.FFTSize
	hop := e.cfg.HopLength
	pad := nfft / 2

	padded := make([]float64, len(samples)+2*pad)
	for i, s := range samples {
		padded[pad+i] = float64(s)
	}

	frames := e.cfg.NaturalFrames(len(samples))
	fft := fourier.NewFFT(nfft)
	buf := make([]float64, nfft)
	coeff := make([]complex128, nfft/2+1)

	power := make([][]float64, frames)
	for t := 0; t < frames; t++ {
		start := t * hop
		for i := 0; i < nfft; i++ {
			buf[i] = padded[start+i] * e.window[i]
		}
		coeff = fft.Coefficients(coeff, buf)

		row := make([]float64, len(coeff))
		for k, c := range coeff {
			a := cmplx.Abs(c)
			row[k] = a * a
		}
		power[t] = row
	}
	return power
}
