package mfcc

import "math"

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

func hzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

func melToHz(mel float64) float64 {
	if mel >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
	}
	return melFSp * mel
}

// linspace matches numpy.linspace with endpoint=true.
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}

type melFilter struct {
	start   int
	weights []float64
}

// melFilterBank builds triangular filters over the FFT bins with Slaney area
// normalisation. Only the non-zero span of each filter is stored.
func melFilterBank(numMels, fftSize, sampleRate int, fmin, fmax float64) []melFilter {
	bins := fftSize/2 + 1
	fftFreqs := linspace(0, float64(sampleRate)/2, bins)

	mels := linspace(hzToMel(fmin), hzToMel(fmax), numMels+2)
	melF := make([]float64, len(mels))
	for i, m := range mels {
		melF[i] = melToHz(m)
	}

	bank := make([]melFilter, numMels)
	for m := 0; m < numMels; m++ {
		lowDiff := melF[m+1] - melF[m]
		highDiff := melF[m+2] - melF[m+1]
		enorm := 2.0 / (melF[m+2] - melF[m])

		full := make([]float64, bins)
		first, last := -1, -1
		for k, f := range fftFreqs {
			lower := (f - melF[m]) / lowDiff
			upper := (melF[m+2] - f) / highDiff
			w := math.Max(0, math.Min(lower, upper))
			if w > 0 {
				full[k] = w * enorm
				if first < 0 {
					first = k
				}
				last = k
			}
		}
		if first < 0 {
			bank[m] = melFilter{}
			continue
		}
		bank[m] = melFilter{start: first, weights: full[first : last+1]}
	}
	return bank
}
