package mfcc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMelScaleRoundTrip(t *testing.T) {
	assert.InDelta(t, 15.0, hzToMel(1000), 1e-12)
	assert.InDelta(t, 3.0, hzToMel(200), 1e-12)
	for _, hz := range []float64{0, 55, 440, 999, 1000, 2500, 7999} {
		assert.InDelta(t, hz, melToHz(hzToMel(hz)), 1e-6)
	}
}

func TestLinspaceEndpoints(t *testing.T) {
	xs := linspace(0, 8000, 1025)
	require.Len(t, xs, 1025)
	assert.Equal(t, 0.0, xs[0])
	assert.Equal(t, 8000.0, xs[1024])
	assert.InDelta(t, 7.8125, xs[1], 1e-12)
}

func TestMelFilterBankIsAreaNormalised(t *testing.T) {
	bank := melFilterBank(128, 2048, sr, 0, sr/2)
	require.Len(t, bank, 128)

	binHz := float64(sr) / 2048
	for m := 60; m < 128; m++ {
		sum := 0.0
		for _, w := range bank[m].weights {
			require.GreaterOrEqual(t, w, 0.0)
			sum += w
		}
		assert.InDelta(t, 1.0, sum*binHz, 0.1, "filter %d", m)
	}

	// filters advance monotonically across the spectrum
	for m := 1; m < 128; m++ {
		if len(bank[m].weights) == 0 || len(bank[m-1].weights) == 0 {
			continue
		}
		assert.GreaterOrEqual(t, bank[m].start, bank[m-1].start)
	}
}

func TestDCTBasisIsOrthonormal(t *testing.T) {
	basis := dctMatrix(13, 128)
	for i := range basis {
		for j := range basis {
			dot := 0.0
			for n := range basis[i] {
				dot += basis[i][n] * basis[j][n]
			}
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(dot-want) > 1e-9 {
				t.Fatalf("<b%d,b%d> = %f, want %f", i, j, dot, want)
			}
		}
	}
}

func TestHannWindowIsPeriodic(t *testing.T) {
	w := hannWindow(2048)
	assert.Equal(t, 0.0, w[0])
	assert.InDelta(t, 1.0, w[1024], 1e-12)
	assert.InDelta(t, w[1], w[2047], 1e-12)
}
