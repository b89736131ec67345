// Package mfcc computes the fixed size MFCC matrix the classifier consumes.
//
// Defaults reproduce the reference DSP pipeline used to train the model:
//
//	SampleRate:      16000
//	NumCoefficients: 13
//	FFTSize:         2048 (centred frames, zero padded)
//	HopLength:       512
//	NumMels:         128 (Slaney scale, Slaney area norm)
//	TopDB:           80
//	Frames:          200
package mfcc

import (
	"fmt"
	"math"
)

// Config controls MFCC extraction parameters.
type Config struct {
	SampleRate      int     // expected input sample rate in Hz (default 16000)
	NumCoefficients int     // cepstral coefficients kept (default 13)
	FFTSize         int     // STFT window and FFT length (default 2048)
	HopLength       int     // samples between frames (default 512)
	NumMels         int     // mel bands (default 128)
	FMin            float64 // lowest filter frequency (default 0)
	FMax            float64 // highest filter frequency, 0 means SampleRate/2
	TopDB           float64 // dynamic range kept below the peak (default 80)
	Frames          int     // fixed time axis length (default 200)
}

func DefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		NumCoefficients: 13,
		FFTSize:         2048,
		HopLength:       512,
		NumMels:         128,
		FMin:            0,
		FMax:            0,
		TopDB:           80,
		Frames:          200,
	}
}

func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	case c.FFTSize <= 1:
		return fmt.Errorf("fft size must be greater than 1, got %d", c.FFTSize)
	case c.HopLength <= 0:
		return fmt.Errorf("hop length must be positive, got %d", c.HopLength)
	case c.NumMels <= 0:
		return fmt.Errorf("mel band count must be positive, got %d", c.NumMels)
	case c.NumCoefficients <= 0 || c.NumCoefficients > c.NumMels:
		return fmt.Errorf("coefficient count must be in [1, %d], got %d", c.NumMels, c.NumCoefficients)
	case c.Frames <= 0:
		return fmt.Errorf("frame count must be positive, got %d", c.Frames)
	case c.TopDB < 0:
		return fmt.Errorf("top_db must not be negative, got %f", c.TopDB)
	case c.FMin < 0 || (c.FMax != 0 && c.FMax <= c.FMin):
		return fmt.Errorf("invalid filter range [%f, %f]", c.FMin, c.FMax)
	}
	return nil
}

func (c Config) fmax() float64 {
	if c.FMax == 0 {
		return float64(c.SampleRate) / 2
	}
	return c.FMax
}

// Fingerprint identifies every parameter that changes the output, for use
// in cache keys.
func (c Config) Fingerprint() string {
	return fmt.Sprintf("sr=%d,n=%d,fft=%d,hop=%d,mels=%d,fmin=%g,fmax=%g,top=%g,frames=%d",
		c.SampleRate, c.NumCoefficients, c.FFTSize, c.HopLength, c.NumMels, c.FMin, c.fmax(), c.TopDB, c.Frames)
}

// NaturalFrames returns the number of centred STFT frames for n samples.
func (c Config) NaturalFrames(n int) int {
	if n <= 0 {
		return 0
	}
	return 1 + n/c.HopLength
}

// Extractor computes MFCC matrices. It is immutable after New and safe for
// concurrent use.
type Extractor struct {
	cfg     Config
	window  []float64
	melBank []melFilter
	dct     [][]float64
}

// New creates an Extractor with the given config.
func New(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &FeatureExtractionError{Op: "configure", Err: err}
	}
	return &Extractor{
		cfg:     cfg,
		window:  hannWindow(cfg.FFTSize),
		melBank: melFilterBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.FMin, cfg.fmax()),
		dct:     dctMatrix(cfg.NumCoefficients, cfg.NumMels),
	}, nil
}

// Default returns an Extractor with DefaultConfig.
func Default() *Extractor {
	e, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Extractor) Config() Config { return e.cfg }

// Extract returns the fixed NumCoefficients x Frames matrix for samples.
// Short inputs are right padded with zeros, long inputs keep the first
// Frames columns.
func (e *Extractor) Extract(samples []float32, sampleRate int) (*Matrix, error) {
	full, err := e.ExtractFull(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	return full.Fit(e.cfg.Frames), nil
}

// ExtractFull returns the matrix with its natural frame count.
func (e *Extractor) ExtractFull(samples []float32, sampleRate int) (*Matrix, error) {
	if len(samples) == 0 {
		return nil, &FeatureExtractionError{Op: "extract", Err: ErrEmptyWaveform}
	}
	if sampleRate <= 0 {
		return nil, &FeatureExtractionError{Op: "extract", Err: fmt.Errorf("invalid sample rate %d", sampleRate)}
	}
	for i, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return nil, &FeatureExtractionError{Op: "extract", Err: fmt.Errorf("%w at sample %d", ErrNonFinite, i)}
		}
	}

	ext := e
	if sampleRate != e.cfg.SampleRate {
		cfg := e.cfg
		cfg.SampleRate = sampleRate
		derived, err := New(cfg)
		if err != nil {
			return nil, err
		}
		ext = derived
	}

	power := ext.powerSpectrogram(samples)
	logMel := ext.logMelSpectrogram(power)
	return ext.cepstrum(logMel), nil
}

// logMelSpectrogram projects power frames onto the mel bank and converts to
// decibels clipped to TopDB below the global peak.
func (e *Extractor) logMelSpectrogram(power [][]float64) [][]float64 {
	const amin = 1e-10

	frames := len(power)
	mel := make([][]float64, frames)
	peak := math.Inf(-1)
	for t := 0; t < frames; t++ {
		row := make([]float64, len(e.melBank))
		for m, f := range e.melBank {
			sum := 0.0
			for i, w := range f.weights {
				sum += w * power[t][f.start+i]
			}
			db := 10 * math.Log10(math.Max(amin, sum))
			row[m] = db
			if db > peak {
				peak = db
			}
		}
		mel[t] = row
	}

	floor := peak - e.cfg.TopDB
	for _, row := range mel {
		for m, v := range row {
			if v < floor {
				row[m] = floor
			}
		}
	}
	return mel
}

func (e *Extractor) cepstrum(logMel [][]float64) *Matrix {
	frames := len(logMel)
	out := NewMatrix(e.cfg.NumCoefficients, frames)
	for t, row := range logMel {
		for k, basis := range e.dct {
			sum := 0.0
			for n, v := range row {
				sum += basis[n] * v
			}
			out.Data[k*frames+t] = float32(sum)
		}
	}
	return out
}
