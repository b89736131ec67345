// Package wav turns audio files into mono float32 waveforms at a fixed sample
// rate. RIFF/WAVE PCM is decoded natively; any other container goes through
// ffmpeg first.
package wav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// TargetSampleRate is the rate every waveform is delivered at unless the
// caller asks for something else.
const TargetSampleRate = 16000

const wavFormatPCM = 1

// Waveform is a decoded mono signal. Samples are in [-1, 1].
type Waveform struct {
	Samples    []float32
	SampleRate int
}

func (w *Waveform) Duration() float64 {
	if w == nil || w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// DecodeError reports audio that could not be turned into a waveform.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Load reads the file at path and decodes it at sampleRate.
func Load(ctx context.Context, path string, sampleRate int) (*Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Source: path, Err: err}
	}
	return Decode(ctx, data, path, sampleRate)
}

// Decode decodes an in-memory audio file. name is only used to pick the
// container extension for ffmpeg and to label errors.
func Decode(ctx context.Context, data []byte, name string, sampleRate int) (*Waveform, error) {
	if sampleRate <= 0 {
		sampleRate = TargetSampleRate
	}
	if len(data) == 0 {
		return nil, &DecodeError{Source: name, Err: errors.New("empty input")}
	}

	if IsWAV(data) {
		w, err := decodePCM(data, sampleRate)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, errUnsupportedEncoding) {
			return nil, &DecodeError{Source: name, Err: err}
		}
	}

	w, err := decodeWithFFmpeg(ctx, data, name, sampleRate)
	if err != nil {
		return nil, &DecodeError{Source: name, Err: err}
	}
	return w, nil
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// SupportedExtension reports whether the file extension is one of the
// accepted audio containers.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".mp3", ".flac":
		return true
	}
	return false
}

var errUnsupportedEncoding = errors.New("unsupported wav encoding")

func decodePCM(data []byte, sampleRate int) (*Waveform, error) {
	dec := gowav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, errUnsupportedEncoding
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm buffer: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, errors.New("wav file has no format chunk")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	mono, err := downmix(buf, bitDepth)
	if err != nil {
		return nil, err
	}

	srcRate := buf.Format.SampleRate
	if srcRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", srcRate)
	}
	if srcRate != sampleRate {
		mono, err = resample(mono, srcRate, sampleRate)
		if err != nil {
			return nil, err
		}
	}

	return &Waveform{Samples: mono, SampleRate: sampleRate}, nil
}

// downmix averages interleaved channels into one and scales integer PCM
// into [-1, 1).
func downmix(buf *audio.IntBuffer, bitDepth int) ([]float32, error) {
	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}

	scale := math.Ldexp(1, bitDepth-1)
	offset := 0.0
	if bitDepth == 8 {
		// 8-bit WAV is unsigned
		offset = scale
	}

	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += (float64(buf.Data[i*channels+c]) - offset) / scale
		}
		out[i] = float32(sum / float64(channels))
	}
	return out, nil
}

func resample(samples []float32, from, to int) ([]float32, error) {
	if len(samples) == 0 {
		return samples, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s)
	}
	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}
	return out, nil
}
