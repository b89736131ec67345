package mfcc

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyWaveform = errors.New("waveform is empty")
	ErrNonFinite     = errors.New("waveform contains non-finite samples")
)

// FeatureExtractionError reports a waveform or configuration the extractor
// cannot turn into a matrix.
type FeatureExtractionError struct {
	Op  string
	Err error
}

func (e *FeatureExtractionError) Error() string {
	return fmt.Sprintf("mfcc %s: %v", e.Op, e.Err)
}

func (e *FeatureExtractionError) Unwrap() error { return e.Err }
