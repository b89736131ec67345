package classifier

import (
	"errors"
	"fmt"
)

var (
	ErrShape         = errors.New("input has wrong shape")
	ErrNonFinite     = errors.New("model produced a non-finite probability")
	ErrUnsupported   = errors.New("unsupported model format")
	ErrONNXDisabled  = errors.New("onnx backend not compiled in (build with -tags onnx)")
	errBadCheckpoint = errors.New("not a classifier checkpoint")
)

// PredictionError reports a failure to load the model or score an input.
type PredictionError struct {
	Op  string
	Err error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("classifier %s: %v", e.Op, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }
