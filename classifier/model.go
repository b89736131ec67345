package classifier

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"voiceguard/mfcc"
)

// Predictor scores one feature matrix. Implementations are safe for
// concurrent use.
type Predictor interface {
	// Predict returns P(real) in [0, 1].
	Predict(m *mfcc.Matrix) (float64, error)
	Info() ModelInfo
	Close() error
}

// ModelInfo describes a loaded model for the front end.
type ModelInfo struct {
	Backend    string    `json:"backend"`
	Path       string    `json:"path"`
	InputShape []int     `json:"inputShape"`
	Parameters int       `json:"parameters,omitempty"`
	TrainedAt  time.Time `json:"trainedAt,omitempty"`
	Epochs     int       `json:"epochs,omitempty"`
	Examples   int       `json:"examples,omitempty"`
	FinalLoss  float64   `json:"finalLoss,omitempty"`
	FinalAcc   float64   `json:"finalAccuracy,omitempty"`
}

// Model is the native checkpoint backend.
type Model struct {
	net     *Network
	path    string
	summary TrainingSummary
}

// NewModel wraps a trained network.
func NewModel(n *Network, summary TrainingSummary) *Model {
	return &Model{net: n, summary: summary}
}

// Load opens the model at path. ".onnx" files use the ONNX Runtime backend
// when compiled in; anything else is read as a native checkpoint.
func Load(path string) (Predictor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".onnx":
		return loadONNX(path)
	case ".h5", ".keras":
		return nil, &PredictionError{Op: "load", Err: fmt.Errorf("%w: %s (export to onnx first)", ErrUnsupported, filepath.Ext(path))}
	}
	n, summary, err := LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	return &Model{net: n, path: path, summary: summary}, nil
}

func (m *Model) Network() *Network { return m.net }

func (m *Model) Predict(x *mfcc.Matrix) (float64, error) {
	input, err := flattenInput(m.net.Arch, x)
	if err != nil {
		return 0, err
	}
	act := m.net.forward(input, false, nil)
	p := sigmoid(act.logit)
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, &PredictionError{Op: "predict", Err: ErrNonFinite}
	}
	return p, nil
}

func (m *Model) Info() ModelInfo {
	return ModelInfo{
		Backend:    "native",
		Path:       m.path,
		InputShape: m.net.Arch.InputShape(),
		Parameters: m.net.Arch.ParameterCount(),
		TrainedAt:  m.summary.TrainedAt,
		Epochs:     m.summary.Epochs,
		Examples:   m.summary.Examples,
		FinalLoss:  m.summary.FinalLoss,
		FinalAcc:   m.summary.FinalAcc,
	}
}

func (m *Model) Close() error { return nil }

func flattenInput(arch Architecture, x *mfcc.Matrix) ([]float64, error) {
	if x == nil {
		return nil, &PredictionError{Op: "predict", Err: fmt.Errorf("%w: nil matrix", ErrShape)}
	}
	if arch.InputChannels != 1 || x.Rows != arch.InputRows || x.Cols != arch.InputCols || len(x.Data) != x.Rows*x.Cols {
		return nil, &PredictionError{Op: "predict", Err: fmt.Errorf("%w: got (%d, %d), want (%d, %d)", ErrShape, x.Rows, x.Cols, arch.InputRows, arch.InputCols)}
	}
	input := make([]float64, len(x.Data))
	for i, v := range x.Data {
		input[i] = float64(v)
	}
	return input, nil
}
