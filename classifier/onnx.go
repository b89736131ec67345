//go:build onnx

package classifier

import (
	"fmt"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"voiceguard/mfcc"
	"voiceguard/utils"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// ONNXModel runs an exported copy of the network through ONNX Runtime. The
// session reuses its tensors, so calls are serialised.
type ONNXModel struct {
	mu      sync.Mutex
	path    string
	arch    Architecture
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func loadONNX(path string) (Predictor, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &PredictionError{Op: "load", Err: err}
	}

	ortInitOnce.Do(func() {
		if lib := utils.GetEnv("VOICEGUARD_ORT_LIB_PATH", ""); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, &PredictionError{Op: "load", Err: fmt.Errorf("onnxruntime: %w", ortInitErr)}
	}

	arch := DefaultArchitecture()
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(arch.InputRows), int64(arch.InputCols), int64(arch.InputChannels)))
	if err != nil {
		return nil, &PredictionError{Op: "load", Err: fmt.Errorf("create input tensor: %w", err)}
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		input.Destroy()
		return nil, &PredictionError{Op: "load", Err: fmt.Errorf("create output tensor: %w", err)}
	}

	inputName := utils.GetEnv("VOICEGUARD_ONNX_INPUT", "input")
	outputName := utils.GetEnv("VOICEGUARD_ONNX_OUTPUT", "output")
	session, err := ort.NewAdvancedSession(path,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, &PredictionError{Op: "load", Err: fmt.Errorf("create session: %w", err)}
	}

	return &ONNXModel{path: path, arch: arch, session: session, input: input, output: output}, nil
}

func (m *ONNXModel) Predict(x *mfcc.Matrix) (float64, error) {
	if x == nil || x.Rows != m.arch.InputRows || x.Cols != m.arch.InputCols {
		return 0, &PredictionError{Op: "predict", Err: ErrShape}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return 0, &PredictionError{Op: "predict", Err: fmt.Errorf("model is closed")}
	}

	copy(m.input.GetData(), x.Data)
	if err := m.session.Run(); err != nil {
		return 0, &PredictionError{Op: "predict", Err: fmt.Errorf("inference: %w", err)}
	}
	p := float64(m.output.GetData()[0])
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, &PredictionError{Op: "predict", Err: ErrNonFinite}
	}
	return p, nil
}

func (m *ONNXModel) Info() ModelInfo {
	return ModelInfo{
		Backend:    "onnx",
		Path:       m.path,
		InputShape: m.arch.InputShape(),
	}
}

// Close releases ONNX Runtime resources. Safe to call multiple times.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	if m.input != nil {
		m.input.Destroy()
		m.input = nil
	}
	if m.output != nil {
		m.output.Destroy()
		m.output = nil
	}
	return nil
}
