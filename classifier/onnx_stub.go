//go:build !onnx

package classifier

func loadONNX(path string) (Predictor, error) {
	return nil, &PredictionError{Op: "load " + path, Err: ErrONNXDisabled}
}
