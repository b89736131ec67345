package classifier

import (
	"fmt"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"voiceguard/utils"
)

// DefaultCheckpointFile is where training writes the model.
const DefaultCheckpointFile = "deepfake_audio_detector.ckpt"

const (
	checkpointFormat  = "voiceguard-cnn"
	checkpointVersion = 1
)

// TrainingSummary is stored alongside the weights.
type TrainingSummary struct {
	TrainedAt    time.Time `msgpack:"trained_at" json:"trainedAt"`
	Epochs       int       `msgpack:"epochs" json:"epochs"`
	BatchSize    int       `msgpack:"batch_size" json:"batchSize"`
	LearningRate float64   `msgpack:"learning_rate" json:"learningRate"`
	Examples     int       `msgpack:"examples" json:"examples"`
	FinalLoss    float64   `msgpack:"final_loss" json:"finalLoss"`
	FinalAcc     float64   `msgpack:"final_accuracy" json:"finalAccuracy"`
}

type checkpoint struct {
	Format  string          `msgpack:"format"`
	Version int             `msgpack:"version"`
	Arch    Architecture    `msgpack:"architecture"`
	Summary TrainingSummary `msgpack:"summary"`

	ConvKernel  []float64 `msgpack:"conv_kernel"`
	ConvBias    []float64 `msgpack:"conv_bias"`
	DenseKernel []float64 `msgpack:"dense_kernel"`
	DenseBias   []float64 `msgpack:"dense_bias"`
	OutKernel   []float64 `msgpack:"out_kernel"`
	OutBias     []float64 `msgpack:"out_bias"`
}

// SaveCheckpoint writes the network and its training summary atomically.
func SaveCheckpoint(path string, n *Network, summary TrainingSummary) error {
	if err := n.checkShapes(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	raw, err := msgpack.Marshal(&checkpoint{
		Format:      checkpointFormat,
		Version:     checkpointVersion,
		Arch:        n.Arch,
		Summary:     summary,
		ConvKernel:  n.ConvKernel,
		ConvBias:    n.ConvBias,
		DenseKernel: n.DenseKernel,
		DenseBias:   n.DenseBias,
		OutKernel:   n.OutKernel,
		OutBias:     n.OutBias,
	})
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := utils.WriteFileAtomic(path, raw); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint.
func LoadCheckpoint(path string) (*Network, TrainingSummary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, TrainingSummary{}, &PredictionError{Op: "load", Err: err}
	}

	var ck checkpoint
	if err := msgpack.Unmarshal(raw, &ck); err != nil {
		return nil, TrainingSummary{}, &PredictionError{Op: "load", Err: fmt.Errorf("%w: %v", errBadCheckpoint, err)}
	}
	if ck.Format != checkpointFormat {
		return nil, TrainingSummary{}, &PredictionError{Op: "load", Err: fmt.Errorf("%w: format %q", errBadCheckpoint, ck.Format)}
	}
	if ck.Version != checkpointVersion {
		return nil, TrainingSummary{}, &PredictionError{Op: "load", Err: fmt.Errorf("unsupported checkpoint version %d", ck.Version)}
	}
	if err := ck.Arch.Validate(); err != nil {
		return nil, TrainingSummary{}, &PredictionError{Op: "load", Err: err}
	}

	n := &Network{
		Arch:        ck.Arch,
		ConvKernel:  ck.ConvKernel,
		ConvBias:    ck.ConvBias,
		DenseKernel: ck.DenseKernel,
		DenseBias:   ck.DenseBias,
		OutKernel:   ck.OutKernel,
		OutBias:     ck.OutBias,
	}
	if err := n.checkShapes(); err != nil {
		return nil, TrainingSummary{}, &PredictionError{Op: "load", Err: fmt.Errorf("%w: %v", errBadCheckpoint, err)}
	}
	return n, ck.Summary, nil
}
