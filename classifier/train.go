package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/floats"

	"voiceguard/dataset"
	"voiceguard/utils"
)

// TrainConfig controls a training run.
type TrainConfig struct {
	Epochs          int
	BatchSize       int
	LearningRate    float64
	Seed            uint64
	ValidationSplit float64
	Shuffle         bool
	// OnEpoch, when set, is called after every epoch.
	OnEpoch func(EpochStats)
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:       10,
		BatchSize:    1,
		LearningRate: 0.001,
		Seed:         42,
		Shuffle:      true,
	}
}

func (c TrainConfig) Validate() error {
	switch {
	case c.Epochs <= 0:
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	case c.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	case c.ValidationSplit < 0 || c.ValidationSplit >= 1:
		return fmt.Errorf("validation split must be in [0, 1), got %g", c.ValidationSplit)
	}
	return nil
}

// EpochStats summarises one pass over the training examples. Loss and
// accuracy are measured during training with dropout active.
type EpochStats struct {
	Epoch         int           `json:"epoch"`
	Loss          float64       `json:"loss"`
	Accuracy      float64       `json:"accuracy"`
	ValLoss       float64       `json:"valLoss,omitempty"`
	ValAccuracy   float64       `json:"valAccuracy,omitempty"`
	HasValidation bool          `json:"hasValidation"`
	Duration      time.Duration `json:"duration"`
}

// History is the per-epoch record of a run.
type History struct {
	Epochs []EpochStats `json:"epochs"`
}

func (h History) Last() EpochStats {
	if len(h.Epochs) == 0 {
		return EpochStats{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

type example struct {
	input []float64
	label float64
}

// Fit trains n in place on the feature array x (N, rows, cols, channels)
// and label array y (N).
func Fit(ctx context.Context, n *Network, x *dataset.Array[float32], y *dataset.Array[int64], cfg TrainConfig) (History, error) {
	logger := utils.GetLogger()
	if err := cfg.Validate(); err != nil {
		return History{}, err
	}
	examples, err := toExamples(n.Arch, x, y)
	if err != nil {
		return History{}, err
	}

	split := len(examples)
	if cfg.ValidationSplit > 0 {
		split = int(float64(len(examples)) * (1 - cfg.ValidationSplit))
	}
	train, val := examples[:split], examples[split:]
	if len(train) == 0 {
		return History{}, fmt.Errorf("no training examples left after validation split %g", cfg.ValidationSplit)
	}

	rng := newRNG(cfg.Seed)
	opt := newAdam(n, cfg.LearningRate)
	params := n.params()
	grads := n.zeroLike()

	order := make([]int, len(train))
	for i := range order {
		order[i] = i
	}

	logger.InfoContext(ctx, "training started",
		slog.Int("train", len(train)),
		slog.Int("validation", len(val)),
		slog.Int("epochs", cfg.Epochs),
		slog.Int("batchSize", cfg.BatchSize),
		slog.Float64("learningRate", cfg.LearningRate),
		slog.Int("parameters", n.Arch.ParameterCount()),
	)

	var history History
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		started := time.Now()
		if cfg.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var lossSum float64
		var correct int
		for start := 0; start < len(order); start += cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			end := min(start+cfg.BatchSize, len(order))
			for _, g := range grads {
				clear(g)
			}
			for _, idx := range order[start:end] {
				ex := train[idx]
				act := n.forward(ex.input, true, rng)
				p := sigmoid(act.logit)
				lossSum += bceWithLogit(act.logit, ex.label)
				if (p > 0.5) == (ex.label == 1) {
					correct++
				}
				n.backward(act, p-ex.label, grads)
			}
			scale := 1 / float64(end-start)
			for _, g := range grads {
				floats.Scale(scale, g)
			}
			opt.apply(params, grads)
		}

		stats := EpochStats{
			Epoch:    epoch,
			Loss:     lossSum / float64(len(train)),
			Accuracy: float64(correct) / float64(len(train)),
		}
		if len(val) > 0 {
			stats.ValLoss, stats.ValAccuracy = n.score(val)
			stats.HasValidation = true
		}
		stats.Duration = time.Since(started)
		history.Epochs = append(history.Epochs, stats)

		attrs := []any{
			slog.Int("epoch", epoch),
			slog.Float64("loss", stats.Loss),
			slog.Float64("accuracy", stats.Accuracy),
			slog.Duration("duration", stats.Duration),
		}
		if stats.HasValidation {
			attrs = append(attrs, slog.Float64("valLoss", stats.ValLoss), slog.Float64("valAccuracy", stats.ValAccuracy))
		}
		logger.InfoContext(ctx, "epoch complete", attrs...)
		if cfg.OnEpoch != nil {
			cfg.OnEpoch(stats)
		}
	}
	return history, nil
}

// score returns mean loss and accuracy with dropout disabled.
func (n *Network) score(examples []example) (float64, float64) {
	var lossSum float64
	var correct int
	for _, ex := range examples {
		act := n.forward(ex.input, false, nil)
		lossSum += bceWithLogit(act.logit, ex.label)
		if (sigmoid(act.logit) > 0.5) == (ex.label == 1) {
			correct++
		}
	}
	return lossSum / float64(len(examples)), float64(correct) / float64(len(examples))
}

func toExamples(arch Architecture, x *dataset.Array[float32], y *dataset.Array[int64]) ([]example, error) {
	if err := x.Validate(); err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	if err := y.Validate(); err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	want := []int{x.Len(), arch.InputRows, arch.InputCols, arch.InputChannels}
	if len(x.Shape) != 4 || x.Shape[1] != want[1] || x.Shape[2] != want[2] || x.Shape[3] != want[3] {
		return nil, fmt.Errorf("features have shape %v, network expects %v", x.Shape, want)
	}
	if x.Len() != y.Len() {
		return nil, fmt.Errorf("%d feature rows but %d labels", x.Len(), y.Len())
	}
	if x.Len() == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}

	size := arch.inputSize()
	out := make([]example, x.Len())
	for i := range out {
		in := make([]float64, size)
		for j, v := range x.Data[i*size : (i+1)*size] {
			in[j] = float64(v)
		}
		label := y.Data[i]
		if label != 0 && label != 1 {
			return nil, fmt.Errorf("label %d at row %d is not 0 or 1", label, i)
		}
		out[i] = example{input: in, label: float64(label)}
	}
	return out, nil
}
