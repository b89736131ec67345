package classifier

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceguard/dataset"
	"voiceguard/mfcc"
	"voiceguard/models"
)

// smallArch keeps training tests fast while exercising every layer.
func smallArch() Architecture {
	return Architecture{
		InputRows:     5,
		InputCols:     8,
		InputChannels: 1,
		Filters:       4,
		Kernel:        3,
		Pool:          2,
		ConvDropout:   0.25,
		Hidden:        8,
		DenseDropout:  0.5,
	}
}

// separable builds n examples: real rows are filled with +1 plus a small
// ripple, fake rows with -1.
func separable(arch Architecture, n int) (*dataset.Array[float32], *dataset.Array[int64]) {
	size := arch.inputSize()
	x := &dataset.Array[float32]{Shape: []int{n, arch.InputRows, arch.InputCols, 1}, Data: make([]float32, n*size)}
	y := &dataset.Array[int64]{Shape: []int{n}, Data: make([]int64, n)}
	for i := 0; i < n; i++ {
		sign := float32(-1)
		if i%2 == 1 {
			sign = 1
			y.Data[i] = 1
		}
		for j := 0; j < size; j++ {
			x.Data[i*size+j] = sign + 0.05*float32(j%3)
		}
	}
	return x, y
}

func matrixOf(rows, cols int, v float32) *mfcc.Matrix {
	m := mfcc.NewMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = v
	}
	return m
}

func TestDefaultArchitecture(t *testing.T) {
	a := DefaultArchitecture()
	require.NoError(t, a.Validate())
	assert.Equal(t, []int{13, 200, 1}, a.InputShape())
	assert.Equal(t, 11, a.convRows())
	assert.Equal(t, 198, a.convCols())
	assert.Equal(t, 15840, a.FlatSize())
	assert.Equal(t, 288+32+15840*64+64+64+1, a.ParameterCount())
}

func TestArchitectureValidate(t *testing.T) {
	a := smallArch()
	a.Kernel = 9
	assert.Error(t, a.Validate())

	a = smallArch()
	a.DenseDropout = 1
	assert.Error(t, a.Validate())

	a = smallArch()
	a.Pool = 7
	assert.Error(t, a.Validate())
}

func TestNewNetworkDeterministic(t *testing.T) {
	a, err := NewNetwork(smallArch(), 7)
	require.NoError(t, err)
	b, err := NewNetwork(smallArch(), 7)
	require.NoError(t, err)
	c, err := NewNetwork(smallArch(), 8)
	require.NoError(t, err)

	assert.Equal(t, a.ConvKernel, b.ConvKernel)
	assert.Equal(t, a.DenseKernel, b.DenseKernel)
	assert.NotEqual(t, a.ConvKernel, c.ConvKernel)
	for _, v := range a.ConvBias {
		assert.Zero(t, v)
	}
	limit := math.Sqrt(6.0 / float64(9+9*4))
	for _, v := range a.ConvKernel {
		assert.LessOrEqual(t, math.Abs(v), limit)
	}
}

// TestGradients compares backward against central differences with dropout
// disabled.
func TestGradients(t *testing.T) {
	arch := smallArch()
	arch.ConvDropout = 0
	arch.DenseDropout = 0
	n, err := NewNetwork(arch, 3)
	require.NoError(t, err)
	for i := range n.ConvBias {
		n.ConvBias[i] = 0.1
	}
	for i := range n.DenseBias {
		n.DenseBias[i] = 0.1
	}

	input := make([]float64, arch.inputSize())
	for i := range input {
		input[i] = math.Sin(float64(i)*0.7) + 0.3
	}
	const label = 1.0

	loss := func() float64 {
		return bceWithLogit(n.forward(input, false, nil).logit, label)
	}

	grads := n.zeroLike()
	act := n.forward(input, false, nil)
	n.backward(act, sigmoid(act.logit)-label, grads)

	const h = 1e-6
	for pi, p := range n.params() {
		for _, j := range []int{0, len(p) / 2, len(p) - 1} {
			orig := p[j]
			p[j] = orig + h
			up := loss()
			p[j] = orig - h
			down := loss()
			p[j] = orig
			numeric := (up - down) / (2 * h)
			assert.InDelta(t, numeric, grads[pi][j], 1e-5, "param %d index %d", pi, j)
		}
	}
}

func TestAdamFirstStep(t *testing.T) {
	n, err := NewNetwork(smallArch(), 1)
	require.NoError(t, err)
	before := n.OutBias[0]

	grads := n.zeroLike()
	grads[5][0] = 0.5
	opt := newAdam(n, 0.001)
	opt.apply(n.params(), grads)

	// The first bias-corrected Adam step moves by lr in the gradient's sign.
	assert.InDelta(t, before-0.001, n.OutBias[0], 1e-6)
	assert.Equal(t, 1, opt.step)
}

func TestFitSeparable(t *testing.T) {
	arch := smallArch()
	n, err := NewNetwork(arch, 42)
	require.NoError(t, err)
	x, y := separable(arch, 8)

	cfg := DefaultTrainConfig()
	cfg.Epochs = 30
	cfg.LearningRate = 0.01
	var seen int
	cfg.OnEpoch = func(EpochStats) { seen++ }

	hist, err := Fit(context.Background(), n, x, y, cfg)
	require.NoError(t, err)
	require.Len(t, hist.Epochs, 30)
	assert.Equal(t, 30, seen)
	assert.Less(t, hist.Last().Loss, hist.Epochs[0].Loss)

	loss, acc := n.score(mustExamples(t, arch, x, y))
	assert.Equal(t, 1.0, acc)
	assert.Less(t, loss, 0.5)
}

func mustExamples(t *testing.T, arch Architecture, x *dataset.Array[float32], y *dataset.Array[int64]) []example {
	t.Helper()
	ex, err := toExamples(arch, x, y)
	require.NoError(t, err)
	return ex
}

func TestFitValidationSplit(t *testing.T) {
	arch := smallArch()
	n, err := NewNetwork(arch, 1)
	require.NoError(t, err)
	x, y := separable(arch, 10)

	cfg := DefaultTrainConfig()
	cfg.Epochs = 2
	cfg.ValidationSplit = 0.2
	hist, err := Fit(context.Background(), n, x, y, cfg)
	require.NoError(t, err)
	assert.True(t, hist.Last().HasValidation)
}

func TestFitSeededRunsMatch(t *testing.T) {
	arch := smallArch()
	x, y := separable(arch, 6)
	cfg := DefaultTrainConfig()
	cfg.Epochs = 3

	a, _ := NewNetwork(arch, 5)
	b, _ := NewNetwork(arch, 5)
	_, err := Fit(context.Background(), a, x, y, cfg)
	require.NoError(t, err)
	_, err = Fit(context.Background(), b, x, y, cfg)
	require.NoError(t, err)
	assert.Equal(t, a.DenseKernel, b.DenseKernel)
	assert.Equal(t, a.OutBias, b.OutBias)
}

func TestFitRejectsBadInput(t *testing.T) {
	arch := smallArch()
	n, _ := NewNetwork(arch, 1)
	x, y := separable(arch, 4)

	bad := DefaultTrainConfig()
	bad.Epochs = 0
	_, err := Fit(context.Background(), n, x, y, bad)
	assert.Error(t, err)

	short := &dataset.Array[int64]{Shape: []int{3}, Data: []int64{0, 1, 0}}
	_, err = Fit(context.Background(), n, x, short, DefaultTrainConfig())
	assert.Error(t, err)

	y.Data[0] = 2
	_, err = Fit(context.Background(), n, x, y, DefaultTrainConfig())
	assert.Error(t, err)
}

func TestFitCancelled(t *testing.T) {
	arch := smallArch()
	n, _ := NewNetwork(arch, 1)
	x, y := separable(arch, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fit(ctx, n, x, y, DefaultTrainConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredictShapeAndRange(t *testing.T) {
	n, err := NewNetwork(DefaultArchitecture(), 42)
	require.NoError(t, err)
	model := NewModel(n, TrainingSummary{})

	p, err := model.Predict(matrixOf(13, 200, 0.5))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)

	again, err := model.Predict(matrixOf(13, 200, 0.5))
	require.NoError(t, err)
	assert.Equal(t, p, again)

	_, err = model.Predict(matrixOf(13, 199, 0.5))
	var perr *PredictionError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrShape)

	_, err = model.Predict(nil)
	assert.ErrorIs(t, err, ErrShape)
}

func TestCheckpointRoundTrip(t *testing.T) {
	n, err := NewNetwork(DefaultArchitecture(), 9)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), DefaultCheckpointFile)
	summary := TrainingSummary{TrainedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), Epochs: 10, BatchSize: 1, Examples: 4}
	require.NoError(t, SaveCheckpoint(path, n, summary))

	loaded, err := Load(path)
	require.NoError(t, err)
	defer loaded.Close()

	input := matrixOf(13, 200, 0)
	for i := range input.Data {
		input.Data[i] = float32(math.Cos(float64(i)))
	}
	want, err := NewModel(n, summary).Predict(input)
	require.NoError(t, err)
	got, err := loaded.Predict(input)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	info := loaded.Info()
	assert.Equal(t, "native", info.Backend)
	assert.Equal(t, path, info.Path)
	assert.Equal(t, 10, info.Epochs)
	assert.True(t, summary.TrainedAt.Equal(info.TrainedAt))
}

func TestLoadFailures(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.ckpt"))
	var perr *PredictionError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, os.ErrNotExist)

	corrupt := filepath.Join(dir, "corrupt.ckpt")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a model"), 0o644))
	_, err = Load(corrupt)
	require.ErrorAs(t, err, &perr)

	_, err = Load(filepath.Join(dir, "model.h5"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		p          float64
		label      models.Label
		verdict    string
		confidence float64
	}{
		{0.9, models.LabelReal, "Real Audio", 0.9},
		{0.2, models.LabelFake, "Fake Audio", 0.8},
		{0.5, models.LabelFake, "Fake Audio", 0.5},
		{0.5000001, models.LabelReal, "Real Audio", 0.5000001},
		{0, models.LabelFake, "Fake Audio", 1},
	}
	for _, tt := range tests {
		d := Decide(tt.p)
		assert.Equal(t, tt.label, d.Label, "p=%v", tt.p)
		assert.Equal(t, tt.verdict, d.Verdict, "p=%v", tt.p)
		assert.InDelta(t, tt.confidence, d.Confidence, 1e-12, "p=%v", tt.p)
		assert.GreaterOrEqual(t, d.Confidence, 0.5)
	}
}

type constPredictor float64

func (c constPredictor) Predict(*mfcc.Matrix) (float64, error) { return float64(c), nil }
func (c constPredictor) Info() ModelInfo                      { return ModelInfo{Backend: "const"} }
func (c constPredictor) Close() error                         { return nil }

func TestEvaluate(t *testing.T) {
	x, y := separable(Architecture{InputRows: 2, InputCols: 3, InputChannels: 1}, 4)

	m, err := Evaluate(context.Background(), constPredictor(0.9), x, y)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Total)
	assert.Equal(t, 2, m.Correct)
	assert.Equal(t, 0.5, m.Accuracy)
	assert.Equal(t, [2][2]int{{0, 2}, {0, 2}}, m.Confusion)
	assert.InDelta(t, (-math.Log(0.1)-math.Log(0.9))/2, m.Loss, 1e-9)
}

func TestPredictionErrorUnwrap(t *testing.T) {
	err := error(&PredictionError{Op: "predict", Err: ErrNonFinite})
	assert.True(t, errors.Is(err, ErrNonFinite))
	assert.Contains(t, err.Error(), "classifier predict")
}
