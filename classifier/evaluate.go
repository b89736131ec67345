package classifier

import (
	"context"
	"fmt"
	"math"

	"voiceguard/dataset"
	"voiceguard/models"
)

// Metrics summarise a predictor over a labelled array.
type Metrics struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
	Loss     float64 `json:"loss"`
	// Confusion[actual][predicted], indexed by label value.
	Confusion [2][2]int `json:"confusion"`
}

// Evaluate scores every example of x against y.
func Evaluate(ctx context.Context, p Predictor, x *dataset.Array[float32], y *dataset.Array[int64]) (Metrics, error) {
	labels, err := dataset.Labels(y)
	if err != nil {
		return Metrics{}, err
	}
	if x.Len() != len(labels) {
		return Metrics{}, fmt.Errorf("%d feature rows but %d labels", x.Len(), len(labels))
	}

	const eps = 1e-7
	var m Metrics
	var lossSum float64
	for i, actual := range labels {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		mat, err := dataset.Example(x, i)
		if err != nil {
			return m, err
		}
		prob, err := p.Predict(mat)
		if err != nil {
			return m, fmt.Errorf("example %d: %w", i, err)
		}

		d := Decide(prob)
		m.Confusion[actual][d.Label]++
		if d.Label == actual {
			m.Correct++
		}
		clipped := math.Min(math.Max(prob, eps), 1-eps)
		if actual == models.LabelReal {
			lossSum -= math.Log(clipped)
		} else {
			lossSum -= math.Log(1 - clipped)
		}
		m.Total++
	}
	if m.Total > 0 {
		m.Accuracy = float64(m.Correct) / float64(m.Total)
		m.Loss = lossSum / float64(m.Total)
	}
	return m, nil
}
