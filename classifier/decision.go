package classifier

import "voiceguard/models"

// Threshold separates real from fake. Probabilities equal to it are fake.
const Threshold = 0.5

// Decision is the user facing verdict for one probability.
type Decision struct {
	Label       models.Label `json:"label"`
	Verdict     string       `json:"verdict"`
	Probability float64      `json:"probability"`
	Confidence  float64      `json:"confidence"`
}

// Decide maps P(real) to a label and the confidence in that label.
func Decide(p float64) Decision {
	if p > Threshold {
		return Decision{Label: models.LabelReal, Verdict: models.LabelReal.DisplayName(), Probability: p, Confidence: p}
	}
	return Decision{Label: models.LabelFake, Verdict: models.LabelFake.DisplayName(), Probability: p, Confidence: 1 - p}
}
