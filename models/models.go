package models

import (
	"fmt"
	"strings"
	"time"
)

// Label is the ground-truth or predicted class of a clip.
type Label int

const (
	LabelFake Label = iota
	LabelReal
)

// Labels lists every label in dataset order. The index of each label is its
// encoded value.
var Labels = []Label{LabelFake, LabelReal}

// String returns the directory name used for the label.
func (l Label) String() string {
	switch l {
	case LabelFake:
		return "fake"
	case LabelReal:
		return "real"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

// DisplayName is the human facing verdict text.
func (l Label) DisplayName() string {
	switch l {
	case LabelReal:
		return "Real Audio"
	default:
		return "Fake Audio"
	}
}

func (l Label) Valid() bool {
	return l == LabelFake || l == LabelReal
}

func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fake":
		return LabelFake, nil
	case "real":
		return LabelReal, nil
	}
	return 0, fmt.Errorf("unknown label %q", s)
}

func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid label %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(text []byte) error {
	parsed, err := ParseLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UploadPayload is the socket message carrying a base64 encoded audio file.
type UploadPayload struct {
	FileName string `json:"fileName"`
	Audio    string `json:"audio"`
}

// Analysis is one front-end classification, kept in the history store.
type Analysis struct {
	ID          string    `json:"id" bson:"_id"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	FileName    string    `json:"fileName" bson:"file_name"`
	Label       Label     `json:"label" bson:"label"`
	Verdict     string    `json:"verdict" bson:"verdict"`
	Probability float64   `json:"probability" bson:"probability"`
	Confidence  float64   `json:"confidence" bson:"confidence"`
	Frames      int       `json:"frames" bson:"frames"`
	Duration    float64   `json:"durationSec" bson:"duration_sec"`
	LatencyMs   float64   `json:"latencyMs" bson:"latency_ms"`
	Source      string    `json:"source" bson:"source"`
}
