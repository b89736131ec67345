package dataset

import (
	"errors"
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"voiceguard/mfcc"
	"voiceguard/models"
	"voiceguard/utils"
)

// Default dump file names.
const (
	DefaultFeaturesFile = "X.msgpack"
	DefaultLabelsFile   = "y.msgpack"
)

// Array is an n-dimensional array dump: a shape plus row-major data.
type Array[T float32 | int64] struct {
	Shape []int `msgpack:"shape"`
	Data  []T   `msgpack:"data"`
}

func (a *Array[T]) Validate() error {
	if len(a.Shape) == 0 {
		return errors.New("array has no shape")
	}
	size := 1
	for _, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("negative dimension in shape %v", a.Shape)
		}
		size *= d
	}
	if size != len(a.Data) {
		return fmt.Errorf("shape %v needs %d values, have %d", a.Shape, size, len(a.Data))
	}
	return nil
}

// Len is the size of the leading dimension.
func (a *Array[T]) Len() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return a.Shape[0]
}

// Save writes the array to path atomically.
func Save[T float32 | int64](path string, a *Array[T]) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("dataset: save %s: %w", path, err)
	}
	raw, err := msgpack.Marshal(a)
	if err != nil {
		return fmt.Errorf("dataset: encode %s: %w", path, err)
	}
	if err := utils.WriteFileAtomic(path, raw); err != nil {
		return fmt.Errorf("dataset: save %s: %w", path, err)
	}
	return nil
}

// Load reads an array previously written with Save.
func Load[T float32 | int64](path string) (*Array[T], error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: load %s: %w", path, err)
	}
	var a Array[T]
	if err := msgpack.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("dataset: decode %s: %w", path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("dataset: %s: %w", path, err)
	}
	return &a, nil
}

// LoadPair loads the feature and label dumps and checks they line up.
func LoadPair(featuresPath, labelsPath string) (*Array[float32], *Array[int64], error) {
	x, err := Load[float32](featuresPath)
	if err != nil {
		return nil, nil, err
	}
	y, err := Load[int64](labelsPath)
	if err != nil {
		return nil, nil, err
	}
	if len(x.Shape) != 4 {
		return nil, nil, fmt.Errorf("dataset: features must be 4-dimensional, got shape %v", x.Shape)
	}
	if len(y.Shape) != 1 {
		return nil, nil, fmt.Errorf("dataset: labels must be 1-dimensional, got shape %v", y.Shape)
	}
	if x.Len() != y.Len() {
		return nil, nil, fmt.Errorf("dataset: %d feature rows but %d labels", x.Len(), y.Len())
	}
	return x, y, nil
}

// Example returns feature row i of an (N, rows, cols, 1) array as a matrix.
func Example(x *Array[float32], i int) (*mfcc.Matrix, error) {
	if len(x.Shape) != 4 || x.Shape[3] != 1 {
		return nil, fmt.Errorf("dataset: unexpected feature shape %v", x.Shape)
	}
	if i < 0 || i >= x.Shape[0] {
		return nil, fmt.Errorf("dataset: example %d out of range [0, %d)", i, x.Shape[0])
	}
	rows, cols := x.Shape[1], x.Shape[2]
	size := rows * cols
	m := mfcc.NewMatrix(rows, cols)
	copy(m.Data, x.Data[i*size:(i+1)*size])
	return m, nil
}

// Labels decodes a label array.
func Labels(y *Array[int64]) ([]models.Label, error) {
	out := make([]models.Label, len(y.Data))
	for i, v := range y.Data {
		l := models.Label(v)
		if !l.Valid() {
			return nil, fmt.Errorf("dataset: invalid label %d at row %d", v, i)
		}
		out[i] = l
	}
	return out, nil
}
