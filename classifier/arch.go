package classifier

import "fmt"

// Architecture describes the fixed network topology:
//
//	Conv2D(Filters, Kernel x Kernel, valid, relu)
//	MaxPool2D(Pool x Pool)
//	Dropout(ConvDropout)
//	Flatten
//	Dense(Hidden, relu)
//	Dropout(DenseDropout)
//	Dense(1, sigmoid)
type Architecture struct {
	InputRows     int     `msgpack:"input_rows" json:"inputRows"`
	InputCols     int     `msgpack:"input_cols" json:"inputCols"`
	InputChannels int     `msgpack:"input_channels" json:"inputChannels"`
	Filters       int     `msgpack:"filters" json:"filters"`
	Kernel        int     `msgpack:"kernel" json:"kernel"`
	Pool          int     `msgpack:"pool" json:"pool"`
	ConvDropout   float64 `msgpack:"conv_dropout" json:"convDropout"`
	Hidden        int     `msgpack:"hidden" json:"hidden"`
	DenseDropout  float64 `msgpack:"dense_dropout" json:"denseDropout"`
}

func DefaultArchitecture() Architecture {
	return Architecture{
		InputRows:     13,
		InputCols:     200,
		InputChannels: 1,
		Filters:       32,
		Kernel:        3,
		Pool:          2,
		ConvDropout:   0.25,
		Hidden:        64,
		DenseDropout:  0.5,
	}
}

func (a Architecture) Validate() error {
	switch {
	case a.InputRows <= 0 || a.InputCols <= 0 || a.InputChannels <= 0:
		return fmt.Errorf("invalid input shape (%d, %d, %d)", a.InputRows, a.InputCols, a.InputChannels)
	case a.Filters <= 0 || a.Hidden <= 0:
		return fmt.Errorf("layer sizes must be positive")
	case a.Kernel <= 0 || a.Kernel > a.InputRows || a.Kernel > a.InputCols:
		return fmt.Errorf("kernel %d does not fit input (%d, %d)", a.Kernel, a.InputRows, a.InputCols)
	case a.Pool <= 0 || a.convRows() < a.Pool || a.convCols() < a.Pool:
		return fmt.Errorf("pool %d does not fit conv output (%d, %d)", a.Pool, a.convRows(), a.convCols())
	case a.ConvDropout < 0 || a.ConvDropout >= 1 || a.DenseDropout < 0 || a.DenseDropout >= 1:
		return fmt.Errorf("dropout rates must be in [0, 1)")
	}
	return nil
}

func (a Architecture) InputShape() []int {
	return []int{a.InputRows, a.InputCols, a.InputChannels}
}

func (a Architecture) inputSize() int { return a.InputRows * a.InputCols * a.InputChannels }
func (a Architecture) convRows() int  { return a.InputRows - a.Kernel + 1 }
func (a Architecture) convCols() int  { return a.InputCols - a.Kernel + 1 }
func (a Architecture) poolRows() int  { return a.convRows() / a.Pool }
func (a Architecture) poolCols() int  { return a.convCols() / a.Pool }
func (a Architecture) convSize() int  { return a.convRows() * a.convCols() * a.Filters }

// FlatSize is the length of the flattened pooled feature map.
func (a Architecture) FlatSize() int { return a.poolRows() * a.poolCols() * a.Filters }

func (a Architecture) convKernelSize() int {
	return a.Kernel * a.Kernel * a.InputChannels * a.Filters
}

// ParameterCount is the number of trainable scalars.
func (a Architecture) ParameterCount() int {
	return a.convKernelSize() + a.Filters +
		a.FlatSize()*a.Hidden + a.Hidden +
		a.Hidden + 1
}
