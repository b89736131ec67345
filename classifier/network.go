package classifier

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// Network holds the learned parameters. Kernels use channels-last layout:
// conv kernel index ((kh*Kernel+kw)*InputChannels+ic)*Filters+f, dense
// kernel index i*out+o. Inference never mutates a Network, so one value can
// serve concurrent callers.
type Network struct {
	Arch Architecture

	ConvKernel  []float64
	ConvBias    []float64
	DenseKernel []float64
	DenseBias   []float64
	OutKernel   []float64
	OutBias     []float64
}

// NewNetwork allocates a network with Glorot uniform kernels and zero biases.
func NewNetwork(arch Architecture, seed uint64) (*Network, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	rng := newRNG(seed)

	n := &Network{
		Arch:        arch,
		ConvKernel:  make([]float64, arch.convKernelSize()),
		ConvBias:    make([]float64, arch.Filters),
		DenseKernel: make([]float64, arch.FlatSize()*arch.Hidden),
		DenseBias:   make([]float64, arch.Hidden),
		OutKernel:   make([]float64, arch.Hidden),
		OutBias:     make([]float64, 1),
	}

	receptive := arch.Kernel * arch.Kernel
	glorotUniform(rng, n.ConvKernel, receptive*arch.InputChannels, receptive*arch.Filters)
	glorotUniform(rng, n.DenseKernel, arch.FlatSize(), arch.Hidden)
	glorotUniform(rng, n.OutKernel, arch.Hidden, 1)
	return n, nil
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
}

func glorotUniform(rng *rand.Rand, w []float64, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
}

// params lists parameter tensors in a fixed order shared with gradients and
// optimiser state.
func (n *Network) params() [][]float64 {
	return [][]float64{n.ConvKernel, n.ConvBias, n.DenseKernel, n.DenseBias, n.OutKernel, n.OutBias}
}

func (n *Network) zeroLike() [][]float64 {
	ps := n.params()
	out := make([][]float64, len(ps))
	for i, p := range ps {
		out[i] = make([]float64, len(p))
	}
	return out
}

func (n *Network) checkShapes() error {
	a := n.Arch
	want := []int{a.convKernelSize(), a.Filters, a.FlatSize() * a.Hidden, a.Hidden, a.Hidden, 1}
	for i, p := range n.params() {
		if len(p) != want[i] {
			return fmt.Errorf("parameter tensor %d has %d values, want %d", i, len(p), want[i])
		}
	}
	return nil
}

// activations keeps what backward needs from one forward pass.
type activations struct {
	input    []float64
	convPre  []float64
	poolArg  []int
	flat     []float64 // pooled output after dropout
	convMask []float64
	hidPre   []float64
	hidden   []float64 // after relu and dropout
	hidMask  []float64
	logit    float64
}

// forward runs one example. rng is only consulted when train is set.
func (n *Network) forward(input []float64, train bool, rng *rand.Rand) *activations {
	a := n.Arch
	ow, oh := a.convCols(), a.convRows()
	F := a.Filters
	C := a.InputChannels
	k := a.Kernel

	act := &activations{input: input}

	// conv + relu
	conv := make([]float64, a.convSize())
	for h := 0; h < oh; h++ {
		for w := 0; w < ow; w++ {
			out := conv[(h*ow+w)*F : (h*ow+w+1)*F]
			copy(out, n.ConvBias)
			for kh := 0; kh < k; kh++ {
				for kw := 0; kw < k; kw++ {
					base := ((h+kh)*a.InputCols + (w + kw)) * C
					for ic := 0; ic < C; ic++ {
						v := input[base+ic]
						if v == 0 {
							continue
						}
						tap := ((kh*k+kw)*C + ic) * F
						floats.AddScaled(out, v, n.ConvKernel[tap:tap+F])
					}
				}
			}
		}
	}
	act.convPre = conv
	relu := make([]float64, len(conv))
	for i, v := range conv {
		if v > 0 {
			relu[i] = v
		}
	}

	// max pool
	ph, pw, p := a.poolRows(), a.poolCols(), a.Pool
	pooled := make([]float64, a.FlatSize())
	arg := make([]int, a.FlatSize())
	for y := 0; y < ph; y++ {
		for x := 0; x < pw; x++ {
			for f := 0; f < F; f++ {
				best := math.Inf(-1)
				bestIdx := -1
				for dy := 0; dy < p; dy++ {
					for dx := 0; dx < p; dx++ {
						idx := ((y*p+dy)*ow+(x*p+dx))*F + f
						if relu[idx] > best {
							best = relu[idx]
							bestIdx = idx
						}
					}
				}
				o := (y*pw+x)*F + f
				pooled[o] = best
				arg[o] = bestIdx
			}
		}
	}
	act.poolArg = arg

	if train {
		act.convMask = dropoutMask(rng, len(pooled), a.ConvDropout)
		floats.Mul(pooled, act.convMask)
	}
	act.flat = pooled

	// dense + relu
	hid := make([]float64, a.Hidden)
	copy(hid, n.DenseBias)
	for i, v := range pooled {
		if v == 0 {
			continue
		}
		floats.AddScaled(hid, v, n.DenseKernel[i*a.Hidden:(i+1)*a.Hidden])
	}
	act.hidPre = hid
	hidden := make([]float64, a.Hidden)
	for i, v := range hid {
		if v > 0 {
			hidden[i] = v
		}
	}
	if train {
		act.hidMask = dropoutMask(rng, len(hidden), a.DenseDropout)
		floats.Mul(hidden, act.hidMask)
	}
	act.hidden = hidden

	act.logit = n.OutBias[0] + floats.Dot(hidden, n.OutKernel)
	return act
}

// backward accumulates parameter gradients for one example given dL/dlogit.
func (n *Network) backward(act *activations, gradLogit float64, grads [][]float64) {
	a := n.Arch
	F := a.Filters
	C := a.InputChannels
	k := a.Kernel
	ow, oh := a.convCols(), a.convRows()

	gConvK, gConvB, gDenseK, gDenseB, gOutK, gOutB := grads[0], grads[1], grads[2], grads[3], grads[4], grads[5]

	// output layer
	floats.AddScaled(gOutK, gradLogit, act.hidden)
	gOutB[0] += gradLogit

	gHid := make([]float64, a.Hidden)
	floats.AddScaled(gHid, gradLogit, n.OutKernel)
	if act.hidMask != nil {
		floats.Mul(gHid, act.hidMask)
	}
	for i, v := range act.hidPre {
		if v <= 0 {
			gHid[i] = 0
		}
	}

	// dense layer
	floats.Add(gDenseB, gHid)
	gFlat := make([]float64, len(act.flat))
	for i, v := range act.flat {
		row := n.DenseKernel[i*a.Hidden : (i+1)*a.Hidden]
		if v != 0 {
			floats.AddScaled(gDenseK[i*a.Hidden:(i+1)*a.Hidden], v, gHid)
		}
		gFlat[i] = floats.Dot(row, gHid)
	}
	if act.convMask != nil {
		floats.Mul(gFlat, act.convMask)
	}

	// unpool + relu
	gConv := make([]float64, a.convSize())
	for o, idx := range act.poolArg {
		if idx >= 0 && act.convPre[idx] > 0 {
			gConv[idx] += gFlat[o]
		}
	}

	// conv kernel and bias
	for h := 0; h < oh; h++ {
		for w := 0; w < ow; w++ {
			g := gConv[(h*ow+w)*F : (h*ow+w+1)*F]
			floats.Add(gConvB, g)
			for kh := 0; kh < k; kh++ {
				for kw := 0; kw < k; kw++ {
					base := ((h+kh)*a.InputCols + (w + kw)) * C
					for ic := 0; ic < C; ic++ {
						v := act.input[base+ic]
						if v == 0 {
							continue
						}
						tap := ((kh*k+kw)*C + ic) * F
						floats.AddScaled(gConvK[tap:tap+F], v, g)
					}
				}
			}
		}
	}
}

// dropoutMask returns an inverted dropout mask: kept units are scaled by
// 1/(1-rate) so inference needs no rescaling.
func dropoutMask(rng *rand.Rand, n int, rate float64) []float64 {
	mask := make([]float64, n)
	if rate <= 0 {
		for i := range mask {
			mask[i] = 1
		}
		return mask
	}
	keep := 1 / (1 - rate)
	for i := range mask {
		if rng.Float64() >= rate {
			mask[i] = keep
		}
	}
	return mask
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// bceWithLogit is binary cross-entropy computed from the logit for
// numerical stability.
func bceWithLogit(z, y float64) float64 {
	return math.Max(z, 0) - z*y + math.Log1p(math.Exp(-math.Abs(z)))
}
