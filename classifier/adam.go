package classifier

import "math"

// Adam optimiser with the bias correction folded into the step size.
type adam struct {
	lr, beta1, beta2, eps float64
	step                  int
	m, v                  [][]float64
}

func newAdam(n *Network, lr float64) *adam {
	return &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-7,
		m:     n.zeroLike(),
		v:     n.zeroLike(),
	}
}

func (o *adam) apply(params, grads [][]float64) {
	o.step++
	t := float64(o.step)
	alpha := o.lr * math.Sqrt(1-math.Pow(o.beta2, t)) / (1 - math.Pow(o.beta1, t))

	for i, p := range params {
		g, m, v := grads[i], o.m[i], o.v[i]
		for j := range p {
			m[j] += (g[j] - m[j]) * (1 - o.beta1)
			v[j] += (g[j]*g[j] - v[j]) * (1 - o.beta2)
			p[j] -= alpha * m[j] / (math.Sqrt(v[j]) + o.eps)
		}
	}
}
