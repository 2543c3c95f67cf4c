package element

import (
	"flowsim/pkg/matrix"
)

// Adder sums its input voltages onto a grounded output: Vout = V1 + V2 + ...
// It is a plain VCVS, linear, so it never forces extra iterations.
type Adder struct {
	BaseElement
	coefs []float64
}

func NewAdder(name string, inputCount int) *Adder {
	coefs := make([]float64, inputCount)
	for i := range coefs {
		coefs[i] = 1.0
	}
	return newWeightedSum(name, coefs)
}

// NewSubtracter builds Vout = V1 - V2 - V3 - ...
func NewSubtracter(name string, inputCount int) *Adder {
	coefs := make([]float64, inputCount)
	coefs[0] = 1.0
	for i := 1; i < inputCount; i++ {
		coefs[i] = -1.0
	}
	return newWeightedSum(name, coefs)
}

func newWeightedSum(name string, coefs []float64) *Adder {
	// Pins: inputs first, output last.
	return &Adder{
		BaseElement: NewBaseElement(name, len(coefs)+1, 1),
		coefs:       coefs,
	}
}

func (a *Adder) Type() string    { return "ADD" }
func (a *Adder) InputCount() int { return len(a.coefs) }

func (a *Adder) Stamp(m matrix.Stamper, st *Status) error {
	out := a.nodes[len(a.coefs)]
	m.StampVoltageSource(out, 0, a.vs[0])
	for i, coef := range a.coefs {
		m.StampVCVS(a.nodes[i], 0, coef, a.vs[0])
	}
	return nil
}
