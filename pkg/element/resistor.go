package element

import (
	"fmt"

	"flowsim/pkg/matrix"
)

type Resistor struct {
	BaseElement
	value float64
}

func NewResistor(name string, value float64) (*Resistor, error) {
	if value <= 0 {
		return nil, fmt.Errorf("resistor %s: resistance must be positive, got %g", name, value)
	}
	return &Resistor{
		BaseElement: NewBaseElement(name, 2, 0),
		value:       value,
	}, nil
}

func (r *Resistor) Type() string   { return "R" }
func (r *Resistor) Value() float64 { return r.value }

func (r *Resistor) Stamp(m matrix.Stamper, st *Status) error {
	m.StampResistor(r.nodes[0], r.nodes[1], r.value)
	return nil
}

// Current returns the ohmic current from pin 0 to pin 1 of the last iterate.
func (r *Resistor) Current() float64 {
	return (r.volts[0] - r.volts[1]) / r.value
}
