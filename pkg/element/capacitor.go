package element

import (
	"fmt"

	"flowsim/pkg/matrix"
)

// Capacitor uses the backward-Euler companion model: a conductance C/dt in
// parallel with a current source carrying the previous timestep's voltage.
type Capacitor struct {
	BaseElement
	value    float64
	initial  float64
	voltage0 float64 // converged voltage of the previous timestep
}

func NewCapacitor(name string, value, initial float64) (*Capacitor, error) {
	if value <= 0 {
		return nil, fmt.Errorf("capacitor %s: capacitance must be positive, got %g", name, value)
	}
	return &Capacitor{
		BaseElement: NewBaseElement(name, 2, 0),
		value:       value,
		initial:     initial,
		voltage0:    initial,
	}, nil
}

func (c *Capacitor) Type() string   { return "C" }
func (c *Capacitor) Value() float64 { return c.value }

func (c *Capacitor) Stamp(m matrix.Stamper, st *Status) error {
	if st.TimeStep <= 0 {
		return fmt.Errorf("capacitor %s: zero timestep", c.name)
	}
	geq := c.value / st.TimeStep
	m.StampConductance(c.nodes[0], c.nodes[1], geq)
	m.StampCurrentSource(c.nodes[0], c.nodes[1], geq*c.voltage0)
	return nil
}

func (c *Capacitor) StepFinished(st *Status) {
	c.voltage0 = c.volts[0] - c.volts[1]
}

func (c *Capacitor) Reset() {
	c.BaseElement.Reset()
	c.voltage0 = c.initial
}
