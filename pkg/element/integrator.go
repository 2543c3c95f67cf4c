package element

import (
	"math"

	"flowsim/internal/consts"
	"flowsim/pkg/matrix"
)

// Integrator accumulates its input pin over time: y[n+1] = y[n] + dt * Vin.
// Pin 0 is the input, pin 1 the driven output.
type Integrator struct {
	BaseElement
	initial    float64
	lastOutput float64
	integrated float64
}

func NewIntegrator(name string, initial float64) *Integrator {
	return &Integrator{
		BaseElement: NewBaseElement(name, 2, 1),
		initial:     initial,
		lastOutput:  initial,
		integrated:  initial,
	}
}

func (e *Integrator) Type() string            { return "INT" }
func (e *Integrator) IntegratedValue() float64 { return e.integrated }

func (e *Integrator) Stamp(m matrix.Stamper, st *Status) error {
	m.StampNonLinear(m.VoltageSourceRow(e.vs[0]))
	m.StampVoltageSource(e.nodes[1], 0, e.vs[0])
	return nil
}

func (e *Integrator) DoStep(m matrix.Stamper, st *Status) {
	if st.TimeStepCount == 0 {
		e.lastOutput = e.initial
		e.integrated = e.initial
	}

	e.integrated = e.lastOutput + st.TimeStep*e.volts[0]

	outputDelta := math.Abs(e.volts[1] - e.integrated)
	threshold := math.Max(math.Abs(e.integrated)*0.01, consts.DerivEpsilon)
	if outputDelta > threshold && st.SubIterations < 100 {
		st.SetNotConverged()
	}

	m.UpdateVoltageSource(e.vs[0], e.integrated)
}

func (e *Integrator) StepFinished(st *Status) {
	e.lastOutput = e.integrated
}

func (e *Integrator) Reset() {
	e.BaseElement.Reset()
	e.lastOutput = e.initial
	e.integrated = e.initial
}
