package element

import (
	"math"

	"flowsim/internal/consts"
	"flowsim/pkg/matrix"
)

// Differentiator outputs (Vin - Vin[n-1]) / dt. It settles for one full
// timestep after reset so the first derivative is computed from a stabilized
// input instead of the arbitrary initial solve. lastVolt updates only in
// StepFinished; updating it mid-iteration would feed the derivative its own
// transient.
type Differentiator struct {
	BaseElement
	lastVolt    float64
	needsSettle bool
	settleStep  int
}

func NewDifferentiator(name string) *Differentiator {
	return &Differentiator{
		BaseElement: NewBaseElement(name, 2, 1),
		needsSettle: true,
		settleStep:  -1,
	}
}

func (e *Differentiator) Type() string { return "DDT" }

func (e *Differentiator) Stamp(m matrix.Stamper, st *Status) error {
	m.StampNonLinear(m.VoltageSourceRow(e.vs[0]))
	m.StampVoltageSource(e.nodes[1], 0, e.vs[0])
	return nil
}

func (e *Differentiator) DoStep(m matrix.Stamper, st *Status) {
	if e.needsSettle {
		if e.settleStep < 0 {
			e.settleStep = st.TimeStepCount
		}
		if st.TimeStepCount <= e.settleStep {
			e.lastVolt = e.volts[0]
			m.UpdateVoltageSource(e.vs[0], 0)
			return
		}
		e.needsSettle = false
	}

	if st.TimeStep <= 0 {
		m.UpdateVoltageSource(e.vs[0], 0)
		return
	}

	v0 := (e.volts[0] - e.lastVolt) / st.TimeStep

	outputDelta := math.Abs(e.volts[1] - v0)
	tolerance := math.Max(math.Abs(v0)*0.001, consts.MinTolerance)
	if outputDelta > tolerance && st.SubIterations < 100 {
		st.SetNotConverged()
	}

	m.UpdateVoltageSource(e.vs[0], v0)
}

func (e *Differentiator) StepFinished(st *Status) {
	e.lastVolt = e.volts[0]
}

func (e *Differentiator) Reset() {
	e.BaseElement.Reset()
	e.lastVolt = 0
	e.needsSettle = true
	e.settleStep = -1
}
