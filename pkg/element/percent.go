package element

import (
	"math"

	"flowsim/internal/consts"
	"flowsim/pkg/matrix"
)

// Percent outputs (V1 / V2 / ...) * 100. A near-zero denominator produces a
// safe 0 output and counts as converged rather than faulting.
type Percent struct {
	BaseElement
	inputCount int
}

func NewPercent(name string, inputCount int) *Percent {
	if inputCount < 2 {
		inputCount = 2
	}
	return &Percent{
		BaseElement: NewBaseElement(name, inputCount+1, 1),
		inputCount:  inputCount,
	}
}

func (e *Percent) Type() string    { return "PCT" }
func (e *Percent) InputCount() int { return e.inputCount }

func (e *Percent) Stamp(m matrix.Stamper, st *Status) error {
	m.StampNonLinear(m.VoltageSourceRow(e.vs[0]))
	m.StampVoltageSource(e.nodes[e.inputCount], 0, e.vs[0])
	return nil
}

func (e *Percent) DoStep(m matrix.Stamper, st *Status) {
	for i := 1; i < e.inputCount; i++ {
		if math.Abs(e.volts[i]) < consts.MinDenominator {
			m.UpdateVoltageSource(e.vs[0], 0)
			return
		}
	}

	v0 := e.volts[0]
	for i := 1; i < e.inputCount; i++ {
		v0 /= e.volts[i]
	}
	v0 *= 100

	outputDelta := math.Abs(e.volts[e.inputCount] - v0)
	tolerance := math.Max(math.Abs(v0)*0.01, consts.MinTolerance)
	if outputDelta > tolerance && st.SubIterations < 100 {
		st.SetNotConverged()
	}

	m.UpdateVoltageSource(e.vs[0], v0)
}
