package element

import (
	"math"

	"flowsim/internal/consts"
	"flowsim/pkg/matrix"
)

// Multiplier outputs the product of its input voltages. Inputs are
// high-impedance, so no derivative linearization is needed: the output is
// stamped directly and the convergence check alone drives iteration.
type Multiplier struct {
	BaseElement
	inputCount int
}

func NewMultiplier(name string, inputCount int) *Multiplier {
	return &Multiplier{
		BaseElement: NewBaseElement(name, inputCount+1, 1),
		inputCount:  inputCount,
	}
}

func (e *Multiplier) Type() string    { return "MUL" }
func (e *Multiplier) InputCount() int { return e.inputCount }

func (e *Multiplier) outputRow(m matrix.Stamper) int {
	return m.VoltageSourceRow(e.vs[0])
}

func (e *Multiplier) Stamp(m matrix.Stamper, st *Status) error {
	m.StampNonLinear(e.outputRow(m))
	m.StampVoltageSource(e.nodes[e.inputCount], 0, e.vs[0])
	return nil
}

func (e *Multiplier) DoStep(m matrix.Stamper, st *Status) {
	v0 := 1.0
	for i := 0; i < e.inputCount; i++ {
		v0 *= e.volts[i]
	}

	// Minimum threshold avoids false convergence failures near zero. Stop
	// vetoing once the iteration count is deep in the refinement phase.
	outputDelta := math.Abs(e.volts[e.inputCount] - v0)
	tolerance := math.Max(math.Abs(v0)*0.001, consts.MinTolerance)
	if outputDelta > tolerance && st.SubIterations < 100 {
		st.SetNotConverged()
	}

	m.UpdateVoltageSource(e.vs[0], v0)
}
