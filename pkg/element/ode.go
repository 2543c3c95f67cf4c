package element

import (
	"math"

	"flowsim/internal/consts"
	"flowsim/pkg/expr"
	"flowsim/pkg/matrix"
)

// ODE integrates a user formula over time: y[n+1] = y[n] + dt * f(t, ...).
// The formula may reference labeled nodes, computed values, and parameters
// a..h, so coupled systems (predator/prey, stock-flow loops) are expressed as
// several ODE elements reading each other's outputs through labeled nodes.
//
// The accumulator carries across iterations only through lastOutput, which is
// updated in StepFinished. That one-step delay keeps the iteration loop's
// restamps idempotent.
type ODE struct {
	BaseElement
	fn         *expr.Expr
	state      expr.State
	params     []float64
	initial    float64
	integrated float64
	lastEq     float64
	parseErr   error
}

func NewODE(name, formula string, initial float64, params []float64) *ODE {
	e := &ODE{
		BaseElement: NewBaseElement(name, 1, 1),
		params:      params,
		initial:     initial,
		integrated:  initial,
	}
	e.fn, e.parseErr = expr.Compile(formula)
	e.state.LastOutput = initial
	return e
}

func (e *ODE) Type() string    { return "ODE" }
func (e *ODE) ParseErr() error { return e.parseErr }

// IntegratedValue reports the accumulator; before the first step it equals
// the configured initial value.
func (e *ODE) IntegratedValue() float64 { return e.integrated }

func (e *ODE) Stamp(m matrix.Stamper, st *Status) error {
	m.StampNonLinear(m.VoltageSourceRow(e.vs[0]))
	m.StampVoltageSource(e.nodes[0], 0, e.vs[0])
	return nil
}

func (e *ODE) DoStep(m matrix.Stamper, st *Status) {
	// The initial condition applies exactly once, gated on the timestep
	// counter, never on elapsed wall-clock state.
	if st.TimeStepCount == 0 {
		e.state.LastOutput = e.initial
		e.integrated = e.initial
	}

	if e.fn == nil {
		return
	}

	for i, p := range e.params {
		if i < expr.NumParams {
			e.state.Values[i] = p
		}
	}
	e.state.T = st.Time
	e.state.TimeStep = st.TimeStep
	e.state.Vars = st.Registry.vars(st.NodeVoltage)

	eq, err := e.fn.Eval(&e.state)
	if err != nil {
		e.parseErr = err
		return
	}

	if math.Abs(eq-e.lastEq) > ConvergeLimit(st.SubIterations, math.Max(math.Abs(e.integrated), math.Abs(e.lastEq))) {
		st.SetNotConverged()
	}
	e.lastEq = eq

	e.integrated = e.state.LastOutput + st.TimeStep*eq

	outputDelta := math.Abs(e.volts[0] - e.integrated)
	threshold := math.Max(math.Abs(e.integrated)*0.01, consts.DerivEpsilon)
	if outputDelta > threshold && st.SubIterations < 100 {
		st.SetNotConverged()
	}

	m.UpdateVoltageSource(e.vs[0], e.integrated)
}

func (e *ODE) StepFinished(st *Status) {
	e.state.LastOutput = e.integrated
}

func (e *ODE) Reset() {
	e.BaseElement.Reset()
	e.state.Reset()
	e.state.LastOutput = e.initial
	e.integrated = e.initial
	e.lastEq = 0
}
