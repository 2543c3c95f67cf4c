package element

import (
	"math"

	"flowsim/internal/consts"
	"flowsim/pkg/expr"
	"flowsim/pkg/matrix"
)

// Equation evaluates a user formula of time, parameters a..h, and registry
// names (labeled nodes, computed values) and drives its single output pin to
// the result. No integration; the value is recomputed every iteration.
type Equation struct {
	BaseElement
	fn       *expr.Expr
	state    expr.State
	params   []float64
	lastEq   float64
	value    float64
	parseErr error
}

func NewEquation(name, formula string, params []float64) *Equation {
	e := &Equation{
		BaseElement: NewBaseElement(name, 1, 1),
		params:      params,
	}
	e.fn, e.parseErr = expr.Compile(formula)
	return e
}

func (e *Equation) Type() string    { return "EQN" }
func (e *Equation) ParseErr() error { return e.parseErr }
func (e *Equation) Value() float64  { return e.value }

func (e *Equation) Stamp(m matrix.Stamper, st *Status) error {
	m.StampNonLinear(m.VoltageSourceRow(e.vs[0]))
	m.StampVoltageSource(e.nodes[0], 0, e.vs[0])
	return nil
}

func (e *Equation) DoStep(m matrix.Stamper, st *Status) {
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

	if math.Abs(eq-e.lastEq) > ConvergeLimit(st.SubIterations, math.Max(math.Abs(eq), math.Abs(e.lastEq))) {
		st.SetNotConverged()
	}
	e.lastEq = eq
	e.value = eq

	outputDelta := math.Abs(e.volts[0] - eq)
	threshold := math.Max(math.Abs(eq)*0.01, consts.DerivEpsilon)
	if outputDelta > threshold && st.SubIterations < 100 {
		st.SetNotConverged()
	}

	m.UpdateVoltageSource(e.vs[0], eq)
}

func (e *Equation) Reset() {
	e.BaseElement.Reset()
	e.lastEq = 0
	e.value = 0
	e.state.Reset()
}
