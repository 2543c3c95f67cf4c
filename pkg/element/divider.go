package element

import (
	"fmt"
	"math"

	"flowsim/internal/consts"
	"flowsim/pkg/expr"
	"flowsim/pkg/matrix"
)

// Divider computes V1 / V2 / ... as multiplication by reciprocals, with a
// tiny epsilon substituted for zero denominators so the output stays finite
// and the solver keeps progressing. The quotient is built as a compiled
// expression: a * (1/(b != 0 ? b : 1e-9)) * ...
type Divider struct {
	BaseElement
	inputCount int
	quotient   *expr.Expr
	state      expr.State
	parseErr   error
}

func NewDivider(name string, inputCount int) *Divider {
	if inputCount < 2 {
		inputCount = 2
	}
	if inputCount > expr.NumParams {
		inputCount = expr.NumParams
	}
	d := &Divider{
		BaseElement: NewBaseElement(name, inputCount+1, 1),
		inputCount:  inputCount,
	}

	src := expr.ParamNames[0]
	for i := 1; i < inputCount; i++ {
		v := expr.ParamNames[i]
		src += fmt.Sprintf("*(1/(%s != 0 ? %s : %g))", v, v, consts.DivEpsilon)
	}
	d.quotient, d.parseErr = expr.Compile(src)
	return d
}

func (e *Divider) Type() string    { return "DIV" }
func (e *Divider) InputCount() int { return e.inputCount }
func (e *Divider) ParseErr() error { return e.parseErr }

func (e *Divider) Stamp(m matrix.Stamper, st *Status) error {
	m.StampNonLinear(m.VoltageSourceRow(e.vs[0]))
	m.StampVoltageSource(e.nodes[e.inputCount], 0, e.vs[0])
	return nil
}

func (e *Divider) DoStep(m matrix.Stamper, st *Status) {
	if e.quotient == nil {
		return
	}
	for i := 0; i < e.inputCount; i++ {
		e.state.Values[i] = e.volts[i]
	}
	e.state.T = st.Time

	v0, err := e.quotient.Eval(&e.state)
	if err != nil {
		return
	}

	outputDelta := math.Abs(e.volts[e.inputCount] - v0)
	tolerance := math.Max(math.Abs(v0)*0.001, consts.MinTolerance)
	if outputDelta > tolerance && st.SubIterations < 100 {
		st.SetNotConverged()
	}

	m.UpdateVoltageSource(e.vs[0], v0)
}
