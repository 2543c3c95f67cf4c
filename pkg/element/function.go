package element

import (
	"math"

	"flowsim/internal/consts"
	"flowsim/pkg/expr"
	"flowsim/pkg/matrix"
)

// Function is an expression-driven VCVS: Vout = f(a, b, ..., t) where a..h
// are the input pin voltages. Each iteration it linearizes f around the
// current iterate by central-difference numerical differentiation and stamps
// the resulting Jacobian row plus adjusted RHS.
//
// The perturbation for each input is that input's last-iteration delta, the
// natural step scale of the iteration, falling back to 1e-6 when the iterate
// has stopped moving. Derivatives below 1e-6 magnitude are clamped to +-1e-6
// with sign preserved so the branch row never loses its pivot.
type Function struct {
	BaseElement
	inputCount int
	fn         *expr.Expr
	state      expr.State
	lastVolts  []float64
	parseErr   error
}

func NewFunction(name string, inputCount int, formula string) *Function {
	if inputCount < 1 {
		inputCount = 1
	}
	if inputCount > expr.NumParams {
		inputCount = expr.NumParams
	}
	e := &Function{
		BaseElement: NewBaseElement(name, inputCount+1, 1),
		inputCount:  inputCount,
		lastVolts:   make([]float64, inputCount),
	}
	e.fn, e.parseErr = expr.Compile(formula)
	return e
}

func (e *Function) Type() string    { return "FN" }
func (e *Function) InputCount() int { return e.inputCount }

// ParseErr reports a formula parse failure. A failed element stamps nothing;
// the run continues without its contribution.
func (e *Function) ParseErr() error { return e.parseErr }

func (e *Function) Stamp(m matrix.Stamper, st *Status) error {
	m.StampNonLinear(m.VoltageSourceRow(e.vs[0]))
	m.StampVoltageSource(e.nodes[e.inputCount], 0, e.vs[0])
	return nil
}

func (e *Function) DoStep(m matrix.Stamper, st *Status) {
	if e.fn == nil {
		return
	}

	for i := 0; i < e.inputCount; i++ {
		if math.Abs(e.volts[i]-e.lastVolts[i]) > ConvergeLimit(st.SubIterations, e.volts[i]) {
			st.SetNotConverged()
		}
	}

	for i := 0; i < e.inputCount; i++ {
		e.state.Values[i] = e.volts[i]
	}
	e.state.T = st.Time
	e.state.TimeStep = st.TimeStep
	e.state.Vars = st.Registry.vars(st.NodeVoltage)

	v0, err := e.fn.Eval(&e.state)
	if err != nil {
		e.parseErr = err
		return
	}

	row := m.VoltageSourceRow(e.vs[0])
	rs := v0

	for i := 0; i < e.inputCount; i++ {
		dv := e.volts[i] - e.lastVolts[i]
		if math.Abs(dv) < consts.DerivEpsilon {
			dv = consts.DerivEpsilon
		}

		e.state.Values[i] = e.volts[i] + dv*0.5
		vhi, errHi := e.fn.Eval(&e.state)
		e.state.Values[i] = e.volts[i] - dv*0.5
		vlo, errLo := e.fn.Eval(&e.state)
		e.state.Values[i] = e.volts[i]
		if errHi != nil || errLo != nil {
			continue
		}

		dx := (vhi - vlo) / dv
		if math.Abs(dx) < consts.DerivEpsilon {
			dx = math.Copysign(consts.DerivEpsilon, dx)
		}

		m.StampMatrix(row, e.nodes[i], -dx)
		rs -= dx * e.volts[i]
	}

	m.StampRightSide(row, rs)

	copy(e.lastVolts, e.volts[:e.inputCount])
}

func (e *Function) Reset() {
	e.BaseElement.Reset()
	for i := range e.lastVolts {
		e.lastVolts[i] = 0
	}
	e.state.Reset()
}
