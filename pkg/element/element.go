// Package element defines the stamping capability circuit elements implement
// and the element set of the simulator: linear devices, nonlinear devices,
// and the expression-driven math elements.
package element

import (
	"math"

	"flowsim/pkg/matrix"
)

// Element is the capability contract each circuit participant implements.
//
// Stamp contributes linear/structural terms and runs every iteration right
// after the buffer is cleared. DoStep contributes the nonlinear linearized
// terms of the current iterate; linear elements leave it a no-op.
// StepFinished runs once per timestep after the iteration loop converges and
// carries over any one-step-delay state.
type Element interface {
	Name() string
	Type() string
	Nodes() []int
	SetNodes(nodes []int)
	PostCount() int
	VoltageSourceCount() int
	SetVoltageSource(n, vs int)
	VoltageSource(n int) int
	SetNodeVoltage(pin int, v float64)
	Volts() []float64
	Stamp(m matrix.Stamper, st *Status) error
	DoStep(m matrix.Stamper, st *Status)
	StepFinished(st *Status)
	Reset()
}

// Status is the per-iteration view of the simulation elements stamp against.
// The solver owns it; elements only read fields and set the two latches.
type Status struct {
	Time          float64
	TimeStep      float64
	SubIterations int
	TimeStepCount int
	Registry      *Registry

	// NodeVoltage reads the current iterate's voltage for a node index.
	// Ground (node 0) reads 0.
	NodeVoltage func(node int) float64

	converged bool
	stop      bool
}

// BeginIteration arms the aggregate convergence latch. Every element's
// private check must hold for the iteration to count as converged.
func (st *Status) BeginIteration() { st.converged = true }

// SetNotConverged signals that this element's quantities still moved beyond
// tolerance in the current iteration.
func (st *Status) SetNotConverged() { st.converged = false }

func (st *Status) Converged() bool { return st.converged }

// RequestStop asks the scheduler to halt the run after this timestep.
func (st *Status) RequestStop()        { st.stop = true }
func (st *Status) StopRequested() bool { return st.stop }

// ConvergeLimit is the shared tolerance band: tight while the iterate is
// refining, looser once iteration count grows so a slowly-settling quantity
// does not stall the whole step. Scaled by max(1, |magnitude|) so large
// signals are judged relatively and small ones absolutely.
func ConvergeLimit(subIterations int, magnitude float64) float64 {
	var rel float64
	switch {
	case subIterations < 10:
		rel = 0.001
	case subIterations < 100:
		rel = 0.01
	default:
		rel = 0.1
	}
	return math.Max(1.0, math.Abs(magnitude)) * rel
}

// BaseElement carries the bookkeeping every element shares: name, resolved
// node indices, per-pin voltages of the current iterate, and assigned
// voltage-source slots.
type BaseElement struct {
	name  string
	nodes []int
	volts []float64
	vs    []int
}

func NewBaseElement(name string, postCount, vsCount int) BaseElement {
	return BaseElement{
		name:  name,
		nodes: make([]int, postCount),
		volts: make([]float64, postCount),
		vs:    make([]int, vsCount),
	}
}

func (b *BaseElement) Name() string  { return b.name }
func (b *BaseElement) Nodes() []int  { return b.nodes }
func (b *BaseElement) PostCount() int { return len(b.nodes) }

func (b *BaseElement) SetNodes(nodes []int) {
	b.nodes = nodes
	b.volts = make([]float64, len(nodes))
}

func (b *BaseElement) VoltageSourceCount() int    { return len(b.vs) }
func (b *BaseElement) SetVoltageSource(n, vs int) { b.vs[n] = vs }
func (b *BaseElement) VoltageSource(n int) int    { return b.vs[n] }

func (b *BaseElement) SetNodeVoltage(pin int, v float64) { b.volts[pin] = v }
func (b *BaseElement) Volts() []float64                  { return b.volts }

// Default hooks; elements override what they need.
func (b *BaseElement) DoStep(m matrix.Stamper, st *Status) {}
func (b *BaseElement) StepFinished(st *Status)             {}

func (b *BaseElement) Reset() {
	for i := range b.volts {
		b.volts[i] = 0
	}
}
