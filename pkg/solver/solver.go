// Package solver drives the stamp-solve cycle: the nonlinear iteration
// controller that repeats stamping and LU solves until every element's
// convergence check holds, and the timestep scheduler that advances simulated
// time and backs the timestep off when a step refuses to converge.
package solver

import (
	"errors"
	"fmt"
	"math"

	"flowsim/pkg/element"
	"flowsim/pkg/matrix"
)

// State is the iteration controller's phase for the current timestep.
type State int

const (
	StateInit State = iota
	StateIterating
	StateConverged
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIterating:
		return "ITERATING"
	case StateConverged:
		return "CONVERGED"
	case StateFailed:
		return "FAILED"
	}
	return "INIT"
}

// Options is the configuration surface. Supplied at construction; nothing is
// reconfigured mid-timestep.
type Options struct {
	TimeStep       float64
	MinTimeStep    float64 // 0: TimeStep/50
	MaxTimeStep    float64 // 0: TimeStep
	MaxIterations  int     // 0: 5000
	RelTol         float64 // 0: 1e-3; scaled by max(1, |v|) per quantity
	Damping        float64 // 0: 1 (full Newton update)
	AdjustTimeStep bool    // grow the step back after successful steps
	Backend        matrix.Backend
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.TimeStep <= 0 {
		opts.TimeStep = 1e-3
	}
	if opts.MinTimeStep <= 0 {
		opts.MinTimeStep = opts.TimeStep / 50.0
	}
	if opts.MaxTimeStep <= 0 {
		opts.MaxTimeStep = opts.TimeStep
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 5000
	}
	if opts.RelTol <= 0 {
		opts.RelTol = 1e-3
	}
	if opts.Damping <= 0 || opts.Damping > 1 {
		opts.Damping = 1.0
	}
	return opts
}

type pendingElement struct {
	el    element.Element
	nodes []string
}

// Simulator owns the circuit: elements, node/branch bookkeeping, the shared
// matrix buffer, and all time state. Single-threaded by design; the caller
// drives it with Advance and reads results between calls.
type Simulator struct {
	opts Options

	pending  []pendingElement
	elements []element.Element
	nodeMap  map[string]int
	numNodes int
	numVS    int

	mat      *matrix.Matrix
	registry *element.Registry
	status   *element.Status

	// volts is the current iterate, 1-based: node voltages then branch
	// currents. Index 0 is ground and stays 0.
	volts []float64

	time           float64
	timeStep       float64
	timeStepCount  int
	state          State
	subIterations  int
	nodesConverged bool

	results   *Results
	parseErrs []error
}

func New(opts Options) *Simulator {
	o := opts.withDefaults()
	return &Simulator{
		opts:     o,
		nodeMap:  make(map[string]int),
		registry: element.NewRegistry(),
		timeStep: o.TimeStep,
		results:  newResults(),
	}
}

// AddElement queues an element with its node names. "0" and "gnd" are
// ground. Call Prepare once all elements are added.
func (s *Simulator) AddElement(el element.Element, nodeNames ...string) error {
	if s.mat != nil {
		return fmt.Errorf("solver: topology is fixed after Prepare")
	}
	if len(nodeNames) != el.PostCount() {
		return fmt.Errorf("solver: element %s wants %d nodes, got %d",
			el.Name(), el.PostCount(), len(nodeNames))
	}
	s.pending = append(s.pending, pendingElement{el: el, nodes: nodeNames})
	return nil
}

func isGround(name string) bool { return name == "0" || name == "gnd" }

// Prepare analyzes the topology: assigns node indices (ground excluded from
// the unknown vector), appends one branch slot per voltage source, and
// creates the matrix buffer. Expression parse failures are collected here,
// not raised; a failed element simply stamps nothing.
func (s *Simulator) Prepare() error {
	if s.mat != nil {
		return fmt.Errorf("solver: Prepare called twice")
	}
	if len(s.pending) == 0 {
		return fmt.Errorf("solver: no elements")
	}

	for _, p := range s.pending {
		for _, name := range p.nodes {
			if isGround(name) {
				continue
			}
			if _, ok := s.nodeMap[name]; !ok {
				s.nodeMap[name] = len(s.nodeMap) + 1
			}
		}
	}
	s.numNodes = len(s.nodeMap)

	vs := 0
	for _, p := range s.pending {
		indices := make([]int, len(p.nodes))
		for i, name := range p.nodes {
			if isGround(name) {
				indices[i] = 0
				continue
			}
			indices[i] = s.nodeMap[name]
		}
		p.el.SetNodes(indices)

		for n := 0; n < p.el.VoltageSourceCount(); n++ {
			p.el.SetVoltageSource(n, vs)
			vs++
		}

		if pe, ok := p.el.(interface{ ParseErr() error }); ok && pe.ParseErr() != nil {
			s.parseErrs = append(s.parseErrs,
				fmt.Errorf("element %s: %w", p.el.Name(), pe.ParseErr()))
		}

		s.elements = append(s.elements, p.el)
	}
	s.numVS = vs
	s.pending = nil

	mat, err := matrix.New(s.numNodes, s.numVS, s.opts.Backend)
	if err != nil {
		return err
	}
	s.mat = mat
	s.volts = make([]float64, s.numNodes+s.numVS+1)

	s.status = &element.Status{
		Registry: s.registry,
		NodeVoltage: func(node int) float64 {
			if node <= 0 || node >= len(s.volts) {
				return 0
			}
			return s.volts[node]
		},
	}
	return nil
}

// step runs the iteration controller for one timestep attempt:
// INIT -> ITERATING -> CONVERGED | FAILED.
func (s *Simulator) step() error {
	s.state = StateIterating
	s.nodesConverged = true

	for iter := 0; iter < s.opts.MaxIterations; iter++ {
		s.subIterations = iter
		s.status.Time = s.time
		s.status.TimeStep = s.timeStep
		s.status.SubIterations = iter
		s.status.TimeStepCount = s.timeStepCount
		s.status.BeginIteration()

		s.mat.Clear()
		for _, el := range s.elements {
			if err := el.Stamp(s.mat, s.status); err != nil {
				s.state = StateFailed
				return fmt.Errorf("stamping %s: %w", el.Name(), err)
			}
		}
		for _, el := range s.elements {
			el.DoStep(s.mat, s.status)
		}

		// The convergence flags compare the elements' view of the previous
		// solve against their freshly computed outputs, so the gate sits
		// before the next factorization: breaking here leaves the voltages
		// the elements converged on untouched.
		if iter > 0 && s.status.Converged() && s.nodesConverged {
			s.state = StateConverged
			return nil
		}

		if err := s.mat.Solve(); err != nil {
			s.state = StateFailed
			var sing *matrix.SingularError
			if errors.As(err, &sing) {
				return fmt.Errorf("at t=%g: %w", s.time, err)
			}
			return fmt.Errorf("solving at t=%g: %w", s.time, err)
		}

		s.applySolution()

		if !s.mat.NonLinear() {
			// Purely linear systems are exact after one solve.
			s.state = StateConverged
			return nil
		}
	}

	s.state = StateFailed
	return &NonConvergenceError{
		Iterations: s.opts.MaxIterations,
		Time:       s.time,
		TimeStep:   s.timeStep,
	}
}

// applySolution moves the iterate toward the new solution (optionally
// damped), runs the global relative-tolerance check, and pushes pin voltages
// into every element.
func (s *Simulator) applySolution() {
	sol := s.mat.Solution()
	damping := s.opts.Damping
	if !s.mat.NonLinear() {
		// Linear systems take the exact solution in one jump; damping only
		// moderates the nonlinear iteration.
		damping = 1.0
	}
	converged := true

	for i := 1; i < len(s.volts); i++ {
		v := sol[i]
		if damping != 1.0 {
			v = s.volts[i] + damping*(v-s.volts[i])
		}
		diff := math.Abs(v - s.volts[i])
		tol := s.opts.RelTol * math.Max(1.0, math.Max(math.Abs(v), math.Abs(s.volts[i])))
		if diff > tol {
			converged = false
		}
		s.volts[i] = v
	}
	s.nodesConverged = converged

	for _, el := range s.elements {
		for pin, node := range el.Nodes() {
			if node == 0 {
				el.SetNodeVoltage(pin, 0)
				continue
			}
			el.SetNodeVoltage(pin, s.volts[node])
		}
	}
}

// Advance runs one timestep to convergence. On non-convergence the timestep
// is halved and the step retried; below the minimum timestep the run aborts
// with MinTimeStepError. Singular matrices are never retried.
func (s *Simulator) Advance() error {
	if s.mat == nil {
		return fmt.Errorf("solver: Prepare not called")
	}
	if s.status.StopRequested() {
		return ErrStopped
	}

	for {
		err := s.step()
		if err == nil {
			break
		}
		var nc *NonConvergenceError
		if errors.As(err, &nc) {
			if half := s.timeStep / 2; half >= s.opts.MinTimeStep {
				s.timeStep = half
				continue
			}
			return &MinTimeStepError{Time: s.time, MinStep: s.opts.MinTimeStep, Last: err}
		}
		return err
	}

	for _, el := range s.elements {
		el.StepFinished(s.status)
	}

	s.time += s.timeStep
	s.timeStepCount++
	s.record()

	if s.opts.AdjustTimeStep && s.timeStep < s.opts.MaxTimeStep {
		s.timeStep *= 1.2
		if s.timeStep > s.opts.MaxTimeStep {
			s.timeStep = s.opts.MaxTimeStep
		}
	}
	return nil
}

// RunToTime drives Advance until simulated time reaches tStop, under a hard
// step budget derived from the minimum timestep so a wedged circuit cannot
// loop forever. Uses the same primitive as free-running callers, so results
// are identical either way.
func (s *Simulator) RunToTime(tStop float64) error {
	if s.mat == nil {
		return fmt.Errorf("solver: Prepare not called")
	}

	budget := int((tStop-s.time)/s.opts.MinTimeStep) + 1000
	for steps := 0; s.time < tStop; steps++ {
		if steps >= budget {
			return fmt.Errorf("solver: step budget %d exhausted at t=%g", budget, s.time)
		}
		if err := s.Advance(); err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Reset rewinds to t=0: element state, node voltages, registry values, and
// recorded results. Topology is untouched.
func (s *Simulator) Reset() {
	s.time = 0
	s.timeStep = s.opts.TimeStep
	s.timeStepCount = 0
	s.subIterations = 0
	s.state = StateInit
	for i := range s.volts {
		s.volts[i] = 0
	}
	for _, el := range s.elements {
		el.Reset()
	}
	s.registry.Reset()
	s.results = newResults()
	if s.status != nil {
		*s.status = element.Status{
			Registry:    s.registry,
			NodeVoltage: s.status.NodeVoltage,
		}
	}
}
