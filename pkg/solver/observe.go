package solver

import (
	"flowsim/pkg/element"
)

// Read-only observer surface: side-effect-free queries for visualization,
// tests, and export tooling.

// Time returns the current simulated time.
func (s *Simulator) Time() float64 { return s.time }

// TimeStep returns the timestep the scheduler is currently using. It may be
// smaller than the configured step after a back-off.
func (s *Simulator) TimeStep() float64 { return s.timeStep }

// TimeStepCount is the number of successfully completed timesteps.
func (s *Simulator) TimeStepCount() int { return s.timeStepCount }

// IsConverged reports whether the last timestep attempt converged.
func (s *Simulator) IsConverged() bool { return s.state == StateConverged }

// IterationState exposes the controller's phase for the last attempt.
func (s *Simulator) IterationState() State { return s.state }

// SubIterations is the iteration count of the last stamp-solve loop.
func (s *Simulator) SubIterations() int { return s.subIterations }

// Stopped reports whether a stop-time element halted the run.
func (s *Simulator) Stopped() bool { return s.status != nil && s.status.StopRequested() }

// NumNodes is the count of non-ground nodes in the unknown vector.
func (s *Simulator) NumNodes() int { return s.numNodes }

// NumVoltageSources is the count of branch slots appended after the nodes.
func (s *Simulator) NumVoltageSources() int { return s.numVS }

// NodeVoltage reads a node voltage by index. Ground (0) and out-of-range
// indices read 0.
func (s *Simulator) NodeVoltage(node int) float64 {
	if node <= 0 || node > s.numNodes {
		return 0
	}
	return s.volts[node]
}

// NodeVoltageByName reads a node voltage by netlist node name.
func (s *Simulator) NodeVoltageByName(name string) float64 {
	if isGround(name) {
		return 0
	}
	return s.NodeVoltage(s.nodeMap[name])
}

// NodeIndex resolves a netlist node name; ground resolves to 0.
func (s *Simulator) NodeIndex(name string) (int, bool) {
	if isGround(name) {
		return 0, true
	}
	idx, ok := s.nodeMap[name]
	return idx, ok
}

// Registry exposes the cross-element lookup context.
func (s *Simulator) Registry() *element.Registry { return s.registry }

// Elements returns the analyzed element list.
func (s *Simulator) Elements() []element.Element { return s.elements }

// ParseErrors lists expression parse failures found during Prepare. The
// affected elements contribute nothing; the run itself proceeds.
func (s *Simulator) ParseErrors() []error { return s.parseErrs }

// ElementCurrent reports the current through an element of the last iterate:
// ohmic for resistors, junction current for diodes, branch current for
// anything owning a voltage-source slot.
func (s *Simulator) ElementCurrent(el element.Element) float64 {
	switch e := el.(type) {
	case *element.Resistor:
		return e.Current()
	case *element.Diode:
		return e.Current()
	}
	if el.VoltageSourceCount() > 0 {
		row := s.numNodes + el.VoltageSource(0) + 1
		return -s.volts[row]
	}
	return 0
}
