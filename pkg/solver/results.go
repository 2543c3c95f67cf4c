package solver

import (
	"fmt"
	"sort"
)

// Results accumulates per-timestep samples keyed by variable name: "TIME",
// "V(node)" for node voltages, "I(name)" for voltage-source branch currents.
type Results struct {
	series map[string][]float64
}

func newResults() *Results {
	return &Results{series: make(map[string][]float64)}
}

// Series returns the samples recorded under a name.
func (r *Results) Series(name string) []float64 { return r.series[name] }

// Names returns the recorded variable names, sorted, TIME first.
func (r *Results) Names() []string {
	names := make([]string, 0, len(r.series))
	for name := range r.series {
		if name == "TIME" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{"TIME"}, names...)
}

// Len returns the number of recorded timesteps.
func (r *Results) Len() int { return len(r.series["TIME"]) }

func (r *Results) append(name string, v float64) {
	r.series[name] = append(r.series[name], v)
}

// Results exposes the recorded transient series.
func (s *Simulator) Results() *Results { return s.results }

// record stores the converged solution of the just-finished timestep.
func (s *Simulator) record() {
	s.results.append("TIME", s.time)

	for name, idx := range s.nodeMap {
		s.results.append(fmt.Sprintf("V(%s)", name), s.volts[idx])
	}

	for _, el := range s.elements {
		if el.VoltageSourceCount() == 0 {
			continue
		}
		row := s.numNodes + el.VoltageSource(0) + 1
		s.results.append(fmt.Sprintf("I(%s)", el.Name()), -s.volts[row])
	}
}
