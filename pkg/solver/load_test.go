package solver

import (
	"math"
	"testing"

	"flowsim/pkg/netlist"
)

func TestLoadDeck(t *testing.T) {
	deck, err := netlist.Parse(`* divider deck
V1 in 0 10
R1 in out 1k
R2 out 0 1k
.tran 1m 10m
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	sim, err := Load(deck, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sim.TimeStep() != 1e-3 {
		t.Errorf("TimeStep = %v, want .tran tstep", sim.TimeStep())
	}

	if err := sim.RunToTime(deck.Tran.TStop); err != nil {
		t.Fatalf("RunToTime: %v", err)
	}
	if got := sim.NodeVoltageByName("out"); math.Abs(got-5.0) > 1e-9 {
		t.Errorf("V(out) = %v, want 5", got)
	}
	if sim.Time() < deck.Tran.TStop-1e-12 {
		t.Errorf("stopped at t=%v, want >= %v", sim.Time(), deck.Tran.TStop)
	}
}

func TestLoadDeckOptions(t *testing.T) {
	deck, err := netlist.Parse(`* tuned deck
V1 in 0 10
R1 in 0 1k
.tran 1m 2m
.option reltol=1e-6 maxiter=100 damping=0.5 backend=dense adjust=1
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	sim, err := Load(deck, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sim.opts.RelTol != 1e-6 {
		t.Errorf("RelTol = %v, want 1e-6", sim.opts.RelTol)
	}
	if sim.opts.MaxIterations != 100 {
		t.Errorf("MaxIterations = %d, want 100", sim.opts.MaxIterations)
	}
	if sim.opts.Damping != 0.5 {
		t.Errorf("Damping = %v, want 0.5", sim.opts.Damping)
	}
	if !sim.opts.AdjustTimeStep {
		t.Error("AdjustTimeStep not set")
	}
}

func TestLoadDeckCoupledModel(t *testing.T) {
	// Price follows supply/demand ratio through the expression layer:
	// everything here goes through labels, not direct wiring.
	deck, err := netlist.Parse(`* relative price
V1 supply 0 200
V2 demand 0 50
LBL1 supply label=sup
LBL2 demand label=dem
EQN1 price expr="100 * (dem / sup)"
.tran 1m 5m
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	sim, err := Load(deck, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := sim.RunToTime(deck.Tran.TStop); err != nil {
		t.Fatalf("RunToTime: %v", err)
	}
	if got := sim.NodeVoltageByName("price"); math.Abs(got-25.0) > 0.1 {
		t.Errorf("V(price) = %v, want 25", got)
	}
}

func TestLoadBadOption(t *testing.T) {
	deck, err := netlist.Parse(`* bad
V1 a 0 1
R1 a 0 1k
.tran 1m 2m
.option backend=quantum
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Load(deck, Options{}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
