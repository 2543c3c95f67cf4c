package element

import (
	"math"
	"testing"

	"flowsim/pkg/matrix"
)

func TestConvergeLimit(t *testing.T) {
	cases := []struct {
		iter int
		mag  float64
		want float64
	}{
		{0, 0.5, 0.001},    // small magnitudes judged absolutely
		{5, 200.0, 0.2},    // large magnitudes judged relatively
		{10, 0.5, 0.01},    // band loosens after 10 iterations
		{50, 200.0, 2.0},
		{100, 0.5, 0.1},    // and again after 100
		{500, 200.0, 20.0},
	}
	for _, tc := range cases {
		if got := ConvergeLimit(tc.iter, tc.mag); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("ConvergeLimit(%d, %v) = %v, want %v", tc.iter, tc.mag, got, tc.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	r.BindNode("price", 3)
	if n, ok := r.Node("price"); !ok || n != 3 {
		t.Errorf("Node(price) = %d, %v; want 3, true", n, ok)
	}
	// Later bindings win.
	r.BindNode("price", 5)
	if n, _ := r.Node("price"); n != 5 {
		t.Errorf("rebound Node(price) = %d, want 5", n)
	}

	if got := r.Computed("gdp", 42.0); got != 42.0 {
		t.Errorf("unset Computed(gdp) = %v, want default 42", got)
	}
	r.SetComputed("gdp", 100.0)
	if got := r.Computed("gdp", 42.0); got != 100.0 {
		t.Errorf("Computed(gdp) = %v, want 100", got)
	}

	r.SetHint("gdp", "gross output, trillions")
	if h, ok := r.Hint("gdp"); !ok || h != "gross output, trillions" {
		t.Errorf("Hint(gdp) = %q, %v", h, ok)
	}
	r.SetHint("gdp", "")
	if _, ok := r.Hint("gdp"); ok {
		t.Error("empty hint should remove the entry")
	}
	r.SetHint("gdp", "annotation")

	// Reset clears values but keeps topology.
	r.Reset()
	if got := r.Computed("gdp", 42.0); got != 42.0 {
		t.Errorf("Computed(gdp) after reset = %v, want default", got)
	}
	if _, ok := r.Node("price"); !ok {
		t.Error("node binding should survive reset")
	}
	if _, ok := r.Hint("gdp"); !ok {
		t.Error("hint should survive reset")
	}
}

func TestRegistryVars(t *testing.T) {
	r := NewRegistry()
	r.BindNode("price", 2)
	r.SetComputed("gdp", 7.0)

	vars := r.vars(func(node int) float64 { return float64(node) * 10 })
	if vars["price"] != 20.0 {
		t.Errorf("vars[price] = %v, want 20", vars["price"])
	}
	if vars["gdp"] != 7.0 {
		t.Errorf("vars[gdp] = %v, want 7", vars["gdp"])
	}
}

func TestVoltageSourceWaveforms(t *testing.T) {
	dc := NewDCVoltageSource("V1", 10.0)
	if got := dc.VoltageAt(123.0); got != 10.0 {
		t.Errorf("DC VoltageAt = %v, want 10", got)
	}

	sin := NewSinVoltageSource("V2", 1.0, 2.0, 50.0, 90.0)
	// At t=0 with 90deg phase the sine sits at its positive peak.
	if got := sin.VoltageAt(0); math.Abs(got-3.0) > 1e-9 {
		t.Errorf("SIN VoltageAt(0) = %v, want 3", got)
	}
	// One full period later, same value.
	if got := sin.VoltageAt(0.02); math.Abs(got-3.0) > 1e-9 {
		t.Errorf("SIN VoltageAt(T) = %v, want 3", got)
	}

	pwl, err := NewPWLVoltageSource("V3", []float64{0, 1, 2}, []float64{0, 10, 10})
	if err != nil {
		t.Fatalf("NewPWLVoltageSource: %v", err)
	}
	cases := []struct{ t, want float64 }{
		{-1, 0},   // clamp before first point
		{0.5, 5},  // linear interpolation
		{1, 10},
		{1.5, 10},
		{5, 10},   // clamp after last point
	}
	for _, tc := range cases {
		if got := pwl.VoltageAt(tc.t); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("PWL VoltageAt(%v) = %v, want %v", tc.t, got, tc.want)
		}
	}

	if _, err := NewPWLVoltageSource("V4", []float64{0, 1}, []float64{0}); err == nil {
		t.Error("expected error for mismatched PWL pairs")
	}
}

func TestNewResistorRejectsNonPositive(t *testing.T) {
	if _, err := NewResistor("R1", 0); err == nil {
		t.Error("expected error for zero resistance")
	}
	if _, err := NewResistor("R1", -5); err == nil {
		t.Error("expected error for negative resistance")
	}
}

func TestPercentZeroDenominator(t *testing.T) {
	m, err := matrix.New(3, 1, matrix.DenseBackend)
	if err != nil {
		t.Fatalf("matrix.New: %v", err)
	}
	st := &Status{Registry: NewRegistry()}

	p := NewPercent("P1", 2)
	p.SetNodes([]int{1, 2, 3})
	p.SetVoltageSource(0, 0)
	if err := p.Stamp(m, st); err != nil {
		t.Fatalf("Stamp: %v", err)
	}

	// Near-zero denominator: output forced to a safe 0, no convergence veto.
	st.BeginIteration()
	p.SetNodeVoltage(0, 50.0)
	p.SetNodeVoltage(1, 1e-9)
	p.DoStep(m, st)
	if !st.Converged() {
		t.Error("zero denominator should not veto convergence")
	}

	// Real ratio moves the output, which vetoes until it settles.
	st.BeginIteration()
	p.SetNodeVoltage(1, 200.0)
	p.DoStep(m, st)
	if st.Converged() {
		t.Error("moving output should veto convergence")
	}
	p.SetNodeVoltage(2, 25.0) // 50/200*100
	st.BeginIteration()
	p.DoStep(m, st)
	if !st.Converged() {
		t.Error("settled output should converge")
	}
}

func TestFunctionParseError(t *testing.T) {
	fn := NewFunction("FN1", 2, "a +* b")
	if fn.ParseErr() == nil {
		t.Error("expected parse error to be recorded")
	}

	m, err := matrix.New(3, 1, matrix.DenseBackend)
	if err != nil {
		t.Fatalf("matrix.New: %v", err)
	}
	st := &Status{Registry: NewRegistry()}
	fn.SetNodes([]int{1, 2, 3})
	fn.SetVoltageSource(0, 0)

	// A broken formula must not stamp garbage or panic.
	if err := fn.Stamp(m, st); err != nil {
		t.Fatalf("Stamp: %v", err)
	}
	st.BeginIteration()
	fn.DoStep(m, st)
}

func TestStopTime(t *testing.T) {
	stop := NewStopTime("ST1", 10.0)
	if stop.PostCount() != 0 {
		t.Fatalf("PostCount = %d, want 0", stop.PostCount())
	}

	st := &Status{Time: 5.0}
	stop.StepFinished(st)
	if st.StopRequested() {
		t.Error("stop requested before the stop time")
	}
	st.Time = 10.0
	stop.StepFinished(st)
	if !st.StopRequested() {
		t.Error("stop not requested at the stop time")
	}
}
