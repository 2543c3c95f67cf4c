package solver

import (
	"errors"
	"math"
	"testing"

	"flowsim/pkg/element"
	"flowsim/pkg/matrix"
)

func mustAdd(t *testing.T, s *Simulator, el element.Element, nodes ...string) {
	t.Helper()
	if err := s.AddElement(el, nodes...); err != nil {
		t.Fatalf("AddElement(%s): %v", el.Name(), err)
	}
}

func mustResistor(t *testing.T, name string, value float64) *element.Resistor {
	t.Helper()
	r, err := element.NewResistor(name, value)
	if err != nil {
		t.Fatalf("NewResistor(%s): %v", name, err)
	}
	return r
}

func prepare(t *testing.T, s *Simulator) {
	t.Helper()
	if err := s.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
}

func advance(t *testing.T, s *Simulator) {
	t.Helper()
	if err := s.Advance(); err != nil {
		t.Fatalf("Advance at t=%g: %v", s.Time(), err)
	}
}

func TestVoltageDivider(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 10.0), "in", "0")
	mustAdd(t, s, mustResistor(t, "R1", 1000.0), "in", "out")
	mustAdd(t, s, mustResistor(t, "R2", 3000.0), "out", "0")
	prepare(t, s)
	advance(t, s)

	if !s.IsConverged() {
		t.Error("linear divider should converge")
	}
	if got := s.NodeVoltageByName("in"); math.Abs(got-10.0) > 1e-9 {
		t.Errorf("V(in) = %v, want 10", got)
	}
	// 10 * 3k/4k
	if got := s.NodeVoltageByName("out"); math.Abs(got-7.5) > 1e-9 {
		t.Errorf("V(out) = %v, want 7.5", got)
	}
}

func TestSourceCurrent(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	src := element.NewDCVoltageSource("V1", 10.0)
	mustAdd(t, s, src, "a", "0")
	mustAdd(t, s, mustResistor(t, "R1", 1.0), "a", "0")
	prepare(t, s)
	advance(t, s)

	// 10V across 1 ohm: the source delivers 10A.
	if got := s.ElementCurrent(src); math.Abs(got-10.0) > 1e-9 {
		t.Errorf("I(V1) = %v, want 10", got)
	}
}

func TestTimeAdvancesMonotonically(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 1.0), "a", "0")
	mustAdd(t, s, mustResistor(t, "R1", 100.0), "a", "0")
	prepare(t, s)

	const steps = 10
	prev := s.Time()
	for i := 0; i < steps; i++ {
		advance(t, s)
		if s.Time() <= prev {
			t.Fatalf("time went backwards: %v -> %v", prev, s.Time())
		}
		prev = s.Time()
	}
	if math.Abs(s.Time()-steps*1e-3) > 1e-12 {
		t.Errorf("t after %d steps = %v, want %v", steps, s.Time(), steps*1e-3)
	}
	if s.TimeStepCount() != steps {
		t.Errorf("TimeStepCount = %d, want %d", s.TimeStepCount(), steps)
	}
}

func TestDiodeCircuit(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 5.0), "in", "0")
	mustAdd(t, s, mustResistor(t, "R1", 1000.0), "in", "d")
	d := element.NewDiode("D1")
	mustAdd(t, s, d, "d", "0")
	prepare(t, s)
	advance(t, s)

	if !s.IsConverged() {
		t.Fatal("diode circuit did not converge")
	}
	vd := s.NodeVoltageByName("d")
	if vd < 0.4 || vd > 0.9 {
		t.Errorf("diode forward voltage %v outside [0.4, 0.9]", vd)
	}
	// KCL at the junction: resistor current equals diode current.
	ir := (5.0 - vd) / 1000.0
	if got := s.ElementCurrent(d); math.Abs(got-ir) > 1e-6 {
		t.Errorf("I(D1) = %v, want %v", got, ir)
	}
}

func TestAdderAndSubtracter(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 3.0), "a", "0")
	mustAdd(t, s, element.NewDCVoltageSource("V2", 4.0), "b", "0")
	mustAdd(t, s, element.NewAdder("A1", 2), "a", "b", "sum")
	mustAdd(t, s, element.NewSubtracter("S1", 2), "a", "b", "diff")
	prepare(t, s)
	advance(t, s)

	if got := s.NodeVoltageByName("sum"); math.Abs(got-7.0) > 1e-9 {
		t.Errorf("V(sum) = %v, want 7", got)
	}
	if got := s.NodeVoltageByName("diff"); math.Abs(got-(-1.0)) > 1e-9 {
		t.Errorf("V(diff) = %v, want -1", got)
	}
}

func TestMultiplier(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 3.0), "a", "0")
	mustAdd(t, s, element.NewDCVoltageSource("V2", 4.0), "b", "0")
	mustAdd(t, s, element.NewMultiplier("M1", 2), "a", "b", "out")
	prepare(t, s)
	advance(t, s)

	if !s.IsConverged() {
		t.Fatal("multiplier circuit did not converge")
	}
	if got := s.NodeVoltageByName("out"); math.Abs(got-12.0) > 1e-6 {
		t.Errorf("V(out) = %v, want 12", got)
	}
}

func TestDivider(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 10.0), "a", "0")
	mustAdd(t, s, element.NewDCVoltageSource("V2", 4.0), "b", "0")
	mustAdd(t, s, element.NewDivider("D1", 2), "a", "b", "out")
	prepare(t, s)
	advance(t, s)

	if got := s.NodeVoltageByName("out"); math.Abs(got-2.5) > 1e-6 {
		t.Errorf("V(out) = %v, want 2.5", got)
	}
}

func TestDividerZeroDenominatorStaysFinite(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 10.0), "a", "0")
	mustAdd(t, s, element.NewDCVoltageSource("V2", 0.0), "b", "0")
	mustAdd(t, s, element.NewDivider("D1", 2), "a", "b", "out")
	prepare(t, s)
	advance(t, s)

	got := s.NodeVoltageByName("out")
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("V(out) = %v, want finite", got)
	}
}

func TestPercent(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 50.0), "num", "0")
	mustAdd(t, s, element.NewDCVoltageSource("V2", 200.0), "den", "0")
	mustAdd(t, s, element.NewPercent("P1", 2), "num", "den", "out")
	prepare(t, s)
	advance(t, s)

	if got := s.NodeVoltageByName("out"); math.Abs(got-25.0) > 1e-3 {
		t.Errorf("V(out) = %v, want 25", got)
	}
}

func TestFunctionElement(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 3.0), "a", "0")
	mustAdd(t, s, element.NewDCVoltageSource("V2", 4.0), "b", "0")
	mustAdd(t, s, element.NewFunction("F1", 2, "a*a + b"), "a", "b", "out")
	prepare(t, s)
	advance(t, s)

	if !s.IsConverged() {
		t.Fatal("function circuit did not converge")
	}
	if got := s.NodeVoltageByName("out"); math.Abs(got-13.0) > 1e-3 {
		t.Errorf("V(out) = %v, want 13", got)
	}
}

func TestEquationWithLabeledNode(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 3.0), "in", "0")
	mustAdd(t, s, element.NewLabeledNode("L1", "price"), "in")
	mustAdd(t, s, element.NewEquation("E1", "price * 2", nil), "out")
	prepare(t, s)
	advance(t, s)

	if got := s.NodeVoltageByName("out"); math.Abs(got-6.0) > 1e-3 {
		t.Errorf("V(out) = %v, want 6", got)
	}
}

func TestODEConstantRate(t *testing.T) {
	const dt, rate, y0 = 1e-3, 2.0, 5.0
	s := New(Options{TimeStep: dt})
	ode := element.NewODE("O1", "a", y0, []float64{rate})
	mustAdd(t, s, ode, "y")
	prepare(t, s)

	// Forward Euler on dy/dt = rate: y(n) = y0 + n*rate*dt exactly.
	for n := 1; n <= 10; n++ {
		advance(t, s)
		want := y0 + float64(n)*rate*dt
		if got := s.NodeVoltageByName("y"); math.Abs(got-want) > want*0.01 {
			t.Fatalf("step %d: V(y) = %v, want %v", n, got, want)
		}
	}
	if got := ode.IntegratedValue(); math.Abs(got-(y0+10*rate*dt)) > 1e-6 {
		t.Errorf("IntegratedValue = %v, want %v", got, y0+10*rate*dt)
	}
}

func TestIntegrator(t *testing.T) {
	const dt = 1e-3
	s := New(Options{TimeStep: dt})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 2.0), "in", "0")
	mustAdd(t, s, element.NewIntegrator("I1", 0), "in", "out")
	prepare(t, s)

	for n := 1; n <= 10; n++ {
		advance(t, s)
	}
	// integral of 2 over 10 steps
	want := 2.0 * 10 * dt
	if got := s.NodeVoltageByName("out"); math.Abs(got-want) > want*0.01 {
		t.Errorf("V(out) = %v, want %v", got, want)
	}
}

func TestDifferentiatorOfRamp(t *testing.T) {
	const dt = 1e-3
	s := New(Options{TimeStep: dt})
	ramp, err := element.NewPWLVoltageSource("V1", []float64{0, 1}, []float64{0, 5})
	if err != nil {
		t.Fatalf("NewPWLVoltageSource: %v", err)
	}
	mustAdd(t, s, ramp, "in", "0")
	mustAdd(t, s, element.NewDifferentiator("D1"), "in", "out")
	prepare(t, s)

	// Let the settling step pass, then check the slope of a 5 V/s ramp.
	for n := 0; n < 5; n++ {
		advance(t, s)
	}
	if got := s.NodeVoltageByName("out"); math.Abs(got-5.0) > 0.1 {
		t.Errorf("V(out) = %v, want 5", got)
	}
}

func TestComputedValueSource(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewComputedValueSource("C1", "gdp", 1.5), "out")
	prepare(t, s)
	advance(t, s)

	// Nothing has published "gdp": the default drives the node.
	if got := s.NodeVoltageByName("out"); math.Abs(got-1.5) > 1e-9 {
		t.Errorf("V(out) = %v, want default 1.5", got)
	}

	s.Registry().SetComputed("gdp", 7.0)
	advance(t, s)
	if got := s.NodeVoltageByName("out"); math.Abs(got-7.0) > 1e-9 {
		t.Errorf("V(out) = %v, want published 7", got)
	}
}

func TestCapacitorCharge(t *testing.T) {
	const dt = 1e-5 // RC/100
	s := New(Options{TimeStep: dt})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 10.0), "in", "0")
	mustAdd(t, s, mustResistor(t, "R1", 1000.0), "in", "c")
	cap, err := element.NewCapacitor("C1", 1e-6, 0)
	if err != nil {
		t.Fatalf("NewCapacitor: %v", err)
	}
	mustAdd(t, s, cap, "c", "0")
	prepare(t, s)

	if err := s.RunToTime(5e-3); err != nil { // five time constants
		t.Fatalf("RunToTime: %v", err)
	}
	if got := s.NodeVoltageByName("c"); math.Abs(got-10.0) > 0.2 {
		t.Errorf("V(c) after 5*RC = %v, want ~10", got)
	}
}

func TestStopTimeHaltsRun(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 1.0), "a", "0")
	mustAdd(t, s, mustResistor(t, "R1", 100.0), "a", "0")
	mustAdd(t, s, element.NewStopTime("ST1", 5e-3))
	prepare(t, s)

	if err := s.RunToTime(1.0); err != nil {
		t.Fatalf("RunToTime: %v", err)
	}
	if !s.Stopped() {
		t.Error("stop element did not halt the run")
	}
	if s.Time() > 10e-3 {
		t.Errorf("run continued to t=%v after the stop time", s.Time())
	}

	// Further advances refuse to run.
	if err := s.Advance(); !errors.Is(err, ErrStopped) {
		t.Errorf("Advance after stop = %v, want ErrStopped", err)
	}
}

func TestParseErrorIsolation(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 10.0), "in", "0")
	mustAdd(t, s, mustResistor(t, "R1", 1000.0), "in", "out")
	mustAdd(t, s, mustResistor(t, "R2", 1000.0), "out", "0")
	mustAdd(t, s, element.NewFunction("F1", 1, "a +* broken"), "in", "fn")
	prepare(t, s)

	if len(s.ParseErrors()) != 1 {
		t.Fatalf("ParseErrors = %d entries, want 1", len(s.ParseErrors()))
	}
	// The rest of the circuit still solves.
	advance(t, s)
	if got := s.NodeVoltageByName("out"); math.Abs(got-5.0) > 1e-9 {
		t.Errorf("V(out) = %v, want 5", got)
	}
}

// stubbornElement vetoes convergence whenever the timestep is above its
// threshold, forcing the scheduler to back off.
type stubbornElement struct {
	element.BaseElement
	maxStep float64
}

func newStubbornElement(maxStep float64) *stubbornElement {
	return &stubbornElement{
		BaseElement: element.NewBaseElement("W1", 0, 0),
		maxStep:     maxStep,
	}
}

func (e *stubbornElement) Type() string { return "TEST" }

func (e *stubbornElement) Stamp(m matrix.Stamper, st *element.Status) error {
	m.StampNonLinear(1)
	return nil
}

func (e *stubbornElement) DoStep(m matrix.Stamper, st *element.Status) {
	if st.TimeStep > e.maxStep {
		st.SetNotConverged()
	}
}

func TestTimeStepBackOff(t *testing.T) {
	s := New(Options{TimeStep: 1e-3, MinTimeStep: 1e-5, MaxIterations: 20})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 1.0), "a", "0")
	mustAdd(t, s, mustResistor(t, "R1", 100.0), "a", "0")
	mustAdd(t, s, newStubbornElement(3e-4))
	prepare(t, s)

	advance(t, s)
	if !s.IsConverged() {
		t.Error("step should converge after backing off")
	}
	// Halved 1e-3 -> 5e-4 -> 2.5e-4 before the veto lifted.
	if got := s.TimeStep(); math.Abs(got-2.5e-4) > 1e-12 {
		t.Errorf("TimeStep = %v, want 2.5e-4", got)
	}
	if math.Abs(s.Time()-2.5e-4) > 1e-12 {
		t.Errorf("Time = %v, want 2.5e-4", s.Time())
	}
}

func TestMinTimeStepAborts(t *testing.T) {
	s := New(Options{TimeStep: 1e-3, MinTimeStep: 1e-4, MaxIterations: 20})
	mustAdd(t, s, element.NewDCVoltageSource("V1", 1.0), "a", "0")
	mustAdd(t, s, mustResistor(t, "R1", 100.0), "a", "0")
	mustAdd(t, s, newStubbornElement(0)) // never satisfied
	prepare(t, s)

	err := s.Advance()
	if err == nil {
		t.Fatal("expected MinTimeStepError")
	}
	var mts *MinTimeStepError
	if !errors.As(err, &mts) {
		t.Fatalf("error %v is not a MinTimeStepError", err)
	}
	var nc *NonConvergenceError
	if !errors.As(err, &nc) {
		t.Error("MinTimeStepError should wrap the last NonConvergenceError")
	}
}

func TestSingularTopology(t *testing.T) {
	s := New(Options{TimeStep: 1e-3, Backend: matrix.DenseBackend})
	// Two floating nodes with no ground reference: singular.
	mustAdd(t, s, mustResistor(t, "R1", 1000.0), "a", "b")
	mustAdd(t, s, element.NewCurrentSource("I1", 1e-3), "a", "b")
	prepare(t, s)

	err := s.Advance()
	if err == nil {
		t.Fatal("expected singular matrix error")
	}
	var sing *matrix.SingularError
	if !errors.As(err, &sing) {
		t.Errorf("error %v is not a SingularError", err)
	}
}

func TestResultsRecording(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	src := element.NewDCVoltageSource("V1", 10.0)
	mustAdd(t, s, src, "a", "0")
	mustAdd(t, s, mustResistor(t, "R1", 1000.0), "a", "0")
	prepare(t, s)

	for i := 0; i < 3; i++ {
		advance(t, s)
	}

	res := s.Results()
	if res.Len() != 3 {
		t.Fatalf("Len = %d, want 3", res.Len())
	}
	times := res.Series("TIME")
	if math.Abs(times[2]-3e-3) > 1e-12 {
		t.Errorf("TIME[2] = %v, want 0.003", times[2])
	}
	va := res.Series("V(a)")
	for i, v := range va {
		if math.Abs(v-10.0) > 1e-9 {
			t.Errorf("V(a)[%d] = %v, want 10", i, v)
		}
	}
	// I(V1) = 10V / 1k delivered by the source.
	iv := res.Series("I(V1)")
	if iv == nil {
		t.Fatal("no I(V1) series recorded")
	}
	if math.Abs(iv[0]-0.01) > 1e-9 {
		t.Errorf("I(V1)[0] = %v, want 0.01", iv[0])
	}
	if res.Names()[0] != "TIME" {
		t.Errorf("Names()[0] = %q, want TIME", res.Names()[0])
	}
}

func TestReset(t *testing.T) {
	s := New(Options{TimeStep: 1e-3})
	mustAdd(t, s, element.NewODE("O1", "a", 1.0, []float64{3.0}), "y")
	prepare(t, s)

	for i := 0; i < 5; i++ {
		advance(t, s)
	}
	first := s.NodeVoltageByName("y")

	s.Reset()
	if s.Time() != 0 || s.TimeStepCount() != 0 {
		t.Fatalf("Reset left t=%v, count=%d", s.Time(), s.TimeStepCount())
	}
	for i := 0; i < 5; i++ {
		advance(t, s)
	}
	if got := s.NodeVoltageByName("y"); math.Abs(got-first) > 1e-12 {
		t.Errorf("replay after Reset = %v, want %v", got, first)
	}
}

func TestDenseBackendMatchesSparse(t *testing.T) {
	run := func(backend matrix.Backend) float64 {
		s := New(Options{TimeStep: 1e-3, Backend: backend})
		mustAdd(t, s, element.NewDCVoltageSource("V1", 5.0), "in", "0")
		mustAdd(t, s, mustResistor(t, "R1", 1000.0), "in", "d")
		mustAdd(t, s, element.NewDiode("D1"), "d", "0")
		prepare(t, s)
		advance(t, s)
		return s.NodeVoltageByName("d")
	}

	vs, vd := run(matrix.SparseBackend), run(matrix.DenseBackend)
	if math.Abs(vs-vd) > 1e-9 {
		t.Errorf("backends disagree: sparse %v, dense %v", vs, vd)
	}
}
