package expr

import (
	"math"
	"testing"
)

func evalOK(t *testing.T, src string, st *State) float64 {
	t.Helper()
	e, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	v, err := e.Eval(st)
	if err != nil {
		t.Fatalf("Eval(%q): %v", src, err)
	}
	return v
}

func TestEval(t *testing.T) {
	st := &State{T: 2.0}
	st.Values[0] = 3.0 // a
	st.Values[1] = 4.0 // b

	cases := []struct {
		src  string
		want float64
	}{
		{"a + b", 7.0},
		{"a * b", 12.0},
		{"a - 2 * b", -5.0},
		{"t * a", 6.0},
		{"pow(a, 2)", 9.0},
		{"sqrt(b)", 2.0},
		{"sin(0)", 0.0},
		{"exp(0) + pi", 1.0 + math.Pi},
		{"sign(-a)", -1.0},
		{"a > b ? 1.0 : 2.0", 2.0},
	}
	for _, tc := range cases {
		if got := evalOK(t, tc.src, st); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("%q = %v, want %v", tc.src, got, tc.want)
		}
	}
}

func TestEvalVars(t *testing.T) {
	st := &State{Vars: map[string]float64{"price": 2.5, "gdp": 100.0}}
	if got := evalOK(t, "price * gdp", st); math.Abs(got-250.0) > 1e-12 {
		t.Errorf("price * gdp = %v, want 250", got)
	}
}

func TestEvalLastOutput(t *testing.T) {
	st := &State{LastOutput: 5.0, TimeStep: 0.1}
	if got := evalOK(t, "lastoutput + timestep", st); math.Abs(got-5.1) > 1e-12 {
		t.Errorf("lastoutput + timestep = %v, want 5.1", got)
	}
}

func TestCompileError(t *testing.T) {
	if _, err := Compile("a +* b"); err == nil {
		t.Error("expected compile error for malformed formula")
	}
}

func TestNonFiniteIsZero(t *testing.T) {
	st := &State{}
	// 1/0 is +Inf; the evaluator flattens it to 0 rather than poisoning
	// the matrix.
	if got := evalOK(t, "1.0 / a", st); got != 0 {
		t.Errorf("1/0 = %v, want 0", got)
	}
	if got := evalOK(t, "log(-1.0)", st); got != 0 {
		t.Errorf("log(-1) = %v, want 0", got)
	}
	if got := evalOK(t, "sqrt(-1.0)", st); got != 0 {
		t.Errorf("sqrt(-1) = %v, want 0", got)
	}
}
