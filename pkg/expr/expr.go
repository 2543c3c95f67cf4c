// Package expr compiles user-authored infix formulas and evaluates them
// against per-element state. Compilation happens once per element; evaluation
// runs every nonlinear iteration.
package expr

import (
	"fmt"
	"math"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// NumParams is the number of adjustable parameters an element exposes to its
// formula, named "a" through "h".
const NumParams = 8

// ParamNames lists the parameter variable names in slot order.
var ParamNames = [NumParams]string{"a", "b", "c", "d", "e", "f", "g", "h"}

// State is the evaluation context owned by one element: parameter values,
// current simulated time, the previous timestep's output for integrating
// elements, and named lookups resolved from the registry.
type State struct {
	Values     [NumParams]float64
	T          float64
	TimeStep   float64
	LastOutput float64
	Vars       map[string]float64
}

func (s *State) Reset() {
	s.T = 0
	s.LastOutput = 0
	s.Vars = nil
}

// Expr is a compiled formula.
type Expr struct {
	src  string
	prog *vm.Program
}

func (e *Expr) String() string { return e.src }

// Compile parses an infix formula. Variable names are resolved at evaluation
// time so formulas may reference labeled nodes that do not exist yet.
func Compile(src string) (*Expr, error) {
	prog, err := exprlang.Compile(src,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsFloat64(),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", src, err)
	}
	return &Expr{src: src, prog: prog}, nil
}

// Eval runs the formula against st. Unknown variables evaluate to an error,
// not a fault; callers treat that like a parse failure and stamp nothing.
func (e *Expr) Eval(st *State) (float64, error) {
	env := map[string]any{
		"t":          st.T,
		"timestep":   st.TimeStep,
		"lastoutput": st.LastOutput,
		"pi":         math.Pi,
	}
	for name, fn := range builtins {
		env[name] = fn
	}
	for i, name := range ParamNames {
		env[name] = st.Values[i]
	}
	for name, v := range st.Vars {
		env[name] = v
	}

	out, err := exprlang.Run(e.prog, env)
	if err != nil {
		return 0, fmt.Errorf("evaluating %q: %w", e.src, err)
	}

	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("evaluating %q: non-numeric result %v", e.src, out)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		// Arithmetic edge cases are silent stability safeguards, never errors.
		return 0, nil
	}
	return v, nil
}

// builtins are the math functions formulas may call. Arguments arrive as
// whatever numeric type the expression engine produced, so each function
// coerces rather than demanding float64.
var builtins = map[string]any{
	"sin":  unary(math.Sin),
	"cos":  unary(math.Cos),
	"tan":  unary(math.Tan),
	"exp":  unary(math.Exp),
	"log":  unary(safeLog),
	"sqrt": unary(math.Sqrt),
	"pow":  binary(math.Pow),
	"sign": unary(sign),
}

func unary(f func(float64) float64) func(any) (float64, error) {
	return func(v any) (float64, error) {
		x, err := toFloat(v)
		if err != nil {
			return 0, err
		}
		return f(x), nil
	}
}

func binary(f func(x, y float64) float64) func(any, any) (float64, error) {
	return func(a, b any) (float64, error) {
		x, err := toFloat(a)
		if err != nil {
			return 0, err
		}
		y, err := toFloat(b)
		if err != nil {
			return 0, err
		}
		return f(x, y), nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("non-numeric argument %v", v)
}

func safeLog(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Log(x)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
