package matrix

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// denseCore backs the buffer with gonum's dense LU (partial pivoting).
// For the small systems this simulator sees, the dense factorization is a
// useful cross-check against the sparse path.
type denseCore struct {
	size int
	a    *mat.Dense
	rhs  []float64
	sol  []float64
}

func newDenseCore(size int) (*denseCore, error) {
	return &denseCore{
		size: size,
		a:    mat.NewDense(size, size, nil),
		rhs:  make([]float64, size+1), // 1-based to match the sparse core
		sol:  make([]float64, size+1),
	}, nil
}

func (c *denseCore) add(i, j int, value float64) {
	c.a.Set(i-1, j-1, c.a.At(i-1, j-1)+value)
}

func (c *denseCore) addRHS(i int, value float64) {
	c.rhs[i] += value
}

func (c *denseCore) clear() {
	c.a.Zero()
	for i := range c.rhs {
		c.rhs[i] = 0
	}
}

func (c *denseCore) solve() error {
	var lu mat.LU
	lu.Factorize(c.a)

	b := mat.NewVecDense(c.size, c.rhs[1:])
	x := mat.NewVecDense(c.size, nil)
	if err := lu.SolveVecTo(x, false, b); err != nil {
		// Exact singularity reports as an infinite condition number, not a
		// distinct error type. Anything else conditioned-but-finite is still
		// solvable.
		if c, ok := err.(mat.Condition); !ok || math.IsInf(float64(c), 1) {
			return &SingularError{err: err}
		}
	}

	for i := 0; i < c.size; i++ {
		v := x.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &SingularError{}
		}
		c.sol[i+1] = v
	}
	return nil
}

func (c *denseCore) solution() []float64 { return c.sol }

func (c *denseCore) destroy() {}
