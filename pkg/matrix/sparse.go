package matrix

import (
	"fmt"

	"github.com/edp1096/sparse"
)

// sparseCore backs the buffer with edp1096/sparse. The full n*n structure is
// created up front so nonlinear restamps never change the nonzero pattern and
// the factorization never hits a structurally missing pivot.
type sparseCore struct {
	size int
	mat  *sparse.Matrix
	rhs  []float64
	sol  []float64
}

func newSparseCore(size int) (*sparseCore, error) {
	config := &sparse.Configuration{
		Real:           true,
		Expandable:     true,
		Translate:      true, // factoring reorders; stamps use external indices
		ModifiedNodal:  true,
		TiesMultiplier: 5,
		PrinterWidth:   140,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("creating sparse matrix: %w", err)
	}

	c := &sparseCore{
		size: size,
		mat:  mat,
		rhs:  make([]float64, size+1), // 1-based indexing
		sol:  make([]float64, size+1),
	}
	for i := 1; i <= size; i++ {
		for j := 1; j <= size; j++ {
			c.mat.GetElement(int64(i), int64(j))
		}
	}
	return c, nil
}

func (c *sparseCore) add(i, j int, value float64) {
	c.mat.GetElement(int64(i), int64(j)).Real += value
}

func (c *sparseCore) addRHS(i int, value float64) {
	c.rhs[i] += value
}

func (c *sparseCore) clear() {
	c.mat.Clear()
	for i := range c.rhs {
		c.rhs[i] = 0
	}
}

func (c *sparseCore) solve() error {
	if err := c.mat.Factor(); err != nil {
		return &SingularError{err: err}
	}

	sol, err := c.mat.Solve(c.rhs)
	if err != nil {
		return fmt.Errorf("matrix solve failed: %w", err)
	}
	c.sol = sol
	return nil
}

func (c *sparseCore) solution() []float64 { return c.sol }

func (c *sparseCore) destroy() {
	if c.mat != nil {
		c.mat.Destroy()
	}
}
