// Package matrix holds the MNA equation buffer: a square matrix of
// conductance/derivative coefficients plus a right-hand-side vector, with
// stamping helpers and an LU-based direct solve.
//
// Rows are 1-based. Rows 1..numNodes carry node (KCL) equations; rows
// numNodes+1..numNodes+numVS carry voltage-source branch equations. Row 0 is
// ground and stamps touching it are silently dropped. Any other out-of-range
// index is a programming bug in element stamping and panics.
package matrix

import "fmt"

// Stamper is the stamping surface elements write through. Stamps are
// additive; multiple elements may touch the same cell.
type Stamper interface {
	StampMatrix(i, j int, value float64)
	StampRightSide(i int, value float64)
	StampConductance(n1, n2 int, g float64)
	StampResistor(n1, n2 int, r float64)
	StampCurrentSource(n1, n2 int, current float64)
	StampVoltageSource(n1, n2, vs int)
	UpdateVoltageSource(vs int, voltage float64)
	StampVCVS(n1, n2 int, coef float64, vs int)
	StampNonLinear(row int)
	VoltageSourceRow(vs int) int
}

// Backend selects the linear-solver implementation.
type Backend int

const (
	SparseBackend Backend = iota // edp1096/sparse, Markowitz-pivoted LU
	DenseBackend                 // gonum mat.LU, partial pivoting
)

// core is the per-backend primitive surface the stamping helpers build on.
type core interface {
	add(i, j int, value float64)
	addRHS(i int, value float64)
	clear()
	solve() error
	solution() []float64
	destroy()
}

// Matrix is the shared MNA buffer. It is transient state: cleared and
// re-stamped every nonlinear iteration, re-created on topology change.
type Matrix struct {
	numNodes  int
	numVS     int
	size      int
	nonlinear bool
	core      core
}

func New(numNodes, numVS int, backend Backend) (*Matrix, error) {
	size := numNodes + numVS
	if size <= 0 {
		return nil, fmt.Errorf("matrix: empty system (nodes=%d, sources=%d)", numNodes, numVS)
	}

	m := &Matrix{numNodes: numNodes, numVS: numVS, size: size}

	var err error
	switch backend {
	case DenseBackend:
		m.core, err = newDenseCore(size)
	default:
		m.core, err = newSparseCore(size)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Matrix) Size() int { return m.size }

// NonLinear reports whether any element declared a nonlinear row. Linear
// systems converge on the first solve and skip the iteration loop.
func (m *Matrix) NonLinear() bool { return m.nonlinear }

// Clear zeroes matrix and RHS before an iteration's stamping pass.
func (m *Matrix) Clear() { m.core.clear() }

// Solve factors the stamped matrix and back-substitutes the RHS. The factor
// is redone every call; for small-to-medium systems that is cheaper than
// tracking which values changed between iterations.
func (m *Matrix) Solve() error { return m.core.solve() }

// Solution returns the unknown vector, 1-based: entries 1..numNodes are node
// voltages, the rest are voltage-source branch currents. Index 0 is unused.
func (m *Matrix) Solution() []float64 { return m.core.solution() }

func (m *Matrix) Destroy() { m.core.destroy() }

func (m *Matrix) check(i int) {
	if i < 0 || i > m.size {
		panic(fmt.Sprintf("matrix: stamp index %d out of range (size %d)", i, m.size))
	}
}

func (m *Matrix) StampMatrix(i, j int, value float64) {
	m.check(i)
	m.check(j)
	if i == 0 || j == 0 {
		return
	}
	m.core.add(i, j, value)
}

func (m *Matrix) StampRightSide(i int, value float64) {
	m.check(i)
	if i == 0 {
		return
	}
	m.core.addRHS(i, value)
}

func (m *Matrix) StampConductance(n1, n2 int, g float64) {
	m.StampMatrix(n1, n1, g)
	m.StampMatrix(n2, n2, g)
	m.StampMatrix(n1, n2, -g)
	m.StampMatrix(n2, n1, -g)
}

func (m *Matrix) StampResistor(n1, n2 int, r float64) {
	m.StampConductance(n1, n2, 1.0/r)
}

// StampCurrentSource injects current into n1 and out of n2.
func (m *Matrix) StampCurrentSource(n1, n2 int, current float64) {
	m.StampRightSide(n1, current)
	m.StampRightSide(n2, -current)
}

// VoltageSourceRow maps a 0-based voltage-source slot to its branch row.
func (m *Matrix) VoltageSourceRow(vs int) int {
	if vs < 0 || vs >= m.numVS {
		panic(fmt.Sprintf("matrix: voltage source %d out of range (count %d)", vs, m.numVS))
	}
	return m.numNodes + vs + 1
}

// StampVoltageSource inserts the MNA identity rows/cols for an ideal voltage
// constraint v(n1) - v(n2) = RHS[row]. The branch unknown is the current out
// of n1 through the source. The target voltage is stamped separately with
// UpdateVoltageSource so nonlinear elements can move it every iteration.
func (m *Matrix) StampVoltageSource(n1, n2, vs int) {
	row := m.VoltageSourceRow(vs)
	m.StampMatrix(row, n1, 1)
	m.StampMatrix(n1, row, 1)
	m.StampMatrix(row, n2, -1)
	m.StampMatrix(n2, row, -1)
}

func (m *Matrix) UpdateVoltageSource(vs int, voltage float64) {
	m.StampRightSide(m.VoltageSourceRow(vs), voltage)
}

// StampVCVS adds a controlling term -coef*(v(n1)-v(n2)) to a voltage-source
// branch equation, turning it into a dependent source.
func (m *Matrix) StampVCVS(n1, n2 int, coef float64, vs int) {
	row := m.VoltageSourceRow(vs)
	m.StampMatrix(row, n1, -coef)
	m.StampMatrix(row, n2, coef)
}

// StampNonLinear declares a row whose coefficients change across iterations.
func (m *Matrix) StampNonLinear(row int) {
	m.check(row)
	m.nonlinear = true
}
