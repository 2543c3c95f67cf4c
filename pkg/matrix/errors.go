package matrix

// SingularError marks an ill-formed topology (floating node, zero-resistance
// loop). It is fatal for the timestep: the controller reports it upward and
// does not retry.
type SingularError struct {
	err error
}

func (e *SingularError) Error() string {
	if e.err == nil {
		return "singular matrix"
	}
	return "singular matrix: " + e.err.Error()
}

func (e *SingularError) Unwrap() error { return e.err }
