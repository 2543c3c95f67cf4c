package element

import (
	"flowsim/pkg/matrix"
)

// StopTime halts the run once simulated time reaches its threshold. It has
// no electrical posts; the check runs in StepFinished so the stopping
// timestep itself completes and is observable.
type StopTime struct {
	BaseElement
	stopTime float64
	stopped  bool
}

func NewStopTime(name string, stopTime float64) *StopTime {
	return &StopTime{
		BaseElement: NewBaseElement(name, 0, 0),
		stopTime:    stopTime,
	}
}

func (e *StopTime) Type() string  { return "STOP" }
func (e *StopTime) Stopped() bool { return e.stopped }

func (e *StopTime) Stamp(m matrix.Stamper, st *Status) error { return nil }

func (e *StopTime) StepFinished(st *Status) {
	if st.Time >= e.stopTime {
		e.stopped = true
		st.RequestStop()
	}
}

func (e *StopTime) Reset() {
	e.BaseElement.Reset()
	e.stopped = false
}
