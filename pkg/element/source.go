package element

import (
	"fmt"
	"math"

	"flowsim/pkg/matrix"
)

type SourceKind int

const (
	DC SourceKind = iota
	SIN
	PWL
)

// VoltageSource is an ideal voltage constraint between two nodes, occupying
// one branch slot of the unknown vector.
type VoltageSource struct {
	BaseElement
	kind SourceKind

	dcValue float64

	// SIN params
	amplitude float64
	freq      float64
	phase     float64

	// PWL params
	times  []float64
	values []float64
}

func NewDCVoltageSource(name string, value float64) *VoltageSource {
	return &VoltageSource{
		BaseElement: NewBaseElement(name, 2, 1),
		kind:        DC,
		dcValue:     value,
	}
}

func NewSinVoltageSource(name string, offset, amplitude, freq, phase float64) *VoltageSource {
	return &VoltageSource{
		BaseElement: NewBaseElement(name, 2, 1),
		kind:        SIN,
		dcValue:     offset,
		amplitude:   amplitude,
		freq:        freq,
		phase:       phase,
	}
}

func NewPWLVoltageSource(name string, times, values []float64) (*VoltageSource, error) {
	if len(times) == 0 || len(times) != len(values) {
		return nil, fmt.Errorf("source %s: PWL needs matching time/value pairs", name)
	}
	return &VoltageSource{
		BaseElement: NewBaseElement(name, 2, 1),
		kind:        PWL,
		dcValue:     values[0],
		times:       times,
		values:      values,
	}, nil
}

func (v *VoltageSource) Type() string { return "V" }

func (v *VoltageSource) VoltageAt(t float64) float64 {
	switch v.kind {
	case SIN:
		phaseRad := v.phase * math.Pi / 180.0
		return v.dcValue + v.amplitude*math.Sin(2.0*math.Pi*v.freq*t+phaseRad)
	case PWL:
		return v.pwlVoltage(t)
	default:
		return v.dcValue
	}
}

func (v *VoltageSource) Stamp(m matrix.Stamper, st *Status) error {
	m.StampVoltageSource(v.nodes[0], v.nodes[1], v.vs[0])
	m.UpdateVoltageSource(v.vs[0], v.VoltageAt(st.Time))
	return nil
}

func (v *VoltageSource) pwlVoltage(t float64) float64 {
	if t <= v.times[0] {
		return v.values[0]
	}
	last := len(v.times) - 1
	if t >= v.times[last] {
		return v.values[last]
	}
	for i := 1; i < len(v.times); i++ {
		if t <= v.times[i] {
			t1, t2 := v.times[i-1], v.times[i]
			v1, v2 := v.values[i-1], v.values[i]
			return v1 + (v2-v1)*(t-t1)/(t2-t1)
		}
	}
	return v.values[last]
}

// CurrentSource injects a fixed current from its first node to its second.
type CurrentSource struct {
	BaseElement
	value float64
}

func NewCurrentSource(name string, value float64) *CurrentSource {
	return &CurrentSource{
		BaseElement: NewBaseElement(name, 2, 0),
		value:       value,
	}
}

func (i *CurrentSource) Type() string   { return "I" }
func (i *CurrentSource) Value() float64 { return i.value }

func (i *CurrentSource) Stamp(m matrix.Stamper, st *Status) error {
	// By KCL the current flows into the first node and out of the second.
	m.StampCurrentSource(i.nodes[0], i.nodes[1], i.value)
	return nil
}
