package element

import (
	"math"

	"flowsim/internal/consts"
	"flowsim/pkg/matrix"
)

// Diode is the classic exponential junction, linearized each iteration into a
// conductance plus current-source companion. Junction voltage updates are
// limited Newton steps so the exponential cannot overflow between iterations.
type Diode struct {
	BaseElement

	Is   float64 // saturation current
	N    float64 // emission coefficient
	Gmin float64 // minimum conductance across the junction

	vt    float64 // thermal voltage
	vcrit float64 // critical voltage for step limiting

	vd     float64 // junction voltage of the current iterate
	lastVd float64
}

func NewDiode(name string) *Diode {
	d := &Diode{
		BaseElement: NewBaseElement(name, 2, 0),
		Is:          1e-14,
		N:           1.0,
		Gmin:        1e-12,
	}
	d.vt = consts.BOLTZMANN * (consts.KELVIN + 27.0) / consts.CHARGE
	d.vcrit = d.N * d.vt * math.Log(d.N*d.vt/(math.Sqrt2*d.Is))
	return d
}

func (d *Diode) Type() string { return "D" }

func (d *Diode) Stamp(m matrix.Stamper, st *Status) error {
	m.StampNonLinear(d.nodes[0])
	m.StampNonLinear(d.nodes[1])
	return nil
}

func (d *Diode) DoStep(m matrix.Stamper, st *Status) {
	vd := d.volts[0] - d.volts[1]

	if math.Abs(vd-d.lastVd) > ConvergeLimit(st.SubIterations, vd) {
		st.SetNotConverged()
	}
	vd = d.limitStep(vd, d.lastVd)
	d.lastVd = vd
	d.vd = vd

	nvt := d.N * d.vt
	var id, gd float64
	if vd > -3.0*nvt {
		arg := vd / nvt
		if arg > 40.0 {
			arg = 40.0
		}
		evd := math.Exp(arg)
		id = d.Is * (evd - 1.0)
		gd = (math.Abs(id)+d.Is)/nvt + d.Gmin
	} else {
		id = -d.Is
		gd = d.Gmin
	}

	m.StampConductance(d.nodes[0], d.nodes[1], gd)
	m.StampCurrentSource(d.nodes[0], d.nodes[1], -(id - gd*vd))
}

// limitStep damps large forward-bias jumps logarithmically so the Newton
// iteration stays inside the representable range of the exponential.
func (d *Diode) limitStep(vnew, vold float64) float64 {
	nvt := d.N * d.vt
	if vnew <= d.vcrit || math.Abs(vnew-vold) <= 2*nvt {
		return vnew
	}
	if vold > 0 {
		arg := 1 + (vnew-vold)/nvt
		if arg > 0 {
			return vold + nvt*math.Log(arg)
		}
		return d.vcrit
	}
	return nvt * math.Log(vnew/nvt)
}

// Current returns the junction current of the last iterate.
func (d *Diode) Current() float64 {
	nvt := d.N * d.vt
	if d.vd > -3.0*nvt {
		arg := d.vd / nvt
		if arg > 40.0 {
			arg = 40.0
		}
		return d.Is * (math.Exp(arg) - 1.0)
	}
	return -d.Is
}

func (d *Diode) Reset() {
	d.BaseElement.Reset()
	d.vd = 0
	d.lastVd = 0
}
