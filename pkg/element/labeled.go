package element

import (
	"flowsim/pkg/matrix"
)

// LabeledNode binds its single node to a name in the registry so formulas in
// other elements can read that node's voltage by name. Electrically inert.
type LabeledNode struct {
	BaseElement
	label string
}

func NewLabeledNode(name, label string) *LabeledNode {
	return &LabeledNode{
		BaseElement: NewBaseElement(name, 1, 0),
		label:       label,
	}
}

func (e *LabeledNode) Type() string  { return "LBL" }
func (e *LabeledNode) Label() string { return e.label }

func (e *LabeledNode) Stamp(m matrix.Stamper, st *Status) error {
	st.Registry.BindNode(e.label, e.nodes[0])
	return nil
}

// ComputedValueSource drives its output pin from a named registry value,
// falling back to a default while nothing has published the name yet. The
// value a consumer sees is the one published by the previous timestep.
type ComputedValueSource struct {
	BaseElement
	valueName string
	def       float64
	last      float64
}

func NewComputedValueSource(name, valueName string, def float64) *ComputedValueSource {
	return &ComputedValueSource{
		BaseElement: NewBaseElement(name, 1, 1),
		valueName:   valueName,
		def:         def,
		last:        def,
	}
}

func (e *ComputedValueSource) Type() string { return "CVS" }

func (e *ComputedValueSource) Stamp(m matrix.Stamper, st *Status) error {
	m.StampVoltageSource(e.nodes[0], 0, e.vs[0])
	return nil
}

func (e *ComputedValueSource) DoStep(m matrix.Stamper, st *Status) {
	e.last = st.Registry.Computed(e.valueName, e.def)
	m.UpdateVoltageSource(e.vs[0], e.last)
}

func (e *ComputedValueSource) Reset() {
	e.BaseElement.Reset()
	e.last = e.def
}
