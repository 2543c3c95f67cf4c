package element

// Registry is the cross-element lookup context: labeled node bindings,
// computed values published by one element and consumed by another, and
// free-form hints. It is owned by the simulator and handed to elements
// through Status, never a package global, so two simulators in one process
// stay independent.
type Registry struct {
	labels   map[string]int
	computed map[string]float64
	hints    map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		labels:   make(map[string]int),
		computed: make(map[string]float64),
		hints:    make(map[string]string),
	}
}

// BindNode associates a name with a node index. Later bindings win, matching
// the newest labeled-node element on a wire.
func (r *Registry) BindNode(name string, node int) {
	if name == "" {
		return
	}
	r.labels[name] = node
}

func (r *Registry) Node(name string) (int, bool) {
	n, ok := r.labels[name]
	return n, ok
}

func (r *Registry) Labels() map[string]int { return r.labels }

// SetComputed publishes a named value with create-on-first-use semantics.
func (r *Registry) SetComputed(name string, v float64) {
	if name == "" {
		return
	}
	r.computed[name] = v
}

// Computed reads a published value, falling back to def when the name has
// never been published.
func (r *Registry) Computed(name string, def float64) float64 {
	if v, ok := r.computed[name]; ok {
		return v
	}
	return def
}

func (r *Registry) ComputedValues() map[string]float64 { return r.computed }

func (r *Registry) SetHint(name, hint string) {
	if name == "" {
		return
	}
	if hint == "" {
		delete(r.hints, name)
		return
	}
	r.hints[name] = hint
}

func (r *Registry) Hint(name string) (string, bool) {
	h, ok := r.hints[name]
	return h, ok
}

// Reset clears per-run values but keeps node bindings, which are topology.
func (r *Registry) Reset() {
	r.computed = make(map[string]float64)
}

// vars flattens the registry into an expression variable map: labeled nodes
// resolve to their current voltage, computed values pass through.
func (r *Registry) vars(nodeVoltage func(int) float64) map[string]float64 {
	vars := make(map[string]float64, len(r.labels)+len(r.computed))
	for name, node := range r.labels {
		if nodeVoltage != nil {
			vars[name] = nodeVoltage(node)
		}
	}
	for name, v := range r.computed {
		vars[name] = v
	}
	return vars
}
