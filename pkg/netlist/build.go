package netlist

import (
	"fmt"
	"strings"

	"flowsim/pkg/element"
)

// cardNodes returns the node-name arguments of a card according to its
// element type. Functional blocks list inputs first and the output last.
func cardNodes(card Card) []string {
	switch card.Type {
	case "R", "C", "V", "I", "D", "INT", "DDT":
		if len(card.Args) < 2 {
			return card.Args
		}
		return card.Args[:2]
	case "EQN", "ODE", "LBL", "CVS":
		if len(card.Args) < 1 {
			return nil
		}
		return card.Args[:1]
	case "STOP":
		return nil
	default: // ADD, SUB, MUL, DIV, PCT, FN
		return card.Args
	}
}

// CreateElement builds the element for a card and returns it along
// with its node names in pin order.
func CreateElement(card Card) (element.Element, []string, error) {
	nodes := cardNodes(card)

	switch card.Type {
	case "R":
		if len(card.Args) < 3 {
			return nil, nil, cardErr(card, "need two nodes and a value")
		}
		value, err := ParseValue(card.Args[2])
		if err != nil {
			return nil, nil, cardErr(card, "invalid value: %v", err)
		}
		el, err := element.NewResistor(card.Name, value)
		if err != nil {
			return nil, nil, cardErr(card, "%v", err)
		}
		return el, nodes, nil

	case "C":
		if len(card.Args) < 3 {
			return nil, nil, cardErr(card, "need two nodes and a value")
		}
		value, err := ParseValue(card.Args[2])
		if err != nil {
			return nil, nil, cardErr(card, "invalid value: %v", err)
		}
		initial, err := floatParam(card, "ic", 0)
		if err != nil {
			return nil, nil, err
		}
		el, err := element.NewCapacitor(card.Name, value, initial)
		if err != nil {
			return nil, nil, cardErr(card, "%v", err)
		}
		return el, nodes, nil

	case "V":
		el, err := parseVoltageSource(card)
		if err != nil {
			return nil, nil, err
		}
		return el, nodes, nil

	case "I":
		if len(card.Args) < 3 {
			return nil, nil, cardErr(card, "need two nodes and a value")
		}
		value, err := ParseValue(card.Args[2])
		if err != nil {
			return nil, nil, cardErr(card, "invalid value: %v", err)
		}
		return element.NewCurrentSource(card.Name, value), nodes, nil

	case "D":
		if len(card.Args) < 2 {
			return nil, nil, cardErr(card, "need two nodes")
		}
		return element.NewDiode(card.Name), nodes, nil

	case "ADD":
		if len(nodes) < 3 {
			return nil, nil, cardErr(card, "need at least two inputs and an output")
		}
		return element.NewAdder(card.Name, len(nodes)-1), nodes, nil

	case "SUB":
		if len(nodes) < 3 {
			return nil, nil, cardErr(card, "need at least two inputs and an output")
		}
		return element.NewSubtracter(card.Name, len(nodes)-1), nodes, nil

	case "MUL":
		if len(nodes) < 3 {
			return nil, nil, cardErr(card, "need at least two inputs and an output")
		}
		return element.NewMultiplier(card.Name, len(nodes)-1), nodes, nil

	case "DIV":
		if len(nodes) < 3 {
			return nil, nil, cardErr(card, "need at least two inputs and an output")
		}
		return element.NewDivider(card.Name, len(nodes)-1), nodes, nil

	case "PCT":
		if len(nodes) < 3 {
			return nil, nil, cardErr(card, "need at least two inputs and an output")
		}
		return element.NewPercent(card.Name, len(nodes)-1), nodes, nil

	case "FN":
		if len(nodes) < 2 {
			return nil, nil, cardErr(card, "need at least one input and an output")
		}
		formula, ok := card.Params["expr"]
		if !ok {
			return nil, nil, cardErr(card, "missing expr parameter")
		}
		return element.NewFunction(card.Name, len(nodes)-1, formula), nodes, nil

	case "EQN":
		if len(nodes) < 1 {
			return nil, nil, cardErr(card, "need an output node")
		}
		formula, ok := card.Params["expr"]
		if !ok {
			return nil, nil, cardErr(card, "missing expr parameter")
		}
		params, err := floatListParam(card, "params")
		if err != nil {
			return nil, nil, err
		}
		return element.NewEquation(card.Name, formula, params), nodes, nil

	case "ODE":
		if len(nodes) < 1 {
			return nil, nil, cardErr(card, "need an output node")
		}
		formula, ok := card.Params["expr"]
		if !ok {
			return nil, nil, cardErr(card, "missing expr parameter")
		}
		initial, err := floatParam(card, "ic", 0)
		if err != nil {
			return nil, nil, err
		}
		params, err := floatListParam(card, "params")
		if err != nil {
			return nil, nil, err
		}
		return element.NewODE(card.Name, formula, initial, params), nodes, nil

	case "INT":
		if len(nodes) < 2 {
			return nil, nil, cardErr(card, "need an input and an output node")
		}
		initial, err := floatParam(card, "ic", 0)
		if err != nil {
			return nil, nil, err
		}
		return element.NewIntegrator(card.Name, initial), nodes, nil

	case "DDT":
		if len(nodes) < 2 {
			return nil, nil, cardErr(card, "need an input and an output node")
		}
		return element.NewDifferentiator(card.Name), nodes, nil

	case "LBL":
		if len(nodes) < 1 {
			return nil, nil, cardErr(card, "need a node")
		}
		label, ok := card.Params["label"]
		if !ok {
			return nil, nil, cardErr(card, "missing label parameter")
		}
		return element.NewLabeledNode(card.Name, label), nodes, nil

	case "CVS":
		if len(nodes) < 1 {
			return nil, nil, cardErr(card, "need an output node")
		}
		valueName, ok := card.Params["name"]
		if !ok {
			return nil, nil, cardErr(card, "missing name parameter")
		}
		def, err := floatParam(card, "default", 0)
		if err != nil {
			return nil, nil, err
		}
		return element.NewComputedValueSource(card.Name, valueName, def), nodes, nil

	case "STOP":
		stopAt, err := floatParam(card, "t", 0)
		if err != nil {
			return nil, nil, err
		}
		if stopAt <= 0 {
			return nil, nil, cardErr(card, "need a positive t parameter")
		}
		return element.NewStopTime(card.Name, stopAt), nil, nil
	}
	return nil, nil, cardErr(card, "unsupported element type")
}

func parseVoltageSource(card Card) (*element.VoltageSource, error) {
	if len(card.Args) < 3 {
		return nil, cardErr(card, "need two nodes and a value or waveform")
	}
	spec := card.Args[2]
	upper := strings.ToUpper(spec)

	switch {
	case strings.HasPrefix(upper, "SIN(") && strings.HasSuffix(spec, ")"):
		inner := strings.Fields(spec[4 : len(spec)-1])
		if len(inner) < 3 {
			return nil, cardErr(card, "SIN needs offset, amplitude and frequency")
		}
		vals := make([]float64, 0, 4)
		for _, f := range inner[:min(4, len(inner))] {
			v, err := ParseValue(f)
			if err != nil {
				return nil, cardErr(card, "invalid SIN parameter %q: %v", f, err)
			}
			vals = append(vals, v)
		}
		phase := 0.0
		if len(vals) > 3 {
			phase = vals[3]
		}
		return element.NewSinVoltageSource(card.Name, vals[0], vals[1], vals[2], phase), nil

	case strings.HasPrefix(upper, "PWL(") && strings.HasSuffix(spec, ")"):
		inner := strings.Fields(spec[4 : len(spec)-1])
		if len(inner) < 4 || len(inner)%2 != 0 {
			return nil, cardErr(card, "PWL needs time-value pairs")
		}
		times := make([]float64, len(inner)/2)
		values := make([]float64, len(inner)/2)
		for i := range times {
			var err error
			times[i], err = ParseValue(inner[2*i])
			if err != nil {
				return nil, cardErr(card, "invalid PWL time: %v", err)
			}
			values[i], err = ParseValue(inner[2*i+1])
			if err != nil {
				return nil, cardErr(card, "invalid PWL value: %v", err)
			}
		}
		el, err := element.NewPWLVoltageSource(card.Name, times, values)
		if err != nil {
			return nil, cardErr(card, "%v", err)
		}
		return el, nil

	case upper == "DC":
		if len(card.Args) < 4 {
			return nil, cardErr(card, "missing DC value")
		}
		value, err := ParseValue(card.Args[3])
		if err != nil {
			return nil, cardErr(card, "invalid DC value: %v", err)
		}
		return element.NewDCVoltageSource(card.Name, value), nil

	default:
		value, err := ParseValue(spec)
		if err != nil {
			return nil, cardErr(card, "invalid value: %v", err)
		}
		return element.NewDCVoltageSource(card.Name, value), nil
	}
}

func floatParam(card Card, key string, def float64) (float64, error) {
	raw, ok := card.Params[key]
	if !ok {
		return def, nil
	}
	v, err := ParseValue(raw)
	if err != nil {
		return 0, cardErr(card, "invalid %s parameter: %v", key, err)
	}
	return v, nil
}

func floatListParam(card Card, key string) ([]float64, error) {
	raw, ok := card.Params[key]
	if !ok {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	vals := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := ParseValue(p)
		if err != nil {
			return nil, cardErr(card, "invalid %s parameter %q: %v", key, p, err)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func cardErr(card Card, format string, args ...any) error {
	return fmt.Errorf("line %d: %s: %s", card.Line, card.Name, fmt.Sprintf(format, args...))
}
