package solver

import (
	"fmt"
	"strconv"
	"strings"

	"flowsim/pkg/matrix"
	"flowsim/pkg/netlist"
)

// Load builds a prepared simulator from a parsed deck. The deck's .tran
// directive sets the base timestep; .option lines override fields of
// opts.
func Load(deck *netlist.Deck, opts Options) (*Simulator, error) {
	if deck.Tran.Set {
		opts.TimeStep = deck.Tran.TStep
		if opts.MaxTimeStep == 0 {
			opts.MaxTimeStep = deck.Tran.TMax
		}
	}
	if err := applyDeckOptions(&opts, deck.Options); err != nil {
		return nil, err
	}

	sim := New(opts)
	for _, card := range deck.Cards {
		el, nodes, err := netlist.CreateElement(card)
		if err != nil {
			return nil, err
		}
		if err := sim.AddElement(el, nodes...); err != nil {
			return nil, err
		}
	}
	if err := sim.Prepare(); err != nil {
		return nil, err
	}
	return sim, nil
}

func applyDeckOptions(opts *Options, raw map[string]string) error {
	for key, val := range raw {
		var err error
		switch key {
		case "minstep":
			opts.MinTimeStep, err = netlist.ParseValue(val)
		case "maxstep":
			opts.MaxTimeStep, err = netlist.ParseValue(val)
		case "maxiter":
			opts.MaxIterations, err = strconv.Atoi(val)
		case "reltol":
			opts.RelTol, err = netlist.ParseValue(val)
		case "damping":
			opts.Damping, err = netlist.ParseValue(val)
		case "adjust":
			opts.AdjustTimeStep = val == "1" || strings.EqualFold(val, "true")
		case "backend":
			switch strings.ToLower(val) {
			case "sparse":
				opts.Backend = matrix.SparseBackend
			case "dense":
				opts.Backend = matrix.DenseBackend
			default:
				return fmt.Errorf("solver: unknown backend %q", val)
			}
		default:
			return fmt.Errorf("solver: unknown option %q", key)
		}
		if err != nil {
			return fmt.Errorf("solver: invalid option %s=%s: %w", key, val, err)
		}
	}
	return nil
}
