package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"flowsim/pkg/config"
	"flowsim/pkg/netlist"
	"flowsim/pkg/solver"
	"flowsim/pkg/util"
)

func main() {
	configPath := flag.String("config", "", "YAML solver configuration")
	plotPath := flag.String("plot", "", "write node voltage waveforms as PNG")
	endTime := flag.Float64("end", 0, "override stop time from the netlist")
	quiet := flag.Bool("quiet", false, "suppress the result table")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("Usage: flowsim [-config cfg.yaml] [-plot out.png] [-end t] <netlist_file>")
	}

	content, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Error reading netlist file: %v", err)
	}

	deck, err := netlist.Parse(string(content))
	if err != nil {
		log.Fatalf("Error parsing netlist: %v", err)
	}

	var opts solver.Options
	if *configPath != "" {
		cfg, err := config.LoadFromPath(*configPath)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		opts = cfg.Options()
	}

	sim, err := solver.Load(deck, opts)
	if err != nil {
		log.Fatalf("Error building circuit: %v", err)
	}
	for _, perr := range sim.ParseErrors() {
		fmt.Fprintf(os.Stderr, "warning: %v (element disabled)\n", perr)
	}

	tStop := deck.Tran.TStop
	if *endTime > 0 {
		tStop = *endTime
	}
	if tStop <= 0 {
		log.Fatal("No stop time: netlist needs a .tran directive or -end flag")
	}

	if err := sim.RunToTime(tStop); err != nil {
		log.Fatalf("Simulation failed at t=%s: %v",
			util.FormatValueFactor(sim.Time(), "s"), err)
	}

	results := sim.Results()
	if !*quiet {
		printResults(deck.Title, results)
	}
	if *plotPath != "" {
		if err := writePlot(*plotPath, deck.Title, results); err != nil {
			log.Fatalf("Error writing plot: %v", err)
		}
		fmt.Printf("Waveforms written to %s\n", *plotPath)
	}
}

func printResults(title string, results *solver.Results) {
	times := results.Series("TIME")
	fmt.Printf("\n%s (%d time points):\n", title, len(times))
	fmt.Println("Time        Node Voltages        Branch Currents")
	fmt.Println("------------------------------------------------")

	var voltageNames, currentNames []string
	for _, name := range results.Names() {
		if strings.HasPrefix(name, "V(") {
			voltageNames = append(voltageNames, name)
		} else if strings.HasPrefix(name, "I(") {
			currentNames = append(currentNames, name)
		}
	}

	for i, t := range times {
		fmt.Printf("%9s  ", util.FormatValueFactor(t, "s"))
		for _, name := range voltageNames {
			fmt.Printf("%s=%s  ", name, util.FormatMagnitude(results.Series(name)[i]))
		}
		for _, name := range currentNames {
			fmt.Printf("%s=%s  ", name, util.FormatMagnitude(results.Series(name)[i]))
		}
		fmt.Println()
	}
}

func writePlot(path, title string, results *solver.Results) error {
	times := results.Series("TIME")
	if len(times) == 0 {
		return fmt.Errorf("no time points recorded")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "t"
	p.Y.Label.Text = "value"

	var lines []interface{}
	for _, name := range results.Names() {
		if !strings.HasPrefix(name, "V(") {
			continue
		}
		series := results.Series(name)
		xys := make(plotter.XYs, len(times))
		for i := range times {
			xys[i].X = times[i]
			xys[i].Y = series[i]
		}
		lines = append(lines, name, xys)
	}
	if len(lines) == 0 {
		return fmt.Errorf("no node voltages to plot")
	}

	if err := plotutil.AddLines(p, lines...); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
