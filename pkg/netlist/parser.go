package netlist

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Deck is a parsed netlist: a title line, element cards and the
// transient directive.
type Deck struct {
	Title string
	Cards []Card
	Nodes map[string]int
	Tran  TranParam
	// .option overrides, passed through to the simulator options.
	Options map[string]string
}

type TranParam struct {
	TStep float64
	TStop float64
	TMax  float64
	Set   bool
}

// Card is one element line. Args holds the positional tokens after the
// name (node names, values, waveform specs) and Params the key=value
// pairs in order of appearance.
type Card struct {
	Type   string
	Name   string
	Args   []string
	Params map[string]string
	Line   int
}

var unitMap = map[string]float64{
	"T":   1e12,
	"G":   1e9,
	"meg": 1e6,
	"K":   1e3,
	"k":   1e3,
	"m":   1e-3,
	"u":   1e-6,
	"n":   1e-9,
	"p":   1e-12,
	"f":   1e-15,
}

var cardTypes = map[string]bool{
	"R": true, "C": true, "V": true, "I": true, "D": true,
	"ADD": true, "SUB": true, "MUL": true, "DIV": true, "PCT": true,
	"FN": true, "EQN": true, "ODE": true, "INT": true, "DDT": true,
	"LBL": true, "CVS": true, "STOP": true,
}

// Parse reads a netlist. The first line is the title; "*" starts a
// comment, "+" continues the previous line, ".end" stops parsing.
func Parse(input string) (*Deck, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	deck := &Deck{
		Nodes:   make(map[string]int),
		Options: make(map[string]string),
	}

	if scanner.Scan() {
		deck.Title = strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "*"))
	}

	var currentLine string
	var currentNo, lineNo int
	lineNo = 1

	flush := func() error {
		if currentLine == "" {
			return nil
		}
		err := parseLine(deck, currentLine, currentNo)
		currentLine = ""
		return err
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if len(line) == 0 {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}

		// Inline comments. Quoted expressions may contain "*" so only
		// strip from an unquoted position.
		if idx := commentIndex(line); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
			if len(line) == 0 {
				continue
			}
		}

		if strings.HasPrefix(line, "+") {
			if currentLine == "" {
				return nil, fmt.Errorf("line %d: continuation without a preceding card", lineNo)
			}
			currentLine += " " + strings.TrimSpace(line[1:])
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}

		if strings.EqualFold(line, ".end") {
			return deck, nil
		}
		currentLine = line
		currentNo = lineNo
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return deck, nil
}

// commentIndex finds the first "*" outside of double quotes, or -1.
func commentIndex(line string) int {
	inQuote := false
	for i, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == '*' && !inQuote:
			return i
		}
	}
	return -1
}

func parseLine(deck *Deck, line string, lineNo int) error {
	if strings.HasPrefix(line, ".") {
		return parseDotCard(deck, line, lineNo)
	}

	card, err := parseCard(line, lineNo)
	if err != nil {
		return err
	}
	deck.Cards = append(deck.Cards, *card)
	for _, node := range cardNodes(*card) {
		if node == "0" || node == "gnd" {
			continue
		}
		if _, exists := deck.Nodes[node]; !exists {
			deck.Nodes[node] = len(deck.Nodes)
		}
	}
	return nil
}

func parseDotCard(deck *Deck, line string, lineNo int) error {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ".tran":
		if len(fields) < 3 {
			return fmt.Errorf("line %d: .tran needs tstep and tstop", lineNo)
		}
		var err error
		deck.Tran.TStep, err = ParseValue(fields[1])
		if err != nil {
			return fmt.Errorf("line %d: invalid tstep: %w", lineNo, err)
		}
		deck.Tran.TStop, err = ParseValue(fields[2])
		if err != nil {
			return fmt.Errorf("line %d: invalid tstop: %w", lineNo, err)
		}
		if len(fields) > 3 {
			deck.Tran.TMax, err = ParseValue(fields[3])
			if err != nil {
				return fmt.Errorf("line %d: invalid tmax: %w", lineNo, err)
			}
		}
		if deck.Tran.TMax == 0 {
			deck.Tran.TMax = deck.Tran.TStep
		}
		deck.Tran.Set = true
		return nil

	case ".option", ".options":
		for _, f := range fields[1:] {
			key, val, ok := strings.Cut(f, "=")
			if !ok {
				return fmt.Errorf("line %d: option %q is not key=value", lineNo, f)
			}
			deck.Options[strings.ToLower(key)] = val
		}
		return nil

	default:
		return fmt.Errorf("line %d: unsupported directive: %s", lineNo, fields[0])
	}
}

func parseCard(line string, lineNo int) (*Card, error) {
	tokens, err := tokenize(line)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", lineNo, err)
	}
	if len(tokens) < 1 {
		return nil, fmt.Errorf("line %d: empty card", lineNo)
	}

	name := tokens[0]
	typ := strings.ToUpper(letterPrefix(name))
	if !cardTypes[typ] {
		return nil, fmt.Errorf("line %d: unknown element type in %q", lineNo, name)
	}

	card := &Card{
		Type:   typ,
		Name:   name,
		Params: make(map[string]string),
		Line:   lineNo,
	}
	for _, tok := range tokens[1:] {
		if key, val, ok := splitParam(tok); ok {
			card.Params[strings.ToLower(key)] = val
			continue
		}
		card.Args = append(card.Args, tok)
	}
	return card, nil
}

// letterPrefix returns the leading letters of a card name: "DIV3" ->
// "DIV", "R1" -> "R".
func letterPrefix(name string) string {
	for i, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return name[:i]
		}
	}
	return name
}

// splitParam recognizes key=value tokens. Waveform specs like
// SIN(0 5 50) never contain "=", so a bare "=" split is safe.
func splitParam(tok string) (key, val string, ok bool) {
	idx := strings.Index(tok, "=")
	if idx <= 0 {
		return "", "", false
	}
	return tok[:idx], strings.Trim(tok[idx+1:], `"`), true
}

// tokenize splits a card on whitespace, keeping double-quoted strings
// and parenthesized groups as single tokens.
func tokenize(line string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	depth := 0

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case inQuote:
			cur.WriteRune(r)
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses: %s", line)
			}
			cur.WriteRune(r)
		case (r == ' ' || r == '\t') && depth == 0:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote: %s", line)
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses: %s", line)
	}
	flush()
	return tokens, nil
}

// ParseValue parses a number with an optional SPICE unit suffix:
// "1k" -> 1000, "10u" -> 1e-5.
func ParseValue(val string) (float64, error) {
	re := regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)(meg|[TGKkmunpf])?s?$`)
	matches := re.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %s", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}
	if matches[2] != "" {
		num *= unitMap[matches[2]]
	}
	return num, nil
}
