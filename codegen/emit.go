package codegen

import (
	"sort"
	"strings"

	"github.com/zillow/abysmal/decimal"
)

// assignSlotsAndEmit assigns variable and constant slots by descending
// usage frequency (ties broken alphabetically, matching the original
// implementation's `(-usage_count, name)` sort key), strips label
// markers by resolving them to absolute instruction indices, and
// serializes the result to DSMAL text.
func assignSlotsAndEmit(g *generator, declaredVariables []string) (*Result, error) {
	varUsage := make(map[string]int)
	for _, name := range declaredVariables {
		varUsage[name] = 0 // every declared variable gets a slot even if unused
	}
	constUsage := make(map[string]int)
	constValue := make(map[string]decimal.Decimal)
	for _, in := range g.instrs {
		switch in.op {
		case "Lv", "St":
			varUsage[in.varName]++
		case "Lc":
			key := in.constant.String()
			constUsage[key]++
			constValue[key] = in.constant
		}
	}

	varNames := sortedByUsage(varUsage)
	varSlot := make(map[string]int, len(varNames))
	for i, name := range varNames {
		varSlot[name] = i
	}

	constKeys := sortedByUsage(constUsage)
	constSlot := make(map[string]int, len(constKeys))
	constants := make([]decimal.Decimal, len(constKeys))
	for i, key := range constKeys {
		constSlot[key] = i
		constants[i] = constValue[key]
	}

	labelIndex := indexLabels(g)

	var final []inst
	var sourceMap SourceMap
	for _, in := range g.instrs {
		if in.op == "" {
			continue // label marker, not a real instruction
		}
		out := in
		switch in.op {
		case "Lv", "St":
			out.hasParam = true
			out.param = varSlot[in.varName]
		case "Lc":
			out.hasParam = true
			out.param = constSlot[in.constant.String()]
		case "Ju", "Jn", "Jz":
			target, ok := labelIndex[in.label]
			if !ok {
				return nil, errUndefinedLabel(in.label)
			}
			out.hasParam = true
			out.param = countRealBefore(g.instrs, target)
		}
		final = append(final, out)
		sourceMap = append(sourceMap, in.line)
	}

	return &Result{
		DSMAL:     serialize(varNames, constants, final),
		SourceMap: sourceMap,
		Variables: varNames,
		Constants: constants,
	}, nil
}

// countRealBefore counts how many non-label instructions precede index
// target in instrs — i.e. the absolute instruction address target
// resolves to once label markers are stripped.
func countRealBefore(instrs []inst, target int) int {
	n := 0
	for i := 0; i < target; i++ {
		if instrs[i].op != "" {
			n++
		}
	}
	return n
}

func sortedByUsage(usage map[string]int) []string {
	names := make([]string, 0, len(usage))
	for name := range usage {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if usage[names[i]] != usage[names[j]] {
			return usage[names[i]] > usage[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

func serialize(vars []string, consts []decimal.Decimal, instrs []inst) string {
	var b strings.Builder
	b.WriteString(strings.Join(vars, "|"))
	b.WriteByte(';')
	constStrs := make([]string, len(consts))
	for i, c := range consts {
		constStrs[i] = c.String()
	}
	b.WriteString(strings.Join(constStrs, "|"))
	b.WriteByte(';')
	// No separator between instructions: each opcode is exactly two
	// letters, and a param-opcode's digits run immediately up to the
	// next opcode's two letters, so the format is self-delimiting.
	for _, in := range instrs {
		b.WriteString(in.op)
		if in.hasParam {
			b.WriteString(itoa(in.param))
		}
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

type undefinedLabelError struct{ label string }

func (e *undefinedLabelError) Error() string { return "undefined label: " + e.label }

func errUndefinedLabel(label string) error { return &undefinedLabelError{label: label} }
