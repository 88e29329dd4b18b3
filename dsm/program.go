// Package dsm implements the decimal stack machine: loading a DSMAL
// string into an immutable Program, and executing a Program against a
// set of variable bindings on a Machine.
package dsm

import (
	"strings"

	"github.com/zillow/abysmal/decimal"
)

// maxSlots bounds the variable and constant tables, and the instruction
// count, at 65535 — the largest value a 16-bit slot/address parameter
// can address.
const maxSlots = 65535

// opcodes is the complete, closed instruction set. Arity and param
// semantics are documented with the opcode switch in machine.go.
var opcodes = map[string]bool{
	"Xx": true, "Ju": true, "Jn": true, "Jz": true,
	"Lc": true, "Lv": true, "Lr": true, "Lz": true, "Lo": true,
	"St": true, "Cp": true, "Pp": true,
	"Nt": true, "Ng": true, "Ab": true, "Cl": true, "Fl": true, "Rd": true,
	"Eq": true, "Ne": true, "Gt": true, "Ge": true,
	"Ad": true, "Sb": true, "Ml": true, "Dv": true, "Pw": true,
	"Mn": true, "Mx": true,
}

// paramOpcodes is the subset of opcodes that carry a 16-bit parameter.
var paramOpcodes = map[string]bool{
	"Ju": true, "Jn": true, "Jz": true, "Lc": true, "Lv": true, "St": true,
}

// Instruction is a single decoded opcode, with its parameter already
// resolved to an int (a variable/constant slot, or an instruction
// address) where applicable.
type Instruction struct {
	Op       string
	Param    int
	HasParam bool
}

// Program is an immutable, validated, loaded DSMAL program: the declared
// variable names and constant values in slot order, plus the decoded
// instruction list.
type Program struct {
	Variables []string
	Constants []decimal.Decimal
	Instrs    []Instruction
	dsmal     string
}

// DSMAL returns the program's exact wire-format string, the same one
// passed to Load (or produced by codegen.Generate), satisfying spec.md's
// persistence requirement that a Program round-trip through its DSMAL
// text.
func (p *Program) DSMAL() string { return p.dsmal }

// MarshalText implements encoding.TextMarshaler so a Program can be
// serialized by any Go text-based encoder, the round-trip persistence
// mechanism noted in SPEC_FULL.md in place of the original's pickling.
func (p *Program) MarshalText() ([]byte, error) {
	return []byte(p.dsmal), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Program) UnmarshalText(text []byte) error {
	loaded, err := Load(string(text))
	if err != nil {
		return err
	}
	*p = *loaded
	return nil
}

// Load parses and validates a DSMAL string, returning an InvalidProgramError
// describing the first problem found.
func Load(dsmal string) (*Program, error) {
	sections := strings.SplitN(dsmal, ";", 3)
	if len(sections) != 3 {
		return nil, invalidf("program must have variables, constants, and instructions sections")
	}
	varSection, constSection, instrSection := sections[0], sections[1], sections[2]

	vars, err := parseVariables(varSection)
	if err != nil {
		return nil, err
	}
	consts, err := parseConstants(constSection)
	if err != nil {
		return nil, err
	}
	instrs, err := parseInstructions(instrSection, len(vars), len(consts))
	if err != nil {
		return nil, err
	}

	return &Program{Variables: vars, Constants: consts, Instrs: instrs, dsmal: dsmal}, nil
}

func parseVariables(section string) ([]string, error) {
	if section == "" {
		return nil, nil
	}
	names := strings.Split(section, "|")
	if len(names) > maxSlots {
		return nil, invalidf("too many variables")
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			return nil, invalidf("invalid variable name %q", n)
		}
		if seen[n] {
			return nil, invalidf("duplicate variable name %q", n)
		}
		seen[n] = true
	}
	return names, nil
}

func parseConstants(section string) ([]decimal.Decimal, error) {
	if section == "" {
		return nil, nil
	}
	parts := strings.Split(section, "|")
	if len(parts) > maxSlots {
		return nil, invalidf("too many constants")
	}
	out := make([]decimal.Decimal, len(parts))
	for i, p := range parts {
		d, err := decimal.Parse(p)
		if err != nil {
			return nil, invalidf("invalid constant value %q", p)
		}
		out[i] = d
	}
	return out, nil
}

// parseInstructions decodes the instructions section of a DSMAL string.
// There is no separator between instructions: each opcode is exactly two
// letters (an uppercase letter followed by a lowercase one), immediately
// followed by a run of decimal digits when it's one of paramOpcodes,
// immediately followed by the next opcode's two letters. The format is
// self-delimiting because an opcode never starts with a digit and a
// parameter never contains a letter.
func parseInstructions(section string, numVars, numConsts int) ([]Instruction, error) {
	if section == "" {
		return nil, invalidf("program must contain at least one instruction")
	}
	var out []Instruction
	i := 0
	for i < len(section) {
		op, width, err := readOpcode(section, i)
		if err != nil {
			return nil, err
		}
		i += width
		in := Instruction{Op: op}
		if paramOpcodes[op] {
			start := i
			for i < len(section) && section[i] >= '0' && section[i] <= '9' {
				i++
			}
			if i == start {
				return nil, invalidf("instruction %q requires a parameter", op)
			}
			n, ok := parseUint16(section[start:i])
			if !ok {
				return nil, invalidf("instruction parameter is too large")
			}
			in.HasParam = true
			in.Param = n
			switch op {
			case "Lv", "St":
				if n >= numVars {
					return nil, invalidf("reference to nonexistent variable slot %d", n)
				}
			case "Lc":
				if n >= numConsts {
					return nil, invalidf("reference to nonexistent constant slot %d", n)
				}
			}
		}
		out = append(out, in)
		if len(out) > maxSlots {
			return nil, invalidf("too many instructions")
		}
	}
	return out, nil
}

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
func isLower(b byte) bool { return b >= 'a' && b <= 'z' }

// readOpcode reads the two-letter opcode starting at section[i], returning
// the number of bytes consumed. An opcode is exactly one uppercase letter
// followed by one lowercase letter; when the character at i doesn't start
// that pattern, only the single offending character is consumed and named
// in the error (mirroring the original's reporting for "?", "X0", "01",
// and similar malformed instruction bytes), and when it does but the
// resulting two-letter code isn't one of the 29 known opcodes, both
// letters are named.
func readOpcode(section string, i int) (op string, width int, err error) {
	c0 := section[i]
	if !isUpper(c0) {
		return "", 0, invalidf("invalid instruction %q", string(c0))
	}
	if i+1 >= len(section) || !isLower(section[i+1]) {
		return "", 0, invalidf("invalid instruction %q", string(c0))
	}
	op = section[i : i+2]
	if !opcodes[op] {
		return "", 0, invalidf("invalid instruction %q", op)
	}
	return op, 2, nil
}

func parseUint16(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
		if n > maxSlots {
			return 0, false
		}
	}
	return n, true
}
