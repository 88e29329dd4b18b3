// Package codegen lowers an optimized ast.Program into DSMAL: a flat,
// symbolic list of two-letter opcodes is emitted first (implementing
// ast.Emitter), then three peephole passes simplify control flow, then
// variables and constants are assigned stack-machine slots by descending
// usage frequency before the whole thing is serialized to text.
package codegen

import (
	"github.com/zillow/abysmal/ast"
	"github.com/zillow/abysmal/decimal"
)

// inst is one symbolic instruction: opcodes that reference a variable or
// constant carry varName/constant until slot assignment resolves them to
// a numeric Param; opcodes that jump carry a symbolic label until
// assignSlotsAndEmit (in emit.go) turns it into an absolute instruction
// index.
type inst struct {
	op       string
	varName  string
	hasConst bool
	constant decimal.Decimal
	label    string
	hasParam bool
	param    int
	line     SourceLine
}

// SourceLine identifies the source line(s) that produced an instruction:
// a single line (Start == End), a contiguous range for a State action
// whose source crossed one or more backslash continuations, or the zero
// value for a synthetic instruction with no source line at all (an
// inserted Xx terminator).
type SourceLine struct {
	Start, End int
}

// IsZero reports whether s names no source line at all.
func (s SourceLine) IsZero() bool { return s.Start == 0 && s.End == 0 }

// Lines returns every source line number s covers, ascending. A zero
// SourceLine (a synthetic instruction) returns nil.
func (s SourceLine) Lines() []int {
	if s.IsZero() {
		return nil
	}
	out := make([]int, 0, s.End-s.Start+1)
	for l := s.Start; l <= s.End; l++ {
		out = append(out, l)
	}
	return out
}

func sourceLineOf(n ast.Node) SourceLine {
	start, end := n.Lines()
	return SourceLine{Start: start, End: end}
}

// SourceMap relates each emitted instruction to the source line(s) that
// produced it, aligned 1:1 with a Program's instruction list. Coverage
// vectors from dsm.Machine.RunWithCoverage are indexed the same way.
type SourceMap []SourceLine

// Result is everything Generate produces for a compiled program.
type Result struct {
	DSMAL     string
	SourceMap SourceMap
	Variables []string // in slot order
	Constants []decimal.Decimal
}

type generator struct {
	instrs   []inst
	labelPos map[string]int // label name -> index of a synthetic marker instruction ("" op)
	curLine  SourceLine
}

var unaryOpcode = map[string]string{
	"-":       "Ng",
	"!":       "Nt",
	"ABS":     "Ab",
	"FLOOR":   "Fl",
	"CEILING": "Cl",
	"ROUND":   "Rd",
}

var binaryOpcode = map[string]string{
	"+":   "Ad",
	"-":   "Sb",
	"*":   "Ml",
	"/":   "Dv",
	"^":   "Pw",
	"==":  "Eq",
	"!=":  "Ne",
	">":   "Gt",
	">=":  "Ge",
	"MIN": "Mn",
	"MAX": "Mx",
}

func (g *generator) LoadVariable(name string) {
	g.instrs = append(g.instrs, inst{op: "Lv", varName: name, line: g.curLine})
}

func (g *generator) LoadConstant(v decimal.Decimal) {
	g.instrs = append(g.instrs, inst{op: "Lc", hasConst: true, constant: v, line: g.curLine})
}

func (g *generator) LoadRandom() {
	g.instrs = append(g.instrs, inst{op: "Lr", line: g.curLine})
}

func (g *generator) UnaryOp(op string) {
	if op == "+" {
		// Unary plus is a no-op: the operand is already on the stack.
		return
	}
	g.instrs = append(g.instrs, inst{op: unaryOpcode[op], line: g.curLine})
}

func (g *generator) BinaryOp(op string) {
	g.instrs = append(g.instrs, inst{op: binaryOpcode[op], line: g.curLine})
}

func (g *generator) Duplicate() {
	g.instrs = append(g.instrs, inst{op: "Cp", line: g.curLine})
}

func (g *generator) Pop() {
	g.instrs = append(g.instrs, inst{op: "Pp", line: g.curLine})
}

func (g *generator) Jump(kind, label string) {
	op := map[string]string{"always": "Ju", "if-nonzero": "Jn", "if-zero": "Jz"}[kind]
	g.instrs = append(g.instrs, inst{op: op, label: label, line: g.curLine})
}

func (g *generator) Label(name string) {
	g.instrs = append(g.instrs, inst{op: "", label: name, line: g.curLine})
}

func (g *generator) StoreVariable(name string) {
	g.instrs = append(g.instrs, inst{op: "St", varName: name, line: g.curLine})
}

// Generate lowers prog (already optimized) to DSMAL. Initializations are
// emitted first, as a prologue that runs once before the entry state;
// each state's actions are then emitted in source order (its assignments,
// then its branches).
func Generate(prog *ast.Program) (*Result, error) {
	g := &generator{}
	for _, init := range prog.Initializations {
		g.curLine = sourceLineOf(init)
		init.Emit(g)
	}
	for _, st := range prog.States {
		g.Label(st.Label)
		for _, act := range st.Actions {
			switch a := act.(type) {
			case *ast.Assignment:
				g.curLine = sourceLineOf(a)
				a.Emit(g)
			case *ast.Branch:
				g.curLine = sourceLineOf(a)
				g.emitBranch(a)
			}
		}
		g.endState()
	}
	g.endProgram()

	rewriteZeroOne(g)
	runPeepholes(g)

	variables := append(append([]string(nil), prog.Variables...), prog.Declared...)
	return assignSlotsAndEmit(g, variables)
}

// emitBranch special-cases a negated condition (`!X`) by testing X
// directly with Jz rather than emitting the negation's Nt and then a Jn:
// one fewer instruction, and it mirrors the original compiler's emission
// rule exactly.
func (g *generator) emitBranch(b *ast.Branch) {
	switch {
	case b.Cond == nil:
		g.Jump("always", b.Target)
	default:
		if neg, ok := b.Cond.(*ast.UnOp); ok && neg.Op == "!" {
			neg.Operand.Emit(g)
			g.Jump("if-zero", b.Target)
			return
		}
		b.Cond.Emit(g)
		g.Jump("if-nonzero", b.Target)
	}
}

// endState appends Xx unless the state's last instruction already
// transfers control unconditionally.
func (g *generator) endState() {
	if len(g.instrs) == 0 || g.instrs[len(g.instrs)-1].op != "Ju" {
		g.instrs = append(g.instrs, inst{op: "Xx"})
	}
}

// endProgram is a separate, final safety net on top of endState: the
// last state might end in a Ju to an earlier label rather than Xx, and
// the program as a whole must still terminate.
func (g *generator) endProgram() {
	if len(g.instrs) == 0 || g.instrs[len(g.instrs)-1].op != "Xx" {
		g.instrs = append(g.instrs, inst{op: "Xx"})
	}
}
