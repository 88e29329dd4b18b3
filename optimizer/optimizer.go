// Package optimizer performs two compile-time transformations on a
// parsed ast.Program: constant folding to a fixed point, and inlining of
// `let`-declared variables whose value is a literal and which no state
// ever reassigns.
package optimizer

import (
	"github.com/zillow/abysmal/ast"
	"github.com/zillow/abysmal/decimal"
)

// maxPasses bounds the fixed-point iteration: each pass can only turn
// more subexpressions into literals, never fewer, so this is a safety
// net against a pathological program rather than an expected count.
const maxPasses = 10

// Optimize folds constant subexpressions and inlines always-constant
// declared variables in place, returning prog for convenience.
func Optimize(prog *ast.Program) *ast.Program {
	for pass := 0; pass < maxPasses; pass++ {
		changed := foldOnce(prog, nil)
		changed = inlineDeclaredLiterals(prog) || changed
		if !changed {
			break
		}
	}
	return prog
}

// foldOnce applies FoldConstants to every expression in the program once
// (consts is always nil here; the optimizer has no externally-supplied
// constant substitutions of its own — those are resolved at parse time —
// this parameter exists only because ast.Expr.FoldConstants takes one),
// deleting any Branch whose condition folded to a literal false and
// dropping the condition of any Branch that folded to a literal true.
func foldOnce(prog *ast.Program, consts map[string]decimal.Decimal) bool {
	changed := false
	for _, init := range prog.Initializations {
		folded := init.Value.FoldConstants(consts)
		if folded != init.Value {
			changed = true
		}
		init.Value = folded
	}
	for _, st := range prog.States {
		kept := make([]ast.Action, 0, len(st.Actions))
		for _, act := range st.Actions {
			switch a := act.(type) {
			case *ast.Assignment:
				folded := a.Value.FoldConstants(consts)
				if folded != a.Value {
					changed = true
				}
				a.Value = folded
				kept = append(kept, a)
			case *ast.Branch:
				if a.Cond == nil {
					kept = append(kept, a)
					continue
				}
				folded := a.Cond.FoldConstants(consts)
				if folded != a.Cond {
					changed = true
				}
				if lit, ok := folded.(*ast.Literal); ok {
					if lit.Value.IsZero() {
						changed = true
						continue // drop: never taken
					}
					a.Cond = nil // always taken: becomes unconditional
					changed = true
					kept = append(kept, a)
					continue
				}
				a.Cond = folded
				kept = append(kept, a)
			}
		}
		st.Actions = kept
	}
	return changed
}

// inlineDeclaredLiterals substitutes the value of any `let`-declared
// variable that (a) has a literal initializer and (b) is never assigned
// to by any state, everywhere it's referenced — in later initializations
// and every state — then drops the declaration and its initialization.
// It recomputes which variables are ever reassigned on every call, since
// a prior pass may have folded away the only assignment that used to
// disqualify one.
func inlineDeclaredLiterals(prog *ast.Program) bool {
	reassigned := assignmentTargets(prog)

	substitutions := make(map[string]decimal.Decimal)
	keepDeclared := make([]string, 0, len(prog.Declared))
	keepInit := make([]*ast.Assignment, 0, len(prog.Initializations))
	for _, init := range prog.Initializations {
		lit, isLit := init.Value.(*ast.Literal)
		if isLit && !reassigned[init.Variable] {
			substitutions[init.Variable] = lit.Value
			continue
		}
		keepDeclared = append(keepDeclared, init.Variable)
		keepInit = append(keepInit, init)
	}
	if len(substitutions) == 0 {
		return false
	}

	for _, init := range keepInit {
		init.Value = init.Value.FoldConstants(substitutions)
	}
	for _, st := range prog.States {
		for _, act := range st.Actions {
			switch a := act.(type) {
			case *ast.Assignment:
				a.Value = a.Value.FoldConstants(substitutions)
			case *ast.Branch:
				if a.Cond != nil {
					a.Cond = a.Cond.FoldConstants(substitutions)
				}
			}
		}
	}

	prog.Declared = keepDeclared
	prog.Initializations = keepInit
	return true
}

// assignmentTargets returns the set of declared-variable names assigned
// to anywhere in the program's states (not counting their own `let`
// initializer).
func assignmentTargets(prog *ast.Program) map[string]bool {
	targets := make(map[string]bool)
	for _, st := range prog.States {
		for _, act := range st.Actions {
			if a, ok := act.(*ast.Assignment); ok {
				targets[a.Variable] = true
			}
		}
	}
	return targets
}
