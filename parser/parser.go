// Package parser turns a token stream into an ast.Program: a Pratt
// (top-down operator precedence) expression parser feeding a small
// recursive-descent statement parser, followed by whole-program
// validation (undefined labels, state-graph cycles).
package parser

import (
	"fmt"

	"github.com/zillow/abysmal/ast"
	"github.com/zillow/abysmal/decimal"
	"github.com/zillow/abysmal/token"
)

// CompilationError reports the first problem found while parsing,
// carrying the exact source position spec.md's error-handling design
// requires.
type CompilationError struct {
	Line, Char int
	Msg        string
}

func (e *CompilationError) Error() string {
	if e.Line == 0 {
		return e.Msg
	}
	return fmt.Sprintf("line %d, char %d: %s", e.Line, e.Char, e.Msg)
}

// maxSetMembers bounds `in { ... }` membership lists. Not specified by
// the original implementation; see DESIGN.md's Open Question decisions.
const maxSetMembers = 1024

type parser struct {
	toks []token.Token
	pos  int

	vars      map[string]bool
	constants map[string]decimal.Decimal

	inAssignment bool
	labels       map[string]bool
	currentState string
}

// Parse builds an ast.Program from toks (as produced by lexer.Lex),
// resolving bare identifiers against declaredVariables and constants (a
// name in constants resolves to a Literal at the point it is used,
// exactly as a `let`-declared variable resolves to a Variable; the two
// sets must be disjoint). It stops at the first error, per spec.md §7's
// single-error contract.
func Parse(toks []token.Token, declaredVariables []string, constants map[string]decimal.Decimal) (*ast.Program, error) {
	for _, v := range declaredVariables {
		if _, ok := constants[v]; ok {
			return nil, fmt.Errorf("%q is declared as both a variable and a constant", v)
		}
	}

	p := &parser{
		toks:      toks,
		vars:      make(map[string]bool, len(declaredVariables)),
		constants: constants,
		labels:    make(map[string]bool),
	}
	for _, v := range declaredVariables {
		p.vars[v] = true
	}
	prog := &ast.Program{Variables: append([]string(nil), declaredVariables...)}

	p.skipEOLs()
	for !p.at(token.EOF) {
		switch {
		case p.at(token.KwLet):
			init, err := p.parseLet()
			if err != nil {
				return nil, err
			}
			prog.Declared = append(prog.Declared, init.Variable)
			prog.Initializations = append(prog.Initializations, init)
		case p.at(token.Label) && p.peekIsStateStart():
			state, err := p.parseState()
			if err != nil {
				return nil, err
			}
			prog.States = append(prog.States, state)
		default:
			return nil, p.errorf(p.cur(), "missing start state label")
		}
		p.skipEOLs()
	}

	if len(prog.States) == 0 {
		return nil, p.errorf(p.cur(), "no states are defined")
	}
	if err := validateLabels(prog); err != nil {
		return nil, err
	}
	if err := validateAcyclic(prog); err != nil {
		return nil, err
	}
	return prog, nil
}

func (p *parser) cur() token.Token     { return p.toks[p.pos] }
func (p *parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(k token.Kind) (token.Token, error) {
	if !p.at(k) {
		return token.Token{}, p.errorf(p.cur(), "expected %s, found %s", k, p.cur())
	}
	return p.advance(), nil
}

func (p *parser) skipEOLs() {
	for p.at(token.EOL) {
		p.advance()
	}
}

func (p *parser) errorf(at token.Token, format string, args ...interface{}) error {
	return &CompilationError{Line: at.Line, Char: at.Char, Msg: fmt.Sprintf(format, args...)}
}

// stamp records n's source position as starting at start and ending at
// the line of the most recently consumed token — the same line as start
// unless n's source crossed one or more backslash continuations.
func (p *parser) stamp(n ast.Positioned, start token.Token) {
	n.SetPos(start.Line, start.Char)
	if end := p.toks[p.pos-1].Line; end != start.Line {
		n.SetEndLine(end)
	}
}

// parseLet handles a `let NAME = expr` declaration. NAME is not added to
// p.vars until after the initializer is parsed, so it cannot refer to
// itself.
func (p *parser) parseLet() (*ast.Assignment, error) {
	start := p.cur()
	p.advance() // 'let'
	name, err := p.expect(token.Identifier)
	if err != nil {
		return nil, err
	}
	if p.vars[name.Text] {
		return nil, p.errorf(name, "variable %q is already declared", name.Text)
	}
	if _, err := p.expect(token.Assign); err != nil {
		return nil, err
	}
	val, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if _, ok := val.(*ast.Assignment); ok {
		return nil, p.errorf(name, "illegal assignment")
	}
	p.vars[name.Text] = true
	init := &ast.Assignment{Variable: name.Text, Value: val}
	p.stamp(init, start)
	return init, nil
}

// peekIsStateStart reports whether the Label token at p.pos begins a new
// state declaration (@label:) rather than a branch target reference
// within a state body.
func (p *parser) peekIsStateStart() bool {
	if p.pos+1 >= len(p.toks) {
		return false
	}
	return p.toks[p.pos+1].Kind == token.Colon
}

func (p *parser) parseState() (*ast.State, error) {
	lbl, err := p.expect(token.Label)
	if err != nil {
		return nil, err
	}
	if p.labels[lbl.Text] {
		return nil, p.errorf(lbl, "duplicate label %q", lbl.Text)
	}
	p.labels[lbl.Text] = true
	if _, err := p.expect(token.Colon); err != nil {
		return nil, err
	}
	p.skipEOLs()

	st := &ast.State{Label: lbl.Text}
	p.currentState = lbl.Text
	sawBranch := false

	for {
		if p.at(token.EOF) {
			break
		}
		if p.at(token.Label) && p.peekIsStateStart() {
			break
		}
		if p.at(token.EOL) {
			p.skipEOLs()
			continue
		}
		action, err := p.parseAction(&sawBranch)
		if err != nil {
			return nil, err
		}
		st.Actions = append(st.Actions, action)
	}
	return st, nil
}

// parseAction parses one statement inside a state body: an assignment,
// or an unconditional (`=> @label`) or conditional (`expr => @label`)
// branch. Assignments must precede branches within a state.
func (p *parser) parseAction(sawBranch *bool) (ast.Action, error) {
	if p.at(token.Arrow) {
		start := p.cur()
		p.advance()
		target, err := p.expect(token.Label)
		if err != nil {
			return nil, err
		}
		*sawBranch = true
		return p.makeBranch(start, nil, target.Text)
	}

	start := p.cur()
	expr, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if assign, ok := expr.(*ast.Assignment); ok {
		if *sawBranch {
			return nil, p.errorf(start, "assignments must precede branches within a state")
		}
		// Already stamped by led's Assign case, at the variable token
		// that starts this statement.
		return assign, nil
	}
	if _, err := p.expect(token.Arrow); err != nil {
		return nil, err
	}
	target, err := p.expect(token.Label)
	if err != nil {
		return nil, err
	}
	branch, err := p.makeBranch(start, expr, target.Text)
	if err != nil {
		return nil, err
	}
	*sawBranch = true
	return branch, nil
}

// makeBranch rejects a self-loop at the point of parsing: a state
// branching to itself can never progress, so there is no reason to wait
// for the post-parse Tarjan pass (which, for a single node, would not
// even detect a self-edge as a nontrivial SCC).
func (p *parser) makeBranch(at token.Token, cond ast.Expr, target string) (*ast.Branch, error) {
	if target == p.currentState {
		return nil, p.errorf(at, "state %q branches to itself", "@"+p.currentState)
	}
	b := &ast.Branch{Cond: cond, Target: target}
	p.stamp(b, at)
	return b, nil
}

func validateLabels(prog *ast.Program) error {
	known := make(map[string]bool, len(prog.States))
	for _, s := range prog.States {
		known[s.Label] = true
	}
	for _, s := range prog.States {
		for _, a := range s.Actions {
			b, ok := a.(*ast.Branch)
			if !ok {
				continue
			}
			if !known[b.Target] {
				return &CompilationError{Msg: fmt.Sprintf("branch to undefined label %q", "@"+b.Target)}
			}
		}
	}
	return nil
}

// validateAcyclic runs Tarjan's strongly connected components algorithm
// over the state graph and rejects any program containing a nontrivial
// cycle. Self-loops are already rejected at parse time by makeBranch, so
// this only needs to flag SCCs of size greater than one.
func validateAcyclic(prog *ast.Program) error {
	index := make(map[string]int, len(prog.States))
	for i, s := range prog.States {
		index[s.Label] = i
	}
	adj := make([][]int, len(prog.States))
	for i, s := range prog.States {
		for _, a := range s.Actions {
			b, ok := a.(*ast.Branch)
			if !ok {
				continue
			}
			adj[i] = append(adj[i], index[b.Target])
		}
	}
	sccs := tarjanSCC(adj)
	for _, scc := range sccs {
		if len(scc) <= 1 {
			continue
		}
		names := make([]string, len(scc))
		for i, idx := range scc {
			names[i] = `"@` + prog.States[idx].Label + `"`
		}
		return &CompilationError{Msg: fmt.Sprintf("cycle exists between states %s", joinComma(names))}
	}
	return nil
}

func joinComma(ss []string) string {
	s := ""
	for i, v := range ss {
		if i > 0 {
			s += ", "
		}
		s += v
	}
	return s
}

// tarjanSCC returns the strongly connected components of the graph
// described by adj (adjacency list by node index), each as a slice of
// node indices, in the order Tarjan's algorithm discovers them.
func tarjanSCC(adj [][]int) [][]int {
	n := len(adj)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	visited := make([]bool, n)
	var stack []int
	var sccs [][]int
	next := 0

	var strongconnect func(v int)
	strongconnect = func(v int) {
		index[v] = next
		low[v] = next
		next++
		visited[v] = true
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if !visited[w] {
				strongconnect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] {
				if index[w] < low[v] {
					low[v] = index[w]
				}
			}
		}

		if low[v] == index[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for v := 0; v < n; v++ {
		if !visited[v] {
			strongconnect(v)
		}
	}
	return sccs
}
