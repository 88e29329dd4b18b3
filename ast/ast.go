// Package ast defines Abysmal's closed set of syntax tree node types. The
// set is closed deliberately: the language has no user-defined functions,
// no recursion, and no loops, so there is no way for a client of this
// package to construct a node type outside the ones declared here.
package ast

import "github.com/zillow/abysmal/decimal"

// Emitter is the code generator's half of the double-dispatch between
// ast and codegen: every node emits itself by calling back into an
// Emitter rather than codegen walking the tree by type-switch. Declaring
// it here (not in codegen) lets codegen import ast without ast importing
// codegen back.
type Emitter interface {
	LoadVariable(name string)
	LoadConstant(v decimal.Decimal)
	LoadRandom()
	UnaryOp(op string)
	BinaryOp(op string)
	Duplicate()
	Pop()
	// Jump emits a jump of the given kind ("always", "if-nonzero",
	// "if-zero") to a label; the generator resolves the label to an
	// instruction address later.
	Jump(kind string, label string)
	Label(name string)
	StoreVariable(name string)
}

// Node is implemented by every AST type; Pos reports source position for
// diagnostics produced after parsing (mainly FoldConstants errors that
// the optimizer chooses not to propagate at compile time), and Lines
// reports the inclusive range of source lines the node's text spanned —
// a single line for nearly everything, a wider range for a State
// action whose source crossed one or more backslash continuations.
type Node interface {
	Pos() (line, char int)
	Lines() (start, end int)
}

// Positioned is implemented by every node that embeds pos, letting the
// parser (a different package) stamp position onto a node after
// constructing it without ast exposing the pos struct's fields
// directly.
type Positioned interface {
	SetPos(line, char int)
	SetEndLine(line int)
}

type pos struct {
	Line, Char, EndLine int
}

func (p pos) Pos() (int, int) { return p.Line, p.Char }

func (p pos) Lines() (int, int) {
	if p.EndLine == 0 {
		return p.Line, p.Line
	}
	return p.Line, p.EndLine
}

func (p *pos) SetPos(line, char int) { p.Line, p.Char = line, char }

// SetEndLine records the line of the last token a node's source
// consumed, when it differs from Line (the node's source spanned one or
// more backslash continuations). Left at zero (meaning "same as Line")
// otherwise.
func (p *pos) SetEndLine(line int) { p.EndLine = line }

// Expr is any node that produces a value when emitted.
type Expr interface {
	Node
	// FoldConstants attempts to reduce the expression to a Literal given
	// the current set of compile-time-known constant variables. It
	// returns the original node (with any foldable children replaced in
	// place) when folding the node itself isn't possible
	// or isn't a legal reduction (e.g. 0 ^ -1 stays unfolded so the
	// error surfaces at run time instead of compile time).
	FoldConstants(consts map[string]decimal.Decimal) Expr
	// Emit generates code for this expression via e.
	Emit(e Emitter)
}

// Action is one entry of a State's ordered action list: either an
// Assignment or a Branch. The parser only accepts a state whose
// assignments all precede its branches.
type Action interface {
	Node
	actionMarker()
}

// Variable references a named value supplied by the host program, or a
// `let`-declared variable local to the program.
type Variable struct {
	pos
	Name string
}

func (v *Variable) FoldConstants(consts map[string]decimal.Decimal) Expr {
	if c, ok := consts[v.Name]; ok {
		return &Literal{pos: v.pos, Value: c}
	}
	return v
}

func (v *Variable) Emit(e Emitter) { e.LoadVariable(v.Name) }

// Literal is a fully-known decimal constant.
type Literal struct {
	pos
	Value decimal.Decimal
}

func (l *Literal) FoldConstants(map[string]decimal.Decimal) Expr { return l }
func (l *Literal) Emit(e Emitter)                                { e.LoadConstant(l.Value) }

// RandomValue is the nullary `random!` expression: a uniformly distributed
// decimal in [0, 1) supplied by the executing Machine's random source.
type RandomValue struct{ pos }

func (r *RandomValue) FoldConstants(map[string]decimal.Decimal) Expr { return r }
func (r *RandomValue) Emit(e Emitter)                                { e.LoadRandom() }

// UnOp is a unary operator: "!", "-", "+", or one of the unary builtins
// ("ABS", "FLOOR", "CEILING", "ROUND").
type UnOp struct {
	pos
	Op      string
	Operand Expr
}

func (u *UnOp) FoldConstants(consts map[string]decimal.Decimal) Expr {
	operand := u.Operand.FoldConstants(consts)
	u.Operand = operand
	lit, ok := operand.(*Literal)
	if !ok {
		return u
	}
	v, err := foldUnary(u.Op, lit.Value)
	if err != nil {
		return u
	}
	return &Literal{pos: u.pos, Value: v}
}

func (u *UnOp) Emit(e Emitter) {
	u.Operand.Emit(e)
	e.UnaryOp(u.Op)
}

// BinOp is a binary arithmetic or comparison operator.
type BinOp struct {
	pos
	Op          string
	Left, Right Expr
}

func (b *BinOp) FoldConstants(consts map[string]decimal.Decimal) Expr {
	b.Left = b.Left.FoldConstants(consts)
	b.Right = b.Right.FoldConstants(consts)
	lhs, lok := b.Left.(*Literal)
	rhs, rok := b.Right.(*Literal)
	if !lok || !rok {
		return b
	}
	v, err := foldBinary(b.Op, lhs.Value, rhs.Value)
	if err != nil {
		// Preserve the original, unfolded node: division by zero or an
		// illegal power raised at compile time would reject programs
		// the runtime is specified to handle with an ExecutionError
		// instead. Leaving it unfolded defers the error to run time.
		return b
	}
	return &Literal{pos: b.pos, Value: v}
}

// swappedOp maps an operator with no direct opcode to the opcode that
// results from evaluating its operands in reverse order: the DSM has no
// "less than" instruction, only Gt and Ge, so `a < b` compiles as `b > a`.
var swappedOp = map[string]string{
	"<":  ">",
	"<=": ">=",
}

func (b *BinOp) Emit(e Emitter) {
	if op, ok := swappedOp[b.Op]; ok {
		b.Right.Emit(e)
		b.Left.Emit(e)
		e.BinaryOp(op)
		return
	}
	b.Left.Emit(e)
	b.Right.Emit(e)
	e.BinaryOp(b.Op)
}

// LogicalOp is the n-ary "&&" or "||", the result of flattening chained
// same-operator uses at parse time (`a && b && c` is one LogicalOp with
// three predicates, not three nested ones).
type LogicalOp struct {
	pos
	Op         string // "&&" | "||"
	Predicates []Expr
}

func (l *LogicalOp) FoldConstants(consts map[string]decimal.Decimal) Expr {
	folded := make([]Expr, 0, len(l.Predicates))
	for _, p := range l.Predicates {
		fp := p.FoldConstants(consts)
		if lit, ok := fp.(*Literal); ok {
			nonzero := !lit.Value.IsZero()
			if (l.Op == "||" && nonzero) || (l.Op == "&&" && !nonzero) {
				// Short-circuits the whole expression, regardless of
				// what earlier or later predicates contain.
				return lit
			}
			// A literal true in && (or literal false in ||) contributes
			// nothing and is dropped.
			continue
		}
		folded = append(folded, fp)
	}
	if len(folded) == 0 {
		// Every predicate was a determining literal dropped above; &&
		// of all-true is true, || of all-false is false.
		return &Literal{pos: l.pos, Value: boolDecimal(l.Op == "&&")}
	}
	if len(folded) == 1 {
		return folded[0]
	}
	l.Predicates = folded
	return l
}

func (l *LogicalOp) Emit(e Emitter) {
	end := newLabelName()
	for i, p := range l.Predicates {
		p.Emit(e)
		if i == len(l.Predicates)-1 {
			break
		}
		e.Duplicate()
		if l.Op == "||" {
			e.Jump("if-nonzero", end)
		} else {
			e.Jump("if-zero", end)
		}
		e.Pop()
	}
	e.Label(end)
}

// TerOp is the ternary `cond ? yes : no` expression.
type TerOp struct {
	pos
	Cond, Yes, No Expr
}

func (t *TerOp) FoldConstants(consts map[string]decimal.Decimal) Expr {
	t.Cond = t.Cond.FoldConstants(consts)
	t.Yes = t.Yes.FoldConstants(consts)
	t.No = t.No.FoldConstants(consts)
	if lit, ok := t.Cond.(*Literal); ok {
		if lit.Value.IsZero() {
			return t.No
		}
		return t.Yes
	}
	return t
}

// Emit lays the instructions out the way the original compiler does: the
// false path is inlined immediately after the condition's Jn and ends with
// an unconditional jump past the true path; the true path, reached by the
// Jn, falls through to the join.
func (t *TerOp) Emit(e Emitter) {
	yesLabel, afterLabel := newLabelName(), newLabelName()
	t.Cond.Emit(e)
	e.Jump("if-nonzero", yesLabel)
	t.No.Emit(e)
	e.Jump("always", afterLabel)
	e.Label(yesLabel)
	t.Yes.Emit(e)
	e.Label(afterLabel)
}

// SetMembership is `expr in { a, b, c }` (or `expr not in { ... }`).
type SetMembership struct {
	pos
	Value   Expr
	Set     []Expr
	Negated bool
}

func (s *SetMembership) FoldConstants(consts map[string]decimal.Decimal) Expr {
	s.Value = s.Value.FoldConstants(consts)
	value, valueIsLit := s.Value.(*Literal)

	remaining := make([]Expr, 0, len(s.Set))
	for _, m := range s.Set {
		fm := m.FoldConstants(consts)
		if mlit, ok := fm.(*Literal); ok && valueIsLit {
			if value.Value.Equal(mlit.Value) {
				// A literal value matching a literal member decides the
				// whole expression regardless of any other member.
				return &Literal{pos: s.pos, Value: boolDecimal(!s.Negated)}
			}
			// Known non-match: drop it, it can never matter.
			continue
		}
		remaining = append(remaining, fm)
	}
	if valueIsLit && len(remaining) == 0 {
		// No member matched and none remain to check at run time.
		return &Literal{pos: s.pos, Value: boolDecimal(s.Negated)}
	}
	s.Set = remaining
	return s
}

func (s *SetMembership) Emit(e Emitter) {
	end := newLabelName()
	found := newLabelName()
	s.Value.Emit(e)
	for _, m := range s.Set {
		e.Duplicate()
		m.Emit(e)
		e.BinaryOp("==")
		e.Jump("if-nonzero", found)
	}
	e.Pop()
	e.LoadConstant(boolDecimal(s.Negated))
	e.Jump("always", end)
	e.Label(found)
	e.Pop()
	e.LoadConstant(boolDecimal(!s.Negated))
	e.Label(end)
}

// RangeMembership is `expr in (lo, hi)` with independently selectable
// inclusivity at each bound (`[` / `(` on the low side, `]` / `)` on the
// high side), or its negation via `not in`.
type RangeMembership struct {
	pos
	Value, Low, High            Expr
	LowInclusive, HighInclusive bool
	Negated                     bool
}

func (r *RangeMembership) FoldConstants(consts map[string]decimal.Decimal) Expr {
	r.Value = r.Value.FoldConstants(consts)
	r.Low = r.Low.FoldConstants(consts)
	r.High = r.High.FoldConstants(consts)

	value, valueIsLit := r.Value.(*Literal)
	low, lowIsLit := r.Low.(*Literal)
	high, highIsLit := r.High.(*Literal)

	if valueIsLit && lowIsLit && highIsLit {
		ok := inBounds(value.Value, low.Value, r.LowInclusive, high.Value, r.HighInclusive)
		return &Literal{pos: r.pos, Value: boolDecimal(ok != r.Negated)}
	}

	// When exactly one bound is literal and already satisfied, the
	// expression reduces to a single comparison against the other bound;
	// when it's literal and violated, the whole thing is decided.
	if lowIsLit && !highIsLit {
		if satisfied, ok := boundSatisfied(value, valueIsLit, low.Value, r.LowInclusive, true); ok {
			if !satisfied {
				return &Literal{pos: r.pos, Value: boolDecimal(r.Negated)}
			}
			return r.collapseTo(r.highComparison())
		}
	}
	if highIsLit && !lowIsLit {
		if satisfied, ok := boundSatisfied(value, valueIsLit, high.Value, r.HighInclusive, false); ok {
			if !satisfied {
				return &Literal{pos: r.pos, Value: boolDecimal(r.Negated)}
			}
			return r.collapseTo(r.lowComparison())
		}
	}
	return r
}

func boundSatisfied(value *Literal, valueIsLit bool, bound decimal.Decimal, inclusive, isLow bool) (satisfied, known bool) {
	if !valueIsLit {
		return false, false
	}
	cmp := value.Value.Cmp(bound)
	if isLow {
		if inclusive {
			return cmp >= 0, true
		}
		return cmp > 0, true
	}
	if inclusive {
		return cmp <= 0, true
	}
	return cmp < 0, true
}

func (r *RangeMembership) lowComparison() Expr {
	op := ">"
	if r.LowInclusive {
		op = ">="
	}
	return &BinOp{pos: r.pos, Op: op, Left: r.Value, Right: r.Low}
}

func (r *RangeMembership) highComparison() Expr {
	op := "<"
	if r.HighInclusive {
		op = "<="
	}
	return &BinOp{pos: r.pos, Op: op, Left: r.Value, Right: r.High}
}

func (r *RangeMembership) collapseTo(cmp Expr) Expr {
	if r.Negated {
		return &UnOp{pos: r.pos, Op: "!", Operand: cmp}
	}
	return cmp
}

func inBounds(v, low decimal.Decimal, lowIncl bool, high decimal.Decimal, highIncl bool) bool {
	lowOK := v.Cmp(low) > 0 || (lowIncl && v.Cmp(low) == 0)
	highOK := v.Cmp(high) < 0 || (highIncl && v.Cmp(high) == 0)
	return lowOK && highOK
}

// Emit evaluates the low-bound and high-bound comparisons with
// short-circuit conjunction, each re-evaluating Value (which is always a
// Variable or Literal at the point a range test appears, so this never
// duplicates a side effect).
func (r *RangeMembership) Emit(e Emitter) {
	end := newLabelName()
	r.lowComparison().Emit(e)
	e.Duplicate()
	e.Jump("if-zero", end)
	e.Pop()
	r.highComparison().Emit(e)
	e.Label(end)
	if r.Negated {
		e.UnaryOp("!")
	}
}

// FunctionCall is one of the builtin functions: ROUND, FLOOR, CEILING,
// ABS, MIN, MAX. MIN/MAX take 2 to 100 arguments; the rest are unary.
type FunctionCall struct {
	pos
	Name string
	Args []Expr
}

func (f *FunctionCall) FoldConstants(consts map[string]decimal.Decimal) Expr {
	for i, a := range f.Args {
		f.Args[i] = a.FoldConstants(consts)
	}
	lits := make([]decimal.Decimal, len(f.Args))
	for i, a := range f.Args {
		lit, ok := a.(*Literal)
		if !ok {
			return f
		}
		lits[i] = lit.Value
	}
	v, err := foldFunction(f.Name, lits)
	if err != nil {
		return f
	}
	return &Literal{pos: f.pos, Value: v}
}

var variadicFunctions = map[string]bool{"MIN": true, "MAX": true}

func (f *FunctionCall) Emit(e Emitter) {
	f.Args[0].Emit(e)
	if variadicFunctions[f.Name] {
		for _, a := range f.Args[1:] {
			a.Emit(e)
			e.BinaryOp(f.Name)
		}
		return
	}
	e.UnaryOp(f.Name)
}

// Assignment binds the result of an expression to a variable. It is both
// a State Action (`x = expr` on its own) and, because assignment is an
// ordinary led-level operator in the grammar, a legal Expr in its own
// right (so it can appear as the result of parsing any expression
// position, with the caller asserting the type it expects).
type Assignment struct {
	pos
	Variable string
	Value    Expr
}

func (a *Assignment) actionMarker() {}

func (a *Assignment) FoldConstants(consts map[string]decimal.Decimal) Expr {
	a.Value = a.Value.FoldConstants(consts)
	return a
}

func (a *Assignment) Emit(e Emitter) {
	a.Value.Emit(e)
	e.StoreVariable(a.Variable)
}

// Branch transitions evaluation to another state when Cond is non-zero
// (or unconditionally, when Cond is nil).
type Branch struct {
	pos
	Cond   Expr
	Target string
}

func (b *Branch) actionMarker() {}

// State is one `@label: ...` block: its assignments followed by its
// branches, each in source order. A branch only transfers control when
// reached and its condition (if any) is non-zero; later branches run only
// when control falls through.
type State struct {
	pos
	Label   string
	Actions []Action
}

// Program is a fully parsed Abysmal source: the host-supplied variable
// names, the program's own `let`-declared variables and their initial
// values (evaluated once, before the first state runs), and the ordered
// list of states. The first state is the entry point.
type Program struct {
	Variables       []string
	Declared        []string
	Initializations []*Assignment
	States          []*State
}

func boolDecimal(b bool) decimal.Decimal {
	if b {
		return decimal.One
	}
	return decimal.Zero
}

var labelCounter int

// newLabelName produces a synthetic label for control-flow constructs
// introduced during emission (short-circuit logic, ternaries, set and
// range membership) that have no corresponding source-level @label.
func newLabelName() string {
	labelCounter++
	return "$L" + itoa(labelCounter)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}
