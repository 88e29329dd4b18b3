package dsm

import (
	"fmt"
	"math/rand/v2"

	"github.com/zillow/abysmal/decimal"
)

// RandomSource supplies the value of the "random" expression/Lr opcode.
// Next must return a value in [0, 1); any error it returns propagates
// from Run unchanged, matching the original's behavior when a custom
// iterator raises mid-sequence.
type RandomSource interface {
	Next() (decimal.Decimal, error)
}

// defaultRandomSource produces uniform decimals with 9 digits of
// precision, computed as a random integer in [0, 1e9) scaled by 1e-9 —
// the same construction the original's default generator uses.
type defaultRandomSource struct{}

func (defaultRandomSource) Next() (decimal.Decimal, error) {
	n := rand.Int64N(1_000_000_000)
	v, err := decimal.New(n, 0).Mul(decimal.New(1, -9))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return v, nil
}

// Option configures a Machine at construction time, in the style of the
// functional options this module's teacher uses to configure a VM
// Instance.
type Option func(*Machine)

// WithRandomSource overrides the source backing the "random" expression
// and the Lr opcode. Default: a process-wide PRNG yielding 9-digit
// uniform decimals in [0, 1).
func WithRandomSource(r RandomSource) Option {
	return func(m *Machine) { m.random = r }
}

// WithInstructionLimit caps the number of instructions a single Run may
// execute before it aborts with an ExecutionError, guarding a host
// against a pathological or hostile program. Zero (the default) means
// unlimited.
func WithInstructionLimit(n int) Option {
	return func(m *Machine) { m.instructionLimit = n }
}

// WithStackSize sets the maximum depth of the value stack. Default 256,
// ample for any program without ternaries/logical-ops nested beyond
// practical source size.
func WithStackSize(n int) Option {
	return func(m *Machine) { m.stackSize = n }
}

// WithHeapSize bounds the number of decimal values a single Run may
// materialize (every arithmetic/comparison result and every "random"
// draw consumes one unit), independent of the value stack's depth.
// Default 1,000,000, ample for any realistic program; a long-running
// run that keeps computing new values exhausts it, even when each one is
// stored back into the same slot, and Run fails with "ran out of space"
// instead of growing without bound.
func WithHeapSize(n int) Option {
	return func(m *Machine) { m.heapSize = n }
}

// Machine executes a loaded Program. A Machine is not safe for
// concurrent use by multiple goroutines; construct one per execution (or
// reuse sequentially), matching spec.md's single-instance concurrency
// model.
type Machine struct {
	prog             *Program
	values           []decimal.Decimal
	random           RandomSource
	instructionLimit int
	stackSize        int
	heapSize         int
}

// NewMachine constructs a Machine bound to prog, with every declared
// variable initialized to zero.
func NewMachine(prog *Program, opts ...Option) *Machine {
	m := &Machine{
		prog:      prog,
		values:    make([]decimal.Decimal, len(prog.Variables)),
		random:    defaultRandomSource{},
		stackSize: 256,
		heapSize:  1_000_000,
	}
	for i := range m.values {
		m.values[i] = decimal.Zero
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) slot(name string) (int, error) {
	for i, v := range m.prog.Variables {
		if v == name {
			return i, nil
		}
	}
	return 0, &ErrUnknownVariable{Name: name}
}

// Get returns the current decimal value of the named variable, formatted
// per decimal.Decimal's canonical String form.
func (m *Machine) Get(name string) (string, error) {
	i, err := m.slot(name)
	if err != nil {
		return "", err
	}
	return m.values[i].String(), nil
}

// Set assigns the named variable's value, parsing value the same way the
// lexer parses a literal (no suffix shifting: this is a raw decimal).
func (m *Machine) Set(name, value string) error {
	i, err := m.slot(name)
	if err != nil {
		return err
	}
	d, err := decimal.Parse(value)
	if err != nil {
		return err
	}
	m.values[i] = d
	return nil
}

// Run executes the program from instruction 0 until an Xx opcode. Running
// past the last instruction without one is an out-of-bounds
// ExecutionError.
func (m *Machine) Run() error {
	_, err := m.run(nil)
	return err
}

// RunWithCoverage executes the program exactly like Run, additionally
// returning a boolean vector the same length as the program's
// instruction list, set at index i when instruction i executed at least
// once. Pass the result, aligned with a codegen.SourceMap, to
// coverage.GetUncoveredLines.
func (m *Machine) RunWithCoverage() ([]bool, error) {
	hit := make([]bool, len(m.prog.Instrs))
	_, err := m.run(hit)
	return hit, err
}

func (m *Machine) run(coverage []bool) (pc int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = execErrorf(pc, "", "internal error: %v", r)
		}
	}()

	stack := make([]decimal.Decimal, 0, m.stackSize)
	push := func(v decimal.Decimal) error {
		if len(stack) >= m.stackSize {
			return execErrorf(pc, "", "ran out of stack")
		}
		stack = append(stack, v)
		return nil
	}
	// popN removes and returns the top n values, oldest-pushed first (so
	// for a binary opcode, vals[0] is the left operand and vals[1] is the
	// right one). The arity check happens against the stack's depth
	// before anything is popped, so a fault always reports n (the
	// instruction's real operand count) against the stack's actual depth
	// at the moment of the fault, never a partially-consumed count.
	popN := func(op string, n int) ([]decimal.Decimal, error) {
		if len(stack) < n {
			return nil, execErrorf(pc, op, "instruction %q requires %d operand(s), but the stack only has %d", op, n, len(stack))
		}
		vals := append([]decimal.Decimal(nil), stack[len(stack)-n:]...)
		stack = stack[:len(stack)-n]
		return vals, nil
	}
	pop := func(op string) (decimal.Decimal, error) {
		vals, err := popN(op, 1)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return vals[0], nil
	}

	// heapUsed counts decimal values materialized by this run: every
	// arithmetic/comparison result and "random" draw, but not values
	// merely loaded or copied from an existing slot. It is a budget
	// distinct from the value stack's depth, so a program that keeps
	// computing fresh values while never growing the stack deep (e.g.
	// storing each one straight into a variable) still hits a bound.
	heapUsed := 0
	useHeap := func(op string) error {
		heapUsed++
		if heapUsed > m.heapSize {
			return execErrorf(pc, op, "ran out of space")
		}
		return nil
	}

	instrs := m.prog.Instrs
	executed := 0
	for pc = 0; ; {
		if pc < 0 || pc >= len(instrs) {
			return pc, execErrorf(pc, "", "current execution location %d is out-of-bounds", pc)
		}
		if coverage != nil {
			coverage[pc] = true
		}
		if m.instructionLimit > 0 {
			executed++
			if executed > m.instructionLimit {
				return pc, execErrorf(pc, instrs[pc].Op, "execution forcibly terminated after %d instructions", m.instructionLimit)
			}
		}
		in := instrs[pc]
		switch in.Op {
		case "Xx":
			return pc, nil
		case "Ju":
			pc = in.Param
			continue
		case "Jn", "Jz":
			v, err := pop(in.Op)
			if err != nil {
				return pc, err
			}
			nonzero := !v.IsZero()
			if (in.Op == "Jn" && nonzero) || (in.Op == "Jz" && !nonzero) {
				pc = in.Param
				continue
			}
		case "Lc":
			if err := push(m.prog.Constants[in.Param]); err != nil {
				return pc, err
			}
		case "Lv":
			if err := push(m.values[in.Param]); err != nil {
				return pc, err
			}
		case "Lz":
			if err := push(decimal.Zero); err != nil {
				return pc, err
			}
		case "Lo":
			if err := push(decimal.One); err != nil {
				return pc, err
			}
		case "Lr":
			v, err := m.random.Next()
			if err != nil {
				return pc, err
			}
			if err := useHeap("Lr"); err != nil {
				return pc, err
			}
			if err := push(v); err != nil {
				return pc, err
			}
		case "St":
			v, err := pop("St")
			if err != nil {
				return pc, err
			}
			m.values[in.Param] = v
		case "Cp":
			if len(stack) == 0 {
				return pc, execErrorf(pc, "Cp", "instruction \"Cp\" requires 1 operand(s), but the stack only has 0")
			}
			if err := push(stack[len(stack)-1]); err != nil {
				return pc, err
			}
		case "Pp":
			if _, err := pop("Pp"); err != nil {
				return pc, err
			}
		default:
			v, err := m.dispatchArith(pc, in, popN)
			if err != nil {
				return pc, err
			}
			if err := useHeap(in.Op); err != nil {
				return pc, err
			}
			if err := push(v); err != nil {
				return pc, err
			}
		}
		pc++
	}
	return pc, nil
}

// dispatchArith handles every opcode that consumes one or two stack
// operands and pushes exactly one decimal result: comparisons, unary
// math functions, and binary arithmetic.
func (m *Machine) dispatchArith(pc int, in Instruction, popN func(string, int) ([]decimal.Decimal, error)) (decimal.Decimal, error) {
	unary := map[string]bool{"Nt": true, "Ng": true, "Ab": true, "Cl": true, "Fl": true, "Rd": true}
	if unary[in.Op] {
		vals, err := popN(in.Op, 1)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return evalUnary(pc, in.Op, vals[0])
	}

	vals, err := popN(in.Op, 2)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return evalBinary(pc, in.Op, vals[0], vals[1])
}

func evalUnary(pc int, op string, v decimal.Decimal) (decimal.Decimal, error) {
	var (
		result decimal.Decimal
		err    error
	)
	switch op {
	case "Nt":
		return boolDecimal(v.IsZero()), nil
	case "Ng":
		return v.Neg(), nil
	case "Ab":
		return v.Abs(), nil
	case "Cl":
		result, err = v.Ceil()
	case "Fl":
		result, err = v.Floor()
	case "Rd":
		result, err = v.Round()
	}
	if err != nil {
		return decimal.Decimal{}, execErrorf(pc, op, overflowMsg(op, err))
	}
	return result, nil
}

func evalBinary(pc int, op string, lhs, rhs decimal.Decimal) (decimal.Decimal, error) {
	switch op {
	case "Eq":
		return boolDecimal(lhs.Equal(rhs)), nil
	case "Ne":
		return boolDecimal(!lhs.Equal(rhs)), nil
	case "Gt":
		return boolDecimal(lhs.Cmp(rhs) > 0), nil
	case "Ge":
		return boolDecimal(lhs.Cmp(rhs) >= 0), nil
	case "Mn":
		return lhs.Min(rhs), nil
	case "Mx":
		return lhs.Max(rhs), nil
	}

	var (
		result decimal.Decimal
		err    error
	)
	switch op {
	case "Ad":
		result, err = lhs.Add(rhs)
	case "Sb":
		result, err = lhs.Sub(rhs)
	case "Ml":
		result, err = lhs.Mul(rhs)
	case "Dv":
		result, err = lhs.Div(rhs)
		if err == decimal.ErrDivisionByZero {
			return decimal.Decimal{}, execErrorf(pc, op, "illegal Dv")
		}
	case "Pw":
		result, err = lhs.Pow(rhs)
		if err == decimal.ErrInvalidOperand || err == decimal.ErrDivisionByZero {
			return decimal.Decimal{}, execErrorf(pc, op, "illegal Pw")
		}
	}
	if err != nil {
		return decimal.Decimal{}, execErrorf(pc, op, overflowMsg(op, err))
	}
	return result, nil
}

// overflowMsg distinguishes an overflow from an underflow using the
// sentinel errors decimal's arithmetic methods return, matching the two
// distinct messages spec.md documents for arithmetic range faults.
func overflowMsg(op string, err error) string {
	if err == decimal.ErrUnderflow {
		return fmt.Sprintf("result of %s was too small", op)
	}
	return fmt.Sprintf("result of %s was too large", op)
}

func boolDecimal(b bool) decimal.Decimal {
	if b {
		return decimal.One
	}
	return decimal.Zero
}
