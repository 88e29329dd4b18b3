// Package decimal is a thin facade over cockroachdb/apd's arbitrary
// precision decimal arithmetic, shaped to Abysmal's value model: every
// Decimal carries 34 significant digits, rounds half-to-even, and rejects
// NaN/Infinity outright rather than propagating them through a program.
package decimal

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/pkg/errors"
)

// Precision is the number of significant decimal digits an Abysmal value
// may carry, matching the 34-digit (IEEE 754-2008 decimal128-class)
// precision the original C extension sourced from libmpdec.
const Precision = 34

// context is shared by every Decimal operation in this package. It is
// never mutated after init: a fresh *apd.Context per call would be wasteful
// and apd's Context methods do not retain state between calls.
var context = apd.BaseContext.WithPrecision(Precision)

func init() {
	context.Rounding = apd.RoundHalfEven
	// Mirrors the DSM's observed exponent range: far enough that
	// legitimate rule-evaluation math never clips, tight enough that a
	// runaway multiply trips Overflow instead of silently growing forever.
	context.MaxExponent = 6144
	context.MinExponent = -6143
}

// Decimal is an immutable exact decimal value. The zero Decimal is not
// meaningful; always obtain one via Parse, New, or an arithmetic method.
type Decimal struct {
	d apd.Decimal
}

// Sentinel errors returned by arithmetic methods. Callers (notably the dsm
// package) type-switch/Is against these to build detailed ExecutionErrors.
var (
	ErrOverflow        = errors.New("result too large")
	ErrUnderflow       = errors.New("result too small")
	ErrDivisionByZero  = errors.New("division by zero")
	ErrInvalidOperand  = errors.New("invalid operand")
	ErrInvalidLiteral  = errors.New("invalid decimal literal")
)

// New constructs a Decimal from an int64 coefficient and base-10 exponent,
// i.e. coeff * 10^exponent.
func New(coeff int64, exponent int32) Decimal {
	var d Decimal
	d.d.SetFinite(coeff, exponent)
	return d
}

// Zero is the additive identity.
var Zero = New(0, 0)

// One is the multiplicative identity.
var One = New(1, 0)

// Parse reads a decimal literal, rejecting NaN, Infinity, and anything
// apd can't represent as a finite value. It does not apply Abysmal's
// numeric-suffix shifting (%, k, m, b): that belongs to the lexer, which
// calls Parse on the digits only after stripping and accounting for the
// suffix.
func Parse(s string) (Decimal, error) {
	var d Decimal
	bd, _, err := apd.NewFromString(s)
	if err != nil {
		return Decimal{}, errors.Wrapf(ErrInvalidLiteral, "%q: %v", s, err)
	}
	if bd.Form != apd.Finite {
		return Decimal{}, errors.Wrapf(ErrInvalidLiteral, "%q is not a finite number", s)
	}
	d.d = *bd
	return d, nil
}

// MustParse is Parse, panicking on error. Intended for literals known at
// compile time (tests, generated code), never for user input.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders the canonical decimal form: no exponent for values whose
// adjusted exponent falls within apd's display threshold, scientific
// notation otherwise. This matches the round-trip canonicalization table
// exercised by the dsm package's tests.
func (d Decimal) String() string {
	return d.d.Text('G')
}

func apply(op func(z, a, b *apd.Decimal) (apd.Condition, error), a, b Decimal) (Decimal, error) {
	var z apd.Decimal
	cond, err := op(&z, &a.d, &b.d)
	// Classify first: the context traps some conditions, and apd then
	// returns its own error alongside the condition flags.
	if cerr := classify(cond); cerr != nil {
		return Decimal{}, cerr
	}
	if err != nil {
		return Decimal{}, err
	}
	if z.Form != apd.Finite {
		return Decimal{}, ErrInvalidOperand
	}
	return Decimal{d: z}, nil
}

func classify(cond apd.Condition) error {
	switch {
	case cond.DivisionByZero():
		return ErrDivisionByZero
	case cond.Overflow():
		return ErrOverflow
	case cond.Underflow() || cond.Subnormal():
		return ErrUnderflow
	case cond.InvalidOperation():
		return ErrInvalidOperand
	}
	return nil
}

// Add returns d + other.
func (d Decimal) Add(other Decimal) (Decimal, error) {
	return apply(context.Add, d, other)
}

// Sub returns d - other.
func (d Decimal) Sub(other Decimal) (Decimal, error) {
	return apply(context.Sub, d, other)
}

// Mul returns d * other.
func (d Decimal) Mul(other Decimal) (Decimal, error) {
	return apply(context.Mul, d, other)
}

// Div returns d / other. Dividing by zero returns ErrDivisionByZero rather
// than an Infinity, matching Abysmal's rejection of non-finite values.
func (d Decimal) Div(other Decimal) (Decimal, error) {
	if other.IsZero() {
		return Decimal{}, ErrDivisionByZero
	}
	return apply(context.Quo, d, other)
}

// Pow returns d raised to the other power. A negative base with a
// non-integer exponent is invalid and returns ErrInvalidOperand; this
// mirrors the original implementation's documented asymmetry (a negative
// base is accepted for integer exponents but not fractional ones).
func (d Decimal) Pow(other Decimal) (Decimal, error) {
	return apply(context.Pow, d, other)
}

// Neg returns -d.
func (d Decimal) Neg() Decimal {
	var z apd.Decimal
	z.Neg(&d.d)
	return Decimal{d: z}
}

// Abs returns the absolute value of d.
func (d Decimal) Abs() Decimal {
	var z apd.Decimal
	z.Abs(&d.d)
	return Decimal{d: z}
}

// Round rounds d to the nearest integer, ties to even, matching the ROUND
// opcode and the constant folder's compile-time ROUND() call.
func (d Decimal) Round() (Decimal, error) {
	var z apd.Decimal
	rctx := context.WithPrecision(Precision)
	rctx.Rounding = apd.RoundHalfEven
	_, err := rctx.Quantize(&z, &d.d, 0)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{d: z}, nil
}

// Ceil rounds d toward positive infinity.
func (d Decimal) Ceil() (Decimal, error) {
	var z apd.Decimal
	_, err := context.Ceil(&z, &d.d)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{d: z}, nil
}

// Floor rounds d toward negative infinity.
func (d Decimal) Floor() (Decimal, error) {
	var z apd.Decimal
	_, err := context.Floor(&z, &d.d)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{d: z}, nil
}

// Cmp returns -1, 0, or 1 as d is less than, equal to, or greater than
// other.
func (d Decimal) Cmp(other Decimal) int {
	return d.d.Cmp(&other.d)
}

// Equal reports whether d and other represent the same numeric value
// (2 and 2.0 are Equal, even though their String forms differ).
func (d Decimal) Equal(other Decimal) bool {
	return d.Cmp(other) == 0
}

// Min returns the smaller of d and other.
func (d Decimal) Min(other Decimal) Decimal {
	if d.Cmp(other) <= 0 {
		return d
	}
	return other
}

// Max returns the larger of d and other.
func (d Decimal) Max(other Decimal) Decimal {
	if d.Cmp(other) >= 0 {
		return d
	}
	return other
}

// IsZero reports whether d is exactly zero.
func (d Decimal) IsZero() bool {
	return d.d.IsZero()
}

// Sign returns -1, 0, or 1 depending on the sign of d.
func (d Decimal) Sign() int {
	return d.d.Sign()
}

// Int64 returns d truncated to an int64, with ok false if d does not fit.
func (d Decimal) Int64() (v int64, ok bool) {
	i, err := d.d.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

// Format implements fmt.Formatter so Decimal values print sensibly with
// %v and %s in error messages across the rest of the module.
func (d Decimal) Format(f fmt.State, verb rune) {
	fmt.Fprint(f, d.String())
}
