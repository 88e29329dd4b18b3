package decimal_test

import (
	"testing"

	"github.com/zillow/abysmal/decimal"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1", "1"},
		{"1.50", "1.50"},
		{"-3.25", "-3.25"},
		{"123e+13", "1.23e+15"},
		{"0.000001e7", "10"},
	}
	for _, tt := range tests {
		d, err := decimal.Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.in, err)
		}
		if got := d.String(); got != tt.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRejectsNonFinite(t *testing.T) {
	for _, in := range []string{"NaN", "Infinity", "-Infinity", "not-a-number"} {
		if _, err := decimal.Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestArithmetic(t *testing.T) {
	a := decimal.MustParse("10")
	b := decimal.MustParse("4")

	if sum, err := a.Add(b); err != nil || sum.String() != "14" {
		t.Errorf("Add: got %v, %v", sum, err)
	}
	if diff, err := a.Sub(b); err != nil || diff.String() != "6" {
		t.Errorf("Sub: got %v, %v", diff, err)
	}
	if prod, err := a.Mul(b); err != nil || prod.String() != "40" {
		t.Errorf("Mul: got %v, %v", prod, err)
	}
	if quot, err := a.Div(b); err != nil || quot.String() != "2.5" {
		t.Errorf("Div: got %v, %v", quot, err)
	}
}

func TestDivisionByZero(t *testing.T) {
	a := decimal.MustParse("1")
	_, err := a.Div(decimal.Zero)
	if err != decimal.ErrDivisionByZero {
		t.Errorf("Div by zero: got %v, want ErrDivisionByZero", err)
	}
}

func TestRoundHalfToEven(t *testing.T) {
	tests := []struct{ in, want string }{
		{"0.5", "0"},
		{"1.5", "2"},
		{"2.5", "2"},
		{"-0.5", "0"},
	}
	for _, tt := range tests {
		d := decimal.MustParse(tt.in)
		r, err := d.Round()
		if err != nil {
			t.Fatalf("Round(%s) error: %v", tt.in, err)
		}
		if r.String() != tt.want {
			t.Errorf("Round(%s) = %s, want %s", tt.in, r.String(), tt.want)
		}
	}
}

func TestCmpMinMax(t *testing.T) {
	a := decimal.MustParse("3")
	b := decimal.MustParse("7")
	if a.Cmp(b) >= 0 {
		t.Errorf("Cmp(3, 7) should be negative")
	}
	if got := a.Min(b); got.String() != "3" {
		t.Errorf("Min = %s, want 3", got)
	}
	if got := a.Max(b); got.String() != "7" {
		t.Errorf("Max = %s, want 7", got)
	}
}

func TestPowNegativeBaseFractionalExponent(t *testing.T) {
	base := decimal.MustParse("-2")
	exp := decimal.MustParse("0.5")
	if _, err := base.Pow(exp); err == nil {
		t.Errorf("Pow(-2, 0.5) should be invalid")
	}
}
