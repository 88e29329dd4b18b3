package ast

import (
	"github.com/pkg/errors"
	"github.com/zillow/abysmal/decimal"
)

func foldUnary(op string, v decimal.Decimal) (decimal.Decimal, error) {
	switch op {
	case "-":
		return v.Neg(), nil
	case "+":
		return v, nil
	case "!":
		return boolDecimal(v.IsZero()), nil
	case "ABS":
		return v.Abs(), nil
	case "FLOOR":
		return v.Floor()
	case "CEILING":
		return v.Ceil()
	case "ROUND":
		return v.Round()
	}
	return decimal.Decimal{}, errors.Errorf("unknown unary operator %q", op)
}

func foldBinary(op string, l, r decimal.Decimal) (decimal.Decimal, error) {
	switch op {
	case "+":
		return l.Add(r)
	case "-":
		return l.Sub(r)
	case "*":
		return l.Mul(r)
	case "/":
		return l.Div(r)
	case "^":
		return l.Pow(r)
	case "MIN":
		return l.Min(r), nil
	case "MAX":
		return l.Max(r), nil
	case "==":
		return boolDecimal(l.Equal(r)), nil
	case "!=":
		return boolDecimal(!l.Equal(r)), nil
	case "<":
		return boolDecimal(l.Cmp(r) < 0), nil
	case "<=":
		return boolDecimal(l.Cmp(r) <= 0), nil
	case ">":
		return boolDecimal(l.Cmp(r) > 0), nil
	case ">=":
		return boolDecimal(l.Cmp(r) >= 0), nil
	}
	return decimal.Decimal{}, errors.Errorf("unknown binary operator %q", op)
}

func foldFunction(name string, args []decimal.Decimal) (decimal.Decimal, error) {
	switch name {
	case "ABS":
		return args[0].Abs(), nil
	case "FLOOR":
		return args[0].Floor()
	case "CEILING":
		return args[0].Ceil()
	case "ROUND":
		return args[0].Round()
	case "MIN":
		v := args[0]
		for _, a := range args[1:] {
			v = v.Min(a)
		}
		return v, nil
	case "MAX":
		v := args[0]
		for _, a := range args[1:] {
			v = v.Max(a)
		}
		return v, nil
	}
	return decimal.Decimal{}, errors.Errorf("unknown function %q", name)
}
