package parser

import (
	"github.com/zillow/abysmal/ast"
	"github.com/zillow/abysmal/decimal"
	"github.com/zillow/abysmal/token"
)

// lbp is the left-binding-power table driving the Pratt parser; higher
// binds tighter. Absent entries bind at 0 (never continue an expression).
var lbp = map[token.Kind]int{
	token.Caret:    100,
	token.Star:     90,
	token.Slash:    90,
	token.Plus:     80,
	token.Minus:    80,
	token.KwIn:     70,
	token.KwNot:    70,
	token.Lt:       60,
	token.Le:       60,
	token.Gt:       60,
	token.Ge:       60,
	token.Eq:       50,
	token.Ne:       50,
	token.AndAnd:   40,
	token.OrOr:     30,
	token.Question: 20,
	token.Assign:   10,
}

var binOpSymbol = map[token.Kind]string{
	token.Plus:  "+",
	token.Minus: "-",
	token.Star:  "*",
	token.Slash: "/",
	token.Eq:    "==",
	token.Ne:    "!=",
	token.Lt:    "<",
	token.Le:    "<=",
	token.Gt:    ">",
	token.Ge:    ">=",
}

type arity struct{ min, max int }

// functionArity gives the accepted argument-count range for each builtin.
// A name not in this table is never treated as a function call, no matter
// what follows it: it resolves as a constant or variable instead.
var functionArity = map[string]arity{
	"ABS":     {1, 1},
	"CEILING": {1, 1},
	"FLOOR":   {1, 1},
	"ROUND":   {1, 1},
	"MIN":     {2, 100},
	"MAX":     {2, 100},
}

// parseExpr parses an expression binding at least as tightly as rbp using
// the classic Pratt nud/led loop. Assignment and the ternary are ordinary
// led-level operators in this grammar, so they fall out of the same loop
// with no special-casing: parseExpr(0) at statement level may return an
// *ast.Assignment as its result.
func (p *parser) parseExpr(rbp int) (ast.Expr, error) {
	left, err := p.nud()
	if err != nil {
		return nil, err
	}
	for rbp < lbp[p.cur().Kind] {
		left, err = p.led(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

// nud ("null denotation") parses the prefix/primary position of an
// expression: literals, variables, constants, unary operators,
// parenthesized subexpressions, and function calls.
func (p *parser) nud() (ast.Expr, error) {
	t := p.cur()
	switch t.Kind {
	case token.Literal:
		p.advance()
		d, err := decimal.Parse(t.Text)
		if err != nil {
			return nil, p.errorf(t, "invalid literal %q: %v", t.Text, err)
		}
		lit := &ast.Literal{Value: d}
		p.stamp(lit, t)
		return lit, nil
	case token.Random:
		p.advance()
		r := &ast.RandomValue{}
		p.stamp(r, t)
		return r, nil
	case token.Bang:
		p.advance()
		operand, err := p.parseExpr(unaryRbp)
		if err != nil {
			return nil, err
		}
		u := &ast.UnOp{Op: "!", Operand: operand}
		p.stamp(u, t)
		return u, nil
	case token.Minus:
		p.advance()
		operand, err := p.parseExpr(unaryRbp)
		if err != nil {
			return nil, err
		}
		u := &ast.UnOp{Op: "-", Operand: operand}
		p.stamp(u, t)
		return u, nil
	case token.Plus:
		p.advance()
		operand, err := p.parseExpr(unaryRbp)
		if err != nil {
			return nil, err
		}
		u := &ast.UnOp{Op: "+", Operand: operand}
		p.stamp(u, t)
		return u, nil
	case token.LParen:
		p.advance()
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		return e, nil
	case token.Identifier:
		return p.resolveIdentifier()
	}
	return nil, p.errorf(t, "unexpected token %s", t)
}

// unaryRbp is high enough that the inner led loop triggered by parseExpr
// never fires: a prefix operator's operand is always exactly the next
// primary, with any surrounding binary operator applied by the outer
// parseExpr call once control returns to it.
const unaryRbp = 1000

func (p *parser) resolveIdentifier() (ast.Expr, error) {
	t := p.advance()
	if ar, ok := functionArity[t.Text]; ok && p.at(token.LParen) {
		return p.parseFunctionCall(t, ar)
	}
	if c, ok := p.constants[t.Text]; ok {
		lit := &ast.Literal{Value: c}
		p.stamp(lit, t)
		return lit, nil
	}
	if p.vars[t.Text] {
		v := &ast.Variable{Name: t.Text}
		p.stamp(v, t)
		return v, nil
	}
	return nil, p.errorf(t, "undeclared variable %q", t.Text)
}

func (p *parser) parseFunctionCall(name token.Token, ar arity) (ast.Expr, error) {
	p.advance() // '('
	var args []ast.Expr
	if !p.at(token.RParen) {
		for {
			a, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.at(token.Comma) {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	if len(args) < ar.min || len(args) > ar.max {
		if ar.min == ar.max {
			return nil, p.errorf(name, "%s takes exactly %d argument(s), got %d", name.Text, ar.min, len(args))
		}
		return nil, p.errorf(name, "%s takes between %d and %d arguments, got %d", name.Text, ar.min, ar.max, len(args))
	}
	f := &ast.FunctionCall{Name: name.Text, Args: args}
	p.stamp(f, name)
	return f, nil
}

// led ("left denotation") continues an expression given the left operand
// already parsed, for infix/postfix operators.
func (p *parser) led(left ast.Expr) (ast.Expr, error) {
	t := p.cur()
	switch t.Kind {
	case token.Assign:
		if p.inAssignment {
			return nil, p.errorf(t, "chained assignment is not allowed - did you mean == instead?")
		}
		v, ok := left.(*ast.Variable)
		if !ok {
			return nil, p.errorf(t, "illegal assignment")
		}
		p.advance()
		p.inAssignment = true
		val, err := p.parseExpr(0)
		p.inAssignment = false
		if err != nil {
			return nil, err
		}
		startLine, startChar := left.Pos()
		a := &ast.Assignment{Variable: v.Name, Value: val}
		p.stamp(a, token.Token{Line: startLine, Char: startChar})
		return a, nil
	case token.Question:
		p.advance()
		yes, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		no, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		startLine, startChar := left.Pos()
		ter := &ast.TerOp{Cond: left, Yes: yes, No: no}
		p.stamp(ter, token.Token{Line: startLine, Char: startChar})
		return ter, nil
	case token.OrOr, token.AndAnd:
		p.advance()
		right, err := p.parseExpr(lbp[t.Kind])
		if err != nil {
			return nil, err
		}
		op := "||"
		if t.Kind == token.AndAnd {
			op = "&&"
		}
		result := flattenLogical(op, left, right)
		startLine, startChar := left.Pos()
		if positioned, ok := result.(ast.Positioned); ok {
			p.stamp(positioned, token.Token{Line: startLine, Char: startChar})
		}
		return result, nil
	case token.KwIn:
		p.advance()
		return p.parseMembership(left, false)
	case token.KwNot:
		p.advance()
		if !p.at(token.KwIn) {
			return nil, p.errorf(p.cur(), "expected 'in' after 'not', found %s", p.cur())
		}
		p.advance()
		return p.parseMembership(left, true)
	case token.Eq, token.Ne, token.Lt, token.Le, token.Gt, token.Ge, token.Plus, token.Minus, token.Star, token.Slash:
		p.advance()
		right, err := p.parseExpr(lbp[t.Kind])
		if err != nil {
			return nil, err
		}
		startLine, startChar := left.Pos()
		b := &ast.BinOp{Op: binOpSymbol[t.Kind], Left: left, Right: right}
		p.stamp(b, token.Token{Line: startLine, Char: startChar})
		return b, nil
	case token.Caret:
		p.advance()
		// Right-associative: parse at one less than its own binding
		// power so a chained a^b^c groups as a^(b^c).
		right, err := p.parseExpr(lbp[token.Caret] - 1)
		if err != nil {
			return nil, err
		}
		startLine, startChar := left.Pos()
		b := &ast.BinOp{Op: "^", Left: left, Right: right}
		p.stamp(b, token.Token{Line: startLine, Char: startChar})
		return b, nil
	}
	return nil, p.errorf(t, "unexpected token %s in expression", t)
}

// flattenLogical splices a freshly parsed operand's predicates directly
// into the result when it is already a LogicalOp of the same operator,
// so `a && b && c` ends up as one n-ary node instead of nested binary ones.
func flattenLogical(op string, left, right ast.Expr) ast.Expr {
	var preds []ast.Expr
	if lg, ok := left.(*ast.LogicalOp); ok && lg.Op == op {
		preds = append(preds, lg.Predicates...)
	} else {
		preds = append(preds, left)
	}
	if rg, ok := right.(*ast.LogicalOp); ok && rg.Op == op {
		preds = append(preds, rg.Predicates...)
	} else {
		preds = append(preds, right)
	}
	return &ast.LogicalOp{Op: op, Predicates: preds}
}

func (p *parser) parseMembership(value ast.Expr, negated bool) (ast.Expr, error) {
	startLine, startChar := value.Pos()
	start := token.Token{Line: startLine, Char: startChar}
	switch {
	case p.at(token.LBrace):
		p.advance()
		var set []ast.Expr
		for !p.at(token.RBrace) {
			e, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			set = append(set, e)
			if len(set) > maxSetMembers {
				return nil, p.errorf(p.cur(), "set membership lists are limited to %d members", maxSetMembers)
			}
			if p.at(token.Comma) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(token.RBrace); err != nil {
			return nil, err
		}
		s := &ast.SetMembership{Value: value, Set: set, Negated: negated}
		p.stamp(s, start)
		return s, nil
	case p.at(token.LBracket), p.at(token.LParen):
		lowInclusive := p.at(token.LBracket)
		p.advance()
		low, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Comma); err != nil {
			return nil, err
		}
		high, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		var highInclusive bool
		switch {
		case p.at(token.RBracket):
			highInclusive = true
			p.advance()
		case p.at(token.RParen):
			highInclusive = false
			p.advance()
		default:
			return nil, p.errorf(p.cur(), "expected ']' or ')' to close range, found %s", p.cur())
		}
		r := &ast.RangeMembership{
			Value: value, Low: low, High: high,
			LowInclusive: lowInclusive, HighInclusive: highInclusive,
			Negated: negated,
		}
		p.stamp(r, start)
		return r, nil
	}
	return nil, p.errorf(p.cur(), "expected '{', '[' or '(' after 'in', found %s", p.cur())
}
