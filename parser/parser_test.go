package parser_test

import (
	"strings"
	"testing"

	"github.com/zillow/abysmal/ast"
	"github.com/zillow/abysmal/decimal"
	"github.com/zillow/abysmal/lexer"
	"github.com/zillow/abysmal/parser"
	"github.com/zillow/abysmal/token"
)

func lexAndParse(src string, vars []string) (*ast.Program, error) {
	toks, err := lexer.Lex(src)
	if err != nil {
		return nil, err
	}
	return parser.Parse(toks, vars, nil)
}

func TestParseSimpleProgram(t *testing.T) {
	src := "@start:\n" +
		"total = price * quantity\n" +
		"total > 100 => @discount\n" +
		"=> @done\n" +
		"@discount:\n" +
		"total = total * 0.9\n" +
		"=> @done\n" +
		"@done:\n" +
		"x = 1\n"
	prog, err := lexAndParse(src, []string{"price", "quantity", "total", "x"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(prog.States) != 3 {
		t.Fatalf("got %d states, want 3", len(prog.States))
	}
}

func TestParseUndefinedVariable(t *testing.T) {
	_, err := lexAndParse("@start:\nx = y\n", nil)
	if err == nil {
		t.Fatal("expected error for undefined variable")
	}
}

func TestParseUndefinedLabel(t *testing.T) {
	_, err := lexAndParse("@start:\n1 => @missing\n", nil)
	if err == nil {
		t.Fatal("expected error for branch to undefined label")
	}
}

func TestParseCycleDetected(t *testing.T) {
	src := "@a:\n=> @b\n@b:\n=> @a\n"
	_, err := lexAndParse(src, nil)
	if err == nil {
		t.Fatal("expected cycle detection error")
	}
	if !strings.Contains(err.Error(), "cycle exists between states") {
		t.Errorf("got %q, want a cycle-detection message", err.Error())
	}
}

func TestParseSelfLoopDetected(t *testing.T) {
	src := "@a:\n=> @a\n"
	_, err := lexAndParse(src, nil)
	if err == nil {
		t.Fatal("expected self-loop detection error")
	}
}

func TestParseEmptyProgram(t *testing.T) {
	_, err := lexAndParse("", nil)
	if err == nil {
		t.Fatal("expected error for empty program")
	}
}

func TestParseDuplicateLabelRejected(t *testing.T) {
	src := "@a:\nx = 1\n@a:\nx = 2\n"
	_, err := lexAndParse(src, []string{"x"})
	if err == nil {
		t.Fatal("expected error for duplicate label")
	}
}

func TestParseBranchMustPrecedeLaterAssignments(t *testing.T) {
	// An assignment after a branch within the same state is rejected: the
	// grammar requires assignments before branches in source order.
	src := "@a:\n=> @b\nx = 1\n@b:\nx = 2\n"
	_, err := lexAndParse(src, []string{"x"})
	if err == nil {
		t.Fatal("expected error for an assignment following a branch")
	}
}

func TestParseSetAndRangeMembership(t *testing.T) {
	src := "@start:\n" +
		"ok = x in { 1, 2, 3 }\n" +
		"inrange = x in [1, 10]\n" +
		"excl = x not in (1, 10)\n"
	_, err := lexAndParse(src, []string{"x", "ok", "inrange", "excl"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
}

func TestParseTernary(t *testing.T) {
	_, err := lexAndParse("@start:\ny = x > 0 ? 1 : -1\n", []string{"x", "y"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
}

func TestParseLogicalAndOr(t *testing.T) {
	_, err := lexAndParse("@start:\nok = a && b || !c\n", []string{"a", "b", "c", "ok"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
}

func TestParseLetDeclaration(t *testing.T) {
	prog, err := lexAndParse("let rate = 0.1\n@start:\ny = x * rate\n", []string{"x", "y"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(prog.Declared) != 1 || prog.Declared[0] != "rate" {
		t.Fatalf("Declared = %v, want [rate]", prog.Declared)
	}
}

func TestParseChainedAssignmentRejected(t *testing.T) {
	_, err := lexAndParse("@start:\nx = y = 1\n", []string{"x", "y"})
	if err == nil {
		t.Fatal("expected error for chained assignment")
	}
}

func TestParseConstantResolvesAtReference(t *testing.T) {
	prog, err := parser.Parse(mustLex(t, "@start:\ny = rate\n"), []string{"y"}, map[string]decimal.Decimal{
		"rate": decimal.MustParse("0.5"),
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	assign, ok := prog.States[0].Actions[0].(*ast.Assignment)
	if !ok {
		t.Fatalf("got %T, want *ast.Assignment", prog.States[0].Actions[0])
	}
	lit, ok := assign.Value.(*ast.Literal)
	if !ok {
		t.Fatalf("constant reference should resolve to a Literal at parse time, got %T", assign.Value)
	}
	if lit.Value.String() != "0.5" {
		t.Errorf("got %s, want 0.5", lit.Value)
	}
}

func TestParseAssignmentSpanningContinuationReportsLineRange(t *testing.T) {
	src := "@start:\n" +
		"x = 1 + \\\n" +
		"    2\n"
	prog, err := lexAndParse(src, []string{"x"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	assign, ok := prog.States[0].Actions[0].(*ast.Assignment)
	if !ok {
		t.Fatalf("got %T, want *ast.Assignment", prog.States[0].Actions[0])
	}
	start, end := assign.Lines()
	if start != 2 || end != 3 {
		t.Errorf("Lines() = (%d, %d), want (2, 3): the statement starts on line 2 and its continuation ends on line 3", start, end)
	}
}

func TestParseAssignmentOnOneLineReportsSingleLine(t *testing.T) {
	prog, err := lexAndParse("@start:\nx = 1\n", []string{"x"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	assign := prog.States[0].Actions[0].(*ast.Assignment)
	start, end := assign.Lines()
	if start != end {
		t.Errorf("Lines() = (%d, %d), want a single line", start, end)
	}
}

func TestParseRejectsNameBothVariableAndConstant(t *testing.T) {
	_, err := parser.Parse(mustLex(t, "@start:\nx = 1\n"), []string{"rate"}, map[string]decimal.Decimal{
		"rate": decimal.MustParse("1"),
	})
	if err == nil {
		t.Fatal("expected error when a name is both a variable and a constant")
	}
}

func mustLex(t *testing.T, src string) []token.Token {
	t.Helper()
	toks, err := lexer.Lex(src)
	if err != nil {
		t.Fatalf("Lex: %v", err)
	}
	return toks
}
