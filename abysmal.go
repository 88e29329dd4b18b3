// Package abysmal compiles and runs the Abysmal rule language: a small
// DSL for evaluating numerical business rules with exact decimal
// arithmetic, compiled to a textual bytecode (DSMAL) executed on a
// decimal stack machine.
package abysmal

import (
	"github.com/pkg/errors"

	"github.com/zillow/abysmal/codegen"
	"github.com/zillow/abysmal/decimal"
	"github.com/zillow/abysmal/dsm"
	"github.com/zillow/abysmal/lexer"
	"github.com/zillow/abysmal/optimizer"
	"github.com/zillow/abysmal/parser"
)

// Decimal re-exports decimal.Decimal so callers need not import the
// decimal package directly for the common case of constructing constant
// values to pass to Compile.
type Decimal = decimal.Decimal

// CompileResult bundles everything a caller needs to load and run a
// compiled program: the DSMAL string, its source map (for coverage
// reporting), and its variable/constant slot tables.
type CompileResult struct {
	Program   *dsm.Program
	SourceMap codegen.SourceMap
}

// Compile lexes, parses, optimizes, and generates code for source.
// A bare identifier present in constants is replaced by its value at the
// point it's referenced, exactly as if it had been written as a literal;
// any other identifier resolves against variableNames (the host-supplied
// variables a Machine will bind). variableNames and the keys of constants
// must be disjoint. It returns the first error encountered (a lexer error
// wrapped as "lexing", or the parser's *parser.CompilationError), or a
// CompileResult holding the loaded, ready-to-run Program and its
// SourceMap.
func Compile(source string, variableNames []string, constants map[string]decimal.Decimal) (*CompileResult, error) {
	toks, err := lexer.Lex(source)
	if err != nil {
		return nil, errors.Wrap(err, "lexing")
	}

	prog, err := parser.Parse(toks, variableNames, constants)
	if err != nil {
		return nil, err
	}

	optimizer.Optimize(prog)

	result, err := codegen.Generate(prog)
	if err != nil {
		return nil, errors.Wrap(err, "code generation")
	}

	loaded, err := dsm.Load(result.DSMAL)
	if err != nil {
		return nil, errors.Wrap(err, "loading generated program")
	}

	return &CompileResult{Program: loaded, SourceMap: result.SourceMap}, nil
}

// NewMachine constructs a dsm.Machine for a compiled program, a thin
// convenience wrapper so simple callers need not import dsm directly.
func NewMachine(result *CompileResult, opts ...dsm.Option) *dsm.Machine {
	return dsm.NewMachine(result.Program, opts...)
}
