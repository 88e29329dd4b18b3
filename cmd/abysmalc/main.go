// Command abysmalc compiles an Abysmal source file, optionally runs it
// against a set of variable bindings, and can print its disassembly or
// coverage report.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/zillow/abysmal"
	"github.com/zillow/abysmal/coverage"
	"github.com/zillow/abysmal/decimal"
)

// assignments collects repeatable `-var name=value` / `-const name=value`
// flags, in the style of this module's teacher's `fileList` flag.Value.
type assignments map[string]string

func (a assignments) String() string { return "" }

func (a assignments) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return errors.Errorf("expected name=value, got %q", s)
	}
	a[name] = value
	return nil
}

func main() {
	var err error
	defer func() { atExit(err) }()
	err = run()
}

func atExit(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "abysmalc: %v\n", err)
	os.Exit(1)
}

func run() error {
	srcFile := flag.String("src", "", "Abysmal source `file` to compile")
	doRun := flag.Bool("run", false, "execute the compiled program once and print final variable values")
	doCoverage := flag.Bool("coverage", false, "run with coverage recording and print per-line coverage")
	doDump := flag.Bool("dump", false, "print the DSMAL string and slot tables")
	vars := make(assignments)
	consts := make(assignments)
	flag.Var(vars, "var", "declare an external variable `name=value` (repeatable)")
	flag.Var(consts, "const", "declare a named constant `name=value` (repeatable)")
	flag.Parse()

	if *srcFile == "" {
		flag.Usage()
		return errors.New("-src is required")
	}
	src, err := os.ReadFile(*srcFile)
	if err != nil {
		return errors.Wrap(err, "reading source file")
	}

	varNames := make([]string, 0, len(vars))
	for name := range vars {
		varNames = append(varNames, name)
	}
	sort.Strings(varNames)

	constValues := make(map[string]decimal.Decimal, len(consts))
	for name, lit := range consts {
		d, err := decimal.Parse(lit)
		if err != nil {
			return errors.Wrapf(err, "parsing constant %s", name)
		}
		constValues[name] = d
	}

	result, err := abysmal.Compile(string(src), varNames, constValues)
	if err != nil {
		return errors.Wrap(err, "compiling")
	}

	if *doDump {
		dumpProgram(result)
	}

	if *doRun || *doCoverage {
		m := abysmal.NewMachine(result)
		for name, value := range vars {
			if err := m.Set(name, value); err != nil {
				return errors.Wrapf(err, "setting %s", name)
			}
		}

		var runErr error
		var hit []bool
		if *doCoverage {
			hit, runErr = m.RunWithCoverage()
		} else {
			runErr = m.Run()
		}
		if runErr != nil {
			return errors.Wrap(runErr, "running")
		}

		for _, name := range varNames {
			v, err := m.Get(name)
			if err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", name, v)
		}

		if *doCoverage {
			uncovered, partial := coverage.GetUncoveredLines(result.SourceMap, hit)
			fmt.Printf("uncovered lines: %v\n", uncovered)
			fmt.Printf("partially covered lines: %v\n", partial)
		}
	}

	return nil
}

func dumpProgram(result *abysmal.CompileResult) {
	fmt.Println(result.Program.DSMAL())
	fmt.Println("variables:", result.Program.Variables)
	fmt.Println("constants:", result.Program.Constants)
}
