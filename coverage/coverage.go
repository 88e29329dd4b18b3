// Package coverage classifies source lines as covered, partially
// covered, or uncovered from one or more instruction-level execution
// vectors recorded by dsm.Machine.RunWithCoverage.
package coverage

import (
	"sort"

	"github.com/zillow/abysmal/codegen"
)

// Report is the result of combining coverage vectors against a source
// map: which lines never executed at all, and which executed on some
// runs but not others.
type Report struct {
	Uncovered []int
	Partial   []int
}

// Combine ORs together one or more per-instruction coverage vectors
// (typically gathered across several RunWithCoverage calls exercising
// different branches of the same program) and classifies each source
// line named in sourceMap.
//
// A line is uncovered if none of its instructions executed in any run.
// It is partial if some of its instructions executed but not all —
// meaningful for a line spanning more than one instruction (e.g. a
// ternary or a short-circuited logical operator), where only one branch
// of the expression ran. An instruction with a null SourceLine (a
// synthetic terminator with no source line of its own) is skipped
// entirely, the same as the original's coverage.py skips a None line;
// an instruction whose SourceLine is a multi-line range (a statement
// that crossed a backslash continuation) counts toward every line in
// that range, the same as the original expands a tuple range.
func Combine(sourceMap codegen.SourceMap, vectors ...[]bool) Report {
	if len(vectors) == 0 {
		return Report{}
	}
	n := len(sourceMap)
	hit := make([]bool, n)
	for _, v := range vectors {
		for i := 0; i < n && i < len(v); i++ {
			if v[i] {
				hit[i] = true
			}
		}
	}

	lineInstrs := make(map[int][]int)
	for i, sl := range sourceMap {
		for _, line := range sl.Lines() {
			lineInstrs[line] = append(lineInstrs[line], i)
		}
	}

	var uncovered, partial []int
	for line, idxs := range lineInstrs {
		covered, total := 0, len(idxs)
		for _, i := range idxs {
			if hit[i] {
				covered++
			}
		}
		switch {
		case covered == 0:
			uncovered = append(uncovered, line)
		case covered < total:
			partial = append(partial, line)
		}
	}
	sort.Ints(uncovered)
	sort.Ints(partial)
	return Report{Uncovered: uncovered, Partial: partial}
}

// GetUncoveredLines is a thin convenience wrapper around Combine for the
// common single-run case, named to match the original implementation's
// `get_uncovered_lines` entry point.
func GetUncoveredLines(sourceMap codegen.SourceMap, executed []bool) (uncovered, partial []int) {
	r := Combine(sourceMap, executed)
	return r.Uncovered, r.Partial
}
