package dsm_test

import (
	"testing"

	"github.com/zillow/abysmal/decimal"
	"github.com/zillow/abysmal/dsm"
)

func mustLoad(t *testing.T, dsmal string) *dsm.Program {
	t.Helper()
	prog, err := dsm.Load(dsmal)
	if err != nil {
		t.Fatalf("Load(%q): %v", dsmal, err)
	}
	return prog
}

func TestMachineArithmetic(t *testing.T) {
	// x = 2 + 3
	prog := mustLoad(t, "x;2|3;Lc0Lc1AdSt0Xx")
	m := dsm.NewMachine(prog)
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := m.Get("x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "5" {
		t.Errorf("x = %s, want 5", got)
	}
}

func TestMachineDivisionByZero(t *testing.T) {
	prog := mustLoad(t, "x;1|0;Lc0Lc1DvSt0Xx")
	m := dsm.NewMachine(prog)
	err := m.Run()
	if err == nil {
		t.Fatal("expected division-by-zero error")
	}
	execErr, ok := err.(*dsm.ExecutionError)
	if !ok {
		t.Fatalf("got %T, want *dsm.ExecutionError", err)
	}
	if execErr.Opcode != "Dv" {
		t.Errorf("Opcode = %q, want Dv", execErr.Opcode)
	}
	if execErr.Error() == "" || !containsSubstring(execErr.Error(), "illegal Dv") {
		t.Errorf("Error() = %q, want it to mention %q", execErr.Error(), "illegal Dv")
	}
}

func TestMachineIllegalPower(t *testing.T) {
	// 0 ^ -1 is illegal: it amounts to a division by zero.
	prog := mustLoad(t, ";-1;LzLc0PwXx")
	m := dsm.NewMachine(prog)
	err := m.Run()
	if err == nil {
		t.Fatal("expected illegal Pw error")
	}
	execErr, ok := err.(*dsm.ExecutionError)
	if !ok || execErr.Opcode != "Pw" {
		t.Fatalf("got %v, want an ExecutionError with Opcode Pw", err)
	}
}

func TestMachineConditionalJump(t *testing.T) {
	// x starts at 0; if x is zero, set x = 1, else x = 2.
	prog := mustLoad(t, "x;1|2;Lv0Jz5Lc1St0Ju7Lc0St0Xx")
	m := dsm.NewMachine(prog)
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := m.Get("x")
	if got != "1" {
		t.Errorf("x = %s, want 1", got)
	}
}

func TestMachineUnknownVariable(t *testing.T) {
	prog := mustLoad(t, "x;;Xx")
	m := dsm.NewMachine(prog)
	if _, err := m.Get("y"); err == nil {
		t.Fatal("expected error for unknown variable")
	}
	if err := m.Set("y", "1"); err == nil {
		t.Fatal("expected error for unknown variable on Set")
	}
}

func TestMachineInstructionLimit(t *testing.T) {
	// An unconditional jump back to itself would loop forever without a
	// limit; Ju0 jumps to instruction 0, which is itself.
	prog := mustLoad(t, ";;Ju0")
	m := dsm.NewMachine(prog, dsm.WithInstructionLimit(100))
	err := m.Run()
	if err == nil {
		t.Fatal("expected instruction-limit error")
	}
	if !containsSubstring(err.Error(), "execution forcibly terminated after 100 instructions") {
		t.Errorf("got %q, want the instruction-limit message", err.Error())
	}
}

func TestMachineOutOfBoundsJump(t *testing.T) {
	prog := mustLoad(t, ";;Ju99")
	m := dsm.NewMachine(prog)
	err := m.Run()
	if err == nil {
		t.Fatal("expected an out-of-bounds execution error")
	}
	if !containsSubstring(err.Error(), "out-of-bounds") {
		t.Errorf("got %q, want an out-of-bounds message", err.Error())
	}
}

func TestMachineStackUnderflow(t *testing.T) {
	prog := mustLoad(t, ";;AdXx")
	m := dsm.NewMachine(prog)
	err := m.Run()
	if err == nil {
		t.Fatal("expected a stack-underflow error")
	}
	if !containsSubstring(err.Error(), "requires 2 operand(s), but the stack only has 0") {
		t.Errorf("got %q, want a stack-underflow message", err.Error())
	}
}

func TestMachineStackOverflow(t *testing.T) {
	prog := mustLoad(t, ";;LzJu0")
	m := dsm.NewMachine(prog, dsm.WithStackSize(2))
	// Lz pushes 0 and Ju0 jumps straight back to it, looping forever and
	// growing the stack past its cap.
	err := m.Run()
	if err == nil {
		t.Fatal("expected a stack overflow ('ran out of stack') error")
	}
	if !containsSubstring(err.Error(), "ran out of stack") {
		t.Errorf("got %q, want the stack-overflow message", err.Error())
	}
}

func TestMachineHeapOverflow(t *testing.T) {
	// Every Ad materializes a fresh value; looping forever keeps
	// materializing them without ever deepening the stack (each is
	// stored into the same variable slot), so only the heap budget,
	// not the stack depth, can catch this.
	prog := mustLoad(t, "x;1;Lv0Lc0AdSt0Ju0")
	m := dsm.NewMachine(prog, dsm.WithHeapSize(3))
	err := m.Run()
	if err == nil {
		t.Fatal("expected a heap overflow ('ran out of space') error")
	}
	if !containsSubstring(err.Error(), "ran out of space") {
		t.Errorf("got %q, want the heap-overflow message", err.Error())
	}
}

type constantRandom struct{ v decimal.Decimal }

func (c constantRandom) Next() (decimal.Decimal, error) { return c.v, nil }

func TestMachineCustomRandomSource(t *testing.T) {
	prog := mustLoad(t, "x;;LrSt0Xx")
	m := dsm.NewMachine(prog, dsm.WithRandomSource(constantRandom{v: decimal.MustParse("0.5")}))
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := m.Get("x")
	if got != "0.5" {
		t.Errorf("x = %s, want 0.5", got)
	}
}

func TestMachineCoverage(t *testing.T) {
	prog := mustLoad(t, "x;1|2;Lv0Jz5Lc1St0Ju7Lc0St0Xx")
	m := dsm.NewMachine(prog)
	hit, err := m.RunWithCoverage()
	if err != nil {
		t.Fatalf("RunWithCoverage: %v", err)
	}
	if len(hit) != len(prog.Instrs) {
		t.Fatalf("coverage vector length %d, want %d", len(hit), len(prog.Instrs))
	}
	if !hit[0] {
		t.Error("first instruction should be marked covered")
	}
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
