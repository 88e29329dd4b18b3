package dsm_test

import (
	"strings"
	"testing"

	"github.com/zillow/abysmal/dsm"
)

func TestLoadRejectsMissingSections(t *testing.T) {
	if _, err := dsm.Load("x|y"); err == nil {
		t.Fatal("expected error for missing sections")
	}
}

func TestLoadRejectsEmptyVariableName(t *testing.T) {
	_, err := dsm.Load("x||y;;Xx")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadRejectsDuplicateVariableName(t *testing.T) {
	_, err := dsm.Load("x|x;;Xx")
	if err == nil {
		t.Fatal("expected error for duplicate variable name")
	}
}

func TestLoadRejectsUnknownOpcode(t *testing.T) {
	_, err := dsm.Load(";;Zz")
	if err == nil || !strings.Contains(err.Error(), `invalid instruction "Zz"`) {
		t.Fatalf("got %v, want an invalid-instruction error naming %q", err, "Zz")
	}
}

func TestLoadRejectsMalformedInstructionByte(t *testing.T) {
	tests := []struct {
		dsmal, want string
	}{
		{";;?", `invalid instruction "?"`},
		{";;XX", `invalid instruction "X"`},
		{";;X0", `invalid instruction "X"`},
		{";;Xy", `invalid instruction "Xy"`},
		{";;0", `invalid instruction "0"`},
		{";;01", `invalid instruction "0"`},
		{";;0X", `invalid instruction "0"`},
		{";;Ju1Lx", `invalid instruction "Lx"`},
	}
	for _, tt := range tests {
		_, err := dsm.Load(tt.dsmal)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Load(%q) = %v, want it to mention %q", tt.dsmal, err, tt.want)
		}
	}
}

func TestLoadRejectsOversizedParameter(t *testing.T) {
	for _, param := range []string{"65536", "123123123123"} {
		_, err := dsm.Load(";;Lc" + param)
		if err == nil || !strings.Contains(err.Error(), "instruction parameter is too large") {
			t.Errorf("Load with parameter %q = %v, want the too-large message", param, err)
		}
	}
}

func TestLoadRejectsOutOfRangeConstantSlot(t *testing.T) {
	_, err := dsm.Load(";1;Lc3Xx")
	if err == nil || !strings.Contains(err.Error(), "nonexistent constant slot") {
		t.Fatalf("got %v, want nonexistent-constant-slot error", err)
	}
}

func TestLoadRejectsOutOfRangeVariableSlot(t *testing.T) {
	_, err := dsm.Load("x;;Lv5Xx")
	if err == nil || !strings.Contains(err.Error(), "nonexistent variable slot") {
		t.Fatalf("got %v, want nonexistent-variable-slot error", err)
	}
}

func TestLoadRejectsMissingParameter(t *testing.T) {
	_, err := dsm.Load("x;;LvXx")
	if err == nil {
		t.Fatal("expected error for a param-opcode with no digits following it")
	}
}

func TestLoadRejectsEmptyInstructions(t *testing.T) {
	_, err := dsm.Load(";;")
	if err == nil {
		t.Fatal("expected error for a program with no instructions")
	}
}

func TestLoadAcceptsWellFormedProgram(t *testing.T) {
	prog, err := dsm.Load("x;1|2;Lc0Lc1AdSt0Xx")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(prog.Variables) != 1 || len(prog.Constants) != 2 || len(prog.Instrs) != 5 {
		t.Fatalf("unexpected program shape: %+v", prog)
	}
}

func TestProgramRoundTripsThroughDSMAL(t *testing.T) {
	const dsmal = "x;1|2;Lc0Lc1AdSt0Xx"
	prog, err := dsm.Load(dsmal)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if prog.DSMAL() != dsmal {
		t.Errorf("DSMAL() = %q, want %q", prog.DSMAL(), dsmal)
	}
	text, err := prog.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var reloaded dsm.Program
	if err := reloaded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if reloaded.DSMAL() != dsmal {
		t.Errorf("round-tripped DSMAL = %q, want %q", reloaded.DSMAL(), dsmal)
	}
}
