package dsm

import "fmt"

// InvalidProgramError reports a structurally malformed DSMAL string
// rejected at load time, before any instruction ever executes.
type InvalidProgramError struct {
	Msg string
}

func (e *InvalidProgramError) Error() string { return e.Msg }

func invalidf(format string, args ...interface{}) error {
	return &InvalidProgramError{Msg: fmt.Sprintf(format, args...)}
}

// ExecutionError reports a run-time failure: an arithmetic fault, a
// stack-discipline violation, or an instruction-limit overrun. Instruction
// and Opcode identify exactly where in the program the failure occurred,
// mirroring the attributes the original C extension attaches to its
// equivalent exception.
type ExecutionError struct {
	Instruction int
	Opcode      string
	Msg         string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("instruction %d (%s): %s", e.Instruction, e.Opcode, e.Msg)
}

func execErrorf(pc int, opcode string, format string, args ...interface{}) error {
	return &ExecutionError{Instruction: pc, Opcode: opcode, Msg: fmt.Sprintf(format, args...)}
}

// ErrUnknownVariable is returned by Machine.Get/Set for a name the
// program never declared, the Go analogue of the original's KeyError on
// dict-style variable access.
type ErrUnknownVariable struct {
	Name string
}

func (e *ErrUnknownVariable) Error() string {
	return fmt.Sprintf("unknown variable %q", e.Name)
}
