package pulse

import "fmt"

// ValidationError reports malformed Signal or configuration parameters:
// channels outside the controllable range, masking channels that are not a
// subset of the gated signal's channels, a high window longer than the
// period.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "pulse: invalid input: " + e.Msg
}

// ParseError reports an assembler syntax fault together with the offending
// source line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("pulse: parse error at line %d: %s", e.Line, e.Msg)
	}
	return "pulse: parse error: " + e.Msg
}

// ResolutionError reports a symbol or structure fault found after parsing:
// an undefined label, an END_LOOP with no open LOOP, a LOOP left open at
// end of input.
type ResolutionError struct {
	Line int
	Msg  string
}

func (e *ResolutionError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("pulse: resolution error at line %d: %s", e.Line, e.Msg)
	}
	return "pulse: resolution error: " + e.Msg
}

// CapacityError reports a sequence that no target device can hold: too many
// instructions, a per-instruction duration outside the representable range,
// or a repeat period beyond the configured cap.
type CapacityError struct {
	Msg string
}

func (e *CapacityError) Error() string {
	return "pulse: capacity exceeded: " + e.Msg
}

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func capacityf(format string, args ...any) error {
	return &CapacityError{Msg: fmt.Sprintf(format, args...)}
}
