package pulse

import (
	"fmt"
	"strings"
)

// Opcode is the sequencer control-flow tag. The set and the numeric values
// are fixed by the target hardware; there are no extension points.
type Opcode uint8

const (
	// Continue proceeds to the next instruction. Operand unused.
	Continue Opcode = 0
	// Stop ends execution. Operand unused.
	Stop Opcode = 1
	// Loop opens a loop; the operand is the iteration count.
	Loop Opcode = 2
	// EndLoop closes the nearest open loop; the operand is the address of
	// the matching Loop instruction.
	EndLoop Opcode = 3
	// JSR jumps to the subroutine at the operand address and records the
	// return address.
	JSR Opcode = 4
	// RTS returns to the instruction after the most recent JSR. Operand unused.
	RTS Opcode = 5
	// Branch jumps unconditionally to the operand address.
	Branch Opcode = 6
)

var opcodeNames = map[Opcode]string{
	Continue: "CONTINUE",
	Stop:     "STOP",
	Loop:     "LOOP",
	EndLoop:  "END_LOOP",
	JSR:      "JSR",
	RTS:      "RTS",
	Branch:   "BRANCH",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// Valid reports whether op is part of the hardware opcode set.
func (op Opcode) Valid() bool {
	_, ok := opcodeNames[op]
	return ok
}

// TakesAddress reports whether the operand names an instruction address.
func (op Opcode) TakesAddress() bool {
	return op == Branch || op == JSR || op == EndLoop
}

// ParseOpcode resolves a case-insensitive opcode keyword.
func ParseOpcode(name string) (Opcode, bool) {
	upper := strings.ToUpper(name)
	for op, n := range opcodeNames {
		if n == upper {
			return op, true
		}
	}
	return Continue, false
}
