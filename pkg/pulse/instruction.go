package pulse

import "fmt"

// Instruction is one hardware timing-memory word: a flag state held for a
// duration, plus a control-flow opcode and its operand. The operand meaning
// depends on the opcode (loop count for LOOP, target address for
// BRANCH/JSR/END_LOOP, unused otherwise); the flat shape matches the fixed
// device word.
type Instruction struct {
	// Label is the optional source label, carried for listings only.
	Label string
	// Flags is the channel bitmask, one bit per physical output line.
	Flags uint32
	// DurationNs is how long the flag state is held, in nanoseconds.
	DurationNs uint64
	// Opcode is the control-flow tag.
	Opcode Opcode
	// Operand is the opcode argument.
	Operand uint32
}

func (in Instruction) String() string {
	s := fmt.Sprintf("0x%06X %dns %s", in.Flags, in.DurationNs, in.Opcode)
	switch in.Opcode {
	case Loop, EndLoop, Branch, JSR:
		s += fmt.Sprintf(" %d", in.Operand)
	}
	return s
}

// InstructionSequence is the ordered, immutable output artifact of both the
// scheduler and the assembler. It is validated once on construction and
// never mutated afterwards.
type InstructionSequence struct {
	instrs []Instruction
}

// NewSequence validates instrs against cfg and wraps them. It enforces the
// sequence invariants: balanced LOOP/END_LOOP with no END_LOOP preceding
// its LOOP, in-range BRANCH/JSR targets, flag words within the configured
// width, per-instruction durations within device limits, and the
// instruction-memory capacity.
func NewSequence(instrs []Instruction, cfg Config) (*InstructionSequence, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(instrs) == 0 {
		return nil, validationf("instruction sequence is empty")
	}
	if len(instrs) > cfg.MemoryCapacity {
		return nil, capacityf("%d instructions exceed the %d word instruction memory", len(instrs), cfg.MemoryCapacity)
	}

	var open []int
	for addr, in := range instrs {
		if !in.Opcode.Valid() {
			return nil, validationf("instruction %d: invalid opcode %d", addr, uint8(in.Opcode))
		}
		if in.Flags&^cfg.FlagsMask() != 0 {
			return nil, validationf("instruction %d: flags 0x%X exceed %d bits", addr, in.Flags, cfg.NrFlags)
		}
		if in.DurationNs < uint64(cfg.MinInstructionNs) {
			return nil, capacityf("instruction %d: duration %dns below the %dns minimum", addr, in.DurationNs, cfg.MinInstructionNs)
		}
		if in.DurationNs > uint64(cfg.MaxInstructionNs) {
			return nil, capacityf("instruction %d: duration %dns above the %dns maximum", addr, in.DurationNs, cfg.MaxInstructionNs)
		}

		switch in.Opcode {
		case Loop:
			if in.Operand == 0 {
				return nil, validationf("instruction %d: LOOP iteration count must be positive", addr)
			}
			open = append(open, addr)
		case EndLoop:
			if len(open) == 0 {
				return nil, &ResolutionError{Msg: fmt.Sprintf("instruction %d: END_LOOP without matching LOOP", addr)}
			}
			start := open[len(open)-1]
			open = open[:len(open)-1]
			if int(in.Operand) != start {
				return nil, &ResolutionError{Msg: fmt.Sprintf("instruction %d: END_LOOP operand %d does not address its LOOP at %d", addr, in.Operand, start)}
			}
		case Branch, JSR:
			if int(in.Operand) >= len(instrs) {
				return nil, validationf("instruction %d: %s target %d outside the sequence", addr, in.Opcode, in.Operand)
			}
		}
	}
	if len(open) > 0 {
		return nil, &ResolutionError{Msg: fmt.Sprintf("instruction %d: LOOP without matching END_LOOP", open[len(open)-1])}
	}

	seq := &InstructionSequence{instrs: make([]Instruction, len(instrs))}
	copy(seq.instrs, instrs)
	return seq, nil
}

// Len returns the instruction count.
func (s *InstructionSequence) Len() int {
	return len(s.instrs)
}

// At returns the instruction at address addr.
func (s *InstructionSequence) At(addr int) Instruction {
	return s.instrs[addr]
}

// Instructions returns a copy of the instruction list.
func (s *InstructionSequence) Instructions() []Instruction {
	out := make([]Instruction, len(s.instrs))
	copy(out, s.instrs)
	return out
}

// TotalDurationNs sums the durations of all instructions, ignoring control
// flow. For a scheduler-produced sequence this is exactly one repeat
// period; the terminator word occupies the period's final slice.
func (s *InstructionSequence) TotalDurationNs() uint64 {
	var total uint64
	for _, in := range s.instrs {
		total += in.DurationNs
	}
	return total
}

// Unrolled is the control-flow-free replay of a sequence: one entry per
// executed instruction, with loops and subroutines expanded.
type Unrolled struct {
	// DurationsNs and Flags are parallel, one entry per executed step.
	DurationsNs []uint64
	Flags       []uint32
	// BranchIndex is the step the terminal BRANCH returns to, or -1 when
	// execution ends with STOP (or the branch target was never visited).
	BranchIndex int
}

// unrollBudget caps the executed step count so that a pathological program
// (deep loop nests, self-calling subroutines) cannot hang the caller.
const unrollBudget = 1 << 22

type loopFrame struct {
	start int
	left  uint32
}

// Unroll replays the sequence, expanding loops and subroutine calls, until
// a STOP or BRANCH terminates execution or the program counter runs off
// the end. It fails on an RTS with no pending JSR.
func (s *InstructionSequence) Unroll() (*Unrolled, error) {
	out := &Unrolled{BranchIndex: -1}
	firstVisit := make(map[int]int, len(s.instrs))

	var returns []int
	var loops []loopFrame
	pc := 0
	for pc >= 0 && pc < len(s.instrs) {
		if len(out.DurationsNs) >= unrollBudget {
			return nil, capacityf("unrolled sequence exceeds %d steps", unrollBudget)
		}
		in := s.instrs[pc]
		if _, seen := firstVisit[pc]; !seen {
			firstVisit[pc] = len(out.DurationsNs)
		}
		out.DurationsNs = append(out.DurationsNs, in.DurationNs)
		out.Flags = append(out.Flags, in.Flags)

		switch in.Opcode {
		case JSR:
			returns = append(returns, pc)
			pc = int(in.Operand)
		case RTS:
			if len(returns) == 0 {
				return nil, &ResolutionError{Msg: fmt.Sprintf("instruction %d: RTS without a pending JSR", pc)}
			}
			pc = returns[len(returns)-1] + 1
			returns = returns[:len(returns)-1]
		case Loop:
			if len(loops) == 0 || loops[len(loops)-1].start != pc {
				loops = append(loops, loopFrame{start: pc, left: in.Operand})
			}
			pc++
		case EndLoop:
			if len(loops) == 0 {
				// reachable only by jumping into a loop body
				return nil, &ResolutionError{Msg: fmt.Sprintf("instruction %d: END_LOOP executed without an open LOOP", pc)}
			}
			frame := &loops[len(loops)-1]
			frame.left--
			if frame.left == 0 {
				loops = loops[:len(loops)-1]
				pc++
			} else {
				pc = frame.start
			}
		case Stop:
			return out, nil
		case Branch:
			if step, ok := firstVisit[int(in.Operand)]; ok {
				out.BranchIndex = step
			}
			return out, nil
		default:
			pc++
		}
	}
	return out, nil
}
