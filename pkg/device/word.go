package device

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

// Instruction-memory word layout, most significant field first:
//
//	flags    NrFlags bits (24 or 32)
//	operand  20 bits
//	opcode   4 bits
//	delay    32 bits, in core clock ticks
//
// which packs to 10 bytes on 24-flag boards and 11 on 32-flag boards.
const (
	WordSize24 = 10
	WordSize32 = 11

	operandBits = 20
	maxOperand  = 1<<operandBits - 1
)

// WordSize returns the per-instruction byte count for a flag width.
func WordSize(nrFlags int) int {
	if nrFlags == 32 {
		return WordSize32
	}
	return WordSize24
}

// EncodeWord serializes one instruction into its big-endian memory word.
func EncodeWord(in pulse.Instruction, cfg pulse.Config) ([]byte, error) {
	if in.Operand > maxOperand {
		return nil, &pulse.CapacityError{Msg: fmt.Sprintf("operand %d exceeds %d bits", in.Operand, operandBits)}
	}
	if in.DurationNs%uint64(cfg.TickNs) != 0 {
		return nil, &pulse.ValidationError{Msg: fmt.Sprintf("duration %dns is not a multiple of the %dns tick", in.DurationNs, cfg.TickNs)}
	}
	delay := in.DurationNs / uint64(cfg.TickNs)
	if delay > 0xFFFFFFFF {
		return nil, &pulse.CapacityError{Msg: fmt.Sprintf("delay of %d ticks exceeds the 32-bit counter", delay)}
	}

	// flags | operand | opcode, packed high to low
	head := uint64(in.Flags)<<(operandBits+4) | uint64(in.Operand)<<4 | uint64(in.Opcode)
	headBytes := WordSize(cfg.NrFlags) - 4

	word := make([]byte, 0, WordSize(cfg.NrFlags))
	for i := headBytes - 1; i >= 0; i-- {
		word = append(word, byte(head>>(8*i)))
	}
	word = append(word,
		byte(delay>>24), byte(delay>>16), byte(delay>>8), byte(delay))
	return word, nil
}

// EncodeSequence serializes a whole sequence into contiguous memory words.
func EncodeSequence(seq *pulse.InstructionSequence, cfg pulse.Config) ([]byte, error) {
	out := make([]byte, 0, seq.Len()*WordSize(cfg.NrFlags))
	for addr := 0; addr < seq.Len(); addr++ {
		word, err := EncodeWord(seq.At(addr), cfg)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", addr, err)
		}
		out = append(out, word...)
	}
	return out, nil
}
