package pulse

import "fmt"

// Config carries the hardware parameters both the scheduler and the
// assembler need. It is passed explicitly so the producers stay pure and
// independently testable; there are no package-level defaults to mutate.
type Config struct {
	// NrFlags is the width of the instruction flag word in bits.
	// PB24-class boards use 24, PB32-class boards use 32.
	NrFlags int
	// NrChannels is the number of physical output lines, NrChannels <= NrFlags.
	NrChannels int
	// ReservedChannels is the count of trailing channels that are not
	// user controllable (tied to the output-enable circuit on PB24 boards).
	ReservedChannels int
	// TickNs is the device clock granularity. All durations are quantized
	// to multiples of this value.
	TickNs int64
	// MinInstructionNs is the shortest duration a single instruction can hold.
	MinInstructionNs int64
	// MaxInstructionNs is the longest duration a single instruction can hold
	// (the 32-bit delay counter times the tick).
	MaxInstructionNs int64
	// LoopFoldMin is the repeat count at which a run of identical
	// instructions is folded into a LOOP/END_LOOP pair instead of being
	// emitted flat.
	LoopFoldMin int
	// MemoryCapacity is the instruction-memory size in words.
	MemoryCapacity int
	// MaxSequenceNs caps the repeat period. Incommensurate frequencies can
	// produce enormous least-common-multiple periods; anything beyond this
	// cap is rejected instead of blowing the instruction memory.
	MaxSequenceNs int64
	// PeriodRoundNs optionally coarsens signal-period quantization beyond
	// the tick to tame the least common multiple. Zero means tick-only
	// quantization. Must be a multiple of TickNs when set.
	PeriodRoundNs int64
}

// DefaultConfig mirrors a PB24-class board: 24 flag bits, 24 channels of
// which the top 3 are reserved, a 10 ns clock and a 50 ns minimum
// instruction.
func DefaultConfig() Config {
	return Config{
		NrFlags:          24,
		NrChannels:       24,
		ReservedChannels: 3,
		TickNs:           10,
		MinInstructionNs: 50,
		MaxInstructionNs: (1<<32 - 1) * 10,
		LoopFoldMin:      4,
		MemoryCapacity:   4096,
		MaxSequenceNs:    10_000_000_000,
	}
}

// Validate reports a ValidationError for parameter combinations no target
// hardware can satisfy.
func (c Config) Validate() error {
	if c.NrFlags != 24 && c.NrFlags != 32 {
		return &ValidationError{Msg: fmt.Sprintf("nr_flags must be 24 or 32, got %d", c.NrFlags)}
	}
	if c.NrChannels <= 0 || c.NrChannels > c.NrFlags {
		return &ValidationError{Msg: fmt.Sprintf("nr_channels must be in 1..%d, got %d", c.NrFlags, c.NrChannels)}
	}
	if c.ReservedChannels < 0 || c.ReservedChannels >= c.NrChannels {
		return &ValidationError{Msg: fmt.Sprintf("reserved_channels must be in 0..%d, got %d", c.NrChannels-1, c.ReservedChannels)}
	}
	if c.TickNs <= 0 {
		return &ValidationError{Msg: fmt.Sprintf("tick must be positive, got %dns", c.TickNs)}
	}
	if c.MinInstructionNs < c.TickNs || c.MinInstructionNs%c.TickNs != 0 {
		return &ValidationError{Msg: fmt.Sprintf("minimum instruction duration %dns is not a positive multiple of the %dns tick", c.MinInstructionNs, c.TickNs)}
	}
	if c.MaxInstructionNs < 2*c.MinInstructionNs {
		return &ValidationError{Msg: fmt.Sprintf("maximum instruction duration %dns must be at least twice the minimum %dns", c.MaxInstructionNs, c.MinInstructionNs)}
	}
	if c.MaxInstructionNs%c.TickNs != 0 {
		return &ValidationError{Msg: fmt.Sprintf("maximum instruction duration %dns is not a multiple of the %dns tick", c.MaxInstructionNs, c.TickNs)}
	}
	if c.LoopFoldMin < 2 {
		return &ValidationError{Msg: fmt.Sprintf("loop fold threshold must be at least 2, got %d", c.LoopFoldMin)}
	}
	if c.MemoryCapacity <= 0 {
		return &ValidationError{Msg: fmt.Sprintf("memory capacity must be positive, got %d", c.MemoryCapacity)}
	}
	if c.MaxSequenceNs <= 0 {
		return &ValidationError{Msg: fmt.Sprintf("max sequence duration must be positive, got %dns", c.MaxSequenceNs)}
	}
	if c.PeriodRoundNs != 0 && (c.PeriodRoundNs < c.TickNs || c.PeriodRoundNs%c.TickNs != 0) {
		return &ValidationError{Msg: fmt.Sprintf("period rounding %dns is not a multiple of the %dns tick", c.PeriodRoundNs, c.TickNs)}
	}
	return nil
}

// UsableChannels returns the number of user-controllable channels.
func (c Config) UsableChannels() int {
	return c.NrChannels - c.ReservedChannels
}

// ReservedMask returns the flag bits of the reserved trailing channels.
func (c Config) ReservedMask() uint32 {
	if c.ReservedChannels == 0 {
		return 0
	}
	return ((1 << c.ReservedChannels) - 1) << (c.NrChannels - c.ReservedChannels)
}

// FlagsMask returns the mask covering all NrFlags bits.
func (c Config) FlagsMask() uint32 {
	if c.NrFlags >= 32 {
		return ^uint32(0)
	}
	return (1 << c.NrFlags) - 1
}

// PeriodGranularity is the quantization step applied to signal periods
// before the least-common-multiple computation.
func (c Config) PeriodGranularity() int64 {
	if c.PeriodRoundNs > 0 {
		return c.PeriodRoundNs
	}
	return c.TickNs
}
