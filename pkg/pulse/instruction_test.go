package pulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSeq(t *testing.T, instrs []Instruction) *InstructionSequence {
	t.Helper()
	seq, err := NewSequence(instrs, DefaultConfig())
	require.NoError(t, err)
	return seq
}

func TestNewSequenceInvariants(t *testing.T) {
	cfg := DefaultConfig()

	isValidation := func(t *testing.T, err error) {
		var e *ValidationError
		assert.ErrorAs(t, err, &e)
	}
	isResolution := func(t *testing.T, err error) {
		var e *ResolutionError
		assert.ErrorAs(t, err, &e)
	}
	isCapacity := func(t *testing.T, err error) {
		var e *CapacityError
		assert.ErrorAs(t, err, &e)
	}

	tests := []struct {
		name      string
		instrs    []Instruction
		errorType func(*testing.T, error)
	}{
		{
			name:      "empty",
			instrs:    nil,
			errorType: isValidation,
		},
		{
			name: "end loop before loop",
			instrs: []Instruction{
				{Flags: 0, DurationNs: 100, Opcode: EndLoop},
				{Flags: 0, DurationNs: 100, Opcode: Loop, Operand: 2},
			},
			errorType: isResolution,
		},
		{
			name: "unclosed loop",
			instrs: []Instruction{
				{Flags: 0, DurationNs: 100, Opcode: Loop, Operand: 2},
				{Flags: 0, DurationNs: 100, Opcode: Continue},
			},
			errorType: isResolution,
		},
		{
			name: "branch target out of range",
			instrs: []Instruction{
				{Flags: 0, DurationNs: 100, Opcode: Branch, Operand: 7},
			},
			errorType: isValidation,
		},
		{
			name: "flags exceed width",
			instrs: []Instruction{
				{Flags: 1 << 24, DurationNs: 100, Opcode: Stop},
			},
			errorType: isValidation,
		},
		{
			name: "duration below minimum",
			instrs: []Instruction{
				{Flags: 0, DurationNs: 10, Opcode: Stop},
			},
			errorType: isCapacity,
		},
		{
			name: "zero loop count",
			instrs: []Instruction{
				{Flags: 0, DurationNs: 100, Opcode: Loop, Operand: 0},
				{Flags: 0, DurationNs: 100, Opcode: EndLoop},
			},
			errorType: isValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSequence(tt.instrs, cfg)
			require.Error(t, err)
			tt.errorType(t, err)
		})
	}
}

func TestNewSequenceCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemoryCapacity = 2

	instrs := []Instruction{
		{DurationNs: 100},
		{DurationNs: 100},
		{DurationNs: 100, Opcode: Stop},
	}
	_, err := NewSequence(instrs, cfg)
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
}

func TestSequenceIsCopied(t *testing.T) {
	instrs := []Instruction{{DurationNs: 100, Opcode: Stop}}
	seq := validSeq(t, instrs)

	instrs[0].Flags = 0xFF
	assert.Equal(t, uint32(0), seq.At(0).Flags, "sequence must not alias caller memory")
}

func TestUnrollLoop(t *testing.T) {
	// 0x000000, 500ms, CONTINUE
	// 0xFFFFFF, 100ms, LOOP, 3
	// 0x000000, 100ms, END_LOOP
	seq := validSeq(t, []Instruction{
		{Flags: 0x000000, DurationNs: 500_000_000, Opcode: Continue},
		{Flags: 0xFFFFFF, DurationNs: 100_000_000, Opcode: Loop, Operand: 3},
		{Flags: 0x000000, DurationNs: 100_000_000, Opcode: EndLoop, Operand: 1},
	})

	un, err := seq.Unroll()
	require.NoError(t, err)

	// Lead-in plus three iterations of (LOOP + END_LOOP).
	require.Len(t, un.DurationsNs, 7)
	var loopBody uint64
	for _, d := range un.DurationsNs[1:] {
		loopBody += d
	}
	assert.Equal(t, uint64(3*(100_000_000+100_000_000)), loopBody)
	assert.Equal(t, -1, un.BranchIndex)
}

func TestUnrollNestedLoops(t *testing.T) {
	seq := validSeq(t, []Instruction{
		{DurationNs: 100, Opcode: Loop, Operand: 2},
		{DurationNs: 100, Opcode: Loop, Operand: 3, Flags: 1},
		{DurationNs: 100, Opcode: EndLoop, Operand: 1},
		{DurationNs: 100, Opcode: EndLoop, Operand: 0},
		{DurationNs: 100, Opcode: Stop},
	})

	un, err := seq.Unroll()
	require.NoError(t, err)

	// outer 2x (LOOP + inner 3x(LOOP+END) + END) + STOP
	assert.Len(t, un.DurationsNs, 2*(1+3*2+1)+1)
}

func TestUnrollSubroutine(t *testing.T) {
	seq := validSeq(t, []Instruction{
		{DurationNs: 100, Opcode: JSR, Operand: 2},
		{DurationNs: 100, Opcode: Stop},
		{DurationNs: 100, Flags: 0x42, Opcode: Continue},
		{DurationNs: 100, Opcode: RTS},
	})

	un, err := seq.Unroll()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0x42, 0, 0}, un.Flags)
}

func TestUnrollRTSWithoutJSR(t *testing.T) {
	seq := validSeq(t, []Instruction{
		{DurationNs: 100, Opcode: RTS},
	})

	_, err := seq.Unroll()
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestUnrollBranchIndex(t *testing.T) {
	seq := validSeq(t, []Instruction{
		{DurationNs: 100, Opcode: Continue},
		{DurationNs: 100, Flags: 1, Opcode: Continue},
		{DurationNs: 100, Opcode: Branch, Operand: 1},
	})

	un, err := seq.Unroll()
	require.NoError(t, err)
	assert.Equal(t, 1, un.BranchIndex)
}

func TestOpcodeParse(t *testing.T) {
	op, ok := ParseOpcode("end_loop")
	require.True(t, ok)
	assert.Equal(t, EndLoop, op)

	op, ok = ParseOpcode("Branch")
	require.True(t, ok)
	assert.Equal(t, Branch, op)

	_, ok = ParseOpcode("WAIT")
	assert.False(t, ok, "WAIT is not part of the supported opcode set")
}

func TestSignalValidate(t *testing.T) {
	good := Signal{Frequency: 10, Channels: []int{0}, HighNs: 1_000_000, ActiveHigh: true}
	require.NoError(t, good.Validate())

	tests := []struct {
		name string
		sig  Signal
	}{
		{"zero frequency", Signal{Channels: []int{0}}},
		{"negative offset", Signal{Frequency: 10, Channels: []int{0}, OffsetNs: -1}},
		{"no channels", Signal{Frequency: 10}},
		{"negative channel", Signal{Frequency: 10, Channels: []int{-2}}},
		{"high exceeds period", Signal{Frequency: 1000, Channels: []int{0}, HighNs: 2_000_000}},
		{"duty cycle out of range", Signal{Frequency: 10, Channels: []int{0}, DutyCycle: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sig.Validate()
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
		})
	}
}

func TestSignalResolvedHigh(t *testing.T) {
	// Explicit high wins.
	s := Signal{Frequency: 10, Channels: []int{0}, HighNs: 1_000_000}
	assert.Equal(t, int64(1_000_000), s.ResolvedHighNs())

	// Unset high defaults to a 50% duty cycle.
	s = Signal{Frequency: 10, Channels: []int{0}}
	assert.Equal(t, int64(50_000_000), s.ResolvedHighNs())

	// Explicit duty cycle.
	s = Signal{Frequency: 10, Channels: []int{0}, DutyCycle: 0.25}
	assert.Equal(t, int64(25_000_000), s.ResolvedHighNs())
}
