package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

func newAssembler(t *testing.T) *Assembler {
	t.Helper()
	a, err := New(pulse.DefaultConfig())
	require.NoError(t, err)
	return a
}

func TestAssembleLoopExample(t *testing.T) {
	src := `
0x000000, 500ms, CONTINUE
0xFFFFFF, 100ms, LOOP, 3
0x000000, 100ms, END_LOOP
`
	seq, err := newAssembler(t).Assemble(src)
	require.NoError(t, err)
	require.Equal(t, 3, seq.Len())

	assert.Equal(t, pulse.Continue, seq.At(0).Opcode)
	assert.Equal(t, uint64(500_000_000), seq.At(0).DurationNs)

	loop := seq.At(1)
	assert.Equal(t, pulse.Loop, loop.Opcode)
	assert.Equal(t, uint32(3), loop.Operand)
	assert.Equal(t, uint32(0xFFFFFF), loop.Flags)

	end := seq.At(2)
	assert.Equal(t, pulse.EndLoop, end.Opcode)
	assert.Equal(t, uint32(1), end.Operand, "END_LOOP addresses its LOOP")

	// logical runtime duration of the loop body: 3 x (100ms + 100ms)
	un, err := seq.Unroll()
	require.NoError(t, err)
	var body uint64
	for _, d := range un.DurationsNs[1:] {
		body += d
	}
	assert.Equal(t, uint64(600_000_000), body)
}

func TestAssembleLabelOrderIndependence(t *testing.T) {
	forward := `
        0x000001, 100ns, BRANCH, target
        0x000002, 100ns
target: 0x000000, 100ns, STOP
`
	backward := `
target: 0x000000, 100ns
        0x000001, 100ns, BRANCH, target
`
	a := newAssembler(t)

	seq, err := a.Assemble(forward)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), seq.At(0).Operand, "forward reference resolves after pass two")

	seq, err = a.Assemble(backward)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), seq.At(1).Operand)
}

func TestAssembleSubroutine(t *testing.T) {
	src := `
     0x000000, 100ns, JSR, blink
     0x000000, 100ns, STOP
blink: 0x0000FF, 200ns
     0x000000, 100ns, RTS
`
	seq, err := newAssembler(t).Assemble(src)
	require.NoError(t, err)
	assert.Equal(t, pulse.JSR, seq.At(0).Opcode)
	assert.Equal(t, uint32(2), seq.At(0).Operand)
	assert.Equal(t, "blink", seq.At(2).Label)

	un, err := seq.Unroll()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0xFF, 0, 0}, un.Flags)
}

func TestAssembleSeparatorsAndComments(t *testing.T) {
	// whitespace and commas are interchangeable separators; comments and
	// blank lines vanish; opcodes are case-insensitive
	src := "// header comment\n" +
		"\t0b1010 40us continue // trailing comment\n" +
		"\n" +
		"0x00000A, 40 us, Stop\n"

	seq, err := newAssembler(t).Assemble(src)
	require.NoError(t, err)
	require.Equal(t, 2, seq.Len())
	assert.Equal(t, uint32(0b1010), seq.At(0).Flags)
	assert.Equal(t, uint64(40_000), seq.At(0).DurationNs)
	assert.Equal(t, pulse.Continue, seq.At(0).Opcode)
	assert.Equal(t, pulse.Stop, seq.At(1).Opcode)
}

func TestAssembleImpliedContinue(t *testing.T) {
	seq, err := newAssembler(t).Assemble("0xFF0000, 1us\n")
	require.NoError(t, err)
	assert.Equal(t, pulse.Continue, seq.At(0).Opcode)
	assert.Equal(t, uint32(0), seq.At(0).Operand)
}

func TestAssembleNestedLoops(t *testing.T) {
	src := `
0x000001, 100ns, LOOP, 2
0x000002, 100ns, LOOP, 5
0x000002, 100ns, END_LOOP
0x000001, 100ns, END_LOOP
0x000000, 100ns, STOP
`
	seq, err := newAssembler(t).Assemble(src)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), seq.At(2).Operand, "inner END_LOOP closes the nearest LOOP")
	assert.Equal(t, uint32(0), seq.At(3).Operand)

	var loops, ends int
	for _, in := range seq.Instructions() {
		switch in.Opcode {
		case pulse.Loop:
			loops++
		case pulse.EndLoop:
			ends++
		}
	}
	assert.Equal(t, loops, ends)
}

func TestAssembleWideFlags(t *testing.T) {
	cfg := pulse.DefaultConfig()
	cfg.NrFlags = 32
	cfg.NrChannels = 32
	a, err := New(cfg)
	require.NoError(t, err)

	seq, err := a.Assemble("0xFFFFFFFF, 100ns, STOP\n")
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFF), seq.At(0).Flags)

	// the same literal overflows a 24-bit device
	_, err = newAssembler(t).Assemble("0xFFFFFFFF, 100ns, STOP\n")
	var perr *pulse.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Line)
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantLine int
		resolve  bool // ResolutionError instead of ParseError
	}{
		{
			name:     "malformed flags literal",
			src:      "123456, 100ns\n",
			wantLine: 1,
		},
		{
			name:     "unknown opcode",
			src:      "0x000000, 100ns, HALT\n",
			wantLine: 1,
		},
		{
			name:     "missing duration unit",
			src:      "0x000000, 100\n",
			wantLine: 1,
		},
		{
			name:     "bad duration unit",
			src:      "0x000000, 100min\n",
			wantLine: 1,
		},
		{
			name:     "duration below minimum",
			src:      "0x000000, 100ns\n0x000001, 10ns\n",
			wantLine: 2,
		},
		{
			name:     "undefined label",
			src:      "0x000000, 100ns, BRANCH, nowhere\n",
			wantLine: 1,
			resolve:  true,
		},
		{
			name:     "unmatched END_LOOP",
			src:      "0x000000, 100ns\n0x000000, 100ns, END_LOOP\n",
			wantLine: 2,
			resolve:  true,
		},
		{
			name:     "unclosed LOOP",
			src:      "0x000000, 100ns, LOOP, 4\n0x000000, 100ns\n",
			wantLine: 1,
			resolve:  true,
		},
		{
			name:     "duplicate label",
			src:      "a: 0x000000, 100ns\na: 0x000000, 100ns\n",
			wantLine: 2,
			resolve:  true,
		},
		{
			name:     "loop count missing",
			src:      "0x000000, 100ns, LOOP\n0x000000, 100ns, END_LOOP\n",
			wantLine: 1,
		},
	}

	a := newAssembler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Assemble(tt.src)
			require.Error(t, err)
			if tt.resolve {
				var rerr *pulse.ResolutionError
				require.ErrorAs(t, err, &rerr)
				assert.Equal(t, tt.wantLine, rerr.Line)
			} else {
				var perr *pulse.ParseError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, tt.wantLine, perr.Line)
			}
		})
	}
}

func TestAssembleEmptySource(t *testing.T) {
	_, err := newAssembler(t).Assemble("// nothing but comments\n\n")
	var verr *pulse.ValidationError
	require.ErrorAs(t, err, &verr)
}
