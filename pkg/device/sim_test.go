package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

func simTestSequence(t *testing.T, cfg pulse.Config) *pulse.InstructionSequence {
	t.Helper()
	seq, err := pulse.NewSequence([]pulse.Instruction{
		{Flags: 0x3, DurationNs: 300, Opcode: pulse.Continue},
		{Flags: 0x0, DurationNs: 700, Opcode: pulse.Branch, Operand: 0},
	}, cfg)
	require.NoError(t, err)
	return seq
}

func TestSimBoardProgram(t *testing.T) {
	cfg := pulse.DefaultConfig()
	board := NewSimBoard(BoardInfo{Name: "sim"}, cfg)
	seq := simTestSequence(t, cfg)

	require.NoError(t, board.Program(context.Background(), seq))
	assert.Len(t, board.Words(), seq.Len()*WordSize(cfg.NrFlags))
	assert.Same(t, seq, board.LastProgram())

	info, err := board.Info()
	require.NoError(t, err)
	assert.Equal(t, cfg.NrFlags, info.NrFlags)
	assert.Equal(t, cfg.MemoryCapacity, info.MemoryCapacity)
}

func TestSimBoardLifecycle(t *testing.T) {
	cfg := pulse.DefaultConfig()
	board := NewSimBoard(BoardInfo{}, cfg)

	require.NoError(t, board.Start())
	assert.True(t, board.Running())
	require.NoError(t, board.Stop())
	assert.False(t, board.Running())
	require.NoError(t, board.Start())
	require.NoError(t, board.Reset())
	assert.False(t, board.Running())

	starts, stops, resets := board.Counts()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, stops)
	assert.Equal(t, 1, resets)
}

func TestSimBoardClosed(t *testing.T) {
	cfg := pulse.DefaultConfig()
	board := NewSimBoard(BoardInfo{}, cfg)
	seq := simTestSequence(t, cfg)

	require.NoError(t, board.Close())

	assert.ErrorIs(t, board.Program(context.Background(), seq), ErrClosed)
	assert.ErrorIs(t, board.Start(), ErrClosed)
	assert.ErrorIs(t, board.Stop(), ErrClosed)
	assert.ErrorIs(t, board.Reset(), ErrClosed)
	_, err := board.Info()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSimBoardProgramHook(t *testing.T) {
	cfg := pulse.DefaultConfig()
	board := NewSimBoard(BoardInfo{}, cfg)
	seq := simTestSequence(t, cfg)

	hookErr := errors.New("bus stall")
	board.OnProgram = func(words []byte) error { return hookErr }

	assert.ErrorIs(t, board.Program(context.Background(), seq), hookErr)
	assert.Empty(t, board.Words())
	assert.Nil(t, board.LastProgram())
}
