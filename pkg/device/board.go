// Package device loads instruction sequences onto pulse-generator boards
// and controls their execution.
package device

import (
	"context"
	"errors"

	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

// BoardInfo describes a detected or opened board.
type BoardInfo struct {
	Name     string
	Serial   string
	Firmware string
	// ClockMHz is the core clock the delay counter runs at.
	ClockMHz int
	// NrFlags is the board's instruction flag width, 24 or 32.
	NrFlags int
	// MemoryCapacity is the instruction-memory size in words.
	MemoryCapacity int
	VendorID       uint16
	ProductID      uint16
}

// Board abstracts a physical or simulated pulse-generator board.
type Board interface {
	Info() (BoardInfo, error)
	// Program writes the sequence into instruction memory, replacing any
	// previously loaded program. The board must be stopped.
	Program(ctx context.Context, seq *pulse.InstructionSequence) error
	// Start begins playback from address zero.
	Start() error
	// Stop halts playback and leaves the outputs in their current state.
	Stop() error
	// Reset halts playback and returns all outputs to their idle state.
	Reset() error
	Close() error
}

// ErrClosed signals use of a board after Close.
var ErrClosed = errors.New("device: board closed")

// ErrNotImplemented lets backends signal a capability that is not yet
// available.
var ErrNotImplemented = errors.New("device: not implemented")
