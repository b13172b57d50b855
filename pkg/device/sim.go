package device

import (
	"context"

	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

// ProgramHook lets tests intercept the encoded words a program call would
// write to hardware.
type ProgramHook func(words []byte) error

// SimBoard is an in-memory board useful for unit tests and for exercising
// the CLI without hardware. It records the last programmed sequence and
// counts start/stop/reset calls.
type SimBoard struct {
	InfoData BoardInfo
	Cfg      pulse.Config

	OnProgram ProgramHook

	words   []byte
	program *pulse.InstructionSequence
	starts  int
	stops   int
	resets  int
	running bool
	closed  bool
}

// NewSimBoard constructs a simulator with the provided info. A zero
// NrFlags defaults to the config width.
func NewSimBoard(info BoardInfo, cfg pulse.Config) *SimBoard {
	if info.NrFlags == 0 {
		info.NrFlags = cfg.NrFlags
	}
	if info.MemoryCapacity == 0 {
		info.MemoryCapacity = cfg.MemoryCapacity
	}
	return &SimBoard{InfoData: info, Cfg: cfg}
}

// Words returns a copy of the last programmed instruction-memory image.
func (s *SimBoard) Words() []byte {
	return append([]byte(nil), s.words...)
}

// LastProgram returns the last sequence handed to Program.
func (s *SimBoard) LastProgram() *pulse.InstructionSequence {
	return s.program
}

// Counts reports how many start, stop and reset calls were issued.
func (s *SimBoard) Counts() (starts, stops, resets int) {
	return s.starts, s.stops, s.resets
}

// Running reports whether playback is active.
func (s *SimBoard) Running() bool {
	return s.running
}

func (s *SimBoard) Info() (BoardInfo, error) {
	if s.closed {
		return BoardInfo{}, ErrClosed
	}
	return s.InfoData, nil
}

func (s *SimBoard) Program(ctx context.Context, seq *pulse.InstructionSequence) error {
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	words, err := EncodeSequence(seq, s.Cfg)
	if err != nil {
		return err
	}
	if s.OnProgram != nil {
		if err := s.OnProgram(words); err != nil {
			return err
		}
	}
	s.words = words
	s.program = seq
	return nil
}

func (s *SimBoard) Start() error {
	if s.closed {
		return ErrClosed
	}
	s.starts++
	s.running = true
	return nil
}

func (s *SimBoard) Stop() error {
	if s.closed {
		return ErrClosed
	}
	s.stops++
	s.running = false
	return nil
}

func (s *SimBoard) Reset() error {
	if s.closed {
		return ErrClosed
	}
	s.resets++
	s.running = false
	return nil
}

func (s *SimBoard) Close() error {
	s.closed = true
	return nil
}
