// Package asm parses the line-oriented pulse-program assembly language
// into an InstructionSequence.
//
// Grammar, one instruction per line:
//
//	[label:] flags, duration[unit] [, OPCODE [, operand]]  [// comment]
//
// flags is a 0x-prefixed hexadecimal or 0b-prefixed binary literal of the
// configured width; duration is an integer with a unit in ns/us/ms/s;
// opcodes are case-insensitive and CONTINUE is implied when omitted.
// Labels may be referenced before or after their defining line.
package asm

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2"

	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

// Assembler parses source text into instruction sequences under a fixed
// device configuration.
type Assembler struct {
	cfg    pulse.Config
	parser *participle.Parser[program]
}

// New builds an assembler for the given device configuration.
func New(cfg pulse.Config) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	parser, err := participle.Build[program](
		participle.Lexer(asmLexer),
		participle.Elide("Comment", "Whitespace"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("asm: failed to build parser: %w", err)
	}
	return &Assembler{cfg: cfg, parser: parser}, nil
}

// statement is one parsed line awaiting operand resolution.
type statement struct {
	line     int
	label    string
	flags    uint32
	duration uint64
	opcode   pulse.Opcode
	operand  *operandArg
	// resolved operand for END_LOOP (its LOOP address)
	loopAddr *uint32
}

// Assemble parses src and resolves it into an InstructionSequence.
//
// Resolution runs in two passes: the first assigns each instruction an
// address equal to its ordinal position and records labels, the second
// resolves label operands against that table, so forward references cost
// nothing extra.
func (a *Assembler) Assemble(src string) (*pulse.InstructionSequence, error) {
	tree, err := a.parser.ParseString("", src)
	if err != nil {
		return nil, asParseError(err)
	}

	// pass one: addresses, labels, field validation
	labels := make(map[string]uint32)
	stmts := make([]statement, 0, len(tree.Lines))
	var loopStack []int

	for _, ln := range tree.Lines {
		st, err := a.checkLine(ln)
		if err != nil {
			return nil, err
		}
		if st.label != "" {
			if _, dup := labels[st.label]; dup {
				return nil, &pulse.ResolutionError{Line: st.line, Msg: fmt.Sprintf("duplicate label %q", st.label)}
			}
			labels[st.label] = uint32(len(stmts))
		}

		switch st.opcode {
		case pulse.Loop:
			loopStack = append(loopStack, len(stmts))
		case pulse.EndLoop:
			if len(loopStack) == 0 {
				return nil, &pulse.ResolutionError{Line: st.line, Msg: "END_LOOP without matching LOOP"}
			}
			addr := uint32(loopStack[len(loopStack)-1])
			loopStack = loopStack[:len(loopStack)-1]
			st.loopAddr = &addr
		}
		stmts = append(stmts, st)
	}
	if len(loopStack) > 0 {
		open := stmts[loopStack[len(loopStack)-1]]
		return nil, &pulse.ResolutionError{Line: open.line, Msg: "LOOP without matching END_LOOP"}
	}

	// pass two: operand resolution
	instrs := make([]pulse.Instruction, 0, len(stmts))
	for _, st := range stmts {
		operand, err := resolveOperand(st, labels)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, pulse.Instruction{
			Label:      st.label,
			Flags:      st.flags,
			DurationNs: st.duration,
			Opcode:     st.opcode,
			Operand:    operand,
		})
	}

	return pulse.NewSequence(instrs, a.cfg)
}

// checkLine validates one parsed line's fields.
func (a *Assembler) checkLine(ln *line) (statement, error) {
	st := statement{line: ln.Pos.Line, label: ln.Label}

	flags, err := strconv.ParseUint(ln.Flags, 0, 64)
	if err != nil {
		return st, &pulse.ParseError{Line: st.line, Msg: fmt.Sprintf("invalid flags literal %q", ln.Flags)}
	}
	if flags >= uint64(1)<<a.cfg.NrFlags {
		return st, &pulse.ParseError{Line: st.line, Msg: fmt.Sprintf("flags %s exceed %d bits", ln.Flags, a.cfg.NrFlags)}
	}
	st.flags = uint32(flags)

	ns, err := pulse.ParseDuration(ln.Duration.Value + ln.Duration.Unit)
	if err != nil {
		return st, &pulse.ParseError{Line: st.line, Msg: err.Error()}
	}
	if ns < a.cfg.MinInstructionNs {
		return st, &pulse.ParseError{Line: st.line, Msg: fmt.Sprintf(
			"duration %dns below the %dns minimum instruction duration", ns, a.cfg.MinInstructionNs)}
	}
	st.duration = uint64(ns)

	st.opcode = pulse.Continue
	if ln.Op != nil {
		op, ok := pulse.ParseOpcode(ln.Op.Name)
		if !ok {
			return st, &pulse.ParseError{Line: st.line, Msg: fmt.Sprintf("unknown opcode %q", ln.Op.Name)}
		}
		st.opcode = op
		st.operand = ln.Op.Operand

		switch op {
		case pulse.Loop:
			if st.operand == nil || st.operand.Int == nil {
				return st, &pulse.ParseError{Line: st.line, Msg: "LOOP requires an integer repeat count"}
			}
		case pulse.Branch, pulse.JSR:
			if st.operand == nil {
				return st, &pulse.ParseError{Line: st.line, Msg: fmt.Sprintf("%s requires a target operand", op)}
			}
		case pulse.EndLoop:
			if st.operand != nil {
				return st, &pulse.ParseError{Line: st.line, Msg: "END_LOOP takes no operand"}
			}
		}
	}
	return st, nil
}

// resolveOperand turns a statement's operand into its numeric value, using
// the label address table for symbolic references.
func resolveOperand(st statement, labels map[string]uint32) (uint32, error) {
	if st.loopAddr != nil {
		return *st.loopAddr, nil
	}
	if st.operand == nil {
		return 0, nil
	}
	if st.operand.Label != nil {
		addr, ok := labels[*st.operand.Label]
		if !ok {
			return 0, &pulse.ResolutionError{Line: st.line, Msg: fmt.Sprintf("undefined label %q", *st.operand.Label)}
		}
		return addr, nil
	}
	v, err := strconv.ParseUint(*st.operand.Int, 10, 32)
	if err != nil {
		return 0, &pulse.ParseError{Line: st.line, Msg: fmt.Sprintf("invalid operand %q", *st.operand.Int)}
	}
	return uint32(v), nil
}

// asParseError maps participle's lexer/parser errors onto the shared error
// taxonomy, carrying the offending line number.
func asParseError(err error) error {
	var perr participle.Error
	if errors.As(err, &perr) {
		return &pulse.ParseError{Line: perr.Position().Line, Msg: perr.Message()}
	}
	return &pulse.ParseError{Msg: err.Error()}
}
