package asm

import "github.com/alecthomas/participle/v2/lexer"

// program is the parse tree of one source text: a sequence of instruction
// lines separated by newlines. Blank and comment-only lines reduce to bare
// Newline tokens.
type program struct {
	Lines []*line `parser:"(@@ | Newline)*"`
}

// line is one instruction: [label:] flags duration [opcode [operand]].
// Commas between fields are optional; whitespace alone also separates.
type line struct {
	Pos lexer.Position

	Label    string      `parser:"(@Ident Colon)?"`
	Flags    string      `parser:"@(HexLit | BinLit)"`
	Duration durationArg `parser:"Comma? @@"`
	Op       *opcodeArg  `parser:"(Comma? @@)? (Newline | EOF)"`
}

// durationArg is an integer immediately followed by its unit keyword,
// e.g. "500ms" or "500 ms".
type durationArg struct {
	Value string `parser:"@Int"`
	Unit  string `parser:"@Ident"`
}

// opcodeArg is an opcode keyword with its optional operand.
type opcodeArg struct {
	Pos lexer.Position

	Name    string      `parser:"@Ident"`
	Operand *operandArg `parser:"(Comma? @@)?"`
}

// operandArg is either a literal value (loop count, absolute address) or a
// label reference resolved in the second pass.
type operandArg struct {
	Pos lexer.Position

	Int   *string `parser:"  @Int"`
	Label *string `parser:"| @Ident"`
}
