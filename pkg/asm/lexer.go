package asm

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// asmLexer defines the lexical structure of the pulse-program assembly
// language. The grammar is line oriented, so newlines stay significant
// while other whitespace, commas aside, is elided.
var asmLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Comments run to end of line
	{Name: "Comment", Pattern: `//[^\n]*`},

	{Name: "Newline", Pattern: `\r?\n`},
	{Name: "Whitespace", Pattern: `[ \t]+`},

	// Flag literals must precede Int so "0x" / "0b" prefixes win
	{Name: "HexLit", Pattern: `0[xX][0-9a-fA-F]+`},
	{Name: "BinLit", Pattern: `0[bB][01]+`},
	{Name: "Int", Pattern: `[0-9]+`},

	// Opcode keywords, labels and duration units
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},

	{Name: "Colon", Pattern: `:`},
	{Name: "Comma", Pattern: `,`},
})
