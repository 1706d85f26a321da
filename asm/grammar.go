package asm

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Program is a parsed assembly listing.
type Program struct {
	Instructions []*Instruction `(EOL | @@)*`
}

// Instruction is one line of assembly.
type Instruction struct {
	Pos lexer.Position

	Result   string     `(@ID Assign)?`
	Op       string     `@Op`
	Operands []*Operand `@@* (EOL | EOF)`
}

// Operand is one instruction operand.
type Operand struct {
	Pos lexer.Position

	ID     *string `  @ID`
	String *string `| @String`
	Float  *string `| @Float`
	Int    *string `| @Int`
	Word   *string `| @Word`
}

var parser = participle.MustBuild[Program](
	participle.Lexer(Lexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
)

// ParseProgram parses source into its syntax tree without lowering it.
func ParseProgram(filename, source string) (*Program, error) {
	return parser.ParseString(filename, source)
}
