package asm

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Lexer tokenizes SPIR-V assembly in the spirv-dis style.
var Lexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `;[^\n]*`},
	{Name: "ID", Pattern: `%[A-Za-z0-9_.]+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Op", Pattern: `Op[A-Z][A-Za-z0-9]*`},
	// Dim enumerants (1D, 2D, 3D) start with a digit.
	{Name: "Word", Pattern: `[123]D\b|[A-Za-z_][A-Za-z0-9_.|]*`},
	{Name: "Float", Pattern: `[-+]?(\d+\.\d*([eE][-+]?\d+)?|\d+[eE][-+]?\d+|0x[0-9a-fA-F]+(\.[0-9a-fA-F]*)?[pP][-+]?\d+)`},
	{Name: "Int", Pattern: `[-+]?(0x[0-9a-fA-F]+|\d+)`},
	{Name: "Assign", Pattern: `=`},
	{Name: "EOL", Pattern: `[\r\n]+`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})
