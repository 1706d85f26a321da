// Package asm reads SPIR-V assembly text into an ir.Module.
//
// The accepted syntax is the one spirv-dis prints: one instruction per
// line, an optional "%name =" result, the opcode, then operands that are
// ids, literals, strings or enumerant words. Comments start with ';'.
//
//	       %float = OpTypeFloat 32
//	     %v4float = OpTypeVector %float 4
//	               OpDecorate %color Location 0
//
// Parsing happens in two steps. ParseProgram builds the syntax tree with a
// participle grammar, and Lower turns it into entities, decorations and
// entry points. Parse does both.
//
// Only the subset of SPIR-V the MSL backend consumes is understood;
// unknown opcodes are reported with their source position.
package asm
