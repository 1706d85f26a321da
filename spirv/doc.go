// Package spirv holds the SPIR-V vocabulary used across spvmsl.
//
// The IR store (package ir) is shaped after SPIR-V: every entity is addressed
// by an ID, decorations are keyed on IDs, and function bodies are lists of
// basic blocks holding SPIR-V instructions. This package supplies the
// enumerants those structures refer to:
//   - Op: instruction opcodes
//   - Decoration, BuiltIn: annotations carried by variables and members
//   - StorageClass: memory categories of variables and pointers
//   - ExecutionModel, ExecutionMode: entry point stage and configuration
//   - Dim: image dimensionality
//
// Every enum has a String method returning its assembly spelling and a
// Parse function doing the reverse, which is what the assembly reader in
// package asm uses.
//
// IsIDOperand tells ID operands from literal operands for the opcodes the
// backend inspects; the global variable threader relies on it so a literal
// never gets mistaken for a variable reference.
//
// # References
//
// SPIR-V Specification: https://registry.khronos.org/SPIR-V/specs/unified1/SPIRV.html
package spirv
