// Package ir is the ID-addressed store the MSL backend compiles from.
//
// The store is shaped after SPIR-V. Every type, variable, constant,
// function and basic block is an Entity kept under a unique ID, and
// decorations are attached to IDs (or struct members) through Meta.
//
// # Structure
//
// A Module holds:
//   - the entity arena, indexed by ID
//   - per-ID decoration state (names, Location, Offset, BuiltIn, ...)
//   - entry points with their stage, execution modes and interface
//
// IDs are handed out by Reserve, which bumps the bound atomically and never
// reuses a value. The arena is additive: Set refuses to change the kind of
// an entity once stored, which keeps repeated backend passes from
// corrupting entities an earlier pass created.
//
// # Types
//
// Types form a graph. Arrays and pointers link to the type they wrap
// through Parent; struct members may point back at their own struct. Walks
// over the graph go through VisitType, which keeps a visited set.
// InternType deduplicates structurally equal types the way SPIR-V requires.
//
// # References
//
//   - SPIR-V specification: https://registry.khronos.org/SPIR-V/specs/unified1/SPIRV.html
//   - SPIRV-Cross: https://github.com/KhronosGroup/SPIRV-Cross
package ir
