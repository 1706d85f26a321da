// Package msl translates one entry point of an ir.Module into Metal Shading
// Language (MSL) source.
//
// MSL is Apple's shader language for the Metal graphics API. It is based on C++14
// with extensions for GPU programming, including explicit address spaces, attribute-based
// parameter binding, and a metal:: namespace for standard library functions.
//
// # Usage
//
//	module, err := asm.Parse("shader.spvasm", source)
//	if err != nil {
//	    return err
//	}
//
//	options := msl.DefaultOptions()
//	options.LangVersion = msl.Version2_2
//
//	source, info, err := msl.Compile(module, options, msl.PipelineOptions{})
//	if err != nil {
//	    return err
//	}
//
// Use NewCompiler when the location and resource queries are needed after
// compilation. The input module is never modified; translation runs on a
// clone.
//
// # Passes
//
// A Metal entry point receives every builtin and resource it touches as an
// argument, so the full interface is only known once the body has been
// emitted. The compiler therefore runs in passes. Each pass activates
// builtins, builds the stage_in and output structs, normalizes buffer
// layouts, threads globals through the call graph, assigns resource slots
// and emits. A pass that discovers a new requirement, such as a helper
// invocation query needing its builtin, records it and the driver runs
// again. Requirements only grow, so the loop ends within a bounded number
// of passes.
//
// # MSL Language Versions
//
// Options.LangVersion and Options.Platform select a feature tier. Features
// above the tier fail with ErrCapabilityMismatch naming the version that
// adds them:
//   - MSL 2.0 on macOS, 2.2 on iOS: subgroup (SIMD-group) operations
//   - MSL 2.0: argument buffers
//   - MSL 2.3: helper invocation queries, framebuffer fetch on macOS
//
// # Address Spaces
//
// Storage classes map to MSL as:
//
//	Uniform, PushConstant   -> constant
//	StorageBuffer           -> device (const device when NonWritable)
//	Private, Function       -> thread
//	Workgroup               -> threadgroup
//	Input, Output           -> members of <entry>_in and <entry>_out
//
// # Layout
//
// Structs carrying Offset decorations are checked against MSL natural
// layout. Members that do not fit are stored packed, widened to a matching
// array or matrix stride, or shrunk by one component, with explicit padding
// members between them. Layouts no representation reproduces fail with
// ErrUnsupportedConstruct.
//
// # Rendering
//
// Instructions are rendered through the Renderer interface. DefaultRenderer
// covers the instruction set this package supports; a custom Renderer can
// wrap it to override individual opcodes.
package msl
