// Package spvmsl translates SPIR-V shaped shader IR into Metal Shading
// Language.
//
// The translation itself lives in the msl package. This package wires the
// assembly reader in front of it for callers that hold shaders as text:
//
//	source := `
//	               OpCapability Shader
//	               OpMemoryModel Logical GLSL450
//	               OpEntryPoint Fragment %main "main" %color
//	...
//	`
//	mslSource, info, err := spvmsl.CompileAssembly("shader.spvasm", source, spvmsl.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// For finer control, read the module with asm.Parse and hand it to
// msl.Compile or msl.NewCompiler.
package spvmsl

import (
	"fmt"

	"github.com/gogpu/spvmsl/asm"
	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/msl"
	"github.com/gogpu/spvmsl/spirv"
)

// CompileOptions configures CompileAssembly.
type CompileOptions struct {
	// EntryPoint names the entry point to translate. Empty selects the
	// first one the module declares.
	EntryPoint string

	// Stage disambiguates entry points sharing a name. Only consulted when
	// EntryPoint is set and HasStage is true.
	Stage    spirv.ExecutionModel
	HasStage bool

	// MSL is the target profile.
	MSL msl.Options

	// Bindings pins resources to Metal argument slots.
	Bindings msl.BindingTable
}

// DefaultOptions returns options for the first entry point on the default
// MSL profile.
func DefaultOptions() CompileOptions {
	return CompileOptions{MSL: msl.DefaultOptions()}
}

// CompileAssembly reads SPIR-V assembly and translates one of its entry
// points to MSL.
func CompileAssembly(filename, source string, opts CompileOptions) (string, msl.TranslationInfo, error) {
	module, err := asm.Parse(filename, source)
	if err != nil {
		return "", msl.TranslationInfo{}, fmt.Errorf("parse error: %w", err)
	}
	pipeline, err := Pipeline(module, opts)
	if err != nil {
		return "", msl.TranslationInfo{}, err
	}
	out, info, err := msl.Compile(module, opts.MSL, pipeline)
	if err != nil {
		return "", msl.TranslationInfo{}, fmt.Errorf("translation error: %w", err)
	}
	return out, info, nil
}

// Pipeline resolves the entry point selection of opts against module.
func Pipeline(module *ir.Module, opts CompileOptions) (msl.PipelineOptions, error) {
	pipeline := msl.PipelineOptions{Bindings: opts.Bindings}
	if opts.EntryPoint == "" {
		return pipeline, nil
	}
	if opts.HasStage {
		pipeline.EntryPoint = &msl.EntryPointSelector{Stage: opts.Stage, Name: opts.EntryPoint}
		return pipeline, nil
	}
	ep := module.FindEntryPoint(opts.EntryPoint)
	if ep == nil {
		return pipeline, msl.NewError(msl.ErrEntryPointNotFound, "no entry point named %q", opts.EntryPoint)
	}
	pipeline.EntryPoint = &msl.EntryPointSelector{Stage: ep.Model, Name: ep.Name}
	return pipeline, nil
}
