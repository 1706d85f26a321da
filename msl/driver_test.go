package msl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/spvmsl/asm"
	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

const passthroughFragment = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint Fragment %main "main" %vColor %FragColor
               OpExecutionMode %main OriginUpperLeft
               OpName %vColor "vColor"
               OpName %FragColor "FragColor"
               OpDecorate %vColor Location 0
               OpDecorate %FragColor Location 0
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
      %float = OpTypeFloat 32
    %v4float = OpTypeVector %float 4
     %ptr_in = OpTypePointer Input %v4float
    %ptr_out = OpTypePointer Output %v4float
     %vColor = OpVariable %ptr_in Input
  %FragColor = OpVariable %ptr_out Output
       %main = OpFunction %void None %fn
      %entry = OpLabel
          %c = OpLoad %v4float %vColor
               OpStore %FragColor %c
               OpReturn
               OpFunctionEnd
`

const storageCompute = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint GLCompute %main "main" %gid
               OpExecutionMode %main LocalSize 64 1 1
               OpName %Buf "Buf"
               OpMemberName %Buf 0 "data"
               OpName %buf "buf"
               OpDecorate %gid BuiltIn GlobalInvocationId
               OpDecorate %rta ArrayStride 4
               OpMemberDecorate %Buf 0 Offset 0
               OpDecorate %Buf Block
               OpDecorate %buf DescriptorSet 0
               OpDecorate %buf Binding 0
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
       %uint = OpTypeInt 32 0
     %v3uint = OpTypeVector %uint 3
  %ptr_in_v3 = OpTypePointer Input %v3uint
        %gid = OpVariable %ptr_in_v3 Input
        %rta = OpTypeRuntimeArray %uint
        %Buf = OpTypeStruct %rta
     %ptr_sb = OpTypePointer StorageBuffer %Buf
        %buf = OpVariable %ptr_sb StorageBuffer
%ptr_sb_uint = OpTypePointer StorageBuffer %uint
     %uint_0 = OpConstant %uint 0
       %main = OpFunction %void None %fn
      %entry = OpLabel
         %id = OpLoad %v3uint %gid
          %x = OpCompositeExtract %uint %id 0
          %p = OpAccessChain %ptr_sb_uint %buf %uint_0 %x
          %v = OpLoad %uint %p
          %w = OpIMul %uint %v %v
               OpStore %p %w
               OpReturn
               OpFunctionEnd
`

const loopCompute = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint GLCompute %main "main"
               OpExecutionMode %main LocalSize 1 1 1
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
       %bool = OpTypeBool
       %uint = OpTypeInt 32 0
     %uint_0 = OpConstant %uint 0
     %uint_1 = OpConstant %uint 1
     %uint_4 = OpConstant %uint 4
%ptr_fn_uint = OpTypePointer Function %uint
       %main = OpFunction %void None %fn
      %entry = OpLabel
          %i = OpVariable %ptr_fn_uint Function %uint_0
               OpBranch %header
     %header = OpLabel
               OpLoopMerge %merge %cont None
               OpBranch %cond
       %cond = OpLabel
         %iv = OpLoad %uint %i
         %lt = OpULessThan %bool %iv %uint_4
               OpBranchConditional %lt %body %merge
       %body = OpLabel
               OpBranch %cont
       %cont = OpLabel
        %iv2 = OpLoad %uint %i
       %next = OpIAdd %uint %iv2 %uint_1
               OpStore %i %next
               OpBranch %header
      %merge = OpLabel
               OpReturn
               OpFunctionEnd
`

const helperFragment = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint Fragment %main "main" %FragColor
               OpExecutionMode %main OriginUpperLeft
               OpName %FragColor "FragColor"
               OpDecorate %FragColor Location 0
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
       %bool = OpTypeBool
      %float = OpTypeFloat 32
    %float_0 = OpConstant %float 0
    %float_1 = OpConstant %float 1
    %ptr_out = OpTypePointer Output %float
  %FragColor = OpVariable %ptr_out Output
       %main = OpFunction %void None %fn
      %entry = OpLabel
     %helper = OpIsHelperInvocationEXT %bool
          %v = OpSelect %float %helper %float_0 %float_1
               OpStore %FragColor %v
               OpReturn
               OpFunctionEnd
`

const electCompute = `
               OpCapability Shader
               OpCapability GroupNonUniform
               OpMemoryModel Logical GLSL450
               OpEntryPoint GLCompute %main "main"
               OpExecutionMode %main LocalSize 32 1 1
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
       %bool = OpTypeBool
       %uint = OpTypeInt 32 0
     %uint_3 = OpConstant %uint 3
       %main = OpFunction %void None %fn
      %entry = OpLabel
      %first = OpGroupNonUniformElect %bool %uint_3
               OpReturn
               OpFunctionEnd
`

func parse(t *testing.T, source string) *ir.Module {
	t.Helper()
	m, err := asm.Parse("test.spvasm", source)
	require.NoError(t, err)
	return m
}

func idByName(t *testing.T, m *ir.Module, name string) ir.ID {
	t.Helper()
	for _, id := range m.IDs() {
		if m.Name(id) == name {
			return id
		}
	}
	t.Fatalf("no id named %s", name)
	return 0
}

func TestCompile_Fragment(t *testing.T) {
	m := parse(t, passthroughFragment)
	c, err := NewCompiler(m, DefaultOptions(), PipelineOptions{})
	require.NoError(t, err)
	out, err := c.Compile()
	require.NoError(t, err)

	for _, want := range []string{
		"#include <metal_stdlib>",
		"using namespace metal;",
		"struct main0_in",
		"[[user(locn0)]]",
		"struct main0_out",
		"[[color(0)]]",
		"fragment main0_out main0(main0_in in [[stage_in]])",
		"in.vColor",
		"out.FragColor",
		"return out;",
	} {
		assert.Contains(t, out, want)
	}

	info := c.Info()
	assert.Equal(t, "main0", info.EntryPointName)
	assert.Equal(t, []uint32{0}, info.InputLocations)
	assert.Equal(t, []uint32{0}, info.OutputLocations)
	assert.Equal(t, 1, info.Passes)
	assert.True(t, c.IsLocationUsed(DirectionInput, 0))
	assert.False(t, c.IsLocationUsed(DirectionInput, 1))
	assert.True(t, c.IsLocationUsed(DirectionOutput, 0))
}

func TestCompile_Deterministic(t *testing.T) {
	m := parse(t, storageCompute)
	bound := m.Bound()

	first, _, err := Compile(m, DefaultOptions(), PipelineOptions{})
	require.NoError(t, err)
	second, _, err := Compile(m, DefaultOptions(), PipelineOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, bound, m.Bound(), "the caller's module is left alone")
}

func TestCompile_StorageBuffer(t *testing.T) {
	m := parse(t, storageCompute)
	buf := idByName(t, m, "buf")

	tests := []struct {
		name      string
		bindings  BindingTable
		want      string
		automatic bool
	}{
		{"automatic", nil, "device Buf& buf [[buffer(0)]]", true},
		{
			"pinned",
			BindingTable{{Stage: spirv.ExecutionModelGLCompute}: {Buffer: Slot(3)}},
			"device Buf& buf [[buffer(3)]]",
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCompiler(m, DefaultOptions(), PipelineOptions{Bindings: tt.bindings})
			require.NoError(t, err)
			out, err := c.Compile()
			require.NoError(t, err)

			assert.Contains(t, out, "kernel void main0(")
			assert.Contains(t, out, tt.want)
			assert.Contains(t, out, "[[thread_position_in_grid]]")
			assert.Contains(t, out, "buf.data[")

			idx, ok := c.AutomaticResourceIndex(buf, ResourceBuffer)
			assert.Equal(t, tt.automatic, ok)
			if tt.automatic {
				assert.Equal(t, uint32(0), idx)
			}
			_, ok = c.AutomaticResourceIndex(buf, ResourceTexture)
			assert.False(t, ok)
		})
	}
}

func TestCompile_Loop(t *testing.T) {
	out, _, err := Compile(parse(t, loopCompute), DefaultOptions(), PipelineOptions{})
	require.NoError(t, err)

	assert.Contains(t, out, "while (true) {")
	assert.Contains(t, out, "loop_init = false;")
	assert.Contains(t, out, "break;")
	assert.Contains(t, out, " < 4u")
	assert.Contains(t, out, " + 1u")
}

func TestCompile_DiscoversBuiltins(t *testing.T) {
	options := DefaultOptions()
	options.LangVersion = Version2_3

	c, err := NewCompiler(parse(t, helperFragment), options, PipelineOptions{})
	require.NoError(t, err)
	out, err := c.Compile()
	require.NoError(t, err)

	assert.Contains(t, out, "simd_is_helper_thread()")
	assert.Contains(t, out, "gl_HelperInvocation")
	assert.Equal(t, 2, c.Info().Passes, "the builtin is found while emitting the first pass")
}

func TestCompile_CapabilityMismatch(t *testing.T) {
	m := parse(t, electCompute)

	options := DefaultOptions()
	options.LangVersion = Version1_2
	_, _, err := Compile(m, options, PipelineOptions{})
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrCapabilityMismatch, kind)
	assert.Contains(t, err.Error(), "requires MSL 2.0 on macOS")

	out, _, err := Compile(m, DefaultOptions(), PipelineOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, "simd_is_first()")
}

func TestNewCompiler_Errors(t *testing.T) {
	fragment := parse(t, passthroughFragment)
	geometry := parse(t, `
OpCapability Geometry
OpMemoryModel Logical GLSL450
OpEntryPoint Geometry %main "main"
%void = OpTypeVoid
%fn = OpTypeFunction %void
%main = OpFunction %void None %fn
%entry = OpLabel
OpReturn
OpFunctionEnd`)

	tests := []struct {
		name     string
		module   *ir.Module
		options  Options
		pipeline PipelineOptions
		want     ErrorKind
	}{
		{
			"missing entry point",
			fragment,
			DefaultOptions(),
			PipelineOptions{EntryPoint: &EntryPointSelector{Stage: spirv.ExecutionModelVertex, Name: "main"}},
			ErrEntryPointNotFound,
		},
		{"geometry", geometry, DefaultOptions(), PipelineOptions{}, ErrUnsupportedConstruct},
		{"nil module", nil, DefaultOptions(), PipelineOptions{}, ErrInvalidModule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCompiler(tt.module, tt.options, tt.pipeline)
			require.Error(t, err)
			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestCompiler_QueriesBeforeCompile(t *testing.T) {
	c, err := NewCompiler(parse(t, passthroughFragment), DefaultOptions(), PipelineOptions{})
	require.NoError(t, err)

	assert.Equal(t, TranslationInfo{}, c.Info())
	assert.False(t, c.IsLocationUsed(DirectionInput, 0))
	_, ok := c.AutomaticResourceIndex(1, ResourceBuffer)
	assert.False(t, ok)
}

type countingRenderer struct {
	DefaultRenderer
	seen map[spirv.Op]int
}

func (r *countingRenderer) RenderInstruction(s *Scope, inst *ir.Instruction) error {
	r.seen[inst.Op]++
	if inst.Op == spirv.OpIMul {
		s.Bind(inst.Result, inst.ResultType, "0u")
		return nil
	}
	return r.DefaultRenderer.RenderInstruction(s, inst)
}

func TestCompile_CustomRenderer(t *testing.T) {
	r := &countingRenderer{seen: make(map[spirv.Op]int)}
	out, _, err := Compile(parse(t, storageCompute), DefaultOptions(), PipelineOptions{Renderer: r})
	require.NoError(t, err)

	assert.Positive(t, r.seen[spirv.OpIMul])
	assert.Contains(t, out, "= 0u;")
	assert.NotContains(t, out, " * ")
}

func TestCompile_PassLimit(t *testing.T) {
	options := DefaultOptions()
	options.LangVersion = Version2_3

	c, err := NewCompiler(parse(t, helperFragment), options, PipelineOptions{})
	require.NoError(t, err)
	c.passLimit = 1

	out, err := c.Compile()
	require.Error(t, err)
	assert.Empty(t, out)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrInternal, kind)
	assert.Contains(t, err.Error(), "did not settle after 1 passes")
}

func TestCompile_DeactivatedBuiltin(t *testing.T) {
	c, err := NewCompiler(parse(t, storageCompute), DefaultOptions(), PipelineOptions{})
	require.NoError(t, err)
	// A builtin the first pass will not activate.
	c.req.active[DirectionInput].Set(uint32(spirv.BuiltInFragCoord))

	_, err = c.Compile()
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrInternal, kind)
	assert.Contains(t, err.Error(), "deactivated")
}

func TestRunPass_Outcome(t *testing.T) {
	options := DefaultOptions()
	options.LangVersion = Version2_3

	c, err := NewCompiler(parse(t, helperFragment), options, PipelineOptions{})
	require.NoError(t, err)

	_, outcome, err := c.runPass(newPassContext(c, 1))
	require.NoError(t, err)
	assert.True(t, outcome.again)
	assert.Contains(t, outcome.String(), "needs gl_HelperInvocation")

	source, outcome, err := c.runPass(newPassContext(c, 2))
	require.NoError(t, err)
	assert.False(t, outcome.again)
	assert.Equal(t, "done", outcome.String())
	assert.Contains(t, source, "simd_is_helper_thread()")
}

type builtinRenderer struct {
	DefaultRenderer
	builtin spirv.BuiltIn
}

func (r *builtinRenderer) RenderInstruction(s *Scope, inst *ir.Instruction) error {
	if inst.Op != spirv.OpIMul {
		return r.DefaultRenderer.RenderInstruction(s, inst)
	}
	v, ok, err := s.RequireBuiltin(r.builtin, DirectionInput)
	if err != nil {
		return err
	}
	if !ok {
		s.BindInline(inst.Result, "0u")
		return nil
	}
	s.Bind(inst.Result, inst.ResultType, v)
	return nil
}

func TestScope_RequireBuiltin(t *testing.T) {
	t.Run("discovered builtin", func(t *testing.T) {
		r := &builtinRenderer{builtin: spirv.BuiltInLocalInvocationIndex}
		c, err := NewCompiler(parse(t, storageCompute), DefaultOptions(), PipelineOptions{Renderer: r})
		require.NoError(t, err)
		out, err := c.Compile()
		require.NoError(t, err)

		assert.Equal(t, 2, c.Info().Passes)
		assert.Contains(t, out, "uint gl_LocalInvocationIndex [[thread_index_in_threadgroup]]")
		assert.Contains(t, out, "= gl_LocalInvocationIndex;")
	})

	t.Run("unknown builtin", func(t *testing.T) {
		r := &builtinRenderer{builtin: spirv.BuiltIn(4000)}
		out, _, err := Compile(parse(t, storageCompute), DefaultOptions(), PipelineOptions{Renderer: r})
		require.Error(t, err)
		assert.Empty(t, out)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, ErrUnsupportedConstruct, kind)
	})
}

func TestCompile_CopyMemoryOperands(t *testing.T) {
	m := parse(t, `
OpCapability Shader
OpMemoryModel Logical GLSL450
OpEntryPoint GLCompute %main "main"
OpExecutionMode %main LocalSize 1 1 1
%void = OpTypeVoid
%fn = OpTypeFunction %void
%uint = OpTypeInt 32 0
%ptr = OpTypePointer Private %uint
%x = OpVariable %ptr Private
%main = OpFunction %void None %fn
%entry = OpLabel
OpCopyMemory %x
OpReturn
OpFunctionEnd`)

	require.NotPanics(t, func() {
		_, _, err := Compile(m, DefaultOptions(), PipelineOptions{})
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, ErrInvalidModule, kind)
	})
}
