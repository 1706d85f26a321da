package msl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/spvmsl/ir"
)

func compileSource(t *testing.T, source string, options Options) (string, *Compiler) {
	t.Helper()
	c, err := NewCompiler(parse(t, source), options, PipelineOptions{})
	require.NoError(t, err)
	out, err := c.Compile()
	require.NoError(t, err)
	return out, c
}

const packedFragment = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint Fragment %main "main" %uv %fade %FragColor
               OpExecutionMode %main OriginUpperLeft
               OpDecorate %uv Location 0
               OpDecorate %fade Location 0
               OpDecorate %fade Component 2
               OpDecorate %FragColor Location 0
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
      %float = OpTypeFloat 32
    %v2float = OpTypeVector %float 2
    %v4float = OpTypeVector %float 4
  %ptr_in_v2 = OpTypePointer Input %v2float
   %ptr_in_f = OpTypePointer Input %float
    %ptr_out = OpTypePointer Output %v4float
         %uv = OpVariable %ptr_in_v2 Input
       %fade = OpVariable %ptr_in_f Input
  %FragColor = OpVariable %ptr_out Output
    %float_1 = OpConstant %float 1
       %main = OpFunction %void None %fn
      %entry = OpLabel
          %a = OpLoad %v2float %uv
          %b = OpLoad %float %fade
         %ax = OpCompositeExtract %float %a 0
         %ay = OpCompositeExtract %float %a 1
          %c = OpCompositeConstruct %v4float %ax %ay %b %float_1
               OpStore %FragColor %c
               OpReturn
               OpFunctionEnd
`

func TestInterface_ComponentPacking(t *testing.T) {
	out, c := compileSource(t, packedFragment, DefaultOptions())

	assert.Contains(t, out, "metal::float3 m_location_0 [[user(locn0)]];")
	assert.Contains(t, out, "uv = in.m_location_0.xy;")
	assert.Contains(t, out, "fade = in.m_location_0.z;")
	assert.NotContains(t, out, "[[user(locn0_2)]]")
	assert.Equal(t, []uint32{0}, c.Info().InputLocations)
}

const dualSourceFragment = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint Fragment %main "main" %o0 %o1
               OpExecutionMode %main OriginUpperLeft
               OpDecorate %o0 Location 0
               OpDecorate %o0 Index 0
               OpDecorate %o1 Location 0
               OpDecorate %o1 Index 1
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
      %float = OpTypeFloat 32
    %v4float = OpTypeVector %float 4
    %ptr_out = OpTypePointer Output %v4float
         %o0 = OpVariable %ptr_out Output
         %o1 = OpVariable %ptr_out Output
    %float_0 = OpConstant %float 0
    %float_1 = OpConstant %float 1
       %ones = OpConstantComposite %v4float %float_1 %float_1 %float_1 %float_1
      %black = OpConstantComposite %v4float %float_0 %float_0 %float_0 %float_1
       %main = OpFunction %void None %fn
      %entry = OpLabel
               OpStore %o0 %ones
               OpStore %o1 %black
               OpReturn
               OpFunctionEnd
`

func TestInterface_DualSourceBlending(t *testing.T) {
	out, c := compileSource(t, dualSourceFragment, DefaultOptions())

	assert.Contains(t, out, "metal::float4 o0 [[color(0), index(0)]];")
	assert.Contains(t, out, "metal::float4 o1 [[color(0), index(1)]];")
	assert.Contains(t, out, "out.o0 = ")
	assert.Contains(t, out, "out.o1 = ")
	assert.NotContains(t, out, "m_location_0")
	assert.Equal(t, []uint32{0}, c.Info().OutputLocations)
}

const flattenVertex = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint Vertex %main "main" %pos %mOut %arr %blk
               OpMemberName %Pair 0 "color"
               OpMemberName %Pair 1 "weight"
               OpDecorate %pos BuiltIn Position
               OpDecorate %mOut Location 1
               OpDecorate %arr Location 3
               OpDecorate %blk Location 5
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
      %float = OpTypeFloat 32
       %uint = OpTypeInt 32 0
    %v2float = OpTypeVector %float 2
    %v4float = OpTypeVector %float 4
       %mat2 = OpTypeMatrix %v2float 2
     %uint_2 = OpConstant %uint 2
       %arr2 = OpTypeArray %float %uint_2
       %Pair = OpTypeStruct %v4float %float
    %ptr_pos = OpTypePointer Output %v4float
    %ptr_mat = OpTypePointer Output %mat2
    %ptr_arr = OpTypePointer Output %arr2
   %ptr_pair = OpTypePointer Output %Pair
        %pos = OpVariable %ptr_pos Output
       %mOut = OpVariable %ptr_mat Output
        %arr = OpVariable %ptr_arr Output
        %blk = OpVariable %ptr_pair Output
    %float_0 = OpConstant %float 0
    %float_1 = OpConstant %float 1
        %col = OpConstantComposite %v2float %float_0 %float_1
          %m = OpConstantComposite %mat2 %col %col
          %a = OpConstantComposite %arr2 %float_0 %float_1
     %origin = OpConstantComposite %v4float %float_0 %float_0 %float_0 %float_1
          %p = OpConstantComposite %Pair %origin %float_1
       %main = OpFunction %void None %fn
      %entry = OpLabel
               OpStore %pos %origin
               OpStore %mOut %m
               OpStore %arr %a
               OpStore %blk %p
               OpReturn
               OpFunctionEnd
`

func TestInterface_Flattening(t *testing.T) {
	out, c := compileSource(t, flattenVertex, DefaultOptions())

	tests := []struct {
		name    string
		members []string
		copies  []string
	}{
		{
			name:    "matrix columns",
			members: []string{"metal::float2 mOut_0 [[user(locn1)]];", "metal::float2 mOut_1 [[user(locn2)]];"},
			copies:  []string{"out.mOut_0 = mOut[0];", "out.mOut_1 = mOut[1];"},
		},
		{
			name:    "array elements",
			members: []string{"float arr_0 [[user(locn3)]];", "float arr_1 [[user(locn4)]];"},
			copies:  []string{"out.arr_0 = arr.inner[0];", "out.arr_1 = arr.inner[1];"},
		},
		{
			name:    "struct members",
			members: []string{"metal::float4 blk_color [[user(locn5)]];", "float blk_weight [[user(locn6)]];"},
			copies:  []string{"out.blk_color = blk.color;", "out.blk_weight = blk.weight;"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, s := range tt.members {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.copies {
				assert.Contains(t, out, s)
			}
		})
	}

	assert.Equal(t, []uint32{1, 2, 3, 4, 5, 6}, c.Info().OutputLocations)
}

func TestInterface_MemberOrder(t *testing.T) {
	out, _ := compileSource(t, flattenVertex, DefaultOptions())

	// The position is declared first but sorts after every location.
	first := strings.Index(out, "[[user(locn1)]]")
	last := strings.Index(out, "[[user(locn6)]]")
	position := strings.Index(out, "gl_Position [[position]]")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, last)
	require.NotEqual(t, -1, position)
	assert.Less(t, first, last)
	assert.Less(t, last, position)
	assert.Contains(t, out, "out.gl_Position = ")
}

const locationOrderVertex = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint Vertex %main "main" %late %early
               OpDecorate %late Location 2
               OpDecorate %early Location 0
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
      %float = OpTypeFloat 32
    %v4float = OpTypeVector %float 4
    %ptr_out = OpTypePointer Output %v4float
       %late = OpVariable %ptr_out Output
      %early = OpVariable %ptr_out Output
    %float_1 = OpConstant %float 1
       %ones = OpConstantComposite %v4float %float_1 %float_1 %float_1 %float_1
       %main = OpFunction %void None %fn
      %entry = OpLabel
               OpStore %late %ones
               OpStore %early %ones
               OpReturn
               OpFunctionEnd
`

func TestInterface_SortRemapsMembers(t *testing.T) {
	out, _ := compileSource(t, locationOrderVertex, DefaultOptions())

	early := strings.Index(out, "metal::float4 early [[user(locn0)]];")
	late := strings.Index(out, "metal::float4 late [[user(locn2)]];")
	require.NotEqual(t, -1, early)
	require.NotEqual(t, -1, late)
	assert.Less(t, early, late)
	assert.Contains(t, out, "out.late = ")
	assert.Contains(t, out, "out.early = ")
}

const rejectedVertex = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint Vertex %main "main" %bad
               OpDecorate %bad Location 0
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
      %float = OpTypeFloat 32
       %uint = OpTypeInt 32 0
     %uint_2 = OpConstant %uint 2
    %v2float = OpTypeVector %float 2
{{types}}
        %ptr = OpTypePointer Output %T
        %bad = OpVariable %ptr Output
      %undef = OpUndef %T
       %main = OpFunction %void None %fn
      %entry = OpLabel
               OpStore %bad %undef
               OpReturn
               OpFunctionEnd
`

func TestInterface_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		types string
		want  string
	}{
		{
			name:  "array of matrices",
			types: "%mat2 = OpTypeMatrix %v2float 2\n%T = OpTypeArray %mat2 %uint_2",
			want:  "array of matrices",
		},
		{
			name:  "array of arrays",
			types: "%inner = OpTypeArray %float %uint_2\n%T = OpTypeArray %inner %uint_2",
			want:  "array of arrays",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := strings.ReplaceAll(rejectedVertex, "{{types}}", tt.types)
			out, _, err := Compile(parse(t, source), DefaultOptions(), PipelineOptions{})
			require.Error(t, err)
			assert.Empty(t, out)
			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, ErrUnsupportedConstruct, kind)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

const tessControl = `
               OpCapability Tessellation
               OpMemoryModel Logical GLSL450
               OpEntryPoint TessellationControl %main "main" %prim %pv
               OpExecutionMode %main OutputVertices 3
               OpDecorate %prim BuiltIn PrimitiveId
               OpDecorate %pv Patch
               OpDecorate %pv Location 0
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
       %uint = OpTypeInt 32 0
     %ptr_in = OpTypePointer Input %uint
    %ptr_out = OpTypePointer Output %uint
       %prim = OpVariable %ptr_in Input
         %pv = OpVariable %ptr_out Output
       %main = OpFunction %void None %fn
      %entry = OpLabel
          %id = OpLoad %uint %prim
               OpStore %pv %id
               OpReturn
               OpFunctionEnd
`

const tessControlBare = `
               OpCapability Tessellation
               OpMemoryModel Logical GLSL450
               OpEntryPoint TessellationControl %main "main" %pv
               OpExecutionMode %main OutputVertices 3
               OpDecorate %pv Patch
               OpDecorate %pv Location 0
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
       %uint = OpTypeInt 32 0
    %ptr_out = OpTypePointer Output %uint
         %pv = OpVariable %ptr_out Output
     %uint_7 = OpConstant %uint 7
       %main = OpFunction %void None %fn
      %entry = OpLabel
               OpStore %pv %uint_7
               OpReturn
               OpFunctionEnd
`

func TestInterface_TessellationControl(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		synthesized int
	}{
		{"primitive id declared", tessControl, 1},
		{"nothing declared", tessControlBare, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, c := compileSource(t, tt.source, DefaultOptions())

			assert.Contains(t, out, "kernel void main0(")
			assert.Equal(t, 1, strings.Count(out, "uint gl_InvocationID [[thread_index_in_threadgroup]]"))
			assert.Equal(t, 1, strings.Count(out, "uint gl_PrimitiveID [[threadgroup_position_in_grid]]"))
			assert.Contains(t, out, "gl_out = &")
			assert.Contains(t, out, "device main0_patchOut& patchOut = ")
			assert.Contains(t, out, "patchOut.pv = ")
			assert.Len(t, c.req.synthesized, tt.synthesized)

			info := c.Info()
			assert.Equal(t, 1, info.Passes)
			for _, aux := range []AuxBuffer{AuxShaderInput, AuxShaderOutput, AuxPatchOutput, AuxTessFactor, AuxIndirectParams} {
				assert.Contains(t, info.AuxBuffers, aux)
			}
		})
	}
}

const tessEvaluation = `
               OpCapability Tessellation
               OpMemoryModel Logical GLSL450
               OpEntryPoint TessellationEvaluation %main "main" %inColor %pos
               OpExecutionMode %main Triangles
               OpDecorate %inColor Location 0
               OpDecorate %pos BuiltIn Position
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
      %float = OpTypeFloat 32
       %uint = OpTypeInt 32 0
    %v4float = OpTypeVector %float 4
     %uint_0 = OpConstant %uint 0
     %uint_3 = OpConstant %uint 3
     %arr3   = OpTypeArray %float %uint_3
  %ptr_in_a = OpTypePointer Input %arr3
  %ptr_in_f = OpTypePointer Input %float
   %ptr_out = OpTypePointer Output %v4float
   %inColor = OpVariable %ptr_in_a Input
       %pos = OpVariable %ptr_out Output
   %float_1 = OpConstant %float 1
      %main = OpFunction %void None %fn
     %entry = OpLabel
         %p = OpAccessChain %ptr_in_f %inColor %uint_0
         %c = OpLoad %float %p
         %v = OpCompositeConstruct %v4float %c %c %c %float_1
              OpStore %pos %v
              OpReturn
              OpFunctionEnd
`

func TestInterface_TessellationEvaluation(t *testing.T) {
	out, _ := compileSource(t, tessEvaluation, DefaultOptions())

	assert.Contains(t, out, "float inColor [[attribute(0)]];")
	assert.Contains(t, out, "patch_control_point<main0_in> gl_in;")
	assert.Contains(t, out, "[[patch(triangle, 3)]] vertex main0_out main0(main0_patchIn patchIn [[stage_in]]")
	assert.Contains(t, out, "patchIn.gl_in[0u].inColor")
	assert.Contains(t, out, "gl_Position [[position]]")
}

const storageVertex = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint Vertex %main "main" %vid %pos
               OpMemberName %Buf 0 "data"
               OpDecorate %vid BuiltIn VertexIndex
               OpDecorate %pos BuiltIn Position
               OpDecorate %rta ArrayStride 4
               OpMemberDecorate %Buf 0 Offset 0
               OpDecorate %Buf Block
               OpDecorate %buf DescriptorSet 0
               OpDecorate %buf Binding 0
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
       %uint = OpTypeInt 32 0
      %float = OpTypeFloat 32
    %v4float = OpTypeVector %float 4
%ptr_in_uint = OpTypePointer Input %uint
        %vid = OpVariable %ptr_in_uint Input
    %ptr_out = OpTypePointer Output %v4float
        %pos = OpVariable %ptr_out Output
        %rta = OpTypeRuntimeArray %uint
        %Buf = OpTypeStruct %rta
     %ptr_sb = OpTypePointer StorageBuffer %Buf
        %buf = OpVariable %ptr_sb StorageBuffer
%ptr_sb_uint = OpTypePointer StorageBuffer %uint
     %uint_0 = OpConstant %uint 0
    %float_0 = OpConstant %float 0
    %float_1 = OpConstant %float 1
     %origin = OpConstantComposite %v4float %float_0 %float_0 %float_0 %float_1
       %main = OpFunction %void None %fn
      %entry = OpLabel
          %i = OpLoad %uint %vid
          %p = OpAccessChain %ptr_sb_uint %buf %uint_0 %i
               OpStore %p %i
               OpStore %pos %origin
               OpReturn
               OpFunctionEnd
`

func TestInterface_RasterizationFallback(t *testing.T) {
	tests := []struct {
		name     string
		version  Version
		disabled bool
		want     string
	}{
		{"below writable vertex tier", Version1_1, true, "vertex void main0("},
		{"writable vertex tier", Version1_2, false, "vertex main0_out main0("},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := DefaultOptions()
			options.LangVersion = tt.version
			out, c := compileSource(t, storageVertex, options)

			assert.Contains(t, out, tt.want)
			assert.Contains(t, out, "device Buf& buf [[buffer(0)]]")
			assert.Equal(t, tt.disabled, c.Info().RasterizationDisabled)
		})
	}
}

func TestInterface_MaterializeConflict(t *testing.T) {
	m := parse(t, passthroughFragment)
	c, err := NewCompiler(m, DefaultOptions(), PipelineOptions{})
	require.NoError(t, err)
	// The output block reuses IDs that already hold variables.
	c.req.blocks[blockOut] = [2]ir.ID{idByName(t, m, "FragColor"), idByName(t, m, "vColor")}

	out, err := c.Compile()
	require.Error(t, err)
	assert.Empty(t, out)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrInternal, kind)
	assert.Contains(t, err.Error(), "interface block main0_out")
	assert.Contains(t, err.Error(), ir.ErrKindConflict.Error())
}
