package spvmsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/spvmsl/asm"
	"github.com/gogpu/spvmsl/msl"
	"github.com/gogpu/spvmsl/spirv"
)

const twoStages = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint Vertex %vs "main" %pos
               OpEntryPoint Fragment %fs "main" %color
               OpEntryPoint Fragment %fs2 "tint" %color
               OpExecutionMode %fs OriginUpperLeft
               OpExecutionMode %fs2 OriginUpperLeft
               OpName %pos "pos"
               OpName %color "color"
               OpDecorate %pos BuiltIn Position
               OpDecorate %color Location 0
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
      %float = OpTypeFloat 32
    %v4float = OpTypeVector %float 4
    %ptr_out = OpTypePointer Output %v4float
        %pos = OpVariable %ptr_out Output
      %color = OpVariable %ptr_out Output
    %float_1 = OpConstant %float 1
    %float_0 = OpConstant %float 0
        %one = OpConstantComposite %v4float %float_1 %float_1 %float_1 %float_1
       %zero = OpConstantComposite %v4float %float_0 %float_0 %float_0 %float_1
         %vs = OpFunction %void None %fn
         %l1 = OpLabel
               OpStore %pos %zero
               OpReturn
               OpFunctionEnd
         %fs = OpFunction %void None %fn
         %l2 = OpLabel
               OpStore %color %one
               OpReturn
               OpFunctionEnd
        %fs2 = OpFunction %void None %fn
         %l3 = OpLabel
               OpStore %color %zero
               OpReturn
               OpFunctionEnd
`

func TestCompileAssembly(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*CompileOptions)
		contains []string
	}{
		{
			name:     "first entry point",
			modify:   func(*CompileOptions) {},
			contains: []string{"vertex main0_out main0(", "[[position]]"},
		},
		{
			name: "stage disambiguates",
			modify: func(o *CompileOptions) {
				o.EntryPoint = "main"
				o.Stage = spirv.ExecutionModelFragment
				o.HasStage = true
			},
			contains: []string{"fragment main0_out main0(", "[[color(0)]]"},
		},
		{
			name:     "by name",
			modify:   func(o *CompileOptions) { o.EntryPoint = "tint" },
			contains: []string{"fragment tint_out tint(", "0.0, 0.0, 0.0, 1.0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			out, info, err := CompileAssembly("two.spvasm", twoStages, opts)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			assert.NotEmpty(t, info.EntryPointName)
		})
	}
}

func TestCompileAssembly_Errors(t *testing.T) {
	t.Run("parse", func(t *testing.T) {
		_, _, err := CompileAssembly("bad.spvasm", "%x = OpBogus\n", DefaultOptions())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse error")
		var asmErr *asm.Error
		assert.ErrorAs(t, err, &asmErr)
	})

	t.Run("unknown entry point", func(t *testing.T) {
		opts := DefaultOptions()
		opts.EntryPoint = "missing"
		_, _, err := CompileAssembly("two.spvasm", twoStages, opts)
		require.Error(t, err)
		kind, ok := msl.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, msl.ErrEntryPointNotFound, kind)
	})

	t.Run("translation", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MSL.UseArgumentBuffers = true
		opts.MSL.LangVersion = msl.Version1_2
		_, _, err := CompileAssembly("two.spvasm", twoStages, opts)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "translation error")
		kind, ok := msl.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, msl.ErrCapabilityMismatch, kind)
	})
}

func TestPipeline(t *testing.T) {
	m, err := asm.Parse("two.spvasm", twoStages)
	require.NoError(t, err)

	p, err := Pipeline(m, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, p.EntryPoint)

	opts := DefaultOptions()
	opts.EntryPoint = "tint"
	p, err = Pipeline(m, opts)
	require.NoError(t, err)
	require.NotNil(t, p.EntryPoint)
	assert.Equal(t, msl.EntryPointSelector{Stage: spirv.ExecutionModelFragment, Name: "tint"}, *p.EntryPoint)
}
