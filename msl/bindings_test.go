package msl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/spvmsl/spirv"
)

func TestSlotAllocator(t *testing.T) {
	a := newSlotAllocator()
	a.reserve(slotBuffer, 1, 1)
	a.reserve(slotBuffer, 3, 2)

	assert.Equal(t, uint32(0), a.take(slotBuffer, 1))
	assert.Equal(t, uint32(2), a.take(slotBuffer, 1), "reserved slots are skipped")
	assert.Equal(t, uint32(5), a.take(slotBuffer, 2), "runs need consecutive free slots")
	assert.Equal(t, uint32(0), a.take(slotTexture, 1), "kinds count independently")
}

const resourceFragment = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint Fragment %main "main" %FragColor
               OpExecutionMode %main OriginUpperLeft
               OpName %tex "tex"
               OpName %smp "smp"
               OpName %ubo "ubo"
               OpName %FragColor "FragColor"
               OpDecorate %FragColor Location 0
               OpDecorate %tex DescriptorSet 0
               OpDecorate %tex Binding 1
               OpDecorate %smp DescriptorSet 0
               OpDecorate %smp Binding 2
               OpDecorate %ubo DescriptorSet 1
               OpDecorate %ubo Binding 0
               OpMemberDecorate %UBO 0 Offset 0
               OpDecorate %UBO Block
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
      %float = OpTypeFloat 32
    %v2float = OpTypeVector %float 2
    %v4float = OpTypeVector %float 4
        %img = OpTypeImage %float 2D 0 0 0 1 Unknown
    %sampler = OpTypeSampler
    %sampled = OpTypeSampledImage %img
    %ptr_img = OpTypePointer UniformConstant %img
    %ptr_smp = OpTypePointer UniformConstant %sampler
        %tex = OpVariable %ptr_img UniformConstant
        %smp = OpVariable %ptr_smp UniformConstant
        %UBO = OpTypeStruct %v4float
    %ptr_ubo = OpTypePointer Uniform %UBO
        %ubo = OpVariable %ptr_ubo Uniform
  %ptr_u_v4 = OpTypePointer Uniform %v4float
    %ptr_out = OpTypePointer Output %v4float
  %FragColor = OpVariable %ptr_out Output
       %uint = OpTypeInt 32 0
     %uint_0 = OpConstant %uint 0
    %float_h = OpConstant %float 0.5
      %coord = OpConstantComposite %v2float %float_h %float_h
       %main = OpFunction %void None %fn
      %entry = OpLabel
          %t = OpLoad %img %tex
          %s = OpLoad %sampler %smp
         %si = OpSampledImage %sampled %t %s
          %c = OpImageSampleImplicitLod %v4float %si %coord
         %up = OpAccessChain %ptr_u_v4 %ubo %uint_0
          %u = OpLoad %v4float %up
          %r = OpFMul %v4float %c %u
               OpStore %FragColor %r
               OpReturn
               OpFunctionEnd
`

func TestResourceAssignment(t *testing.T) {
	m := parse(t, resourceFragment)
	tex, smp, ubo := idByName(t, m, "tex"), idByName(t, m, "smp"), idByName(t, m, "ubo")

	t.Run("automatic", func(t *testing.T) {
		c, err := NewCompiler(m, DefaultOptions(), PipelineOptions{})
		require.NoError(t, err)
		out, err := c.Compile()
		require.NoError(t, err)

		assert.Contains(t, out, "metal::texture2d<float, metal::access::sample> tex [[texture(0)]]")
		assert.Contains(t, out, "sampler smp [[sampler(0)]]")
		assert.Contains(t, out, "constant UBO& ubo [[buffer(0)]]")
		assert.Contains(t, out, "tex.sample(smp, ")

		idx, ok := c.AutomaticResourceIndex(tex, ResourceTexture)
		require.True(t, ok)
		assert.Equal(t, uint32(0), idx)
		idx, ok = c.AutomaticResourceIndex(smp, ResourceSampler)
		require.True(t, ok)
		assert.Equal(t, uint32(0), idx)
		idx, ok = c.AutomaticResourceIndex(ubo, ResourceBuffer)
		require.True(t, ok)
		assert.Equal(t, uint32(0), idx)
	})

	t.Run("table wins and automatic slots skip it", func(t *testing.T) {
		table := BindingTable{
			{Stage: spirv.ExecutionModelFragment, DescriptorSet: 0, Binding: 1}: {Texture: Slot(0)},
			{Stage: spirv.ExecutionModelFragment, DescriptorSet: 7, Binding: 7}: {Buffer: Slot(0)},
		}
		c, err := NewCompiler(m, DefaultOptions(), PipelineOptions{Bindings: table})
		require.NoError(t, err)
		out, err := c.Compile()
		require.NoError(t, err)

		assert.Contains(t, out, "tex [[texture(0)]]")
		assert.Contains(t, out, "ubo [[buffer(1)]]")
		_, ok := c.AutomaticResourceIndex(tex, ResourceTexture)
		assert.False(t, ok)
		idx, ok := c.AutomaticResourceIndex(ubo, ResourceBuffer)
		require.True(t, ok)
		assert.Equal(t, uint32(1), idx)
	})

	t.Run("argument buffers", func(t *testing.T) {
		options := DefaultOptions()
		options.UseArgumentBuffers = true
		out, _, err := Compile(m, options, PipelineOptions{})
		require.NoError(t, err)

		assert.Contains(t, out, "struct spvDescriptorSetBuffer0")
		assert.Contains(t, out, "struct spvDescriptorSetBuffer1")
		assert.Contains(t, out, "constant spvDescriptorSetBuffer0& spvDescriptorSet0 [[buffer(0)]]")
		assert.Contains(t, out, "constant spvDescriptorSetBuffer1& spvDescriptorSet1 [[buffer(1)]]")
		assert.Contains(t, out, "spvDescriptorSet0.tex")
	})
}

func TestClassifyResource(t *testing.T) {
	m := parse(t, resourceFragment)
	tests := []struct {
		name string
		want resourceClass
	}{
		{"tex", resourceClass{texture: true, count: 1}},
		{"smp", resourceClass{sampler: true, count: 1}},
		{"ubo", resourceClass{buffer: true, count: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, ok := classifyResource(m, m.Variable(idByName(t, m, tt.name)))
			require.True(t, ok)
			assert.Equal(t, tt.want, rc)
		})
	}
	_, ok := classifyResource(m, m.Variable(idByName(t, m, "FragColor")))
	assert.False(t, ok)
}
