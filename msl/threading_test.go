package msl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperCompute = `
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpEntryPoint GLCompute %main "main"
               OpExecutionMode %main LocalSize 1 1 1
               OpMemberName %Buf 0 "data"
               OpDecorate %rta ArrayStride 4
               OpMemberDecorate %Buf 0 Offset 0
               OpDecorate %Buf Block
               OpDecorate %buf DescriptorSet 0
               OpDecorate %buf Binding 0
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
       %uint = OpTypeInt 32 0
        %rta = OpTypeRuntimeArray %uint
        %Buf = OpTypeStruct %rta
     %ptr_sb = OpTypePointer StorageBuffer %Buf
        %buf = OpVariable %ptr_sb StorageBuffer
%ptr_sb_uint = OpTypePointer StorageBuffer %uint
   %ptr_priv = OpTypePointer Private %uint
    %counter = OpVariable %ptr_priv Private
     %uint_0 = OpConstant %uint 0
     %uint_1 = OpConstant %uint 1
       %bump = OpFunction %void None %fn
      %start = OpLabel
          %c = OpLoad %uint %counter
          %n = OpIAdd %uint %c %uint_1
               OpStore %counter %n
          %p = OpAccessChain %ptr_sb_uint %buf %uint_0 %c
               OpStore %p %n
               OpReturn
               OpFunctionEnd
       %main = OpFunction %void None %fn
      %entry = OpLabel
         %r1 = OpFunctionCall %void %bump
         %r2 = OpFunctionCall %void %bump
               OpReturn
               OpFunctionEnd
`

func TestThreading_HelperCalledTwice(t *testing.T) {
	m := parse(t, helperCompute)
	c, err := NewCompiler(m, DefaultOptions(), PipelineOptions{})
	require.NoError(t, err)
	out, err := c.Compile()
	require.NoError(t, err)

	assert.Contains(t, out, "void bump(device Buf& buf, thread uint& counter)")
	assert.Equal(t, 1, strings.Count(out, "void bump(device Buf& buf, thread uint& counter);"), "one prototype")
	assert.Equal(t, 2, strings.Count(out, "bump(buf, counter);"), "both call sites pass the globals")
	assert.Contains(t, out, "device Buf& buf [[buffer(0)]]")
	assert.Equal(t, 1, c.Info().Passes)

	// Parameters follow global ID order whatever the use order is.
	params := c.last.plan.params[idByName(t, m, "bump")]
	require.Len(t, params, 2)
	assert.Equal(t, idByName(t, m, "buf"), params[0].global)
	assert.Equal(t, idByName(t, m, "counter"), params[1].global)
}
