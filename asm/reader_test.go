package asm

import (
	"math"
	"testing"

	"github.com/alecthomas/participle/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

const fragmentSource = `
; SPIR-V
; Version: 1.0
               OpCapability Shader
          %1 = OpExtInstImport "GLSL.std.450"
               OpMemoryModel Logical GLSL450
               OpEntryPoint Fragment %main "main" %gl_FragCoord %color
               OpExecutionMode %main OriginUpperLeft
               OpName %main "main"
               OpName %color "color"
               OpDecorate %gl_FragCoord BuiltIn FragCoord
               OpDecorate %color Location 0
               OpMemberDecorate %UBO 0 Offset 0
               OpMemberDecorate %UBO 1 Offset 16
               OpDecorate %UBO Block
       %void = OpTypeVoid
         %fn = OpTypeFunction %void
      %float = OpTypeFloat 32
       %uint = OpTypeInt 32 0
        %int = OpTypeInt 32 1
    %v4float = OpTypeVector %float 4
%mat4v4float = OpTypeMatrix %v4float 4
     %uint_3 = OpConstant %uint 3
     %int_m1 = OpConstant %int -1
    %float_h = OpConstant %float 0.5
    %arr = OpTypeArray %v4float %uint_3
    %UBO = OpTypeStruct %v4float %mat4v4float
%_ptr_Input_v4float = OpTypePointer Input %v4float
%_ptr_Output_v4float = OpTypePointer Output %v4float
%gl_FragCoord = OpVariable %_ptr_Input_v4float Input
      %color = OpVariable %_ptr_Output_v4float Output
       %main = OpFunction %void None %fn
      %entry = OpLabel
         %10 = OpLoad %v4float %gl_FragCoord
         %11 = OpExtInst %v4float %1 Normalize %10
               OpStore %color %11
               OpReturn
               OpFunctionEnd
`

func TestParse_Fragment(t *testing.T) {
	m, err := Parse("frag.spvasm", fragmentSource)
	require.NoError(t, err)

	assert.Equal(t, []string{"Shader"}, m.Capabilities)
	require.Len(t, m.EntryPoints, 1)
	ep := m.EntryPoints[0]
	assert.Equal(t, "main", ep.Name)
	assert.Equal(t, spirv.ExecutionModelFragment, ep.Model)
	assert.Len(t, ep.Interface, 2)
	assert.True(t, ep.Modes.Has(uint32(spirv.ExecutionModeOriginUpperLeft)))

	fragCoord := ep.Interface[0]
	v := m.Variable(fragCoord)
	require.NotNil(t, v)
	assert.Equal(t, spirv.StorageClassInput, v.Storage)
	bi, ok := m.BuiltIn(fragCoord)
	require.True(t, ok)
	assert.Equal(t, spirv.BuiltInFragCoord, bi)

	color := ep.Interface[1]
	assert.Equal(t, "color", m.Name(color))
	assert.Equal(t, uint32(0), m.Decoration(color, spirv.DecorationLocation))
	assert.True(t, m.HasDecoration(color, spirv.DecorationLocation))

	vt := m.ValueType(color)
	require.NotNil(t, vt)
	assert.True(t, vt.IsVector())
	assert.Equal(t, ir.BaseFloat, vt.Base)
	assert.Equal(t, uint32(4), vt.VecSize)

	fn := m.Function(ep.Function)
	require.NotNil(t, fn)
	require.Len(t, fn.Blocks, 1)
	b := m.Block(fn.EntryBlock)
	require.NotNil(t, b)
	assert.Equal(t, ir.TermReturn, b.Terminator)
	require.Len(t, b.Ops, 3)
	assert.Equal(t, spirv.OpLoad, b.Ops[0].Op)
	assert.Equal(t, []uint32{uint32(fragCoord)}, b.Ops[0].Operands)
	assert.Equal(t, spirv.OpExtInst, b.Ops[1].Op)
	assert.Equal(t, uint32(spirv.GLSLstd450Normalize), b.Ops[1].Operands[1])
	assert.Equal(t, spirv.OpStore, b.Ops[2].Op)
	assert.Equal(t, "", m.Name(b.Ops[0].Result), "numeric names are not kept")
}

func TestParse_TypesAndConstants(t *testing.T) {
	m, err := Parse("frag.spvasm", fragmentSource)
	require.NoError(t, err)

	byName := func(name string) ir.ID {
		for _, id := range m.IDs() {
			if m.Name(id) == name {
				return id
			}
		}
		t.Fatalf("no id named %s", name)
		return 0
	}

	arr := m.Type(byName("arr"))
	require.NotNil(t, arr)
	assert.True(t, arr.IsArray())
	assert.Equal(t, uint32(3), arr.OuterArraySize())
	assert.True(t, arr.ArrayLiteral[0])

	mat := m.Type(byName("mat4v4float"))
	require.NotNil(t, mat)
	assert.True(t, mat.IsMatrix())
	assert.Equal(t, uint32(4), mat.Columns)

	ubo := byName("UBO")
	assert.True(t, m.Type(ubo).IsStruct())
	assert.True(t, m.HasDecoration(ubo, spirv.DecorationBlock))
	assert.Equal(t, uint32(16), m.MemberDecoration(ubo, 1, spirv.DecorationOffset))

	assert.Equal(t, uint64(0xffffffff), m.Constant(byName("int_m1")).Scalar)
	assert.Equal(t, uint64(math.Float32bits(0.5)), m.Constant(byName("float_h")).Scalar)

	assert.Equal(t, ir.BaseInt, m.Type(byName("int")).Base)
	assert.Equal(t, ir.BaseUInt, m.Type(byName("uint")).Base)
}

func TestParse_ControlFlow(t *testing.T) {
	src := `
OpCapability Shader
OpEntryPoint GLCompute %main "main"
OpExecutionMode %main LocalSize 8 4 1
%void = OpTypeVoid
%bool = OpTypeBool
%fn = OpTypeFunction %void
%true = OpConstantTrue %bool
%uint = OpTypeInt 32 0
%u0 = OpConstant %uint 0
%main = OpFunction %void None %fn
%entry = OpLabel
OpSelectionMerge %merge None
OpBranchConditional %true %then %merge
%then = OpLabel
OpSelectionMerge %after None
OpSwitch %u0 %after 1 %case1 2 %after
%case1 = OpLabel
OpBranch %after
%after = OpLabel
OpBranch %merge
%merge = OpLabel
OpReturn
OpFunctionEnd`

	m, err := Parse("cf.spvasm", src)
	require.NoError(t, err)

	ep := m.EntryPoints[0]
	assert.Equal(t, [3]uint32{8, 4, 1}, ep.Workgroup)

	fn := m.Function(ep.Function)
	require.Len(t, fn.Blocks, 5)
	entry := m.Block(fn.Blocks[0])
	assert.Equal(t, ir.TermSelect, entry.Terminator)
	assert.Equal(t, ir.MergeSelection, entry.Merge)
	assert.Equal(t, fn.Blocks[4], entry.MergeBlock)
	assert.Equal(t, fn.Blocks[1], entry.TrueBlock)

	sw := m.Block(fn.Blocks[1])
	assert.Equal(t, ir.TermMultiSelect, sw.Terminator)
	require.Len(t, sw.Cases, 2)
	assert.Equal(t, uint32(1), sw.Cases[0].Value)
	assert.Equal(t, fn.Blocks[2], sw.Cases[0].Block)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"unknown opcode", "OpBogus %x", "unknown opcode OpBogus"},
		{"missing result", "OpTypeVoid", "needs a result id"},
		{"unknown builtin", "%v = OpTypeVoid\nOpDecorate %v BuiltIn NotABuiltin", "unknown builtin"},
		{"unterminated block", "%void = OpTypeVoid\n%fn = OpTypeFunction %void\n%f = OpFunction %void None %fn\n%l = OpLabel\nOpFunctionEnd", "not terminated"},
		{"kind conflict", "%a = OpTypeVoid\n%a = OpUndef %a", "kind conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.spvasm", tt.source)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_SyntaxErrorHasPosition(t *testing.T) {
	_, err := Parse("bad.spvasm", "%x = = OpTypeVoid")
	require.Error(t, err)

	var perr participle.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Position().Line)
}
