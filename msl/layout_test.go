package msl

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// layoutModule declares struct S with the given member types and
// decorations, next to an array %arrS of four S.
func layoutModule(members, decorations string) string {
	return fmt.Sprintf(`
               OpCapability Shader
               OpMemoryModel Logical GLSL450
               OpName %%S "S"
               OpName %%arr "arr"
%s
      %%float = OpTypeFloat 32
    %%v2float = OpTypeVector %%float 2
    %%v3float = OpTypeVector %%float 3
    %%v4float = OpTypeVector %%float 4
       %%mat2 = OpTypeMatrix %%v2float 2
       %%uint = OpTypeInt 32 0
     %%uint_4 = OpConstant %%uint 4
        %%arr = OpTypeArray %%float %%uint_4
          %%S = OpTypeStruct %s
       %%arrS = OpTypeArray %%S %%uint_4
`, decorations, members)
}

func TestLayoutRepresentations(t *testing.T) {
	tests := []struct {
		name        string
		members     string
		decorations string
		want        repr
	}{
		{
			name:    "vec3 followed at 16",
			members: "%v3float %float",
			decorations: `OpMemberDecorate %S 0 Offset 0
OpMemberDecorate %S 1 Offset 16`,
			want: repr{kind: reprNatural},
		},
		{
			name:    "vec3 followed at 12",
			members: "%v3float %float",
			decorations: `OpMemberDecorate %S 0 Offset 0
OpMemberDecorate %S 1 Offset 12`,
			want: repr{kind: reprPacked},
		},
		{
			name:    "vec3 followed at 8",
			members: "%v3float %float",
			decorations: `OpMemberDecorate %S 0 Offset 0
OpMemberDecorate %S 1 Offset 8`,
			want: repr{kind: reprShrunk, stored: 2},
		},
		{
			name:    "float array with stride 16",
			members: "%arr",
			decorations: `OpMemberDecorate %S 0 Offset 0
OpDecorate %arr ArrayStride 16`,
			want: repr{kind: reprWidened, stored: 4},
		},
		{
			name:    "float array with stride 4",
			members: "%arr",
			decorations: `OpMemberDecorate %S 0 Offset 0
OpDecorate %arr ArrayStride 4`,
			want: repr{kind: reprNatural},
		},
		{
			name:    "mat2 with column stride 16",
			members: "%mat2",
			decorations: `OpMemberDecorate %S 0 Offset 0
OpMemberDecorate %S 0 ColMajor
OpMemberDecorate %S 0 MatrixStride 16`,
			want: repr{kind: reprWidenedColumns, stored: 4},
		},
		{
			name:    "row major mat2",
			members: "%mat2",
			decorations: `OpMemberDecorate %S 0 Offset 0
OpMemberDecorate %S 0 RowMajor
OpMemberDecorate %S 0 MatrixStride 8`,
			want: repr{kind: reprNatural, transposed: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := parse(t, layoutModule(tt.members, tt.decorations))
			ls := newLayoutSet(m)
			require.NoError(t, ls.normalize())
			s := idByName(t, m, "S")
			assert.Equal(t, tt.want, ls.memberRepr(s, 0))
		})
	}
}

func TestLayoutArrayRepr(t *testing.T) {
	m := parse(t, layoutModule("%arr", `OpMemberDecorate %S 0 Offset 0
OpDecorate %arr ArrayStride 16`))
	ls := newLayoutSet(m)
	require.NoError(t, ls.normalize())
	assert.Equal(t, repr{kind: reprWidened, stored: 4}, ls.arrayRepr(idByName(t, m, "arr")))
}

func TestLayoutTailPadding(t *testing.T) {
	m := parse(t, layoutModule("%v4float", `OpMemberDecorate %S 0 Offset 0
OpDecorate %arrS ArrayStride 32`))
	ls := newLayoutSet(m)
	require.NoError(t, ls.normalize())

	l := ls.structs[idByName(t, m, "S")]
	require.NotNil(t, l)
	assert.Equal(t, uint32(32), l.size)
	assert.Equal(t, uint32(16), l.tailPad)
}

func TestLayoutUnrepresentable(t *testing.T) {
	tests := []struct {
		name        string
		members     string
		decorations string
	}{
		{
			name:        "misaligned vec4",
			members:     "%float %v4float",
			decorations: "OpMemberDecorate %S 0 Offset 0\nOpMemberDecorate %S 1 Offset 2",
		},
		{
			name:        "array stride 12",
			members:     "%arr",
			decorations: "OpMemberDecorate %S 0 Offset 0\nOpDecorate %arr ArrayStride 12",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := parse(t, layoutModule(tt.members, tt.decorations))
			err := newLayoutSet(m).normalize()
			require.Error(t, err)
			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, ErrUnsupportedConstruct, kind)
			assert.Contains(t, err.Error(), "cannot represent layout")
		})
	}
}

func TestVectorPlacement(t *testing.T) {
	tests := []struct {
		n, w   uint32
		packed bool
		want   placement
	}{
		{2, 4, false, placement{size: 8, align: 8}},
		{3, 4, false, placement{size: 16, align: 16}},
		{3, 4, true, placement{size: 12, align: 4}},
		{4, 2, false, placement{size: 8, align: 8}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%d packed=%v", tt.n, tt.w, tt.packed), func(t *testing.T) {
			assert.Equal(t, tt.want, vectorPlacement(tt.n, tt.w, tt.packed))
		})
	}
	assert.Equal(t, uint32(16), alignUp(13, 16))
	assert.Equal(t, uint32(7), alignUp(7, 1))
}
