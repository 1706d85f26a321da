package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/spvmsl/spirv"
)

func TestModule_ReserveIsMonotonic(t *testing.T) {
	m := NewModule()

	first := m.Reserve(3)
	second := m.Reserve(1)
	third := m.Reserve(2)

	assert.Equal(t, ID(1), first)
	assert.Equal(t, ID(4), second)
	assert.Equal(t, ID(5), third)
	assert.Equal(t, ID(7), m.Bound())
	assert.False(t, m.Reserved(0))
	assert.True(t, m.Reserved(6))
	assert.False(t, m.Reserved(7))
}

func TestModule_SetRejectsKindChange(t *testing.T) {
	m := NewModule()
	id := m.Reserve(1)

	require.NoError(t, m.Set(id, &Type{Self: id, Base: BaseFloat, Width: 32, VecSize: 1, Columns: 1}))
	// Same kind may be replaced.
	require.NoError(t, m.Set(id, &Type{Self: id, Base: BaseInt, Width: 32, VecSize: 1, Columns: 1}))

	err := m.Set(id, &Variable{Self: id})
	require.ErrorIs(t, err, ErrKindConflict)
	assert.Equal(t, BaseInt, m.Type(id).Base)
}

func TestModule_SetRejectsUnreserved(t *testing.T) {
	m := NewModule()
	err := m.Set(5, &Undef{Self: 5})
	require.ErrorIs(t, err, ErrUnreserved)
}

func TestModule_TypedGetters(t *testing.T) {
	m := NewModule()
	f32 := m.Scalar(BaseFloat, 32)
	ptr := m.PointerTo(f32, spirv.StorageClassPrivate)
	v := m.Add(func(id ID) Entity {
		return &Variable{Self: id, Type: ptr, Storage: spirv.StorageClassPrivate}
	})

	assert.NotNil(t, m.Type(f32))
	assert.Nil(t, m.Variable(f32))
	assert.NotNil(t, m.Variable(v))
	assert.Nil(t, m.Function(v))
	assert.Equal(t, f32, m.ValueType(v).Self)
	assert.Len(t, m.Variables(), 1)
}

func TestModule_Decorations(t *testing.T) {
	m := NewModule()
	id := m.Reserve(1)

	m.Decorate(id, spirv.DecorationLocation, 3)
	m.Decorate(id, spirv.DecorationFlat, 0)
	m.DecorateMember(id, 2, spirv.DecorationOffset, 16)
	m.DecorateMember(id, 1, spirv.DecorationBuiltIn, uint32(spirv.BuiltInPosition))
	m.SetName(id, "v")
	m.SetMemberName(id, 2, "c")

	assert.True(t, m.HasDecoration(id, spirv.DecorationLocation))
	assert.Equal(t, uint32(3), m.Decoration(id, spirv.DecorationLocation))
	assert.True(t, m.HasDecoration(id, spirv.DecorationFlat))
	assert.False(t, m.HasDecoration(id, spirv.DecorationCentroid))
	assert.Equal(t, uint32(16), m.MemberDecoration(id, 2, spirv.DecorationOffset))
	assert.False(t, m.HasMemberDecoration(id, 0, spirv.DecorationOffset))

	bi, ok := m.MemberBuiltIn(id, 1)
	require.True(t, ok)
	assert.Equal(t, spirv.BuiltInPosition, bi)
	_, ok = m.BuiltIn(id)
	assert.False(t, ok)

	assert.Equal(t, "v", m.Name(id))
	assert.Equal(t, "c", m.MemberName(id, 2))
	assert.Equal(t, "", m.MemberName(id, 7))
}

func TestModule_InternType(t *testing.T) {
	m := NewModule()

	f32a := m.Scalar(BaseFloat, 32)
	f32b := m.Scalar(BaseFloat, 32)
	i32 := m.Scalar(BaseInt, 32)
	v4a := m.Vector(BaseFloat, 32, 4)
	v4b := m.Vector(BaseFloat, 32, 4)
	v3 := m.Vector(BaseFloat, 32, 3)
	arr := m.ArrayOf(v4a, 4)
	arr2 := m.ArrayOf(v4b, 4)
	ptrIn := m.PointerTo(v4a, spirv.StorageClassInput)
	ptrOut := m.PointerTo(v4a, spirv.StorageClassOutput)

	assert.Equal(t, f32a, f32b)
	assert.NotEqual(t, f32a, i32)
	assert.Equal(t, v4a, v4b)
	assert.NotEqual(t, v4a, v3)
	assert.Equal(t, arr, arr2)
	assert.NotEqual(t, ptrIn, ptrOut)

	at := m.Type(arr)
	assert.True(t, at.IsArray())
	assert.Equal(t, uint32(4), at.OuterArraySize())
	assert.Equal(t, uint32(4), at.VecSize, "arrays keep their element shape")
	assert.Equal(t, v4a, at.Parent)
}

func TestModule_InternTypeStructsAreDistinct(t *testing.T) {
	m := NewModule()
	f32 := m.Scalar(BaseFloat, 32)

	a := m.InternType(Type{Base: BaseStruct, Members: []ID{f32}})
	b := m.InternType(Type{Base: BaseStruct, Members: []ID{f32}})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, m.ArrayOf(a, 2), m.ArrayOf(b, 2))
}

func TestModule_InternTypeSeesStoredTypes(t *testing.T) {
	m := NewModule()
	id := m.Reserve(1)
	require.NoError(t, m.Set(id, &Type{Self: id, Base: BaseUInt, Width: 32, VecSize: 1, Columns: 1}))

	assert.Equal(t, id, m.Scalar(BaseUInt, 32))
}

func TestModule_VisitTypeTerminatesOnCycles(t *testing.T) {
	m := NewModule()
	f32 := m.Scalar(BaseFloat, 32)

	// struct Node { float value; Node* next; }
	node := m.Reserve(1)
	ptr := m.Reserve(1)
	require.NoError(t, m.Set(node, &Type{Self: node, Base: BaseStruct, Members: []ID{f32, ptr}}))
	require.NoError(t, m.Set(ptr, &Type{
		Self: ptr, Base: BaseStruct, Pointer: true, PointerDepth: 1,
		Storage: spirv.StorageClassPhysicalStorageBuffer, Parent: node,
	}))

	var visited []ID
	m.VisitType(node, func(t *Type) bool {
		visited = append(visited, t.Self)
		return true
	})

	assert.Equal(t, []ID{node, f32, ptr}, visited)
	assert.True(t, m.ContainsType(node, func(t *Type) bool { return t.Pointer }))
	assert.False(t, m.ContainsType(f32, func(t *Type) bool { return t.Pointer }))
}

func TestModule_CloneIsIndependent(t *testing.T) {
	m := NewModule()
	f32 := m.Scalar(BaseFloat, 32)
	arr := m.ArrayOf(f32, 3)
	m.Decorate(arr, spirv.DecorationArrayStride, 4)
	fn := m.Add(func(id ID) Entity { return &Function{Self: id} })
	m.EntryPoints = append(m.EntryPoints, EntryPoint{Name: "main", Function: fn, Interface: []ID{f32}})

	c := m.Clone()
	c.Type(arr).Array[0] = 9
	c.Decorate(arr, spirv.DecorationArrayStride, 16)
	c.EntryPoints[0].Interface = append(c.EntryPoints[0].Interface, arr)
	extra := c.Reserve(4)

	assert.Equal(t, uint32(3), m.Type(arr).Array[0])
	assert.Equal(t, uint32(4), m.Decoration(arr, spirv.DecorationArrayStride))
	assert.Len(t, m.EntryPoints[0].Interface, 1)
	assert.Equal(t, m.Bound(), extra)
	assert.Equal(t, f32, c.Scalar(BaseFloat, 32), "clone keeps interned types")
}

func TestModule_Reachable(t *testing.T) {
	m := NewModule()
	ids := m.Reserve(6)
	mainFn, a, b, c := ids, ids+1, ids+2, ids+3
	mainBlock, aBlock := ids+4, ids+5

	call := func(callee ID) Instruction {
		return Instruction{Op: spirv.OpFunctionCall, Operands: []uint32{uint32(callee)}}
	}
	require.NoError(t, m.Set(mainBlock, &Block{Self: mainBlock, Ops: []Instruction{call(a), call(b), call(a)}}))
	require.NoError(t, m.Set(aBlock, &Block{Self: aBlock, Ops: []Instruction{call(c), call(a)}}))
	require.NoError(t, m.Set(mainFn, &Function{Self: mainFn, Blocks: []ID{mainBlock}}))
	require.NoError(t, m.Set(a, &Function{Self: a, Blocks: []ID{aBlock}}))
	require.NoError(t, m.Set(b, &Function{Self: b}))
	require.NoError(t, m.Set(c, &Function{Self: c}))

	assert.Equal(t, []ID{a, b}, m.Callees(m.Function(mainFn)))
	assert.Equal(t, []ID{mainFn, a, c, b}, m.Reachable(mainFn))
}

func TestBitset(t *testing.T) {
	var b Bitset
	b.Set(3)
	b.Set(63)
	b.Set(4440)
	b.Set(3)

	assert.Equal(t, 3, b.Len())
	assert.True(t, b.Has(63))
	assert.True(t, b.Has(4440))
	assert.False(t, b.Has(64))
	assert.Equal(t, []uint32{3, 63, 4440}, b.Values())

	c := b.Clone()
	c.Clear(4440)
	assert.True(t, b.Has(4440))
	assert.True(t, b.Contains(c))
	assert.False(t, c.Contains(b))

	var d Bitset
	assert.True(t, d.Empty())
	d.Merge(b)
	assert.Equal(t, b.Values(), d.Values())
}
