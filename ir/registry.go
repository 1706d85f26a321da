package ir

import (
	"strconv"

	"github.com/gogpu/spvmsl/spirv"
)

// typeKey creates a unique key for a type based on its structure. Two
// structurally identical types produce the same key. Structs are keyed by
// identity since SPIR-V treats distinct struct declarations as distinct
// types even when they match member by member.
func typeKey(t *Type, buf []byte) []byte {
	b := buf[:0]
	if t.Base == BaseStruct && len(t.Array) == 0 && !t.Pointer {
		b = append(b, "struct:"...)
		return strconv.AppendUint(b, uint64(t.Self), 10)
	}
	b = append(b, "t:"...)
	b = strconv.AppendUint(b, uint64(t.Base), 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, uint64(t.Width), 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, uint64(t.VecSize), 10)
	b = append(b, 'x')
	b = strconv.AppendUint(b, uint64(t.Columns), 10)
	for i, n := range t.Array {
		b = append(b, "[]"...)
		if t.ArrayLiteral[i] {
			b = append(b, '#')
		}
		b = strconv.AppendUint(b, uint64(n), 10)
	}
	if t.Pointer {
		b = append(b, ":ptr:"...)
		b = strconv.AppendUint(b, uint64(t.Storage), 10)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(t.PointerDepth), 10)
	}
	if t.Parent != 0 {
		b = append(b, ":p"...)
		b = strconv.AppendUint(b, uint64(t.Parent), 10)
	}
	switch t.Base {
	case BaseImage, BaseSampledImage:
		im := t.Image
		b = append(b, ":img:"...)
		b = strconv.AppendUint(b, uint64(im.SampledType), 10)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(im.Dim), 10)
		b = strconv.AppendBool(append(b, ':'), im.Depth)
		b = strconv.AppendBool(append(b, ':'), im.Arrayed)
		b = strconv.AppendBool(append(b, ':'), im.MS)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(im.Sampled), 10)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(im.Format), 10)
	case BaseFunction:
		b = append(b, ":fn:"...)
		b = strconv.AppendUint(b, uint64(t.Result), 10)
		for _, p := range t.Members {
			b = append(b, ',')
			b = strconv.AppendUint(b, uint64(p), 10)
		}
	}
	return b
}

// InternType returns the ID of a type structurally equal to t, creating it
// if no such type exists yet. The Self field of t is ignored.
func (m *Module) InternType(t Type) ID {
	if m.typeIndex == nil {
		m.rebuildTypeIndex()
	}
	if t.Base == BaseStruct && len(t.Array) == 0 && !t.Pointer {
		return m.addType(t)
	}
	m.keyBuf = typeKey(&t, m.keyBuf)
	if id, ok := m.typeIndex[string(m.keyBuf)]; ok {
		return id
	}
	return m.addType(t)
}

func (m *Module) addType(t Type) ID {
	id := m.Add(func(id ID) Entity {
		t.Self = id
		return &t
	})
	m.indexType(&t)
	return id
}

// indexType records t in the dedup index. Types read by the assembly reader
// are registered as they are stored so later interning finds them.
func (m *Module) indexType(t *Type) {
	if m.typeIndex == nil {
		m.typeIndex = make(map[string]ID)
	}
	m.keyBuf = typeKey(t, m.keyBuf)
	key := string(m.keyBuf)
	if _, ok := m.typeIndex[key]; !ok {
		m.typeIndex[key] = t.Self
	}
}

func (m *Module) rebuildTypeIndex() {
	m.typeIndex = make(map[string]ID)
	for _, e := range m.entities {
		if t, ok := e.(*Type); ok {
			m.indexType(t)
		}
	}
}

// PointerTo interns a pointer to the type pointee in storage class sc.
func (m *Module) PointerTo(pointee ID, sc spirv.StorageClass) ID {
	base := m.Type(pointee)
	p := *base
	p.Pointer = true
	p.PointerDepth = base.PointerDepth + 1
	p.Storage = sc
	p.Parent = pointee
	return m.InternType(p)
}

// ArrayOf interns a literal-sized array of elem with n elements.
// n == 0 produces a runtime-sized array.
func (m *Module) ArrayOf(elem ID, n uint32) ID {
	base := m.Type(elem)
	a := *base
	a.Array = append(append([]uint32(nil), base.Array...), n)
	a.ArrayLiteral = append(append([]bool(nil), base.ArrayLiteral...), true)
	a.Parent = elem
	return m.InternType(a)
}

// Scalar interns a scalar type.
func (m *Module) Scalar(base BaseType, width uint32) ID {
	return m.InternType(Type{Base: base, Width: width, VecSize: 1, Columns: 1})
}

// Vector interns a vector type.
func (m *Module) Vector(base BaseType, width, n uint32) ID {
	return m.InternType(Type{Base: base, Width: width, VecSize: n, Columns: 1})
}

// Matrix interns a matrix of cols columns, each a vector of rows elements.
func (m *Module) Matrix(base BaseType, width, rows, cols uint32) ID {
	return m.InternType(Type{Base: base, Width: width, VecSize: rows, Columns: cols})
}
