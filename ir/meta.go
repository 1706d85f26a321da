package ir

import (
	"math/bits"
	"slices"

	"github.com/gogpu/spvmsl/spirv"
)

// Bitset is a set of small unsigned values. Values below 64 live in a word,
// larger ones (vendor builtins, extension decorations) in a map.
type Bitset struct {
	lower  uint64
	higher map[uint32]struct{}
}

// Set adds v to the set.
func (b *Bitset) Set(v uint32) {
	if v < 64 {
		b.lower |= 1 << v
		return
	}
	if b.higher == nil {
		b.higher = make(map[uint32]struct{})
	}
	b.higher[v] = struct{}{}
}

// Clear removes v from the set.
func (b *Bitset) Clear(v uint32) {
	if v < 64 {
		b.lower &^= 1 << v
		return
	}
	delete(b.higher, v)
}

// Has reports whether v is in the set.
func (b Bitset) Has(v uint32) bool {
	if v < 64 {
		return b.lower&(1<<v) != 0
	}
	_, ok := b.higher[v]
	return ok
}

// Len returns the number of values in the set.
func (b Bitset) Len() int {
	return bits.OnesCount64(b.lower) + len(b.higher)
}

// Empty reports whether the set holds no value.
func (b Bitset) Empty() bool {
	return b.lower == 0 && len(b.higher) == 0
}

// Merge adds every value of other to b.
func (b *Bitset) Merge(other Bitset) {
	b.lower |= other.lower
	for v := range other.higher {
		b.Set(v)
	}
}

// Contains reports whether every value of other is also in b.
func (b Bitset) Contains(other Bitset) bool {
	if other.lower&^b.lower != 0 {
		return false
	}
	for v := range other.higher {
		if !b.Has(v) {
			return false
		}
	}
	return true
}

// Values returns the values in ascending order.
func (b Bitset) Values() []uint32 {
	out := make([]uint32, 0, b.Len())
	for w := b.lower; w != 0; w &= w - 1 {
		out = append(out, uint32(bits.TrailingZeros64(w)))
	}
	high := make([]uint32, 0, len(b.higher))
	for v := range b.higher {
		high = append(high, v)
	}
	slices.Sort(high)
	return append(out, high...)
}

// Clone returns an independent copy.
func (b Bitset) Clone() Bitset {
	c := Bitset{lower: b.lower}
	for v := range b.higher {
		c.Set(v)
	}
	return c
}

// Decoration holds the decorations of an ID or of one struct member.
// Flags records which decorations are present; the valued ones are stored
// in the matching field.
type Decoration struct {
	Name  string
	Flags Bitset

	BuiltIn              spirv.BuiltIn
	Location             uint32
	Component            uint32
	Index                uint32
	Binding              uint32
	DescriptorSet        uint32
	Offset               uint32
	ArrayStride          uint32
	MatrixStride         uint32
	InputAttachmentIndex uint32
	SpecID               uint32
}

// Has reports whether decoration d is present.
func (d *Decoration) Has(dec spirv.Decoration) bool {
	return d.Flags.Has(uint32(dec))
}

// Set records decoration dec with an optional value.
func (d *Decoration) Set(dec spirv.Decoration, value uint32) {
	d.Flags.Set(uint32(dec))
	switch dec {
	case spirv.DecorationBuiltIn:
		d.BuiltIn = spirv.BuiltIn(value)
	case spirv.DecorationLocation:
		d.Location = value
	case spirv.DecorationComponent:
		d.Component = value
	case spirv.DecorationIndex:
		d.Index = value
	case spirv.DecorationBinding:
		d.Binding = value
	case spirv.DecorationDescriptorSet:
		d.DescriptorSet = value
	case spirv.DecorationOffset:
		d.Offset = value
	case spirv.DecorationArrayStride:
		d.ArrayStride = value
	case spirv.DecorationMatrixStride:
		d.MatrixStride = value
	case spirv.DecorationInputAttachmentIndex:
		d.InputAttachmentIndex = value
	case spirv.DecorationSpecID:
		d.SpecID = value
	}
}

// Unset removes decoration dec.
func (d *Decoration) Unset(dec spirv.Decoration) {
	d.Flags.Clear(uint32(dec))
}

// Get returns the value of decoration dec, or 0 if absent or flag-only.
func (d *Decoration) Get(dec spirv.Decoration) uint32 {
	if !d.Has(dec) {
		return 0
	}
	switch dec {
	case spirv.DecorationBuiltIn:
		return uint32(d.BuiltIn)
	case spirv.DecorationLocation:
		return d.Location
	case spirv.DecorationComponent:
		return d.Component
	case spirv.DecorationIndex:
		return d.Index
	case spirv.DecorationBinding:
		return d.Binding
	case spirv.DecorationDescriptorSet:
		return d.DescriptorSet
	case spirv.DecorationOffset:
		return d.Offset
	case spirv.DecorationArrayStride:
		return d.ArrayStride
	case spirv.DecorationMatrixStride:
		return d.MatrixStride
	case spirv.DecorationInputAttachmentIndex:
		return d.InputAttachmentIndex
	case spirv.DecorationSpecID:
		return d.SpecID
	}
	return 1
}

// IsBuiltIn reports whether the decoration marks a builtin.
func (d *Decoration) IsBuiltIn() bool {
	return d.Has(spirv.DecorationBuiltIn)
}

func (d Decoration) clone() Decoration {
	d.Flags = d.Flags.Clone()
	return d
}

// Meta is the decoration state of one ID.
type Meta struct {
	Decoration
	Members []Decoration
}

// Member returns the decoration of member i, growing the list as needed.
func (m *Meta) Member(i int) *Decoration {
	for len(m.Members) <= i {
		m.Members = append(m.Members, Decoration{})
	}
	return &m.Members[i]
}

func (m *Meta) clone() *Meta {
	c := &Meta{Decoration: m.Decoration.clone()}
	if m.Members != nil {
		c.Members = make([]Decoration, len(m.Members))
		for i := range m.Members {
			c.Members[i] = m.Members[i].clone()
		}
	}
	return c
}
