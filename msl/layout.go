package msl

import (
	"fmt"
	"slices"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// reprKind is the in-memory shape chosen for a vector or matrix.
type reprKind uint8

const (
	reprNatural reprKind = iota
	// reprPacked stores a vector as packed_T.
	reprPacked
	// reprWidened stores a scalar or vector in a wider vector.
	reprWidened
	// reprShrunk stores a vector without its last component.
	reprShrunk
	// reprPackedColumns stores a matrix as an array of packed columns.
	reprPackedColumns
	// reprWidenedColumns stores a matrix with wider column vectors.
	reprWidenedColumns
)

var reprKindNames = [...]string{"natural", "packed", "widened", "shrunk", "packed columns", "widened columns"}

func (k reprKind) String() string { return reprKindNames[k] }

// repr is the representation of a member or of array elements. It applies
// to the innermost element of arrays.
type repr struct {
	kind reprKind
	// stored is the component count actually stored by widened and shrunk
	// vectors, and the column length of widened matrix columns.
	stored uint32
	// transposed marks row-major matrices, kept as their transpose.
	transposed bool
}

func (r repr) natural() bool { return r.kind == reprNatural && !r.transposed }

// placement is the size and alignment of a type in one representation.
type placement struct {
	size, align uint32
	// stride is the element stride of arrays.
	stride uint32
	// colStride is the column stride of matrices.
	colStride uint32
}

func alignUp(v, a uint32) uint32 {
	if a <= 1 {
		return v
	}
	return (v + a - 1) / a * a
}

// layoutMember is one member of a normalized struct.
type layoutMember struct {
	index  int
	offset uint32
	typ    ir.ID
	repr   repr
	// pad is the size of the padding member emitted before this one.
	pad uint32
}

// structLayout is the normalized layout of one struct type.
type structLayout struct {
	self ir.ID
	// members are in offset order.
	members []layoutMember
	byIndex map[int]int
	// explicit is set for structs carrying Offset decorations.
	explicit bool
	tailPad  uint32
	// required is the size a containing array stride asks for, or zero.
	required uint32
	size     uint32
	align    uint32
}

// member returns the layout of member i.
func (l *structLayout) member(i int) *layoutMember {
	if k, ok := l.byIndex[i]; ok {
		return &l.members[k]
	}
	return nil
}

// layoutSet holds the layouts of every struct and decorated array the pass
// emits.
type layoutSet struct {
	m       *ir.Module
	structs map[ir.ID]*structLayout
	// arrays holds the element representation of array types.
	arrays   map[ir.ID]repr
	required map[ir.ID]uint32
	visiting map[ir.ID]bool
}

func newLayoutSet(m *ir.Module) *layoutSet {
	return &layoutSet{
		m:        m,
		structs:  make(map[ir.ID]*structLayout),
		arrays:   make(map[ir.ID]repr),
		required: make(map[ir.ID]uint32),
		visiting: make(map[ir.ID]bool),
	}
}

// memberRepr returns the representation of member i of struct s.
func (ls *layoutSet) memberRepr(s ir.ID, i int) repr {
	if l := ls.structs[s]; l != nil {
		if lm := l.member(i); lm != nil {
			return lm.repr
		}
	}
	return repr{}
}

// arrayRepr returns the element representation of array type a.
func (ls *layoutSet) arrayRepr(a ir.ID) repr {
	return ls.arrays[a]
}

func scalarBytes(t *ir.Type) uint32 {
	if t.Base == ir.BaseBool {
		return 1
	}
	return max(t.Width/8, 1)
}

func vectorPlacement(n, w uint32, packed bool) placement {
	switch {
	case packed:
		return placement{size: n * w, align: w}
	case n == 3:
		return placement{size: 4 * w, align: 4 * w}
	default:
		return placement{size: n * w, align: n * w}
	}
}

// metrics returns the placement of t in representation r. It reports false
// when a nested array stride decoration cannot be honored.
func (ls *layoutSet) metrics(t *ir.Type, r repr) (placement, bool, error) {
	m := ls.m
	switch {
	case t.Pointer:
		return placement{size: 8, align: 8}, true, nil
	case t.IsArray():
		elem := m.Type(t.Parent)
		if elem == nil {
			return placement{}, false, invalid("array type %d has no element type", t.Self)
		}
		pe, ok, err := ls.metrics(elem, r)
		if err != nil || !ok {
			return placement{}, ok, err
		}
		stride := alignUp(pe.size, pe.align)
		if req, ok := ls.required[elem.Self]; ok && elem.IsStruct() {
			stride = req
		}
		if inner := elem; inner.IsArray() {
			if s := m.Decoration(inner.Self, spirv.DecorationArrayStride); s != 0 && s != pe.stride {
				return placement{}, false, nil
			}
		}
		n := uint32(0)
		if !t.IsRuntimeArray() {
			n = m.ArraySize(t, len(t.Array)-1)
		}
		return placement{size: n * stride, align: pe.align, stride: stride, colStride: pe.colStride}, true, nil
	case t.IsStruct():
		l, err := ls.structLayout(t.Self)
		if err != nil {
			return placement{}, false, err
		}
		return placement{size: l.size, align: l.align}, true, nil
	case t.IsMatrix():
		w := scalarBytes(t)
		cols, rows := t.Columns, t.VecSize
		if r.transposed {
			cols, rows = rows, cols
		}
		var col placement
		switch r.kind {
		case reprPackedColumns:
			col = vectorPlacement(rows, w, true)
		case reprWidenedColumns:
			col = vectorPlacement(r.stored, w, false)
		case reprNatural:
			col = vectorPlacement(rows, w, false)
		default:
			return placement{}, false, internal("%s representation for a matrix", r.kind)
		}
		cs := alignUp(col.size, col.align)
		return placement{size: cols * cs, align: col.align, colStride: cs}, true, nil
	case t.Base.IsScalarBase():
		w := scalarBytes(t)
		n := t.VecSize
		switch r.kind {
		case reprNatural:
			if n == 1 {
				return placement{size: w, align: w}, true, nil
			}
			return vectorPlacement(n, w, false), true, nil
		case reprPacked:
			return vectorPlacement(n, w, true), true, nil
		case reprWidened:
			return vectorPlacement(r.stored, w, false), true, nil
		case reprShrunk:
			if r.stored == 1 {
				return placement{size: w, align: w}, true, nil
			}
			return vectorPlacement(r.stored, w, true), true, nil
		}
		return placement{}, false, internal("%s representation for a vector", r.kind)
	}
	// Opaque handles never sit in explicitly laid out memory.
	return placement{size: 8, align: 8}, true, nil
}

// candidates lists the representations to try for a member of type t, in
// order of preference.
func (ls *layoutSet) candidates(t *ir.Type, rowMajor bool, matrixStride, arrayStride uint32) []repr {
	e := ls.m.Innermost(t)
	if e == nil {
		return nil
	}
	out := []repr{{transposed: rowMajor && e.IsMatrix()}}
	w := scalarBytes(e)
	switch {
	case e.IsMatrix():
		rows := e.VecSize
		if rowMajor {
			rows = e.Columns
		}
		if matrixStride == rows*w {
			out = append(out, repr{kind: reprPackedColumns, transposed: rowMajor})
		}
		if matrixStride%w == 0 {
			if s := matrixStride / w; (s == 2 || s == 4) && s > rows {
				out = append(out, repr{kind: reprWidenedColumns, stored: s, transposed: rowMajor})
			}
		}
	case e.Base.IsScalarBase():
		n := e.VecSize
		if n > 1 {
			out = append(out, repr{kind: reprPacked})
		}
		if t.IsArray() && arrayStride != 0 && arrayStride%w == 0 {
			if s := arrayStride / w; (s == 2 || s == 4) && s > n {
				out = append(out, repr{kind: reprWidened, stored: s})
			}
		}
		if n > 1 {
			out = append(out, repr{kind: reprShrunk, stored: n - 1})
		}
	}
	return out
}

// normalize computes the layouts of every struct in the module that
// carries Offset decorations, plus the structs they contain.
func (ls *layoutSet) normalize() error {
	m := ls.m
	if err := ls.collectRequiredSizes(); err != nil {
		return err
	}
	for _, id := range m.IDs() {
		t := m.Type(id)
		if t == nil || !t.IsStruct() {
			continue
		}
		if _, err := ls.structLayout(id); err != nil {
			return err
		}
	}
	return nil
}

// collectRequiredSizes records the stride of every array of structs, since
// the struct has to be padded to it.
func (ls *layoutSet) collectRequiredSizes() error {
	m := ls.m
	for _, id := range m.IDs() {
		t := m.Type(id)
		if t == nil || !t.IsArray() {
			continue
		}
		stride := m.Decoration(id, spirv.DecorationArrayStride)
		elem := m.Type(t.Parent)
		if stride == 0 || elem == nil || !elem.IsStruct() {
			continue
		}
		if prev, ok := ls.required[elem.Self]; ok && prev != stride {
			return unsupported("cannot represent layout: struct %s is used with array strides %d and %d",
				ls.structName(elem.Self), prev, stride)
		}
		ls.required[elem.Self] = stride
	}
	return nil
}

func (ls *layoutSet) structName(id ir.ID) string {
	if n := ls.m.Name(id); n != "" {
		return n
	}
	return fmt.Sprintf("%%%d", id)
}

// structLayout returns the layout of struct s, computing nested structs
// first.
func (ls *layoutSet) structLayout(s ir.ID) (*structLayout, error) {
	if l, ok := ls.structs[s]; ok {
		return l, nil
	}
	if ls.visiting[s] {
		return nil, invalid("struct %s contains itself", ls.structName(s))
	}
	ls.visiting[s] = true
	defer delete(ls.visiting, s)

	m := ls.m
	t := m.Type(s)
	l := &structLayout{self: s, byIndex: make(map[int]int), align: 1, required: ls.required[s]}
	for i, mt := range t.Members {
		if m.HasMemberDecoration(s, i, spirv.DecorationOffset) {
			l.explicit = true
		}
		l.members = append(l.members, layoutMember{
			index:  i,
			offset: m.MemberDecoration(s, i, spirv.DecorationOffset),
			typ:    mt,
		})
	}
	var err error
	if l.explicit {
		err = ls.placeExplicit(l)
	} else {
		err = ls.placeNatural(l)
	}
	if err != nil {
		return nil, err
	}
	for k, lm := range l.members {
		l.byIndex[lm.index] = k
	}
	ls.structs[s] = l
	return l, nil
}

// placeNatural lays out a struct without offsets in declaration order.
func (ls *layoutSet) placeNatural(l *structLayout) error {
	cursor := uint32(0)
	for k := range l.members {
		lm := &l.members[k]
		p, _, err := ls.metrics(ls.m.Type(lm.typ), lm.repr)
		if err != nil {
			return err
		}
		lm.offset = alignUp(cursor, p.align)
		cursor = lm.offset + p.size
		l.align = max(l.align, p.align)
	}
	l.size = alignUp(cursor, l.align)
	if l.required > l.size {
		return ls.tailPad(l, cursor)
	}
	return nil
}

// placeExplicit picks a representation for every member so the emitted
// struct reproduces the declared offsets and strides.
func (ls *layoutSet) placeExplicit(l *structLayout) error {
	m := ls.m
	slices.SortStableFunc(l.members, func(a, b layoutMember) int {
		return int(a.offset) - int(b.offset)
	})
	cursor := uint32(0)
	for k := range l.members {
		lm := &l.members[k]
		t := m.Type(lm.typ)
		if t == nil {
			return invalid("member %d of struct %s has no type", lm.index, ls.structName(l.self))
		}
		limit := ^uint32(0)
		if k+1 < len(l.members) {
			limit = l.members[k+1].offset
		} else if l.required != 0 {
			limit = l.required
		}
		rowMajor := m.HasMemberDecoration(l.self, lm.index, spirv.DecorationRowMajor)
		matrixStride := m.MemberDecoration(l.self, lm.index, spirv.DecorationMatrixStride)
		arrayStride := m.Decoration(lm.typ, spirv.DecorationArrayStride)

		placed := false
		for _, r := range ls.candidates(t, rowMajor, matrixStride, arrayStride) {
			p, ok, err := ls.metrics(t, r)
			if err != nil {
				return err
			}
			if !ok || !ls.fits(lm.offset, cursor, limit, t, r, p, matrixStride, arrayStride) {
				continue
			}
			lm.repr = r
			if alignUp(cursor, p.align) != lm.offset {
				lm.pad = lm.offset - cursor
			}
			cursor = lm.offset + p.size
			l.align = max(l.align, p.align)
			if t.IsArray() {
				ls.arrays[t.Self] = r
			}
			placed = true
			break
		}
		if !placed {
			return unsupported("cannot represent layout: member %s of struct %s at offset %d",
				ls.memberName(l.self, lm.index), ls.structName(l.self), lm.offset)
		}
	}
	l.size = alignUp(cursor, l.align)
	if l.required != 0 && l.required != l.size {
		if err := ls.tailPad(l, cursor); err != nil {
			return err
		}
	}
	if !ls.roundTrips(l) {
		return unsupported("cannot represent layout: struct %s", ls.structName(l.self))
	}
	return nil
}

func (ls *layoutSet) memberName(s ir.ID, i int) string {
	if n := ls.m.MemberName(s, i); n != "" {
		return n
	}
	return fmt.Sprintf("#%d", i)
}

// tailPad grows the struct to the size its containing array needs.
func (ls *layoutSet) tailPad(l *structLayout, cursor uint32) error {
	if l.required < cursor || l.required%l.align != 0 {
		return unsupported("cannot represent layout: struct %s needs size %d, natural size is %d",
			ls.structName(l.self), l.required, l.size)
	}
	l.tailPad = l.required - cursor
	l.size = l.required
	return nil
}

// fits reports whether a member in representation r can sit at offset
// given the previous member ended at cursor and the next starts at limit.
func (ls *layoutSet) fits(offset, cursor, limit uint32, t *ir.Type, r repr, p placement, matrixStride, arrayStride uint32) bool {
	if offset < cursor || offset%p.align != 0 {
		return false
	}
	if !t.IsRuntimeArray() && uint64(offset)+uint64(p.size) > uint64(limit) {
		return false
	}
	if t.IsArray() && arrayStride != 0 && p.stride != arrayStride {
		return false
	}
	if matrixStride != 0 && ls.m.Innermost(t).IsMatrix() && p.colStride != matrixStride {
		return false
	}
	if r.kind == reprShrunk && !t.IsArray() {
		// Without an array stride the gap to the next member decides.
		return limit-offset == p.size
	}
	return true
}

// roundTrips recomputes every member offset and stride from the chosen
// representations and compares them with the declared values.
func (ls *layoutSet) roundTrips(l *structLayout) bool {
	m := ls.m
	cursor := uint32(0)
	align := uint32(1)
	for _, lm := range l.members {
		t := m.Type(lm.typ)
		p, ok, err := ls.metrics(t, lm.repr)
		if err != nil || !ok {
			return false
		}
		cursor += lm.pad
		off := alignUp(cursor, p.align)
		if off != lm.offset {
			return false
		}
		if t.IsArray() {
			if s := m.Decoration(lm.typ, spirv.DecorationArrayStride); s != 0 && s != p.stride {
				return false
			}
		}
		if s := m.MemberDecoration(l.self, lm.index, spirv.DecorationMatrixStride); s != 0 && m.Innermost(t).IsMatrix() && s != p.colStride {
			return false
		}
		cursor = off + p.size
		align = max(align, p.align)
	}
	size := alignUp(cursor+l.tailPad, align)
	if l.required != 0 && size != l.required {
		return false
	}
	return size == l.size
}

// normalizeLayouts is the layout step of a pass.
func (pc *passContext) normalizeLayouts() error {
	ls := newLayoutSet(pc.module)
	if err := ls.normalize(); err != nil {
		return err
	}
	pc.layouts = ls
	return nil
}
