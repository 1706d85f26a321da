package msl

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// Namespace is the MSL metal namespace prefix.
const Namespace = "metal::"

// scalarName returns the MSL name of a scalar type.
func scalarName(base ir.BaseType, width uint32) string {
	switch base {
	case ir.BaseBool:
		return "bool"
	case ir.BaseFloat:
		switch width {
		case 16:
			return "half"
		case 64:
			return "double"
		}
		return "float"
	case ir.BaseInt:
		switch width {
		case 8:
			return "char"
		case 16:
			return "short"
		case 64:
			return "long"
		}
		return "int"
	case ir.BaseUInt:
		switch width {
		case 8:
			return "uchar"
		case 16:
			return "ushort"
		case 64:
			return "ulong"
		}
		return "uint"
	case ir.BaseVoid:
		return "void"
	}
	return "int"
}

func vectorName(base ir.BaseType, width, n uint32) string {
	if n <= 1 {
		return scalarName(base, width)
	}
	return fmt.Sprintf("%s%s%d", Namespace, scalarName(base, width), n)
}

func packedVectorName(base ir.BaseType, width, n uint32) string {
	if n <= 1 {
		return scalarName(base, width)
	}
	return fmt.Sprintf("%spacked_%s%d", Namespace, scalarName(base, width), n)
}

func matrixName(base ir.BaseType, width, cols, rows uint32) string {
	return fmt.Sprintf("%s%s%dx%d", Namespace, scalarName(base, width), cols, rows)
}

// isOpaque reports whether t is a texture, sampler or an array of them.
func (w *Writer) isOpaque(t *ir.Type) bool {
	switch w.m.Innermost(t).Base {
	case ir.BaseImage, ir.BaseSampledImage, ir.BaseSampler:
		return true
	}
	return false
}

// typeName returns the MSL name of a value type. Pointers name their
// pointee.
func (w *Writer) typeName(id ir.ID) string {
	t := w.m.Type(id)
	if t == nil {
		return "void"
	}
	if t.Pointer {
		return w.typeName(t.Parent)
	}
	switch {
	case t.IsArray():
		if w.isOpaque(t) {
			return fmt.Sprintf("%sarray<%s, %d>", Namespace, w.typeName(t.Parent), w.m.ArraySize(t, len(t.Array)-1))
		}
		if t.IsRuntimeArray() {
			return w.typeName(t.Parent)
		}
		return w.typeNames[t.Self]
	case t.IsStruct():
		return w.typeNames[t.Self]
	case t.IsMatrix():
		return matrixName(t.Base, t.Width, t.Columns, t.VecSize)
	}
	switch t.Base {
	case ir.BaseImage, ir.BaseSampledImage:
		return w.textureName(t, "")
	case ir.BaseSampler:
		return Namespace + "sampler"
	case ir.BaseVoid:
		return "void"
	}
	return vectorName(t.Base, t.Width, t.VecSize)
}

// textureName returns the MSL texture type of an image type. access
// overrides the access qualifier of storage images.
func (w *Writer) textureName(t *ir.Type, access string) string {
	img := t.Image
	var sb strings.Builder
	sb.WriteString(Namespace)
	if img.Depth {
		sb.WriteString("depth")
	} else {
		sb.WriteString("texture")
	}
	arrayed := img.Arrayed
	switch img.Dim {
	case spirv.Dim1D:
		sb.WriteString("1d")
	case spirv.Dim3D:
		sb.WriteString("3d")
	case spirv.DimCube:
		sb.WriteString("cube")
	case spirv.DimBuffer:
		sb.WriteString("_buffer")
	case spirv.DimSubpassData:
		sb.WriteString("2d")
		arrayed = arrayed || w.options.MultiviewEnabled
	default:
		sb.WriteString("2d")
	}
	if img.MS {
		sb.WriteString("_ms")
	}
	if arrayed {
		sb.WriteString("_array")
	}
	sampled := "float"
	if st := w.m.Type(img.SampledType); st != nil && !img.Depth {
		sampled = scalarName(st.Base, st.Width)
	}
	if access == "" {
		switch {
		case img.Dim == spirv.DimSubpassData:
			access = "read"
		case img.Sampled == 2:
			access = "read_write"
		default:
			access = "sample"
		}
	}
	fmt.Fprintf(&sb, "<%s, %saccess::%s>", sampled, Namespace, access)
	return sb.String()
}

// storageAccess returns the access qualifier of a storage image variable.
func (w *Writer) storageAccess(v ir.ID) string {
	switch {
	case w.m.HasDecoration(v, spirv.DecorationNonWritable):
		return "read"
	case w.m.HasDecoration(v, spirv.DecorationNonReadable):
		return "write"
	}
	return "read_write"
}

// storedName returns the type a value of t is kept as in representation
// r. Matrices of packed columns have no single type name; see declarator.
func (w *Writer) storedName(t *ir.Type, r repr) string {
	if t.IsArray() || t.IsStruct() || r.natural() {
		return w.typeName(t.Self)
	}
	if t.IsMatrix() {
		cols, rows := t.Columns, t.VecSize
		if r.transposed {
			cols, rows = rows, cols
		}
		switch r.kind {
		case reprWidenedColumns:
			return matrixName(t.Base, t.Width, cols, r.stored)
		case reprPackedColumns:
			return packedVectorName(t.Base, t.Width, rows)
		}
		return matrixName(t.Base, t.Width, cols, rows)
	}
	switch r.kind {
	case reprPacked:
		return packedVectorName(t.Base, t.Width, t.VecSize)
	case reprWidened:
		return vectorName(t.Base, t.Width, r.stored)
	case reprShrunk:
		return packedVectorName(t.Base, t.Width, r.stored)
	}
	return w.typeName(t.Self)
}

// declarator returns a declaration of name as type t in representation r.
func (w *Writer) declarator(t *ir.Type, r repr, name string) string {
	if t.IsRuntimeArray() {
		elem := w.m.Type(t.Parent)
		return w.declarator(elem, r, name+"[1]")
	}
	if t.IsMatrix() && r.kind == reprPackedColumns {
		cols := t.Columns
		if r.transposed {
			cols = t.VecSize
		}
		return fmt.Sprintf("%s %s[%d]", w.storedName(t, r), name, cols)
	}
	return w.storedName(t, r) + " " + name
}

// zeroLiteral returns a zero of the scalar base of t.
func zeroLiteral(t *ir.Type) string {
	switch t.Base {
	case ir.BaseBool:
		return "false"
	case ir.BaseFloat:
		return "0.0"
	case ir.BaseUInt:
		return "0u"
	}
	return "0"
}

// unpack converts expr, stored in representation r, to a value of type t.
func (w *Writer) unpack(expr string, t *ir.Type, r repr) string {
	if r.natural() || t.IsArray() || t.IsStruct() {
		return expr
	}
	if t.IsMatrix() {
		cols, rows := t.Columns, t.VecSize
		if r.transposed {
			cols, rows = rows, cols
		}
		value := expr
		switch r.kind {
		case reprPackedColumns, reprWidenedColumns:
			parts := make([]string, cols)
			for c := range parts {
				col := fmt.Sprintf("%s[%d]", expr, c)
				if r.kind == reprPackedColumns {
					parts[c] = fmt.Sprintf("%s(%s)", vectorName(t.Base, t.Width, rows), col)
				} else {
					parts[c] = col + swizzle(0, rows)
				}
			}
			value = fmt.Sprintf("%s(%s)", matrixName(t.Base, t.Width, cols, rows), strings.Join(parts, ", "))
		}
		if r.transposed {
			return fmt.Sprintf("%stranspose(%s)", Namespace, value)
		}
		return value
	}
	switch r.kind {
	case reprPacked:
		return fmt.Sprintf("%s(%s)", w.typeName(t.Self), expr)
	case reprWidened:
		return expr + swizzle(0, t.VecSize)
	case reprShrunk:
		return fmt.Sprintf("%s(%s, %s)", w.typeName(t.Self), expr, zeroLiteral(t))
	}
	return expr
}

// pack converts a value of type t to representation r. The result of
// packing a matrix into packed columns is a brace list, usable only as an
// initializer; stores expand it per column.
func (w *Writer) pack(expr string, t *ir.Type, r repr) string {
	if r.natural() || t.IsArray() || t.IsStruct() {
		return expr
	}
	if t.IsMatrix() {
		value := expr
		cols, rows := t.Columns, t.VecSize
		if r.transposed {
			value = fmt.Sprintf("%stranspose(%s)", Namespace, expr)
			cols, rows = rows, cols
		}
		switch r.kind {
		case reprPackedColumns:
			parts := make([]string, cols)
			for c := range parts {
				parts[c] = fmt.Sprintf("%s(%s[%d])", packedVectorName(t.Base, t.Width, rows), value, c)
			}
			return "{" + strings.Join(parts, ", ") + "}"
		case reprWidenedColumns:
			parts := make([]string, cols)
			for c := range parts {
				parts[c] = widen(fmt.Sprintf("%s[%d]", value, c), t, rows, r.stored)
			}
			return fmt.Sprintf("%s(%s)", matrixName(t.Base, t.Width, cols, r.stored), strings.Join(parts, ", "))
		}
		return value
	}
	switch r.kind {
	case reprPacked:
		return fmt.Sprintf("%s(%s)", packedVectorName(t.Base, t.Width, t.VecSize), expr)
	case reprWidened:
		return widen(expr, t, t.VecSize, r.stored)
	case reprShrunk:
		return fmt.Sprintf("%s(%s%s)", packedVectorName(t.Base, t.Width, r.stored), expr, swizzle(0, r.stored))
	}
	return expr
}

// widen pads an n component value of the base of t to stored components.
func widen(expr string, t *ir.Type, n, stored uint32) string {
	args := []string{expr}
	for i := n; i < stored; i++ {
		args = append(args, zeroLiteral(t))
	}
	return fmt.Sprintf("%s(%s)", vectorName(t.Base, t.Width, stored), strings.Join(args, ", "))
}

// collectTypes finds the struct and array types the output declares, in
// dependency order.
func (w *Writer) collectTypes() {
	m := w.m
	seen := make(map[ir.ID]bool)
	skip := w.pc.blockTypes()
	var visit func(id ir.ID)
	visit = func(id ir.ID) {
		t := m.Type(id)
		if t == nil || seen[id] {
			return
		}
		seen[id] = true
		switch {
		case t.Pointer:
			// Pointers to structs only need a forward declaration.
			if p := m.Type(t.Parent); p != nil && p.IsStruct() {
				w.forward = true
			}
			visit(t.Parent)
			return
		case t.IsArray():
			visit(t.Parent)
			if w.isOpaque(t) || t.IsRuntimeArray() {
				return
			}
		case t.IsStruct():
			if _, ok := skip[id]; ok {
				return
			}
			for _, mt := range t.Members {
				visit(mt)
			}
		case t.Base == ir.BaseFunction:
			visit(t.Result)
			for _, p := range t.Members {
				visit(p)
			}
			return
		default:
			return
		}
		w.declared = append(w.declared, id)
	}

	for _, id := range w.pc.resources {
		visit(m.Variable(id).Type)
	}
	for _, v := range m.Variables() {
		if w.pc.isUsed(v.Self) {
			visit(v.Type)
		}
	}
	for _, blk := range w.pc.sortedBlocks() {
		for _, im := range blk.members {
			visit(im.typ)
		}
	}
	for _, fid := range w.pc.reachable {
		fn := m.Function(fid)
		visit(fn.ReturnType)
		for _, p := range fn.Params {
			visit(p.Type)
		}
		for _, lv := range fn.LocalVariables {
			visit(m.Variable(lv).Type)
		}
		for _, bid := range fn.Blocks {
			for _, inst := range m.Block(bid).Ops {
				if inst.ResultType != 0 {
					visit(inst.ResultType)
				}
			}
		}
	}
	for _, id := range w.pc.usedSorted() {
		switch e := m.Entity(id).(type) {
		case *ir.Constant:
			visit(e.Type)
		case *ir.Undef:
			visit(e.Type)
		}
	}
	for _, id := range w.pc.ioBindsSorted() {
		if v := m.Variable(id); v != nil {
			visit(v.Type)
		}
	}
}

// nameTypes gives every declared type its MSL name.
func (w *Writer) nameTypes() {
	m := w.m
	for _, id := range w.declared {
		t := m.Type(id)
		if t.IsArray() {
			w.typeNames[id] = w.namer.call(fmt.Sprintf("type_%d", id))
			continue
		}
		base := m.Name(id)
		if base == "" {
			base = fmt.Sprintf("_%d", id)
		}
		w.typeNames[id] = w.namer.call(base)
		members := newNamer()
		names := make([]string, len(t.Members))
		for i := range t.Members {
			n := m.MemberName(id, i)
			if n == "" {
				n = fmt.Sprintf("_m%d", i)
			}
			names[i] = members.call(n)
		}
		w.memberNames[id] = names
	}
}

// elementRepr returns the representation of the elements of array type a,
// inherited by nested arrays of a decorated array.
func (w *Writer) elementRepr(a ir.ID) repr {
	if r, ok := w.arrayReprs[a]; ok {
		return r
	}
	return repr{}
}

// propagateArrayReprs hands the element representation of laid out arrays
// down to the array types they nest.
func (w *Writer) propagateArrayReprs() {
	m := w.m
	ids := make([]ir.ID, 0, len(w.pc.layouts.arrays))
	for id := range w.pc.layouts.arrays {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		r := w.pc.layouts.arrays[id]
		for t := m.Type(id); t != nil && t.IsArray(); t = m.Type(t.Parent) {
			if _, ok := w.arrayReprs[t.Self]; !ok {
				w.arrayReprs[t.Self] = r
			}
		}
	}
}

// writeTypes declares the collected structs and array wrappers.
func (w *Writer) writeTypes() {
	m := w.m
	if w.forward {
		for _, id := range w.declared {
			if m.Type(id).IsStruct() {
				w.writeLine("struct %s;", w.typeNames[id])
			}
		}
		w.writeLine("")
	}
	for _, id := range w.declared {
		t := m.Type(id)
		if t.IsArray() {
			w.writeArrayWrapper(t)
		} else {
			w.writeStruct(t)
		}
	}
}

// writeArrayWrapper declares the struct standing in for a sized array, so
// arrays can be copied and passed by value.
func (w *Writer) writeArrayWrapper(t *ir.Type) {
	elem := w.m.Type(t.Parent)
	n := w.m.ArraySize(t, len(t.Array)-1)
	w.writeLine("struct %s", w.typeNames[t.Self])
	w.writeLine("{")
	w.pushIndent()
	w.writeLine("%s;", w.declarator(elem, w.elementRepr(t.Self), fmt.Sprintf("inner[%d]", max(n, 1))))
	w.popIndent()
	w.writeLine("};")
	w.writeLine("")
}

// writeStruct declares a struct with the member representations the
// layout normalizer chose, in offset order with padding members.
func (w *Writer) writeStruct(t *ir.Type) {
	m := w.m
	l := w.pc.layouts.structs[t.Self]
	names := w.memberNames[t.Self]
	w.writeLine("struct %s", w.typeNames[t.Self])
	w.writeLine("{")
	w.pushIndent()
	if l == nil {
		for i, mt := range t.Members {
			w.writeLine("%s;", w.declarator(m.Type(mt), repr{}, names[i]))
		}
	} else {
		for _, lm := range l.members {
			if lm.pad > 0 {
				w.writeLine("char _m%d_pad[%d];", lm.index, lm.pad)
			}
			w.writeLine("%s;", w.declarator(m.Type(lm.typ), lm.repr, names[lm.index]))
		}
		if l.tailPad > 0 {
			w.writeLine("char _tail_pad[%d];", l.tailPad)
		}
	}
	w.popIndent()
	w.writeLine("};")
	w.writeLine("")
}

// memberRepr returns the representation of member i of struct s.
func (w *Writer) memberRepr(s ir.ID, i int) repr {
	return w.pc.layouts.memberRepr(s, i)
}

// memberName returns the MSL name of member i of struct s.
func (w *Writer) memberName(s ir.ID, i int) string {
	if names, ok := w.memberNames[s]; ok && i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("_m%d", i)
}

// structInit builds an aggregate initializer of struct s from member
// values given in declaration order, packing members and filling padding.
func (w *Writer) structInit(s *ir.Type, values []string) string {
	m := w.m
	l := w.pc.layouts.structs[s.Self]
	var parts []string
	if l == nil {
		for i, v := range values {
			parts = append(parts, w.pack(v, m.Type(s.Members[i]), repr{}))
		}
	} else {
		for _, lm := range l.members {
			if lm.pad > 0 {
				parts = append(parts, "{}")
			}
			parts = append(parts, w.pack(values[lm.index], m.Type(lm.typ), lm.repr))
		}
	}
	return fmt.Sprintf("%s{ %s }", w.typeNames[s.Self], strings.Join(parts, ", "))
}

// arrayInit builds an initializer of array type a from element values.
func (w *Writer) arrayInit(a *ir.Type, values []string) string {
	elem := w.m.Type(a.Parent)
	r := w.elementRepr(a.Self)
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = w.pack(v, elem, r)
	}
	if w.isOpaque(a) {
		return fmt.Sprintf("%s{ %s }", w.typeName(a.Self), strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s{ { %s } }", w.typeNames[a.Self], strings.Join(parts, ", "))
}
