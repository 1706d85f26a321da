package msl

import (
	"fmt"
	"strings"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// Renderer turns single instructions into MSL. The writer walks control
// flow and hands every other instruction to the renderer.
type Renderer interface {
	RenderInstruction(s *Scope, inst *ir.Instruction) error
}

// Scope is the view a Renderer has of the function being written.
type Scope struct {
	w *Writer
}

// Module returns the module being translated.
func (s *Scope) Module() *ir.Module { return s.w.m }

// Options returns the options of the translation.
func (s *Scope) Options() Options { return *s.w.options }

// Stage returns the execution model of the entry point.
func (s *Scope) Stage() spirv.ExecutionModel { return s.w.pc.stage() }

// Function returns the function being written.
func (s *Scope) Function() *ir.Function { return s.w.fs.fn }

// Expr returns the expression of a value.
func (s *Scope) Expr(id ir.ID) (string, error) { return s.w.valueOf(id) }

// TypeName returns the MSL name of a type.
func (s *Scope) TypeName(id ir.ID) string { return s.w.typeName(id) }

// Name returns the MSL name of an ID in the current function.
func (s *Scope) Name(id ir.ID) string { return s.w.fs.name(id) }

// Bind makes expr the value of id. The value is stored in a temporary so
// it is evaluated exactly once, where the instruction stands.
func (s *Scope) Bind(id, typ ir.ID, expr string) {
	s.w.bindValue(id, typ, expr)
}

// BindInline makes expr the value of id without a temporary. expr must be
// free of side effects.
func (s *Scope) BindInline(id ir.ID, expr string) {
	s.w.fs.values[id] = expr
}

// Line writes one statement.
//
//nolint:goprintffuncname
func (s *Scope) Line(format string, args ...any) {
	s.w.writeLine(format, args...)
}

// Load returns the value behind a pointer.
func (s *Scope) Load(ptr ir.ID) (string, error) {
	p, err := s.w.pointerOf(ptr)
	if err != nil {
		return "", err
	}
	return s.w.load(p)
}

// Store writes value through a pointer.
func (s *Scope) Store(ptr ir.ID, value string) error {
	p, err := s.w.pointerOf(ptr)
	if err != nil {
		return err
	}
	return s.w.store(p, value)
}

// RequireBuiltin returns the expression of a builtin value. It reports
// false when the builtin is not available yet; the translation then runs
// another pass and whatever the renderer writes meanwhile is discarded.
func (s *Scope) RequireBuiltin(b spirv.BuiltIn, dir Direction) (string, bool, error) {
	return s.w.requireBuiltin(builtinKey{dir: dir, builtin: b})
}

// RequireVersion fails with a capability error when the target is below
// the given versions.
func (s *Scope) RequireVersion(feature string, macOS, iOS Version) error {
	return s.w.options.require(feature, tier{macOS: macOS, iOS: iOS})
}

// CallArgs returns the extra arguments a call to callee passes for the
// globals it receives as parameters.
func (s *Scope) CallArgs(callee ir.ID) ([]string, error) {
	return s.w.threadedArgs(callee)
}

// pointer is the MSL lvalue behind a pointer ID.
type pointer struct {
	expr string
	// typ is the pointee type; r its stored representation.
	typ ir.ID
	r   repr
	// space is the address space of the memory.
	space string
	// indexed arrays are indexed with [] instead of through the wrapper.
	indexed bool
	// buffers is set for arrays of buffer pointers.
	buffers bool
	// sampler is the sampler expression of combined image samplers.
	sampler string
	// cast converts loaded values to the pointee type.
	cast bool

	// io is set while an access chain walks a per control point variable.
	io    *ioBinding
	ioVar ir.ID
	// subpass is set for framebuffer fetch inputs.
	subpass bool
}

// spaceOf returns the address space of a storage class.
func spaceOf(sc spirv.StorageClass) string {
	switch sc {
	case spirv.StorageClassWorkgroup:
		return "threadgroup"
	case spirv.StorageClassStorageBuffer, spirv.StorageClassPhysicalStorageBuffer, spirv.StorageClassCrossWorkgroup:
		return "device"
	case spirv.StorageClassUniform, spirv.StorageClassPushConstant:
		return "constant"
	case spirv.StorageClassUniformConstant:
		return ""
	}
	return "thread"
}

// valueOf returns the expression of a value ID.
func (w *Writer) valueOf(id ir.ID) (string, error) {
	if v, ok := w.fs.values[id]; ok {
		return v, nil
	}
	if s, ok, err := w.constantExpr(id); ok || err != nil {
		return s, err
	}
	if _, ok := w.fs.ptrs[id]; ok {
		return "", internal("pointer %d used as a value", id)
	}
	if w.m.Variable(id) != nil {
		return "", internal("variable %d used as a value", id)
	}
	return "", invalid("value %d used before it is defined", id)
}

// bindValue stores expr in the temporary of id.
func (w *Writer) bindValue(id, typ ir.ID, expr string) {
	fs := w.fs
	t := w.m.Type(typ)
	if t == nil || t.Base == ir.BaseVoid {
		w.writeLine("%s;", expr)
		return
	}
	name := fs.name(id)
	fs.values[id] = name
	if fs.hoisted[id] {
		w.writeLine("%s = %s;", name, expr)
		return
	}
	w.writeLine("%s = %s;", w.declarator(t, repr{}, name), expr)
}

// pointerOf returns the lvalue behind a pointer ID.
func (w *Writer) pointerOf(id ir.ID) (pointer, error) {
	if p, ok := w.fs.ptrs[id]; ok {
		return p, nil
	}
	v := w.m.Variable(id)
	if v == nil {
		return pointer{}, invalid("%d is not a pointer", id)
	}
	p, err := w.variablePointer(v)
	if err != nil {
		return pointer{}, err
	}
	w.fs.ptrs[id] = p
	return p, nil
}

// variablePointer resolves a variable in the current function.
func (w *Writer) variablePointer(v *ir.Variable) (pointer, error) {
	m := w.m
	t := m.Pointee(v.Type)
	if t == nil {
		return pointer{}, invalid("variable %d has no pointer type", v.Self)
	}
	p := pointer{typ: t.Self, space: w.varSpace(v)}
	if v.FunctionScope {
		p.expr = w.fs.name(v.Self)
		return p, nil
	}
	if !w.fs.entry {
		param, ok := w.fs.threaded[v.Self]
		if !ok {
			return pointer{}, internal("global %s reached %s without a parameter", m.Name(v.Self), w.fs.fnName)
		}
		p.expr = w.fs.name(param)
		if m.Innermost(t).Base == ir.BaseSampledImage {
			p.sampler = p.expr + "Smplr"
		}
		if ib := w.pc.ioBinds[v.Self]; ib != nil {
			p.space = w.ioSpace(ib)
			p.cast = ib.kind == ioBuiltinValue && ib.cast
		}
		if w.isSubpassFetch(v) {
			p.subpass = true
		}
		return p, nil
	}
	return w.entryPointer(v, t, p)
}

// entryPointer resolves a global in the entry function.
func (w *Writer) entryPointer(v *ir.Variable, t *ir.Type, p pointer) (pointer, error) {
	if ib := w.pc.ioBinds[v.Self]; ib != nil {
		p.space = w.ioSpace(ib)
		switch ib.kind {
		case ioMember:
			im, ok := ib.block.slot(ib.key)
			if !ok {
				return pointer{}, internal("no member for %s", w.m.Name(v.Self))
			}
			p.expr = ib.block.varName + "." + im.name
		case ioArg:
			im, _ := ib.block.slot(ib.key)
			p.expr = im.name
		case ioBuiltinValue:
			p.expr = builtinRecipes[ib.builtin.builtin].name
			p.cast = ib.cast
		case ioArrayed:
			p.expr = ib.arrayed
			p.io = ib
			p.ioVar = v.Self
		default:
			p.expr = w.ioLocalName(v.Self)
		}
		return p, nil
	}
	switch v.Storage {
	case spirv.StorageClassInput, spirv.StorageClassOutput:
		return pointer{}, internal("stage variable %s has no interface binding", w.m.Name(v.Self))
	}
	p.expr = w.resourceRef(v)
	if t.IsArray() && v.Storage != spirv.StorageClassPrivate && v.Storage != spirv.StorageClassWorkgroup {
		p.indexed = true
		p.buffers = !w.isOpaque(w.m.Innermost(t))
	}
	if w.m.Innermost(t).Base == ir.BaseSampledImage {
		p.sampler = w.samplerRef(v)
	}
	p.subpass = w.isSubpassFetch(v)
	return p, nil
}

// ioSpace returns the address space of an interface variable.
func (w *Writer) ioSpace(ib *ioBinding) string {
	if ib.block != nil && ib.block.device && ib.kind != ioLocal {
		return "device"
	}
	return "thread"
}

// ioLocalName names the entry local standing for an interface variable.
func (w *Writer) ioLocalName(v ir.ID) string {
	if ib := w.pc.ioBinds[v]; ib != nil && ib.block == nil {
		return builtinRecipes[ib.builtin.builtin].name
	}
	return w.globalName(v)
}

// isSubpassFetch reports whether v is a subpass input read through
// framebuffer fetch.
func (w *Writer) isSubpassFetch(v *ir.Variable) bool {
	if !w.options.FramebufferFetchSubpass || v.Storage != spirv.StorageClassUniformConstant {
		return false
	}
	t := w.m.Pointee(v.Type)
	return t != nil && t.Base == ir.BaseImage && t.Image.Dim == spirv.DimSubpassData
}

// accessChain walks indices from base.
func (w *Writer) accessChain(base pointer, indices []ir.ID) (pointer, error) {
	m := w.m
	p := base
	for k := 0; k < len(indices); k++ {
		idx, err := w.valueOf(indices[k])
		if err != nil {
			return pointer{}, err
		}
		if p.io != nil {
			var consumed int
			p, consumed, err = w.controlPointStep(p, indices[k:], idx)
			if err != nil {
				return pointer{}, err
			}
			k += consumed - 1
			continue
		}
		t := m.Type(p.typ)
		switch {
		case t.IsStruct():
			c := m.Constant(indices[k])
			if c == nil {
				return pointer{}, invalid("struct member index %d is not a constant", indices[k])
			}
			i := int(c.Scalar)
			if i >= len(t.Members) {
				return pointer{}, invalid("member %d of a struct with %d members", i, len(t.Members))
			}
			p.expr = fmt.Sprintf("%s.%s", p.expr, w.memberName(t.Self, i))
			p.typ = t.Members[i]
			p.r = w.memberRepr(t.Self, i)
			p.indexed = m.Type(p.typ).IsRuntimeArray()
		case t.IsArray():
			if p.buffers {
				p.expr = fmt.Sprintf("(*%s[%s])", p.expr, idx)
				p.buffers = false
			} else if p.indexed || t.IsRuntimeArray() || w.isOpaque(t) {
				p.expr = fmt.Sprintf("%s[%s]", p.expr, idx)
			} else {
				p.expr = fmt.Sprintf("%s.inner[%s]", p.expr, idx)
			}
			if r, ok := w.arrayReprs[t.Self]; ok {
				p.r = r
			}
			p.typ = t.Parent
			p.indexed = false
			if p.sampler != "" {
				p.sampler = fmt.Sprintf("%s[%s]", p.sampler, idx)
			}
		case t.IsMatrix():
			if p.r.transposed {
				return pointer{}, unsupported("column access into row-major matrix %s", p.expr)
			}
			p.expr = fmt.Sprintf("%s[%s]", p.expr, idx)
			p.typ = m.Vector(t.Base, t.Width, t.VecSize)
			switch p.r.kind {
			case reprPackedColumns:
				p.r = repr{kind: reprPacked}
			case reprWidenedColumns:
				p.r = repr{kind: reprWidened, stored: p.r.stored}
			default:
				p.r = repr{}
			}
		case t.IsVector():
			p.expr = fmt.Sprintf("%s[%s]", p.expr, idx)
			p.typ = m.Scalar(t.Base, t.Width)
			p.r = repr{}
		default:
			return pointer{}, invalid("access chain indexes into a scalar")
		}
	}
	return p, nil
}

// controlPointStep consumes the vertex index and, for struct elements, the
// member index of a per control point variable.
func (w *Writer) controlPointStep(p pointer, indices []ir.ID, vertex string) (pointer, int, error) {
	m := w.m
	ib := p.io
	elem := m.Element(m.Type(p.typ))
	expr := fmt.Sprintf("%s[%s]", p.expr, vertex)
	if !ib.elemStruct {
		im, ok := ib.block.slot(ib.key)
		if !ok {
			return pointer{}, 0, internal("no control point member for %s", m.Name(p.ioVar))
		}
		return pointer{expr: expr + "." + im.name, typ: elem.Self, space: p.space}, 1, nil
	}
	if len(indices) < 2 {
		return pointer{}, 0, unsupported("whole control point access to %s", m.Name(p.ioVar))
	}
	c := m.Constant(indices[1])
	if c == nil {
		return pointer{}, 0, invalid("control point member index is not a constant")
	}
	im, ok := ib.block.slot(memberKey{variable: p.ioVar, member: int32(c.Scalar), element: -1})
	if !ok {
		return pointer{}, 0, internal("member %d of %s is not live", c.Scalar, m.Name(p.ioVar))
	}
	return pointer{expr: expr + "." + im.name, typ: elem.Members[c.Scalar], space: p.space}, 2, nil
}

// load reads the value behind p.
func (w *Writer) load(p pointer) (string, error) {
	if p.io != nil {
		return "", unsupported("loading all control points of %s", w.m.Name(p.ioVar))
	}
	t := w.m.Type(p.typ)
	v := w.unpack(p.expr, t, p.r)
	if p.cast {
		v = fmt.Sprintf("%s(%s)", w.typeName(t.Self), v)
	}
	return v, nil
}

// store writes value through p.
func (w *Writer) store(p pointer, value string) error {
	if p.io != nil {
		return unsupported("storing all control points of %s", w.m.Name(p.ioVar))
	}
	t := w.m.Type(p.typ)
	if t.IsMatrix() && p.r.kind == reprPackedColumns {
		tmp := w.fs.namer.call("_packed")
		w.writeLine("%s %s = %s;", w.typeName(t.Self), tmp, value)
		packed := strings.TrimSuffix(strings.TrimPrefix(w.pack(tmp, t, p.r), "{"), "}")
		for c, col := range strings.Split(packed, ", ") {
			w.writeLine("%s[%d] = %s;", p.expr, c, col)
		}
		return nil
	}
	w.writeLine("%s = %s;", p.expr, w.pack(value, t, p.r))
	return nil
}

// requireBuiltin returns the value of a builtin in the current function.
// It reports false, and asks for another pass, when the builtin is not
// reachable yet.
func (w *Writer) requireBuiltin(key builtinKey) (string, bool, error) {
	pc := w.pc
	r := builtinRecipes[key.builtin]
	if r == nil {
		return "", false, unsupported("builtin %s", key.builtin)
	}
	grew := pc.req.require(w.fs.fn.Self, key)
	id, active := pc.builtinVars[key]
	if !active {
		w.outcome.merge(stepNeedsAnotherPass(fmt.Sprintf("%s needs %s", w.fs.fnName, r.name)))
		return "", false, nil
	}
	if !w.fs.entry {
		if _, ok := w.fs.threaded[id]; !ok || grew {
			w.outcome.merge(stepNeedsAnotherPass(fmt.Sprintf("%s needs %s as a parameter", w.fs.fnName, r.name)))
			return "", false, nil
		}
	}
	v := w.m.Variable(id)
	p, err := w.variablePointer(v)
	if err != nil {
		return "", false, err
	}
	if ib := pc.ioBinds[id]; ib != nil && ib.kind == ioBuiltinValue {
		// The builtin itself, not the variable cast to its declared type.
		return r.name, true, nil
	}
	val, err := w.load(p)
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
