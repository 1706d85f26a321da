package ir

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/gogpu/spvmsl/spirv"
)

// ErrKindConflict is returned when an ID that already holds an entity is
// assigned an entity of a different kind.
var ErrKindConflict = errors.New("ir: entity kind conflict")

// ErrUnreserved is returned when an entity is stored under an ID that was
// never reserved.
var ErrUnreserved = errors.New("ir: id not reserved")

// Module is an ID-addressed pool of entities.
//
// The pool is additive: once an ID holds an entity, only entities of the
// same kind may replace it. Decorations can be added to any reserved ID.
type Module struct {
	bound    atomic.Uint32
	entities []Entity
	meta     map[ID]*Meta

	typeIndex map[string]ID
	keyBuf    []byte

	EntryPoints  []EntryPoint
	Capabilities []string
	Extensions   []string
}

// NewModule returns an empty module. ID 0 is never handed out.
func NewModule() *Module {
	m := &Module{meta: make(map[ID]*Meta)}
	m.bound.Store(1)
	return m
}

// Bound returns one past the largest reserved ID.
func (m *Module) Bound() ID {
	return ID(m.bound.Load())
}

// Reserve reserves n contiguous fresh IDs and returns the first one.
func (m *Module) Reserve(n int) ID {
	if n <= 0 {
		return ID(m.bound.Load())
	}
	end := m.bound.Add(uint32(n))
	return ID(end - uint32(n))
}

// Reserved reports whether id has been handed out.
func (m *Module) Reserved(id ID) bool {
	return id != 0 && id < m.Bound()
}

// Set stores e under id. Replacing an entity with one of a different kind
// fails with ErrKindConflict.
func (m *Module) Set(id ID, e Entity) error {
	if !m.Reserved(id) {
		return fmt.Errorf("%w: %d", ErrUnreserved, id)
	}
	if int(id) >= len(m.entities) {
		m.entities = append(m.entities, make([]Entity, int(id)+1-len(m.entities))...)
	}
	if old := m.entities[id]; old != nil && kindOf(old) != kindOf(e) {
		return fmt.Errorf("%w: id %d holds %s, not %s", ErrKindConflict, id, kindOf(old), kindOf(e))
	}
	m.entities[id] = e
	if t, ok := e.(*Type); ok && m.typeIndex != nil {
		m.indexType(t)
	}
	return nil
}

// Add reserves a fresh ID, stores the entity built by f under it and
// returns the ID.
func (m *Module) Add(f func(ID) Entity) ID {
	id := m.Reserve(1)
	if err := m.Set(id, f(id)); err != nil {
		panic(err) // fresh IDs cannot conflict
	}
	return id
}

// Entity returns the entity stored under id, or nil.
func (m *Module) Entity(id ID) Entity {
	if int(id) >= len(m.entities) {
		return nil
	}
	return m.entities[id]
}

// Type returns the type stored under id, or nil.
func (m *Module) Type(id ID) *Type {
	t, _ := m.Entity(id).(*Type)
	return t
}

// Variable returns the variable stored under id, or nil.
func (m *Module) Variable(id ID) *Variable {
	v, _ := m.Entity(id).(*Variable)
	return v
}

// Constant returns the constant stored under id, or nil.
func (m *Module) Constant(id ID) *Constant {
	c, _ := m.Entity(id).(*Constant)
	return c
}

// Function returns the function stored under id, or nil.
func (m *Module) Function(id ID) *Function {
	f, _ := m.Entity(id).(*Function)
	return f
}

// Block returns the block stored under id, or nil.
func (m *Module) Block(id ID) *Block {
	b, _ := m.Entity(id).(*Block)
	return b
}

// ExtInstImport returns the import stored under id, or nil.
func (m *Module) ExtInstImport(id ID) *ExtInstImport {
	e, _ := m.Entity(id).(*ExtInstImport)
	return e
}

// IDs returns every populated ID in ascending order.
func (m *Module) IDs() []ID {
	ids := make([]ID, 0, len(m.entities))
	for i, e := range m.entities {
		if e != nil {
			ids = append(ids, ID(i))
		}
	}
	return ids
}

// Variables returns the module-scope variables in ID order.
func (m *Module) Variables() []*Variable {
	var out []*Variable
	for _, e := range m.entities {
		if v, ok := e.(*Variable); ok && !v.FunctionScope {
			out = append(out, v)
		}
	}
	return out
}

// Meta returns the decoration state of id, or nil if it has none.
func (m *Module) Meta(id ID) *Meta {
	return m.meta[id]
}

// MetaFor returns the decoration state of id, creating it if needed.
func (m *Module) MetaFor(id ID) *Meta {
	if md, ok := m.meta[id]; ok {
		return md
	}
	md := &Meta{}
	m.meta[id] = md
	return md
}

// Decorate records decoration dec with value on id.
func (m *Module) Decorate(id ID, dec spirv.Decoration, value uint32) {
	m.MetaFor(id).Set(dec, value)
}

// DecorateMember records decoration dec with value on member i of id.
func (m *Module) DecorateMember(id ID, i int, dec spirv.Decoration, value uint32) {
	m.MetaFor(id).Member(i).Set(dec, value)
}

// HasDecoration reports whether id carries dec.
func (m *Module) HasDecoration(id ID, dec spirv.Decoration) bool {
	md := m.meta[id]
	return md != nil && md.Has(dec)
}

// Decoration returns the value of dec on id.
func (m *Module) Decoration(id ID, dec spirv.Decoration) uint32 {
	md := m.meta[id]
	if md == nil {
		return 0
	}
	return md.Get(dec)
}

// HasMemberDecoration reports whether member i of id carries dec.
func (m *Module) HasMemberDecoration(id ID, i int, dec spirv.Decoration) bool {
	md := m.meta[id]
	return md != nil && i < len(md.Members) && md.Members[i].Has(dec)
}

// MemberDecoration returns the value of dec on member i of id.
func (m *Module) MemberDecoration(id ID, i int, dec spirv.Decoration) uint32 {
	md := m.meta[id]
	if md == nil || i >= len(md.Members) {
		return 0
	}
	return md.Members[i].Get(dec)
}

// BuiltIn returns the builtin decoration of id.
func (m *Module) BuiltIn(id ID) (spirv.BuiltIn, bool) {
	md := m.meta[id]
	if md == nil || !md.IsBuiltIn() {
		return 0, false
	}
	return md.BuiltIn, true
}

// MemberBuiltIn returns the builtin decoration of member i of id.
func (m *Module) MemberBuiltIn(id ID, i int) (spirv.BuiltIn, bool) {
	md := m.meta[id]
	if md == nil || i >= len(md.Members) || !md.Members[i].IsBuiltIn() {
		return 0, false
	}
	return md.Members[i].BuiltIn, true
}

// Name returns the debug name of id.
func (m *Module) Name(id ID) string {
	if md := m.meta[id]; md != nil {
		return md.Name
	}
	return ""
}

// SetName sets the debug name of id.
func (m *Module) SetName(id ID, name string) {
	m.MetaFor(id).Name = name
}

// MemberName returns the debug name of member i of id.
func (m *Module) MemberName(id ID, i int) string {
	md := m.meta[id]
	if md == nil || i >= len(md.Members) {
		return ""
	}
	return md.Members[i].Name
}

// SetMemberName sets the debug name of member i of id.
func (m *Module) SetMemberName(id ID, i int, name string) {
	m.MetaFor(id).Member(i).Name = name
}

// EntryPoint returns the entry point with the given name and model.
func (m *Module) EntryPoint(name string, model spirv.ExecutionModel) *EntryPoint {
	for i := range m.EntryPoints {
		if m.EntryPoints[i].Name == name && m.EntryPoints[i].Model == model {
			return &m.EntryPoints[i]
		}
	}
	return nil
}

// FindEntryPoint returns the first entry point called name.
func (m *Module) FindEntryPoint(name string) *EntryPoint {
	for i := range m.EntryPoints {
		if m.EntryPoints[i].Name == name {
			return &m.EntryPoints[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the module. Mutating the copy, including
// reserving IDs, leaves the original untouched.
func (m *Module) Clone() *Module {
	c := &Module{
		entities:     make([]Entity, len(m.entities)),
		meta:         make(map[ID]*Meta, len(m.meta)),
		Capabilities: slices.Clone(m.Capabilities),
		Extensions:   slices.Clone(m.Extensions),
	}
	c.bound.Store(m.bound.Load())
	for i, e := range m.entities {
		if e != nil {
			c.entities[i] = cloneEntity(e)
		}
	}
	for id, md := range m.meta {
		c.meta[id] = md.clone()
	}
	c.EntryPoints = make([]EntryPoint, len(m.EntryPoints))
	for i, ep := range m.EntryPoints {
		ep.Interface = slices.Clone(ep.Interface)
		ep.Modes = ep.Modes.Clone()
		c.EntryPoints[i] = ep
	}
	return c
}

func cloneEntity(e Entity) Entity {
	switch e := e.(type) {
	case *Type:
		t := *e
		t.Array = slices.Clone(e.Array)
		t.ArrayLiteral = slices.Clone(e.ArrayLiteral)
		t.Members = slices.Clone(e.Members)
		return &t
	case *Variable:
		v := *e
		return &v
	case *Constant:
		k := *e
		k.Composite = slices.Clone(e.Composite)
		return &k
	case *Function:
		f := *e
		f.Params = slices.Clone(e.Params)
		f.Blocks = slices.Clone(e.Blocks)
		f.LocalVariables = slices.Clone(e.LocalVariables)
		return &f
	case *Block:
		b := *e
		b.Ops = make([]Instruction, len(e.Ops))
		for i, op := range e.Ops {
			op.Operands = slices.Clone(op.Operands)
			b.Ops[i] = op
		}
		b.Cases = slices.Clone(e.Cases)
		return &b
	case *ExtInstImport:
		x := *e
		return &x
	case *Undef:
		u := *e
		return &u
	}
	panic(fmt.Sprintf("ir: unknown entity %T", e))
}

func kindOf(e Entity) string {
	switch e.(type) {
	case *Type:
		return "type"
	case *Variable:
		return "variable"
	case *Constant:
		return "constant"
	case *Function:
		return "function"
	case *Block:
		return "block"
	case *ExtInstImport:
		return "ext-inst-import"
	case *Undef:
		return "undef"
	}
	return "unknown"
}
