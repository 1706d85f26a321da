package ir

import "github.com/gogpu/spvmsl/spirv"

// VisitType walks the type graph rooted at root depth first, calling fn for
// every type exactly once. Struct members may reach their own struct again
// through pointers, so the walk keeps a visited set. Returning false from
// fn stops descent below that type.
func (m *Module) VisitType(root ID, fn func(*Type) bool) {
	seen := make(map[ID]struct{})
	stack := []ID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		t := m.Type(id)
		if t == nil || !fn(t) {
			continue
		}
		// Push in reverse so members are visited in declaration order.
		for i := len(t.Members) - 1; i >= 0; i-- {
			stack = append(stack, t.Members[i])
		}
		if t.Parent != 0 {
			stack = append(stack, t.Parent)
		}
	}
}

// ContainsType reports whether pred holds for root or any type reachable
// from it.
func (m *Module) ContainsType(root ID, pred func(*Type) bool) bool {
	found := false
	m.VisitType(root, func(t *Type) bool {
		if pred(t) {
			found = true
		}
		return !found
	})
	return found
}

// Pointee follows pointer links from id until it reaches a non-pointer type.
func (m *Module) Pointee(id ID) *Type {
	t := m.Type(id)
	for t != nil && t.Pointer {
		t = m.Type(t.Parent)
	}
	return t
}

// Element returns the type one array dimension below t.
func (m *Module) Element(t *Type) *Type {
	if len(t.Array) == 0 {
		return t
	}
	return m.Type(t.Parent)
}

// Innermost strips every array dimension from t.
func (m *Module) Innermost(t *Type) *Type {
	for t != nil && len(t.Array) > 0 && !t.Pointer {
		t = m.Type(t.Parent)
	}
	return t
}

// ValueType returns the non-pointer type of a variable, constant or undef.
func (m *Module) ValueType(id ID) *Type {
	switch e := m.Entity(id).(type) {
	case *Variable:
		return m.Pointee(e.Type)
	case *Constant:
		return m.Type(e.Type)
	case *Undef:
		return m.Type(e.Type)
	}
	return nil
}

// ArraySize resolves dimension dim of t to a literal size. Sizes given by
// constants are looked up; spec constants resolve to their default value.
func (m *Module) ArraySize(t *Type, dim int) uint32 {
	if t.ArrayLiteral[dim] {
		return t.Array[dim]
	}
	if c := m.Constant(ID(t.Array[dim])); c != nil {
		return uint32(c.Scalar)
	}
	return 0
}

// Callees returns the functions called from fn in first-call order.
func (m *Module) Callees(fn *Function) []ID {
	var out []ID
	seen := make(map[ID]struct{})
	for _, bid := range fn.Blocks {
		b := m.Block(bid)
		if b == nil {
			continue
		}
		for i := range b.Ops {
			op := &b.Ops[i]
			if op.Op != spirv.OpFunctionCall || len(op.Operands) == 0 {
				continue
			}
			callee := ID(op.Operands[0])
			if _, ok := seen[callee]; !ok {
				seen[callee] = struct{}{}
				out = append(out, callee)
			}
		}
	}
	return out
}

// Reachable returns entry and every function reachable from it through
// calls, in depth-first discovery order. Recursive call graphs terminate.
func (m *Module) Reachable(entry ID) []ID {
	var out []ID
	seen := make(map[ID]struct{})
	var walk func(ID)
	walk = func(id ID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
		fn := m.Function(id)
		if fn == nil {
			return
		}
		for _, c := range m.Callees(fn) {
			walk(c)
		}
	}
	walk(entry)
	return out
}
