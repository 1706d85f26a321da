package msl

import (
	"slices"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// threadedParam is a global passed explicitly to a function.
type threadedParam struct {
	global ir.ID
	param  ir.ID
}

// threadPlan says which globals every reachable function receives as
// parameters. The entry function reaches globals directly.
type threadPlan struct {
	params map[ir.ID][]threadedParam
	// redirect maps a parameter back to its global.
	redirect map[ir.ID]ir.ID

	needs    map[ir.ID][]ir.ID
	visiting map[ir.ID]bool
}

// isGlobalClass reports whether variables of storage class sc live outside
// any function and must be threaded.
func isGlobalClass(sc spirv.StorageClass) bool {
	switch sc {
	case spirv.StorageClassInput, spirv.StorageClassOutput,
		spirv.StorageClassUniform, spirv.StorageClassUniformConstant,
		spirv.StorageClassPushConstant, spirv.StorageClassStorageBuffer,
		spirv.StorageClassPrivate, spirv.StorageClassWorkgroup:
		return true
	}
	return false
}

// threadGlobals builds the parameter plan of the pass.
func (pc *passContext) threadGlobals() error {
	plan := &threadPlan{
		params:   make(map[ir.ID][]threadedParam),
		redirect: make(map[ir.ID]ir.ID),
		needs:    make(map[ir.ID][]ir.ID),
		visiting: make(map[ir.ID]bool),
	}
	pc.plan = plan
	if _, err := pc.globalsOf(pc.entry.Self); err != nil {
		return err
	}
	for _, fid := range pc.reachable {
		if fid == pc.entry.Self {
			continue
		}
		globals, err := pc.globalsOf(fid)
		if err != nil {
			return err
		}
		for _, g := range globals {
			if ib := pc.ioBinds[g]; ib != nil && ib.kind == ioArrayed {
				return unsupported("per control point variable %s used outside the entry point",
					pc.module.Name(g))
			}
			key := paramKey{function: fid, global: g}
			id, ok := pc.req.params[key]
			if !ok {
				id = pc.module.Reserve(1)
				pc.req.params[key] = id
			}
			plan.params[fid] = append(plan.params[fid], threadedParam{global: g, param: id})
			plan.redirect[id] = g
		}
	}
	return nil
}

// globalsOf returns the globals fn touches directly or through its callees,
// in ID order. Every function is scanned once.
func (pc *passContext) globalsOf(fid ir.ID) ([]ir.ID, error) {
	plan := pc.plan
	if g, ok := plan.needs[fid]; ok {
		return g, nil
	}
	if plan.visiting[fid] {
		return nil, invalid("function %s is recursive", pc.module.Name(fid))
	}
	plan.visiting[fid] = true
	defer delete(plan.visiting, fid)

	m := pc.module
	fn := m.Function(fid)
	if fn == nil {
		return nil, invalid("call to %d, which is not a function", fid)
	}
	set := make(map[ir.ID]struct{})
	note := func(id ir.ID) {
		if v := m.Variable(id); v != nil && !v.FunctionScope && isGlobalClass(v.Storage) {
			set[id] = struct{}{}
		}
	}
	for _, vid := range fn.LocalVariables {
		if v := m.Variable(vid); v != nil && v.Initializer != 0 {
			note(v.Initializer)
		}
	}
	for _, bid := range fn.Blocks {
		b := m.Block(bid)
		if b == nil {
			return nil, invalid("function %s lists missing block %d", m.Name(fid), bid)
		}
		for i := range b.Ops {
			inst := &b.Ops[i]
			for _, id := range inst.IDOperands() {
				note(id)
			}
			if inst.Op == spirv.OpFunctionCall && len(inst.Operands) > 0 {
				callee, err := pc.globalsOf(ir.ID(inst.Operands[0]))
				if err != nil {
					return nil, err
				}
				for _, g := range callee {
					set[g] = struct{}{}
				}
			}
		}
	}
	for _, key := range pc.req.functionBuiltins(fid) {
		if id, ok := pc.builtinVars[key]; ok {
			set[id] = struct{}{}
		}
	}
	globals := make([]ir.ID, 0, len(set))
	for id := range set {
		globals = append(globals, id)
	}
	slices.Sort(globals)
	plan.needs[fid] = globals
	return globals, nil
}
