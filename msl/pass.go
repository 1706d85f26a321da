package msl

import (
	"slices"
	"strings"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// Direction distinguishes stage inputs from stage outputs.
type Direction uint8

const (
	DirectionInput Direction = iota
	DirectionOutput
)

// String returns "input" or "output".
func (d Direction) String() string {
	if d == DirectionOutput {
		return "output"
	}
	return "input"
}

// builtinKey names one builtin in one direction.
type builtinKey struct {
	dir     Direction
	builtin spirv.BuiltIn
}

type paramKey struct {
	function ir.ID
	global   ir.ID
}

// requirements is the state that survives from one pass to the next. It
// only ever grows.
type requirements struct {
	// builtins holds builtins discovered while emitting, per direction.
	builtins [2]ir.Bitset

	// fnBuiltins holds the builtins each function asked for.
	fnBuiltins map[ir.ID]map[builtinKey]struct{}

	// synthesized maps builtins the module did not declare to the
	// variables created for them.
	synthesized map[builtinKey]ir.ID

	// params maps a threaded global to its parameter in a function.
	params map[paramKey]ir.ID

	// active is the activation of the previous pass.
	active [2]ir.Bitset

	// blocks holds the type and variable IDs of each interface block.
	blocks map[blockKind][2]ir.ID
}

func newRequirements() *requirements {
	return &requirements{
		fnBuiltins:  make(map[ir.ID]map[builtinKey]struct{}),
		synthesized: make(map[builtinKey]ir.ID),
		params:      make(map[paramKey]ir.ID),
		blocks:      make(map[blockKind][2]ir.ID),
	}
}

// require records that fn needs key. It reports whether this is new.
func (r *requirements) require(fn ir.ID, key builtinKey) bool {
	grew := !r.builtins[key.dir].Has(uint32(key.builtin))
	r.builtins[key.dir].Set(uint32(key.builtin))
	set := r.fnBuiltins[fn]
	if set == nil {
		set = make(map[builtinKey]struct{})
		r.fnBuiltins[fn] = set
	}
	if _, ok := set[key]; !ok {
		set[key] = struct{}{}
		grew = true
	}
	return grew
}

// functionBuiltins returns the builtins fn asked for in a stable order.
func (r *requirements) functionBuiltins(fn ir.ID) []builtinKey {
	keys := make([]builtinKey, 0, len(r.fnBuiltins[fn]))
	for k := range r.fnBuiltins[fn] {
		keys = append(keys, k)
	}
	sortBuiltinKeys(keys)
	return keys
}

func sortBuiltinKeys(keys []builtinKey) {
	slices.SortFunc(keys, func(a, b builtinKey) int {
		if a.dir != b.dir {
			return int(a.dir) - int(b.dir)
		}
		return int(a.builtin) - int(b.builtin)
	})
}

// stepOutcome is what a pass step reports besides errors.
type stepOutcome struct {
	again   bool
	reasons []string
}

func stepDone() stepOutcome {
	return stepOutcome{}
}

func stepNeedsAnotherPass(reason string) stepOutcome {
	return stepOutcome{again: true, reasons: []string{reason}}
}

func (o *stepOutcome) merge(other stepOutcome) {
	o.again = o.again || other.again
	o.reasons = append(o.reasons, other.reasons...)
}

func (o stepOutcome) String() string {
	if !o.again {
		return "done"
	}
	return "needs another pass: " + strings.Join(o.reasons, "; ")
}

// passContext is the state of one translation pass. It is rebuilt from
// the module and the requirements at the start of every pass.
type passContext struct {
	number   int
	module   *ir.Module
	options  *Options
	bindings BindingTable
	renderer Renderer
	req      *requirements

	ep        *ir.EntryPoint
	entry     *ir.Function
	reachable []ir.ID

	// used holds every ID an instruction of a reachable function refers to.
	used map[ir.ID]struct{}
	// usedMembers holds the struct members accessed through access chains
	// rooted at interface variables. allMembers marks variables used as a
	// whole.
	usedMembers map[ir.ID]map[int]struct{}
	allMembers  map[ir.ID]struct{}
	// writesStorage is set when reachable code writes a device buffer or
	// storage image.
	writesStorage bool

	// Builtin activation.
	active      [2]ir.Bitset
	builtinVars map[builtinKey]ir.ID
	builtinReps map[builtinKey]builtinRep
	aux         ir.Bitset
	synthesized int

	rasterizationDisabled bool

	blocks  map[blockKind]*interfaceBlock
	ioBinds map[ir.ID]*ioBinding

	layouts *layoutSet

	plan *threadPlan

	resources []ir.ID
	targets   map[ir.ID]ResourceTarget
	automatic map[ir.ID]ResourceTarget
}

func newPassContext(c *Compiler, number int) *passContext {
	return &passContext{
		number:      number,
		module:      c.module,
		options:     &c.options,
		bindings:    c.pipeline.Bindings,
		renderer:    c.renderer,
		req:         c.req,
		ep:          c.ep,
		entry:       c.module.Function(c.ep.Function),
		builtinVars: make(map[builtinKey]ir.ID),
		builtinReps: make(map[builtinKey]builtinRep),
		blocks:      make(map[blockKind]*interfaceBlock),
		ioBinds:     make(map[ir.ID]*ioBinding),
	}
}

func (pc *passContext) stage() spirv.ExecutionModel {
	return pc.ep.Model
}

func (pc *passContext) isUsed(id ir.ID) bool {
	_, ok := pc.used[id]
	return ok
}

// memberUsed reports whether member i of the struct behind variable v is
// accessed.
func (pc *passContext) memberUsed(v ir.ID, i int) bool {
	if _, ok := pc.allMembers[v]; ok {
		return true
	}
	_, ok := pc.usedMembers[v][i]
	return ok
}

// scanUses walks the reachable functions once and records which IDs and
// interface struct members they touch.
func (pc *passContext) scanUses() error {
	m := pc.module
	pc.reachable = m.Reachable(pc.ep.Function)
	pc.used = make(map[ir.ID]struct{})
	pc.usedMembers = make(map[ir.ID]map[int]struct{})
	pc.allMembers = make(map[ir.ID]struct{})

	for _, fid := range pc.reachable {
		fn := m.Function(fid)
		if fn == nil {
			return invalid("call to %d, which is not a function", fid)
		}
		roots := make(map[ir.ID]ir.ID)
		rootOf := func(id ir.ID) ir.ID {
			if r, ok := roots[id]; ok {
				return r
			}
			return id
		}
		for _, vid := range fn.LocalVariables {
			if v := m.Variable(vid); v != nil && v.Initializer != 0 {
				pc.used[v.Initializer] = struct{}{}
			}
		}
		for _, bid := range fn.Blocks {
			b := m.Block(bid)
			if b == nil {
				return invalid("function %s lists missing block %d", m.Name(fid), bid)
			}
			for i := range b.Ops {
				inst := &b.Ops[i]
				ids := inst.IDOperands()
				for _, id := range ids {
					pc.used[id] = struct{}{}
				}
				switch inst.Op {
				case spirv.OpAccessChain, spirv.OpInBoundsAccessChain:
					if len(ids) == 0 {
						continue
					}
					base := rootOf(ids[0])
					roots[inst.Result] = base
					pc.noteMemberAccess(base, ids[0], ids[1:])
				case spirv.OpLoad, spirv.OpCopyMemory:
					if len(ids) > 0 && inst.Op == spirv.OpLoad && rootOf(ids[0]) == ids[0] {
						pc.allMembers[ids[0]] = struct{}{}
					}
					if inst.Op == spirv.OpCopyMemory && len(ids) > 1 {
						pc.allMembers[ids[1]] = struct{}{}
						pc.allMembers[ids[0]] = struct{}{}
						pc.noteStorageWrite(rootOf(ids[0]))
					}
				case spirv.OpStore:
					if len(ids) > 0 {
						if rootOf(ids[0]) == ids[0] {
							pc.allMembers[ids[0]] = struct{}{}
						}
						pc.noteStorageWrite(rootOf(ids[0]))
					}
				case spirv.OpImageWrite:
					pc.writesStorage = true
				default:
					if spirv.IsAtomic(inst.Op) && inst.Op != spirv.OpAtomicLoad && len(ids) > 0 {
						pc.noteStorageWrite(rootOf(ids[0]))
					}
				}
			}
			for _, id := range []ir.ID{b.Condition, b.ReturnValue} {
				if id != 0 {
					pc.used[id] = struct{}{}
				}
			}
		}
	}
	return nil
}

// noteMemberAccess records the struct member an access chain selects when
// it starts at an interface variable.
func (pc *passContext) noteMemberAccess(root, base ir.ID, indices []ir.ID) {
	m := pc.module
	if root != base {
		// Chains through other chains were recorded at their first link.
		return
	}
	v := m.Variable(root)
	if v == nil || (v.Storage != spirv.StorageClassInput && v.Storage != spirv.StorageClassOutput) {
		return
	}
	t := m.Pointee(v.Type)
	pos := 0
	if t.IsArray() && pc.arrayedInterface(v) {
		pos = 1
		t = m.Element(t)
	}
	if !t.IsStruct() || len(indices) <= pos {
		pc.allMembers[root] = struct{}{}
		return
	}
	c := m.Constant(indices[pos])
	if c == nil {
		pc.allMembers[root] = struct{}{}
		return
	}
	set := pc.usedMembers[root]
	if set == nil {
		set = make(map[int]struct{})
		pc.usedMembers[root] = set
	}
	set[int(c.Scalar)] = struct{}{}
}

func (pc *passContext) noteStorageWrite(root ir.ID) {
	v := pc.module.Variable(root)
	if v == nil {
		return
	}
	switch v.Storage {
	case spirv.StorageClassStorageBuffer, spirv.StorageClassPhysicalStorageBuffer:
		pc.writesStorage = true
	case spirv.StorageClassUniform:
		if t := pc.module.Innermost(pc.module.Pointee(v.Type)); t != nil && pc.module.HasDecoration(t.Self, spirv.DecorationBufferBlock) {
			pc.writesStorage = true
		}
	}
}

// arrayedInterface reports whether v carries one element per control
// point, so its outermost array dimension indexes vertices.
func (pc *passContext) arrayedInterface(v *ir.Variable) bool {
	if pc.module.HasDecoration(v.Self, spirv.DecorationPatch) {
		return false
	}
	if bi, ok := pc.module.BuiltIn(v.Self); ok {
		switch bi {
		case spirv.BuiltInTessLevelInner, spirv.BuiltInTessLevelOuter:
			return false
		}
	}
	switch pc.stage() {
	case spirv.ExecutionModelTessellationControl:
		return true
	case spirv.ExecutionModelTessellationEvaluation:
		return v.Storage == spirv.StorageClassInput
	}
	return false
}

// interfaceVariables returns the entry point's Input and Output variables
// in ID order.
func (pc *passContext) interfaceVariables() []ir.ID {
	ids := slices.Clone(pc.ep.Interface)
	slices.Sort(ids)
	return slices.Compact(ids)
}

// auxBuffers returns the auxiliary buffers the pass needs, in index order.
func (pc *passContext) auxBuffers() []AuxBuffer {
	var out []AuxBuffer
	for _, v := range pc.aux.Values() {
		out = append(out, AuxBuffer(v))
	}
	return out
}

func (pc *passContext) needAux(a AuxBuffer) {
	pc.aux.Set(uint32(a))
}

// descriptorSets returns the descriptor sets used by resources when
// argument buffers are on.
func (pc *passContext) descriptorSets() []uint32 {
	var sets []uint32
	for _, id := range pc.resources {
		v := pc.module.Variable(id)
		if v.Storage == spirv.StorageClassPushConstant {
			continue
		}
		sets = append(sets, pc.module.Decoration(id, spirv.DecorationDescriptorSet))
	}
	slices.Sort(sets)
	return slices.Compact(sets)
}

// collectResources lists the resource variables reachable code uses.
func (pc *passContext) collectResources() {
	pc.resources = pc.resources[:0]
	for _, v := range pc.module.Variables() {
		if !pc.isUsed(v.Self) {
			continue
		}
		if _, ok := classifyResource(pc.module, v); ok {
			pc.resources = append(pc.resources, v.Self)
		}
	}
	slices.Sort(pc.resources)
}

// patchControlPoints returns the number of control points per patch.
func (pc *passContext) patchControlPoints() uint32 {
	if pc.options.TessPatchControlPoints != 0 {
		return pc.options.TessPatchControlPoints
	}
	if pc.ep.OutputVertices != 0 {
		return pc.ep.OutputVertices
	}
	return 3
}

// usedSorted returns the used IDs in ascending order.
func (pc *passContext) usedSorted() []ir.ID {
	ids := make([]ir.ID, 0, len(pc.used))
	for id := range pc.used {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
