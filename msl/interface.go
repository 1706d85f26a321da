package msl

import (
	"fmt"
	"slices"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// blockKind selects one of the interface blocks of an entry point.
type blockKind uint8

const (
	blockIn blockKind = iota
	blockOut
	blockPatchIn
	blockPatchOut
)

var blockSuffixes = [...]string{"_in", "_out", "_patchIn", "_patchOut"}
var blockVarNames = [...]string{"in", "out", "patchIn", "patchOut"}

func (k blockKind) direction() Direction {
	if k == blockOut || k == blockPatchOut {
		return DirectionOutput
	}
	return DirectionInput
}

// memberKey identifies what an interface member stands for: a variable,
// optionally one of its struct members and one element or column.
type memberKey struct {
	variable ir.ID
	member   int32
	element  int32
}

func varKey(v ir.ID) memberKey { return memberKey{variable: v, member: -1, element: -1} }

// pathStep is one step from a variable to the value a member carries.
type pathStep struct {
	member bool
	index  int
}

func memberStep(i int) pathStep { return pathStep{member: true, index: i} }
func indexStep(i int) pathStep  { return pathStep{index: i} }

// packedPart is one variable merged into a shared location.
type packedPart struct {
	key       memberKey
	component uint32
	width     uint32
}

// interfaceMember is one member of an interface block.
type interfaceMember struct {
	key  memberKey
	name string

	// typ is the scalar or vector type of the member. arrayLen is set for
	// consolidated clip and cull distances.
	typ      ir.ID
	arrayLen uint32

	location    uint32
	hasLocation bool
	component   uint32
	index       uint32
	hasIndex    bool

	builtin   spirv.BuiltIn
	isBuiltin bool
	// hoisted members are emitted as entry point arguments.
	hoisted bool
	// argType overrides the argument type of hoisted builtins.
	argType string

	flat, noPerspective, centroid, sample bool

	parts []packedPart

	// defaultValue initializes output builtins no code writes. copyFrom
	// names the builtin whose value they take instead.
	defaultValue string
	copyFrom     *builtinKey
}

// interfaceBlock is one synthesized aggregate of stage inputs or outputs.
type interfaceBlock struct {
	kind     blockKind
	typeName string
	varName  string
	typeID   ir.ID
	varID    ir.ID

	members []*interfaceMember
	// slots maps every represented key to its member index.
	slots map[memberKey]int

	// device blocks live in buffers and carry no attributes.
	device bool
	// controlPoints is set for tessellation evaluation input blocks that
	// hold a patch_control_point of per-vertex data.
	controlPoints bool
}

func (b *interfaceBlock) add(im *interfaceMember) {
	b.slots[im.key] = len(b.members)
	b.members = append(b.members, im)
}

// slot returns the member standing for key.
func (b *interfaceBlock) slot(key memberKey) (*interfaceMember, bool) {
	i, ok := b.slots[key]
	if !ok {
		return nil, false
	}
	return b.members[i], true
}

// sortMembers orders members by location, then builtin, and remaps the
// slot indices captured during registration.
func (b *interfaceBlock) sortMembers() {
	slices.SortStableFunc(b.members, func(x, y *interfaceMember) int {
		if x.isBuiltin != y.isBuiltin {
			if x.isBuiltin {
				return 1
			}
			return -1
		}
		if x.isBuiltin {
			return int(x.builtin) - int(y.builtin)
		}
		if x.location != y.location {
			return int(x.location) - int(y.location)
		}
		if x.index != y.index {
			return int(x.index) - int(y.index)
		}
		return int(x.component) - int(y.component)
	})
	b.remap()
}

// remap rebuilds slots from the member keys.
func (b *interfaceBlock) remap() {
	clear(b.slots)
	for i, im := range b.members {
		b.slots[im.key] = i
		for _, p := range im.parts {
			b.slots[p.key] = i
		}
	}
}

// emitted reports whether the block has members outside the argument list.
func (b *interfaceBlock) emitted() bool {
	for _, im := range b.members {
		if !im.hoisted {
			return true
		}
	}
	return b.controlPoints
}

// ioKind says how code reaches a stage variable.
type ioKind uint8

const (
	// ioMember variables are a block member, used in place.
	ioMember ioKind = iota
	// ioLocal variables are entry point locals copied from or to members.
	ioLocal
	// ioArg variables are hoisted entry point arguments.
	ioArg
	// ioArrayed variables index per control point data.
	ioArrayed
	// ioBuiltinValue variables are locals initialized from a builtin
	// representation.
	ioBuiltinValue
)

// ioFixup copies one member to or from part of a local.
type ioFixup struct {
	key memberKey
	// local is the path from the local to the copied value; member the
	// path inside the member.
	local  []pathStep
	member []pathStep
	// swizzle selects components of a packed or padded member.
	swizzle string
	// cast converts between differing local and member types.
	cast bool
}

// ioBinding is how one stage variable is represented in the entry point.
type ioBinding struct {
	kind  ioKind
	dir   Direction
	block *interfaceBlock
	// key selects the member of ioMember and ioArg bindings.
	key    memberKey
	fixups []ioFixup

	// builtin and rep describe ioBuiltinValue bindings.
	builtin builtinKey
	rep     builtinRep
	// cast converts a builtin value to the variable type.
	cast bool

	// arrayed holds the expression naming per control point storage.
	arrayed string
	// elemStruct is set when each control point holds a struct, so the
	// second access index picks a member.
	elemStruct bool
}

// entryName returns the MSL name of an entry point.
func entryName(name string) string {
	if name == "main" || name == "" {
		return "main0"
	}
	return Escape(name)
}

type interfaceBuilder struct {
	pc    *passContext
	m     *ir.Module
	names map[blockKind]*namer
	// nextLocation is the first location free for members without one.
	nextLocation [2]uint32
}

func (pc *passContext) block(kind blockKind) *interfaceBlock {
	b, ok := pc.blocks[kind]
	if !ok {
		b = &interfaceBlock{
			kind:     kind,
			typeName: entryName(pc.ep.Name) + blockSuffixes[kind],
			varName:  blockVarNames[kind],
			slots:    make(map[memberKey]int),
		}
		pc.blocks[kind] = b
	}
	return b
}

// buildInterfaces collects the live stage variables into interface blocks
// and decides how every variable is reached.
func (pc *passContext) buildInterfaces() error {
	b := &interfaceBuilder{pc: pc, m: pc.module, names: make(map[blockKind]*namer)}

	switch pc.stage() {
	case spirv.ExecutionModelGeometry:
		return unsupported("geometry shaders")
	case tescStage:
		pc.block(blockIn).device = true
		pc.block(blockOut).device = true
		pc.block(blockPatchOut).device = true
		pc.needAux(AuxShaderInput)
		pc.needAux(AuxShaderOutput)
		pc.needAux(AuxPatchOutput)
		pc.needAux(AuxTessFactor)
		pc.needAux(AuxIndirectParams)
	case teseStage:
		if pc.options.RawBufferTessellationInput {
			pc.block(blockIn).device = true
			pc.block(blockPatchIn).device = true
			pc.needAux(AuxShaderInput)
			pc.needAux(AuxPatchOutput)
		}
	case vertexStage:
		if pc.options.CaptureOutputToBuffer || pc.options.VertexForTessellation {
			pc.block(blockOut).device = true
			pc.needAux(AuxShaderOutput)
			pc.needAux(AuxIndirectParams)
		}
	}

	vars := pc.interfaceVariables()
	// Locations of members without one start after the highest declared.
	for _, id := range vars {
		v := b.m.Variable(id)
		if v == nil {
			continue
		}
		if dir, ok := directionOf(v.Storage); ok && b.m.HasDecoration(id, spirv.DecorationLocation) {
			loc := b.m.Decoration(id, spirv.DecorationLocation)
			b.nextLocation[dir] = max(b.nextLocation[dir], loc+b.locationCount(b.m.Pointee(v.Type)))
		}
	}

	for _, id := range vars {
		v := b.m.Variable(id)
		dir, ok := directionOf(v.Storage)
		if !ok || !b.live(v) {
			continue
		}
		if err := b.addVariable(v, dir); err != nil {
			return err
		}
	}

	for _, kind := range []blockKind{blockIn, blockOut, blockPatchIn, blockPatchOut} {
		blk, ok := pc.blocks[kind]
		if !ok {
			continue
		}
		if err := b.packLocations(blk); err != nil {
			return err
		}
		if pc.stage() == fragmentStage && kind == blockOut && pc.options.PadFragmentOutputComponents {
			b.padOutputs(blk)
		}
		blk.sortMembers()
		if err := b.materialize(blk); err != nil {
			return err
		}
	}
	return nil
}

// live reports whether an interface variable takes part in this pass.
func (b *interfaceBuilder) live(v *ir.Variable) bool {
	if b.pc.isUsed(v.Self) {
		return true
	}
	for key, id := range b.pc.builtinVars {
		if id == v.Self && b.pc.isActive(key) {
			return true
		}
	}
	return false
}

// locationCount returns the number of locations a value of type t spans.
func (b *interfaceBuilder) locationCount(t *ir.Type) uint32 {
	if t == nil {
		return 1
	}
	switch {
	case t.IsArray():
		return max(b.m.ArraySize(t, len(t.Array)-1), 1) * b.locationCount(b.m.Type(t.Parent))
	case t.IsMatrix():
		return t.Columns
	case t.IsStruct():
		n := uint32(0)
		for _, mt := range t.Members {
			n += b.locationCount(b.m.Type(mt))
		}
		return n
	}
	return 1
}

func (b *interfaceBuilder) memberName(kind blockKind, base string) string {
	n, ok := b.names[kind]
	if !ok {
		n = newNamer()
		b.names[kind] = n
	}
	return n.call(base)
}

func (b *interfaceBuilder) varName(v ir.ID) string {
	if n := b.m.Name(v); n != "" {
		return n
	}
	return fmt.Sprintf("m_%d", v)
}

func (b *interfaceBuilder) bind(v ir.ID, ib *ioBinding) {
	b.pc.ioBinds[v] = ib
}

// blockFor picks the block a variable of direction dir belongs to.
func (b *interfaceBuilder) blockFor(v *ir.Variable, dir Direction) *interfaceBlock {
	patch := b.m.HasDecoration(v.Self, spirv.DecorationPatch)
	switch {
	case patch && dir == DirectionInput:
		return b.pc.block(blockPatchIn)
	case patch:
		return b.pc.block(blockPatchOut)
	case dir == DirectionInput:
		return b.pc.block(blockIn)
	}
	return b.pc.block(blockOut)
}

func (b *interfaceBuilder) addVariable(v *ir.Variable, dir Direction) error {
	m := b.m
	t := m.Pointee(v.Type)
	if bi, ok := m.BuiltIn(v.Self); ok {
		return b.addBuiltinVariable(v, builtinKey{dir: dir, builtin: bi}, t)
	}
	if key, ok := b.pc.builtinOf(v.Self); ok && key.builtin == builtinDispatchBase {
		return b.addBuiltinVariable(v, key, t)
	}
	if b.pc.arrayedInterface(v) && t.IsArray() {
		return b.addArrayed(v, dir, m.Element(t))
	}
	if b.pc.stage() == tescStage && dir == DirectionOutput {
		// Patch outputs live in the patch buffer and are used in place.
		blk := b.pc.block(blockPatchOut)
		return b.addPlain(blk, v, t)
	}
	return b.addPlain(b.blockFor(v, dir), v, t)
}

// addPlain registers a user variable, flattening composites.
func (b *interfaceBuilder) addPlain(blk *interfaceBlock, v *ir.Variable, t *ir.Type) error {
	m := b.m
	loc := m.Decoration(v.Self, spirv.DecorationLocation)
	if !m.HasDecoration(v.Self, spirv.DecorationLocation) && !t.IsStruct() {
		loc = b.nextLocation[blk.kind.direction()]
		b.nextLocation[blk.kind.direction()]++
	}
	if blk.device && !t.IsStruct() {
		// Buffers hold composites as they are.
		im := b.newMember(blk, v.Self, varKey(v.Self), b.varName(v.Self), t.Self, loc)
		blk.add(im)
		b.bind(v.Self, &ioBinding{kind: ioMember, dir: blk.kind.direction(), block: blk, key: im.key})
		return nil
	}
	if t.IsScalar() || t.IsVector() {
		im := b.newMember(blk, v.Self, varKey(v.Self), b.varName(v.Self), t.Self, loc)
		im.component = m.Decoration(v.Self, spirv.DecorationComponent)
		blk.add(im)
		b.bind(v.Self, &ioBinding{kind: ioMember, dir: blk.kind.direction(), block: blk, key: im.key})
		return nil
	}
	ib := &ioBinding{kind: ioLocal, dir: blk.kind.direction(), block: blk}
	if err := b.flatten(blk, v, t, ib, loc); err != nil {
		return err
	}
	b.bind(v.Self, ib)
	return nil
}

func (b *interfaceBuilder) newMember(blk *interfaceBlock, v ir.ID, key memberKey, name string, typ ir.ID, loc uint32) *interfaceMember {
	m := b.m
	im := &interfaceMember{
		key:         key,
		name:        b.memberName(blk.kind, name),
		typ:         typ,
		location:    loc,
		hasLocation: true,
	}
	flag := func(dec spirv.Decoration) bool {
		if m.HasDecoration(v, dec) {
			return true
		}
		if key.member >= 0 {
			t := m.Pointee(m.Variable(v).Type)
			if s := m.Innermost(t); s != nil && s.IsStruct() {
				return m.HasMemberDecoration(s.Self, int(key.member), dec)
			}
		}
		return false
	}
	im.flat = flag(spirv.DecorationFlat)
	im.noPerspective = flag(spirv.DecorationNoPerspective)
	im.centroid = flag(spirv.DecorationCentroid)
	im.sample = flag(spirv.DecorationSample)
	if m.HasDecoration(v, spirv.DecorationIndex) {
		im.index, im.hasIndex = m.Decoration(v, spirv.DecorationIndex), true
	}
	return im
}

// flatten splits a composite into members, one location each.
func (b *interfaceBuilder) flatten(blk *interfaceBlock, v *ir.Variable, t *ir.Type, ib *ioBinding, loc uint32) error {
	m := b.m
	name := b.varName(v.Self)
	addLeaf := func(key memberKey, base string, typ ir.ID, local []pathStep, loc uint32) {
		im := b.newMember(blk, v.Self, key, base, typ, loc)
		blk.add(im)
		ib.fixups = append(ib.fixups, ioFixup{key: key, local: local})
	}
	switch {
	case t.IsMatrix():
		col := m.Vector(t.Base, t.Width, t.VecSize)
		for c := uint32(0); c < t.Columns; c++ {
			key := memberKey{variable: v.Self, member: -1, element: int32(c)}
			addLeaf(key, fmt.Sprintf("%s_%d", name, c), col, []pathStep{indexStep(int(c))}, loc+c)
		}
	case t.IsArray():
		elem := m.Type(t.Parent)
		n := m.ArraySize(t, len(t.Array)-1)
		switch {
		case elem.IsArray():
			return unsupported("array of arrays as stage %s %s", blk.kind.direction(), name)
		case elem.IsMatrix():
			return unsupported("array of matrices as stage %s %s", blk.kind.direction(), name)
		case elem.IsStruct():
			next := loc
			for e := uint32(0); e < n; e++ {
				for i, mt := range elem.Members {
					st := m.Type(mt)
					if !st.IsScalar() && !st.IsVector() {
						return unsupported("array of structs with composite members as stage %s %s", blk.kind.direction(), name)
					}
					key := memberKey{variable: v.Self, member: int32(i), element: int32(e)}
					base := fmt.Sprintf("%s_%d_%s", name, e, b.structMemberName(elem.Self, i))
					addLeaf(key, base, mt, []pathStep{indexStep(int(e)), memberStep(i)}, next)
					next++
				}
			}
		default:
			for e := uint32(0); e < n; e++ {
				key := memberKey{variable: v.Self, member: -1, element: int32(e)}
				addLeaf(key, fmt.Sprintf("%s_%d", name, e), elem.Self, []pathStep{indexStep(int(e))}, loc+e)
			}
		}
	case t.IsStruct():
		return b.flattenStruct(blk, v, t, ib, loc)
	default:
		return unsupported("stage %s %s of this type", blk.kind.direction(), name)
	}
	return nil
}

func (b *interfaceBuilder) structMemberName(s ir.ID, i int) string {
	if n := b.m.MemberName(s, i); n != "" {
		return n
	}
	return fmt.Sprintf("_m%d", i)
}

// flattenStruct registers the used members of a struct variable. Builtin
// members are named after their builtin.
func (b *interfaceBuilder) flattenStruct(blk *interfaceBlock, v *ir.Variable, t *ir.Type, ib *ioBinding, loc uint32) error {
	m := b.m
	pc := b.pc
	name := b.varName(v.Self)
	hasLoc := m.HasDecoration(v.Self, spirv.DecorationLocation)
	next := loc
	for i, mt := range t.Members {
		st := m.Type(mt)
		mloc := next
		if m.HasMemberDecoration(t.Self, i, spirv.DecorationLocation) {
			mloc = m.MemberDecoration(t.Self, i, spirv.DecorationLocation)
		} else if !hasLoc {
			mloc = b.nextLocation[blk.kind.direction()]
		}
		count := b.locationCount(st)
		next = mloc + count

		if bi, ok := m.MemberBuiltIn(t.Self, i); ok {
			key := builtinKey{dir: blk.kind.direction(), builtin: bi}
			if !pc.isActive(key) {
				continue
			}
			if err := b.addBuiltinMember(blk, v.Self, int32(i), key, st, ib, []pathStep{memberStep(i)}); err != nil {
				return err
			}
			continue
		}
		if !pc.memberUsed(v.Self, i) {
			continue
		}
		if !hasLoc && !m.HasMemberDecoration(t.Self, i, spirv.DecorationLocation) {
			b.nextLocation[blk.kind.direction()] += count
		}
		base := fmt.Sprintf("%s_%s", name, b.structMemberName(t.Self, i))
		switch {
		case st.IsScalar() || st.IsVector():
			key := memberKey{variable: v.Self, member: int32(i), element: -1}
			im := b.newMember(blk, v.Self, key, base, mt, mloc)
			im.component = m.MemberDecoration(t.Self, i, spirv.DecorationComponent)
			blk.add(im)
			ib.fixups = append(ib.fixups, ioFixup{key: key, local: []pathStep{memberStep(i)}})
		case st.IsMatrix():
			col := m.Vector(st.Base, st.Width, st.VecSize)
			for c := uint32(0); c < st.Columns; c++ {
				key := memberKey{variable: v.Self, member: int32(i), element: int32(c)}
				im := b.newMember(blk, v.Self, key, fmt.Sprintf("%s_%d", base, c), col, mloc+c)
				blk.add(im)
				ib.fixups = append(ib.fixups, ioFixup{key: key, local: []pathStep{memberStep(i), indexStep(int(c))}})
			}
		case st.IsArray():
			elem := m.Type(st.Parent)
			if !elem.IsScalar() && !elem.IsVector() {
				return unsupported("struct member %s with composite array elements as stage %s", base, blk.kind.direction())
			}
			n := m.ArraySize(st, len(st.Array)-1)
			for e := uint32(0); e < n; e++ {
				key := memberKey{variable: v.Self, member: int32(i), element: int32(e)}
				im := b.newMember(blk, v.Self, key, fmt.Sprintf("%s_%d", base, e), elem.Self, mloc+e)
				blk.add(im)
				ib.fixups = append(ib.fixups, ioFixup{key: key, local: []pathStep{memberStep(i), indexStep(int(e))}})
			}
		default:
			return unsupported("nested struct %s as stage %s", base, blk.kind.direction())
		}
	}
	return nil
}

// recipeType interns the MSL type of a builtin.
func (b *interfaceBuilder) recipeType(r *builtinRecipe) ir.ID {
	if r.base == ir.BaseBool {
		return b.m.Scalar(ir.BaseBool, 1)
	}
	if r.vecSize <= 1 {
		return b.m.Scalar(r.base, 32)
	}
	return b.m.Vector(r.base, 32, r.vecSize)
}

// sameValueType reports whether t matches the builtin representation, so
// no conversion is needed.
func sameValueType(m *ir.Module, t *ir.Type, r *builtinRecipe) bool {
	if t == nil || len(t.Array) != 0 || t.Columns > 1 || t.Base != r.base {
		return false
	}
	if r.base != ir.BaseBool && t.Width != 32 {
		return false
	}
	return t.VecSize == max(r.vecSize, 1)
}

// addBuiltinVariable registers a variable decorated with a builtin.
func (b *interfaceBuilder) addBuiltinVariable(v *ir.Variable, key builtinKey, t *ir.Type) error {
	pc := b.pc
	r := builtinRecipes[key.builtin]
	rep, active := pc.builtinReps[key]
	if r == nil || !active {
		return nil
	}
	if key.dir == DirectionInput {
		return b.addBuiltinInput(v, key, t, r, rep)
	}

	switch key.builtin {
	case spirv.BuiltInTessLevelOuter, spirv.BuiltInTessLevelInner:
		if pc.stage() != tescStage {
			return unsupported("%s as output of a %s shader", r.name, pc.stage())
		}
		b.bind(v.Self, &ioBinding{kind: ioLocal, dir: DirectionOutput, builtin: key})
		return nil
	}
	if t.IsArray() && b.pc.arrayedInterface(v) {
		return b.addArrayed(v, DirectionOutput, b.m.Element(t))
	}
	blk := b.pc.block(blockOut)
	ib := &ioBinding{kind: ioLocal, dir: DirectionOutput, block: blk}
	if t.IsStruct() {
		if err := b.flattenStruct(blk, v, t, ib, 0); err != nil {
			return err
		}
		b.bind(v.Self, ib)
		return nil
	}
	if err := b.addBuiltinMember(blk, v.Self, -1, key, t, ib, nil); err != nil {
		return err
	}
	if len(ib.fixups) == 1 && len(ib.fixups[0].local) == 0 && len(ib.fixups[0].member) == 0 && !ib.fixups[0].cast {
		ib = &ioBinding{kind: ioMember, dir: DirectionOutput, block: blk, key: ib.fixups[0].key}
	}
	b.bind(v.Self, ib)
	return nil
}

// addBuiltinInput registers an input builtin. Attributes are hoisted to
// entry arguments; everything else becomes an initialized local.
func (b *interfaceBuilder) addBuiltinInput(v *ir.Variable, key builtinKey, t *ir.Type, r *builtinRecipe, rep builtinRep) error {
	pc := b.pc
	m := b.m
	switch key.builtin {
	case spirv.BuiltInTessLevelOuter, spirv.BuiltInTessLevelInner:
		if pc.stage() != teseStage {
			return unsupported("%s as input of a %s shader", r.name, pc.stage())
		}
		b.bind(v.Self, &ioBinding{kind: ioLocal, dir: DirectionInput, builtin: key, rep: rep})
		return nil
	}
	if rep.kind != repAttribute {
		b.bind(v.Self, &ioBinding{
			kind: ioBuiltinValue, dir: DirectionInput, builtin: key, rep: rep,
			cast: !sameValueType(m, t, r),
		})
		return nil
	}

	blk := pc.block(blockIn)
	im := &interfaceMember{
		key:       varKey(v.Self),
		name:      r.name,
		typ:       b.recipeType(r),
		builtin:   key.builtin,
		isBuiltin: true,
		hoisted:   true,
		argType:   rep.argType,
	}
	if key.builtin == spirv.BuiltInSampleMask && t.IsArray() {
		blk.add(im)
		b.bind(v.Self, &ioBinding{
			kind: ioLocal, dir: DirectionInput, block: blk,
			fixups: []ioFixup{{key: im.key, local: []pathStep{indexStep(0)}, cast: true}},
		})
		return nil
	}
	if rep.init != "" || !sameValueType(m, t, r) {
		im.name = r.name + "_in"
		blk.add(im)
		b.bind(v.Self, &ioBinding{
			kind: ioBuiltinValue, dir: DirectionInput, block: blk, key: im.key,
			builtin: key, rep: rep, cast: !sameValueType(m, t, r),
		})
		return nil
	}
	blk.add(im)
	b.bind(v.Self, &ioBinding{kind: ioArg, dir: DirectionInput, block: blk, key: im.key, builtin: key})
	return nil
}

// addBuiltinMember registers an output builtin, or a builtin member of an
// output struct, as a member of the output block.
func (b *interfaceBuilder) addBuiltinMember(blk *interfaceBlock, v ir.ID, member int32, key builtinKey, t *ir.Type, ib *ioBinding, local []pathStep) error {
	m := b.m
	r := builtinRecipes[key.builtin]
	if r == nil {
		return unsupported("builtin %s", key.builtin)
	}
	if _, ok := r.attribute(b.pc.stage(), key.dir); !ok && key.dir == DirectionOutput {
		return unsupported("builtin %s as %s of a %s shader", r.name, key.dir, b.pc.stage())
	}
	mkey := memberKey{variable: v, member: member, element: -1}
	im := &interfaceMember{
		key:       mkey,
		name:      b.memberName(blk.kind, r.name),
		typ:       b.recipeType(r),
		builtin:   key.builtin,
		isBuiltin: true,
	}
	written := b.pc.isUsed(v)
	if member >= 0 {
		written = written && b.pc.memberUsed(v, int(member))
	}
	if !written && key.dir == DirectionOutput {
		switch key.builtin {
		case spirv.BuiltInPointSize:
			im.defaultValue = "1.0"
		case spirv.BuiltInLayer:
			from := inKey(spirv.BuiltInViewIndex)
			if b.pc.isActive(from) {
				im.copyFrom = &from
			}
		}
		if im.defaultValue != "" || im.copyFrom != nil {
			blk.add(im)
			return nil
		}
	}
	switch key.builtin {
	case spirv.BuiltInClipDistance, spirv.BuiltInCullDistance:
		n := uint32(1)
		if t.IsArray() {
			n = max(m.ArraySize(t, len(t.Array)-1), 1)
		}
		im.arrayLen = n
		blk.add(im)
		for e := uint32(0); e < n; e++ {
			ib.fixups = append(ib.fixups, ioFixup{
				key:    mkey,
				local:  append(slices.Clone(local), indexStep(int(e))),
				member: []pathStep{indexStep(int(e))},
			})
		}
		return nil
	case spirv.BuiltInSampleMask:
		blk.add(im)
		if t.IsArray() {
			local = append(slices.Clone(local), indexStep(0))
		}
		ib.fixups = append(ib.fixups, ioFixup{key: mkey, local: local, cast: true})
		return nil
	}
	blk.add(im)
	ib.fixups = append(ib.fixups, ioFixup{key: mkey, local: local, cast: !sameValueType(m, t, r)})
	return nil
}

// addArrayed registers a per control point variable. Its members are used
// in place through the control point array.
func (b *interfaceBuilder) addArrayed(v *ir.Variable, dir Direction, elem *ir.Type) error {
	pc := b.pc
	m := b.m
	kind := blockIn
	if dir == DirectionOutput {
		kind = blockOut
	}
	blk := pc.block(kind)
	ib := &ioBinding{kind: ioArrayed, dir: dir, block: blk, key: varKey(v.Self)}
	switch {
	case pc.stage() == tescStage && dir == DirectionOutput:
		ib.arrayed = "gl_out"
	case pc.stage() == teseStage && !pc.options.RawBufferTessellationInput:
		ib.arrayed = "patchIn.gl_in"
		pc.block(blockPatchIn).controlPoints = true
	default:
		ib.arrayed = "gl_in"
	}
	if pc.stage() == teseStage && !blk.device && (elem.IsMatrix() || elem.IsArray()) {
		return unsupported("composite per control point input %s", b.varName(v.Self))
	}
	if !elem.IsStruct() {
		loc := m.Decoration(v.Self, spirv.DecorationLocation)
		if !m.HasDecoration(v.Self, spirv.DecorationLocation) {
			loc = b.nextLocation[dir]
			b.nextLocation[dir]++
		}
		im := b.newMember(blk, v.Self, varKey(v.Self), b.varName(v.Self), elem.Self, loc)
		blk.add(im)
		b.bind(v.Self, ib)
		return nil
	}
	ib.elemStruct = true
	for i, mt := range elem.Members {
		key := memberKey{variable: v.Self, member: int32(i), element: -1}
		if bi, ok := m.MemberBuiltIn(elem.Self, i); ok {
			if !pc.memberUsed(v.Self, i) && !pc.isActive(builtinKey{dir: dir, builtin: bi}) {
				continue
			}
			name := b.structMemberName(elem.Self, i)
			if r := builtinRecipes[bi]; r != nil {
				name = r.name
			}
			im := &interfaceMember{key: key, name: b.memberName(kind, name), typ: mt, builtin: bi, isBuiltin: true}
			if !blk.device {
				// Stage inputs of tessellation evaluation need a location.
				im.isBuiltin = false
				im.location, im.hasLocation = b.nextLocation[dir], true
				b.nextLocation[dir]++
			}
			blk.add(im)
			continue
		}
		if !pc.memberUsed(v.Self, i) {
			continue
		}
		loc := b.nextLocation[dir]
		if m.HasMemberDecoration(elem.Self, i, spirv.DecorationLocation) {
			loc = m.MemberDecoration(elem.Self, i, spirv.DecorationLocation)
		} else {
			b.nextLocation[dir]++
		}
		im := b.newMember(blk, v.Self, key, b.structMemberName(elem.Self, i), mt, loc)
		blk.add(im)
	}
	b.bind(v.Self, ib)
	return nil
}

// locationSlot is a location and, for dual source blending, the index of
// the blend source it feeds.
type locationSlot struct {
	location, index uint32
}

// packLocations merges members that share a location slot into one vector.
func (b *interfaceBuilder) packLocations(blk *interfaceBlock) error {
	m := b.m
	bySlot := make(map[locationSlot][]*interfaceMember)
	var slots []locationSlot
	for _, im := range blk.members {
		if im.isBuiltin || !im.hasLocation || im.hoisted {
			continue
		}
		key := locationSlot{location: im.location, index: im.index}
		if _, ok := bySlot[key]; !ok {
			slots = append(slots, key)
		}
		bySlot[key] = append(bySlot[key], im)
	}
	slices.SortFunc(slots, func(x, y locationSlot) int {
		if x.location != y.location {
			return int(x.location) - int(y.location)
		}
		return int(x.index) - int(y.index)
	})
	for _, slot := range slots {
		group := bySlot[slot]
		loc := slot.location
		if len(group) < 2 {
			continue
		}
		slices.SortStableFunc(group, func(x, y *interfaceMember) int { return int(x.component) - int(y.component) })
		first := m.Type(group[0].typ)
		end := uint32(0)
		var parts []packedPart
		for _, im := range group {
			t := m.Type(im.typ)
			if !t.IsScalar() && !t.IsVector() {
				return unsupported("location %d is shared by a composite member %s", loc, im.name)
			}
			if t.Base != first.Base || t.Width != first.Width {
				return unsupported("location %d is shared by members of different types", loc)
			}
			if im.component < end {
				return unsupported("members %s overlap at location %d component %d", im.name, loc, im.component)
			}
			if im.flat != group[0].flat || im.noPerspective != group[0].noPerspective ||
				im.centroid != group[0].centroid || im.sample != group[0].sample {
				return unsupported("members sharing location %d use different interpolation", loc)
			}
			w := t.VecSize
			end = im.component + w
			parts = append(parts, packedPart{key: im.key, component: im.component, width: w})
		}
		if end > 4 {
			return unsupported("members at location %d need %d components", loc, end)
		}
		merged := *group[0]
		merged.key = memberKey{member: -1 - int32(slot.index), element: int32(loc)}
		merged.name = b.memberName(blk.kind, fmt.Sprintf("m_location_%d", loc))
		merged.typ = m.Vector(first.Base, first.Width, end)
		if end == 1 {
			merged.typ = m.Scalar(first.Base, first.Width)
		}
		merged.component = 0
		merged.parts = parts

		// Replace the group with the merged member.
		kept := blk.members[:0]
		inserted := false
		for _, im := range blk.members {
			if slices.Contains(group, im) {
				if !inserted {
					kept = append(kept, &merged)
					inserted = true
				}
				continue
			}
			kept = append(kept, im)
		}
		blk.members = kept
		blk.remap()
		for _, p := range parts {
			b.useSwizzle(blk, p.key, swizzle(p.component, p.width))
		}
	}
	return nil
}

// padOutputs widens fragment color outputs to four components.
func (b *interfaceBuilder) padOutputs(blk *interfaceBlock) {
	m := b.m
	for _, im := range blk.members {
		if im.isBuiltin || !im.hasLocation {
			continue
		}
		t := m.Type(im.typ)
		if t.VecSize >= 4 || len(im.parts) > 0 {
			if len(im.parts) > 0 && t.VecSize < 4 {
				im.typ = m.Vector(t.Base, t.Width, 4)
			}
			continue
		}
		im.typ = m.Vector(t.Base, t.Width, 4)
		b.useSwizzle(blk, im.key, swizzle(0, t.VecSize))
	}
}

// useSwizzle makes the variable behind key reach its member through a
// swizzle, turning in-place members into locals.
func (b *interfaceBuilder) useSwizzle(blk *interfaceBlock, key memberKey, swz string) {
	ib := b.pc.ioBinds[key.variable]
	if ib == nil {
		return
	}
	if ib.kind == ioMember {
		ib.kind = ioLocal
		ib.fixups = []ioFixup{{key: key}}
	}
	for i := range ib.fixups {
		if ib.fixups[i].key == key {
			ib.fixups[i].swizzle = swz
		}
	}
}

func swizzle(first, n uint32) string {
	return "." + "xyzw"[first:first+n]
}

// materialize stores the block as a struct type and a variable of the
// module. IDs are reserved once and reused by later passes.
func (b *interfaceBuilder) materialize(blk *interfaceBlock) error {
	m := b.m
	ids, ok := b.pc.req.blocks[blk.kind]
	if !ok {
		first := m.Reserve(2)
		ids = [2]ir.ID{first, first + 1}
		b.pc.req.blocks[blk.kind] = ids
	}
	blk.typeID, blk.varID = ids[0], ids[1]
	st := &ir.Type{Self: blk.typeID, Base: ir.BaseStruct, VecSize: 1, Columns: 1}
	for i, im := range blk.members {
		typ := im.typ
		if im.arrayLen > 0 {
			typ = m.ArrayOf(typ, im.arrayLen)
		}
		st.Members = append(st.Members, typ)
		m.SetMemberName(blk.typeID, i, im.name)
		if im.hasLocation {
			m.DecorateMember(blk.typeID, i, spirv.DecorationLocation, im.location)
		}
		if im.isBuiltin {
			m.DecorateMember(blk.typeID, i, spirv.DecorationBuiltIn, uint32(im.builtin))
		}
	}
	if err := m.Set(blk.typeID, st); err != nil {
		return internal("interface block %s: %v", blk.typeName, err)
	}
	m.SetName(blk.typeID, blk.typeName)
	storage := spirv.StorageClassInput
	if blk.kind.direction() == DirectionOutput {
		storage = spirv.StorageClassOutput
	}
	ptr := m.PointerTo(blk.typeID, storage)
	if err := m.Set(blk.varID, &ir.Variable{Self: blk.varID, Type: ptr, Storage: storage}); err != nil {
		return internal("interface block %s: %v", blk.varName, err)
	}
	m.SetName(blk.varID, blk.varName)
	return nil
}

// blockTypes returns the IDs of the synthesized block types.
func (pc *passContext) blockTypes() map[ir.ID]struct{} {
	out := make(map[ir.ID]struct{})
	for _, blk := range pc.blocks {
		out[blk.typeID] = struct{}{}
	}
	return out
}

// usedLocations returns the locations the blocks of dir occupy.
func (pc *passContext) usedLocations(dir Direction) []uint32 {
	var out []uint32
	for _, blk := range pc.blocks {
		if blk.kind.direction() != dir {
			continue
		}
		for _, im := range blk.members {
			if im.hasLocation {
				out = append(out, im.location)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// sortedBlocks returns the blocks of the pass in kind order.
func (pc *passContext) sortedBlocks() []*interfaceBlock {
	var out []*interfaceBlock
	for _, kind := range []blockKind{blockIn, blockOut, blockPatchIn, blockPatchOut} {
		if blk, ok := pc.blocks[kind]; ok {
			out = append(out, blk)
		}
	}
	return out
}
