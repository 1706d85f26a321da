package msl

import (
	"fmt"
	"strings"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// funcState holds per-function state during code generation.
type funcState struct {
	m      *ir.Module
	fn     *ir.Function
	fnName string
	entry  bool

	namer *namer
	names map[ir.ID]string

	// values holds the expressions of bound values, ptrs the lvalues of
	// bound pointers.
	values map[ir.ID]string
	ptrs   map[ir.ID]pointer
	// types holds the type of every value the function defines.
	types map[ir.ID]ir.ID

	// hoisted results are used outside their block and are declared at
	// the top of the function.
	hoisted     map[ir.ID]bool
	hoistOrder  []ir.ID
	samplers    map[ir.ID]string
	subpass     map[ir.ID]bool
	threaded    map[ir.ID]ir.ID
	frames      []*flowFrame
	visited     map[ir.ID]bool
	returnsOut  bool
}

func (w *Writer) newFuncState(fn *ir.Function, entry bool) *funcState {
	fs := &funcState{
		m:        w.m,
		fn:       fn,
		entry:    entry,
		namer:    w.namer.scope(),
		names:    make(map[ir.ID]string),
		values:   make(map[ir.ID]string),
		ptrs:     make(map[ir.ID]pointer),
		types:    make(map[ir.ID]ir.ID),
		hoisted:  make(map[ir.ID]bool),
		samplers: make(map[ir.ID]string),
		subpass:  make(map[ir.ID]bool),
		threaded: make(map[ir.ID]ir.ID),
		visited:  make(map[ir.ID]bool),
	}
	if entry {
		fs.fnName = w.entryName
	} else {
		fs.fnName = w.globalName(fn.Self)
		for _, tp := range w.pc.plan.params[fn.Self] {
			fs.threaded[tp.global] = tp.param
			name := w.threadedName(tp.global)
			fs.names[tp.param] = name
			fs.namer.reserve(name)
		}
	}
	return fs
}

// name returns the MSL name of a value local to the function.
func (fs *funcState) name(id ir.ID) string {
	if n, ok := fs.names[id]; ok {
		return n
	}
	base := fs.m.Name(id)
	if base == "" {
		base = fmt.Sprintf("_%d", id)
	}
	n := fs.namer.call(base)
	fs.names[id] = n
	return n
}

// isInline reports whether the result of inst is an expression used in
// place rather than a temporary.
func (w *Writer) isInline(inst *ir.Instruction) bool {
	switch inst.Op {
	case spirv.OpAccessChain, spirv.OpInBoundsAccessChain, spirv.OpPtrAccessChain,
		spirv.OpImageTexelPointer, spirv.OpSampledImage, spirv.OpImage:
		return true
	case spirv.OpLoad, spirv.OpCopyObject:
		t := w.m.Type(inst.ResultType)
		return t == nil || t.Pointer || w.isOpaque(t)
	}
	return false
}

// analyze finds the results that must be declared before the structured
// code that defines them, because another block uses them.
func (w *Writer) analyze() error {
	fs := w.fs
	m := w.m
	defBlock := make(map[ir.ID]ir.ID)
	inline := make(map[ir.ID][]ir.ID)
	var order []ir.ID
	usedIn := make(map[ir.ID]map[ir.ID]struct{})
	use := func(id, block ir.ID) {
		set := usedIn[id]
		if set == nil {
			set = make(map[ir.ID]struct{})
			usedIn[id] = set
		}
		set[block] = struct{}{}
	}
	for _, p := range fs.fn.Params {
		fs.types[p.ID] = p.Type
	}
	for _, bid := range fs.fn.Blocks {
		b := m.Block(bid)
		for i := range b.Ops {
			inst := &b.Ops[i]
			if inst.Op == spirv.OpPhi {
				return unsupported("OpPhi in function %s", fs.fnName)
			}
			if inst.Result != 0 {
				defBlock[inst.Result] = bid
				fs.types[inst.Result] = inst.ResultType
				order = append(order, inst.Result)
			}
			ids := inst.IDOperands()
			for _, id := range ids {
				use(id, bid)
			}
			if inst.Result != 0 && w.isInline(inst) {
				inline[inst.Result] = ids
			}
		}
		for _, id := range []ir.ID{b.Condition, b.ReturnValue} {
			if id != 0 {
				use(id, bid)
			}
		}
	}
	// An inline expression is evaluated where it is used, so its operands
	// are used there too.
	for changed := true; changed; {
		changed = false
		for i := len(order) - 1; i >= 0; i-- {
			r := order[i]
			ops, ok := inline[r]
			if !ok {
				continue
			}
			for block := range usedIn[r] {
				for _, op := range ops {
					if _, seen := usedIn[op][block]; !seen {
						use(op, block)
						changed = true
					}
				}
			}
		}
	}
	for _, id := range order {
		if _, ok := inline[id]; ok {
			continue
		}
		t := m.Type(fs.types[id])
		if t == nil || t.Base == ir.BaseVoid || t.Pointer {
			continue
		}
		for block := range usedIn[id] {
			if block != defBlock[id] {
				fs.hoisted[id] = true
				fs.hoistOrder = append(fs.hoistOrder, id)
				break
			}
		}
	}
	return nil
}

// writeInterfaceBlocks declares the stage input and output structs.
func (w *Writer) writeInterfaceBlocks() {
	for _, blk := range w.pc.sortedBlocks() {
		if !blk.emitted() && !blk.device {
			continue
		}
		w.writeLine("struct %s", blk.typeName)
		w.writeLine("{")
		w.pushIndent()
		for _, im := range blk.members {
			if im.hoisted {
				continue
			}
			decl := w.typeName(im.typ) + " " + im.name
			dims := ""
			if im.arrayLen > 0 {
				dims = fmt.Sprintf(" [%d]", im.arrayLen)
			}
			if blk.device {
				w.writeLine("%s%s;", decl, strings.TrimPrefix(dims, " "))
				continue
			}
			w.writeLine("%s [[%s]]%s;", decl, w.memberAttribute(blk, im), dims)
		}
		if blk.kind == blockPatchIn && blk.controlPoints {
			w.writeLine("patch_control_point<%s> gl_in;", w.pc.block(blockIn).typeName)
		}
		w.popIndent()
		w.writeLine("};")
		w.writeLine("")
	}
}

// memberAttribute returns the attribute of an interface member.
func (w *Writer) memberAttribute(blk *interfaceBlock, im *interfaceMember) string {
	pc := w.pc
	stage := pc.stage()
	dir := blk.kind.direction()
	if im.isBuiltin {
		if im.builtin == spirv.BuiltInFragDepth {
			switch {
			case pc.ep.Modes.Has(uint32(spirv.ExecutionModeDepthGreater)):
				return "depth(greater)"
			case pc.ep.Modes.Has(uint32(spirv.ExecutionModeDepthLess)):
				return "depth(less)"
			}
		}
		if rep, ok := pc.builtinReps[builtinKey{dir: dir, builtin: im.builtin}]; ok && rep.attr != "" {
			return rep.attr
		}
		if r := builtinRecipes[im.builtin]; r != nil {
			if a, ok := r.attribute(stage, dir); ok {
				return a
			}
		}
		return ""
	}
	switch {
	case dir == DirectionInput && (stage == vertexStage || stage == teseStage):
		return fmt.Sprintf("attribute(%d)", im.location)
	case dir == DirectionOutput && stage == fragmentStage:
		if im.hasIndex {
			return fmt.Sprintf("color(%d), index(%d)", im.location, im.index)
		}
		return fmt.Sprintf("color(%d)", im.location)
	}
	attr := fmt.Sprintf("user(locn%d)", im.location)
	if im.component != 0 {
		attr = fmt.Sprintf("user(locn%d_%d)", im.location, im.component)
	}
	if dir == DirectionInput && stage == fragmentStage {
		if interp := w.interpolation(im); interp != "" {
			attr += ", " + interp
		}
	}
	return attr
}

// interpolation returns the interpolation qualifier of a fragment input.
func (w *Writer) interpolation(im *interfaceMember) string {
	if im.flat {
		return "flat"
	}
	sample := im.sample || w.options.ForceSampleRateShading
	switch {
	case im.noPerspective && sample:
		return "sample_no_perspective"
	case im.noPerspective && im.centroid:
		return "centroid_no_perspective"
	case im.noPerspective:
		return "center_no_perspective"
	case sample:
		return "sample_perspective"
	case im.centroid:
		return "centroid_perspective"
	}
	return ""
}

// writeArgumentBuffers declares one struct per descriptor set holding its
// resources.
func (w *Writer) writeArgumentBuffers() error {
	pc := w.pc
	if !w.options.UseArgumentBuffers {
		return nil
	}
	ids := pc.argumentBufferOrder()
	for _, set := range pc.descriptorSets() {
		w.writeLine("struct spvDescriptorSetBuffer%d", set)
		w.writeLine("{")
		w.pushIndent()
		for _, id := range ids {
			v := w.m.Variable(id)
			if w.m.Decoration(id, spirv.DecorationDescriptorSet) != set || w.isSubpassFetch(v) {
				continue
			}
			decls, err := w.resourceDecls(v, true)
			if err != nil {
				return err
			}
			for _, d := range decls {
				w.writeLine("%s;", d)
			}
		}
		w.popIndent()
		w.writeLine("};")
		w.writeLine("")
	}
	return nil
}

// bufferSpace returns the address space of a buffer variable.
func (w *Writer) bufferSpace(v *ir.Variable) string {
	switch v.Storage {
	case spirv.StorageClassStorageBuffer:
		if w.m.HasDecoration(v.Self, spirv.DecorationNonWritable) {
			return "const device"
		}
		return "device"
	case spirv.StorageClassUniform:
		if t := w.m.Innermost(w.m.Pointee(v.Type)); t != nil && w.m.HasDecoration(t.Self, spirv.DecorationBufferBlock) {
			return "device"
		}
	}
	return "constant"
}

// varSpace returns the address space of memory behind a global variable.
func (w *Writer) varSpace(v *ir.Variable) string {
	switch v.Storage {
	case spirv.StorageClassUniform, spirv.StorageClassStorageBuffer, spirv.StorageClassPushConstant:
		return strings.TrimPrefix(w.bufferSpace(v), "const ")
	}
	return spaceOf(v.Storage)
}

// opaqueName returns the MSL type of a texture or sampler variable.
func (w *Writer) opaqueName(v *ir.Variable, t *ir.Type) string {
	if t.IsArray() {
		return fmt.Sprintf("%sarray<%s, %d>", Namespace, w.opaqueName(v, w.m.Type(t.Parent)), w.m.ArraySize(t, len(t.Array)-1))
	}
	switch t.Base {
	case ir.BaseSampler:
		return Namespace + "sampler"
	case ir.BaseImage:
		if t.Image.Sampled == 2 {
			return w.textureName(t, w.storageAccess(v.Self))
		}
	}
	return w.textureName(t, "")
}

// slotOf returns the index of a resource in one slot space.
func (w *Writer) slotOf(v *ir.Variable, kind slotKind) (uint32, error) {
	target := w.pc.targets[v.Self]
	var p *uint32
	switch kind {
	case slotBuffer:
		p = target.Buffer
	case slotTexture:
		p = target.Texture
	default:
		p = target.Sampler
	}
	if p == nil {
		names := [...]string{"buffer", "texture", "sampler"}
		return 0, invalid("binding of %s has no %s index", w.globalName(v.Self), names[kind])
	}
	return *p, nil
}

// resourceDecls declares a resource as entry arguments or, with member
// set, as argument buffer members.
func (w *Writer) resourceDecls(v *ir.Variable, member bool) ([]string, error) {
	m := w.m
	t := m.Pointee(v.Type)
	name := w.globalName(v.Self)
	attr := func(kind slotKind, word string) (string, error) {
		i, err := w.slotOf(v, kind)
		if err != nil {
			return "", err
		}
		if member {
			return fmt.Sprintf(" [[id(%d)]]", i), nil
		}
		return fmt.Sprintf(" [[%s(%d)]]", word, i), nil
	}
	if w.isSubpassFetch(v) {
		elem := "float"
		if st := m.Type(t.Image.SampledType); st != nil {
			elem = scalarName(st.Base, st.Width)
		}
		return []string{fmt.Sprintf("%s4 %s [[color(%d)]]", elem, name, m.Decoration(v.Self, spirv.DecorationInputAttachmentIndex))}, nil
	}
	switch v.Storage {
	case spirv.StorageClassUniform, spirv.StorageClassStorageBuffer, spirv.StorageClassPushConstant:
		a, err := attr(slotBuffer, "buffer")
		if err != nil {
			return nil, err
		}
		space := w.bufferSpace(v)
		if t.IsArray() {
			if member {
				return nil, unsupported("array of buffers %s in an argument buffer", name)
			}
			first, _ := w.slotOf(v, slotBuffer)
			n := m.ArraySize(t, len(t.Array)-1)
			decls := make([]string, n)
			for i := range decls {
				decls[i] = fmt.Sprintf("%s %s* %s_%d [[buffer(%d)]]", space, w.typeName(t.Parent), name, i, first+uint32(i))
			}
			return decls, nil
		}
		if member {
			return []string{fmt.Sprintf("%s %s* %s%s", space, w.typeName(t.Self), name, a)}, nil
		}
		return []string{fmt.Sprintf("%s %s& %s%s", space, w.typeName(t.Self), name, a)}, nil
	}
	inner := m.Innermost(t)
	switch inner.Base {
	case ir.BaseSampler:
		a, err := attr(slotSampler, "sampler")
		if err != nil {
			return nil, err
		}
		return []string{w.opaqueName(v, t) + " " + name + a}, nil
	case ir.BaseImage:
		a, err := attr(slotTexture, "texture")
		if err != nil {
			return nil, err
		}
		return []string{w.opaqueName(v, t) + " " + name + a}, nil
	case ir.BaseSampledImage:
		ta, err := attr(slotTexture, "texture")
		if err != nil {
			return nil, err
		}
		sa, err := attr(slotSampler, "sampler")
		if err != nil {
			return nil, err
		}
		smp := Namespace + "sampler"
		if t.IsArray() {
			smp = fmt.Sprintf("%sarray<%ssampler, %d>", Namespace, Namespace, m.ArraySize(t, len(t.Array)-1))
		}
		return []string{
			w.opaqueName(v, t) + " " + name + ta,
			smp + " " + name + "Smplr" + sa,
		}, nil
	}
	return nil, unsupported("resource %s of this type", name)
}

// resourceRef returns the expression of a resource in the entry function.
func (w *Writer) resourceRef(v *ir.Variable) string {
	name := w.globalName(v.Self)
	switch v.Storage {
	case spirv.StorageClassPrivate, spirv.StorageClassWorkgroup:
		return name
	}
	if !w.pc.inArgumentBuffer(v) || w.isSubpassFetch(v) {
		return name
	}
	set := fmt.Sprintf("spvDescriptorSet%d", w.m.Decoration(v.Self, spirv.DecorationDescriptorSet))
	switch v.Storage {
	case spirv.StorageClassUniform, spirv.StorageClassStorageBuffer:
		return fmt.Sprintf("(*%s.%s)", set, name)
	}
	return set + "." + name
}

// samplerRef returns the sampler of a combined image sampler resource.
func (w *Writer) samplerRef(v *ir.Variable) string {
	name := w.globalName(v.Self) + "Smplr"
	if w.pc.inArgumentBuffer(v) {
		return fmt.Sprintf("spvDescriptorSet%d.%s", w.m.Decoration(v.Self, spirv.DecorationDescriptorSet), name)
	}
	return name
}

// threadedName names the parameter a global is passed as.
func (w *Writer) threadedName(g ir.ID) string {
	if ib := w.pc.ioBinds[g]; ib != nil {
		switch {
		case ib.kind == ioArg:
			im, _ := ib.block.slot(ib.key)
			return im.name
		case ib.kind == ioBuiltinValue, ib.block == nil:
			return builtinRecipes[ib.builtin.builtin].name
		}
	}
	return w.globalName(g)
}

// threadedDecls declares the parameters a global is passed as.
func (w *Writer) threadedDecls(g ir.ID, name string) ([]string, error) {
	m := w.m
	v := m.Variable(g)
	t := m.Pointee(v.Type)
	if ib := w.pc.ioBinds[g]; ib != nil {
		switch ib.kind {
		case ioArg:
			im, _ := ib.block.slot(ib.key)
			return []string{fmt.Sprintf("%s %s", w.typeName(im.typ), name)}, nil
		case ioBuiltinValue:
			return []string{fmt.Sprintf("%s %s", recipeTypeName(builtinRecipes[ib.builtin.builtin]), name)}, nil
		case ioMember:
			return []string{fmt.Sprintf("%s %s& %s", w.ioSpace(ib), w.typeName(t.Self), name)}, nil
		}
		return []string{fmt.Sprintf("thread %s& %s", w.typeName(t.Self), name)}, nil
	}
	switch v.Storage {
	case spirv.StorageClassPrivate:
		return []string{fmt.Sprintf("thread %s& %s", w.typeName(t.Self), name)}, nil
	case spirv.StorageClassWorkgroup:
		return []string{fmt.Sprintf("threadgroup %s& %s", w.typeName(t.Self), name)}, nil
	case spirv.StorageClassUniform, spirv.StorageClassStorageBuffer, spirv.StorageClassPushConstant:
		if t.IsArray() {
			return nil, unsupported("array of buffers %s passed to a function", name)
		}
		return []string{fmt.Sprintf("%s %s& %s", w.bufferSpace(v), w.typeName(t.Self), name)}, nil
	}
	if w.isSubpassFetch(v) {
		return []string{fmt.Sprintf("float4 %s", name)}, nil
	}
	decls := []string{fmt.Sprintf("%s %s", w.opaqueName(v, t), name)}
	if m.Innermost(t).Base == ir.BaseSampledImage {
		smp := Namespace + "sampler"
		if t.IsArray() {
			smp = fmt.Sprintf("%sarray<%ssampler, %d>", Namespace, Namespace, m.ArraySize(t, len(t.Array)-1))
		}
		decls = append(decls, fmt.Sprintf("%s %sSmplr", smp, name))
	}
	return decls, nil
}

// threadedArgs returns the expressions the current function passes for
// the globals callee receives.
func (w *Writer) threadedArgs(callee ir.ID) ([]string, error) {
	var args []string
	for _, tp := range w.pc.plan.params[callee] {
		v := w.m.Variable(tp.global)
		if ib := w.pc.ioBinds[tp.global]; ib != nil && ib.kind == ioBuiltinValue {
			// Passed as the builtin itself, cast where it is loaded.
			if w.fs.entry {
				args = append(args, builtinRecipes[ib.builtin.builtin].name)
			} else {
				args = append(args, w.fs.name(w.fs.threaded[tp.global]))
			}
			continue
		}
		p, err := w.variablePointer(v)
		if err != nil {
			return nil, err
		}
		args = append(args, p.expr)
		if p.sampler != "" {
			args = append(args, p.sampler)
		}
	}
	return args, nil
}

// recipeTypeName returns the MSL type of a builtin value.
func recipeTypeName(r *builtinRecipe) string {
	if r.base == ir.BaseBool {
		return "bool"
	}
	return vectorName(r.base, 32, max(r.vecSize, 1))
}

// writeFunctions writes the prototypes and then the definitions of every
// reachable function but the entry point.
func (w *Writer) writeFunctions() error {
	var fns []ir.ID
	for _, fid := range w.pc.reachable {
		if fid != w.pc.entry.Self {
			fns = append(fns, fid)
		}
	}
	if len(fns) == 0 {
		return nil
	}
	sigs := make(map[ir.ID]string, len(fns))
	for _, fid := range fns {
		sig, err := w.signature(w.m.Function(fid))
		if err != nil {
			return err
		}
		sigs[fid] = sig
		w.writeLine("%s;", sig)
	}
	w.writeLine("")
	for _, fid := range fns {
		fn := w.m.Function(fid)
		w.fs = w.newFuncState(fn, false)
		w.writeLine("%s", sigs[fid])
		if err := w.writeFunctionBody(); err != nil {
			return err
		}
		w.writeLine("")
	}
	w.fs = nil
	return nil
}

// signature returns the declaration of a function with its value
// parameters followed by its threaded globals.
func (w *Writer) signature(fn *ir.Function) (string, error) {
	m := w.m
	fs := w.newFuncState(fn, false)
	var params []string
	for _, p := range fn.Params {
		t := m.Type(p.Type)
		name := fs.name(p.ID)
		switch {
		case t == nil:
			return "", invalid("parameter %d of %s has no type", p.ID, fs.fnName)
		case t.Pointer:
			pointee := m.Type(t.Parent)
			params = append(params, fmt.Sprintf("%s %s& %s", spaceOf(t.Storage), w.typeName(pointee.Self), name))
		case m.Innermost(t).Base == ir.BaseSampledImage:
			params = append(params, fmt.Sprintf("%s %s", w.typeName(t.Self), name), fmt.Sprintf("%ssampler %sSmplr", Namespace, name))
		default:
			params = append(params, fmt.Sprintf("%s %s", w.typeName(t.Self), name))
		}
	}
	for _, tp := range w.pc.plan.params[fn.Self] {
		decls, err := w.threadedDecls(tp.global, fs.names[tp.param])
		if err != nil {
			return "", err
		}
		params = append(params, decls...)
	}
	return fmt.Sprintf("%s %s(%s)", w.typeName(fn.ReturnType), fs.fnName, strings.Join(params, ", ")), nil
}

// writeFunctionBody writes the braces, locals and code of the current
// function.
func (w *Writer) writeFunctionBody() error {
	fs := w.fs
	m := w.m
	for _, p := range fs.fn.Params {
		t := m.Type(p.Type)
		name := fs.name(p.ID)
		switch {
		case t.Pointer:
			fs.ptrs[p.ID] = pointer{expr: name, typ: t.Parent, space: spaceOf(t.Storage)}
		case m.Innermost(t).Base == ir.BaseSampledImage:
			fs.values[p.ID] = name
			fs.samplers[p.ID] = name + "Smplr"
		default:
			fs.values[p.ID] = name
		}
	}
	if err := w.analyze(); err != nil {
		return err
	}
	w.writeLine("{")
	w.pushIndent()
	if fs.entry {
		if err := w.writePrologue(); err != nil {
			return err
		}
	}
	if err := w.writeLocals(); err != nil {
		return err
	}
	if _, err := w.writeRange(fs.fn.EntryBlock, 0); err != nil {
		return err
	}
	w.popIndent()
	w.writeLine("}")
	return nil
}

// writeLocals declares the function variables and hoisted temporaries.
func (w *Writer) writeLocals() error {
	fs := w.fs
	m := w.m
	for _, vid := range fs.fn.LocalVariables {
		v := m.Variable(vid)
		t := m.Pointee(v.Type)
		decl := w.declarator(t, repr{}, fs.name(vid))
		if v.Initializer != 0 {
			init, err := w.valueOf(v.Initializer)
			if err != nil {
				return err
			}
			w.writeLine("%s = %s;", decl, init)
			continue
		}
		w.writeLine("%s = {};", decl)
	}
	for _, id := range fs.hoistOrder {
		w.writeLine("%s;", w.declarator(m.Type(fs.types[id]), repr{}, fs.name(id)))
		fs.values[id] = fs.name(id)
	}
	return nil
}

// Entry point

// tessDomain returns the patch type of a tessellation stage.
func (pc *passContext) tessDomain() (string, error) {
	switch {
	case pc.ep.Modes.Has(uint32(spirv.ExecutionModeIsolines)):
		return "", unsupported("isoline tessellation")
	case pc.ep.Modes.Has(uint32(spirv.ExecutionModeQuads)):
		return "quad", nil
	}
	return "triangle", nil
}

func tessFactorType(domain string) string {
	if domain == "quad" {
		return "MTLQuadTessellationFactorsHalf"
	}
	return "MTLTriangleTessellationFactorsHalf"
}

// returnsOut reports whether the entry function returns the output block.
func (w *Writer) returnsOut() bool {
	pc := w.pc
	switch pc.stage() {
	case computeStage, tescStage:
		return false
	}
	if pc.rasterizationOff() {
		return false
	}
	blk, ok := pc.blocks[blockOut]
	return ok && blk.emitted() && !blk.device
}

// writeEntryPoint writes the entry function with its arguments, prologue
// and body.
func (w *Writer) writeEntryPoint() error {
	pc := w.pc
	if err := w.writeArgumentBuffers(); err != nil {
		return err
	}
	w.fs = w.newFuncState(pc.entry, true)
	w.fs.returnsOut = w.returnsOut()

	qualifier := "kernel"
	switch pc.stage() {
	case vertexStage:
		qualifier = "vertex"
	case fragmentStage:
		qualifier = "fragment"
		if pc.ep.Modes.Has(uint32(spirv.ExecutionModeEarlyFragmentTests)) {
			qualifier = "[[early_fragment_tests]] fragment"
		}
	case teseStage:
		domain, err := pc.tessDomain()
		if err != nil {
			return err
		}
		qualifier = fmt.Sprintf("[[patch(%s, %d)]] vertex", domain, pc.patchControlPoints())
	case tescStage:
		if _, err := pc.tessDomain(); err != nil {
			return err
		}
	}
	ret := "void"
	if w.fs.returnsOut {
		ret = pc.blocks[blockOut].typeName
	}
	args, err := w.entryArgs()
	if err != nil {
		return err
	}
	w.writeLine("%s %s %s(%s)", qualifier, ret, w.entryName, strings.Join(args, ", "))
	err = w.writeFunctionBody()
	w.fs = nil
	return err
}

// entryArgs lists the arguments of the entry function.
func (w *Writer) entryArgs() ([]string, error) {
	pc := w.pc
	var args []string
	switch pc.stage() {
	case vertexStage, fragmentStage:
		if blk, ok := pc.blocks[blockIn]; ok && blk.emitted() {
			args = append(args, fmt.Sprintf("%s in [[stage_in]]", blk.typeName))
		}
	case teseStage:
		if blk, ok := pc.blocks[blockPatchIn]; ok && blk.emitted() && !blk.device {
			args = append(args, fmt.Sprintf("%s patchIn [[stage_in]]", blk.typeName))
		}
	}

	if w.options.UseArgumentBuffers {
		for _, set := range pc.descriptorSets() {
			args = append(args, fmt.Sprintf("constant spvDescriptorSetBuffer%d& spvDescriptorSet%d [[buffer(%d)]]", set, set, set))
		}
	}
	for _, id := range pc.resources {
		v := w.m.Variable(id)
		if pc.inArgumentBuffer(v) && !w.isSubpassFetch(v) {
			continue
		}
		decls, err := w.resourceDecls(v, false)
		if err != nil {
			return nil, err
		}
		args = append(args, decls...)
	}

	domain := ""
	if pc.stage() == tescStage || pc.stage() == teseStage {
		domain, _ = pc.tessDomain()
	}
	for _, aux := range pc.auxBuffers() {
		args = append(args, fmt.Sprintf("%s %s [[buffer(%d)]]", w.auxType(aux, domain), aux, w.options.auxIndex(aux)))
	}

	if blk, ok := pc.blocks[blockIn]; ok {
		for _, im := range blk.members {
			if !im.hoisted {
				continue
			}
			typ := im.argType
			if typ == "" {
				typ = w.typeName(im.typ)
			}
			rep := pc.builtinReps[inKey(im.builtin)]
			args = append(args, fmt.Sprintf("%s %s [[%s]]", typ, im.name, rep.attr))
		}
	}
	return args, nil
}

// auxType returns the parameter type of an auxiliary buffer.
func (w *Writer) auxType(aux AuxBuffer, domain string) string {
	pc := w.pc
	access := "device"
	if pc.stage() == teseStage {
		access = "const device"
	}
	switch aux {
	case AuxShaderInput:
		return fmt.Sprintf("%s %s*", access, pc.block(blockIn).typeName)
	case AuxPatchOutput:
		if pc.stage() == teseStage {
			return fmt.Sprintf("%s %s*", access, pc.block(blockPatchIn).typeName)
		}
		return fmt.Sprintf("device %s*", pc.block(blockPatchOut).typeName)
	case AuxShaderOutput:
		return fmt.Sprintf("device %s*", pc.block(blockOut).typeName)
	case AuxTessFactor:
		return fmt.Sprintf("%s %s*", access, tessFactorType(domain))
	case AuxDispatchBase:
		return "constant uint3&"
	}
	return "constant uint*"
}

// builtinValue returns the expression of an active input builtin in the
// entry function.
func (w *Writer) builtinValue(key builtinKey) string {
	if blk, ok := w.pc.blocks[blockIn]; ok {
		for _, im := range blk.members {
			if im.isBuiltin && im.builtin == key.builtin && !im.hoisted {
				return blk.varName + "." + im.name
			}
		}
	}
	return builtinRecipes[key.builtin].name
}

// writePrologue initializes what the entry function body expects to find:
// builtin values, the output storage, globals and interface locals.
func (w *Writer) writePrologue() error {
	pc := w.pc
	if err := w.writeBuiltinValues(); err != nil {
		return err
	}
	w.writeDispatchBase()
	if err := w.writeOutputStorage(); err != nil {
		return err
	}
	if err := w.writeGlobals(); err != nil {
		return err
	}
	return w.writeIOLocals(pc)
}

// writeBuiltinValues declares the builtins that are not plain arguments,
// each after the builtins its initializer reads.
func (w *Writer) writeBuiltinValues() error {
	pc := w.pc
	done := make(map[builtinKey]bool)
	var visit func(key builtinKey)
	visit = func(key builtinKey) {
		if done[key] {
			return
		}
		done[key] = true
		rep := pc.builtinReps[key]
		for _, n := range rep.needs {
			visit(n)
		}
		r := builtinRecipes[key.builtin]
		switch key.builtin {
		case spirv.BuiltInTessLevelOuter, spirv.BuiltInTessLevelInner, builtinDispatchBase:
			return
		}
		if rep.kind == repAttribute {
			ib := pc.ioBinds[pc.builtinVars[key]]
			if ib == nil || ib.kind != ioBuiltinValue {
				return
			}
		}
		needs := make([]string, len(rep.needs))
		for i, n := range rep.needs {
			needs[i] = w.builtinValue(n)
		}
		init := rep.init
		if init == "" {
			init = "{arg}"
		}
		w.writeLine("%s %s = %s;", recipeTypeName(r), r.name, builtinRep{init: init}.expand(needs, r.name+"_in"))
	}
	for _, key := range pc.activeKeys() {
		if key.dir == DirectionInput {
			visit(key)
		}
	}
	return nil
}

// writeDispatchBase offsets workgroup and invocation IDs by the dispatch
// base.
func (w *Writer) writeDispatchBase() {
	pc := w.pc
	key := inKey(builtinDispatchBase)
	if !pc.isActive(key) {
		return
	}
	base := builtinRecipes[builtinDispatchBase].name
	size := pc.workgroupSize()
	native := pc.builtinReps[key].kind == repAttribute
	if pc.isActive(inKey(spirv.BuiltInWorkgroupID)) {
		if native {
			w.writeLine("%s += %s / %s;", w.builtinValue(inKey(spirv.BuiltInWorkgroupID)), base, size)
		} else {
			w.writeLine("%s += %s;", w.builtinValue(inKey(spirv.BuiltInWorkgroupID)), base)
		}
	}
	if pc.isActive(inKey(spirv.BuiltInGlobalInvocationID)) {
		if native {
			w.writeLine("%s += %s;", w.builtinValue(inKey(spirv.BuiltInGlobalInvocationID)), base)
		} else {
			w.writeLine("%s += %s * %s;", w.builtinValue(inKey(spirv.BuiltInGlobalInvocationID)), base, size)
		}
	}
}

// writeOutputStorage declares where outputs are written and the per patch
// views of tessellation buffers.
func (w *Writer) writeOutputStorage() error {
	pc := w.pc
	primitive := func() string { return w.builtinValue(inKey(spirv.BuiltInPrimitiveID)) }
	switch pc.stage() {
	case tescStage:
		n := pc.patchControlPoints()
		w.writeLine("device %s* gl_out = &%s[%s * %d];", pc.block(blockOut).typeName, AuxShaderOutput, primitive(), n)
		w.writeLine("device %s& patchOut = %s[%s];", pc.block(blockPatchOut).typeName, AuxPatchOutput, primitive())
		w.writeLine("device %s* gl_in = &%s[%s * %s[0]];", pc.block(blockIn).typeName, AuxShaderInput, primitive(), AuxIndirectParams)
	case teseStage:
		if pc.options.RawBufferTessellationInput {
			w.writeLine("const device %s* gl_in = &%s[%s * %d];", pc.block(blockIn).typeName, AuxShaderInput, primitive(), pc.patchControlPoints())
			w.writeLine("const device %s& patchIn = %s[%s];", pc.block(blockPatchIn).typeName, AuxPatchOutput, primitive())
		}
	}
	blk, ok := pc.blocks[blockOut]
	if !ok || pc.stage() == tescStage {
		return nil
	}
	if blk.device {
		vertex := w.builtinValue(inKey(spirv.BuiltInVertexIndex))
		instance := w.builtinValue(inKey(spirv.BuiltInInstanceIndex))
		if pc.options.DrawParameters {
			vertex = fmt.Sprintf("(%s - %s)", vertex, w.builtinValue(inKey(spirv.BuiltInBaseVertex)))
			instance = fmt.Sprintf("(%s - %s)", instance, w.builtinValue(inKey(spirv.BuiltInBaseInstance)))
		}
		w.writeLine("device %s& out = %s[%s * %s[0] + %s];", blk.typeName, AuxShaderOutput, instance, AuxIndirectParams, vertex)
	} else if blk.emitted() {
		w.writeLine("%s out = {};", blk.typeName)
	} else {
		return nil
	}
	for _, im := range blk.members {
		switch {
		case im.defaultValue != "":
			w.writeLine("out.%s = %s;", im.name, im.defaultValue)
		case im.copyFrom != nil:
			w.writeLine("out.%s = %s;", im.name, w.builtinValue(*im.copyFrom))
		}
	}
	return nil
}

// writeGlobals declares the private and workgroup variables the entry
// point reaches.
func (w *Writer) writeGlobals() error {
	pc := w.pc
	m := w.m
	for _, id := range pc.resources {
		v := m.Variable(id)
		t := m.Pointee(v.Type)
		if !t.IsArray() || pc.inArgumentBuffer(v) {
			continue
		}
		switch v.Storage {
		case spirv.StorageClassUniform, spirv.StorageClassStorageBuffer, spirv.StorageClassPushConstant:
		default:
			continue
		}
		name := w.globalName(id)
		n := m.ArraySize(t, len(t.Array)-1)
		elems := make([]string, n)
		for i := range elems {
			elems[i] = fmt.Sprintf("%s_%d", name, i)
		}
		w.writeLine("%s %s* %s[] =", w.bufferSpace(v), w.typeName(t.Parent), name)
		w.writeLine("{")
		w.pushIndent()
		w.writeLine("%s,", strings.Join(elems, ", "))
		w.popIndent()
		w.writeLine("};")
	}
	var shared []string
	for _, v := range m.Variables() {
		if !pc.isUsed(v.Self) {
			continue
		}
		t := m.Pointee(v.Type)
		name := w.globalName(v.Self)
		switch v.Storage {
		case spirv.StorageClassPrivate:
			init := "{}"
			if v.Initializer != 0 {
				s, err := w.valueOf(v.Initializer)
				if err != nil {
					return err
				}
				init = s
			}
			w.writeLine("%s = %s;", w.declarator(t, repr{}, name), init)
		case spirv.StorageClassWorkgroup:
			w.writeLine("threadgroup %s;", w.declarator(t, repr{}, name))
			shared = append(shared, name)
		}
	}
	if len(shared) > 0 && pc.options.ZeroInitializeWorkgroupMemory && pc.stage() == computeStage {
		w.writeLine("if (%s == 0u)", w.builtinValue(inKey(spirv.BuiltInLocalInvocationIndex)))
		w.writeLine("{")
		w.pushIndent()
		for _, name := range shared {
			w.writeLine("%s = {};", name)
		}
		w.popIndent()
		w.writeLine("}")
		w.writeLine("threadgroup_barrier(mem_flags::mem_threadgroup);")
	}
	return nil
}

// localPath renders a path from a local of type typ.
func (w *Writer) localPath(expr string, typ ir.ID, steps []pathStep) (string, ir.ID) {
	m := w.m
	for _, s := range steps {
		t := m.Type(typ)
		switch {
		case s.member:
			expr += "." + w.memberName(t.Self, s.index)
			typ = t.Members[s.index]
		case t.IsArray():
			if w.isOpaque(t) || t.IsRuntimeArray() {
				expr += fmt.Sprintf("[%d]", s.index)
			} else {
				expr += fmt.Sprintf(".inner[%d]", s.index)
			}
			typ = t.Parent
		case t.IsMatrix():
			expr += fmt.Sprintf("[%d]", s.index)
			typ = m.Vector(t.Base, t.Width, t.VecSize)
		default:
			expr += fmt.Sprintf("[%d]", s.index)
			typ = m.Scalar(t.Base, t.Width)
		}
	}
	return expr, typ
}

// memberExpr renders the member side of an interface fixup.
func (w *Writer) memberExpr(blk *interfaceBlock, f ioFixup) (string, ir.ID, error) {
	im, ok := blk.slot(f.key)
	if !ok {
		return "", 0, internal("fixup of %d has no member", f.key.variable)
	}
	expr := blk.varName + "." + im.name
	if im.hoisted {
		expr = im.name
	}
	for _, s := range f.member {
		expr += fmt.Sprintf("[%d]", s.index)
	}
	return expr + f.swizzle, im.typ, nil
}

// writeIOLocals declares the locals standing for interface variables and
// fills the input ones.
func (w *Writer) writeIOLocals(pc *passContext) error {
	m := w.m
	domain := ""
	if pc.stage() == tescStage || pc.stage() == teseStage {
		domain, _ = pc.tessDomain()
	}
	for _, id := range pc.ioBindsSorted() {
		ib := pc.ioBinds[id]
		if ib.kind != ioLocal {
			continue
		}
		v := m.Variable(id)
		t := m.Pointee(v.Type)
		name := w.ioLocalName(id)
		w.writeLine("%s = {};", w.declarator(t, repr{}, name))
		if ib.block == nil {
			if ib.dir == DirectionInput {
				w.readTessLevels(ib, name, t, domain)
			}
			continue
		}
		if ib.dir != DirectionInput {
			continue
		}
		for _, f := range ib.fixups {
			src, _, err := w.memberExpr(ib.block, f)
			if err != nil {
				return err
			}
			dst, typ := w.localPath(name, t.Self, f.local)
			if f.cast {
				src = fmt.Sprintf("%s(%s)", w.typeName(typ), src)
			}
			w.writeLine("%s = %s;", dst, src)
		}
	}
	return nil
}

// tessFactorCounts returns the number of edge and inside factors of a
// patch type.
func tessFactorCounts(domain string) (edges, inside int) {
	if domain == "quad" {
		return 4, 2
	}
	return 3, 1
}

// readTessLevels fills a tessellation level input from the factor buffer.
func (w *Writer) readTessLevels(ib *ioBinding, name string, t *ir.Type, domain string) {
	edges, inside := tessFactorCounts(domain)
	n := int(w.m.ArraySize(t, len(t.Array)-1))
	factors := fmt.Sprintf("%s[%s]", AuxTessFactor, w.builtinValue(inKey(spirv.BuiltInPrimitiveID)))
	if ib.builtin.builtin == spirv.BuiltInTessLevelOuter {
		for i := 0; i < min(n, edges); i++ {
			dst, _ := w.localPath(name, t.Self, []pathStep{indexStep(i)})
			w.writeLine("%s = float(%s.edgeTessellationFactor[%d]);", dst, factors, i)
		}
		return
	}
	for i := 0; i < min(n, inside); i++ {
		dst, _ := w.localPath(name, t.Self, []pathStep{indexStep(i)})
		if inside == 1 {
			w.writeLine("%s = float(%s.insideTessellationFactor);", dst, factors)
		} else {
			w.writeLine("%s = float(%s.insideTessellationFactor[%d]);", dst, factors, i)
		}
	}
}

// writeEpilogue copies output locals to their members and writes the
// tessellation factors before the entry function returns.
func (w *Writer) writeEpilogue() error {
	pc := w.pc
	m := w.m
	var levels []ir.ID
	for _, id := range pc.ioBindsSorted() {
		ib := pc.ioBinds[id]
		if ib.kind != ioLocal || ib.dir != DirectionOutput {
			continue
		}
		if ib.block == nil {
			levels = append(levels, id)
			continue
		}
		t := m.Pointee(m.Variable(id).Type)
		name := w.ioLocalName(id)
		for _, f := range ib.fixups {
			dst, mt, err := w.memberExpr(ib.block, f)
			if err != nil {
				return err
			}
			src, _ := w.localPath(name, t.Self, f.local)
			if f.cast {
				if len(f.member) > 0 {
					mt = m.Scalar(m.Type(mt).Base, m.Type(mt).Width)
				}
				src = fmt.Sprintf("%s(%s)", w.typeName(mt), src)
			}
			w.writeLine("%s = %s;", dst, src)
		}
	}
	if len(levels) == 0 || pc.stage() != tescStage {
		return nil
	}
	domain, _ := pc.tessDomain()
	edges, inside := tessFactorCounts(domain)
	factors := fmt.Sprintf("%s[%s]", AuxTessFactor, w.builtinValue(inKey(spirv.BuiltInPrimitiveID)))
	w.writeLine("if (%s == 0)", w.builtinValue(inKey(spirv.BuiltInInvocationID)))
	w.writeLine("{")
	w.pushIndent()
	for _, id := range levels {
		ib := pc.ioBinds[id]
		t := m.Pointee(m.Variable(id).Type)
		name := w.ioLocalName(id)
		n := int(m.ArraySize(t, len(t.Array)-1))
		if ib.builtin.builtin == spirv.BuiltInTessLevelOuter {
			for i := 0; i < min(n, edges); i++ {
				src, _ := w.localPath(name, t.Self, []pathStep{indexStep(i)})
				w.writeLine("%s.edgeTessellationFactor[%d] = half(%s);", factors, i, src)
			}
			continue
		}
		for i := 0; i < min(n, inside); i++ {
			src, _ := w.localPath(name, t.Self, []pathStep{indexStep(i)})
			if inside == 1 {
				w.writeLine("%s.insideTessellationFactor = half(%s);", factors, src)
			} else {
				w.writeLine("%s.insideTessellationFactor[%d] = half(%s);", factors, i, src)
			}
		}
	}
	w.popIndent()
	w.writeLine("}")
	return nil
}
