package msl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// builtinDispatchBase keys the compute dispatch base in the recipe table.
// It is not a SPIR-V builtin.
const builtinDispatchBase spirv.BuiltIn = 0x7fff0001

var (
	vertexStage   = spirv.ExecutionModelVertex
	tescStage     = spirv.ExecutionModelTessellationControl
	teseStage     = spirv.ExecutionModelTessellationEvaluation
	fragmentStage = spirv.ExecutionModelFragment
	computeStage  = spirv.ExecutionModelGLCompute
)

// stageAttrs maps a stage to the attribute a builtin takes there.
type stageAttrs map[spirv.ExecutionModel]string

// builtinRecipe describes how a builtin is declared in MSL.
type builtinRecipe struct {
	name    string
	base    ir.BaseType
	vecSize uint32
	array   uint32

	in, out stageAttrs

	// tier is the minimum version the builtin needs, if any. stageTiers
	// overrides it for single stages.
	tier       *tier
	stageTiers map[spirv.ExecutionModel]*tier

	// resolve picks a representation other than a plain attribute. It
	// returns false to fall back to the attribute.
	resolve func(pc *passContext, dir Direction) (builtinRep, bool)
}

type repKind uint8

const (
	// repAttribute is an entry argument with a builtin attribute.
	repAttribute repKind = iota
	// repComputed is a local initialized from other values.
	repComputed
	// repBuffer is a local read from an auxiliary buffer.
	repBuffer
)

// builtinRep is how one active builtin is represented in a pass.
type builtinRep struct {
	kind repKind
	attr string
	// argType overrides the argument type of an attribute.
	argType string
	// init is the initializer of computed and buffer builtins. {0} and
	// up stand for the needed builtins, {arg} for the attribute argument.
	init  string
	aux   AuxBuffer
	needs []builtinKey
}

var (
	tierSubgroups = &tier{macOS: Version2_0, iOS: Version2_2}
	tierHelper    = &tier{macOS: Version2_3, iOS: Version2_3}
	tierBary      = &tier{macOS: Version2_2, iOS: Version2_3}
	tierFragPrim  = &tier{macOS: Version2_2, iOS: Version2_3}
	tierBase      = &tier{macOS: Version1_1, iOS: Version1_1}
	tierStencil   = &tier{macOS: Version2_1, iOS: Version2_1}
	tierGridOrig  = tier{macOS: Version1_2, iOS: Version1_2}
	tierAmplify   = tier{macOS: Version2_3, iOS: Version2_3}
)

func inKey(k spirv.BuiltIn) builtinKey  { return builtinKey{dir: DirectionInput, builtin: k} }
func outKey(k spirv.BuiltIn) builtinKey { return builtinKey{dir: DirectionOutput, builtin: k} }

// builtinRecipes is the declaration table of every builtin the translator
// can produce.
var builtinRecipes = map[spirv.BuiltIn]*builtinRecipe{
	spirv.BuiltInPosition: {
		name: "gl_Position", base: ir.BaseFloat, vecSize: 4,
		out: stageAttrs{vertexStage: "position", teseStage: "position"},
	},
	spirv.BuiltInPointSize: {
		name: "gl_PointSize", base: ir.BaseFloat, vecSize: 1,
		out: stageAttrs{vertexStage: "point_size", teseStage: "point_size"},
	},
	spirv.BuiltInClipDistance: {
		name: "gl_ClipDistance", base: ir.BaseFloat, vecSize: 1, array: 1,
		out: stageAttrs{vertexStage: "clip_distance", teseStage: "clip_distance"},
	},
	spirv.BuiltInCullDistance: {
		name: "gl_CullDistance", base: ir.BaseFloat, vecSize: 1, array: 1,
		out: stageAttrs{vertexStage: "user(cull_distance)", teseStage: "user(cull_distance)"},
	},
	spirv.BuiltInVertexIndex: {
		name: "gl_VertexIndex", base: ir.BaseUInt, vecSize: 1,
		in: stageAttrs{vertexStage: "vertex_id"},
	},
	spirv.BuiltInVertexID: {
		name: "gl_VertexID", base: ir.BaseUInt, vecSize: 1,
		in: stageAttrs{vertexStage: "vertex_id"},
	},
	spirv.BuiltInInstanceIndex: {
		name: "gl_InstanceIndex", base: ir.BaseUInt, vecSize: 1,
		in: stageAttrs{vertexStage: "instance_id"},
	},
	spirv.BuiltInInstanceID: {
		name: "gl_InstanceID", base: ir.BaseUInt, vecSize: 1,
		in: stageAttrs{vertexStage: "instance_id"},
	},
	spirv.BuiltInBaseVertex: {
		name: "gl_BaseVertex", base: ir.BaseUInt, vecSize: 1, tier: tierBase,
		in: stageAttrs{vertexStage: "base_vertex"},
	},
	spirv.BuiltInBaseInstance: {
		name: "gl_BaseInstance", base: ir.BaseUInt, vecSize: 1, tier: tierBase,
		in: stageAttrs{vertexStage: "base_instance"},
	},
	spirv.BuiltInPrimitiveID: {
		name: "gl_PrimitiveID", base: ir.BaseUInt, vecSize: 1,
		in: stageAttrs{
			fragmentStage: "primitive_id",
			tescStage:     "threadgroup_position_in_grid",
			teseStage:     "patch_id",
		},
		stageTiers: map[spirv.ExecutionModel]*tier{fragmentStage: tierFragPrim},
		resolve:    resolvePrimitiveID,
	},
	spirv.BuiltInInvocationID: {
		name: "gl_InvocationID", base: ir.BaseUInt, vecSize: 1,
		in:      stageAttrs{tescStage: "thread_index_in_threadgroup"},
		resolve: resolveInvocationID,
	},
	spirv.BuiltInLayer: {
		name: "gl_Layer", base: ir.BaseUInt, vecSize: 1,
		in:  stageAttrs{fragmentStage: "render_target_array_index"},
		out: stageAttrs{vertexStage: "render_target_array_index", teseStage: "render_target_array_index"},
	},
	spirv.BuiltInViewportIndex: {
		name: "gl_ViewportIndex", base: ir.BaseUInt, vecSize: 1,
		in:  stageAttrs{fragmentStage: "viewport_array_index"},
		out: stageAttrs{vertexStage: "viewport_array_index", teseStage: "viewport_array_index"},
	},
	spirv.BuiltInTessLevelOuter: {
		name: "gl_TessLevelOuter", base: ir.BaseFloat, vecSize: 1, array: 4,
		out:     stageAttrs{tescStage: ""},
		resolve: resolveTessLevel,
	},
	spirv.BuiltInTessLevelInner: {
		name: "gl_TessLevelInner", base: ir.BaseFloat, vecSize: 1, array: 2,
		out:     stageAttrs{tescStage: ""},
		resolve: resolveTessLevel,
	},
	spirv.BuiltInTessCoord: {
		name: "gl_TessCoord", base: ir.BaseFloat, vecSize: 3,
		in:      stageAttrs{teseStage: "position_in_patch"},
		resolve: resolveTessCoord,
	},
	spirv.BuiltInPatchVertices: {
		name: "gl_PatchVerticesIn", base: ir.BaseInt, vecSize: 1,
		resolve: resolvePatchVertices,
	},
	spirv.BuiltInFragCoord: {
		name: "gl_FragCoord", base: ir.BaseFloat, vecSize: 4,
		in: stageAttrs{fragmentStage: "position"},
	},
	spirv.BuiltInPointCoord: {
		name: "gl_PointCoord", base: ir.BaseFloat, vecSize: 2,
		in: stageAttrs{fragmentStage: "point_coord"},
	},
	spirv.BuiltInFrontFacing: {
		name: "gl_FrontFacing", base: ir.BaseBool, vecSize: 1,
		in: stageAttrs{fragmentStage: "front_facing"},
	},
	spirv.BuiltInSampleID: {
		name: "gl_SampleID", base: ir.BaseUInt, vecSize: 1,
		in: stageAttrs{fragmentStage: "sample_id"},
	},
	spirv.BuiltInSamplePosition: {
		name: "gl_SamplePosition", base: ir.BaseFloat, vecSize: 2,
		resolve: func(pc *passContext, _ Direction) (builtinRep, bool) {
			return builtinRep{
				kind:  repComputed,
				init:  "get_sample_position({0})",
				needs: []builtinKey{inKey(spirv.BuiltInSampleID)},
			}, true
		},
	},
	spirv.BuiltInSampleMask: {
		name: "gl_SampleMask", base: ir.BaseUInt, vecSize: 1,
		in:  stageAttrs{fragmentStage: "sample_mask"},
		out: stageAttrs{fragmentStage: "sample_mask"},
	},
	spirv.BuiltInFragDepth: {
		name: "gl_FragDepth", base: ir.BaseFloat, vecSize: 1,
		out: stageAttrs{fragmentStage: "depth(any)"},
	},
	spirv.BuiltInFragStencilRefEXT: {
		name: "gl_FragStencilRefARB", base: ir.BaseUInt, vecSize: 1, tier: tierStencil,
		out: stageAttrs{fragmentStage: "stencil"},
	},
	spirv.BuiltInHelperInvocation: {
		name: "gl_HelperInvocation", base: ir.BaseBool, vecSize: 1, tier: tierHelper,
		resolve: func(*passContext, Direction) (builtinRep, bool) {
			return builtinRep{kind: repComputed, init: "simd_is_helper_thread()"}, true
		},
	},
	spirv.BuiltInBaryCoordKHR: {
		name: "gl_BaryCoordEXT", base: ir.BaseFloat, vecSize: 3, tier: tierBary,
		in: stageAttrs{fragmentStage: "barycentric_coord, center_perspective"},
	},
	spirv.BuiltInNumWorkgroups: {
		name: "gl_NumWorkGroups", base: ir.BaseUInt, vecSize: 3,
		in: stageAttrs{computeStage: "threadgroups_per_grid"},
	},
	spirv.BuiltInWorkgroupSize: {
		name: "gl_WorkGroupSize", base: ir.BaseUInt, vecSize: 3,
		resolve: func(pc *passContext, _ Direction) (builtinRep, bool) {
			return builtinRep{kind: repComputed, init: pc.workgroupSize()}, true
		},
	},
	spirv.BuiltInWorkgroupID: {
		name: "gl_WorkGroupID", base: ir.BaseUInt, vecSize: 3,
		in: stageAttrs{computeStage: "threadgroup_position_in_grid"},
	},
	spirv.BuiltInLocalInvocationID: {
		name: "gl_LocalInvocationID", base: ir.BaseUInt, vecSize: 3,
		in: stageAttrs{computeStage: "thread_position_in_threadgroup"},
	},
	spirv.BuiltInGlobalInvocationID: {
		name: "gl_GlobalInvocationID", base: ir.BaseUInt, vecSize: 3,
		in: stageAttrs{computeStage: "thread_position_in_grid", tescStage: "thread_position_in_grid"},
	},
	spirv.BuiltInLocalInvocationIndex: {
		name: "gl_LocalInvocationIndex", base: ir.BaseUInt, vecSize: 1,
		in: stageAttrs{computeStage: "thread_index_in_threadgroup"},
	},
	spirv.BuiltInSubgroupSize: {
		name: "gl_SubgroupSize", base: ir.BaseUInt, vecSize: 1, tier: tierSubgroups,
		in:      stageAttrs{computeStage: "threads_per_simdgroup", fragmentStage: "threads_per_simdgroup"},
		resolve: emulatedSubgroup("1u"),
	},
	spirv.BuiltInSubgroupLocalInvocationID: {
		name: "gl_SubgroupInvocationID", base: ir.BaseUInt, vecSize: 1, tier: tierSubgroups,
		in:      stageAttrs{computeStage: "thread_index_in_simdgroup", fragmentStage: "thread_index_in_simdgroup"},
		resolve: emulatedSubgroup("0u"),
	},
	spirv.BuiltInSubgroupID: {
		name: "gl_SubgroupID", base: ir.BaseUInt, vecSize: 1, tier: tierSubgroups,
		in: stageAttrs{computeStage: "simdgroup_index_in_threadgroup"},
		resolve: func(pc *passContext, _ Direction) (builtinRep, bool) {
			if !pc.options.EmulateSubgroups {
				return builtinRep{}, false
			}
			return builtinRep{
				kind:  repComputed,
				init:  "{0}",
				needs: []builtinKey{inKey(spirv.BuiltInLocalInvocationIndex)},
			}, true
		},
	},
	spirv.BuiltInNumSubgroups: {
		name: "gl_NumSubgroups", base: ir.BaseUInt, vecSize: 1, tier: tierSubgroups,
		in: stageAttrs{computeStage: "simdgroups_per_threadgroup"},
		resolve: func(pc *passContext, _ Direction) (builtinRep, bool) {
			if !pc.options.EmulateSubgroups {
				return builtinRep{}, false
			}
			w := pc.ep.Workgroup
			return builtinRep{kind: repComputed, init: fmt.Sprintf("%du", max(w[0], 1)*max(w[1], 1)*max(w[2], 1))}, true
		},
	},
	spirv.BuiltInDeviceIndex: {
		name: "gl_DeviceIndex", base: ir.BaseUInt, vecSize: 1,
		resolve: func(*passContext, Direction) (builtinRep, bool) {
			return builtinRep{kind: repComputed, init: "0u"}, true
		},
	},
	spirv.BuiltInViewIndex: {
		name: "gl_ViewIndex", base: ir.BaseUInt, vecSize: 1,
		in:      stageAttrs{fragmentStage: "render_target_array_index"},
		resolve: resolveViewIndex,
	},
	builtinDispatchBase: {
		name: "spvDispatchBase", base: ir.BaseUInt, vecSize: 3,
		resolve: resolveDispatchBase,
	},
}

func emulatedSubgroup(value string) func(*passContext, Direction) (builtinRep, bool) {
	return func(pc *passContext, _ Direction) (builtinRep, bool) {
		if !pc.options.EmulateSubgroups {
			return builtinRep{}, false
		}
		return builtinRep{kind: repComputed, init: value}, true
	}
}

func resolvePrimitiveID(pc *passContext, _ Direction) (builtinRep, bool) {
	if pc.stage() == tescStage && pc.options.MultiPatchWorkgroup {
		return builtinRep{
			kind:  repComputed,
			init:  fmt.Sprintf("{0}.x / %d", pc.patchControlPoints()),
			needs: []builtinKey{inKey(spirv.BuiltInGlobalInvocationID)},
		}, true
	}
	return builtinRep{}, false
}

func resolveInvocationID(pc *passContext, _ Direction) (builtinRep, bool) {
	if pc.stage() == tescStage && pc.options.MultiPatchWorkgroup {
		return builtinRep{
			kind:  repComputed,
			init:  fmt.Sprintf("{0}.x %% %d", pc.patchControlPoints()),
			needs: []builtinKey{inKey(spirv.BuiltInGlobalInvocationID)},
		}, true
	}
	return builtinRep{}, false
}

func resolveTessCoord(pc *passContext, _ Direction) (builtinRep, bool) {
	if pc.ep.Modes.Has(uint32(spirv.ExecutionModeTriangles)) {
		return builtinRep{}, false
	}
	return builtinRep{
		kind:    repAttribute,
		attr:    "position_in_patch",
		argType: "float2",
		init:    "float3({arg}, 0.0)",
	}, true
}

func resolvePatchVertices(pc *passContext, _ Direction) (builtinRep, bool) {
	if pc.stage() == tescStage {
		return builtinRep{kind: repBuffer, aux: AuxIndirectParams, init: "int(spvIndirectParams[0])"}, true
	}
	return builtinRep{kind: repComputed, init: fmt.Sprint(pc.patchControlPoints())}, true
}

// resolveTessLevel reads tessellation factors back from the factor buffer
// in evaluation shaders.
func resolveTessLevel(pc *passContext, dir Direction) (builtinRep, bool) {
	if dir != DirectionInput || pc.stage() != teseStage {
		return builtinRep{}, false
	}
	return builtinRep{
		kind:  repBuffer,
		aux:   AuxTessFactor,
		needs: []builtinKey{inKey(spirv.BuiltInPrimitiveID)},
	}, true
}

// resolveViewIndex reads the view from the amplification id when the
// target has it, and from the view mask buffer otherwise.
func resolveViewIndex(pc *passContext, _ Direction) (builtinRep, bool) {
	if pc.stage() != vertexStage {
		return builtinRep{}, false
	}
	if pc.options.supports(tierAmplify) {
		return builtinRep{kind: repAttribute, attr: "amplification_id"}, true
	}
	return builtinRep{
		kind:  repBuffer,
		aux:   AuxViewMask,
		init:  "spvViewMask[0] + {0} % spvViewMask[1]",
		needs: []builtinKey{inKey(spirv.BuiltInInstanceIndex)},
	}, true
}

func resolveDispatchBase(pc *passContext, _ Direction) (builtinRep, bool) {
	if pc.options.supports(tierGridOrig) {
		return builtinRep{kind: repAttribute, attr: "grid_origin"}, true
	}
	return builtinRep{kind: repBuffer, aux: AuxDispatchBase, init: "spvDispatchBase"}, true
}

// attribute returns the attribute of key in the current stage.
func (r *builtinRecipe) attribute(stage spirv.ExecutionModel, dir Direction) (string, bool) {
	attrs := r.in
	if dir == DirectionOutput {
		attrs = r.out
	}
	a, ok := attrs[stage]
	return a, ok
}

func (r *builtinRecipe) tierFor(stage spirv.ExecutionModel) *tier {
	if t, ok := r.stageTiers[stage]; ok {
		return t
	}
	return r.tier
}

// expand fills the initializer template of a builtin representation.
func (r builtinRep) expand(needs []string, arg string) string {
	pairs := []string{"{arg}", arg}
	for i, n := range needs {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", n)
	}
	return strings.NewReplacer(pairs...).Replace(r.init)
}

// activationRule adds builtins when its predicate holds.
type activationRule struct {
	name     string
	when     func(pc *passContext) bool
	builtins func(pc *passContext) []builtinKey
}

func fixed(keys ...builtinKey) func(*passContext) []builtinKey {
	return func(*passContext) []builtinKey { return keys }
}

var activationRules = []activationRule{
	{
		name: "tessellation control patch indices",
		when: func(pc *passContext) bool {
			return pc.stage() == tescStage && !pc.options.MultiPatchWorkgroup
		},
		builtins: fixed(inKey(spirv.BuiltInInvocationID), inKey(spirv.BuiltInPrimitiveID)),
	},
	{
		name: "multi-patch tessellation control",
		when: func(pc *passContext) bool {
			return pc.stage() == tescStage && pc.options.MultiPatchWorkgroup
		},
		builtins: fixed(inKey(spirv.BuiltInGlobalInvocationID), inKey(spirv.BuiltInInvocationID), inKey(spirv.BuiltInPrimitiveID)),
	},
	{
		name: "raw buffer tessellation input",
		when: func(pc *passContext) bool {
			return pc.stage() == teseStage && pc.options.RawBufferTessellationInput
		},
		builtins: fixed(inKey(spirv.BuiltInPrimitiveID)),
	},
	{
		name: "vertex output to buffer",
		when: func(pc *passContext) bool {
			return pc.stage() == vertexStage && (pc.options.CaptureOutputToBuffer || pc.options.VertexForTessellation)
		},
		builtins: func(pc *passContext) []builtinKey {
			keys := []builtinKey{inKey(spirv.BuiltInVertexIndex), inKey(spirv.BuiltInInstanceIndex)}
			if pc.options.DrawParameters {
				keys = append(keys, inKey(spirv.BuiltInBaseVertex), inKey(spirv.BuiltInBaseInstance))
			}
			return keys
		},
	},
	{
		name: "multiview",
		when: func(pc *passContext) bool {
			return pc.options.MultiviewEnabled && (pc.stage() == vertexStage || pc.stage() == fragmentStage)
		},
		builtins: func(pc *passContext) []builtinKey {
			if pc.stage() == vertexStage && !pc.rasterizationOff() {
				return []builtinKey{inKey(spirv.BuiltInViewIndex), outKey(spirv.BuiltInLayer)}
			}
			return []builtinKey{inKey(spirv.BuiltInViewIndex)}
		},
	},
	{
		name: "dispatch base",
		when: func(pc *passContext) bool {
			if pc.stage() != computeStage || !pc.options.DispatchBase {
				return false
			}
			return pc.active[DirectionInput].Has(uint32(spirv.BuiltInWorkgroupID)) ||
				pc.active[DirectionInput].Has(uint32(spirv.BuiltInGlobalInvocationID))
		},
		builtins: fixed(inKey(builtinDispatchBase)),
	},
	{
		name: "sample rate shading",
		when: func(pc *passContext) bool {
			return pc.stage() == fragmentStage && pc.options.ForceSampleRateShading
		},
		builtins: fixed(inKey(spirv.BuiltInSampleID)),
	},
	{
		name: "point size",
		when: func(pc *passContext) bool {
			return pc.stage() == vertexStage && pc.options.EnablePointSizeBuiltin && !pc.rasterizationOff()
		},
		builtins: fixed(outKey(spirv.BuiltInPointSize)),
	},
	{
		name: "workgroup zero initialization",
		when: func(pc *passContext) bool {
			return pc.stage() == computeStage && pc.options.ZeroInitializeWorkgroupMemory && pc.usesWorkgroupMemory()
		},
		builtins: fixed(inKey(spirv.BuiltInLocalInvocationIndex)),
	},
}

// rasterizationOff reports whether vertex outputs never reach the
// rasterizer in this pass.
func (pc *passContext) rasterizationOff() bool {
	return pc.rasterizationDisabled || pc.options.CaptureOutputToBuffer || pc.options.VertexForTessellation
}

func (pc *passContext) usesWorkgroupMemory() bool {
	for _, v := range pc.module.Variables() {
		if v.Storage == spirv.StorageClassWorkgroup && pc.isUsed(v.Self) {
			return true
		}
	}
	return false
}

func (pc *passContext) workgroupSize() string {
	w := pc.ep.Workgroup
	return fmt.Sprintf("uint3(%du, %du, %du)", max(w[0], 1), max(w[1], 1), max(w[2], 1))
}

func directionOf(sc spirv.StorageClass) (Direction, bool) {
	switch sc {
	case spirv.StorageClassInput:
		return DirectionInput, true
	case spirv.StorageClassOutput:
		return DirectionOutput, true
	}
	return 0, false
}

func (pc *passContext) activate(key builtinKey) bool {
	if pc.active[key.dir].Has(uint32(key.builtin)) {
		return false
	}
	pc.active[key.dir].Set(uint32(key.builtin))
	return true
}

func (pc *passContext) isActive(key builtinKey) bool {
	return pc.active[key.dir].Has(uint32(key.builtin))
}

// activeKeys returns the active builtins in direction then value order.
func (pc *passContext) activeKeys() []builtinKey {
	var keys []builtinKey
	for dir := DirectionInput; dir <= DirectionOutput; dir++ {
		for _, v := range pc.active[dir].Values() {
			keys = append(keys, builtinKey{dir: dir, builtin: spirv.BuiltIn(v)})
		}
	}
	return keys
}

// activateBuiltins decides which builtins the entry point needs in this
// pass, declares the missing ones and resolves their representation.
func (pc *passContext) activateBuiltins() error {
	m := pc.module
	declared := make(map[builtinKey]ir.ID)

	// Builtins the module declares and uses.
	for _, id := range pc.interfaceVariables() {
		v := m.Variable(id)
		if v == nil {
			return invalid("entry point %s lists %d, which is not a variable", pc.ep.Name, id)
		}
		dir, ok := directionOf(v.Storage)
		if !ok {
			continue
		}
		if bi, ok := m.BuiltIn(id); ok {
			key := builtinKey{dir: dir, builtin: bi}
			declared[key] = id
			if pc.isUsed(id) {
				pc.activate(key)
			}
			continue
		}
		t := m.Pointee(v.Type)
		if t.IsArray() && pc.arrayedInterface(v) {
			t = m.Element(t)
		}
		if !t.IsStruct() {
			continue
		}
		for i := range t.Members {
			bi, ok := m.MemberBuiltIn(t.Self, i)
			if !ok {
				continue
			}
			key := builtinKey{dir: dir, builtin: bi}
			declared[key] = id
			if pc.isUsed(id) && pc.memberUsed(id, i) {
				pc.activate(key)
			}
		}
	}

	// Builtins earlier passes found during emission.
	for dir := DirectionInput; dir <= DirectionOutput; dir++ {
		for _, v := range pc.req.builtins[dir].Values() {
			pc.activate(builtinKey{dir: dir, builtin: spirv.BuiltIn(v)})
		}
	}

	for _, rule := range activationRules {
		if rule.when(pc) {
			for _, k := range rule.builtins(pc) {
				pc.activate(k)
			}
		}
	}

	// Resolve representations; a representation may need more builtins.
	for changed := true; changed; {
		changed = false
		for _, key := range pc.activeKeys() {
			if _, done := pc.builtinReps[key]; done {
				continue
			}
			rep, err := pc.resolveBuiltin(key)
			if err != nil {
				return err
			}
			pc.builtinReps[key] = rep
			if rep.kind == repBuffer {
				pc.needAux(rep.aux)
			}
			for _, need := range rep.needs {
				if pc.activate(need) {
					changed = true
				}
			}
		}
	}

	for _, key := range pc.activeKeys() {
		r := builtinRecipes[key.builtin]
		if t := r.tierFor(pc.stage()); t != nil {
			if err := pc.options.require(fmt.Sprintf("builtin %s", r.name), *t); err != nil {
				return err
			}
		}
		if id, ok := declared[key]; ok {
			pc.builtinVars[key] = id
			continue
		}
		pc.builtinVars[key] = pc.synthesizeBuiltin(key, r)
	}
	return nil
}

// resolveBuiltin picks the representation of an active builtin.
func (pc *passContext) resolveBuiltin(key builtinKey) (builtinRep, error) {
	r, ok := builtinRecipes[key.builtin]
	if !ok {
		return builtinRep{}, unsupported("builtin %s", key.builtin)
	}
	if r.resolve != nil {
		if rep, ok := r.resolve(pc, key.dir); ok {
			return rep, nil
		}
	}
	attr, ok := r.attribute(pc.stage(), key.dir)
	if !ok {
		return builtinRep{}, unsupported("builtin %s as %s of a %s shader", r.name, key.dir, pc.stage())
	}
	return builtinRep{kind: repAttribute, attr: attr}, nil
}

// synthesizeBuiltin returns the variable standing in for a builtin the
// module does not declare. The variable is created on first use and
// reused by later passes.
func (pc *passContext) synthesizeBuiltin(key builtinKey, r *builtinRecipe) ir.ID {
	m := pc.module
	id, ok := pc.req.synthesized[key]
	if !ok {
		elem := m.Vector(r.base, 32, r.vecSize)
		if r.vecSize <= 1 {
			elem = m.Scalar(r.base, 32)
		}
		if r.base == ir.BaseBool {
			elem = m.Scalar(ir.BaseBool, 1)
		}
		if r.array > 0 {
			elem = m.ArrayOf(elem, r.array)
		}
		storage := spirv.StorageClassInput
		if key.dir == DirectionOutput {
			storage = spirv.StorageClassOutput
		}
		ptr := m.PointerTo(elem, storage)
		id = m.Add(func(id ir.ID) ir.Entity {
			return &ir.Variable{Self: id, Type: ptr, Storage: storage}
		})
		if key.builtin != builtinDispatchBase {
			m.Decorate(id, spirv.DecorationBuiltIn, uint32(key.builtin))
		}
		m.SetName(id, r.name)
		pc.req.synthesized[key] = id
		pc.synthesized++
		log.Debugf("pass %d: synthesized %s %s as %%%d", pc.number, key.dir, r.name, id)
	}
	if !containsID(pc.ep.Interface, id) {
		pc.ep.Interface = append(pc.ep.Interface, id)
	}
	return id
}

// builtinOf returns the builtin a variable declares, if any.
func (pc *passContext) builtinOf(id ir.ID) (builtinKey, bool) {
	v := pc.module.Variable(id)
	if v == nil {
		return builtinKey{}, false
	}
	dir, ok := directionOf(v.Storage)
	if !ok {
		return builtinKey{}, false
	}
	for key, vid := range pc.builtinVars {
		if vid == id && key.dir == dir {
			if bi, ok := pc.module.BuiltIn(id); ok && bi == key.builtin {
				return key, true
			}
			if key.builtin == builtinDispatchBase {
				return key, true
			}
		}
	}
	if bi, ok := pc.module.BuiltIn(id); ok {
		return builtinKey{dir: dir, builtin: bi}, true
	}
	return builtinKey{}, false
}

func containsID(ids []ir.ID, id ir.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
