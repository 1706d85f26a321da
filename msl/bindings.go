package msl

import (
	"cmp"
	"slices"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// PushConstantDescriptorSet is the descriptor set push constant blocks are
// looked up under in a BindingTable. Their binding is always zero.
const PushConstantDescriptorSet = ^uint32(0)

// ResourceKey identifies a resource as the shader declares it.
type ResourceKey struct {
	Stage         spirv.ExecutionModel
	DescriptorSet uint32
	Binding       uint32
}

// ResourceTarget specifies the Metal argument slots for a resource.
type ResourceTarget struct {
	// Buffer is the buffer binding slot. Nil if not bound as buffer.
	Buffer *uint32

	// Texture is the texture binding slot. Nil if not bound as texture.
	Texture *uint32

	// Sampler is the sampler binding slot. Nil if not bound as sampler.
	Sampler *uint32
}

// Slot returns a pointer to n for filling ResourceTarget fields.
func Slot(n uint32) *uint32 {
	return &n
}

// BindingTable maps shader resources to Metal argument slots.
type BindingTable map[ResourceKey]ResourceTarget

type slotKind uint8

const (
	slotBuffer slotKind = iota
	slotTexture
	slotSampler
	slotKinds
)

// resourceClass says which slots a resource variable occupies.
type resourceClass struct {
	buffer, texture, sampler bool
	count                    uint32
}

// classifyResource returns the slot usage of v, or false for variables
// that are not resources.
func classifyResource(m *ir.Module, v *ir.Variable) (resourceClass, bool) {
	t := m.Pointee(v.Type)
	if t == nil {
		return resourceClass{}, false
	}
	count := uint32(1)
	for i := range t.Array {
		if n := m.ArraySize(t, i); n > 0 {
			count *= n
		}
	}
	rc := resourceClass{count: count}
	switch v.Storage {
	case spirv.StorageClassUniform, spirv.StorageClassStorageBuffer, spirv.StorageClassPushConstant:
		rc.buffer = true
	case spirv.StorageClassUniformConstant:
		switch m.Innermost(t).Base {
		case ir.BaseImage:
			rc.texture = true
		case ir.BaseSampler:
			rc.sampler = true
		case ir.BaseSampledImage:
			rc.texture, rc.sampler = true, true
		default:
			return resourceClass{}, false
		}
	default:
		return resourceClass{}, false
	}
	return rc, true
}

// resourceKey builds the table key of a resource variable.
func resourceKey(m *ir.Module, stage spirv.ExecutionModel, v *ir.Variable) ResourceKey {
	if v.Storage == spirv.StorageClassPushConstant {
		return ResourceKey{Stage: stage, DescriptorSet: PushConstantDescriptorSet}
	}
	return ResourceKey{
		Stage:         stage,
		DescriptorSet: m.Decoration(v.Self, spirv.DecorationDescriptorSet),
		Binding:       m.Decoration(v.Self, spirv.DecorationBinding),
	}
}

// slotAllocator hands out automatic indices, skipping indices already in
// use.
type slotAllocator struct {
	used [slotKinds]map[uint32]struct{}
}

func newSlotAllocator() *slotAllocator {
	a := &slotAllocator{}
	for i := range a.used {
		a.used[i] = make(map[uint32]struct{})
	}
	return a
}

func (a *slotAllocator) reserve(kind slotKind, first, count uint32) {
	for i := uint32(0); i < count; i++ {
		a.used[kind][first+i] = struct{}{}
	}
}

// take returns the lowest index starting a free run of count slots and
// marks the run used.
func (a *slotAllocator) take(kind slotKind, count uint32) uint32 {
	for first := uint32(0); ; first++ {
		free := true
		for i := uint32(0); i < count; i++ {
			if _, ok := a.used[kind][first+i]; ok {
				free = false
				break
			}
		}
		if free {
			a.reserve(kind, first, count)
			return first
		}
	}
}

// assignResources resolves the slots of every resource the entry point
// uses. Table entries win; the rest are assigned from zero in ID order,
// skipping slots the table or the auxiliary buffers hold.
func assignResources(pc *passContext) map[ir.ID]ResourceTarget {
	m := pc.module
	alloc := newSlotAllocator()
	for key, target := range pc.bindings {
		if key.Stage != pc.ep.Model {
			continue
		}
		if target.Buffer != nil {
			alloc.reserve(slotBuffer, *target.Buffer, 1)
		}
		if target.Texture != nil {
			alloc.reserve(slotTexture, *target.Texture, 1)
		}
		if target.Sampler != nil {
			alloc.reserve(slotSampler, *target.Sampler, 1)
		}
	}
	for _, aux := range pc.auxBuffers() {
		alloc.reserve(slotBuffer, pc.options.auxIndex(aux), 1)
	}
	if pc.options.UseArgumentBuffers {
		for _, set := range pc.descriptorSets() {
			alloc.reserve(slotBuffer, set, 1)
		}
	}

	out := make(map[ir.ID]ResourceTarget)
	pc.automatic = make(map[ir.ID]ResourceTarget)
	// Members of an argument buffer take consecutive ids per set in
	// binding order.
	nextID := make(map[uint32]uint32)
	for _, id := range pc.argumentBufferOrder() {
		v := m.Variable(id)
		if _, ok := pc.bindings[resourceKey(m, pc.ep.Model, v)]; ok {
			continue
		}
		rc, _ := classifyResource(m, v)
		set := m.Decoration(id, spirv.DecorationDescriptorSet)
		var target ResourceTarget
		if rc.buffer {
			target.Buffer = Slot(nextID[set])
			nextID[set] += rc.count
		}
		if rc.texture {
			target.Texture = Slot(nextID[set])
			nextID[set] += rc.count
		}
		if rc.sampler {
			target.Sampler = Slot(nextID[set])
			nextID[set] += rc.count
		}
		out[id] = target
		pc.automatic[id] = target
	}
	for _, id := range pc.resources {
		v := m.Variable(id)
		rc, _ := classifyResource(m, v)
		if target, ok := pc.bindings[resourceKey(m, pc.ep.Model, v)]; ok {
			out[id] = target
			continue
		}
		if _, done := out[id]; done {
			continue
		}
		var target ResourceTarget
		if rc.buffer {
			target.Buffer = Slot(alloc.take(slotBuffer, rc.count))
		}
		if rc.texture {
			target.Texture = Slot(alloc.take(slotTexture, rc.count))
		}
		if rc.sampler {
			target.Sampler = Slot(alloc.take(slotSampler, rc.count))
		}
		out[id] = target
		pc.automatic[id] = target
	}
	return out
}

// inArgumentBuffer reports whether v is reached through the argument
// buffer of its descriptor set.
func (pc *passContext) inArgumentBuffer(v *ir.Variable) bool {
	return pc.options.UseArgumentBuffers && v.Storage != spirv.StorageClassPushConstant
}

// argumentBufferOrder returns the resources held in argument buffers,
// ordered by set, binding and ID.
func (pc *passContext) argumentBufferOrder() []ir.ID {
	m := pc.module
	var ids []ir.ID
	for _, id := range pc.resources {
		if pc.inArgumentBuffer(m.Variable(id)) {
			ids = append(ids, id)
		}
	}
	slices.SortStableFunc(ids, func(a, b ir.ID) int {
		sa, sb := m.Decoration(a, spirv.DecorationDescriptorSet), m.Decoration(b, spirv.DecorationDescriptorSet)
		if sa != sb {
			return cmp.Compare(sa, sb)
		}
		return cmp.Compare(m.Decoration(a, spirv.DecorationBinding), m.Decoration(b, spirv.DecorationBinding))
	})
	return ids
}
