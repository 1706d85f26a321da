package msl

import (
	"maps"

	"github.com/tliron/commonlog"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

var log = commonlog.GetLogger("spvmsl.msl")

// tierWritableVertex is the first version where vertex functions may write
// device memory while rasterizing.
var tierWritableVertex = tier{macOS: Version1_2, iOS: Version2_1}

// Compiler translates one entry point of a module. It owns a private copy
// of the module; builtins and interface blocks it declares never reach the
// caller's module.
type Compiler struct {
	module   *ir.Module
	options  Options
	pipeline PipelineOptions
	renderer Renderer
	ep       *ir.EntryPoint
	req      *requirements

	// passLimit bounds the pass loop.
	passLimit int

	// Results of the last pass, valid once done is set.
	done   bool
	passes int
	last   *passContext
	source string
}

// NewCompiler prepares the translation of the entry point pipeline selects.
func NewCompiler(module *ir.Module, options Options, pipeline PipelineOptions) (*Compiler, error) {
	if module == nil {
		return nil, invalid("nil module")
	}
	if err := options.validate(); err != nil {
		return nil, err
	}
	c := &Compiler{
		module:   module.Clone(),
		options:  options,
		pipeline: pipeline,
		renderer: pipeline.Renderer,
		req:      newRequirements(),

		passLimit: maxPasses(),
	}
	if c.renderer == nil {
		c.renderer = DefaultRenderer{}
	}
	if len(c.module.EntryPoints) == 0 {
		return nil, NewError(ErrEntryPointNotFound, "module has no entry points")
	}
	if sel := pipeline.EntryPoint; sel != nil {
		c.ep = c.module.EntryPoint(sel.Name, sel.Stage)
		if c.ep == nil {
			return nil, NewError(ErrEntryPointNotFound, "no %s entry point named %q", sel.Stage, sel.Name)
		}
	} else {
		c.ep = &c.module.EntryPoints[0]
	}
	if c.module.Function(c.ep.Function) == nil {
		return nil, invalid("entry point %s names %d, which is not a function", c.ep.Name, c.ep.Function)
	}
	switch c.ep.Model {
	case spirv.ExecutionModelVertex, spirv.ExecutionModelFragment, spirv.ExecutionModelGLCompute,
		spirv.ExecutionModelTessellationControl, spirv.ExecutionModelTessellationEvaluation:
	case spirv.ExecutionModelGeometry:
		return nil, unsupported("geometry shaders")
	default:
		return nil, unsupported("execution model %s", c.ep.Model)
	}
	return c, nil
}

// maxPasses bounds the pass loop. Every pass but the last activates at
// least one builtin or threads at least one parameter, and there are only
// so many of those.
func maxPasses() int {
	return len(builtinRecipes) + 3
}

// Compile runs translation passes until none asks for another one and
// returns the MSL source. Calling it again returns the same source.
func (c *Compiler) Compile() (string, error) {
	if c.done {
		return c.source, nil
	}
	for number := 1; ; number++ {
		if number > c.passLimit {
			return "", internal("translation of %s did not settle after %d passes", c.ep.Name, c.passLimit)
		}
		pc := newPassContext(c, number)
		source, outcome, err := c.runPass(pc)
		if err != nil {
			return "", err
		}
		c.passes = number
		if outcome.again {
			log.Debugf("pass %d of %s: %s", number, c.ep.Name, outcome)
			continue
		}
		log.Debugf("%s translated in %d passes", c.ep.Name, number)
		c.done = true
		c.last = pc
		c.source = source
		return source, nil
	}
}

// runPass runs every step of one pass and returns the emitted source with
// the outcome of emission, the only step that discovers requirements.
func (c *Compiler) runPass(pc *passContext) (string, stepOutcome, error) {
	if err := pc.scanUses(); err != nil {
		return "", stepDone(), err
	}
	if err := pc.activateBuiltins(); err != nil {
		return "", stepDone(), err
	}
	if err := c.checkMonotonic(pc); err != nil {
		return "", stepDone(), err
	}

	pc.detectRasterFallback()

	if err := pc.buildInterfaces(); err != nil {
		return "", stepDone(), err
	}
	if err := pc.normalizeLayouts(); err != nil {
		return "", stepDone(), err
	}
	if err := pc.threadGlobals(); err != nil {
		return "", stepDone(), err
	}
	pc.collectResources()
	pc.targets = assignResources(pc)

	w := newWriter(pc)
	outcome, err := w.writeModule()
	if err != nil {
		return "", stepDone(), err
	}
	return w.String(), outcome, nil
}

// checkMonotonic fails when a builtin active in the previous pass is no
// longer active, which would let the pass loop oscillate.
func (c *Compiler) checkMonotonic(pc *passContext) error {
	for dir := DirectionInput; dir <= DirectionOutput; dir++ {
		if !pc.active[dir].Contains(c.req.active[dir]) {
			return internal("pass %d deactivated %s builtins of %s", pc.number, dir, c.ep.Name)
		}
		c.req.active[dir] = pc.active[dir].Clone()
	}
	return nil
}

// detectRasterFallback turns rasterization off for vertex functions that
// write device memory on targets that cannot do both.
func (pc *passContext) detectRasterFallback() {
	if pc.stage() != spirv.ExecutionModelVertex || !pc.writesStorage {
		return
	}
	if pc.options.supports(tierWritableVertex) {
		return
	}
	pc.rasterizationDisabled = true
	if pc.number == 1 {
		log.Noticef("%s writes device memory; rasterization disabled for MSL %s on %s",
			pc.ep.Name, pc.options.LangVersion, pc.options.Platform)
	}
}

// Info returns what the translation decided. It is empty before Compile
// succeeded.
func (c *Compiler) Info() TranslationInfo {
	if !c.done {
		return TranslationInfo{}
	}
	pc := c.last
	return TranslationInfo{
		EntryPointName:        entryName(c.ep.Name),
		InputLocations:        pc.usedLocations(DirectionInput),
		OutputLocations:       pc.usedLocations(DirectionOutput),
		AutomaticResources:    maps.Clone(pc.automatic),
		RasterizationDisabled: pc.rasterizationDisabled,
		AuxBuffers:            pc.auxBuffers(),
		Passes:                c.passes,
	}
}

// IsLocationUsed reports whether the translated entry point reads (for
// inputs) or writes (for outputs) location.
func (c *Compiler) IsLocationUsed(dir Direction, location uint32) bool {
	if !c.done {
		return false
	}
	for _, l := range c.last.usedLocations(dir) {
		if l == location {
			return true
		}
	}
	return false
}

// AutomaticResourceIndex returns the index a resource missing from the
// binding table received for the given slot kind.
func (c *Compiler) AutomaticResourceIndex(variable ir.ID, kind ResourceKind) (uint32, bool) {
	if !c.done {
		return 0, false
	}
	target, ok := c.last.automatic[variable]
	if !ok {
		return 0, false
	}
	var slot *uint32
	switch kind {
	case ResourceBuffer:
		slot = target.Buffer
	case ResourceTexture:
		slot = target.Texture
	case ResourceSampler:
		slot = target.Sampler
	}
	if slot == nil {
		return 0, false
	}
	return *slot, true
}

// ResourceKind selects one of the slots of a ResourceTarget.
type ResourceKind uint8

const (
	ResourceBuffer ResourceKind = iota
	ResourceTexture
	ResourceSampler
)
