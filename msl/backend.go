package msl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// Version represents an MSL language version.
type Version struct {
	Major uint8
	Minor uint8
}

// Common MSL versions.
var (
	Version1_0 = Version{Major: 1, Minor: 0}
	Version1_1 = Version{Major: 1, Minor: 1}
	Version1_2 = Version{Major: 1, Minor: 2}
	Version2_0 = Version{Major: 2, Minor: 0}
	Version2_1 = Version{Major: 2, Minor: 1}
	Version2_2 = Version{Major: 2, Minor: 2}
	Version2_3 = Version{Major: 2, Minor: 3}
	Version3_0 = Version{Major: 3, Minor: 0}
)

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast reports whether v is o or newer.
func (v Version) AtLeast(o Version) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}
	return v.Minor >= o.Minor
}

// ParseVersion reads a version written as "major.minor".
func ParseVersion(s string) (Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		minor = "0"
	}
	ma, err := strconv.ParseUint(major, 10, 8)
	if err != nil {
		return Version{}, fmt.Errorf("invalid MSL version %q", s)
	}
	mi, err := strconv.ParseUint(minor, 10, 8)
	if err != nil {
		return Version{}, fmt.Errorf("invalid MSL version %q", s)
	}
	return Version{Major: uint8(ma), Minor: uint8(mi)}, nil
}

// Platform selects the Apple platform family whose MSL feature tiers apply.
type Platform uint8

const (
	PlatformMacOS Platform = iota
	PlatformIOS
)

// String returns the platform name.
func (p Platform) String() string {
	if p == PlatformIOS {
		return "iOS"
	}
	return "macOS"
}

// ParsePlatform looks up a platform by name, ignoring case.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(s) {
	case "macos", "osx":
		return PlatformMacOS, nil
	case "ios":
		return PlatformIOS, nil
	}
	return 0, fmt.Errorf("unknown platform %q", s)
}

// Options configures MSL code generation.
type Options struct {
	// Platform is the target platform family.
	Platform Platform

	// LangVersion is the target MSL version.
	// Defaults to Version2_1 if zero.
	LangVersion Version

	// UseArgumentBuffers groups resources of one descriptor set into an
	// argument buffer. Requires MSL 2.0.
	UseArgumentBuffers bool

	// PadFragmentOutputComponents widens fragment color outputs to four
	// components.
	PadFragmentOutputComponents bool

	// MultiviewEnabled renders one draw into several views.
	MultiviewEnabled bool

	// EmulateSubgroups runs subgroup operations as if every subgroup held a
	// single invocation.
	EmulateSubgroups bool

	// RawBufferTessellationInput makes tessellation evaluation read its
	// inputs from buffers instead of the stage_in patch.
	RawBufferTessellationInput bool

	// DispatchBase supports a non-zero base workgroup in compute dispatches.
	DispatchBase bool

	// MultiPatchWorkgroup runs several tessellation control patches in one
	// threadgroup.
	MultiPatchWorkgroup bool

	// VertexForTessellation compiles a vertex stage that feeds tessellation
	// through a buffer.
	VertexForTessellation bool

	// CaptureOutputToBuffer writes vertex outputs to a buffer.
	CaptureOutputToBuffer bool

	// DrawParameters enables base vertex and base instance.
	DrawParameters bool

	// ForceSampleRateShading runs fragment shaders per sample.
	ForceSampleRateShading bool

	// EnablePointSizeBuiltin always writes a point size from vertex shaders.
	EnablePointSizeBuiltin bool

	// FramebufferFetchSubpass reads subpass inputs with framebuffer fetch.
	// Requires MSL 2.3 on macOS.
	FramebufferFetchSubpass bool

	// ZeroInitializeWorkgroupMemory zeroes threadgroup memory at the start
	// of compute shaders.
	ZeroInitializeWorkgroupMemory bool

	// TessPatchControlPoints is the input patch size of tessellation
	// stages. Zero takes the output vertex count of the entry point.
	TessPatchControlPoints uint32

	// Buffer indices of the auxiliary buffers.
	ShaderInputBufferIndex    uint32
	ViewMaskBufferIndex       uint32
	DispatchBaseBufferIndex   uint32
	TessFactorBufferIndex     uint32
	PatchOutputBufferIndex    uint32
	ShaderOutputBufferIndex   uint32
	IndirectParamsBufferIndex uint32
}

// DefaultOptions returns sensible default options for MSL generation.
func DefaultOptions() Options {
	return Options{
		Platform:                  PlatformMacOS,
		LangVersion:               Version2_1,
		ShaderInputBufferIndex:    22,
		ViewMaskBufferIndex:       24,
		DispatchBaseBufferIndex:   25,
		TessFactorBufferIndex:     26,
		PatchOutputBufferIndex:    27,
		ShaderOutputBufferIndex:   28,
		IndirectParamsBufferIndex: 29,
	}
}

// supports reports whether the target reaches the tier given for its
// platform.
func (o *Options) supports(t tier) bool {
	return o.LangVersion.AtLeast(t.forPlatform(o.Platform))
}

// require returns a capability error when the target is below t.
func (o *Options) require(feature string, t tier) error {
	if o.supports(t) {
		return nil
	}
	return newCapabilityError(feature, o.Platform, t.forPlatform(o.Platform))
}

// tier is a minimum MSL version per platform.
type tier struct {
	macOS Version
	iOS   Version
}

func (t tier) forPlatform(p Platform) Version {
	if p == PlatformIOS {
		return t.iOS
	}
	return t.macOS
}

// validate rejects option combinations no target can honor.
func (o *Options) validate() error {
	if o.UseArgumentBuffers {
		if err := o.require("argument buffers", tier{Version2_0, Version2_0}); err != nil {
			return err
		}
	}
	if o.FramebufferFetchSubpass && o.Platform == PlatformMacOS {
		if err := o.require("framebuffer fetch", tier{Version2_3, Version1_0}); err != nil {
			return err
		}
	}
	if o.CaptureOutputToBuffer && o.VertexForTessellation {
		return NewError(ErrCapabilityMismatch, "CaptureOutputToBuffer and VertexForTessellation are exclusive")
	}
	return nil
}

// EntryPointSelector identifies a specific entry point.
type EntryPointSelector struct {
	Stage spirv.ExecutionModel
	Name  string
}

// PipelineOptions configures options specific to a single pipeline/entry point.
type PipelineOptions struct {
	// EntryPoint specifies which entry point to compile.
	// If nil, the first entry point of the module is compiled.
	EntryPoint *EntryPointSelector

	// Bindings pins resources to Metal argument indices. Resources
	// missing from the table get automatic indices.
	Bindings BindingTable

	// Renderer renders individual instructions. Nil uses the built-in
	// renderer.
	Renderer Renderer
}

// AuxBuffer names a buffer the translator adds to the entry point.
type AuxBuffer uint8

const (
	AuxShaderInput AuxBuffer = iota
	AuxViewMask
	AuxDispatchBase
	AuxTessFactor
	AuxPatchOutput
	AuxShaderOutput
	AuxIndirectParams
)

var auxBufferNames = [...]string{
	AuxShaderInput:    "spvIn",
	AuxViewMask:       "spvViewMask",
	AuxDispatchBase:   "spvDispatchBase",
	AuxTessFactor:     "spvTessLevel",
	AuxPatchOutput:    "spvPatchOut",
	AuxShaderOutput:   "spvOut",
	AuxIndirectParams: "spvIndirectParams",
}

// String returns the MSL argument name of the buffer.
func (a AuxBuffer) String() string {
	if int(a) < len(auxBufferNames) {
		return auxBufferNames[a]
	}
	return "spvAux"
}

// auxIndex returns the buffer index options assign to a.
func (o *Options) auxIndex(a AuxBuffer) uint32 {
	switch a {
	case AuxShaderInput:
		return o.ShaderInputBufferIndex
	case AuxViewMask:
		return o.ViewMaskBufferIndex
	case AuxDispatchBase:
		return o.DispatchBaseBufferIndex
	case AuxTessFactor:
		return o.TessFactorBufferIndex
	case AuxPatchOutput:
		return o.PatchOutputBufferIndex
	case AuxShaderOutput:
		return o.ShaderOutputBufferIndex
	default:
		return o.IndirectParamsBufferIndex
	}
}

// TranslationInfo contains information about the compiled MSL output.
type TranslationInfo struct {
	// EntryPointName is the MSL name of the translated entry point.
	EntryPointName string

	// InputLocations and OutputLocations list the interface locations in
	// use, ascending.
	InputLocations  []uint32
	OutputLocations []uint32

	// AutomaticResources maps resource variables missing from the binding
	// table to the indices they were given.
	AutomaticResources map[ir.ID]ResourceTarget

	// RasterizationDisabled is set when a vertex stage had to drop its
	// outputs because the target cannot rasterize while writing buffers.
	RasterizationDisabled bool

	// AuxBuffers lists the auxiliary buffers the entry point takes.
	AuxBuffers []AuxBuffer

	// Passes is the number of translation passes that ran.
	Passes int
}

// Compile generates MSL source code for one entry point of module.
// The module is not modified.
func Compile(module *ir.Module, options Options, pipeline PipelineOptions) (string, TranslationInfo, error) {
	c, err := NewCompiler(module, options, pipeline)
	if err != nil {
		return "", TranslationInfo{}, err
	}
	source, err := c.Compile()
	if err != nil {
		return "", TranslationInfo{}, err
	}
	return source, c.Info(), nil
}
