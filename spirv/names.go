package spirv

import (
	"fmt"
	"strings"
)

var opNames = map[Op]string{
	OpNop: "OpNop", OpUndef: "OpUndef", OpSource: "OpSource", OpName: "OpName",
	OpMemberName: "OpMemberName", OpString: "OpString", OpExtension: "OpExtension",
	OpExtInstImport: "OpExtInstImport", OpExtInst: "OpExtInst", OpMemoryModel: "OpMemoryModel",
	OpEntryPoint: "OpEntryPoint", OpExecutionMode: "OpExecutionMode", OpCapability: "OpCapability",
	OpTypeVoid: "OpTypeVoid", OpTypeBool: "OpTypeBool", OpTypeInt: "OpTypeInt",
	OpTypeFloat: "OpTypeFloat", OpTypeVector: "OpTypeVector", OpTypeMatrix: "OpTypeMatrix",
	OpTypeImage: "OpTypeImage", OpTypeSampler: "OpTypeSampler", OpTypeSampledImage: "OpTypeSampledImage",
	OpTypeArray: "OpTypeArray", OpTypeRuntimeArray: "OpTypeRuntimeArray", OpTypeStruct: "OpTypeStruct",
	OpTypePointer: "OpTypePointer", OpTypeFunction: "OpTypeFunction",
	OpConstantTrue: "OpConstantTrue", OpConstantFalse: "OpConstantFalse", OpConstant: "OpConstant",
	OpConstantComposite: "OpConstantComposite", OpConstantNull: "OpConstantNull",
	OpSpecConstantTrue: "OpSpecConstantTrue", OpSpecConstantFalse: "OpSpecConstantFalse",
	OpSpecConstant: "OpSpecConstant", OpFunction: "OpFunction", OpFunctionParameter: "OpFunctionParameter",
	OpFunctionEnd: "OpFunctionEnd", OpFunctionCall: "OpFunctionCall", OpVariable: "OpVariable",
	OpImageTexelPointer: "OpImageTexelPointer", OpLoad: "OpLoad", OpStore: "OpStore",
	OpCopyMemory: "OpCopyMemory", OpAccessChain: "OpAccessChain", OpInBoundsAccessChain: "OpInBoundsAccessChain",
	OpPtrAccessChain: "OpPtrAccessChain", OpArrayLength: "OpArrayLength", OpDecorate: "OpDecorate",
	OpMemberDecorate: "OpMemberDecorate", OpVectorExtractDynamic: "OpVectorExtractDynamic",
	OpVectorInsertDynamic: "OpVectorInsertDynamic", OpVectorShuffle: "OpVectorShuffle",
	OpCompositeConstruct: "OpCompositeConstruct", OpCompositeExtract: "OpCompositeExtract",
	OpCompositeInsert: "OpCompositeInsert", OpCopyObject: "OpCopyObject", OpTranspose: "OpTranspose",
	OpSampledImage: "OpSampledImage", OpImageSampleImplicitLod: "OpImageSampleImplicitLod",
	OpImageSampleExplicitLod: "OpImageSampleExplicitLod", OpImageFetch: "OpImageFetch",
	OpImageGather: "OpImageGather", OpImageRead: "OpImageRead", OpImageWrite: "OpImageWrite",
	OpImage: "OpImage", OpImageQuerySizeLod: "OpImageQuerySizeLod", OpImageQuerySize: "OpImageQuerySize",
	OpImageQueryLevels: "OpImageQueryLevels", OpImageQuerySamples: "OpImageQuerySamples",
	OpConvertFToU: "OpConvertFToU", OpConvertFToS: "OpConvertFToS", OpConvertSToF: "OpConvertSToF",
	OpConvertUToF: "OpConvertUToF", OpUConvert: "OpUConvert", OpSConvert: "OpSConvert",
	OpFConvert: "OpFConvert", OpBitcast: "OpBitcast", OpSNegate: "OpSNegate", OpFNegate: "OpFNegate",
	OpIAdd: "OpIAdd", OpFAdd: "OpFAdd", OpISub: "OpISub", OpFSub: "OpFSub", OpIMul: "OpIMul",
	OpFMul: "OpFMul", OpUDiv: "OpUDiv", OpSDiv: "OpSDiv", OpFDiv: "OpFDiv", OpUMod: "OpUMod",
	OpSRem: "OpSRem", OpFRem: "OpFRem", OpVectorTimesScalar: "OpVectorTimesScalar",
	OpMatrixTimesScalar: "OpMatrixTimesScalar", OpVectorTimesMatrix: "OpVectorTimesMatrix",
	OpMatrixTimesVector: "OpMatrixTimesVector", OpMatrixTimesMatrix: "OpMatrixTimesMatrix",
	OpDot: "OpDot", OpLogicalOr: "OpLogicalOr", OpLogicalAnd: "OpLogicalAnd", OpLogicalNot: "OpLogicalNot",
	OpSelect: "OpSelect", OpIEqual: "OpIEqual", OpINotEqual: "OpINotEqual",
	OpUGreaterThan: "OpUGreaterThan", OpSGreaterThan: "OpSGreaterThan",
	OpUGreaterThanEqual: "OpUGreaterThanEqual", OpSGreaterThanEqual: "OpSGreaterThanEqual",
	OpULessThan: "OpULessThan", OpSLessThan: "OpSLessThan", OpULessThanEqual: "OpULessThanEqual",
	OpSLessThanEqual: "OpSLessThanEqual", OpFOrdEqual: "OpFOrdEqual", OpFOrdNotEqual: "OpFOrdNotEqual",
	OpFOrdLessThan: "OpFOrdLessThan", OpFOrdGreaterThan: "OpFOrdGreaterThan",
	OpFOrdLessThanEqual: "OpFOrdLessThanEqual", OpFOrdGreaterThanEqual: "OpFOrdGreaterThanEqual",
	OpShiftRightLogical: "OpShiftRightLogical", OpShiftRightArithmetic: "OpShiftRightArithmetic",
	OpShiftLeftLogical: "OpShiftLeftLogical", OpBitwiseOr: "OpBitwiseOr", OpBitwiseXor: "OpBitwiseXor",
	OpBitwiseAnd: "OpBitwiseAnd", OpNot: "OpNot", OpDPdx: "OpDPdx", OpDPdy: "OpDPdy", OpFwidth: "OpFwidth",
	OpEmitVertex: "OpEmitVertex", OpEndPrimitive: "OpEndPrimitive", OpControlBarrier: "OpControlBarrier",
	OpMemoryBarrier: "OpMemoryBarrier", OpAtomicLoad: "OpAtomicLoad", OpAtomicStore: "OpAtomicStore",
	OpAtomicExchange: "OpAtomicExchange", OpAtomicCompareExchange: "OpAtomicCompareExchange",
	OpAtomicIIncrement: "OpAtomicIIncrement", OpAtomicIDecrement: "OpAtomicIDecrement",
	OpAtomicIAdd: "OpAtomicIAdd", OpAtomicISub: "OpAtomicISub", OpAtomicSMin: "OpAtomicSMin",
	OpAtomicUMin: "OpAtomicUMin", OpAtomicSMax: "OpAtomicSMax", OpAtomicUMax: "OpAtomicUMax",
	OpAtomicAnd: "OpAtomicAnd", OpAtomicOr: "OpAtomicOr", OpAtomicXor: "OpAtomicXor", OpPhi: "OpPhi",
	OpLoopMerge: "OpLoopMerge", OpSelectionMerge: "OpSelectionMerge", OpLabel: "OpLabel",
	OpBranch: "OpBranch", OpBranchConditional: "OpBranchConditional", OpSwitch: "OpSwitch",
	OpKill: "OpKill", OpReturn: "OpReturn", OpReturnValue: "OpReturnValue", OpUnreachable: "OpUnreachable",
	OpGroupNonUniformElect: "OpGroupNonUniformElect", OpGroupNonUniformAll: "OpGroupNonUniformAll",
	OpGroupNonUniformAny: "OpGroupNonUniformAny", OpGroupNonUniformBroadcast: "OpGroupNonUniformBroadcast",
	OpGroupNonUniformBallot: "OpGroupNonUniformBallot", OpGroupNonUniformIAdd: "OpGroupNonUniformIAdd",
	OpGroupNonUniformFAdd: "OpGroupNonUniformFAdd", OpTerminateInvocation: "OpTerminateInvocation",
	OpDemoteToHelperInvocation: "OpDemoteToHelperInvocation", OpIsHelperInvocationEXT: "OpIsHelperInvocationEXT",
}

var builtInNames = map[BuiltIn]string{
	BuiltInPosition: "Position", BuiltInPointSize: "PointSize", BuiltInClipDistance: "ClipDistance",
	BuiltInCullDistance: "CullDistance", BuiltInVertexID: "VertexId", BuiltInInstanceID: "InstanceId",
	BuiltInPrimitiveID: "PrimitiveId", BuiltInInvocationID: "InvocationId", BuiltInLayer: "Layer",
	BuiltInViewportIndex: "ViewportIndex", BuiltInTessLevelOuter: "TessLevelOuter",
	BuiltInTessLevelInner: "TessLevelInner", BuiltInTessCoord: "TessCoord",
	BuiltInPatchVertices: "PatchVertices", BuiltInFragCoord: "FragCoord", BuiltInPointCoord: "PointCoord",
	BuiltInFrontFacing: "FrontFacing", BuiltInSampleID: "SampleId", BuiltInSamplePosition: "SamplePosition",
	BuiltInSampleMask: "SampleMask", BuiltInFragDepth: "FragDepth", BuiltInHelperInvocation: "HelperInvocation",
	BuiltInNumWorkgroups: "NumWorkgroups", BuiltInWorkgroupSize: "WorkgroupSize",
	BuiltInWorkgroupID: "WorkgroupId", BuiltInLocalInvocationID: "LocalInvocationId",
	BuiltInGlobalInvocationID: "GlobalInvocationId", BuiltInLocalInvocationIndex: "LocalInvocationIndex",
	BuiltInSubgroupSize: "SubgroupSize", BuiltInNumSubgroups: "NumSubgroups", BuiltInSubgroupID: "SubgroupId",
	BuiltInSubgroupLocalInvocationID: "SubgroupLocalInvocationId", BuiltInVertexIndex: "VertexIndex",
	BuiltInInstanceIndex: "InstanceIndex", BuiltInSubgroupEqMask: "SubgroupEqMask",
	BuiltInBaseVertex: "BaseVertex", BuiltInBaseInstance: "BaseInstance", BuiltInDrawIndex: "DrawIndex",
	BuiltInDeviceIndex: "DeviceIndex", BuiltInViewIndex: "ViewIndex",
	BuiltInFragStencilRefEXT: "FragStencilRefEXT", BuiltInBaryCoordKHR: "BaryCoordKHR",
}

var decorationNames = map[Decoration]string{
	DecorationRelaxedPrecision: "RelaxedPrecision", DecorationSpecID: "SpecId", DecorationBlock: "Block",
	DecorationBufferBlock: "BufferBlock", DecorationRowMajor: "RowMajor", DecorationColMajor: "ColMajor",
	DecorationArrayStride: "ArrayStride", DecorationMatrixStride: "MatrixStride", DecorationBuiltIn: "BuiltIn",
	DecorationNoPerspective: "NoPerspective", DecorationFlat: "Flat", DecorationPatch: "Patch",
	DecorationCentroid: "Centroid", DecorationSample: "Sample", DecorationInvariant: "Invariant",
	DecorationRestrict: "Restrict", DecorationAliased: "Aliased", DecorationVolatile: "Volatile",
	DecorationCoherent: "Coherent", DecorationNonWritable: "NonWritable", DecorationNonReadable: "NonReadable",
	DecorationLocation: "Location", DecorationComponent: "Component", DecorationIndex: "Index",
	DecorationBinding: "Binding", DecorationDescriptorSet: "DescriptorSet", DecorationOffset: "Offset",
	DecorationInputAttachmentIndex: "InputAttachmentIndex", DecorationPerVertexKHR: "PerVertexKHR",
}

var storageClassNames = map[StorageClass]string{
	StorageClassUniformConstant: "UniformConstant", StorageClassInput: "Input", StorageClassUniform: "Uniform",
	StorageClassOutput: "Output", StorageClassWorkgroup: "Workgroup", StorageClassCrossWorkgroup: "CrossWorkgroup",
	StorageClassPrivate: "Private", StorageClassFunction: "Function", StorageClassGeneric: "Generic",
	StorageClassPushConstant: "PushConstant", StorageClassAtomicCounter: "AtomicCounter",
	StorageClassImage: "Image", StorageClassStorageBuffer: "StorageBuffer",
	StorageClassPhysicalStorageBuffer: "PhysicalStorageBuffer",
}

var executionModelNames = map[ExecutionModel]string{
	ExecutionModelVertex: "Vertex", ExecutionModelTessellationControl: "TessellationControl",
	ExecutionModelTessellationEvaluation: "TessellationEvaluation", ExecutionModelGeometry: "Geometry",
	ExecutionModelFragment: "Fragment", ExecutionModelGLCompute: "GLCompute", ExecutionModelKernel: "Kernel",
}

var executionModeNames = map[ExecutionMode]string{
	ExecutionModeInvocations: "Invocations", ExecutionModeSpacingEqual: "SpacingEqual",
	ExecutionModeSpacingFractionalEven: "SpacingFractionalEven", ExecutionModeSpacingFractionalOdd: "SpacingFractionalOdd",
	ExecutionModeVertexOrderCw: "VertexOrderCw", ExecutionModeVertexOrderCcw: "VertexOrderCcw",
	ExecutionModePixelCenterInteger: "PixelCenterInteger", ExecutionModeOriginUpperLeft: "OriginUpperLeft",
	ExecutionModeOriginLowerLeft: "OriginLowerLeft", ExecutionModeEarlyFragmentTests: "EarlyFragmentTests",
	ExecutionModePointMode: "PointMode", ExecutionModeDepthReplacing: "DepthReplacing",
	ExecutionModeDepthGreater: "DepthGreater", ExecutionModeDepthLess: "DepthLess",
	ExecutionModeDepthUnchanged: "DepthUnchanged", ExecutionModeLocalSize: "LocalSize",
	ExecutionModeTriangles: "Triangles", ExecutionModeQuads: "Quads", ExecutionModeIsolines: "Isolines",
	ExecutionModeOutputVertices: "OutputVertices", ExecutionModePostDepthCoverage: "PostDepthCoverage",
}

var dimNames = map[Dim]string{
	Dim1D: "1D", Dim2D: "2D", Dim3D: "3D", DimCube: "Cube", DimRect: "Rect", DimBuffer: "Buffer",
	DimSubpassData: "SubpassData",
}

var functionControlNames = map[FunctionControl]string{
	FunctionControlNone: "None", FunctionControlInline: "Inline", FunctionControlDontInline: "DontInline",
	FunctionControlPure: "Pure", FunctionControlConst: "Const",
}

var (
	opByName              = invert(opNames)
	builtInByName         = invert(builtInNames)
	decorationByName      = invert(decorationNames)
	storageClassByName    = invert(storageClassNames)
	executionModelByName  = invert(executionModelNames)
	executionModeByName   = invert(executionModeNames)
	dimByName             = invert(dimNames)
	functionControlByName = invert(functionControlNames)
)

func invert[K comparable](names map[K]string) map[string]K {
	out := make(map[string]K, len(names))
	for k, v := range names {
		out[v] = k
	}
	return out
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", uint16(o))
}

func (b BuiltIn) String() string {
	if name, ok := builtInNames[b]; ok {
		return name
	}
	return fmt.Sprintf("BuiltIn(%d)", uint32(b))
}

func (d Decoration) String() string {
	if name, ok := decorationNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Decoration(%d)", uint32(d))
}

func (s StorageClass) String() string {
	if name, ok := storageClassNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StorageClass(%d)", uint32(s))
}

func (m ExecutionModel) String() string {
	if name, ok := executionModelNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ExecutionModel(%d)", uint32(m))
}

func (m ExecutionMode) String() string {
	if name, ok := executionModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ExecutionMode(%d)", uint32(m))
}

func (d Dim) String() string {
	if name, ok := dimNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Dim(%d)", uint32(d))
}

// ParseOp looks up an opcode by its assembly name ("OpLoad").
func ParseOp(name string) (Op, bool) {
	op, ok := opByName[name]
	return op, ok
}

// ParseBuiltIn looks up a builtin by its assembly name ("FragCoord").
func ParseBuiltIn(name string) (BuiltIn, bool) {
	b, ok := builtInByName[name]
	return b, ok
}

// ParseDecoration looks up a decoration by its assembly name.
func ParseDecoration(name string) (Decoration, bool) {
	d, ok := decorationByName[name]
	return d, ok
}

// ParseStorageClass looks up a storage class by its assembly name.
func ParseStorageClass(name string) (StorageClass, bool) {
	s, ok := storageClassByName[name]
	return s, ok
}

// ParseExecutionModel looks up an execution model by its assembly name.
func ParseExecutionModel(name string) (ExecutionModel, bool) {
	m, ok := executionModelByName[name]
	return m, ok
}

// ParseExecutionMode looks up an execution mode by its assembly name.
func ParseExecutionMode(name string) (ExecutionMode, bool) {
	m, ok := executionModeByName[name]
	return m, ok
}

// ParseDim looks up an image dimensionality by its assembly name.
func ParseDim(name string) (Dim, bool) {
	d, ok := dimByName[name]
	return d, ok
}

// ParseEnumWord resolves a bare enumerant word used as an instruction
// operand. Function control masks and the common memory-access words are
// accepted in addition to the typed enums; "|"-joined masks are ORed.
func ParseEnumWord(word string) (uint32, bool) {
	if strings.Contains(word, "|") {
		var mask uint32
		for _, part := range strings.Split(word, "|") {
			v, ok := ParseEnumWord(part)
			if !ok {
				return 0, false
			}
			mask |= v
		}
		return mask, true
	}
	if v, ok := functionControlByName[word]; ok {
		return uint32(v), true
	}
	if v, ok := storageClassByName[word]; ok {
		return uint32(v), true
	}
	if v, ok := builtInByName[word]; ok {
		return uint32(v), true
	}
	if v, ok := dimByName[word]; ok {
		return uint32(v), true
	}
	if v, ok := executionModeByName[word]; ok {
		return uint32(v), true
	}
	switch word {
	case "Aligned":
		return 2, true
	case "Volatile":
		return 1, true
	case "Nontemporal":
		return 4, true
	}
	return 0, false
}

var glslStd450ByName = map[string]uint32{
	"Round": GLSLstd450Round, "Trunc": GLSLstd450Trunc, "FAbs": GLSLstd450FAbs, "SAbs": GLSLstd450SAbs,
	"Floor": GLSLstd450Floor, "Ceil": GLSLstd450Ceil, "Fract": GLSLstd450Fract,
	"Sin": GLSLstd450Sin, "Cos": GLSLstd450Cos, "Tan": GLSLstd450Tan, "Atan2": GLSLstd450Atan2,
	"Pow": GLSLstd450Pow, "Exp": GLSLstd450Exp, "Log": GLSLstd450Log, "Exp2": GLSLstd450Exp2,
	"Log2": GLSLstd450Log2, "Sqrt": GLSLstd450Sqrt, "InverseSqrt": GLSLstd450InverseSqrt,
	"FMin": GLSLstd450FMin, "UMin": GLSLstd450UMin, "SMin": GLSLstd450SMin,
	"FMax": GLSLstd450FMax, "UMax": GLSLstd450UMax, "SMax": GLSLstd450SMax,
	"FClamp": GLSLstd450FClamp, "FMix": GLSLstd450FMix, "Step": GLSLstd450Step,
	"SmoothStep": GLSLstd450SmoothStep, "Length": GLSLstd450Length, "Distance": GLSLstd450Distance,
	"Cross": GLSLstd450Cross, "Normalize": GLSLstd450Normalize, "Reflect": GLSLstd450Reflect,
}

// ParseGLSLstd450 looks up a GLSL.std.450 extended instruction by name.
func ParseGLSLstd450(name string) (uint32, bool) {
	v, ok := glslStd450ByName[name]
	return v, ok
}
