// Package spirv holds the SPIR-V vocabulary shared by the IR store, the
// assembly reader and the MSL backend.
//
// SPIR-V is the standard intermediate language for GPU shaders,
// used by Vulkan, OpenCL, and other APIs.
package spirv

// Version represents a SPIR-V version.
type Version struct {
	Major uint8
	Minor uint8
}

// Common SPIR-V versions
var (
	Version1_0 = Version{1, 0}
	Version1_3 = Version{1, 3}
	Version1_4 = Version{1, 4}
	Version1_5 = Version{1, 5}
	Version1_6 = Version{1, 6}
)

// SPIR-V magic number and constants
const (
	MagicNumber = 0x07230203
	GeneratorID = 0x00000000 // Unregistered generator
)

// Op represents a SPIR-V opcode.
type Op uint16

// Opcodes understood by the IR store and the MSL backend.
const (
	OpNop                       Op = 0
	OpUndef                     Op = 1
	OpSource                    Op = 3
	OpName                      Op = 5
	OpMemberName                Op = 6
	OpString                    Op = 7
	OpExtension                 Op = 10
	OpExtInstImport             Op = 11
	OpExtInst                   Op = 12
	OpMemoryModel               Op = 14
	OpEntryPoint                Op = 15
	OpExecutionMode             Op = 16
	OpCapability                Op = 17
	OpTypeVoid                  Op = 19
	OpTypeBool                  Op = 20
	OpTypeInt                   Op = 21
	OpTypeFloat                 Op = 22
	OpTypeVector                Op = 23
	OpTypeMatrix                Op = 24
	OpTypeImage                 Op = 25
	OpTypeSampler               Op = 26
	OpTypeSampledImage          Op = 27
	OpTypeArray                 Op = 28
	OpTypeRuntimeArray          Op = 29
	OpTypeStruct                Op = 30
	OpTypePointer               Op = 32
	OpTypeFunction              Op = 33
	OpConstantTrue              Op = 41
	OpConstantFalse             Op = 42
	OpConstant                  Op = 43
	OpConstantComposite         Op = 44
	OpConstantNull              Op = 46
	OpSpecConstantTrue          Op = 48
	OpSpecConstantFalse         Op = 49
	OpSpecConstant              Op = 50
	OpFunction                  Op = 54
	OpFunctionParameter         Op = 55
	OpFunctionEnd               Op = 56
	OpFunctionCall              Op = 57
	OpVariable                  Op = 59
	OpImageTexelPointer         Op = 60
	OpLoad                      Op = 61
	OpStore                     Op = 62
	OpCopyMemory                Op = 63
	OpAccessChain               Op = 65
	OpInBoundsAccessChain       Op = 66
	OpPtrAccessChain            Op = 67
	OpArrayLength               Op = 68
	OpDecorate                  Op = 71
	OpMemberDecorate            Op = 72
	OpVectorExtractDynamic      Op = 77
	OpVectorInsertDynamic       Op = 78
	OpVectorShuffle             Op = 79
	OpCompositeConstruct        Op = 80
	OpCompositeExtract          Op = 81
	OpCompositeInsert           Op = 82
	OpCopyObject                Op = 83
	OpTranspose                 Op = 84
	OpSampledImage              Op = 86
	OpImageSampleImplicitLod    Op = 87
	OpImageSampleExplicitLod    Op = 88
	OpImageFetch                Op = 95
	OpImageGather               Op = 96
	OpImageRead                 Op = 98
	OpImageWrite                Op = 99
	OpImage                     Op = 100
	OpImageQuerySizeLod         Op = 103
	OpImageQuerySize            Op = 104
	OpImageQueryLevels          Op = 106
	OpImageQuerySamples         Op = 107
	OpConvertFToU               Op = 109
	OpConvertFToS               Op = 110
	OpConvertSToF               Op = 111
	OpConvertUToF               Op = 112
	OpUConvert                  Op = 113
	OpSConvert                  Op = 114
	OpFConvert                  Op = 115
	OpBitcast                   Op = 124
	OpSNegate                   Op = 126
	OpFNegate                   Op = 127
	OpIAdd                      Op = 128
	OpFAdd                      Op = 129
	OpISub                      Op = 130
	OpFSub                      Op = 131
	OpIMul                      Op = 132
	OpFMul                      Op = 133
	OpUDiv                      Op = 134
	OpSDiv                      Op = 135
	OpFDiv                      Op = 136
	OpUMod                      Op = 137
	OpSRem                      Op = 138
	OpFRem                      Op = 140
	OpVectorTimesScalar         Op = 142
	OpMatrixTimesScalar         Op = 143
	OpVectorTimesMatrix         Op = 144
	OpMatrixTimesVector         Op = 145
	OpMatrixTimesMatrix         Op = 146
	OpDot                       Op = 148
	OpLogicalOr                 Op = 166
	OpLogicalAnd                Op = 167
	OpLogicalNot                Op = 168
	OpSelect                    Op = 169
	OpIEqual                    Op = 170
	OpINotEqual                 Op = 171
	OpUGreaterThan              Op = 172
	OpSGreaterThan              Op = 173
	OpUGreaterThanEqual         Op = 174
	OpSGreaterThanEqual         Op = 175
	OpULessThan                 Op = 176
	OpSLessThan                 Op = 177
	OpULessThanEqual            Op = 178
	OpSLessThanEqual            Op = 179
	OpFOrdEqual                 Op = 180
	OpFOrdNotEqual              Op = 182
	OpFOrdLessThan              Op = 184
	OpFOrdGreaterThan           Op = 186
	OpFOrdLessThanEqual         Op = 188
	OpFOrdGreaterThanEqual      Op = 190
	OpShiftRightLogical         Op = 194
	OpShiftRightArithmetic      Op = 195
	OpShiftLeftLogical          Op = 196
	OpBitwiseOr                 Op = 197
	OpBitwiseXor                Op = 198
	OpBitwiseAnd                Op = 199
	OpNot                       Op = 200
	OpDPdx                      Op = 207
	OpDPdy                      Op = 208
	OpFwidth                    Op = 209
	OpEmitVertex                Op = 218
	OpEndPrimitive              Op = 219
	OpControlBarrier            Op = 224
	OpMemoryBarrier             Op = 225
	OpAtomicLoad                Op = 227
	OpAtomicStore               Op = 228
	OpAtomicExchange            Op = 229
	OpAtomicCompareExchange     Op = 230
	OpAtomicIIncrement          Op = 232
	OpAtomicIDecrement          Op = 233
	OpAtomicIAdd                Op = 234
	OpAtomicISub                Op = 235
	OpAtomicSMin                Op = 236
	OpAtomicUMin                Op = 237
	OpAtomicSMax                Op = 238
	OpAtomicUMax                Op = 239
	OpAtomicAnd                 Op = 240
	OpAtomicOr                  Op = 241
	OpAtomicXor                 Op = 242
	OpPhi                       Op = 245
	OpLoopMerge                 Op = 246
	OpSelectionMerge            Op = 247
	OpLabel                     Op = 248
	OpBranch                    Op = 249
	OpBranchConditional         Op = 250
	OpSwitch                    Op = 251
	OpKill                      Op = 252
	OpReturn                    Op = 253
	OpReturnValue               Op = 254
	OpUnreachable               Op = 255
	OpGroupNonUniformElect      Op = 333
	OpGroupNonUniformAll        Op = 334
	OpGroupNonUniformAny        Op = 335
	OpGroupNonUniformBroadcast  Op = 337
	OpGroupNonUniformBallot     Op = 339
	OpGroupNonUniformIAdd       Op = 349
	OpGroupNonUniformFAdd       Op = 350
	OpTerminateInvocation       Op = 4416
	OpDemoteToHelperInvocation  Op = 5380
	OpIsHelperInvocationEXT     Op = 5381
)

// Decoration represents a SPIR-V decoration.
type Decoration uint32

// Decorations tracked by the IR store.
const (
	DecorationRelaxedPrecision     Decoration = 0
	DecorationSpecID               Decoration = 1
	DecorationBlock                Decoration = 2
	DecorationBufferBlock          Decoration = 3
	DecorationRowMajor             Decoration = 4
	DecorationColMajor             Decoration = 5
	DecorationArrayStride          Decoration = 6
	DecorationMatrixStride         Decoration = 7
	DecorationBuiltIn              Decoration = 11
	DecorationNoPerspective        Decoration = 13
	DecorationFlat                 Decoration = 14
	DecorationPatch                Decoration = 15
	DecorationCentroid             Decoration = 16
	DecorationSample               Decoration = 17
	DecorationInvariant            Decoration = 18
	DecorationRestrict             Decoration = 19
	DecorationAliased              Decoration = 20
	DecorationVolatile             Decoration = 21
	DecorationCoherent             Decoration = 23
	DecorationNonWritable          Decoration = 24
	DecorationNonReadable          Decoration = 25
	DecorationLocation             Decoration = 30
	DecorationComponent            Decoration = 31
	DecorationIndex                Decoration = 32
	DecorationBinding              Decoration = 33
	DecorationDescriptorSet        Decoration = 34
	DecorationOffset               Decoration = 35
	DecorationInputAttachmentIndex Decoration = 43
	DecorationPerVertexKHR         Decoration = 5285
)

// BuiltIn identifies a predefined per-invocation value.
type BuiltIn uint32

// Builtins the MSL backend knows how to declare.
const (
	BuiltInPosition                  BuiltIn = 0
	BuiltInPointSize                 BuiltIn = 1
	BuiltInClipDistance              BuiltIn = 3
	BuiltInCullDistance              BuiltIn = 4
	BuiltInVertexID                  BuiltIn = 5
	BuiltInInstanceID                BuiltIn = 6
	BuiltInPrimitiveID               BuiltIn = 7
	BuiltInInvocationID              BuiltIn = 8
	BuiltInLayer                     BuiltIn = 9
	BuiltInViewportIndex             BuiltIn = 10
	BuiltInTessLevelOuter            BuiltIn = 11
	BuiltInTessLevelInner            BuiltIn = 12
	BuiltInTessCoord                 BuiltIn = 13
	BuiltInPatchVertices             BuiltIn = 14
	BuiltInFragCoord                 BuiltIn = 15
	BuiltInPointCoord                BuiltIn = 16
	BuiltInFrontFacing               BuiltIn = 17
	BuiltInSampleID                  BuiltIn = 18
	BuiltInSamplePosition            BuiltIn = 19
	BuiltInSampleMask                BuiltIn = 20
	BuiltInFragDepth                 BuiltIn = 22
	BuiltInHelperInvocation          BuiltIn = 23
	BuiltInNumWorkgroups             BuiltIn = 24
	BuiltInWorkgroupSize             BuiltIn = 25
	BuiltInWorkgroupID               BuiltIn = 26
	BuiltInLocalInvocationID         BuiltIn = 27
	BuiltInGlobalInvocationID        BuiltIn = 28
	BuiltInLocalInvocationIndex      BuiltIn = 29
	BuiltInSubgroupSize              BuiltIn = 36
	BuiltInNumSubgroups              BuiltIn = 38
	BuiltInSubgroupID                BuiltIn = 40
	BuiltInSubgroupLocalInvocationID BuiltIn = 41
	BuiltInVertexIndex               BuiltIn = 42
	BuiltInInstanceIndex             BuiltIn = 43
	BuiltInSubgroupEqMask            BuiltIn = 4416
	BuiltInBaseVertex                BuiltIn = 4424
	BuiltInBaseInstance              BuiltIn = 4425
	BuiltInDrawIndex                 BuiltIn = 4426
	BuiltInDeviceIndex               BuiltIn = 4438
	BuiltInViewIndex                 BuiltIn = 4440
	BuiltInFragStencilRefEXT         BuiltIn = 5014
	BuiltInBaryCoordKHR              BuiltIn = 5286
)

// StorageClass is the memory/scope category of a variable or pointer.
type StorageClass uint32

// Storage classes.
const (
	StorageClassUniformConstant       StorageClass = 0
	StorageClassInput                 StorageClass = 1
	StorageClassUniform               StorageClass = 2
	StorageClassOutput                StorageClass = 3
	StorageClassWorkgroup             StorageClass = 4
	StorageClassCrossWorkgroup        StorageClass = 5
	StorageClassPrivate               StorageClass = 6
	StorageClassFunction              StorageClass = 7
	StorageClassGeneric               StorageClass = 8
	StorageClassPushConstant          StorageClass = 9
	StorageClassAtomicCounter         StorageClass = 10
	StorageClassImage                 StorageClass = 11
	StorageClassStorageBuffer         StorageClass = 12
	StorageClassPhysicalStorageBuffer StorageClass = 5349
)

// ExecutionModel is the pipeline stage of an entry point.
type ExecutionModel uint32

// Execution models.
const (
	ExecutionModelVertex                 ExecutionModel = 0
	ExecutionModelTessellationControl    ExecutionModel = 1
	ExecutionModelTessellationEvaluation ExecutionModel = 2
	ExecutionModelGeometry               ExecutionModel = 3
	ExecutionModelFragment               ExecutionModel = 4
	ExecutionModelGLCompute              ExecutionModel = 5
	ExecutionModelKernel                 ExecutionModel = 6
)

// ExecutionMode configures an entry point.
type ExecutionMode uint32

// Execution modes.
const (
	ExecutionModeInvocations           ExecutionMode = 0
	ExecutionModeSpacingEqual          ExecutionMode = 1
	ExecutionModeSpacingFractionalEven ExecutionMode = 2
	ExecutionModeSpacingFractionalOdd  ExecutionMode = 3
	ExecutionModeVertexOrderCw         ExecutionMode = 4
	ExecutionModeVertexOrderCcw        ExecutionMode = 5
	ExecutionModePixelCenterInteger    ExecutionMode = 6
	ExecutionModeOriginUpperLeft       ExecutionMode = 7
	ExecutionModeOriginLowerLeft       ExecutionMode = 8
	ExecutionModeEarlyFragmentTests    ExecutionMode = 9
	ExecutionModePointMode             ExecutionMode = 10
	ExecutionModeDepthReplacing        ExecutionMode = 12
	ExecutionModeDepthGreater          ExecutionMode = 14
	ExecutionModeDepthLess             ExecutionMode = 15
	ExecutionModeDepthUnchanged        ExecutionMode = 16
	ExecutionModeLocalSize             ExecutionMode = 17
	ExecutionModeTriangles             ExecutionMode = 22
	ExecutionModeQuads                 ExecutionMode = 24
	ExecutionModeIsolines              ExecutionMode = 25
	ExecutionModeOutputVertices        ExecutionMode = 26
	ExecutionModePostDepthCoverage     ExecutionMode = 4446
)

// Dim is the dimensionality of an image type.
type Dim uint32

// Image dimensionalities.
const (
	Dim1D          Dim = 0
	Dim2D          Dim = 1
	Dim3D          Dim = 2
	DimCube        Dim = 3
	DimRect        Dim = 4
	DimBuffer      Dim = 5
	DimSubpassData Dim = 6
)

// FunctionControl is the function control mask of OpFunction.
type FunctionControl uint32

// Function control bits.
const (
	FunctionControlNone       FunctionControl = 0
	FunctionControlInline     FunctionControl = 1
	FunctionControlDontInline FunctionControl = 2
	FunctionControlPure       FunctionControl = 4
	FunctionControlConst      FunctionControl = 8
)

// GLSL.std.450 extended instructions rendered by the MSL backend.
const (
	GLSLstd450Round       = 1
	GLSLstd450Trunc       = 3
	GLSLstd450FAbs        = 4
	GLSLstd450SAbs        = 5
	GLSLstd450Floor       = 8
	GLSLstd450Ceil        = 9
	GLSLstd450Fract       = 10
	GLSLstd450Sin         = 13
	GLSLstd450Cos         = 14
	GLSLstd450Tan         = 15
	GLSLstd450Atan2       = 25
	GLSLstd450Pow         = 26
	GLSLstd450Exp         = 27
	GLSLstd450Log         = 28
	GLSLstd450Exp2        = 29
	GLSLstd450Log2        = 30
	GLSLstd450Sqrt        = 31
	GLSLstd450InverseSqrt = 32
	GLSLstd450FMin        = 37
	GLSLstd450UMin        = 38
	GLSLstd450SMin        = 39
	GLSLstd450FMax        = 40
	GLSLstd450UMax        = 41
	GLSLstd450SMax        = 42
	GLSLstd450FClamp      = 43
	GLSLstd450FMix        = 46
	GLSLstd450Step        = 48
	GLSLstd450SmoothStep  = 49
	GLSLstd450Length      = 66
	GLSLstd450Distance    = 67
	GLSLstd450Cross       = 68
	GLSLstd450Normalize   = 69
	GLSLstd450Reflect     = 71
)
