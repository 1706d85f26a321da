package spirv

// IsIDOperand reports whether operand i of op (counted after the result type
// and result id) refers to another ID rather than holding a literal.
//
// Opcodes not listed take only ID operands.
func IsIDOperand(op Op, i int) bool {
	switch op {
	case OpCompositeExtract:
		return i == 0
	case OpCompositeInsert:
		return i <= 1
	case OpVectorShuffle:
		return i <= 1
	case OpExtInst:
		return i != 1
	case OpLoad:
		return i == 0
	case OpStore, OpCopyMemory:
		return i <= 1
	case OpArrayLength:
		return i == 0
	case OpImageSampleImplicitLod, OpImageSampleExplicitLod, OpImageFetch, OpImageRead:
		return i != 2
	case OpImageGather:
		return i != 3
	case OpImageWrite:
		return i != 3
	case OpGroupNonUniformIAdd, OpGroupNonUniformFAdd:
		return i != 1
	case OpVariable:
		return i >= 1
	case OpSelectionMerge:
		return i == 0
	case OpLoopMerge:
		return i <= 1
	}
	return true
}

// HasResult reports whether op produces a result id. Instructions stored
// in a block that do not produce a result keep Result zero.
func HasResult(op Op) bool {
	switch op {
	case OpNop, OpStore, OpCopyMemory, OpImageWrite, OpControlBarrier, OpMemoryBarrier,
		OpAtomicStore, OpEmitVertex, OpEndPrimitive, OpDemoteToHelperInvocation,
		OpSelectionMerge, OpLoopMerge, OpBranch, OpBranchConditional, OpSwitch,
		OpKill, OpReturn, OpReturnValue, OpUnreachable, OpTerminateInvocation,
		OpDecorate, OpMemberDecorate, OpName, OpMemberName, OpEntryPoint,
		OpExecutionMode, OpCapability, OpMemoryModel, OpExtension, OpSource, OpFunctionEnd:
		return false
	}
	return true
}

// HasResultType reports whether op carries a result type operand.
func HasResultType(op Op) bool {
	if !HasResult(op) {
		return false
	}
	switch op {
	case OpExtInstImport, OpString, OpLabel,
		OpTypeVoid, OpTypeBool, OpTypeInt, OpTypeFloat, OpTypeVector, OpTypeMatrix,
		OpTypeImage, OpTypeSampler, OpTypeSampledImage, OpTypeArray, OpTypeRuntimeArray,
		OpTypeStruct, OpTypePointer, OpTypeFunction:
		return false
	}
	return true
}

// IsTerminator reports whether op ends a basic block.
func IsTerminator(op Op) bool {
	switch op {
	case OpBranch, OpBranchConditional, OpSwitch, OpKill, OpReturn, OpReturnValue,
		OpUnreachable, OpTerminateInvocation:
		return true
	}
	return false
}

// IsAtomic reports whether op is one of the atomic memory instructions.
func IsAtomic(op Op) bool {
	return op >= OpAtomicLoad && op <= OpAtomicXor && op != 231
}

// IsGroupNonUniform reports whether op is a subgroup operation.
func IsGroupNonUniform(op Op) bool {
	return op >= OpGroupNonUniformElect && op <= 366
}
