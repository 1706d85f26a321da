package ir

import "github.com/gogpu/spvmsl/spirv"

// ID addresses one entity in a Module. Zero is never a valid ID.
type ID uint32

// Entity is one of the ID-addressable things a Module stores.
type Entity interface {
	entity()
}

// BaseType is the kind of a Type.
type BaseType uint8

const (
	BaseUnknown BaseType = iota
	BaseVoid
	BaseBool
	BaseInt  // Signed integer
	BaseUInt // Unsigned integer
	BaseFloat
	BaseStruct
	BaseImage
	BaseSampledImage
	BaseSampler
	BaseFunction
)

// IsScalarBase reports whether b is a numeric or boolean scalar kind.
func (b BaseType) IsScalarBase() bool {
	return b == BaseBool || b == BaseInt || b == BaseUInt || b == BaseFloat
}

// Type describes a type entity.
//
// Arrays and pointers copy the shape of the type they wrap and link to it
// through Parent, so a vector array still reports Base, Width and VecSize of
// its element. The last entry of Array is the outermost dimension.
type Type struct {
	Self ID
	Base BaseType

	// Width is the scalar width in bits.
	Width   uint32
	VecSize uint32
	Columns uint32

	// Array holds one size per dimension. A size is a literal when the
	// matching ArrayLiteral entry is true, otherwise the ID of a constant.
	// A literal size of zero is a runtime-sized array.
	Array        []uint32
	ArrayLiteral []bool

	Storage      spirv.StorageClass
	Pointer      bool
	PointerDepth uint32

	// Parent is the pointee for pointers and the element type for arrays.
	Parent ID

	// Members lists member type IDs for structs, or parameter types for
	// function types.
	Members []ID

	// Result is the return type of a function type.
	Result ID

	Image ImageInfo
}

func (*Type) entity() {}

// ImageInfo describes an OpTypeImage.
type ImageInfo struct {
	SampledType ID
	Dim         spirv.Dim
	Depth       bool
	Arrayed     bool
	MS          bool
	Sampled     uint32 // 1 = sampled, 2 = storage
	Format      uint32
}

// IsScalar reports whether t is a scalar value type.
func (t *Type) IsScalar() bool {
	return t.Base.IsScalarBase() && t.VecSize == 1 && t.Columns == 1 && len(t.Array) == 0 && !t.Pointer
}

// IsVector reports whether t is a vector value type.
func (t *Type) IsVector() bool {
	return t.VecSize > 1 && t.Columns == 1 && len(t.Array) == 0 && !t.Pointer
}

// IsMatrix reports whether t is a matrix value type.
func (t *Type) IsMatrix() bool {
	return t.Columns > 1 && len(t.Array) == 0 && !t.Pointer
}

// IsArray reports whether t has at least one array dimension.
func (t *Type) IsArray() bool {
	return len(t.Array) > 0 && !t.Pointer
}

// IsStruct reports whether t is a struct value type (not an array of one).
func (t *Type) IsStruct() bool {
	return t.Base == BaseStruct && len(t.Array) == 0 && !t.Pointer
}

// IsRuntimeArray reports whether the outermost dimension is runtime sized.
func (t *Type) IsRuntimeArray() bool {
	n := len(t.Array)
	return n > 0 && t.ArrayLiteral[n-1] && t.Array[n-1] == 0
}

// OuterArraySize returns the literal size of the outermost dimension.
func (t *Type) OuterArraySize() uint32 {
	if len(t.Array) == 0 {
		return 0
	}
	return t.Array[len(t.Array)-1]
}

// Variable is an OpVariable.
type Variable struct {
	Self        ID
	Type        ID
	Storage     spirv.StorageClass
	Initializer ID

	// FunctionScope is set for variables owned by a function.
	FunctionScope bool
}

func (*Variable) entity() {}

// Constant is a scalar, composite or null constant.
type Constant struct {
	Self ID
	Type ID

	// Scalar holds the literal bits of a scalar constant.
	Scalar uint64

	// Composite holds the constituent constant IDs of a composite.
	Composite []ID

	Null bool
	Spec bool
}

func (*Constant) entity() {}

// Parameter is a function parameter.
type Parameter struct {
	ID   ID
	Type ID
}

// Function is an OpFunction with its basic blocks.
type Function struct {
	Self           ID
	ReturnType     ID
	FunctionType   ID
	Control        spirv.FunctionControl
	Params         []Parameter
	Blocks         []ID
	EntryBlock     ID
	LocalVariables []ID
}

func (*Function) entity() {}

// Terminator is the kind of control transfer that ends a block.
type Terminator uint8

const (
	TermUnknown Terminator = iota
	TermDirect
	TermSelect
	TermMultiSelect
	TermReturn
	TermKill
	TermUnreachable
)

// Merge is the structured control flow role of a block header.
type Merge uint8

const (
	MergeNone Merge = iota
	MergeSelection
	MergeLoop
)

// Case is one arm of a MultiSelect terminator.
type Case struct {
	Value uint32
	Block ID
}

// Block is a basic block.
type Block struct {
	Self       ID
	Ops        []Instruction
	Terminator Terminator

	// Next is the target of a Direct branch.
	Next ID

	// Condition, TrueBlock and FalseBlock describe a Select.
	Condition  ID
	TrueBlock  ID
	FalseBlock ID

	// Cases and Default describe a MultiSelect.
	Cases   []Case
	Default ID

	// ReturnValue is set for OpReturnValue.
	ReturnValue ID

	Merge         Merge
	MergeBlock    ID
	ContinueBlock ID
}

func (*Block) entity() {}

// Instruction is one non-terminator instruction of a block.
type Instruction struct {
	Op         spirv.Op
	ResultType ID
	Result     ID
	Operands   []uint32
}

// IDOperands returns the operands of i that refer to IDs.
func (i *Instruction) IDOperands() []ID {
	ids := make([]ID, 0, len(i.Operands))
	for n, v := range i.Operands {
		if spirv.IsIDOperand(i.Op, n) {
			ids = append(ids, ID(v))
		}
	}
	return ids
}

// ExtInstImport is an imported extended instruction set.
type ExtInstImport struct {
	Self ID
	Name string
}

func (*ExtInstImport) entity() {}

// Undef is an OpUndef value.
type Undef struct {
	Self ID
	Type ID
}

func (*Undef) entity() {}

// EntryPoint describes one shader entry point.
type EntryPoint struct {
	Name     string
	Function ID
	Model    spirv.ExecutionModel

	// Interface lists the Input/Output variables the entry point touches.
	Interface []ID

	Modes          Bitset
	Workgroup      [3]uint32
	OutputVertices uint32
	Invocations    uint32
}

// IsTessellation reports whether the entry point is a tessellation stage.
func (e *EntryPoint) IsTessellation() bool {
	return e.Model == spirv.ExecutionModelTessellationControl ||
		e.Model == spirv.ExecutionModelTessellationEvaluation
}
