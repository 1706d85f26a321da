package asm

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/chewxy/math32"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// Error is a lowering error tied to a source position.
type Error struct {
	Pos     lexer.Position
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("asm: %s: %s", e.Pos, e.Message)
}

// Parse reads SPIR-V assembly and builds the IR module it describes.
func Parse(filename, source string) (*ir.Module, error) {
	if !strings.HasSuffix(source, "\n") {
		source += "\n"
	}
	prog, err := ParseProgram(filename, source)
	if err != nil {
		return nil, err
	}
	return Lower(prog)
}

// ParseFile reads and parses an assembly file.
func ParseFile(path string) (*ir.Module, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(path, string(source))
}

// Lower builds an IR module from a parsed program.
//
// Names are assigned IDs in order of first appearance, so forward references
// (branch targets, OpEntryPoint functions, decorations) resolve. Numeric
// names like %12 get no special treatment.
func Lower(prog *Program) (*ir.Module, error) {
	l := &lowerer{
		m:   ir.NewModule(),
		ids: make(map[string]ir.ID),
	}
	l.assignIDs(prog)
	for _, inst := range prog.Instructions {
		if err := l.instruction(inst); err != nil {
			return nil, err
		}
	}
	if l.fn != nil {
		return nil, &Error{Pos: l.fnPos, Message: "missing OpFunctionEnd"}
	}
	return l.m, nil
}

type lowerer struct {
	m   *ir.Module
	ids map[string]ir.ID

	fn    *ir.Function
	fnPos lexer.Position
	block *ir.Block
}

func (l *lowerer) assignIDs(prog *Program) {
	var names []string
	see := func(name string) {
		if _, ok := l.ids[name]; !ok {
			l.ids[name] = 0
			names = append(names, name)
		}
	}
	for _, inst := range prog.Instructions {
		if inst.Result != "" {
			see(inst.Result)
		}
		for _, op := range inst.Operands {
			if op.ID != nil {
				see(*op.ID)
			}
		}
	}
	first := l.m.Reserve(len(names))
	for i, name := range names {
		id := first + ir.ID(i)
		l.ids[name] = id
		if n := strings.TrimPrefix(name, "%"); !isNumeric(n) {
			l.m.SetName(id, n)
		}
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func (l *lowerer) errorf(pos lexer.Position, format string, args ...any) error {
	return &Error{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func (l *lowerer) set(inst *Instruction, e ir.Entity) error {
	if err := l.m.Set(l.ids[inst.Result], e); err != nil {
		return l.errorf(inst.Pos, "%v", err)
	}
	return nil
}

// operand accessors

func (l *lowerer) id(inst *Instruction, i int) (ir.ID, error) {
	if i >= len(inst.Operands) || inst.Operands[i].ID == nil {
		return 0, l.errorf(inst.Pos, "%s: operand %d must be an id", inst.Op, i)
	}
	return l.ids[*inst.Operands[i].ID], nil
}

func (l *lowerer) literal(inst *Instruction, i int) (uint32, error) {
	if i >= len(inst.Operands) {
		return 0, l.errorf(inst.Pos, "%s: missing operand %d", inst.Op, i)
	}
	return l.word(inst.Operands[i])
}

func (l *lowerer) str(inst *Instruction, i int) (string, error) {
	if i >= len(inst.Operands) || inst.Operands[i].String == nil {
		return "", l.errorf(inst.Pos, "%s: operand %d must be a string", inst.Op, i)
	}
	return *inst.Operands[i].String, nil
}

func (l *lowerer) enumWord(inst *Instruction, i int) (string, error) {
	if i >= len(inst.Operands) || inst.Operands[i].Word == nil {
		return "", l.errorf(inst.Pos, "%s: operand %d must be an enumerant", inst.Op, i)
	}
	return *inst.Operands[i].Word, nil
}

// word converts any operand to its 32-bit encoding.
func (l *lowerer) word(op *Operand) (uint32, error) {
	switch {
	case op.ID != nil:
		return uint32(l.ids[*op.ID]), nil
	case op.Int != nil:
		v, err := parseInt(*op.Int)
		if err != nil {
			return 0, l.errorf(op.Pos, "bad integer %q", *op.Int)
		}
		return uint32(v), nil
	case op.Float != nil:
		f, err := strconv.ParseFloat(*op.Float, 32)
		if err != nil {
			return 0, l.errorf(op.Pos, "bad float %q", *op.Float)
		}
		return math32.Float32bits(float32(f)), nil
	case op.Word != nil:
		if v, ok := spirv.ParseEnumWord(*op.Word); ok {
			return v, nil
		}
		if v, ok := spirv.ParseGLSLstd450(*op.Word); ok {
			return v, nil
		}
		return 0, l.errorf(op.Pos, "unknown enumerant %q", *op.Word)
	}
	return 0, l.errorf(op.Pos, "string operand not allowed here")
}

func parseInt(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	u, err := strconv.ParseUint(s, 0, 64)
	return int64(u), err
}

func (l *lowerer) instruction(inst *Instruction) error {
	op, ok := spirv.ParseOp(inst.Op)
	if !ok {
		return l.errorf(inst.Pos, "unknown opcode %s", inst.Op)
	}
	if spirv.HasResult(op) && inst.Result == "" {
		return l.errorf(inst.Pos, "%s needs a result id", inst.Op)
	}

	switch op {
	case spirv.OpNop, spirv.OpSource, spirv.OpMemoryModel, spirv.OpString:
		return nil
	case spirv.OpCapability:
		w, err := l.enumWord(inst, 0)
		if err != nil {
			return err
		}
		l.m.Capabilities = append(l.m.Capabilities, w)
		return nil
	case spirv.OpExtension:
		s, err := l.str(inst, 0)
		if err != nil {
			return err
		}
		l.m.Extensions = append(l.m.Extensions, s)
		return nil
	case spirv.OpExtInstImport:
		s, err := l.str(inst, 0)
		if err != nil {
			return err
		}
		return l.set(inst, &ir.ExtInstImport{Self: l.ids[inst.Result], Name: s})
	case spirv.OpEntryPoint:
		return l.entryPoint(inst)
	case spirv.OpExecutionMode:
		return l.executionMode(inst)
	case spirv.OpName, spirv.OpMemberName, spirv.OpDecorate, spirv.OpMemberDecorate:
		return l.annotation(op, inst)
	case spirv.OpTypeVoid, spirv.OpTypeBool, spirv.OpTypeInt, spirv.OpTypeFloat,
		spirv.OpTypeVector, spirv.OpTypeMatrix, spirv.OpTypeImage, spirv.OpTypeSampler,
		spirv.OpTypeSampledImage, spirv.OpTypeArray, spirv.OpTypeRuntimeArray,
		spirv.OpTypeStruct, spirv.OpTypePointer, spirv.OpTypeFunction:
		return l.typeDecl(op, inst)
	case spirv.OpConstantTrue, spirv.OpConstantFalse, spirv.OpConstant,
		spirv.OpConstantComposite, spirv.OpConstantNull,
		spirv.OpSpecConstantTrue, spirv.OpSpecConstantFalse, spirv.OpSpecConstant:
		return l.constant(op, inst)
	case spirv.OpVariable:
		return l.variable(inst)
	case spirv.OpUndef:
		t, err := l.id(inst, 0)
		if err != nil {
			return err
		}
		return l.set(inst, &ir.Undef{Self: l.ids[inst.Result], Type: t})
	case spirv.OpFunction, spirv.OpFunctionParameter, spirv.OpFunctionEnd, spirv.OpLabel:
		return l.function(op, inst)
	}

	if l.block == nil {
		return l.errorf(inst.Pos, "%s outside of a block", inst.Op)
	}
	switch op {
	case spirv.OpSelectionMerge, spirv.OpLoopMerge:
		return l.merge(op, inst)
	}
	if spirv.IsTerminator(op) {
		return l.terminator(op, inst)
	}

	out := ir.Instruction{Op: op, Result: l.ids[inst.Result]}
	operands := inst.Operands
	if spirv.HasResultType(op) {
		rt, err := l.id(inst, 0)
		if err != nil {
			return err
		}
		out.ResultType = rt
		operands = operands[1:]
	}
	out.Operands = make([]uint32, len(operands))
	for i, o := range operands {
		w, err := l.word(o)
		if err != nil {
			return err
		}
		out.Operands[i] = w
	}
	l.block.Ops = append(l.block.Ops, out)
	return nil
}

func (l *lowerer) entryPoint(inst *Instruction) error {
	modelWord, err := l.enumWord(inst, 0)
	if err != nil {
		return err
	}
	model, ok := spirv.ParseExecutionModel(modelWord)
	if !ok {
		return l.errorf(inst.Pos, "unknown execution model %s", modelWord)
	}
	fn, err := l.id(inst, 1)
	if err != nil {
		return err
	}
	name, err := l.str(inst, 2)
	if err != nil {
		return err
	}
	ep := ir.EntryPoint{Name: name, Function: fn, Model: model}
	for i := 3; i < len(inst.Operands); i++ {
		v, err := l.id(inst, i)
		if err != nil {
			return err
		}
		ep.Interface = append(ep.Interface, v)
	}
	l.m.EntryPoints = append(l.m.EntryPoints, ep)
	return nil
}

func (l *lowerer) executionMode(inst *Instruction) error {
	fn, err := l.id(inst, 0)
	if err != nil {
		return err
	}
	modeWord, err := l.enumWord(inst, 1)
	if err != nil {
		return err
	}
	mode, ok := spirv.ParseExecutionMode(modeWord)
	if !ok {
		return l.errorf(inst.Pos, "unknown execution mode %s", modeWord)
	}
	args := make([]uint32, 0, 3)
	for i := 2; i < len(inst.Operands); i++ {
		v, err := l.literal(inst, i)
		if err != nil {
			return err
		}
		args = append(args, v)
	}
	found := false
	for i := range l.m.EntryPoints {
		ep := &l.m.EntryPoints[i]
		if ep.Function != fn {
			continue
		}
		found = true
		ep.Modes.Set(uint32(mode))
		switch mode {
		case spirv.ExecutionModeLocalSize:
			copy(ep.Workgroup[:], args)
		case spirv.ExecutionModeOutputVertices:
			if len(args) > 0 {
				ep.OutputVertices = args[0]
			}
		case spirv.ExecutionModeInvocations:
			if len(args) > 0 {
				ep.Invocations = args[0]
			}
		}
	}
	if !found {
		return l.errorf(inst.Pos, "execution mode for %s, which is not an entry point", *inst.Operands[0].ID)
	}
	return nil
}

func (l *lowerer) annotation(op spirv.Op, inst *Instruction) error {
	target, err := l.id(inst, 0)
	if err != nil {
		return err
	}
	switch op {
	case spirv.OpName:
		s, err := l.str(inst, 1)
		if err != nil {
			return err
		}
		l.m.SetName(target, s)
		return nil
	case spirv.OpMemberName:
		idx, err := l.literal(inst, 1)
		if err != nil {
			return err
		}
		s, err := l.str(inst, 2)
		if err != nil {
			return err
		}
		l.m.SetMemberName(target, int(idx), s)
		return nil
	}

	first := 1
	member := -1
	if op == spirv.OpMemberDecorate {
		idx, err := l.literal(inst, 1)
		if err != nil {
			return err
		}
		member = int(idx)
		first = 2
	}
	decWord, err := l.enumWord(inst, first)
	if err != nil {
		return err
	}
	dec, ok := spirv.ParseDecoration(decWord)
	if !ok {
		return l.errorf(inst.Pos, "unknown decoration %s", decWord)
	}
	var value uint32
	if first+1 < len(inst.Operands) {
		arg := inst.Operands[first+1]
		if dec == spirv.DecorationBuiltIn {
			if arg.Word == nil {
				return l.errorf(arg.Pos, "BuiltIn needs a builtin name")
			}
			bi, ok := spirv.ParseBuiltIn(*arg.Word)
			if !ok {
				return l.errorf(arg.Pos, "unknown builtin %s", *arg.Word)
			}
			value = uint32(bi)
		} else if value, err = l.word(arg); err != nil {
			return err
		}
	}
	if member >= 0 {
		l.m.DecorateMember(target, member, dec, value)
	} else {
		l.m.Decorate(target, dec, value)
	}
	return nil
}

func (l *lowerer) typeDecl(op spirv.Op, inst *Instruction) error {
	self := l.ids[inst.Result]
	t := &ir.Type{Self: self, VecSize: 1, Columns: 1}
	switch op {
	case spirv.OpTypeVoid:
		t.Base = ir.BaseVoid
	case spirv.OpTypeBool:
		t.Base = ir.BaseBool
		t.Width = 1
	case spirv.OpTypeInt:
		w, err := l.literal(inst, 0)
		if err != nil {
			return err
		}
		signed, err := l.literal(inst, 1)
		if err != nil {
			return err
		}
		t.Base = ir.BaseUInt
		if signed != 0 {
			t.Base = ir.BaseInt
		}
		t.Width = w
	case spirv.OpTypeFloat:
		w, err := l.literal(inst, 0)
		if err != nil {
			return err
		}
		t.Base = ir.BaseFloat
		t.Width = w
	case spirv.OpTypeVector:
		elem, n, err := l.shape(inst)
		if err != nil {
			return err
		}
		*t = *elem
		t.Self = self
		t.VecSize = n
	case spirv.OpTypeMatrix:
		col, n, err := l.shape(inst)
		if err != nil {
			return err
		}
		*t = *col
		t.Self = self
		t.Columns = n
	case spirv.OpTypeImage, spirv.OpTypeSampledImage:
		return l.imageType(op, inst, t)
	case spirv.OpTypeSampler:
		t.Base = ir.BaseSampler
	case spirv.OpTypeArray, spirv.OpTypeRuntimeArray:
		elemID, err := l.id(inst, 0)
		if err != nil {
			return err
		}
		elem := l.m.Type(elemID)
		if elem == nil {
			return l.errorf(inst.Pos, "array element %s is not a type", *inst.Operands[0].ID)
		}
		*t = *elem
		t.Self = self
		t.Parent = elemID
		t.Array = append(append([]uint32(nil), elem.Array...), 0)
		t.ArrayLiteral = append(append([]bool(nil), elem.ArrayLiteral...), true)
		if op == spirv.OpTypeArray {
			lenID, err := l.id(inst, 1)
			if err != nil {
				return err
			}
			last := len(t.Array) - 1
			if c := l.m.Constant(lenID); c != nil && !c.Spec {
				t.Array[last] = uint32(c.Scalar)
			} else {
				t.Array[last] = uint32(lenID)
				t.ArrayLiteral[last] = false
			}
		}
	case spirv.OpTypeStruct:
		t.Base = ir.BaseStruct
		for i := range inst.Operands {
			m, err := l.id(inst, i)
			if err != nil {
				return err
			}
			t.Members = append(t.Members, m)
		}
	case spirv.OpTypePointer:
		scWord, err := l.enumWord(inst, 0)
		if err != nil {
			return err
		}
		sc, ok := spirv.ParseStorageClass(scWord)
		if !ok {
			return l.errorf(inst.Pos, "unknown storage class %s", scWord)
		}
		pointeeID, err := l.id(inst, 1)
		if err != nil {
			return err
		}
		pointee := l.m.Type(pointeeID)
		if pointee == nil {
			return l.errorf(inst.Pos, "pointee %s is not a type", *inst.Operands[1].ID)
		}
		*t = *pointee
		t.Self = self
		t.Pointer = true
		t.PointerDepth = pointee.PointerDepth + 1
		t.Storage = sc
		t.Parent = pointeeID
	case spirv.OpTypeFunction:
		t.Base = ir.BaseFunction
		ret, err := l.id(inst, 0)
		if err != nil {
			return err
		}
		t.Result = ret
		for i := 1; i < len(inst.Operands); i++ {
			p, err := l.id(inst, i)
			if err != nil {
				return err
			}
			t.Members = append(t.Members, p)
		}
	}
	return l.set(inst, t)
}

// shape reads the (component type, count) operands of vector and matrix
// declarations.
func (l *lowerer) shape(inst *Instruction) (*ir.Type, uint32, error) {
	elemID, err := l.id(inst, 0)
	if err != nil {
		return nil, 0, err
	}
	elem := l.m.Type(elemID)
	if elem == nil {
		return nil, 0, l.errorf(inst.Pos, "%s: component is not a type", inst.Op)
	}
	n, err := l.literal(inst, 1)
	if err != nil {
		return nil, 0, err
	}
	return elem, n, nil
}

func (l *lowerer) imageType(op spirv.Op, inst *Instruction, t *ir.Type) error {
	if op == spirv.OpTypeSampledImage {
		imgID, err := l.id(inst, 0)
		if err != nil {
			return err
		}
		img := l.m.Type(imgID)
		if img == nil {
			return l.errorf(inst.Pos, "sampled image of non-type")
		}
		*t = *img
		t.Self = l.ids[inst.Result]
		t.Base = ir.BaseSampledImage
		return l.set(inst, t)
	}
	sampled, err := l.id(inst, 0)
	if err != nil {
		return err
	}
	dimWord, err := l.enumWord(inst, 1)
	if err != nil {
		return err
	}
	dim, ok := spirv.ParseDim(dimWord)
	if !ok {
		return l.errorf(inst.Pos, "unknown dim %s", dimWord)
	}
	lits := make([]uint32, 4)
	for i := range lits {
		if lits[i], err = l.literal(inst, 2+i); err != nil {
			return err
		}
	}
	var format uint32
	if len(inst.Operands) > 6 && inst.Operands[6].Word != nil && *inst.Operands[6].Word != "Unknown" {
		format = 1
	}
	t.Base = ir.BaseImage
	t.Image = ir.ImageInfo{
		SampledType: sampled,
		Dim:         dim,
		Depth:       lits[0] == 1,
		Arrayed:     lits[1] != 0,
		MS:          lits[2] != 0,
		Sampled:     lits[3],
		Format:      format,
	}
	return l.set(inst, t)
}

func (l *lowerer) constant(op spirv.Op, inst *Instruction) error {
	typeID, err := l.id(inst, 0)
	if err != nil {
		return err
	}
	c := &ir.Constant{Self: l.ids[inst.Result], Type: typeID}
	switch op {
	case spirv.OpConstantTrue, spirv.OpSpecConstantTrue:
		c.Scalar = 1
	case spirv.OpConstantNull:
		c.Null = true
	case spirv.OpConstantComposite:
		for i := 1; i < len(inst.Operands); i++ {
			v, err := l.id(inst, i)
			if err != nil {
				return err
			}
			c.Composite = append(c.Composite, v)
		}
	case spirv.OpConstant, spirv.OpSpecConstant:
		if len(inst.Operands) < 2 {
			return l.errorf(inst.Pos, "%s needs a value", inst.Op)
		}
		t := l.m.Type(typeID)
		if t == nil {
			return l.errorf(inst.Pos, "constant of non-type")
		}
		bits, err := l.scalarBits(inst.Operands[1], t)
		if err != nil {
			return err
		}
		c.Scalar = bits
	}
	c.Spec = op == spirv.OpSpecConstant || op == spirv.OpSpecConstantTrue || op == spirv.OpSpecConstantFalse
	return l.set(inst, c)
}

func (l *lowerer) scalarBits(op *Operand, t *ir.Type) (uint64, error) {
	text := ""
	switch {
	case op.Int != nil:
		text = *op.Int
	case op.Float != nil:
		text = *op.Float
	default:
		return 0, l.errorf(op.Pos, "constant value must be numeric")
	}
	if t.Base == ir.BaseFloat {
		if t.Width == 64 {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return 0, l.errorf(op.Pos, "bad float %q", text)
			}
			return math.Float64bits(f), nil
		}
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return 0, l.errorf(op.Pos, "bad float %q", text)
		}
		return uint64(math32.Float32bits(float32(f))), nil
	}
	if op.Float != nil {
		return 0, l.errorf(op.Pos, "float literal for integer constant")
	}
	v, err := parseInt(text)
	if err != nil {
		return 0, l.errorf(op.Pos, "bad integer %q", text)
	}
	if t.Width < 64 {
		v &= 1<<t.Width - 1
	}
	return uint64(v), nil
}

func (l *lowerer) variable(inst *Instruction) error {
	typeID, err := l.id(inst, 0)
	if err != nil {
		return err
	}
	scWord, err := l.enumWord(inst, 1)
	if err != nil {
		return err
	}
	sc, ok := spirv.ParseStorageClass(scWord)
	if !ok {
		return l.errorf(inst.Pos, "unknown storage class %s", scWord)
	}
	v := &ir.Variable{Self: l.ids[inst.Result], Type: typeID, Storage: sc}
	if len(inst.Operands) > 2 {
		if v.Initializer, err = l.id(inst, 2); err != nil {
			return err
		}
	}
	if l.fn != nil {
		if sc != spirv.StorageClassFunction {
			return l.errorf(inst.Pos, "function variable with storage class %s", scWord)
		}
		v.FunctionScope = true
		l.fn.LocalVariables = append(l.fn.LocalVariables, v.Self)
	}
	return l.set(inst, v)
}

func (l *lowerer) function(op spirv.Op, inst *Instruction) error {
	switch op {
	case spirv.OpFunction:
		if l.fn != nil {
			return l.errorf(inst.Pos, "nested OpFunction")
		}
		ret, err := l.id(inst, 0)
		if err != nil {
			return err
		}
		control, err := l.literal(inst, 1)
		if err != nil {
			return err
		}
		fnType, err := l.id(inst, 2)
		if err != nil {
			return err
		}
		l.fn = &ir.Function{
			Self:         l.ids[inst.Result],
			ReturnType:   ret,
			FunctionType: fnType,
			Control:      spirv.FunctionControl(control),
		}
		l.fnPos = inst.Pos
		return l.set(inst, l.fn)
	case spirv.OpFunctionParameter:
		if l.fn == nil || len(l.fn.Blocks) > 0 {
			return l.errorf(inst.Pos, "misplaced OpFunctionParameter")
		}
		t, err := l.id(inst, 0)
		if err != nil {
			return err
		}
		l.fn.Params = append(l.fn.Params, ir.Parameter{ID: l.ids[inst.Result], Type: t})
		return nil
	case spirv.OpLabel:
		if l.fn == nil {
			return l.errorf(inst.Pos, "OpLabel outside of a function")
		}
		if l.block != nil {
			return l.errorf(inst.Pos, "block %s is not terminated", l.m.Name(l.block.Self))
		}
		l.block = &ir.Block{Self: l.ids[inst.Result]}
		if len(l.fn.Blocks) == 0 {
			l.fn.EntryBlock = l.block.Self
		}
		l.fn.Blocks = append(l.fn.Blocks, l.block.Self)
		return l.set(inst, l.block)
	case spirv.OpFunctionEnd:
		if l.fn == nil {
			return l.errorf(inst.Pos, "OpFunctionEnd without OpFunction")
		}
		if l.block != nil {
			return l.errorf(inst.Pos, "block %s is not terminated", l.m.Name(l.block.Self))
		}
		l.fn = nil
	}
	return nil
}

func (l *lowerer) merge(op spirv.Op, inst *Instruction) error {
	mergeBlock, err := l.id(inst, 0)
	if err != nil {
		return err
	}
	l.block.MergeBlock = mergeBlock
	l.block.Merge = ir.MergeSelection
	if op == spirv.OpLoopMerge {
		cont, err := l.id(inst, 1)
		if err != nil {
			return err
		}
		l.block.Merge = ir.MergeLoop
		l.block.ContinueBlock = cont
	}
	return nil
}

func (l *lowerer) terminator(op spirv.Op, inst *Instruction) error {
	b := l.block
	var err error
	switch op {
	case spirv.OpBranch:
		b.Terminator = ir.TermDirect
		b.Next, err = l.id(inst, 0)
	case spirv.OpBranchConditional:
		b.Terminator = ir.TermSelect
		if b.Condition, err = l.id(inst, 0); err != nil {
			return err
		}
		if b.TrueBlock, err = l.id(inst, 1); err != nil {
			return err
		}
		b.FalseBlock, err = l.id(inst, 2)
	case spirv.OpSwitch:
		b.Terminator = ir.TermMultiSelect
		if b.Condition, err = l.id(inst, 0); err != nil {
			return err
		}
		if b.Default, err = l.id(inst, 1); err != nil {
			return err
		}
		for i := 2; i+1 < len(inst.Operands); i += 2 {
			v, err := l.literal(inst, i)
			if err != nil {
				return err
			}
			target, err := l.id(inst, i+1)
			if err != nil {
				return err
			}
			b.Cases = append(b.Cases, ir.Case{Value: v, Block: target})
		}
	case spirv.OpReturn:
		b.Terminator = ir.TermReturn
	case spirv.OpReturnValue:
		b.Terminator = ir.TermReturn
		b.ReturnValue, err = l.id(inst, 0)
	case spirv.OpKill, spirv.OpTerminateInvocation:
		b.Terminator = ir.TermKill
	case spirv.OpUnreachable:
		b.Terminator = ir.TermUnreachable
	}
	l.block = nil
	return err
}
