package msl

import (
	"fmt"
	"strings"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// DefaultRenderer renders every instruction the translator supports. Custom
// renderers can wrap it and handle a few instructions themselves.
type DefaultRenderer struct{}

// RenderInstruction implements Renderer.
func (DefaultRenderer) RenderInstruction(s *Scope, inst *ir.Instruction) error {
	return s.w.renderInstruction(inst)
}

// Image operand mask bits.
const (
	imageBias       = 0x1
	imageLod        = 0x2
	imageGrad       = 0x4
	imageConstOff   = 0x8
	imageOffset     = 0x10
	imageConstOffs  = 0x20
	imageSample     = 0x40
	imageMinLod     = 0x80
	imageUnhandled  = imageConstOffs | imageMinLod
	semanticsUBO    = 0x40
	semanticsShared = 0x100
	semanticsImage  = 0x800
	scopeSubgroup   = 3
)

// binaryOps maps instructions to infix operators. Signed and unsigned
// variants carry the operand base they require.
var binaryOps = map[spirv.Op]struct {
	op   string
	base ir.BaseType
}{
	spirv.OpIAdd: {"+", 0}, spirv.OpFAdd: {"+", 0},
	spirv.OpISub: {"-", 0}, spirv.OpFSub: {"-", 0},
	spirv.OpIMul: {"*", 0}, spirv.OpFMul: {"*", 0},
	spirv.OpUDiv: {"/", ir.BaseUInt}, spirv.OpSDiv: {"/", ir.BaseInt}, spirv.OpFDiv: {"/", 0},
	spirv.OpUMod: {"%", ir.BaseUInt}, spirv.OpSRem: {"%", ir.BaseInt},
	spirv.OpVectorTimesScalar: {"*", 0}, spirv.OpMatrixTimesScalar: {"*", 0},
	spirv.OpVectorTimesMatrix: {"*", 0}, spirv.OpMatrixTimesVector: {"*", 0},
	spirv.OpMatrixTimesMatrix: {"*", 0},
	spirv.OpLogicalOr: {"||", 0}, spirv.OpLogicalAnd: {"&&", 0},
	spirv.OpIEqual: {"==", 0}, spirv.OpINotEqual: {"!=", 0},
	spirv.OpUGreaterThan: {">", ir.BaseUInt}, spirv.OpSGreaterThan: {">", ir.BaseInt},
	spirv.OpUGreaterThanEqual: {">=", ir.BaseUInt}, spirv.OpSGreaterThanEqual: {">=", ir.BaseInt},
	spirv.OpULessThan: {"<", ir.BaseUInt}, spirv.OpSLessThan: {"<", ir.BaseInt},
	spirv.OpULessThanEqual: {"<=", ir.BaseUInt}, spirv.OpSLessThanEqual: {"<=", ir.BaseInt},
	spirv.OpFOrdEqual: {"==", 0}, spirv.OpFOrdNotEqual: {"!=", 0},
	spirv.OpFOrdLessThan: {"<", 0}, spirv.OpFOrdGreaterThan: {">", 0},
	spirv.OpFOrdLessThanEqual: {"<=", 0}, spirv.OpFOrdGreaterThanEqual: {">=", 0},
	spirv.OpShiftRightLogical: {">>", ir.BaseUInt}, spirv.OpShiftRightArithmetic: {">>", ir.BaseInt},
	spirv.OpShiftLeftLogical: {"<<", 0},
	spirv.OpBitwiseOr: {"|", 0}, spirv.OpBitwiseXor: {"^", 0}, spirv.OpBitwiseAnd: {"&", 0},
}

// glslFunctions maps GLSL.std.450 instructions with a direct MSL
// counterpart.
var glslFunctions = map[uint32]string{
	spirv.GLSLstd450Round:       "round",
	spirv.GLSLstd450Trunc:       "trunc",
	spirv.GLSLstd450FAbs:        "abs",
	spirv.GLSLstd450SAbs:        "abs",
	spirv.GLSLstd450Floor:       "floor",
	spirv.GLSLstd450Ceil:        "ceil",
	spirv.GLSLstd450Fract:       "fract",
	spirv.GLSLstd450Sin:         "sin",
	spirv.GLSLstd450Cos:         "cos",
	spirv.GLSLstd450Tan:         "tan",
	spirv.GLSLstd450Atan2:       "atan2",
	spirv.GLSLstd450Pow:         "pow",
	spirv.GLSLstd450Exp:         "exp",
	spirv.GLSLstd450Log:         "log",
	spirv.GLSLstd450Exp2:        "exp2",
	spirv.GLSLstd450Log2:        "log2",
	spirv.GLSLstd450Sqrt:        "sqrt",
	spirv.GLSLstd450InverseSqrt: "rsqrt",
	spirv.GLSLstd450FMin:        "fmin",
	spirv.GLSLstd450UMin:        "min",
	spirv.GLSLstd450SMin:        "min",
	spirv.GLSLstd450FMax:        "fmax",
	spirv.GLSLstd450UMax:        "max",
	spirv.GLSLstd450SMax:        "max",
	spirv.GLSLstd450FClamp:      "clamp",
	spirv.GLSLstd450FMix:        "mix",
	spirv.GLSLstd450Step:        "step",
	spirv.GLSLstd450SmoothStep:  "smoothstep",
	spirv.GLSLstd450Length:      "length",
	spirv.GLSLstd450Distance:    "distance",
	spirv.GLSLstd450Cross:       "cross",
	spirv.GLSLstd450Normalize:   "normalize",
	spirv.GLSLstd450Reflect:     "reflect",
}

// typeOf returns the type of a value or pointer ID.
func (w *Writer) typeOf(id ir.ID) *ir.Type {
	if t, ok := w.fs.types[id]; ok {
		return w.m.Type(t)
	}
	switch e := w.m.Entity(id).(type) {
	case *ir.Constant:
		return w.m.Type(e.Type)
	case *ir.Undef:
		return w.m.Type(e.Type)
	case *ir.Variable:
		return w.m.Type(e.Type)
	}
	return nil
}

// operand returns operand i of inst as a value expression.
func (w *Writer) operand(inst *ir.Instruction, i int) (string, error) {
	if i >= len(inst.Operands) {
		return "", invalid("%s has no operand %d", inst.Op, i)
	}
	return w.valueOf(ir.ID(inst.Operands[i]))
}

// operands returns operands from..len of inst as value expressions.
func (w *Writer) operands(inst *ir.Instruction, from int) ([]string, error) {
	var out []string
	for i := from; i < len(inst.Operands); i++ {
		v, err := w.operand(inst, i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// constantValue returns the literal of a scalar constant operand.
func (w *Writer) constantValue(id ir.ID) (uint32, error) {
	c := w.m.Constant(id)
	if c == nil || c.Spec {
		return 0, unsupported("non-constant operand %d where a constant is required", id)
	}
	return uint32(c.Scalar), nil
}

// paren wraps expr unless it is a name, a call or already parenthesized.
func paren(expr string) string {
	simple := true
	depth := 0
	for _, r := range expr {
		switch {
		case r == '(' || r == '[':
			depth++
		case r == ')' || r == ']':
			depth--
		case depth == 0 && !(r == '_' || r == '.' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'):
			simple = false
		}
	}
	if simple {
		return expr
	}
	return "(" + expr + ")"
}

// castTo converts expr of type t to the same shape with another base.
func castTo(expr string, t *ir.Type, base ir.BaseType) string {
	if t == nil || t.Base == base || !t.Base.IsScalarBase() {
		return expr
	}
	return fmt.Sprintf("%s(%s)", vectorName(base, t.Width, max(t.VecSize, 1)), expr)
}

// renderInstruction renders one non-control-flow instruction.
func (w *Writer) renderInstruction(inst *ir.Instruction) error {
	m := w.m
	fs := w.fs
	rt := m.Type(inst.ResultType)

	if b, ok := binaryOps[inst.Op]; ok {
		return w.renderBinary(inst, b.op, b.base)
	}
	switch {
	case spirv.IsAtomic(inst.Op):
		return w.renderAtomic(inst)
	case spirv.IsGroupNonUniform(inst.Op):
		return w.renderSubgroup(inst)
	}

	switch inst.Op {
	case spirv.OpUndef:
		if fs.hoisted[inst.Result] {
			w.bindValue(inst.Result, inst.ResultType, w.zeroValue(rt))
		} else {
			fs.values[inst.Result] = w.zeroValue(rt)
		}
		return nil

	case spirv.OpLoad:
		ptr := ir.ID(inst.Operands[0])
		p, err := w.pointerOf(ptr)
		if err != nil {
			return err
		}
		if rt.Pointer {
			return unsupported("loading a pointer")
		}
		if w.isOpaque(rt) || p.subpass {
			fs.values[inst.Result] = p.expr
			if p.sampler != "" {
				fs.samplers[inst.Result] = p.sampler
			}
			if p.subpass {
				fs.subpass[inst.Result] = true
			}
			return nil
		}
		v, err := w.load(p)
		if err != nil {
			return err
		}
		w.bindValue(inst.Result, inst.ResultType, v)
		return nil

	case spirv.OpStore:
		v, err := w.operand(inst, 1)
		if err != nil {
			return err
		}
		p, err := w.pointerOf(ir.ID(inst.Operands[0]))
		if err != nil {
			return err
		}
		return w.store(p, v)

	case spirv.OpCopyMemory:
		if len(inst.Operands) < 2 {
			return invalid("%s needs a target and a source", inst.Op)
		}
		src, err := w.pointerOf(ir.ID(inst.Operands[1]))
		if err != nil {
			return err
		}
		v, err := w.load(src)
		if err != nil {
			return err
		}
		dst, err := w.pointerOf(ir.ID(inst.Operands[0]))
		if err != nil {
			return err
		}
		return w.store(dst, v)

	case spirv.OpAccessChain, spirv.OpInBoundsAccessChain, spirv.OpPtrAccessChain:
		return w.renderAccessChain(inst)

	case spirv.OpCopyObject:
		src := ir.ID(inst.Operands[0])
		if rt.Pointer {
			p, err := w.pointerOf(src)
			if err != nil {
				return err
			}
			fs.ptrs[inst.Result] = p
			return nil
		}
		v, err := w.valueOf(src)
		if err != nil {
			return err
		}
		if w.isOpaque(rt) {
			fs.values[inst.Result] = v
			if smp, ok := fs.samplers[src]; ok {
				fs.samplers[inst.Result] = smp
			}
			return nil
		}
		w.bindValue(inst.Result, inst.ResultType, v)
		return nil

	case spirv.OpSampledImage:
		img, err := w.operand(inst, 0)
		if err != nil {
			return err
		}
		smp, err := w.operand(inst, 1)
		if err != nil {
			return err
		}
		fs.values[inst.Result] = img
		fs.samplers[inst.Result] = smp
		return nil

	case spirv.OpImage:
		img, err := w.operand(inst, 0)
		if err != nil {
			return err
		}
		fs.values[inst.Result] = img
		return nil

	case spirv.OpCompositeConstruct:
		return w.renderConstruct(inst, rt)
	case spirv.OpCompositeExtract:
		return w.renderExtract(inst)
	case spirv.OpCompositeInsert:
		return w.renderInsert(inst)
	case spirv.OpVectorShuffle:
		return w.renderShuffle(inst, rt)

	case spirv.OpVectorExtractDynamic:
		args, err := w.operands(inst, 0)
		if err != nil {
			return err
		}
		w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%s[%s]", paren(args[0]), args[1]))
		return nil

	case spirv.OpVectorInsertDynamic:
		args, err := w.operands(inst, 0)
		if err != nil {
			return err
		}
		w.bindValue(inst.Result, inst.ResultType, args[0])
		w.writeLine("%s[%s] = %s;", fs.name(inst.Result), args[2], args[1])
		return nil

	case spirv.OpConvertFToU, spirv.OpConvertFToS, spirv.OpConvertSToF, spirv.OpConvertUToF,
		spirv.OpUConvert, spirv.OpSConvert, spirv.OpFConvert:
		v, err := w.operand(inst, 0)
		if err != nil {
			return err
		}
		switch inst.Op {
		case spirv.OpConvertSToF, spirv.OpSConvert:
			v = castTo(v, w.typeOf(ir.ID(inst.Operands[0])), ir.BaseInt)
		case spirv.OpConvertUToF, spirv.OpUConvert:
			v = castTo(v, w.typeOf(ir.ID(inst.Operands[0])), ir.BaseUInt)
		}
		w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%s(%s)", w.typeName(inst.ResultType), v))
		return nil

	case spirv.OpBitcast:
		v, err := w.operand(inst, 0)
		if err != nil {
			return err
		}
		w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("as_type<%s>(%s)", w.typeName(inst.ResultType), v))
		return nil

	case spirv.OpSNegate, spirv.OpFNegate, spirv.OpNot, spirv.OpLogicalNot:
		v, err := w.operand(inst, 0)
		if err != nil {
			return err
		}
		op := map[spirv.Op]string{spirv.OpSNegate: "-", spirv.OpFNegate: "-", spirv.OpNot: "~", spirv.OpLogicalNot: "!"}[inst.Op]
		if inst.Op == spirv.OpSNegate {
			v = castTo(v, w.typeOf(ir.ID(inst.Operands[0])), ir.BaseInt)
		}
		w.bindValue(inst.Result, inst.ResultType, castTo(op+paren(v), m.Type(w.signedShape(inst, rt)), rt.Base))
		return nil

	case spirv.OpFRem:
		args, err := w.operands(inst, 0)
		if err != nil {
			return err
		}
		w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%sfmod(%s, %s)", Namespace, args[0], args[1]))
		return nil

	case spirv.OpDot:
		args, err := w.operands(inst, 0)
		if err != nil {
			return err
		}
		w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%sdot(%s, %s)", Namespace, args[0], args[1]))
		return nil

	case spirv.OpSelect:
		args, err := w.operands(inst, 0)
		if err != nil {
			return err
		}
		if ct := w.typeOf(ir.ID(inst.Operands[0])); ct != nil && ct.IsVector() {
			w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%sselect(%s, %s, %s)", Namespace, args[2], args[1], args[0]))
			return nil
		}
		w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%s ? %s : %s", paren(args[0]), paren(args[1]), paren(args[2])))
		return nil

	case spirv.OpDPdx, spirv.OpDPdy, spirv.OpFwidth, spirv.OpTranspose:
		v, err := w.operand(inst, 0)
		if err != nil {
			return err
		}
		fn := map[spirv.Op]string{spirv.OpDPdx: "dfdx", spirv.OpDPdy: "dfdy", spirv.OpFwidth: "fwidth", spirv.OpTranspose: "transpose"}[inst.Op]
		w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%s%s(%s)", Namespace, fn, v))
		return nil

	case spirv.OpExtInst:
		return w.renderExtInst(inst, rt)

	case spirv.OpFunctionCall:
		return w.renderCall(inst, rt)

	case spirv.OpImageSampleImplicitLod, spirv.OpImageSampleExplicitLod:
		return w.renderSample(inst, rt)
	case spirv.OpImageFetch, spirv.OpImageRead:
		return w.renderRead(inst, rt)
	case spirv.OpImageWrite:
		return w.renderWrite(inst)
	case spirv.OpImageGather:
		return w.renderGather(inst, rt)
	case spirv.OpImageQuerySize, spirv.OpImageQuerySizeLod:
		return w.renderQuerySize(inst, rt)
	case spirv.OpImageQueryLevels, spirv.OpImageQuerySamples:
		img, err := w.operand(inst, 0)
		if err != nil {
			return err
		}
		q := "get_num_mip_levels"
		if inst.Op == spirv.OpImageQuerySamples {
			q = "get_num_samples"
		}
		w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%s(%s.%s())", w.typeName(inst.ResultType), img, q))
		return nil

	case spirv.OpControlBarrier, spirv.OpMemoryBarrier:
		return w.renderBarrier(inst)

	case spirv.OpIsHelperInvocationEXT:
		v, ok, err := w.requireBuiltin(inKey(spirv.BuiltInHelperInvocation))
		if err != nil {
			return err
		}
		if !ok {
			fs.values[inst.Result] = "false"
			return nil
		}
		w.bindValue(inst.Result, inst.ResultType, v)
		return nil

	case spirv.OpDemoteToHelperInvocation:
		w.writeLine("%sdiscard_fragment();", Namespace)
		return nil

	case spirv.OpArrayLength:
		return unsupported("length of runtime array")
	case spirv.OpImageTexelPointer:
		return unsupported("atomic access to image texels")
	case spirv.OpEmitVertex, spirv.OpEndPrimitive:
		return unsupported("geometry stage instruction %s", inst.Op)
	case spirv.OpPhi:
		return unsupported("OpPhi")
	}
	return unsupported("instruction %s", inst.Op)
}

// signedShape returns the result type of a negation done on signed values.
func (w *Writer) signedShape(inst *ir.Instruction, rt *ir.Type) ir.ID {
	if inst.Op != spirv.OpSNegate || rt.Base != ir.BaseUInt {
		return rt.Self
	}
	if rt.IsVector() {
		return w.m.Vector(ir.BaseInt, rt.Width, rt.VecSize)
	}
	return w.m.Scalar(ir.BaseInt, rt.Width)
}

// renderBinary renders an infix operation. Operands are cast to the base
// the instruction interprets them as.
func (w *Writer) renderBinary(inst *ir.Instruction, op string, base ir.BaseType) error {
	args, err := w.operands(inst, 0)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return invalid("%s takes two operands", inst.Op)
	}
	if base != 0 {
		for i := range args {
			args[i] = castTo(args[i], w.typeOf(ir.ID(inst.Operands[i])), base)
		}
	}
	expr := fmt.Sprintf("%s %s %s", paren(args[0]), op, paren(args[1]))
	rt := w.m.Type(inst.ResultType)
	if base != 0 && rt.Base != ir.BaseBool && rt.Base != base {
		expr = fmt.Sprintf("%s(%s)", w.typeName(rt.Self), expr)
	}
	w.bindValue(inst.Result, inst.ResultType, expr)
	return nil
}

func (w *Writer) renderAccessChain(inst *ir.Instruction) error {
	ids := inst.IDOperands()
	base, err := w.pointerOf(ids[0])
	if err != nil {
		return err
	}
	indices := ids[1:]
	if inst.Op == spirv.OpPtrAccessChain {
		if c := w.m.Constant(indices[0]); c == nil || c.Scalar != 0 {
			return unsupported("pointer arithmetic with a non-zero element")
		}
		indices = indices[1:]
	}
	p, err := w.accessChain(base, indices)
	if err != nil {
		return err
	}
	w.fs.ptrs[inst.Result] = p
	return nil
}

func (w *Writer) renderConstruct(inst *ir.Instruction, rt *ir.Type) error {
	parts, err := w.operands(inst, 0)
	if err != nil {
		return err
	}
	var expr string
	switch {
	case rt.IsArray():
		expr = w.arrayInit(rt, parts)
	case rt.IsStruct():
		expr = w.structInit(rt, parts)
	default:
		expr = fmt.Sprintf("%s(%s)", w.typeName(rt.Self), strings.Join(parts, ", "))
	}
	w.bindValue(inst.Result, inst.ResultType, expr)
	return nil
}

// compositePath follows literal indices from a value of type typ stored
// in representation r. It returns the expression of the selected part,
// its type and representation.
func (w *Writer) compositePath(expr string, typ *ir.Type, r repr, indices []uint32, lvalue bool) (string, *ir.Type, repr, error) {
	m := w.m
	t := typ
	for _, i := range indices {
		switch {
		case t.IsStruct():
			if int(i) >= len(t.Members) {
				return "", nil, repr{}, invalid("member %d of a struct with %d members", i, len(t.Members))
			}
			expr = fmt.Sprintf("%s.%s", paren(expr), w.memberName(t.Self, int(i)))
			r = w.memberRepr(t.Self, int(i))
			t = m.Type(t.Members[i])
		case t.IsArray():
			if w.isOpaque(t) || t.IsRuntimeArray() {
				expr = fmt.Sprintf("%s[%d]", paren(expr), i)
			} else {
				expr = fmt.Sprintf("%s.inner[%d]", paren(expr), i)
			}
			if ar, ok := w.arrayReprs[t.Self]; ok {
				r = ar
			}
			t = m.Type(t.Parent)
		case t.IsMatrix():
			if r.transposed {
				if lvalue {
					return "", nil, repr{}, unsupported("column write into row-major matrix %s", expr)
				}
				expr, r = w.unpack(expr, t, r), repr{}
			}
			expr = fmt.Sprintf("%s[%d]", paren(expr), i)
			switch r.kind {
			case reprPackedColumns:
				r = repr{kind: reprPacked}
			case reprWidenedColumns:
				r = repr{kind: reprWidened, stored: r.stored}
			default:
				r = repr{}
			}
			t = m.Type(m.Vector(t.Base, t.Width, t.VecSize))
		case t.IsVector():
			if !r.natural() && !lvalue {
				expr, r = w.unpack(expr, t, r), repr{}
			}
			if i >= 4 {
				return "", nil, repr{}, invalid("component %d of a vector", i)
			}
			expr = paren(expr) + "." + "xyzw"[i:i+1]
			r = repr{}
			t = m.Type(m.Scalar(t.Base, t.Width))
		default:
			return "", nil, repr{}, invalid("composite index into a scalar")
		}
	}
	return expr, t, r, nil
}

func (w *Writer) renderExtract(inst *ir.Instruction) error {
	src := ir.ID(inst.Operands[0])
	v, err := w.valueOf(src)
	if err != nil {
		return err
	}
	t := w.typeOf(src)
	if t == nil {
		return invalid("composite %d has no type", src)
	}
	expr, et, r, err := w.compositePath(v, t, repr{}, inst.Operands[1:], false)
	if err != nil {
		return err
	}
	w.bindValue(inst.Result, inst.ResultType, w.unpack(expr, et, r))
	return nil
}

func (w *Writer) renderInsert(inst *ir.Instruction) error {
	obj, err := w.operand(inst, 0)
	if err != nil {
		return err
	}
	comp, err := w.operand(inst, 1)
	if err != nil {
		return err
	}
	w.bindValue(inst.Result, inst.ResultType, comp)
	name := w.fs.name(inst.Result)
	lhs, et, r, err := w.compositePath(name, w.m.Type(inst.ResultType), repr{}, inst.Operands[2:], true)
	if err != nil {
		return err
	}
	w.writeLine("%s = %s;", lhs, w.pack(obj, et, r))
	return nil
}

func (w *Writer) renderShuffle(inst *ir.Instruction, rt *ir.Type) error {
	a, err := w.operand(inst, 0)
	if err != nil {
		return err
	}
	b, err := w.operand(inst, 1)
	if err != nil {
		return err
	}
	at := w.typeOf(ir.ID(inst.Operands[0]))
	n := max(at.VecSize, 1)
	comps := inst.Operands[2:]
	allA, allB := true, true
	for _, c := range comps {
		if c == 0xffffffff {
			continue
		}
		allA = allA && c < n
		allB = allB && c >= n
	}
	pick := func(src string, srcType *ir.Type, c uint32) string {
		if srcType.VecSize <= 1 {
			return src
		}
		return paren(src) + "." + "xyzw"[c:c+1]
	}
	bt := w.typeOf(ir.ID(inst.Operands[1]))
	switch {
	case allA && at.VecSize > 1:
		var sb strings.Builder
		for _, c := range comps {
			if c == 0xffffffff {
				c = 0
			}
			sb.WriteByte("xyzw"[c])
		}
		w.bindValue(inst.Result, inst.ResultType, paren(a)+"."+sb.String())
		return nil
	case allB && bt.VecSize > 1:
		var sb strings.Builder
		for _, c := range comps {
			if c == 0xffffffff {
				c = n
			}
			sb.WriteByte("xyzw"[c-n])
		}
		w.bindValue(inst.Result, inst.ResultType, paren(b)+"."+sb.String())
		return nil
	}
	parts := make([]string, len(comps))
	for i, c := range comps {
		switch {
		case c == 0xffffffff:
			parts[i] = zeroLiteral(rt)
		case c < n:
			parts[i] = pick(a, at, c)
		default:
			parts[i] = pick(b, bt, c-n)
		}
	}
	w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%s(%s)", w.typeName(rt.Self), strings.Join(parts, ", ")))
	return nil
}

func (w *Writer) renderExtInst(inst *ir.Instruction, rt *ir.Type) error {
	set := w.m.ExtInstImport(ir.ID(inst.Operands[0]))
	if set == nil || set.Name != "GLSL.std.450" {
		return unsupported("extended instruction set %q", extName(set))
	}
	op := inst.Operands[1]
	args, err := w.operands(inst, 2)
	if err != nil {
		return err
	}
	fn, ok := glslFunctions[op]
	if !ok {
		return unsupported("GLSL.std.450 instruction %d", op)
	}
	scalar := rt.IsScalar()
	var expr string
	switch {
	case op == spirv.GLSLstd450Length && scalar:
		expr = fmt.Sprintf("%sabs(%s)", Namespace, args[0])
	case op == spirv.GLSLstd450Distance && scalar:
		expr = fmt.Sprintf("%sabs(%s - %s)", Namespace, paren(args[0]), paren(args[1]))
	case op == spirv.GLSLstd450Normalize && scalar:
		expr = fmt.Sprintf("%ssign(%s)", Namespace, args[0])
	case op == spirv.GLSLstd450Reflect && scalar:
		expr = fmt.Sprintf("%s - 2.0 * %s * %s * %s", paren(args[0]), paren(args[1]), paren(args[1]), paren(args[0]))
	case op == spirv.GLSLstd450SAbs || op == spirv.GLSLstd450SMin || op == spirv.GLSLstd450SMax:
		for i, a := range args {
			args[i] = castTo(a, w.typeOf(ir.ID(inst.Operands[2+i])), ir.BaseInt)
		}
		expr = castTo(fmt.Sprintf("%s%s(%s)", Namespace, fn, strings.Join(args, ", ")), w.m.Type(w.withBase(rt, ir.BaseInt)), rt.Base)
	case op == spirv.GLSLstd450UMin || op == spirv.GLSLstd450UMax:
		for i, a := range args {
			args[i] = castTo(a, w.typeOf(ir.ID(inst.Operands[2+i])), ir.BaseUInt)
		}
		expr = castTo(fmt.Sprintf("%s%s(%s)", Namespace, fn, strings.Join(args, ", ")), w.m.Type(w.withBase(rt, ir.BaseUInt)), rt.Base)
	default:
		expr = fmt.Sprintf("%s%s(%s)", Namespace, fn, strings.Join(args, ", "))
	}
	w.bindValue(inst.Result, inst.ResultType, expr)
	return nil
}

func extName(set *ir.ExtInstImport) string {
	if set == nil {
		return ""
	}
	return set.Name
}

// withBase returns the type of the shape of t with another scalar base.
func (w *Writer) withBase(t *ir.Type, base ir.BaseType) ir.ID {
	if t.IsVector() {
		return w.m.Vector(base, t.Width, t.VecSize)
	}
	return w.m.Scalar(base, t.Width)
}

func (w *Writer) renderCall(inst *ir.Instruction, rt *ir.Type) error {
	callee := ir.ID(inst.Operands[0])
	fn := w.m.Function(callee)
	if fn == nil {
		return invalid("call to %d, which is not a function", callee)
	}
	var args []string
	for _, op := range inst.Operands[1:] {
		id := ir.ID(op)
		t := w.typeOf(id)
		switch {
		case t != nil && t.Pointer:
			p, err := w.pointerOf(id)
			if err != nil {
				return err
			}
			if !p.r.natural() {
				return unsupported("passing a pointer to a repacked %s", w.typeName(p.typ))
			}
			args = append(args, p.expr)
		default:
			v, err := w.valueOf(id)
			if err != nil {
				return err
			}
			args = append(args, v)
			if smp, ok := w.fs.samplers[id]; ok {
				args = append(args, smp)
			}
		}
	}
	extra, err := w.threadedArgs(callee)
	if err != nil {
		return err
	}
	args = append(args, extra...)
	w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%s(%s)", w.globalName(callee), strings.Join(args, ", ")))
	return nil
}

// imageOf returns the texture expression, the sampler expression and the
// type of an image operand.
func (w *Writer) imageOf(id ir.ID) (string, string, *ir.Type, error) {
	img, err := w.valueOf(id)
	if err != nil {
		return "", "", nil, err
	}
	t := w.typeOf(id)
	if t == nil || (t.Base != ir.BaseImage && t.Base != ir.BaseSampledImage) {
		return "", "", nil, invalid("%d is not an image", id)
	}
	return img, w.fs.samplers[id], t, nil
}

// coordArgs splits image coordinates into the coordinate and the array
// layer arguments of the texture methods.
func (w *Writer) coordArgs(coord string, t *ir.Type, integer bool) []string {
	n := uint32(2)
	switch t.Image.Dim {
	case spirv.Dim1D, spirv.DimBuffer:
		n = 1
	case spirv.Dim3D, spirv.DimCube:
		n = 3
	}
	base := ir.BaseFloat
	if integer {
		base = ir.BaseUInt
	}
	cast := vectorName(base, 32, n)
	c := paren(coord)
	if !t.Image.Arrayed {
		if n == 1 {
			return []string{fmt.Sprintf("%s(%s)", cast, coord)}
		}
		return []string{fmt.Sprintf("%s(%s%s)", cast, c, swizzle(0, n))}
	}
	coordArg := fmt.Sprintf("%s(%s%s)", cast, c, swizzle(0, n))
	layer := fmt.Sprintf("%s%s", c, swizzle(n, 1))
	if !integer {
		layer = fmt.Sprintf("%sround(%s)", Namespace, layer)
	}
	return []string{coordArg, fmt.Sprintf("uint(%s)", layer)}
}

// imageOperands reads the optional operands that follow an image operand
// mask.
type imageOperands struct {
	bias, lod, dx, dy, offset, sample string
}

func (w *Writer) readImageOperands(inst *ir.Instruction, maskAt int) (imageOperands, error) {
	var io imageOperands
	if maskAt >= len(inst.Operands) {
		return io, nil
	}
	mask := inst.Operands[maskAt]
	if mask&imageUnhandled != 0 {
		return io, unsupported("image operands %#x", mask&imageUnhandled)
	}
	next := maskAt + 1
	take := func() (string, error) {
		v, err := w.operand(inst, next)
		next++
		return v, err
	}
	var err error
	if mask&imageBias != 0 {
		if io.bias, err = take(); err != nil {
			return io, err
		}
	}
	if mask&imageLod != 0 {
		if io.lod, err = take(); err != nil {
			return io, err
		}
	}
	if mask&imageGrad != 0 {
		if io.dx, err = take(); err != nil {
			return io, err
		}
		if io.dy, err = take(); err != nil {
			return io, err
		}
	}
	if mask&(imageConstOff|imageOffset) != 0 {
		if io.offset, err = take(); err != nil {
			return io, err
		}
	}
	if mask&imageSample != 0 {
		if io.sample, err = take(); err != nil {
			return io, err
		}
	}
	return io, nil
}

// depthResult widens the scalar a depth texture returns to the result.
func (w *Writer) depthResult(expr string, t, rt *ir.Type) string {
	if t.Image.Depth && rt.VecSize > 1 {
		return fmt.Sprintf("%s(%s)", w.typeName(rt.Self), expr)
	}
	return expr
}

func (w *Writer) renderSample(inst *ir.Instruction, rt *ir.Type) error {
	img, smp, t, err := w.imageOf(ir.ID(inst.Operands[0]))
	if err != nil {
		return err
	}
	if smp == "" {
		return invalid("sampling %s without a sampler", img)
	}
	coord, err := w.operand(inst, 1)
	if err != nil {
		return err
	}
	io, err := w.readImageOperands(inst, 2)
	if err != nil {
		return err
	}
	args := append([]string{smp}, w.coordArgs(coord, t, false)...)
	if t.Image.Dim != spirv.Dim1D {
		switch {
		case io.bias != "":
			args = append(args, fmt.Sprintf("%sbias(%s)", Namespace, io.bias))
		case io.lod != "":
			args = append(args, fmt.Sprintf("%slevel(%s)", Namespace, io.lod))
		case io.dx != "":
			grad := "gradient2d"
			switch t.Image.Dim {
			case spirv.Dim3D:
				grad = "gradient3d"
			case spirv.DimCube:
				grad = "gradientcube"
			}
			args = append(args, fmt.Sprintf("%s%s(%s, %s)", Namespace, grad, io.dx, io.dy))
		}
	}
	if io.offset != "" {
		if t.Image.Dim == spirv.DimCube {
			return unsupported("offsets when sampling cube textures")
		}
		args = append(args, io.offset)
	}
	expr := fmt.Sprintf("%s.sample(%s)", paren(img), strings.Join(args, ", "))
	w.bindValue(inst.Result, inst.ResultType, w.depthResult(expr, t, rt))
	return nil
}

func (w *Writer) renderRead(inst *ir.Instruction, rt *ir.Type) error {
	imgID := ir.ID(inst.Operands[0])
	img, _, t, err := w.imageOf(imgID)
	if err != nil {
		return err
	}
	if w.fs.subpass[imgID] {
		w.bindValue(inst.Result, inst.ResultType, img)
		return nil
	}
	coord, err := w.operand(inst, 1)
	if err != nil {
		return err
	}
	io, err := w.readImageOperands(inst, 2)
	if err != nil {
		return err
	}
	var args []string
	if t.Image.Dim == spirv.DimSubpassData {
		frag, ok, err := w.requireBuiltin(inKey(spirv.BuiltInFragCoord))
		if err != nil {
			return err
		}
		if !ok {
			w.fs.values[inst.Result] = w.zeroValue(rt)
			return nil
		}
		args = append(args, fmt.Sprintf("uint2(%s.xy) + uint2(%s)", paren(frag), coord))
		if w.options.MultiviewEnabled {
			view, ok, err := w.requireBuiltin(inKey(spirv.BuiltInViewIndex))
			if err != nil {
				return err
			}
			if !ok {
				w.fs.values[inst.Result] = w.zeroValue(rt)
				return nil
			}
			args = append(args, view)
		}
	} else {
		args = w.coordArgs(coord, t, true)
	}
	switch {
	case io.sample != "":
		args = append(args, io.sample)
	case io.lod != "" && t.Image.Dim != spirv.DimBuffer && !t.Image.MS && t.Image.Sampled != 2:
		args = append(args, io.lod)
	}
	expr := fmt.Sprintf("%s.read(%s)", paren(img), strings.Join(args, ", "))
	w.bindValue(inst.Result, inst.ResultType, w.depthResult(expr, t, rt))
	return nil
}

func (w *Writer) renderWrite(inst *ir.Instruction) error {
	img, _, t, err := w.imageOf(ir.ID(inst.Operands[0]))
	if err != nil {
		return err
	}
	coord, err := w.operand(inst, 1)
	if err != nil {
		return err
	}
	texel, err := w.operand(inst, 2)
	if err != nil {
		return err
	}
	if tt := w.typeOf(ir.ID(inst.Operands[2])); tt != nil && tt.VecSize < 4 {
		texel = widen(texel, tt, max(tt.VecSize, 1), 4)
	}
	args := append([]string{texel}, w.coordArgs(coord, t, true)...)
	w.writeLine("%s.write(%s);", paren(img), strings.Join(args, ", "))
	return nil
}

func (w *Writer) renderGather(inst *ir.Instruction, rt *ir.Type) error {
	img, smp, t, err := w.imageOf(ir.ID(inst.Operands[0]))
	if err != nil {
		return err
	}
	if smp == "" {
		return invalid("gathering from %s without a sampler", img)
	}
	coord, err := w.operand(inst, 1)
	if err != nil {
		return err
	}
	comp, err := w.constantValue(ir.ID(inst.Operands[2]))
	if err != nil {
		return err
	}
	if comp > 3 {
		return invalid("gather component %d", comp)
	}
	io, err := w.readImageOperands(inst, 3)
	if err != nil {
		return err
	}
	args := append([]string{smp}, w.coordArgs(coord, t, false)...)
	if !t.Image.Depth && (io.offset != "" || comp != 0) {
		offset := io.offset
		if offset == "" {
			offset = "int2(0)"
		}
		args = append(args, offset, fmt.Sprintf("component::%c", "xyzw"[comp]))
	} else if io.offset != "" {
		args = append(args, io.offset)
	}
	expr := fmt.Sprintf("%s.gather(%s)", paren(img), strings.Join(args, ", "))
	w.bindValue(inst.Result, inst.ResultType, expr)
	return nil
}

func (w *Writer) renderQuerySize(inst *ir.Instruction, rt *ir.Type) error {
	img, _, t, err := w.imageOf(ir.ID(inst.Operands[0]))
	if err != nil {
		return err
	}
	lod := ""
	if inst.Op == spirv.OpImageQuerySizeLod {
		if lod, err = w.operand(inst, 1); err != nil {
			return err
		}
	}
	if t.Image.Dim == spirv.DimBuffer || t.Image.MS {
		lod = ""
	}
	call := func(q string) string { return fmt.Sprintf("%s.%s(%s)", paren(img), q, lod) }
	parts := []string{call("get_width")}
	switch t.Image.Dim {
	case spirv.Dim2D, spirv.DimCube, spirv.DimRect, spirv.DimSubpassData:
		parts = append(parts, call("get_height"))
	case spirv.Dim3D:
		parts = append(parts, call("get_height"), call("get_depth"))
	}
	if t.Image.Arrayed {
		parts = append(parts, paren(img)+".get_array_size()")
	}
	w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%s(%s)", w.typeName(rt.Self), strings.Join(parts, ", ")))
	return nil
}

// memFlags turns memory semantics into barrier flags.
func memFlags(semantics uint32) string {
	var flags []string
	if semantics&semanticsUBO != 0 {
		flags = append(flags, "mem_flags::mem_device")
	}
	if semantics&semanticsShared != 0 {
		flags = append(flags, "mem_flags::mem_threadgroup")
	}
	if semantics&semanticsImage != 0 {
		flags = append(flags, "mem_flags::mem_texture")
	}
	if len(flags) == 0 {
		return "mem_flags::mem_none"
	}
	return strings.Join(flags, " | ")
}

func (w *Writer) renderBarrier(inst *ir.Instruction) error {
	exec := uint32(0)
	semAt := 1
	if inst.Op == spirv.OpControlBarrier {
		var err error
		if exec, err = w.constantValue(ir.ID(inst.Operands[0])); err != nil {
			return err
		}
		semAt = 2
	}
	sem, err := w.constantValue(ir.ID(inst.Operands[semAt]))
	if err != nil {
		return err
	}
	if exec == scopeSubgroup {
		if err := w.options.require("simdgroup barriers", *tierSubgroups); err != nil {
			return err
		}
		w.writeLine("%ssimdgroup_barrier(%s);", Namespace, memFlags(sem))
		return nil
	}
	w.writeLine("%sthreadgroup_barrier(%s);", Namespace, memFlags(sem))
	return nil
}

// atomicFunctions maps read-modify-write atomics to their MSL function.
var atomicFunctions = map[spirv.Op]string{
	spirv.OpAtomicExchange: "atomic_exchange_explicit",
	spirv.OpAtomicIAdd:     "atomic_fetch_add_explicit",
	spirv.OpAtomicISub:     "atomic_fetch_sub_explicit",
	spirv.OpAtomicSMin:     "atomic_fetch_min_explicit",
	spirv.OpAtomicUMin:     "atomic_fetch_min_explicit",
	spirv.OpAtomicSMax:     "atomic_fetch_max_explicit",
	spirv.OpAtomicUMax:     "atomic_fetch_max_explicit",
	spirv.OpAtomicAnd:      "atomic_fetch_and_explicit",
	spirv.OpAtomicOr:       "atomic_fetch_or_explicit",
	spirv.OpAtomicXor:      "atomic_fetch_xor_explicit",
}

func (w *Writer) renderAtomic(inst *ir.Instruction) error {
	fs := w.fs
	p, err := w.pointerOf(ir.ID(inst.Operands[0]))
	if err != nil {
		return err
	}
	t := w.m.Type(p.typ)
	if t == nil || !t.IsScalar() || (t.Base != ir.BaseInt && t.Base != ir.BaseUInt) || t.Width != 32 {
		return unsupported("atomics on values other than 32-bit integers")
	}
	atomic := "atomic_int"
	if t.Base == ir.BaseUInt {
		atomic = "atomic_uint"
	}
	space := p.space
	if space == "" || space == "thread" {
		return unsupported("atomics on %s memory", space)
	}
	ptr := fmt.Sprintf("(%s %s*)&%s", space, atomic, p.expr)
	const order = "memory_order_relaxed"

	switch inst.Op {
	case spirv.OpAtomicLoad:
		w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("atomic_load_explicit(%s, %s)", ptr, order))
		return nil
	case spirv.OpAtomicStore:
		v, err := w.operand(inst, 3)
		if err != nil {
			return err
		}
		w.writeLine("atomic_store_explicit(%s, %s, %s);", ptr, v, order)
		return nil
	case spirv.OpAtomicIIncrement, spirv.OpAtomicIDecrement:
		fn := "atomic_fetch_add_explicit"
		if inst.Op == spirv.OpAtomicIDecrement {
			fn = "atomic_fetch_sub_explicit"
		}
		one := scalarLiteral(t, 1)
		w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%s(%s, %s, %s)", fn, ptr, one, order))
		return nil
	case spirv.OpAtomicCompareExchange:
		value, err := w.operand(inst, 4)
		if err != nil {
			return err
		}
		comparator, err := w.operand(inst, 5)
		if err != nil {
			return err
		}
		name := fs.name(inst.Result)
		if !fs.hoisted[inst.Result] {
			w.writeLine("%s %s;", w.typeName(inst.ResultType), name)
		}
		fs.values[inst.Result] = name
		w.writeLine("do {")
		w.pushIndent()
		w.writeLine("%s = %s;", name, comparator)
		w.popIndent()
		w.writeLine("} while (!atomic_compare_exchange_weak_explicit(%s, &%s, %s, %s, %s) && %s == %s);",
			ptr, name, value, order, order, name, paren(comparator))
		return nil
	}
	fn, ok := atomicFunctions[inst.Op]
	if !ok {
		return unsupported("atomic instruction %s", inst.Op)
	}
	v, err := w.operand(inst, 3)
	if err != nil {
		return err
	}
	w.bindValue(inst.Result, inst.ResultType, fmt.Sprintf("%s(%s, %s, %s)", fn, ptr, v, order))
	return nil
}

// Group operations of OpGroupNonUniformIAdd and FAdd.
const (
	groupReduce        = 0
	groupInclusiveScan = 1
	groupExclusiveScan = 2
)

func (w *Writer) renderSubgroup(inst *ir.Instruction) error {
	emulate := w.options.EmulateSubgroups
	if !emulate {
		if err := w.options.require(fmt.Sprintf("subgroup instruction %s", inst.Op), *tierSubgroups); err != nil {
			return err
		}
	}
	rt := w.m.Type(inst.ResultType)
	var expr string
	switch inst.Op {
	case spirv.OpGroupNonUniformElect:
		if emulate {
			lid, ok, err := w.requireBuiltin(inKey(spirv.BuiltInSubgroupLocalInvocationID))
			if err != nil {
				return err
			}
			if !ok {
				w.fs.values[inst.Result] = "true"
				return nil
			}
			expr = fmt.Sprintf("%s == 0u", paren(lid))
		} else {
			expr = "simd_is_first()"
		}
	case spirv.OpGroupNonUniformAll, spirv.OpGroupNonUniformAny:
		v, err := w.operand(inst, 1)
		if err != nil {
			return err
		}
		fn := "simd_all"
		if inst.Op == spirv.OpGroupNonUniformAny {
			fn = "simd_any"
		}
		expr = fmt.Sprintf("%s(%s)", fn, v)
		if emulate {
			expr = v
		}
	case spirv.OpGroupNonUniformBroadcast:
		v, err := w.operand(inst, 1)
		if err != nil {
			return err
		}
		id, err := w.operand(inst, 2)
		if err != nil {
			return err
		}
		expr = fmt.Sprintf("simd_broadcast(%s, ushort(%s))", v, id)
		if emulate {
			expr = v
		}
	case spirv.OpGroupNonUniformBallot:
		v, err := w.operand(inst, 1)
		if err != nil {
			return err
		}
		if emulate {
			expr = fmt.Sprintf("uint4(uint(%s), 0u, 0u, 0u)", v)
		} else {
			expr = fmt.Sprintf("uint4(as_type<uint2>((simd_vote::vote_t)simd_ballot(%s)), 0u, 0u)", v)
		}
	case spirv.OpGroupNonUniformIAdd, spirv.OpGroupNonUniformFAdd:
		v, err := w.operand(inst, 2)
		if err != nil {
			return err
		}
		switch inst.Operands[1] {
		case groupReduce:
			expr = fmt.Sprintf("simd_sum(%s)", v)
			if emulate {
				expr = v
			}
		case groupInclusiveScan:
			expr = fmt.Sprintf("simd_prefix_inclusive_sum(%s)", v)
			if emulate {
				expr = v
			}
		case groupExclusiveScan:
			expr = fmt.Sprintf("simd_prefix_exclusive_sum(%s)", v)
			if emulate {
				expr = w.zeroValue(rt)
			}
		default:
			return unsupported("group operation %d", inst.Operands[1])
		}
	default:
		return unsupported("subgroup instruction %s", inst.Op)
	}
	if scope, err := w.constantValue(ir.ID(inst.Operands[0])); err != nil || scope != scopeSubgroup {
		return unsupported("subgroup instruction %s outside subgroup scope", inst.Op)
	}
	w.bindValue(inst.Result, inst.ResultType, expr)
	return nil
}
