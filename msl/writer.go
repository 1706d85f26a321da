package msl

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/chewxy/math32"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// Writer generates the MSL source of one pass.
type Writer struct {
	pc      *passContext
	m       *ir.Module
	options *Options

	// Output buffer
	out strings.Builder

	// Current indentation level
	indent int

	// Name management
	namer       *namer
	names       map[ir.ID]string
	typeNames   map[ir.ID]string
	memberNames map[ir.ID][]string

	// Types the output declares, in dependency order.
	declared   []ir.ID
	forward    bool
	arrayReprs map[ir.ID]repr

	entryName string

	// Function context (set during function writing)
	fs *funcState

	// outcome collects the requirements emission discovers.
	outcome stepOutcome
}

func newWriter(pc *passContext) *Writer {
	return &Writer{
		pc:          pc,
		m:           pc.module,
		options:     pc.options,
		namer:       newNamer(),
		names:       make(map[ir.ID]string),
		typeNames:   make(map[ir.ID]string),
		memberNames: make(map[ir.ID][]string),
		arrayReprs:  make(map[ir.ID]repr),
		entryName:   entryName(pc.ep.Name),
	}
}

// String returns the generated MSL source code.
func (w *Writer) String() string {
	return w.out.String()
}

// writeModule generates the MSL source of the entry point. The outcome
// asks for another pass when a function needs a builtin that is not yet
// active or threaded to it; the source is discarded then.
func (w *Writer) writeModule() (stepOutcome, error) {
	w.writeHeader()
	w.reserveNames()

	w.collectTypes()
	w.nameTypes()
	w.propagateArrayReprs()
	w.writeTypes()
	w.writeInterfaceBlocks()

	if err := w.writeSpecConstants(); err != nil {
		return stepDone(), err
	}
	w.nameGlobals()
	if err := w.writeFunctions(); err != nil {
		return stepDone(), err
	}
	if err := w.writeEntryPoint(); err != nil {
		return stepDone(), err
	}
	return w.outcome, nil
}

// writeHeader writes the MSL file header.
func (w *Writer) writeHeader() {
	w.writeLine("#include <metal_stdlib>")
	w.writeLine("#include <simd/simd.h>")
	w.writeLine("")
	w.writeLine("using namespace metal;")
	w.writeLine("")
}

// reserveNames keeps names the entry point declares itself away from
// module entities.
func (w *Writer) reserveNames() {
	w.namer.reserve(w.entryName)
	for _, name := range blockVarNames {
		w.namer.reserve(name)
	}
	for _, name := range []string{"gl_in", "gl_out"} {
		w.namer.reserve(name)
	}
	for _, r := range builtinRecipes {
		w.namer.reserve(r.name)
		w.namer.reserve(r.name + "_in")
	}
	for a := AuxShaderInput; a <= AuxIndirectParams; a++ {
		w.namer.reserve(a.String())
	}
	for _, blk := range w.pc.blocks {
		w.namer.reserve(blk.typeName)
	}
	for _, set := range w.pc.descriptorSets() {
		w.namer.reserve(fmt.Sprintf("spvDescriptorSet%d", set))
		w.namer.reserve(fmt.Sprintf("spvDescriptorSetBuffer%d", set))
	}
}

// nameGlobals names the variables and functions reachable code uses
// before any function scope is opened, so locals never shadow them.
func (w *Writer) nameGlobals() {
	for _, id := range w.pc.reachable {
		if id != w.pc.entry.Self {
			w.globalName(id)
		}
	}
	for _, id := range w.pc.usedSorted() {
		if v := w.m.Variable(id); v != nil && !v.FunctionScope {
			w.globalName(id)
		}
	}
}

// globalName returns the MSL name of a module level entity.
func (w *Writer) globalName(id ir.ID) string {
	if n, ok := w.names[id]; ok {
		return n
	}
	base := w.m.Name(id)
	if base == "" {
		base = fmt.Sprintf("_%d", id)
	}
	n := w.namer.call(base)
	w.names[id] = n
	return n
}

// Output helpers

// write writes text to the output. If args are provided, uses fmt.Fprintf.
//
//nolint:goprintffuncname
func (w *Writer) write(format string, args ...any) {
	if len(args) == 0 {
		w.out.WriteString(format)
	} else {
		fmt.Fprintf(&w.out, format, args...)
	}
}

// writeLine writes a line with optional format args and a newline.
//
//nolint:goprintffuncname
func (w *Writer) writeLine(format string, args ...any) {
	if format == "" && len(args) == 0 {
		w.out.WriteByte('\n')
		return
	}
	w.writeIndent()
	w.write(format, args...)
	w.out.WriteByte('\n')
}

// writeIndent writes the current indentation.
func (w *Writer) writeIndent() {
	for i := 0; i < w.indent; i++ {
		w.out.WriteString("    ")
	}
}

func (w *Writer) pushIndent() {
	w.indent++
}

func (w *Writer) popIndent() {
	if w.indent > 0 {
		w.indent--
	}
}

// Constants

// writeSpecConstants declares the specialization constants reachable code
// uses as function constants with their defaults.
func (w *Writer) writeSpecConstants() error {
	var ids []ir.ID
	for id := range w.pc.used {
		if c := w.m.Constant(id); c != nil && c.Spec {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)
	for _, id := range ids {
		c := w.m.Constant(id)
		name := w.globalName(id)
		typ := w.typeName(c.Type)
		def, err := w.literal(c)
		if err != nil {
			return err
		}
		if !w.m.HasDecoration(id, spirv.DecorationSpecID) {
			w.writeLine("constant %s %s = %s;", typ, name, def)
			continue
		}
		specID := w.m.Decoration(id, spirv.DecorationSpecID)
		w.writeLine("constant %s %s_tmp [[function_constant(%d)]];", typ, name, specID)
		w.writeLine("constant %s %s = is_function_constant_defined(%s_tmp) ? %s_tmp : %s;", typ, name, name, name, def)
	}
	w.writeLine("")
	return nil
}

// constantExpr returns the expression of a constant, undef or spec
// constant.
func (w *Writer) constantExpr(id ir.ID) (string, bool, error) {
	switch e := w.m.Entity(id).(type) {
	case *ir.Constant:
		if e.Spec {
			return w.globalName(id), true, nil
		}
		s, err := w.literal(e)
		return s, true, err
	case *ir.Undef:
		return w.zeroValue(w.m.Type(e.Type)), true, nil
	}
	return "", false, nil
}

// zeroValue returns the zero value of t.
func (w *Writer) zeroValue(t *ir.Type) string {
	if t.IsScalar() {
		return zeroLiteral(t)
	}
	return w.typeName(t.Self) + "{}"
}

// literal renders the default value of a constant.
func (w *Writer) literal(c *ir.Constant) (string, error) {
	t := w.m.Type(c.Type)
	if t == nil {
		return "", invalid("constant %d has no type", c.Self)
	}
	if c.Null {
		return w.zeroValue(t), nil
	}
	if len(c.Composite) == 0 {
		if !t.IsScalar() {
			return "", invalid("constant %d of type %d has no constituents", c.Self, t.Self)
		}
		return scalarLiteral(t, c.Scalar), nil
	}
	parts := make([]string, len(c.Composite))
	for i, id := range c.Composite {
		s, ok, err := w.constantExpr(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", invalid("constituent %d of constant %d is not a constant", id, c.Self)
		}
		parts[i] = s
	}
	switch {
	case t.IsArray():
		return w.arrayInit(t, parts), nil
	case t.IsStruct():
		return w.structInit(t, parts), nil
	}
	return fmt.Sprintf("%s(%s)", w.typeName(t.Self), strings.Join(parts, ", ")), nil
}

// scalarLiteral renders the literal bits of a scalar constant.
func scalarLiteral(t *ir.Type, bits uint64) string {
	switch t.Base {
	case ir.BaseBool:
		if bits != 0 {
			return "true"
		}
		return "false"
	case ir.BaseFloat:
		switch t.Width {
		case 16:
			return fmt.Sprintf("half(%s)", float32Literal(halfToFloat32(uint16(bits))))
		case 64:
			return float64Literal(math.Float64frombits(bits))
		}
		return float32Literal(math32.Float32frombits(uint32(bits)))
	case ir.BaseUInt:
		switch t.Width {
		case 64:
			return strconv.FormatUint(bits, 10) + "ul"
		case 8, 16:
			return fmt.Sprintf("%s(%d)", scalarName(t.Base, t.Width), bits)
		}
		return strconv.FormatUint(uint64(uint32(bits)), 10) + "u"
	}
	switch t.Width {
	case 64:
		v := int64(bits)
		if v == math.MinInt64 {
			return "(-9223372036854775807l - 1)"
		}
		return strconv.FormatInt(v, 10) + "l"
	case 8, 16:
		return fmt.Sprintf("%s(%d)", scalarName(t.Base, t.Width), signExtend(bits, t.Width))
	}
	v := int32(uint32(bits))
	if v == math.MinInt32 {
		return "(-2147483647 - 1)"
	}
	return strconv.FormatInt(int64(v), 10)
}

func signExtend(bits uint64, width uint32) int64 {
	shift := 64 - width
	return int64(bits<<shift) >> shift
}

// float32Literal renders f so that it reads back as the same float.
func float32Literal(f float32) string {
	switch {
	case math32.IsNaN(f):
		return "NAN"
	case math32.IsInf(f, 1):
		return "INFINITY"
	case math32.IsInf(f, -1):
		return "(-INFINITY)"
	case f == math32.Trunc(f) && math32.Abs(f) < 1e7:
		return strconv.FormatFloat(float64(f), 'f', 1, 32)
	}
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func float64Literal(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NAN"
	case math.IsInf(f, 1):
		return "INFINITY"
	case math.IsInf(f, -1):
		return "(-INFINITY)"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// halfToFloat32 widens IEEE half precision bits.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff
	switch exp {
	case 0:
		if frac == 0 {
			return math32.Float32frombits(sign)
		}
		// Subnormal: renormalize.
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		return math32.Float32frombits(sign | e<<23 | frac<<13)
	case 0x1f:
		return math32.Float32frombits(sign | 0xff<<23 | frac<<13)
	}
	return math32.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
}

// ioBindsSorted returns the variables with an interface binding in ID
// order.
func (pc *passContext) ioBindsSorted() []ir.ID {
	ids := make([]ir.ID, 0, len(pc.ioBinds))
	for id := range pc.ioBinds {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
