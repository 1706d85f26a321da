package msl

import (
	"fmt"
	"slices"

	"github.com/gogpu/spvmsl/ir"
	"github.com/gogpu/spvmsl/spirv"
)

// flowFrame is one enclosing loop or switch of the block being written.
type flowFrame struct {
	loop   bool
	header ir.ID
	merge  ir.ID
	cont   ir.ID

	// inContinue is set while the continue construct of a loop is written.
	inContinue bool

	// cases are the distinct targets of a switch in block order; current
	// is the one being written.
	cases   []ir.ID
	current int
}

// jumpKind is how a branch leaves the structured region being written.
type jumpKind uint8

const (
	jumpNone jumpKind = iota
	jumpBreak
	jumpContinue
	jumpFallthrough
)

// classify reports whether a branch to target leaves the current region
// through a break, a continue or a switch fallthrough.
func (fs *funcState) classify(target ir.ID) (jumpKind, error) {
	last := len(fs.frames) - 1
	for i := last; i >= 0; i-- {
		f := fs.frames[i]
		if target == f.merge {
			if i != last {
				return jumpNone, unsupported("break out of a construct other than the innermost")
			}
			return jumpBreak, nil
		}
		if !f.loop {
			if k := slices.Index(f.cases, target); k >= 0 && k != f.current {
				if i != last || k != f.current+1 {
					return jumpNone, unsupported("switch case falls through to a case that does not follow it")
				}
				return jumpFallthrough, nil
			}
			continue
		}
		if target == f.cont && !f.inContinue || target == f.header {
			return jumpContinue, nil
		}
		// Only the innermost loop is reachable with continue.
		for _, outer := range fs.frames[:i] {
			if outer.loop && (target == outer.cont || target == outer.header) {
				return jumpNone, unsupported("continue of a loop other than the innermost")
			}
		}
		return jumpNone, nil
	}
	return jumpNone, nil
}

// writeJump writes the statement for a classified branch.
func (w *Writer) writeJump(kind jumpKind) {
	switch kind {
	case jumpBreak:
		w.writeLine("break;")
	case jumpContinue:
		w.writeLine("continue;")
	}
}

// writeRange writes the blocks from start up to, not including, stop. It
// returns the block where straight-line flow ended: stop, a fallthrough
// case, or zero when every path left through a jump or a return.
func (w *Writer) writeRange(start, stop ir.ID) (ir.ID, error) {
	fs := w.fs
	cur := start
	for cur != 0 {
		if cur == stop {
			return stop, nil
		}
		kind, err := fs.classify(cur)
		if err != nil {
			return 0, err
		}
		if kind == jumpFallthrough {
			return cur, nil
		}
		if kind != jumpNone {
			w.writeJump(kind)
			return 0, nil
		}
		if fs.visited[cur] {
			return 0, unsupported("unstructured control flow into block %d of %s", cur, fs.fnName)
		}
		b := w.m.Block(cur)
		if b == nil {
			return 0, invalid("branch to %d, which is not a block", cur)
		}
		if b.Merge == ir.MergeLoop {
			cur, err = w.writeLoop(b)
		} else {
			fs.visited[cur] = true
			cur, err = w.writeBlock(b, stop)
		}
		if err != nil {
			return 0, err
		}
	}
	return 0, nil
}

// writeBlock writes the instructions and the terminator of b and returns
// the block straight-line flow continues with.
func (w *Writer) writeBlock(b *ir.Block, stop ir.ID) (ir.ID, error) {
	scope := &Scope{w: w}
	for i := range b.Ops {
		inst := &b.Ops[i]
		switch inst.Op {
		case spirv.OpNop, spirv.OpSelectionMerge, spirv.OpLoopMerge:
			continue
		}
		if err := w.pc.renderer.RenderInstruction(scope, inst); err != nil {
			return 0, err
		}
	}
	return w.writeTerminator(b, stop)
}

func (w *Writer) writeTerminator(b *ir.Block, stop ir.ID) (ir.ID, error) {
	switch b.Terminator {
	case ir.TermDirect:
		return b.Next, nil
	case ir.TermSelect:
		if b.Merge == ir.MergeSelection {
			return w.writeIf(b)
		}
		return w.writeBranchConditional(b, stop)
	case ir.TermMultiSelect:
		if b.Merge != ir.MergeSelection {
			return 0, unsupported("switch without a merge block in %s", w.fs.fnName)
		}
		return w.writeSwitch(b)
	case ir.TermReturn:
		return 0, w.writeReturn(b)
	case ir.TermKill:
		w.writeLine("%sdiscard_fragment();", Namespace)
		return 0, nil
	case ir.TermUnreachable:
		return 0, nil
	}
	return 0, invalid("block %d of %s has no terminator", b.Self, w.fs.fnName)
}

// writeIf writes a selection construct and continues at its merge.
func (w *Writer) writeIf(b *ir.Block) (ir.ID, error) {
	cond, err := w.valueOf(b.Condition)
	if err != nil {
		return 0, err
	}
	merge := b.MergeBlock
	accept, reject := b.TrueBlock, b.FalseBlock
	if accept == merge && reject != merge {
		cond = fmt.Sprintf("!(%s)", cond)
		accept, reject = reject, accept
	}
	w.writeLine("if (%s) {", cond)
	w.pushIndent()
	if _, err := w.writeRange(accept, merge); err != nil {
		return 0, err
	}
	w.popIndent()
	if reject != merge {
		w.writeLine("} else {")
		w.pushIndent()
		if _, err := w.writeRange(reject, merge); err != nil {
			return 0, err
		}
		w.popIndent()
	}
	w.writeLine("}")
	return merge, nil
}

// writeBranchConditional writes a conditional branch without a merge,
// where at most one target continues straight-line flow.
func (w *Writer) writeBranchConditional(b *ir.Block, stop ir.ID) (ir.ID, error) {
	fs := w.fs
	if b.TrueBlock == b.FalseBlock {
		return b.TrueBlock, nil
	}
	cond, err := w.valueOf(b.Condition)
	if err != nil {
		return 0, err
	}
	jumpOf := func(target ir.ID) (jumpKind, error) {
		if target == stop {
			return jumpNone, nil
		}
		return fs.classify(target)
	}
	tk, err := jumpOf(b.TrueBlock)
	if err != nil {
		return 0, err
	}
	fk, err := jumpOf(b.FalseBlock)
	if err != nil {
		return 0, err
	}
	if tk == jumpFallthrough || fk == jumpFallthrough {
		return 0, unsupported("conditional fallthrough between switch cases")
	}
	switch {
	case tk != jumpNone && fk != jumpNone:
		w.writeLine("if (%s) {", cond)
		w.pushIndent()
		w.writeJump(tk)
		w.popIndent()
		w.writeLine("} else {")
		w.pushIndent()
		w.writeJump(fk)
		w.popIndent()
		w.writeLine("}")
		return 0, nil
	case tk != jumpNone:
		w.writeLine("if (%s) {", cond)
		w.pushIndent()
		w.writeJump(tk)
		w.popIndent()
		w.writeLine("}")
		return b.FalseBlock, nil
	case fk != jumpNone:
		w.writeLine("if (!(%s)) {", cond)
		w.pushIndent()
		w.writeJump(fk)
		w.popIndent()
		w.writeLine("}")
		return b.TrueBlock, nil
	}
	return 0, unsupported("conditional branch without a merge block in %s", fs.fnName)
}

// writeLoop writes a loop construct and continues at its merge. The
// continue construct runs at the top of every iteration but the first,
// so continue statements in the body reach it.
func (w *Writer) writeLoop(h *ir.Block) (ir.ID, error) {
	fs := w.fs
	frame := &flowFrame{loop: true, header: h.Self, merge: h.MergeBlock, cont: h.ContinueBlock}
	flag := ""
	if frame.cont != frame.header {
		flag = fs.namer.call("loop_init")
		w.writeLine("bool %s = true;", flag)
	}
	w.writeLine("while (true) {")
	w.pushIndent()
	fs.frames = append(fs.frames, frame)
	defer func() { fs.frames = fs.frames[:len(fs.frames)-1] }()

	if flag != "" {
		w.writeLine("if (!%s) {", flag)
		w.pushIndent()
		frame.inContinue = true
		if _, err := w.writeRange(frame.cont, frame.header); err != nil {
			return 0, err
		}
		frame.inContinue = false
		w.popIndent()
		w.writeLine("}")
		w.writeLine("%s = false;", flag)
	}

	fs.visited[h.Self] = true
	next, err := w.writeBlock(h, frame.cont)
	if err != nil {
		return 0, err
	}
	if next != 0 && next != frame.cont {
		if _, err := w.writeRange(next, frame.cont); err != nil {
			return 0, err
		}
	}
	w.popIndent()
	w.writeLine("}")
	return frame.merge, nil
}

// writeSwitch writes a multi-way selection and continues at its merge.
func (w *Writer) writeSwitch(b *ir.Block) (ir.ID, error) {
	fs := w.fs
	m := w.m
	sel, err := w.valueOf(b.Condition)
	if err != nil {
		return 0, err
	}
	signed := false
	if t := m.Type(fs.types[b.Condition]); t != nil {
		signed = t.Base == ir.BaseInt
	} else if c := m.Constant(b.Condition); c != nil {
		signed = m.Type(c.Type).Base == ir.BaseInt
	}
	merge := b.MergeBlock

	// Distinct targets in block order; the merge never gets a body.
	labels := make(map[ir.ID][]string)
	var targets []ir.ID
	add := func(target ir.ID, label string) {
		if _, ok := labels[target]; !ok {
			targets = append(targets, target)
		}
		labels[target] = append(labels[target], label)
	}
	for _, c := range b.Cases {
		if signed {
			add(c.Block, fmt.Sprintf("case %d:", int32(c.Value)))
		} else {
			add(c.Block, fmt.Sprintf("case %du:", c.Value))
		}
	}
	if b.Default != 0 && b.Default != merge {
		add(b.Default, "default:")
	}
	order := make(map[ir.ID]int, len(fs.fn.Blocks))
	for i, id := range fs.fn.Blocks {
		order[id] = i
	}
	slices.SortStableFunc(targets, func(x, y ir.ID) int { return order[x] - order[y] })

	frame := &flowFrame{merge: merge}
	for _, t := range targets {
		if t != merge {
			frame.cases = append(frame.cases, t)
		}
	}
	fs.frames = append(fs.frames, frame)
	defer func() { fs.frames = fs.frames[:len(fs.frames)-1] }()

	w.writeLine("switch (%s) {", sel)
	for _, target := range targets {
		for _, label := range labels[target] {
			w.writeLine("%s", label)
		}
		w.pushIndent()
		if target == merge {
			w.writeLine("break;")
			w.popIndent()
			continue
		}
		frame.current = slices.Index(frame.cases, target)
		w.writeLine("{")
		w.pushIndent()
		ended, err := w.writeRange(target, merge)
		if err != nil {
			return 0, err
		}
		w.popIndent()
		w.writeLine("}")
		if ended == merge {
			w.writeLine("break;")
		}
		w.popIndent()
	}
	w.writeLine("}")
	return merge, nil
}

// writeReturn leaves the function. The entry function copies its outputs
// back first.
func (w *Writer) writeReturn(b *ir.Block) error {
	fs := w.fs
	if fs.entry {
		if err := w.writeEpilogue(); err != nil {
			return err
		}
		if fs.returnsOut {
			w.writeLine("return out;")
		} else {
			w.writeLine("return;")
		}
		return nil
	}
	if b.ReturnValue == 0 {
		w.writeLine("return;")
		return nil
	}
	v, err := w.valueOf(b.ReturnValue)
	if err != nil {
		return err
	}
	w.writeLine("return %s;", v)
	return nil
}
