// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"go.uber.org/zap"

	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
)

// flow translates the block-structured control flow instructions.
func (g *generator) flow(ins *d3d9.Instruction) error {
	switch ins.Opcode {
	case d3d9.OpIf:
		cond, nonZero, err := g.condition(ins, 0)
		if err != nil {
			return err
		}
		g.b.EmitTest(dxbc.OpIf, nonZero, cond)
		g.depth++

	case d3d9.OpIfc:
		cond, err := g.comparison(ins)
		if err != nil {
			return err
		}
		g.b.EmitTest(dxbc.OpIf, true, cond)
		g.depth++

	case d3d9.OpElse:
		if g.depth == 0 {
			return NewError(MalformedStream, "else outside if")
		}
		g.b.Emit(dxbc.OpElse)

	case d3d9.OpEndIf:
		if g.depth == 0 {
			return NewError(MalformedStream, "endif outside if")
		}
		g.depth--
		g.b.Emit(dxbc.OpEndIf)

	case d3d9.OpLoop, d3d9.OpRep:
		return g.beginLoop(ins)

	case d3d9.OpEndLoop, d3d9.OpEndRep:
		f, err := g.loops.pop(ins.Opcode == d3d9.OpEndLoop, ins.Offset)
		if err != nil {
			return err
		}
		counter := dxbc.Temp(f.slot)
		g.b.Emit(dxbc.OpIAdd, counter.WithMask(dxbc.MaskX), counter.Select(0), dxbc.ScalarU32(^uint32(0)))
		if f.loop {
			g.b.Emit(dxbc.OpIAdd, counter.WithMask(dxbc.MaskY), counter.Select(1), counter.Select(2))
		}
		g.b.Emit(dxbc.OpEndLoop)
		g.depth--

	case d3d9.OpBreak:
		if g.loops.depth() == 0 {
			return NewError(MalformedStream, "break outside loop")
		}
		g.b.Emit(dxbc.OpBreak)
		g.skipping = true

	case d3d9.OpBreakc:
		if g.loops.depth() == 0 {
			return NewError(MalformedStream, "break_comp outside loop")
		}
		cond, err := g.comparison(ins)
		if err != nil {
			return err
		}
		g.b.EmitTest(dxbc.OpBreakc, true, cond)

	case d3d9.OpBreakp:
		if g.loops.depth() == 0 {
			return NewError(MalformedStream, "breakp outside loop")
		}
		cond, nonZero, err := g.condition(ins, 0)
		if err != nil {
			return err
		}
		g.b.EmitTest(dxbc.OpBreakc, nonZero, cond)

	case d3d9.OpCall:
		if len(ins.Src) < 1 {
			return NewError(MalformedStream, "call without label")
		}
		g.b.Emit(dxbc.OpCall, dxbc.Label(ins.Src[0].Num))

	case d3d9.OpCallNZ:
		if len(ins.Src) < 2 {
			return NewError(MalformedStream, "callnz needs a label and a condition")
		}
		cond, nonZero, err := g.condition(ins, 1)
		if err != nil {
			return err
		}
		g.b.EmitTest(dxbc.OpCallc, nonZero, cond, dxbc.Label(ins.Src[0].Num))

	case d3d9.OpLabel:
		if len(ins.Src) < 1 {
			return NewError(MalformedStream, "label without register")
		}
		if g.depth != 0 {
			return NewError(MalformedStream, "label inside a block")
		}
		if !g.subroutine {
			g.subroutine = true
			if !g.returned {
				if err := g.epilogue(true); err != nil {
					return err
				}
				g.b.Emit(dxbc.OpRet)
			}
		}
		g.b.Emit(dxbc.OpLabel, dxbc.Label(ins.Src[0].Num))

	case d3d9.OpRet:
		if !g.subroutine {
			// Returning from the main program runs the epilogue first. A
			// nested return gets its own copy; the fall-through path keeps
			// the final one.
			if err := g.epilogue(g.depth == 0); err != nil {
				return err
			}
			if g.depth == 0 {
				g.returned = true
			}
		}
		g.b.Emit(dxbc.OpRet)
	}
	return nil
}

// condition resolves a boolean or predicate source used as a branch
// condition. Predicates honor the not modifier by testing for zero.
func (g *generator) condition(ins *d3d9.Instruction, i int) (dxbc.Operand, bool, error) {
	if i >= len(ins.Src) {
		return dxbc.Operand{}, false, Errorf(MalformedStream, "%s without condition", ins.Opcode)
	}
	s := ins.Src[i]
	o, err := g.register(s.Register, nil, 0)
	if err != nil {
		return dxbc.Operand{}, false, err
	}
	switch s.Type {
	case d3d9.RegConstBool:
		return o, true, nil
	case d3d9.RegPredicate:
		return sel(applySwizzle(o, s.Swizzle), 0), s.Modifier != d3d9.SrcModNot, nil
	}
	return dxbc.Operand{}, false, Errorf(MalformedStream, "%s condition must be a boolean or predicate register", ins.Opcode)
}

// comparison evaluates the scalar comparison of ifc and breakc into the
// first macro temp.
func (g *generator) comparison(ins *d3d9.Instruction) (dxbc.Operand, error) {
	if len(ins.Src) < 2 {
		return dxbc.Operand{}, Errorf(MalformedStream, "%s needs 2 sources", ins.Opcode)
	}
	a, err := g.source(ins, 0)
	if err != nil {
		return dxbc.Operand{}, err
	}
	b, err := g.source(ins, 1)
	if err != nil {
		return dxbc.Operand{}, err
	}
	op, x, y, err := compare(ins.Comparison(), sel(a, 0), sel(b, 0))
	if err != nil {
		return dxbc.Operand{}, err
	}
	t := g.scratch(0)
	g.b.Emit(op, t.WithMask(dxbc.MaskX), x, y)
	return t.Select(0), nil
}

// beginLoop opens loop and rep. The counter temp holds the remaining
// iteration count in x and, for loop, aL in y and its step in z, all as
// integers loaded from the i# constant.
func (g *generator) beginLoop(ins *d3d9.Instruction) error {
	isLoop := ins.Opcode == d3d9.OpLoop
	ci := 0
	if isLoop {
		ci = 1
	}
	if ci >= len(ins.Src) {
		return Errorf(MalformedStream, "%s without an integer constant", ins.Opcode)
	}
	s := ins.Src[ci]
	if s.Type != d3d9.RegConstInt {
		return Errorf(MalformedStream, "%s must read an integer constant", ins.Opcode)
	}
	iconst, err := g.register(s.Register, nil, 0)
	if err != nil {
		return err
	}
	f, err := g.loops.push(g.desc.Registers, isLoop, ins.Offset)
	if err != nil {
		return err
	}
	counter := dxbc.Temp(f.slot)
	if isLoop {
		g.b.Emit(dxbc.OpMov, counter.WithMask(dxbc.MaskXYZ), iconst)
	} else {
		g.b.Emit(dxbc.OpMov, counter.WithMask(dxbc.MaskX), sel(iconst, 0))
	}
	g.b.Emit(dxbc.OpLoop)
	g.b.EmitTest(dxbc.OpBreakc, false, counter.Select(0))
	g.depth++
	g.log.Debug("loop", zap.Int("depth", g.loops.depth()), zap.Uint32("counter", f.slot))
	return nil
}
