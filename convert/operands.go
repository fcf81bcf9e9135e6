// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"math"

	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
)

// swz returns o reading components x, y, z, w of its current selection.
// Immediates are permuted in place since they carry no selection.
func swz(o dxbc.Operand, x, y, z, w uint8) dxbc.Operand {
	if o.Type == dxbc.OperandImm32 {
		if o.Components == 1 {
			return o
		}
		imm := o.Imm
		o.Imm = [4]uint32{imm[x&3], imm[y&3], imm[z&3], imm[w&3]}
		return o
	}
	return o.WithSwizzle(o.Component(int(x)), o.Component(int(y)), o.Component(int(z)), o.Component(int(w)))
}

// rep returns o with lane c replicated.
func rep(o dxbc.Operand, c uint8) dxbc.Operand {
	return swz(o, c, c, c, c)
}

// sel returns lane c of o as a scalar operand.
func sel(o dxbc.Operand, c uint8) dxbc.Operand {
	if o.Type == dxbc.OperandImm32 {
		s := dxbc.ScalarU32(o.Imm[c&3])
		if o.Components == 1 {
			s = dxbc.ScalarU32(o.Imm[0])
		}
		s.Modifier = o.Modifier
		return s
	}
	return o.Select(o.Component(int(c)))
}

// neg negates o. Immediates are folded.
func neg(o dxbc.Operand) dxbc.Operand {
	if o.Type == dxbc.OperandImm32 && o.Modifier == dxbc.ModNone {
		for i := range o.Imm {
			o.Imm[i] ^= 1 << 31
		}
		return o
	}
	return o.Neg()
}

// abs returns |o|. Immediates are folded.
func abs(o dxbc.Operand) dxbc.Operand {
	if o.Type == dxbc.OperandImm32 && o.Modifier == dxbc.ModNone {
		for i := range o.Imm {
			o.Imm[i] &^= 1 << 31
		}
		return o
	}
	return o.Abs()
}

func splat(f float32) dxbc.Operand {
	return dxbc.SplatF32(f)
}

func splatU(u uint32) dxbc.Operand {
	return dxbc.ImmU32(u, u, u, u)
}

// applySwizzle applies a legacy swizzle on top of o's selection.
func applySwizzle(o dxbc.Operand, s d3d9.Swizzle) dxbc.Operand {
	return swz(o, s.Component(0), s.Component(1), s.Component(2), s.Component(3))
}

// scratch returns macro temp i.
func (g *generator) scratch(i uint32) dxbc.Operand {
	return dxbc.Temp(scratchMacro + i)
}

func (g *generator) slot(k RegisterKey) (uint32, error) {
	i, ok := g.desc.Registers.Lookup(k).Index()
	if !ok {
		return 0, Errorf(InternalError, "register %s was not allocated", k)
	}
	return i, nil
}

func (g *generator) temp(k RegisterKey) (dxbc.Operand, error) {
	i, err := g.slot(k)
	if err != nil {
		return dxbc.Operand{}, err
	}
	return dxbc.Temp(i), nil
}

// relative returns the scalar index operand of a relative address.
func (g *generator) relative(rel *d3d9.RelativeAddress) (dxbc.Operand, error) {
	if rel.Register.Type == d3d9.RegLoop {
		f, ok := g.loops.current()
		if !ok {
			return dxbc.Operand{}, NewError(MalformedStream, "aL used outside a loop")
		}
		return dxbc.Temp(f.slot).Select(1), nil
	}
	addr, err := g.temp(RegisterKey{Category: CatAddress})
	if err != nil {
		return dxbc.Operand{}, err
	}
	return addr.Select(rel.Component), nil
}

// register resolves a legacy register, offset by row for matrix operands,
// to a target operand with the identity selection.
func (g *generator) register(r d3d9.Register, rel *d3d9.RelativeAddress, row uint32) (dxbc.Operand, error) {
	d := g.desc
	v := d.Version
	r.Num += row

	var index dxbc.Operand
	if rel != nil {
		var err error
		if index, err = g.relative(rel); err != nil {
			return dxbc.Operand{}, err
		}
	}

	switch r.Type {
	case d3d9.RegTemp:
		return g.temp(RegisterKey{Category: CatTemp, Num: r.Num})

	case d3d9.RegInput:
		if d.RelativeInputs {
			o := dxbc.IndexableTemp(0, r.Num)
			if rel != nil {
				o = o.Relative(1, index)
			}
			return o, nil
		}
		if d.Pixel() {
			reg, ok := d.InputMap[r]
			if !ok {
				return dxbc.Operand{}, Errorf(InternalError, "input v%d was not bound", r.Num)
			}
			return dxbc.Input(reg), nil
		}
		if _, ok := d.Conversions[r.Num]; ok {
			return g.temp(RegisterKey{Category: CatInputStage, Num: r.Num})
		}
		return dxbc.Input(r.Num), nil

	case d3d9.RegConst, d3d9.RegConst2, d3d9.RegConst3, d3d9.RegConst4:
		idx := floatConstIndex(r)
		if rel == nil {
			if vals, ok := d.InlineValue(ConstFloat, idx); ok {
				return dxbc.ImmU32(vals[0], vals[1], vals[2], vals[3]), nil
			}
		}
		o := dxbc.ConstBuffer(CBFloat, idx)
		if rel != nil {
			o = o.Relative(1, index)
		}
		return o, nil

	case d3d9.RegConstInt:
		if vals, ok := d.InlineValue(ConstInt, r.Num); ok {
			return dxbc.ImmU32(vals[0], vals[1], vals[2], vals[3]), nil
		}
		return dxbc.ConstBuffer(CBInt, r.Num), nil

	case d3d9.RegConstBool:
		if vals, ok := d.InlineValue(ConstBool, r.Num); ok {
			return dxbc.ScalarU32(-vals[0]), nil
		}
		return dxbc.ConstBuffer(CBBool, r.Num/4).Select(uint8(r.Num % 4)), nil

	case d3d9.RegAddr: // RegTexture in pixel shaders
		if !d.Pixel() {
			return g.temp(RegisterKey{Category: CatAddress})
		}
		if legacyPixel(v) {
			return g.temp(RegisterKey{Category: CatTexture, Num: r.Num})
		}
		reg, ok := d.InputMap[r]
		if !ok {
			return dxbc.Operand{}, Errorf(InternalError, "texture coordinate t%d was not bound", r.Num)
		}
		return dxbc.Input(reg), nil

	case d3d9.RegRastOut, d3d9.RegAttrOut, d3d9.RegOutput:
		if d.RelativeOutputs {
			o := dxbc.IndexableTemp(1, r.Num)
			if rel != nil {
				o = o.Relative(1, index)
			}
			return o, nil
		}
		return g.temp(RegisterKey{Category: CatOutput, Num: outputKey(r)})

	case d3d9.RegColorOut:
		return g.temp(RegisterKey{Category: CatColorOut, Num: r.Num})
	case d3d9.RegDepthOut:
		return g.temp(RegisterKey{Category: CatDepth})
	case d3d9.RegPredicate:
		return g.temp(RegisterKey{Category: CatPredicate})
	case d3d9.RegSampler:
		return dxbc.Sampler(r.Num), nil
	case d3d9.RegLabel:
		return dxbc.Label(r.Num), nil

	case d3d9.RegLoop:
		f, ok := g.loops.current()
		if !ok {
			return dxbc.Operand{}, NewError(MalformedStream, "aL used outside a loop")
		}
		return dxbc.Temp(f.slot).Replicate(1), nil

	case d3d9.RegMiscType:
		if r.Num == d3d9.MiscFace {
			return g.temp(RegisterKey{Category: CatInputStage, Num: stageFace})
		}
		return g.temp(RegisterKey{Category: CatInputStage, Num: stagePosition})
	}
	return dxbc.Operand{}, Errorf(MalformedStream, "register type %d cannot be translated", r.Type)
}

// source resolves source i of ins with its swizzle and modifier applied.
// Modifiers the target cannot express are staged in the modifier temp of
// that source position.
func (g *generator) source(ins *d3d9.Instruction, i int) (dxbc.Operand, error) {
	return g.sourceRow(ins, i, 0)
}

func (g *generator) sourceRow(ins *d3d9.Instruction, i int, row uint32) (dxbc.Operand, error) {
	s := ins.Src[i]
	o, err := g.register(s.Register, s.Relative, row)
	if err != nil {
		return dxbc.Operand{}, err
	}
	if s.Type == d3d9.RegLoop {
		// aL is an integer; arithmetic reads it as float.
		t := dxbc.Temp(scratchModifier + uint32(i))
		g.b.Emit(dxbc.OpItoF, t.WithMask(dxbc.MaskXYZW), o)
		o = t
	}
	if s.Type != d3d9.RegConstBool && s.Type != d3d9.RegSampler && s.Type != d3d9.RegLabel {
		o = applySwizzle(o, s.Swizzle)
	}
	return g.modify(o, s.Modifier, i), nil
}

// modify applies a legacy source modifier.
func (g *generator) modify(o dxbc.Operand, m d3d9.SrcModifier, pos int) dxbc.Operand {
	t := dxbc.Temp(scratchModifier + uint32(pos&3))
	all := t.WithMask(dxbc.MaskXYZW)
	switch m {
	case d3d9.SrcModNeg:
		return neg(o)
	case d3d9.SrcModAbs:
		return abs(o)
	case d3d9.SrcModAbsNeg:
		return neg(abs(o))
	case d3d9.SrcModBias:
		g.b.Emit(dxbc.OpAdd, all, o, splat(-0.5))
	case d3d9.SrcModBiasNeg:
		g.b.Emit(dxbc.OpAdd, all, neg(o), splat(0.5))
	case d3d9.SrcModSign:
		g.b.Emit(dxbc.OpMad, all, o, splat(2), splat(-1))
	case d3d9.SrcModSignNeg:
		g.b.Emit(dxbc.OpMad, all, o, splat(-2), splat(1))
	case d3d9.SrcModComp:
		g.b.Emit(dxbc.OpAdd, all, neg(o), splat(1))
	case d3d9.SrcModX2:
		g.b.Emit(dxbc.OpAdd, all, o, o)
	case d3d9.SrcModX2Neg:
		g.b.Emit(dxbc.OpMul, all, o, splat(-2))
	case d3d9.SrcModDZ:
		g.b.Emit(dxbc.OpDiv, all, o, rep(o, 2))
	case d3d9.SrcModDW:
		g.b.Emit(dxbc.OpDiv, all, o, rep(o, 3))
	default:
		return o
	}
	return t
}

// output is the destination of one translated instruction. Computation goes
// to op; finish moves it to real when the result is staged.
type output struct {
	real   dxbc.Operand
	op     dxbc.Operand
	mask   uint8
	sat    bool
	staged bool
}

// destination resolves the destination of ins. The result is staged when
// it is predicated, shifted, or must not become visible before a coissued
// partner has read its sources.
func (g *generator) destination(ins *d3d9.Instruction) (output, error) {
	dst := ins.Dest
	real, err := g.register(dst.Register, dst.Relative, 0)
	if err != nil {
		return output{}, err
	}
	mask := uint8(dst.Mask)
	out := output{real: real.WithMask(mask), mask: mask, sat: dst.Saturate()}
	switch {
	case g.coissueStage:
		out.op = dxbc.Temp(scratchCoissue).WithMask(mask)
		out.staged = true
	case ins.Predicated || dst.Shift != 0:
		out.op = dxbc.Temp(scratchResult).WithMask(mask)
		out.staged = true
	default:
		out.op = out.real
	}
	return out, nil
}

// emit computes the final value of an instruction into its destination.
func (g *generator) emit(out output, op dxbc.Opcode, srcs ...dxbc.Operand) {
	ops := append([]dxbc.Operand{out.op}, srcs...)
	if out.sat && !out.staged {
		g.b.EmitSat(op, ops...)
		return
	}
	g.b.Emit(op, ops...)
}

// finish moves a staged result to the real destination, applying the
// result shift, saturation and predicate.
func (g *generator) finish(ins *d3d9.Instruction, out output) error {
	if !out.staged {
		return nil
	}
	t := out.op
	value := t.WithSwizzle(0, 1, 2, 3)
	if shift := ins.Dest.Shift; shift != 0 {
		g.b.Emit(dxbc.OpMul, t, value, splat(float32(math.Ldexp(1, int(shift)))))
	}
	if out.sat {
		g.b.EmitSat(dxbc.OpMov, t, value)
	}
	if ins.Predicated {
		p, err := g.register(ins.Predicate.Register, nil, 0)
		if err != nil {
			return err
		}
		p = applySwizzle(p, ins.Predicate.Swizzle)
		keep := out.real.WithSwizzle(0, 1, 2, 3)
		if ins.Predicate.Modifier == d3d9.SrcModNot {
			g.b.Emit(dxbc.OpMovc, out.real, p, keep, value)
		} else {
			g.b.Emit(dxbc.OpMovc, out.real, p, value, keep)
		}
		return nil
	}
	if g.coissueStage {
		g.deferred = append(g.deferred, deferredMove{dst: out.real, src: value})
		return nil
	}
	g.b.Emit(dxbc.OpMov, out.real, value)
	return nil
}

// deferredMove is a staged coissue result committed after its partner.
type deferredMove struct {
	dst, src dxbc.Operand
}

// isNonZeroLiteral reports whether o is an immediate whose lanes are all
// finite and nonzero.
func isNonZeroLiteral(o dxbc.Operand) bool {
	if o.Type != dxbc.OperandImm32 {
		return false
	}
	n := 4
	if o.Components == 1 {
		n = 1
	}
	for _, bits := range o.Imm[:n] {
		f := math.Float32frombits(bits)
		if f == 0 || math.IsInf(float64(f), 0) || f != f {
			return false
		}
	}
	return true
}

func sameOperand(a, b dxbc.Operand) bool {
	return a.SameRegister(b) && a.Modifier == b.Modifier && a.Mode == b.Mode && a.Swizzle == b.Swizzle
}

// guard rewrites the factors of a multiply so that anything times zero is
// zero. Each factor that may be infinite or NaN is replaced by zero in the
// lanes where the other factor is zero.
func (g *generator) guard(a, b dxbc.Operand) (dxbc.Operand, dxbc.Operand) {
	if !g.opts.Settings.Has(SettingMulZeroGuard) || sameOperand(a, b) {
		return a, b
	}
	ga, gb := a, b
	if !isNonZeroLiteral(a) {
		t := dxbc.Temp(scratchPatch)
		g.b.Emit(dxbc.OpEq, t.WithMask(dxbc.MaskXYZW), b, splat(0))
		g.b.Emit(dxbc.OpMovc, t.WithMask(dxbc.MaskXYZW), t, splat(0), a)
		g.guards += 2
		ga = t
	}
	if !isNonZeroLiteral(b) {
		t := dxbc.Temp(scratchPatch + 1)
		g.b.Emit(dxbc.OpEq, t.WithMask(dxbc.MaskXYZW), a, splat(0))
		g.b.Emit(dxbc.OpMovc, t.WithMask(dxbc.MaskXYZW), t, splat(0), b)
		g.guards += 2
		gb = t
	}
	return ga, gb
}
