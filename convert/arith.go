// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
)

// Arithmetic macro expansions. Multi-instruction sequences compute into the
// macro scratch temps and write the destination last, so a destination that
// is also a source is read before it is overwritten.

func all(o dxbc.Operand) dxbc.Operand {
	return o.WithMask(dxbc.MaskXYZW)
}

// minMax selects between a and b with a compare, keeping the legacy NaN
// behavior: min picks a only when a < b, max only when a >= b.
func (g *generator) minMax(isMin bool, out output, a, b dxbc.Operand) {
	t := g.scratch(0)
	if isMin {
		g.b.Emit(dxbc.OpLt, all(t), a, b)
	} else {
		g.b.Emit(dxbc.OpGe, all(t), a, b)
	}
	g.emit(out, dxbc.OpMovc, t, a, b)
}

// setLess writes 1.0 where a < b (slt) or a >= b (sge) and 0.0 elsewhere.
func (g *generator) setLess(ge bool, out output, a, b dxbc.Operand) {
	t := g.scratch(0)
	if ge {
		g.b.Emit(dxbc.OpGe, all(t), a, b)
	} else {
		g.b.Emit(dxbc.OpLt, all(t), a, b)
	}
	g.emit(out, dxbc.OpMovc, t, splat(1), splat(0))
}

// rcp divides into one and replaces the reciprocal of an exact zero with
// the largest float.
func (g *generator) rcp(out output, x dxbc.Operand) {
	t, z := g.scratch(0), g.scratch(1)
	g.b.Emit(dxbc.OpDiv, all(t), splat(1), x)
	g.b.Emit(dxbc.OpEq, all(z), x, splat(0))
	g.emit(out, dxbc.OpMovc, z, splat(fltMax), t)
}

// rsq takes the reciprocal square root of |x| with the same zero rule as
// rcp.
func (g *generator) rsq(out output, x dxbc.Operand) {
	t, z := g.scratch(0), g.scratch(1)
	g.b.Emit(dxbc.OpRsq, all(t), abs(x))
	g.b.Emit(dxbc.OpEq, all(z), x, splat(0))
	g.emit(out, dxbc.OpMovc, z, splat(fltMax), t)
}

// log2 computes log2(|x|); zero yields the most negative float.
func (g *generator) log2(out output, x dxbc.Operand) {
	t, z := g.scratch(0), g.scratch(1)
	g.b.Emit(dxbc.OpLog, all(t), abs(x))
	g.b.Emit(dxbc.OpEq, all(z), x, splat(0))
	g.emit(out, dxbc.OpMovc, z, splat(-fltMax), t)
}

// pow computes |a|^b as exp2(b * log2|a|).
func (g *generator) pow(out output, a, b dxbc.Operand) {
	t := g.scratch(0)
	g.b.Emit(dxbc.OpLog, all(t), abs(a))
	g.b.Emit(dxbc.OpMul, all(t), t, b)
	g.emit(out, dxbc.OpExp, t)
}

// lit computes the legacy lighting coefficients
// (1, max(x,0), x > 0 && y > 0 ? y^clamp(w) : 0, 1).
func (g *generator) lit(out output, s dxbc.Operand) {
	t, c := g.scratch(0), g.scratch(1)
	const maxPower = 127.9961
	g.b.Emit(dxbc.OpMax, t.WithMask(dxbc.MaskXY), swz(s, 0, 1, 0, 1), splat(0))
	g.b.Emit(dxbc.OpMax, t.WithMask(dxbc.MaskZ), sel(s, 3), dxbc.ScalarF32(-maxPower))
	g.b.Emit(dxbc.OpMin, t.WithMask(dxbc.MaskZ), t.Select(2), dxbc.ScalarF32(maxPower))
	g.b.Emit(dxbc.OpLog, t.WithMask(dxbc.MaskW), t.Select(1))
	g.b.Emit(dxbc.OpMul, t.WithMask(dxbc.MaskW), t.Select(3), t.Select(2))
	g.b.Emit(dxbc.OpExp, t.WithMask(dxbc.MaskW), t.Select(3))
	g.b.Emit(dxbc.OpLt, c.WithMask(dxbc.MaskXY), splat(0), swz(s, 0, 1, 0, 1))
	g.b.Emit(dxbc.OpAnd, c.WithMask(dxbc.MaskY), c.Select(1), c.Select(0))
	g.b.Emit(dxbc.OpMovc, t.WithMask(dxbc.MaskZ), c.Select(1), t.Select(3), dxbc.ScalarF32(0))
	g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskY), t.Select(0))
	g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskX|dxbc.MaskW), splat(1))
	g.emit(out, dxbc.OpMov, t)
}

// dst computes the distance vector (1, a.y*b.y, a.z, b.w).
func (g *generator) dst(out output, a, b dxbc.Operand) {
	t := g.scratch(0)
	g.b.Emit(dxbc.OpMul, t.WithMask(dxbc.MaskY), sel(a, 1), sel(b, 1))
	g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskX), dxbc.ScalarF32(1))
	g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskZ), sel(a, 2))
	g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskW), sel(b, 3))
	g.emit(out, dxbc.OpMov, t)
}

// lrp interpolates a*(b-c)+c.
func (g *generator) lrp(out output, a, b, c dxbc.Operand) {
	t := g.scratch(0)
	g.b.Emit(dxbc.OpAdd, all(t), b, neg(c))
	g.emit(out, dxbc.OpMad, a, t, c)
}

// crs computes the cross product a.yzx*b.zxy - a.zxy*b.yzx.
func (g *generator) crs(out output, a, b dxbc.Operand) {
	t := g.scratch(0)
	g.b.Emit(dxbc.OpMul, all(t), swz(a, 2, 0, 1, 3), swz(b, 1, 2, 0, 3))
	g.emit(out, dxbc.OpMad, swz(a, 1, 2, 0, 3), swz(b, 2, 0, 1, 3), neg(t))
}

// sgn writes -1, 0 or 1 per component.
func (g *generator) sgn(out output, a dxbc.Operand) {
	p, n := g.scratch(0), g.scratch(1)
	g.b.Emit(dxbc.OpLt, all(p), splat(0), a)
	g.b.Emit(dxbc.OpLt, all(n), a, splat(0))
	g.b.Emit(dxbc.OpMovc, all(p), p, splat(1), splat(0))
	g.emit(out, dxbc.OpMovc, n, splat(-1), p)
}

// nrm scales a by the reciprocal square root of its squared length. A zero
// length is replaced by the largest float first, so the zero vector stays
// zero.
func (g *generator) nrm(out output, a dxbc.Operand) {
	t, z := g.scratch(0), g.scratch(1)
	g.b.Emit(dxbc.OpDp3, t.WithMask(dxbc.MaskX), a, a)
	g.b.Emit(dxbc.OpEq, z.WithMask(dxbc.MaskX), t.Select(0), dxbc.ScalarF32(0))
	g.b.Emit(dxbc.OpMovc, t.WithMask(dxbc.MaskX), z.Select(0), dxbc.ScalarF32(fltMax), t.Select(0))
	g.b.Emit(dxbc.OpRsq, t.WithMask(dxbc.MaskX), t.Select(0))
	g.emit(out, dxbc.OpMul, a, t.Replicate(0))
}

// sincos writes (cos, sin) of the replicated source to x and y.
func (g *generator) sincos(out output, a dxbc.Operand) {
	t := g.scratch(0)
	g.b.Emit(dxbc.OpSinCos, t.WithMask(dxbc.MaskY), t.WithMask(dxbc.MaskX), sel(a, 3))
	g.emit(out, dxbc.OpMov, t)
}

// cmp selects b where a >= 0 and c elsewhere.
func (g *generator) cmp(out output, a, b, c dxbc.Operand) {
	t := g.scratch(0)
	g.b.Emit(dxbc.OpGe, all(t), a, splat(0))
	g.emit(out, dxbc.OpMovc, t, b, c)
}

// cnd selects b where a > 0.5 and c elsewhere. Before 1.4 the condition is
// always the alpha of the first source.
func (g *generator) cnd(out output, a, b, c dxbc.Operand) {
	if v := g.desc.Version; v.Major == 1 && v.Minor < 4 {
		a = rep(a, 3)
	}
	t := g.scratch(0)
	g.b.Emit(dxbc.OpLt, all(t), splat(0.5), a)
	g.emit(out, dxbc.OpMovc, t, b, c)
}

// dp2add adds the two-component dot product of a and b to the replicated
// scalar c.
func (g *generator) dp2add(out output, a, b, c dxbc.Operand) {
	t := g.scratch(0)
	x, y := g.guard(a, b)
	g.b.Emit(dxbc.OpDp2, t.WithMask(dxbc.MaskX), x, y)
	g.emit(out, dxbc.OpAdd, t.Replicate(0), c)
}

// bem applies the bump environment matrix of stage to the offset b:
// (a.x + M00*b.x + M10*b.y, a.y + M01*b.x + M11*b.y).
func (g *generator) bem(out output, stage uint32, a, b dxbc.Operand) {
	t := g.scratch(0)
	m := dxbc.ConstBuffer(CBSystem, SysBumpMatrix+stage&7)
	g.b.Emit(dxbc.OpMad, t.WithMask(dxbc.MaskXY), m.WithSwizzle(0, 1, 0, 1), rep(b, 0), a)
	g.b.Emit(dxbc.OpMad, t.WithMask(dxbc.MaskXY), m.WithSwizzle(2, 3, 2, 3), rep(b, 1), t)
	g.emit(out, dxbc.OpMov, t)
}

// compare returns the target comparison computing a <cmp> b as a mask.
// The target only has lt, ge, eq and ne; gt and le swap their operands.
func compare(c d3d9.Comparison, a, b dxbc.Operand) (dxbc.Opcode, dxbc.Operand, dxbc.Operand, error) {
	switch c {
	case d3d9.CmpGT:
		return dxbc.OpLt, b, a, nil
	case d3d9.CmpGE:
		return dxbc.OpGe, a, b, nil
	case d3d9.CmpLT:
		return dxbc.OpLt, a, b, nil
	case d3d9.CmpLE:
		return dxbc.OpGe, b, a, nil
	case d3d9.CmpEQ:
		return dxbc.OpEq, a, b, nil
	case d3d9.CmpNE:
		return dxbc.OpNe, a, b, nil
	}
	return 0, a, b, Errorf(MalformedStream, "invalid comparison %d", c)
}

// setp writes the per-component comparison into the predicate.
func (g *generator) setp(c d3d9.Comparison, out output, a, b dxbc.Operand) error {
	op, x, y, err := compare(c, a, b)
	if err != nil {
		return err
	}
	g.emit(out, op, x, y)
	return nil
}

// matrix expands m4x4 and friends into one dot product per row of the
// second source.
func (g *generator) matrix(ins *d3d9.Instruction, out output) error {
	rows := matrixRows(ins.Opcode)
	op := dxbc.OpDp4
	if ins.Opcode == d3d9.OpM3x4 || ins.Opcode == d3d9.OpM3x3 || ins.Opcode == d3d9.OpM3x2 {
		op = dxbc.OpDp3
	}
	if len(ins.Src) < 2 {
		return Errorf(MalformedStream, "%s needs 2 sources", ins.Opcode)
	}
	v, err := g.source(ins, 0)
	if err != nil {
		return err
	}
	t := g.scratch(0)
	for row := uint32(0); row < rows; row++ {
		m, err := g.sourceRow(ins, 1, row)
		if err != nil {
			return err
		}
		a, b := g.guard(v, m)
		g.b.Emit(op, t.WithMask(1<<row), a, b)
	}
	g.emit(out, dxbc.OpMov, t)
	return nil
}
