// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package geometry

import (
	"github.com/gogpu/shaderconv/convert"
	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/raster"
)

// corner is one vertex of an expanded point: its offset from the center in
// units of the half extent, and its sprite coordinate.
type corner struct {
	x, y float32
	u, v float32
}

// corners returns the quad in triangle strip order. The first triangle is
// clockwise on screen, the front face of the default cull mode; when
// clockwise faces are culled the quad is mirrored horizontally.
func (w *writer) corners() [4]corner {
	c := [4]corner{
		{x: -1, y: 1, u: 0, v: 0},
		{x: 1, y: 1, u: 1, v: 0},
		{x: -1, y: -1, u: 0, v: 1},
		{x: 1, y: -1, u: 1, v: 1},
	}
	if w.snap.CullMode == raster.CullCW {
		for i := range c {
			c[i].x = -c[i].x
			c[i].u = 1 - c[i].u
		}
	}
	return c
}

// expandPoint emits input vertex i as a quad of its clamped point size.
func (w *writer) expandPoint(i uint32) {
	b := w.b
	pos := w.inputPosition(i)
	size := dxbc.Temp(tempExtent)
	psize := dxbc.ConstBuffer(convert.CBSystem, convert.SysPointSize)

	if w.hasPointSize {
		b.Emit(dxbc.OpMov, size.WithMask(dxbc.MaskX), dxbc.GSInput(i, w.pointSize).Select(0))
	} else {
		b.Emit(dxbc.OpMov, size.WithMask(dxbc.MaskX), psize.Select(0))
	}
	b.Emit(dxbc.OpMax, size.WithMask(dxbc.MaskX), size.Select(0), psize.Select(1))
	b.Emit(dxbc.OpMin, size.WithMask(dxbc.MaskX), size.Select(0), psize.Select(2))

	// Pixels to clip space: size * (2/width, 2/height) / 2 * w.
	b.Emit(dxbc.OpMul, size.WithMask(dxbc.MaskXY), size.Replicate(0),
		dxbc.ConstBuffer(convert.CBSystem, convert.SysInvViewport).WithSwizzle(2, 3, 2, 3))
	b.Emit(dxbc.OpMul, size.WithMask(dxbc.MaskXY), size, pos.Replicate(3))
	b.Emit(dxbc.OpMul, size.WithMask(dxbc.MaskXY), size, dxbc.SplatF32(0.5))

	t := dxbc.Temp(tempCorner)
	for _, c := range w.corners() {
		b.Emit(dxbc.OpMad, t.WithMask(dxbc.MaskXY), size, dxbc.ImmF32(c.x, c.y, 0, 0), pos)
		b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskZ|dxbc.MaskW), pos)
		w.vertex(i, t, &c)
	}
	b.Emit(dxbc.OpCut)
}

// beginCull opens a block skipping triangles the legacy pipeline culls
// before point or wireframe fill. It reports whether a block was opened.
func (w *writer) beginCull() bool {
	if w.prim != dxbc.PrimitiveTriangle || w.snap.CullMode == raster.CullNone || w.snap.CullMode == 0 {
		return false
	}
	b := w.b
	v0 := dxbc.Temp(tempCull)
	e1 := dxbc.Temp(tempEdge1)
	e2 := dxbc.Temp(tempEdge2)
	p0, p1, p2 := w.inputPosition(0), w.inputPosition(1), w.inputPosition(2)

	b.Emit(dxbc.OpDiv, v0.WithMask(dxbc.MaskXY), p0, p0.Replicate(3))
	b.Emit(dxbc.OpDiv, e1.WithMask(dxbc.MaskXY), p1, p1.Replicate(3))
	b.Emit(dxbc.OpDiv, e2.WithMask(dxbc.MaskXY), p2, p2.Replicate(3))
	b.Emit(dxbc.OpAdd, e1.WithMask(dxbc.MaskXY), e1, v0.Neg())
	b.Emit(dxbc.OpAdd, e2.WithMask(dxbc.MaskXY), e2, v0.Neg())

	// Twice the signed area; negative is clockwise on screen.
	b.Emit(dxbc.OpMul, v0.WithMask(dxbc.MaskZ), e1.Select(1), e2.Select(0))
	b.Emit(dxbc.OpMad, v0.WithMask(dxbc.MaskZ), e1.Select(0), e2.Select(1), v0.Select(2).Neg())
	if w.snap.CullMode == raster.CullCCW {
		b.Emit(dxbc.OpLt, v0.WithMask(dxbc.MaskW), dxbc.ScalarF32(0), v0.Select(2))
	} else {
		b.Emit(dxbc.OpLt, v0.WithMask(dxbc.MaskW), v0.Select(2), dxbc.ScalarF32(0))
	}
	b.EmitTest(dxbc.OpIf, false, v0.Select(3))
	return true
}

func (w *writer) endCull(opened bool) {
	if opened {
		w.b.Emit(dxbc.OpEndIf)
	}
}
