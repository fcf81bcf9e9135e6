// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"github.com/gogpu/shaderconv/dxbc"
)

// Partial-precision exp and log of vs_1_x. These reproduce the documented
// bit-level approximation rather than the full-precision instructions:
// content tuned against the old hardware depends on the truncated
// mantissa.

const (
	// partialMantissa keeps the top 12 mantissa bits of the z result.
	partialMantissa = 0xFFFFFF00
	mantissaBits    = 0x007FFFFF
	exponentOne     = 0x3F800000
	exponentBias    = 127
)

// expp writes (2^floor(s), fract(s), 2^s truncated, 1) for the w lane s of
// the source.
func (g *generator) expp(out output, src dxbc.Operand) {
	t := g.scratch(0)
	s := sel(src, 3)
	g.b.Emit(dxbc.OpRoundNI, t.WithMask(dxbc.MaskX), s)
	g.b.Emit(dxbc.OpExp, t.WithMask(dxbc.MaskX), t.Select(0))
	g.b.Emit(dxbc.OpFrc, t.WithMask(dxbc.MaskY), s)
	g.b.Emit(dxbc.OpExp, t.WithMask(dxbc.MaskZ), s)
	g.b.Emit(dxbc.OpAnd, t.WithMask(dxbc.MaskZ), t.Select(2), dxbc.ScalarU32(partialMantissa))
	g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskW), dxbc.ScalarF32(1))
	g.emit(out, dxbc.OpMov, t)
}

// logp writes (exponent(|s|), mantissa(|s|) in [1,2), log2|s| truncated, 1).
// A zero input yields the most negative float in x and z and 1 in y.
func (g *generator) logp(out output, src dxbc.Operand) {
	t, z := g.scratch(0), g.scratch(1)
	s := sel(src, 3)
	g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskW), abs(s))
	g.b.Emit(dxbc.OpUShr, t.WithMask(dxbc.MaskX), t.Select(3), dxbc.ScalarU32(23))
	g.b.Emit(dxbc.OpIAdd, t.WithMask(dxbc.MaskX), t.Select(0), dxbc.ScalarU32(^uint32(exponentBias-1)))
	g.b.Emit(dxbc.OpItoF, t.WithMask(dxbc.MaskX), t.Select(0))
	g.b.Emit(dxbc.OpAnd, t.WithMask(dxbc.MaskY), t.Select(3), dxbc.ScalarU32(mantissaBits))
	g.b.Emit(dxbc.OpOr, t.WithMask(dxbc.MaskY), t.Select(1), dxbc.ScalarU32(exponentOne))
	g.b.Emit(dxbc.OpLog, t.WithMask(dxbc.MaskZ), t.Select(3))
	g.b.Emit(dxbc.OpAnd, t.WithMask(dxbc.MaskZ), t.Select(2), dxbc.ScalarU32(partialMantissa))
	g.b.Emit(dxbc.OpEq, z.WithMask(dxbc.MaskX), t.Select(3), dxbc.ScalarF32(0))
	g.b.Emit(dxbc.OpMovc, t.WithMask(dxbc.MaskXYZ), z.Replicate(0), dxbc.ImmF32(-fltMax, 1, -fltMax, 0), t)
	g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskW), dxbc.ScalarF32(1))
	g.emit(out, dxbc.OpMov, t)
}
