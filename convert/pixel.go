// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"math"
	"slices"

	"golang.org/x/exp/maps"

	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/raster"
)

type pixelStage struct{}

func (pixelStage) programType() dxbc.ProgramType { return dxbc.PixelShader }

// prologue loads the legacy texture temps with their coordinates, copies
// relatively addressed inputs into x0 and derives vPos and vFace.
func (pixelStage) prologue(g *generator) error {
	d := g.desc
	if d.RelativeInputs {
		inputs := maps.Keys(d.InputMap)
		slices.SortFunc(inputs, func(x, y d3d9.Register) int {
			return int(x.Num) - int(y.Num)
		})
		for _, r := range inputs {
			if r.Type != d3d9.RegInput {
				continue
			}
			g.b.Emit(dxbc.OpMov, all(dxbc.IndexableTemp(0, r.Num)), dxbc.Input(d.InputMap[r]))
		}
	}
	if legacyPixel(d.Version) {
		for _, k := range d.Registers.Keys() {
			if k.Category != CatTexture {
				continue
			}
			reg, ok := d.InputMap[d3d9.Register{Type: d3d9.RegTexture, Num: k.Num}]
			if !ok {
				continue
			}
			t, err := g.temp(k)
			if err != nil {
				return err
			}
			g.b.Emit(dxbc.OpMov, all(t), dxbc.Input(reg))
		}
	}
	if _, ok := d.Registers.Lookup(RegisterKey{Category: CatInputStage, Num: stagePosition}).Index(); ok {
		t, err := g.temp(RegisterKey{Category: CatInputStage, Num: stagePosition})
		if err != nil {
			return err
		}
		// The legacy pixel position names the top-left corner, not the
		// center.
		pos := dxbc.Input(d.PositionInput)
		g.b.Emit(dxbc.OpAdd, t.WithMask(dxbc.MaskXY), pos, splat(-0.5))
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskZ|dxbc.MaskW), pos)
	}
	if d.UsesFace {
		t, err := g.temp(RegisterKey{Category: CatInputStage, Num: stageFace})
		if err != nil {
			return err
		}
		g.b.Emit(dxbc.OpMovc, all(t), dxbc.Input(d.FaceInput).Select(0), splat(1), splat(-1))
	}
	return nil
}

// colorSource returns the temp holding color output n.
func (g *generator) colorSource(n uint32) (dxbc.Operand, error) {
	if g.desc.Version.Major == 1 {
		if n != 0 {
			return dxbc.Operand{}, Errorf(InternalError, "ps_1_x has no color output %d", n)
		}
		return g.temp(RegisterKey{Category: CatTemp})
	}
	return g.temp(RegisterKey{Category: CatColorOut, Num: n})
}

// epilogue applies the fixed-function pixel tail to color output 0 and
// writes every color and depth output.
func (pixelStage) epilogue(g *generator) error {
	d := g.desc
	snap := g.snap
	for n := uint32(0); n < raster.MaxColors; n++ {
		if d.ColorOutputs&(1<<n) == 0 {
			continue
		}
		src, err := g.colorSource(n)
		if err != nil {
			return err
		}
		t := g.scratch(0)
		if d.Version.Major == 1 {
			g.b.EmitSat(dxbc.OpMov, all(t), src)
		} else {
			g.b.Emit(dxbc.OpMov, all(t), src)
		}
		if n == 0 {
			if d.Fog.Kind != FogOff {
				g.fogBlend(t)
			}
			if snap.AlphaTestEnable {
				g.alphaTest(t)
			}
		}
		if snap.SwapRB&(1<<n) != 0 {
			t = t.WithSwizzle(2, 1, 0, 3)
		}
		g.b.Emit(dxbc.OpMov, all(dxbc.Output(n)), t)
	}
	if d.WritesDepth {
		depth, err := g.temp(RegisterKey{Category: CatDepth})
		if err != nil {
			return err
		}
		g.b.Emit(dxbc.OpMov, dxbc.OutputDepth(), depth.Select(0))
	}
	return nil
}

// fogFactor writes the fog factor of the pixel into f.x.
func (g *generator) fogFactor(f dxbc.Operand) {
	d := g.desc
	fx := f.WithMask(dxbc.MaskX)
	params := dxbc.ConstBuffer(CBSystem, SysFogParams)
	switch d.Fog.Kind {
	case FogVertex:
		g.b.EmitSat(dxbc.OpMov, fx, dxbc.Input(d.Fog.Register).Select(0))
	case FogSpecular:
		g.b.EmitSat(dxbc.OpMov, fx, dxbc.Input(d.Fog.Register).Select(3))
	case FogTable:
		pos := dxbc.Input(d.PositionInput)
		depth := pos.Select(2)
		if g.snap.FogFromW {
			depth = pos.Select(3)
		}
		switch g.snap.FogTableMode {
		case raster.FogLinear:
			g.b.Emit(dxbc.OpAdd, fx, params.Select(1), depth.Neg())
			g.b.EmitSat(dxbc.OpMul, fx, f.Select(0), params.Select(3))
		case raster.FogExp:
			g.b.Emit(dxbc.OpMul, fx, depth, params.Select(2))
			g.b.Emit(dxbc.OpMul, fx, f.Select(0), dxbc.ScalarF32(-math.Log2E))
			g.b.EmitSat(dxbc.OpExp, fx, f.Select(0))
		case raster.FogExp2:
			g.b.Emit(dxbc.OpMul, fx, depth, params.Select(2))
			g.b.Emit(dxbc.OpMul, fx, f.Select(0), f.Select(0))
			g.b.Emit(dxbc.OpMul, fx, f.Select(0), dxbc.ScalarF32(-math.Log2E))
			g.b.EmitSat(dxbc.OpExp, fx, f.Select(0))
		default:
			g.b.Emit(dxbc.OpMov, fx, dxbc.ScalarF32(1))
		}
	default:
		g.b.Emit(dxbc.OpMov, fx, dxbc.ScalarF32(1))
	}
}

// fogBlend mixes the color in t toward the fog color: f*c + (1-f)*fog.
func (g *generator) fogBlend(t dxbc.Operand) {
	f, k := g.scratch(1), g.scratch(2)
	g.fogFactor(f)
	fog := dxbc.ConstBuffer(CBSystem, SysFogColor)
	g.b.Emit(dxbc.OpAdd, k.WithMask(dxbc.MaskXYZ), t, fog.Neg())
	g.b.Emit(dxbc.OpMad, t.WithMask(dxbc.MaskXYZ), k, f.Replicate(0), fog)
}

// alphaTest discards the pixel when its alpha fails the comparison against
// the reference value.
func (g *generator) alphaTest(t dxbc.Operand) {
	fn := g.snap.AlphaFunc
	if fn == raster.CmpAlways {
		return
	}
	if fn == raster.CmpNever {
		g.b.EmitTest(dxbc.OpDiscard, true, dxbc.ScalarU32(^uint32(0)))
		return
	}
	a := t.Select(3)
	ref := dxbc.ConstBuffer(CBSystem, SysAlphaRef).Select(0)
	k := g.scratch(1).WithMask(dxbc.MaskX)
	switch fn {
	case raster.CmpLess:
		g.b.Emit(dxbc.OpLt, k, a, ref)
	case raster.CmpLessEqual:
		g.b.Emit(dxbc.OpGe, k, ref, a)
	case raster.CmpEqual:
		g.b.Emit(dxbc.OpEq, k, a, ref)
	case raster.CmpNotEqual:
		g.b.Emit(dxbc.OpNe, k, a, ref)
	case raster.CmpGreater:
		g.b.Emit(dxbc.OpLt, k, ref, a)
	default:
		g.b.Emit(dxbc.OpGe, k, a, ref)
	}
	g.b.EmitTest(dxbc.OpDiscard, false, g.scratch(1).Select(0))
}

func (pixelStage) declareIO(b *dxbc.ProgramBuilder, d *ShaderDescriptor, snap *raster.Snapshot) {
	for _, reg := range registersOf(&d.Inputs) {
		if d.UsesPosition && reg == d.PositionInput {
			continue
		}
		b.DeclareInputPS(reg, maskOf(&d.Inputs, reg), interpolation(&d.Inputs, reg, snap))
	}
	if d.UsesPosition {
		b.DeclareInputPSSIV(d.PositionInput, dxbc.MaskXYZW, dxbc.InterpolationLinearNoPerspective, dxbc.SVPosition)
	}
	if d.UsesFace {
		b.DeclareInputPSSGV(d.FaceInput, dxbc.MaskX, dxbc.SVIsFrontFace)
	}
	for n := uint32(0); n < raster.MaxColors; n++ {
		if d.ColorOutputs&(1<<n) != 0 {
			b.DeclareOutput(n, dxbc.MaskXYZW)
		}
	}
	if d.WritesDepth {
		b.DeclareOutputDepth()
	}
}

// interpolation returns the interpolation mode of input register reg.
// Colors are constant under flat shading.
func interpolation(s *Signature, reg uint32, snap *raster.Snapshot) dxbc.Interpolation {
	centroid := s.CentroidMask()&(1<<reg) != 0
	e := s.ByRegister(reg)
	if e != nil && e.Semantic.Usage == d3d9.UsageColor && snap.ShadeMode == raster.ShadeFlat {
		return dxbc.InterpolationConstant
	}
	if centroid {
		return dxbc.InterpolationLinearCentroid
	}
	return dxbc.InterpolationLinear
}
