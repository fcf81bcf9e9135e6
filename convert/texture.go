// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/raster"
)

// samplerStage returns the sampler stage an instruction samples from. Before
// 2.0 the stage is the destination register number; later versions name the
// sampler in the second source.
func samplerStage(v d3d9.Version, ins *d3d9.Instruction) (uint32, bool) {
	if v.IsPixel() && v.Major == 1 {
		switch ins.Opcode {
		case d3d9.OpTex, d3d9.OpTexBem, d3d9.OpTexBemL, d3d9.OpTexReg2AR,
			d3d9.OpTexReg2GB, d3d9.OpTexReg2RGB, d3d9.OpTexM3x2Tex,
			d3d9.OpTexM3x3Tex, d3d9.OpTexM3x3Spec, d3d9.OpTexM3x3VSpec,
			d3d9.OpTexDp3Tex:
			return ins.Dest.Num, true
		}
		return 0, false
	}
	switch ins.Opcode {
	case d3d9.OpTex, d3d9.OpTexLdd, d3d9.OpTexLdl:
		if len(ins.Src) >= 2 && ins.Src[1].Type == d3d9.RegSampler {
			return ins.Src[1].Num, true
		}
	}
	return 0, false
}

// texcoordStage returns the texture stage whose coordinates a pre-1.4
// texture-address instruction reads implicitly.
func texcoordStage(v d3d9.Version, ins *d3d9.Instruction) (uint32, bool) {
	if !legacyPixel(v) {
		return 0, false
	}
	switch ins.Opcode {
	case d3d9.OpTex, d3d9.OpTexCoord, d3d9.OpTexKill, d3d9.OpTexBem, d3d9.OpTexBemL,
		d3d9.OpTexM3x2Pad, d3d9.OpTexM3x2Tex, d3d9.OpTexM3x2Depth,
		d3d9.OpTexM3x3Pad, d3d9.OpTexM3x3Tex, d3d9.OpTexM3x3Spec,
		d3d9.OpTexM3x3VSpec, d3d9.OpTexDp3Tex, d3d9.OpTexDp3, d3d9.OpTexM3x3:
		return ins.Dest.Num, true
	}
	return 0, false
}

// textureTypeOf maps the raster sampler kind used by shaders without
// sampler declarations.
func textureTypeOf(k raster.TextureKind) d3d9.TextureType {
	switch k {
	case raster.TextureCube:
		return d3d9.TextureCube
	case raster.TextureVolume:
		return d3d9.TextureVolume
	}
	return d3d9.Texture2D
}

// sampleMode selects the sample instruction of a texture read.
type sampleMode uint8

const (
	samplePlain sampleMode = iota
	sampleProject
	sampleBias
	sampleLod
	sampleGrad
)

// sampleRequest is one texture read.
type sampleRequest struct {
	stage  uint32
	coord  dxbc.Operand
	mode   sampleMode
	dx, dy dxbc.Operand
}

// shadowSampler reports whether stage samples with a hardware depth
// comparison.
func (g *generator) shadowSampler(stage uint32) bool {
	if stage >= raster.MaxSamplers || !g.snap.Samplers[stage].Shadow {
		return false
	}
	return g.desc.Samplers[stage] == d3d9.Texture2D
}

// sample emits a texture read into the texel scratch temp and applies the
// format fix-up and color key of the stage. It returns the texel operand.
func (g *generator) sample(req sampleRequest) dxbc.Operand {
	coord := req.coord
	texel := g.scratch(3)
	if req.mode == sampleProject {
		// Legacy projection divides every component by w.
		g.b.Emit(dxbc.OpDiv, g.scratch(2).WithMask(dxbc.MaskXYZW), coord, rep(coord, 3))
		coord = g.scratch(2)
	}
	res := dxbc.Resource(req.stage)
	smp := dxbc.Sampler(req.stage)

	if g.shadowSampler(req.stage) {
		g.b.Emit(dxbc.OpSampleCLZ, texel.WithMask(dxbc.MaskXYZW), coord, res, smp, sel(coord, 2))
		return texel
	}
	switch req.mode {
	case sampleBias:
		g.b.Emit(dxbc.OpSampleB, texel.WithMask(dxbc.MaskXYZW), coord, res, smp, sel(coord, 3))
	case sampleLod:
		g.b.Emit(dxbc.OpSampleL, texel.WithMask(dxbc.MaskXYZW), coord, res, smp, sel(coord, 3))
	case sampleGrad:
		g.b.Emit(dxbc.OpSampleD, texel.WithMask(dxbc.MaskXYZW), coord, res, smp, req.dx, req.dy)
	default:
		g.b.Emit(dxbc.OpSample, texel.WithMask(dxbc.MaskXYZW), coord, res, smp)
	}
	if req.stage < raster.MaxSamplers {
		g.applyFixup(texel, g.snap.Samplers[req.stage].Fixup)
		if g.snap.Samplers[req.stage].ColorKey && g.desc.Pixel() {
			g.colorKey(texel, req.stage)
		}
	}
	return texel
}

// applyFixup rewrites a texel so formats the target stores differently read
// as the legacy format did.
func (g *generator) applyFixup(t dxbc.Operand, f raster.FormatFixup) {
	switch f {
	case raster.FixupLuminance:
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskXYZ), t.Replicate(0))
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskW), dxbc.SplatF32(1))
	case raster.FixupLuminanceAlpha:
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskXYZW), t.WithSwizzle(0, 0, 0, 1))
	case raster.FixupOneChannel:
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskY|dxbc.MaskZ|dxbc.MaskW), dxbc.SplatF32(1))
	case raster.FixupTwoChannel:
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskZ|dxbc.MaskW), dxbc.SplatF32(1))
	case raster.FixupDepthReplicate:
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskXYZW), t.Replicate(0))
	case raster.FixupAlphaOnly:
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskW), t.Replicate(0))
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskXYZ), dxbc.SplatF32(0))
	}
}

// colorKey discards the pixel when the texel matches the stage's key color
// to within half an 8-bit step.
func (g *generator) colorKey(t dxbc.Operand, stage uint32) {
	d := g.scratch(2)
	g.b.Emit(dxbc.OpAdd, d.WithMask(dxbc.MaskXYZW), t, dxbc.ConstBuffer(CBSystem, SysColorKey+stage).Neg())
	g.b.Emit(dxbc.OpLt, d.WithMask(dxbc.MaskXYZW), d.Abs(), dxbc.SplatF32(0.5/255))
	g.b.Emit(dxbc.OpAnd, d.WithMask(dxbc.MaskXY), d.WithSwizzle(0, 1, 0, 1), d.WithSwizzle(2, 3, 2, 3))
	g.b.Emit(dxbc.OpAnd, d.WithMask(dxbc.MaskX), d.Select(0), d.Select(1))
	g.b.EmitTest(dxbc.OpDiscard, true, d.Select(0))
}

// coordinate returns the texture temp of a pre-1.4 texture register, which
// holds its coordinates until an instruction overwrites it.
func (g *generator) coordinate(n uint32) (dxbc.Operand, error) {
	return g.register(d3d9.Register{Type: d3d9.RegTexture, Num: n}, nil, 0)
}

// texture translates the sampling and texture-address instructions that
// produce a value in their destination.
func (g *generator) texture(ins *d3d9.Instruction, out output) error {
	v := g.desc.Version
	m := ins.Dest.Num
	switch ins.Opcode {
	case d3d9.OpTex:
		return g.texld(ins, out)

	case d3d9.OpTexLdl, d3d9.OpTexLdd:
		if len(ins.Src) < 2 {
			return Errorf(MalformedStream, "%s needs a sampler", ins.Opcode)
		}
		coord, err := g.source(ins, 0)
		if err != nil {
			return err
		}
		req := sampleRequest{stage: ins.Src[1].Num, coord: coord, mode: sampleLod}
		if ins.Opcode == d3d9.OpTexLdd {
			if len(ins.Src) < 4 {
				return Errorf(MalformedStream, "texldd needs gradients")
			}
			req.mode = sampleGrad
			if req.dx, err = g.source(ins, 2); err != nil {
				return err
			}
			if req.dy, err = g.source(ins, 3); err != nil {
				return err
			}
		}
		g.emit(out, dxbc.OpMov, g.sample(req))
		return nil

	case d3d9.OpTexCoord:
		if v.AtLeast(1, 4) {
			// texcrd copies the coordinates, modifiers applied.
			src, err := g.source(ins, 0)
			if err != nil {
				return err
			}
			g.emit(out, dxbc.OpMov, src)
			return nil
		}
		coord, err := g.coordinate(m)
		if err != nil {
			return err
		}
		t := g.scratch(0)
		g.b.EmitSat(dxbc.OpMov, t.WithMask(dxbc.MaskXYZ), coord)
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskW), dxbc.ScalarF32(1))
		g.emit(out, dxbc.OpMov, t)
		return nil

	case d3d9.OpTexBem, d3d9.OpTexBemL:
		return g.texbem(ins, out)

	case d3d9.OpTexReg2AR, d3d9.OpTexReg2GB, d3d9.OpTexReg2RGB:
		n, err := g.source(ins, 0)
		if err != nil {
			return err
		}
		coord := swz(n, 3, 0, 0, 0)
		switch ins.Opcode {
		case d3d9.OpTexReg2GB:
			coord = swz(n, 1, 2, 2, 2)
		case d3d9.OpTexReg2RGB:
			coord = swz(n, 0, 1, 2, 2)
		}
		g.emit(out, dxbc.OpMov, g.sample(sampleRequest{stage: m, coord: coord}))
		return nil

	case d3d9.OpTexDp3Tex, d3d9.OpTexDp3:
		t, err := g.rowDot(ins, 0)
		if err != nil {
			return err
		}
		if ins.Opcode == d3d9.OpTexDp3 {
			g.emit(out, dxbc.OpMov, t.Replicate(0))
			return nil
		}
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskY|dxbc.MaskZ|dxbc.MaskW), splat(0))
		g.emit(out, dxbc.OpMov, g.sample(sampleRequest{stage: m, coord: t}))
		return nil

	case d3d9.OpTexM3x2Tex:
		t, err := g.matrixTail(ins, 1)
		if err != nil {
			return err
		}
		g.emit(out, dxbc.OpMov, g.sample(sampleRequest{stage: m, coord: t}))
		return nil

	case d3d9.OpTexM3x3, d3d9.OpTexM3x3Tex, d3d9.OpTexM3x3Spec, d3d9.OpTexM3x3VSpec:
		t, err := g.matrixTail(ins, 2)
		if err != nil {
			return err
		}
		switch ins.Opcode {
		case d3d9.OpTexM3x3:
			g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskW), dxbc.ScalarF32(1))
			g.emit(out, dxbc.OpMov, t)
			return nil
		case d3d9.OpTexM3x3Spec, d3d9.OpTexM3x3VSpec:
			if err := g.reflect(ins, t); err != nil {
				return err
			}
		}
		g.emit(out, dxbc.OpMov, g.sample(sampleRequest{stage: m, coord: t}))
		return nil
	}
	return Errorf(MalformedStream, "unsupported texture opcode %s", ins.Opcode)
}

// texld samples with the addressing of each version: pre-1.4 reads the
// destination's own coordinates, 1.4 reads its source with the stage taken
// from the destination, later versions name the sampler explicitly.
func (g *generator) texld(ins *d3d9.Instruction, out output) error {
	v := g.desc.Version
	req := sampleRequest{stage: ins.Dest.Num}
	switch {
	case legacyPixel(v):
		coord, err := g.coordinate(ins.Dest.Num)
		if err != nil {
			return err
		}
		req.coord = coord
	case v.Major == 1:
		coord, err := g.source(ins, 0)
		if err != nil {
			return err
		}
		req.coord = coord
	default:
		if len(ins.Src) < 2 {
			return Errorf(MalformedStream, "texld needs a sampler")
		}
		coord, err := g.source(ins, 0)
		if err != nil {
			return err
		}
		req.coord = coord
		req.stage = ins.Src[1].Num
		switch ins.TexldVariant() {
		case d3d9.TexldProject:
			req.mode = sampleProject
		case d3d9.TexldBias:
			req.mode = sampleBias
		}
	}
	g.emit(out, dxbc.OpMov, g.sample(req))
	return nil
}

// texbem perturbs the coordinates of the destination stage by the bump
// matrix applied to the source, and texbeml scales the result by the
// stage's luminance.
func (g *generator) texbem(ins *d3d9.Instruction, out output) error {
	m := ins.Dest.Num
	coord, err := g.coordinate(m)
	if err != nil {
		return err
	}
	n, err := g.source(ins, 0)
	if err != nil {
		return err
	}
	t := g.scratch(0)
	mat := dxbc.ConstBuffer(CBSystem, SysBumpMatrix+m&7)
	g.b.Emit(dxbc.OpMad, t.WithMask(dxbc.MaskXY), mat.WithSwizzle(0, 1, 0, 1), rep(n, 0), coord)
	g.b.Emit(dxbc.OpMad, t.WithMask(dxbc.MaskXY), mat.WithSwizzle(2, 3, 2, 3), rep(n, 1), t)
	g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskZ|dxbc.MaskW), coord)
	if ins.Opcode == d3d9.OpTexBemL {
		lum := dxbc.ConstBuffer(CBSystem, SysBumpLuminance+m&7)
		g.b.Emit(dxbc.OpMad, g.scratch(1).WithMask(dxbc.MaskX), sel(n, 2), lum.Select(0), lum.Select(1))
	}
	texel := g.sample(sampleRequest{stage: m, coord: t})
	if ins.Opcode == d3d9.OpTexBemL {
		g.b.Emit(dxbc.OpMul, texel.WithMask(dxbc.MaskXYZ), texel, g.scratch(1).Replicate(0))
	}
	g.emit(out, dxbc.OpMov, texel)
	return nil
}

// rowDot writes the dot product of the destination stage's coordinates
// with the source into lane of the first macro temp.
func (g *generator) rowDot(ins *d3d9.Instruction, lane uint8) (dxbc.Operand, error) {
	coord, err := g.coordinate(ins.Dest.Num)
	if err != nil {
		return dxbc.Operand{}, err
	}
	n, err := g.source(ins, 0)
	if err != nil {
		return dxbc.Operand{}, err
	}
	t := g.scratch(0)
	g.b.Emit(dxbc.OpDp3, t.WithMask(1<<lane), coord, n)
	return t, nil
}

// texPad computes one row of a texm3x2 or texm3x3 product. The result is
// kept in x of the pad's own texture temp until the final row reads it.
func (g *generator) texPad(ins *d3d9.Instruction) error {
	coord, err := g.coordinate(ins.Dest.Num)
	if err != nil {
		return err
	}
	n, err := g.source(ins, 0)
	if err != nil {
		return err
	}
	t := g.scratch(0)
	g.b.Emit(dxbc.OpDp3, t.WithMask(dxbc.MaskX), coord, n)
	g.b.Emit(dxbc.OpMov, coord.WithMask(dxbc.MaskX), t.Select(0))
	g.pads = append(g.pads, ins.Dest.Num)
	return nil
}

// matrixTail gathers the pad rows and computes the final row into lane
// rows of the first macro temp. The pads are consumed.
func (g *generator) matrixTail(ins *d3d9.Instruction, rows int) (dxbc.Operand, error) {
	if len(g.pads) < rows {
		return dxbc.Operand{}, Errorf(MalformedStream, "%s without %d preceding pad instructions", ins.Opcode, rows)
	}
	pads := g.pads[len(g.pads)-rows:]
	g.pads = g.pads[:len(g.pads)-rows]
	t, err := g.rowDot(ins, uint8(rows))
	if err != nil {
		return dxbc.Operand{}, err
	}
	for i, p := range pads {
		pad, err := g.coordinate(p)
		if err != nil {
			return dxbc.Operand{}, err
		}
		g.b.Emit(dxbc.OpMov, t.WithMask(1<<uint(i)), pad.Select(0))
	}
	if rows == 1 {
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskZ|dxbc.MaskW), splat(0))
	}
	// The eye vector of texm3x3vspec is in w of the three coordinate sets.
	if ins.Opcode == d3d9.OpTexM3x3VSpec {
		e := g.scratch(1)
		for i := 0; i <= rows; i++ {
			n := ins.Dest.Num
			if i < rows {
				n = pads[i]
			}
			c, err := g.coordinate(n)
			if err != nil {
				return dxbc.Operand{}, err
			}
			g.b.Emit(dxbc.OpMov, e.WithMask(1<<uint(i)), c.Select(3))
		}
	}
	return t, nil
}

// reflect replaces the normal in t.xyz with the eye vector reflected about
// it: 2*N*(N.E)/(N.N) - E.
func (g *generator) reflect(ins *d3d9.Instruction, t dxbc.Operand) error {
	e := g.scratch(1)
	if ins.Opcode == d3d9.OpTexM3x3Spec {
		if len(ins.Src) < 2 {
			return Errorf(MalformedStream, "texm3x3spec needs an eye vector")
		}
		c, err := g.source(ins, 1)
		if err != nil {
			return err
		}
		g.b.Emit(dxbc.OpMov, e.WithMask(dxbc.MaskXYZ), c)
	}
	k := g.scratch(2)
	g.b.Emit(dxbc.OpDp3, k.WithMask(dxbc.MaskX), t, e)
	g.b.Emit(dxbc.OpDp3, k.WithMask(dxbc.MaskY), t, t)
	g.b.Emit(dxbc.OpAdd, k.WithMask(dxbc.MaskX), k.Select(0), k.Select(0))
	g.b.Emit(dxbc.OpDiv, k.WithMask(dxbc.MaskX), k.Select(0), k.Select(1))
	g.b.Emit(dxbc.OpMad, t.WithMask(dxbc.MaskXYZ), t, k.Replicate(0), neg(e))
	return nil
}

// texM3x2Depth finishes a texm3x2 product and writes z/w of it to the
// depth output; w of zero writes 1.
func (g *generator) texM3x2Depth(ins *d3d9.Instruction) error {
	t, err := g.matrixTail(ins, 1)
	if err != nil {
		return err
	}
	return g.writeDepthRatio(t)
}

// texDepth writes r5.x/r5.y to the depth output.
func (g *generator) texDepth(ins *d3d9.Instruction) error {
	r, err := g.register(ins.Dest.Register, nil, 0)
	if err != nil {
		return err
	}
	return g.writeDepthRatio(r)
}

func (g *generator) writeDepthRatio(v dxbc.Operand) error {
	depth, err := g.temp(RegisterKey{Category: CatDepth})
	if err != nil {
		return err
	}
	k := g.scratch(2)
	g.b.Emit(dxbc.OpEq, k.WithMask(dxbc.MaskX), v.Select(1), dxbc.ScalarF32(0))
	g.b.Emit(dxbc.OpDiv, k.WithMask(dxbc.MaskY), v.Select(0), v.Select(1))
	g.b.Emit(dxbc.OpMovc, depth.WithMask(dxbc.MaskX), k.Select(0), dxbc.ScalarF32(1), k.Select(1))
	return nil
}

// texkill discards the pixel when any tested component of its register is
// negative. Pre-2.0 shaders test xyz only.
func (g *generator) texkill(ins *d3d9.Instruction) error {
	v := g.desc.Version
	var r dxbc.Operand
	var err error
	if ins.Dest.Type == d3d9.RegTexture && legacyPixel(v) {
		r, err = g.coordinate(ins.Dest.Num)
	} else {
		r, err = g.register(ins.Dest.Register, nil, 0)
	}
	if err != nil {
		return err
	}
	t := g.scratch(0)
	g.b.Emit(dxbc.OpLt, all(t), r, splat(0))
	g.b.Emit(dxbc.OpOr, t.WithMask(dxbc.MaskX), t.Select(0), t.Select(1))
	g.b.Emit(dxbc.OpOr, t.WithMask(dxbc.MaskX), t.Select(0), t.Select(2))
	if v.Major >= 2 {
		g.b.Emit(dxbc.OpOr, t.WithMask(dxbc.MaskX), t.Select(0), t.Select(3))
	}
	g.b.EmitTest(dxbc.OpDiscard, true, t.Select(0))
	return nil
}
