// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"slices"

	"golang.org/x/exp/maps"

	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/raster"
)

// stageWriter is the stage-specific part of a conversion. The opcode
// translation is shared; stages differ in what runs before and after the
// user program and in their input and output declarations.
type stageWriter interface {
	programType() dxbc.ProgramType
	prologue(g *generator) error
	epilogue(g *generator) error
	declareIO(b *dxbc.ProgramBuilder, d *ShaderDescriptor, snap *raster.Snapshot)
}

type vertexStage struct{}

func (vertexStage) programType() dxbc.ProgramType { return dxbc.VertexShader }

// prologue converts vertex elements the target cannot fetch in their legacy
// format and copies relatively addressed inputs into x0.
func (vertexStage) prologue(g *generator) error {
	d := g.desc
	elements := maps.Keys(d.Conversions)
	slices.Sort(elements)
	for _, n := range elements {
		if _, read := g.desc.Registers.Lookup(RegisterKey{Category: CatInputStage, Num: n}).Index(); !read {
			continue
		}
		t, err := g.temp(RegisterKey{Category: CatInputStage, Num: n})
		if err != nil {
			return err
		}
		g.convertElement(t, dxbc.Input(n), d.Conversions[n])
	}
	if !d.RelativeInputs {
		return nil
	}
	for _, e := range d.Inputs.Entries {
		if !e.HasSource {
			continue
		}
		src := dxbc.Input(e.Register)
		if _, ok := d.Conversions[e.Register]; ok {
			if t, err := g.temp(RegisterKey{Category: CatInputStage, Num: e.Register}); err == nil {
				src = t
			}
		}
		g.b.Emit(dxbc.OpMov, all(dxbc.IndexableTemp(0, e.Source.Num)), src)
	}
	return nil
}

// convertElement unpacks one vertex element into t.
func (g *generator) convertElement(t, v dxbc.Operand, c Conversion) {
	switch c {
	case ConvertUIntToFloat:
		g.b.Emit(dxbc.OpUtoF, all(t), v)
	case ConvertSIntToFloat:
		g.b.Emit(dxbc.OpItoF, all(t), v)
	case ConvertUDec3:
		g.b.Emit(dxbc.OpUShr, t.WithMask(dxbc.MaskXYZ), v.Replicate(0), dxbc.ImmU32(0, 10, 20, 0))
		g.b.Emit(dxbc.OpAnd, t.WithMask(dxbc.MaskXYZ), t, splatU(0x3FF))
		g.b.Emit(dxbc.OpUtoF, t.WithMask(dxbc.MaskXYZ), t)
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskW), dxbc.ScalarF32(1))
	case ConvertDec3N:
		// Shift each 10-bit field to the top, then sign-extend it down.
		g.b.Emit(dxbc.OpIShl, t.WithMask(dxbc.MaskXYZ), v.Replicate(0), dxbc.ImmU32(22, 12, 2, 0))
		g.b.Emit(dxbc.OpIShr, t.WithMask(dxbc.MaskXYZ), t, splatU(22))
		g.b.Emit(dxbc.OpItoF, t.WithMask(dxbc.MaskXYZ), t)
		g.b.Emit(dxbc.OpMul, t.WithMask(dxbc.MaskXYZ), t, splat(1.0/511))
		g.b.Emit(dxbc.OpMax, t.WithMask(dxbc.MaskXYZ), t, splat(-1))
		g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskW), dxbc.ScalarF32(1))
	case ConvertSwapRB:
		g.b.Emit(dxbc.OpMov, all(t), v.WithSwizzle(2, 1, 0, 3))
	default:
		g.b.Emit(dxbc.OpMov, all(t), v)
	}
}

// epilogue copies every output of the resolved layout to its target
// register, filling outputs the shader never wrote with the fixed-function
// defaults.
func (vertexStage) epilogue(g *generator) error {
	d := g.desc
	var position dxbc.Operand
	hasPosition := false
	if e := d.Outputs.Find(SemanticPosition); e != nil && e.HasSource {
		p, err := g.register(e.Source, nil, 0)
		if err != nil {
			return err
		}
		position, hasPosition = p, true
	}

	for _, e := range d.Outputs.Entries {
		o := dxbc.Output(e.Register).WithMask(e.Mask.Expand())
		if e.Semantic.Usage == usageClipDistance {
			g.clipDistances(o, e, position, hasPosition)
			continue
		}
		if !e.HasSource {
			g.defaultOutput(o, e.Semantic)
			continue
		}
		src, err := g.register(e.Source, nil, 0)
		if err != nil {
			return err
		}
		switch e.Semantic.Usage {
		case d3d9.UsagePosition:
			t := g.scratch(0)
			g.b.Emit(dxbc.OpMov, all(t), src)
			g.b.Emit(dxbc.OpMad, t.WithMask(dxbc.MaskXY), t.Replicate(3),
				dxbc.ConstBuffer(CBSystem, SysHalfPixel).WithSwizzle(0, 1, 0, 1), t)
			g.b.Emit(dxbc.OpMov, o, t)
		case d3d9.UsageColor:
			g.b.EmitSat(dxbc.OpMov, o, src)
		case d3d9.UsageFog, d3d9.UsagePointSize:
			g.b.Emit(dxbc.OpMov, o, src.Replicate(0))
		default:
			g.b.Emit(dxbc.OpMov, o, src)
		}
	}
	return nil
}

// defaultOutput writes the value the fixed-function pipeline supplies for
// an output the shader does not produce.
func (g *generator) defaultOutput(o dxbc.Operand, sem Semantic) {
	switch sem.Usage {
	case d3d9.UsageFog:
		// Without a fog output the factor comes from the specular alpha.
		if e := g.desc.Outputs.Find(Color(1)); e != nil && e.HasSource && g.snap.FogEnable {
			if specular, err := g.register(e.Source, nil, 0); err == nil {
				g.b.EmitSat(dxbc.OpMov, o, specular.Replicate(3))
				return
			}
		}
		g.b.Emit(dxbc.OpMov, o, splat(1))
	case d3d9.UsagePointSize:
		g.b.Emit(dxbc.OpMov, o, dxbc.ConstBuffer(CBSystem, SysPointSize).Replicate(0))
	case d3d9.UsageColor:
		if sem.Index == 0 {
			g.b.Emit(dxbc.OpMov, o, splat(1))
		} else {
			g.b.Emit(dxbc.OpMov, o, splat(0))
		}
	case d3d9.UsagePosition, d3d9.UsageTexCoord:
		g.b.Emit(dxbc.OpMov, o, dxbc.ImmF32(0, 0, 0, 1))
	default:
		g.b.Emit(dxbc.OpMov, o, splat(0))
	}
}

// clipDistances writes the distance of the position to each enabled user
// clip plane; disabled lanes are zero.
func (g *generator) clipDistances(o dxbc.Operand, e SignatureEntry, position dxbc.Operand, ok bool) {
	mask := e.Mask.Expand()
	for lane := uint8(0); lane < 4; lane++ {
		if mask&(1<<lane) == 0 {
			continue
		}
		plane := uint32(e.Semantic.Index)*4 + uint32(lane)
		dst := o.WithMask(1 << lane)
		if !ok || plane >= raster.MaxClipPlanes || g.snap.ClipPlaneMask&(1<<plane) == 0 {
			g.b.Emit(dxbc.OpMov, dst, dxbc.ScalarF32(0))
			continue
		}
		g.b.Emit(dxbc.OpDp4, dst, position, dxbc.ConstBuffer(CBSystem, SysClipPlane+plane))
	}
}

func (vertexStage) declareIO(b *dxbc.ProgramBuilder, d *ShaderDescriptor, _ *raster.Snapshot) {
	for _, reg := range registersOf(&d.Inputs) {
		b.DeclareInput(reg, maskOf(&d.Inputs, reg))
	}
	declareVertexOutputs(b, &d.Outputs)
}

// declareVertexOutputs declares a vertex output signature. Position and
// clip distances carry their system values.
func declareVertexOutputs(b *dxbc.ProgramBuilder, out *Signature) {
	for _, reg := range registersOf(out) {
		mask := maskOf(out, reg)
		e := out.ByRegister(reg)
		switch e.Semantic.Usage {
		case d3d9.UsagePosition:
			b.DeclareOutputSIV(reg, mask, dxbc.SVPosition)
		case usageClipDistance:
			b.DeclareOutputSIV(reg, mask, dxbc.SVClipDistance)
		default:
			b.DeclareOutput(reg, mask)
		}
	}
}

// registersOf returns the distinct registers of a signature in ascending
// order.
func registersOf(s *Signature) []uint32 {
	seen := make(map[uint32]struct{})
	for _, e := range s.Entries {
		seen[e.Register] = struct{}{}
	}
	regs := maps.Keys(seen)
	slices.Sort(regs)
	return regs
}

// maskOf returns the union of the masks bound to reg.
func maskOf(s *Signature, reg uint32) uint8 {
	var m uint8
	for _, e := range s.Entries {
		if e.Register == reg {
			m |= e.Mask.Expand()
		}
	}
	return m
}
