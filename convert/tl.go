// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/raster"
)

// tlStage is the synthesized vertex program of pre-transformed, pre-lit
// vertices. There is no user program; the epilogue does all the work.
type tlStage struct{}

func (tlStage) programType() dxbc.ProgramType { return dxbc.VertexShader }

// prologue unpacks the elements that need a format conversion.
func (tlStage) prologue(g *generator) error {
	return vertexStage{}.prologue(g)
}

// epilogue maps the screen space position to clip space and passes every
// other element through.
func (tlStage) epilogue(g *generator) error {
	d := g.desc
	for _, e := range d.Outputs.Entries {
		o := dxbc.Output(e.Register).WithMask(e.Mask.Expand())
		if !e.HasSource {
			g.defaultOutput(o, e.Semantic)
			continue
		}
		v, err := g.register(e.Source, nil, 0)
		if err != nil {
			return err
		}
		switch e.Semantic.Usage {
		case d3d9.UsagePosition:
			t := g.scratch(0)
			vp := dxbc.ConstBuffer(CBSystem, SysViewport)
			// w = 1/rhw; xyz are scaled by w to undo the perspective divide.
			g.b.Emit(dxbc.OpDiv, t.WithMask(dxbc.MaskW), dxbc.ScalarF32(1), sel(v, 3))
			g.b.Emit(dxbc.OpMad, t.WithMask(dxbc.MaskXY), v, vp.WithSwizzle(0, 1, 0, 1), vp.WithSwizzle(2, 3, 2, 3))
			g.b.Emit(dxbc.OpMov, t.WithMask(dxbc.MaskZ), sel(v, 2))
			g.b.Emit(dxbc.OpMul, t.WithMask(dxbc.MaskXYZ), t, t.Replicate(3))
			g.b.Emit(dxbc.OpMov, o, t)
		case d3d9.UsageColor:
			g.b.EmitSat(dxbc.OpMov, o, v)
		case d3d9.UsageFog, d3d9.UsagePointSize:
			g.b.Emit(dxbc.OpMov, o, v.Replicate(0))
		default:
			g.b.Emit(dxbc.OpMov, o, v)
		}
	}
	return nil
}

func (tlStage) declareIO(b *dxbc.ProgramBuilder, d *ShaderDescriptor, _ *raster.Snapshot) {
	for _, reg := range registersOf(&d.Inputs) {
		b.DeclareInput(reg, maskOf(&d.Inputs, reg))
	}
	declareVertexOutputs(b, &d.Outputs)
}

// describeTL builds the usage report of the transformed vertex program from
// its input layout.
func describeTL(layout *InputLayout, opts *Options) (*ShaderDescriptor, error) {
	if layout == nil || len(layout.Elements) == 0 {
		return nil, NewError(InvalidArgument, "transformed vertex program needs an input layout")
	}
	if len(layout.Elements) > MaxInputElements {
		return nil, Errorf(CapacityExceeded, "input layout has %d elements, limit is %d",
			len(layout.Elements), MaxInputElements)
	}
	d := &ShaderDescriptor{
		Stage:       StageTLVertex,
		Version:     d3d9.Version{Type: d3d9.ShaderVertex, Major: 3},
		Registers:   NewRegisterFile(ScratchCount),
		Conversions: make(map[uint32]Conversion),
		InputMap:    make(map[d3d9.Register]uint32),
	}
	hasPosition := false
	var out Signature
	out.Add(SignatureEntry{Semantic: SemanticPosition, Register: 0, Mask: CompressMask(0xF)})
	for _, el := range layout.Elements {
		sem := Semantic{Usage: el.Usage, Index: el.UsageIndex}
		if el.Usage == d3d9.UsagePositionT || el.Usage == d3d9.UsagePosition && el.UsageIndex == 0 {
			if hasPosition {
				return nil, NewError(InvalidArgument, "input layout has more than one position")
			}
			hasPosition = true
			sem = SemanticPosition
		}
		src := d3d9.Register{Type: d3d9.RegInput, Num: el.Register}
		d.Inputs.Add(SignatureEntry{Semantic: sem, Register: el.Register, Mask: CompressMask(0xF), Source: src, HasSource: true})
		if el.Conversion != ConvertNone {
			d.Conversions[el.Register] = el.Conversion
			d.Registers.Allocate(RegisterKey{Category: CatInputStage, Num: el.Register})
		}
		if sem == SemanticPosition {
			e := out.Find(SemanticPosition)
			e.Source, e.HasSource = src, true
			continue
		}
		if out.Find(sem) != nil {
			continue
		}
		out.Add(SignatureEntry{Semantic: sem, Register: out.NextRegister(), Mask: outputMask(sem), Source: src, HasSource: true})
	}
	if !hasPosition {
		return nil, NewError(InvalidArgument, "input layout has no transformed position")
	}

	if opts.OutputLayout != nil {
		fixed := *opts.OutputLayout.Clone()
		for i := range fixed.Entries {
			e := &fixed.Entries[i]
			e.HasSource = false
			if src := out.Find(e.Semantic); src != nil {
				e.Source, e.HasSource = src.Source, src.HasSource
			}
		}
		out = fixed
	}
	snap := &opts.Raster
	if snap.FogEnable && snap.FogTableMode == raster.FogNone && !out.HasFog() && opts.OutputLayout == nil {
		out.Add(SignatureEntry{Semantic: SemanticFog, Register: out.NextRegister(), Mask: outputMask(SemanticFog)})
	}
	for _, sem := range opts.RequiredOutputs {
		if out.Find(sem) == nil {
			out.Add(SignatureEntry{Semantic: sem, Register: out.NextRegister(), Mask: outputMask(sem)})
		}
	}
	d.Outputs = out
	return d, nil
}
