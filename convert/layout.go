// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"slices"

	"golang.org/x/exp/maps"

	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/raster"
)

// outputSemantic returns the semantic a vertex output register carries.
func (a *analyzer) outputSemantic(r d3d9.Register) Semantic {
	if a.desc.Version.Major >= 3 {
		if sem, ok := a.outputDecl[r]; ok {
			return sem
		}
		return TexCoord(uint8(r.Num))
	}
	switch r.Type {
	case d3d9.RegRastOut:
		switch r.Num {
		case d3d9.RastOutFog:
			return SemanticFog
		case d3d9.RastOutPointSize:
			return SemanticPointSize
		}
		return SemanticPosition
	case d3d9.RegAttrOut:
		return Color(uint8(r.Num))
	}
	return TexCoord(uint8(r.Num))
}

// finishVertex resolves the input and output signatures of a vertex shader.
func (a *analyzer) finishVertex() error {
	d := a.desc
	snap := &a.opts.Raster

	// Inputs without a declaration take their semantic from the layout.
	inputs := maps.Keys(a.vertexInputs)
	slices.Sort(inputs)
	for _, n := range inputs {
		r := d3d9.Register{Type: d3d9.RegInput, Num: n}
		if d.Inputs.BySource(r) != nil {
			continue
		}
		sem := TexCoord(uint8(n))
		if a.opts.InputLayout != nil {
			for _, e := range a.opts.InputLayout.Elements {
				if e.Register == n {
					sem = Semantic{Usage: e.Usage, Index: e.UsageIndex}
					break
				}
			}
		}
		d.Inputs.Add(SignatureEntry{
			Semantic:  sem,
			Register:  n,
			Mask:      CompressMask(a.vertexInputs[n]),
			Source:    r,
			HasSource: true,
		})
	}

	written := a.outputOrder
	if d.RelativeOutputs {
		written = maps.Keys(a.outputDecl)
		slices.SortFunc(written, func(x, y d3d9.Register) int {
			return int(x.Num) - int(y.Num)
		})
	}

	var out Signature
	if a.opts.OutputLayout != nil {
		out = *a.opts.OutputLayout.Clone()
		for i := range out.Entries {
			out.Entries[i].HasSource = false
		}
		for _, r := range written {
			if e := out.Find(a.outputSemantic(r)); e != nil && !e.HasSource {
				e.Source, e.HasSource = r, true
			}
		}
	} else {
		out.Add(SignatureEntry{Semantic: SemanticPosition, Register: 0, Mask: CompressMask(0xF)})
		for _, r := range written {
			sem := a.outputSemantic(r)
			reg := out.NextRegister()
			if e := out.Find(sem); e != nil {
				reg = e.Register
			}
			out.Add(SignatureEntry{Semantic: sem, Register: reg, Mask: outputMask(sem), Source: r, HasSource: true})
		}
	}

	if snap.FogEnable && snap.FogTableMode == raster.FogNone && !out.HasFog() && a.opts.OutputLayout == nil {
		out.Add(SignatureEntry{Semantic: SemanticFog, Register: out.NextRegister(), Mask: outputMask(SemanticFog)})
	}
	for _, sem := range a.opts.RequiredOutputs {
		if out.Find(sem) == nil {
			out.Add(SignatureEntry{Semantic: sem, Register: out.NextRegister(), Mask: outputMask(sem)})
		}
	}
	if m := snap.ClipPlaneMask & (1<<raster.MaxClipPlanes - 1); m != 0 {
		if m&0xF != 0 && out.Find(ClipDistance(0)) == nil {
			out.Add(SignatureEntry{Semantic: ClipDistance(0), Register: out.NextRegister(), Mask: CompressMask(0xF)})
		}
		if m&0x30 != 0 && out.Find(ClipDistance(1)) == nil {
			out.Add(SignatureEntry{Semantic: ClipDistance(1), Register: out.NextRegister(), Mask: CompressMask(0x3)})
		}
	}
	d.Outputs = out
	return nil
}

// outputMask returns the components a vertex output of sem carries.
func outputMask(sem Semantic) CompressedMask {
	switch sem.Usage {
	case d3d9.UsageFog, d3d9.UsagePointSize:
		return CompressMask(0x1)
	}
	return CompressMask(0xF)
}

// pixelSemantic returns the semantic a pixel input register reads.
func (a *analyzer) pixelSemantic(r d3d9.Register) (Semantic, bool) {
	if e, ok := a.inputDecl[r]; ok {
		return e.Semantic, e.Centroid
	}
	v := a.desc.Version
	if r.Type == d3d9.RegInput {
		return Color(uint8(r.Num)), false
	}
	if v.Major < 2 && r.Num < raster.MaxTexCoords {
		return TexCoord(a.opts.Raster.TexCoordIndex[r.Num] & (raster.MaxTexCoords - 1)), false
	}
	return TexCoord(uint8(r.Num)), false
}

// finishPixel binds pixel inputs to the upstream vertex output registers.
func (a *analyzer) finishPixel() error {
	d := a.desc
	v := d.Version
	snap := &a.opts.Raster
	up := a.opts.Upstream

	if v.Major == 1 {
		// r0 is the color output of ps_1_x.
		d.ColorOutputs |= 1
		d.Registers.Allocate(RegisterKey{Category: CatTemp, Num: 0})
	}
	if legacyPixel(v) {
		// Texture temps start out holding their coordinates.
		for _, k := range d.Registers.Keys() {
			if k.Category == CatTexture {
				a.readInput(d3d9.Register{Type: d3d9.RegTexture, Num: k.Num}, 0xF)
			}
		}
	}

	if len(a.inputOrder) > 0 && up == nil {
		return NewError(InvalidArgument, "pixel shader reads inputs but no upstream output layout was given")
	}
	if up == nil {
		up = &Signature{}
	}

	next := up.NextRegister()
	var sprite *uint32
	added := make(map[Semantic]uint32)
	bind := func(sem Semantic) uint32 {
		if snap.PointSprite && sem.Usage == d3d9.UsageTexCoord {
			if e := up.Find(SemanticSpriteCoord); e != nil {
				return e.Register
			}
			if sprite == nil {
				reg := next
				next++
				sprite = &reg
			}
			return *sprite
		}
		if e := up.Find(sem); e != nil {
			return e.Register
		}
		if reg, ok := added[sem]; ok {
			return reg
		}
		reg := next
		next++
		added[sem] = reg
		d.AddedSemantics = append(d.AddedSemantics, sem)
		return reg
	}

	for _, r := range a.inputOrder {
		sem, centroid := a.pixelSemantic(r)
		reg := bind(sem)
		d.InputMap[r] = reg
		d.Inputs.Add(SignatureEntry{
			Semantic:  sem,
			Register:  reg,
			Mask:      CompressMask(a.inputMasks[r]),
			Source:    r,
			HasSource: true,
			Centroid:  centroid,
		})
		d.InputRegisters = max(d.InputRegisters, reg+1)
	}

	needPosition := d.UsesPosition
	if snap.FogEnable {
		switch {
		case snap.FogTableMode != raster.FogNone:
			d.Fog = FogSource{Kind: FogTable}
			needPosition = true
		case up.Find(SemanticFog) != nil:
			e := up.Find(SemanticFog)
			d.Fog = FogSource{Kind: FogVertex, Register: e.Register}
			d.Inputs.Add(SignatureEntry{Semantic: SemanticFog, Register: e.Register, Mask: CompressMask(0x1)})
		case up.Find(Color(1)) != nil:
			e := up.Find(Color(1))
			d.Fog = FogSource{Kind: FogSpecular, Register: e.Register}
			d.Inputs.Add(SignatureEntry{Semantic: Color(1), Register: e.Register, Mask: CompressMask(0x8)})
		default:
			d.Fog = FogSource{Kind: FogConstant}
		}
	}

	if needPosition {
		d.UsesPosition = true
		if e := up.Find(SemanticPosition); e != nil {
			d.PositionInput = e.Register
		}
	}
	if d.UsesFace {
		d.FaceInput = max(next, d.Inputs.NextRegister())
		if needPosition {
			d.FaceInput = max(d.FaceInput, d.PositionInput+1)
		}
	}
	return nil
}
