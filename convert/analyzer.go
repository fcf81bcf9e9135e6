// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/raster"
)

// analyzer walks a decoded stream once, building the usage report and the
// register allocation.
type analyzer struct {
	desc *ShaderDescriptor
	opts *Options
	log  *zap.Logger

	loops loopStack

	// fetched holds every constant index read from a buffer, before
	// inline constants are excluded.
	fetched     [3]map[uint32]struct{}
	floatRel    bool
	outputOrder []d3d9.Register
	outputMasks map[d3d9.Register]uint8
	outputDecl  map[d3d9.Register]Semantic
	inputMasks  map[d3d9.Register]uint8
	inputDecl   map[d3d9.Register]SignatureEntry
	inputOrder  []d3d9.Register

	// vertexInputs holds the components read from each vertex input.
	vertexInputs map[uint32]uint8
}

// AnalyzeVertex decodes and analyzes a vertex shader.
func AnalyzeVertex(code []byte, opts *Options) (*ShaderDescriptor, error) {
	return analyze(code, StageVertex, opts)
}

// AnalyzePixel decodes and analyzes a pixel shader against the upstream
// vertex output layout in opts.
func AnalyzePixel(code []byte, opts *Options) (*ShaderDescriptor, error) {
	return analyze(code, StagePixel, opts)
}

func analyze(code []byte, stage Stage, opts *Options) (*ShaderDescriptor, error) {
	if len(code) == 0 {
		return nil, NewError(InvalidArgument, "empty token stream")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	dec, err := d3d9.NewDecoder(code)
	if errors.Is(err, d3d9.ErrInvalidVersion) {
		return nil, errorAt(UnsupportedVersion, 0, "%v", err)
	}
	if err != nil {
		return nil, fromDecode(err)
	}
	v := dec.Version()
	if !v.Supported() {
		return nil, Errorf(UnsupportedVersion, "version %s is not supported", v)
	}
	if v.IsPixel() != (stage == StagePixel) {
		return nil, Errorf(UnsupportedVersion, "%s is not a %s shader", v, stage)
	}

	a := &analyzer{
		desc: &ShaderDescriptor{
			Stage:       stage,
			Version:     v,
			Registers:   NewRegisterFile(ScratchCount),
			Conversions: make(map[uint32]Conversion),
			InputMap:    make(map[d3d9.Register]uint32),
		},
		opts:        opts,
		log:         opts.logger(),
		outputMasks: make(map[d3d9.Register]uint8),
		outputDecl:  make(map[d3d9.Register]Semantic),
		inputMasks:  make(map[d3d9.Register]uint8),
		inputDecl:   make(map[d3d9.Register]SignatureEntry),

		vertexInputs: make(map[uint32]uint8),
	}
	for c := range a.fetched {
		a.fetched[c] = make(map[uint32]struct{})
		a.desc.Inline[c] = make(map[uint32][4]uint32)
	}

	for dec.Next() {
		a.desc.Instructions = append(a.desc.Instructions, dec.Instruction())
	}
	if err := dec.Err(); err != nil {
		return nil, fromDecode(err)
	}

	if err := a.run(); err != nil {
		return nil, err
	}
	return a.desc, nil
}

func (a *analyzer) run() error {
	d := a.desc
	if d.Stage == StageVertex {
		if err := a.bindInputLayout(); err != nil {
			return err
		}
	}
	a.scanRelative()

	for i := range d.Instructions {
		ins := &d.Instructions[i]
		var err error
		switch ins.Kind {
		case d3d9.KindDef:
			err = a.def(ins)
		case d3d9.KindDecl:
			err = a.decl(ins)
		default:
			err = a.instruction(ins)
		}
		if err != nil {
			return err
		}
	}
	if a.loops.depth() != 0 {
		return NewError(MalformedStream, "unterminated loop")
	}

	a.finishConstants()
	var err error
	if d.Stage == StagePixel {
		err = a.finishPixel()
	} else {
		err = a.finishVertex()
	}
	if err != nil {
		return err
	}

	a.log.Debug("analyzed shader",
		zap.Stringer("version", d.Version),
		zap.Int("instructions", len(d.Instructions)),
		zap.Uint32("temps", d.TempCount()),
		zap.Int("user registers", d.Registers.Len()),
		zap.Uint32("float constants", d.Constants[ConstFloat].Registers(ConstFloat)),
		zap.Bool("dynamic", d.Constants[ConstFloat].Dynamic),
		zap.Int("inputs", d.Inputs.Len()),
		zap.Int("outputs", d.Outputs.Len()),
	)
	return nil
}

// bindInputLayout records the per-register conversions of the reference
// vertex input layout.
func (a *analyzer) bindInputLayout() error {
	layout := a.opts.InputLayout
	if layout == nil {
		return nil
	}
	if len(layout.Elements) > MaxInputElements {
		return Errorf(CapacityExceeded, "%d vertex elements, at most %d", len(layout.Elements), MaxInputElements)
	}
	for _, e := range layout.Elements {
		if e.Conversion != ConvertNone {
			a.desc.Conversions[e.Register] = e.Conversion
		}
	}
	return nil
}

// scanRelative finds relatively addressed inputs and outputs up front;
// those register files move to indexable temps as a whole.
func (a *analyzer) scanRelative() {
	d := a.desc
	for i := range d.Instructions {
		ins := &d.Instructions[i]
		if ins.Kind != d3d9.KindInstruction {
			continue
		}
		if ins.HasDest && ins.Dest.Relative != nil && ins.Dest.Type == d3d9.RegOutput && !d.Pixel() {
			d.RelativeOutputs = true
		}
		for _, s := range ins.Src {
			if s.Relative != nil && s.Type == d3d9.RegInput {
				d.RelativeInputs = true
			}
		}
	}
}

func (a *analyzer) def(ins *d3d9.Instruction) error {
	d := a.desc
	r := ins.Def.Dest.Register
	switch ins.Opcode {
	case d3d9.OpDef:
		if !isFloatConst(r.Type) {
			return errorAt(MalformedStream, ins.Offset, "def targets %s", r.Type.Name(d.Pixel()))
		}
		vals := ins.Def.Values
		if d.Pixel() && d.Version.Major == 1 {
			// ps_1_x constants are clamped to [-1, 1].
			for i, bits := range vals {
				f := math.Float32frombits(bits)
				vals[i] = math.Float32bits(float32(math.Max(-1, math.Min(1, float64(f)))))
			}
		}
		d.Inline[ConstFloat][floatConstIndex(r)] = vals
	case d3d9.OpDefI:
		if r.Type != d3d9.RegConstInt {
			return errorAt(MalformedStream, ins.Offset, "defi targets %s", r.Type.Name(d.Pixel()))
		}
		d.Inline[ConstInt][r.Num] = ins.Def.Values
	case d3d9.OpDefB:
		if r.Type != d3d9.RegConstBool {
			return errorAt(MalformedStream, ins.Offset, "defb targets %s", r.Type.Name(d.Pixel()))
		}
		b := ins.Def.Values[0]
		if b != 0 {
			b = 1
		}
		d.Inline[ConstBool][r.Num] = [4]uint32{b, b, b, b}
	}
	return nil
}

func (a *analyzer) decl(ins *d3d9.Instruction) error {
	d := a.desc
	v := d.Version
	dcl := ins.Decl
	r := dcl.Dest.Register
	centroid := dcl.Dest.Modifiers&d3d9.ResultCentroid != 0
	switch {
	case r.Type == d3d9.RegSampler:
		if r.Num >= raster.MaxSamplers {
			return errorAt(MalformedStream, ins.Offset, "sampler s%d out of range", r.Num)
		}
		t := dcl.TextureType
		if t == d3d9.TextureUnknown {
			t = d3d9.Texture2D
		}
		d.Samplers[r.Num] = t
	case r.Type == d3d9.RegInput && !d.Pixel():
		a.inputDecl[r] = SignatureEntry{Semantic: Semantic{Usage: dcl.Usage, Index: dcl.UsageIndex}}
		d.Inputs.Add(SignatureEntry{
			Semantic:  Semantic{Usage: dcl.Usage, Index: dcl.UsageIndex},
			Register:  r.Num,
			Mask:      CompressMask(uint8(dcl.Dest.Mask)),
			Source:    r,
			HasSource: true,
		})
		d.InputRegisters = max(d.InputRegisters, r.Num+1)
	case r.Type == d3d9.RegOutput && !d.Pixel():
		a.outputDecl[r] = Semantic{Usage: dcl.Usage, Index: dcl.UsageIndex}
	case r.Type == d3d9.RegInput && d.Pixel():
		sem := Color(uint8(r.Num))
		if v.Major >= 3 {
			sem = Semantic{Usage: dcl.Usage, Index: dcl.UsageIndex}
		}
		a.inputDecl[r] = SignatureEntry{Semantic: sem, Centroid: centroid}
		a.readInput(r, uint8(dcl.Dest.Mask))
	case r.Type == d3d9.RegTexture && d.Pixel():
		a.inputDecl[r] = SignatureEntry{Semantic: TexCoord(uint8(r.Num)), Centroid: centroid}
		a.readInput(r, uint8(dcl.Dest.Mask))
	case r.Type == d3d9.RegMiscType && d.Pixel():
		return a.allocate(r, ins.Offset)
	default:
		return errorAt(MalformedStream, ins.Offset, "invalid declaration of %s%d", r.Type.Name(d.Pixel()), r.Num)
	}
	return nil
}

func (a *analyzer) readInput(r d3d9.Register, mask uint8) {
	if _, seen := a.inputMasks[r]; !seen {
		a.inputOrder = append(a.inputOrder, r)
	}
	a.inputMasks[r] |= mask
}

func (a *analyzer) instruction(ins *d3d9.Instruction) error {
	d := a.desc
	v := d.Version

	switch ins.Opcode {
	case d3d9.OpLoop, d3d9.OpRep:
		if _, err := a.loops.push(d.Registers, ins.Opcode == d3d9.OpLoop, ins.Offset); err != nil {
			return err
		}
		d.LoopCount++
		d.LoopDepth = max(d.LoopDepth, a.loops.depth())
	case d3d9.OpEndLoop, d3d9.OpEndRep:
		if _, err := a.loops.pop(ins.Opcode == d3d9.OpEndLoop, ins.Offset); err != nil {
			return err
		}
	case d3d9.OpLabel:
		d.LabelCount++
	}

	if stage, ok := samplerStage(v, ins); ok {
		if stage >= raster.MaxSamplers {
			return errorAt(MalformedStream, ins.Offset, "sampler stage %d out of range", stage)
		}
		d.SamplerMask |= 1 << stage
		if d.Samplers[stage] == d3d9.TextureUnknown {
			d.Samplers[stage] = textureTypeOf(a.opts.Raster.Samplers[stage].Kind)
		}
	}
	if stage, ok := texcoordStage(v, ins); ok {
		a.readInput(d3d9.Register{Type: d3d9.RegTexture, Num: stage}, uint8(d3d9.MaskAll))
	}

	if ins.Predicated {
		if err := a.source(ins, ins.Predicate, d3d9.MaskAll, 1); err != nil {
			return err
		}
	}
	if ins.HasDest {
		if err := a.dest(ins); err != nil {
			return err
		}
	}
	mask := d3d9.MaskAll
	if ins.HasDest && ins.Opcode != d3d9.OpTexKill {
		mask = ins.Dest.Mask
	}
	for i, s := range ins.Src {
		rows := uint32(1)
		if i == 1 {
			rows = matrixRows(ins.Opcode)
		}
		if err := a.source(ins, s, mask, rows); err != nil {
			return err
		}
	}
	return nil
}

func (a *analyzer) dest(ins *d3d9.Instruction) error {
	d := a.desc
	v := d.Version
	dst := ins.Dest
	if ins.Opcode == d3d9.OpTexKill {
		// texkill names the register it tests in the destination slot.
		if !validSrc(v, dst.Type) && !(legacyPixel(v) && dst.Type == d3d9.RegTexture) {
			return errorAt(MalformedStream, ins.Offset, "texkill of %s", dst.Type.Name(d.Pixel()))
		}
		if v.IsPixel() && dst.Type == d3d9.RegTexture {
			// Tests the texture coordinate, not a texture temp.
			a.readInput(dst.Register, uint8(d3d9.MaskAll))
			return nil
		}
		return a.allocate(dst.Register, ins.Offset)
	}
	if !validDest(v, dst.Type) {
		return errorAt(MalformedStream, ins.Offset, "%s cannot write %s", ins.Opcode, dst.Type.Name(d.Pixel()))
	}
	if dst.Relative != nil {
		if err := a.relative(ins, dst.Relative); err != nil {
			return err
		}
	}
	switch dst.Type {
	case d3d9.RegRastOut, d3d9.RegAttrOut, d3d9.RegOutput:
		if !d.Pixel() {
			if dst.Relative != nil {
				// The whole output file is addressable; record the span.
				d.OutputRegisters = max(d.OutputRegisters, 12)
			} else {
				if _, seen := a.outputMasks[dst.Register]; !seen {
					a.outputOrder = append(a.outputOrder, dst.Register)
				}
				a.outputMasks[dst.Register] |= uint8(dst.Mask)
			}
		}
	case d3d9.RegColorOut:
		d.ColorOutputs |= 1 << dst.Num
	case d3d9.RegDepthOut:
		d.WritesDepth = true
	}
	if ins.Opcode == d3d9.OpTexM3x2Depth || ins.Opcode == d3d9.OpTexDepth {
		d.WritesDepth = true
		d.Registers.Allocate(RegisterKey{Category: CatDepth})
	}
	return a.allocate(dst.Register, ins.Offset)
}

func (a *analyzer) source(ins *d3d9.Instruction, s d3d9.SrcParam, mask d3d9.WriteMask, rows uint32) error {
	d := a.desc
	v := d.Version
	if !validSrc(v, s.Type) {
		return errorAt(MalformedStream, ins.Offset, "%s cannot read %s", ins.Opcode, s.Type.Name(d.Pixel()))
	}
	if s.Relative != nil {
		if err := a.relative(ins, s.Relative); err != nil {
			return err
		}
	}

	read := readMask(s.Swizzle, mask)
	switch {
	case isFloatConst(s.Type):
		idx := floatConstIndex(s.Register)
		if s.Relative != nil {
			a.floatRel = true
		}
		for row := uint32(0); row < rows; row++ {
			a.fetched[ConstFloat][idx+row] = struct{}{}
		}
	case s.Type == d3d9.RegConstInt:
		a.fetched[ConstInt][s.Num] = struct{}{}
	case s.Type == d3d9.RegConstBool:
		a.fetched[ConstBool][s.Num] = struct{}{}
	case s.Type == d3d9.RegInput:
		if d.Pixel() {
			a.readInput(s.Register, read)
		} else {
			a.vertexInputs[s.Num] |= read
			d.InputRegisters = max(d.InputRegisters, s.Num+1)
			if s.Relative != nil {
				d.InputRegisters = max(d.InputRegisters, 16)
			}
		}
	case s.Type == d3d9.RegTexture && d.Pixel() && !legacyPixel(v):
		a.readInput(s.Register, read)
	case s.Type == d3d9.RegSampler:
		if s.Num >= raster.MaxSamplers {
			return errorAt(MalformedStream, ins.Offset, "sampler s%d out of range", s.Num)
		}
	case s.Type == d3d9.RegLoop:
		if _, ok := a.loops.current(); !ok {
			return errorAt(MalformedStream, ins.Offset, "aL used outside a loop")
		}
	}
	if s.Type == d3d9.RegInput && d.Pixel() && d.RelativeInputs {
		d.InputRegisters = max(d.InputRegisters, 10)
	}
	for row := uint32(0); row < rows; row++ {
		r := s.Register
		r.Num += row
		if err := a.allocate(r, ins.Offset); err != nil {
			return err
		}
	}
	return nil
}

func (a *analyzer) relative(ins *d3d9.Instruction, rel *d3d9.RelativeAddress) error {
	if rel.Register.Type == d3d9.RegLoop {
		if _, ok := a.loops.current(); !ok {
			return errorAt(MalformedStream, ins.Offset, "aL used outside a loop")
		}
		return nil
	}
	if a.desc.Pixel() {
		return errorAt(MalformedStream, ins.Offset, "pixel shaders have no address register")
	}
	return a.allocate(rel.Register, ins.Offset)
}

// matrixRows returns how many consecutive registers the second source of
// op spans: the matrix operand of m4x4 and friends covers several rows.
func matrixRows(op d3d9.Opcode) uint32 {
	switch op {
	case d3d9.OpM4x4, d3d9.OpM3x4:
		return 4
	case d3d9.OpM4x3, d3d9.OpM3x3:
		return 3
	case d3d9.OpM3x2:
		return 2
	}
	return 1
}

// readMask returns the components a swizzle reads for the written lanes.
func readMask(s d3d9.Swizzle, lanes d3d9.WriteMask) uint8 {
	if lanes == 0 {
		lanes = d3d9.MaskAll
	}
	var m uint8
	for i := 0; i < 4; i++ {
		if lanes.Has(i) {
			m |= 1 << s.Component(i)
		}
	}
	return m
}

// finishConstants computes the buffer ranges. Inline constants are
// excluded, unless float constants are relatively addressed anywhere: then
// the float range covers the whole register file.
func (a *analyzer) finishConstants() {
	d := a.desc
	for c := ConstFloat; c <= ConstBool; c++ {
		for idx := range a.fetched[c] {
			if _, inline := d.Inline[c][idx]; inline && !(c == ConstFloat && a.floatRel) {
				continue
			}
			d.Constants[c].touch(idx)
		}
	}
	if a.floatRel {
		u := &d.Constants[ConstFloat]
		u.Dynamic = true
		u.Used = true
		u.Min = 0
		u.Max = d.Version.MaxFloatConstants() - 1
	}
}
