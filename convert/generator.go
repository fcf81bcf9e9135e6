// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"errors"

	"go.uber.org/zap"

	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/raster"
)

// generator replays the analyzed stream into a target program. One
// generator serves one conversion.
type generator struct {
	desc  *ShaderDescriptor
	opts  *Options
	snap  *raster.Snapshot
	log   *zap.Logger
	b     *dxbc.ProgramBuilder
	stage stageWriter

	loops loopStack
	// depth counts open if and loop blocks.
	depth int
	// subroutine is set once the first label is seen.
	subroutine bool
	// epilogueDone is set when the fixed-function epilogue was written at
	// the end of the main program.
	epilogueDone bool
	// returned is set by a ret at depth zero of the main program.
	returned bool
	// skipping drops computation after an unconditional break.
	skipping bool
	skipped  int

	coissueStage bool
	deferred     []deferredMove

	guards int

	// pads holds the texture registers of the pending texm3x2pad and
	// texm3x3pad instructions.
	pads []uint32
}

func newGenerator(desc *ShaderDescriptor, opts *Options, b *dxbc.ProgramBuilder, stage stageWriter) *generator {
	return &generator{
		desc:  desc,
		opts:  opts,
		snap:  &opts.Raster,
		log:   opts.logger(),
		b:     b,
		stage: stage,
	}
}

// run emits the prologue, every instruction and the epilogue.
func (g *generator) run() error {
	if err := g.stage.prologue(g); err != nil {
		return err
	}
	stream := g.desc.Instructions
	for i := range stream {
		ins := &stream[i]
		if ins.Kind != d3d9.KindInstruction {
			continue
		}
		if g.skipping {
			if !ins.Opcode.IsFlowControl() {
				g.skipped++
				g.log.Debug("dropped instruction after break",
					zap.Stringer("opcode", ins.Opcode), zap.Int("offset", ins.Offset))
				continue
			}
			g.skipping = false
		}
		g.coissueStage = i+1 < len(stream) && stream[i+1].Coissue && coissueConflict(ins, &stream[i+1])
		if err := g.instruction(ins); err != nil {
			return at(err, ins.Offset)
		}
		g.coissueStage = false
		if ins.Coissue {
			g.flushDeferred()
		}
	}
	if g.depth != 0 || g.loops.depth() != 0 {
		return NewError(MalformedStream, "unterminated block at end of stream")
	}
	if !g.subroutine {
		if err := g.epilogue(true); err != nil {
			return err
		}
		if !g.returned {
			g.b.Emit(dxbc.OpRet)
		}
	}
	if g.skipped > 0 {
		g.log.Debug("instructions dropped after break", zap.Int("count", g.skipped))
	}
	return nil
}

// at attaches a stream offset to errors that do not carry one.
func at(err error, offset int) error {
	var e *Error
	if errors.As(err, &e) && e.Offset < 0 {
		return &Error{Kind: e.Kind, Message: e.Message, Offset: offset}
	}
	return err
}

// coissueConflict reports whether second reads a register first writes.
// Such pairs must see the values from before the pair.
func coissueConflict(first, second *d3d9.Instruction) bool {
	if !first.HasDest {
		return false
	}
	for _, s := range second.Src {
		if s.Register == first.Dest.Register {
			return true
		}
	}
	return false
}

func (g *generator) flushDeferred() {
	for _, m := range g.deferred {
		g.b.Emit(dxbc.OpMov, m.dst, m.src)
	}
	g.deferred = g.deferred[:0]
}

// epilogue writes the fixed-function tail once. A ret nested in a block
// writes a copy that does not count, so the fall-through path keeps its
// own.
func (g *generator) epilogue(final bool) error {
	if g.epilogueDone {
		return nil
	}
	if final {
		g.epilogueDone = true
	}
	g.log.Debug("writing epilogue", zap.Stringer("stage", g.desc.Stage), zap.Bool("final", final))
	return g.stage.epilogue(g)
}

// instruction translates one legacy instruction.
func (g *generator) instruction(ins *d3d9.Instruction) error {
	switch ins.Opcode {
	case d3d9.OpNop:
		return nil
	case d3d9.OpIf, d3d9.OpIfc, d3d9.OpElse, d3d9.OpEndIf, d3d9.OpLoop, d3d9.OpEndLoop,
		d3d9.OpRep, d3d9.OpEndRep, d3d9.OpBreak, d3d9.OpBreakc, d3d9.OpBreakp,
		d3d9.OpCall, d3d9.OpCallNZ, d3d9.OpLabel, d3d9.OpRet:
		return g.flow(ins)
	case d3d9.OpTexKill:
		return g.texkill(ins)
	case d3d9.OpTexM3x2Pad, d3d9.OpTexM3x3Pad:
		return g.texPad(ins)
	case d3d9.OpTexM3x2Depth:
		return g.texM3x2Depth(ins)
	case d3d9.OpTexDepth:
		return g.texDepth(ins)
	}
	if !ins.HasDest {
		return Errorf(MalformedStream, "%s without destination", ins.Opcode)
	}
	if !g.desc.Pixel() && ins.Dest.Type == d3d9.RegAddr {
		return g.moveAddress(ins)
	}

	out, err := g.destination(ins)
	if err != nil {
		return err
	}
	if err := g.compute(ins, out); err != nil {
		return err
	}
	return g.finish(ins, out)
}

// compute dispatches the opcode-specific expansion.
func (g *generator) compute(ins *d3d9.Instruction, out output) error {
	switch ins.Opcode {
	case d3d9.OpM4x4, d3d9.OpM4x3, d3d9.OpM3x4, d3d9.OpM3x3, d3d9.OpM3x2:
		return g.matrix(ins, out)
	case d3d9.OpTex, d3d9.OpTexLdd, d3d9.OpTexLdl, d3d9.OpTexCoord, d3d9.OpTexBem, d3d9.OpTexBemL,
		d3d9.OpTexReg2AR, d3d9.OpTexReg2GB, d3d9.OpTexReg2RGB, d3d9.OpTexM3x2Tex,
		d3d9.OpTexM3x3Tex, d3d9.OpTexM3x3Spec, d3d9.OpTexM3x3VSpec, d3d9.OpTexM3x3,
		d3d9.OpTexDp3Tex, d3d9.OpTexDp3:
		return g.texture(ins, out)
	}

	src := make([]dxbc.Operand, len(ins.Src))
	for i := range ins.Src {
		var err error
		if src[i], err = g.source(ins, i); err != nil {
			return err
		}
	}
	need := func(n int) error {
		if len(src) < n {
			return Errorf(MalformedStream, "%s needs %d sources, has %d", ins.Opcode, n, len(src))
		}
		return nil
	}
	if err := need(sourceCount(ins.Opcode)); err != nil {
		return err
	}

	switch ins.Opcode {
	case d3d9.OpMov:
		g.emit(out, dxbc.OpMov, src[0])
	case d3d9.OpAdd:
		g.emit(out, dxbc.OpAdd, src[0], src[1])
	case d3d9.OpSub:
		g.emit(out, dxbc.OpAdd, src[0], neg(src[1]))
	case d3d9.OpMul:
		a, b := g.guard(src[0], src[1])
		g.emit(out, dxbc.OpMul, a, b)
	case d3d9.OpMad:
		a, b := g.guard(src[0], src[1])
		g.emit(out, dxbc.OpMad, a, b, src[2])
	case d3d9.OpDp3, d3d9.OpDp4:
		a, b := g.guard(src[0], src[1])
		op := dxbc.OpDp3
		if ins.Opcode == d3d9.OpDp4 {
			op = dxbc.OpDp4
		}
		g.emit(out, op, a, b)
	case d3d9.OpAbs:
		g.emit(out, dxbc.OpMov, abs(src[0]))
	case d3d9.OpFrc:
		g.emit(out, dxbc.OpFrc, src[0])
	case d3d9.OpMin, d3d9.OpMax:
		g.minMax(ins.Opcode == d3d9.OpMin, out, src[0], src[1])
	case d3d9.OpSlt, d3d9.OpSge:
		g.setLess(ins.Opcode == d3d9.OpSge, out, src[0], src[1])
	case d3d9.OpRcp:
		g.rcp(out, src[0])
	case d3d9.OpRsq:
		g.rsq(out, src[0])
	case d3d9.OpExp:
		g.emit(out, dxbc.OpExp, src[0])
	case d3d9.OpLog:
		g.log2(out, src[0])
	case d3d9.OpExpP:
		if g.desc.Version.Major < 2 {
			g.expp(out, src[0])
		} else {
			g.emit(out, dxbc.OpExp, src[0])
		}
	case d3d9.OpLogP:
		if g.desc.Version.Major < 2 {
			g.logp(out, src[0])
		} else {
			g.log2(out, src[0])
		}
	case d3d9.OpLit:
		g.lit(out, src[0])
	case d3d9.OpDst:
		g.dst(out, src[0], src[1])
	case d3d9.OpLrp:
		g.lrp(out, src[0], src[1], src[2])
	case d3d9.OpPow:
		g.pow(out, src[0], src[1])
	case d3d9.OpCrs:
		g.crs(out, src[0], src[1])
	case d3d9.OpSgn:
		g.sgn(out, src[0])
	case d3d9.OpNrm:
		g.nrm(out, src[0])
	case d3d9.OpSinCos:
		g.sincos(out, src[0])
	case d3d9.OpCmp:
		g.cmp(out, src[0], src[1], src[2])
	case d3d9.OpCnd:
		g.cnd(out, src[0], src[1], src[2])
	case d3d9.OpDp2Add:
		g.dp2add(out, src[0], src[1], src[2])
	case d3d9.OpBem:
		g.bem(out, ins.Dest.Num, src[0], src[1])
	case d3d9.OpDsx:
		g.emit(out, dxbc.OpDerivRtx, src[0])
	case d3d9.OpDsy:
		g.emit(out, dxbc.OpDerivRty, src[0])
	case d3d9.OpSetp:
		return g.setp(ins.Comparison(), out, src[0], src[1])
	case d3d9.OpMova:
		return Errorf(MalformedStream, "mova must write a0")
	default:
		return Errorf(MalformedStream, "unsupported opcode %s", ins.Opcode)
	}
	return nil
}

// sourceCount returns how many sources compute reads for op.
func sourceCount(op d3d9.Opcode) int {
	switch op {
	case d3d9.OpMad, d3d9.OpLrp, d3d9.OpCmp, d3d9.OpCnd, d3d9.OpDp2Add:
		return 3
	case d3d9.OpAdd, d3d9.OpSub, d3d9.OpMul, d3d9.OpDp3, d3d9.OpDp4, d3d9.OpMin,
		d3d9.OpMax, d3d9.OpSlt, d3d9.OpSge, d3d9.OpDst, d3d9.OpPow, d3d9.OpCrs,
		d3d9.OpBem, d3d9.OpSetp:
		return 2
	case d3d9.OpLabel:
		return 0
	}
	return 1
}

// moveAddress writes a0. Legacy hardware rounds instead of truncating:
// vs_1_x rounds to nearest even, later versions round half up.
func (g *generator) moveAddress(ins *d3d9.Instruction) error {
	src, err := g.source(ins, 0)
	if err != nil {
		return err
	}
	addr, err := g.temp(RegisterKey{Category: CatAddress})
	if err != nil {
		return err
	}
	t := g.scratch(0)
	if g.desc.Version.Major < 2 {
		g.b.Emit(dxbc.OpRoundNE, t.WithMask(dxbc.MaskXYZW), src)
	} else {
		g.b.Emit(dxbc.OpAdd, t.WithMask(dxbc.MaskXYZW), src, splat(0.5))
		g.b.Emit(dxbc.OpRoundNI, t.WithMask(dxbc.MaskXYZW), t)
	}
	g.b.Emit(dxbc.OpFtoI, addr.WithMask(uint8(ins.Dest.Mask)), t)
	return nil
}
