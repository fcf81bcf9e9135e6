// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"github.com/gogpu/shaderconv/d3d9"
)

// loopFrame is one level of loop/rep nesting.
type loopFrame struct {
	// slot is the loop counter temp: x counts down, y is aL, z the step.
	slot uint32
	// loop is false for rep, which does not define aL.
	loop bool
}

// loopStack tracks loop nesting and hands out one counter slot per depth.
// The analyzer and the generator walk the same stream, so they see the
// same depths and slots.
type loopStack struct {
	frames []loopFrame
}

// push enters a loop at the next depth. The slot for that depth is
// allocated in regs on first use.
func (s *loopStack) push(regs *RegisterFile, loop bool, offset int) (loopFrame, error) {
	depth := len(s.frames)
	if depth >= MaxLoopDepth {
		return loopFrame{}, errorAt(CapacityExceeded, offset, "loop nesting deeper than %d", MaxLoopDepth)
	}
	f := loopFrame{slot: regs.Allocate(RegisterKey{Category: CatLoop, Num: uint32(depth)}), loop: loop}
	s.frames = append(s.frames, f)
	return f, nil
}

// pop leaves the innermost loop.
func (s *loopStack) pop(loop bool, offset int) (loopFrame, error) {
	if len(s.frames) == 0 {
		return loopFrame{}, errorAt(MalformedStream, offset, "end of loop without loop")
	}
	f := s.frames[len(s.frames)-1]
	if f.loop != loop {
		return loopFrame{}, errorAt(MalformedStream, offset, "mismatched loop terminator")
	}
	s.frames = s.frames[:len(s.frames)-1]
	return f, nil
}

// current returns the innermost loop that defines aL.
func (s *loopStack) current() (loopFrame, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].loop {
			return s.frames[i], true
		}
	}
	return loopFrame{}, false
}

func (s *loopStack) depth() int {
	return len(s.frames)
}

// legacyPixel reports whether v is a pixel shader older than 1.4, where
// texture registers are temps written by texture-address instructions.
func legacyPixel(v d3d9.Version) bool {
	return v.IsPixel() && v.Major == 1 && v.Minor < 4
}

// allocate assigns the flat temp slot of a referenced register. Registers
// that do not live in temps (inputs, constants, samplers, labels) are
// ignored here.
func (a *analyzer) allocate(r d3d9.Register, offset int) error {
	d := a.desc
	v := d.Version
	regs := d.Registers
	switch r.Type {
	case d3d9.RegTemp:
		regs.Allocate(RegisterKey{Category: CatTemp, Num: r.Num})
	case d3d9.RegPredicate:
		regs.Allocate(RegisterKey{Category: CatPredicate})
	case d3d9.RegDepthOut:
		regs.Allocate(RegisterKey{Category: CatDepth})
	case d3d9.RegColorOut:
		if r.Num >= 4 {
			return errorAt(MalformedStream, offset, "color output oC%d out of range", r.Num)
		}
		regs.Allocate(RegisterKey{Category: CatColorOut, Num: r.Num})
	case d3d9.RegAddr: // also RegTexture
		if !v.IsPixel() {
			regs.Allocate(RegisterKey{Category: CatAddress})
		} else if legacyPixel(v) {
			regs.Allocate(RegisterKey{Category: CatTexture, Num: r.Num})
		}
	case d3d9.RegRastOut, d3d9.RegAttrOut, d3d9.RegOutput:
		if !v.IsPixel() && !d.RelativeOutputs {
			regs.Allocate(RegisterKey{Category: CatOutput, Num: outputKey(r)})
		}
	case d3d9.RegMiscType:
		switch r.Num {
		case d3d9.MiscPosition:
			d.UsesPosition = true
			regs.Allocate(RegisterKey{Category: CatInputStage, Num: stagePosition})
		case d3d9.MiscFace:
			d.UsesFace = true
			regs.Allocate(RegisterKey{Category: CatInputStage, Num: stageFace})
		default:
			return errorAt(MalformedStream, offset, "invalid misc register %d", r.Num)
		}
	case d3d9.RegInput:
		if !v.IsPixel() {
			if _, ok := d.Conversions[r.Num]; ok {
				regs.Allocate(RegisterKey{Category: CatInputStage, Num: r.Num})
			}
		}
	}
	return nil
}

// validDest reports whether a register type may be written by shaders of
// version v.
func validDest(v d3d9.Version, t d3d9.RegisterType) bool {
	if v.IsPixel() {
		switch t {
		case d3d9.RegTemp:
			return true
		case d3d9.RegTexture:
			return legacyPixel(v)
		case d3d9.RegColorOut, d3d9.RegDepthOut:
			return v.Major >= 2
		case d3d9.RegPredicate:
			return v.AtLeast(2, 1)
		}
		return false
	}
	switch t {
	case d3d9.RegTemp, d3d9.RegAddr:
		return true
	case d3d9.RegRastOut, d3d9.RegAttrOut, d3d9.RegTexCrdOut:
		return v.Major < 3 || t == d3d9.RegOutput
	case d3d9.RegPredicate:
		return v.AtLeast(2, 1)
	}
	return false
}

// validSrc reports whether a register type may be read by shaders of
// version v.
func validSrc(v d3d9.Version, t d3d9.RegisterType) bool {
	switch t {
	case d3d9.RegTemp, d3d9.RegInput, d3d9.RegConst, d3d9.RegLabel:
		return true
	case d3d9.RegConstInt, d3d9.RegConstBool, d3d9.RegLoop:
		return v.Major >= 2
	case d3d9.RegPredicate:
		return v.AtLeast(2, 1)
	case d3d9.RegSampler:
		return v.IsPixel() && v.Major >= 2 || v.Major >= 3
	case d3d9.RegAddr: // also RegTexture
		return v.IsPixel() || v.Major >= 2
	case d3d9.RegMiscType:
		return v.IsPixel() && v.Major >= 3
	case d3d9.RegConst2, d3d9.RegConst3, d3d9.RegConst4:
		return !v.IsPixel()
	}
	return false
}

// floatConstIndex returns the flat float constant index of c#, c2048+
// banks included.
func floatConstIndex(r d3d9.Register) uint32 {
	switch r.Type {
	case d3d9.RegConst2:
		return r.Num + 2048
	case d3d9.RegConst3:
		return r.Num + 4096
	case d3d9.RegConst4:
		return r.Num + 6144
	}
	return r.Num
}

func isFloatConst(t d3d9.RegisterType) bool {
	switch t {
	case d3d9.RegConst, d3d9.RegConst2, d3d9.RegConst3, d3d9.RegConst4:
		return true
	}
	return false
}
