// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package d3d9

import "encoding/binary"

// Encoder builds a legacy token stream. It is the inverse of Decoder and is
// used by the assembler and by tooling that synthesizes shaders.
type Encoder struct {
	version Version
	tokens  []uint32
}

// NewEncoder starts a stream with the version token of v.
func NewEncoder(v Version) *Encoder {
	return &Encoder{
		version: v,
		tokens:  []uint32{v.Token()},
	}
}

// Version returns the version of the stream being built.
func (e *Encoder) Version() Version {
	return e.version
}

// Comment appends a comment block holding words.
func (e *Encoder) Comment(words []uint32) {
	e.tokens = append(e.tokens, uint32(OpComment)|uint32(len(words))<<commentLengthShift)
	e.tokens = append(e.tokens, words...)
}

// Emit appends ins. Instruction lengths are encoded for versions that carry
// them.
func (e *Encoder) Emit(ins *Instruction) {
	head := len(e.tokens)
	e.tokens = append(e.tokens, 0)

	switch ins.Kind {
	case KindDecl:
		usage := uint32(paramBit) | uint32(ins.Decl.Usage)&usageMask |
			uint32(ins.Decl.UsageIndex)<<usageIndexShift&usageIndexMask |
			uint32(ins.Decl.TextureType)<<texTypeShift&texTypeMask
		e.tokens = append(e.tokens, usage)
		e.emitDest(ins.Decl.Dest)
	case KindDef:
		e.emitDest(ins.Def.Dest)
		n := 4
		if ins.Opcode == OpDefB {
			n = 1
		}
		e.tokens = append(e.tokens, ins.Def.Values[:n]...)
	default:
		if ins.HasDest {
			e.emitDest(ins.Dest)
		}
		if ins.Predicated {
			e.emitSrc(ins.Predicate)
		}
		for _, src := range ins.Src {
			e.emitSrc(src)
		}
	}

	tok := uint32(ins.Opcode) | uint32(ins.Control)<<controlShift
	if e.version.EncodesLength() {
		tok |= uint32(len(e.tokens)-head-1) << lengthShift & lengthMask
	}
	if ins.Predicated {
		tok |= predicatedBit
	}
	if ins.Coissue {
		tok |= coissueBit
	}
	e.tokens[head] = tok
}

// Bytes terminates the stream with the end token and returns its encoding.
func (e *Encoder) Bytes() []byte {
	out := make([]byte, 0, (len(e.tokens)+1)*4)
	for _, tok := range e.tokens {
		out = binary.LittleEndian.AppendUint32(out, tok)
	}
	return binary.LittleEndian.AppendUint32(out, EndToken)
}

func registerBits(r Register) uint32 {
	t := uint32(r.Type)
	return r.Num&regNumMask | (t<<regTypeShift)&regTypeMask | (t<<regType2Shift)&regType2Mask
}

func (e *Encoder) emitDest(d DestParam) {
	tok := uint32(paramBit) | registerBits(d.Register) |
		uint32(d.Mask)<<writeMaskShift&writeMaskMask |
		uint32(d.Modifiers)<<resultModShift&resultModMask |
		uint32(uint8(d.Shift)&0xF)<<shiftShift
	if d.Relative != nil {
		tok |= relativeBit
	}
	e.tokens = append(e.tokens, tok)
	e.emitRelative(d.Relative)
}

func (e *Encoder) emitSrc(s SrcParam) {
	tok := uint32(paramBit) | registerBits(s.Register) |
		uint32(s.Swizzle)<<swizzleShift |
		uint32(s.Modifier)<<srcModShift&srcModMask
	if s.Relative != nil {
		tok |= relativeBit
	}
	e.tokens = append(e.tokens, tok)
	e.emitRelative(s.Relative)
}

func (e *Encoder) emitRelative(rel *RelativeAddress) {
	if rel == nil || !e.version.HasAddressToken() {
		return
	}
	e.tokens = append(e.tokens, uint32(paramBit)|registerBits(rel.Register)|
		uint32(Replicate(rel.Component))<<swizzleShift)
}
