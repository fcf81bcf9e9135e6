// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package d3d9

import (
	"encoding/binary"
	"fmt"
)

// DecodeError reports a malformed token stream.
type DecodeError struct {
	// Offset is the byte offset of the offending token.
	Offset int

	// Reason describes the defect.
	Reason string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("d3d9: malformed stream at byte %d: %s", e.Offset, e.Reason)
}

// Decoder reads instructions from a legacy token stream. It behaves like a
// scanner: call Next until it returns false, then check Err. A decoder can
// be restarted from the beginning of the stream with Reset; instruction
// boundaries of pre-2.0 streams depend on everything before them, so there
// is no way to resume in the middle.
type Decoder struct {
	code    []byte
	version Version

	pos  int
	cur  Instruction
	err  error
	done bool
}

// NewDecoder validates the version token of code and returns a decoder
// positioned on the first instruction. The declared byte length of the
// stream is len(code). A stream too short for a version token is a
// *DecodeError; a bad version token wraps ErrInvalidVersion.
func NewDecoder(code []byte) (*Decoder, error) {
	if len(code) < 4 {
		return nil, &DecodeError{Offset: 0, Reason: "stream shorter than a version token"}
	}
	v, err := ParseVersion(binary.LittleEndian.Uint32(code))
	if err != nil {
		return nil, err
	}
	return &Decoder{code: code, version: v, pos: 4}, nil
}

// Version returns the shader version of the stream.
func (d *Decoder) Version() Version {
	return d.version
}

// Reset rewinds the decoder to the first instruction.
func (d *Decoder) Reset() {
	d.pos = 4
	d.cur = Instruction{}
	d.err = nil
	d.done = false
}

// Err returns the first error encountered, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Instruction returns the instruction decoded by the last call to Next. The
// returned value is a copy owned by the caller.
func (d *Decoder) Instruction() Instruction {
	ins := d.cur
	ins.Src = append([]SrcParam(nil), d.cur.Src...)
	return ins
}

// Next decodes the next instruction. It returns false at the end token or on
// error.
func (d *Decoder) Next() bool {
	if d.done || d.err != nil {
		return false
	}
	for {
		offset := d.pos
		tok, ok := d.read()
		if !ok {
			d.fail(offset, "missing end token")
			return false
		}
		op := Opcode(tok & opcodeMask)
		switch op {
		case OpEnd:
			d.done = true
			return false
		case OpComment:
			n := int((tok & commentLengthMask) >> commentLengthShift)
			if !d.skip(n) {
				d.fail(offset, fmt.Sprintf("comment of %d tokens overruns stream", n))
				return false
			}
			continue
		case OpNop, OpPhase:
			if d.version.EncodesLength() {
				n := int((tok & lengthMask) >> lengthShift)
				if !d.skip(n) {
					d.fail(offset, "nop overruns stream")
					return false
				}
			}
			continue
		}
		if !op.Known() {
			d.fail(offset, fmt.Sprintf("unknown opcode %d", uint16(op)))
			return false
		}
		if err := d.decodeInstruction(tok, offset); err != nil {
			d.err = err
			return false
		}
		return true
	}
}

// Decode decodes a whole stream.
func Decode(code []byte) (Version, []Instruction, error) {
	d, err := NewDecoder(code)
	if err != nil {
		return Version{}, nil, err
	}
	var out []Instruction
	for d.Next() {
		out = append(out, d.Instruction())
	}
	if err := d.Err(); err != nil {
		return d.version, nil, err
	}
	return d.version, out, nil
}

func (d *Decoder) fail(offset int, reason string) {
	d.err = &DecodeError{Offset: offset, Reason: reason}
}

func (d *Decoder) read() (uint32, bool) {
	if d.pos+4 > len(d.code) {
		return 0, false
	}
	tok := binary.LittleEndian.Uint32(d.code[d.pos:])
	d.pos += 4
	return tok, true
}

func (d *Decoder) peek() (uint32, bool) {
	if d.pos+4 > len(d.code) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(d.code[d.pos:]), true
}

func (d *Decoder) skip(tokens int) bool {
	if d.pos+tokens*4 > len(d.code) {
		return false
	}
	d.pos += tokens * 4
	return true
}

func (d *Decoder) mustRead(what string) (uint32, error) {
	offset := d.pos
	tok, ok := d.read()
	if !ok {
		return 0, &DecodeError{Offset: offset, Reason: "stream ends inside " + what}
	}
	return tok, nil
}

func (d *Decoder) decodeInstruction(tok uint32, offset int) error {
	op := Opcode(tok & opcodeMask)
	d.cur = Instruction{
		Kind:       KindInstruction,
		Opcode:     op,
		Control:    uint8((tok & controlMask) >> controlShift),
		Coissue:    tok&coissueBit != 0,
		Predicated: tok&predicatedBit != 0,
		Offset:     offset,
		Src:        d.cur.Src[:0],
	}
	length := int((tok & lengthMask) >> lengthShift)
	start := d.pos
	if d.version.EncodesLength() && start+length*4 > len(d.code) {
		return &DecodeError{Offset: offset, Reason: fmt.Sprintf("%s length %d overruns stream", op, length)}
	}

	var err error
	switch op {
	case OpDcl:
		err = d.decodeDecl()
	case OpDef, OpDefI:
		err = d.decodeDef(4)
	case OpDefB:
		err = d.decodeDef(1)
	default:
		err = d.decodeOperands(start, length)
	}
	if err != nil {
		return err
	}

	if d.version.EncodesLength() {
		if consumed := (d.pos - start) / 4; consumed != length {
			return &DecodeError{Offset: offset,
				Reason: fmt.Sprintf("%s declares %d tokens but has %d", op, length, consumed)}
		}
	} else if want, ok := legacySourceCount[op]; ok && want >= 0 && len(d.cur.Src) != want {
		return &DecodeError{Offset: offset,
			Reason: fmt.Sprintf("%s takes %d sources, found %d", op, want, len(d.cur.Src))}
	}
	return nil
}

func (d *Decoder) decodeDecl() error {
	usageTok, err := d.mustRead("dcl usage")
	if err != nil {
		return err
	}
	destOffset := d.pos
	destTok, err := d.mustRead("dcl register")
	if err != nil {
		return err
	}
	dest, err := d.decodeDest(destTok, destOffset)
	if err != nil {
		return err
	}
	d.cur.Kind = KindDecl
	d.cur.Decl = Decl{
		Usage:       Usage(usageTok & usageMask),
		UsageIndex:  uint8((usageTok & usageIndexMask) >> usageIndexShift),
		TextureType: TextureType((usageTok & texTypeMask) >> texTypeShift),
		Dest:        dest,
	}
	return nil
}

func (d *Decoder) decodeDef(values int) error {
	destOffset := d.pos
	destTok, err := d.mustRead("def register")
	if err != nil {
		return err
	}
	dest, err := d.decodeDest(destTok, destOffset)
	if err != nil {
		return err
	}
	d.cur.Kind = KindDef
	d.cur.Def.Dest = dest
	for i := 0; i < values; i++ {
		v, err := d.mustRead("def value")
		if err != nil {
			return err
		}
		d.cur.Def.Values[i] = v
	}
	return nil
}

func (d *Decoder) decodeOperands(start, length int) error {
	op := d.cur.Opcode
	if op.HasDest() {
		destOffset := d.pos
		tok, err := d.mustRead(op.String() + " destination")
		if err != nil {
			return err
		}
		dest, err := d.decodeDest(tok, destOffset)
		if err != nil {
			return err
		}
		d.cur.HasDest = true
		d.cur.Dest = dest
	}
	if d.cur.Predicated {
		predOffset := d.pos
		tok, err := d.mustRead("predicate")
		if err != nil {
			return err
		}
		pred, err := d.decodeSrc(tok, predOffset)
		if err != nil {
			return err
		}
		d.cur.Predicate = pred
	}
	for {
		if d.version.EncodesLength() {
			if d.pos >= start+length*4 {
				return nil
			}
		} else {
			next, ok := d.peek()
			if !ok {
				return &DecodeError{Offset: d.pos, Reason: "stream ends inside " + op.String()}
			}
			if next&paramBit == 0 {
				return nil
			}
		}
		srcOffset := d.pos
		tok, err := d.mustRead(op.String() + " source")
		if err != nil {
			return err
		}
		src, err := d.decodeSrc(tok, srcOffset)
		if err != nil {
			return err
		}
		if len(d.cur.Src) == 4 {
			return &DecodeError{Offset: srcOffset, Reason: "more than four source parameters"}
		}
		d.cur.Src = append(d.cur.Src, src)
	}
}

func registerOf(tok uint32) Register {
	t := (tok&regTypeMask)>>regTypeShift | (tok&regType2Mask)>>regType2Shift
	return Register{Type: RegisterType(t), Num: tok & regNumMask}
}

func (d *Decoder) decodeDest(tok uint32, offset int) (DestParam, error) {
	if tok&paramBit == 0 {
		return DestParam{}, &DecodeError{Offset: offset, Reason: "destination token lacks parameter bit"}
	}
	reg := registerOf(tok)
	if reg.Type >= regTypeCount {
		return DestParam{}, &DecodeError{Offset: offset, Reason: fmt.Sprintf("invalid register type %d", reg.Type)}
	}
	shift := int8((tok & shiftMask) >> shiftShift)
	if shift > 7 {
		shift -= 16
	}
	dest := DestParam{
		Register:  reg,
		Mask:      WriteMask((tok & writeMaskMask) >> writeMaskShift),
		Modifiers: ResultModifier((tok & resultModMask) >> resultModShift),
		Shift:     shift,
	}
	if tok&relativeBit != 0 {
		rel, err := d.decodeRelative()
		if err != nil {
			return DestParam{}, err
		}
		dest.Relative = rel
	}
	return dest, nil
}

func (d *Decoder) decodeSrc(tok uint32, offset int) (SrcParam, error) {
	if tok&paramBit == 0 {
		return SrcParam{}, &DecodeError{Offset: offset, Reason: "source token lacks parameter bit"}
	}
	reg := registerOf(tok)
	if reg.Type >= regTypeCount {
		return SrcParam{}, &DecodeError{Offset: offset, Reason: fmt.Sprintf("invalid register type %d", reg.Type)}
	}
	src := SrcParam{
		Register: reg,
		Swizzle:  Swizzle((tok & swizzleMask) >> swizzleShift),
		Modifier: SrcModifier((tok & srcModMask) >> srcModShift),
	}
	if tok&relativeBit != 0 {
		rel, err := d.decodeRelative()
		if err != nil {
			return SrcParam{}, err
		}
		src.Relative = rel
	}
	return src, nil
}

func (d *Decoder) decodeRelative() (*RelativeAddress, error) {
	if !d.version.HasAddressToken() {
		return &RelativeAddress{Register: Register{Type: RegAddr}}, nil
	}
	offset := d.pos
	tok, err := d.mustRead("address token")
	if err != nil {
		return nil, err
	}
	reg := registerOf(tok)
	if reg.Type != RegAddr && reg.Type != RegLoop {
		return nil, &DecodeError{Offset: offset, Reason: fmt.Sprintf("invalid address register type %d", reg.Type)}
	}
	return &RelativeAddress{
		Register:  reg,
		Component: Swizzle((tok & swizzleMask) >> swizzleShift).Component(0),
	}, nil
}
