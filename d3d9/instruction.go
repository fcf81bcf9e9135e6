// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package d3d9

import (
	"fmt"
	"strings"
)

// WriteMask selects destination components; bit 0 is x.
type WriteMask uint8

// Write masks.
const (
	MaskX   WriteMask = 1
	MaskY   WriteMask = 2
	MaskZ   WriteMask = 4
	MaskW   WriteMask = 8
	MaskXYZ WriteMask = 7
	MaskAll WriteMask = 15
)

// Has reports whether component i is written.
func (m WriteMask) Has(i int) bool {
	return m&(1<<uint(i)) != 0
}

// Count returns the number of written components.
func (m WriteMask) Count() int {
	n := 0
	for i := 0; i < 4; i++ {
		if m.Has(i) {
			n++
		}
	}
	return n
}

// String returns the mask in assembler form (".xy"); a full mask is empty.
func (m WriteMask) String() string {
	if m == MaskAll {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('.')
	for i := 0; i < 4; i++ {
		if m.Has(i) {
			sb.WriteByte("xyzw"[i])
		}
	}
	return sb.String()
}

// Swizzle selects source components, two bits per destination component
// with x in the low bits.
type Swizzle uint8

// Common swizzles.
const (
	SwizzleIdentity Swizzle = 0xE4 // .xyzw
	SwizzleXXXX     Swizzle = 0x00
	SwizzleYYYY     Swizzle = 0x55
	SwizzleZZZZ     Swizzle = 0xAA
	SwizzleWWWW     Swizzle = 0xFF
)

// MakeSwizzle builds a swizzle from four component indices.
func MakeSwizzle(x, y, z, w uint8) Swizzle {
	return Swizzle(x&3 | (y&3)<<2 | (z&3)<<4 | (w&3)<<6)
}

// Replicate returns the swizzle selecting component c in all lanes.
func Replicate(c uint8) Swizzle {
	return MakeSwizzle(c, c, c, c)
}

// Component returns the source component read by lane i.
func (s Swizzle) Component(i int) uint8 {
	return uint8(s>>(2*uint(i))) & 3
}

// Compose applies s after inner: lane i reads inner's lane s.Component(i).
func (s Swizzle) Compose(inner Swizzle) Swizzle {
	return MakeSwizzle(
		inner.Component(int(s.Component(0))),
		inner.Component(int(s.Component(1))),
		inner.Component(int(s.Component(2))),
		inner.Component(int(s.Component(3))),
	)
}

// String returns the swizzle in assembler form; identity is empty.
func (s Swizzle) String() string {
	if s == SwizzleIdentity {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('.')
	for i := 0; i < 4; i++ {
		sb.WriteByte("xyzw"[s.Component(i)])
	}
	return sb.String()
}

// Register names a legacy register.
type Register struct {
	Type RegisterType
	Num  uint32
}

// RelativeAddress is the register supplying a dynamic index offset.
type RelativeAddress struct {
	Register  Register
	Component uint8
}

// DestParam is a decoded destination parameter.
type DestParam struct {
	Register
	Mask      WriteMask
	Modifiers ResultModifier
	// Shift is the signed result scale exponent (ps_1_x _x2 .. _d8).
	Shift    int8
	Relative *RelativeAddress
}

// Saturate reports whether the result is clamped to [0,1].
func (d DestParam) Saturate() bool {
	return d.Modifiers&ResultSaturate != 0
}

// SrcParam is a decoded source parameter.
type SrcParam struct {
	Register
	Swizzle  Swizzle
	Modifier SrcModifier
	Relative *RelativeAddress
}

// Kind classifies decoded instructions.
type Kind uint8

const (
	// KindInstruction is an executable instruction.
	KindInstruction Kind = iota

	// KindDecl is a dcl token; the payload is in Instruction.Decl.
	KindDecl

	// KindDef is a def, defi or defb token; the payload is in Instruction.Def.
	KindDef
)

// Decl is the payload of a dcl instruction.
type Decl struct {
	Usage       Usage
	UsageIndex  uint8
	TextureType TextureType
	Dest        DestParam
}

// Def is the payload of a def/defi/defb instruction. Values hold raw bits:
// IEEE floats for def, signed integers for defi and a single boolean for
// defb.
type Def struct {
	Dest   DestParam
	Values [4]uint32
}

// Instruction is one decoded legacy instruction.
type Instruction struct {
	Kind       Kind
	Opcode     Opcode
	Control    uint8
	Coissue    bool
	Predicated bool

	HasDest   bool
	Dest      DestParam
	Predicate SrcParam
	Src       []SrcParam

	Decl Decl
	Def  Def

	// Offset is the byte offset of the instruction token in the stream.
	Offset int
}

// Comparison returns the comparison of ifc, breakc and setp.
func (ins *Instruction) Comparison() Comparison {
	return Comparison(ins.Control & 7)
}

// TexldVariant returns the plain/project/bias variant of texld.
func (ins *Instruction) TexldVariant() uint8 {
	return ins.Control & 3
}

// String formats the instruction in a compact assembler-like form, naming
// register type 3 as a vertex address register.
func (ins *Instruction) String() string {
	return ins.Format(false)
}

// Format formats the instruction for the given shader class.
func (ins *Instruction) Format(pixel bool) string {
	var sb strings.Builder
	if ins.Predicated {
		sb.WriteString("(")
		sb.WriteString(formatSrc(ins.Predicate, pixel))
		sb.WriteString(") ")
	}
	if ins.Coissue {
		sb.WriteByte('+')
	}
	switch ins.Kind {
	case KindDecl:
		if ins.Decl.Dest.Type == RegSampler {
			fmt.Fprintf(&sb, "dcl_%s %s", ins.Decl.TextureType, formatDest(ins.Decl.Dest, pixel))
		} else {
			fmt.Fprintf(&sb, "dcl_%s%d %s", ins.Decl.Usage, ins.Decl.UsageIndex, formatDest(ins.Decl.Dest, pixel))
		}
		return sb.String()
	case KindDef:
		fmt.Fprintf(&sb, "%s %s, 0x%08x, 0x%08x, 0x%08x, 0x%08x", ins.Opcode, formatDest(ins.Def.Dest, pixel),
			ins.Def.Values[0], ins.Def.Values[1], ins.Def.Values[2], ins.Def.Values[3])
		return sb.String()
	}
	sb.WriteString(ins.Opcode.String())
	if ins.Opcode == OpIfc || ins.Opcode == OpBreakc || ins.Opcode == OpSetp {
		sb.WriteByte('_')
		sb.WriteString(ins.Comparison().String())
	}
	if ins.HasDest && ins.Dest.Saturate() {
		sb.WriteString("_sat")
	}
	sep := " "
	if ins.HasDest {
		sb.WriteString(sep)
		sb.WriteString(formatDest(ins.Dest, pixel))
		sep = ", "
	}
	for _, src := range ins.Src {
		sb.WriteString(sep)
		sb.WriteString(formatSrc(src, pixel))
		sep = ", "
	}
	return sb.String()
}

func formatRegister(r Register, rel *RelativeAddress, pixel bool) string {
	name := r.Type.Name(pixel)
	if rel != nil {
		addr := formatRegister(rel.Register, nil, pixel)
		if rel.Register.Type != RegLoop {
			addr += "." + string("xyzw"[rel.Component&3])
		}
		return fmt.Sprintf("%s[%s + %d]", name, addr, r.Num)
	}
	if r.Type == RegLoop {
		return name
	}
	return fmt.Sprintf("%s%d", name, r.Num)
}

func formatDest(d DestParam, pixel bool) string {
	return formatRegister(d.Register, d.Relative, pixel) + d.Mask.String()
}

func formatSrc(s SrcParam, pixel bool) string {
	reg := formatRegister(s.Register, s.Relative, pixel) + s.Swizzle.String()
	switch s.Modifier {
	case SrcModNeg:
		return "-" + reg
	case SrcModAbs:
		return "abs(" + reg + ")"
	case SrcModAbsNeg:
		return "-abs(" + reg + ")"
	case SrcModNot:
		return "!" + reg
	case SrcModComp:
		return "1-" + reg
	case SrcModBias:
		return reg + "_bias"
	case SrcModBiasNeg:
		return "-" + reg + "_bias"
	case SrcModSign:
		return reg + "_bx2"
	case SrcModSignNeg:
		return "-" + reg + "_bx2"
	case SrcModX2:
		return reg + "_x2"
	case SrcModX2Neg:
		return "-" + reg + "_x2"
	case SrcModDZ:
		return reg + "_dz"
	case SrcModDW:
		return reg + "_dw"
	}
	return reg
}
