// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package dxbc

import (
	"fmt"
	"math"
	"strings"
)

// OperandType is the register file an operand refers to.
type OperandType uint8

// Operand types.
const (
	OperandTemp          OperandType = 0
	OperandInput         OperandType = 1
	OperandOutput        OperandType = 2
	OperandIndexableTemp OperandType = 3
	OperandImm32         OperandType = 4
	OperandImm64         OperandType = 5
	OperandSampler       OperandType = 6
	OperandResource      OperandType = 7
	OperandConstBuffer   OperandType = 8
	OperandImmConstBuf   OperandType = 9
	OperandLabel         OperandType = 10
	OperandPrimitiveID   OperandType = 11
	OperandOutputDepth   OperandType = 12
	OperandNull          OperandType = 13
)

var operandPrefix = map[OperandType]string{
	OperandTemp: "r", OperandInput: "v", OperandOutput: "o", OperandIndexableTemp: "x",
	OperandSampler: "s", OperandResource: "t", OperandConstBuffer: "cb",
	OperandImmConstBuf: "icb", OperandLabel: "l", OperandPrimitiveID: "vPrim",
	OperandOutputDepth: "oDepth", OperandNull: "null",
}

// SelectionMode is how a four-component operand picks components.
type SelectionMode uint8

// Component selection modes.
const (
	SelectMask    SelectionMode = 0
	SelectSwizzle SelectionMode = 1
	SelectScalar  SelectionMode = 2
)

// Modifier is a source operand modifier carried in the extended operand token.
type Modifier uint8

// Operand modifiers.
const (
	ModNone   Modifier = 0
	ModNeg    Modifier = 1
	ModAbs    Modifier = 2
	ModAbsNeg Modifier = 3
)

// Component masks.
const (
	MaskX    uint8 = 1
	MaskY    uint8 = 2
	MaskZ    uint8 = 4
	MaskW    uint8 = 8
	MaskXY   uint8 = 3
	MaskXYZ  uint8 = 7
	MaskXYZW uint8 = 15
)

// Operand token layout.
const (
	numComponentsMask   = 0x00000003
	selectionModeShift  = 2
	selectionModeMask   = 0x0000000C
	componentShift      = 4
	operandTypeShift    = 12
	operandTypeMask     = 0x000FF000
	indexDimShift       = 20
	indexDimMask        = 0x00300000
	indexRepShift       = 22
	indexRepBits        = 3
	extendedOperand     = 1 << 31
	extTypeModifier     = 1
	extModifierShift    = 6
	extModifierMask     = 0x00003FC0
	indexRepImm32       = 0
	indexRepRelative    = 2
	indexRepImmRelative = 3
)

// Index is one dimension of an operand index: an immediate, optionally plus a
// register-relative offset.
type Index struct {
	Imm uint32
	Rel *Operand
}

// Operand is a shader model 4 operand.
type Operand struct {
	Type OperandType

	// Components is 0, 1 or 4.
	Components uint8
	Mode       SelectionMode

	// Mask is used with SelectMask, Swizzle with SelectSwizzle and
	// Swizzle[0] with SelectScalar.
	Mask    uint8
	Swizzle [4]uint8

	Indices  []Index
	Modifier Modifier

	// Imm holds the values of an immediate operand.
	Imm [4]uint32
}

func register(t OperandType, indices ...uint32) Operand {
	o := Operand{Type: t, Components: 4, Mode: SelectSwizzle, Swizzle: [4]uint8{0, 1, 2, 3}}
	for _, idx := range indices {
		o.Indices = append(o.Indices, Index{Imm: idx})
	}
	return o
}

// Temp returns r<n>.
func Temp(n uint32) Operand { return register(OperandTemp, n) }

// Input returns v<n>.
func Input(n uint32) Operand { return register(OperandInput, n) }

// GSInput returns v[vertex][n] of a geometry program.
func GSInput(vertex, n uint32) Operand { return register(OperandInput, vertex, n) }

// Output returns o<n>.
func Output(n uint32) Operand { return register(OperandOutput, n) }

// IndexableTemp returns x<n>[i].
func IndexableTemp(n, i uint32) Operand { return register(OperandIndexableTemp, n, i) }

// ConstBuffer returns cb<slot>[reg].
func ConstBuffer(slot, reg uint32) Operand { return register(OperandConstBuffer, slot, reg) }

// Sampler returns s<n>.
func Sampler(n uint32) Operand {
	o := register(OperandSampler, n)
	o.Components = 0
	return o
}

// Resource returns t<n>.
func Resource(n uint32) Operand { return register(OperandResource, n) }

// Label returns l<n>.
func Label(n uint32) Operand {
	o := register(OperandLabel, n)
	o.Components = 0
	return o
}

// OutputDepth returns oDepth.
func OutputDepth() Operand {
	return Operand{Type: OperandOutputDepth, Components: 1}
}

// Null returns the null destination.
func Null() Operand {
	return Operand{Type: OperandNull}
}

// ImmU32 returns a four-component immediate of raw bits.
func ImmU32(x, y, z, w uint32) Operand {
	return Operand{Type: OperandImm32, Components: 4, Imm: [4]uint32{x, y, z, w}}
}

// ImmF32 returns a four-component float immediate.
func ImmF32(x, y, z, w float32) Operand {
	return ImmU32(math.Float32bits(x), math.Float32bits(y), math.Float32bits(z), math.Float32bits(w))
}

// ScalarU32 returns a single-component immediate.
func ScalarU32(v uint32) Operand {
	return Operand{Type: OperandImm32, Components: 1, Imm: [4]uint32{v}}
}

// ScalarF32 returns a single-component float immediate.
func ScalarF32(v float32) Operand {
	return ScalarU32(math.Float32bits(v))
}

// SplatF32 returns a four-component immediate with every component v.
func SplatF32(v float32) Operand {
	return ImmF32(v, v, v, v)
}

// WithMask returns o as a destination writing mask.
func (o Operand) WithMask(mask uint8) Operand {
	o.Mode = SelectMask
	o.Mask = mask & 0xF
	return o
}

// WithSwizzle returns o reading components x, y, z, w.
func (o Operand) WithSwizzle(x, y, z, w uint8) Operand {
	o.Mode = SelectSwizzle
	o.Swizzle = [4]uint8{x & 3, y & 3, z & 3, w & 3}
	return o
}

// Replicate returns o reading component c in every lane.
func (o Operand) Replicate(c uint8) Operand {
	return o.WithSwizzle(c, c, c, c)
}

// Select returns o as a single-component read of component c.
func (o Operand) Select(c uint8) Operand {
	o.Mode = SelectScalar
	o.Swizzle = [4]uint8{c & 3, c & 3, c & 3, c & 3}
	return o
}

// Neg returns o with its sign flipped.
func (o Operand) Neg() Operand {
	o.Modifier ^= ModNeg
	return o
}

// Abs returns |o|, discarding any previous negation.
func (o Operand) Abs() Operand {
	o.Modifier = ModAbs
	return o
}

// Relative returns o with dimension dim offset by the register rel.
func (o Operand) Relative(dim int, rel Operand) Operand {
	idx := append([]Index(nil), o.Indices...)
	r := rel
	idx[dim].Rel = &r
	o.Indices = idx
	return o
}

// Component returns the source component read by lane i.
func (o Operand) Component(i int) uint8 {
	if o.Mode == SelectScalar {
		return o.Swizzle[0]
	}
	if o.Mode == SelectMask {
		return uint8(i)
	}
	return o.Swizzle[i]
}

// Reg returns the first immediate index, the register number of most operands.
func (o Operand) Reg() uint32 {
	if len(o.Indices) == 0 {
		return 0
	}
	return o.Indices[len(o.Indices)-1].Imm
}

// SameRegister reports whether o and other name the same register, ignoring
// component selection and modifiers.
func (o Operand) SameRegister(other Operand) bool {
	if o.Type != other.Type || len(o.Indices) != len(other.Indices) {
		return false
	}
	if o.Type == OperandImm32 {
		return o.Imm == other.Imm && o.Components == other.Components
	}
	for i := range o.Indices {
		if o.Indices[i].Imm != other.Indices[i].Imm || o.Indices[i].Rel != nil || other.Indices[i].Rel != nil {
			return false
		}
	}
	return true
}

// Encode appends the tokens of o to dst.
func (o Operand) Encode(dst []uint32) []uint32 {
	var tok uint32
	switch o.Components {
	case 1:
		tok = 1
	case 4:
		tok = 2
		tok |= uint32(o.Mode) << selectionModeShift
		switch o.Mode {
		case SelectMask:
			tok |= uint32(o.Mask) << componentShift
		case SelectSwizzle:
			tok |= uint32(o.Swizzle[0]|o.Swizzle[1]<<2|o.Swizzle[2]<<4|o.Swizzle[3]<<6) << componentShift
		case SelectScalar:
			tok |= uint32(o.Swizzle[0]) << componentShift
		}
	}
	tok |= uint32(o.Type) << operandTypeShift & operandTypeMask
	tok |= uint32(len(o.Indices)) << indexDimShift & indexDimMask
	for i, idx := range o.Indices {
		rep := uint32(indexRepImm32)
		if idx.Rel != nil {
			rep = indexRepImmRelative
			if idx.Imm == 0 {
				rep = indexRepRelative
			}
		}
		tok |= rep << (indexRepShift + uint(i)*indexRepBits)
	}
	if o.Modifier != ModNone {
		tok |= extendedOperand
	}
	dst = append(dst, tok)
	if o.Modifier != ModNone {
		dst = append(dst, extTypeModifier|uint32(o.Modifier)<<extModifierShift)
	}

	if o.Type == OperandImm32 {
		n := 4
		if o.Components == 1 {
			n = 1
		}
		return append(dst, o.Imm[:n]...)
	}
	for _, idx := range o.Indices {
		if idx.Rel == nil || idx.Imm != 0 {
			dst = append(dst, idx.Imm)
		}
		if idx.Rel != nil {
			dst = idx.Rel.Encode(dst)
		}
	}
	return dst
}

// DecodeOperand decodes one operand from the front of words and returns it
// with the number of tokens consumed.
func DecodeOperand(words []uint32) (Operand, int, error) {
	if len(words) == 0 {
		return Operand{}, 0, fmt.Errorf("dxbc: operand truncated")
	}
	tok := words[0]
	n := 1
	var o Operand
	switch tok & numComponentsMask {
	case 0:
		o.Components = 0
	case 1:
		o.Components = 1
	case 2:
		o.Components = 4
		o.Mode = SelectionMode((tok & selectionModeMask) >> selectionModeShift)
		sel := uint8(tok >> componentShift)
		switch o.Mode {
		case SelectMask:
			o.Mask = sel & 0xF
		case SelectSwizzle:
			o.Swizzle = [4]uint8{sel & 3, sel >> 2 & 3, sel >> 4 & 3, sel >> 6 & 3}
		case SelectScalar:
			c := sel & 3
			o.Swizzle = [4]uint8{c, c, c, c}
		default:
			return Operand{}, 0, fmt.Errorf("dxbc: invalid selection mode %d", o.Mode)
		}
	default:
		return Operand{}, 0, fmt.Errorf("dxbc: unsupported component count encoding %d", tok&numComponentsMask)
	}
	o.Type = OperandType((tok & operandTypeMask) >> operandTypeShift)
	if tok&extendedOperand != 0 {
		if len(words) < 2 {
			return Operand{}, 0, fmt.Errorf("dxbc: extended operand truncated")
		}
		o.Modifier = Modifier((words[1] & extModifierMask) >> extModifierShift)
		n++
	}

	if o.Type == OperandImm32 {
		count := 4
		if o.Components == 1 {
			count = 1
		}
		if len(words) < n+count {
			return Operand{}, 0, fmt.Errorf("dxbc: immediate truncated")
		}
		copy(o.Imm[:], words[n:n+count])
		return o, n + count, nil
	}

	dims := int((tok & indexDimMask) >> indexDimShift)
	for i := 0; i < dims; i++ {
		rep := tok >> (indexRepShift + uint(i)*indexRepBits) & 7
		var idx Index
		if rep == indexRepImm32 || rep == indexRepImmRelative {
			if len(words) <= n {
				return Operand{}, 0, fmt.Errorf("dxbc: operand index truncated")
			}
			idx.Imm = words[n]
			n++
		}
		if rep == indexRepRelative || rep == indexRepImmRelative {
			rel, used, err := DecodeOperand(words[n:])
			if err != nil {
				return Operand{}, 0, err
			}
			idx.Rel = &rel
			n += used
		}
		if rep != indexRepImm32 && rep != indexRepRelative && rep != indexRepImmRelative {
			return Operand{}, 0, fmt.Errorf("dxbc: unsupported index representation %d", rep)
		}
		o.Indices = append(o.Indices, idx)
	}
	return o, n, nil
}

// String formats the operand in disassembler syntax.
func (o Operand) String() string {
	var sb strings.Builder
	switch o.Modifier {
	case ModNeg:
		sb.WriteByte('-')
	case ModAbs:
		sb.WriteString("|")
	case ModAbsNeg:
		sb.WriteString("-|")
	}
	if o.Type == OperandImm32 {
		n := 4
		if o.Components == 1 {
			n = 1
		}
		sb.WriteString("l(")
		for i := 0; i < n; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(formatImmediate(o.Imm[i]))
		}
		sb.WriteByte(')')
	} else {
		prefix, ok := operandPrefix[o.Type]
		if !ok {
			prefix = fmt.Sprintf("type%d_", o.Type)
		}
		sb.WriteString(prefix)
		for i, idx := range o.Indices {
			simple := idx.Rel == nil && (i == 0 && o.Type != OperandInput || len(o.Indices) == 1)
			if simple {
				fmt.Fprintf(&sb, "%d", idx.Imm)
				continue
			}
			sb.WriteByte('[')
			if idx.Rel != nil {
				sb.WriteString(idx.Rel.String())
				if idx.Imm != 0 {
					fmt.Fprintf(&sb, " + %d", idx.Imm)
				}
			} else {
				fmt.Fprintf(&sb, "%d", idx.Imm)
			}
			sb.WriteByte(']')
		}
		if o.Components == 4 {
			sb.WriteString(o.selectionString())
		}
	}
	switch o.Modifier {
	case ModAbs, ModAbsNeg:
		sb.WriteByte('|')
	}
	return sb.String()
}

func (o Operand) selectionString() string {
	const names = "xyzw"
	switch o.Mode {
	case SelectMask:
		if o.Mask == MaskXYZW {
			return ""
		}
		var sb strings.Builder
		sb.WriteByte('.')
		for i := 0; i < 4; i++ {
			if o.Mask&(1<<uint(i)) != 0 {
				sb.WriteByte(names[i])
			}
		}
		return sb.String()
	case SelectScalar:
		return "." + string(names[o.Swizzle[0]])
	}
	if o.Swizzle == [4]uint8{0, 1, 2, 3} {
		return ""
	}
	return "." + string([]byte{names[o.Swizzle[0]], names[o.Swizzle[1]], names[o.Swizzle[2]], names[o.Swizzle[3]]})
}

func formatImmediate(bits uint32) string {
	f := math.Float32frombits(bits)
	// Small integers and integer bit patterns print as integers.
	if bits < 0x00100000 || bits > 0xFFF00000 {
		return fmt.Sprintf("%d", int32(bits))
	}
	return fmt.Sprintf("%g", f)
}
