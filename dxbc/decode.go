// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package dxbc

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DecodedInstruction is one instruction read back from a program.
type DecodedInstruction struct {
	Opcode   Opcode
	Control  uint32
	Saturate bool
	NonZero  bool
	Operands []Operand

	// Extra holds non-operand tokens: declaration payloads (temp counts,
	// system values, return types) and custom data.
	Extra []uint32
}

// Program is a decoded shader model 4 program.
type Program struct {
	Type         ProgramType
	Major, Minor uint8
	Instructions []DecodedInstruction
}

// Declarations returns the declaration instructions of p.
func (p *Program) Declarations() []DecodedInstruction {
	var out []DecodedInstruction
	for _, ins := range p.Instructions {
		if ins.Opcode.IsDeclaration() {
			out = append(out, ins)
		}
	}
	return out
}

// Code returns the executable instructions of p, skipping declarations and
// custom data.
func (p *Program) Code() []DecodedInstruction {
	var out []DecodedInstruction
	for _, ins := range p.Instructions {
		if !ins.Opcode.IsDeclaration() && ins.Opcode != OpCustomData {
			out = append(out, ins)
		}
	}
	return out
}

// Count returns the number of instructions with opcode op.
func (p *Program) Count(op Opcode) int {
	n := 0
	for _, ins := range p.Instructions {
		if ins.Opcode == op {
			n++
		}
	}
	return n
}

// Decode parses a program produced by ProgramBuilder.
func Decode(data []byte) (*Program, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("dxbc: program length %d is not a multiple of 4", len(data))
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("dxbc: program shorter than its header")
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	p := &Program{
		Type:  ProgramType(words[0] >> 16),
		Major: uint8(words[0] >> 4 & 0xF),
		Minor: uint8(words[0] & 0xF),
	}
	if int(words[1]) != len(words) {
		return nil, fmt.Errorf("dxbc: length token %d, program has %d tokens", words[1], len(words))
	}

	pos := 2
	for pos < len(words) {
		tok := words[pos]
		op := Opcode(tok & opcodeMask)
		var length int
		if op == OpCustomData {
			if pos+1 >= len(words) {
				return nil, fmt.Errorf("dxbc: custom data truncated at token %d", pos)
			}
			length = int(words[pos+1])
			if length < 2 || pos+length > len(words) {
				return nil, fmt.Errorf("dxbc: custom data length %d at token %d", length, pos)
			}
			p.Instructions = append(p.Instructions, DecodedInstruction{
				Opcode: op,
				Extra:  append([]uint32(nil), words[pos+2:pos+length]...),
			})
			pos += length
			continue
		}
		length = int((tok & lengthMask) >> lengthShift)
		if length == 0 || pos+length > len(words) {
			return nil, fmt.Errorf("dxbc: %s length %d at token %d", op, length, pos)
		}
		ins, err := decodeInstruction(tok, words[pos+1:pos+length])
		if err != nil {
			return nil, fmt.Errorf("dxbc: %s at token %d: %w", op, pos, err)
		}
		p.Instructions = append(p.Instructions, ins)
		pos += length
	}
	return p, nil
}

// extraTokens is the number of trailing non-operand tokens per declaration.
var extraTokens = map[Opcode]int{
	OpDclResource:   1,
	OpDclInputSGV:   1,
	OpDclInputSIV:   1,
	OpDclInputPSSGV: 1,
	OpDclInputPSSIV: 1,
	OpDclOutputSGV:  1,
	OpDclOutputSIV:  1,
}

func decodeInstruction(tok uint32, body []uint32) (DecodedInstruction, error) {
	ins := DecodedInstruction{
		Opcode:   Opcode(tok & opcodeMask),
		Control:  (tok & controlMask) >> controlShift,
		Saturate: tok&saturateBit != 0,
		NonZero:  tok&testNonZeroBit != 0,
	}
	switch ins.Opcode {
	case OpDclTemps, OpDclIndexableTemp, OpDclMaxOutputVertexCount,
		OpDclGlobalFlags, OpDclGSInputPrimitive, OpDclGSOutputPrimitiveTopology:
		ins.Extra = append([]uint32(nil), body...)
		return ins, nil
	}
	operandEnd := len(body) - extraTokens[ins.Opcode]
	pos := 0
	for pos < operandEnd {
		o, n, err := DecodeOperand(body[pos:operandEnd])
		if err != nil {
			return ins, err
		}
		ins.Operands = append(ins.Operands, o)
		pos += n
	}
	ins.Extra = append([]uint32(nil), body[operandEnd:]...)
	return ins, nil
}

// String formats the instruction in disassembler syntax.
func (ins DecodedInstruction) String() string {
	var sb strings.Builder
	sb.WriteString(ins.Opcode.String())
	switch ins.Opcode {
	case OpIf, OpBreakc, OpRetc, OpDiscard, OpContinuec, OpCallc:
		if ins.NonZero {
			sb.WriteString("_nz")
		} else {
			sb.WriteString("_z")
		}
	case OpDclResource:
		fmt.Fprintf(&sb, "_%s", ResourceDimension(ins.Control&0x1F))
	case OpDclInputPS, OpDclInputPSSIV:
		fmt.Fprintf(&sb, " interp(%d)", ins.Control&0xF)
	case OpDclGSInputPrimitive:
		fmt.Fprintf(&sb, " primitive(%d)", ins.Control&0x3F)
	case OpDclGSOutputPrimitiveTopology:
		fmt.Fprintf(&sb, " topology(%d)", ins.Control&0x3F)
	case OpDclConstantBuffer:
		if ins.Control&1 != 0 {
			sb.WriteString(" dynamicIndexed")
		}
	}
	if ins.Saturate {
		sb.WriteString("_sat")
	}
	if ins.Opcode == OpCustomData {
		data := make([]byte, 0, len(ins.Extra)*4)
		for _, w := range ins.Extra {
			data = binary.LittleEndian.AppendUint32(data, w)
		}
		fmt.Fprintf(&sb, " %q", strings.TrimRight(string(data), "\x00"))
		return sb.String()
	}
	for i, o := range ins.Operands {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(o.String())
	}
	switch ins.Opcode {
	case OpDclInputSIV, OpDclInputPSSIV, OpDclInputPSSGV, OpDclInputSGV, OpDclOutputSIV, OpDclOutputSGV:
		if len(ins.Extra) > 0 {
			fmt.Fprintf(&sb, ", %s", SystemValue(ins.Extra[0]))
		}
	case OpDclGlobalFlags:
		if ins.Control&GlobalFlagRefactoringAllowed != 0 {
			sb.WriteString(" refactoringAllowed")
		}
	default:
		for _, w := range ins.Extra {
			if ins.Opcode == OpDclResource {
				continue
			}
			fmt.Fprintf(&sb, " %d", w)
		}
	}
	return sb.String()
}

// String disassembles the program.
func (p *Program) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s_%d_%d\n", p.Type, p.Major, p.Minor)
	for _, ins := range p.Instructions {
		sb.WriteString(ins.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
