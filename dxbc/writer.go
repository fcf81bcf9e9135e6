// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package dxbc

import (
	"encoding/binary"
	"fmt"
)

// MaxOperands is the largest operand count of an emitted instruction;
// sample_d takes six.
const MaxOperands = 6

// Instruction is an encoded shader model 4 instruction without its opcode
// token.
type Instruction struct {
	Opcode   Opcode
	Control  uint32 // opcode-specific bits 11-23
	Saturate bool
	Words    []uint32
}

// InstructionBuilder accumulates the operand tokens of one instruction.
type InstructionBuilder struct {
	words []uint32
}

// NewInstructionBuilder creates a new instruction builder.
func NewInstructionBuilder() *InstructionBuilder {
	return &InstructionBuilder{
		words: make([]uint32, 0, 16),
	}
}

// AddWord adds a raw token.
func (b *InstructionBuilder) AddWord(word uint32) {
	b.words = append(b.words, word)
}

// AddOperand adds the tokens of an operand.
func (b *InstructionBuilder) AddOperand(o Operand) {
	b.words = o.Encode(b.words)
}

// AddString adds s as NUL-terminated bytes padded with zeros to a token
// boundary.
func (b *InstructionBuilder) AddString(s string) {
	data := append([]byte(s), 0)
	for len(data)%4 != 0 {
		data = append(data, 0)
	}
	for i := 0; i < len(data); i += 4 {
		b.words = append(b.words, binary.LittleEndian.Uint32(data[i:]))
	}
}

// Build builds the instruction with the given opcode.
func (b *InstructionBuilder) Build(opcode Opcode) Instruction {
	return Instruction{
		Opcode: opcode,
		Words:  b.words,
	}
}

// Encode encodes the instruction to tokens.
func (i Instruction) Encode() []uint32 {
	if i.Opcode == OpCustomData {
		// Custom data blocks carry their length in a separate token.
		out := make([]uint32, 0, len(i.Words)+2)
		out = append(out, uint32(OpCustomData)|customDataClass<<controlShift)
		out = append(out, uint32(len(i.Words)+2))
		return append(out, i.Words...)
	}
	length := uint32(len(i.Words) + 1)
	tok := uint32(i.Opcode)&opcodeMask | i.Control<<controlShift&controlMask | length<<lengthShift&lengthMask
	if i.Saturate {
		tok |= saturateBit
	}
	out := make([]uint32, 0, length)
	out = append(out, tok)
	return append(out, i.Words...)
}

// ProgramBuilder builds a complete shader model 4 program. Declarations and
// code are kept in separate sections so the declaration writer can run after
// the code generator has discovered what the program needs.
type ProgramBuilder struct {
	programType ProgramType
	major       uint8
	minor       uint8

	debugName    string
	declarations []Instruction
	code         []Instruction

	err error
}

// NewProgramBuilder creates a builder for a shader model 4.0 program.
func NewProgramBuilder(t ProgramType) *ProgramBuilder {
	return &ProgramBuilder{
		programType:  t,
		major:        4,
		minor:        0,
		declarations: make([]Instruction, 0, 16),
		code:         make([]Instruction, 0, 64),
	}
}

// Type returns the program type.
func (b *ProgramBuilder) Type() ProgramType {
	return b.programType
}

// SetDebugName records a name emitted as a custom data comment.
func (b *ProgramBuilder) SetDebugName(name string) {
	b.debugName = name
}

// Err returns the first emission error.
func (b *ProgramBuilder) Err() error {
	return b.err
}

func (b *ProgramBuilder) instruction(op Opcode, operands []Operand) Instruction {
	if len(operands) > MaxOperands && b.err == nil {
		b.err = fmt.Errorf("dxbc: %s with %d operands exceeds %d", op, len(operands), MaxOperands)
	}
	builder := NewInstructionBuilder()
	for _, o := range operands {
		builder.AddOperand(o)
	}
	ins := builder.Build(op)
	if len(ins.Words)+1 > maxInstrLength && b.err == nil {
		b.err = fmt.Errorf("dxbc: %s is %d tokens long", op, len(ins.Words)+1)
	}
	return ins
}

// Emit appends a code instruction.
func (b *ProgramBuilder) Emit(op Opcode, operands ...Operand) {
	b.code = append(b.code, b.instruction(op, operands))
}

// EmitSat appends a code instruction whose result is clamped to [0,1].
func (b *ProgramBuilder) EmitSat(op Opcode, operands ...Operand) {
	ins := b.instruction(op, operands)
	ins.Saturate = true
	b.code = append(b.code, ins)
}

// EmitTest appends a conditional instruction (if, breakc, retc, discard)
// that tests its condition for nonzero or zero.
func (b *ProgramBuilder) EmitTest(op Opcode, nonZero bool, operands ...Operand) {
	ins := b.instruction(op, operands)
	if nonZero {
		ins.Control |= testNonZeroBit >> controlShift
	}
	b.code = append(b.code, ins)
}

// CodeLength returns the number of code instructions emitted so far.
func (b *ProgramBuilder) CodeLength() int {
	return len(b.code)
}

func (b *ProgramBuilder) declare(op Opcode, control uint32, words ...uint32) {
	b.declarations = append(b.declarations, Instruction{Opcode: op, Control: control, Words: words})
}

func (b *ProgramBuilder) declareOperand(op Opcode, control uint32, o Operand, extra ...uint32) {
	words := o.Encode(nil)
	b.declare(op, control, append(words, extra...)...)
}

// DeclareGlobalFlags declares the global flags.
func (b *ProgramBuilder) DeclareGlobalFlags(flags uint32) {
	b.declare(OpDclGlobalFlags, flags)
}

// DeclareTemps declares the temp register count.
func (b *ProgramBuilder) DeclareTemps(n uint32) {
	b.declare(OpDclTemps, 0, n)
}

// DeclareIndexableTemp declares x<reg>[count] with the given component count.
func (b *ProgramBuilder) DeclareIndexableTemp(reg, count, components uint32) {
	b.declare(OpDclIndexableTemp, 0, reg, count, components)
}

// DeclareConstantBuffer declares cb<slot>[size]. Dynamically indexed buffers
// permit relative addressing.
func (b *ProgramBuilder) DeclareConstantBuffer(slot, size uint32, dynamic bool) {
	var control uint32
	if dynamic {
		control = 1
	}
	b.declareOperand(OpDclConstantBuffer, control, ConstBuffer(slot, size))
}

// DeclareSampler declares s<n>.
func (b *ProgramBuilder) DeclareSampler(n uint32, mode SamplerMode) {
	b.declareOperand(OpDclSampler, uint32(mode), Sampler(n))
}

// DeclareResource declares a float texture t<n>.
func (b *ProgramBuilder) DeclareResource(n uint32, dim ResourceDimension) {
	ret := uint32(ReturnTypeFloat) * 0x1111
	o := Resource(n)
	o.Components = 0
	b.declareOperand(OpDclResource, uint32(dim), o, ret)
}

// DeclareInput declares v<reg> with mask.
func (b *ProgramBuilder) DeclareInput(reg uint32, mask uint8) {
	b.declareOperand(OpDclInput, 0, Input(reg).WithMask(mask))
}

// DeclareGSInput declares v[vertices][reg] of a geometry program.
func (b *ProgramBuilder) DeclareGSInput(vertices, reg uint32, mask uint8) {
	b.declareOperand(OpDclInput, 0, GSInput(vertices, reg).WithMask(mask))
}

// DeclareGSInputSIV declares a system-interpreted geometry program input.
func (b *ProgramBuilder) DeclareGSInputSIV(vertices, reg uint32, mask uint8, sv SystemValue) {
	b.declareOperand(OpDclInputSIV, 0, GSInput(vertices, reg).WithMask(mask), uint32(sv))
}

// DeclareInputSIV declares a system-interpreted input.
func (b *ProgramBuilder) DeclareInputSIV(reg uint32, mask uint8, sv SystemValue) {
	b.declareOperand(OpDclInputSIV, 0, Input(reg).WithMask(mask), uint32(sv))
}

// DeclareInputPS declares an interpolated pixel input.
func (b *ProgramBuilder) DeclareInputPS(reg uint32, mask uint8, mode Interpolation) {
	b.declareOperand(OpDclInputPS, uint32(mode), Input(reg).WithMask(mask))
}

// DeclareInputPSSIV declares an interpolated system-interpreted pixel input.
func (b *ProgramBuilder) DeclareInputPSSIV(reg uint32, mask uint8, mode Interpolation, sv SystemValue) {
	b.declareOperand(OpDclInputPSSIV, uint32(mode), Input(reg).WithMask(mask), uint32(sv))
}

// DeclareInputPSSGV declares a system-generated pixel input.
func (b *ProgramBuilder) DeclareInputPSSGV(reg uint32, mask uint8, sv SystemValue) {
	b.declareOperand(OpDclInputPSSGV, 0, Input(reg).WithMask(mask), uint32(sv))
}

// DeclareOutput declares o<reg>.
func (b *ProgramBuilder) DeclareOutput(reg uint32, mask uint8) {
	b.declareOperand(OpDclOutput, 0, Output(reg).WithMask(mask))
}

// DeclareOutputSIV declares a system-interpreted output.
func (b *ProgramBuilder) DeclareOutputSIV(reg uint32, mask uint8, sv SystemValue) {
	b.declareOperand(OpDclOutputSIV, 0, Output(reg).WithMask(mask), uint32(sv))
}

// DeclareOutputDepth declares oDepth.
func (b *ProgramBuilder) DeclareOutputDepth() {
	b.declareOperand(OpDclOutput, 0, OutputDepth())
}

// DeclareGSInputPrimitive declares the geometry input primitive.
func (b *ProgramBuilder) DeclareGSInputPrimitive(p Primitive) {
	b.declare(OpDclGSInputPrimitive, uint32(p))
}

// DeclareGSOutputTopology declares the geometry output topology.
func (b *ProgramBuilder) DeclareGSOutputTopology(t Topology) {
	b.declare(OpDclGSOutputPrimitiveTopology, uint32(t))
}

// DeclareMaxOutputVertexCount declares the geometry output vertex limit.
func (b *ProgramBuilder) DeclareMaxOutputVertexCount(n uint32) {
	b.declare(OpDclMaxOutputVertexCount, 0, n)
}

// Build serializes the program: version token, length token, optional debug
// comment, declarations, then code.
func (b *ProgramBuilder) Build() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	tokens := make([]uint32, 2, 2+countWords(b.declarations)+countWords(b.code)+8)
	tokens[0] = uint32(b.programType)<<16 | uint32(b.major)<<4 | uint32(b.minor)
	if b.debugName != "" {
		builder := NewInstructionBuilder()
		builder.AddString(b.debugName)
		tokens = append(tokens, builder.Build(OpCustomData).Encode()...)
	}
	for _, ins := range b.declarations {
		tokens = append(tokens, ins.Encode()...)
	}
	for _, ins := range b.code {
		tokens = append(tokens, ins.Encode()...)
	}
	tokens[1] = uint32(len(tokens))

	buffer := make([]byte, len(tokens)*4)
	for i, tok := range tokens {
		binary.LittleEndian.PutUint32(buffer[i*4:], tok)
	}
	return buffer, nil
}

// countWords counts total tokens of instructions.
func countWords(instructions []Instruction) int {
	count := 0
	for _, ins := range instructions {
		count += len(ins.Words) + 1
	}
	return count
}
