// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package dxbc

import "fmt"

// ProgramType is the shader stage encoded in the version token.
type ProgramType uint8

// Program types.
const (
	PixelShader    ProgramType = 0
	VertexShader   ProgramType = 1
	GeometryShader ProgramType = 2
)

// String returns the profile prefix of the program type.
func (t ProgramType) String() string {
	switch t {
	case PixelShader:
		return "ps"
	case VertexShader:
		return "vs"
	case GeometryShader:
		return "gs"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Opcode is a shader model 4 instruction opcode (bits 0-10 of the opcode token).
type Opcode uint16

// Opcodes emitted by the converter.
const (
	OpAdd         Opcode = 0
	OpAnd         Opcode = 1
	OpBreak       Opcode = 2
	OpBreakc      Opcode = 3
	OpCall        Opcode = 4
	OpCallc       Opcode = 5
	OpCase        Opcode = 6
	OpContinue    Opcode = 7
	OpContinuec   Opcode = 8
	OpCut         Opcode = 9
	OpDefault     Opcode = 10
	OpDerivRtx    Opcode = 11
	OpDerivRty    Opcode = 12
	OpDiscard     Opcode = 13
	OpDiv         Opcode = 14
	OpDp2         Opcode = 15
	OpDp3         Opcode = 16
	OpDp4         Opcode = 17
	OpElse        Opcode = 18
	OpEmit        Opcode = 19
	OpEmitThenCut Opcode = 20
	OpEndIf       Opcode = 21
	OpEndLoop     Opcode = 22
	OpEndSwitch   Opcode = 23
	OpEq          Opcode = 24
	OpExp         Opcode = 25
	OpFrc         Opcode = 26
	OpFtoI        Opcode = 27
	OpFtoU        Opcode = 28
	OpGe          Opcode = 29
	OpIAdd        Opcode = 30
	OpIf          Opcode = 31
	OpIEq         Opcode = 32
	OpIGe         Opcode = 33
	OpILt         Opcode = 34
	OpIMad        Opcode = 35
	OpIMax        Opcode = 36
	OpIMin        Opcode = 37
	OpIMul        Opcode = 38
	OpINe         Opcode = 39
	OpINeg        Opcode = 40
	OpIShl        Opcode = 41
	OpIShr        Opcode = 42
	OpItoF        Opcode = 43
	OpLabel       Opcode = 44
	OpLd          Opcode = 45
	OpLdMS        Opcode = 46
	OpLog         Opcode = 47
	OpLoop        Opcode = 48
	OpLt          Opcode = 49
	OpMad         Opcode = 50
	OpMin         Opcode = 51
	OpMax         Opcode = 52
	OpCustomData  Opcode = 53
	OpMov         Opcode = 54
	OpMovc        Opcode = 55
	OpMul         Opcode = 56
	OpNe          Opcode = 57
	OpNop         Opcode = 58
	OpNot         Opcode = 59
	OpOr          Opcode = 60
	OpResInfo     Opcode = 61
	OpRet         Opcode = 62
	OpRetc        Opcode = 63
	OpRoundNE     Opcode = 64
	OpRoundNI     Opcode = 65
	OpRoundPI     Opcode = 66
	OpRoundZ      Opcode = 67
	OpRsq         Opcode = 68
	OpSample      Opcode = 69
	OpSampleC     Opcode = 70
	OpSampleCLZ   Opcode = 71
	OpSampleL     Opcode = 72
	OpSampleD     Opcode = 73
	OpSampleB     Opcode = 74
	OpSqrt        Opcode = 75
	OpSwitch      Opcode = 76
	OpSinCos      Opcode = 77
	OpUDiv        Opcode = 78
	OpULt         Opcode = 79
	OpUGe         Opcode = 80
	OpUMul        Opcode = 81
	OpUMad        Opcode = 82
	OpUMax        Opcode = 83
	OpUMin        Opcode = 84
	OpUShr        Opcode = 85
	OpUtoF        Opcode = 86
	OpXor         Opcode = 87

	OpDclResource                     Opcode = 88
	OpDclConstantBuffer               Opcode = 89
	OpDclSampler                      Opcode = 90
	OpDclIndexRange                   Opcode = 91
	OpDclGSOutputPrimitiveTopology    Opcode = 92
	OpDclGSInputPrimitive             Opcode = 93
	OpDclMaxOutputVertexCount         Opcode = 94
	OpDclInput                        Opcode = 95
	OpDclInputSGV                     Opcode = 96
	OpDclInputSIV                     Opcode = 97
	OpDclInputPS                      Opcode = 98
	OpDclInputPSSGV                   Opcode = 99
	OpDclInputPSSIV                   Opcode = 100
	OpDclOutput                       Opcode = 101
	OpDclOutputSGV                    Opcode = 102
	OpDclOutputSIV                    Opcode = 103
	OpDclTemps                        Opcode = 104
	OpDclIndexableTemp                Opcode = 105
	OpDclGlobalFlags                  Opcode = 106
	opcodeCount                              = 107
)

var opcodeNames = [opcodeCount]string{
	"add", "and", "break", "breakc", "call", "callc", "case", "continue",
	"continuec", "cut", "default", "deriv_rtx", "deriv_rty", "discard", "div",
	"dp2", "dp3", "dp4", "else", "emit", "emit_then_cut", "endif", "endloop",
	"endswitch", "eq", "exp", "frc", "ftoi", "ftou", "ge", "iadd", "if", "ieq",
	"ige", "ilt", "imad", "imax", "imin", "imul", "ine", "ineg", "ishl", "ishr",
	"itof", "label", "ld", "ld_ms", "log", "loop", "lt", "mad", "min", "max",
	"customdata", "mov", "movc", "mul", "ne", "nop", "not", "or", "resinfo",
	"ret", "retc", "round_ne", "round_ni", "round_pi", "round_z", "rsq",
	"sample", "sample_c", "sample_c_lz", "sample_l", "sample_d", "sample_b",
	"sqrt", "switch", "sincos", "udiv", "ult", "uge", "umul", "umad", "umax",
	"umin", "ushr", "utof", "xor",
	"dcl_resource", "dcl_constantbuffer", "dcl_sampler", "dcl_indexrange",
	"dcl_outputtopology", "dcl_inputprimitive", "dcl_maxout", "dcl_input",
	"dcl_input_sgv", "dcl_input_siv", "dcl_input_ps", "dcl_input_ps_sgv",
	"dcl_input_ps_siv", "dcl_output", "dcl_output_sgv", "dcl_output_siv",
	"dcl_temps", "dcl_indexableTemp", "dcl_globalFlags",
}

// String returns the assembler mnemonic of the opcode.
func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", uint16(op))
}

// IsDeclaration reports whether op is a declaration opcode.
func (op Opcode) IsDeclaration() bool {
	return op >= OpDclResource && op <= OpDclGlobalFlags
}

// Opcode token layout.
const (
	opcodeMask      = 0x000007FF
	controlShift    = 11
	controlMask     = 0x00FFF800
	saturateBit     = 1 << 13
	testNonZeroBit  = 1 << 18
	lengthShift     = 24
	lengthMask      = 0x7F000000
	extendedOpcode  = 1 << 31
	maxInstrLength  = 127
	customDataClass = 0 // comment
)

// SystemValue names a system-interpreted value on an input or output.
type SystemValue uint32

// System values.
const (
	SVUndefined    SystemValue = 0
	SVPosition     SystemValue = 1
	SVClipDistance SystemValue = 2
	SVCullDistance SystemValue = 3
	SVVertexID     SystemValue = 6
	SVPrimitiveID  SystemValue = 7
	SVInstanceID   SystemValue = 8
	SVIsFrontFace  SystemValue = 9
)

// String returns the HLSL semantic of the system value.
func (sv SystemValue) String() string {
	switch sv {
	case SVPosition:
		return "position"
	case SVClipDistance:
		return "clip_distance"
	case SVCullDistance:
		return "cull_distance"
	case SVVertexID:
		return "vertex_id"
	case SVPrimitiveID:
		return "primitive_id"
	case SVInstanceID:
		return "instance_id"
	case SVIsFrontFace:
		return "is_front_face"
	}
	return "undefined"
}

// ResourceDimension is the dimension field of dcl_resource.
type ResourceDimension uint8

// Resource dimensions.
const (
	ResourceUnknown   ResourceDimension = 0
	ResourceBuffer    ResourceDimension = 1
	ResourceTexture1D ResourceDimension = 2
	ResourceTexture2D ResourceDimension = 3
	ResourceTexture3D ResourceDimension = 5
	ResourceCube      ResourceDimension = 6
)

// String returns the declaration name of the dimension.
func (d ResourceDimension) String() string {
	switch d {
	case ResourceBuffer:
		return "buffer"
	case ResourceTexture1D:
		return "texture1d"
	case ResourceTexture2D:
		return "texture2d"
	case ResourceTexture3D:
		return "texture3d"
	case ResourceCube:
		return "texturecube"
	}
	return "unknown"
}

// ReturnTypeFloat is the per-component resource return type of float textures.
const ReturnTypeFloat = 5

// Interpolation is the interpolation mode of a pixel shader input.
type Interpolation uint8

// Interpolation modes.
const (
	InterpolationUndefined             Interpolation = 0
	InterpolationConstant              Interpolation = 1
	InterpolationLinear                Interpolation = 2
	InterpolationLinearCentroid        Interpolation = 3
	InterpolationLinearNoPerspective   Interpolation = 4
	InterpolationLinearNoPerspCentroid Interpolation = 5
)

// SamplerMode is the mode field of dcl_sampler.
type SamplerMode uint8

// Sampler modes.
const (
	SamplerDefault    SamplerMode = 0
	SamplerComparison SamplerMode = 1
)

// Primitive is the input primitive of a geometry program.
type Primitive uint8

// Geometry input primitives.
const (
	PrimitivePoint    Primitive = 1
	PrimitiveLine     Primitive = 2
	PrimitiveTriangle Primitive = 3
)

// VertexCount returns the number of input vertices of the primitive.
func (p Primitive) VertexCount() int {
	switch p {
	case PrimitiveLine:
		return 2
	case PrimitiveTriangle:
		return 3
	}
	return 1
}

// Topology is the output topology of a geometry program.
type Topology uint8

// Geometry output topologies.
const (
	TopologyPointList     Topology = 1
	TopologyLineStrip     Topology = 3
	TopologyTriangleStrip Topology = 5
)

// GlobalFlagRefactoringAllowed permits the driver to reorder arithmetic.
const GlobalFlagRefactoringAllowed = 1
