// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package d3d9

import "fmt"

// Opcode is a legacy instruction opcode (low 16 bits of an instruction token).
type Opcode uint16

// Legacy opcodes.
const (
	OpNop          Opcode = 0
	OpMov          Opcode = 1
	OpAdd          Opcode = 2
	OpSub          Opcode = 3
	OpMad          Opcode = 4
	OpMul          Opcode = 5
	OpRcp          Opcode = 6
	OpRsq          Opcode = 7
	OpDp3          Opcode = 8
	OpDp4          Opcode = 9
	OpMin          Opcode = 10
	OpMax          Opcode = 11
	OpSlt          Opcode = 12
	OpSge          Opcode = 13
	OpExp          Opcode = 14
	OpLog          Opcode = 15
	OpLit          Opcode = 16
	OpDst          Opcode = 17
	OpLrp          Opcode = 18
	OpFrc          Opcode = 19
	OpM4x4         Opcode = 20
	OpM4x3         Opcode = 21
	OpM3x4         Opcode = 22
	OpM3x3         Opcode = 23
	OpM3x2         Opcode = 24
	OpCall         Opcode = 25
	OpCallNZ       Opcode = 26
	OpLoop         Opcode = 27
	OpRet          Opcode = 28
	OpEndLoop      Opcode = 29
	OpLabel        Opcode = 30
	OpDcl          Opcode = 31
	OpPow          Opcode = 32
	OpCrs          Opcode = 33
	OpSgn          Opcode = 34
	OpAbs          Opcode = 35
	OpNrm          Opcode = 36
	OpSinCos       Opcode = 37
	OpRep          Opcode = 38
	OpEndRep       Opcode = 39
	OpIf           Opcode = 40
	OpIfc          Opcode = 41
	OpElse         Opcode = 42
	OpEndIf        Opcode = 43
	OpBreak        Opcode = 44
	OpBreakc       Opcode = 45
	OpMova         Opcode = 46
	OpDefB         Opcode = 47
	OpDefI         Opcode = 48
	OpTexCoord     Opcode = 64
	OpTexKill      Opcode = 65
	OpTex          Opcode = 66
	OpTexBem       Opcode = 67
	OpTexBemL      Opcode = 68
	OpTexReg2AR    Opcode = 69
	OpTexReg2GB    Opcode = 70
	OpTexM3x2Pad   Opcode = 71
	OpTexM3x2Tex   Opcode = 72
	OpTexM3x3Pad   Opcode = 73
	OpTexM3x3Tex   Opcode = 74
	OpTexM3x3Spec  Opcode = 76
	OpTexM3x3VSpec Opcode = 77
	OpExpP         Opcode = 78
	OpLogP         Opcode = 79
	OpCnd          Opcode = 80
	OpDef          Opcode = 81
	OpTexReg2RGB   Opcode = 82
	OpTexDp3Tex    Opcode = 83
	OpTexM3x2Depth Opcode = 84
	OpTexDp3       Opcode = 85
	OpTexM3x3      Opcode = 86
	OpTexDepth     Opcode = 87
	OpCmp          Opcode = 88
	OpBem          Opcode = 89
	OpDp2Add       Opcode = 90
	OpDsx          Opcode = 91
	OpDsy          Opcode = 92
	OpTexLdd       Opcode = 93
	OpSetp         Opcode = 94
	OpTexLdl       Opcode = 95
	OpBreakp       Opcode = 96
	OpPhase        Opcode = 0xFFFD
	OpComment      Opcode = 0xFFFE
	OpEnd          Opcode = 0xFFFF
)

var opcodeNames = map[Opcode]string{
	OpNop: "nop", OpMov: "mov", OpAdd: "add", OpSub: "sub", OpMad: "mad",
	OpMul: "mul", OpRcp: "rcp", OpRsq: "rsq", OpDp3: "dp3", OpDp4: "dp4",
	OpMin: "min", OpMax: "max", OpSlt: "slt", OpSge: "sge", OpExp: "exp",
	OpLog: "log", OpLit: "lit", OpDst: "dst", OpLrp: "lrp", OpFrc: "frc",
	OpM4x4: "m4x4", OpM4x3: "m4x3", OpM3x4: "m3x4", OpM3x3: "m3x3", OpM3x2: "m3x2",
	OpCall: "call", OpCallNZ: "callnz", OpLoop: "loop", OpRet: "ret",
	OpEndLoop: "endloop", OpLabel: "label", OpDcl: "dcl", OpPow: "pow",
	OpCrs: "crs", OpSgn: "sgn", OpAbs: "abs", OpNrm: "nrm", OpSinCos: "sincos",
	OpRep: "rep", OpEndRep: "endrep", OpIf: "if", OpIfc: "ifc", OpElse: "else",
	OpEndIf: "endif", OpBreak: "break", OpBreakc: "breakc", OpMova: "mova",
	OpDefB: "defb", OpDefI: "defi", OpTexCoord: "texcoord", OpTexKill: "texkill",
	OpTex: "tex", OpTexBem: "texbem", OpTexBemL: "texbeml", OpTexReg2AR: "texreg2ar",
	OpTexReg2GB: "texreg2gb", OpTexM3x2Pad: "texm3x2pad", OpTexM3x2Tex: "texm3x2tex",
	OpTexM3x3Pad: "texm3x3pad", OpTexM3x3Tex: "texm3x3tex", OpTexM3x3Spec: "texm3x3spec",
	OpTexM3x3VSpec: "texm3x3vspec", OpExpP: "expp", OpLogP: "logp", OpCnd: "cnd",
	OpDef: "def", OpTexReg2RGB: "texreg2rgb", OpTexDp3Tex: "texdp3tex",
	OpTexM3x2Depth: "texm3x2depth", OpTexDp3: "texdp3", OpTexM3x3: "texm3x3",
	OpTexDepth: "texdepth", OpCmp: "cmp", OpBem: "bem", OpDp2Add: "dp2add",
	OpDsx: "dsx", OpDsy: "dsy", OpTexLdd: "texldd", OpSetp: "setp",
	OpTexLdl: "texldl", OpBreakp: "breakp", OpPhase: "phase",
	OpComment: "comment", OpEnd: "end",
}

// String returns the assembler mnemonic of the opcode.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint16(op))
}

// Known reports whether op is a recognised legacy opcode.
func (op Opcode) Known() bool {
	_, ok := opcodeNames[op]
	return ok
}

// HasDest reports whether instructions with this opcode carry a destination
// parameter. Control-flow opcodes only carry sources.
func (op Opcode) HasDest() bool {
	switch op {
	case OpNop, OpCall, OpCallNZ, OpLoop, OpRet, OpEndLoop, OpLabel,
		OpRep, OpEndRep, OpIf, OpIfc, OpElse, OpEndIf, OpBreak, OpBreakc,
		OpBreakp, OpPhase, OpEnd, OpComment:
		return false
	}
	return true
}

// IsFlowControl reports whether op terminates a straight-line block.
func (op Opcode) IsFlowControl() bool {
	switch op {
	case OpCall, OpCallNZ, OpLoop, OpRet, OpEndLoop, OpLabel, OpRep,
		OpEndRep, OpIf, OpIfc, OpElse, OpEndIf, OpBreak, OpBreakc, OpBreakp,
		OpPhase, OpEnd:
		return true
	}
	return false
}

// IsTexture reports whether op reads a texture.
func (op Opcode) IsTexture() bool {
	switch op {
	case OpTex, OpTexBem, OpTexBemL, OpTexReg2AR, OpTexReg2GB, OpTexReg2RGB,
		OpTexM3x2Tex, OpTexM3x3Tex, OpTexM3x3Spec, OpTexM3x3VSpec, OpTexDp3Tex,
		OpTexLdd, OpTexLdl:
		return true
	}
	return false
}

// legacySourceCount is the number of source parameters an instruction takes
// in shader versions that do not encode the instruction length. A negative
// value means the count depends on the version and is found by scanning.
var legacySourceCount = map[Opcode]int{
	OpNop: 0, OpMov: 1, OpAdd: 2, OpSub: 2, OpMad: 3, OpMul: 2, OpRcp: 1,
	OpRsq: 1, OpDp3: 2, OpDp4: 2, OpMin: 2, OpMax: 2, OpSlt: 2, OpSge: 2,
	OpExp: 1, OpLog: 1, OpLit: 1, OpDst: 2, OpLrp: 3, OpFrc: 1, OpM4x4: 2,
	OpM4x3: 2, OpM3x4: 2, OpM3x3: 2, OpM3x2: 2, OpExpP: 1, OpLogP: 1,
	OpCnd: 3, OpCmp: 3, OpBem: 2, OpTexCoord: -1, OpTexKill: 0, OpTex: -1,
	OpTexBem: 1, OpTexBemL: 1, OpTexReg2AR: 1, OpTexReg2GB: 1,
	OpTexReg2RGB: 1, OpTexM3x2Pad: 1, OpTexM3x2Tex: 1, OpTexM3x3Pad: 1,
	OpTexM3x3Tex: 1, OpTexM3x3Spec: 2, OpTexM3x3VSpec: 1, OpTexDp3Tex: 1,
	OpTexM3x2Depth: 1, OpTexDp3: 1, OpTexM3x3: 1, OpTexDepth: 0,
	OpPhase: 0, OpEnd: 0,
}
