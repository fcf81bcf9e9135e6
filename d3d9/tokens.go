// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package d3d9

import "fmt"

// Token layout constants.
const (
	EndToken = 0x0000FFFF

	opcodeMask         = 0x0000FFFF
	controlShift       = 16
	controlMask        = 0x00FF0000
	lengthShift        = 24
	lengthMask         = 0x0F000000
	predicatedBit      = 1 << 28
	coissueBit         = 1 << 30
	paramBit           = 1 << 31
	commentLengthShift = 16
	commentLengthMask  = 0x7FFF0000

	regNumMask    = 0x000007FF
	regTypeShift  = 28
	regTypeMask   = 0x70000000
	regType2Shift = 8
	regType2Mask  = 0x00001800
	relativeBit   = 1 << 13

	writeMaskShift = 16
	writeMaskMask  = 0x000F0000
	resultModShift = 20
	resultModMask  = 0x00F00000
	shiftShift     = 24
	shiftMask      = 0x0F000000

	swizzleShift = 16
	swizzleMask  = 0x00FF0000
	srcModShift  = 24
	srcModMask   = 0x0F000000

	usageMask       = 0x0000001F
	usageIndexShift = 16
	usageIndexMask  = 0x000F0000
	texTypeShift    = 27
	texTypeMask     = 0x78000000
)

// RegisterType identifies a legacy register file.
type RegisterType uint8

// Legacy register types. Some values are shared between shader classes and
// are disambiguated by the version.
const (
	RegTemp        RegisterType = 0
	RegInput       RegisterType = 1
	RegConst       RegisterType = 2
	RegAddr        RegisterType = 3 // vertex: a0
	RegTexture     RegisterType = 3 // pixel: t#
	RegRastOut     RegisterType = 4
	RegAttrOut     RegisterType = 5
	RegTexCrdOut   RegisterType = 6 // pre-3.0 vertex
	RegOutput      RegisterType = 6 // vs_3_0
	RegConstInt    RegisterType = 7
	RegColorOut    RegisterType = 8
	RegDepthOut    RegisterType = 9
	RegSampler     RegisterType = 10
	RegConst2      RegisterType = 11
	RegConst3      RegisterType = 12
	RegConst4      RegisterType = 13
	RegConstBool   RegisterType = 14
	RegLoop        RegisterType = 15
	RegTempFloat16 RegisterType = 16
	RegMiscType    RegisterType = 17
	RegLabel       RegisterType = 18
	RegPredicate   RegisterType = 19

	regTypeCount = 20
)

// Rasterizer output register numbers (RegRastOut).
const (
	RastOutPosition  = 0
	RastOutFog       = 1
	RastOutPointSize = 2
)

// Misc-type register numbers (RegMiscType).
const (
	MiscPosition = 0
	MiscFace     = 1
)

// Name returns the assembler prefix of a register type in the given shader
// class.
func (t RegisterType) Name(pixel bool) string {
	switch t {
	case RegTemp:
		return "r"
	case RegInput:
		return "v"
	case RegConst, RegConst2, RegConst3, RegConst4:
		return "c"
	case RegAddr:
		if pixel {
			return "t"
		}
		return "a"
	case RegRastOut:
		return "oRast"
	case RegAttrOut:
		return "oD"
	case RegOutput:
		if pixel {
			return "?"
		}
		return "o"
	case RegConstInt:
		return "i"
	case RegColorOut:
		return "oC"
	case RegDepthOut:
		return "oDepth"
	case RegSampler:
		return "s"
	case RegConstBool:
		return "b"
	case RegLoop:
		return "aL"
	case RegTempFloat16:
		return "half"
	case RegMiscType:
		return "vMisc"
	case RegLabel:
		return "l"
	case RegPredicate:
		return "p"
	}
	return fmt.Sprintf("reg(%d)", uint8(t))
}

// SrcModifier is a source parameter modifier.
type SrcModifier uint8

// Source modifiers.
const (
	SrcModNone    SrcModifier = 0
	SrcModNeg     SrcModifier = 1
	SrcModBias    SrcModifier = 2
	SrcModBiasNeg SrcModifier = 3
	SrcModSign    SrcModifier = 4 // _bx2
	SrcModSignNeg SrcModifier = 5
	SrcModComp    SrcModifier = 6
	SrcModX2      SrcModifier = 7
	SrcModX2Neg   SrcModifier = 8
	SrcModDZ      SrcModifier = 9
	SrcModDW      SrcModifier = 10
	SrcModAbs     SrcModifier = 11
	SrcModAbsNeg  SrcModifier = 12
	SrcModNot     SrcModifier = 13
)

// Negated reports whether the modifier negates the value after its other
// effects are applied.
func (m SrcModifier) Negated() bool {
	switch m {
	case SrcModNeg, SrcModBiasNeg, SrcModSignNeg, SrcModX2Neg, SrcModAbsNeg:
		return true
	}
	return false
}

// ResultModifier is a destination modifier bit set.
type ResultModifier uint8

// Result modifiers.
const (
	ResultSaturate         ResultModifier = 1
	ResultPartialPrecision ResultModifier = 2
	ResultCentroid         ResultModifier = 4
)

// Usage is a vertex element or interpolator semantic.
type Usage uint8

// Declaration usages.
const (
	UsagePosition     Usage = 0
	UsageBlendWeight  Usage = 1
	UsageBlendIndices Usage = 2
	UsageNormal       Usage = 3
	UsagePointSize    Usage = 4
	UsageTexCoord     Usage = 5
	UsageTangent      Usage = 6
	UsageBinormal     Usage = 7
	UsageTessFactor   Usage = 8
	UsagePositionT    Usage = 9
	UsageColor        Usage = 10
	UsageFog          Usage = 11
	UsageDepth        Usage = 12
	UsageSample       Usage = 13
)

var usageNames = [...]string{
	"position", "blendweight", "blendindices", "normal", "psize", "texcoord",
	"tangent", "binormal", "tessfactor", "positiont", "color", "fog", "depth",
	"sample",
}

// String returns the declaration name of the usage.
func (u Usage) String() string {
	if int(u) < len(usageNames) {
		return usageNames[u]
	}
	return fmt.Sprintf("usage(%d)", uint8(u))
}

// ParseUsage returns the usage named s.
func ParseUsage(s string) (Usage, bool) {
	for i, name := range usageNames {
		if name == s {
			return Usage(i), true
		}
	}
	return 0, false
}

// TextureType is the resource kind of a sampler declaration.
type TextureType uint8

// Sampler texture types.
const (
	TextureUnknown TextureType = 0
	Texture2D      TextureType = 2
	TextureCube    TextureType = 3
	TextureVolume  TextureType = 4
)

// String returns the declaration suffix of the texture type.
func (t TextureType) String() string {
	switch t {
	case Texture2D:
		return "2d"
	case TextureCube:
		return "cube"
	case TextureVolume:
		return "volume"
	}
	return "unknown"
}

// Comparison is the comparison encoded in the control bits of ifc, breakc
// and setp.
type Comparison uint8

// Comparisons.
const (
	CmpGT Comparison = 1
	CmpEQ Comparison = 2
	CmpGE Comparison = 3
	CmpLT Comparison = 4
	CmpNE Comparison = 5
	CmpLE Comparison = 6
)

var comparisonNames = [...]string{"", "gt", "eq", "ge", "lt", "ne", "le"}

// String returns the assembler suffix of the comparison.
func (c Comparison) String() string {
	if c >= CmpGT && c <= CmpLE {
		return comparisonNames[c]
	}
	return fmt.Sprintf("cmp(%d)", uint8(c))
}

// Texld control variants (control bits of OpTex in version 2.0 and later).
const (
	TexldPlain   = 0
	TexldProject = 1
	TexldBias    = 2
)
