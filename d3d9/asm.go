// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package d3d9

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AsmError reports an assembler syntax error.
type AsmError struct {
	Line    int
	Message string
}

// Error implements the error interface.
func (e *AsmError) Error() string {
	return fmt.Sprintf("d3d9 asm: line %d: %s", e.Line, e.Message)
}

// Assemble translates legacy shader assembly into a token stream. The
// accepted dialect covers every opcode the decoder understands:
//
//	vs_3_0
//	dcl_position v0
//	def c4, 1.0, 0.5, 0.0, 1.0
//	mov r0.xy, -c[a0.x + 3].yzxw
//	(!p0.x) add_sat o0, r0, v0
//
// Comments start with ';' or '//'. Coissued pixel instructions are written
// with a leading '+'.
func Assemble(src string) ([]byte, error) {
	var enc *Encoder
	for n, raw := range strings.Split(src, "\n") {
		line := stripComment(raw)
		if line == "" {
			continue
		}
		lineNo := n + 1
		if enc == nil {
			v, err := parseProfile(line)
			if err != nil {
				return nil, &AsmError{Line: lineNo, Message: err.Error()}
			}
			enc = NewEncoder(v)
			continue
		}
		ins, err := parseLine(line, enc.Version())
		if err != nil {
			return nil, &AsmError{Line: lineNo, Message: err.Error()}
		}
		enc.Emit(ins)
	}
	if enc == nil {
		return nil, &AsmError{Line: 0, Message: "missing shader profile"}
	}
	return enc.Bytes(), nil
}

func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func parseProfile(line string) (Version, error) {
	parts := strings.Split(strings.ToLower(line), "_")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("expected shader profile, got %q", line)
	}
	var v Version
	switch parts[0] {
	case "vs":
		v.Type = ShaderVertex
	case "ps":
		v.Type = ShaderPixel
	default:
		return Version{}, fmt.Errorf("unknown shader type %q", parts[0])
	}
	major, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("bad major version %q", parts[1])
	}
	v.Major = uint8(major)
	if parts[2] == "x" || parts[2] == "sw" {
		v.Minor = 1
	} else {
		minor, err := strconv.Atoi(parts[2])
		if err != nil {
			return Version{}, fmt.Errorf("bad minor version %q", parts[2])
		}
		v.Minor = uint8(minor)
	}
	return v, nil
}

var mnemonics = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	m["texld"] = OpTex
	m["texldp"] = OpTex
	m["texldb"] = OpTex
	m["texcrd"] = OpTexCoord
	return m
}()

var comparisonSuffix = map[string]Comparison{
	"gt": CmpGT, "eq": CmpEQ, "ge": CmpGE, "lt": CmpLT, "ne": CmpNE, "le": CmpLE,
}

var shiftSuffix = map[string]int8{
	"x2": 1, "x4": 2, "x8": 3, "d2": -1, "d4": -2, "d8": -3,
}

func parseLine(line string, v Version) (*Instruction, error) {
	ins := &Instruction{Kind: KindInstruction}

	if strings.HasPrefix(line, "+") {
		ins.Coissue = true
		line = strings.TrimSpace(line[1:])
	}
	if strings.HasPrefix(line, "(") {
		end := strings.IndexByte(line, ')')
		if end < 0 {
			return nil, fmt.Errorf("unterminated predicate")
		}
		pred, err := parseSrc(strings.TrimSpace(line[1:end]), v)
		if err != nil {
			return nil, err
		}
		ins.Predicated = true
		ins.Predicate = pred
		line = strings.TrimSpace(line[end+1:])
	}

	mnemonic, rest, _ := strings.Cut(line, " ")
	operands := splitOperands(rest)

	parts := strings.Split(strings.ToLower(mnemonic), "_")
	if parts[0] == "dcl" {
		return parseDcl(ins, parts[1:], operands, v)
	}
	switch parts[0] {
	case "def", "defi", "defb":
		return parseDef(ins, parts[0], operands, v)
	}

	op, ok := mnemonics[parts[0]]
	if !ok {
		return nil, fmt.Errorf("unknown mnemonic %q", parts[0])
	}
	ins.Opcode = op
	switch parts[0] {
	case "texldp":
		ins.Control = TexldProject
	case "texldb":
		ins.Control = TexldBias
	}

	var mods ResultModifier
	var shift int8
	for _, suffix := range parts[1:] {
		if cmp, ok := comparisonSuffix[suffix]; ok {
			ins.Control = uint8(cmp)
			switch op {
			case OpIf:
				ins.Opcode = OpIfc
			case OpBreak:
				ins.Opcode = OpBreakc
			}
			continue
		}
		if s, ok := shiftSuffix[suffix]; ok {
			shift = s
			continue
		}
		switch suffix {
		case "sat":
			mods |= ResultSaturate
		case "pp":
			mods |= ResultPartialPrecision
		case "centroid":
			mods |= ResultCentroid
		default:
			return nil, fmt.Errorf("unknown suffix %q", suffix)
		}
	}
	if ins.Opcode == OpBreak && len(operands) == 1 {
		ins.Opcode = OpBreakp
	}

	if ins.Opcode.HasDest() {
		if len(operands) == 0 {
			return nil, fmt.Errorf("%s needs a destination", ins.Opcode)
		}
		dest, err := parseDest(operands[0], v)
		if err != nil {
			return nil, err
		}
		dest.Modifiers = mods
		dest.Shift = shift
		ins.HasDest = true
		ins.Dest = dest
		operands = operands[1:]
	}
	for _, text := range operands {
		src, err := parseSrc(text, v)
		if err != nil {
			return nil, err
		}
		ins.Src = append(ins.Src, src)
	}
	return ins, nil
}

func splitOperands(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func parseDcl(ins *Instruction, suffixes []string, operands []string, v Version) (*Instruction, error) {
	if len(operands) != 1 {
		return nil, fmt.Errorf("dcl takes one register")
	}
	ins.Opcode = OpDcl
	ins.Kind = KindDecl
	var mods ResultModifier
	for _, s := range suffixes {
		switch s {
		case "2d":
			ins.Decl.TextureType = Texture2D
			continue
		case "cube":
			ins.Decl.TextureType = TextureCube
			continue
		case "volume":
			ins.Decl.TextureType = TextureVolume
			continue
		case "centroid":
			mods |= ResultCentroid
			continue
		case "pp":
			mods |= ResultPartialPrecision
			continue
		}
		name := strings.TrimRight(s, "0123456789")
		usage, ok := ParseUsage(name)
		if !ok {
			return nil, fmt.Errorf("unknown declaration usage %q", s)
		}
		ins.Decl.Usage = usage
		if digits := s[len(name):]; digits != "" {
			idx, err := strconv.Atoi(digits)
			if err != nil || idx > 15 {
				return nil, fmt.Errorf("bad usage index %q", digits)
			}
			ins.Decl.UsageIndex = uint8(idx)
		}
	}
	dest, err := parseDest(operands[0], v)
	if err != nil {
		return nil, err
	}
	dest.Modifiers = mods
	ins.Decl.Dest = dest
	return ins, nil
}

func parseDef(ins *Instruction, name string, operands []string, v Version) (*Instruction, error) {
	ins.Kind = KindDef
	if len(operands) == 0 {
		return nil, fmt.Errorf("%s needs a register", name)
	}
	dest, err := parseDest(operands[0], v)
	if err != nil {
		return nil, err
	}
	ins.Def.Dest = dest
	values := operands[1:]
	switch name {
	case "def":
		ins.Opcode = OpDef
		if len(values) != 4 {
			return nil, fmt.Errorf("def takes four values")
		}
		for i, s := range values {
			f, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, fmt.Errorf("bad float %q", s)
			}
			ins.Def.Values[i] = math.Float32bits(float32(f))
		}
	case "defi":
		ins.Opcode = OpDefI
		if len(values) != 4 {
			return nil, fmt.Errorf("defi takes four values")
		}
		for i, s := range values {
			n, err := strconv.ParseInt(s, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("bad integer %q", s)
			}
			ins.Def.Values[i] = uint32(int32(n))
		}
	case "defb":
		ins.Opcode = OpDefB
		if len(values) != 1 {
			return nil, fmt.Errorf("defb takes one value")
		}
		switch strings.ToLower(values[0]) {
		case "true", "1":
			ins.Def.Values[0] = 1
		case "false", "0":
		default:
			return nil, fmt.Errorf("bad boolean %q", values[0])
		}
	}
	return ins, nil
}

var componentIndex = map[byte]uint8{
	'x': 0, 'y': 1, 'z': 2, 'w': 3,
	'r': 0, 'g': 1, 'b': 2, 'a': 3,
}

func parseDest(text string, v Version) (DestParam, error) {
	reg, rel, suffix, err := parseRegister(text, v)
	if err != nil {
		return DestParam{}, err
	}
	dest := DestParam{Register: reg, Mask: MaskAll, Relative: rel}
	if suffix != "" {
		var mask WriteMask
		for i := 0; i < len(suffix); i++ {
			c, ok := componentIndex[suffix[i]]
			if !ok {
				return DestParam{}, fmt.Errorf("bad write mask %q", suffix)
			}
			mask |= 1 << c
		}
		dest.Mask = mask
	}
	return dest, nil
}

func parseSrc(text string, v Version) (SrcParam, error) {
	var mod SrcModifier
	neg := false
	switch {
	case strings.HasPrefix(text, "-"):
		neg = true
		text = strings.TrimSpace(text[1:])
	case strings.HasPrefix(text, "!"):
		mod = SrcModNot
		text = strings.TrimSpace(text[1:])
	case strings.HasPrefix(text, "1-"):
		mod = SrcModComp
		text = strings.TrimSpace(text[2:])
	}
	if strings.HasPrefix(text, "abs(") && strings.HasSuffix(text, ")") {
		text = text[4 : len(text)-1]
		mod = SrcModAbs
	}
	for suffix, m := range map[string]SrcModifier{
		"_bias": SrcModBias, "_bx2": SrcModSign, "_x2": SrcModX2,
		"_dz": SrcModDZ, "_dw": SrcModDW, "_db": SrcModDZ, "_da": SrcModDW, "_abs": SrcModAbs,
	} {
		if i := strings.Index(text, suffix); i > 0 {
			text = text[:i] + text[i+len(suffix):]
			mod = m
			break
		}
	}
	if neg {
		switch mod {
		case SrcModNone:
			mod = SrcModNeg
		case SrcModBias:
			mod = SrcModBiasNeg
		case SrcModSign:
			mod = SrcModSignNeg
		case SrcModX2:
			mod = SrcModX2Neg
		case SrcModAbs:
			mod = SrcModAbsNeg
		default:
			return SrcParam{}, fmt.Errorf("modifier cannot be negated in %q", text)
		}
	}
	reg, rel, suffix, err := parseRegister(text, v)
	if err != nil {
		return SrcParam{}, err
	}
	src := SrcParam{Register: reg, Swizzle: SwizzleIdentity, Modifier: mod, Relative: rel}
	if suffix != "" {
		var comps [4]uint8
		for i := 0; i < 4; i++ {
			j := i
			if j >= len(suffix) {
				j = len(suffix) - 1
			}
			c, ok := componentIndex[suffix[j]]
			if !ok || len(suffix) > 4 {
				return SrcParam{}, fmt.Errorf("bad swizzle %q", suffix)
			}
			comps[i] = c
		}
		src.Swizzle = MakeSwizzle(comps[0], comps[1], comps[2], comps[3])
	}
	return src, nil
}

// parseRegister parses "r0", "c[a0.x + 3]", "c3[a0.x]", "oPos", "aL" and
// returns the trailing component suffix without its dot.
func parseRegister(text string, v Version) (Register, *RelativeAddress, string, error) {
	text = strings.TrimSpace(text)
	var rel *RelativeAddress
	var relOffset uint32
	if open := strings.IndexByte(text, '['); open >= 0 {
		end := strings.IndexByte(text, ']')
		if end < open {
			return Register{}, nil, "", fmt.Errorf("unterminated index in %q", text)
		}
		inner := strings.ReplaceAll(text[open+1:end], " ", "")
		addr, offText, _ := strings.Cut(inner, "+")
		if offText != "" {
			n, err := strconv.ParseUint(offText, 10, 32)
			if err != nil {
				return Register{}, nil, "", fmt.Errorf("bad index offset %q", offText)
			}
			relOffset = uint32(n)
		}
		addrReg, _, addrSuffix, err := parseRegister(addr, v)
		if err != nil {
			return Register{}, nil, "", err
		}
		rel = &RelativeAddress{Register: addrReg}
		if addrSuffix != "" {
			rel.Component = componentIndex[addrSuffix[0]]
		}
		text = text[:open] + text[end+1:]
	}

	name, suffix, _ := strings.Cut(text, ".")
	reg, err := parseRegisterName(name, v)
	if err != nil {
		return Register{}, nil, "", err
	}
	reg.Num += relOffset
	return reg, rel, suffix, nil
}

func parseRegisterName(name string, v Version) (Register, error) {
	switch name {
	case "oPos":
		return Register{Type: RegRastOut, Num: RastOutPosition}, nil
	case "oFog":
		return Register{Type: RegRastOut, Num: RastOutFog}, nil
	case "oPts":
		return Register{Type: RegRastOut, Num: RastOutPointSize}, nil
	case "oDepth":
		return Register{Type: RegDepthOut}, nil
	case "aL":
		return Register{Type: RegLoop}, nil
	case "vPos":
		return Register{Type: RegMiscType, Num: MiscPosition}, nil
	case "vFace":
		return Register{Type: RegMiscType, Num: MiscFace}, nil
	}
	prefix := strings.TrimRight(name, "0123456789")
	digits := name[len(prefix):]
	var num uint32
	if digits != "" {
		n, err := strconv.ParseUint(digits, 10, 32)
		if err != nil {
			return Register{}, fmt.Errorf("bad register %q", name)
		}
		num = uint32(n)
	}
	var t RegisterType
	switch prefix {
	case "r":
		t = RegTemp
	case "v":
		t = RegInput
	case "c":
		t = RegConst
	case "a":
		t = RegAddr
	case "t":
		t = RegTexture
	case "oD":
		t = RegAttrOut
	case "oT":
		t = RegTexCrdOut
	case "o":
		t = RegOutput
	case "i":
		t = RegConstInt
	case "oC":
		t = RegColorOut
	case "s":
		t = RegSampler
	case "b":
		t = RegConstBool
	case "l":
		t = RegLabel
	case "p":
		t = RegPredicate
	default:
		return Register{}, fmt.Errorf("unknown register %q", name)
	}
	// a# and t# share one register type; the shader type picks the meaning.
	switch {
	case prefix == "a" && v.IsPixel():
		return Register{}, fmt.Errorf("address register in pixel shader")
	case prefix == "t" && !v.IsPixel():
		return Register{}, fmt.Errorf("texture register in vertex shader")
	}
	return Register{Type: t, Num: num}, nil
}
