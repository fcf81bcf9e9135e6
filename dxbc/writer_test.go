// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package dxbc

import (
	"encoding/binary"
	"strings"
	"testing"
)

func TestProgramBuilder_Header(t *testing.T) {
	b := NewProgramBuilder(VertexShader)
	b.DeclareTemps(2)
	b.Emit(OpRet)

	data, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(data)%4 != 0 {
		t.Fatalf("program length %d not word aligned", len(data))
	}

	version := binary.LittleEndian.Uint32(data[0:])
	if want := uint32(1<<16 | 4<<4); version != want {
		t.Errorf("version token = 0x%08X, want 0x%08X", version, want)
	}
	length := binary.LittleEndian.Uint32(data[4:])
	if int(length)*4 != len(data) {
		t.Errorf("length token = %d, program is %d bytes", length, len(data))
	}

	// dcl_temps 2: opcode token with length 2, then the count.
	dcl := binary.LittleEndian.Uint32(data[8:])
	if dcl != uint32(OpDclTemps)|2<<24 {
		t.Errorf("dcl_temps token = 0x%08X", dcl)
	}
	if n := binary.LittleEndian.Uint32(data[12:]); n != 2 {
		t.Errorf("temp count = %d", n)
	}
	ret := binary.LittleEndian.Uint32(data[16:])
	if ret != uint32(OpRet)|1<<24 {
		t.Errorf("ret token = 0x%08X", ret)
	}
}

func TestProgramBuilder_DebugNamePadding(t *testing.T) {
	for _, name := range []string{"", "a", "ab", "abc", "abcd", "vs_2_0 shader"} {
		b := NewProgramBuilder(PixelShader)
		b.SetDebugName(name)
		b.Emit(OpRet)
		data, err := b.Build()
		if err != nil {
			t.Fatalf("Build(%q): %v", name, err)
		}
		if len(data)%4 != 0 {
			t.Errorf("Build(%q) length %d is not 4-byte aligned", name, len(data))
		}
		p, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%q): %v", name, err)
		}
		wantComments := 1
		if name == "" {
			wantComments = 0
		}
		if got := p.Count(OpCustomData); got != wantComments {
			t.Errorf("custom data blocks = %d, want %d", got, wantComments)
		}
		if name != "" && !strings.Contains(p.String(), name) {
			t.Errorf("disassembly lacks debug name %q:\n%s", name, p)
		}
	}
}

func TestOperand_EncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		op   Operand
		want string
	}{
		{"temp mask", Temp(3).WithMask(MaskXY), "r3.xy"},
		{"temp swizzle", Temp(1).WithSwizzle(3, 2, 1, 0), "r1.wzyx"},
		{"select", Input(2).Select(1), "v2.y"},
		{"neg", Temp(0).Neg(), "-r0"},
		{"abs", Temp(0).Abs(), "|r0|"},
		{"abs neg", Temp(0).Abs().Neg(), "-|r0|"},
		{"cb", ConstBuffer(0, 7), "cb0[7]"},
		{"cb relative", ConstBuffer(0, 4).Relative(1, Temp(2).Select(0)), "cb0[r2.x + 4]"},
		{"cb relative zero", ConstBuffer(1, 0).Relative(1, Temp(2).Select(3)), "cb1[r2.w]"},
		{"indexable", IndexableTemp(0, 5), "x0[5]"},
		{"gs input", GSInput(2, 1), "v[2][1]"},
		{"imm", ImmF32(1, 0.5, 0, -2), "l(1, 0.5, 0, -2)"},
		{"scalar imm", ScalarU32(3), "l(3)"},
		{"null", Null(), "null"},
		{"depth", OutputDepth(), "oDepth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words := tt.op.Encode(nil)
			got, n, err := DecodeOperand(words)
			if err != nil {
				t.Fatalf("DecodeOperand: %v", err)
			}
			if n != len(words) {
				t.Errorf("consumed %d of %d tokens", n, len(words))
			}
			if s := got.String(); s != tt.want {
				t.Errorf("String() = %q, want %q", s, tt.want)
			}
		})
	}
}

func TestProgramBuilder_Decode(t *testing.T) {
	b := NewProgramBuilder(PixelShader)
	b.DeclareGlobalFlags(GlobalFlagRefactoringAllowed)
	b.DeclareConstantBuffer(3, 12, false)
	b.DeclareSampler(0, SamplerComparison)
	b.DeclareResource(0, ResourceTexture2D)
	b.DeclareInputPS(1, MaskXY, InterpolationLinear)
	b.DeclareInputPSSIV(0, MaskXYZW, InterpolationLinearNoPerspective, SVPosition)
	b.DeclareOutput(0, MaskXYZW)
	b.DeclareTemps(4)

	b.Emit(OpSampleCLZ, Temp(0).WithMask(MaskX), Input(1), Resource(0).Replicate(0), Sampler(0), ConstBuffer(3, 2).Select(0))
	b.EmitTest(OpIf, true, Temp(0).Select(0))
	b.EmitSat(OpMov, Output(0).WithMask(MaskXYZW), ImmF32(1, 1, 1, 1))
	b.Emit(OpElse)
	b.EmitTest(OpDiscard, false, Temp(0).Select(0))
	b.Emit(OpEndIf)
	b.Emit(OpRet)

	data, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Type != PixelShader || p.Major != 4 || p.Minor != 0 {
		t.Errorf("header = %s_%d_%d", p.Type, p.Major, p.Minor)
	}
	if got := len(p.Declarations()); got != 8 {
		t.Errorf("declarations = %d, want 8", got)
	}
	code := p.Code()
	if len(code) != 7 {
		t.Fatalf("code instructions = %d, want 7", len(code))
	}
	wantLines := []string{
		"sample_c_lz r0.x, v1, t0.xxxx, s0, cb3[2].x",
		"if_nz r0.x",
		"mov_sat o0, l(1, 1, 1, 1)",
		"else",
		"discard_z r0.x",
		"endif",
		"ret",
	}
	for i, want := range wantLines {
		if got := code[i].String(); got != want {
			t.Errorf("instruction %d = %q, want %q", i, got, want)
		}
	}
	dis := p.String()
	for _, want := range []string{"dcl_input_ps_siv", "position", "dcl_resource_texture2d", "refactoringAllowed"} {
		if !strings.Contains(dis, want) {
			t.Errorf("disassembly lacks %q:\n%s", want, dis)
		}
	}
}

func TestProgramBuilder_TooManyOperands(t *testing.T) {
	b := NewProgramBuilder(VertexShader)
	b.Emit(OpMov, Temp(0), Temp(1), Temp(2), Temp(3), Temp(4), Temp(5), Temp(6))
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error for seven operands")
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := map[string][]byte{
		"odd length":         {1, 2, 3},
		"short":              {0, 0, 0, 0},
		"bad length":         {0x40, 0, 1, 0, 9, 0, 0, 0},
		"zero opcode length": {0x40, 0, 1, 0, 3, 0, 0, 0, 0x3E, 0, 0, 0},
	}
	for name, data := range tests {
		if _, err := Decode(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
