// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package d3d9

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func words(tokens ...uint32) []byte {
	out := make([]byte, 0, len(tokens)*4)
	for _, tok := range tokens {
		out = binary.LittleEndian.AppendUint32(out, tok)
	}
	return out
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		token     uint32
		want      Version
		supported bool
	}{
		{0xFFFE0101, Version{ShaderVertex, 1, 1}, true},
		{0xFFFE0300, Version{ShaderVertex, 3, 0}, true},
		{0xFFFF0104, Version{ShaderPixel, 1, 4}, true},
		{0xFFFF0201, Version{ShaderPixel, 2, 1}, true},
		{0xFFFF0105, Version{ShaderPixel, 1, 5}, false},
		{0xFFFE0400, Version{ShaderVertex, 4, 0}, false},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.token)
		if err != nil {
			t.Fatalf("ParseVersion(0x%08X): %v", tt.token, err)
		}
		if got != tt.want {
			t.Errorf("ParseVersion(0x%08X) = %+v, want %+v", tt.token, got, tt.want)
		}
		if got.Supported() != tt.supported {
			t.Errorf("%s.Supported() = %v, want %v", got, got.Supported(), tt.supported)
		}
		if got.Token() != tt.token {
			t.Errorf("%s.Token() = 0x%08X, want 0x%08X", got, got.Token(), tt.token)
		}
	}

	if _, err := ParseVersion(0x07230203); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("non-shader token: err = %v", err)
	}
}

func TestVersionString(t *testing.T) {
	tests := map[Version]string{
		{ShaderVertex, 1, 1}: "vs_1_1",
		{ShaderPixel, 2, 1}:  "ps_2_x",
		{ShaderPixel, 3, 0}:  "ps_3_0",
	}
	for v, want := range tests {
		if got := v.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestDecode_VS20(t *testing.T) {
	code := words(
		0xFFFE0200,
		// dcl_position v0
		0x0200001F, 0x80000000, 0x900F0000,
		// mov oPos, v0
		0x02000001, 0xC00F0000, 0x90E40000,
		EndToken,
	)
	v, ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v != (Version{ShaderVertex, 2, 0}) {
		t.Fatalf("version = %v", v)
	}
	if len(ins) != 2 {
		t.Fatalf("got %d instructions, want 2", len(ins))
	}

	want := Decl{
		Usage: UsagePosition,
		Dest:  DestParam{Register: Register{Type: RegInput}, Mask: MaskAll},
	}
	if diff := cmp.Diff(want, ins[0].Decl); diff != "" {
		t.Errorf("decl mismatch (-want +got):\n%s", diff)
	}

	mov := ins[1]
	if mov.Opcode != OpMov || !mov.HasDest {
		t.Fatalf("second instruction = %s", mov.String())
	}
	if mov.Dest.Type != RegRastOut || mov.Dest.Num != RastOutPosition {
		t.Errorf("dest = %+v, want oPos", mov.Dest.Register)
	}
	if len(mov.Src) != 1 || mov.Src[0].Swizzle != SwizzleIdentity {
		t.Errorf("src = %+v", mov.Src)
	}
	if mov.Offset != 16 {
		t.Errorf("offset = %d, want 16", mov.Offset)
	}
}

func TestDecode_LegacyScan(t *testing.T) {
	// ps_1_1: tex t0; mul r0, t0, v0 (no length field)
	code := words(
		0xFFFF0101,
		0x00000042, 0xB00F0000,
		0x00000005, 0x800F0000, 0xB0E40000, 0x90E40000,
		EndToken,
	)
	_, ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ins) != 2 {
		t.Fatalf("got %d instructions, want 2", len(ins))
	}
	if ins[0].Opcode != OpTex || len(ins[0].Src) != 0 {
		t.Errorf("tex decoded as %s", ins[0].Format(true))
	}
	if ins[1].Opcode != OpMul || len(ins[1].Src) != 2 {
		t.Errorf("mul decoded as %s", ins[1].Format(true))
	}
	if got := ins[1].Format(true); got != "mul r0, t0, v0" {
		t.Errorf("Format = %q", got)
	}
}

func TestDecode_SkipsComments(t *testing.T) {
	code := words(
		0xFFFE0300,
		0x0002FFFE, 0x11111111, 0x22222222,
		0x0000001C, // ret
		EndToken,
	)
	_, ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ins) != 1 || ins[0].Opcode != OpRet {
		t.Fatalf("instructions = %v", ins)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"empty", nil},
		{"no end token", words(0xFFFE0200, 0x02000001, 0xC00F0000, 0x90E40000)},
		{"truncated operand", words(0xFFFE0200, 0x02000001, 0xC00F0000)},
		{"length mismatch", words(0xFFFE0200, 0x03000001, 0xC00F0000, 0x90E40000, EndToken)},
		{"unknown opcode", words(0xFFFE0200, 0x00000063, EndToken)},
		{"comment overrun", words(0xFFFE0200, 0x0010FFFE, 0, EndToken)},
		{"legacy source count", words(0xFFFE0101, 0x00000002, 0x800F0000, 0x90E40000, EndToken)},
		{"bad address register", words(0xFFFE0300, 0x03000001, 0x800F0000, 0xA0E42000, 0x90000000, EndToken)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.code)
			if err == nil {
				t.Fatal("expected error")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error %T is not *DecodeError", err)
			}
		})
	}
}

func TestNewDecoder_Errors(t *testing.T) {
	_, err := NewDecoder([]byte{0x00, 0x02})
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Errorf("short stream: err = %v, want *DecodeError", err)
	}

	_, err = NewDecoder(words(0x12345678, EndToken))
	if !errors.Is(err, ErrInvalidVersion) || errors.As(err, &de) {
		t.Errorf("bad version: err = %v, want ErrInvalidVersion", err)
	}
}

func TestDecode_Relative(t *testing.T) {
	// vs_1_1: mov r0, c[a0.x + 2] carries no address token.
	code := words(0xFFFE0101, 0x00000001, 0x800F0000, 0xA0E42002, EndToken)
	_, ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	src := ins[0].Src[0]
	if src.Relative == nil || src.Relative.Register.Type != RegAddr || src.Num != 2 {
		t.Fatalf("src = %+v", src)
	}

	// vs_3_0 carries an explicit aL token.
	code = words(0xFFFE0300, 0x03000001, 0x800F0000, 0xA0E42002, 0x80000000|uint32(RegLoop&7)<<28|uint32(RegLoop>>3)<<11, EndToken)
	_, ins, err = Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rel := ins[0].Src[0].Relative; rel == nil || rel.Register.Type != RegLoop {
		t.Fatalf("relative = %+v", rel)
	}
}

func TestDecode_Def(t *testing.T) {
	code := words(0xFFFF0200, 0x05000051, 0xA00F0003,
		math.Float32bits(1), math.Float32bits(0.5), 0, math.Float32bits(-2), EndToken)
	_, ins, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	def := ins[0]
	if def.Kind != KindDef || def.Def.Dest.Num != 3 {
		t.Fatalf("def = %+v", def)
	}
	if math.Float32frombits(def.Def.Values[3]) != -2 {
		t.Errorf("w = %v", math.Float32frombits(def.Def.Values[3]))
	}
}

func TestDecoder_Reset(t *testing.T) {
	code := words(0xFFFE0200, 0x02000001, 0xC00F0000, 0x90E40000, EndToken)
	d, err := NewDecoder(code)
	if err != nil {
		t.Fatal(err)
	}
	count := func() int {
		n := 0
		for d.Next() {
			n++
		}
		return n
	}
	if n := count(); n != 1 {
		t.Fatalf("first pass: %d", n)
	}
	if d.Next() {
		t.Fatal("Next after end returned true")
	}
	d.Reset()
	if n := count(); n != 1 {
		t.Fatalf("second pass: %d", n)
	}
}

func TestSwizzle(t *testing.T) {
	s := MakeSwizzle(1, 2, 0, 3)
	if s.String() != ".yzxw" {
		t.Errorf("String = %q", s.String())
	}
	if got := Replicate(2).Compose(s); got != Replicate(0) {
		t.Errorf("Compose = %s", got)
	}
	if SwizzleIdentity.String() != "" {
		t.Error("identity should print empty")
	}
}
