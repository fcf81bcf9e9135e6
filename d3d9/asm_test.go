// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package d3d9

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssemble_MatchesHandEncoding(t *testing.T) {
	code, err := Assemble(`
		vs_2_0
		dcl_position v0
		mov oPos, v0 ; pass through
	`)
	require.NoError(t, err)

	want := words(
		0xFFFE0200,
		0x0200001F, 0x80000000, 0x900F0000,
		0x02000001, 0xC00F0000, 0x90E40000,
		EndToken,
	)
	require.True(t, bytes.Equal(want, code), "got % x", code)
}

func TestAssemble_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "vs_3_0 loop",
			src: `vs_3_0
				dcl_position v0
				dcl_texcoord2 o1.xy
				defi i0, 4, 0, 1, 0
				loop aL, i0
				add r0, r0, c[aL + 8]
				endloop
				mov o1.xy, -r0.yzxw`,
			want: []string{
				"dcl_position0 v0",
				"dcl_texcoord2 o1.xy",
				"defi i0, 0x00000004, 0x00000000, 0x00000001, 0x00000000",
				"loop aL, i0",
				"add r0, r0, c[aL + 8]",
				"endloop",
				"mov o1.xy, -r0.yzxw",
			},
		},
		{
			name: "ps_2_0 sampling",
			src: `ps_2_0
				dcl t0.xy
				dcl_2d s0
				texld r0, t0, s0
				texldp_pp r1, t0, s0
				mov_sat oC0, r0`,
			want: []string{
				"dcl_position0 t0.xy",
				"dcl_2d s0",
				"tex r0, t0, s0",
				"tex r1, t0, s0",
				"mov_sat oC0, r0",
			},
		},
		{
			name: "predication and comparisons",
			src: `vs_3_0
				setp_gt p0, r0.x, c0.x
				(!p0.x) add r1, r0, c1
				if_le r0.x, c0.y
				break_ne r0.y, c0.z
				endif`,
			want: []string{
				"setp_gt p0, r0.xxxx, c0.xxxx",
				"(!p0.xxxx) add r1, r0, c1",
				"ifc_le r0.xxxx, c0.yyyy",
				"breakc_ne r0.yyyy, c0.zzzz",
				"endif",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := Assemble(tt.src)
			require.NoError(t, err)

			v, ins, err := Decode(code)
			require.NoError(t, err)
			require.Len(t, ins, len(tt.want))
			for i, w := range tt.want {
				require.Equal(t, w, ins[i].Format(v.IsPixel()), "instruction %d", i)
			}
		})
	}
}

func TestAssemble_Modifiers(t *testing.T) {
	code, err := Assemble(`ps_1_4
		texld r0, t0
		+mov r1.a, 1-r0
		mul_x2 r0.rgb, r0_bias, -v0`)
	require.NoError(t, err)

	_, ins, err := Decode(code)
	require.NoError(t, err)
	require.Len(t, ins, 3)

	mov := ins[1]
	require.True(t, mov.Coissue)
	require.Equal(t, MaskW, mov.Dest.Mask)
	require.Equal(t, SrcModComp, mov.Src[0].Modifier)

	mul := ins[2]
	require.Equal(t, int8(1), mul.Dest.Shift)
	require.Equal(t, MaskXYZ, mul.Dest.Mask)
	require.Equal(t, SrcModBias, mul.Src[0].Modifier)
	require.Equal(t, SrcModNeg, mul.Src[1].Modifier)
}

func TestAssemble_SharedRegisterType(t *testing.T) {
	// t# of pixel shaders and a0 of vertex shaders encode the same type.
	code, err := Assemble("ps_1_1\ntex t0\ntexbem t1, t0\nmul r0, t0, t1")
	require.NoError(t, err)
	v, ins, err := Decode(code)
	require.NoError(t, err)
	require.Len(t, ins, 3)
	require.Equal(t, RegTexture, ins[0].Dest.Type)
	require.Equal(t, "mul r0, t0, t1", ins[2].Format(v.IsPixel()))

	code, err = Assemble("vs_2_0\nmova a0.x, c0.x\nmov r0, c[a0.x + 1]")
	require.NoError(t, err)
	_, ins, err = Decode(code)
	require.NoError(t, err)
	require.Equal(t, RegAddr, ins[0].Dest.Type)
}

func TestAssemble_Def(t *testing.T) {
	code, err := Assemble("ps_3_0\ndef c2, 1.5, -0.25, 0, 1\ndefb b1, true")
	require.NoError(t, err)

	_, ins, err := Decode(code)
	require.NoError(t, err)
	require.Len(t, ins, 2)
	require.Equal(t, float32(-0.25), math.Float32frombits(ins[0].Def.Values[1]))
	require.Equal(t, OpDefB, ins[1].Opcode)
	require.Equal(t, uint32(1), ins[1].Def.Values[0])
}

func TestAssemble_Errors(t *testing.T) {
	tests := map[string]string{
		"missing profile":  "",
		"bad profile":      "gs_4_0",
		"unknown mnemonic": "vs_2_0\nfrobnicate r0, r1",
		"unknown register": "vs_2_0\nmov q0, r1",
		"bad mask":         "vs_2_0\nmov r0.xq, r1",
		"bad def":          "vs_2_0\ndef c0, 1, 2",
		"address in pixel": "ps_3_0\nmov r0, a0",
		"texture in vertex": "vs_1_1\nmov r0, t0",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Assemble(src)
			require.Error(t, err)
			var ae *AsmError
			require.True(t, errors.As(err, &ae))
		})
	}
}
