// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gogpu/shaderconv/d3d9"
)

func TestCompressedMask_RoundTrip(t *testing.T) {
	for mask := uint8(0); mask < 16; mask++ {
		c := CompressMask(mask)
		if got := c.Expand(); got != mask {
			t.Errorf("CompressMask(%04b).Expand() = %04b", mask, got)
		}
		count := 0
		for i := 0; i < 4; i++ {
			if mask&(1<<i) != 0 {
				count++
			}
		}
		if c.Count() != count {
			t.Errorf("CompressMask(%04b).Count() = %d, want %d", mask, c.Count(), count)
		}
	}
}

func TestCompressedMask_Packing(t *testing.T) {
	// xzw packs as components 0, 2, 3.
	c := CompressMask(0xD)
	require.Equal(t, 3, c.Count())
	require.Equal(t, CompressedMask(0), c&3)
	require.Equal(t, CompressedMask(2), c>>2&3)
	require.Equal(t, CompressedMask(3), c>>4&3)
	require.Equal(t, "xzw", c.String())
	require.Equal(t, uint8(0xF), c.Union(CompressMask(0x2)).Expand())
}

func TestParseSemantic(t *testing.T) {
	tests := []Semantic{
		SemanticPosition,
		SemanticFog,
		SemanticPointSize,
		SemanticSpriteCoord,
		Color(1),
		TexCoord(7),
		ClipDistance(1),
		{Usage: d3d9.UsageNormal, Index: 2},
	}
	for _, sem := range tests {
		t.Run(sem.String(), func(t *testing.T) {
			got, err := ParseSemantic(sem.String())
			require.NoError(t, err)
			require.Equal(t, sem, got)
		})
	}

	for _, bad := range []string{"", "bogus3", "texcoord99"} {
		_, err := ParseSemantic(bad)
		require.Error(t, err, "%q", bad)
	}
}

func TestSignature_Add(t *testing.T) {
	var s Signature
	s.Add(SignatureEntry{Semantic: TexCoord(0), Register: 1, Mask: CompressMask(0x3)})
	s.Add(SignatureEntry{
		Semantic: TexCoord(0), Register: 1, Mask: CompressMask(0x4),
		Source: d3d9.Register{Type: d3d9.RegTexture}, HasSource: true, Centroid: true,
	})
	s.Add(SignatureEntry{Semantic: Color(0), Register: 3, Mask: CompressMask(0xF)})

	require.Equal(t, 2, s.Len())
	e := s.Find(TexCoord(0))
	require.NotNil(t, e)
	require.Equal(t, uint8(0x7), e.Mask.Expand())
	require.True(t, e.HasSource)
	require.Equal(t, uint32(1<<1), s.CentroidMask())
	require.Equal(t, uint32(4), s.NextRegister())
	require.Equal(t, uint16(1), s.TexCoordMask())
	require.Same(t, s.ByRegister(3), s.Find(Color(0)))
	require.Nil(t, s.ByRegister(2))

	c := s.Clone()
	c.Entries[0].Register = 9
	require.Equal(t, uint32(1), s.Entries[0].Register)
}
