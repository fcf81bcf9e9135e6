// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package raster describes the fixed-function state that shader conversion
// depends on.
//
// A Snapshot is an immutable value supplied by the caller. Its equality and
// fingerprint derive from a versioned binary serialization of its named
// fields, so they are stable across builds and usable as cache keys.
package raster

import (
	"bytes"
	"encoding"
	"errors"
	"fmt"

	"lukechampine.com/blake3"
)

// Limits of the legacy pipeline.
const (
	MaxSamplers   = 16
	MaxTexCoords  = 8
	MaxClipPlanes = 6
	MaxColors     = 4
)

// FillMode is the polygon fill mode.
type FillMode uint8

// Fill modes.
const (
	FillPoint     FillMode = 1
	FillWireframe FillMode = 2
	FillSolid     FillMode = 3
)

// ShadeMode selects flat or smooth color interpolation.
type ShadeMode uint8

// Shade modes.
const (
	ShadeFlat    ShadeMode = 1
	ShadeGouraud ShadeMode = 2
)

// PrimitiveKind is the class of primitive being drawn.
type PrimitiveKind uint8

// Primitive kinds.
const (
	PrimitivePoint    PrimitiveKind = 1
	PrimitiveLine     PrimitiveKind = 2
	PrimitiveTriangle PrimitiveKind = 3
)

// CullMode is the back-face culling mode.
type CullMode uint8

// Cull modes.
const (
	CullNone CullMode = 1
	CullCW   CullMode = 2
	CullCCW  CullMode = 3
)

// FogMode is a fog falloff formula.
type FogMode uint8

// Fog modes.
const (
	FogNone   FogMode = 0
	FogExp    FogMode = 1
	FogExp2   FogMode = 2
	FogLinear FogMode = 3
)

// CompareFunc is an alpha test comparison.
type CompareFunc uint8

// Comparison functions.
const (
	CmpNever        CompareFunc = 1
	CmpLess         CompareFunc = 2
	CmpEqual        CompareFunc = 3
	CmpLessEqual    CompareFunc = 4
	CmpGreater      CompareFunc = 5
	CmpNotEqual     CompareFunc = 6
	CmpGreaterEqual CompareFunc = 7
	CmpAlways       CompareFunc = 8
)

// TextureKind is the resource dimension bound to a sampler.
type TextureKind uint8

// Texture kinds.
const (
	TextureNone   TextureKind = 0
	Texture2D     TextureKind = 1
	TextureCube   TextureKind = 2
	TextureVolume TextureKind = 3
)

// FormatFixup is a swizzle correction for legacy texture formats the target
// hardware stores differently.
type FormatFixup uint8

// Format fix-ups. The comment gives the legacy read of a sample (r,g,b,a).
const (
	FixupNone           FormatFixup = 0
	FixupLuminance      FormatFixup = 1 // (r, r, r, 1)
	FixupLuminanceAlpha FormatFixup = 2 // (r, r, r, g)
	FixupOneChannel     FormatFixup = 3 // (r, 1, 1, 1)
	FixupTwoChannel     FormatFixup = 4 // (r, g, 1, 1)
	FixupDepthReplicate FormatFixup = 5 // (r, r, r, r)
	FixupAlphaOnly      FormatFixup = 6 // (0, 0, 0, r)
)

// Wrap flags per texture coordinate set.
const (
	WrapU uint8 = 1 << iota
	WrapV
	WrapW
	WrapQ
)

// Sampler is the per-stage sampler state.
type Sampler struct {
	Kind  TextureKind
	Fixup FormatFixup
	// Shadow requests a hardware depth comparison instead of a plain sample.
	Shadow bool
	// ColorKey discards texels matching the stage's key color.
	ColorKey bool
}

// Snapshot is the fixed-function state relevant to translation.
type Snapshot struct {
	FillMode    FillMode
	ShadeMode   ShadeMode
	Primitive   PrimitiveKind
	CullMode    CullMode
	PointSprite bool

	FogEnable bool
	// FogTableMode is the per-pixel fog formula; FogNone selects vertex fog.
	FogTableMode FogMode
	// FogFromW computes table fog from w rather than z.
	FogFromW bool

	AlphaTestEnable bool
	AlphaFunc       CompareFunc

	Samplers [MaxSamplers]Sampler
	Wrap     [MaxTexCoords]uint8

	ClipPlaneMask uint8
	// SwapRB is the mask of color outputs whose red and blue channels swap.
	SwapRB uint8

	// TexCoordIndex maps each pre-2.0 texture stage to the texture
	// coordinate set it reads.
	TexCoordIndex [MaxTexCoords]uint8
}

// Default returns the state of a freshly created legacy device.
func Default() Snapshot {
	s := Snapshot{
		FillMode:  FillSolid,
		ShadeMode: ShadeGouraud,
		Primitive: PrimitiveTriangle,
		CullMode:  CullCCW,
		AlphaFunc: CmpAlways,
	}
	for i := range s.TexCoordIndex {
		s.TexCoordIndex[i] = uint8(i)
	}
	return s
}

// ColorKeyEnabled reports whether any sampler applies a color key.
func (s *Snapshot) ColorKeyEnabled() bool {
	for _, smp := range s.Samplers {
		if smp.ColorKey {
			return true
		}
	}
	return false
}

// NeedsPointExpansion reports whether points must be expanded to quads:
// point sprites, or lines and triangles drawn in point fill mode.
func (s *Snapshot) NeedsPointExpansion() bool {
	if s.Primitive == PrimitivePoint {
		return s.PointSprite
	}
	return s.FillMode == FillPoint
}

// NeedsWrapEmulation reports whether any texture coordinate set wraps.
func (s *Snapshot) NeedsWrapEmulation() bool {
	for _, w := range s.Wrap {
		if w != 0 {
			return true
		}
	}
	return false
}

const snapshotVersion = 1

var (
	_ encoding.BinaryMarshaler   = Snapshot{}
	_ encoding.BinaryUnmarshaler = (*Snapshot)(nil)
)

// MarshalBinary returns the versioned serialization of s.
func (s Snapshot) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(32 + 4*MaxSamplers + 2*MaxTexCoords)
	buf.WriteByte(snapshotVersion)
	buf.WriteByte(byte(s.FillMode))
	buf.WriteByte(byte(s.ShadeMode))
	buf.WriteByte(byte(s.Primitive))
	buf.WriteByte(byte(s.CullMode))
	buf.WriteByte(boolByte(s.PointSprite))
	buf.WriteByte(boolByte(s.FogEnable))
	buf.WriteByte(byte(s.FogTableMode))
	buf.WriteByte(boolByte(s.FogFromW))
	buf.WriteByte(boolByte(s.AlphaTestEnable))
	buf.WriteByte(byte(s.AlphaFunc))
	for _, smp := range s.Samplers {
		buf.WriteByte(byte(smp.Kind))
		buf.WriteByte(byte(smp.Fixup))
		buf.WriteByte(boolByte(smp.Shadow))
		buf.WriteByte(boolByte(smp.ColorKey))
	}
	buf.Write(s.Wrap[:])
	buf.WriteByte(s.ClipPlaneMask)
	buf.WriteByte(s.SwapRB)
	buf.Write(s.TexCoordIndex[:])
	return buf.Bytes(), nil
}

// ErrSnapshotVersion is returned when decoding a serialization of an unknown
// version.
var ErrSnapshotVersion = errors.New("raster: unknown snapshot version")

// UnmarshalBinary decodes a serialization produced by MarshalBinary.
func (s *Snapshot) UnmarshalBinary(data []byte) error {
	const size = 11 + 4*MaxSamplers + MaxTexCoords + 2 + MaxTexCoords
	if len(data) == 0 {
		return fmt.Errorf("raster: empty snapshot")
	}
	if data[0] != snapshotVersion {
		return fmt.Errorf("%w %d", ErrSnapshotVersion, data[0])
	}
	if len(data) != size {
		return fmt.Errorf("raster: snapshot is %d bytes, want %d", len(data), size)
	}
	r := bytes.NewReader(data[1:])
	next := func() byte {
		b, _ := r.ReadByte()
		return b
	}
	var out Snapshot
	out.FillMode = FillMode(next())
	out.ShadeMode = ShadeMode(next())
	out.Primitive = PrimitiveKind(next())
	out.CullMode = CullMode(next())
	out.PointSprite = next() != 0
	out.FogEnable = next() != 0
	out.FogTableMode = FogMode(next())
	out.FogFromW = next() != 0
	out.AlphaTestEnable = next() != 0
	out.AlphaFunc = CompareFunc(next())
	for i := range out.Samplers {
		out.Samplers[i] = Sampler{
			Kind:     TextureKind(next()),
			Fixup:    FormatFixup(next()),
			Shadow:   next() != 0,
			ColorKey: next() != 0,
		}
	}
	for i := range out.Wrap {
		out.Wrap[i] = next()
	}
	out.ClipPlaneMask = next()
	out.SwapRB = next()
	for i := range out.TexCoordIndex {
		out.TexCoordIndex[i] = next()
	}
	*s = out
	return nil
}

// Equal reports whether two snapshots serialize identically.
func (s Snapshot) Equal(other Snapshot) bool {
	a, _ := s.MarshalBinary()
	b, _ := other.MarshalBinary()
	return bytes.Equal(a, b)
}

// Fingerprint is a stable hash of a snapshot's serialization.
type Fingerprint [32]byte

// String returns the fingerprint in hex.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%x", f[:])
}

// Fingerprint returns the blake3 hash of the serialization of s.
func (s Snapshot) Fingerprint() Fingerprint {
	data, _ := s.MarshalBinary()
	return blake3.Sum256(data)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
