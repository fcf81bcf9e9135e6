// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package raster

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

// tomlSnapshot is the snapshot as it is encoded in TOML.
type tomlSnapshot struct {
	Fill        string `toml:"fill"`
	Shade       string `toml:"shade"`
	Primitive   string `toml:"primitive"`
	Cull        string `toml:"cull"`
	PointSprite bool   `toml:"point-sprite"`

	Fog *tomlFog `toml:"fog"`

	AlphaTest *tomlAlphaTest `toml:"alpha-test"`

	Samplers      []*tomlSampler `toml:"samplers"`
	Wrap          []string       `toml:"wrap,omitempty"`
	ClipPlanes    []int          `toml:"clip-planes,omitempty"`
	SwapRB        []int          `toml:"swap-rb,omitempty"`
	TexCoordIndex []int          `toml:"texcoord-index,omitempty"`
}

type tomlFog struct {
	Enable bool   `toml:"enable"`
	Table  string `toml:"table"`
	FromW  bool   `toml:"from-w"`
}

type tomlAlphaTest struct {
	Enable bool   `toml:"enable"`
	Func   string `toml:"func"`
}

type tomlSampler struct {
	Stage    int    `toml:"stage"`
	Kind     string `toml:"kind"`
	Fixup    string `toml:"fixup"`
	Shadow   bool   `toml:"shadow"`
	ColorKey bool   `toml:"color-key"`
}

var (
	fillNames = map[string]FillMode{
		"point": FillPoint, "wireframe": FillWireframe, "solid": FillSolid,
	}
	shadeNames = map[string]ShadeMode{
		"flat": ShadeFlat, "gouraud": ShadeGouraud,
	}
	primitiveNames = map[string]PrimitiveKind{
		"point": PrimitivePoint, "line": PrimitiveLine, "triangle": PrimitiveTriangle,
	}
	cullNames = map[string]CullMode{
		"none": CullNone, "cw": CullCW, "ccw": CullCCW,
	}
	fogNames = map[string]FogMode{
		"none": FogNone, "exp": FogExp, "exp2": FogExp2, "linear": FogLinear,
	}
	compareNames = map[string]CompareFunc{
		"never": CmpNever, "less": CmpLess, "equal": CmpEqual, "less-equal": CmpLessEqual,
		"greater": CmpGreater, "not-equal": CmpNotEqual, "greater-equal": CmpGreaterEqual,
		"always": CmpAlways,
	}
	kindNames = map[string]TextureKind{
		"none": TextureNone, "2d": Texture2D, "cube": TextureCube, "volume": TextureVolume,
	}
	fixupNames = map[string]FormatFixup{
		"none": FixupNone, "luminance": FixupLuminance, "luminance-alpha": FixupLuminanceAlpha,
		"one-channel": FixupOneChannel, "two-channel": FixupTwoChannel,
		"depth-replicate": FixupDepthReplicate, "alpha-only": FixupAlphaOnly,
	}
)

func lookup[T any](names map[string]T, field, value string, dst *T) error {
	if value == "" {
		return nil
	}
	v, ok := names[value]
	if !ok {
		return fmt.Errorf("raster: unknown %s %q", field, value)
	}
	*dst = v
	return nil
}

// ParseTOML decodes a snapshot from TOML. Absent keys keep the values of
// Default.
func ParseTOML(data []byte) (Snapshot, error) {
	var ts tomlSnapshot
	if err := toml.Unmarshal(data, &ts); err != nil {
		return Snapshot{}, fmt.Errorf("raster: %w", err)
	}

	s := Default()
	if err := lookup(fillNames, "fill mode", ts.Fill, &s.FillMode); err != nil {
		return Snapshot{}, err
	}
	if err := lookup(shadeNames, "shade mode", ts.Shade, &s.ShadeMode); err != nil {
		return Snapshot{}, err
	}
	if err := lookup(primitiveNames, "primitive", ts.Primitive, &s.Primitive); err != nil {
		return Snapshot{}, err
	}
	if err := lookup(cullNames, "cull mode", ts.Cull, &s.CullMode); err != nil {
		return Snapshot{}, err
	}
	s.PointSprite = ts.PointSprite

	if ts.Fog != nil {
		s.FogEnable = ts.Fog.Enable
		s.FogFromW = ts.Fog.FromW
		if err := lookup(fogNames, "fog mode", ts.Fog.Table, &s.FogTableMode); err != nil {
			return Snapshot{}, err
		}
	}
	if ts.AlphaTest != nil {
		s.AlphaTestEnable = ts.AlphaTest.Enable
		if err := lookup(compareNames, "alpha function", ts.AlphaTest.Func, &s.AlphaFunc); err != nil {
			return Snapshot{}, err
		}
	}

	for _, smp := range ts.Samplers {
		if smp.Stage < 0 || smp.Stage >= MaxSamplers {
			return Snapshot{}, fmt.Errorf("raster: sampler stage %d out of range", smp.Stage)
		}
		out := &s.Samplers[smp.Stage]
		if err := lookup(kindNames, "texture kind", smp.Kind, &out.Kind); err != nil {
			return Snapshot{}, err
		}
		if err := lookup(fixupNames, "format fixup", smp.Fixup, &out.Fixup); err != nil {
			return Snapshot{}, err
		}
		out.Shadow = smp.Shadow
		out.ColorKey = smp.ColorKey
	}

	if len(ts.Wrap) > MaxTexCoords {
		return Snapshot{}, fmt.Errorf("raster: %d wrap entries, at most %d", len(ts.Wrap), MaxTexCoords)
	}
	for i, w := range ts.Wrap {
		for _, c := range w {
			switch c {
			case 'u':
				s.Wrap[i] |= WrapU
			case 'v':
				s.Wrap[i] |= WrapV
			case 'w':
				s.Wrap[i] |= WrapW
			case 'q':
				s.Wrap[i] |= WrapQ
			default:
				return Snapshot{}, fmt.Errorf("raster: bad wrap flags %q", w)
			}
		}
	}

	var err error
	if s.ClipPlaneMask, err = bitMask(ts.ClipPlanes, MaxClipPlanes, "clip plane"); err != nil {
		return Snapshot{}, err
	}
	if s.SwapRB, err = bitMask(ts.SwapRB, MaxColors, "color output"); err != nil {
		return Snapshot{}, err
	}

	if len(ts.TexCoordIndex) > MaxTexCoords {
		return Snapshot{}, fmt.Errorf("raster: %d texcoord indices, at most %d", len(ts.TexCoordIndex), MaxTexCoords)
	}
	for i, idx := range ts.TexCoordIndex {
		if idx < 0 || idx >= MaxTexCoords {
			return Snapshot{}, fmt.Errorf("raster: texcoord index %d out of range", idx)
		}
		s.TexCoordIndex[i] = uint8(idx)
	}
	return s, nil
}

func bitMask(bits []int, limit int, what string) (uint8, error) {
	var m uint8
	for _, b := range bits {
		if b < 0 || b >= limit {
			return 0, fmt.Errorf("raster: %s %d out of range", what, b)
		}
		m |= 1 << uint(b)
	}
	return m, nil
}

// LoadTOML reads a snapshot from a TOML file.
func LoadTOML(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	return ParseTOML(data)
}
