// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package shaderconv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gogpu/shaderconv/convert"
	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/geometry"
	"github.com/gogpu/shaderconv/raster"
)

const (
	vertexSource = `vs_2_0
		dcl_position v0
		dcl_texcoord0 v1
		mov oPos, v0
		mov oT0, v1`

	pixelSource = `ps_2_0
		dcl t0
		dcl_2d s0
		texld r0, t0, s0
		mov oC0, r0`
)

func assemble(t *testing.T, src string) []byte {
	t.Helper()
	code, err := d3d9.Assemble(src)
	require.NoError(t, err)
	return code
}

func programType(t *testing.T, code []byte) dxbc.ProgramType {
	t.Helper()
	p, err := dxbc.Decode(code)
	require.NoError(t, err)
	return p.Type
}

func TestConvert_Dispatch(t *testing.T) {
	vs, err := Convert(assemble(t, vertexSource), nil)
	require.NoError(t, err)
	require.Equal(t, convert.StageVertex, vs.Stage)
	require.Equal(t, dxbc.VertexShader, programType(t, vs.Code))

	opts := DefaultOptions()
	opts.Upstream = &vs.OutputLayout
	ps, err := Convert(assemble(t, pixelSource), opts)
	require.NoError(t, err)
	require.Equal(t, convert.StagePixel, ps.Stage)
	require.Equal(t, dxbc.PixelShader, programType(t, ps.Code))
	require.Empty(t, ps.AddedSemantics)
}

func TestConvert_Errors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		kind convert.ErrorKind
	}{
		{"empty", nil, convert.InvalidArgument},
		{"short", []byte{0, 3}, convert.InvalidArgument},
		{"bad version", []byte{0x00, 0x02, 0x34, 0x12}, convert.UnsupportedVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Convert(tt.code, nil)
			require.Nil(t, r)
			require.Equal(t, tt.kind, convert.KindOf(err), "%v", err)
		})
	}
}

func TestVersion(t *testing.T) {
	v, err := Version(assemble(t, pixelSource))
	require.NoError(t, err)
	require.Equal(t, "ps_2_0", v.String())
}

func TestConvertPipeline_NoGeometry(t *testing.T) {
	p, err := ConvertPipeline(assemble(t, vertexSource), assemble(t, pixelSource), nil, nil)
	require.NoError(t, err)
	require.Nil(t, p.Geometry)
	tc := p.Vertex.OutputLayout.Find(convert.TexCoord(0))
	require.NotNil(t, tc)
	require.Equal(t, tc.Register, p.Pixel.InputLayout.Find(convert.TexCoord(0)).Register)
}

func TestConvertPipeline_PointSprites(t *testing.T) {
	opts := DefaultOptions()
	opts.Raster.Primitive = raster.PrimitivePoint
	opts.Raster.PointSprite = true

	p, err := ConvertPipeline(assemble(t, vertexSource), assemble(t, pixelSource), nil, opts)
	require.NoError(t, err)
	require.NotNil(t, p.Geometry)
	require.Equal(t, geometry.PointExpand, p.Geometry.Features)
	require.Equal(t, dxbc.GeometryShader, programType(t, p.Geometry.Code))

	// Texture coordinates of sprites come from the geometry program.
	sprite := p.Geometry.OutputLayout.Find(convert.SemanticSpriteCoord)
	require.NotNil(t, sprite)
	require.Equal(t, sprite.Register, p.Pixel.InputLayout.Find(convert.TexCoord(0)).Register)
}

func TestConvertPipeline_TransformedVertices(t *testing.T) {
	tl := &convert.InputLayout{Elements: []convert.InputElement{
		{Register: 0, Usage: d3d9.UsagePositionT},
		{Register: 1, Usage: d3d9.UsageTexCoord},
	}}
	p, err := ConvertPipeline(nil, assemble(t, pixelSource), tl, nil)
	require.NoError(t, err)
	require.Equal(t, convert.StageTLVertex, p.Vertex.Stage)
	require.NotNil(t, p.Pixel.InputLayout.Find(convert.TexCoord(0)))
}

func TestGenerateGeometry(t *testing.T) {
	opts := DefaultOptions()
	opts.Raster.FillMode = raster.FillWireframe
	opts.DebugName = "wire"
	layout := &convert.Signature{}
	layout.Add(convert.SignatureEntry{Semantic: convert.SemanticPosition, Mask: convert.CompressMask(dxbc.MaskXYZW)})

	r, err := GenerateGeometry(layout, opts)
	require.NoError(t, err)
	require.Equal(t, geometry.Wireframe, r.Features)
	require.Contains(t, string(r.Code), "wire")
}
