// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package geometry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gogpu/shaderconv/convert"
	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/dxbc/sim"
	"github.com/gogpu/shaderconv/geometry"
	"github.com/gogpu/shaderconv/raster"
)

func layout(sems ...convert.Semantic) *convert.Signature {
	s := &convert.Signature{}
	for i, sem := range sems {
		s.Add(convert.SignatureEntry{Semantic: sem, Register: uint32(i), Mask: convert.CompressMask(dxbc.MaskXYZW)})
	}
	return s
}

func generate(t *testing.T, outputs *convert.Signature, snap raster.Snapshot) (*geometry.Result, *sim.Machine) {
	t.Helper()
	r, err := geometry.Generate(outputs, &geometry.Options{Raster: snap})
	require.NoError(t, err)
	p, err := dxbc.Decode(r.Code)
	require.NoError(t, err)
	require.Equal(t, dxbc.GeometryShader, p.Type)
	m, err := sim.New(p)
	require.NoError(t, err)
	return r, m
}

// viewport fills cb3 for a 256x128 viewport and points of size 1 to 64.
func viewport(m *sim.Machine, size float32) {
	cb := m.ConstBuffers[convert.CBSystem]
	cb[convert.SysPointSize] = sim.F(size, 1, 64, 0)
	cb[convert.SysInvViewport] = sim.F(128, 64, 2.0/256, 2.0/128)
}

func positions(m *sim.Machine, reg uint32) [][4]float32 {
	out := make([][4]float32, len(m.Emitted))
	for i, v := range m.Emitted {
		out[i] = v[reg].Floats()
	}
	return out
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name   string
		modify func(s *raster.Snapshot)
		sems   []convert.Semantic
		want   geometry.Features
	}{
		{"default", func(*raster.Snapshot) {}, nil, 0},
		{"points", func(s *raster.Snapshot) { s.Primitive = raster.PrimitivePoint }, nil, 0},
		{
			"wide points",
			func(s *raster.Snapshot) { s.Primitive = raster.PrimitivePoint },
			[]convert.Semantic{convert.SemanticPosition, convert.SemanticPointSize},
			geometry.PointExpand,
		},
		{"sprites", func(s *raster.Snapshot) { s.Primitive = raster.PrimitivePoint; s.PointSprite = true }, nil, geometry.PointExpand},
		{"point fill", func(s *raster.Snapshot) { s.FillMode = raster.FillPoint }, nil, geometry.PointExpand},
		{"wireframe", func(s *raster.Snapshot) { s.FillMode = raster.FillWireframe }, nil, geometry.Wireframe},
		{
			"wireframe lines",
			func(s *raster.Snapshot) { s.FillMode = raster.FillWireframe; s.Primitive = raster.PrimitiveLine },
			nil, 0,
		},
		{"flat", func(s *raster.Snapshot) { s.ShadeMode = raster.ShadeFlat }, nil, geometry.FlatShade},
		{"wrap", func(s *raster.Snapshot) { s.Wrap[2] = raster.WrapV }, nil, geometry.Wrap},
		{
			"wrap of expanded points",
			func(s *raster.Snapshot) { s.Wrap[2] = raster.WrapV; s.FillMode = raster.FillPoint },
			nil, geometry.PointExpand,
		},
		{"clip", func(s *raster.Snapshot) { s.ClipPlaneMask = 1 }, nil, geometry.ClipDistances},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := raster.Default()
			tt.modify(&s)
			got := geometry.Plan(&s, layout(tt.sems...))
			if got != tt.want {
				t.Errorf("Plan() = %s, want %s", got, tt.want)
			}
			if geometry.Required(&s, layout(tt.sems...)) != (tt.want != 0) {
				t.Errorf("Required() disagrees with Plan() = %s", got)
			}
		})
	}
}

func TestFeatures_String(t *testing.T) {
	require.Equal(t, "pass-through", geometry.Features(0).String())
	require.Equal(t, "point-expand+flat-shade", (geometry.PointExpand | geometry.FlatShade).String())
}

func TestGenerate_PassThrough(t *testing.T) {
	r, m := generate(t, layout(convert.SemanticPosition, convert.Color(0)), raster.Default())
	require.Equal(t, geometry.Features(0), r.Features)
	require.Equal(t, dxbc.PrimitiveTriangle, r.Primitive)
	require.Equal(t, dxbc.TopologyTriangleStrip, r.Topology)
	require.Equal(t, uint32(3), r.MaxVertices)
	require.Equal(t, r.InputLayout.String(), r.OutputLayout.String())

	m.GSInputs = [][]sim.Vec{
		{sim.F(0, 1, 0, 1), sim.F(1, 0, 0, 1)},
		{sim.F(1, -1, 0, 1), sim.F(0, 1, 0, 1)},
		{sim.F(-1, -1, 0, 1), sim.F(0, 0, 1, 1)},
	}
	require.NoError(t, m.Run())
	require.Len(t, m.Emitted, 3)
	require.Equal(t, 1, m.Cuts)
	for i, v := range m.Emitted {
		require.Equal(t, m.GSInputs[i][0], v[0])
		require.Equal(t, m.GSInputs[i][1], v[1])
	}
}

func TestGenerate_PointSprite(t *testing.T) {
	snap := raster.Default()
	snap.Primitive = raster.PrimitivePoint
	snap.PointSprite = true
	r, m := generate(t, layout(convert.SemanticPosition, convert.Color(0), convert.SemanticPointSize), snap)

	require.Equal(t, geometry.PointExpand, r.Features)
	require.Equal(t, dxbc.TopologyTriangleStrip, r.Topology)
	require.Equal(t, uint32(4), r.MaxVertices)
	require.Nil(t, r.OutputLayout.Find(convert.SemanticPointSize), "point size is consumed")
	sprite := r.OutputLayout.Find(convert.SemanticSpriteCoord)
	require.NotNil(t, sprite)
	require.Equal(t, uint32(3), sprite.Register)

	viewport(m, 1)
	m.GSInputs = [][]sim.Vec{{sim.F(0, 0, 0.5, 2), sim.F(1, 0, 0, 1), sim.F(4, 0, 0, 0)}}
	require.NoError(t, m.Run())
	require.Len(t, m.Emitted, 4)
	require.Equal(t, 1, m.Cuts)

	// A 4 pixel point at w=2 spans 1/32 by 1/16 in each direction.
	require.Equal(t, [][4]float32{
		{-1.0 / 32, 1.0 / 16, 0.5, 2},
		{1.0 / 32, 1.0 / 16, 0.5, 2},
		{-1.0 / 32, -1.0 / 16, 0.5, 2},
		{1.0 / 32, -1.0 / 16, 0.5, 2},
	}, positions(m, 0))
	require.Equal(t, [][4]float32{{0, 0, 0, 1}, {1, 0, 0, 1}, {0, 1, 0, 1}, {1, 1, 0, 1}}, positions(m, sprite.Register))
	for _, v := range m.Emitted {
		require.Equal(t, [4]float32{1, 0, 0, 1}, v[1].Floats())
	}
}

func TestGenerate_PointSizeClamp(t *testing.T) {
	snap := raster.Default()
	snap.Primitive = raster.PrimitivePoint
	_, m := generate(t, layout(convert.SemanticPosition, convert.SemanticPointSize), snap)

	viewport(m, 1)
	m.GSInputs = [][]sim.Vec{{sim.F(0, 0, 0, 2), sim.F(100, 0, 0, 0)}}
	require.NoError(t, m.Run())
	require.Len(t, m.Emitted, 4)
	require.Equal(t, [4]float32{-0.5, 1, 0, 2}, m.Emitted[0][0].Floats())
}

func TestGenerate_PointWindingFollowsCullMode(t *testing.T) {
	snap := raster.Default()
	snap.Primitive = raster.PrimitivePoint
	snap.PointSprite = true
	snap.CullMode = raster.CullCW
	r, m := generate(t, layout(convert.SemanticPosition), snap)

	viewport(m, 4)
	m.GSInputs = [][]sim.Vec{{sim.F(0, 0, 0, 2)}}
	require.NoError(t, m.Run())
	first := m.Emitted[0]
	require.Greater(t, first[0].Float(0), float32(0), "quad is mirrored")
	sprite := r.OutputLayout.Find(convert.SemanticSpriteCoord)
	require.Equal(t, [4]float32{1, 0, 0, 1}, first[sprite.Register].Floats())
}

func TestGenerate_PointFillCulling(t *testing.T) {
	snap := raster.Default()
	snap.FillMode = raster.FillPoint
	pos := layout(convert.SemanticPosition)

	// Clockwise on screen, the front face under the default cull mode.
	clockwise := [][]sim.Vec{{sim.F(0, 1, 0, 1)}, {sim.F(1, -1, 0, 1)}, {sim.F(-1, -1, 0, 1)}}
	counter := [][]sim.Vec{clockwise[0], clockwise[2], clockwise[1]}

	tests := []struct {
		name    string
		cull    raster.CullMode
		input   [][]sim.Vec
		emitted int
	}{
		{"front", raster.CullCCW, clockwise, 12},
		{"back", raster.CullCCW, counter, 0},
		{"cw culled", raster.CullCW, clockwise, 0},
		{"no culling", raster.CullNone, counter, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snap
			s.CullMode = tt.cull
			r, m := generate(t, pos, s)
			require.Equal(t, uint32(12), r.MaxVertices)
			viewport(m, 2)
			m.GSInputs = tt.input
			require.NoError(t, m.Run())
			require.Len(t, m.Emitted, tt.emitted)
		})
	}
}

func TestGenerate_Wireframe(t *testing.T) {
	snap := raster.Default()
	snap.FillMode = raster.FillWireframe
	snap.ShadeMode = raster.ShadeFlat
	r, m := generate(t, layout(convert.SemanticPosition, convert.Color(0)), snap)
	require.Equal(t, geometry.Wireframe|geometry.FlatShade, r.Features)
	require.Equal(t, dxbc.TopologyLineStrip, r.Topology)
	require.Equal(t, uint32(4), r.MaxVertices)

	m.GSInputs = [][]sim.Vec{
		{sim.F(0, 1, 0, 1), sim.F(1, 0, 0, 1)},
		{sim.F(1, -1, 0, 1), sim.F(0, 1, 0, 1)},
		{sim.F(-1, -1, 0, 1), sim.F(0, 0, 1, 1)},
	}
	require.NoError(t, m.Run())
	require.Equal(t, [][4]float32{
		{0, 1, 0, 1}, {1, -1, 0, 1}, {-1, -1, 0, 1}, {0, 1, 0, 1},
	}, positions(m, 0))
	for _, v := range m.Emitted {
		require.Equal(t, [4]float32{1, 0, 0, 1}, v[1].Floats(), "flat color of the first vertex")
	}
	require.Equal(t, 1, m.Cuts)
}

func TestGenerate_Wrap(t *testing.T) {
	snap := raster.Default()
	snap.Wrap[0] = raster.WrapU
	r, m := generate(t, layout(convert.SemanticPosition, convert.TexCoord(0)), snap)
	require.Equal(t, geometry.Wrap, r.Features)

	m.GSInputs = [][]sim.Vec{
		{sim.F(0, 1, 0, 1), sim.F(0.875, 0.5, 0, 1)},
		{sim.F(1, -1, 0, 1), sim.F(0.125, 0.875, 0, 1)},
		{sim.F(-1, -1, 0, 1), sim.F(0.5, 0.125, 0, 1)},
	}
	require.NoError(t, m.Run())
	require.Equal(t, [][4]float32{
		{0.875, 0.5, 0, 1},
		{1.125, 0.875, 0, 1},
		{0.5, 0.125, 0, 1},
	}, positions(m, 1))
}

func TestGenerate_ClipDistances(t *testing.T) {
	snap := raster.Default()
	snap.ClipPlaneMask = 1<<0 | 1<<5
	r, m := generate(t, layout(convert.SemanticPosition), snap)

	c0 := r.OutputLayout.Find(convert.ClipDistance(0))
	c1 := r.OutputLayout.Find(convert.ClipDistance(1))
	require.NotNil(t, c0)
	require.NotNil(t, c1)
	require.Equal(t, uint8(dxbc.MaskX), c0.Mask.Expand())
	require.Equal(t, uint8(dxbc.MaskY), c1.Mask.Expand())

	cb := m.ConstBuffers[convert.CBSystem]
	cb[convert.SysClipPlane+0] = sim.F(1, 0, 0, 0.25)
	cb[convert.SysClipPlane+5] = sim.F(0, 0, 1, 0)
	v := []sim.Vec{sim.F(0, 0, 0.5, 1)}
	m.GSInputs = [][]sim.Vec{v, v, v}
	require.NoError(t, m.Run())
	require.Len(t, m.Emitted, 3)
	require.Equal(t, float32(0.25), m.Emitted[0][c0.Register].Float(0))
	require.Equal(t, float32(0.5), m.Emitted[0][c1.Register].Float(1))
}

func TestGenerate_Errors(t *testing.T) {
	_, err := geometry.Generate(nil, nil)
	require.ErrorIs(t, err, convert.ErrInvalidArgument)

	_, err = geometry.Generate(layout(convert.Color(0)), nil)
	require.ErrorIs(t, err, convert.ErrInvalidArgument)

	wide := layout(convert.SemanticPosition)
	wide.Add(convert.SignatureEntry{Semantic: convert.TexCoord(0), Register: 16, Mask: convert.CompressMask(dxbc.MaskXY)})
	_, err = geometry.Generate(wide, nil)
	require.Equal(t, convert.CapacityExceeded, convert.KindOf(err))

	bad := geometry.DefaultOptions()
	bad.Raster.Primitive = 0
	_, err = geometry.Generate(layout(convert.SemanticPosition), bad)
	require.Equal(t, convert.InvalidArgument, convert.KindOf(err))
}

func TestGenerate_DebugName(t *testing.T) {
	opts := geometry.DefaultOptions()
	opts.DebugName = "sprites"
	r, err := geometry.Generate(layout(convert.SemanticPosition), opts)
	require.NoError(t, err)
	require.Contains(t, string(r.Code), "sprites")
}
