// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package geometry

import (
	"slices"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/gogpu/shaderconv/convert"
	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/raster"
)

// Limits of a shader model 4 geometry program.
const (
	maxInputRegisters  = 16
	maxOutputRegisters = 32
	maxOutputScalars   = 1024
)

// Temporaries of the generated program.
const (
	tempCull   = 0 // NDC of vertex 0, signed area, culled flag
	tempExtent = 1 // half extent of the quad in clip space
	tempEdge1  = 2 // first triangle edge, wrap delta
	tempEdge2  = 3
	tempCorner = 4 // expanded corner position
	tempCount  = 5
)

// Result is a generated geometry program.
type Result struct {
	// Code is the serialized program.
	Code []byte

	Features Features

	// Primitive and Topology are the declared input primitive and output
	// topology; MaxVertices is the declared output vertex limit.
	Primitive   dxbc.Primitive
	Topology    dxbc.Topology
	MaxVertices uint32

	// InputLayout is the consumed vertex output layout. OutputLayout is what
	// the pixel stage receives and what its upstream layout must be.
	InputLayout  convert.Signature
	OutputLayout convert.Signature

	Instructions int
}

// Generate synthesizes the geometry program for vertices laid out as
// outputs under opts.Raster.
func Generate(outputs *convert.Signature, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if outputs == nil || outputs.Len() == 0 {
		return nil, convert.NewError(convert.InvalidArgument, "geometry program without input layout")
	}
	position := outputs.Find(convert.SemanticPosition)
	if position == nil {
		return nil, convert.NewError(convert.InvalidArgument, "input layout has no position")
	}
	if n := outputs.NextRegister(); n > maxInputRegisters {
		return nil, convert.Errorf(convert.CapacityExceeded, "%d input registers, at most %d", n, maxInputRegisters)
	}
	prim, err := primitive(opts.Raster.Primitive)
	if err != nil {
		return nil, err
	}

	w := &writer{
		b:        dxbc.NewProgramBuilder(dxbc.GeometryShader),
		snap:     &opts.Raster,
		in:       outputs.Clone(),
		prim:     prim,
		position: position.Register,
	}
	w.plan = Plan(w.snap, w.in)
	if e := w.in.Find(convert.SemanticPointSize); e != nil {
		w.pointSize, w.hasPointSize = e.Register, true
	}
	w.layout()
	if n := w.out.NextRegister(); n > maxOutputRegisters {
		return nil, convert.Errorf(convert.CapacityExceeded, "%d output registers, at most %d", n, maxOutputRegisters)
	}
	if scalars := w.maxVertices() * 4 * uint32(len(registersOf(&w.out))); scalars > maxOutputScalars {
		return nil, convert.Errorf(convert.CapacityExceeded, "%d output scalars, at most %d", scalars, maxOutputScalars)
	}
	if opts.DebugName != "" {
		w.b.SetDebugName(opts.DebugName)
	}

	w.body()
	w.declare()

	code, err := w.b.Build()
	if err != nil {
		return nil, convert.Errorf(convert.InternalError, "serialize geometry program: %v", err)
	}
	r := &Result{
		Code:         code,
		Features:     w.plan,
		Primitive:    w.prim,
		Topology:     w.topology(),
		MaxVertices:  w.maxVertices(),
		InputLayout:  *w.in,
		OutputLayout: w.out,
		Instructions: w.b.CodeLength(),
	}
	opts.logger().Debug("generated geometry program",
		zap.Stringer("features", r.Features),
		zap.Uint8("primitive", uint8(r.Primitive)),
		zap.Uint32("max_vertices", r.MaxVertices),
		zap.Int("instructions", r.Instructions),
	)
	return r, nil
}

func primitive(p raster.PrimitiveKind) (dxbc.Primitive, error) {
	switch p {
	case raster.PrimitivePoint:
		return dxbc.PrimitivePoint, nil
	case raster.PrimitiveLine:
		return dxbc.PrimitiveLine, nil
	case raster.PrimitiveTriangle:
		return dxbc.PrimitiveTriangle, nil
	}
	return 0, convert.Errorf(convert.InvalidArgument, "unknown primitive kind %d", p)
}

type writer struct {
	b    *dxbc.ProgramBuilder
	snap *raster.Snapshot
	plan Features
	prim dxbc.Primitive

	in  *convert.Signature
	out convert.Signature

	position     uint32
	pointSize    uint32
	hasPointSize bool

	// computeClip is set when clip distances are evaluated here rather
	// than passed through from the vertex stage.
	computeClip bool
}

func (w *writer) has(f Features) bool {
	return w.plan&f != 0
}

// layout builds the output signature: the input layout without the point
// size of expanded points, plus the sprite coordinate and any clip distances
// the vertex stage did not produce.
func (w *writer) layout() {
	hasClip := false
	for _, e := range w.in.Entries {
		if w.has(PointExpand) && e.Semantic == convert.SemanticPointSize {
			continue
		}
		if isClipDistance(e.Semantic) {
			hasClip = true
		}
		w.out.Add(e)
	}
	next := w.in.NextRegister()
	if w.has(PointExpand) && w.snap.PointSprite {
		w.out.Add(convert.SignatureEntry{
			Semantic: convert.SemanticSpriteCoord,
			Register: next,
			Mask:     convert.CompressMask(dxbc.MaskXYZW),
		})
		next++
	}
	if !w.has(ClipDistances) {
		return
	}
	w.computeClip = w.has(PointExpand) || !hasClip
	if hasClip {
		return
	}
	planes := w.snap.ClipPlaneMask & (1<<raster.MaxClipPlanes - 1)
	for group := uint8(0); planes != 0; group++ {
		if lanes := planes & 0xF; lanes != 0 {
			w.out.Add(convert.SignatureEntry{
				Semantic: convert.ClipDistance(group),
				Register: next,
				Mask:     convert.CompressMask(lanes),
			})
			next++
		}
		planes >>= 4
	}
}

func isClipDistance(s convert.Semantic) bool {
	return s == convert.ClipDistance(s.Index)
}

func (w *writer) topology() dxbc.Topology {
	switch {
	case w.has(PointExpand):
		return dxbc.TopologyTriangleStrip
	case w.has(Wireframe):
		return dxbc.TopologyLineStrip
	}
	switch w.prim {
	case dxbc.PrimitivePoint:
		return dxbc.TopologyPointList
	case dxbc.PrimitiveLine:
		return dxbc.TopologyLineStrip
	}
	return dxbc.TopologyTriangleStrip
}

func (w *writer) maxVertices() uint32 {
	n := uint32(w.prim.VertexCount())
	switch {
	case w.has(PointExpand):
		return 4 * n
	case w.has(Wireframe):
		return n + 1
	}
	return n
}

// body writes the code of the program.
func (w *writer) body() {
	n := uint32(w.prim.VertexCount())
	switch {
	case w.has(PointExpand):
		culled := w.beginCull()
		for i := uint32(0); i < n; i++ {
			w.expandPoint(i)
		}
		w.endCull(culled)
	case w.has(Wireframe):
		culled := w.beginCull()
		for _, i := range []uint32{0, 1, 2, 0} {
			w.vertex(i, w.inputPosition(i), nil)
		}
		w.b.Emit(dxbc.OpCut)
		w.endCull(culled)
	default:
		for i := uint32(0); i < n; i++ {
			w.vertex(i, w.inputPosition(i), nil)
		}
		if n > 1 {
			w.b.Emit(dxbc.OpCut)
		}
	}
	w.b.Emit(dxbc.OpRet)
}

func (w *writer) inputPosition(i uint32) dxbc.Operand {
	return dxbc.GSInput(i, w.position)
}

// vertex writes every output of input vertex i with position pos and emits
// it. c is the quad corner of an expanded point.
func (w *writer) vertex(i uint32, pos dxbc.Operand, c *corner) {
	for _, e := range w.out.Entries {
		o := dxbc.Output(e.Register).WithMask(e.Mask.Expand())
		src := dxbc.GSInput(i, e.Register)
		switch {
		case e.Semantic == convert.SemanticPosition:
			w.b.Emit(dxbc.OpMov, o, pos)
		case e.Semantic == convert.SemanticSpriteCoord:
			w.b.Emit(dxbc.OpMov, o, dxbc.ImmF32(c.u, c.v, 0, 1))
		case isClipDistance(e.Semantic) && w.computeClip:
			w.clipDistance(e, pos)
		case e.Semantic.Usage == d3d9.UsageColor && w.has(FlatShade):
			w.b.Emit(dxbc.OpMov, o, dxbc.GSInput(0, e.Register))
		case e.Semantic.Usage == d3d9.UsageTexCoord && w.has(Wrap) && i > 0:
			w.wrap(o, e, i)
		default:
			w.b.Emit(dxbc.OpMov, o, src)
		}
	}
	w.b.Emit(dxbc.OpEmit)
}

// clipDistance writes the distance of pos to each enabled plane of the
// entry's group; disabled lanes are zero.
func (w *writer) clipDistance(e convert.SignatureEntry, pos dxbc.Operand) {
	mask := e.Mask.Expand()
	for lane := uint8(0); lane < 4; lane++ {
		if mask&(1<<lane) == 0 {
			continue
		}
		plane := uint32(e.Semantic.Index)*4 + uint32(lane)
		dst := dxbc.Output(e.Register).WithMask(1 << lane)
		if plane >= raster.MaxClipPlanes || w.snap.ClipPlaneMask&(1<<plane) == 0 {
			w.b.Emit(dxbc.OpMov, dst, dxbc.ScalarF32(0))
			continue
		}
		w.b.Emit(dxbc.OpDp4, dst, pos, dxbc.ConstBuffer(convert.CBSystem, convert.SysClipPlane+plane))
	}
}

// wrap writes texture coordinate e of vertex i with every wrapped
// component moved by whole units to within half a unit of vertex 0.
func (w *writer) wrap(o dxbc.Operand, e convert.SignatureEntry, i uint32) {
	src := dxbc.GSInput(i, e.Register)
	var flags uint8
	if int(e.Semantic.Index) < raster.MaxTexCoords {
		flags = w.snap.Wrap[e.Semantic.Index]
	}
	mask := flags & e.Mask.Expand()
	if mask == 0 {
		w.b.Emit(dxbc.OpMov, o, src)
		return
	}
	d := dxbc.Temp(tempEdge1)
	w.b.Emit(dxbc.OpAdd, d.WithMask(mask), src, dxbc.GSInput(0, e.Register).Neg())
	w.b.Emit(dxbc.OpRoundNE, d.WithMask(mask), d)
	w.b.Emit(dxbc.OpAdd, o.WithMask(mask), src, d.Neg())
	if rest := e.Mask.Expand() &^ mask; rest != 0 {
		w.b.Emit(dxbc.OpMov, o.WithMask(rest), src)
	}
}

// declare writes the declarations of the program.
func (w *writer) declare() {
	b := w.b
	b.DeclareGSInputPrimitive(w.prim)
	b.DeclareGSOutputTopology(w.topology())
	b.DeclareMaxOutputVertexCount(w.maxVertices())
	if w.has(PointExpand) || w.computeClip {
		b.DeclareConstantBuffer(convert.CBSystem, convert.SysRegisterCount, false)
	}
	n := uint32(w.prim.VertexCount())
	for _, reg := range registersOf(w.in) {
		mask := maskOf(w.in, reg)
		switch sem := w.in.ByRegister(reg).Semantic; {
		case sem == convert.SemanticPosition:
			b.DeclareGSInputSIV(n, reg, mask, dxbc.SVPosition)
		case isClipDistance(sem):
			b.DeclareGSInputSIV(n, reg, mask, dxbc.SVClipDistance)
		default:
			b.DeclareGSInput(n, reg, mask)
		}
	}
	for _, reg := range registersOf(&w.out) {
		mask := maskOf(&w.out, reg)
		switch sem := w.out.ByRegister(reg).Semantic; {
		case sem == convert.SemanticPosition:
			b.DeclareOutputSIV(reg, mask, dxbc.SVPosition)
		case isClipDistance(sem):
			b.DeclareOutputSIV(reg, mask, dxbc.SVClipDistance)
		default:
			b.DeclareOutput(reg, mask)
		}
	}
	if w.has(PointExpand | Wireframe | Wrap) {
		b.DeclareTemps(tempCount)
	}
}

// registersOf returns the distinct registers of a signature in ascending
// order.
func registersOf(s *convert.Signature) []uint32 {
	seen := make(map[uint32]struct{})
	for _, e := range s.Entries {
		seen[e.Register] = struct{}{}
	}
	regs := maps.Keys(seen)
	slices.Sort(regs)
	return regs
}

func maskOf(s *convert.Signature, reg uint32) uint8 {
	var m uint8
	for _, e := range s.Entries {
		if e.Register == reg {
			m |= e.Mask.Expand()
		}
	}
	return m
}
