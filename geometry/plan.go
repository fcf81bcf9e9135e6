// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package geometry synthesizes the geometry program that performs the
// fixed-function primitive processing of the legacy pipeline which the
// target hardware does not: point sprite and wide point expansion, point
// and wireframe fill, flat shading of the provoking vertex color, texture
// coordinate wrapping and user clip distances.
//
// The program is generated from the output layout of the vertex stage and
// the raster state alone; there is no user instruction stream.
package geometry

import (
	"strings"

	"go.uber.org/zap"

	"github.com/gogpu/shaderconv/convert"
	"github.com/gogpu/shaderconv/raster"
)

// Features is the set of fixed-function behaviors a geometry program
// implements. The zero value is a pass-through.
type Features uint8

// Geometry program features.
const (
	// PointExpand turns every input vertex into a screen aligned quad.
	PointExpand Features = 1 << iota
	// Wireframe draws the edges of triangles as a line strip.
	Wireframe
	// FlatShade gives every vertex the colors of the first vertex.
	FlatShade
	// Wrap moves texture coordinates of wrapped sets onto the shortest
	// path from the first vertex.
	Wrap
	// ClipDistances computes user clip plane distances.
	ClipDistances
)

var featureNames = []string{"point-expand", "wireframe", "flat-shade", "wrap", "clip-distances"}

// String lists the features separated by "+", or "pass-through".
func (f Features) String() string {
	if f == 0 {
		return "pass-through"
	}
	var parts []string
	for i, name := range featureNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "+")
}

// Plan returns the features a geometry program needs for outputs drawn
// under snap.
func Plan(snap *raster.Snapshot, outputs *convert.Signature) Features {
	var f Features
	points := snap.Primitive == raster.PrimitivePoint
	wide := points && outputs != nil && outputs.Find(convert.SemanticPointSize) != nil
	switch {
	case snap.NeedsPointExpansion() || wide:
		f |= PointExpand
	case snap.FillMode == raster.FillWireframe && snap.Primitive == raster.PrimitiveTriangle:
		f |= Wireframe
	}
	if snap.ShadeMode == raster.ShadeFlat && !points {
		f |= FlatShade
	}
	if f&PointExpand == 0 && !points && snap.NeedsWrapEmulation() {
		f |= Wrap
	}
	if snap.ClipPlaneMask != 0 {
		f |= ClipDistances
	}
	return f
}

// Required reports whether a draw of outputs under snap needs a geometry
// program at all.
func Required(snap *raster.Snapshot, outputs *convert.Signature) bool {
	return Plan(snap, outputs) != 0
}

// Options configures geometry program generation.
type Options struct {
	// Raster is the fixed-function state of the draw.
	Raster raster.Snapshot

	// DebugName is embedded in the program as a comment block.
	DebugName string

	// Logger receives debug events. Nil disables logging.
	Logger *zap.Logger
}

// DefaultOptions returns options for a default device state.
func DefaultOptions() *Options {
	return &Options{Raster: raster.Default()}
}

func (o *Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
