// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package shaderconv translates legacy Direct3D 9 shaders into Direct3D 10
// shader model 4 programs.
//
// Vertex and pixel shaders are converted from their token streams. The
// fixed-function behavior the legacy pipeline applied around them, such as
// fog, alpha test and user clip planes, is written into the converted
// programs from a raster state snapshot. Primitive processing the target
// hardware lacks (point sprites, point and wireframe fill, flat shading,
// texture wrapping) is synthesized as a separate geometry program.
//
// Example usage:
//
//	opts := shaderconv.DefaultOptions()
//	vs, err := shaderconv.Convert(vertexTokens, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	opts.Upstream = &vs.OutputLayout
//	ps, err := shaderconv.Convert(pixelTokens, opts)
//
// For a whole draw, ConvertPipeline also decides whether a geometry program
// is needed and wires the layouts of the three stages together.
//
// The lower-level stages live in their own packages: d3d9 decodes and
// assembles legacy tokens, convert analyzes and translates one shader,
// geometry synthesizes geometry programs and dxbc encodes the target
// programs.
package shaderconv

import (
	"encoding/binary"

	"github.com/gogpu/shaderconv/convert"
	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/geometry"
)

// Options configures a conversion.
type Options = convert.Options

// Result is a converted vertex or pixel program.
type Result = convert.Result

// DefaultOptions returns options for a default device state.
func DefaultOptions() *Options {
	return convert.DefaultOptions()
}

// Convert translates a legacy shader, selecting the vertex or pixel path
// from its version token.
func Convert(code []byte, opts *Options) (*Result, error) {
	v, err := Version(code)
	if err != nil {
		return nil, err
	}
	if v.IsPixel() {
		return convert.ConvertPixel(code, opts)
	}
	return convert.ConvertVertex(code, opts)
}

// Version returns the version of a legacy token stream.
func Version(code []byte) (d3d9.Version, error) {
	if len(code) < 4 {
		return d3d9.Version{}, convert.Errorf(convert.InvalidArgument, "token stream of %d bytes", len(code))
	}
	v, err := d3d9.ParseVersion(binary.LittleEndian.Uint32(code))
	if err != nil {
		return d3d9.Version{}, convert.NewError(convert.UnsupportedVersion, err.Error())
	}
	return v, nil
}

// ConvertVertex translates a legacy vertex shader.
func ConvertVertex(code []byte, opts *Options) (*Result, error) {
	return convert.ConvertVertex(code, opts)
}

// ConvertPixel translates a legacy pixel shader. opts.Upstream must hold the
// output layout of the stage before it when the shader reads inputs.
func ConvertPixel(code []byte, opts *Options) (*Result, error) {
	return convert.ConvertPixel(code, opts)
}

// ConvertTLVertex synthesizes the vertex program of pre-transformed,
// pre-lit vertices.
func ConvertTLVertex(layout *convert.InputLayout, opts *Options) (*Result, error) {
	return convert.ConvertTLVertex(layout, opts)
}

// GenerateGeometry synthesizes the geometry program for vertices laid out
// as outputs, drawn under opts.Raster.
func GenerateGeometry(outputs *convert.Signature, opts *Options) (*geometry.Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	return geometry.Generate(outputs, &geometry.Options{
		Raster:    opts.Raster,
		DebugName: opts.DebugName,
		Logger:    opts.Logger,
	})
}

// Pipeline is the converted program set of one draw.
type Pipeline struct {
	Vertex *Result
	// Geometry is nil when the draw needs no geometry program.
	Geometry *geometry.Result
	Pixel    *Result
}

// ConvertPipeline converts a vertex and a pixel shader drawn together. The
// pixel shader's upstream layout is the output of the geometry program when
// one is needed and of the vertex program otherwise; opts.Upstream is
// ignored. A nil vertex shader selects the pre-transformed vertex program
// for tl.
func ConvertPipeline(vs, ps []byte, tl *convert.InputLayout, opts *Options) (*Pipeline, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	p := &Pipeline{}
	var err error
	if vs != nil {
		p.Vertex, err = convert.ConvertVertex(vs, opts)
	} else {
		p.Vertex, err = convert.ConvertTLVertex(tl, opts)
	}
	if err != nil {
		return nil, err
	}

	upstream := &p.Vertex.OutputLayout
	if geometry.Required(&opts.Raster, upstream) {
		p.Geometry, err = GenerateGeometry(upstream, opts)
		if err != nil {
			return nil, err
		}
		upstream = &p.Geometry.OutputLayout
	}

	pixelOpts := *opts
	pixelOpts.Upstream = upstream
	p.Pixel, err = convert.ConvertPixel(ps, &pixelOpts)
	if err != nil {
		return nil, err
	}
	return p, nil
}
