// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
)

// maxProgramSize bounds the serialized program.
const maxProgramSize = 1 << 26

// Result is a converted program with its usage metadata.
type Result struct {
	// Code is the serialized target program.
	Code []byte

	Stage   Stage
	Version d3d9.Version

	// InputLayout and OutputLayout are the resolved signatures. The
	// output layout of a vertex program is what the pixel conversion
	// consumes as its upstream layout.
	InputLayout  Signature
	OutputLayout Signature

	// MaxConstants holds the buffer registers each constant class needs,
	// indexed by ConstantClass: one past the highest fetched index rounded
	// to the class granularity, or Unbounded under dynamic addressing.
	MaxConstants [3]uint32

	// OutputsWritten is the mask of target output registers the program
	// writes.
	OutputsWritten uint32

	// AddedSemantics lists pixel inputs the upstream layout lacks.
	AddedSemantics []Semantic

	// DefConstants are the def, defi and defb values of the shader.
	DefConstants []InlineConstant

	// Instructions is the number of target code instructions and
	// ExtraInstructions the number beyond the legacy instruction count.
	Instructions      int
	ExtraInstructions int

	// GuardInstructions counts the instructions added by the
	// multiply-by-zero guard.
	GuardInstructions int

	// Descriptor is the usage report the program was generated from.
	Descriptor *ShaderDescriptor
}

// ConvertVertex translates a legacy vertex shader.
func ConvertVertex(code []byte, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	d, err := AnalyzeVertex(code, opts)
	if err != nil {
		return nil, err
	}
	return generate(d, opts, vertexStage{})
}

// ConvertPixel translates a legacy pixel shader. opts.Upstream must hold
// the output layout of the vertex stage when the shader reads inputs.
func ConvertPixel(code []byte, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	d, err := AnalyzePixel(code, opts)
	if err != nil {
		return nil, err
	}
	return generate(d, opts, pixelStage{})
}

// ConvertTLVertex synthesizes the vertex program of pre-transformed,
// pre-lit vertices described by layout.
func ConvertTLVertex(layout *InputLayout, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	d, err := describeTL(layout, opts)
	if err != nil {
		return nil, err
	}
	return generate(d, opts, tlStage{})
}

func generate(d *ShaderDescriptor, opts *Options, stage stageWriter) (*Result, error) {
	log := opts.logger()
	b := dxbc.NewProgramBuilder(stage.programType())
	if opts.DebugName != "" {
		b.SetDebugName(opts.DebugName)
	}

	g := newGenerator(d, opts, b, stage)
	if err := g.run(); err != nil {
		return nil, err
	}
	declare(b, d, &opts.Raster, stage)

	code, err := b.Build()
	if err != nil {
		return nil, Errorf(InternalError, "serialize program: %v", err)
	}
	if len(code) > maxProgramSize {
		return nil, Errorf(AllocationFailure, "program of %d bytes exceeds %d", len(code), maxProgramSize)
	}

	legacy := 0
	for i := range d.Instructions {
		if d.Instructions[i].Kind == d3d9.KindInstruction {
			legacy++
		}
	}
	r := &Result{
		Code:              code,
		Stage:             d.Stage,
		Version:           d.Version,
		InputLayout:       *d.Inputs.Clone(),
		OutputLayout:      *d.Outputs.Clone(),
		AddedSemantics:    d.AddedSemantics,
		DefConstants:      d.InlineConstants(),
		Instructions:      b.CodeLength(),
		ExtraInstructions: max(b.CodeLength()-legacy, 0),
		GuardInstructions: g.guards,
		Descriptor:        d,
	}
	for c := ConstFloat; c <= ConstBool; c++ {
		r.MaxConstants[c] = d.Constants[c].Registers(c)
	}
	if d.Pixel() {
		r.OutputsWritten = uint32(d.ColorOutputs)
	} else {
		for _, e := range d.Outputs.Entries {
			r.OutputsWritten |= 1 << e.Register
		}
	}

	log.Debug("converted shader",
		zap.Stringer("stage", d.Stage),
		zap.Stringer("version", d.Version),
		zap.Int("bytes", len(code)),
		zap.Int("instructions", r.Instructions),
		zap.Int("guards", r.GuardInstructions),
	)
	return r, nil
}

// String summarizes the result.
func (r *Result) String() string {
	return fmt.Sprintf("%s %s: %d bytes, %d instructions, %d temps",
		r.Stage, r.Version, len(r.Code), r.Instructions, r.Descriptor.TempCount())
}
