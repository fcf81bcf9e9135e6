// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"go.uber.org/zap"

	"github.com/gogpu/shaderconv/raster"
)

// Options configures one conversion.
type Options struct {
	// Settings is the conversion settings bit set.
	Settings Settings

	// Raster is the fixed-function state the program runs under.
	Raster raster.Snapshot

	// InputLayout is the reference vertex input layout. It is optional and
	// only consulted for vertex shaders.
	InputLayout *InputLayout

	// OutputLayout fixes the vertex output registers. Outputs it does not
	// list are dropped and listed outputs the shader never writes receive
	// default values. When nil the layout is synthesized.
	OutputLayout *Signature

	// RequiredOutputs lists semantics the vertex program must produce even
	// if the shader does not write them.
	RequiredOutputs []Semantic

	// Upstream is the resolved output layout of the vertex stage feeding a
	// pixel shader. It is required for pixel shaders that read inputs.
	Upstream *Signature

	// DebugName is embedded in the program as a comment block.
	DebugName string

	// Logger receives debug events. Nil disables logging.
	Logger *zap.Logger
}

// DefaultOptions returns options for a default device state.
func DefaultOptions() *Options {
	return &Options{
		Raster: raster.Default(),
	}
}

func (o *Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
