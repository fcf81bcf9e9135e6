// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

// Constant buffer slots.
const (
	CBFloat  = 0
	CBInt    = 1
	CBBool   = 2
	CBSystem = 3
)

// Registers of the system constant buffer cb3, filled by the driver from
// fixed-function state.
const (
	// SysFogColor is the fog color (rgb).
	SysFogColor = 0
	// SysFogParams is (start, end, density, 1/(end-start)).
	SysFogParams = 1
	// SysAlphaRef is the alpha test reference in x.
	SysAlphaRef = 2
	// SysPointSize is (size, min, max, 0).
	SysPointSize = 3
	// SysViewport is (2/width, -2/height, -1 - x*2/width, 1 + y*2/height),
	// the screen to clip transform of pre-transformed vertices.
	SysViewport = 4
	// SysInvViewport is (width/2, height/2, 2/width, 2/height).
	SysInvViewport = 5
	// SysHalfPixel is the clip space offset of half a pixel in xy.
	SysHalfPixel = 6
	// SysColorKey is the first of 16 per-sampler color keys.
	SysColorKey = 7
	// SysClipPlane is the first of 6 user clip planes.
	SysClipPlane = 23
	// SysBumpMatrix is the first of 8 bump environment matrices stored as
	// (M00, M01, M10, M11).
	SysBumpMatrix = 29
	// SysBumpLuminance is the first of 8 (scale, offset) luminance pairs.
	SysBumpLuminance = 37

	// SysRegisterCount is the size of cb3.
	SysRegisterCount = 45
)

// Scratch block layout. These temps precede every user register.
const (
	scratchMacro     = 0  // four macro temporaries
	scratchModifier  = 4  // one staging temp per source position
	scratchPatch     = 8  // multiply guard pair
	scratchResult    = 10 // predicated and shifted results
	scratchCoissue   = 11 // first half of a coissued pair
	ScratchCount     = 12
	scratchMacroSize = 4
)

// MaxLoopDepth is the deepest supported loop/rep nesting.
const MaxLoopDepth = 4

// fltMax is the largest finite float, substituted where legacy hardware
// produced it instead of an infinity.
const fltMax = 3.402823466e+38
