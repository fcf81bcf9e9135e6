// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package d3d9

import (
	"errors"
	"fmt"
)

// ErrInvalidVersion reports a first token that is not a version token.
var ErrInvalidVersion = errors.New("invalid version token")

// ShaderType is the legacy shader class encoded in the version token.
type ShaderType uint8

const (
	// ShaderVertex identifies a vertex shader (version token 0xFFFE____).
	ShaderVertex ShaderType = iota

	// ShaderPixel identifies a pixel shader (version token 0xFFFF____).
	ShaderPixel
)

// String returns the profile prefix of the shader type.
func (t ShaderType) String() string {
	if t == ShaderPixel {
		return "ps"
	}
	return "vs"
}

const (
	vertexVersionPrefix = 0xFFFE0000
	pixelVersionPrefix  = 0xFFFF0000
)

// Version is a legacy shader version.
type Version struct {
	Type  ShaderType
	Major uint8
	Minor uint8
}

// ParseVersion decodes a version token. It does not check whether the
// version is supported.
func ParseVersion(token uint32) (Version, error) {
	var v Version
	switch token & 0xFFFF0000 {
	case vertexVersionPrefix:
		v.Type = ShaderVertex
	case pixelVersionPrefix:
		v.Type = ShaderPixel
	default:
		return v, fmt.Errorf("%w 0x%08X", ErrInvalidVersion, token)
	}
	v.Major = uint8(token >> 8)
	v.Minor = uint8(token)
	return v, nil
}

// Token returns the version token encoding v.
func (v Version) Token() uint32 {
	prefix := uint32(vertexVersionPrefix)
	if v.Type == ShaderPixel {
		prefix = pixelVersionPrefix
	}
	return prefix | uint32(v.Major)<<8 | uint32(v.Minor)
}

// String returns the profile name, e.g. "vs_3_0" or "ps_2_x".
func (v Version) String() string {
	if v.Minor == 1 && v.Major == 2 {
		return fmt.Sprintf("%s_2_x", v.Type)
	}
	return fmt.Sprintf("%s_%d_%d", v.Type, v.Major, v.Minor)
}

// Supported reports whether v is one of the versions the converter accepts.
func (v Version) Supported() bool {
	switch v.Type {
	case ShaderVertex:
		switch v.Major {
		case 1:
			return v.Minor <= 1
		case 2:
			return v.Minor <= 1
		case 3:
			return v.Minor == 0
		}
	case ShaderPixel:
		switch v.Major {
		case 1:
			return v.Minor <= 4
		case 2:
			return v.Minor <= 1
		case 3:
			return v.Minor == 0
		}
	}
	return false
}

// AtLeast reports whether v is major.minor or newer.
func (v Version) AtLeast(major, minor uint8) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// IsPixel reports whether v is a pixel shader version.
func (v Version) IsPixel() bool {
	return v.Type == ShaderPixel
}

// EncodesLength reports whether instruction tokens carry their length.
// Versions before 2.0 are parsed by scanning parameter tokens.
func (v Version) EncodesLength() bool {
	return v.Major >= 2
}

// HasAddressToken reports whether relative addressing is followed by an
// explicit address register token. vs_1_x implies a0.x.
func (v Version) HasAddressToken() bool {
	if v.Type == ShaderVertex {
		return v.Major >= 2
	}
	return v.Major >= 3
}

// MaxFloatConstants returns the float constant register count of the
// version's register file.
func (v Version) MaxFloatConstants() uint32 {
	if v.Type == ShaderVertex {
		return 256
	}
	switch v.Major {
	case 1:
		return 8
	case 2:
		return 32
	}
	return 224
}

// MaxIntConstants returns the integer constant register count.
func (v Version) MaxIntConstants() uint32 {
	if v.Major < 2 {
		return 0
	}
	return 16
}

// MaxBoolConstants returns the boolean constant register count.
func (v Version) MaxBoolConstants() uint32 {
	if v.Major < 2 {
		return 0
	}
	return 16
}
