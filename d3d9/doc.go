// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package d3d9 reads and writes legacy Direct3D 9 shader token streams.
//
// A stream is a sequence of little-endian 32-bit tokens: a version token,
// instructions, and the end token 0x0000FFFF. Shader models 1.x and 2.x/3.x
// differ in how instruction boundaries are found: 2.0 and later encode the
// instruction length in the instruction token, while older versions are
// parsed by scanning for parameter tokens.
//
// # Decoding
//
//	d, err := d3d9.NewDecoder(code)
//	if err != nil {
//		return err
//	}
//	for d.Next() {
//		ins := d.Instruction()
//		fmt.Println(ins.Format(d.Version().IsPixel()))
//	}
//	if err := d.Err(); err != nil {
//		return err
//	}
//
// Comments and nops are skipped. Decoding fails with a *DecodeError on an
// unknown opcode, a missing end token, or parameters that overrun the
// stream.
//
// # Assembling
//
// Assemble turns shader assembly text into a token stream. It exists for
// tests and tooling; the converter itself only consumes token streams.
//
//	code, err := d3d9.Assemble(`
//		vs_2_0
//		dcl_position v0
//		m4x4 oPos, v0, c0
//	`)
package d3d9
