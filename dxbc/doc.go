// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package dxbc writes and reads Direct3D 10 shader model 4 program tokens.
//
// A program is a version token, a length token, declarations and code. Each
// instruction starts with an opcode token carrying its length; operands
// follow as operand tokens with optional extended modifier tokens, index
// tokens and immediate values.
//
// # Building Programs
//
//	b := dxbc.NewProgramBuilder(dxbc.PixelShader)
//	b.DeclareInputPS(0, dxbc.MaskXYZW, dxbc.InterpolationLinear)
//	b.DeclareOutput(0, dxbc.MaskXYZW)
//	b.Emit(dxbc.OpMov, dxbc.Output(0).WithMask(dxbc.MaskXYZW), dxbc.Input(0))
//	b.Emit(dxbc.OpRet)
//	code, err := b.Build()
//
// Decode parses programs back for inspection and for the reference
// interpreter in package sim.
package dxbc
