// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package sim_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/dxbc/sim"
)

func build(t *testing.T, b *dxbc.ProgramBuilder) *sim.Machine {
	t.Helper()
	data, err := b.Build()
	require.NoError(t, err)
	p, err := dxbc.Decode(data)
	require.NoError(t, err)
	m, err := sim.New(p)
	require.NoError(t, err)
	return m
}

func TestMachine_Arithmetic(t *testing.T) {
	b := dxbc.NewProgramBuilder(dxbc.VertexShader)
	b.DeclareTemps(2)
	b.Emit(dxbc.OpAdd, dxbc.Temp(0).WithMask(dxbc.MaskXYZW), dxbc.Input(0), dxbc.Input(1).Neg())
	b.Emit(dxbc.OpLt, dxbc.Temp(1).WithMask(dxbc.MaskXYZW), dxbc.Input(0), dxbc.Input(1))
	b.Emit(dxbc.OpMovc, dxbc.Output(0).WithMask(dxbc.MaskXYZW), dxbc.Temp(1), dxbc.SplatF32(1), dxbc.SplatF32(0))
	b.Emit(dxbc.OpDp3, dxbc.Output(1).WithMask(dxbc.MaskX), dxbc.Input(0), dxbc.Input(1))
	b.EmitSat(dxbc.OpMul, dxbc.Output(2).WithMask(dxbc.MaskXYZW), dxbc.Input(0), dxbc.SplatF32(0.5))
	b.Emit(dxbc.OpRet)

	m := build(t, b)
	m.Inputs = []sim.Vec{sim.F(0, 5, -1, 2), sim.F(1, 1, 1, 1)}
	require.NoError(t, m.Run())

	require.Equal(t, [4]float32{-1, 4, -2, 1}, m.Temps[0].Floats())
	require.Equal(t, [4]float32{1, 0, 1, 0}, m.Outputs[0].Floats())
	require.Equal(t, float32(4), m.Outputs[1].Float(0))
	require.Equal(t, [4]float32{0, 1, 0, 1}, m.Outputs[2].Floats())
}

func TestMachine_Loop(t *testing.T) {
	// r0.x counts to cb0[0].x
	b := dxbc.NewProgramBuilder(dxbc.VertexShader)
	b.DeclareConstantBuffer(0, 1, false)
	b.DeclareTemps(2)
	b.Emit(dxbc.OpMov, dxbc.Temp(0).WithMask(dxbc.MaskX), dxbc.ScalarU32(0))
	b.Emit(dxbc.OpLoop)
	b.Emit(dxbc.OpIGe, dxbc.Temp(1).WithMask(dxbc.MaskX), dxbc.Temp(0).Select(0), dxbc.ConstBuffer(0, 0).Select(0))
	b.EmitTest(dxbc.OpBreakc, true, dxbc.Temp(1).Select(0))
	b.Emit(dxbc.OpIAdd, dxbc.Temp(0).WithMask(dxbc.MaskX), dxbc.Temp(0).Select(0), dxbc.ScalarU32(1))
	b.Emit(dxbc.OpEndLoop)
	b.Emit(dxbc.OpItoF, dxbc.Output(0).WithMask(dxbc.MaskX), dxbc.Temp(0).Select(0))
	b.Emit(dxbc.OpRet)

	m := build(t, b)
	m.ConstBuffers[0][0] = sim.Vec{7}
	require.NoError(t, m.Run())
	require.Equal(t, float32(7), m.Outputs[0].Float(0))
}

func TestMachine_CallAndDiscard(t *testing.T) {
	b := dxbc.NewProgramBuilder(dxbc.PixelShader)
	b.DeclareTemps(1)
	b.Emit(dxbc.OpCall, dxbc.Label(0))
	b.EmitTest(dxbc.OpDiscard, true, dxbc.Temp(0).Select(0))
	b.Emit(dxbc.OpMov, dxbc.Output(0).WithMask(dxbc.MaskXYZW), dxbc.SplatF32(1))
	b.Emit(dxbc.OpRet)
	b.Emit(dxbc.OpLabel, dxbc.Label(0))
	b.Emit(dxbc.OpLt, dxbc.Temp(0).WithMask(dxbc.MaskX), dxbc.Input(0).Select(0), dxbc.ScalarF32(0.5))
	b.Emit(dxbc.OpRet)

	m := build(t, b)
	m.Inputs = []sim.Vec{sim.F(0.25, 0, 0, 0)}
	require.NoError(t, m.Run())
	require.True(t, m.Discarded)

	m = build(t, b)
	m.Inputs = []sim.Vec{sim.F(0.75, 0, 0, 0)}
	require.NoError(t, m.Run())
	require.False(t, m.Discarded)
	require.Equal(t, float32(1), m.Outputs[0].Float(3))
}

func TestMachine_StepLimit(t *testing.T) {
	b := dxbc.NewProgramBuilder(dxbc.VertexShader)
	b.Emit(dxbc.OpLoop)
	b.Emit(dxbc.OpEndLoop)
	b.Emit(dxbc.OpRet)

	m := build(t, b)
	m.MaxSteps = 100
	require.ErrorIs(t, m.Run(), sim.ErrStepLimit)
}

func TestNew_UnbalancedFlow(t *testing.T) {
	b := dxbc.NewProgramBuilder(dxbc.VertexShader)
	b.DeclareTemps(1)
	b.EmitTest(dxbc.OpIf, true, dxbc.Temp(0).Select(0))
	b.Emit(dxbc.OpRet)
	data, err := b.Build()
	require.NoError(t, err)
	p, err := dxbc.Decode(data)
	require.NoError(t, err)
	_, err = sim.New(p)
	require.Error(t, err)
}
