// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/raster"
)

// declare writes the program header from the usage report: constant
// buffers, samplers and resources, indexable temps, the stage inputs and
// outputs, and the temp count.
func declare(b *dxbc.ProgramBuilder, d *ShaderDescriptor, snap *raster.Snapshot, stage stageWriter) {
	b.DeclareGlobalFlags(dxbc.GlobalFlagRefactoringAllowed)

	if u := d.Constants[ConstFloat]; u.Used {
		size := u.Registers(ConstFloat)
		if size == Unbounded {
			size = max(u.Max+1, d.Version.MaxFloatConstants())
		}
		b.DeclareConstantBuffer(CBFloat, size, u.Dynamic)
	}
	if n := d.Constants[ConstInt].Registers(ConstInt); n > 0 {
		b.DeclareConstantBuffer(CBInt, n, false)
	}
	if n := d.Constants[ConstBool].Registers(ConstBool); n > 0 {
		b.DeclareConstantBuffer(CBBool, n, false)
	}
	b.DeclareConstantBuffer(CBSystem, SysRegisterCount, false)

	for n := uint32(0); n < raster.MaxSamplers; n++ {
		if d.SamplerMask&(1<<n) == 0 {
			continue
		}
		mode := dxbc.SamplerDefault
		if snap.Samplers[n].Shadow && d.Samplers[n] == d3d9.Texture2D {
			mode = dxbc.SamplerComparison
		}
		b.DeclareSampler(n, mode)
		b.DeclareResource(n, resourceDimension(d.Samplers[n]))
	}

	if d.RelativeInputs {
		b.DeclareIndexableTemp(0, max(d.InputRegisters, 1), 4)
	}
	if d.RelativeOutputs {
		b.DeclareIndexableTemp(1, max(d.OutputRegisters, 1), 4)
	}

	stage.declareIO(b, d, snap)
	b.DeclareTemps(d.TempCount())
}

func resourceDimension(t d3d9.TextureType) dxbc.ResourceDimension {
	switch t {
	case d3d9.TextureCube:
		return dxbc.ResourceCube
	case d3d9.TextureVolume:
		return dxbc.ResourceTexture3D
	}
	return dxbc.ResourceTexture2D
}
