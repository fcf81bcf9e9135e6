// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gogpu/shaderconv/convert"
	"github.com/gogpu/shaderconv/dxbc"
)

const (
	vertexAsm = `vs_2_0
dcl_position v0
mov oPos, v0
add oT0, v0, c3
`
	pixelAsm = `ps_2_0
dcl t0
mov oC0, t0
`
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return out.String(), errOut.String(), code
}

func programType(t *testing.T, path string) dxbc.ProgramType {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	p, err := dxbc.Decode(data)
	require.NoError(t, err)
	return p.Type
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	vs := writeFile(t, dir, "lit.asm", vertexAsm)
	ps := writeFile(t, dir, "tex.asm", pixelAsm)
	outDir := filepath.Join(dir, "build")

	_, stderr, code := execute(t, "convert", "-j", "2", "--out", outDir, vs, ps)
	require.Equal(t, 0, code, stderr)
	require.Equal(t, dxbc.VertexShader, programType(t, filepath.Join(outDir, "lit.dxbc")))
	require.Equal(t, dxbc.PixelShader, programType(t, filepath.Join(outDir, "tex.dxbc")))
}

func TestConvert_IdenticalInputs(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.asm", vertexAsm)
	b := writeFile(t, dir, "b.asm", vertexAsm)

	_, stderr, code := execute(t, "convert", "-j", "1", "--mul-zero-guard", a, b)
	require.Equal(t, 0, code, stderr)
	first, err := os.ReadFile(filepath.Join(dir, "a.dxbc"))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, "b.dxbc"))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestConvert_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"convert", filepath.Join(dir, "nope.vso")}, "nope.vso"},
		{"bad assembly", []string{"convert", writeFile(t, dir, "bad.asm", "vs_2_0\nfrobnicate r0")}, "bad.asm"},
		{"bad raster", []string{"convert", "--raster", writeFile(t, dir, "r.toml", `fill = "dotted"`),
			writeFile(t, dir, "ok.asm", vertexAsm)}, "fill mode"},
		{"no files", []string{"convert"}, "arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := execute(t, tt.args...)
			require.Equal(t, 1, code)
			require.Contains(t, stderr, tt.want)
		})
	}
}

func TestGS(t *testing.T) {
	dir := t.TempDir()
	snap := writeFile(t, dir, "points.toml", `
primitive = "point"
point-sprite = true
`)
	stdout, stderr, code := execute(t, "gs", "--raster", snap, "--outputs", "position0,psize0,color0")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "// point-expand")

	out := filepath.Join(dir, "sprite.gs")
	_, stderr, code = execute(t, "gs", "--raster", snap, "--outputs", "position0", "-o", out)
	require.Equal(t, 0, code, stderr)
	require.Equal(t, dxbc.GeometryShader, programType(t, out))
}

func TestGS_Errors(t *testing.T) {
	_, stderr, code := execute(t, "gs", "--outputs", "color0")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "position")

	_, stderr, code = execute(t, "gs", "--outputs", "position0,position0")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "duplicate")
}

func TestParseLayout(t *testing.T) {
	s, err := parseLayout([]string{"position0", " PSize0", "texcoord3"})
	require.NoError(t, err)
	require.Len(t, s.Entries, 3)
	require.Equal(t, convert.CompressMask(dxbc.MaskX), s.Find(convert.SemanticPointSize).Mask)
	require.Equal(t, uint32(2), s.Find(convert.TexCoord(3)).Register)

	_, err = parseLayout([]string{"bogus"})
	require.Error(t, err)
}

func TestInfo(t *testing.T) {
	dir := t.TempDir()
	stdout, stderr, code := execute(t, "info", writeFile(t, dir, "lit.asm", vertexAsm))
	require.Equal(t, 0, code, stderr)
	for _, want := range []string{"vs_2_0", "Constants", "3..3", "position0", "texcoord0"} {
		require.Contains(t, stdout, want)
	}
}

func TestAsm(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "tex.asm", pixelAsm)

	stdout, stderr, code := execute(t, "asm", "--list", src)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "ps_2_0")

	_, stderr, code = execute(t, "asm", src)
	require.Equal(t, 0, code, stderr)
	tokens, err := os.ReadFile(filepath.Join(dir, "tex.pso"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x02, 0xFF, 0xFF}, tokens[:4])
}
