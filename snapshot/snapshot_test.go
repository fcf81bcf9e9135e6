// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package snapshot_test provides golden snapshot tests for whole pipelines.
//
// Each vertex and pixel shader pair in testdata/in/ (<name>.vs.asm and
// <name>.ps.asm) is converted under every raster state in testdata/raster/.
// The disassembled programs of all stages are compared to golden files
// stored in testdata/golden/<raster>/<name>.txt.
//
// To regenerate golden files after intentional changes:
//
//	UPDATE_GOLDEN=1 go test ./snapshot/...
package snapshot_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/shaderconv"
	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/dxbc"
	"github.com/gogpu/shaderconv/raster"
)

// pipelineCase is a vertex and pixel shader drawn together.
type pipelineCase struct {
	name   string
	vertex []byte
	pixel  []byte
}

// rasterCase is a named raster state.
type rasterCase struct {
	name string
	snap raster.Snapshot
}

// TestSnapshots converts every pipeline under every raster state and compares
// the listings with golden files.
func TestSnapshots(t *testing.T) {
	pipelines := loadPipelines(t, filepath.Join("testdata", "in"))
	if len(pipelines) == 0 {
		t.Fatal("no input shaders found in testdata/in/")
	}
	states := loadRasterStates(t, filepath.Join("testdata", "raster"))

	for _, rs := range states {
		t.Run(rs.name, func(t *testing.T) {
			for _, pc := range pipelines {
				t.Run(pc.name, func(t *testing.T) {
					listing := convertPipeline(t, pc, rs.snap)
					compareGolden(t, filepath.Join("testdata", "golden", rs.name, pc.name+".txt"), listing)
				})
			}
		})
	}
}

// TestSnapshots_Deterministic checks that repeated conversions produce
// identical programs, which golden files and result caching rely on.
func TestSnapshots_Deterministic(t *testing.T) {
	pipelines := loadPipelines(t, filepath.Join("testdata", "in"))
	for _, rs := range loadRasterStates(t, filepath.Join("testdata", "raster")) {
		for _, pc := range pipelines {
			first := convertPipeline(t, pc, rs.snap)
			second := convertPipeline(t, pc, rs.snap)
			if first != second {
				t.Errorf("%s/%s: conversion is not deterministic:\n%s", rs.name, pc.name,
					cmp.Diff(lines(first), lines(second)))
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Input Loading
// ---------------------------------------------------------------------------

// loadPipelines assembles all shader pairs from the given directory.
func loadPipelines(t *testing.T, dir string) []pipelineCase {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "*.vs.asm"))
	if err != nil {
		t.Fatalf("list input directory %q: %v", dir, err)
	}
	slices.Sort(matches)

	var out []pipelineCase
	for _, vsPath := range matches {
		name := strings.TrimSuffix(filepath.Base(vsPath), ".vs.asm")
		out = append(out, pipelineCase{
			name:   name,
			vertex: assembleFile(t, vsPath),
			pixel:  assembleFile(t, filepath.Join(dir, name+".ps.asm")),
		})
	}
	return out
}

func assembleFile(t *testing.T, path string) []byte {
	t.Helper()

	src, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read shader %q: %v", path, err)
	}
	code, err := d3d9.Assemble(string(src))
	if err != nil {
		t.Fatalf("assemble %q: %v", path, err)
	}
	return code
}

// loadRasterStates reads all .toml raster snapshots from the given directory.
func loadRasterStates(t *testing.T, dir string) []rasterCase {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "*.toml"))
	if err != nil {
		t.Fatalf("list raster directory %q: %v", dir, err)
	}
	slices.Sort(matches)

	out := make([]rasterCase, 0, len(matches))
	for _, path := range matches {
		snap, err := raster.LoadTOML(path)
		if err != nil {
			t.Fatalf("load raster state %q: %v", path, err)
		}
		out = append(out, rasterCase{
			name: strings.TrimSuffix(filepath.Base(path), ".toml"),
			snap: snap,
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Conversion Helpers
// ---------------------------------------------------------------------------

// convertPipeline converts a shader pair and returns the disassembly of
// every stage, each preceded by a header line.
func convertPipeline(t *testing.T, pc pipelineCase, snap raster.Snapshot) string {
	t.Helper()

	opts := shaderconv.DefaultOptions()
	opts.Raster = snap
	opts.DebugName = pc.name
	p, err := shaderconv.ConvertPipeline(pc.vertex, pc.pixel, nil, opts)
	if err != nil {
		t.Fatalf("[%s] convert failed: %v", pc.name, err)
	}

	var sb strings.Builder
	writeStage(t, &sb, fmt.Sprintf("vertex %s", p.Vertex.Version), p.Vertex.Code)
	if p.Geometry != nil {
		writeStage(t, &sb, fmt.Sprintf("geometry %s", p.Geometry.Features), p.Geometry.Code)
	}
	writeStage(t, &sb, fmt.Sprintf("pixel %s", p.Pixel.Version), p.Pixel.Code)
	return sb.String()
}

func writeStage(t *testing.T, sb *strings.Builder, header string, code []byte) {
	t.Helper()

	prog, err := dxbc.Decode(code)
	if err != nil {
		t.Fatalf("decode %s: %v", header, err)
	}
	fmt.Fprintf(sb, "// === %s ===\n", header)
	sb.WriteString(prog.String())
}

// ---------------------------------------------------------------------------
// Golden File Comparison
// ---------------------------------------------------------------------------

// compareGolden compares actual output with the golden file at path.
// If UPDATE_GOLDEN is set, writes actual output as the new golden file.
func compareGolden(t *testing.T, path, actual string) {
	t.Helper()

	if os.Getenv("UPDATE_GOLDEN") != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("create golden dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(actual), 0o644); err != nil {
			t.Fatalf("write golden file: %v", err)
		}
		t.Logf("updated golden file: %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		t.Fatalf("golden file missing: %s\nRun with UPDATE_GOLDEN=1 to create.\n\nActual output:\n%s", path, truncate(actual, 800))
	}
	if err != nil {
		t.Fatalf("read golden file %s: %v", path, err)
	}

	// Git may convert \n to \r\n on Windows checkout.
	expected = bytes.ReplaceAll(expected, []byte("\r\n"), []byte("\n"))
	if diff := cmp.Diff(lines(string(expected)), lines(actual)); diff != "" {
		t.Errorf("output differs from golden %s (-golden +actual):\n%s", path, diff)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func lines(s string) []string {
	return strings.Split(s, "\n")
}
