// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/shaderconv/d3d9"
)

type corpusCase struct {
	Name       string   `yaml:"name"`
	Pixel      bool     `yaml:"pixel"`
	Source     string   `yaml:"source"`
	Categories []string `yaml:"categories"`
}

func loadCorpus(t *testing.T) []corpusCase {
	t.Helper()
	data, err := os.ReadFile("testdata/corpus.yaml")
	require.NoError(t, err)
	var cases []corpusCase
	require.NoError(t, yaml.Unmarshal(data, &cases))
	require.NotEmpty(t, cases)
	return cases
}

// upstreamLayout is a vertex output layout carrying every semantic a pixel
// test reads.
func upstreamLayout() *Signature {
	s := &Signature{}
	s.Add(SignatureEntry{Semantic: SemanticPosition, Register: 0, Mask: CompressMask(0xF)})
	s.Add(SignatureEntry{Semantic: Color(0), Register: 1, Mask: CompressMask(0xF)})
	s.Add(SignatureEntry{Semantic: Color(1), Register: 2, Mask: CompressMask(0xF)})
	for i := uint8(0); i < 8; i++ {
		s.Add(SignatureEntry{Semantic: TexCoord(i), Register: 3 + uint32(i), Mask: CompressMask(0xF)})
	}
	return s
}

func analyzeSource(t *testing.T, src string, pixel bool) *ShaderDescriptor {
	t.Helper()
	code, err := d3d9.Assemble(src)
	require.NoError(t, err)
	opts := DefaultOptions()
	if pixel {
		opts.Upstream = upstreamLayout()
		d, err := AnalyzePixel(code, opts)
		require.NoError(t, err)
		return d
	}
	d, err := AnalyzeVertex(code, opts)
	require.NoError(t, err)
	return d
}

func TestAnalyze_CorpusAllocation(t *testing.T) {
	for _, tc := range loadCorpus(t) {
		t.Run(tc.Name, func(t *testing.T) {
			d := analyzeSource(t, tc.Source, tc.Pixel)
			regs := d.Registers

			seen := make(map[uint32]RegisterKey)
			categories := make(map[string]bool)
			for _, k := range regs.Keys() {
				slot, ok := regs.Lookup(k).Index()
				require.True(t, ok, "%s has no slot", k)
				require.GreaterOrEqual(t, slot, uint32(ScratchCount), "%s overlaps the scratch block", k)
				require.Less(t, slot, d.TempCount())
				if other, dup := seen[slot]; dup {
					t.Fatalf("%s and %s share r%d", k, other, slot)
				}
				seen[slot] = k
				categories[k.Category.String()] = true
			}
			for _, c := range tc.Categories {
				require.True(t, categories[c], "no %s register allocated", c)
			}
			require.Equal(t, uint32(ScratchCount)+uint32(regs.Len()), d.TempCount())
		})
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	for _, tc := range loadCorpus(t) {
		t.Run(tc.Name, func(t *testing.T) {
			first := analyzeSource(t, tc.Source, tc.Pixel)
			second := analyzeSource(t, tc.Source, tc.Pixel)
			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("descriptor differs between runs (-first +second):\n%s", diff)
			}
		})
	}
}

func TestRegisterFile_FirstReferenceOrder(t *testing.T) {
	f := NewRegisterFile(ScratchCount)
	a := f.Allocate(RegisterKey{Category: CatTemp, Num: 5})
	b := f.Allocate(RegisterKey{Category: CatOutput, Num: 5})
	c := f.Allocate(RegisterKey{Category: CatTemp, Num: 0})
	again := f.Allocate(RegisterKey{Category: CatTemp, Num: 5})

	require.Equal(t, uint32(ScratchCount), a)
	require.Equal(t, uint32(ScratchCount+1), b)
	require.Equal(t, uint32(ScratchCount+2), c)
	require.Equal(t, a, again)
	require.False(t, f.Lookup(RegisterKey{Category: CatDepth}).Valid())
	require.Equal(t, "-", f.Lookup(RegisterKey{Category: CatDepth}).String())
	require.Equal(t, "r12", f.Lookup(RegisterKey{Category: CatTemp, Num: 5}).String())
}

func TestAnalyze_Constants(t *testing.T) {
	d := analyzeSource(t, `vs_2_0
		dcl_position v0
		def c3, 1, 2, 3, 4
		defi i1, 4, 0, 1, 0
		add r0, v0, c3
		mul r0, r0, c7
		mad oPos, r0, c2, c3
		rep i1
		add r0, r0, c9
		endrep
		if b6
		mov oD0, r0
		endif`, false)

	float := d.Constants[ConstFloat]
	require.True(t, float.Used)
	require.False(t, float.Dynamic)
	// c3 is inline and does not count.
	require.Equal(t, uint32(2), float.Min)
	require.Equal(t, uint32(9), float.Max)
	require.Equal(t, uint32(10), float.Registers(ConstFloat))

	require.False(t, d.Constants[ConstInt].Used, "i1 is inline")
	require.Equal(t, uint32(2), d.Constants[ConstBool].Registers(ConstBool))

	v, ok := d.InlineValue(ConstFloat, 3)
	require.True(t, ok)
	require.Equal(t, uint32(0x40000000), v[1])
	require.Len(t, d.InlineConstants(), 2)
	require.Equal(t, 1, d.LoopDepth)
}

func TestAnalyze_RelativeFloatConstants(t *testing.T) {
	d := analyzeSource(t, `vs_2_0
		dcl_position v0
		def c3, 1, 2, 3, 4
		mova a0.x, v0.x
		mov oPos, c[a0.x + 1]`, false)

	u := d.Constants[ConstFloat]
	require.True(t, u.Dynamic)
	require.Equal(t, Unbounded, u.Registers(ConstFloat))
	_, inline := d.InlineValue(ConstFloat, 3)
	require.False(t, inline, "def values cannot be inlined under dynamic addressing")
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		pixel bool
		kind  ErrorKind
	}{
		{
			name: "pixel code as vertex",
			src:  "ps_2_0\nmov oC0, c0",
			kind: UnsupportedVersion,
		},
		{
			name: "loop nesting too deep",
			src: `vs_3_0
				defi i0, 1, 0, 0, 0
				rep i0
				rep i0
				rep i0
				rep i0
				rep i0
				endrep
				endrep
				endrep
				endrep
				endrep`,
			kind: CapacityExceeded,
		},
		{
			name: "unterminated loop",
			src:  "vs_3_0\ndefi i0, 1, 0, 0, 0\nrep i0",
			kind: MalformedStream,
		},
		{
			name:  "pixel inputs without upstream",
			src:   "ps_2_0\ndcl t0\nmov oC0, t0",
			pixel: true,
			kind:  InvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := d3d9.Assemble(tt.src)
			require.NoError(t, err)
			if tt.pixel {
				_, err = AnalyzePixel(code, nil)
			} else {
				_, err = AnalyzeVertex(code, nil)
			}
			require.Error(t, err)
			require.Equal(t, tt.kind, KindOf(err), "%v", err)
		})
	}
}

func TestAnalyze_EmptyStream(t *testing.T) {
	_, err := AnalyzeVertex(nil, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAnalyze_BadHeader(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		kind ErrorKind
	}{
		{"short stream", []byte{0x00, 0x02}, MalformedStream},
		{"bad version token", []byte{0x78, 0x56, 0x34, 0x12, 0xFF, 0xFF, 0x00, 0x00}, UnsupportedVersion},
		{"unsupported version", []byte{0x00, 0x05, 0xFE, 0xFF, 0xFF, 0xFF, 0x00, 0x00}, UnsupportedVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AnalyzeVertex(tt.code, nil)
			require.Equal(t, tt.kind, KindOf(err), "%v", err)
		})
	}
}

func TestAnalyze_VertexOutputLayout(t *testing.T) {
	d := analyzeSource(t, `vs_1_1
		dcl_position v0
		mov oD1, v0
		mov oPos, v0
		mov oT2.xy, v0`, false)

	out := &d.Outputs
	require.Equal(t, uint32(0), out.Find(SemanticPosition).Register)
	require.Equal(t, uint32(1), out.Find(Color(1)).Register)
	require.Equal(t, uint32(2), out.Find(TexCoord(2)).Register)
	require.True(t, out.Find(TexCoord(2)).HasSource)
}
