// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package cache

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gogpu/shaderconv/convert"
	"github.com/gogpu/shaderconv/d3d9"
	"github.com/gogpu/shaderconv/raster"
)

func TestNewKey(t *testing.T) {
	code := []byte{1, 2, 3, 4}
	base := NewKey(convert.StageVertex, code, nil)
	require.Equal(t, base, NewKey(convert.StageVertex, code, convert.DefaultOptions()))
	require.Len(t, base.String(), 64)

	tests := []struct {
		name  string
		stage convert.Stage
		code  []byte
		opts  func(*convert.Options)
	}{
		{"stage", convert.StagePixel, code, nil},
		{"code", convert.StageVertex, []byte{1, 2, 3, 5}, nil},
		{"settings", convert.StageVertex, code, func(o *convert.Options) { o.Settings = convert.SettingMulZeroGuard }},
		{"raster", convert.StageVertex, code, func(o *convert.Options) { o.Raster.FogEnable = true }},
		{"input layout", convert.StageVertex, code, func(o *convert.Options) {
			o.InputLayout = &convert.InputLayout{Elements: []convert.InputElement{{Usage: d3d9.UsagePosition}}}
		}},
		{"upstream", convert.StageVertex, code, func(o *convert.Options) {
			o.Upstream = &convert.Signature{Entries: []convert.SignatureEntry{{Semantic: convert.SemanticPosition}}}
		}},
		{"required outputs", convert.StageVertex, code, func(o *convert.Options) {
			o.RequiredOutputs = []convert.Semantic{convert.SemanticFog}
		}},
		{"debug name", convert.StageVertex, code, func(o *convert.Options) { o.DebugName = "x" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := convert.DefaultOptions()
			if tt.opts != nil {
				tt.opts(opts)
			}
			require.NotEqual(t, base, NewKey(tt.stage, tt.code, opts))
		})
	}
}

func TestNewKey_FieldBoundaries(t *testing.T) {
	a := convert.DefaultOptions()
	a.DebugName = "ab"
	b := convert.DefaultOptions()
	b.DebugName = "b"
	require.NotEqual(t,
		NewKey(convert.StageVertex, []byte{'x'}, a),
		NewKey(convert.StageVertex, []byte{'x', 'a'}, b))
}

func TestCache_Eviction(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	keys := make([]Key, 3)
	for i := range keys {
		keys[i] = NewKey(convert.StageVertex, []byte{byte(i)}, nil)
	}
	c.Add(keys[0], &convert.Result{Instructions: 0})
	c.Add(keys[1], &convert.Result{Instructions: 1})
	_, ok := c.Get(keys[0]) // keys[1] is now least recently used
	require.True(t, ok)
	c.Add(keys[2], &convert.Result{Instructions: 2})

	require.Equal(t, 2, c.Len())
	_, ok = c.Get(keys[1])
	require.False(t, ok)
	r, ok := c.Get(keys[2])
	require.True(t, ok)
	require.Equal(t, 2, r.Instructions)
	require.Equal(t, Stats{Hits: 2, Misses: 1}, c.Stats())
}

func TestCache_Do(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)
	k := NewKey(convert.StagePixel, []byte{9}, nil)

	calls := 0
	fn := func() (*convert.Result, error) {
		calls++
		return &convert.Result{Stage: convert.StagePixel}, nil
	}
	first, hit, err := c.Do(k, fn)
	require.NoError(t, err)
	require.False(t, hit)
	second, hit, err := c.Do(k, fn)
	require.NoError(t, err)
	require.True(t, hit)
	require.Same(t, first, second)
	require.Equal(t, 1, calls)

	failing := NewKey(convert.StagePixel, []byte{10}, nil)
	boom := errors.New("boom")
	_, _, err = c.Do(failing, func() (*convert.Result, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	_, ok := c.Get(failing)
	require.False(t, ok, "failures are not cached")
}

func TestCache_ConcurrentConvert(t *testing.T) {
	code, err := d3d9.Assemble("vs_2_0\ndcl_position v0\nmov oPos, v0")
	require.NoError(t, err)
	c, err := New(4)
	require.NoError(t, err)

	opts := convert.DefaultOptions()
	opts.Raster = raster.Default()
	k := NewKey(convert.StageVertex, code, opts)

	var wg sync.WaitGroup
	results := make([]*convert.Result, 8)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, _, err := c.Do(k, func() (*convert.Result, error) {
				return convert.ConvertVertex(code, opts)
			})
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = r
		}()
	}
	wg.Wait()
	for _, r := range results {
		require.NotNil(t, r)
		require.Equal(t, results[0].Code, r.Code)
	}
	require.Equal(t, 1, c.Len())
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
}
