// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package cache memoizes conversions by content. A Key hashes everything a
// conversion depends on, so identical shaders converted under identical
// state share one result.
package cache

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"lukechampine.com/blake3"

	"github.com/gogpu/shaderconv/convert"
)

// Key is the content fingerprint of one conversion.
type Key [32]byte

// String returns the key in hex.
func (k Key) String() string {
	return fmt.Sprintf("%x", k[:])
}

// NewKey fingerprints the conversion of code as stage under opts. A nil
// opts hashes as the default options.
func NewKey(stage convert.Stage, code []byte, opts *convert.Options) Key {
	if opts == nil {
		opts = convert.DefaultOptions()
	}
	h := blake3.New(32, nil)
	var word [4]byte
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(word[:], v)
		h.Write(word[:])
	}
	field := func(b []byte) {
		put(uint32(len(b)))
		h.Write(b)
	}

	put(uint32(stage))
	put(uint32(opts.Settings))
	fp := opts.Raster.Fingerprint()
	h.Write(fp[:])
	field(code)
	if opts.InputLayout != nil {
		put(uint32(len(opts.InputLayout.Elements)))
		for _, e := range opts.InputLayout.Elements {
			put(e.Register)
			put(uint32(e.Usage)<<16 | uint32(e.UsageIndex)<<8 | uint32(e.Conversion))
		}
	} else {
		put(0)
	}
	field([]byte(layoutString(opts.OutputLayout)))
	field([]byte(layoutString(opts.Upstream)))
	put(uint32(len(opts.RequiredOutputs)))
	for _, sem := range opts.RequiredOutputs {
		field([]byte(sem.String()))
	}
	field([]byte(opts.DebugName))

	var k Key
	h.Sum(k[:0])
	return k
}

func layoutString(s *convert.Signature) string {
	if s == nil {
		return ""
	}
	return s.String()
}

// Stats counts cache lookups.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Cache is a bounded LRU of conversion results. It is safe for concurrent
// use. Cached results are shared and must not be modified.
type Cache struct {
	mu    sync.Mutex
	lru   *simplelru.LRU[Key, *convert.Result]
	stats Stats
}

// New returns a cache holding up to size results.
func New(size int) (*Cache, error) {
	lru, err := simplelru.NewLRU[Key, *convert.Result](size, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Cache{lru: lru}, nil
}

// Get returns the result stored under k.
func (c *Cache) Get(k Key) (*convert.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.lru.Get(k)
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	return r, ok
}

// Add stores r under k, evicting the least recently used result when full.
func (c *Cache) Add(k Key, r *convert.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(k, r)
}

// Do returns the result stored under k, or runs fn and stores its result.
// Failed conversions are not stored. Concurrent misses of one key may each
// run fn; conversions are deterministic so either result is kept.
func (c *Cache) Do(k Key, fn func() (*convert.Result, error)) (r *convert.Result, hit bool, err error) {
	if r, ok := c.Get(k); ok {
		return r, true, nil
	}
	r, err = fn()
	if err != nil {
		return nil, false, err
	}
	c.Add(k, r)
	return r, false, nil
}

// Len returns the number of stored results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns the lookup counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
