// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/shaderconv/d3d9"
)

// CompressedMask is a write mask packed as the list of its components, two
// bits each with the first component lowest, and the component count in
// bits 8-10. The packed list doubles as the swizzle that gathers the
// components into consecutive lanes.
type CompressedMask uint16

// CompressMask packs a 4-bit write mask.
func CompressMask(mask uint8) CompressedMask {
	var c CompressedMask
	n := 0
	for i := 0; i < 4; i++ {
		if mask&(1<<uint(i)) != 0 {
			c |= CompressedMask(i) << (2 * uint(n))
			n++
		}
	}
	return c | CompressedMask(n)<<8
}

// Expand returns the 4-bit write mask.
func (c CompressedMask) Expand() uint8 {
	var mask uint8
	for k := 0; k < c.Count(); k++ {
		mask |= 1 << uint(c>>(2*uint(k))&3)
	}
	return mask
}

// Count returns the number of components.
func (c CompressedMask) Count() int {
	return int(c>>8) & 7
}

// Union returns the mask covering the components of both.
func (c CompressedMask) Union(other CompressedMask) CompressedMask {
	return CompressMask(c.Expand() | other.Expand())
}

// String returns the components in assembler order, e.g. "xzw".
func (c CompressedMask) String() string {
	var sb strings.Builder
	m := c.Expand()
	for i := 0; i < 4; i++ {
		if m&(1<<uint(i)) != 0 {
			sb.WriteByte("xyzw"[i])
		}
	}
	return sb.String()
}

// Semantic names an interpolated value by usage and usage index.
type Semantic struct {
	Usage d3d9.Usage
	Index uint8
}

// Usages that only exist in target signatures.
const (
	usageSpriteCoord  d3d9.Usage = 0x20
	usageClipDistance d3d9.Usage = 0x21
)

// Well-known semantics.
var (
	SemanticPosition    = Semantic{Usage: d3d9.UsagePosition}
	SemanticFog         = Semantic{Usage: d3d9.UsageFog}
	SemanticPointSize   = Semantic{Usage: d3d9.UsagePointSize}
	SemanticSpriteCoord = Semantic{Usage: usageSpriteCoord}
)

// Color returns the semantic of color n.
func Color(n uint8) Semantic {
	return Semantic{Usage: d3d9.UsageColor, Index: n}
}

// TexCoord returns the semantic of texture coordinate set n.
func TexCoord(n uint8) Semantic {
	return Semantic{Usage: d3d9.UsageTexCoord, Index: n}
}

// ClipDistance returns the semantic of the n-th clip distance register.
func ClipDistance(n uint8) Semantic {
	return Semantic{Usage: usageClipDistance, Index: n}
}

// IsSystem reports whether s is produced by the converter rather than by a
// legacy register.
func (s Semantic) IsSystem() bool {
	return s.Usage == usageSpriteCoord || s.Usage == usageClipDistance
}

// String returns the semantic as "usage<index>", e.g. "texcoord2".
func (s Semantic) String() string {
	switch s.Usage {
	case usageSpriteCoord:
		return "spritecoord"
	case usageClipDistance:
		return fmt.Sprintf("clipdistance%d", s.Index)
	}
	return fmt.Sprintf("%s%d", s.Usage, s.Index)
}

// ParseSemantic parses the String form of a semantic. A missing index means
// zero.
func ParseSemantic(text string) (Semantic, error) {
	name := strings.TrimRight(text, "0123456789")
	var index uint64
	if digits := text[len(name):]; digits != "" {
		var err error
		index, err = strconv.ParseUint(digits, 10, 4)
		if err != nil {
			return Semantic{}, fmt.Errorf("semantic %q: index out of range", text)
		}
	}
	switch name {
	case "spritecoord":
		return SemanticSpriteCoord, nil
	case "clipdistance":
		return ClipDistance(uint8(index)), nil
	}
	u, ok := d3d9.ParseUsage(name)
	if !ok {
		return Semantic{}, fmt.Errorf("unknown semantic %q", text)
	}
	return Semantic{Usage: u, Index: uint8(index)}, nil
}

// SignatureEntry binds a semantic to a target register.
type SignatureEntry struct {
	Semantic Semantic
	Register uint32
	Mask     CompressedMask

	// Source is the legacy register carrying the value, when there is one.
	Source    d3d9.Register
	HasSource bool

	Centroid bool
}

// Signature is an ordered set of semantic bindings.
type Signature struct {
	Entries []SignatureEntry
}

// Add appends e, or extends the mask of an existing entry for the same
// semantic. It returns the stored entry.
func (s *Signature) Add(e SignatureEntry) *SignatureEntry {
	if existing := s.Find(e.Semantic); existing != nil {
		existing.Mask = existing.Mask.Union(e.Mask)
		existing.Centroid = existing.Centroid || e.Centroid
		if !existing.HasSource && e.HasSource {
			existing.Source, existing.HasSource = e.Source, true
		}
		return existing
	}
	s.Entries = append(s.Entries, e)
	return &s.Entries[len(s.Entries)-1]
}

// Find returns the entry for sem, or nil.
func (s *Signature) Find(sem Semantic) *SignatureEntry {
	for i := range s.Entries {
		if s.Entries[i].Semantic == sem {
			return &s.Entries[i]
		}
	}
	return nil
}

// BySource returns the entry carrying legacy register r, or nil.
func (s *Signature) BySource(r d3d9.Register) *SignatureEntry {
	for i := range s.Entries {
		if s.Entries[i].HasSource && s.Entries[i].Source == r {
			return &s.Entries[i]
		}
	}
	return nil
}

// ByRegister returns the entry bound to target register reg, or nil.
func (s *Signature) ByRegister(reg uint32) *SignatureEntry {
	for i := range s.Entries {
		if s.Entries[i].Register == reg {
			return &s.Entries[i]
		}
	}
	return nil
}

// NextRegister returns the first register above every bound register.
func (s *Signature) NextRegister() uint32 {
	var next uint32
	for _, e := range s.Entries {
		next = max(next, e.Register+1)
	}
	return next
}

// Len returns the number of entries.
func (s *Signature) Len() int {
	return len(s.Entries)
}

// Clone returns a deep copy.
func (s *Signature) Clone() *Signature {
	if s == nil {
		return nil
	}
	return &Signature{Entries: append([]SignatureEntry(nil), s.Entries...)}
}

// HasPosition reports whether the signature carries a position.
func (s *Signature) HasPosition() bool {
	return s.Find(SemanticPosition) != nil
}

// HasFog reports whether the signature carries a dedicated fog value.
func (s *Signature) HasFog() bool {
	return s.Find(SemanticFog) != nil
}

// TexCoordMask returns the set of texture coordinate indices present.
func (s *Signature) TexCoordMask() uint16 {
	var m uint16
	for _, e := range s.Entries {
		if e.Semantic.Usage == d3d9.UsageTexCoord {
			m |= 1 << e.Semantic.Index
		}
	}
	return m
}

// CentroidMask returns the set of target registers interpolated at the
// centroid.
func (s *Signature) CentroidMask() uint32 {
	var m uint32
	for _, e := range s.Entries {
		if e.Centroid {
			m |= 1 << e.Register
		}
	}
	return m
}

// String lists the entries as "semantic:o<reg>.<mask>".
func (s *Signature) String() string {
	parts := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		parts[i] = fmt.Sprintf("%s:%d.%s", e.Semantic, e.Register, e.Mask)
	}
	return strings.Join(parts, " ")
}
