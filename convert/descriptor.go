// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package convert

import (
	"fmt"
	"slices"

	"golang.org/x/exp/maps"

	"github.com/gogpu/shaderconv/d3d9"
)

// Stage is the legacy shader class being converted.
type Stage uint8

const (
	// StageVertex is a programmable vertex shader.
	StageVertex Stage = iota

	// StagePixel is a programmable pixel shader.
	StagePixel

	// StageTLVertex is the synthesized vertex program for pre-transformed,
	// pre-lit vertices.
	StageTLVertex
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StagePixel:
		return "pixel"
	case StageTLVertex:
		return "tl-vertex"
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Settings is the conversion settings bit set supplied by the driver.
type Settings uint32

const (
	// SettingMulZeroGuard makes every multiply and dot product treat
	// anything times zero as zero, including infinities and NaNs.
	SettingMulZeroGuard Settings = 1 << iota
)

// Has reports whether s contains flag.
func (s Settings) Has(flag Settings) bool {
	return s&flag != 0
}

// Slot is an optional target register index.
type Slot struct {
	index uint32
	valid bool
}

// SlotAt returns the slot holding index i.
func SlotAt(i uint32) Slot {
	return Slot{index: i, valid: true}
}

// Index returns the register index and whether the slot is allocated.
func (s Slot) Index() (uint32, bool) {
	return s.index, s.valid
}

// Valid reports whether the slot is allocated.
func (s Slot) Valid() bool {
	return s.valid
}

// Equal reports whether two slots are identical.
func (s Slot) Equal(other Slot) bool {
	return s == other
}

// String returns "r<n>" or "-" for an unallocated slot.
func (s Slot) String() string {
	if !s.valid {
		return "-"
	}
	return fmt.Sprintf("r%d", s.index)
}

// Category is a class of legacy register that lives in the flat target
// temp file.
type Category uint8

// Register categories. All categories of one shader share a single counter.
const (
	CatTemp Category = iota
	CatTexture
	CatAddress
	CatLoop
	CatPredicate
	CatOutput
	CatColorOut
	CatDepth
	CatInputStage
)

var categoryNames = [...]string{
	"temp", "texture", "address", "loop", "predicate", "output", "color",
	"depth", "input-stage",
}

// String returns the category name.
func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// RegisterKey identifies a legacy register within its category.
type RegisterKey struct {
	Category Category
	Num      uint32
}

// String returns a compact "category:n" form.
func (k RegisterKey) String() string {
	return fmt.Sprintf("%s:%d", k.Category, k.Num)
}

// Staging keys for pixel system inputs in CatInputStage.
const (
	stagePosition = 0x100
	stageFace     = 0x101
)

// outputKey packs a legacy output register into a CatOutput number.
func outputKey(r d3d9.Register) uint32 {
	return uint32(r.Type)<<16 | r.Num
}

// RegisterFile maps legacy registers to slots of the flat target temp file.
// Slots below the base are the scratch block; user registers are allocated
// after it in first-reference order and keep their slot for the rest of
// the conversion.
type RegisterFile struct {
	base  uint32
	next  uint32
	slots map[RegisterKey]uint32
	order []RegisterKey
}

// NewRegisterFile creates a register file whose first user slot is base.
func NewRegisterFile(base uint32) *RegisterFile {
	return &RegisterFile{
		base:  base,
		next:  base,
		slots: make(map[RegisterKey]uint32),
	}
}

// Lookup returns the slot of k.
func (f *RegisterFile) Lookup(k RegisterKey) Slot {
	if i, ok := f.slots[k]; ok {
		return SlotAt(i)
	}
	return Slot{}
}

// Allocate returns the slot of k, allocating the next free slot on first
// reference.
func (f *RegisterFile) Allocate(k RegisterKey) uint32 {
	if i, ok := f.slots[k]; ok {
		return i
	}
	i := f.next
	f.next++
	f.slots[k] = i
	f.order = append(f.order, k)
	return i
}

// Base returns the first user slot.
func (f *RegisterFile) Base() uint32 {
	return f.base
}

// Count returns the total number of target temps, scratch block included.
func (f *RegisterFile) Count() uint32 {
	return f.next
}

// Keys returns the allocated keys in allocation order.
func (f *RegisterFile) Keys() []RegisterKey {
	return slices.Clone(f.order)
}

// Len returns the number of allocated user registers.
func (f *RegisterFile) Len() int {
	return len(f.order)
}

// Equal reports whether two register files hold the same allocation in the
// same order.
func (f *RegisterFile) Equal(other *RegisterFile) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.base == other.base && f.next == other.next &&
		slices.Equal(f.order, other.order) && maps.Equal(f.slots, other.slots)
}

// ConstantClass is a legacy constant register file.
type ConstantClass uint8

// Constant classes, mapped to constant buffers cb0, cb1 and cb2.
const (
	ConstFloat ConstantClass = iota
	ConstInt
	ConstBool
)

// String returns the class name.
func (c ConstantClass) String() string {
	switch c {
	case ConstFloat:
		return "float"
	case ConstInt:
		return "int"
	case ConstBool:
		return "bool"
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// Granularity returns how many legacy constants share one buffer register.
func (c ConstantClass) Granularity() uint32 {
	if c == ConstBool {
		return 4
	}
	return 1
}

// Unbounded marks a constant class whose buffer must be declared at its
// maximum size because of dynamic addressing.
const Unbounded = ^uint32(0)

// ConstantUsage is the usage report of one constant class.
type ConstantUsage struct {
	// Used reports whether any constant is fetched from the buffer.
	Used bool

	// Min and Max are the lowest and highest fetched legacy indices.
	Min, Max uint32

	// Dynamic is set when any reference uses relative addressing.
	Dynamic bool
}

// Registers returns the number of buffer registers the class needs, rounded
// to the class granularity, or Unbounded.
func (u ConstantUsage) Registers(c ConstantClass) uint32 {
	if u.Dynamic {
		return Unbounded
	}
	if !u.Used {
		return 0
	}
	g := c.Granularity()
	return (u.Max + g) / g
}

func (u *ConstantUsage) touch(i uint32) {
	if !u.Used {
		u.Used = true
		u.Min, u.Max = i, i
		return
	}
	u.Min = min(u.Min, i)
	u.Max = max(u.Max, i)
}

// InlineConstant is a def, defi or defb value.
type InlineConstant struct {
	Class  ConstantClass
	Index  uint32
	Values [4]uint32
}

// Conversion is a vertex element format fix-up performed in the prologue.
type Conversion uint8

// Vertex element conversions.
const (
	ConvertNone Conversion = iota
	// ConvertUIntToFloat reinterprets unsigned integer data as float.
	ConvertUIntToFloat
	// ConvertSIntToFloat reinterprets signed integer data as float.
	ConvertSIntToFloat
	// ConvertUDec3 unpacks 10:10:10 unsigned integers.
	ConvertUDec3
	// ConvertDec3N unpacks normalized signed 10:10:10 data.
	ConvertDec3N
	// ConvertSwapRB swaps red and blue of D3DCOLOR data.
	ConvertSwapRB
)

// InputElement is one entry of the reference vertex input layout.
type InputElement struct {
	Register   uint32
	Usage      d3d9.Usage
	UsageIndex uint8
	Conversion Conversion
}

// MaxInputElements bounds the vertex input layout.
const MaxInputElements = 16

// InputLayout describes the vertex buffer elements feeding a vertex shader.
type InputLayout struct {
	Elements []InputElement
}

// FogKind selects how the pixel stage computes its fog factor.
type FogKind uint8

// Fog factor sources.
const (
	FogOff FogKind = iota
	// FogVertex reads the factor from the dedicated fog input.
	FogVertex
	// FogSpecular borrows the alpha of the specular color input.
	FogSpecular
	// FogConstant uses 1.0 when no upstream value exists.
	FogConstant
	// FogTable computes the factor per pixel from depth.
	FogTable
)

// FogSource is the resolved fog input of a pixel shader.
type FogSource struct {
	Kind FogKind
	// Register is the target input register of FogVertex and FogSpecular.
	Register uint32
}

// ShaderDescriptor is the analyzer's usage report. It is created once per
// conversion and read-only afterwards.
type ShaderDescriptor struct {
	Stage   Stage
	Version d3d9.Version

	// Constants is indexed by ConstantClass.
	Constants [3]ConstantUsage

	// Inline holds captured def values per class, keyed by legacy index.
	Inline [3]map[uint32][4]uint32

	Registers *RegisterFile

	Inputs  Signature
	Outputs Signature

	// Samplers holds the texture kind of each used sampler stage.
	Samplers    [16]d3d9.TextureType
	SamplerMask uint16

	// LoopDepth is the deepest loop/rep nesting.
	LoopDepth  int
	LoopCount  int
	LabelCount int

	// RelativeInputs and RelativeOutputs are set when v# or o# are
	// relatively addressed; such registers live in indexable temps.
	RelativeInputs  bool
	RelativeOutputs bool
	InputRegisters  uint32
	OutputRegisters uint32

	ColorOutputs uint8
	WritesDepth  bool
	UsesPosition bool
	UsesFace     bool

	// Conversions holds the vertex input fix-ups, keyed by input register.
	Conversions map[uint32]Conversion

	// AddedSemantics lists pixel inputs missing from the upstream vertex
	// output layout.
	AddedSemantics []Semantic

	// InputMap binds legacy pixel input registers to target input
	// registers.
	InputMap map[d3d9.Register]uint32

	// PositionInput and FaceInput are the target input registers of the
	// pixel position and front-face system values, when used.
	PositionInput uint32
	FaceInput     uint32

	// Fog is where the pixel stage finds its fog factor.
	Fog FogSource

	Instructions []d3d9.Instruction
}

// Pixel reports whether the descriptor describes a pixel shader.
func (d *ShaderDescriptor) Pixel() bool {
	return d.Stage == StagePixel
}

// TempCount returns the total number of target temp registers.
func (d *ShaderDescriptor) TempCount() uint32 {
	return d.Registers.Count()
}

// InlineValue returns the captured value of constant index i of class c when
// it can be embedded in code.
func (d *ShaderDescriptor) InlineValue(c ConstantClass, i uint32) ([4]uint32, bool) {
	if c == ConstFloat && d.Constants[ConstFloat].Dynamic {
		return [4]uint32{}, false
	}
	v, ok := d.Inline[c][i]
	return v, ok
}

// InlineConstants returns every captured def in class and index order.
func (d *ShaderDescriptor) InlineConstants() []InlineConstant {
	var out []InlineConstant
	for c := ConstFloat; c <= ConstBool; c++ {
		indices := maps.Keys(d.Inline[c])
		slices.Sort(indices)
		for _, i := range indices {
			out = append(out, InlineConstant{Class: c, Index: i, Values: d.Inline[c][i]})
		}
	}
	return out
}
