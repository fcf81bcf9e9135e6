// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package sim interprets the arithmetic and control-flow subset of shader
// model 4 programs on a single invocation. It evaluates what the converter
// emits so numeric behavior can be checked without a GPU.
package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/shaderconv/dxbc"
)

// Vec is a four-component register holding raw 32-bit values.
type Vec [4]uint32

// F returns a float vector.
func F(x, y, z, w float32) Vec {
	return Vec{math.Float32bits(x), math.Float32bits(y), math.Float32bits(z), math.Float32bits(w)}
}

// Float returns component i as a float.
func (v Vec) Float(i int) float32 {
	return math.Float32frombits(v[i])
}

// Floats returns the vector as floats.
func (v Vec) Floats() [4]float32 {
	return [4]float32{v.Float(0), v.Float(1), v.Float(2), v.Float(3)}
}

// SampleFunc answers texture reads. op is the sampling opcode; ref is the
// comparison value of sample_c, the LOD of sample_l or the bias of sample_b.
type SampleFunc func(op dxbc.Opcode, resource, sampler uint32, coord [4]float32, ref float32) [4]float32

// ErrStepLimit is returned when execution exceeds Machine.MaxSteps.
var ErrStepLimit = errors.New("sim: step limit exceeded")

// Machine is one shader invocation.
type Machine struct {
	Temps        []Vec
	Indexable    map[uint32][]Vec
	Inputs       []Vec
	GSInputs     [][]Vec // [vertex][register]
	Outputs      []Vec
	ConstBuffers map[uint32][]Vec
	Depth        float32

	Discarded bool
	// Emitted collects the outputs of each geometry emit.
	Emitted [][]Vec
	Cuts    int

	Sample   SampleFunc
	MaxSteps int

	code   []dxbc.DecodedInstruction
	match  map[int]int
	labels map[uint32]int
}

// New prepares a machine for p. Registers are sized by its declarations.
func New(p *dxbc.Program) (*Machine, error) {
	m := &Machine{
		Indexable:    make(map[uint32][]Vec),
		ConstBuffers: make(map[uint32][]Vec),
		MaxSteps:     1 << 20,
		match:        make(map[int]int),
		labels:       make(map[uint32]int),
	}
	for _, ins := range p.Declarations() {
		switch ins.Opcode {
		case dxbc.OpDclTemps:
			m.Temps = make([]Vec, ins.Extra[0])
		case dxbc.OpDclIndexableTemp:
			m.Indexable[ins.Extra[0]] = make([]Vec, ins.Extra[1])
		case dxbc.OpDclConstantBuffer:
			op := ins.Operands[0]
			m.ConstBuffers[op.Indices[0].Imm] = make([]Vec, op.Indices[1].Imm)
		}
	}
	m.code = p.Code()
	if err := m.link(); err != nil {
		return nil, err
	}
	return m, nil
}

// link matches block-structured flow control and records label positions.
func (m *Machine) link() error {
	type open struct {
		op dxbc.Opcode
		pc int
	}
	var stack []open
	for pc, ins := range m.code {
		switch ins.Opcode {
		case dxbc.OpIf, dxbc.OpLoop:
			stack = append(stack, open{ins.Opcode, pc})
		case dxbc.OpElse:
			if len(stack) == 0 || stack[len(stack)-1].op != dxbc.OpIf {
				return fmt.Errorf("sim: else without if at %d", pc)
			}
			m.match[stack[len(stack)-1].pc] = pc
			stack[len(stack)-1] = open{dxbc.OpElse, pc}
		case dxbc.OpEndIf:
			if len(stack) == 0 || stack[len(stack)-1].op == dxbc.OpLoop {
				return fmt.Errorf("sim: endif without if at %d", pc)
			}
			m.match[stack[len(stack)-1].pc] = pc
			stack = stack[:len(stack)-1]
		case dxbc.OpEndLoop:
			if len(stack) == 0 || stack[len(stack)-1].op != dxbc.OpLoop {
				return fmt.Errorf("sim: endloop without loop at %d", pc)
			}
			start := stack[len(stack)-1].pc
			m.match[start] = pc
			m.match[pc] = start
			stack = stack[:len(stack)-1]
		case dxbc.OpLabel:
			m.labels[ins.Operands[0].Reg()] = pc
		}
	}
	if len(stack) != 0 {
		return fmt.Errorf("sim: %d unterminated blocks", len(stack))
	}
	return nil
}

// enclosingLoop returns the pc of the endloop closing the loop around pc.
func (m *Machine) enclosingLoop(pc int) (int, bool) {
	depth := 0
	for i := pc + 1; i < len(m.code); i++ {
		switch m.code[i].Opcode {
		case dxbc.OpLoop:
			depth++
		case dxbc.OpEndLoop:
			if depth == 0 {
				return i, true
			}
			depth--
		}
	}
	return 0, false
}

// Run executes the program from its first instruction.
func (m *Machine) Run() error {
	var calls []int
	steps := 0
	pc := 0
	for pc < len(m.code) {
		steps++
		if steps > m.MaxSteps {
			return ErrStepLimit
		}
		ins := m.code[pc]
		next := pc + 1
		switch ins.Opcode {
		case dxbc.OpIf:
			if !m.test(ins) {
				end := m.match[pc]
				next = end + 1
			}
		case dxbc.OpElse:
			next = m.match[pc] + 1
		case dxbc.OpEndIf, dxbc.OpLoop, dxbc.OpNop:
		case dxbc.OpEndLoop:
			next = m.match[pc] + 1
		case dxbc.OpBreak, dxbc.OpBreakc:
			if ins.Opcode == dxbc.OpBreak || m.test(ins) {
				end, ok := m.enclosingLoop(pc)
				if !ok {
					return fmt.Errorf("sim: break outside loop at %d", pc)
				}
				next = end + 1
			}
		case dxbc.OpContinue, dxbc.OpContinuec:
			if ins.Opcode == dxbc.OpContinue || m.test(ins) {
				end, ok := m.enclosingLoop(pc)
				if !ok {
					return fmt.Errorf("sim: continue outside loop at %d", pc)
				}
				next = m.match[end] + 1
			}
		case dxbc.OpCall, dxbc.OpCallc:
			if ins.Opcode == dxbc.OpCall || m.test(ins) {
				target, ok := m.labels[ins.Operands[len(ins.Operands)-1].Reg()]
				if !ok {
					return fmt.Errorf("sim: call to undefined label at %d", pc)
				}
				calls = append(calls, next)
				next = target + 1
			}
		case dxbc.OpLabel:
			// Falling into a subroutine body ends the main program.
			if len(calls) == 0 {
				return nil
			}
		case dxbc.OpRet, dxbc.OpRetc:
			if ins.Opcode == dxbc.OpRet || m.test(ins) {
				if len(calls) == 0 {
					return nil
				}
				next = calls[len(calls)-1]
				calls = calls[:len(calls)-1]
			}
		case dxbc.OpDiscard:
			if m.test(ins) {
				m.Discarded = true
				return nil
			}
		case dxbc.OpEmit:
			m.Emitted = append(m.Emitted, append([]Vec(nil), m.Outputs...))
		case dxbc.OpCut:
			m.Cuts++
		default:
			if err := m.exec(ins); err != nil {
				return fmt.Errorf("sim: %s at %d: %w", ins.Opcode, pc, err)
			}
		}
		pc = next
	}
	return nil
}

func (m *Machine) test(ins dxbc.DecodedInstruction) bool {
	v := m.read(ins.Operands[0], false)
	if ins.NonZero {
		return v[0] != 0
	}
	return v[0] == 0
}

func (m *Machine) index(idx dxbc.Index) uint32 {
	i := idx.Imm
	if idx.Rel != nil {
		i += m.read(*idx.Rel, true)[0]
	}
	return i
}

func grow(regs []Vec, n uint32) []Vec {
	for uint32(len(regs)) <= n {
		regs = append(regs, Vec{})
	}
	return regs
}

// ref returns the storage of a register operand.
func (m *Machine) ref(o dxbc.Operand) (*Vec, error) {
	switch o.Type {
	case dxbc.OperandTemp:
		n := m.index(o.Indices[0])
		m.Temps = grow(m.Temps, n)
		return &m.Temps[n], nil
	case dxbc.OperandInput:
		if len(o.Indices) == 2 {
			v, r := m.index(o.Indices[0]), m.index(o.Indices[1])
			if int(v) >= len(m.GSInputs) {
				return nil, fmt.Errorf("input vertex %d not provided", v)
			}
			m.GSInputs[v] = grow(m.GSInputs[v], r)
			return &m.GSInputs[v][r], nil
		}
		n := m.index(o.Indices[0])
		m.Inputs = grow(m.Inputs, n)
		return &m.Inputs[n], nil
	case dxbc.OperandOutput:
		n := m.index(o.Indices[0])
		m.Outputs = grow(m.Outputs, n)
		return &m.Outputs[n], nil
	case dxbc.OperandIndexableTemp:
		x, i := m.index(o.Indices[0]), m.index(o.Indices[1])
		regs := m.Indexable[x]
		if int(i) >= len(regs) {
			return nil, fmt.Errorf("x%d[%d] out of range", x, i)
		}
		return &regs[i], nil
	case dxbc.OperandConstBuffer:
		slot, i := m.index(o.Indices[0]), m.index(o.Indices[1])
		cb := m.ConstBuffers[slot]
		if int(i) >= len(cb) {
			return nil, fmt.Errorf("cb%d[%d] out of range", slot, i)
		}
		return &cb[i], nil
	}
	return nil, fmt.Errorf("unsupported operand type %d", o.Type)
}

// read evaluates a source operand with swizzle and modifiers. Integer reads
// negate in two's complement.
func (m *Machine) read(o dxbc.Operand, integer bool) Vec {
	var raw Vec
	switch o.Type {
	case dxbc.OperandImm32:
		raw = Vec(o.Imm)
		if o.Components == 1 {
			raw = Vec{o.Imm[0], o.Imm[0], o.Imm[0], o.Imm[0]}
		}
	case dxbc.OperandNull:
	default:
		p, err := m.ref(o)
		if err != nil {
			return Vec{}
		}
		raw = *p
	}
	var v Vec
	for i := 0; i < 4; i++ {
		if o.Type == dxbc.OperandImm32 {
			v[i] = raw[i]
		} else {
			v[i] = raw[o.Component(i)]
		}
		if o.Modifier&dxbc.ModAbs != 0 {
			if integer {
				if int32(v[i]) < 0 {
					v[i] = uint32(-int32(v[i]))
				}
			} else {
				v[i] &^= 1 << 31
			}
		}
		if o.Modifier&dxbc.ModNeg != 0 {
			if integer {
				v[i] = uint32(-int32(v[i]))
			} else {
				v[i] ^= 1 << 31
			}
		}
	}
	return v
}

func (m *Machine) write(o dxbc.Operand, v Vec, sat bool) error {
	if o.Type == dxbc.OperandNull {
		return nil
	}
	if o.Type == dxbc.OperandOutputDepth {
		f := math.Float32frombits(v[0])
		if sat {
			f = saturate(f)
		}
		m.Depth = f
		return nil
	}
	p, err := m.ref(o)
	if err != nil {
		return err
	}
	mask := o.Mask
	if o.Mode != dxbc.SelectMask {
		mask = dxbc.MaskXYZW
	}
	for i := 0; i < 4; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		if sat {
			p[i] = math.Float32bits(saturate(math.Float32frombits(v[i])))
		} else {
			p[i] = v[i]
		}
	}
	return nil
}

func saturate(f float32) float32 {
	// NaN saturates to zero.
	if !(f > 0) {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func boolBits(b bool) uint32 {
	if b {
		return 0xFFFFFFFF
	}
	return 0
}

func (m *Machine) exec(ins dxbc.DecodedInstruction) error {
	ops := ins.Operands
	dst := ops[0]

	switch ins.Opcode {
	case dxbc.OpSinCos:
		a := m.read(ops[2], false)
		var s, c Vec
		for i := 0; i < 4; i++ {
			f := float64(a.Float(i))
			s[i] = math.Float32bits(float32(math.Sin(f)))
			c[i] = math.Float32bits(float32(math.Cos(f)))
		}
		if err := m.write(ops[0], s, ins.Saturate); err != nil {
			return err
		}
		return m.write(ops[1], c, ins.Saturate)
	case dxbc.OpDp2, dxbc.OpDp3, dxbc.OpDp4:
		n := int(ins.Opcode-dxbc.OpDp2) + 2
		a, b := m.read(ops[1], false), m.read(ops[2], false)
		var sum float32
		for i := 0; i < n; i++ {
			sum += a.Float(i) * b.Float(i)
		}
		r := math.Float32bits(sum)
		return m.write(dst, Vec{r, r, r, r}, ins.Saturate)
	case dxbc.OpSample, dxbc.OpSampleC, dxbc.OpSampleCLZ, dxbc.OpSampleL, dxbc.OpSampleB, dxbc.OpSampleD:
		return m.sample(ins)
	}

	integer := isInteger(ins.Opcode)
	srcs := make([]Vec, len(ops)-1)
	for i, o := range ops[1:] {
		srcs[i] = m.read(o, integer && !(ins.Opcode == dxbc.OpMovc && i > 0))
	}
	var out Vec
	for i := 0; i < 4; i++ {
		r, err := lane(ins.Opcode, srcs, i)
		if err != nil {
			return err
		}
		out[i] = r
	}
	return m.write(dst, out, ins.Saturate)
}

func isInteger(op dxbc.Opcode) bool {
	switch op {
	case dxbc.OpIAdd, dxbc.OpINeg, dxbc.OpIEq, dxbc.OpINe, dxbc.OpILt, dxbc.OpIGe,
		dxbc.OpIShl, dxbc.OpIShr, dxbc.OpUShr, dxbc.OpItoF, dxbc.OpUtoF,
		dxbc.OpAnd, dxbc.OpOr, dxbc.OpXor, dxbc.OpNot, dxbc.OpIMax, dxbc.OpIMin,
		dxbc.OpIMul, dxbc.OpIMad, dxbc.OpULt, dxbc.OpUGe, dxbc.OpMovc:
		return true
	}
	return false
}

func lane(op dxbc.Opcode, s []Vec, i int) (uint32, error) {
	f := func(k int) float32 { return s[k].Float(i) }
	u := func(k int) uint32 { return s[k][i] }
	fb := math.Float32bits
	switch op {
	case dxbc.OpMov:
		return u(0), nil
	case dxbc.OpMovc:
		if u(0) != 0 {
			return u(1), nil
		}
		return u(2), nil
	case dxbc.OpAdd:
		return fb(f(0) + f(1)), nil
	case dxbc.OpMul:
		return fb(f(0) * f(1)), nil
	case dxbc.OpMad:
		return fb(f(0)*f(1) + f(2)), nil
	case dxbc.OpDiv:
		return fb(f(0) / f(1)), nil
	case dxbc.OpMin:
		return fb(float32(math.Min(float64(f(0)), float64(f(1))))), nil
	case dxbc.OpMax:
		return fb(float32(math.Max(float64(f(0)), float64(f(1))))), nil
	case dxbc.OpEq:
		return boolBits(f(0) == f(1)), nil
	case dxbc.OpNe:
		return boolBits(f(0) != f(1)), nil
	case dxbc.OpLt:
		return boolBits(f(0) < f(1)), nil
	case dxbc.OpGe:
		return boolBits(f(0) >= f(1)), nil
	case dxbc.OpFrc:
		x := float64(f(0))
		return fb(float32(x - math.Floor(x))), nil
	case dxbc.OpRoundNE:
		return fb(float32(math.RoundToEven(float64(f(0))))), nil
	case dxbc.OpRoundNI:
		return fb(float32(math.Floor(float64(f(0))))), nil
	case dxbc.OpRoundPI:
		return fb(float32(math.Ceil(float64(f(0))))), nil
	case dxbc.OpRoundZ:
		return fb(float32(math.Trunc(float64(f(0))))), nil
	case dxbc.OpRsq:
		return fb(float32(1 / math.Sqrt(float64(f(0))))), nil
	case dxbc.OpSqrt:
		return fb(float32(math.Sqrt(float64(f(0))))), nil
	case dxbc.OpExp:
		return fb(float32(math.Exp2(float64(f(0))))), nil
	case dxbc.OpLog:
		return fb(float32(math.Log2(float64(f(0))))), nil
	case dxbc.OpDerivRtx, dxbc.OpDerivRty:
		return 0, nil
	case dxbc.OpFtoI:
		return uint32(ftoi(f(0))), nil
	case dxbc.OpFtoU:
		return ftou(f(0)), nil
	case dxbc.OpItoF:
		return fb(float32(int32(u(0)))), nil
	case dxbc.OpUtoF:
		return fb(float32(u(0))), nil
	case dxbc.OpIAdd:
		return u(0) + u(1), nil
	case dxbc.OpIMul:
		return u(0) * u(1), nil
	case dxbc.OpIMad:
		return u(0)*u(1) + u(2), nil
	case dxbc.OpINeg:
		return uint32(-int32(u(0))), nil
	case dxbc.OpIMax:
		return uint32(max(int32(u(0)), int32(u(1)))), nil
	case dxbc.OpIMin:
		return uint32(min(int32(u(0)), int32(u(1)))), nil
	case dxbc.OpIEq:
		return boolBits(u(0) == u(1)), nil
	case dxbc.OpINe:
		return boolBits(u(0) != u(1)), nil
	case dxbc.OpILt:
		return boolBits(int32(u(0)) < int32(u(1))), nil
	case dxbc.OpIGe:
		return boolBits(int32(u(0)) >= int32(u(1))), nil
	case dxbc.OpULt:
		return boolBits(u(0) < u(1)), nil
	case dxbc.OpUGe:
		return boolBits(u(0) >= u(1)), nil
	case dxbc.OpIShl:
		return u(0) << (u(1) & 31), nil
	case dxbc.OpIShr:
		return uint32(int32(u(0)) >> (u(1) & 31)), nil
	case dxbc.OpUShr:
		return u(0) >> (u(1) & 31), nil
	case dxbc.OpAnd:
		return u(0) & u(1), nil
	case dxbc.OpOr:
		return u(0) | u(1), nil
	case dxbc.OpXor:
		return u(0) ^ u(1), nil
	case dxbc.OpNot:
		return ^u(0), nil
	}
	return 0, fmt.Errorf("unsupported opcode")
}

func ftoi(f float32) int32 {
	switch {
	case f != f:
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func ftou(f float32) uint32 {
	switch {
	case !(f > 0):
		return 0
	case f >= math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(f)
}

func (m *Machine) sample(ins dxbc.DecodedInstruction) error {
	ops := ins.Operands
	if m.Sample == nil {
		return fmt.Errorf("no sampler callback")
	}
	coord := m.read(ops[1], false).Floats()
	res := ops[2]
	sampler := ops[3].Reg()
	var ref float32
	if len(ops) > 4 {
		ref = m.read(ops[4], false).Float(0)
	}
	texel := m.Sample(ins.Opcode, res.Reg(), sampler, coord, ref)
	raw := F(texel[0], texel[1], texel[2], texel[3])
	var v Vec
	for i := 0; i < 4; i++ {
		v[i] = raw[res.Component(i)]
	}
	if ins.Opcode == dxbc.OpSampleC || ins.Opcode == dxbc.OpSampleCLZ {
		v = Vec{raw[0], raw[0], raw[0], raw[0]}
	}
	return m.write(ops[0], v, ins.Saturate)
}
