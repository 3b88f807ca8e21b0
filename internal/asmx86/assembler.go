/*
 * Copyright 2021 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package asmx86

import (
	"encoding/binary"

	"github.com/rs/zerolog"

	"github.com/pyston/pyston-v1-sub002/internal/rtlog"
)

const (
	rexW uint8 = 0x08
	rexR uint8 = 0x04
	rexX uint8 = 0x02
	rexB uint8 = 0x01
	rexBase uint8 = 0x40
)

const (
	opcodeAdd uint8 = 0b000
	opcodeSub uint8 = 0b101
	opcodeCmp uint8 = 0b111
)

// Assembler emits x86-64 machine code into buf[0:len(buf)]. It never grows
// the buffer and it never panics on overflow: the first write that would
// cross the end sets failed and every write after that becomes a silent
// no-op, so that a caller emitting a long guarded sequence can check once at
// the end instead of threading an error return through every call.
type Assembler struct {
	buf    []byte
	cursor int
	failed bool
	log    zerolog.Logger
}

// NewAssembler wraps buf (which the caller owns — typically an IC slot's
// scratch buffer) for emission starting at offset 0.
func NewAssembler(buf []byte) *Assembler {
	return &Assembler{buf: buf, log: rtlog.L().With().Str("component", "asmx86").Logger()}
}

// HasFailed reports whether any emitted instruction overflowed the buffer.
func (a *Assembler) HasFailed() bool { return a.failed }

// BytesWritten is the current write cursor.
func (a *Assembler) BytesWritten() int { return a.cursor }

// BytesLeft is remaining buffer capacity.
func (a *Assembler) BytesLeft() int { return len(a.buf) - a.cursor }

// IsExactlyFull asserts the assembler wrote exactly to the end of its
// buffer — used by the rewriter after fillWithNops to catch under/overfill.
func (a *Assembler) IsExactlyFull() bool { return a.cursor == len(a.buf) }

// CurInstPointer returns the current write offset, usable as a label.
func (a *Assembler) CurInstPointer() int { return a.cursor }

// SetCurInstPointer rewinds/advances the cursor, used to patch an
// already-emitted forward jump once its target offset is known.
func (a *Assembler) SetCurInstPointer(off int) { a.cursor = off }

// Bytes returns the buffer backing this assembler (for committing into a slot).
func (a *Assembler) Bytes() []byte { return a.buf }

func (a *Assembler) reserve(n int) []byte {
	if a.failed || a.cursor+n > len(a.buf) {
		a.failed = true
		a.log.Debug().Int("need", n).Int("left", a.BytesLeft()).Msg("assembler overflow")
		return nil
	}
	b := a.buf[a.cursor : a.cursor+n]
	a.cursor += n
	return b
}

func (a *Assembler) emitByte(b byte) {
	dst := a.reserve(1)
	if dst != nil {
		dst[0] = b
	}
}

func (a *Assembler) emitBytes(bs ...byte) {
	dst := a.reserve(len(bs))
	if dst != nil {
		copy(dst, bs)
	}
}

func (a *Assembler) emitUint32(v uint32) {
	dst := a.reserve(4)
	if dst != nil {
		binary.LittleEndian.PutUint32(dst, v)
	}
}

func (a *Assembler) emitInt32(v int32)   { a.emitUint32(uint32(v)) }
func (a *Assembler) emitUint64(v uint64) {
	dst := a.reserve(8)
	if dst != nil {
		binary.LittleEndian.PutUint64(dst, v)
	}
}

// emitRex emits a REX prefix iff any bit (or forceREX, for uniform
// byte-register access) requires one.
func (a *Assembler) emitRex(w, r, x, b bool, forceREX bool) {
	var rex uint8
	if w {
		rex |= rexW
	}
	if r {
		rex |= rexR
	}
	if x {
		rex |= rexX
	}
	if b {
		rex |= rexB
	}
	if rex != 0 || forceREX {
		a.emitByte(rexBase | rex)
	}
}

func (a *Assembler) emitModRM(mod, reg, rm uint8) {
	a.emitByte((mod << 6) | ((reg & 0x7) << 3) | (rm & 0x7))
}

func (a *Assembler) emitSIB(scale, index, base uint8) {
	a.emitByte((scale << 6) | ((index & 0x7) << 3) | (base & 0x7))
}

// emitIndirect emits the ModRM(+SIB)(+disp) bytes addressing mem with the
// opcode-extension or register field reg. RSP/R12 as a base forces a SIB
// byte (no-index form); RBP/R13 as a base with zero displacement forces a
// disp8=0 encoding since mod=00,rm=101 means RIP-relative instead.
func (a *Assembler) emitIndirect(mem Indirect, reg uint8) {
	base := mem.Base.low3()
	needsSIB := base == RSP.low3()
	mustHaveDisp := base == RBP.low3()

	mod := a.modeFromOffset(mem.Offset, mustHaveDisp)

	if needsSIB {
		a.emitModRM(mod, reg, 0x4)
		a.emitSIB(0, 0x4, base) // no index, base = rsp/r12
	} else {
		a.emitModRM(mod, reg, base)
	}

	switch mod {
	case 0b01:
		a.emitByte(byte(int8(mem.Offset)))
	case 0b10:
		a.emitInt32(mem.Offset)
	}
}

func (a *Assembler) modeFromOffset(offset int32, mustHaveDisp bool) uint8 {
	if offset == 0 && !mustHaveDisp {
		return 0b00
	}
	if offset >= -128 && offset <= 127 {
		return 0b01
	}
	return 0b10
}

// ---- data movement ----------------------------------------------------

// Mov loads an immediate into dest. It emits the 32-bit `mov r32, imm32`
// form (which implicitly zero-extends into the 64-bit register) unless the
// immediate doesn't fit in 32 bits or forceWide64 is requested, in which
// case it emits a 64-bit `movabs r64, imm64`.
func (a *Assembler) Mov(imm Immediate, dest Register, forceWide64 bool) {
	if !forceWide64 && imm.FitsInt32() {
		a.emitRex(false, false, false, dest.needsRexBit(), false)
		a.emitByte(0xB8 + dest.low3())
		a.emitUint32(uint32(int32(imm)))
		return
	}
	a.emitRex(true, false, false, dest.needsRexBit(), false)
	a.emitByte(0xB8 + dest.low3())
	a.emitUint64(uint64(imm))
}

// MovStoreImm64 stores a sign-extended 32-bit immediate into a 64-bit memory
// location (`movq $imm32, mem` — a 64-bit store of a 32-bit value, per the
// original's comment on this being the most ambiguous mnemonic in the set).
func (a *Assembler) MovStoreImm64(imm Immediate, dest Indirect) {
	a.emitRex(true, false, false, dest.Base.needsRexBit(), false)
	a.emitByte(0xC7)
	a.emitIndirect(dest, 0)
	a.emitInt32(int32(imm))
}

// MovRR: mov dest, src (reg -> reg, 64-bit).
func (a *Assembler) MovRR(src, dest Register) {
	a.emitRex(true, src.needsRexBit(), false, dest.needsRexBit(), false)
	a.emitByte(0x89)
	a.emitModRM(0b11, src.low3(), dest.low3())
}

// MovStore: mov [dest], src (reg -> memory, 64-bit).
func (a *Assembler) MovStore(src Register, dest Indirect) {
	a.emitRex(true, src.needsRexBit(), false, dest.Base.needsRexBit(), false)
	a.emitByte(0x89)
	a.emitIndirect(dest, src.low3())
}

// MovLoad loads from src into dest using the given width/extension, covering
// every movQ/movL/movB/movz../movs.. form the rewriter needs for attribute
// and scratch-slot reads.
func (a *Assembler) MovLoad(src Indirect, dest Register, ty MovType) {
	rexW_ := false
	var opcodes []byte

	switch ty {
	case MovQ:
		rexW_, opcodes = true, []byte{0x8B}
	case MovL:
		rexW_, opcodes = false, []byte{0x8B}
	case MovB:
		rexW_, opcodes = false, []byte{0x8A}
	case MovZBL:
		rexW_, opcodes = false, []byte{0x0F, 0xB6}
	case MovSBL:
		rexW_, opcodes = false, []byte{0x0F, 0xBE}
	case MovZWL:
		rexW_, opcodes = false, []byte{0x0F, 0xB7}
	case MovSWL:
		rexW_, opcodes = false, []byte{0x0F, 0xBF}
	case MovZBQ:
		rexW_, opcodes = true, []byte{0x0F, 0xB6}
	case MovSBQ:
		rexW_, opcodes = true, []byte{0x0F, 0xBE}
	case MovZWQ:
		rexW_, opcodes = true, []byte{0x0F, 0xB7}
	case MovSWQ:
		rexW_, opcodes = true, []byte{0x0F, 0xBF}
	case MovSLQ:
		rexW_, opcodes = true, []byte{0x63}
	default:
		a.failed = true
		return
	}

	a.emitRex(rexW_, dest.needsRexBit(), false, src.Base.needsRexBit(), false)
	a.emitBytes(opcodes...)
	a.emitIndirect(src, dest.low3())
}

// MovSD/MovSS/Cvtss2sd cover the double/float moves the rewriter's
// getAttrFloat/getAttrDouble actions need.
func (a *Assembler) MovSD_RR(src, dest XMMRegister) {
	a.emitBytes(0xF2)
	a.emitRexXMM(dest, src)
	a.emitBytes(0x0F, 0x10)
	a.emitModRM(0b11, dest.low3(), src.low3())
}

func (a *Assembler) MovSDStore(src XMMRegister, dest Indirect) {
	a.emitBytes(0xF2)
	a.emitRexXMMMem(src, dest.Base)
	a.emitBytes(0x0F, 0x11)
	a.emitIndirect(dest, src.low3())
}

func (a *Assembler) MovSDLoad(src Indirect, dest XMMRegister) {
	a.emitBytes(0xF2)
	a.emitRexXMMMem(dest, src.Base)
	a.emitBytes(0x0F, 0x10)
	a.emitIndirect(src, dest.low3())
}

func (a *Assembler) MovSSLoad(src Indirect, dest XMMRegister) {
	a.emitBytes(0xF3)
	a.emitRexXMMMem(dest, src.Base)
	a.emitBytes(0x0F, 0x10)
	a.emitIndirect(src, dest.low3())
}

func (a *Assembler) Cvtss2sd(src, dest XMMRegister) {
	a.emitBytes(0xF3)
	a.emitRexXMM(dest, src)
	a.emitBytes(0x0F, 0x5A)
	a.emitModRM(0b11, dest.low3(), src.low3())
}

func (a *Assembler) emitRexXMM(dest, src XMMRegister) {
	a.emitRex(false, dest.needsRexBit(), false, src.needsRexBit(), false)
}
func (a *Assembler) emitRexXMMMem(reg XMMRegister, base Register) {
	a.emitRex(false, reg.needsRexBit(), false, base.needsRexBit(), false)
}

// ClearReg zeroes reg via `xor r32, r32`, which is shorter than a mov and
// still clears the full 64-bit register (the upper 32 bits are zeroed by
// any 32-bit write).
func (a *Assembler) ClearReg(reg Register) {
	a.emitRex(false, reg.needsRexBit(), false, reg.needsRexBit(), false)
	a.emitByte(0x31)
	a.emitModRM(0b11, reg.low3(), reg.low3())
}

// ---- stack -------------------------------------------------------------

func (a *Assembler) Push(reg Register) {
	a.emitRex(false, false, false, reg.needsRexBit(), false)
	a.emitByte(0x50 + reg.low3())
}

func (a *Assembler) Pop(reg Register) {
	a.emitRex(false, false, false, reg.needsRexBit(), false)
	a.emitByte(0x58 + reg.low3())
}

// ---- arithmetic ---------------------------------------------------------

func (a *Assembler) emitArith(imm Immediate, reg Register, opcode uint8) {
	a.emitRex(true, false, false, reg.needsRexBit(), false)
	if imm >= -128 && imm <= 127 {
		a.emitByte(0x83)
		a.emitModRM(0b11, opcode, reg.low3())
		a.emitByte(byte(int8(imm)))
		return
	}
	a.emitByte(0x81)
	a.emitModRM(0b11, opcode, reg.low3())
	a.emitInt32(int32(imm))
}

func (a *Assembler) Add(imm Immediate, reg Register) { a.emitArith(imm, reg, opcodeAdd) }
func (a *Assembler) Sub(imm Immediate, reg Register) { a.emitArith(imm, reg, opcodeSub) }

// Incl/Decl bump a 32-bit memory location by one (`incl`/`decl` in the
// original's AT&T-flavored naming) — used to bracket a fast path with the
// slot's num_inside counter.
func (a *Assembler) Incl(mem Indirect) {
	a.emitRex(false, false, false, mem.Base.needsRexBit(), false)
	a.emitByte(0xFF)
	a.emitIndirect(mem, 0)
}

func (a *Assembler) Decl(mem Indirect) {
	a.emitRex(false, false, false, mem.Base.needsRexBit(), false)
	a.emitByte(0xFF)
	a.emitIndirect(mem, 1)
}

// IncAddr/DecAddr bump the 32-bit counter at an absolute address, loading
// the address into scratch first (the `incl(Immediate)`/`decl(Immediate)`
// overloads in assembler.h, used when the counter's address — e.g. an IC
// slot's num_inside field — is a compile-time constant rather than
// reachable through an already-loaded base register).
func (a *Assembler) IncAddr(addr uint64, scratch Register) {
	a.Mov(Immediate(addr), scratch, true)
	a.Incl(Ind(scratch, 0))
}

func (a *Assembler) DecAddr(addr uint64, scratch Register) {
	a.Mov(Immediate(addr), scratch, true)
	a.Decl(Ind(scratch, 0))
}

// ---- control -------------------------------------------------------------

// Call emits a direct call with a 32-bit relative displacement already
// resolved by the caller (rel, computed against the post-instruction IP).
func (a *Assembler) Call(rel int32) {
	a.emitByte(0xE8)
	a.emitInt32(rel)
}

func (a *Assembler) Callq(reg Register) {
	a.emitRex(false, false, false, reg.needsRexBit(), false)
	a.emitByte(0xFF)
	a.emitModRM(0b11, 2, reg.low3())
}

func (a *Assembler) Jmp(rel int32) {
	a.emitByte(0xE9)
	a.emitInt32(rel)
}

func (a *Assembler) JmpIndirect(mem Indirect) {
	a.emitRex(false, false, false, mem.Base.needsRexBit(), false)
	a.emitByte(0xFF)
	a.emitIndirect(mem, 4)
}

func (a *Assembler) Jmpq(reg Register) {
	a.emitRex(false, false, false, reg.needsRexBit(), false)
	a.emitByte(0xFF)
	a.emitModRM(0b11, 4, reg.low3())
}

func (a *Assembler) JmpCond(rel int32, cc ConditionCode) {
	a.emitByte(0x0F)
	a.emitByte(0x80 + uint8(cc))
	a.emitInt32(rel)
}

func (a *Assembler) Retq() { a.emitByte(0xC3) }
func (a *Assembler) Leave() { a.emitByte(0xC9) }
func (a *Assembler) Nop()  { a.emitByte(0x90) }
func (a *Assembler) Trap() { a.emitByte(0xCC) }

// ---- compare / test / lea -------------------------------------------------

func (a *Assembler) CmpRR(reg1, reg2 Register) {
	a.emitRex(true, reg1.needsRexBit(), false, reg2.needsRexBit(), false)
	a.emitByte(0x39)
	a.emitModRM(0b11, reg1.low3(), reg2.low3())
}

func (a *Assembler) CmpRI(reg Register, imm Immediate) { a.emitArith(imm, reg, opcodeCmp) }

func (a *Assembler) CmpMI(mem Indirect, imm Immediate) {
	a.emitRex(true, false, false, mem.Base.needsRexBit(), false)
	if imm >= -128 && imm <= 127 {
		a.emitByte(0x83)
		a.emitIndirect(mem, opcodeCmp)
		a.emitByte(byte(int8(imm)))
		return
	}
	a.emitByte(0x81)
	a.emitIndirect(mem, opcodeCmp)
	a.emitInt32(int32(imm))
}

func (a *Assembler) CmpMR(mem Indirect, reg Register) {
	a.emitRex(true, reg.needsRexBit(), false, mem.Base.needsRexBit(), false)
	a.emitByte(0x39)
	a.emitIndirect(mem, reg.low3())
}

func (a *Assembler) Lea(mem Indirect, reg Register) {
	a.emitRex(true, reg.needsRexBit(), false, mem.Base.needsRexBit(), false)
	a.emitByte(0x8D)
	a.emitIndirect(mem, reg.low3())
}

func (a *Assembler) Test(reg1, reg2 Register) {
	a.emitRex(true, reg1.needsRexBit(), false, reg2.needsRexBit(), false)
	a.emitByte(0x85)
	a.emitModRM(0b11, reg1.low3(), reg2.low3())
}

// SetCond stores 0/1 into the low byte of reg according to condition cc.
// A REX prefix is always emitted (even when not strictly required) so that
// RSP/RBP/RSI/RDI address their low byte uniformly instead of AH/CH/DH/BH.
func (a *Assembler) SetCond(reg Register, cc ConditionCode) {
	a.emitRex(false, false, false, reg.needsRexBit(), true)
	a.emitByte(0x0F)
	a.emitByte(0x90 + uint8(cc))
	a.emitModRM(0b11, 0, reg.low3())
}

func (a *Assembler) Sete(reg Register)  { a.SetCond(reg, CondEqual) }
func (a *Assembler) Setne(reg Register) { a.SetCond(reg, CondNotEqual) }

// ---- macros ---------------------------------------------------------------

var nopRuns = [][]byte{
	{0x90},
	{0x66, 0x90},
	{0x0F, 0x1F, 0x00},
	{0x0F, 0x1F, 0x40, 0x00},
	{0x0F, 0x1F, 0x44, 0x00, 0x00},
	{0x66, 0x0F, 0x1F, 0x44, 0x00, 0x00},
	{0x0F, 0x1F, 0x80, 0x00, 0x00, 0x00, 0x00},
	{0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x66, 0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
}

// FillWithNops pads every remaining byte of the buffer with the
// longest-available multi-byte NOP forms, so that bytesWritten ends up
// exactly equal to the buffer size (isExactlyFull becomes true).
func (a *Assembler) FillWithNops() {
	a.FillWithNopsExcept(0)
}

// FillWithNopsExcept pads all but the last `reserve` bytes of the buffer.
func (a *Assembler) FillWithNopsExcept(reserve int) {
	if a.failed {
		return
	}
	for n := a.BytesLeft() - reserve; n > 0; n = a.BytesLeft() - reserve {
		run := len(nopRuns)
		if run > n {
			run = n
		}
		a.emitBytes(nopRuns[run-1]...)
	}
}

// SkipBytes advances the cursor by n bytes without writing anything
// (reserving space the caller will backpatch, e.g. a forward jump's rel32).
func (a *Assembler) SkipBytes(n int) {
	if a.reserve(n) == nil {
		return
	}
}

// EmitCall loads a 64-bit absolute function pointer into scratch and issues
// an indirect call, for targets too far away for a 32-bit relative call.
func (a *Assembler) EmitCall(funcAddr uint64, scratch Register) {
	a.Mov(Immediate(funcAddr), scratch, true)
	a.Callq(scratch)
}

// EmitBatchPush stores each register in to_push into successive 8-byte
// scratch slots starting at [RBP+scratchOffset], in order.
func (a *Assembler) EmitBatchPush(scratchOffset int32, toPush []GenericRegister) {
	for i, r := range toPush {
		off := scratchOffset + int32(8*i)
		if r.IsXMM() {
			a.MovSDStore(r.XMM(), Ind(RBP, off))
		} else {
			a.MovStore(r.GP(), Ind(RBP, off))
		}
	}
}

// EmitBatchPop is the inverse of EmitBatchPush.
func (a *Assembler) EmitBatchPop(scratchOffset int32, toPush []GenericRegister) {
	for i, r := range toPush {
		off := scratchOffset + int32(8*i)
		if r.IsXMM() {
			a.MovSDLoad(Ind(RBP, off), r.XMM())
		} else {
			a.MovLoad(Ind(RBP, off), r.GP(), MovQ)
		}
	}
}
