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

// Package asmx86 is a minimal x86-64 assembler: it emits machine code bytes
// directly into a bounded buffer, one method per instruction form needed by
// the rewriter (internal/rewrite), and never throws on overflow — it sets a
// sticky failed flag instead so callers can batch work and check once.
package asmx86

import "fmt"

// Register names a general-purpose 64-bit register by its 4-bit encoding.
// R8-R15 require a REX prefix to address.
type Register uint8

const (
	RAX Register = 0
	RCX Register = 1
	RDX Register = 2
	RBX Register = 3
	RSP Register = 4
	RBP Register = 5
	RSI Register = 6
	RDI Register = 7
	R8  Register = 8
	R9  Register = 9
	R10 Register = 10
	R11 Register = 11
	R12 Register = 12
	R13 Register = 13
	R14 Register = 14
	R15 Register = 15

	numGPRegisters = 16
)

func (r Register) String() string {
	names := [numGPRegisters]string{
		"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	}
	if int(r) >= len(names) {
		return fmt.Sprintf("r?%d", r)
	}
	return names[r]
}

// low3 is the register's 3-bit field used in ModRM/SIB/opcode+reg encodings.
func (r Register) low3() uint8 { return uint8(r) & 0x7 }

// needsRexBit reports whether this register needs the REX.B/.X/.R extension bit.
func (r Register) needsRexBit() bool { return r >= R8 }

// XMMRegister names one of the 16 SSE/AVX double-wide registers (xmm0-xmm15).
type XMMRegister uint8

const (
	XMM0 XMMRegister = iota
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15
)

func (r XMMRegister) low3() uint8      { return uint8(r) & 0x7 }
func (r XMMRegister) needsRexBit() bool { return r >= XMM8 }

// Immediate is a constant operand; Go's int64 stands in for the original's
// tagged "can this fit in 32 bits" immediate value.
type Immediate int64

// FitsInt32 reports whether the immediate can be encoded as a sign-extended
// 32-bit value (the same check the original mov() uses to decide between a
// 32-bit load and a 64-bit movabs).
func (i Immediate) FitsInt32() bool {
	return int64(i) == int64(int32(i))
}

// Indirect is a [base + disp] memory operand. RIP-relative and SIB-scaled
// addressing are not needed by the rewriter's guarded loads/stores/calls, so
// only base+displacement is modeled, matching assembler.h's usage from the
// rewriter (attribute offsets, scratch-stack slots, argument slots).
type Indirect struct {
	Base        Register
	Offset      int32
	hasBase     bool // set by Ind; the encoder always encodes Base and does not read this
}

// Ind builds a base+offset memory operand.
func Ind(base Register, offset int32) Indirect {
	return Indirect{Base: base, Offset: offset, hasBase: true}
}

// GenericRegister is a tagged union of a GP or XMM register, mirroring
// assembler::GenericRegister, used for live-out sets and push/pop macros.
type GenericRegister struct {
	isXMM bool
	gp    Register
	xmm   XMMRegister
}

func GR(r Register) GenericRegister     { return GenericRegister{gp: r} }
func XR(r XMMRegister) GenericRegister  { return GenericRegister{isXMM: true, xmm: r} }
func (g GenericRegister) IsXMM() bool   { return g.isXMM }
func (g GenericRegister) GP() Register  { return g.gp }
func (g GenericRegister) XMM() XMMRegister { return g.xmm }

func (g GenericRegister) String() string {
	if g.isXMM {
		return fmt.Sprintf("xmm%d", g.xmm)
	}
	return g.gp.String()
}
