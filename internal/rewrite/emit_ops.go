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

// emit_ops.go holds the per-action-kind emit bodies collect.go's
// recordAction closures call into. Each one pulls operands into registers
// on demand via the Rewriter's regState (held implicitly through the
// handle's single Assembler/regState pairing established in Commit) and
// writes the corresponding asmx86 instruction.
package rewrite

import (
	"github.com/pyston/pyston-v1-sub002/internal/asmx86"
)

// curRegState is set by Commit for the duration of the emitting loop; the
// action closures recorded during collecting don't carry a regState
// themselves (they're built before one exists), so they reach it here.
// Exactly one Rewriter is emitting at a time per goroutine-local call
// stack, matching the one-Commit-call-per-Rewriter contract.
func (rw *Rewriter) regState() *regState { return rw.curRS }

func (rw *Rewriter) emitGuard(rvar *RVar, value int64, failCond asmx86.ConditionCode) {
	rs := rw.regState()
	asm := rw.handle.Assembler()
	r := rs.require(rvar, anyRegister(), asm)
	imm := asmx86.Immediate(value)
	if imm.FitsInt32() {
		asm.CmpRI(r, imm)
	} else {
		scratch := rs.allocateInto(rw.newVar("guardimm"), anyExcept(r), asm)
		asm.Mov(imm, scratch, true)
		asm.CmpRR(r, scratch)
	}
	asm.JmpCond(rw.slowpathRel(asm), failCond)
}

func (rw *Rewriter) emitAttrGuard(rvar *RVar, offset int32, value int64, failCond asmx86.ConditionCode) {
	rs := rw.regState()
	asm := rw.handle.Assembler()
	r := rs.require(rvar, anyRegister(), asm)
	asm.CmpMI(asmx86.Ind(r, offset), asmx86.Immediate(value))
	asm.JmpCond(rw.slowpathRel(asm), failCond)
}

// slowpathRel computes the rel32 displacement from just after the jcc's
// opcode+displacement bytes (6 bytes total: 0F 8x + imm32) to the slot's
// slow path; since Commit copies the scratch buffer verbatim to its final
// slot address, addresses computed against SlotStartAddr are accurate.
func (rw *Rewriter) slowpathRel(asm *asmx86.Assembler) int32 {
	instEnd := int64(rw.handle.SlotStartAddr()) + int64(asm.CurInstPointer()) + 6
	return int32(int64(rw.handle.SlowpathStartAddr()) - instEnd)
}

func (rw *Rewriter) continueRel(asm *asmx86.Assembler) int32 {
	instEnd := int64(rw.handle.SlotStartAddr()) + int64(asm.CurInstPointer()) + 5
	return int32(int64(rw.handle.ContinueAddr()) - instEnd)
}

func (rw *Rewriter) emitGetAttr(rvar *RVar, offset int32, dest *RVar, ty asmx86.MovType) {
	rs := rw.regState()
	asm := rw.handle.Assembler()
	src := rs.require(rvar, anyRegister(), asm)
	destReg := rs.allocateInto(dest, anyExcept(src), asm)
	asm.MovLoad(asmx86.Ind(src, offset), destReg, ty)
}

func (rw *Rewriter) emitGetAttrXMM(rvar *RVar, offset int32, dest *RVar, isFloat bool) {
	rs := rw.regState()
	asm := rw.handle.Assembler()
	src := rs.require(rvar, anyRegister(), asm)
	xmm := rs.allocateXMM(dest, asm)
	if isFloat {
		asm.MovSSLoad(asmx86.Ind(src, offset), xmm)
		asm.Cvtss2sd(xmm, xmm)
	} else {
		asm.MovSDLoad(asmx86.Ind(src, offset), xmm)
	}
}

func (rw *Rewriter) emitSetAttr(rvar *RVar, offset int32, value *RVar) {
	rs := rw.regState()
	asm := rw.handle.Assembler()
	dst := rs.require(rvar, anyRegister(), asm)
	src := rs.require(value, anyExcept(dst), asm)
	asm.MovStore(src, asmx86.Ind(dst, offset))
	if value.refType == RefOwned {
		value.RefConsumed()
	}
}

func (rw *Rewriter) emitCmp(a *RVar, op CmpOp, b *RVar, dest *RVar) {
	rs := rw.regState()
	asm := rw.handle.Assembler()
	ra := rs.require(a, anyRegister(), asm)
	if b.isConstant {
		imm := asmx86.Immediate(b.constValue)
		if imm.FitsInt32() {
			asm.CmpRI(ra, imm)
		} else {
			rb := rs.require(b, anyExcept(ra), asm)
			asm.CmpRR(ra, rb)
		}
	} else {
		rb := rs.require(b, anyExcept(ra), asm)
		asm.CmpRR(ra, rb)
	}
	destReg := rs.allocateInto(dest, anyExcept(ra), asm)
	asm.SetCond(destReg, op.condition())
}

func (rw *Rewriter) emitAdd(rvar *RVar, imm int64, dest *RVar) {
	rs := rw.regState()
	asm := rw.handle.Assembler()
	src := rs.require(rvar, anyRegister(), asm)
	destReg := rs.allocateInto(dest, specificRegister(src), asm)
	asm.Add(asmx86.Immediate(imm), destReg)
}

func (rw *Rewriter) emitCall(target CallTarget, args []*RVar, dest *RVar) {
	rs := rw.regState()
	asm := rw.handle.Assembler()
	for i, a := range args {
		loc := rw.argLocation(i)
		if loc.Kind != LocRegister {
			rw.fail("call %s: more than %d arguments not yet supported", target.Name, len(argABIOrder))
			return
		}
		rs.materializeInto(a, loc.Reg, asm)
	}
	asm.EmitCall(target.Addr, asmx86.R11)
	if dest != nil {
		rs.materializeInto(dest, asmx86.RAX, asm)
	}
}

func (rw *Rewriter) emitAllocate(n int, dest *RVar) {
	rs := rw.regState()
	asm := rw.handle.Assembler()
	base := rw.reserveScratchRun(n)
	r := rs.allocateInto(dest, anyRegister(), asm)
	asm.Lea(asmx86.Ind(asmx86.RBP, owner_scratchBase(rw, base)), r)
}

func (rw *Rewriter) emitAllocateAndCopy(src *RVar, n int, dest *RVar) {
	rw.emitAllocate(n, dest)
	if rw.failed {
		return
	}
	rw.emitScratchMemcpy(src, dest, 0, n)
}

func (rw *Rewriter) emitAllocateAndCopyPlus1(first *RVar, rest *RVar, n int, dest *RVar) {
	rw.emitAllocate(n+1, dest)
	if rw.failed {
		return
	}
	rs := rw.regState()
	asm := rw.handle.Assembler()
	dst := rs.require(dest, anyRegister(), asm)
	v := rs.require(first, anyExcept(dst), asm)
	asm.MovStore(v, asmx86.Ind(dst, 0))
	rw.emitScratchMemcpy(rest, dest, 8, n)
}

// emitScratchMemcpy copies n 8-byte words from src (a pointer RVar) into
// dest+destOffset (a pointer RVar), one word at a time via a scratch
// register. n is always small (argument-count sized), so an unrolled loop
// is used rather than a real rep movsq loop.
func (rw *Rewriter) emitScratchMemcpy(src, dest *RVar, destOffset int32, n int) {
	rs := rw.regState()
	asm := rw.handle.Assembler()
	d := rs.require(dest, anyRegister(), asm)
	s := rs.require(src, anyExcept(d), asm)
	tmp := rs.allocateInto(rw.newVar("memcpytmp"), anyExcept(d, s), asm)
	for i := 0; i < n; i++ {
		off := int32(i * 8)
		asm.MovLoad(asmx86.Ind(s, off), tmp, asmx86.MovQ)
		asm.MovStore(tmp, asmx86.Ind(d, destOffset+off))
	}
}

func (rw *Rewriter) reserveScratchRun(n int) int32 {
	start := -1
	run := 0
	for i, used := range rw.scratchUsed {
		if used {
			run = 0
			continue
		}
		if run == 0 {
			start = i
		}
		run++
		if run == n {
			for j := start; j < start+n; j++ {
				rw.scratchUsed[j] = true
			}
			return int32(start)
		}
	}
	rw.fail("scratch area exhausted requesting %d contiguous cells", n)
	return 0
}
