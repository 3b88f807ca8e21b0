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

// This file is phase 1 — collecting: dispatch code (internal/dispatch)
// drives these methods to build up the action list without emitting a
// single byte yet.
package rewrite

import (
	"fmt"

	"github.com/pyston/pyston-v1-sub002/internal/asmx86"
)

func (rw *Rewriter) argLocation(i int) Location {
	if i < len(argABIOrder) {
		return RegLoc(argABIOrder[i])
	}
	// overflow args are passed on the caller's stack, 8 bytes apart,
	// starting right above the return address.
	return StackLoc(int32(8 * (i - len(argABIOrder) + 1)))
}

// GetArg returns the RVar for the i-th call argument. Its initial location
// is fixed by the calling convention; until done_guarding (the last
// recorded guard retires), that location must not move, so a guard failure
// can fall straight through to the slow path with arguments exactly where
// it expects them.
func (rw *Rewriter) GetArg(i int) *RVar {
	for len(rw.args) <= i {
		rw.args = append(rw.args, nil)
	}
	if rw.args[i] != nil {
		return rw.args[i]
	}
	v := rw.newVar(fmt.Sprintf("arg%d", i))
	v.isArg = true
	v.argLoc = rw.argLocation(i)
	v.locs = []Location{v.argLoc}
	rw.args[i] = v
	return v
}

// LoadConst returns the RVar for a constant value, reusing a previously
// loaded one if the same constant was already requested (loadConst's
// caching behavior).
func (rw *Rewriter) LoadConst(value int64) *RVar {
	if v, ok := rw.constCache[value]; ok {
		return v
	}
	v := rw.newVar(fmt.Sprintf("const%d", value))
	v.isConstant = true
	v.constValue = value
	v.refType = RefBorrowed
	rw.constCache[value] = v
	return v
}

// AddGuard records "rvar == value"; on emit this becomes a cmp + conditional
// jump to the slot's slow path if it does not hold.
func (rw *Rewriter) AddGuard(rvar *RVar, value int64) {
	rw.recordAction(ActionGuard, []*RVar{rvar}, nil, fmt.Sprintf("guard %s == %d", rvar.name, value), func(rw *Rewriter) {
		rw.emitGuard(rvar, value, asmx86.CondNotEqual)
	})
}

// AddGuardNotEq is the negated form of AddGuard.
func (rw *Rewriter) AddGuardNotEq(rvar *RVar, value int64) {
	rw.recordAction(ActionGuard, []*RVar{rvar}, nil, fmt.Sprintf("guard %s != %d", rvar.name, value), func(rw *Rewriter) {
		rw.emitGuard(rvar, value, asmx86.CondEqual)
	})
}

// AddAttrGuard records "*(rvar+offset) == value" (or "!= value" if negate).
// Duplicate (offset, value, negate) tuples against the same RVar are
// deduplicated: recording the same attribute guard twice is a no-op.
func (rw *Rewriter) AddAttrGuard(rvar *RVar, offset int32, value int64, negate bool) {
	if rvar.seenAttrGuard(offset, value, negate) {
		return
	}
	cc := asmx86.CondNotEqual
	if negate {
		cc = asmx86.CondEqual
	}
	desc := fmt.Sprintf("attrguard %s[%d] %s %d", rvar.name, offset, map[bool]string{true: "!=", false: "=="}[negate], value)
	rw.recordAction(ActionGuard, []*RVar{rvar}, nil, desc, func(rw *Rewriter) {
		rw.emitAttrGuard(rvar, offset, value, cc)
	})
}

// GetAttr records a quadword load from *(rvar+offset) into a fresh RVar.
func (rw *Rewriter) GetAttr(rvar *RVar, offset int32) *RVar {
	return rw.getAttrTyped(rvar, offset, asmx86.MovQ, "getAttr")
}

// GetAttrFloat/GetAttrDouble record a float/double load, tagging the
// destination as an XMM-resident RVar so register allocation reserves an
// XMM register rather than a GP one.
func (rw *Rewriter) GetAttrFloat(rvar *RVar, offset int32) *RVar {
	return rw.getAttrXMM(rvar, offset, true, "getAttrFloat")
}
func (rw *Rewriter) GetAttrDouble(rvar *RVar, offset int32) *RVar {
	return rw.getAttrXMM(rvar, offset, false, "getAttrDouble")
}

func (rw *Rewriter) getAttrTyped(rvar *RVar, offset int32, ty asmx86.MovType, debug string) *RVar {
	dest := rw.newVar(debug)
	rw.recordAction(ActionNormal, []*RVar{rvar}, dest, fmt.Sprintf("%s %s[%d]", debug, rvar.name, offset), func(rw *Rewriter) {
		rw.emitGetAttr(rvar, offset, dest, ty)
	})
	return dest
}

func (rw *Rewriter) getAttrXMM(rvar *RVar, offset int32, isFloat bool, debug string) *RVar {
	dest := rw.newVar(debug)
	dest.refType = RefBorrowed
	rw.recordAction(ActionNormal, []*RVar{rvar}, dest, fmt.Sprintf("%s %s[%d]", debug, rvar.name, offset), func(rw *Rewriter) {
		rw.emitGetAttrXMM(rvar, offset, dest, isFloat)
	})
	return dest
}

// SetAttr records a store of value into *(rvar+offset). This is a mutation:
// no further guards may be recorded on this rewrite after it.
func (rw *Rewriter) SetAttr(rvar *RVar, offset int32, value *RVar) {
	rw.recordAction(ActionMutation, []*RVar{rvar, value}, nil, fmt.Sprintf("setAttr %s[%d] = %s", rvar.name, offset, value.name), func(rw *Rewriter) {
		rw.emitSetAttr(rvar, offset, value)
	})
}

// CmpOp is the comparison operator for Cmp.
type CmpOp int

const (
	CmpEQ CmpOp = iota
	CmpNE
	CmpLT
	CmpLE
	CmpGT
	CmpGE
)

func (op CmpOp) condition() asmx86.ConditionCode {
	switch op {
	case CmpEQ:
		return asmx86.CondEqual
	case CmpNE:
		return asmx86.CondNotEqual
	case CmpLT:
		return asmx86.CondLess
	case CmpLE:
		return asmx86.CondNotGreater
	case CmpGT:
		return asmx86.CondGreater
	default:
		return asmx86.CondNotLess
	}
}

// Cmp records a comparison between two RVars, producing a boolean (0/1)
// RVar holding the result.
func (rw *Rewriter) Cmp(a *RVar, op CmpOp, b *RVar) *RVar {
	dest := rw.newVar("cmp")
	dest.refType = RefBorrowed
	rw.recordAction(ActionNormal, []*RVar{a, b}, dest, fmt.Sprintf("cmp %s %v %s", a.name, op, b.name), func(rw *Rewriter) {
		rw.emitCmp(a, op, b, dest)
	})
	return dest
}

// ToBool records "rvar != 0", used for truthiness checks.
func (rw *Rewriter) ToBool(rvar *RVar) *RVar {
	return rw.Cmp(rvar, CmpNE, rw.LoadConst(0))
}

// Add records "rvar + imm" producing a new RVar.
func (rw *Rewriter) Add(rvar *RVar, imm int64) *RVar {
	dest := rw.newVar("add")
	rw.recordAction(ActionNormal, []*RVar{rvar}, dest, fmt.Sprintf("add %s, %d", rvar.name, imm), func(rw *Rewriter) {
		rw.emitAdd(rvar, imm, dest)
	})
	return dest
}

// CallTarget is a resolved function pointer the rewriter can emit a direct
// or indirect call to.
type CallTarget struct {
	Name string
	Addr uint64
}

// Call records a call to target with the given argument RVars. If
// hasSideEffects is true the call is a mutation (it may run arbitrary code
// that invalidates assumptions the rewrite is relying on) and no further
// guards may be recorded afterward.
func (rw *Rewriter) Call(hasSideEffects bool, target CallTarget, args ...*RVar) *RVar {
	dest := rw.newVar("call:" + target.Name)
	kind := ActionNormal
	if hasSideEffects {
		kind = ActionMutation
	}
	rw.recordAction(kind, args, dest, fmt.Sprintf("call %s(%d args)", target.Name, len(args)), func(rw *Rewriter) {
		rw.emitCall(target, args, dest)
	})
	return dest
}

// Allocate reserves n contiguous 8-byte scratch cells and returns an RVar
// whose value is a pointer to the first cell.
func (rw *Rewriter) Allocate(n int) *RVar {
	dest := rw.newVar("allocate")
	rw.recordAction(ActionNormal, nil, dest, fmt.Sprintf("allocate %d cells", n), func(rw *Rewriter) {
		rw.emitAllocate(n, dest)
	})
	return dest
}

// AllocateAndCopy reserves n cells and memcpy's them from src at emit time.
func (rw *Rewriter) AllocateAndCopy(src *RVar, n int) *RVar {
	dest := rw.newVar("allocateAndCopy")
	rw.recordAction(ActionNormal, []*RVar{src}, dest, fmt.Sprintf("allocateAndCopy %d cells", n), func(rw *Rewriter) {
		rw.emitAllocateAndCopy(src, n, dest)
	})
	return dest
}

// AllocateAndCopyPlus1 reserves n+1 cells: cell 0 is set to first, and
// cells [1,n+1) are memcpy'd from rest.
func (rw *Rewriter) AllocateAndCopyPlus1(first *RVar, rest *RVar, n int) *RVar {
	dest := rw.newVar("allocateAndCopyPlus1")
	rw.recordAction(ActionNormal, []*RVar{first, rest}, dest, fmt.Sprintf("allocateAndCopyPlus1 %d cells", n), func(rw *Rewriter) {
		rw.emitAllocateAndCopyPlus1(first, rest, n, dest)
	})
	return dest
}
