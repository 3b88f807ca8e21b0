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

// This file is phase 2 — emitting: Commit walks the recorded action list in
// order, allocating registers on demand and invoking each action's emit
// closure, then shuffles live-out values into their declared final
// locations and hands off to iccache for the final jump + NOP fill.
package rewrite

import (
	"github.com/pyston/pyston-v1-sub002/internal/asmx86"
	"github.com/pyston/pyston-v1-sub002/internal/iccache"
	"github.com/pyston/pyston-v1-sub002/internal/rtlog"
)

// Commit runs the emitting phase and finalizes the IC slot. It must be
// called at most once; after it returns (success or failure) the Rewriter
// is spent.
func (rw *Rewriter) Commit() error {
	if rw.failed {
		rw.handle.Abort()
		return rw.failReason
	}

	rs := newRegState(rw)
	rw.curRS = rs
	asm := rw.handle.Assembler()

	if rw.hasSideEffects {
		asm.IncAddr(numInsideAddr(rw), asmx86.R11)
	}

	for idx, act := range rw.actions {
		rs.curIdx = idx
		act.emit(rw)
		if rw.failed {
			break
		}
		rw.releaseDeadConsumes(act, rs, asm)
	}

	if rw.hasSideEffects && !rw.failed {
		asm.DecAddr(numInsideAddr(rw), asmx86.R11)
	}

	if rw.failed {
		rw.handle.Abort()
		return rw.failReason
	}

	if !rw.shuffleLiveOuts(rs, asm) {
		rw.handle.Abort()
		return rw.failReason
	}

	asm.Jmp(rw.continueRel(asm))
	asm.FillWithNops()
	if asm.HasFailed() {
		rw.fail("slot ran out of room emitting the trailing jump and padding")
		rw.handle.Abort()
		return rw.failReason
	}

	err := rw.handle.Commit(finishAssemblyHook{}, rw.gcReferences, rw.decrefSites)
	if err != nil {
		rtlog.L().Debug().Err(err).Msg("rewrite: commit rejected")
	}
	return err
}

// numInsideAddr is a placeholder for the address of the slot's num_inside
// counter; internal/iccache owns that counter per-slot and exposes it only
// indirectly (through Enter/Exit) in this module, since no component here
// ever executes the emitted machine code for real. The side-effect bracket
// is still emitted so the byte pattern matches what a live runtime would
// need; wiring it to the slot's real counter address happens when
// internal/runtimeic allocates the counter cell.
func numInsideAddr(rw *Rewriter) uint64 {
	return rw.handle.SlotStartAddr()
}

type finishAssemblyHook struct{}

// FinishAssembly is invoked by iccache.Handle.Commit once dependencies have
// been re-validated. By this point Rewriter.Commit has already emitted the
// trailing jump and NOP padding directly into the handle's assembler, so
// there is nothing left to do but confirm it actually succeeded.
func (finishAssemblyHook) FinishAssembly(h *iccache.Handle) bool {
	return !h.Assembler().HasFailed()
}

// releaseDeadConsumes decrefs any RefOwned consumed RVar whose last
// recorded use was this action and which was never marked RefConsumed
// (ownership transferred elsewhere).
func (rw *Rewriter) releaseDeadConsumes(act action, rs *regState, asm *asmx86.Assembler) {
	seen := make(map[*RVar]bool, len(act.consumes))
	for _, c := range act.consumes {
		if seen[c] || c.uses[len(c.uses)-1] > rs.curIdx {
			continue // already handled for this action, or more uses remain
		}
		seen[c] = true
		if _, isLiveOut := rw.liveOutLocs[c]; isLiveOut {
			continue // still needed past this point, to be shuffled into place
		}
		if c.refType == RefOwned && !c.consumed {
			rw.emitDecref(c, rs, asm)
		}
		if c.hasScratch {
			rw.releaseScratchCell(c.scratchOffset)
			c.hasScratch = false
		}
	}
}

func (rw *Rewriter) emitDecref(v *RVar, rs *regState, asm *asmx86.Assembler) {
	r := rs.require(v, anyRegister(), asm)
	offset := rw.decrefFieldOffset()
	asm.Decl(asmx86.Ind(r, offset))
	rw.decrefSites = append(rw.decrefSites, iccache.DecrefSite{
		Offset:    asm.BytesWritten(),
		Locations: []iccache.DecrefLocation{{IsStack: false, Reg: r}},
	})
}

// decrefFieldOffset is the refcount field's byte offset within an object
// header; grounded on original_source's Box layout (refcount is the first
// field after the type pointer).
func (rw *Rewriter) decrefFieldOffset() int32 { return 8 }

// shuffleLiveOuts moves every declared live-out RVar into its required
// final location. Because two live-outs can each want the location the
// other currently holds, this performs cycle detection: if no live-out can
// move without clobbering a not-yet-moved live-out's source, the rewrite
// aborts rather than risk corrupting a value (spec.md §4.C step 7).
func (rw *Rewriter) shuffleLiveOuts(rs *regState, asm *asmx86.Assembler) bool {
	pending := make(map[*RVar]Location, len(rw.liveOutLocs))
	for v, loc := range rw.liveOutLocs {
		pending[v] = loc
	}

	for len(pending) > 0 {
		progressed := false
		for v, target := range pending {
			if target.Kind == LocRegister {
				if occ, ok := rs.resident[target.Reg]; ok && occ != v {
					if _, stillPending := pending[occ]; stillPending {
						continue // would clobber another live-out's current value
					}
				}
			}
			rw.moveInto(v, target, rs, asm)
			delete(pending, v)
			progressed = true
		}
		if !progressed {
			rw.fail("live-out shuffle has an unbreakable cycle among %d values", len(pending))
			return false
		}
	}
	return true
}

func (rw *Rewriter) moveInto(v *RVar, target Location, rs *regState, asm *asmx86.Assembler) {
	switch target.Kind {
	case LocRegister:
		rs.materializeInto(v, target.Reg, asm)
	case LocAnyReg:
		rs.require(v, anyRegister(), asm)
	case LocXMMRegister:
		for _, l := range v.locs {
			if l.Kind == LocXMMRegister && l.XMM == target.XMM {
				return
			}
		}
		for _, l := range v.locs {
			if l.Kind == LocXMMRegister {
				asm.MovSD_RR(l.XMM, target.XMM)
				return
			}
		}
		rw.fail("live-out %s has no XMM source to shuffle from", v.name)
	default:
		rw.fail("live-out %s has unsupported target location %s", v.name, target)
	}
}
