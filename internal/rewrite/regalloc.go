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

package rewrite

import "github.com/pyston/pyston-v1-sub002/internal/asmx86"

// allocRequest describes what kind of location a consumer needs an RVar
// materialized into.
type allocRequest struct {
	anyReg      bool
	exceptReg   map[asmx86.Register]bool
	hasSpecific bool
	specific    asmx86.Register
	wantXMM     bool
}

func anyRegister() allocRequest { return allocRequest{anyReg: true} }

func specificRegister(r asmx86.Register) allocRequest {
	return allocRequest{hasSpecific: true, specific: r}
}

func anyExcept(except ...asmx86.Register) allocRequest {
	m := make(map[asmx86.Register]bool, len(except))
	for _, r := range except {
		m[r] = true
	}
	return allocRequest{anyReg: true, exceptReg: m}
}

var allocatableXMM = []asmx86.XMMRegister{
	asmx86.XMM0, asmx86.XMM1, asmx86.XMM2, asmx86.XMM3, asmx86.XMM4,
	asmx86.XMM5, asmx86.XMM6, asmx86.XMM7,
}

// regState tracks physical-register occupancy and the emit-phase cursor so
// the spill heuristic can ask RVars how far away their next use is.
// Emitting always proceeds in action order, so curIdx is simply updated as
// each action's emit closure runs.
type regState struct {
	rw       *Rewriter
	curIdx   int
	freeGP   map[asmx86.Register]bool // currently unoccupied allocatable GP regs
	resident map[asmx86.Register]*RVar

	freeXMM      map[asmx86.XMMRegister]bool
	residentXMM  map[asmx86.XMMRegister]*RVar
}

func newRegState(rw *Rewriter) *regState {
	rs := &regState{
		rw:          rw,
		resident:    make(map[asmx86.Register]*RVar),
		freeGP:      make(map[asmx86.Register]bool),
		residentXMM: make(map[asmx86.XMMRegister]*RVar),
		freeXMM:     make(map[asmx86.XMMRegister]bool),
	}
	for _, r := range allocatableGP {
		rs.freeGP[r] = true
	}
	for _, r := range allocatableXMM {
		rs.freeXMM[r] = true
	}
	for _, v := range rw.args {
		if v == nil {
			continue
		}
		if v.argLoc.Kind == LocRegister {
			rs.resident[v.argLoc.Reg] = v
			delete(rs.freeGP, v.argLoc.Reg)
		}
	}
	return rs
}

// pickSpillVictim chooses which resident register to evict: the one whose
// owning RVar's next use (from curIdx onward) is furthest away. Whether the
// owner has another location to fall back on is not considered in the
// choice; evict skips the spill-store when it does.
func (rs *regState) pickSpillVictim(avoid map[asmx86.Register]bool) asmx86.Register {
	var best asmx86.Register
	bestDist := -1
	found := false
	for _, r := range allocatableGP {
		if avoid[r] {
			continue
		}
		owner, ok := rs.resident[r]
		if !ok {
			continue
		}
		d := owner.nextUseDistance(rs.curIdx)
		if !found || d > bestDist {
			found = true
			bestDist = d
			best = r
		}
	}
	return best
}

// evict frees r, spilling its current occupant to a scratch slot if that
// occupant has no other location to fall back on.
func (rs *regState) evict(r asmx86.Register, asm *asmx86.Assembler) {
	owner, ok := rs.resident[r]
	if !ok {
		return
	}
	owner.removeLocation(RegLoc(r))
	delete(rs.resident, r)
	rs.freeGP[r] = true
	if len(owner.locs) == 0 && !owner.isConstant {
		slot := rs.rw.reserveScratch()
		asm.MovStore(r, asmx86.Ind(asmx86.RBP, owner_scratchBase(rs.rw, slot)))
		owner.scratchOffset = slot
		owner.hasScratch = true
		owner.addLocation(ScratchLoc(slot))
	}
}

// owner_scratchBase converts a logical scratch-cell index into the actual
// rbp-relative byte offset, anchored at the handle's reserved scratch area.
func owner_scratchBase(rw *Rewriter, cellIdx int32) int32 {
	return rw.handle.ScratchRspOffset() + cellIdx*8
}

func (rw *Rewriter) reserveScratch() int32 {
	for i, used := range rw.scratchUsed {
		if !used {
			rw.scratchUsed[i] = true
			return int32(i)
		}
	}
	rw.fail("scratch area exhausted (%d cells)", len(rw.scratchUsed))
	return 0
}

func (rw *Rewriter) releaseScratchCell(cellIdx int32) {
	if int(cellIdx) < len(rw.scratchUsed) {
		rw.scratchUsed[cellIdx] = false
	}
}

// allocateInto picks a free or evictable register satisfying req and
// returns it, materializing v's value into it (loading from wherever v
// currently lives, or from its constant payload).
func (rs *regState) allocateInto(v *RVar, req allocRequest, asm *asmx86.Assembler) asmx86.Register {
	if req.hasSpecific {
		r := req.specific
		if cur, ok := rs.resident[r]; ok && cur != v {
			rs.evict(r, asm)
		}
		rs.materializeInto(v, r, asm)
		return r
	}

	for _, r := range allocatableGP {
		if req.exceptReg[r] {
			continue
		}
		if rs.freeGP[r] {
			rs.materializeInto(v, r, asm)
			return r
		}
	}

	victim := rs.pickSpillVictim(req.exceptReg)
	rs.evict(victim, asm)
	rs.materializeInto(v, victim, asm)
	return victim
}

func (rs *regState) materializeInto(v *RVar, r asmx86.Register, asm *asmx86.Assembler) {
	if cur, ok := rs.resident[r]; ok && cur == v {
		return
	}
	delete(rs.freeGP, r)
	rs.resident[r] = v

	switch {
	case v.hasLocation(RegLoc(r)):
		// already there from a prior materialize call this action.
	case v.isConstant:
		asm.Mov(asmx86.Immediate(v.constValue), r, false)
	default:
		loaded := false
		for _, l := range v.locs {
			switch l.Kind {
			case LocRegister:
				asm.MovRR(l.Reg, r)
				loaded = true
			case LocScratch:
				asm.MovLoad(asmx86.Ind(asmx86.RBP, owner_scratchBase(rs.rw, l.Offset)), r, asmx86.MovQ)
				loaded = true
			case LocCallerStack:
				asm.MovLoad(asmx86.Ind(asmx86.RBP, l.Offset+16), r, asmx86.MovQ)
				loaded = true
			}
			if loaded {
				break
			}
		}
		if !loaded && v.isConstant {
			asm.Mov(asmx86.Immediate(v.constValue), r, false)
		}
	}
	v.addLocation(RegLoc(r))
	rs.rw.locToVar[RegLoc(r)] = v
}

// require materializes v into some register satisfying req without
// disturbing its other existing locations (a "get" rather than a "move").
func (rs *regState) require(v *RVar, req allocRequest, asm *asmx86.Assembler) asmx86.Register {
	if !req.hasSpecific && !req.anyReg {
		req.anyReg = true
	}
	if req.hasSpecific {
		for _, l := range v.locs {
			if l.Kind == LocRegister && l.Reg == req.specific {
				return l.Reg
			}
		}
		return rs.allocateInto(v, req, asm)
	}
	for _, l := range v.locs {
		if l.Kind == LocRegister && !req.exceptReg[l.Reg] {
			return l.Reg
		}
	}
	return rs.allocateInto(v, req, asm)
}

// allocateXMM picks a free XMM register for dest, evicting the
// furthest-future user if all are occupied. XMM values never spill to
// scratch (spec.md's slots only ever hold doubles transiently for the
// duration of a single attribute read), so eviction here always targets a
// value with no remaining use.
func (rs *regState) allocateXMM(dest *RVar, asm *asmx86.Assembler) asmx86.XMMRegister {
	for _, r := range allocatableXMM {
		if rs.freeXMM[r] {
			rs.residentXMM[r] = dest
			delete(rs.freeXMM, r)
			dest.addLocation(XMMLoc(r))
			return r
		}
	}
	var victim asmx86.XMMRegister
	bestDist := -1
	for _, r := range allocatableXMM {
		owner := rs.residentXMM[r]
		if owner == nil {
			continue
		}
		d := owner.nextUseDistance(rs.curIdx)
		if d > bestDist {
			bestDist = d
			victim = r
		}
	}
	if owner, ok := rs.residentXMM[victim]; ok {
		owner.removeLocation(XMMLoc(victim))
	}
	rs.residentXMM[victim] = dest
	dest.addLocation(XMMLoc(victim))
	return victim
}
