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

package iccache

import "github.com/pyston/pyston-v1-sub002/internal/rtlog"

// Slot is a subregion of an IC's patchable area holding one specialized
// variant (ICSlotInfo in icinfo.h). code is a view into the IC's patchable
// region, not a separate allocation.
type Slot struct {
	ic     *ICInfo
	idx    int
	Offset int // offset of this slot within ic's region
	Size   int

	code []byte // view into ic.code[Offset:Offset+Size]

	// NumInside counts stack frames currently executing inside this slot's
	// committed code. A slot may only be rewritten while this is 0, and an
	// invalidation of a slot with NumInside>0 must defer releasing the
	// slot's embedded references until it drops back to 0.
	NumInside int
	Used      bool

	ownedRefs   []OwnedRef
	decrefSites []DecrefSite

	invalidators map[*Invalidator]struct{}

	pendingClear bool // set when invalidated while NumInside > 0
}

func newSlot(ic *ICInfo, idx, offset, size int) *Slot {
	return &Slot{
		ic:           ic,
		idx:          idx,
		Offset:       offset,
		Size:         size,
		code:         ic.code[offset : offset+size],
		invalidators: make(map[*Invalidator]struct{}),
	}
}

// addDependenceOn records the mutual reference between this slot and inv.
func (s *Slot) addDependenceOn(inv *Invalidator) {
	inv.addDependent(s)
}

// Enter marks one more frame as executing inside this slot's code. The
// emitted fast path does this via an `incl` bracketing the body when the IC
// has side effects (spec.md §4.C step 6); callers driving a simulated fast
// path call this explicitly instead of actually jumping into machine code.
func (s *Slot) Enter() { s.NumInside++ }

// Exit marks one frame as having left this slot's code. If the slot was
// invalidated while frames were still inside, the deferred clear completes
// here once the last frame leaves (spec.md §8 property 6).
func (s *Slot) Exit() {
	if s.NumInside == 0 {
		return
	}
	s.NumInside--
	if s.NumInside == 0 && s.pendingClear {
		s.releaseOwnedRefs()
		s.pendingClear = false
	}
}

func (s *Slot) releaseOwnedRefs() {
	for _, r := range s.ownedRefs {
		r.Release()
	}
	s.ownedRefs = nil
	s.decrefSites = nil
}

// clearDueToInvalidation is invoked by an Invalidator this slot depends on.
// It always scrubs the cross-reference immediately (the slot's contents are
// about to become unreachable from the fast path regardless), but only
// releases owned references right away if no frame is currently inside;
// otherwise the release is deferred to Exit.
func (s *Slot) clearDueToInvalidation(inv *Invalidator) {
	delete(s.invalidators, inv)
	inv.removeDependent(s)
	s.overwriteWithInvalidationHeader()
	if s.NumInside > 0 {
		s.pendingClear = true
		rtlog.L().Debug().Int("slot", s.idx).Msg("invalidation deferred: frames still inside")
		return
	}
	s.releaseOwnedRefs()
}

// clear is the manager-driven clear (ICInfo.clear / clearAll): same
// contract as clearDueToInvalidation but scrubs every invalidator this slot
// was depending on, not just one.
func (s *Slot) clear() {
	for inv := range s.invalidators {
		inv.removeDependent(s)
	}
	s.invalidators = make(map[*Invalidator]struct{})
	s.overwriteWithInvalidationHeader()
	if s.NumInside > 0 {
		s.pendingClear = true
		return
	}
	s.releaseOwnedRefs()
	s.Used = false
}

// overwriteWithInvalidationHeader writes `nop; jmp end-of-slot`
// (IC_INVALDITION_HEADER_SIZE in the original) so that any in-flight call
// that re-enters at the slot's start immediately falls through to the
// slow path rather than executing now-stale guarded code.
func (s *Slot) overwriteWithInvalidationHeader() {
	if len(s.code) < invalidationHeaderSize {
		return
	}
	s.code[0] = 0x90 // nop
	rel := int32(len(s.code) - invalidationHeaderSize)
	s.code[1] = 0xE9 // jmp rel32
	s.code[2] = byte(rel)
	s.code[3] = byte(rel >> 8)
	s.code[4] = byte(rel >> 16)
	s.code[5] = byte(rel >> 24)
}

const invalidationHeaderSize = 6
