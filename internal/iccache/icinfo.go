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

import (
	"github.com/pkg/errors"

	"github.com/pyston/pyston-v1-sub002/internal/asmx86"
	"github.com/pyston/pyston-v1-sub002/internal/rtlog"
)

// MegamorphicThreshold caps how many times a single IC may be rewritten
// before further rewrites are disabled entirely (spec.md §6 tunables).
const MegamorphicThreshold = 100

// RetryBackoffMax caps the exponential retry back-off counter.
const RetryBackoffMax = 1024

// headroomPerSlot is added per slot when sizing a rewrite region that has
// been rewritten fewer times than it has slots (spec.md §4.B size heuristic).
const headroomPerSlot = 30

// maxSuggestedSize caps calculateSuggestedSize's output.
const maxSuggestedSize = 4096

// ICInfo is the bookkeeping for one patched call site: the address range
// delimiting the patchable region and the slow-path call, its slots, and
// the eviction/back-off/megamorphic state shared across all of them.
type ICInfo struct {
	StartAddr           uint64
	SlowpathStartAddr   uint64
	ContinueAddr        uint64
	SlowpathReturnAddr  uint64
	CallingConv         CallingConv
	LiveOuts            LiveOutSet
	ScratchRspOffset    int32
	ScratchSize         int
	DebugName           string

	code []byte // the full patchable region, start_addr..start_addr+len(code)

	slots         []*Slot
	nextSlotToTry int

	retryIn      int
	retryBackoff int
	timesRewritten int

	// globalDecrefLocations are released on every path through this IC
	// regardless of which slot/slow-path ran (ic_global_decref_locations).
	globalDecrefLocations []DecrefLocation
}

func newICInfo(startAddr, slowpathStart, continueAddr, slowpathReturnAddr uint64, code []byte,
	scratchRspOffset int32, scratchSize int, callingConv CallingConv, liveOuts LiveOutSet,
	globalDecrefLocations []DecrefLocation, debugName string) *ICInfo {
	ic := &ICInfo{
		StartAddr:             startAddr,
		SlowpathStartAddr:     slowpathStart,
		ContinueAddr:          continueAddr,
		SlowpathReturnAddr:    slowpathReturnAddr,
		CallingConv:           callingConv,
		LiveOuts:              liveOuts,
		ScratchRspOffset:      scratchRspOffset,
		ScratchSize:           scratchSize,
		code:                  code,
		retryBackoff:          1,
		globalDecrefLocations: globalDecrefLocations,
		DebugName:             debugName,
	}
	ic.slots = []*Slot{newSlot(ic, 0, 0, len(code))}
	return ic
}

func (ic *ICInfo) installInitialStub() {
	a := asmx86.NewAssembler(ic.code)
	a.Nop()
	rel := int32(int64(ic.SlowpathStartAddr) - int64(ic.StartAddr) - 6)
	a.Jmp(rel)
	a.FillWithNops()
}

// NumSlots returns how many slots this IC is currently divided into.
func (ic *ICInfo) NumSlots() int { return len(ic.slots) }

// Slots exposes the current slot list (read-only use by tests/dispatch).
func (ic *ICInfo) Slots() []*Slot { return ic.slots }

// IsMegamorphic reports whether this IC has exhausted its rewrite budget.
func (ic *ICInfo) IsMegamorphic() bool { return ic.timesRewritten >= MegamorphicThreshold }

// TimesRewritten returns how many rewrites have committed on this IC.
func (ic *ICInfo) TimesRewritten() int { return ic.timesRewritten }

// PercentMegamorphic mirrors the original's aggressiveness heuristic, used
// by the rewriter to decide how much guarding effort to spend.
func (ic *ICInfo) PercentMegamorphic() int { return ic.timesRewritten * 100 / MegamorphicThreshold }

// ShouldAttempt reports whether the dispatch layer should try to drive a
// rewrite for this call site right now: false if megamorphic, false (and
// ticking the back-off counter down) if still in back-off, true otherwise.
func (ic *ICInfo) ShouldAttempt() bool {
	if ic.IsMegamorphic() {
		return false
	}
	if ic.retryIn > 0 {
		ic.retryIn--
		return false
	}
	return true
}

// CalculateSuggestedSize implements the §4.B size heuristic for a future
// rewrite of this IC, given the baseline size a fresh patchpoint would use.
func (ic *ICInfo) CalculateSuggestedSize(baseline int) int {
	if ic.timesRewritten == 0 {
		return baseline
	}
	if ic.timesRewritten < len(ic.slots) {
		total := 0
		for _, s := range ic.slots {
			if s.Used {
				total += s.Size
			}
		}
		return min(total+headroomPerSlot*len(ic.slots), maxSuggestedSize)
	}
	factor := 2
	if ic.IsMegamorphic() {
		factor = 4
	}
	return min(baseline*factor, maxSuggestedSize)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// pickEntryForRewrite selects a slot for a new rewrite: prefer an unused
// slot that no rewrite is drafting into (NumInside==0); otherwise round-robin starting at nextSlotToTry over slots that are
// used and currently idle (NumInside==0). Returns nil if every slot is
// currently executing.
func (ic *ICInfo) pickEntryForRewrite() *Slot {
	for _, s := range ic.slots {
		if !s.Used && s.NumInside == 0 {
			return s
		}
	}
	n := len(ic.slots)
	for i := 0; i < n; i++ {
		idx := (ic.nextSlotToTry + i) % n
		s := ic.slots[idx]
		if s.Used && s.NumInside == 0 {
			ic.nextSlotToTry = (idx + 1) % n
			return s
		}
	}
	return nil
}

// StartRewrite acquires a slot for a new rewrite attempt and returns a
// Handle bound to a scratch buffer the same size as the slot, so drafting
// can proceed without touching the live code until Commit succeeds.
func (ic *ICInfo) StartRewrite(debugName string) (*Handle, error) {
	slot := ic.pickEntryForRewrite()
	if slot == nil {
		rtlog.L().Debug().Str("ic", ic.DebugName).Msg("no free ic slot for rewrite")
		return nil, errors.New("iccache: all slots occupied")
	}
	slot.Enter()
	scratch := make([]byte, slot.Size)
	h := &Handle{
		ic:        ic,
		slot:      slot,
		debugName: debugName,
		scratch:   scratch,
		asm:       asmx86.NewAssembler(scratch),
	}
	return h, nil
}

// Clear overwrites a single slot with the invalidation header and releases
// its owned references (immediately, or deferred if frames are inside).
func (ic *ICInfo) Clear(slot *Slot) {
	slot.clear()
}

// ClearAll clears every slot belonging to this IC.
func (ic *ICInfo) ClearAll() {
	for _, s := range ic.slots {
		ic.Clear(s)
	}
}

// maybeSplit splits slot if it is the last slot in the IC and the just
// committed rewrite used less than half of its budget, carving a second,
// initially-unused slot from the freed tail. Returns the (possibly new)
// boundary so the caller can patch any "jump to next slot" trampoline sites.
func (ic *ICInfo) maybeSplit(slot *Slot, usedBytes int) (splitAt int, didSplit bool) {
	if slot.idx != len(ic.slots)-1 {
		return 0, false
	}
	if usedBytes*2 >= slot.Size {
		return 0, false
	}
	newSize := usedBytes
	if newSize < invalidationHeaderSize {
		newSize = invalidationHeaderSize
	}
	remaining := slot.Size - newSize
	if remaining < invalidationHeaderSize {
		return 0, false
	}
	newOffset := slot.Offset + newSize
	newSlot := newSlot(ic, len(ic.slots), newOffset, remaining)
	slot.Size = newSize
	slot.code = ic.code[slot.Offset : slot.Offset+newSize]
	ic.slots = append(ic.slots, newSlot)
	rtlog.L().Debug().Str("ic", ic.DebugName).Int("slot", slot.idx).
		Int("used", usedBytes).Int("new_slot_size", remaining).Msg("split ic slot")
	return newOffset, true
}
