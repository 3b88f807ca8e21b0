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

type dependency struct {
	inv         *Invalidator
	versionSeen int64
}

// CommitHook finishes assembly for a rewrite in progress: it must emit the
// trailing jump back to the IC's continue_addr and pad the remainder of the
// slot with NOPs so that the assembler ends up exactly full.
type CommitHook interface {
	FinishAssembly(h *Handle) bool
}

// Handle is an in-progress rewrite bound to one slot of one IC (ICSlotRewrite
// in the original). The caller (internal/rewrite) records guards/loads/calls
// into h.Assembler(), tracks dependencies via AddDependenceOn, and finally
// calls Commit or Abort exactly once.
type Handle struct {
	ic        *ICInfo
	slot      *Slot
	debugName string
	scratch   []byte
	asm       *asmx86.Assembler

	dependencies []dependency
	done         bool
}

func (h *Handle) Assembler() *asmx86.Assembler { return h.asm }
func (h *Handle) SlotSize() int                { return h.slot.Size }
func (h *Handle) ScratchRspOffset() int32      { return h.ic.ScratchRspOffset }
func (h *Handle) ScratchSize() int             { return h.ic.ScratchSize }
func (h *Handle) DebugName() string            { return h.debugName }
func (h *Handle) IC() *ICInfo                   { return h.ic }
func (h *Handle) SlotStartAddr() uint64         { return h.ic.StartAddr + uint64(h.slot.Offset) }
func (h *Handle) ContinueAddr() uint64          { return h.ic.ContinueAddr }
func (h *Handle) SlowpathStartAddr() uint64     { return h.ic.SlowpathStartAddr }

// AddDependenceOn records that this rewrite's correctness depends on inv not
// changing; Commit will re-validate every recorded dependency's version
// before installing the new code.
func (h *Handle) AddDependenceOn(inv *Invalidator) {
	h.dependencies = append(h.dependencies, dependency{inv: inv, versionSeen: inv.Version()})
}

// Commit validates every recorded dependency is still at the version it was
// when recorded; if any has moved on, the nascent rewrite is discarded (the
// draft in the scratch buffer is simply dropped) and an error is returned.
// Otherwise it asks hook to finish assembly, copies the draft over the live
// slot, flushes the instruction cache, records the new owned references and
// dependency edges, and — if this is the IC's last slot and it used less
// than half its budget — splits the slot.
func (h *Handle) Commit(hook CommitHook, gcReferences []OwnedRef, decrefInfos []DecrefSite) error {
	if h.done {
		return errors.New("iccache: handle already finalized")
	}
	h.done = true

	for _, d := range h.dependencies {
		if d.inv.Version() != d.versionSeen {
			rtlog.L().Debug().Str("ic", h.ic.DebugName).Str("invalidator", d.inv.Name).
				Msg("commit aborted: dependency invalidated during rewrite")
			h.releaseSlot()
			return errors.Errorf("iccache: dependency %q invalidated during rewrite", d.inv.Name)
		}
	}

	if !hook.FinishAssembly(h) || h.asm.HasFailed() {
		rtlog.L().Debug().Str("ic", h.ic.DebugName).Msg("commit aborted: assembly failed")
		h.releaseSlot()
		return errors.New("iccache: assembly failed to finish within slot budget")
	}
	if !h.asm.IsExactlyFull() {
		h.releaseSlot()
		return errors.New("iccache: assembler under/over-filled the slot")
	}

	usedBytes := h.asm.BytesWritten()

	// release what the previous contents owned, retain the new references
	for _, r := range h.slot.ownedRefs {
		r.Release()
	}
	for _, r := range gcReferences {
		r.Retain()
	}
	h.slot.ownedRefs = gcReferences
	h.slot.decrefSites = decrefInfos

	copy(h.slot.code, h.scratch)
	flushInstructionCache(h.slot.code)

	for _, d := range h.dependencies {
		h.slot.addDependenceOn(d.inv)
	}

	h.slot.Used = true
	h.slot.Exit() // matches the Enter() in StartRewrite
	h.ic.timesRewritten++
	h.ic.retryBackoff = 1
	h.ic.retryIn = 0

	h.ic.maybeSplit(h.slot, usedBytes)

	rtlog.L().Debug().Str("ic", h.ic.DebugName).Int("slot", h.slot.idx).
		Int("bytes", usedBytes).Int("times_rewritten", h.ic.timesRewritten).Msg("ic slot committed")
	return nil
}

// Abort discards this rewrite without installing anything: the IC's
// exponential back-off is doubled (capped at RetryBackoffMax) so that a
// call site which repeatedly fails to rewrite doesn't livelock retrying
// every single invocation.
func (h *Handle) Abort() {
	if h.done {
		return
	}
	h.done = true
	h.releaseSlot()

	h.ic.retryBackoff *= 2
	if h.ic.retryBackoff > RetryBackoffMax {
		h.ic.retryBackoff = RetryBackoffMax
	}
	h.ic.retryIn = h.ic.retryBackoff
	rtlog.L().Debug().Str("ic", h.ic.DebugName).Int("backoff", h.ic.retryBackoff).Msg("rewrite aborted")
}

func (h *Handle) releaseSlot() {
	h.slot.Exit()
}

// flushInstructionCache is a placeholder for the self-modifying-code
// invariant in spec.md §9: every patch is followed by an explicit
// instruction-cache flush over the affected range before the code is ever
// reachable again. This module never actually executes emitted bytes (there
// is no real JIT entry point wired to a running Python process here), so
// there is nothing for a host OS to invalidate; a real embedding would call
// the platform equivalent of __builtin___clear_cache over code.
func flushInstructionCache(code []byte) {
	_ = code
}
