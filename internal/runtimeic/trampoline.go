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

package runtimeic

import (
	"github.com/pkg/errors"

	"github.com/pyston/pyston-v1-sub002/internal/asmx86"
	"github.com/pyston/pyston-v1-sub002/internal/iccache"
	"github.com/pyston/pyston-v1-sub002/internal/rtlog"
)

// Trampoline is a standalone compiled stub: prologue, a 14-byte patchable
// call site (CallOnlySize: 13 bytes plus a 1-byte landing pad), a call to
// the slow-path helper, and an
// epilogue — the thing registerCompiledPatchpoint normally wraps around an
// existing function body, but here built fresh for a call site that has no
// surrounding compiled function of its own (spec.md §4.D).
type Trampoline struct {
	chunk *Chunk
	ic    *iccache.ICInfo
}

// Build emits a trampoline into a freshly allocated chunk from pool and
// registers it as a patchpoint with mgr, ready for internal/rewrite to
// attempt a rewrite into.
func Build(pool *Pool, mgr *iccache.Manager, slowpathFunc uint64, scratchCells int, liveOuts iccache.LiveOutSet, debugName string) (*Trampoline, error) {
	chunk, err := pool.Allocate()
	if err != nil {
		return nil, errors.Wrap(err, "runtimeic: allocating trampoline chunk")
	}

	asm := asmx86.NewAssembler(chunk.Code)

	// prologue: reserve scratchCells*8 bytes below rbp for the rewriter's
	// scratch area, mirroring a compiled function's normal stack-frame
	// setup (push rbp; mov rsp, rbp would be emitted by the surrounding
	// compiled function in the general case; a bare trampoline does it
	// itself since nothing else will).
	asm.Push(asmx86.RBP)
	asm.MovRR(asmx86.RSP, asmx86.RBP)
	scratchBytes := int32(scratchCells * 8)
	if scratchBytes > 0 {
		asm.Sub(asmx86.Immediate(scratchBytes), asmx86.RSP)
	}

	patchStart := asm.CurInstPointer()
	// patchable call site: a nop/trap landing pad the IC initially jumps
	// straight through, followed by a call to the slow path. The slot's
	// StartAddr/ContinueAddr bracket exactly this window.
	for asm.CurInstPointer()-patchStart < CallOnlySize-1 {
		asm.Nop()
	}
	asm.Trap() // 1-byte landing pad consumed by CALL_ONLY_SIZE's "+1"
	patchEnd := asm.CurInstPointer()

	slowpathStart := asm.CurInstPointer()
	asm.EmitCall(slowpathFunc, asmx86.R11)

	// epilogue: where the slow path falls through to once its call
	// returns, and exactly where a successful fast-path rewrite jumps to
	// directly, skipping the call.
	continueStart := asm.CurInstPointer()
	if scratchBytes > 0 {
		asm.Add(asmx86.Immediate(scratchBytes), asmx86.RSP)
	}
	asm.Leave()
	asm.Retq()

	if asm.HasFailed() {
		pool.Release(chunk)
		return nil, errors.New("runtimeic: trampoline did not fit in one chunk")
	}

	base := chunkBaseAddr(chunk)
	ic := mgr.RegisterCompiledPatchpoint(
		base+uint64(patchStart),
		base+uint64(slowpathStart),
		base+uint64(continueStart),
		base+uint64(continueStart),
		chunk.Code[patchStart:patchEnd],
		-scratchBytes,
		scratchCells*8,
		iccache.CConvC,
		liveOuts,
		nil,
		debugName,
	)

	rtlog.L().Debug().Str("name", debugName).Int("patch_size", patchEnd-patchStart).Msg("runtimeic: trampoline built")
	return &Trampoline{chunk: chunk, ic: ic}, nil
}

// IC returns the registered ICInfo so callers can drive rewrites against it.
func (t *Trampoline) IC() *iccache.ICInfo { return t.ic }

// Release returns the trampoline's backing chunk to its pool. Callers must
// ensure the IC has been deregistered from its manager first.
func (t *Trampoline) Release(pool *Pool) {
	pool.Release(t.chunk)
}

// chunkBaseAddr computes the address iccache should treat as this chunk's
// StartAddr. Since rewrite offsets are always computed relative to
// SlotStartAddr and the slot's code bytes are copied verbatim on commit,
// using the slice header's address (rather than a real linear address
// space) is sufficient for every invariant this module checks without
// actually executing the generated code.
func chunkBaseAddr(c *Chunk) uint64 {
	if len(c.Code) == 0 {
		return 0
	}
	return uint64(sliceDataPointer(c.Code))
}
