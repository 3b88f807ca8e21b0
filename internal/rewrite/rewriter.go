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

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/pyston/pyston-v1-sub002/internal/asmx86"
	"github.com/pyston/pyston-v1-sub002/internal/iccache"
	"github.com/pyston/pyston-v1-sub002/internal/rtlog"
)

// argABIOrder is the System V AMD64 integer-argument register order; a
// simplified but real calling-convention table (spec.md never mandates a
// specific convention, only that "argument RVars retain their original
// call-convention location" until guarding is done).
var argABIOrder = []asmx86.Register{asmx86.RDI, asmx86.RSI, asmx86.RDX, asmx86.RCX, asmx86.R8, asmx86.R9}

// allocatableGP excludes rsp/rbp (never allocation targets) and the
// callee-saved registers (spec.md §4.C: usable only as spill destinations by
// default, never as a general allocation target, because the unwinder can't
// find them across an intervening throwing call).
var allocatableGP = []asmx86.Register{
	asmx86.RAX, asmx86.RCX, asmx86.RDX, asmx86.RSI, asmx86.RDI,
	asmx86.R8, asmx86.R9, asmx86.R10, asmx86.R11,
}

var calleeSaveGP = []asmx86.Register{asmx86.RBX, asmx86.R12, asmx86.R13, asmx86.R14, asmx86.R15}

// Rewriter records guarded actions against virtual RVars during collecting,
// then performs register allocation and emits machine code into an IC slot
// during emitting.
type Rewriter struct {
	handle *iccache.Handle

	vars    []*RVar
	actions []action

	doneGuarding bool
	mutationSeen bool
	failed       bool
	failReason   error

	constCache map[int64]*RVar
	args       []*RVar

	liveOutLocs map[*RVar]Location // RVar -> expected final location

	locToVar map[Location]*RVar

	scratchUsed []bool // index i == whether 8-byte scratch slot i is taken

	hasSideEffects bool

	gcReferences []iccache.OwnedRef
	decrefSites  []iccache.DecrefSite

	doneGuardingActionIdx int

	curRS *regState // valid only during Commit's emit loop
}

// New creates a Rewriter targeting the given IC slot handle. hasSideEffects
// should be true when the operation this rewrite implements (e.g. a call)
// can run arbitrary user code and therefore needs the num_inside
// increment/decrement bracket so a re-entrant invalidation can defer its
// decref correctly (spec.md §4.C step 6, §5).
func New(handle *iccache.Handle, hasSideEffects bool) *Rewriter {
	rw := &Rewriter{
		handle:         handle,
		constCache:     make(map[int64]*RVar),
		liveOutLocs:    make(map[*RVar]Location),
		locToVar:       make(map[Location]*RVar),
		scratchUsed:    make([]bool, handle.ScratchSize()/8),
		hasSideEffects: hasSideEffects,
	}
	return rw
}

// Failed reports whether collecting or emitting has hit an unrecoverable
// problem (buffer overflow, register-allocation impossibility, an
// unsupported construct, or a guard recorded after a mutation).
func (rw *Rewriter) Failed() bool { return rw.failed }

func (rw *Rewriter) fail(format string, args ...interface{}) {
	if rw.failed {
		return
	}
	rw.failed = true
	rw.failReason = errors.Errorf(format, args...)
	rtlog.L().Debug().Str("ic", rw.handle.DebugName()).Err(rw.failReason).Msg("rewrite failed")
}

// FailReason returns why Failed() is true, or nil.
func (rw *Rewriter) FailReason() error { return rw.failReason }

func (rw *Rewriter) newVar(name string) *RVar {
	v := &RVar{rw: rw, name: name, refType: RefUnknown}
	rw.vars = append(rw.vars, v)
	return v
}

func (rw *Rewriter) recordAction(kind ActionKind, consumes []*RVar, produces *RVar, debug string, emit func(rw *Rewriter)) *RVar {
	if rw.failed {
		return produces
	}
	if kind == ActionGuard && rw.mutationSeen {
		rw.fail("guard %q recorded after a mutation", debug)
		return produces
	}
	if kind == ActionMutation {
		rw.mutationSeen = true
	}
	idx := len(rw.actions)
	rw.actions = append(rw.actions, action{kind: kind, consumes: consumes, produces: produces, debug: debug, emit: emit})
	for _, c := range consumes {
		c.recordUse(idx)
	}
	return produces
}

// AddLiveOut declares that v must end up in loc by the time the fast path
// falls through to continue_addr.
func (rw *Rewriter) AddLiveOut(v *RVar, loc Location) {
	rw.liveOutLocs[v] = loc
}

// AddDependenceOn records that this rewrite's correctness depends on inv's
// current version; Commit (via the IC slot Handle) re-validates this.
func (rw *Rewriter) AddDependenceOn(inv *iccache.Invalidator) {
	if rw.failed {
		return
	}
	rw.handle.AddDependenceOn(inv)
}

// AddOwnedReference registers an object embedded in the emitted code whose
// reference count must be retained on commit and released when the slot is
// later cleared or invalidated.
func (rw *Rewriter) AddOwnedReference(ref iccache.OwnedRef) {
	rw.gcReferences = append(rw.gcReferences, ref)
}

func (rw *Rewriter) String() string {
	return fmt.Sprintf("Rewriter{%s, %d vars, %d actions, failed=%v}",
		rw.handle.DebugName(), len(rw.vars), len(rw.actions), rw.failed)
}
