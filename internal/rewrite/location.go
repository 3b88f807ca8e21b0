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

// Package rewrite records a sequence of guarded actions against virtual
// registers during a "collecting" phase, then performs register allocation
// and emits x86-64 machine code into an IC slot during an "emitting" phase
// (spec.md §4.C). It is the component that turns "attribute get observed
// this shape once" into "here is the straight-line guarded fast path".
package rewrite

import (
	"fmt"

	"github.com/pyston/pyston-v1-sub002/internal/asmx86"
)

// LocationKind tags which alternative of the Location union is populated.
type LocationKind int

const (
	LocRegister LocationKind = iota
	LocXMMRegister
	LocScratch       // a scratch stack slot reserved out of the IC's scratch area
	LocCallerStack   // a slot in the caller's stack frame (argument passed on stack)
	LocAnyReg        // synthetic: "any general register", used only as an allocation request
	LocNone          // synthetic: no location — a pure constant that was never materialized
	LocUninitialized // synthetic: the RVar has not been assigned a location yet
)

// Location is a tagged union over the physical locations a rewriter variable
// can occupy: a GP register, an XMM register, a scratch stack slot, the
// caller's stack slot, or one of three synthetic non-physical tags.
type Location struct {
	Kind   LocationKind
	Reg    asmx86.Register
	XMM    asmx86.XMMRegister
	Offset int32
}

func RegLoc(r asmx86.Register) Location    { return Location{Kind: LocRegister, Reg: r} }
func XMMLoc(r asmx86.XMMRegister) Location { return Location{Kind: LocXMMRegister, XMM: r} }
func ScratchLoc(off int32) Location        { return Location{Kind: LocScratch, Offset: off} }
func StackLoc(off int32) Location          { return Location{Kind: LocCallerStack, Offset: off} }

var AnyRegLoc = Location{Kind: LocAnyReg}
var NoneLoc = Location{Kind: LocNone}
var UninitializedLoc = Location{Kind: LocUninitialized}

// IsPhysical reports whether this location actually occupies a register or
// stack slot (as opposed to one of the three synthetic tags).
func (l Location) IsPhysical() bool {
	switch l.Kind {
	case LocRegister, LocXMMRegister, LocScratch, LocCallerStack:
		return true
	}
	return false
}

func (l Location) Equal(o Location) bool {
	if l.Kind != o.Kind {
		return false
	}
	switch l.Kind {
	case LocRegister:
		return l.Reg == o.Reg
	case LocXMMRegister:
		return l.XMM == o.XMM
	case LocScratch, LocCallerStack:
		return l.Offset == o.Offset
	default:
		return true
	}
}

func (l Location) String() string {
	switch l.Kind {
	case LocRegister:
		return l.Reg.String()
	case LocXMMRegister:
		return fmt.Sprintf("xmm%d", l.XMM)
	case LocScratch:
		return fmt.Sprintf("scratch[%d]", l.Offset)
	case LocCallerStack:
		return fmt.Sprintf("stack[%d]", l.Offset)
	case LocAnyReg:
		return "<any-reg>"
	case LocNone:
		return "<none>"
	default:
		return "<uninitialized>"
	}
}
