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

// RefType tags whether an RVar's value is an owned reference the fast path
// must decrement on its last use, one it merely borrows, or one whose
// ownership hasn't been established yet.
type RefType int

const (
	RefUnknown RefType = iota
	RefOwned
	RefBorrowed
)

type attrGuardKey struct {
	offset int32
	value  int64
	negate bool
}

// RVar is a virtual value recorded during collecting and bound to physical
// Locations during emitting (Rewriter Variable in spec.md §3).
type RVar struct {
	rw   *Rewriter
	name string

	isConstant bool
	constValue int64

	isArg  bool
	argLoc Location

	locs []Location // current physical locations; never contains duplicates

	uses    []int // action-list indices where this var is consumed
	nextUse int    // cursor into uses

	refType  RefType
	nullable bool
	consumed bool // refConsumed(): an owning use transferred ownership away

	attrGuardsSeen map[attrGuardKey]bool

	scratchOffset int32
	scratchSize   int32
	hasScratch    bool
}

// IsConstant reports whether this RVar is a compile-time constant.
func (v *RVar) IsConstant() bool { return v.isConstant }

// ConstValue returns the constant payload; only meaningful if IsConstant().
func (v *RVar) ConstValue() int64 { return v.constValue }

// IsArg reports whether this RVar originated from getArg.
func (v *RVar) IsArg() bool { return v.isArg }

// Locations returns a copy of this RVar's current location set.
func (v *RVar) Locations() []Location {
	out := make([]Location, len(v.locs))
	copy(out, v.locs)
	return out
}

// PrimaryLocation returns some location this RVar currently occupies,
// preferring a register over a stack/scratch slot; returns NoneLoc if the
// RVar has no location at all (a pure constant that was never
// materialized).
func (v *RVar) PrimaryLocation() Location {
	for _, l := range v.locs {
		if l.Kind == LocRegister || l.Kind == LocXMMRegister {
			return l
		}
	}
	if len(v.locs) > 0 {
		return v.locs[0]
	}
	return NoneLoc
}

func (v *RVar) hasLocation(l Location) bool {
	for _, cur := range v.locs {
		if cur.Equal(l) {
			return true
		}
	}
	return false
}

func (v *RVar) addLocation(l Location) {
	if v.hasLocation(l) {
		return
	}
	v.locs = append(v.locs, l)
	v.rw.locToVar[l] = v
}

func (v *RVar) removeLocation(l Location) {
	for i, cur := range v.locs {
		if cur.Equal(l) {
			v.locs = append(v.locs[:i], v.locs[i+1:]...)
			break
		}
	}
	delete(v.rw.locToVar, l)
}

func (v *RVar) clearLocations() {
	for _, l := range v.locs {
		delete(v.rw.locToVar, l)
	}
	v.locs = nil
}

// SetType sets the reference-count ownership tag; RefOwned causes the emit
// phase to auto-decref this value when its last recorded use retires,
// unless RefConsumed() is called first (e.g. after storing it into a field
// that takes ownership of the reference).
func (v *RVar) SetType(t RefType) { v.refType = t }

// RefConsumed marks this RVar's ownership as having been transferred away,
// suppressing the automatic decref-on-last-use the emit phase would
// otherwise schedule for a RefOwned variable.
func (v *RVar) RefConsumed() { v.consumed = true }

// SetNullable records whether this value may be a null/None pointer, which
// downstream attribute guards need to know before dereferencing it.
func (v *RVar) SetNullable(n bool) { v.nullable = n }
func (v *RVar) Nullable() bool     { return v.nullable }

// recordUse appends actionIdx to this var's use list; called while an
// action referencing the var is being appended during collecting.
func (v *RVar) recordUse(actionIdx int) {
	v.uses = append(v.uses, actionIdx)
}

// nextUseDistance returns how many actions away this var's next recorded
// use is from curIdx, or an effectively-infinite distance if it has none
// left — used by the "any register" spill-victim heuristic, which prefers
// to evict whichever resident value is needed furthest in the future (or
// not at all).
func (v *RVar) nextUseDistance(curIdx int) int {
	for v.nextUse < len(v.uses) && v.uses[v.nextUse] < curIdx {
		v.nextUse++
	}
	if v.nextUse >= len(v.uses) {
		return 1 << 30
	}
	return v.uses[v.nextUse] - curIdx
}

// seenAttrGuard records (and reports whether) an attribute-guard tuple was
// already emitted for this var, so addAttrGuard can deduplicate repeated
// guards of the same offset/value/negation.
func (v *RVar) seenAttrGuard(offset int32, value int64, negate bool) bool {
	if v.attrGuardsSeen == nil {
		v.attrGuardsSeen = make(map[attrGuardKey]bool)
	}
	key := attrGuardKey{offset, value, negate}
	if v.attrGuardsSeen[key] {
		return true
	}
	v.attrGuardsSeen[key] = true
	return false
}
