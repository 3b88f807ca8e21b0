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

// Invalidator is an observable condition ("class X's attribute map has not
// changed") that one or more committed slots depend on. Bumping its version
// via InvalidateAll clears every dependent slot.
//
// Invalidator and Slot reference each other bidirectionally (every slot in
// dependents also lists this invalidator in its own deps, and vice versa).
// Neither side owns the other: on release of either end, the other's set is
// walked to scrub the back-pointer, per spec.md §9 "Cyclic structures".
type Invalidator struct {
	Name       string
	version    int64
	dependents map[*Slot]struct{}
}

// NewInvalidator creates an invalidator starting at version 0.
func NewInvalidator(name string) *Invalidator {
	return &Invalidator{Name: name, dependents: make(map[*Slot]struct{})}
}

// Version returns the current version; a rewrite records (invalidator,
// Version()) when it takes a dependency, and commit checks that this value
// hasn't changed since.
func (inv *Invalidator) Version() int64 { return inv.version }

// addDependent registers slot as depending on this invalidator and records
// the reverse edge on the slot. Called only from Slot.addDependenceOn.
func (inv *Invalidator) addDependent(s *Slot) {
	inv.dependents[s] = struct{}{}
	s.invalidators[inv] = struct{}{}
}

// removeDependent scrubs the back-pointer without touching the slot's own
// invalidators set (used when the slot side is already being torn down).
func (inv *Invalidator) removeDependent(s *Slot) {
	delete(inv.dependents, s)
}

// InvalidateAll bumps the version and clears every dependent slot, removing
// the cross-references between this invalidator and each cleared slot as it
// goes (spec.md §8 property 3: after this call, no IC slot whose guards
// depended on the bumped condition survives uncleared).
func (inv *Invalidator) InvalidateAll() {
	inv.version++
	dependents := make([]*Slot, 0, len(inv.dependents))
	for s := range inv.dependents {
		dependents = append(dependents, s)
	}
	rtlog.L().Debug().Str("invalidator", inv.Name).Int64("version", inv.version).
		Int("dependents", len(dependents)).Msg("invalidating")
	for _, s := range dependents {
		s.clearDueToInvalidation(inv)
	}
}
