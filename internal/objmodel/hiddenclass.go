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

// Package objmodel is the minimal object-model surface internal/dispatch
// needs: instances with hidden-class-backed attribute storage, classes with
// a linearized MRO, the descriptor protocol, and a versioned type table for
// method-cache invalidation. It is a stand-in for "object model internals",
// which spec.md explicitly leaves out of scope — this package implements
// only what §4.E's dispatch contracts name, not class construction.
package objmodel

import (
	"sync"
	"sync/atomic"

	"github.com/pyston/pyston-v1-sub002/internal/iccache"
)

var hiddenClassIDCounter int64

func nextHiddenClassID() int64 { return atomic.AddInt64(&hiddenClassIDCounter, 1) }

// hiddenClassInitialSize mirrors hiddenclass.cpp's attribute-array growth
// scheme (spec.md §6 tunables): new objects start with room for 4
// attributes and the backing array doubles when it fills. The matching
// "freelist keyed by size class" tunable pools the attribute-array backing
// slices themselves (attrpool.go), not HiddenClass trie nodes — see
// DESIGN.md for why a HiddenClass-node freelist was dropped.
const hiddenClassInitialSize = 4

// HiddenClass is one node in an attribute-transition tree: a fixed mapping
// from attribute name to storage offset, shared by every instance that has
// added exactly this set of attributes in exactly this order.
type HiddenClass struct {
	mu       sync.Mutex
	id       int64
	offsets  map[string]int
	order    []string
	children map[string]*HiddenClass

	dependentGetattrs *iccache.Invalidator
}

// ID returns a stable, process-unique identifier for this hidden class —
// the int64 a guard can compare against, standing in for the real
// implementation's bare pointer-identity check (every hidden class is a
// singleton for its exact attribute sequence, so pointer/ID equality is
// exactly shape equality).
func (hc *HiddenClass) ID() int64 { return hc.id }

// NewRootHiddenClass returns the empty hidden class every fresh instance of
// a given class starts from.
func NewRootHiddenClass() *HiddenClass {
	return &HiddenClass{
		id:                nextHiddenClassID(),
		offsets:           make(map[string]int),
		children:          make(map[string]*HiddenClass),
		dependentGetattrs: iccache.NewInvalidator("hiddenclass.getattrs"),
	}
}

// Size returns how many attribute slots this hidden class has allocated.
func (hc *HiddenClass) Size() int { return len(hc.order) }

// Offset reports the storage offset for attr, or (0, false) if this
// hidden class doesn't have it.
func (hc *HiddenClass) Offset(attr string) (int, bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	off, ok := hc.offsets[attr]
	return off, ok
}

// Invalidator returns the invalidator a rewrite must register a dependence
// on before emitting any guard keyed on this hidden class's attribute set
// (dependent_getattrs in the original).
func (hc *HiddenClass) Invalidator() *iccache.Invalidator { return hc.dependentGetattrs }

// GetOrMakeChild returns (reusing a cached transition if one exists) the
// hidden class that results from appending attr to hc. Transitions are
// memoized per (hc, attr) so two instances that add the same attribute in
// the same order converge back onto one shared hidden class, which is what
// makes hidden-class-keyed inline caches monomorphic across same-shaped
// objects in the first place.
func (hc *HiddenClass) GetOrMakeChild(attr string) *HiddenClass {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if child, ok := hc.children[attr]; ok {
		return child
	}

	child := &HiddenClass{
		id:                nextHiddenClassID(),
		offsets:           make(map[string]int, len(hc.offsets)+1),
		children:          make(map[string]*HiddenClass),
		order:             append(append([]string(nil), hc.order...), attr),
		dependentGetattrs: iccache.NewInvalidator("hiddenclass.getattrs"),
	}
	for k, v := range hc.offsets {
		child.offsets[k] = v
	}
	child.offsets[attr] = len(hc.order)

	hc.children[attr] = child
	return child
}

// DelAttrToMakeHC returns the hidden class that results from removing attr,
// preserving the relative order of the remaining attributes
// (delAttrToMakeHC in hiddenclass.cpp). Because removing an attribute can
// require re-threading every descendant hidden class from the shared root,
// this degrades to rebuilding the chain from scratch for the remaining
// attribute order — correct, if not as cheap as the append path, matching
// the original's documented tradeoff ("avoid creation of ancestors" is a
// possible future optimization it explicitly defers).
func (hc *HiddenClass) DelAttrToMakeHC(root *HiddenClass, attr string) *HiddenClass {
	hc.mu.Lock()
	remaining := make([]string, 0, len(hc.order)-1)
	for _, a := range hc.order {
		if a != attr {
			remaining = append(remaining, a)
		}
	}
	hc.mu.Unlock()

	cur := root
	for _, a := range remaining {
		cur = cur.GetOrMakeChild(a)
	}
	return cur
}
