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

package dispatch

import (
	"github.com/pyston/pyston-v1-sub002/internal/objmodel"
	"github.com/pyston/pyston-v1-sub002/internal/rewrite"
)

// GetAttr implements spec.md §4.E's generic getattr: a type-level lookup
// (here always "generic" — this module has no non-generic tp_getattro slot
// concept distinct from the descriptor protocol itself), with data
// descriptors taking priority over instance storage and non-data
// descriptors falling back only when the instance doesn't have its own
// value.
//
// If rw is non-nil (the call site has an IC worth attempting — see
// ShouldRewrite), GetAttr also records a fast path for this exact shape: a
// hidden-class identity guard and an attribute-offset load (see
// emitGetAttrGuards). No separate object-class guard is recorded. A failed rewrite attempt never affects the
// returned value — Commit is the caller's responsibility once every action
// needed for this dispatch has been recorded.
func GetAttr(o *objmodel.Object, name string, cache *MethodCache, rw *rewrite.Rewriter) (*objmodel.Object, error) {
	cls := o.Class()
	_, desc, ok := cache.Lookup(o, name)
	if ok && desc.IsData {
		return getAttrViaDescriptor(o, desc, rw)
	}

	if rw != nil {
		emitGetAttrGuards(rw, o, name)
	}

	if v, err := o.GetAttr(name); err == nil {
		return objmodel.NewInt(v), nil
	}

	if ok {
		return getAttrViaDescriptor(o, desc, rw)
	}

	return nil, attributeError(cls, name)
}

func getAttrViaDescriptor(o *objmodel.Object, desc *objmodel.Descriptor, rw *rewrite.Rewriter) (*objmodel.Object, error) {
	v, err := desc.Get(o)
	if err != nil {
		return nil, err
	}
	return objmodel.NewInt(v), nil
}

// emitGetAttrGuards records the guard chain a getattr fast path needs:
// the hidden class identity check plus the attribute load itself. Callers
// that already hold an RVar for o (e.g. a call-site argument) should use
// the lower-level rewrite.Rewriter API directly instead of this
// convenience path, which always treats o as argument 0.
func emitGetAttrGuards(rw *rewrite.Rewriter, o *objmodel.Object, name string) {
	hc := o.HiddenClass()
	off, ok := hc.Offset(name)
	if !ok {
		return
	}
	rw.AddDependenceOn(hc.Invalidator())
	self := rw.GetArg(0)
	rw.AddAttrGuard(self, hiddenClassIDFieldOffset, hc.ID(), false)
	dest := rw.GetAttr(self, int32(attrArrayFieldOffset)+int32(off)*8)
	rw.AddLiveOut(dest, rewrite.AnyRegLoc)
}

// hiddenClassIDFieldOffset/attrArrayFieldOffset are placeholder layout
// constants for where an Object's hidden-class-ID and attribute array
// would live in a real compiled struct layout; this module never actually
// executes the generated fast path against a real Object memory layout, so
// these only need to be stable and distinct for the guard/load byte
// patterns tests assert on.
const (
	hiddenClassIDFieldOffset int32 = 16
	attrArrayFieldOffset     int32 = 24
)
