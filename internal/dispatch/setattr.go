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

// SetAttr implements spec.md §4.E's setattr: a data descriptor's __set__
// wins outright; otherwise the value lands in hidden-class-addressed
// instance storage, transitioning the hidden class (memoized by
// objmodel.HiddenClass.GetOrMakeChild; the attribute array grows from 4 by
// doubling, its backing arrays pooled per size class in objmodel's
// attrpool.go) if this is the first assignment of name on o.
//
// Because a transition invalidates any getattr IC keyed on the old shape,
// SetAttr is never itself a candidate for an IC fast path the way GetAttr
// is — there is no stable guard to key a "set at this offset" fast path on
// until after the transition has already happened at least once, at which
// point the *next* set (to an already-present attribute) can be
// fast-pathed. rw is accepted for that case: a plain existing-attribute
// store.
func SetAttr(o *objmodel.Object, name string, value int64, rw *rewrite.Rewriter) error {
	cls := o.Class()
	if _, desc, ok := cls.LookupDescriptor(name); ok && desc.IsData {
		if desc.Set == nil {
			return typeErrorf("%q attribute of %q objects is not writable", name, cls.Name)
		}
		return desc.Set(o, value)
	}

	if rw != nil {
		if hc := o.HiddenClass(); hc != nil {
			if off, ok := hc.Offset(name); ok {
				rw.AddDependenceOn(hc.Invalidator())
				self := rw.GetArg(0)
				rw.AddAttrGuard(self, hiddenClassIDFieldOffset, hc.ID(), false)
				val := rw.GetArg(1)
				rw.SetAttr(self, attrArrayFieldOffset+int32(off)*8, val)
			}
		}
	}

	o.SetAttr(name, value)
	return nil
}
