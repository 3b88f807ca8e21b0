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

import "github.com/pyston/pyston-v1-sub002/internal/objmodel"

// DelAttr implements spec.md §4.E's delattr: walk the MRO for a
// "__delattr__" dunder override first; the generic path is
// objmodel.Object.DelAttr, which rebuilds the hidden class without the
// attribute via HiddenClass.DelAttrToMakeHC (replaying the remaining
// attributes through the memoized GetOrMakeChild transitions) and compacts
// the attribute array to match. There is no IC fast path
// for delete — like SetAttr's first-transition case, every delete
// invalidates the shape it ran against, so there is nothing stable left to
// guard on by the time the rewrite would commit.
func DelAttr(o *objmodel.Object, name string) error {
	cls := o.Class()
	if fn, ok := cls.LookupDunder("__delattr__"); ok {
		_, err := fn(o)
		return err
	}
	if err := o.DelAttr(name); err != nil {
		return attributeError(cls, name)
	}
	return nil
}
