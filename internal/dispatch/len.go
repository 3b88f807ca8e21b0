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

// Len implements spec.md §4.E's len/unboxedLen: look up __len__ (this
// model's sq_length and mp_length are the same dunder, since nothing here
// distinguishes sequence from mapping type slots), coerce the result to an
// integer, and reject a negative length the way CPython's
// PyObject_Size does.
func Len(o *objmodel.Object) (int64, error) {
	fn, ok := o.Class().LookupDunder("__len__")
	if !ok {
		return 0, typeErrorf("object of type %q has no len()", o.Class().Name)
	}
	v, err := fn(o)
	if err != nil {
		return 0, err
	}
	n, ok := objmodel.AsInt64(v)
	if !ok {
		return 0, typeErrorf("__len__ should return an int")
	}
	if n < 0 {
		return 0, typeErrorf("__len__() should return >= 0")
	}
	return n, nil
}

// UnboxedLen returns exactly what Len returns; Len already yields the raw
// int64 count (Nonzero's len fallback calls Len directly).
func UnboxedLen(o *objmodel.Object) (int64, error) { return Len(o) }
