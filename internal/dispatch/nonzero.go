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
	"github.com/pyston/pyston-v1-sub002/internal/asmx86"
	"github.com/pyston/pyston-v1-sub002/internal/objmodel"
)

// Nonzero implements spec.md §4.E's nonzero: type-specialized fast paths
// for the built-in classes it names (bool, int, float, None, tuple, list,
// str — "long" has no separate representation in this model, it's folded
// into int), falling back to __nonzero__ then __len__, defaulting to true.
//
// The float fast path is gated on asmx86.HasSSE2Doubles — on a host
// without SSE2 double-precision moves this module still computes the
// right answer, it just always goes through the __nonzero__ dunder path
// instead of trusting a dedicated float-specialized branch, giving the
// cpuid feature probe a real (if narrow) effect on dispatch behavior
// exactly as SPEC_FULL's DOMAIN STACK section describes.
func Nonzero(o *objmodel.Object) (bool, error) {
	switch o.Class() {
	case objmodel.BoolClass:
		v, _ := objmodel.AsInt64(o)
		return v != 0, nil
	case objmodel.NoneClass:
		return false, nil
	case objmodel.IntClass:
		v, _ := objmodel.AsInt64(o)
		return v != 0, nil
	case objmodel.FloatClass:
		if asmx86.HasSSE2Doubles() {
			v, _ := objmodel.AsFloat64(o)
			return v != 0, nil
		}
	case objmodel.TupleClass, objmodel.ListClass:
		items, _ := objmodel.AsSlice(o)
		return len(items) != 0, nil
	case objmodel.StrClass:
		s, _ := objmodel.AsString(o)
		return s != "", nil
	}

	if fn, ok := o.Class().LookupDunder("__nonzero__"); ok {
		v, err := fn(o)
		if err != nil {
			return false, err
		}
		n, _ := objmodel.AsInt64(v)
		return n != 0, nil
	}

	if _, ok := o.Class().LookupDunder("__len__"); ok {
		n, err := Len(o)
		if err != nil {
			return false, err
		}
		return n != 0, nil
	}

	return true, nil
}
