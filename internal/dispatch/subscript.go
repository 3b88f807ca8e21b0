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

// Slice is a Python slice object passed to getitem/setitem/delitem. Its
// bounds are resolved against the container's length and the slice is then
// applied directly to the tuple/list payload; no __getslice__/__setslice__/
// __delslice__ dunder is consulted.
type Slice struct {
	Start, Stop, Step int64
}

// resolve normalizes negative and out-of-range bounds against length (and a
// zero step to 1), mirroring PySlice_GetIndices's normalization so getSlice/
// setSlice/delSlice always see concrete, in-range bounds for either step
// direction. A negative step clamps into [-1, length-1] rather than
// [0, length] — that asymmetry is what PySlice_GetIndices uses so a
// descending slice's lower bound can land at -1 (meaning "stop before
// index 0") without wrapping back into a valid positive index.
func (s Slice) resolve(length int64) (start, stop, step int64) {
	step = s.Step
	if step == 0 {
		step = 1
	}

	lower, upper := int64(0), length
	if step < 0 {
		lower, upper = -1, length-1
	}

	start = clampSliceBound(s.Start, length, lower, upper)
	stop = clampSliceBound(s.Stop, length, lower, upper)
	return start, stop, step
}

// clampSliceBound normalizes one slice bound: negative values count back
// from length, then the result is clamped into [lower, upper].
func clampSliceBound(v, length, lower, upper int64) int64 {
	if v < 0 {
		v += length
		if v < lower {
			return lower
		}
		return v
	}
	if v > upper {
		return upper
	}
	return v
}

// GetItem implements spec.md §4.E's getitem: a slice-object index is applied
// to the sequence payload with resolved bounds (no __getslice__ dunder is
// consulted); a plain index goes
// through __getitem__ directly (mp_subscript/sq_item are unified here —
// this model has no separate integer-vs-mapping subscript type slot).
func GetItem(container *objmodel.Object, index interface{}) (*objmodel.Object, error) {
	if sl, ok := index.(Slice); ok {
		return getSlice(container, sl)
	}
	idxObj, ok := index.(*objmodel.Object)
	if !ok {
		return nil, typeErrorf("invalid subscript index")
	}
	fn, ok := container.Class().LookupDunder("__getitem__")
	if !ok {
		return nil, typeErrorf("%q object is not subscriptable", container.Class().Name)
	}
	return fn(container, idxObj)
}

// SetItem implements spec.md §4.E's setitem, symmetric to GetItem.
func SetItem(container *objmodel.Object, index interface{}, value *objmodel.Object) error {
	if sl, ok := index.(Slice); ok {
		return setSlice(container, sl, value)
	}
	idxObj, ok := index.(*objmodel.Object)
	if !ok {
		return typeErrorf("invalid subscript index")
	}
	fn, ok := container.Class().LookupDunder("__setitem__")
	if !ok {
		return typeErrorf("%q object does not support item assignment", container.Class().Name)
	}
	_, err := fn(container, idxObj, value)
	return err
}

// DelItem implements spec.md §4.E's delitem, symmetric to GetItem/SetItem.
func DelItem(container *objmodel.Object, index interface{}) error {
	if sl, ok := index.(Slice); ok {
		return delSlice(container, sl)
	}
	idxObj, ok := index.(*objmodel.Object)
	if !ok {
		return typeErrorf("invalid subscript index")
	}
	fn, ok := container.Class().LookupDunder("__delitem__")
	if !ok {
		return typeErrorf("%q object doesn't support item deletion", container.Class().Name)
	}
	_, err := fn(container, idxObj)
	return err
}

func getSlice(container *objmodel.Object, sl Slice) (*objmodel.Object, error) {
	items, ok := objmodel.AsSlice(container)
	if !ok {
		return nil, typeErrorf("%q object is not sliceable", container.Class().Name)
	}
	start, stop, step := sl.resolve(int64(len(items)))
	var out []*objmodel.Object
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, items[i])
		}
	} else if step < 0 {
		for i := start; i > stop; i += step {
			out = append(out, items[i])
		}
	}
	if container.Class() == objmodel.ListClass {
		return objmodel.NewList(out), nil
	}
	return objmodel.NewTuple(out), nil
}

func setSlice(container *objmodel.Object, sl Slice, value *objmodel.Object) error {
	items, ok := objmodel.AsSlice(container)
	if !ok {
		return typeErrorf("%q object doesn't support slice assignment", container.Class().Name)
	}
	repl, ok := objmodel.AsSlice(value)
	if !ok {
		return typeErrorf("can only assign a sequence to a slice")
	}
	start, stop := containedBounds(sl, int64(len(items)))
	out := append([]*objmodel.Object{}, items[:start]...)
	out = append(out, repl...)
	out = append(out, items[stop:]...)
	return setListPayload(container, out)
}

func delSlice(container *objmodel.Object, sl Slice) error {
	items, ok := objmodel.AsSlice(container)
	if !ok {
		return typeErrorf("%q object doesn't support slice deletion", container.Class().Name)
	}
	start, stop := containedBounds(sl, int64(len(items)))
	out := append([]*objmodel.Object{}, items[:start]...)
	out = append(out, items[stop:]...)
	return setListPayload(container, out)
}

// containedBounds resolves sl against length and additionally clamps into
// [0, length]: setSlice/delSlice only ever splice a single contiguous
// [start:stop) run (they don't honor an extended step), so a descending
// slice's resolve()-produced -1 lower bound — meaningful for getSlice's
// reverse iteration — would otherwise panic indexing items[stop:].
func containedBounds(sl Slice, length int64) (start, stop int64) {
	start, stop, _ = sl.resolve(length)
	if start < 0 {
		start = 0
	}
	if stop < 0 {
		stop = 0
	}
	if start > stop {
		start, stop = stop, start
	}
	return start, stop
}

func setListPayload(container *objmodel.Object, items []*objmodel.Object) error {
	if container.Class() != objmodel.ListClass {
		return typeErrorf("%q object doesn't support slice mutation", container.Class().Name)
	}
	container.Payload = items
	return nil
}
