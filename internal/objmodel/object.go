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

package objmodel

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Object is an instance: a class pointer, a refcount, and a hidden-class-
// addressed attribute array. It implements iccache.OwnedRef so the
// refcounting discipline internal/rewrite already emits (Decl on offset 8,
// deferred release on num_inside) applies uniformly to real objects.
type Object struct {
	mu sync.RWMutex

	class *Class
	hc    *HiddenClass
	attrs []int64 // boxed as raw int64; dispatch decides how to interpret

	// Payload carries a built-in class's native value (int64, float64, bool,
	// string, []*Object for tuple/list) the way Pyston's BoxedInt/BoxedFloat
	// etc. embed their native field alongside the common Box header.
	// internal/dispatch type-asserts this per the owning Class.
	Payload interface{}

	refcount int32
}

// refcountOffset is the byte offset internal/rewrite's emitDecref assumes
// every reference-counted heap value carries its count at (matches
// decrefFieldOffset in internal/rewrite/emit.go — both are grounded on the
// same fixed-layout-header convention).
const refcountOffset = 8

// NewObject allocates a fresh instance of cls with an empty attribute set
// and a refcount of 1.
func NewObject(cls *Class) *Object {
	return &Object{
		class:    cls,
		hc:       cls.rootHiddenClass,
		attrs:    getAttrArray(0, hiddenClassInitialSize),
		refcount: 1,
	}
}

// NewBoxed allocates an instance of cls carrying payload as its native
// value, with no hidden-class attributes of its own (built-in numeric/
// string/container types never grow a per-instance __dict__ in this
// model).
func NewBoxed(cls *Class, payload interface{}) *Object {
	o := NewObject(cls)
	o.Payload = payload
	return o
}

// Class returns the instance's class.
func (o *Object) Class() *Class { return o.class }

// HiddenClass returns the instance's current hidden class.
func (o *Object) HiddenClass() *HiddenClass {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.hc
}

// GetAttr returns the raw attribute value at name, or an error if the
// instance doesn't have it set.
func (o *Object) GetAttr(name string) (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	off, ok := o.hc.Offset(name)
	if !ok || off >= len(o.attrs) {
		return 0, errors.Errorf("object has no attribute %q", name)
	}
	return o.attrs[off], nil
}

// SetAttr sets name to value, transitioning the instance's hidden class (via
// GetOrMakeChild) if this is the first time name has been assigned on it.
// Appending a brand-new attribute to a hidden class that already has
// dependent getattr ICs invalidates them first, matching
// HiddenClassSingleton::appendAttribute.
func (o *Object) SetAttr(name string, value int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	off, ok := o.hc.Offset(name)
	if !ok {
		o.hc.Invalidator().InvalidateAll()
		o.hc = o.hc.GetOrMakeChild(name)
		off, _ = o.hc.Offset(name)
	}

	if off >= cap(o.attrs) {
		old := o.attrs
		grown := getAttrArray(off+1, growAttrCapacity(cap(o.attrs), off+1))
		copy(grown, old)
		o.attrs = grown
		putAttrArray(old)
	} else if off >= len(o.attrs) {
		o.attrs = o.attrs[:off+1]
	}
	o.attrs[off] = value
}

// DelAttr removes name, rebuilding the instance's hidden-class chain via
// DelAttrToMakeHC and compacting the attribute array to match.
func (o *Object) DelAttr(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.hc.Offset(name); !ok {
		return errors.Errorf("object has no attribute %q", name)
	}

	o.hc.Invalidator().InvalidateAll()
	newHC := o.hc.DelAttrToMakeHC(o.class.rootHiddenClass, name)

	old := o.attrs
	newAttrs := getAttrArray(newHC.Size(), newHC.Size())
	for attr, newOff := range newHC.offsets {
		if oldOff, ok := o.hc.Offset(attr); ok && oldOff < len(old) {
			newAttrs[newOff] = old[oldOff]
		}
	}
	o.hc = newHC
	o.attrs = newAttrs
	putAttrArray(old)
	return nil
}

// growAttrCapacity doubles cap starting from hiddenClassInitialSize until it
// covers need, matching the teacher's amortized-growth attribute array.
func growAttrCapacity(cur, need int) int {
	if cur == 0 {
		cur = hiddenClassInitialSize
	}
	for cur < need {
		cur *= 2
	}
	return cur
}

// Retain implements iccache.OwnedRef.
func (o *Object) Retain() { atomic.AddInt32(&o.refcount, 1) }

// Release implements iccache.OwnedRef. Once the refcount reaches zero the
// object is considered dead; callers needing to know whether this call was
// the one that freed it should check RefCount() == 0 immediately after.
func (o *Object) Release() { atomic.AddInt32(&o.refcount, -1) }

// RefCount returns the current refcount, for tests and diagnostics.
func (o *Object) RefCount() int32 { return atomic.LoadInt32(&o.refcount) }
