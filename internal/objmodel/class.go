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

// nextVersionTag is the global monotonic counter backing Class.version
// (tp_version_tag = next_version_tag++ in original_source/src/runtime/
// objmodel.cpp). It must be process-global, not per-class: the
// TypeVersionTable indexes and validates entries on (version, name) alone,
// so two different classes that happen to reach the same local counter
// value would collide in the same cache bucket and pass the validity
// check, handing one class's descriptor back for the other's lookup.
var nextVersionTag int64

func newVersionTag() int64 {
	return atomic.AddInt64(&nextVersionTag, 1)
}

// Descriptor is the attribute-lookup protocol classes can install in their
// dict: Get is invoked on every lookup (data descriptors also shadow
// instance attributes; non-data descriptors only apply when the instance
// has nothing of its own under the same name).
type Descriptor struct {
	Name     string
	IsData   bool
	Get      func(instance *Object) (int64, error)
	Set      func(instance *Object, value int64) error
}

// BuiltinFunc is a type-slot method: a C-level special method
// (tp_richcompare, sq_contains, nb_add, ...) implemented directly in Go
// rather than looked up through the generic descriptor/MRO machinery.
// args[0] is always the receiver. Returning (nil, ErrNotImplemented) is how
// a dunder declines, mirroring Python's NotImplemented sentinel.
type BuiltinFunc func(args ...*Object) (*Object, error)

// Class is a minimal type object: a name, a single base (multiple
// inheritance's C3 linearization is out of scope — spec.md's dispatch
// operations only need an MRO walk order, not the full algorithm that
// produces one for diamond hierarchies), a dict of descriptors/methods, a
// table of type-slot dunders, and the version tag that keys this module's
// method cache.
type Class struct {
	mu sync.RWMutex

	Name string
	base *Class

	dict    map[string]*Descriptor
	dunders map[string]BuiltinFunc

	rootHiddenClass *HiddenClass

	version int64
}

// NewClass creates a class deriving from base (nil for a root class like
// "object").
func NewClass(name string, base *Class) *Class {
	return &Class{
		Name:            name,
		base:            base,
		dict:            make(map[string]*Descriptor),
		dunders:         make(map[string]BuiltinFunc),
		rootHiddenClass: NewRootHiddenClass(),
		version:         newVersionTag(),
	}
}

// SetDunder installs a type-slot method under name (e.g. "__add__",
// "__richcompare__", "__len__"). Unlike SetMethod/SetDescriptor this never
// bumps the class version: dunder lookup isn't routed through the
// method-cache/hidden-class machinery spec.md keys on attribute names, it
// mirrors CPython's direct tp_as_number/tp_as_sequence/tp_richcompare type
// slots.
func (c *Class) SetDunder(name string, fn BuiltinFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dunders[name] = fn
}

// OwnDunder returns the dunder this exact class defines, ignoring
// inherited ones — used to decide whether a subclass has genuinely
// overridden a reversed operator (only a real override earns
// reversed-operator precedence in BinOp's dispatch order).
func (c *Class) OwnDunder(name string) (BuiltinFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.dunders[name]
	return fn, ok
}

// LookupDunder walks the MRO for the first class defining name as a dunder.
func (c *Class) LookupDunder(name string) (BuiltinFunc, bool) {
	for _, cls := range c.MRO() {
		cls.mu.RLock()
		fn, ok := cls.dunders[name]
		cls.mu.RUnlock()
		if ok {
			return fn, true
		}
	}
	return nil, false
}

// IsSubclassOf reports whether c is d or a descendant of d in the base
// chain.
func (c *Class) IsSubclassOf(d *Class) bool {
	for cur := c; cur != nil; cur = cur.base {
		if cur == d {
			return true
		}
	}
	return false
}

// Version returns this class's current version tag (tp_version_tag in the
// original): drawn from the process-global nextVersionTag counter on every
// dict mutation, so it stays unique across classes — the TypeVersionTable
// indexes and validates a method cache entry on (version, name hash) alone,
// with no class pointer in the key, which only stays correct because no two
// classes ever share a version value.
func (c *Class) Version() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// SetMethod installs name as a plain (non-data) method descriptor and bumps
// the class version, invalidating any method cache entry keyed on the old
// version.
func (c *Class) SetMethod(name string, fn func(instance *Object) (int64, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dict[name] = &Descriptor{Name: name, IsData: false, Get: fn}
	c.version = newVersionTag()
}

// SetDescriptor installs a full data descriptor (both Get and Set) under
// name and bumps the class version.
func (c *Class) SetDescriptor(name string, d *Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d.Name = name
	d.IsData = d.Set != nil
	c.dict[name] = d
	c.version = newVersionTag()
}

// MRO returns the method resolution order: this class followed by each
// ancestor in base-chain order, terminating at the root.
func (c *Class) MRO() []*Class {
	var mro []*Class
	for cur := c; cur != nil; cur = cur.base {
		mro = append(mro, cur)
	}
	return mro
}

// LookupDescriptor walks the MRO for the first class that defines name in
// its own dict, returning the owning class and descriptor. This is the
// non-instance half of attribute lookup: getattr first checks this, then
// falls back to the instance's own hidden-class-addressed storage unless a
// data descriptor was found (which takes precedence over instance state).
func (c *Class) LookupDescriptor(name string) (*Class, *Descriptor, bool) {
	for _, cls := range c.MRO() {
		cls.mu.RLock()
		d, ok := cls.dict[name]
		cls.mu.RUnlock()
		if ok {
			return cls, d, true
		}
	}
	return nil, nil, false
}

// GetAttr implements the full descriptor-aware attribute protocol: a data
// descriptor found anywhere in the MRO wins outright; otherwise the
// instance's own attribute wins; otherwise a non-data descriptor
// (ordinary method) is used; otherwise it's an AttributeError.
func GetAttr(o *Object, name string) (int64, error) {
	if _, d, ok := o.class.LookupDescriptor(name); ok && d.IsData {
		return d.Get(o)
	}
	if v, err := o.GetAttr(name); err == nil {
		return v, nil
	}
	if _, d, ok := o.class.LookupDescriptor(name); ok {
		return d.Get(o)
	}
	return 0, errors.Errorf("%s object has no attribute %q", o.class.Name, name)
}

// SetAttr implements the write half: a data descriptor's Set wins; absent
// one, the value lands directly in instance storage (matching CPython's
// "only data descriptors can intercept assignment" rule, which the original
// Pyston object model also follows).
func SetAttr(o *Object, name string, value int64) error {
	if _, d, ok := o.class.LookupDescriptor(name); ok && d.IsData {
		return d.Set(o, value)
	}
	o.SetAttr(name, value)
	return nil
}
