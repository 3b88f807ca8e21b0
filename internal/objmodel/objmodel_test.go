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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHiddenClassTransitionsAreMemoized(t *testing.T) {
	root := NewRootHiddenClass()
	a1 := root.GetOrMakeChild("x")
	a2 := root.GetOrMakeChild("x")
	assert.Same(t, a1, a2, "same attribute from the same parent must converge to one hidden class")

	b := root.GetOrMakeChild("y")
	assert.NotSame(t, a1, b)

	off, ok := a1.Offset("x")
	require.True(t, ok)
	assert.Equal(t, 0, off)
}

func TestSetAttrGrowsHiddenClassAndInvalidatesOldGuard(t *testing.T) {
	cls := NewClass("Point", ObjectClass)
	o := NewObject(cls)
	hc0 := o.HiddenClass()
	inv := hc0.Invalidator()
	assert.Equal(t, int64(0), inv.Version())

	o.SetAttr("x", 10)
	assert.Equal(t, int64(1), inv.Version(), "appending the first attribute must invalidate guards on the empty shape")

	v, err := o.GetAttr("x")
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	o.SetAttr("y", 20)
	v, err = o.GetAttr("x")
	require.NoError(t, err)
	assert.Equal(t, int64(10), v, "existing attributes survive a later transition")
}

func TestDelAttrPreservesOrderAndCompacts(t *testing.T) {
	cls := NewClass("Point3", ObjectClass)
	o := NewObject(cls)
	o.SetAttr("x", 1)
	o.SetAttr("y", 2)
	o.SetAttr("z", 3)

	require.NoError(t, o.DelAttr("y"))

	_, err := o.GetAttr("y")
	assert.Error(t, err)

	vx, err := o.GetAttr("x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), vx)

	vz, err := o.GetAttr("z")
	require.NoError(t, err)
	assert.Equal(t, int64(3), vz)
}

func TestDataDescriptorShadowsInstanceAttribute(t *testing.T) {
	cls := NewClass("WithProp", ObjectClass)
	cls.SetDescriptor("p", &Descriptor{
		Get: func(o *Object) (int64, error) { return 999, nil },
		Set: func(o *Object, v int64) error { o.SetAttr("_p", v); return nil },
	})
	o := NewObject(cls)
	o.SetAttr("p", 5) // Object.SetAttr writes instance storage directly, bypassing the descriptor

	v, err := GetAttr(o, "p")
	require.NoError(t, err)
	assert.Equal(t, int64(999), v, "a data descriptor's Get always wins over instance storage")
}

func TestMRONonDataDescriptorOnlyAppliesWhenInstanceLacksAttr(t *testing.T) {
	base := NewClass("Base", ObjectClass)
	base.SetMethod("greet", func(o *Object) (int64, error) { return 1, nil })
	derived := NewClass("Derived", base)

	o := NewObject(derived)
	v, err := GetAttr(o, "greet")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	o.SetAttr("greet", 42)
	v, err = GetAttr(o, "greet")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v, "instance attribute wins over a non-data descriptor")
}

func TestTypeVersionTableInvalidatesOnClassMutation(t *testing.T) {
	cls := NewClass("Cached", ObjectClass)
	cls.SetMethod("m", func(o *Object) (int64, error) { return 1, nil })

	table := NewTypeVersionTable()
	_, d1, ok := table.Lookup(cls, "m")
	require.True(t, ok)
	assert.NotNil(t, d1)

	cls.SetMethod("m", func(o *Object) (int64, error) { return 2, nil })
	_, d2, ok := table.Lookup(cls, "m")
	require.True(t, ok)
	v, err := d2.Get(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v, "a version bump must force a fresh MRO walk instead of serving the stale cached descriptor")
}

func TestObjectRefcounting(t *testing.T) {
	o := NewObject(NewClass("C", ObjectClass))
	assert.EqualValues(t, 1, o.RefCount())
	o.Retain()
	assert.EqualValues(t, 2, o.RefCount())
	o.Release()
	o.Release()
	assert.EqualValues(t, 0, o.RefCount())
}
