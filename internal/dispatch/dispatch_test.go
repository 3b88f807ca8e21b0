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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyston/pyston-v1-sub002/internal/objmodel"
)

func TestGetAttrInstanceBeatsNonDataDescriptor(t *testing.T) {
	cls := objmodel.NewClass("Foo", objmodel.ObjectClass)
	cls.SetMethod("bar", func(o *objmodel.Object) (int64, error) { return 1, nil })
	o := objmodel.NewObject(cls)
	o.SetAttr("bar", 7)

	cache := NewMethodCache()
	v, err := GetAttr(o, "bar", cache, nil)
	require.NoError(t, err)
	n, _ := objmodel.AsInt64(v)
	assert.Equal(t, int64(7), n)
}

func TestGetAttrMissingIsAttributeError(t *testing.T) {
	cls := objmodel.NewClass("Foo", objmodel.ObjectClass)
	o := objmodel.NewObject(cls)
	_, err := GetAttr(o, "nope", NewMethodCache(), nil)
	assert.ErrorIs(t, err, ErrAttribute)
}

func TestSetAttrThenGetAttrRoundTrips(t *testing.T) {
	cls := objmodel.NewClass("Foo", objmodel.ObjectClass)
	o := objmodel.NewObject(cls)
	require.NoError(t, SetAttr(o, "x", 42, nil))
	v, err := GetAttr(o, "x", NewMethodCache(), nil)
	require.NoError(t, err)
	n, _ := objmodel.AsInt64(v)
	assert.Equal(t, int64(42), n)
}

func TestDelAttrThenGetAttrFails(t *testing.T) {
	cls := objmodel.NewClass("Foo", objmodel.ObjectClass)
	o := objmodel.NewObject(cls)
	require.NoError(t, SetAttr(o, "x", 1, nil))
	require.NoError(t, DelAttr(o, "x"))
	_, err := GetAttr(o, "x", NewMethodCache(), nil)
	assert.ErrorIs(t, err, ErrAttribute)
}

func TestBinOpIntAddition(t *testing.T) {
	v, err := BinOp(objmodel.NewInt(3), objmodel.NewInt(4), "add", false)
	require.NoError(t, err)
	n, _ := objmodel.AsInt64(v)
	assert.Equal(t, int64(7), n)
}

func TestBinOpMixedIntFloatPromotes(t *testing.T) {
	v, err := BinOp(objmodel.NewInt(3), objmodel.NewFloat(0.5), "add", false)
	require.NoError(t, err)
	f, _ := objmodel.AsFloat64(v)
	assert.InDelta(t, 3.5, f, 1e-9)
}

func TestBinOpUnsupportedIsTypeError(t *testing.T) {
	_, err := BinOp(objmodel.NewStr("a"), objmodel.NewInt(1), "add", false)
	assert.ErrorIs(t, err, ErrType)
}

func TestCompareEqIdentityFallback(t *testing.T) {
	cls := objmodel.NewClass("Opaque", objmodel.ObjectClass)
	a := objmodel.NewObject(cls)
	b := objmodel.NewObject(cls)
	v, err := Compare(a, a, CmpEQ)
	require.NoError(t, err)
	eq, _ := objmodel.AsInt64(v)
	assert.Equal(t, int64(1), eq)

	v, err = Compare(a, b, CmpEQ)
	require.NoError(t, err)
	eq, _ = objmodel.AsInt64(v)
	assert.Equal(t, int64(0), eq)
}

func TestCompareIsUsesPointerIdentityNotValueEquality(t *testing.T) {
	v, err := Compare(objmodel.NewInt(5), objmodel.NewInt(5), CmpIs)
	require.NoError(t, err)
	same, _ := objmodel.AsInt64(v)
	assert.Equal(t, int64(0), same, "two separately boxed ints are not the same object")
}

func TestCompareRichCompareLessThan(t *testing.T) {
	v, err := Compare(objmodel.NewInt(1), objmodel.NewInt(2), CmpLT)
	require.NoError(t, err)
	lt, _ := objmodel.AsInt64(v)
	assert.Equal(t, int64(1), lt)
}

func TestCompareInOnList(t *testing.T) {
	list := objmodel.NewList([]*objmodel.Object{objmodel.NewInt(1), objmodel.NewInt(2)})
	needle := objmodel.NewInt(1)
	list.Payload.([]*objmodel.Object)[0] = needle
	v, err := Compare(needle, list, CmpIn)
	require.NoError(t, err)
	in, _ := objmodel.AsInt64(v)
	assert.Equal(t, int64(1), in)
}

func TestGetItemOnTuple(t *testing.T) {
	tup := objmodel.NewTuple([]*objmodel.Object{objmodel.NewInt(10), objmodel.NewInt(20), objmodel.NewInt(30)})
	v, err := GetItem(tup, objmodel.NewInt(1))
	require.NoError(t, err)
	n, _ := objmodel.AsInt64(v)
	assert.Equal(t, int64(20), n)
}

func TestGetItemSliceOnList(t *testing.T) {
	list := objmodel.NewList([]*objmodel.Object{
		objmodel.NewInt(0), objmodel.NewInt(1), objmodel.NewInt(2), objmodel.NewInt(3),
	})
	v, err := GetItem(list, Slice{Start: 1, Stop: 3, Step: 1})
	require.NoError(t, err)
	items, ok := objmodel.AsSlice(v)
	require.True(t, ok)
	require.Len(t, items, 2)
	n0, _ := objmodel.AsInt64(items[0])
	n1, _ := objmodel.AsInt64(items[1])
	assert.Equal(t, int64(1), n0)
	assert.Equal(t, int64(2), n1)
}

func TestSetItemOnList(t *testing.T) {
	list := objmodel.NewList([]*objmodel.Object{objmodel.NewInt(1), objmodel.NewInt(2)})
	require.NoError(t, SetItem(list, objmodel.NewInt(0), objmodel.NewInt(99)))
	v, err := GetItem(list, objmodel.NewInt(0))
	require.NoError(t, err)
	n, _ := objmodel.AsInt64(v)
	assert.Equal(t, int64(99), n)
}

func TestLenOnTuple(t *testing.T) {
	tup := objmodel.NewTuple([]*objmodel.Object{objmodel.NewInt(1), objmodel.NewInt(2)})
	n, err := Len(tup)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestNonzeroTypeSpecializedFastPaths(t *testing.T) {
	cases := []struct {
		name string
		o    *objmodel.Object
		want bool
	}{
		{"zero int", objmodel.NewInt(0), false},
		{"nonzero int", objmodel.NewInt(5), true},
		{"empty string", objmodel.NewStr(""), false},
		{"nonempty string", objmodel.NewStr("x"), true},
		{"none", objmodel.None(), false},
		{"empty list", objmodel.NewList(nil), false},
		{"nonempty tuple", objmodel.NewTuple([]*objmodel.Object{objmodel.NewInt(1)}), true},
	}
	for _, c := range cases {
		got, err := Nonzero(c.o)
		require.NoError(t, err, c.name)
		assert.Equal(t, c.want, got, c.name)
	}
}

func TestRearrangeExactMatchFastPath(t *testing.T) {
	spec := ArgPassSpec{NumPositional: 2}
	params := ParamReceiveSpec{NumArgs: 2, ParamNames: []string{"a", "b"}}
	args := CallArgs{Positional: []*objmodel.Object{objmodel.NewInt(1), objmodel.NewInt(2)}}

	out, varargs, extra, err := Rearrange(spec, params, args)
	require.NoError(t, err)
	assert.Nil(t, varargs)
	assert.Nil(t, extra)
	require.Len(t, out, 2)
}

func TestRearrangeKeywordsAndDefaults(t *testing.T) {
	spec := ArgPassSpec{NumPositional: 1, NumKeywords: 1}
	params := ParamReceiveSpec{NumArgs: 3, NumDefaults: 1, ParamNames: []string{"a", "b", "c"}}
	args := CallArgs{
		Positional: []*objmodel.Object{objmodel.NewInt(1)},
		Keywords:   map[string]*objmodel.Object{"b": objmodel.NewInt(2)},
	}

	out, varargs, extra, err := Rearrange(spec, params, args)
	require.NoError(t, err)
	assert.Nil(t, varargs)
	assert.Nil(t, extra)
	n0, _ := objmodel.AsInt64(out[0])
	n1, _ := objmodel.AsInt64(out[1])
	assert.Equal(t, int64(1), n0)
	assert.Equal(t, int64(2), n1)
	assert.Nil(t, out[2], "c has a default and was never supplied; caller substitutes it")
}

func TestRearrangeMissingRequiredIsError(t *testing.T) {
	spec := ArgPassSpec{NumPositional: 0}
	params := ParamReceiveSpec{NumArgs: 1, ParamNames: []string{"a"}}
	_, _, _, err := Rearrange(spec, params, CallArgs{})
	assert.ErrorIs(t, err, ErrType)
}

func TestRearrangeUnexpectedKeywordIsError(t *testing.T) {
	spec := ArgPassSpec{NumKeywords: 1}
	params := ParamReceiveSpec{NumArgs: 0}
	_, _, _, err := Rearrange(spec, params, CallArgs{Keywords: map[string]*objmodel.Object{"z": objmodel.NewInt(1)}})
	assert.ErrorIs(t, err, ErrType)
}

func TestRearrangeOverflowIntoStarargsRequiresVarargs(t *testing.T) {
	spec := ArgPassSpec{NumPositional: 2}
	params := ParamReceiveSpec{NumArgs: 1}
	args := CallArgs{Positional: []*objmodel.Object{objmodel.NewInt(1), objmodel.NewInt(2)}}
	_, _, _, err := Rearrange(spec, params, args)
	assert.ErrorIs(t, err, ErrType)
}

func TestRearrangeOverflowIntoStarargsIsCollected(t *testing.T) {
	spec := ArgPassSpec{NumPositional: 3}
	params := ParamReceiveSpec{NumArgs: 1, TakesVarargs: true}
	args := CallArgs{Positional: []*objmodel.Object{objmodel.NewInt(1), objmodel.NewInt(2), objmodel.NewInt(3)}}

	out, varargs, _, err := Rearrange(spec, params, args)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, varargs, 2)
	v0, _ := objmodel.AsInt64(varargs[0])
	v1, _ := objmodel.AsInt64(varargs[1])
	assert.Equal(t, int64(2), v0)
	assert.Equal(t, int64(3), v1)
}

func TestRunTimeCallExactMatch(t *testing.T) {
	callee := &Callable{
		Params: ParamReceiveSpec{NumArgs: 2, ParamNames: []string{"a", "b"}},
		Run: func(positional, varargs []*objmodel.Object, extraKwargs map[string]*objmodel.Object) (*objmodel.Object, error) {
			a, _ := objmodel.AsInt64(positional[0])
			b, _ := objmodel.AsInt64(positional[1])
			return objmodel.NewInt(a + b), nil
		},
	}
	v, err := RuntimeCall(callee, ArgPassSpec{NumPositional: 2}, CallArgs{
		Positional: []*objmodel.Object{objmodel.NewInt(3), objmodel.NewInt(4)},
	})
	require.NoError(t, err)
	n, _ := objmodel.AsInt64(v)
	assert.Equal(t, int64(7), n)
}
