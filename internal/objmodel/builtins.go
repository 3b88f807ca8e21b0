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
	"github.com/pkg/errors"
)

// ErrNotImplemented is the sentinel a BuiltinFunc returns to decline
// (Python's NotImplemented), distinct from a real error: dispatch's binop
// fallback chain only keeps trying alternates while it sees this.
var ErrNotImplemented = errors.New("NotImplemented")

// The built-in classes every Value dispatch.go operates over. They form a
// flat hierarchy under ObjectClass; Bool derives from Int the way CPython's
// bool is a subclass of int.
var (
	ObjectClass = NewClass("object", nil)
	NoneClass   = NewClass("NoneType", ObjectClass)
	IntClass    = NewClass("int", ObjectClass)
	BoolClass   = NewClass("bool", IntClass)
	FloatClass  = NewClass("float", ObjectClass)
	StrClass    = NewClass("str", ObjectClass)
	TupleClass  = NewClass("tuple", ObjectClass)
	ListClass   = NewClass("list", ObjectClass)
)

var noneSingleton = NewBoxed(NoneClass, nil)

// None returns the single NoneType instance.
func None() *Object { return noneSingleton }

func NewInt(v int64) *Object     { return NewBoxed(IntClass, v) }
func NewFloat(v float64) *Object { return NewBoxed(FloatClass, v) }
func NewStr(v string) *Object    { return NewBoxed(StrClass, v) }
func NewTuple(items []*Object) *Object { return NewBoxed(TupleClass, append([]*Object(nil), items...)) }
func NewList(items []*Object) *Object  { return NewBoxed(ListClass, append([]*Object(nil), items...)) }

var (
	trueSingleton  = NewBoxed(BoolClass, true)
	falseSingleton = NewBoxed(BoolClass, false)
)

// NewBool returns one of the two canonical bool singletons, matching
// CPython's True/False identity guarantee (relied on by "is"-comparison
// tests elsewhere in this package).
func NewBool(v bool) *Object {
	if v {
		return trueSingleton
	}
	return falseSingleton
}

// AsInt64 type-asserts o's payload as an int (true for both int and bool,
// mirroring bool-is-a-subclass-of-int).
func AsInt64(o *Object) (int64, bool) {
	switch v := o.Payload.(type) {
	case int64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// AsFloat64 type-asserts o's payload as a float64, widening an int payload.
func AsFloat64(o *Object) (float64, bool) {
	switch v := o.Payload.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// AsString type-asserts o's payload as a string.
func AsString(o *Object) (string, bool) {
	s, ok := o.Payload.(string)
	return s, ok
}

// AsSlice type-asserts o's payload as a tuple/list element slice.
func AsSlice(o *Object) ([]*Object, bool) {
	s, ok := o.Payload.([]*Object)
	return s, ok
}

func init() {
	registerNumericDunders()
	registerSequenceDunders()
}
