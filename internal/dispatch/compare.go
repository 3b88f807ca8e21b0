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
	"unsafe"

	"github.com/pyston/pyston-v1-sub002/internal/objmodel"
)

// CompareOp enumerates the comparison kinds spec.md §4.E's "Compare"
// section names; richCmpCode is the int64 op code the built-in
// __richcompare__ dunders (objmodel/builtin_dunders.go) switch on.
type CompareOp int

const (
	CmpIs CompareOp = iota
	CmpIsNot
	CmpIn
	CmpNotIn
	CmpLT
	CmpLE
	CmpEQ
	CmpNE
	CmpGT
	CmpGE
)

func (op CompareOp) richCmpCode() int64 {
	switch op {
	case CmpLT:
		return 0
	case CmpLE:
		return 1
	case CmpEQ:
		return 2
	case CmpNE:
		return 3
	case CmpGT:
		return 4
	case CmpGE:
		return 5
	}
	return -1
}

// Compare implements spec.md §4.E's full comparison fallback chain:
//   - is/is not: pointer identity, no dunder involved at all.
//   - in/not in: tp_as_sequence->sq_contains equivalent (__contains__),
//     else iterate the sequence payload directly.
//   - everything else: tp_richcompare fast path, else __op__ then the
//     reversed __op__ on the other operand, else a three-way __cmp__,
//     else default identity/address comparison.
func Compare(lhs, rhs *objmodel.Object, op CompareOp) (*objmodel.Object, error) {
	switch op {
	case CmpIs:
		return objmodel.NewBool(lhs == rhs), nil
	case CmpIsNot:
		return objmodel.NewBool(lhs != rhs), nil
	case CmpIn, CmpNotIn:
		return compareContains(lhs, rhs, op == CmpNotIn)
	}

	if fn, ok := lhs.Class().LookupDunder("__richcompare__"); ok {
		v, err := fn(lhs, rhs, objmodel.NewInt(op.richCmpCode()))
		if err == nil {
			return v, nil
		}
		if err != objmodel.ErrNotImplemented {
			return nil, err
		}
	}

	opName, revOpName := richCompareDunderNames(op)
	if fn, ok := lhs.Class().LookupDunder(opName); ok {
		v, err := fn(lhs, rhs)
		if err == nil {
			return v, nil
		}
		if err != objmodel.ErrNotImplemented {
			return nil, err
		}
	}
	if fn, ok := rhs.Class().LookupDunder(revOpName); ok {
		v, err := fn(rhs, lhs)
		if err == nil {
			return v, nil
		}
		if err != objmodel.ErrNotImplemented {
			return nil, err
		}
	}

	if fn, ok := lhs.Class().LookupDunder("__cmp__"); ok {
		v, err := fn(lhs, rhs)
		if err == nil {
			return threeWayResult(v, op)
		}
		if err != objmodel.ErrNotImplemented {
			return nil, err
		}
	}

	return defaultIdentityCompare(lhs, rhs, op), nil
}

// compareContains implements "in"/"not in": prefer __contains__, else
// iterate the object's sequence payload looking for a match.
func compareContains(lhs, rhs *objmodel.Object, negate bool) (*objmodel.Object, error) {
	// Python's "in" operator is rhs.__contains__(lhs); rhs is the
	// container, lhs is the needle.
	if fn, ok := rhs.Class().LookupDunder("__contains__"); ok {
		v, err := fn(rhs, lhs)
		if err != nil {
			return nil, err
		}
		found, _ := objmodel.AsInt64(v)
		return objmodel.NewBool((found != 0) != negate), nil
	}
	if items, ok := objmodel.AsSlice(rhs); ok {
		for _, item := range items {
			if item == lhs {
				return objmodel.NewBool(!negate), nil
			}
		}
		return objmodel.NewBool(negate), nil
	}
	return nil, typeErrorf("argument of type %q is not iterable", rhs.Class().Name)
}

func richCompareDunderNames(op CompareOp) (fwd, rev string) {
	switch op {
	case CmpLT:
		return "__lt__", "__gt__"
	case CmpLE:
		return "__le__", "__ge__"
	case CmpEQ:
		return "__eq__", "__eq__"
	case CmpNE:
		return "__ne__", "__ne__"
	case CmpGT:
		return "__gt__", "__lt__"
	case CmpGE:
		return "__ge__", "__le__"
	}
	return "", ""
}

// threeWayResult interprets a __cmp__ result (negative/zero/positive int)
// against the requested comparison op.
func threeWayResult(v *objmodel.Object, op CompareOp) (*objmodel.Object, error) {
	n, ok := objmodel.AsInt64(v)
	if !ok {
		return nil, typeErrorf("__cmp__ did not return an int")
	}
	switch op {
	case CmpLT:
		return objmodel.NewBool(n < 0), nil
	case CmpLE:
		return objmodel.NewBool(n <= 0), nil
	case CmpEQ:
		return objmodel.NewBool(n == 0), nil
	case CmpNE:
		return objmodel.NewBool(n != 0), nil
	case CmpGT:
		return objmodel.NewBool(n > 0), nil
	case CmpGE:
		return objmodel.NewBool(n >= 0), nil
	}
	return nil, typeErrorf("unsupported compare op")
}

// defaultIdentityCompare is the last-resort fallback CPython 2's object
// model uses when no richcompare/__cmp__ path applies: order by identity
// (here, a stable pointer-derived ordering) for lt/le/gt/ge, and identity
// equality for eq/ne.
func defaultIdentityCompare(lhs, rhs *objmodel.Object, op CompareOp) *objmodel.Object {
	switch op {
	case CmpEQ:
		return objmodel.NewBool(lhs == rhs)
	case CmpNE:
		return objmodel.NewBool(lhs != rhs)
	}
	a, b := uintptr(unsafe.Pointer(lhs)), uintptr(unsafe.Pointer(rhs))
	switch op {
	case CmpLT:
		return objmodel.NewBool(a < b)
	case CmpLE:
		return objmodel.NewBool(a <= b)
	case CmpGT:
		return objmodel.NewBool(a > b)
	case CmpGE:
		return objmodel.NewBool(a >= b)
	default:
		return objmodel.NewBool(false)
	}
}
