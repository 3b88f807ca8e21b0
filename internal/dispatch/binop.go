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

// BinOp implements spec.md §4.E's binop: try lhs.__iop__ first only if
// augmented; then, if rhs's class is a proper subclass of lhs's (the
// override-precedence rule that lets a subclass customize the reversed
// operator), try rhs.__rop__ before lhs.__op__; otherwise lhs.__op__ first,
// falling back to rhs.__rop__; NotImplemented from every attempted dunder
// falls through to the next, and exhausting them all is a TypeError.
func BinOp(lhs, rhs *objmodel.Object, op string, augmented bool) (*objmodel.Object, error) {
	iname, rname := dunderNamesForOp(op)

	if augmented {
		iname := "__i" + iname[2:]
		if fn, ok := lhs.Class().LookupDunder(iname); ok {
			if v, err := fn(lhs, rhs); err == nil {
				return v, nil
			} else if err != objmodel.ErrNotImplemented {
				return nil, err
			}
		}
	}

	lc, rc := lhs.Class(), rhs.Class()
	rhsOverrides := rc != lc && rc.IsSubclassOf(lc) && rhsDefinesOverride(rc, rname)

	tryForward := func() (*objmodel.Object, error, bool) {
		fn, ok := lc.LookupDunder(iname)
		if !ok {
			return nil, nil, false
		}
		v, err := fn(lhs, rhs)
		if err == objmodel.ErrNotImplemented {
			return nil, nil, false
		}
		return v, err, true
	}
	tryReverse := func() (*objmodel.Object, error, bool) {
		fn, ok := rc.LookupDunder(rname)
		if !ok {
			return nil, nil, false
		}
		v, err := fn(rhs, lhs)
		if err == objmodel.ErrNotImplemented {
			return nil, nil, false
		}
		return v, err, true
	}

	if rhsOverrides {
		if v, err, done := tryReverse(); done {
			return v, err
		}
		if v, err, done := tryForward(); done {
			return v, err
		}
	} else {
		if v, err, done := tryForward(); done {
			return v, err
		}
		if v, err, done := tryReverse(); done {
			return v, err
		}
	}

	return nil, typeErrorf("unsupported operand type(s) for %s: %q and %q", op, lc.Name, rc.Name)
}

// rhsDefinesOverride reports whether rc itself (not an ancestor it shares
// with lc) defines the reversed dunder.
func rhsDefinesOverride(rc *objmodel.Class, rname string) bool {
	_, ok := rc.OwnDunder(rname)
	return ok
}

func dunderNamesForOp(op string) (forward, reverse string) {
	return "__" + op + "__", "__r" + op + "__"
}
