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

// registerNumericDunders wires __add__/__sub__/__mul__ and the comparison
// dunders for int/float/bool so internal/dispatch's binop/compare chains
// have something real to fall back through, beyond the type-specialized
// fast paths it tries first.
func registerNumericDunders() {
	add := func(args ...*Object) (*Object, error) {
		a, b := args[0], args[1]
		if fa, ok := AsFloat64(a); ok {
			if fb, ok := AsFloat64(b); ok {
				if _, aIsFloat := a.Payload.(float64); aIsFloat {
					return NewFloat(fa + fb), nil
				}
				if _, bIsFloat := b.Payload.(float64); bIsFloat {
					return NewFloat(fa + fb), nil
				}
			}
		}
		if ia, ok := AsInt64(a); ok {
			if ib, ok := AsInt64(b); ok {
				return NewInt(ia + ib), nil
			}
		}
		return nil, ErrNotImplemented
	}
	sub := func(args ...*Object) (*Object, error) {
		a, b := args[0], args[1]
		if _, af := a.Payload.(float64); af {
			if fb, ok := AsFloat64(b); ok {
				fa, _ := AsFloat64(a)
				return NewFloat(fa - fb), nil
			}
		}
		if _, bf := b.Payload.(float64); bf {
			if fa, ok := AsFloat64(a); ok {
				fb, _ := AsFloat64(b)
				return NewFloat(fa - fb), nil
			}
		}
		if ia, ok := AsInt64(a); ok {
			if ib, ok := AsInt64(b); ok {
				return NewInt(ia - ib), nil
			}
		}
		return nil, ErrNotImplemented
	}
	mul := func(args ...*Object) (*Object, error) {
		a, b := args[0], args[1]
		if _, af := a.Payload.(float64); af {
			if fb, ok := AsFloat64(b); ok {
				fa, _ := AsFloat64(a)
				return NewFloat(fa * fb), nil
			}
		}
		if _, bf := b.Payload.(float64); bf {
			if fa, ok := AsFloat64(a); ok {
				fb, _ := AsFloat64(b)
				return NewFloat(fa * fb), nil
			}
		}
		if ia, ok := AsInt64(a); ok {
			if ib, ok := AsInt64(b); ok {
				return NewInt(ia * ib), nil
			}
		}
		return nil, ErrNotImplemented
	}

	for _, cls := range []*Class{IntClass, BoolClass, FloatClass} {
		cls.SetDunder("__add__", add)
		cls.SetDunder("__sub__", sub)
		cls.SetDunder("__mul__", mul)
	}

	richcompare := func(args ...*Object) (*Object, error) {
		// args: self, other, op (boxed int, see dispatch.CompareOp.richCmpCode)
		a, b := args[0], args[1]
		opCode, _ := AsInt64(args[2])
		fa, aok := AsFloat64(a)
		fb, bok := AsFloat64(b)
		if !aok || !bok {
			return nil, ErrNotImplemented
		}
		var result bool
		switch opCode {
		case 0: // lt
			result = fa < fb
		case 1: // le
			result = fa <= fb
		case 2: // eq
			result = fa == fb
		case 3: // ne
			result = fa != fb
		case 4: // gt
			result = fa > fb
		case 5: // ge
			result = fa >= fb
		default:
			return nil, ErrNotImplemented
		}
		return NewBool(result), nil
	}
	for _, cls := range []*Class{IntClass, BoolClass, FloatClass} {
		cls.SetDunder("__richcompare__", richcompare)
	}

	StrClass.SetDunder("__richcompare__", func(args ...*Object) (*Object, error) {
		a, aok := AsString(args[0])
		b, bok := AsString(args[1])
		opCode, _ := AsInt64(args[2])
		if !aok || !bok {
			return nil, ErrNotImplemented
		}
		switch opCode {
		case 0:
			return NewBool(a < b), nil
		case 1:
			return NewBool(a <= b), nil
		case 2:
			return NewBool(a == b), nil
		case 3:
			return NewBool(a != b), nil
		case 4:
			return NewBool(a > b), nil
		case 5:
			return NewBool(a >= b), nil
		}
		return nil, ErrNotImplemented
	})

	nonzero := func(args ...*Object) (*Object, error) {
		o := args[0]
		if v, ok := AsFloat64(o); ok {
			return NewBool(v != 0), nil
		}
		return nil, ErrNotImplemented
	}
	IntClass.SetDunder("__nonzero__", nonzero)
	BoolClass.SetDunder("__nonzero__", nonzero)
	FloatClass.SetDunder("__nonzero__", nonzero)
	StrClass.SetDunder("__len__", func(args ...*Object) (*Object, error) {
		s, ok := AsString(args[0])
		if !ok {
			return nil, ErrNotImplemented
		}
		return NewInt(int64(len(s))), nil
	})
}

// registerSequenceDunders wires __len__/__getitem__/__contains__ for
// tuple/list, used by dispatch's subscript/len/in-comparison paths.
func registerSequenceDunders() {
	for _, cls := range []*Class{TupleClass, ListClass} {
		cls.SetDunder("__len__", func(args ...*Object) (*Object, error) {
			s, ok := AsSlice(args[0])
			if !ok {
				return nil, ErrNotImplemented
			}
			return NewInt(int64(len(s))), nil
		})
		cls.SetDunder("__getitem__", func(args ...*Object) (*Object, error) {
			s, ok := AsSlice(args[0])
			if !ok {
				return nil, ErrNotImplemented
			}
			idx, ok := AsInt64(args[1])
			if !ok {
				return nil, ErrNotImplemented
			}
			if idx < 0 {
				idx += int64(len(s))
			}
			if idx < 0 || idx >= int64(len(s)) {
				return nil, indexError
			}
			return s[idx], nil
		})
		cls.SetDunder("__contains__", func(args ...*Object) (*Object, error) {
			s, ok := AsSlice(args[0])
			if !ok {
				return nil, ErrNotImplemented
			}
			for _, item := range s {
				if item == args[1] {
					return NewBool(true), nil
				}
			}
			return NewBool(false), nil
		})
	}

	ListClass.SetDunder("__setitem__", func(args ...*Object) (*Object, error) {
		self := args[0]
		s, ok := AsSlice(self)
		if !ok {
			return nil, ErrNotImplemented
		}
		idx, ok := AsInt64(args[1])
		if !ok {
			return nil, ErrNotImplemented
		}
		if idx < 0 {
			idx += int64(len(s))
		}
		if idx < 0 || idx >= int64(len(s)) {
			return nil, indexError
		}
		s[idx] = args[2]
		return None(), nil
	})

	ListClass.SetDunder("__delitem__", func(args ...*Object) (*Object, error) {
		self := args[0]
		s, ok := AsSlice(self)
		if !ok {
			return nil, ErrNotImplemented
		}
		idx, ok := AsInt64(args[1])
		if !ok {
			return nil, ErrNotImplemented
		}
		if idx < 0 {
			idx += int64(len(s))
		}
		if idx < 0 || idx >= int64(len(s)) {
			return nil, indexError
		}
		self.Payload = append(s[:idx], s[idx+1:]...)
		return None(), nil
	})
}
