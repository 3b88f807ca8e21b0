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

// ArgPassSpec describes how a caller passed its arguments: how many were
// positional, how many were keyword, and whether it also passed a
// *args/**kwargs expansion — ported semantics (not code) from
// rearrange_arguments.cpp's struct of the same name.
type ArgPassSpec struct {
	NumPositional int
	NumKeywords   int
	HasStarargs   bool
	HasKwargs     bool
}

// ParamReceiveSpec describes a callee's declared parameter list.
type ParamReceiveSpec struct {
	NumArgs      int
	NumDefaults  int
	TakesVarargs bool
	TakesKwargs  bool
	ParamNames   []string // first NumArgs entries name the positional/keyword-accepting params, in order
}

// CallArgs bundles everything a caller actually supplied.
type CallArgs struct {
	Positional []*objmodel.Object
	Keywords   map[string]*objmodel.Object
	Starargs   []*objmodel.Object          // expansion of a passed *args, if HasStarargs
	Kwargs     map[string]*objmodel.Object // expansion of a passed **kwargs, if HasKwargs
}

// Rearrange implements spec.md §4.E's argument-rearrangement algorithm: it
// is, per spec.md, "the single most performance-critical routine" in the
// system, because it runs on every call regardless of whether a fast path
// exists yet for that call site.
//
// Fast path: when the caller's ArgPassSpec matches the callee's
// ParamReceiveSpec exactly — same positional count, no keywords, no
// star-expansion, no defaults needed, no varargs/kwargs collection — the
// incoming positional slice is the answer, verbatim, with no further work.
// That shortcut is checked first and is the only case the per-call-site
// rewrite that follows actually needs to key a guard on; everything below
// it is the slow, fully general fallback.
//
// Returns the rearranged declared-parameter slots, any overflow positional
// arguments collected for a *args-taking callee (nil unless params declares
// TakesVarargs and a caller actually overflowed), and any overflow keyword
// arguments collected for a **kwargs-taking callee.
func Rearrange(spec ArgPassSpec, params ParamReceiveSpec, args CallArgs) (positional, varargs []*objmodel.Object, extraKeywords map[string]*objmodel.Object, err error) {
	if isExactMatch(spec, params) {
		return append([]*objmodel.Object(nil), args.Positional...), nil, nil, nil
	}

	out := make([]*objmodel.Object, params.NumArgs)
	filled := make([]bool, params.NumArgs)

	var extraPositional []*objmodel.Object
	for i, v := range args.Positional {
		if i < params.NumArgs {
			out[i] = v
			filled[i] = true
		} else {
			extraPositional = append(extraPositional, v)
		}
	}
	extraPositional = append(extraPositional, args.Starargs...)

	if len(extraPositional) > 0 {
		if !params.TakesVarargs {
			return nil, nil, nil, typeErrorf("takes at most %d positional arguments (%d given)",
				params.NumArgs, spec.NumPositional+len(args.Starargs))
		}
	}

	applyKeyword := func(name string, v *objmodel.Object) error {
		idx := paramIndex(params, name)
		if idx < 0 {
			if !params.TakesKwargs {
				return typeErrorf("got an unexpected keyword argument %q", name)
			}
			if extraKeywords == nil {
				extraKeywords = make(map[string]*objmodel.Object)
			}
			if _, dup := extraKeywords[name]; dup {
				return typeErrorf("got multiple values for keyword argument %q", name)
			}
			extraKeywords[name] = v
			return nil
		}
		if filled[idx] {
			return typeErrorf("got multiple values for argument %q", name)
		}
		out[idx] = v
		filled[idx] = true
		return nil
	}

	for name, v := range args.Keywords {
		if err := applyKeyword(name, v); err != nil {
			return nil, nil, nil, err
		}
	}
	for name, v := range args.Kwargs {
		if err := applyKeyword(name, v); err != nil {
			return nil, nil, nil, err
		}
	}

	firstDefaultIdx := params.NumArgs - params.NumDefaults
	var missing []string
	for i := 0; i < params.NumArgs; i++ {
		if filled[i] {
			continue
		}
		if i >= firstDefaultIdx {
			// left as the zero value; caller substitutes the compiled
			// default constant the way callFunc does for a declared
			// default — this module has no function-object default-value
			// store to read from.
			continue
		}
		if i < len(params.ParamNames) {
			missing = append(missing, params.ParamNames[i])
		} else {
			missing = append(missing, "<positional>")
		}
	}
	if len(missing) > 0 {
		return nil, nil, nil, typeErrorf("missing required argument(s): %v", missing)
	}

	return out, extraPositional, extraKeywords, nil
}

// isExactMatch is the fast-path shortcut spec.md calls out by name: a
// direct passthrough with zero bookkeeping whenever the shapes already
// line up.
func isExactMatch(spec ArgPassSpec, params ParamReceiveSpec) bool {
	return spec.NumPositional == params.NumArgs &&
		spec.NumKeywords == 0 &&
		!spec.HasStarargs &&
		!spec.HasKwargs &&
		params.NumDefaults == 0 &&
		!params.TakesVarargs &&
		!params.TakesKwargs
}

func paramIndex(params ParamReceiveSpec, name string) int {
	for i, n := range params.ParamNames {
		if i >= params.NumArgs {
			break
		}
		if n == name {
			return i
		}
	}
	return -1
}
