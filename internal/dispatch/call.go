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

// Callable is the minimal function-object surface RuntimeCall needs: a
// declared parameter shape plus the Go closure that runs once arguments
// have been rearranged into it. A real compiled-function-version-selection
// step (preferring a version whose exception style and argument types
// match the caller) has nothing to select between in this model — there is
// exactly one version per Callable — so RuntimeCall always "selects" that
// one version, which is the degenerate case spec.md's version-selection
// step reduces to here.
type Callable struct {
	Params ParamReceiveSpec
	Run    func(positional, varargs []*objmodel.Object, extraKwargs map[string]*objmodel.Object) (*objmodel.Object, error)
}

// RuntimeCall implements spec.md §4.E's runtimeCall: rearrange args per the
// callee's declared shape, then invoke. Binding a receiver for an
// instance-method call is CallAttr's job, not this function's — RuntimeCall
// assumes callee's parameter list, if any receiver is expected, already
// accounts for it.
func RuntimeCall(callee *Callable, spec ArgPassSpec, args CallArgs) (*objmodel.Object, error) {
	positional, varargs, extraKwargs, err := Rearrange(spec, callee.Params, args)
	if err != nil {
		return nil, err
	}
	return callee.Run(positional, varargs, extraKwargs)
}

// CallAttr implements spec.md §4.E's callattr: look up name on receiver
// (through the descriptor protocol, so a plain function attribute becomes
// a bound method the way Python's instancemethod binding does), then
// RuntimeCall it with the receiver prepended to the positional arguments.
func CallAttr(receiver *objmodel.Object, name string, cache *MethodCache, spec ArgPassSpec, args CallArgs) (*objmodel.Object, error) {
	_, desc, ok := cache.Lookup(receiver, name)
	if !ok {
		return nil, attributeError(receiver.Class(), name)
	}
	v, err := desc.Get(receiver)
	if err != nil {
		return nil, err
	}
	callable, ok := boundCallables[v]
	if !ok {
		return nil, typeErrorf("%q object is not callable", name)
	}

	boundSpec := spec
	boundSpec.NumPositional++
	boundArgs := args
	boundArgs.Positional = append([]*objmodel.Object{receiver}, args.Positional...)
	return RuntimeCall(callable, boundSpec, boundArgs)
}

// boundCallables is a placeholder registry mapping a descriptor's raw
// int64 "value" back to the Callable it represents; this object model has
// no first-class function-object box distinct from int64 attribute
// storage, so callers that want CallAttr to actually invoke something
// must register the mapping here first via RegisterCallable.
var boundCallables = map[int64]*Callable{}

// RegisterCallable associates token with callable so a descriptor whose
// Get returns token can be dispatched through CallAttr.
func RegisterCallable(token int64, callable *Callable) {
	boundCallables[token] = callable
}
