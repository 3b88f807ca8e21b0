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

// Package dispatch implements spec.md §4.E's generic-dispatch slow paths:
// attribute get/set/delete, call, binary op, compare, subscript, len and
// nonzero. Each entry point executes the full semantic over
// internal/objmodel values and, when handed a live call-site ICInfo, drives
// an internal/rewrite.Rewriter to emit a specialized fast path guarded on
// the shapes actually observed — exactly the "record a guard, then the
// work, then request a fast path" loop spec.md §4.C's Rewriter exists to
// support.
package dispatch

import (
	"github.com/pkg/errors"

	"github.com/pyston/pyston-v1-sub002/internal/iccache"
	"github.com/pyston/pyston-v1-sub002/internal/objmodel"
)

// AttributeError, TypeError and IndexError mirror the CPython exception
// categories spec.md's dispatch contracts name; CAPI-flavor entry points
// return these same values rather than a distinct "error code" type (this
// module has no separate CAPI error-indicator slot to set).
var (
	ErrAttribute = errors.New("AttributeError")
	ErrType      = errors.New("TypeError")
	ErrIndex     = errors.New("IndexError")
)

// attributeError wraps ErrAttribute with the missing name, so callers can
// still errors.Is(err, ErrAttribute) after wrapping.
func attributeError(cls *objmodel.Class, name string) error {
	return errors.Wrapf(ErrAttribute, "%s object has no attribute %q", cls.Name, name)
}

func typeErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrType, format, args...)
}

// MethodCache is the dispatch-facing handle on a class's versioned method
// cache (spec.md §8 property 3): a thin wrapper so call sites don't reach
// into internal/objmodel directly.
type MethodCache struct {
	table *objmodel.TypeVersionTable
}

// NewMethodCache creates an empty method cache, typically one per compiled
// call site.
func NewMethodCache() *MethodCache {
	return &MethodCache{table: objmodel.NewTypeVersionTable()}
}

// Lookup resolves name against o's class through the cache.
func (mc *MethodCache) Lookup(o *objmodel.Object, name string) (*objmodel.Class, *objmodel.Descriptor, bool) {
	return mc.table.Lookup(o.Class(), name)
}

// ShouldRewrite reports whether a call site's IC is worth spending a
// rewrite attempt on right now (ic nil means "no IC at this call site at
// all" — always false).
func ShouldRewrite(ic *iccache.ICInfo) bool {
	return ic != nil && ic.ShouldAttempt()
}
