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
	"hash/fnv"
	"sync"
)

// methodCacheSize and the shift below implement spec.md §5/§8 property 3's
// versioned method cache: 1024 buckets, indexed by (version*hash) shifted
// down to the top 10 bits, so a stale (version, name) pair never collides
// usefully with the current one without an explicit re-check.
const (
	methodCacheSize  = 1024
	methodCacheShift = 64 - 10
)

type methodCacheEntry struct {
	valid   bool
	version int64
	name    string
	owner   *Class
	desc    *Descriptor
}

// TypeVersionTable is a small direct-mapped cache from (class version, attr
// name) to the resolved (owner class, descriptor), avoiding a full MRO walk
// on every call-site hit once a class's version has stabilized.
type TypeVersionTable struct {
	mu      sync.Mutex
	entries [methodCacheSize]methodCacheEntry
}

// NewTypeVersionTable creates an empty method cache.
func NewTypeVersionTable() *TypeVersionTable {
	return &TypeVersionTable{}
}

func methodCacheIndex(version int64, name string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	hash := h.Sum64()
	return int((uint64(version) * hash) >> methodCacheShift)
}

// Lookup resolves name against cls, consulting the cache first and walking
// the MRO (via Class.LookupDescriptor) on a miss or a version mismatch. A
// version mismatch means some ancestor's dict changed since this slot was
// filled, so the old entry is simply overwritten rather than invalidated
// out-of-band — the version tag IS the invalidation.
func (t *TypeVersionTable) Lookup(cls *Class, name string) (*Class, *Descriptor, bool) {
	version := cls.Version()
	idx := methodCacheIndex(version, name)

	t.mu.Lock()
	e := t.entries[idx]
	t.mu.Unlock()

	if e.valid && e.version == version && e.name == name {
		return e.owner, e.desc, e.desc != nil
	}

	owner, desc, ok := cls.LookupDescriptor(name)

	t.mu.Lock()
	t.entries[idx] = methodCacheEntry{valid: true, version: version, name: name, owner: owner, desc: desc}
	t.mu.Unlock()

	return owner, desc, ok
}
