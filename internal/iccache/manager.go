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

package iccache

import (
	"sync"

	"github.com/pyston/pyston-v1-sub002/internal/rtlog"
)

// Manager owns the process-wide return-address -> ICInfo map (spec.md §5
// "Shared resources"). Single-threaded Python execution makes the map's
// *content* conflict-free by construction, but the map itself is touched
// from Go, so access is still guarded by a mutex rather than relying on
// cooperative scheduling the host language provides and Go doesn't.
type Manager struct {
	mu  sync.Mutex
	ics map[uint64]*ICInfo
}

// NewManager creates an empty IC registry. Most hosts want a single shared
// instance (see Default()).
func NewManager() *Manager {
	return &Manager{ics: make(map[uint64]*ICInfo)}
}

var defaultManager = NewManager()

// Default returns the process-wide Manager singleton, mirroring the
// original's global free functions (registerCompiledPatchpoint, getICInfo).
func Default() *Manager { return defaultManager }

// RegisterCompiledPatchpoint installs the initial stub (`nop; jmp
// slowpath_start`) into code, creates one slot covering the whole region,
// and registers the IC keyed by slowpathReturnAddr so a later slow-path
// return can look it back up.
func (m *Manager) RegisterCompiledPatchpoint(
	startAddr, slowpathStartAddr, continueAddr, slowpathReturnAddr uint64,
	code []byte, scratchRspOffset int32, scratchSize int,
	callingConv CallingConv, liveOuts LiveOutSet, globalDecrefLocations []DecrefLocation,
	debugName string,
) *ICInfo {
	ic := newICInfo(startAddr, slowpathStartAddr, continueAddr, slowpathReturnAddr, code,
		scratchRspOffset, scratchSize, callingConv, liveOuts, globalDecrefLocations, debugName)
	ic.installInitialStub()

	m.mu.Lock()
	m.ics[slowpathReturnAddr] = ic
	m.mu.Unlock()

	rtlog.L().Debug().Str("ic", debugName).Uint64("slowpath_return", slowpathReturnAddr).
		Int("size", len(code)).Msg("registered patchpoint")
	return ic
}

// GetICInfo looks up the IC keyed by the address the slow path will return
// to, or nil if none is registered there.
func (m *Manager) GetICInfo(returnAddr uint64) *ICInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ics[returnAddr]
}

// Deregister removes an IC from the registry (deregisterCompiledPatchpoint),
// e.g. when the owning compiled function is freed.
func (m *Manager) Deregister(ic *ICInfo) {
	m.mu.Lock()
	delete(m.ics, ic.SlowpathReturnAddr)
	m.mu.Unlock()
}

// ClearAllICs clears every slot of every registered IC — mostly useful for
// refcount-debugging test harnesses, per the original's comment.
func (m *Manager) ClearAllICs() {
	m.mu.Lock()
	ics := make([]*ICInfo, 0, len(m.ics))
	for _, ic := range m.ics {
		ics = append(ics, ic)
	}
	m.mu.Unlock()

	for _, ic := range ics {
		ic.ClearAll()
	}
}
