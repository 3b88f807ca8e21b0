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

package runtimeic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyston/pyston-v1-sub002/internal/iccache"
)

func TestPoolAllocateReleaseReusesChunks(t *testing.T) {
	p := NewPool()
	c1, err := p.Allocate()
	require.NoError(t, err)
	require.NotNil(t, c1)
	assert.Len(t, c1.Code, ChunkSize)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Pages)
	assert.Equal(t, ChunksPerPage-1, stats.FreeListLen)

	p.Release(c1)
	c2, err := p.Allocate()
	require.NoError(t, err)
	assert.Same(t, c1, c2, "released chunk should be reused before mapping a new page")
}

func TestPoolMapsNewPageOnceFreeListExhausted(t *testing.T) {
	p := NewPool()
	for i := 0; i < ChunksPerPage; i++ {
		_, err := p.Allocate()
		require.NoError(t, err)
	}
	assert.Equal(t, 1, p.Stats().Pages)

	_, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stats().Pages)
}

func TestBuildTrampolineRegistersPatchpoint(t *testing.T) {
	pool := NewPool()
	mgr := iccache.NewManager()

	tr, err := Build(pool, mgr, 0xdead0000, 4, iccache.LiveOutSet(0), "test.trampoline")
	require.NoError(t, err)
	require.NotNil(t, tr.IC())
	assert.Equal(t, 1, tr.IC().NumSlots())
	assert.True(t, tr.IC().ShouldAttempt())
}

func TestReleaseZeroesChunk(t *testing.T) {
	p := NewPool()
	c, err := p.Allocate()
	require.NoError(t, err)
	c.Code[0] = 0xFF
	p.Release(c)
	assert.Equal(t, byte(0), c.Code[0])
}
