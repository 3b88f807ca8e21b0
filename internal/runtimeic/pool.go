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

// Package runtimeic carves RWX trampoline chunks out of mmap'd pages for
// standalone runtime inline caches: a patchpoint that isn't backed by a
// pre-existing compiled function, just a bare call site (spec.md §4.D).
// Each chunk holds a prologue, a 13-byte patchable call site (CALL_ONLY_SIZE
// in the original's patchpoints.h), and an epilogue jumping back out.
package runtimeic

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/pyston/pyston-v1-sub002/internal/rtlog"
)

// ChunkSize is the fixed trampoline size handed out by the pool. 512 bytes
// comfortably covers prologue + CallOnlySize + epilogue + NOP padding for
// every ICSetupInfo type in spec.md §4.D with headroom to spare.
const ChunkSize = 512

// PageSize is the mmap granularity a pool carves chunks out of.
const PageSize = 4096

// ChunksPerPage is how many trampoline chunks fit in one mmap'd page.
const ChunksPerPage = PageSize / ChunkSize

// CallOnlySize mirrors the original's CALL_ONLY_SIZE: 13 bytes for a
// mov-absolute-then-call sequence, plus 1 byte reserved for a trailing
// nop/trap so the slow-path return address never lands mid-instruction.
const CallOnlySize = 13 + 1

// Pool hands out fixed-size executable trampoline chunks, carved from
// 4KiB RWX pages, tracked with a simple free list (spec.md §4.D).
type Pool struct {
	mu       sync.Mutex
	pages    []*page
	freeList []*Chunk

	allocated int
	released  int
}

type page struct {
	mem    []byte // RWX-mapped backing store (or a plain slice on platforms/paths where mmap isn't wired)
	mapped bool
}

// Chunk is one trampoline-sized slice of executable memory handed out by a
// Pool, along with the page it was carved from (needed to return it to the
// pool's free list without re-deriving the page boundary).
type Chunk struct {
	Code []byte
	pg   *page
	off  int
}

// NewPool creates an empty pool; pages are mapped lazily on first Allocate.
func NewPool() *Pool {
	return &Pool{}
}

// Allocate returns a fresh trampoline-sized chunk of RWX memory, reusing a
// freed chunk if one is available before mapping a new page.
func (p *Pool) Allocate() (*Chunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.freeList); n > 0 {
		c := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		p.allocated++
		rtlog.L().Trace().Msg("runtimeic: chunk reused from free list")
		return c, nil
	}

	pg, err := mapExecutablePage()
	if err != nil {
		return nil, errors.Wrap(err, "runtimeic: failed to map trampoline page")
	}
	p.pages = append(p.pages, pg)

	var first *Chunk
	for i := 0; i < ChunksPerPage; i++ {
		off := i * ChunkSize
		c := &Chunk{Code: pg.mem[off : off+ChunkSize], pg: pg, off: off}
		if i == 0 {
			first = c
			continue
		}
		p.freeList = append(p.freeList, c)
	}
	p.allocated++
	rtlog.L().Debug().Int("chunks_per_page", ChunksPerPage).Msg("runtimeic: mapped new trampoline page")
	return first, nil
}

// Release returns c to the pool's free list for reuse. It does not unmap
// the page c came from — pages are held for the pool's lifetime, matching
// the original memmgr's "keep allocated regions, just track free blocks"
// discipline rather than eagerly munmapping.
func (p *Pool) Release(c *Chunk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range c.Code {
		c.Code[i] = 0
	}
	p.freeList = append(p.freeList, c)
	p.released++
}

// Stats reports the pool's lifetime allocation counters.
type Stats struct {
	Pages       int
	Allocated   int
	Released    int
	FreeListLen int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Pages: len(p.pages), Allocated: p.allocated, Released: p.released, FreeListLen: len(p.freeList)}
}
