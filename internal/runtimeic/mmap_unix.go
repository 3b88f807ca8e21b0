//go:build unix

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
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mapExecutablePage mmaps one anonymous PageSize-byte region RW, then
// mprotects it RWX — mirroring the original memmgr's "allocate RW, then
// finalizeMemory flips the code section to RWX" two-step (the original
// additionally keeps it writable after finalize so the IC can patch it
// in place, which is exactly what rewrite.Commit needs here too).
func mapExecutablePage() (*page, error) {
	mem, err := unix.Mmap(-1, 0, PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, errors.Wrap(err, "mprotect rwx")
	}
	return &page{mem: mem, mapped: true}, nil
}

func unmapPage(pg *page) error {
	if !pg.mapped {
		return nil
	}
	return unix.Munmap(pg.mem)
}
