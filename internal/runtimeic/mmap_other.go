//go:build !unix

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

// mapExecutablePage falls back to a plain heap slice on non-unix platforms
// (this subsystem targets x86-64/amd64 Linux; this build keeps the package
// importable elsewhere, mirroring the teacher's own treatment of its arm64
// memory_pool.go "this would munmap the memory in a real implementation"
// placeholder for anything not wired to a real allocator).
func mapExecutablePage() (*page, error) {
	return &page{mem: make([]byte, PageSize), mapped: false}, nil
}

func unmapPage(pg *page) error {
	return nil
}
