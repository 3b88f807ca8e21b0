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

import "sync"

// attrFreelistCapPerSizeClass bounds how many freed attribute-array backing
// slices this package keeps around per capacity ("size class"), matching
// spec.md §6's tunable ("geometric growth from 4, doubling, with a
// freelist keyed by size class"). This is the freelist spec.md actually
// names: it pools the int64 backing arrays SetAttr/DelAttr grow or rebuild
// through, not HiddenClass trie nodes.
const attrFreelistCapPerSizeClass = 100

var (
	attrFreelistMu sync.Mutex
	attrFreelists  = map[int][][]int64{}
)

// getAttrArray returns a zeroed backing array of exactly capacity, sliced
// to length, reusing a freed array of the same size class if one is
// available.
func getAttrArray(length, capacity int) []int64 {
	attrFreelistMu.Lock()
	bucket := attrFreelists[capacity]
	var arr []int64
	if n := len(bucket); n > 0 {
		arr = bucket[n-1]
		attrFreelists[capacity] = bucket[:n-1]
	}
	attrFreelistMu.Unlock()

	if arr == nil {
		return make([]int64, length, capacity)
	}
	for i := range arr {
		arr[i] = 0
	}
	return arr[:length]
}

// putAttrArray returns arr to the freelist for its capacity once its owning
// object no longer needs it (a grow or a DelAttr rebuild discarded it),
// bounded at attrFreelistCapPerSizeClass entries per size class.
func putAttrArray(arr []int64) {
	if cap(arr) == 0 {
		return
	}
	attrFreelistMu.Lock()
	defer attrFreelistMu.Unlock()
	bucket := attrFreelists[cap(arr)]
	if len(bucket) < attrFreelistCapPerSizeClass {
		attrFreelists[cap(arr)] = append(bucket, arr[:cap(arr)])
	}
}
