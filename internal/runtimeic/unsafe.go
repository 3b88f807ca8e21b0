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

import "unsafe"

// sliceDataPointer returns the address of a byte slice's backing array,
// used only to derive a stable numeric "address" for offset arithmetic in
// iccache bookkeeping — this module never dereferences the result as a
// function pointer or jumps to it.
func sliceDataPointer(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
