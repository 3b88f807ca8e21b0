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

package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyston/pyston-v1-sub002/internal/asmx86"
	"github.com/pyston/pyston-v1-sub002/internal/iccache"
)

func newTestHandle(t *testing.T, slotSize int) *iccache.Handle {
	t.Helper()
	code := make([]byte, slotSize)
	mgr := iccache.NewManager()
	ic := mgr.RegisterCompiledPatchpoint(
		0x4000, 0x5000, 0x4000+uint64(slotSize), 0x6000,
		code, 0, 64, iccache.CConvC, iccache.LiveOutSet(0).With(asmx86.RAX), nil, "test.op",
	)
	require.NotNil(t, ic)
	h, err := ic.StartRewrite("test.op")
	require.NoError(t, err)
	return h
}

func TestGetArgReturnsStableSameVarOnRepeat(t *testing.T) {
	rw := New(newTestHandle(t, 64), false)
	a := rw.GetArg(0)
	b := rw.GetArg(0)
	assert.Same(t, a, b)
	assert.Equal(t, RegLoc(asmx86.RDI), a.PrimaryLocation())
}

func TestLoadConstCachesSameValue(t *testing.T) {
	rw := New(newTestHandle(t, 64), false)
	a := rw.LoadConst(42)
	b := rw.LoadConst(42)
	c := rw.LoadConst(7)
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestAttrGuardDedup(t *testing.T) {
	rw := New(newTestHandle(t, 64), false)
	obj := rw.GetArg(0)
	rw.AddAttrGuard(obj, 8, 100, false)
	before := len(rw.actions)
	rw.AddAttrGuard(obj, 8, 100, false)
	assert.Equal(t, before, len(rw.actions), "duplicate attr guard must be a no-op")

	rw.AddAttrGuard(obj, 8, 200, false)
	assert.Equal(t, before+1, len(rw.actions), "different value is a new guard")
}

func TestGuardAfterMutationFails(t *testing.T) {
	rw := New(newTestHandle(t, 64), false)
	obj := rw.GetArg(0)
	val := rw.LoadConst(1)
	rw.SetAttr(obj, 8, val)
	assert.False(t, rw.Failed())

	rw.AddGuard(obj, 5)
	assert.True(t, rw.Failed())
	assert.Contains(t, rw.FailReason().Error(), "after a mutation")
}

func TestSimpleGetAttrRoundTripCommits(t *testing.T) {
	handle := newTestHandle(t, 128)
	rw := New(handle, false)

	obj := rw.GetArg(0)
	rw.AddAttrGuard(obj, 0, 12345, false)
	val := rw.GetAttr(obj, 16)
	rw.AddLiveOut(val, RegLoc(asmx86.RAX))

	err := rw.Commit()
	require.NoError(t, err)
	assert.True(t, handle.Assembler().IsExactlyFull())
}

func TestCallMarkedAsMutationBlocksLaterGuards(t *testing.T) {
	handle := newTestHandle(t, 128)
	rw := New(handle, false)

	obj := rw.GetArg(0)
	rw.Call(true, CallTarget{Name: "slow_helper", Addr: 0x7000}, obj)
	assert.False(t, rw.Failed())

	rw.AddGuard(obj, 1)
	assert.True(t, rw.Failed())
}

func TestCmpProducesBoolAndCommits(t *testing.T) {
	handle := newTestHandle(t, 128)
	rw := New(handle, false)

	a := rw.GetArg(0)
	b := rw.LoadConst(3)
	result := rw.Cmp(a, CmpEQ, b)
	rw.AddLiveOut(result, RegLoc(asmx86.RAX))

	err := rw.Commit()
	require.NoError(t, err)
}

func TestToBoolIsCmpNotEqualZero(t *testing.T) {
	handle := newTestHandle(t, 128)
	rw := New(handle, false)
	v := rw.GetArg(0)
	b := rw.ToBool(v)
	rw.AddLiveOut(b, RegLoc(asmx86.RAX))
	err := rw.Commit()
	require.NoError(t, err)
}

func TestAllocateAndCopyRoundTrip(t *testing.T) {
	handle := newTestHandle(t, 192)
	rw := New(handle, false)

	src := rw.GetArg(0)
	dest := rw.AllocateAndCopy(src, 2)
	rw.AddLiveOut(dest, RegLoc(asmx86.RAX))

	err := rw.Commit()
	require.NoError(t, err)
}

func TestFailedRewriterAbortsOnCommit(t *testing.T) {
	handle := newTestHandle(t, 8) // too small for anything real
	rw := New(handle, false)
	obj := rw.GetArg(0)
	val := rw.LoadConst(1)
	rw.SetAttr(obj, 8, val)
	rw.AddGuard(obj, 1) // guard-after-mutation: forces Failed()

	err := rw.Commit()
	assert.Error(t, err)
}

func TestLiveOutShuffleSwapDetectedAsCycle(t *testing.T) {
	handle := newTestHandle(t, 128)
	rw := New(handle, false)

	a := rw.GetArg(0) // starts in RDI
	b := rw.GetArg(1) // starts in RSI
	// ask for a swap: a -> rsi, b -> rdi. Neither can move first without
	// clobbering the other's still-pending source.
	rw.AddLiveOut(a, RegLoc(asmx86.RSI))
	rw.AddLiveOut(b, RegLoc(asmx86.RDI))

	err := rw.Commit()
	assert.Error(t, err)
}
