package iccache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRef struct {
	retained, released int
}

func (f *fakeRef) Retain()  { f.retained++ }
func (f *fakeRef) Release() { f.released++ }

type fakeHook struct{ ok bool }

func (h fakeHook) FinishAssembly(handle *Handle) bool {
	a := handle.Assembler()
	a.Nop()
	a.FillWithNops()
	return h.ok
}

func newTestIC(t *testing.T, size int) *ICInfo {
	t.Helper()
	code := make([]byte, size)
	mgr := NewManager()
	ic := mgr.RegisterCompiledPatchpoint(
		0x1000, 0x2000, 0x1000+uint64(size), 0x3000,
		code, 0, 64, CConvC, LiveOutSet(0).With(0), nil, "test.getattr",
	)
	require.NotNil(t, ic)
	return ic
}

func TestRegisterCompiledPatchpointInstallsStub(t *testing.T) {
	ic := newTestIC(t, 32)
	assert.Equal(t, byte(0x90), ic.code[0], "stub starts with nop")
	assert.Equal(t, byte(0xE9), ic.code[1], "stub continues with jmp rel32")
	assert.Equal(t, 1, ic.NumSlots())
}

func TestShouldAttemptGatesOnBackoffAndMegamorphic(t *testing.T) {
	ic := newTestIC(t, 32)
	assert.True(t, ic.ShouldAttempt())

	ic.retryIn = 2
	assert.False(t, ic.ShouldAttempt())
	assert.Equal(t, 1, ic.retryIn)
	assert.False(t, ic.ShouldAttempt())
	assert.Equal(t, 0, ic.retryIn)
	assert.True(t, ic.ShouldAttempt())

	ic.timesRewritten = MegamorphicThreshold
	assert.False(t, ic.ShouldAttempt())
}

func TestStartRewriteCommitRoundTrip(t *testing.T) {
	ic := newTestIC(t, 32)
	h, err := ic.StartRewrite("dbg")
	require.NoError(t, err)
	assert.Equal(t, 1, ic.slots[0].NumInside)

	ref := &fakeRef{}
	err = h.Commit(fakeHook{ok: true}, []OwnedRef{ref}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, ic.TimesRewritten())
	assert.Equal(t, 0, ic.slots[0].NumInside)
	assert.True(t, ic.slots[0].Used)
	assert.Equal(t, 1, ref.retained)
}

func TestAbortDoublesBackoffAndCaps(t *testing.T) {
	ic := newTestIC(t, 32)
	for i := 0; i < 20; i++ {
		h, err := ic.StartRewrite("dbg")
		require.NoError(t, err)
		h.Abort()
	}
	assert.LessOrEqual(t, ic.retryBackoff, RetryBackoffMax)
	assert.Equal(t, RetryBackoffMax, ic.retryBackoff)
}

func TestCommitFailsWhenDependencyInvalidatedMidRewrite(t *testing.T) {
	ic := newTestIC(t, 32)
	inv := NewInvalidator("C.shape")

	h, err := ic.StartRewrite("dbg")
	require.NoError(t, err)
	h.AddDependenceOn(inv)

	inv.InvalidateAll() // bumps version after it was captured by AddDependenceOn

	ref := &fakeRef{}
	err = h.Commit(fakeHook{ok: true}, []OwnedRef{ref}, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, ref.retained, "a discarded rewrite must not retain its refs")
	assert.Equal(t, 0, ic.slots[0].NumInside)
}

func TestInvalidateAllClearsDependentSlotsAndScrubsBackpointers(t *testing.T) {
	ic := newTestIC(t, 32)
	inv := NewInvalidator("C.shape")

	h, err := ic.StartRewrite("dbg")
	require.NoError(t, err)
	h.AddDependenceOn(inv)
	ref := &fakeRef{}
	require.NoError(t, h.Commit(fakeHook{ok: true}, []OwnedRef{ref}, nil))

	assert.Equal(t, 1, len(inv.dependents))
	assert.Equal(t, 1, len(ic.slots[0].invalidators))

	inv.InvalidateAll()

	assert.Equal(t, 0, len(inv.dependents), "invalidator must scrub its dependents")
	assert.Equal(t, 0, len(ic.slots[0].invalidators), "slot must scrub its invalidators")
	assert.Equal(t, 1, ref.released, "cleared slot releases its owned refs")
	assert.Equal(t, byte(0x90), ic.slots[0].code[0], "cleared slot is overwritten with invalidation header")
}

func TestInvalidationDefersReleaseWhileFramesAreInside(t *testing.T) {
	ic := newTestIC(t, 32)
	inv := NewInvalidator("C.shape")

	h, err := ic.StartRewrite("dbg")
	require.NoError(t, err)
	h.AddDependenceOn(inv)
	ref := &fakeRef{}
	require.NoError(t, h.Commit(fakeHook{ok: true}, []OwnedRef{ref}, nil))

	slot := ic.slots[0]
	slot.Enter() // simulate a frame executing inside the fast path

	inv.InvalidateAll()
	assert.Equal(t, 0, ref.released, "must not release while a frame is still inside")
	assert.True(t, slot.pendingClear)

	slot.Exit()
	assert.Equal(t, 1, ref.released, "release happens exactly once num_inside reaches 0")
}

func TestNoFreeSlotAbortsRewriteAttempt(t *testing.T) {
	ic := newTestIC(t, 32)
	h1, err := ic.StartRewrite("dbg")
	require.NoError(t, err)

	_, err = ic.StartRewrite("dbg2")
	assert.Error(t, err, "the only slot is occupied (NumInside=1), so no candidate exists")

	h1.Abort()
}

func TestCalculateSuggestedSizeHeuristic(t *testing.T) {
	ic := newTestIC(t, 32)
	assert.Equal(t, 100, ic.CalculateSuggestedSize(100))

	ic.timesRewritten = 1
	ic.slots[0].Used = true
	ic.maybeSplit(ic.slots[0], 10) // slot 0 keeps 10 bytes; an unused second slot takes the tail
	got := ic.CalculateSuggestedSize(100)
	assert.Equal(t, 10+headroomPerSlot*len(ic.slots), got)

	ic.timesRewritten = len(ic.slots) + 1
	assert.Equal(t, 200, ic.CalculateSuggestedSize(100))

	ic.timesRewritten = MegamorphicThreshold
	assert.Equal(t, 400, ic.CalculateSuggestedSize(100))

	assert.Equal(t, maxSuggestedSize, ic.CalculateSuggestedSize(100000))
}
