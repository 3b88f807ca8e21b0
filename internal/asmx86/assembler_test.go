package asmx86

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovImmediate32BitForm(t *testing.T) {
	buf := make([]byte, 16)
	a := NewAssembler(buf)
	a.Mov(Immediate(7), RAX, false)
	require.False(t, a.HasFailed())
	// B8 + reg(rax=0), then 4-byte little-endian payload.
	assert.Equal(t, []byte{0xB8, 0x07, 0x00, 0x00, 0x00}, buf[:5])
	assert.Equal(t, 5, a.BytesWritten())
}

func TestMovImmediate64BitFormWhenTooLarge(t *testing.T) {
	buf := make([]byte, 16)
	a := NewAssembler(buf)
	a.Mov(Immediate(0x1_0000_0000), RCX, false)
	require.False(t, a.HasFailed())
	// REX.W (0x48) + B8+reg(rcx=1) + 8-byte payload.
	assert.Equal(t, byte(0x48), buf[0])
	assert.Equal(t, byte(0xB9), buf[1])
	assert.Equal(t, 10, a.BytesWritten())
}

func TestMovForceWide64(t *testing.T) {
	buf := make([]byte, 16)
	a := NewAssembler(buf)
	a.Mov(Immediate(1), RAX, true)
	assert.Equal(t, 10, a.BytesWritten())
}

func TestExtendedRegisterNeedsRex(t *testing.T) {
	buf := make([]byte, 16)
	a := NewAssembler(buf)
	a.Mov(Immediate(1), R9, false)
	// REX.B set because R9's index >= 8.
	assert.Equal(t, byte(0x41), buf[0])
	assert.Equal(t, byte(0xB8+1), buf[1]) // B8 + low3(R9)=1
}

func TestOverflowSetsFailedAndStopsWriting(t *testing.T) {
	buf := make([]byte, 3)
	a := NewAssembler(buf)
	a.Mov(Immediate(7), RAX, false) // needs 5 bytes
	assert.True(t, a.HasFailed())
	assert.Equal(t, 1, a.BytesWritten(), "the opcode byte fits and stays; the 4-byte immediate that does not fit is dropped")

	// Subsequent calls are no-ops, not panics.
	a.Nop()
	a.Retq()
	assert.True(t, a.HasFailed())
}

func TestFillWithNopsExactlyFills(t *testing.T) {
	buf := make([]byte, 37)
	a := NewAssembler(buf)
	a.Nop()
	a.FillWithNops()
	require.False(t, a.HasFailed())
	assert.True(t, a.IsExactlyFull())
	assert.Equal(t, len(buf), a.BytesWritten())
}

func TestFillWithNopsExceptReservesTail(t *testing.T) {
	buf := make([]byte, 20)
	a := NewAssembler(buf)
	a.FillWithNopsExcept(5)
	assert.Equal(t, 15, a.BytesWritten())
	assert.Equal(t, 5, a.BytesLeft())
}

func TestClearRegXor(t *testing.T) {
	buf := make([]byte, 4)
	a := NewAssembler(buf)
	a.ClearReg(RAX)
	assert.Equal(t, []byte{0x31, 0xC0}, buf[:2])
}

func TestPushPopRoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	a := NewAssembler(buf)
	a.Push(RBP)
	a.Pop(RBP)
	assert.Equal(t, []byte{0x55, 0x5D}, buf[:2])
}

func TestJmpCondEncodesCondition(t *testing.T) {
	buf := make([]byte, 8)
	a := NewAssembler(buf)
	a.JmpCond(0, CondNotEqual)
	assert.Equal(t, byte(0x0F), buf[0])
	assert.Equal(t, byte(0x80+uint8(CondNotEqual)), buf[1])
}

func TestConditionNegateIsInvolution(t *testing.T) {
	for cc := ConditionCode(0); cc < 16; cc++ {
		assert.Equal(t, cc, cc.Negate().Negate())
		assert.NotEqual(t, cc, cc.Negate())
	}
}

func TestMovLoadIndirectWithRbpBaseForcesDisplacement(t *testing.T) {
	buf := make([]byte, 8)
	a := NewAssembler(buf)
	a.MovLoad(Ind(RBP, 0), RAX, MovQ)
	require.False(t, a.HasFailed())
	// mod must be 01 (disp8) even though offset==0, since mod=00,rm=101 is RIP-relative.
	modrm := buf[2] // after the REX.W prefix and the 0x8B opcode
	mod := modrm >> 6
	assert.Equal(t, byte(0b01), mod)
}

func TestIsExactlyFullFalseWhenUnderfilled(t *testing.T) {
	buf := make([]byte, 8)
	a := NewAssembler(buf)
	a.Nop()
	assert.False(t, a.IsExactlyFull())
}
