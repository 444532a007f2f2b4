// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package vm

import (
	"encoding/binary"
	"math"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

// asm is a minimal test-only bytecode assembler: enough to build the
// end-to-end scenarios from spec.md §8 without depending on a real guest
// compiler.
type asm struct {
	code []byte
}

func (a *asm) op0(op Op) *asm {
	a.code = append(a.code, byte(op))
	return a
}

func (a *asm) op1(op Op, v uint8) *asm {
	a.code = append(a.code, byte(op), v)
	return a
}

func (a *asm) op4(op Op, v int32) *asm {
	a.code = append(a.code, byte(op), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(a.code[len(a.code)-4:], uint32(v))
	return a
}

func (a *asm) instrCount() uint32 {
	n := uint32(0)
	for i := 0; i < len(a.code); {
		op := Op(a.code[i])
		i += 1 + int(op.OperandSize())
		n++
	}
	return n
}

// buildImage assembles a complete bytecode file: header + code, no data
// segment, and loads it.
func buildImage(t *testing.T, a *asm) *Image {
	t.Helper()
	h := make([]byte, 32)
	binary.LittleEndian.PutUint32(h[0:], magic)
	binary.LittleEndian.PutUint32(h[4:], a.instrCount())
	binary.LittleEndian.PutUint32(h[8:], 32)              // codeOff
	binary.LittleEndian.PutUint32(h[12:], uint32(len(a.code))) // codeLen
	binary.LittleEndian.PutUint32(h[16:], uint32(32+len(a.code))) // dataOff
	// dataLen, litLen, bssLen all zero

	raw := append(h, a.code...)
	img, err := Load(raw)
	require.NoError(t, err)
	return img
}

type stubRouter struct {
	fn func(args [syscallArgs]int32) int32
}

func (r stubRouter) Invoke(_ *VM, args [syscallArgs]int32) int32 {
	return r.fn(args)
}

// Scenario 1 of spec §8: magic ok, one LEAVE 0, no data -> external call
// with command 0 returns 0.
func TestImageLoadMinimal(t *testing.T) {
	a := new(asm).op4(OpLeave, 0)
	img := buildImage(t, a)
	require.Equal(t, uint32(1), uint32(len(img.instrOffsets)))

	v := New(img, stubRouter{}, "test")
	result, err := v.Call(0)
	require.NoError(t, err)
	require.Equal(t, int32(0), result)
}

// Scenario 2 of spec §8: CONST -8; CALL; LEAVE 0, with a router that
// returns 7 for syscall 7, yields external-call result 7.
func TestSyscallDispatch(t *testing.T) {
	a := new(asm).
		op4(OpConst, -8). // syscall number 7 is encoded as call target -8 (t = -1-7)
		op0(OpCall).
		op4(OpLeave, 0)
	img := buildImage(t, a)

	router := stubRouter{fn: func(args [syscallArgs]int32) int32 {
		require.Equal(t, int32(7), args[0])
		return 7
	}}
	v := New(img, router, "test")
	result, err := v.Call(0)
	require.NoError(t, err)
	require.Equal(t, int32(7), result)
}

func TestBadMagicRejected(t *testing.T) {
	raw := make([]byte, 32)
	binary.LittleEndian.PutUint32(raw[0:], 0xdeadbeef)
	_, err := Load(raw)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestWrappingArithmetic(t *testing.T) {
	require.Equal(t, int32(-2147483648), divi(-2147483648, -1))
	require.Equal(t, int32(0), modi(-2147483648, -1))
	require.Equal(t, int32(0), divi(5, 0))
	require.Equal(t, int32(0), modi(5, 0))
	require.Equal(t, int32(30), int32(10)+int32(20))
}

// TestDiviModiWrapUnderRandomInputs fuzzes divi/modi to check the
// wrapping-arithmetic invariant holds for arbitrary operands, not just the
// two hand-picked edge cases above: division by zero always yields 0, and
// otherwise divi(a,b)*b+modi(a,b) reconstructs a (checked in int64 to
// avoid the test itself overflowing).
func TestDiviModiWrapUnderRandomInputs(t *testing.T) {
	f := fuzz.New()
	for i := 0; i < 200; i++ {
		var a, b int32
		f.Fuzz(&a)
		f.Fuzz(&b)

		q := divi(a, b)
		r := modi(a, b)
		if b == 0 {
			require.Equal(t, int32(0), q)
			require.Equal(t, int32(0), r)
			continue
		}
		if a == math.MinInt32 && b == -1 {
			require.Equal(t, int32(math.MinInt32), q)
			require.Equal(t, int32(0), r)
			continue
		}
		require.Equal(t, int64(a), int64(q)*int64(b)+int64(r))
	}
}

func TestPushPopBalance(t *testing.T) {
	a := new(asm).
		op4(OpConst, 41).
		op4(OpConst, 1).
		op0(OpAdd).
		op4(OpLeave, 0)
	img := buildImage(t, a)
	v := New(img, stubRouter{}, "test")
	result, err := v.Call(0)
	require.NoError(t, err)
	require.Equal(t, int32(42), result)
	require.Equal(t, 0, v.sp, "operand stack must balance back to zero after LEAVE")
}

func TestMemoryRoundTrip(t *testing.T) {
	a := new(asm).op4(OpLeave, 0)
	img := buildImage(t, a)
	v := New(img, stubRouter{}, "test")

	v.Write1(Addr(10), 0xAB)
	require.Equal(t, uint8(0xAB), v.Read1(Addr(10)))

	v.Write2(Addr(20), 0xBEEF)
	require.Equal(t, uint16(0xBEEF), v.Read2(Addr(20)))

	v.Write4(Addr(40), -123456)
	require.Equal(t, int32(-123456), v.Read4(Addr(40)))
}

func TestStackBottomBoundary(t *testing.T) {
	a := new(asm).op4(OpLeave, 0)
	img := buildImage(t, a)
	v := New(img, stubRouter{}, "test")

	v.ps = v.stackBottom()
	require.NoError(t, v.exec(OpEnter, 0, 0), "PS == stackBottom with zero locals is legal")

	v.ps = v.stackBottom()
	require.Error(t, v.exec(OpEnter, 1, 0), "PS == stackBottom - 1 must fail")
}

func TestIterationCapReturnsDefinedError(t *testing.T) {
	// An infinite loop: JUMP back to instruction 0.
	a := new(asm).op4(OpConst, 0).op0(OpJump)
	img := buildImage(t, a)
	v := New(img, stubRouter{}, "test")
	_, err := v.Call(0)
	require.ErrorIs(t, err, ErrIterationCap)
}

func TestAbortClearedOnNextEntry(t *testing.T) {
	a := new(asm).op4(OpLeave, 0)
	img := buildImage(t, a)
	v := New(img, stubRouter{}, "test")
	v.SetAbort()
	result, err := v.Call(0)
	require.NoError(t, err)
	require.Equal(t, int32(0), result)
	require.False(t, v.Abort())
}

func TestNaNAndInfConvertToZero(t *testing.T) {
	require.Equal(t, int32(0), cvfi(float32(math.NaN())))
	require.Equal(t, int32(0), cvfi(float32(math.Inf(1))))
	require.Equal(t, int32(0), cvfi(float32(math.Inf(-1))))
}
