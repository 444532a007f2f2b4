// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.
//
// lcm3 is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// lcm3 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with lcm3. If not, see <http://www.gnu.org/licenses/>.

package vm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lcm3/engine/internal/vlog"
)

const (
	// opStackCapacity is the fixed operand-stack depth every interpreter
	// invocation owns (spec requires >= 1024 slots).
	opStackCapacity = 1024

	// externalFrameSize is the byte window External reserves below PS
	// before dispatching to a guest entry point.
	externalFrameSize = 48

	// sentinelReturn marks the synthetic return address written by
	// External; LEAVE reading it back means "return to the host".
	sentinelReturn = -1

	// iterationCap bounds a single guest call so a runaway guest loop
	// cannot hang the host indefinitely.
	iterationCap = 100_000_000

	// maxExternalArgs is how many arguments External can marshal into the
	// 48-byte call frame (sentinel + command take the first 12 bytes,
	// leaving room for 9 4-byte arguments).
	maxExternalArgs = 9

	// syscallArgs is the width of the argument buffer a syscall handler
	// receives; args[0] is always the syscall number.
	syscallArgs = 14
)

// Router dispatches a negative CALL target (a syscall) to the host. args[0]
// is the syscall number; args[1:] are the guest-supplied parameters. The
// router must never panic and must return a safe default for unknown
// numbers (§4.3).
type Router interface {
	Invoke(vm *VM, args [syscallArgs]int32) int32
}

// VM is one runtime instance of a prepared Image: its own data memory,
// program stack pointer, operand stack, and call-frame stack. Three VM
// instances exist concurrently in the engine (server-game, client-game,
// UI); each owns disjoint memory and is never mutated from outside its own
// interpreter call (spec §5).
type VM struct {
	img *Image
	mem []byte

	pc uint32 // byte offset into img.code of the next instruction
	ps uint32 // program stack pointer, a byte offset into mem

	opstack []int32
	sp      int

	abort   bool
	halted  bool
	iters   uint64
	router  Router
	name    string // "server-game" / "client-game" / "ui", for log context
}

// New creates a VM instance bound to img, executing syscalls through
// router.
func New(img *Image, router Router, name string) *VM {
	vm := &VM{
		img:     img,
		mem:     make([]byte, img.memSize),
		opstack: make([]int32, opStackCapacity),
		router:  router,
		name:    name,
	}
	vm.Reset()
	return vm
}

// stackBottom is the lowest legal PS value (invariant 1).
func (vm *VM) stackBottom() uint32 { return vm.img.memSize - vm.img.stackSize }

// topOfData is PS's initial value.
func (vm *VM) topOfData() uint32 { return vm.img.memSize }

// Reset reinitializes data memory from the image template and restores PS
// to the top of data memory, clearing the abort flag. Guests observe a
// freshly booted VM after Reset (spec §7: "abort flag cleared on entry").
func (vm *VM) Reset() {
	copy(vm.mem, vm.img.dataTemplate)
	for i := len(vm.img.dataTemplate); i < len(vm.mem); i++ {
		vm.mem[i] = 0
	}
	vm.ps = vm.topOfData()
	vm.pc = 0
	vm.sp = 0
	vm.abort = false
	vm.halted = false
}

// Abort reports whether a host syscall (Error) has requested termination of
// the current guest call.
func (vm *VM) Abort() bool { return vm.abort }

// SetAbort sets the abort flag; called by the Error/Print-fatal syscall
// handlers.
func (vm *VM) SetAbort() { vm.abort = true }

// PS returns the current program stack pointer (for tests and diagnostics).
func (vm *VM) PS() uint32 { return vm.ps }

// Call performs the external entry described in §4.2: it builds a 48-byte
// call frame below the current PS, writes the sentinel return address, the
// command number, and up to maxExternalArgs arguments, then runs the
// interpreter from instruction 0 until the matching top-level LEAVE, an
// abort, or a fault.
func (vm *VM) Call(command int32, args ...int32) (int32, error) {
	if len(args) > maxExternalArgs {
		return 0, fmt.Errorf("%w: %d", ErrTooManyArgs, len(args))
	}
	if vm.ps < uint32(externalFrameSize) || vm.ps-uint32(externalFrameSize) < vm.stackBottom() {
		return 0, fmt.Errorf("%w: ps=%d", ErrStackUnderflow, vm.ps)
	}
	vm.ps -= externalFrameSize
	vm.Write4(Addr(vm.ps+0), sentinelReturn)
	vm.Write4(Addr(vm.ps+8), command)
	for i, a := range args {
		vm.Write4(Addr(vm.ps+12+uint32(4*i)), a)
	}
	vm.abort = false
	vm.halted = false
	vm.sp = 0
	vm.pc = vm.img.instrOffsets[0]
	vm.iters = 0

	for !vm.halted {
		if vm.abort {
			return 0, nil
		}
		vm.iters++
		if vm.iters > iterationCap {
			return 0, ErrIterationCap
		}
		if err := vm.step(); err != nil {
			vlog.Warn("vm fault", "vm", vm.name, "pc", vm.pc, "err", err, "opstack", vm.opstack[:vm.sp])
			vm.abort = true
			return 0, err
		}
	}
	return vm.popResult(), nil
}

// popResult pops the top of the operand stack as the call result once the
// top-level LEAVE has halted the guest, or returns 0 if the stack is empty.
func (vm *VM) popResult() int32 {
	if vm.sp == 0 {
		return 0
	}
	vm.sp--
	return vm.opstack[vm.sp]
}

func (vm *VM) push(v int32) error {
	if vm.sp >= len(vm.opstack) {
		return ErrOpStackOverflow
	}
	vm.opstack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop() (int32, error) {
	if vm.sp == 0 {
		return 0, ErrOpStackUnderflow
	}
	vm.sp--
	return vm.opstack[vm.sp], nil
}

// step fetches, decodes, and executes exactly one instruction.
func (vm *VM) step() error {
	if int(vm.pc) >= len(vm.img.code) {
		return fmt.Errorf("%w: pc=%d codeLen=%d", ErrPCOutOfCode, vm.pc, len(vm.img.code))
	}
	op := Op(vm.img.code[vm.pc])
	if !op.Valid() {
		return fmt.Errorf("%w: 0x%02x at pc=%d", ErrUnknownOpcode, uint8(op), vm.pc)
	}
	opSize := op.OperandSize()
	opStart := vm.pc + 1
	if int(opStart)+int(opSize) > len(vm.img.code) {
		return fmt.Errorf("%w: operand runs past code end", ErrPCOutOfCode)
	}
	var imm4 int32
	var imm1 uint8
	switch opSize {
	case 4:
		imm4 = int32(binary.LittleEndian.Uint32(vm.img.code[opStart:]))
	case 1:
		imm1 = vm.img.code[opStart]
	}
	vm.pc = opStart + uint32(opSize)
	return vm.exec(op, imm4, imm1)
}

//nolint:gocyclo
func (vm *VM) exec(op Op, imm4 int32, imm1 uint8) error {
	switch op {
	case OpUndef, OpBreak:
		return fmt.Errorf("%w: explicit %s", ErrUnknownOpcode, op)
	case OpIgnore:
		return nil

	case OpEnter:
		locals := uint32(imm4)
		if vm.ps < locals || vm.ps-locals < vm.stackBottom() {
			return ErrStackOverflow
		}
		vm.ps -= locals
		return nil

	case OpLeave:
		locals := uint32(imm4)
		vm.ps += locals
		if vm.ps > vm.topOfData() {
			return ErrStackUnderflow
		}
		ret := vm.Read4(Addr(vm.ps + 0))
		if ret == sentinelReturn {
			vm.halted = true
			return nil
		}
		vm.pc = uint32(ret)
		return nil

	case OpCall:
		t, err := vm.pop()
		if err != nil {
			return err
		}
		if t >= 0 {
			// The return address is only ever consumed by the callee's own
			// eventual LEAVE, which restores PS to exactly this value
			// before reading it. A syscall never executes a LEAVE against
			// this slot (it returns inline, in the same frame), so writing
			// here for syscalls would only risk clobbering a legitimately
			// placed sentinel/return address for a frame that issues a
			// syscall before any nested ENTER.
			vm.Write4(Addr(vm.ps+0), int32(vm.pc))
			if int(t) >= len(vm.img.instrOffsets) {
				return fmt.Errorf("%w: %d", ErrBadCallTarget, t)
			}
			vm.pc = vm.img.instrOffsets[t]
			return nil
		}
		return vm.syscall(t)

	case OpPush:
		return vm.push(0)
	case OpPop:
		_, err := vm.pop()
		return err

	case OpConst:
		return vm.push(imm4)

	case OpLocal:
		return vm.push(int32(vm.ps + uint32(imm4)))

	case OpJump:
		idx, err := vm.pop()
		if err != nil {
			return err
		}
		if idx < 0 || int(idx) >= len(vm.img.instrOffsets) {
			return fmt.Errorf("%w: %d", ErrBadJumpTarget, idx)
		}
		vm.pc = vm.img.instrOffsets[idx]
		return nil

	case OpEq, OpNe, OpLti, OpLei, OpGti, OpGei, OpLtu, OpLeu, OpGtu, OpGeu:
		return vm.execIntBranch(op, imm4)
	case OpEqf, OpNef, OpLtf, OpLef, OpGtf, OpGef:
		return vm.execFloatBranch(op, imm4)

	case OpLoad1:
		a, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(int32(vm.Read1(Addr(a))))
	case OpLoad2:
		a, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(int32(vm.Read2(Addr(a))))
	case OpLoad4:
		a, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(vm.Read4(Addr(a)))

	case OpStore1:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		vm.Write1(Addr(a), uint8(v))
		return nil
	case OpStore2:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		vm.Write2(Addr(a), uint16(v))
		return nil
	case OpStore4:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		vm.Write4(Addr(a), v)
		return nil

	case OpArg:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.Write4(Addr(vm.ps+uint32(imm1)), v)
		return nil

	case OpBlockCopy:
		src, err := vm.pop()
		if err != nil {
			return err
		}
		dst, err := vm.pop()
		if err != nil {
			return err
		}
		vm.BlockCopy(Addr(dst), Addr(src), uint32(imm4))
		return nil

	case OpSex8:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(int32(int8(v)))
	case OpSex16:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(int32(int16(v)))

	case OpNegi:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(-v)

	case OpAdd, OpSub, OpMuli, OpMulu, OpDivi, OpDivu, OpModi, OpModu,
		OpBand, OpBor, OpBxor, OpLsh, OpRshi, OpRshu:
		return vm.execBinary(op)

	case OpBcom:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(^v)

	case OpNegf:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(int32(math.Float32bits(-math.Float32frombits(uint32(v)))))
	case OpAddf, OpSubf, OpDivf, OpMulf:
		return vm.execFloatBinary(op)

	case OpCvif:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(int32(math.Float32bits(float32(v))))
	case OpCvfi:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(cvfi(math.Float32frombits(uint32(v))))

	default:
		return fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, uint8(op))
	}
}

func (vm *VM) execIntBranch(op Op, target int32) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	var take bool
	switch op {
	case OpEq:
		take = a == b
	case OpNe:
		take = a != b
	case OpLti:
		take = a < b
	case OpLei:
		take = a <= b
	case OpGti:
		take = a > b
	case OpGei:
		take = a >= b
	case OpLtu:
		take = uint32(a) < uint32(b)
	case OpLeu:
		take = uint32(a) <= uint32(b)
	case OpGtu:
		take = uint32(a) > uint32(b)
	case OpGeu:
		take = uint32(a) >= uint32(b)
	}
	if take {
		vm.pc = uint32(target)
	}
	return nil
}

func (vm *VM) execFloatBranch(op Op, target int32) error {
	bi, err := vm.pop()
	if err != nil {
		return err
	}
	ai, err := vm.pop()
	if err != nil {
		return err
	}
	a := math.Float32frombits(uint32(ai))
	b := math.Float32frombits(uint32(bi))
	var take bool
	switch op {
	case OpEqf:
		take = a == b
	case OpNef:
		take = a != b
	case OpLtf:
		take = a < b
	case OpLef:
		take = a <= b
	case OpGtf:
		take = a > b
	case OpGef:
		take = a >= b
	}
	if take {
		vm.pc = uint32(target)
	}
	return nil
}

func (vm *VM) execBinary(op Op) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	var r int32
	switch op {
	case OpAdd:
		r = a + b
	case OpSub:
		r = a - b
	case OpMuli, OpMulu:
		r = a * b
	case OpDivi:
		r = divi(a, b)
	case OpDivu:
		if b == 0 {
			r = 0
		} else {
			r = int32(uint32(a) / uint32(b))
		}
	case OpModi:
		r = modi(a, b)
	case OpModu:
		if b == 0 {
			r = 0
		} else {
			r = int32(uint32(a) % uint32(b))
		}
	case OpBand:
		r = a & b
	case OpBor:
		r = a | b
	case OpBxor:
		r = a ^ b
	case OpLsh:
		r = a << (uint32(b) & 31)
	case OpRshi:
		r = a >> (uint32(b) & 31)
	case OpRshu:
		r = int32(uint32(a) >> (uint32(b) & 31))
	}
	return vm.push(r)
}

func (vm *VM) execFloatBinary(op Op) error {
	bi, err := vm.pop()
	if err != nil {
		return err
	}
	ai, err := vm.pop()
	if err != nil {
		return err
	}
	a := math.Float32frombits(uint32(ai))
	b := math.Float32frombits(uint32(bi))
	var r float32
	switch op {
	case OpAddf:
		r = a + b
	case OpSubf:
		r = a - b
	case OpDivf:
		r = a / b
	case OpMulf:
		r = a * b
	}
	return vm.push(int32(math.Float32bits(r)))
}

// divi implements wrapping signed division: x/0 == 0, and
// math.MinInt32/-1 == math.MinInt32 (the two's complement overflow case)
// rather than trapping.
func divi(a, b int32) int32 {
	if b == 0 {
		return 0
	}
	if a == math.MinInt32 && b == -1 {
		return math.MinInt32
	}
	return a / b
}

// modi mirrors divi's trap-free rules for signed modulo.
func modi(a, b int32) int32 {
	if b == 0 {
		return 0
	}
	if a == math.MinInt32 && b == -1 {
		return 0
	}
	return a % b
}

// cvfi converts f to int32, mapping NaN/Inf to 0 and saturating on
// overflow instead of trapping.
func cvfi(f float32) int32 {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return 0
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	if f <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(f)
}

// syscall handles a negative CALL target: marshal the 14-word argument
// buffer and dispatch to the router, per §4.2's "CALL" rule.
func (vm *VM) syscall(t int32) error {
	num := -1 - t
	vm.Write4(Addr(vm.ps+4), num)

	var args [syscallArgs]int32
	for i := 0; i < syscallArgs; i++ {
		args[i] = vm.Read4(Addr(vm.ps + 4 + uint32(4*i)))
	}

	savedPS := vm.ps
	vm.ps -= 4
	result := vm.router.Invoke(vm, args)
	vm.ps = savedPS

	return vm.push(result)
}
