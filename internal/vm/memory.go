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

import "encoding/binary"

// Addr is a guest address: an offset into a VM instance's data memory, as
// produced by OP_CONST, OP_LOCAL, or a guest pointer value. Addr is never
// trusted directly; every accessor masks it first, which is what makes
// memory safety a property of this file rather than of each syscall.
type Addr uint32

// mask clamps addr into [0, len(mem)) using the image's power-of-two data
// mask, per spec invariant 2: the interpreter never traps on out-of-range
// guest addresses.
func (vm *VM) mask(addr Addr) uint32 {
	return uint32(addr) & vm.img.dataMask
}

// Read1 returns the byte at the masked address.
func (vm *VM) Read1(addr Addr) uint8 {
	return vm.mem[vm.mask(addr)]
}

// Write1 stores a byte at the masked address.
func (vm *VM) Write1(addr Addr, v uint8) {
	vm.mem[vm.mask(addr)] = v
}

// Read2 returns the little-endian uint16 at the masked address. The read
// may wrap around the end of data memory if addr is within 1 byte of it;
// this mirrors the guest's own masked-pointer arithmetic and is harmless
// since the buffer size is always a power of two.
func (vm *VM) Read2(addr Addr) uint16 {
	a := vm.mask(addr)
	return uint16(vm.mem[a]) | uint16(vm.mem[(a+1)&vm.img.dataMask])<<8
}

// Write2 stores a little-endian uint16 at the masked address.
func (vm *VM) Write2(addr Addr, v uint16) {
	a := vm.mask(addr)
	vm.mem[a] = byte(v)
	vm.mem[(a+1)&vm.img.dataMask] = byte(v >> 8)
}

// Read4 returns the little-endian int32 at the masked address.
func (vm *VM) Read4(addr Addr) int32 {
	a := vm.mask(addr)
	if a+4 <= uint32(len(vm.mem)) {
		return int32(binary.LittleEndian.Uint32(vm.mem[a:]))
	}
	var b [4]byte
	for i := range b {
		b[i] = vm.mem[(a+uint32(i))&vm.img.dataMask]
	}
	return int32(binary.LittleEndian.Uint32(b[:]))
}

// Write4 stores a little-endian int32 at the masked address.
func (vm *VM) Write4(addr Addr, v int32) {
	a := vm.mask(addr)
	if a+4 <= uint32(len(vm.mem)) {
		binary.LittleEndian.PutUint32(vm.mem[a:], uint32(v))
		return
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	for i := range b {
		vm.mem[(a+uint32(i))&vm.img.dataMask] = b[i]
	}
}

// ReadBytes copies n bytes starting at addr into a fresh slice, masking
// every source byte independently so a request that straddles the end of
// data memory wraps rather than panics.
func (vm *VM) ReadBytes(addr Addr, n uint32) []byte {
	out := make([]byte, n)
	a := vm.mask(addr)
	for i := uint32(0); i < n; i++ {
		out[i] = vm.mem[(a+i)&vm.img.dataMask]
	}
	return out
}

// ReadString reads a NUL-terminated string starting at addr, bounded by
// maxLen bytes (guest strings are always host-bounded; see §4.3 "malformed
// string address").
func (vm *VM) ReadString(addr Addr, maxLen int) string {
	a := vm.mask(addr)
	buf := make([]byte, 0, 64)
	for i := 0; i < maxLen; i++ {
		b := vm.mem[(a+uint32(i))&vm.img.dataMask]
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

// WriteBytes copies data into guest memory at addr, wrapping at the end of
// data memory exactly like ReadBytes.
func (vm *VM) WriteBytes(addr Addr, data []byte) {
	a := vm.mask(addr)
	for i, b := range data {
		vm.mem[(a+uint32(i))&vm.img.dataMask] = b
	}
}

// BlockCopy copies n bytes from src to dst within data memory, both masked
// independently (OP_BLOCK_COPY).
func (vm *VM) BlockCopy(dst, src Addr, n uint32) {
	vm.WriteBytes(dst, vm.ReadBytes(src, n))
}
