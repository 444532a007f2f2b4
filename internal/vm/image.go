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
	"os"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/crypto/sha3"

	"github.com/lcm3/engine/internal/vlog"
)

// magic is the fixed four-byte signature every bytecode image must open
// with (0x12721444, little-endian).
const magic uint32 = 0x12721444

// headerWords is the number of little-endian uint32 header fields.
const headerWords = 8

// defaultStackSize is the byte size of the program stack carved out of the
// top of data memory when the image does not override it. Matches the
// classic VM_PROGRAM_STACK_SIZE used by guest compilers targeting this
// bytecode format.
const defaultStackSize = 0x10000

// MaxInstructions bounds the instruction pointer table so a corrupt header
// cannot force an unbounded allocation.
const MaxInstructions = 8 * 1024 * 1024

// header mirrors the eight-field little-endian bytecode container header.
type header struct {
	magic      uint32
	instrCount uint32
	codeOff    uint32
	codeLen    uint32
	dataOff    uint32
	dataLen    uint32
	litLen     uint32
	bssLen     uint32
}

// Image is the immutable, prepared form of a loaded bytecode container:
// code with branch targets rewritten to byte offsets, the instruction
// pointer table, and the template used to initialize each VM instance's
// data memory.
type Image struct {
	code         []byte   // immutable after prepare; branch operands rewritten
	instrOffsets []uint32 // instruction index -> byte offset in code

	dataTemplate []byte // dataLen+litLen bytes copied into fresh data memory
	dataLen      uint32
	litLen       uint32
	bssLen       uint32
	stackSize    uint32

	memSize  uint32 // next power of two >= dataLen+litLen+bssLen+stackSize
	dataMask uint32 // memSize - 1

	hash [32]byte // sha3-256 of the code segment, logged once at load
}

// Load parses a bytecode image from an in-memory buffer.
func Load(raw []byte) (*Image, error) {
	if len(raw) < headerWords*4 {
		return nil, fmt.Errorf("%w: file too small for header", ErrTruncated)
	}
	h := header{
		magic:      binary.LittleEndian.Uint32(raw[0:4]),
		instrCount: binary.LittleEndian.Uint32(raw[4:8]),
		codeOff:    binary.LittleEndian.Uint32(raw[8:12]),
		codeLen:    binary.LittleEndian.Uint32(raw[12:16]),
		dataOff:    binary.LittleEndian.Uint32(raw[16:20]),
		dataLen:    binary.LittleEndian.Uint32(raw[20:24]),
		litLen:     binary.LittleEndian.Uint32(raw[24:28]),
		bssLen:     binary.LittleEndian.Uint32(raw[28:32]),
	}
	if h.magic != magic {
		return nil, fmt.Errorf("%w: got 0x%08x, want 0x%08x", ErrBadMagic, h.magic, magic)
	}
	if h.instrCount > MaxInstructions {
		return nil, fmt.Errorf("%w: %d instructions exceeds cap %d", ErrBadInstrCount, h.instrCount, MaxInstructions)
	}
	if uint64(h.codeOff)+uint64(h.codeLen) > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: code [%d,%d) vs file size %d", ErrCodeOverflow, h.codeOff, h.codeOff+h.codeLen, len(raw))
	}
	if uint64(h.dataOff)+uint64(h.dataLen)+uint64(h.litLen) > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: data [%d,%d) vs file size %d", ErrDataOverflow, h.dataOff, uint64(h.dataOff)+uint64(h.dataLen)+uint64(h.litLen), len(raw))
	}

	code := make([]byte, h.codeLen)
	copy(code, raw[h.codeOff:h.codeOff+h.codeLen])

	instrOffsets, err := buildInstructionTable(code, h.instrCount)
	if err != nil {
		return nil, err
	}

	dataTemplate := make([]byte, h.dataLen+h.litLen)
	// Initialized data is stored as word-swapped 32-bit words; normalize to
	// host little-endian order on copy.
	for i := uint32(0); i+4 <= h.dataLen; i += 4 {
		src := raw[h.dataOff+i : h.dataOff+i+4]
		dataTemplate[i+0] = src[3]
		dataTemplate[i+1] = src[2]
		dataTemplate[i+2] = src[1]
		dataTemplate[i+3] = src[0]
	}
	// Literal segment is copied byte-for-byte, no swap.
	copy(dataTemplate[h.dataLen:], raw[h.dataOff+h.dataLen:h.dataOff+h.dataLen+h.litLen])

	stackSize := uint32(defaultStackSize)
	memSize := nextPow2(uint64(h.dataLen) + uint64(h.litLen) + uint64(h.bssLen) + uint64(stackSize))

	img := &Image{
		code:         code,
		instrOffsets: instrOffsets,
		dataTemplate: dataTemplate,
		dataLen:      h.dataLen,
		litLen:       h.litLen,
		bssLen:       h.bssLen,
		stackSize:    stackSize,
		memSize:      uint32(memSize),
		dataMask:     uint32(memSize - 1),
		hash:         sha3.Sum256(code),
	}

	if err := img.rewriteBranches(); err != nil {
		return nil, err
	}

	vlog.Debug("vm image prepared", "instructions", h.instrCount, "codeLen", h.codeLen,
		"dataLen", h.dataLen, "litLen", h.litLen, "bssLen", h.bssLen, "memSize", img.memSize,
		"hash", fmt.Sprintf("%x", img.hash[:8]))
	return img, nil
}

// LoadFile memory-maps path and loads the image from the mapped bytes. The
// mapping is closed before LoadFile returns; Load copies everything it
// needs out of the mapped region, so the returned Image owns no mmap
// references (and the underlying PK3 extraction file can be closed safely
// by the caller's filesystem collaborator).
func LoadFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("vm: mmap %s: %w", path, err)
	}
	defer m.Unmap()

	return Load(m)
}

// Hash returns the sha3-256 digest of the code segment, computed once at
// load time.
func (img *Image) Hash() [32]byte { return img.hash }

// buildInstructionTable walks code once, recording each instruction's byte
// offset, using per-opcode operand sizes to advance.
func buildInstructionTable(code []byte, instrCount uint32) ([]uint32, error) {
	offsets := make([]uint32, 0, instrCount)
	pos := uint32(0)
	for uint32(len(offsets)) < instrCount {
		if int(pos) >= len(code) {
			return nil, fmt.Errorf("%w: expected %d instructions, ran out of code at %d", ErrBadInstrCount, instrCount, pos)
		}
		op := Op(code[pos])
		if !op.Valid() {
			return nil, fmt.Errorf("%w: opcode 0x%02x at byte %d", ErrUnknownOpcode, code[pos], pos)
		}
		offsets = append(offsets, pos)
		pos += 1 + uint32(op.OperandSize())
	}
	if int(pos) > len(code) {
		return nil, fmt.Errorf("%w: last instruction operand runs past code end", ErrCodeOverflow)
	}
	return offsets, nil
}

// rewriteBranches performs the second pass: for every compare-branch
// opcode, replace its 4-byte operand (an instruction index) with the byte
// offset from the instruction pointer table.
func (img *Image) rewriteBranches() error {
	for _, pos := range img.instrOffsets {
		op := Op(img.code[pos])
		if !isBranch(op) {
			continue
		}
		idx := binary.LittleEndian.Uint32(img.code[pos+1 : pos+5])
		if idx >= uint32(len(img.instrOffsets)) {
			return fmt.Errorf("%w: branch at byte %d targets instruction %d of %d", ErrBadJumpTarget, pos, idx, len(img.instrOffsets))
		}
		binary.LittleEndian.PutUint32(img.code[pos+1:pos+5], img.instrOffsets[idx])
	}
	return nil
}

// nextPow2 returns the smallest power of two not less than n.
func nextPow2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}
