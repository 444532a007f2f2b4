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

import "errors"

// Image load errors (§4.1 / §7 "Image invalid").
var (
	ErrBadMagic       = errors.New("vm: bad magic number")
	ErrTruncated      = errors.New("vm: header declares more bytes than the file holds")
	ErrBadInstrCount  = errors.New("vm: instruction count does not match the code segment")
	ErrUnknownOpcode  = errors.New("vm: unknown opcode during prepare")
	ErrCodeOverflow   = errors.New("vm: code segment exceeds file")
	ErrDataOverflow   = errors.New("vm: data segment exceeds file")
)

// Interpreter runtime errors (§7 "Guest runtime").
var (
	ErrHalted          = errors.New("vm: already halted")
	ErrPCOutOfCode     = errors.New("vm: pc out of code")
	ErrStackOverflow   = errors.New("vm: program stack overflow")
	ErrStackUnderflow  = errors.New("vm: program stack underflow")
	ErrOpStackOverflow = errors.New("vm: operand stack overflow")
	ErrOpStackUnderflow = errors.New("vm: operand stack underflow")
	ErrIterationCap    = errors.New("vm: iteration cap exceeded")
	ErrTooManyArgs     = errors.New("vm: too many external-call arguments")
	ErrBadJumpTarget   = errors.New("vm: jump target out of range")
	ErrBadCallTarget   = errors.New("vm: call target out of range")
)
