// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package syscall

import "math"

func floatBits(f float32) uint32       { return math.Float32bits(f) }
func floatFromBits(bits int32) float32 { return math.Float32frombits(uint32(bits)) }
