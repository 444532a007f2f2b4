// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package netchan

// Player movement prediction constants (spec.md §4.6.1): the client
// re-derives these exact values so its locally predicted position
// converges with the server's once a snapshot arrives.
const (
	Gravity        float32 = 800
	JumpVelocity   float32 = 270
	MaxGroundSpeed float32 = 320
)
