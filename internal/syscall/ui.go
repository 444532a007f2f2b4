// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package syscall

import "github.com/lcm3/engine/internal/vm"

// UI is a blanket stub table: spec.md excludes the menu system itself as a
// non-goal, so every UI syscall returns zero with no side effects. Bot
// AAS/AI syscalls are server-game numbers and do not come here; ServerGame
// has no entries for them, so its default case returns zero for them.
type UI struct{}

// Invoke implements vm.Router.
func (UI) Invoke(_ *vm.VM, _ [14]int32) int32 { return 0 }
