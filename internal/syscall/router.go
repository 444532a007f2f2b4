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

// Package syscall is the bridge between guest bytecode and the host engine:
// three per-module routing tables (server-game, client-game, UI) that turn
// a syscall number plus a 14-word argument buffer into a host operation.
// Unknown numbers return zero and log a warning rather than aborting the
// guest (spec.md §4.3).
package syscall

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/lcm3/engine/internal/geom"
	"github.com/lcm3/engine/internal/vlog"
	"github.com/lcm3/engine/internal/vm"
)

// Cvars is the host's name->value registry, consulted by the cvar family of
// server-game syscalls.
type Cvars interface {
	Register(name, value string, flags int32) (current string, modifiedCount int32)
	Update(name string) (current string, modifiedCount int32)
	Set(name, value string)
	VariableValue(name string) float32
	VariableString(name string) string
}

// Configstrings is the 1024-slot string table shared between server and
// client game code.
type Configstrings interface {
	Set(index int32, value string)
	Get(index int32) string
}

// World is the shared entity table and collision model consulted by
// link/unlink/trace/point-contents/entities-in-box (spec.md §4.4).
type World interface {
	LocateGameData(gentities vm.Addr, gentitySize, maxEntities int32, playerstates vm.Addr, playerSize int32)
	LinkEntity(guest *vm.VM, entAddr vm.Addr)
	UnlinkEntity(entNum int32)
	EntitiesInBox(mins, maxs geom.Vec3, maxCount int32) []int32
	Trace(start, end, mins, maxs geom.Vec3, passEntityNum, contentMask int32) geom.TraceResult
	PointContents(point geom.Vec3, passEntityNum int32) int32
}

// Clients is the per-client command and input state the frame loop
// maintains: reliable server->client text commands and the latest usercmd
// received from each client.
type Clients interface {
	SendServerCommand(clientNum int32, text string)
	GetUsercmd(clientNum int32, seq int32) (cmd [8]int32, ok bool)
	DropClient(clientNum int32, reason string)
}

// Console is where Print/Error land; the admin console and the engine log
// both implement it (see internal/console).
type Console interface {
	Print(text string)
}

// ServerGame routes server-game syscalls (spec.md §4.3 "Key server-game
// operations"). It implements vm.Router and is installed on the
// server-game VM instance.
type ServerGame struct {
	Cvars   Cvars
	Strings Configstrings
	World   World
	Clients Clients
	Console Console

	// unknown throttles the "unknown syscall" warning to a burst of three
	// messages per distinct number, refilled at one a day, per spec.md §7.
	unknown map[int32]*rate.Limiter
}

// NewServerGame builds a router over the given collaborators. Every field
// of ServerGame may also be set directly; NewServerGame just initializes
// the rate-limiter bookkeeping.
func NewServerGame(cvars Cvars, strings Configstrings, world World, clients Clients, console Console) *ServerGame {
	return &ServerGame{
		Cvars:   cvars,
		Strings: strings,
		World:   world,
		Clients: clients,
		Console: console,
		unknown: make(map[int32]*rate.Limiter),
	}
}

// Invoke implements vm.Router.
func (r *ServerGame) Invoke(guest *vm.VM, args [14]int32) int32 {
	switch args[0] {
	case SGPrint:
		r.Console.Print(guest.ReadString(vm.Addr(args[1]), 1024))
		return 0
	case SGError:
		r.Console.Print("FATAL: " + guest.ReadString(vm.Addr(args[1]), 1024))
		guest.SetAbort()
		return 0
	case SGMilliseconds:
		// The router has no clock source; this always returns zero.
		return 0
	case SGCvarRegister:
		name := guest.ReadString(vm.Addr(args[2]), 128)
		value := guest.ReadString(vm.Addr(args[3]), 128)
		cur, mod := r.Cvars.Register(name, value, args[4])
		writeCvarStruct(guest, vm.Addr(args[1]), cur, mod)
		return 0
	case SGCvarUpdate:
		name := cvarName(guest, vm.Addr(args[1]))
		cur, mod := r.Cvars.Update(name)
		writeCvarStruct(guest, vm.Addr(args[1]), cur, mod)
		return 0
	case SGCvarSet:
		name := guest.ReadString(vm.Addr(args[1]), 128)
		value := guest.ReadString(vm.Addr(args[2]), 128)
		r.Cvars.Set(name, value)
		return 0
	case SGCvarVariableValue:
		name := guest.ReadString(vm.Addr(args[1]), 128)
		return int32(floatBits(r.Cvars.VariableValue(name)))
	case SGCvarVariableString:
		name := guest.ReadString(vm.Addr(args[1]), 128)
		guest.WriteBytes(vm.Addr(args[2]), cString(r.Cvars.VariableString(name), int(args[3])))
		return 0
	case SGLocateGameData:
		r.World.LocateGameData(vm.Addr(args[1]), args[2], args[3], vm.Addr(args[4]), args[5])
		return 0
	case SGDropClient:
		r.Clients.DropClient(args[1], guest.ReadString(vm.Addr(args[2]), 256))
		return 0
	case SGSendServerCommand:
		r.Clients.SendServerCommand(args[1], guest.ReadString(vm.Addr(args[2]), 1024))
		return 0
	case SGLinkEntity:
		r.World.LinkEntity(guest, vm.Addr(args[1]))
		return 0
	case SGUnlinkEntity:
		r.World.UnlinkEntity(args[1])
		return 0
	case SGEntitiesInBox:
		mins := readVec3(guest, vm.Addr(args[1]))
		maxs := readVec3(guest, vm.Addr(args[2]))
		list := r.World.EntitiesInBox(mins, maxs, args[4])
		n := len(list)
		if n > int(args[4]) {
			n = int(args[4])
		}
		for i := 0; i < n; i++ {
			guest.Write4(vm.Addr(args[3])+vm.Addr(4*i), list[i])
		}
		return int32(n)
	case SGTrace:
		start := readVec3(guest, vm.Addr(args[2]))
		end := readVec3(guest, vm.Addr(args[3]))
		mins := readVec3(guest, vm.Addr(args[4]))
		maxs := readVec3(guest, vm.Addr(args[5]))
		tr := r.World.Trace(start, end, mins, maxs, args[6], args[7])
		writeTraceResult(guest, vm.Addr(args[1]), tr)
		return 0
	case SGPointContents:
		point := readVec3(guest, vm.Addr(args[1]))
		return r.World.PointContents(point, args[2])
	case SGSetConfigstring:
		r.Strings.Set(args[1], guest.ReadString(vm.Addr(args[2]), 1024))
		return 0
	case SGGetConfigstring:
		s := r.Strings.Get(args[1])
		guest.WriteBytes(vm.Addr(args[2]), cString(s, int(args[3])))
		return 0
	case SGGetUsercmd:
		cmd, ok := r.Clients.GetUsercmd(args[1], args[2])
		if ok {
			for i, w := range cmd {
				guest.Write4(vm.Addr(args[3])+vm.Addr(4*i), w)
			}
		}
		return 0
	default:
		r.warnUnknown("server-game", args[0])
		return 0
	}
}

func (r *ServerGame) warnUnknown(table string, num int32) {
	lim, ok := r.unknown[num]
	if !ok {
		lim = rate.NewLimiter(rate.Every(24*time.Hour), 3)
		r.unknown[num] = lim
	}
	if lim.Allow() {
		vlog.Warn("unknown syscall", "table", table, "num", num)
	}
}

// cvarName re-reads the cvar_t.name field the guest wrote on register, so
// Update can look it up without a separate syscall argument for it. Offset
// 0 mirrors the guest's own cvar_t layout (name is the struct's first
// field).
func cvarName(guest *vm.VM, addr vm.Addr) string {
	return guest.ReadString(addr, 64)
}

// writeCvarStruct mirrors the live value back into the guest's cvar_t at
// the fixed offsets register/update both use: string value at +64,
// modificationCount at +64+256.
func writeCvarStruct(guest *vm.VM, addr vm.Addr, value string, modCount int32) {
	const (
		stringOff = 64
		stringLen = 256
		modOff    = stringOff + stringLen
	)
	guest.WriteBytes(addr+stringOff, cString(value, stringLen))
	guest.Write4(addr+modOff, modCount)
}

func cString(s string, max int) []byte {
	if len(s) >= max {
		s = s[:max-1]
	}
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

func readVec3(guest *vm.VM, addr vm.Addr) geom.Vec3 {
	return geom.Vec3{
		floatFromBits(guest.Read4(addr)),
		floatFromBits(guest.Read4(addr + 4)),
		floatFromBits(guest.Read4(addr + 8)),
	}
}

func writeTraceResult(guest *vm.VM, addr vm.Addr, tr geom.TraceResult) {
	guest.Write4(addr+0, int32(floatBits(tr.Fraction)))
	writeVec3At(guest, addr+4, tr.EndPos)
	writeVec3At(guest, addr+16, tr.PlaneNormal)
	guest.Write4(addr+28, tr.Contents)
	guest.Write4(addr+32, tr.EntityNum)
}

func writeVec3At(guest *vm.VM, addr vm.Addr, v geom.Vec3) {
	guest.Write4(addr+0, int32(floatBits(v[0])))
	guest.Write4(addr+4, int32(floatBits(v[1])))
	guest.Write4(addr+8, int32(floatBits(v[2])))
}
