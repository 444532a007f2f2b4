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

package syscall

import "github.com/lcm3/engine/internal/vm"

// SnapshotSource is the client-side view of the snapshot ring the loop
// fills as server messages arrive (see internal/snapshot).
type SnapshotSource interface {
	Gamestate() []byte
	CurrentSnapshotNumber() int32
	Snapshot(num int32) (data []byte, ok bool)
}

// UserCmdSink receives the client's packed usercmd for the next loop
// iteration.
type UserCmdSink interface {
	SetUserCmd(cmd [8]int32)
}

// Renderer and Audio are the out-of-scope collaborators spec.md §4.3 calls
// out by name ("forwarded to the renderer/audio collaborator, out of
// scope"). A nil Renderer/Audio makes every forwarding call a no-op, which
// is what a headless server-only build uses.
type Renderer interface {
	AddRefEntityToScene(data []byte)
	AddLightToScene(data []byte)
	AddPolyToScene(data []byte)
	RenderScene(data []byte)
}

type Audio interface {
	RegisterSound(name string) int32
	StartSound(data []byte)
}

// ClientGame routes client-game syscalls. Only the first four operations
// have real host-side state; the rest are contracts forwarded verbatim to
// Renderer/Audio (spec.md §4.3).
type ClientGame struct {
	Snapshots SnapshotSource
	UserCmds  UserCmdSink
	Renderer  Renderer
	Audio     Audio
}

func NewClientGame(snapshots SnapshotSource, cmds UserCmdSink, renderer Renderer, audio Audio) *ClientGame {
	return &ClientGame{Snapshots: snapshots, UserCmds: cmds, Renderer: renderer, Audio: audio}
}

// Invoke implements vm.Router.
func (r *ClientGame) Invoke(guest *vm.VM, args [14]int32) int32 {
	switch args[0] {
	case CGGetGamestate:
		data := r.Snapshots.Gamestate()
		guest.WriteBytes(vm.Addr(args[1]), data)
		return int32(len(data))
	case CGGetCurrentSnapshotNumber:
		return r.Snapshots.CurrentSnapshotNumber()
	case CGGetSnapshot:
		data, ok := r.Snapshots.Snapshot(args[1])
		if !ok {
			return 0
		}
		guest.WriteBytes(vm.Addr(args[2]), data)
		return 1
	case CGSetUserCmdValue:
		var cmd [8]int32
		for i := range cmd {
			cmd[i] = guest.Read4(vm.Addr(args[1]) + vm.Addr(4*i))
		}
		r.UserCmds.SetUserCmd(cmd)
		return 0
	case CGAddRefEntityToScene:
		if r.Renderer != nil {
			r.Renderer.AddRefEntityToScene(guest.ReadBytes(vm.Addr(args[1]), uint32(args[2])))
		}
		return 0
	case CGAddLightToScene:
		if r.Renderer != nil {
			r.Renderer.AddLightToScene(guest.ReadBytes(vm.Addr(args[1]), uint32(args[2])))
		}
		return 0
	case CGAddPolyToScene:
		if r.Renderer != nil {
			r.Renderer.AddPolyToScene(guest.ReadBytes(vm.Addr(args[1]), uint32(args[2])))
		}
		return 0
	case CGRenderScene:
		if r.Renderer != nil {
			r.Renderer.RenderScene(guest.ReadBytes(vm.Addr(args[1]), uint32(args[2])))
		}
		return 0
	case CGRegisterSound:
		if r.Audio == nil {
			return 0
		}
		return r.Audio.RegisterSound(guest.ReadString(vm.Addr(args[1]), 256))
	case CGStartSound:
		if r.Audio != nil {
			r.Audio.StartSound(guest.ReadBytes(vm.Addr(args[1]), uint32(args[2])))
		}
		return 0
	default:
		return 0
	}
}
