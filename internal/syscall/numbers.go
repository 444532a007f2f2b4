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

// Server-game syscall numbers. The number space is stable once assigned: a
// guest module compiled against one numbering must keep working against
// later router revisions, so new operations are always appended.
const (
	SGPrint int32 = iota
	SGError
	SGMilliseconds
	SGCvarRegister
	SGCvarUpdate
	SGCvarSet
	SGCvarVariableValue
	SGCvarVariableString
	SGLocateGameData
	SGDropClient
	SGSendServerCommand
	SGLinkEntity
	SGUnlinkEntity
	SGEntitiesInBox
	SGTrace
	SGPointContents
	SGSetConfigstring
	SGGetConfigstring
	SGGetUsercmd
	sgCount
)

// Client-game syscall numbers. Everything past CGSetUserCmdValue forwards to
// out-of-scope renderer/audio collaborators per spec.md §4.3 and is
// implemented as a contract stub here.
const (
	CGGetGamestate int32 = iota
	CGGetCurrentSnapshotNumber
	CGGetSnapshot
	CGSetUserCmdValue
	CGAddRefEntityToScene
	CGAddLightToScene
	CGAddPolyToScene
	CGRenderScene
	CGRegisterSound
	CGStartSound
	cgCount
)

// UI syscalls are not enumerated individually: spec.md scopes the menu
// system as a non-goal, so the UI table is a blanket stub (see ui.go).
