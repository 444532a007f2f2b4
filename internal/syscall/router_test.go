// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package syscall

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lcm3/engine/internal/geom"
	"github.com/lcm3/engine/internal/vm"
)

// fakeCvars, fakeStrings, fakeWorld, fakeClients, fakeConsole are minimal
// in-memory collaborators: enough to exercise the router's marshalling
// without pulling in the real internal/world or internal/snapshot
// packages from a lower-level test.

type fakeCvars struct {
	values map[string]string
	mod    map[string]int32
}

func newFakeCvars() *fakeCvars {
	return &fakeCvars{values: map[string]string{}, mod: map[string]int32{}}
}

func (c *fakeCvars) Register(name, value string, _ int32) (string, int32) {
	if _, ok := c.values[name]; !ok {
		c.values[name] = value
	}
	return c.values[name], c.mod[name]
}

func (c *fakeCvars) Update(name string) (string, int32) { return c.values[name], c.mod[name] }

func (c *fakeCvars) Set(name, value string) {
	c.values[name] = value
	c.mod[name]++
}

func (c *fakeCvars) VariableValue(name string) float32 {
	return 0
}

func (c *fakeCvars) VariableString(name string) string { return c.values[name] }

type fakeStrings struct{ slots map[int32]string }

func (s *fakeStrings) Set(i int32, v string) { s.slots[i] = v }
func (s *fakeStrings) Get(i int32) string    { return s.slots[i] }

type fakeWorld struct {
	linked   []vm.Addr
	unlinked []int32
}

func (w *fakeWorld) LocateGameData(vm.Addr, int32, int32, vm.Addr, int32) {}
func (w *fakeWorld) LinkEntity(_ *vm.VM, addr vm.Addr)                    { w.linked = append(w.linked, addr) }
func (w *fakeWorld) UnlinkEntity(n int32)                                 { w.unlinked = append(w.unlinked, n) }
func (w *fakeWorld) EntitiesInBox(geom.Vec3, geom.Vec3, int32) []int32    { return []int32{3, 7} }
func (w *fakeWorld) Trace(start, end, _, _ geom.Vec3, _, _ int32) geom.TraceResult {
	return geom.TraceResult{Fraction: 0.5, EndPos: start.Add(end).AddScalar(0), EntityNum: -1}
}
func (w *fakeWorld) PointContents(geom.Vec3, int32) int32 { return 0 }

type fakeClients struct {
	sent map[int32][]string
}

func (c *fakeClients) SendServerCommand(num int32, text string) {
	c.sent[num] = append(c.sent[num], text)
}
func (c *fakeClients) GetUsercmd(int32, int32) ([8]int32, bool) { return [8]int32{}, false }
func (c *fakeClients) DropClient(int32, string)                 {}

type fakeConsole struct{ lines []string }

func (c *fakeConsole) Print(s string) { c.lines = append(c.lines, s) }

func buildRouter() (*ServerGame, *fakeConsole, *fakeCvars, *fakeWorld, *fakeClients, *fakeStrings) {
	console := &fakeConsole{}
	cvars := newFakeCvars()
	world := &fakeWorld{}
	clients := &fakeClients{sent: map[int32][]string{}}
	strings := &fakeStrings{slots: map[int32]string{}}
	return NewServerGame(cvars, strings, world, clients, console), console, cvars, world, clients, strings
}

// newTestVM builds a bare VM with enough data memory to read/write guest
// strings and structs against, without going through the full image loader.
func newTestVM(t *testing.T) *vm.VM {
	t.Helper()
	h := make([]byte, 32)
	binary.LittleEndian.PutUint32(h[0:], 0x12721444)
	binary.LittleEndian.PutUint32(h[4:], 1)
	binary.LittleEndian.PutUint32(h[8:], 32)
	binary.LittleEndian.PutUint32(h[12:], 5) // one LEAVE 0 instruction (1+4 bytes)
	binary.LittleEndian.PutUint32(h[16:], 37)
	binary.LittleEndian.PutUint32(h[20:], 0)
	binary.LittleEndian.PutUint32(h[28:], 4096) // bssLen: plenty of scratch room
	code := []byte{0x04, 0, 0, 0, 0}            // OpLeave (opcode 4) with imm 0
	raw := append(h, code...)
	img, err := vm.Load(raw)
	require.NoError(t, err)
	return vm.New(img, stubRouter{}, "test")
}

type stubRouter struct{}

func (stubRouter) Invoke(*vm.VM, [14]int32) int32 { return 0 }

func TestPrintAppendsToConsole(t *testing.T) {
	r, console, _, _, _, _ := buildRouter()
	guest := newTestVM(t)
	guest.WriteBytes(vm.Addr(100), append([]byte("hello world"), 0))

	result := r.Invoke(guest, argsOf(SGPrint, 100))
	require.Equal(t, int32(0), result)
	require.Equal(t, []string{"hello world"}, console.lines)
}

func TestErrorSetsAbort(t *testing.T) {
	r, _, _, _, _, _ := buildRouter()
	guest := newTestVM(t)
	guest.WriteBytes(vm.Addr(0), []byte{0})

	r.Invoke(guest, argsOf(SGError, 0))
	require.True(t, guest.Abort())
}

func TestCvarRegisterWritesValueIntoGuestStruct(t *testing.T) {
	r, _, _, _, _, _ := buildRouter()
	guest := newTestVM(t)
	guest.WriteBytes(vm.Addr(0), append([]byte("sv_gravity"), 0))
	guest.WriteBytes(vm.Addr(64), append([]byte("800"), 0))

	r.Invoke(guest, argsOf(SGCvarRegister, 200, 0, 64, 0))
	// The struct's string field now holds "800" at offset 64 of the cvar_t.
	require.Equal(t, "800", guest.ReadString(vm.Addr(200+64), 256))
}

func TestSendServerCommandAppendsToClientRing(t *testing.T) {
	r, _, _, _, clients, _ := buildRouter()
	guest := newTestVM(t)
	guest.WriteBytes(vm.Addr(0), append([]byte("print \"hi\"\n"), 0))

	r.Invoke(guest, argsOf(SGSendServerCommand, 2, 0))
	require.Equal(t, []string{"print \"hi\"\n"}, clients.sent[2])
}

func TestEntitiesInBoxWritesListAndReturnsCount(t *testing.T) {
	r, _, _, _, _, _ := buildRouter()
	guest := newTestVM(t)

	n := r.Invoke(guest, argsOf(SGEntitiesInBox, 0, 0, 300, 8))
	require.Equal(t, int32(2), n)
	require.Equal(t, int32(3), guest.Read4(vm.Addr(300)))
	require.Equal(t, int32(7), guest.Read4(vm.Addr(304)))
}

func TestConfigstringRoundTrip(t *testing.T) {
	r, _, _, _, _, strings := buildRouter()
	guest := newTestVM(t)
	guest.WriteBytes(vm.Addr(0), append([]byte("dm"), 0))

	r.Invoke(guest, argsOf(SGSetConfigstring, 5, 0))
	require.Equal(t, "dm", strings.Get(5))

	r.Invoke(guest, argsOf(SGGetConfigstring, 5, 400, 64))
	require.Equal(t, "dm", guest.ReadString(vm.Addr(400), 64))
}

func TestUnknownSyscallReturnsZeroNotPanic(t *testing.T) {
	r, _, _, _, _, _ := buildRouter()
	guest := newTestVM(t)
	require.NotPanics(t, func() {
		result := r.Invoke(guest, argsOf(9999))
		require.Equal(t, int32(0), result)
	})
}

// argsOf builds a [14]int32 argument buffer with num in slot 0 and rest in
// order, matching how the interpreter marshals syscalls.
func argsOf(num int32, rest ...int32) [14]int32 {
	var a [14]int32
	a[0] = num
	copy(a[1:], rest)
	return a
}
