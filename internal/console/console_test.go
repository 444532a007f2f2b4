// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCvars struct {
	values map[string]string
}

func (f *fakeCvars) Snapshot() map[string]string { return f.values }
func (f *fakeCvars) Set(name, value string)       { f.values[name] = value }

func TestPrintAddsTrailingNewline(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, &fakeCvars{values: map[string]string{}})
	c.Print("hello")
	require.Equal(t, "hello\n", buf.String())
}

func TestExecuteSetUpdatesCvar(t *testing.T) {
	var buf bytes.Buffer
	cvars := &fakeCvars{values: map[string]string{}}
	c := New(&buf, cvars)

	require.Equal(t, "", c.Execute("set sv_hostname mylevel"))
	require.Equal(t, "mylevel", cvars.values["sv_hostname"])
}

func TestExecuteUnknownCommandIsSilent(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, &fakeCvars{values: map[string]string{}})
	require.Equal(t, "", c.Execute("bogus 1 2 3"))
}

func TestRunScriptSkipsBlankLinesAndComments(t *testing.T) {
	var buf bytes.Buffer
	cvars := &fakeCvars{values: map[string]string{}}
	c := New(&buf, cvars)

	script := strings.NewReader("// boot script\n\nset fraglimit 20\n")
	require.NoError(t, c.RunScript(script))
	require.Equal(t, "20", cvars.values["fraglimit"])
}

func TestPrintCvarTableRendersSortedRows(t *testing.T) {
	var buf bytes.Buffer
	cvars := &fakeCvars{values: map[string]string{"sv_hostname": "x", "fraglimit": "20"}}
	c := New(&buf, cvars)

	c.PrintCvarTable()
	out := buf.String()
	require.True(t, strings.Index(out, "fraglimit") < strings.Index(out, "sv_hostname"))
}

func TestPrintEntityTableRendersLinkedColumn(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, &fakeCvars{values: map[string]string{}})

	c.PrintEntityTable([]EntityRow{{Num: 1, Origin: "0 0 0", Linked: true}})
	out := buf.String()
	require.Contains(t, out, "yes")
}
