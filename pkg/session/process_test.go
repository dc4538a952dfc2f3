package session

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProcess_NewGroup(t *testing.T) {
	_, s := setup(t)
	p := s.CreateProcess(ProcessDef{Ppid: 0, Pgid: 0, NewGroup: true, Src: "sleep 1"})
	info, ok := s.ProcessInfo(p.Pid)
	require.True(t, ok)
	assert.Equal(t, p.Pid, info.Pgid)
	assert.Equal(t, "sleep 1", info.Src)
	assert.Equal(t, Running, info.Status)
	assert.Equal(t, []string{"jsh"}, s.Positionals(p.Pid))

	_, ok = s.ProcessInfo(99)
	assert.False(t, ok)
}

func TestCreateProcess_ParentContext(t *testing.T) {
	_, s := setup(t)
	parent := s.CreateProcess(ProcessDef{Pgid: 9})
	child := s.CreateProcess(ProcessDef{Ppid: parent.Pid, Pgid: 9, Parent: parent.Context()})
	orphan := s.CreateProcess(ProcessDef{Ppid: parent.Pid, Pgid: 7})

	s.Kill([]int{parent.Pid}, KillOpts{SIGINT: true})
	select {
	case <-child.Context().Done():
	default:
		t.Errorf("child context not cancelled with its parent")
	}
	assert.NoError(t, orphan.Context().Err())
}

func TestPositionals(t *testing.T) {
	_, s := setup(t)
	p := s.CreateProcess(ProcessDef{Positionals: []string{"jsh", "a", "b", "c"}})

	s.ShiftPositionals(p.Pid, 1)
	assert.Equal(t, []string{"jsh", "b", "c"}, s.Positionals(p.Pid))
	s.ShiftPositionals(p.Pid, 5)
	assert.Equal(t, []string{"jsh"}, s.Positionals(p.Pid))

	old := s.SetPositionals(p.Pid, []string{"jsh", "x"})
	assert.Equal(t, []string{"jsh"}, old)
	assert.Equal(t, []string{"jsh", "x"}, s.Positionals(p.Pid))
	assert.Nil(t, s.Positionals(99))
}

func TestTags(t *testing.T) {
	_, s := setup(t)
	p := s.CreateProcess(ProcessDef{})
	s.SetTags(p.Pid, map[string]string{"a": "1", "b": ""})
	v := "2"
	s.UpdateTags(p.Pid, map[string]*string{"a": &v, "b": nil, "c": new(string)})

	info, _ := s.ProcessInfo(p.Pid)
	if diff := cmp.Diff(map[string]string{"a": "2", "c": ""}, info.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	s.SetTags(p.Pid, nil)
	info, _ = s.ProcessInfo(p.Pid)
	assert.Empty(t, info.Tags)
}

func TestProcesses(t *testing.T) {
	_, s := setup(t)
	a := s.CreateProcess(ProcessDef{Pgid: 4})
	s.CreateProcess(ProcessDef{Pgid: 5})
	b := s.CreateProcess(ProcessDef{Pgid: 4})

	var pids []int
	for _, info := range s.Processes(4) {
		pids = append(pids, info.Pid)
	}
	assert.Equal(t, []int{a.Pid, b.Pid}, pids)
	assert.Len(t, s.Processes(-1), 4)
}

func TestRemoveProcess(t *testing.T) {
	_, s := setup(t)
	p := s.CreateProcess(ProcessDef{Pgid: 1})
	ran := false
	s.HandleStatus(p.Pid, Handlers{Cleanups: []func(){func() { ran = true }}})
	s.RemoveProcess(p.Pid)
	assert.True(t, ran)
	assert.Nil(t, s.Process(p.Pid))
	assert.Equal(t, Killed, s.ProcessStatus(p.Pid))
}

func TestLastExit(t *testing.T) {
	_, s := setup(t)
	s.SetLastExit(&Meta{}, 3)
	s.SetLastExit(&Meta{Background: true}, 4)
	assert.Equal(t, 3, s.LastExit(&Meta{}))
	assert.Equal(t, 4, s.LastExit(&Meta{Background: true}))
}
