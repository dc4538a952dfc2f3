package session

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npc-cli/jsh/pkg/eval/errs"
)

func TestVarScopes(t *testing.T) {
	_, s := setup(t)
	p := s.CreateProcess(ProcessDef{
		LocalVar:   map[string]any{"l": "local"},
		InheritVar: map[string]any{"i": "inherited"},
	})
	m := meta(p.Pid)

	s.SetVar(m, "l", "local2")
	s.SetVar(m, "i", "inherited2")
	s.SetVar(m, "g", "global")

	assert.Equal(t, "local2", p.LocalVar["l"])
	assert.Equal(t, "inherited2", p.InheritVar["i"])
	assert.Equal(t, "global", s.GetVar(meta(0), "g"))
	assert.Nil(t, s.GetVar(meta(0), "l"))

	s.SetLocalVar(m, "g", "shadow")
	assert.Equal(t, "shadow", s.GetVar(m, "g"))
	assert.Equal(t, map[string]any{"l": "local2", "i": "inherited2", "g": "shadow"}, s.ScopeVars(p.Pid))

	s.UnsetVar(m, "g")
	assert.Equal(t, "global", s.GetVar(m, "g"))
	_, ok := s.LookupVar(m, "nope")
	assert.False(t, ok)

	visible := s.VisibleVars(m)
	assert.Equal(t, "/home", visible["PWD"])
	assert.Equal(t, "local2", visible["l"])
}

func TestNormalizePath(t *testing.T) {
	_, s := setup(t)
	tests := []struct {
		path, pwd string
		want      []string
	}{
		{"/home/a", "/etc", []string{"home", "a"}},
		{"a/./b", "/home", []string{"home", "a", "b"}},
		{"../etc/x", "/home", []string{"etc", "x"}},
		{"~/x", "/etc", []string{"home", "x"}},
		{"~", "/etc", []string{"home"}},
		{"/../..", "/", nil},
	}
	for _, test := range tests {
		got := s.NormalizePath(test.path, test.pwd)
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("NormalizePath(%q, %q) (-want +got):\n%s", test.path, test.pwd, diff)
		}
	}
}

func TestVarDeep(t *testing.T) {
	_, s := setup(t)
	m := meta(0)
	s.SetVar(m, "foo", map[string]any{"bar": []any{"x", map[string]any{"baz": 1.0}}})
	s.SetEtc("version", "1")

	assert.Equal(t, 1.0, s.GetVarDeep(m, "/home/foo/bar/1/baz"))
	assert.Equal(t, "x", s.GetVarDeep(m, "foo/bar/0"))
	assert.Equal(t, "1", s.GetVarDeep(m, "../etc/version"))
	assert.Nil(t, s.GetVarDeep(m, "foo/bar/7"))

	require.NoError(t, s.SetVarDeep(m, "foo/bar/0", "y"))
	require.NoError(t, s.SetVarDeep(m, "/home/foo/qux", true))
	assert.Equal(t, "y", s.GetVarDeep(m, "foo/bar/0"))
	assert.Equal(t, true, s.GetVarDeep(m, "~/foo/qux"))

	err := s.SetVarDeep(m, "/etc/version", "2")
	require.Error(t, err)
	assert.Equal(t, "only the home directory is writable", err.Error())
	assert.Equal(t, 1, errs.ExitCode(err))

	err = s.SetVarDeep(m, "/home/missing/x", 1)
	require.Error(t, err)
	assert.Equal(t, "cannot resolve /home/missing/x", err.Error())
}

func TestVarDeep_LocalScope(t *testing.T) {
	_, s := setup(t)
	p := s.CreateProcess(ProcessDef{LocalVar: map[string]any{"opts": map[string]any{}}})
	m := meta(p.Pid)

	require.NoError(t, s.SetVarDeep(m, "opts/n", 2.0))
	assert.Equal(t, map[string]any{"n": 2.0}, p.LocalVar["opts"])
	assert.Nil(t, s.GetVar(meta(0), "opts"))
}

func TestListDir(t *testing.T) {
	_, s := setup(t)
	m := meta(0)
	s.SetVar(m, "b", []any{1.0, 2.0})
	s.SetVar(m, "a", "x")

	names, ok := s.ListDir(m, "/home")
	assert.True(t, ok)
	assert.Equal(t, []string{"OLDPWD", "PWD", "a", "b"}, names)

	names, ok = s.ListDir(m, "b")
	assert.True(t, ok)
	assert.Equal(t, []string{"0", "1"}, names)

	_, ok = s.ListDir(m, "a")
	assert.False(t, ok)
}

func TestGet(t *testing.T) {
	_, s := setup(t)
	p := s.CreateProcess(ProcessDef{LocalVar: map[string]any{"x": []any{"local"}}})
	s.SetVar(meta(0), "x", "global")
	s.SetVar(meta(0), "y", map[string]any{"z": 1.0})

	assert.Equal(t, "local", s.Get(meta(p.Pid), "x/0"))
	assert.Equal(t, "global", s.Get(meta(0), "x"))
	assert.Equal(t, 1.0, s.Get(meta(p.Pid), "~/y/z"))
	assert.Equal(t, "global", s.Get(meta(p.Pid), "/home/x"))
	assert.Nil(t, s.Get(meta(0), "y/nope"))
}

func TestRemoveVarDeep(t *testing.T) {
	_, s := setup(t)
	m := meta(0)
	s.SetVar(m, "y", map[string]any{"z": 1.0, "w": 2.0})

	require.NoError(t, s.RemoveVarDeep(m, "y/z", false))
	assert.Equal(t, map[string]any{"w": 2.0}, s.GetVar(m, "y"))

	err := s.RemoveVarDeep(m, "y/z", false)
	require.Error(t, err)
	assert.Equal(t, "y/z: not found", err.Error())
	assert.NoError(t, s.RemoveVarDeep(m, "y/z", true))

	err = s.RemoveVarDeep(m, "/etc/x", false)
	require.Error(t, err)
	assert.NoError(t, s.RemoveVarDeep(m, "/etc/x", true))
}
