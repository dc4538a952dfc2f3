package session

import (
	"sort"
	"strconv"
	"strings"

	"github.com/npc-cli/jsh/pkg/eval/errs"
)

// GetVar resolves name in the scope of meta's process: local variables first,
// then inherited ones, then the session namespace.
func (s *Session) GetVar(meta *Meta, name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.processes[meta.Pid]; ok {
		if v, ok := p.LocalVar[name]; ok {
			return v
		}
		if v, ok := p.InheritVar[name]; ok {
			return v
		}
	}
	return s.vars[name]
}

// LookupVar is like GetVar, but also reports whether the variable exists.
func (s *Session) LookupVar(meta *Meta, name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.processes[meta.Pid]; ok {
		if v, ok := p.LocalVar[name]; ok {
			return v, true
		}
		if v, ok := p.InheritVar[name]; ok {
			return v, true
		}
	}
	v, ok := s.vars[name]
	return v, ok
}

// SetVar writes to the most local scope already holding name, defaulting to
// the session namespace.
func (s *Session) SetVar(meta *Meta, name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.processes[meta.Pid]; ok {
		if _, ok := p.LocalVar[name]; ok {
			p.LocalVar[name] = v
			return
		}
		if _, ok := p.InheritVar[name]; ok {
			p.InheritVar[name] = v
			return
		}
	}
	s.vars[name] = v
}

// SetLocalVar declares name as local to meta's process.
func (s *Session) SetLocalVar(meta *Meta, name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.processes[meta.Pid]; ok {
		p.LocalVar[name] = v
	}
}

// UnsetVar removes name from the most local scope holding it.
func (s *Session) UnsetVar(meta *Meta, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.processes[meta.Pid]; ok {
		if _, ok := p.LocalVar[name]; ok {
			delete(p.LocalVar, name)
			return
		}
		if _, ok := p.InheritVar[name]; ok {
			delete(p.InheritVar, name)
			return
		}
	}
	delete(s.vars, name)
}

// VisibleVars returns a copy of every variable visible to meta's process,
// with local scopes shadowing the session namespace.
func (s *Session) VisibleVars(meta *Meta) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	if p, ok := s.processes[meta.Pid]; ok {
		for k, v := range p.InheritVar {
			out[k] = v
		}
		for k, v := range p.LocalVar {
			out[k] = v
		}
	}
	return out
}

// ScopeVars returns a merged copy of the inherited and local variables of a
// process, for a child to inherit.
func (s *Session) ScopeVars(pid int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]any{}
	if p, ok := s.processes[pid]; ok {
		for k, v := range p.InheritVar {
			out[k] = v
		}
		for k, v := range p.LocalVar {
			out[k] = v
		}
	}
	return out
}

// SetEtc sets a read-only value under /etc.
func (s *Session) SetEtc(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.etc[name] = v
}

// NormalizePath resolves path against pwd into its parts. ~ expands to the
// session home; . and .. are resolved.
func (s *Session) NormalizePath(path, pwd string) []string {
	if path == "~" {
		path = s.Home
	} else if strings.HasPrefix(path, "~/") {
		path = s.Home + path[1:]
	}
	var raw []string
	if strings.HasPrefix(path, "/") {
		raw = strings.Split(path, "/")
	} else {
		raw = append(strings.Split(pwd, "/"), strings.Split(path, "/")...)
	}
	var parts []string
	for _, part := range raw {
		switch part {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, part)
		}
	}
	return parts
}

// GetVarDeep resolves a path such as /home/foo/0/bar or ../etc/x into the
// variable trees rooted at /home and /etc. Relative paths resolve against the
// PWD of meta's process. It returns nil if nothing is found.
func (s *Session) GetVarDeep(meta *Meta, path string) any {
	pwd, _ := s.GetVar(meta, "PWD").(string)
	parts := s.NormalizePath(path, pwd)
	s.mu.Lock()
	defer s.mu.Unlock()
	var root any = map[string]any{"home": s.vars, "etc": s.etc}
	return walk(root, parts)
}

// Get resolves path like GetVarDeep, except that a relative path whose first
// part names a local or inherited variable of meta's process resolves inside
// that variable.
func (s *Session) Get(meta *Meta, path string) any {
	if path == "~" {
		path = s.Home
	} else if strings.HasPrefix(path, "~/") {
		path = s.Home + path[1:]
	}
	parts := strings.Split(path, "/")
	s.mu.Lock()
	if p, ok := s.processes[meta.Pid]; ok && parts[0] != "" {
		for _, scope := range []map[string]any{p.LocalVar, p.InheritVar} {
			if _, ok := scope[parts[0]]; ok {
				defer s.mu.Unlock()
				return walk(scope, parts)
			}
		}
	}
	s.mu.Unlock()
	return s.GetVarDeep(meta, path)
}

// SetVarDeep writes v at path. If the first part of path names a local or
// inherited variable of meta's process, the path is resolved inside it;
// otherwise only paths under /home are writable.
func (s *Session) SetVarDeep(meta *Meta, path string, v any) error {
	pwd, _ := s.GetVar(meta, "PWD").(string)
	norm := s.NormalizePath(path, pwd)
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := strings.Split(path, "/")
	var root map[string]any
	var parts []string
	if p, ok := s.processes[meta.Pid]; ok {
		if _, ok := p.LocalVar[raw[0]]; ok {
			root, parts = p.LocalVar, raw
		} else if _, ok := p.InheritVar[raw[0]]; ok {
			root, parts = p.InheritVar, raw
		}
	}
	if root == nil {
		if len(norm) < 2 || norm[0] != "home" {
			return errs.New("only the home directory is writable", 1)
		}
		root, parts = map[string]any{"home": s.vars}, norm
	}

	leaf := parts[len(parts)-1]
	switch parent := walk(root, parts[:len(parts)-1]).(type) {
	case map[string]any:
		parent[leaf] = v
	case []any:
		i, err := strconv.Atoi(leaf)
		if err != nil || i < 0 || i >= len(parent) {
			return errs.Newf(1, "cannot resolve /%s", strings.Join(parts, "/"))
		}
		parent[i] = v
	default:
		return errs.Newf(1, "cannot resolve /%s", strings.Join(parts, "/"))
	}
	return nil
}

// RemoveVarDeep deletes the entry at path, which must lie under /home. A
// missing entry is an error unless force is set.
func (s *Session) RemoveVarDeep(meta *Meta, path string, force bool) error {
	pwd, _ := s.GetVar(meta, "PWD").(string)
	parts := s.NormalizePath(path, pwd)
	if len(parts) < 2 || parts[0] != "home" {
		if force {
			return nil
		}
		return errs.Newf(1, "%s: only /home/* writable", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	leaf := parts[len(parts)-1]
	parent, _ := walk(map[string]any{"home": s.vars}, parts[:len(parts)-1]).(map[string]any)
	if _, ok := parent[leaf]; !ok {
		if force {
			return nil
		}
		return errs.Newf(1, "%s: not found", path)
	}
	delete(parent, leaf)
	return nil
}

func walk(v any, parts []string) any {
	for _, part := range parts {
		switch node := v.(type) {
		case map[string]any:
			v = node[part]
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			v = node[i]
		default:
			return nil
		}
	}
	return v
}

// ListDir returns the sorted names under a resolved path, whether it is a
// map or an array, and whether it exists.
func (s *Session) ListDir(meta *Meta, path string) ([]string, bool) {
	v := s.GetVarDeep(meta, path)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch node := v.(type) {
	case map[string]any:
		names := make([]string, 0, len(node))
		for k := range node {
			names = append(names, k)
		}
		sort.Strings(names)
		return names, true
	case []any:
		names := make([]string, len(node))
		for i := range node {
			names[i] = strconv.Itoa(i)
		}
		return names, true
	}
	return nil, false
}
