package session

import "maps"

// Meta is the evaluation context of a syntax tree: which session and process
// it runs in, and where its file descriptors point. Every node of one run
// shares the same *Meta; redirection and spawning work on a Clone.
type Meta struct {
	SessionKey string
	Pid        int
	Ppid       int
	Pgid       int
	// FD maps file descriptors to device keys.
	FD map[int]string
	// Stack holds the names of the commands being run, outermost first.
	Stack      []string
	Background bool
	Verbose    bool
}

// Clone returns a deep copy of m.
func (m *Meta) Clone() *Meta {
	c := *m
	c.FD = maps.Clone(m.FD)
	c.Stack = append([]string(nil), m.Stack...)
	return &c
}

// WithStack returns a clone of m with name pushed onto the stack.
func (m *Meta) WithStack(name string) *Meta {
	c := m.Clone()
	c.Stack = append(c.Stack, name)
	return c
}
