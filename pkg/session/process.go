package session

import (
	"context"
	"time"

	"github.com/npc-cli/jsh/pkg/eval/errs"
)

// Status is the job control status of a process.
type Status int

const (
	Suspended Status = iota
	Running
	Killed
)

func (s Status) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	case Killed:
		return "killed"
	}
	return "unknown"
}

// Well-known process tags.
const (
	// TagAlways marks a process that keeps running when the session is
	// disabled.
	TagAlways = "always"
	// TagInteractive marks a process started from the interactive prompt.
	TagInteractive = "interactive"
)

// Process is one running invocation: a pipeline stage, subshell, substitution,
// function call, background job or the session leader.
//
// Mutable fields are guarded by the mutex of the owning Session.
type Process struct {
	Pid         int
	Ppid        int
	Pgid        int
	Status      Status
	Src         string
	Positionals []string
	LocalVar    map[string]any
	InheritVar  map[string]any
	Tags        map[string]string
	Started     time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc

	nextID     int
	cleanups   []cleanup
	onSuspends []suspendHandler
	onResumes  []resumeHandler
}

type cleanup struct {
	id int
	f  func()
}

type suspendHandler struct {
	id int
	f  func(byTags bool) bool
}

type resumeHandler struct {
	id int
	f  func() bool
}

// Handlers are job control callbacks of a process.
//
// A suspend or resume handler returning true is kept and fires again on the
// next suspend or resume; returning false drops it. Cleanups run once, when
// the process is killed.
type Handlers struct {
	Cleanups   []func()
	OnSuspends []func(byTags bool) bool
	OnResumes  []func() bool
}

// Context returns the context of the process. It is cancelled with a
// *errs.KillSignal as cause when the process is killed.
func (p *Process) Context() context.Context { return p.ctx }

// Must be called with the session mutex held.
func (p *Process) arm(parent context.Context, sessionKey string) {
	if parent == nil {
		parent = context.Background()
	}
	p.ctx, p.cancel = context.WithCancelCause(parent)
	cancel, pid := p.cancel, p.Pid
	p.addCleanup(func() { cancel(errs.NewKill(sessionKey, pid)) })
}

func (p *Process) addCleanup(f func()) int {
	p.nextID++
	p.cleanups = append(p.cleanups, cleanup{p.nextID, f})
	return p.nextID
}

// Must be called with the session mutex held.
func (p *Process) register(h Handlers) []int {
	var ids []int
	for _, f := range h.Cleanups {
		ids = append(ids, p.addCleanup(f))
	}
	for _, f := range h.OnSuspends {
		p.nextID++
		p.onSuspends = append(p.onSuspends, suspendHandler{p.nextID, f})
		ids = append(ids, p.nextID)
	}
	for _, f := range h.OnResumes {
		p.nextID++
		p.onResumes = append(p.onResumes, resumeHandler{p.nextID, f})
		ids = append(ids, p.nextID)
	}
	return ids
}

// Must be called with the session mutex held.
func (p *Process) unregister(ids []int) {
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	p.cleanups = filter(p.cleanups, func(c cleanup) bool { return !drop[c.id] })
	p.onSuspends = filter(p.onSuspends, func(h suspendHandler) bool { return !drop[h.id] })
	p.onResumes = filter(p.onResumes, func(h resumeHandler) bool { return !drop[h.id] })
}

// Runs and clears every cleanup. Must be called with the session mutex held.
func (p *Process) kill() {
	p.Status = Killed
	cleanups := p.cleanups
	p.cleanups = nil
	for _, c := range cleanups {
		c.f()
	}
}

// Must be called with the session mutex held.
func (p *Process) suspend(byTags bool) {
	p.onSuspends = filter(p.onSuspends, func(h suspendHandler) bool { return h.f(byTags) })
	p.Status = Suspended
}

// Must be called with the session mutex held.
func (p *Process) resume() {
	p.onResumes = filter(p.onResumes, func(h resumeHandler) bool { return h.f() })
	p.Status = Running
}

// Must be called with the session mutex held.
func (p *Process) applyTags(updates map[string]*string) {
	for k, v := range updates {
		if v == nil {
			delete(p.Tags, k)
		} else {
			p.Tags[k] = *v
		}
	}
}

func filter[T any](s []T, keep func(T) bool) []T {
	var out []T
	for _, x := range s {
		if keep(x) {
			out = append(out, x)
		}
	}
	return out
}

// ProcessInfo is a snapshot of a Process.
type ProcessInfo struct {
	Pid, Ppid, Pgid int
	Status          Status
	Src             string
	Tags            map[string]string
	Started         time.Time
}

// Must be called with the session mutex held.
func (p *Process) info() ProcessInfo {
	tags := make(map[string]string, len(p.Tags))
	for k, v := range p.Tags {
		tags[k] = v
	}
	return ProcessInfo{p.Pid, p.Ppid, p.Pgid, p.Status, p.Src, tags, p.Started}
}
