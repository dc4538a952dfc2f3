// Package session keeps the sessions of jsh: their process tables, variables,
// functions and devices, and implements job control over processes.
package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"mvdan.cc/sh/v3/syntax"

	"github.com/npc-cli/jsh/pkg/config"
	"github.com/npc-cli/jsh/pkg/device"
	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/logutil"
	"github.com/npc-cli/jsh/pkg/msg"
	"github.com/npc-cli/jsh/pkg/store/storedefs"
)

var logger = logutil.GetLogger("[session] ")

// Registry owns all sessions.
type Registry struct {
	// Speaker, when set, backs the voice device of sessions created
	// afterwards.
	Speaker device.Speaker

	cfg  config.ShellConfig
	sink storedefs.Sink

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty Registry persisting through sink.
func NewRegistry(cfg config.ShellConfig, sink storedefs.Sink) *Registry {
	return &Registry{cfg: cfg, sink: sink, sessions: make(map[string]*Session)}
}

// Config returns the shell configuration of the registry.
func (r *Registry) Config() config.ShellConfig { return r.cfg }

// NewKey returns a fresh session key.
func NewKey() string { return "tty-" + uuid.NewString()[:8] }

// Create creates a session with the given key and initial variables. The
// session gets a leader process, a terminal device and a null device.
func (r *Registry) Create(key string, env map[string]any) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[key]; ok {
		return nil, fmt.Errorf("session %s already exists", key)
	}
	s := &Session{
		Key:       key,
		IO:        msg.NewChannel(),
		Devices:   device.NewRegistry(),
		Home:      r.cfg.Home,
		cfg:       r.cfg,
		sink:      r.sink,
		vars:      map[string]any{"PWD": r.cfg.Home, "OLDPWD": ""},
		etc:       map[string]any{},
		funcs:     map[string]*Func{},
		processes: map[int]*Process{},
		links:     map[string][]Link{},
	}
	for k, v := range env {
		s.vars[k] = v
	}
	s.Tty = device.NewTty(device.TtyKey(key), &s.IO.Outbound)
	s.Devices.Add(s.Tty)
	s.Devices.Add(device.NewNull(device.NullKey))
	if r.Speaker != nil {
		s.Devices.Add(device.NewVoice(device.VoiceKey, r.Speaker))
	}

	s.mu.Lock()
	s.createProcessLocked(ProcessDef{Tags: map[string]string{TagInteractive: ""}})
	s.mu.Unlock()

	r.sessions[key] = s
	logger.Infow("created session", "key", key)
	return s, nil
}

// Get returns the session with the given key, or nil.
func (r *Registry) Get(key string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[key]
}

// Keys returns the sorted keys of all sessions.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Remove kills every process of the session, in reverse creation order, and
// forgets it.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	procs := s.sortedProcesses(func(*Process) bool { return true })
	for i := len(procs) - 1; i >= 0; i-- {
		procs[i].kill()
	}
	s.mu.Unlock()
	s.Tty.CloseRead()
	for _, k := range s.Devices.Keys() {
		s.Devices.Remove(k)
	}
	logger.Infow("removed session", "key", key)
}

// Session is one interactive shell instance.
type Session struct {
	Key     string
	IO      *msg.Channel
	Devices *device.Registry
	Tty     *device.Tty
	// Home is the directory ~ expands to.
	Home string

	cfg  config.ShellConfig
	sink storedefs.Sink

	mu              sync.Mutex
	vars            map[string]any
	etc             map[string]any
	funcs           map[string]*Func
	processes       map[int]*Process
	nextPid         int
	lastExitFG      int
	lastExitBG      int
	lastBg          int
	links           map[string][]Link
	history         []string
	profileFinished bool
	disabled        bool
	pausedByDisable []int
	// Outbound messages waiting for the mutex to be released.
	notices  []msg.Message
	flushing bool
}

// Func is a shell function.
type Func struct {
	Name string
	Body *syntax.Stmt
	// Src is the reconstructed source of the body.
	Src string
}

// Link is a clickable link written by choice.
type Link struct {
	LinkText string
	Callback func()
}

// Config returns the shell configuration of the session.
func (s *Session) Config() config.ShellConfig { return s.cfg }

// ProcessDef describes a process to create.
type ProcessDef struct {
	Ppid        int
	Pgid        int
	Src         string
	Positionals []string
	LocalVar    map[string]any
	InheritVar  map[string]any
	Tags        map[string]string
	// Suspended creates the process suspended instead of running.
	Suspended bool
	// NewGroup makes the process the leader of a new group: its pgid is its
	// own pid.
	NewGroup bool
	// Parent is the context the process context derives from, so that
	// killing an ancestor cancels the process too. Nil means none.
	Parent context.Context
}

// CreateProcess allocates the next pid and registers a new process.
func (s *Session) CreateProcess(def ProcessDef) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createProcessLocked(def)
}

func (s *Session) createProcessLocked(def ProcessDef) *Process {
	p := &Process{
		Pid:         s.nextPid,
		Ppid:        def.Ppid,
		Pgid:        def.Pgid,
		Status:      Running,
		Src:         def.Src,
		Positionals: def.Positionals,
		LocalVar:    orEmpty(def.LocalVar),
		InheritVar:  orEmpty(def.InheritVar),
		Tags:        def.Tags,
		Started:     time.Now(),
	}
	if def.Suspended {
		p.Status = Suspended
	}
	if def.NewGroup {
		p.Pgid = p.Pid
	}
	if p.Tags == nil {
		p.Tags = map[string]string{}
	}
	if len(p.Positionals) == 0 {
		p.Positionals = []string{"jsh"}
	}
	s.nextPid++
	p.arm(def.Parent, s.Key)
	s.processes[p.Pid] = p
	return p
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// PeekNextPid returns the pid the next process will get.
func (s *Session) PeekNextPid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextPid
}

// Process returns the process with the given pid, or nil.
func (s *Session) Process(pid int) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processes[pid]
}

// ProcessInfo returns a snapshot of the process with the given pid.
func (s *Session) ProcessInfo(pid int) (ProcessInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.processes[pid]; ok {
		return p.info(), true
	}
	return ProcessInfo{}, false
}

// Leader returns the session leader.
func (s *Session) Leader() *Process { return s.Process(0) }

// ResetLeader prepares the leader to run a new interactive command: its
// callbacks are cleared, and it gets a fresh context and running status.
func (s *Session) ResetLeader(src string) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.processes[0]
	p.cleanups, p.onSuspends, p.onResumes = nil, nil, nil
	p.Src = src
	p.Status = Running
	p.arm(nil, s.Key)
	return p
}

// RemoveProcess forgets a finished process after running its pending
// cleanups. The leader is never removed; its callback lists are cleared
// instead.
func (s *Session) RemoveProcess(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[pid]
	if !ok {
		return
	}
	if pid == 0 {
		p.cleanups, p.onSuspends, p.onResumes = nil, nil, nil
		return
	}
	p.kill()
	delete(s.processes, pid)
}

// SetTags replaces the tags of a process.
func (s *Session) SetTags(pid int, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.processes[pid]; ok {
		p.Tags = maps.Clone(tags)
		if p.Tags == nil {
			p.Tags = map[string]string{}
		}
	}
}

// UpdateTags merges updates into the tags of a single process. A nil value
// deletes the tag.
func (s *Session) UpdateTags(pid int, updates map[string]*string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.processes[pid]; ok {
		p.applyTags(updates)
	}
}

// Positionals returns a copy of the positional parameters of a process,
// starting with $0.
func (s *Session) Positionals(pid int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.processes[pid]; ok {
		return slices.Clone(p.Positionals)
	}
	return nil
}

// SetPositionals replaces the positional parameters of a process and returns
// the previous ones. pos starts with $0.
func (s *Session) SetPositionals(pid int, pos []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[pid]
	if !ok {
		return nil
	}
	old := p.Positionals
	p.Positionals = slices.Clone(pos)
	return old
}

// ShiftPositionals drops the first n parameters after $0.
func (s *Session) ShiftPositionals(pid, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[pid]
	if !ok || len(p.Positionals) == 0 {
		return
	}
	n = min(n, len(p.Positionals)-1)
	p.Positionals = append(p.Positionals[:1:1], p.Positionals[1+n:]...)
}

// ProcessStatus returns the status of a process. Missing processes are
// reported as killed.
func (s *Session) ProcessStatus(pid int) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.processes[pid]; ok {
		return p.Status
	}
	return Killed
}

// Processes returns snapshots of the processes selected by pgid, sorted by
// pid. A negative pgid selects every process.
func (s *Session) Processes(pgid int) []ProcessInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	procs := s.sortedProcesses(func(p *Process) bool { return pgid < 0 || p.Pgid == pgid })
	infos := make([]ProcessInfo, len(procs))
	for i, p := range procs {
		infos[i] = p.info()
	}
	return infos
}

// Must be called with s.mu held.
func (s *Session) sortedProcesses(pred func(*Process) bool) []*Process {
	var procs []*Process
	for _, p := range s.processes {
		if pred(p) {
			procs = append(procs, p)
		}
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].Pid < procs[j].Pid })
	return procs
}

// KillOpts selects the action of Kill.
type KillOpts struct {
	SIGINT bool
	STOP   bool
	CONT   bool
	// Group applies the action to the whole process group of each pid.
	Group bool
	// ByTags changes target selection: STOP targets every running process
	// lacking TagAlways; CONT targets the listed pids that are suspended.
	ByTags bool
	// Tags are merged into the tags of every target. A nil value deletes
	// the tag.
	Tags map[string]*string
}

// Kill applies opts to the processes selected by pids and returns the pids
// acted upon. A pid that leads its group, or any pid when opts.Group is set,
// selects its whole group in reverse creation order.
func (s *Session) Kill(pids []int, opts KillOpts) []int {
	defer s.flushNotices()
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.ByTags && (opts.STOP || opts.CONT) {
		var targets []*Process
		if opts.STOP {
			targets = s.sortedProcesses(func(p *Process) bool {
				_, always := p.Tags[TagAlways]
				return p.Status == Running && !always
			})
			reverse(targets)
		} else {
			for _, pid := range pids {
				if p, ok := s.processes[pid]; ok && p.Status == Suspended {
					targets = append(targets, p)
				}
			}
		}
		s.killProcesses(targets, opts)
		return pidsOf(targets)
	}

	var acted []int
	for _, pid := range pids {
		p, ok := s.processes[pid]
		if !ok {
			continue
		}
		targets := []*Process{p}
		if p.Pgid == pid || opts.Group {
			pgid := p.Pgid
			targets = s.sortedProcesses(func(q *Process) bool { return q.Pgid == pgid })
			reverse(targets)
		}
		s.killProcesses(targets, opts)
		acted = append(acted, pid)
	}
	return acted
}

// Must be called with s.mu held.
func (s *Session) killProcesses(procs []*Process, opts KillOpts) {
	switch {
	case opts.SIGINT:
		for _, p := range procs {
			p.kill()
		}
	case opts.STOP:
		for _, p := range procs {
			p.suspend(opts.ByTags)
		}
	case opts.CONT:
		for _, p := range procs {
			p.resume()
		}
	}
	if opts.Tags != nil {
		for _, p := range procs {
			p.applyTags(opts.Tags)
		}
	}
}

func reverse(procs []*Process) {
	for i, j := 0, len(procs)-1; i < j; i, j = i+1, j-1 {
		procs[i], procs[j] = procs[j], procs[i]
	}
}

func pidsOf(procs []*Process) []int {
	pids := make([]int, len(procs))
	for i, p := range procs {
		pids[i] = p.Pid
	}
	return pids
}

// HandleStatus registers job control callbacks for a process. The returned
// function removes exactly the callbacks registered by this call.
func (s *Session) HandleStatus(pid int, h Handlers) (dispose func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[pid]
	if !ok {
		return func() {}
	}
	ids := p.register(h)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		p.unregister(ids)
	}
}

// Notify writes m to the outbound channel after the messages announced
// before it.
func (s *Session) Notify(m msg.Message) {
	s.mu.Lock()
	s.notices = append(s.notices, m)
	s.mu.Unlock()
	s.flushNotices()
}

// Announce queues m from a status handler, which runs with the session mutex
// held. The queue is written once the call that ran the handler releases the
// mutex, so subscribers may use the session.
func (s *Session) Announce(m msg.Message) {
	s.notices = append(s.notices, m)
}

// Writes queued notices in order. A call made while another one is writing,
// including one from a subscriber, leaves its notices to that writer.
func (s *Session) flushNotices() {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	for len(s.notices) > 0 {
		q := s.notices
		s.notices = nil
		s.mu.Unlock()
		for _, m := range q {
			s.IO.Outbound.Write(m)
		}
		s.mu.Lock()
	}
	s.flushing = false
	s.mu.Unlock()
}

// errProcessGone is returned when waiting on a process that no longer exists.
var errProcessGone = errors.New("process gone")

// WaitResume blocks while the process is suspended. It fails with the kill
// signal if the process is killed meanwhile.
func (s *Session) WaitResume(pid int) error {
	s.mu.Lock()
	p, ok := s.processes[pid]
	if !ok {
		s.mu.Unlock()
		return errProcessGone
	}
	if p.Status == Killed {
		s.mu.Unlock()
		return errs.NewKill(s.Key, pid)
	}
	if p.Status != Suspended {
		s.mu.Unlock()
		return nil
	}
	resumed := make(chan struct{})
	p.onResumes = append(p.onResumes, resumeHandler{-1, func() bool {
		close(resumed)
		return false
	}})
	ctx := p.ctx
	s.mu.Unlock()

	select {
	case <-resumed:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// SetLastExit records the exit code of a statement run by the process
// described by meta.
func (s *Session) SetLastExit(meta *Meta, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta.Background {
		s.lastExitBG = code
	} else {
		s.lastExitFG = code
	}
}

// LastExit returns the last exit code seen by processes like the one
// described by meta.
func (s *Session) LastExit(meta *Meta) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta.Background {
		return s.lastExitBG
	}
	return s.lastExitFG
}

// SetLastBg records the pid of the last background job.
func (s *Session) SetLastBg(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBg = pid
}

// LastBg returns the pid of the last background job.
func (s *Session) LastBg() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBg
}

// AddFunc declares a function, replacing any with the same name.
func (s *Session) AddFunc(f *Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[f.Name] = f
}

// Func returns the named function, or nil.
func (s *Session) Func(name string) *Func {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.funcs[name]
}

// Funcs returns all functions sorted by name.
func (s *Session) Funcs() []*Func {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs := make([]*Func, 0, len(s.funcs))
	for _, f := range s.funcs {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i].Name < fs[j].Name })
	return fs
}

// RemoveFunc removes the named function.
func (s *Session) RemoveFunc(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.funcs, name)
}

// AddLinks registers the links of a line written by choice.
func (s *Session) AddLinks(lineText string, links []Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[lineText] = links
}

// RemoveLinks forgets the links of a line.
func (s *Session) RemoveLinks(lineText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, lineText)
}

// ActivateLink runs the callback of the link with the given text on the
// given line. It reports whether such a link exists.
func (s *Session) ActivateLink(lineText, linkText string) bool {
	s.mu.Lock()
	var callback func()
	for _, l := range s.links[lineText] {
		if l.LinkText == linkText {
			callback = l.Callback
			break
		}
	}
	s.mu.Unlock()
	if callback == nil {
		return false
	}
	callback()
	return true
}

// ProfileFinished reports whether the profile has been run.
func (s *Session) ProfileFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileFinished
}

// SetProfileFinished marks the profile as run.
func (s *Session) SetProfileFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileFinished = true
}

// ParkLeader marks the idle leader as suspended without firing callbacks.
// The next interactive command makes it running again.
func (s *Session) ParkLeader() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processes[0].Status = Suspended
}

// SetDisabled disables or enables the session. Disabling suspends every
// running process lacking TagAlways; enabling resumes exactly those.
func (s *Session) SetDisabled(disabled bool) {
	s.mu.Lock()
	if s.disabled == disabled {
		s.mu.Unlock()
		return
	}
	s.disabled = disabled
	paused := s.pausedByDisable
	s.pausedByDisable = nil
	s.mu.Unlock()

	if disabled {
		pids := s.Kill(nil, KillOpts{STOP: true, ByTags: true})
		s.mu.Lock()
		s.pausedByDisable = pids
		s.mu.Unlock()
	} else {
		s.Kill(paused, KillOpts{CONT: true, ByTags: true})
	}
}

// Disabled reports whether the session is disabled.
func (s *Session) Disabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// WriteMsg sends an info or error message to the front-end.
func (s *Session) WriteMsg(text string, isError bool) {
	if isError {
		s.IO.Outbound.Write(msg.Error{Text: text})
	} else {
		s.IO.Outbound.Write(msg.Info{Text: text})
	}
}

// Resolve returns the device file descriptor fd of meta points to.
func (s *Session) Resolve(fd int, meta *Meta) (device.Device, error) {
	key, ok := meta.FD[fd]
	if !ok {
		return nil, errs.Newf(1, "bad file descriptor: %d", fd)
	}
	d, ok := s.Devices.Get(key)
	if !ok {
		return nil, errs.Newf(1, "device not found: %s", key)
	}
	return d, nil
}
