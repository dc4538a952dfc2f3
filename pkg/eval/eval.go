// Package eval walks jsh syntax trees: it expands words, dispatches commands
// to builtins, shell functions and callable values, and runs statements as
// processes of a session.
package eval

import (
	"errors"
	"maps"

	"mvdan.cc/sh/v3/syntax"

	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/logutil"
	"github.com/npc-cli/jsh/pkg/msg"
	"github.com/npc-cli/jsh/pkg/parse"
	"github.com/npc-cli/jsh/pkg/session"
)

var logger = logutil.GetLogger("[eval] ")

// Evaler runs syntax trees in the sessions of a registry.
type Evaler struct {
	reg    *session.Registry
	parser *parse.Service
}

// NewEvaler returns an Evaler for the sessions of reg.
func NewEvaler(reg *session.Registry) *Evaler {
	return &Evaler{reg: reg, parser: parse.NewService()}
}

// Parser returns the parse service used for sourced scripts.
func (ev *Evaler) Parser() *parse.Service { return ev.parser }

// By says what spawned a process.
type By string

const (
	ByRoot           By = "root"
	ByBackground     By = "&"
	ByPipe           By = "|"
	BySubshell       By = "()"
	BySubst          By = "$()"
	ByFunction       By = "function"
	BySource         By = "source"
	BySourceExternal By = "source-external"
)

// SpawnOpts configures Spawn.
type SpawnOpts struct {
	By  By
	Src string
	// Positionals after $0. Nil inherits those of the parent.
	Positionals []string
	// LocalPWD gives the process its own PWD and OLDPWD.
	LocalPWD bool
	// Tags updates the tags inherited from the parent. A nil value deletes
	// the tag.
	Tags map[string]*string
	// Cleanups are registered on the new process.
	Cleanups []func()
}

// LeaderMeta returns the meta of the session leader: pid 0, with every
// standard file descriptor on the terminal.
func LeaderMeta(sess *session.Session) *session.Meta {
	tty := sess.Tty.Key()
	return &session.Meta{SessionKey: sess.Key, FD: map[int]string{0: tty, 1: tty, 2: tty}}
}

// RunLeader runs statements typed at the prompt in the session leader. A
// *errs.KillSignal returned here should be passed to HandleTopLevel.
func (ev *Evaler) RunLeader(sess *session.Session, stmts []*syntax.Stmt, src string) (int, error) {
	return ev.Spawn(sess, stmts, LeaderMeta(sess), SpawnOpts{By: ByRoot, Src: src})
}

// HandleTopLevel handles a kill signal that unwound to the top: it interrupts
// the process group of the killed process and records the exit code.
func (ev *Evaler) HandleTopLevel(sess *session.Session, kill *errs.KillSignal) {
	sess.Kill([]int{kill.Pid}, session.KillOpts{SIGINT: true, Group: true})
	sess.SetLastExit(&session.Meta{}, kill.ExitCode)
}

// Spawn runs stmts as a process of sess. meta describes the spawning context:
// its pid becomes the parent of the new process, its pgid the group.
//
// A root spawn, or a source spawn, in the foreground group runs in the
// session leader instead of a new process.
func (ev *Evaler) Spawn(sess *session.Session, stmts []*syntax.Stmt, meta *session.Meta, opts SpawnOpts) (int, error) {
	j, err := ev.prepare(sess, meta, opts)
	if err != nil {
		return errs.ExitCode(err), err
	}
	return j.run(stmts)
}

// A process ready to run.
type job struct {
	ev          *Evaler
	sess        *session.Session
	meta        *session.Meta
	proc        *session.Process
	opts        SpawnOpts
	interactive bool
	leading     bool
	// Positionals of a reused process, restored when the job ends.
	savedPositionals []string
}

func (ev *Evaler) prepare(sess *session.Session, meta *session.Meta, opts SpawnOpts) (*job, error) {
	meta = meta.Clone()
	interactive := meta.Pgid == 0 && (opts.By == ByRoot || opts.By == BySource)

	if !sess.ProfileFinished() && opts.By != BySourceExternal &&
		sess.ProcessStatus(0) == session.Suspended {
		// The leader was paused while the profile ran.
		if err := sess.WaitResume(0); err != nil {
			return nil, err
		}
	}

	j := &job{ev: ev, sess: sess, opts: opts, interactive: interactive}
	switch {
	case interactive && opts.By == ByRoot:
		j.proc = sess.ResetLeader(opts.Src)
		meta.Pid, meta.Ppid = 0, 0
	case interactive:
		j.proc = sess.Process(meta.Pid)
		if j.proc == nil {
			return nil, errs.Newf(1, "process %d not found", meta.Pid)
		}
		if opts.Positionals != nil {
			j.savedPositionals = sess.SetPositionals(meta.Pid, append([]string{"jsh"}, opts.Positionals...))
		}
	default:
		j.proc = ev.createChild(sess, meta, opts)
		meta.Ppid, meta.Pid = meta.Pid, j.proc.Pid
		if opts.By == ByBackground {
			meta.Pgid = j.proc.Pid
			meta.Background = true
		}
	}
	j.meta = meta
	if interactive {
		j.leading = opts.By == ByRoot
	} else {
		j.leading = meta.Pid == meta.Pgid
	}
	return j, nil
}

func (ev *Evaler) createChild(sess *session.Session, meta *session.Meta, opts SpawnOpts) *session.Process {
	parent, _ := sess.ProcessInfo(meta.Pid)

	positionals := sess.Positionals(meta.Pid)
	if opts.Positionals != nil {
		positionals = append([]string{"jsh"}, opts.Positionals...)
	}
	tags := maps.Clone(parent.Tags)
	if tags == nil {
		tags = map[string]string{}
	}
	for k, v := range opts.Tags {
		if v == nil {
			delete(tags, k)
		} else {
			tags[k] = *v
		}
	}
	inherit := sess.ScopeVars(meta.Pid)
	var local map[string]any
	if opts.LocalPWD {
		local = map[string]any{
			"PWD":    sess.GetVar(meta, "PWD"),
			"OLDPWD": sess.GetVar(meta, "OLDPWD"),
		}
	}
	_, always := tags[session.TagAlways]
	_, interactive := tags[session.TagInteractive]

	def := session.ProcessDef{
		Ppid:        meta.Pid,
		Pgid:        meta.Pgid,
		Src:         opts.Src,
		Positionals: positionals,
		LocalVar:    local,
		InheritVar:  inherit,
		Tags:        tags,
		Suspended:   sess.Disabled() && !always && !interactive && sess.Config().SpawnBgPaused,
		NewGroup:    opts.By == ByBackground,
	}
	// Background jobs outlive the command that started them.
	if opts.By != ByBackground {
		if p := sess.Process(meta.Pid); p != nil {
			def.Parent = p.Context()
		}
	}
	p := sess.CreateProcess(def)
	if len(opts.Cleanups) > 0 {
		sess.HandleStatus(p.Pid, session.Handlers{Cleanups: opts.Cleanups})
	}
	if parent.Pgid == 0 && opts.By != BySourceExternal {
		sess.SetTags(0, map[string]string{session.TagInteractive: ""})
	}
	if opts.By == ByBackground {
		sess.SetLastBg(p.Pid)
	}
	logger.Debugw("spawned", "session", sess.Key, "pid", p.Pid, "ppid", meta.Pid, "by", opts.By)
	return p
}

func (j *job) run(stmts []*syntax.Stmt) (code int, err error) {
	sess, meta := j.sess, j.meta
	if j.leading {
		j.announce(msg.LeaderStarted)
		sess.HandleStatus(meta.Pid, session.Handlers{
			OnSuspends: []func(bool) bool{func(bool) bool { j.queue(msg.LeaderPaused); return true }},
			OnResumes:  []func() bool{func() bool { j.queue(msg.LeaderResumed); return true }},
		})
	}

	fr := &Frame{ev: j.ev, sess: sess, ctx: j.proc.Context()}
	code, err = fr.stmts(stmts, meta)
	if kill := errs.AsKill(err); kill != nil {
		code = kill.ExitCode
		if kill.Depth > 0 {
			k := *kill
			k.Depth--
			err = &k
			if k.Depth == 0 {
				err = nil
			}
		}
	} else if errors.Is(err, errs.ReaderGone{}) {
		code = 0
	} else if err != nil {
		code = errs.ExitCode(err)
	}
	if meta.Verbose {
		logger.Infow("exit", "session", sess.Key, "pid", meta.Pid, "background", meta.Background, "code", code)
	}

	sess.SetLastExit(meta, code)
	if j.savedPositionals != nil {
		sess.SetPositionals(meta.Pid, j.savedPositionals)
	}
	if !j.interactive {
		sess.RemoveProcess(meta.Pid)
	}
	if j.leading {
		j.announce(msg.LeaderEnded)
		if j.interactive {
			// Clears the callbacks of the reused leader.
			sess.RemoveProcess(0)
		}
	}
	return code, err
}

func (j *job) announce(act msg.LeaderAct) {
	if j.opts.Src != "" {
		j.sess.Notify(j.leaderEvent(act))
	}
}

// Like announce, from a status handler.
func (j *job) queue(act msg.LeaderAct) {
	if j.opts.Src != "" {
		j.sess.Announce(j.leaderEvent(act))
	}
}

func (j *job) leaderEvent(act msg.LeaderAct) msg.Message {
	return msg.External{Event: msg.ProcessLeader{Pid: j.meta.Pid, Act: act}}
}
