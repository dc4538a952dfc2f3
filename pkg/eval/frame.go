package eval

import (
	"context"
	"errors"

	"mvdan.cc/sh/v3/syntax"

	"github.com/npc-cli/jsh/pkg/device"
	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/parse"
	"github.com/npc-cli/jsh/pkg/session"
)

// Frame is the context in which statements of one process are run. Its
// context is the context of the process.
type Frame struct {
	ev   *Evaler
	sess *session.Session
	ctx  context.Context
}

// Runs statements in order, returning the exit code of the last one. The
// first error stops the sequence.
func (fr *Frame) stmts(stmts []*syntax.Stmt, meta *session.Meta) (int, error) {
	code := 0
	for _, s := range stmts {
		var err error
		code, err = fr.stmt(s, meta)
		fr.sess.SetLastExit(meta, code)
		if err != nil {
			return code, err
		}
	}
	return code, nil
}

// Runs one statement. A shell error raised by the statement is reported on
// fd 2 and turned into a kill signal of the process.
func (fr *Frame) stmt(s *syntax.Stmt, meta *session.Meta) (int, error) {
	code, err := fr.runStmt(s, meta)
	if err == nil || errs.AsKill(err) != nil || errors.Is(err, errs.ReaderGone{}) {
		return code, err
	}
	var sh *errs.ShellError
	if !errors.As(err, &sh) {
		sh = errs.Normalize(err).(*errs.ShellError)
	}
	if sh.Message != "" {
		fr.writeError(meta, sh.Message)
	}
	fr.sess.SetLastExit(meta, sh.ExitCode)
	return sh.ExitCode, &errs.KillSignal{Pid: meta.Pid, SessionKey: meta.SessionKey, ExitCode: sh.ExitCode}
}

func (fr *Frame) runStmt(s *syntax.Stmt, meta *session.Meta) (int, error) {
	if s.Cmd == nil {
		return 2, errs.New("pure redirects unsupported", 2)
	}
	if s.Background && meta.Pgid == 0 {
		fr.background(s, meta)
		if s.Negated {
			return 1, nil
		}
		return 0, nil
	}
	code, err := fr.command(s.Cmd, s.Redirs, meta)
	if s.Negated && err == nil {
		if code == 0 {
			code = 1
		} else {
			code = 0
		}
	}
	return code, err
}

// Starts a copy of s without "&" as a background job leading its own group.
// It is not awaited; a kill signal it ends with is handled at the top level.
func (fr *Frame) background(s *syntax.Stmt, meta *session.Meta) {
	cp := *s
	cp.Background = false
	cp.Negated = false
	j, err := fr.ev.prepare(fr.sess, meta, SpawnOpts{
		By:       ByBackground,
		Src:      parse.Source(&cp),
		LocalPWD: true,
		Tags:     map[string]*string{session.TagInteractive: nil},
	})
	if err != nil {
		logger.Warnw("cannot start background job", "session", fr.sess.Key, "err", err)
		return
	}
	go func() {
		_, err := j.run([]*syntax.Stmt{&cp})
		if kill := errs.AsKill(err); kill != nil {
			fr.ev.HandleTopLevel(fr.sess, kill)
		} else if err != nil && !errors.Is(err, errs.ReaderGone{}) {
			logger.Warnw("background job failed", "session", fr.sess.Key, "pid", j.meta.Pid, "err", err)
		}
	}()
}

// Writes an error message to fd 2 of meta. Writes to a pipe happen in the
// background, since the pipe may be full.
func (fr *Frame) writeError(meta *session.Meta, message string) {
	d, err := fr.sess.Resolve(2, meta)
	if err != nil {
		logger.Warnw("cannot report error", "session", meta.SessionKey, "err", message)
		return
	}
	text := ansiRed + message + ansiReset
	if _, ok := d.(*device.Fifo); ok {
		go d.Write(context.Background(), text)
		return
	}
	d.Write(context.Background(), text)
}
