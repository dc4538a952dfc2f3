package shell

import (
	"slices"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/msg"
	"github.com/npc-cli/jsh/pkg/parse"
	"github.com/npc-cli/jsh/pkg/session"
)

// Handles one inbound message. It is called on the goroutine of the writer and
// never waits for a command.
func (sh *Shell) onMessage(m msg.Message) {
	switch m := m.(type) {
	case msg.RequestHistoryLine:
		line, next := sh.sess.HistoryLine(m.Index)
		sh.sess.IO.Outbound.Write(msg.HistoryLine{Line: line, NextIndex: next})
	case msg.SendKillSignal:
		sh.interrupt()
	case msg.SendLine:
		if sh.sess.Tty.Deliver(m.Line) {
			sh.sess.IO.Outbound.Write(msg.LineReceived{})
			return
		}
		sh.mu.Lock()
		sh.queue = append(sh.queue, m.Line)
		sh.mu.Unlock()
		select {
		case sh.wake <- struct{}{}:
		default:
		}
	case msg.ActivateLink:
		if !sh.sess.ActivateLink(m.LineText, m.LinkText) {
			logger.Debugw("no such link", "session", sh.sess.Key, "line", m.LineText, "link", m.LinkText)
		}
	default:
		logger.Warnw("unexpected message", "session", sh.sess.Key, "key", m.Key())
	}
}

// Drops buffered input, fails pending terminal reads and interrupts the
// foreground group if a command is running.
func (sh *Shell) interrupt() {
	sh.mu.Lock()
	sh.buffer = nil
	running := sh.running
	sh.mu.Unlock()

	sh.sess.Tty.RejectReaders(errs.NewKill(sh.sess.Key, 0))
	if running {
		sh.sess.Kill([]int{0}, session.KillOpts{SIGINT: true, Group: true})
	}
}

// Runs queued lines one at a time, acknowledging each once it is handled.
func (sh *Shell) loop() {
	for {
		line, ok := sh.dequeue()
		if !ok {
			select {
			case <-sh.wake:
				continue
			case <-sh.done:
				return
			}
		}
		select {
		case <-sh.done:
			return
		default:
		}
		sh.runLine(line)
		sh.sess.IO.Outbound.Write(msg.LineReceived{})
	}
}

func (sh *Shell) dequeue() (string, bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if len(sh.queue) == 0 {
		return "", false
	}
	line := sh.queue[0]
	sh.queue = sh.queue[1:]
	return line, true
}

// Adds line to the input buffer and runs the buffer once it holds complete
// statements.
func (sh *Shell) runLine(line string) {
	sh.runMu.Lock()
	defer sh.runMu.Unlock()

	sh.mu.Lock()
	sh.buffer = append(sh.buffer, line)
	lines := slices.Clone(sh.buffer)
	recordHistory := sh.historyEnabled
	sh.mu.Unlock()

	res := sh.ev.Parser().TryParseBuffer(lines)
	switch res.Status {
	case parse.Incomplete:
		sh.prompt(promptContinue)
	case parse.Complete:
		sh.clearBuffer()
		src := parse.Source(res.File)
		if src != "" && recordHistory {
			sh.sess.AddHistory(src, sh.sess.Config().HistoryMax)
		}
		sh.run(res.File.Stmts, src)
		sh.prompt(promptReady)
	case parse.Failed:
		text := "mvdan-sh: " + res.Err.Error()
		logger.Debugw("parse failed", "session", sh.sess.Key, "err", res.Err)
		sh.sess.IO.Outbound.Write(msg.Error{Text: text})
		// Lines that fail to parse are kept so they can be fixed.
		sh.sess.AddHistory(strings.Join(lines, "\n"), sh.sess.Config().HistoryMax)
		sh.clearBuffer()
		sh.prompt(promptReady)
	}
}

// Runs statements in the session leader. A kill signal reaching the top is
// handled here and never stops the loop.
func (sh *Shell) run(stmts []*syntax.Stmt, src string) {
	sh.setRunning(true)
	defer sh.setRunning(false)

	_, err := sh.ev.RunLeader(sh.sess, stmts, src)
	if kill := errs.AsKill(err); kill != nil {
		sh.ev.HandleTopLevel(sh.sess, kill)
	} else if err != nil {
		logger.Warnw("unexpected error", "session", sh.sess.Key, "src", src, "err", err)
	}
}

func (sh *Shell) setRunning(running bool) {
	sh.mu.Lock()
	sh.running = running
	sh.mu.Unlock()
}

func (sh *Shell) clearBuffer() {
	sh.mu.Lock()
	sh.buffer = nil
	sh.mu.Unlock()
}

func (sh *Shell) prompt(p string) {
	sh.mu.Lock()
	prompting := sh.prompting
	sh.mu.Unlock()
	if prompting {
		sh.sess.IO.Outbound.Write(msg.Prompt{Prompt: p})
	}
}
