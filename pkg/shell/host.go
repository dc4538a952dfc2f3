package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/npc-cli/jsh/pkg/eval"
	"github.com/npc-cli/jsh/pkg/msg"
	"github.com/npc-cli/jsh/pkg/session"
	"github.com/npc-cli/jsh/pkg/sys"
)

// Host is a minimal line-oriented terminal front-end. It sends lines read
// from In to the session and renders the messages of the session on Out.
type Host struct {
	sess *session.Session
	in   *bufio.Reader
	// Whether prompts and screen clears are written. Off when input does not
	// come from a terminal.
	interactive bool

	outMu sync.Mutex
	out   io.Writer
	acked chan struct{}
}

// NewHost returns a Host for sess. It renders nothing until Run is called.
func NewHost(sess *session.Session, in io.Reader, out io.Writer, interactive bool) *Host {
	return &Host{sess: sess, in: bufio.NewReader(in), out: out,
		interactive: interactive, acked: make(chan struct{}, 1)}
}

// NewStdioHost returns a Host on the given files, interactive when in is a
// terminal. The COLUMNS variable of the session is set from the size of the
// terminal of out.
func NewStdioHost(sess *session.Session, in, out *os.File) *Host {
	if _, col := sys.WinSize(out); col > 0 {
		sess.SetVar(eval.LeaderMeta(sess), "COLUMNS", float64(col))
	}
	return NewHost(sess, in, out, sys.IsATTY(in.Fd()))
}

// Render subscribes the host to the outbound messages of the session. The
// returned function stops rendering.
func (h *Host) Render() (stop func()) {
	return h.sess.IO.Outbound.Subscribe(h.render)
}

// Run sends each line read from In to the session, waiting for it to be
// handled before reading the next one. It returns nil at the end of input.
func (h *Host) Run(ctx context.Context) error {
	for {
		line, err := h.in.ReadString('\n')
		if line == "" && err == io.EOF {
			return nil
		}
		if err != nil && err != io.EOF {
			return fmt.Errorf("read input: %w", err)
		}
		h.sess.IO.Inbound.Write(msg.SendLine{Line: chopLineEnding(line)})
		select {
		case <-h.acked:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err == io.EOF {
			return nil
		}
	}
}

// Interrupt asks the session to interrupt its foreground job.
func (h *Host) Interrupt() {
	h.sess.IO.Inbound.Write(msg.SendKillSignal{})
}

func (h *Host) render(m msg.Message) {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	switch m := m.(type) {
	case msg.LineReceived:
		select {
		case h.acked <- struct{}{}:
		default:
		}
	case msg.Output:
		fmt.Fprintln(h.out, eval.ToString(m.Data))
	case msg.Prompt:
		if h.interactive {
			fmt.Fprint(h.out, m.Prompt)
		}
	case msg.Info:
		fmt.Fprintln(h.out, m.Text)
	case msg.Error:
		fmt.Fprintln(h.out, ansiRed+m.Text+ansiReset)
	case msg.Clear:
		if h.interactive {
			fmt.Fprint(h.out, "\x1b[2J\x1b[H")
		}
	case msg.External:
		logger.Debugw("external event", "session", h.sess.Key, "event", m.Event.ExternalKey(),
			"detail", strconv.Quote(fmt.Sprint(m.Event)))
	}
}

func chopLineEnding(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}
	return s
}
