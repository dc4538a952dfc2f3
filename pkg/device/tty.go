package device

import (
	"context"
	"sync"

	"github.com/npc-cli/jsh/pkg/msg"
)

// TtyKey returns the key of the terminal device of a session.
func TtyKey(sessionKey string) string { return "/dev/tty-" + sessionKey }

// Tty is the terminal device of a session. Writes become msg.Output messages;
// reads wait for a line delivered by the front-end.
type Tty struct {
	key string
	out *msg.Wire

	mu      sync.Mutex
	waiters []chan ttyResult
}

type ttyResult struct {
	line string
	eof  bool
	err  error
}

// NewTty returns a Tty writing to out.
func NewTty(key string, out *msg.Wire) *Tty {
	return &Tty{key: key, out: out}
}

func (t *Tty) Key() string { return t.key }

// Read waits for the next line. Lines are strings; chunks never occur.
func (t *Tty) Read(ctx context.Context, _ bool) (ReadResult, error) {
	ch := make(chan ttyResult, 1)
	t.mu.Lock()
	t.waiters = append(t.waiters, ch)
	t.mu.Unlock()

	select {
	case r := <-ch:
		if r.err != nil {
			return ReadResult{}, r.err
		}
		if r.eof {
			return EOFResult, nil
		}
		return ReadResult{Data: r.line}, nil
	case <-ctx.Done():
		t.mu.Lock()
		for i, w := range t.waiters {
			if w == ch {
				t.waiters = append(t.waiters[:i:i], t.waiters[i+1:]...)
				break
			}
		}
		t.mu.Unlock()
		return ReadResult{}, ctxErr(ctx)
	}
}

// Write sends data to the front-end. The items of a chunk are sent one by one.
func (t *Tty) Write(_ context.Context, data any) error {
	if c, ok := data.(*Chunk); ok {
		for _, item := range c.Items {
			t.out.Write(msg.Output{Data: item})
		}
		return nil
	}
	t.out.Write(msg.Output{Data: data})
	return nil
}

// HasReaders reports whether some process is waiting for a line.
func (t *Tty) HasReaders() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters) > 0
}

// Deliver hands line to every waiting reader. It reports whether there was
// any.
func (t *Tty) Deliver(line string) bool {
	return t.settle(ttyResult{line: line})
}

// RejectReaders fails every waiting reader with err.
func (t *Tty) RejectReaders(err error) {
	t.settle(ttyResult{err: err})
}

// CloseRead ends the stream for every waiting reader. Later reads still wait.
func (t *Tty) CloseRead() {
	t.settle(ttyResult{eof: true})
}

func (t *Tty) settle(r ttyResult) bool {
	t.mu.Lock()
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()
	for _, w := range waiters {
		w <- r
	}
	return len(waiters) > 0
}

func (t *Tty) CloseWrite()       {}
func (t *Tty) ReadClosed() bool  { return false }
func (t *Tty) WriteClosed() bool { return false }
