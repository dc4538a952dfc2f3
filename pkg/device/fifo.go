package device

import (
	"context"
	"sync"

	"github.com/npc-cli/jsh/pkg/eval/errs"
)

// DefaultFifoSize is the default number of items a Fifo holds before its
// writer blocks.
const DefaultFifoSize = 10000

// Fifo is a bounded pipe with one reader and one writer.
type Fifo struct {
	key  string
	size int

	mu          sync.Mutex
	buf         []any
	readers     []chan struct{}
	writers     []chan struct{}
	readClosed  bool
	writeClosed bool
}

// NewFifo returns a Fifo holding up to size items. A non-positive size means
// DefaultFifoSize.
func NewFifo(key string, size int) *Fifo {
	if size <= 0 {
		size = DefaultFifoSize
	}
	return &Fifo{key: key, size: size}
}

func (f *Fifo) Key() string { return f.key }

// Read pops one item, blocking while the pipe is empty and the writer has not
// finished.
func (f *Fifo) Read(ctx context.Context, chunks bool) (ReadResult, error) {
	f.mu.Lock()
	for len(f.buf) == 0 {
		if f.writeClosed || f.readClosed {
			f.mu.Unlock()
			return EOFResult, nil
		}
		wake := make(chan struct{})
		f.readers = append(f.readers, wake)
		f.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			f.mu.Lock()
			f.readers = removeWaiter(f.readers, wake)
			f.mu.Unlock()
			return ReadResult{}, ctxErr(ctx)
		}
		f.mu.Lock()
	}
	defer f.mu.Unlock()

	var data any
	if c, ok := f.buf[0].(*Chunk); ok && !chunks && len(c.Items) > 1 {
		data = c.Items[0]
		f.buf[0] = &Chunk{Items: c.Items[1:]}
	} else {
		data = f.buf[0]
		f.buf[0] = nil
		f.buf = f.buf[1:]
		if ok && len(c.Items) == 1 {
			data = c.Items[0]
		}
	}
	f.wakeOne(&f.writers)
	return ReadResult{Data: data}, nil
}

// Write pushes data. If the pipe is full afterwards, Write blocks until the
// next read. Writing after the reader has closed fails with errs.ReaderGone.
func (f *Fifo) Write(ctx context.Context, data any) error {
	f.mu.Lock()
	if f.readClosed {
		f.mu.Unlock()
		return errs.ReaderGone{}
	}
	f.buf = append(f.buf, data)
	f.wakeOne(&f.readers)
	if len(f.buf) < f.size {
		f.mu.Unlock()
		return nil
	}
	wake := make(chan struct{})
	f.writers = append(f.writers, wake)
	f.mu.Unlock()

	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		f.mu.Lock()
		f.writers = removeWaiter(f.writers, wake)
		f.mu.Unlock()
		return ctxErr(ctx)
	}
}

// CloseRead marks the reader as finished. Buffered items are discarded and
// blocked writers are released.
func (f *Fifo) CloseRead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readClosed = true
	f.buf = nil
	f.wakeAll(&f.writers)
	f.wakeAll(&f.readers)
}

// CloseWrite marks the writer as finished. Blocked readers observe EOF once
// the buffer drains.
func (f *Fifo) CloseWrite() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeClosed = true
	f.wakeAll(&f.readers)
}

func (f *Fifo) ReadClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readClosed
}

func (f *Fifo) WriteClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeClosed
}

// Len returns the number of buffered items.
func (f *Fifo) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}

// ReadAll reads until EOF. Chunks are flattened.
func (f *Fifo) ReadAll(ctx context.Context) ([]any, error) {
	var out []any
	for {
		r, err := f.Read(ctx, true)
		if err != nil {
			return out, err
		}
		if r.EOF {
			return out, nil
		}
		if c, ok := r.Data.(*Chunk); ok {
			out = append(out, c.Items...)
		} else {
			out = append(out, r.Data)
		}
	}
}

// Must be called with f.mu held.
func (f *Fifo) wakeOne(waiters *[]chan struct{}) {
	if len(*waiters) > 0 {
		close((*waiters)[0])
		*waiters = (*waiters)[1:]
	}
}

// Must be called with f.mu held.
func (f *Fifo) wakeAll(waiters *[]chan struct{}) {
	for _, w := range *waiters {
		close(w)
	}
	*waiters = nil
}

func removeWaiter(waiters []chan struct{}, w chan struct{}) []chan struct{} {
	for i, x := range waiters {
		if x == w {
			return append(waiters[:i:i], waiters[i+1:]...)
		}
	}
	return waiters
}
