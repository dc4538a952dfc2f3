// Package device implements the endpoints jsh processes read from and write
// to. A process's file descriptors map to device keys, resolved through the
// Registry of its session.
package device

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/npc-cli/jsh/pkg/logutil"
)

var logger = logutil.GetLogger("[device] ")

// Device is a keyed endpoint.
type Device interface {
	Key() string
	// Read reads one item. When chunks is false, a *Chunk at the head of the
	// stream is unwrapped one item at a time.
	Read(ctx context.Context, chunks bool) (ReadResult, error)
	// Write writes one item, which may be a *Chunk. It may block.
	Write(ctx context.Context, data any) error
	// CloseRead signals that the reader is finished.
	CloseRead()
	// CloseWrite signals that the writer is finished.
	CloseWrite()
	ReadClosed() bool
	WriteClosed() bool
}

// ReadResult is the result of a read. When EOF is true, Data is meaningless.
type ReadResult struct {
	Data any
	EOF  bool
}

// EOFResult is the ReadResult signalling the end of the stream.
var EOFResult = ReadResult{EOF: true}

// Chunk is a batch of items written as one. Reading a single-item chunk yields
// the item itself.
type Chunk struct {
	Items []any
}

// NewChunk returns a *Chunk holding items.
func NewChunk(items ...any) *Chunk { return &Chunk{Items: items} }

// IsChunk reports whether v is a *Chunk.
func IsChunk(v any) bool {
	_, ok := v.(*Chunk)
	return ok
}

// Registry holds the devices of one session.
type Registry struct {
	mu      sync.Mutex
	devices map[string]Device
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]Device)}
}

// Add registers d. It fails if a device with the same key exists.
func (r *Registry) Add(d Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[d.Key()]; ok {
		return fmt.Errorf("device %s already exists", d.Key())
	}
	r.devices[d.Key()] = d
	logger.Debugw("added", "key", d.Key())
	return nil
}

// Get returns the device with the given key.
func (r *Registry) Get(key string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[key]
	return d, ok
}

// Remove removes the device with the given key, if any.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, key)
}

// Keys returns the sorted keys of all devices.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.devices))
	for k := range r.devices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ctxErr(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return ctx.Err()
}
