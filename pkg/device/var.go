package device

import (
	"context"
	"fmt"
	"sync"
)

// VarMode decides how writes to a Var accumulate.
type VarMode string

const (
	// VarLast overwrites the variable with the most recent item.
	VarLast VarMode = "last"
	// VarArray appends to the variable, creating an array if it is not one.
	VarArray VarMode = "array"
	// VarFreshArray starts a new array on the first write, then appends.
	VarFreshArray VarMode = "fresh-array"
)

// VarAccess reads and writes the variable a Var is bound to.
type VarAccess struct {
	Get func() any
	Set func(any) error
}

// Var is a write-only device storing what is written into a variable.
type Var struct {
	key    string
	access VarAccess

	mu     sync.Mutex
	mode   VarMode
	closed bool
}

// VarKey returns the key of the Var device bound to path for the given
// process.
func VarKey(path, sessionKey string, pid int) string {
	return fmt.Sprintf("%s@%s(%d)", path, sessionKey, pid)
}

// NewVar returns a Var writing through access in the given mode.
func NewVar(key string, mode VarMode, access VarAccess) *Var {
	return &Var{key: key, access: access, mode: mode}
}

func (v *Var) Key() string { return v.key }

// Read always returns EOF.
func (v *Var) Read(context.Context, bool) (ReadResult, error) { return EOFResult, nil }

func (v *Var) Write(_ context.Context, data any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	items := []any{data}
	if c, ok := data.(*Chunk); ok {
		items = c.Items
	}
	switch v.mode {
	case VarLast:
		if len(items) == 0 {
			return nil
		}
		return v.access.Set(items[len(items)-1])
	case VarFreshArray:
		v.mode = VarArray
		return v.access.Set(append([]any{}, items...))
	default:
		arr, ok := v.access.Get().([]any)
		if !ok {
			arr = nil
		}
		return v.access.Set(append(append([]any{}, arr...), items...))
	}
}

// Mode returns the current mode. A VarFreshArray device switches to VarArray
// after its first write.
func (v *Var) Mode() VarMode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

func (v *Var) CloseRead() {}

func (v *Var) CloseWrite() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}

func (v *Var) ReadClosed() bool { return false }

func (v *Var) WriteClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Null discards writes and reads EOF.
type Null struct{ key string }

// NullKey is the key of the null device.
const NullKey = "/dev/null"

// NewNull returns a Null device with the given key.
func NewNull(key string) Null { return Null{key} }

func (n Null) Key() string                                  { return n.key }
func (Null) Read(context.Context, bool) (ReadResult, error) { return EOFResult, nil }
func (Null) Write(context.Context, any) error               { return nil }
func (Null) CloseRead()                                     {}
func (Null) CloseWrite()                                    {}
func (Null) ReadClosed() bool                               { return false }
func (Null) WriteClosed() bool                              { return false }
