package store

import (
	"path/filepath"

	"github.com/npc-cli/jsh/pkg/testutil"
)

// TempDir is the subset of testing.TB used by MustTempStore.
type TempDir interface {
	testutil.Cleanuper
	TempDir() string
}

// MustTempStore returns a Store backed by a temporary file, closed when the
// test finishes.
func MustTempStore(t TempDir) DBStore {
	st, err := NewStore(filepath.Join(t.TempDir(), "jsh.db"))
	if err != nil {
		panic(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
