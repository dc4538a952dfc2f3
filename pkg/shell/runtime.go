package shell

import (
	"fmt"
	"os"

	"github.com/npc-cli/jsh/pkg/config"
	"github.com/npc-cli/jsh/pkg/device"
	"github.com/npc-cli/jsh/pkg/eval"
	"github.com/npc-cli/jsh/pkg/session"
	"github.com/npc-cli/jsh/pkg/store"
)

// Runtime holds what all sessions of one process share.
type Runtime struct {
	Config   *config.Config
	Registry *session.Registry
	Evaler   *eval.Evaler

	db store.DBStore
}

// InitRuntime opens the store named by cfg, in memory when cfg has no
// database path, and creates an empty session registry. Sessions created
// afterwards speak through speaker when it is not nil.
func InitRuntime(cfg *config.Config, speaker device.Speaker) (*Runtime, error) {
	var db store.DBStore
	if cfg.Store.DBPath == "" {
		db = store.NewMemStore()
	} else {
		var err error
		db, err = store.NewStore(cfg.Store.DBPath)
		if err != nil {
			return nil, err
		}
	}
	reg := session.NewRegistry(cfg.Shell, db)
	reg.Speaker = speaker
	return &Runtime{Config: cfg, Registry: reg, Evaler: eval.NewEvaler(reg), db: db}, nil
}

// NewShell creates a session with the given key, a fresh one when key is
// empty, restores its persisted state and returns a started Shell on it.
func (rt *Runtime) NewShell(key string) (*Shell, error) {
	if key == "" {
		key = session.NewKey()
	}
	env := map[string]any{}
	if path := rt.Config.Shell.ProfileFile; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read profile: %w", err)
		}
		env["PROFILE"] = string(data)
	}
	sess, err := rt.Registry.Create(key, env)
	if err != nil {
		return nil, err
	}
	sess.Rehydrate()
	sh := New(rt.Evaler, sess)
	sh.Start()
	return sh, nil
}

// Close disposes sh, persists its session and removes it, then closes the
// store.
func (rt *Runtime) Close(sh *Shell) error {
	sh.Dispose()
	sh.sess.PersistHome()
	rt.Registry.Remove(sh.sess.Key)
	if err := rt.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
