// Package shell is the interactive front-end loop of a jsh session. It reads
// messages from the terminal, buffers input lines until they form complete
// statements, runs them in the session leader and prompts for more.
package shell

import (
	"sync"

	"github.com/npc-cli/jsh/pkg/eval"
	"github.com/npc-cli/jsh/pkg/logutil"
	"github.com/npc-cli/jsh/pkg/session"
)

var logger = logutil.GetLogger("[shell] ")

const (
	promptReady    = "$ "
	promptContinue = "> "
)

// Shell drives one session from its message channel.
type Shell struct {
	ev   *eval.Evaler
	sess *session.Session

	// Serializes the running of input, by the loop and by RunProfile.
	runMu sync.Mutex

	mu     sync.Mutex
	buffer []string
	queue  []string
	// Whether complete input is recorded in history. Off while the profile
	// runs.
	historyEnabled bool
	// Whether the leader is running typed input.
	running bool
	// Whether prompts are sent. Off while the profile runs.
	prompting bool

	wake        chan struct{}
	done        chan struct{}
	disposeOnce sync.Once
	unsubscribe func()
}

// New returns a Shell for sess. It does nothing until Start is called.
func New(ev *eval.Evaler, sess *session.Session) *Shell {
	return &Shell{
		ev: ev, sess: sess,
		historyEnabled: true, prompting: true,
		wake: make(chan struct{}, 1), done: make(chan struct{}),
	}
}

// Session returns the session driven by the shell.
func (sh *Shell) Session() *session.Session { return sh.sess }

// Start subscribes to the inbound messages of the session and starts running
// input.
func (sh *Shell) Start() {
	sh.unsubscribe = sh.sess.IO.Inbound.Subscribe(sh.onMessage)
	go sh.loop()
}

// SetDisabled disables or enables the session, suspending or resuming the
// processes that may not run in the background.
func (sh *Shell) SetDisabled(disabled bool) {
	sh.sess.SetDisabled(disabled)
}

// Dispose stops reading messages. Queued input is dropped; a command already
// running is left to the session.
func (sh *Shell) Dispose() {
	sh.disposeOnce.Do(func() {
		if sh.unsubscribe != nil {
			sh.unsubscribe()
		}
		close(sh.done)
		logger.Debugw("disposed", "session", sh.sess.Key)
	})
}
