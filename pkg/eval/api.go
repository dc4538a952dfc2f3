package eval

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/npc-cli/jsh/pkg/device"
	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/session"
)

// API is the view a command implemented in Go has of the shell. It is bound
// to the meta of one command invocation and must not outlive it.
type API struct {
	fr       *Frame
	sess     *session.Session
	meta     *session.Meta
	ctx      context.Context
	exitCode int

	out    device.Device
	outKey string
	// Run in reverse order when the command finishes.
	cleanups []func()
}

func newAPI(fr *Frame, meta *session.Meta) *API {
	return &API{fr: fr, sess: fr.sess, meta: meta, ctx: fr.ctx}
}

func (api *API) close() {
	for i := len(api.cleanups) - 1; i >= 0; i-- {
		api.cleanups[i]()
	}
	api.cleanups = nil
}

// Meta returns the meta of the command. Callers must not modify it; use
// Redirect instead.
func (api *API) Meta() *session.Meta { return api.meta }

// Session returns the session the command runs in.
func (api *API) Session() *session.Session { return api.sess }

// Context returns the context of the process running the command.
func (api *API) Context() context.Context { return api.ctx }

// SetExitCode sets the exit code reported when the command returns nil.
func (api *API) SetExitCode(code int) { api.exitCode = code }

// Converts the error of a blocking operation into a kill signal when the
// process has been killed.
func (api *API) killErr(err error) error {
	if err == nil {
		return nil
	}
	if kill := errs.AsKill(err); kill != nil {
		return kill
	}
	if errors.Is(err, context.Canceled) {
		return errs.NewKill(api.meta.SessionKey, api.meta.Pid)
	}
	return err
}

// Waits while the process is suspended and fails if it has been killed.
func (api *API) check() error {
	if err := context.Cause(api.ctx); err != nil {
		return api.killErr(err)
	}
	switch api.sess.ProcessStatus(api.meta.Pid) {
	case session.Killed:
		return errs.NewKill(api.meta.SessionKey, api.meta.Pid)
	case session.Suspended:
		return api.killErr(api.sess.WaitResume(api.meta.Pid))
	}
	return nil
}

// Put writes v to stdout. It waits while the process is suspended, fails
// with a kill signal once it is killed, and with errs.ReaderGone once the
// reader of a pipe has finished.
func (api *API) Put(v any) error {
	if err := api.check(); err != nil {
		return err
	}
	if key := api.meta.FD[1]; api.out == nil || key != api.outKey {
		d, err := api.sess.Resolve(1, api.meta)
		if err != nil {
			return err
		}
		api.out, api.outKey = d, key
	}
	if api.out.ReadClosed() {
		return errs.ReaderGone{}
	}
	return api.killErr(api.out.Write(api.ctx, v))
}

// Read reads one item from stdin. A *device.Chunk is returned whole only
// when chunks is set. At the end of the stream it returns io.EOF.
func (api *API) Read(chunks bool) (any, error) {
	if err := api.check(); err != nil {
		return nil, err
	}
	d, err := api.sess.Resolve(0, api.meta)
	if err != nil {
		return nil, err
	}
	if _, isTty := d.(*device.Tty); isTty && api.meta.Background {
		return nil, errs.New("background process tried to read tty", 1)
	}
	r, err := d.Read(api.ctx, chunks)
	if err != nil {
		return nil, api.killErr(err)
	}
	if r.EOF {
		return nil, io.EOF
	}
	return r.Data, nil
}

// HandleStatus registers job control callbacks on the process. They are
// removed when the command finishes.
func (api *API) HandleStatus(h session.Handlers) {
	api.cleanups = append(api.cleanups, api.sess.HandleStatus(api.meta.Pid, h))
}

// AwaitResume blocks while the process is suspended.
func (api *API) AwaitResume() error {
	return api.killErr(api.sess.WaitResume(api.meta.Pid))
}

// Sleep waits for the given number of seconds. Time spent suspended does not
// count. Killing the process interrupts the sleep with a kill signal.
func (api *API) Sleep(seconds float64) error {
	if err := api.check(); err != nil {
		return err
	}
	var (
		mu        sync.Mutex
		remaining = time.Duration(seconds * float64(time.Second))
		started   time.Time
		stop      func() bool
		paused    bool
		done      = make(chan struct{})
		once      sync.Once
	)
	// Must be called with mu held.
	start := func() {
		started = timeNow()
		stop = timeAfterFunc(remaining, func() { once.Do(func() { close(done) }) })
	}

	dispose := api.sess.HandleStatus(api.meta.Pid, session.Handlers{
		OnSuspends: []func(bool) bool{func(bool) bool {
			mu.Lock()
			defer mu.Unlock()
			switch {
			case paused:
			case stop == nil:
				paused = true
			case stop():
				remaining -= timeNow().Sub(started)
				paused = true
			}
			return true
		}},
		OnResumes: []func() bool{func() bool {
			mu.Lock()
			defer mu.Unlock()
			if paused {
				paused = false
				start()
			}
			return true
		}},
	})
	defer dispose()

	// A stop may have arrived before the handlers were registered.
	suspended := api.IsPaused()
	mu.Lock()
	if stop == nil && !paused {
		if suspended {
			paused = true
		} else {
			start()
		}
	}
	mu.Unlock()

	select {
	case <-done:
		return nil
	case <-api.ctx.Done():
		mu.Lock()
		if stop != nil {
			stop()
		}
		mu.Unlock()
		return api.killErr(context.Cause(api.ctx))
	}
}

// Pause suspends the process group of the command.
func (api *API) Pause() {
	api.sess.Kill([]int{api.meta.Pgid}, session.KillOpts{STOP: true, Group: true})
}

// Resume resumes the process group of the command.
func (api *API) Resume() {
	api.sess.Kill([]int{api.meta.Pgid}, session.KillOpts{CONT: true, Group: true})
}

// Poll writes 1, 2, 3 and so on, one every interval seconds, until killed.
// The interval is at least the configured minimum.
func (api *API) Poll(seconds float64) error {
	interval := max(seconds, api.sess.Config().PollMin.Seconds())
	for count := 1; ; count++ {
		if err := api.Put(float64(count)); err != nil {
			return err
		}
		if err := api.Sleep(interval); err != nil {
			return err
		}
	}
}

// Redirect points file descriptors of the command at other devices for the
// rest of its run.
func (api *API) Redirect(fds map[int]string) {
	for fd, key := range fds {
		api.meta.FD[fd] = key
	}
}

// RedirectToVar points fd at a device writing into the variable at path. The
// previous target is restored when the command finishes.
func (api *API) RedirectToVar(fd int, path string, mode device.VarMode) {
	prev, had := api.meta.FD[fd]
	key, isNew := api.fr.varDevice(api.meta, path, mode)
	api.meta.FD[fd] = key
	api.cleanups = append(api.cleanups, func() {
		if had {
			api.meta.FD[fd] = prev
		} else {
			delete(api.meta.FD, fd)
		}
		if isNew {
			api.sess.Devices.Remove(key)
		}
	})
}

// Get resolves each path: a path whose first part names a variable local to
// the process resolves inside it, others resolve under / with ~ as /home.
// Unresolved paths give nil.
func (api *API) Get(paths []string) []any {
	out := make([]any, len(paths))
	for i, p := range paths {
		out[i] = api.sess.Get(api.meta, p)
	}
	return out
}

// Set writes v at path.
func (api *API) Set(path string, v any) error {
	return api.sess.SetVarDeep(api.meta, path, v)
}

// IsTTYAt reports whether fd points at a terminal.
func (api *API) IsTTYAt(fd int) bool {
	return strings.HasPrefix(api.meta.FD[fd], "/dev/tty-")
}

// IsRunning reports whether the process is running.
func (api *API) IsRunning() bool {
	return api.sess.ProcessStatus(api.meta.Pid) == session.Running
}

// IsPaused reports whether the process is suspended.
func (api *API) IsPaused() bool {
	return api.sess.ProcessStatus(api.meta.Pid) == session.Suspended
}

// Process returns a snapshot of the process running the command.
func (api *API) Process() session.ProcessInfo {
	info, _ := api.sess.ProcessInfo(api.meta.Pid)
	return info
}

// UID returns a fresh unique identifier.
func (api *API) UID() string { return uuid.NewString() }

// KillError returns a kill signal for the process with the given exit code.
func (api *API) KillError(code int) *errs.KillSignal {
	return &errs.KillSignal{Pid: api.meta.Pid, SessionKey: api.meta.SessionKey, ExitCode: code}
}

// ShellError returns a recoverable error with the given exit code. An empty
// message only sets the exit code.
func (api *API) ShellError(message string, code int) *errs.ShellError {
	return errs.New(message, code)
}

// WriteError writes message in red to stderr without blocking on pipes.
func (api *API) WriteError(message string) {
	api.fr.writeError(api.meta, message)
}
