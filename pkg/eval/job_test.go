package eval_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/npc-cli/jsh/pkg/config"
	"github.com/npc-cli/jsh/pkg/device"
	"github.com/npc-cli/jsh/pkg/eval"
	. "github.com/npc-cli/jsh/pkg/eval/evaltest"
	"github.com/npc-cli/jsh/pkg/msg"
	"github.com/npc-cli/jsh/pkg/session"
	"github.com/npc-cli/jsh/pkg/store"
	"github.com/npc-cli/jsh/pkg/testutil"
)

type fixture struct {
	t      *testing.T
	ev     *eval.Evaler
	sess   *session.Session
	clock  *FakeClock
	out    *Capture
	stderr *Capture
}

func setupFixture(t *testing.T) *fixture {
	clock := NewFakeClock()
	testutil.Set(t, eval.TimeNow, clock.Now)
	testutil.Set(t, eval.TimeAfterFunc, clock.AfterFunc)
	ev, sess := NewSession(t)
	return &fixture{t, ev, sess, clock,
		NewCapture(sess, "/dev/test-out"), NewCapture(sess, "/dev/test-err")}
}

func (f *fixture) run(code string) int {
	f.t.Helper()
	return Run(f.t, f.ev, f.sess, code, f.out.Key(), f.stderr.Key())
}

// Runs code in the background of the test, returning a channel that receives
// the exit code.
func (f *fixture) start(code string) <-chan int {
	ch := make(chan int, 1)
	go func() { ch <- f.run(code) }()
	return ch
}

func (f *fixture) waitTimers(n int) {
	f.t.Helper()
	testutil.Eventually(f.t, func() bool { return f.clock.Pending() == n })
}

func (f *fixture) waitGone(pid int) {
	f.t.Helper()
	testutil.Eventually(f.t, func() bool { return f.sess.Process(pid) == nil })
}

func wait(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case code := <-ch:
		return code
	case <-time.After(testutil.Scaled(time.Second)):
		t.Fatal("timed out")
		return 0
	}
}

func TestSleep(t *testing.T) {
	f := setupFixture(t)
	done := f.start("sleep 2; echo done")
	f.waitTimers(1)
	f.clock.Advance(1999 * time.Millisecond)
	if n := len(f.out.Items()); n != 0 {
		t.Fatalf("got %d items before the sleep finished", n)
	}
	f.clock.Advance(time.Millisecond)
	if code := wait(t, done); code != 0 {
		t.Errorf("exit code %d", code)
	}
	if got := f.out.Items(); len(got) != 1 || got[0] != "done" {
		t.Errorf("got %v", got)
	}
}

func TestSleep_SuspendKeepsRemainingTime(t *testing.T) {
	f := setupFixture(t)
	f.run("sleep 2 &")
	f.waitTimers(1)
	f.clock.Advance(time.Second)

	f.run("kill --STOP 1")
	if st := f.sess.ProcessStatus(1); st != session.Suspended {
		t.Fatalf("status %v, want suspended", st)
	}
	if n := f.clock.Pending(); n != 0 {
		t.Fatalf("%d timers pending while suspended", n)
	}
	f.clock.Advance(5 * time.Second)

	f.run("kill --CONT 1")
	f.waitTimers(1)
	f.clock.Advance(999 * time.Millisecond)
	if f.sess.Process(1) == nil {
		t.Fatalf("sleep finished early")
	}
	f.clock.Advance(time.Millisecond)
	f.waitGone(1)
}

func TestSleep_KilledInterrupts(t *testing.T) {
	f := setupFixture(t)
	done := f.start("sleep 10; echo after")
	f.waitTimers(1)
	f.sess.Kill([]int{0}, session.KillOpts{SIGINT: true, Group: true})
	if code := wait(t, done); code != 130 {
		t.Errorf("exit code %d, want 130", code)
	}
	if n := f.clock.Pending(); n != 0 {
		t.Errorf("%d timers left", n)
	}
	if got := f.out.Items(); len(got) != 0 {
		t.Errorf("got %v after kill", got)
	}
}

func TestBackground(t *testing.T) {
	f := setupFixture(t)
	if code := f.run("! sleep 1 &"); code != 1 {
		t.Errorf("negated background exit code %d, want 1", code)
	}
	f.run("echo $!")
	if got := f.out.Items(); len(got) != 1 || got[0] != "1" {
		t.Errorf("$! = %v, want 1", got)
	}
	info, ok := f.sess.ProcessInfo(1)
	if !ok || info.Pgid != 1 || info.Ppid != 0 {
		t.Errorf("background process %+v", info)
	}
	f.waitTimers(1)
	f.clock.Advance(time.Second)
	f.waitGone(1)
}

func TestBackground_KilledJobRunsCleanups(t *testing.T) {
	f := setupFixture(t)
	f.run("sleep 10 &")
	f.waitTimers(1)

	cleaned := make(chan struct{})
	f.sess.HandleStatus(1, session.Handlers{Cleanups: []func(){func() { close(cleaned) }}})
	f.run("kill 1")

	select {
	case <-cleaned:
	default:
		t.Fatal("cleanups did not run during kill")
	}
	f.waitGone(1)
	if n := f.clock.Pending(); n != 0 {
		t.Errorf("%d timers left", n)
	}
}

func TestBackground_LocalPWD(t *testing.T) {
	f := setupFixture(t)
	f.run("{ cd /etc; sleep 1; } &")
	f.waitTimers(1)
	f.run("pwd")
	f.clock.Advance(time.Second)
	f.waitGone(1)
	if got := f.out.Items(); len(got) != 1 || got[0] != "/home" {
		t.Errorf("pwd = %v, want /home", got)
	}
}

func TestPs(t *testing.T) {
	f := setupFixture(t)
	f.run("sleep 10 &")
	f.waitTimers(1)
	f.run("kill --STOP 1")
	f.run("ps")
	lines := f.out.Items()
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), lines)
	}
	if !strings.Contains(lines[2].(string), "sleep 10") {
		t.Errorf("ps line %q lacks source", lines[2])
	}
	if !strings.Contains(lines[2].(string), "\x1b[90m") {
		t.Errorf("ps line %q not shown as suspended", lines[2])
	}
	f.run("kill --all")
	f.waitGone(1)
}

func TestPoll(t *testing.T) {
	f := setupFixture(t)
	done := f.start("poll 2 | read")
	// poll only notices that read has gone on its next write.
	deadline := time.After(testutil.Scaled(time.Second))
	for code := -1; code == -1; {
		select {
		case code = <-done:
			if code != 0 {
				t.Errorf("exit code %d", code)
			}
		case <-deadline:
			t.Fatal("timed out")
		case <-time.After(time.Millisecond):
			if f.clock.Pending() > 0 {
				f.clock.Advance(2 * time.Second)
			}
		}
	}
	if got := f.out.Items(); len(got) != 1 || got[0] != 1.0 {
		t.Errorf("got %v, want [1]", got)
	}
}

func TestPause(t *testing.T) {
	f := setupFixture(t)
	var mu sync.Mutex
	var paused bool
	f.sess.SetVar(&session.Meta{}, "pause", eval.CallableFunc(func(api *eval.API, _ []string) error {
		api.Pause()
		mu.Lock()
		paused = api.IsPaused()
		mu.Unlock()
		api.Resume()
		return api.Put(api.IsRunning())
	}))
	f.run("pause")
	mu.Lock()
	defer mu.Unlock()
	if !paused {
		t.Errorf("IsPaused() = false after Pause")
	}
	if got := f.out.Items(); len(got) != 1 || got[0] != true {
		t.Errorf("got %v, want [true]", got)
	}
}

func TestSay(t *testing.T) {
	var buf bytes.Buffer
	reg := session.NewRegistry(config.Default().Shell, store.NewMemStore())
	reg.Speaker = device.WriterSpeaker{W: &buf}
	sess, err := reg.Create("tty-say", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Remove(sess.Key)
	sess.SetProfileFinished()
	ev := eval.NewEvaler(reg)
	out := NewCapture(sess, "/dev/test-out")
	Run(t, ev, sess, "say hello world; echo -a a b | say", out.Key(), out.Key())
	if got, want := buf.String(), "hello world\n[a b]\n"; got != want {
		t.Errorf("spoke %q, want %q", got, want)
	}
}

func TestSay_NoVoice(t *testing.T) {
	Test(t,
		That("say hi").ExitsWith(1).PrintsStderrWith("no voice device"),
	)
}

func TestLeaderAnnouncements(t *testing.T) {
	f := setupFixture(t)
	rec, stop := msg.Record(&f.sess.IO.Outbound)
	defer stop()
	f.run("true")
	var acts []msg.LeaderAct
	for _, m := range rec.Messages() {
		if ext, ok := m.(msg.External); ok {
			if pl, ok := ext.Event.(msg.ProcessLeader); ok {
				acts = append(acts, pl.Act)
			}
		}
	}
	if len(acts) != 2 || acts[0] != msg.LeaderStarted || acts[1] != msg.LeaderEnded {
		t.Errorf("got leader acts %v", acts)
	}
}

func TestChoice(t *testing.T) {
	ev, sess := NewSession(t)
	rec, stop := msg.Record(&sess.IO.Outbound)
	defer stop()
	f, err := ev.Parser().Parse("choice '[ yes ](1) [ no ](-)'")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan int, 1)
	go func() {
		code, _ := ev.RunLeader(sess, f.Stmts, "choice")
		done <- code
	}()

	testutil.Eventually(t, func() bool { return sess.ActivateLink("[ yes ] [ no ]", "yes") })
	if code := wait(t, done); code != 0 {
		t.Errorf("exit code %d", code)
	}
	var outputs []any
	for _, m := range rec.Messages() {
		if o, ok := m.(msg.Output); ok {
			outputs = append(outputs, o.Data)
		}
	}
	if len(outputs) != 2 || outputs[1] != 1.0 {
		t.Errorf("got outputs %q, want the rendered line and 1", outputs)
	}
	if sess.ActivateLink("[ yes ] [ no ]", "yes") {
		t.Errorf("links still active after the choice")
	}
}

func TestChoice_NeedsTty(t *testing.T) {
	Test(t,
		That("choice '[ a ](1)'").ExitsWith(1).PrintsStderrWith("stdout must be a tty"),
	)
}
