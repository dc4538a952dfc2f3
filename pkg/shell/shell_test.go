package shell

import (
	"testing"

	"github.com/npc-cli/jsh/pkg/config"
	"github.com/npc-cli/jsh/pkg/eval"
	"github.com/npc-cli/jsh/pkg/msg"
	"github.com/npc-cli/jsh/pkg/session"
	"github.com/npc-cli/jsh/pkg/store"
)

type fixture struct {
	ev   *eval.Evaler
	sess *session.Session
	sh   *Shell
	rec  *msg.Recorder
	sent int
}

// Returns a started Shell on a fresh session whose outbound messages are
// recorded.
func setup(t *testing.T, profileFinished bool) *fixture {
	t.Helper()
	reg := session.NewRegistry(config.Default().Shell, store.NewMemStore())
	sess, err := reg.Create(session.NewKey(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Remove(sess.Key) })
	if profileFinished {
		sess.SetProfileFinished()
	}
	rec, stop := msg.Record(&sess.IO.Outbound)
	t.Cleanup(stop)

	ev := eval.NewEvaler(reg)
	sh := New(ev, sess)
	sh.Start()
	t.Cleanup(sh.Dispose)
	return &fixture{ev: ev, sess: sess, sh: sh, rec: rec}
}

// Sends a line that is run as a command and waits until it is handled.
func (f *fixture) run(line string) {
	f.sess.IO.Inbound.Write(msg.SendLine{Line: line})
	f.sent++
	f.waitNth(isAck, f.sent)
}

// Sends a line without waiting.
func (f *fixture) start(line string) {
	f.sess.IO.Inbound.Write(msg.SendLine{Line: line})
	f.sent++
}

func (f *fixture) waitNth(pred func(msg.Message) bool, n int) msg.Message {
	seen := 0
	return f.rec.WaitFor(func(m msg.Message) bool {
		if pred(m) {
			seen++
		}
		return seen == n
	})
}

// Returns the recorded messages other than external events, from the i-th
// on.
func (f *fixture) messagesFrom(i int) []msg.Message {
	var out []msg.Message
	for _, m := range f.rec.Messages() {
		if _, ok := m.(msg.External); ok {
			continue
		}
		out = append(out, m)
	}
	if i > len(out) {
		return nil
	}
	return out[i:]
}

// Returns the data of every Output message.
func (f *fixture) outputs() []any {
	var out []any
	for _, m := range f.rec.Messages() {
		if o, ok := m.(msg.Output); ok {
			out = append(out, o.Data)
		}
	}
	return out
}

func isAck(m msg.Message) bool    { _, ok := m.(msg.LineReceived); return ok }
func isPrompt(m msg.Message) bool { _, ok := m.(msg.Prompt); return ok }

func isLeaderAct(act msg.LeaderAct) func(msg.Message) bool {
	return func(m msg.Message) bool {
		e, ok := m.(msg.External)
		if !ok {
			return false
		}
		pl, ok := e.Event.(msg.ProcessLeader)
		return ok && pl.Act == act
	}
}

func TestDispose_StopsHandlingLines(t *testing.T) {
	f := setup(t, true)
	f.sh.Dispose()
	f.sh.Dispose()

	f.sess.IO.Inbound.Write(msg.SendLine{Line: "echo hello"})
	if got := f.messagesFrom(0); len(got) != 0 {
		t.Errorf("messages after Dispose: %v", got)
	}
}

func TestSetDisabled(t *testing.T) {
	f := setup(t, true)
	f.sh.SetDisabled(true)
	if !f.sess.Disabled() {
		t.Errorf("session not disabled")
	}
	f.sh.SetDisabled(false)
	if f.sess.Disabled() {
		t.Errorf("session still disabled")
	}
}
