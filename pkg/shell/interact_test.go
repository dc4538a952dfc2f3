package shell

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/npc-cli/jsh/pkg/msg"
	"github.com/npc-cli/jsh/pkg/session"
	"github.com/npc-cli/jsh/pkg/testutil"
)

func TestSendLine_RunsCommand(t *testing.T) {
	f := setup(t, true)
	f.run("echo hello")

	want := []msg.Message{msg.Output{Data: "hello"}, msg.Prompt{Prompt: "$ "}, msg.LineReceived{}}
	if diff := cmp.Diff(want, f.messagesFrom(0)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
}

func TestSendLine_AnnouncesLeader(t *testing.T) {
	f := setup(t, true)
	f.run("echo hello")

	var acts []msg.LeaderAct
	for _, m := range f.rec.Messages() {
		if e, ok := m.(msg.External); ok {
			acts = append(acts, e.Event.(msg.ProcessLeader).Act)
		}
	}
	want := []msg.LeaderAct{msg.LeaderStarted, msg.LeaderEnded}
	if diff := cmp.Diff(want, acts); diff != "" {
		t.Errorf("leader events (-want +got):\n%s", diff)
	}
}

func TestSendLine_IncompleteInput(t *testing.T) {
	f := setup(t, true)
	f.run("echo 'a")
	if diff := cmp.Diff([]msg.Message{msg.Prompt{Prompt: "> "}, msg.LineReceived{}}, f.messagesFrom(0)); diff != "" {
		t.Errorf("after first line (-want +got):\n%s", diff)
	}

	f.run("b'")
	want := []msg.Message{msg.Output{Data: "a\nb"}, msg.Prompt{Prompt: "$ "}, msg.LineReceived{}}
	if diff := cmp.Diff(want, f.messagesFrom(2)); diff != "" {
		t.Errorf("after second line (-want +got):\n%s", diff)
	}
	if got := f.sess.History(); len(got) != 1 || !strings.Contains(got[0], "echo") {
		t.Errorf("history %q, want one entry for the whole statement", got)
	}
}

func TestSendLine_ParseError(t *testing.T) {
	f := setup(t, true)
	f.run("echo )")

	got := f.messagesFrom(0)
	if len(got) != 3 {
		t.Fatalf("messages %v, want error, prompt and ack", got)
	}
	if e, ok := got[0].(msg.Error); !ok || !strings.HasPrefix(e.Text, "mvdan-sh: ") {
		t.Errorf("first message %v, want parser error", got[0])
	}
	if got[1] != (msg.Prompt{Prompt: "$ "}) {
		t.Errorf("second message %v, want prompt", got[1])
	}
	if diff := cmp.Diff([]string{"echo )"}, f.sess.History()); diff != "" {
		t.Errorf("history (-want +got):\n%s", diff)
	}

	// The failed input is not kept in the buffer.
	f.run("echo ok")
	if diff := cmp.Diff(msg.Message(msg.Output{Data: "ok"}), f.messagesFrom(3)[0]); diff != "" {
		t.Errorf("next command (-want +got):\n%s", diff)
	}
}

func TestSendLine_CommandErrorKeepsLoop(t *testing.T) {
	f := setup(t, true)
	f.run("nosuchcommand")
	f.run("echo after")

	if got := f.sess.LastExit(&session.Meta{}); got != 0 {
		t.Errorf("last exit %d, want 0", got)
	}
	outputs := f.outputs()
	if len(outputs) != 2 || !strings.Contains(fmt.Sprint(outputs[0]), "not found") || outputs[1] != "after" {
		t.Errorf("outputs %q, want an error then \"after\"", outputs)
	}
}

func TestHistory(t *testing.T) {
	f := setup(t, true)
	f.run("echo a")
	f.run("echo a")
	f.run("echo b")
	f.run("")

	if diff := cmp.Diff([]string{"echo a", "echo b"}, f.sess.History()); diff != "" {
		t.Errorf("history (-want +got):\n%s", diff)
	}

	f.sess.IO.Inbound.Write(msg.RequestHistoryLine{Index: 0})
	f.sess.IO.Inbound.Write(msg.RequestHistoryLine{Index: 1})
	f.sess.IO.Inbound.Write(msg.RequestHistoryLine{Index: 5})
	var got []msg.Message
	for _, m := range f.rec.Messages() {
		if h, ok := m.(msg.HistoryLine); ok {
			got = append(got, h)
		}
	}
	want := []msg.Message{
		msg.HistoryLine{Line: "echo b", NextIndex: 1},
		msg.HistoryLine{Line: "echo a", NextIndex: 2},
		msg.HistoryLine{Line: "", NextIndex: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history lines (-want +got):\n%s", diff)
	}
}

func TestSendLine_DeliveredToReader(t *testing.T) {
	f := setup(t, true)
	f.start("read x")
	testutil.Eventually(t, f.sess.Tty.HasReaders)

	// The typed line goes to the reader and is acknowledged at once, before
	// read finishes.
	f.sess.IO.Inbound.Write(msg.SendLine{Line: "typed"})
	f.waitNth(isAck, 1)
	f.waitNth(isAck, 2)

	f.sent = 2
	f.run("echo $x")
	if diff := cmp.Diff([]any{"typed"}, f.outputs()); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}
}

func TestSendKillSignal_RejectsReader(t *testing.T) {
	f := setup(t, true)
	f.start("read x")
	testutil.Eventually(t, f.sess.Tty.HasReaders)

	f.sess.IO.Inbound.Write(msg.SendKillSignal{})
	f.waitNth(isAck, 1)

	if got := f.sess.LastExit(&session.Meta{}); got != 130 {
		t.Errorf("last exit %d, want 130", got)
	}
	if f.sess.Tty.HasReaders() {
		t.Errorf("reader still pending")
	}
}

func TestSendKillSignal_InterruptsForeground(t *testing.T) {
	f := setup(t, true)
	f.start("sleep 100")
	f.waitNth(isLeaderAct(msg.LeaderStarted), 1)

	f.sess.IO.Inbound.Write(msg.SendKillSignal{})
	f.waitNth(isAck, 1)
	if got := f.sess.LastExit(&session.Meta{}); got != 130 {
		t.Errorf("last exit %d, want 130", got)
	}

	// The leader is usable again.
	f.run("echo again")
	if diff := cmp.Diff(msg.Message(msg.Output{Data: "again"}), f.messagesFrom(0)[2]); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
}

func TestSendKillSignal_ClearsBuffer(t *testing.T) {
	f := setup(t, true)
	f.run("echo 'a")
	f.sess.IO.Inbound.Write(msg.SendKillSignal{})
	f.run("echo b")

	if diff := cmp.Diff(msg.Message(msg.Output{Data: "b"}), f.messagesFrom(2)[0]); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
}

func TestKilledBackgroundJob_CleanupsBeforePrompt(t *testing.T) {
	f := setup(t, true)
	f.run("sleep 100 &")
	bg := f.sess.LastBg()

	var (
		mu     sync.Mutex
		events []string
	)
	log := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}
	f.sess.HandleStatus(bg, session.Handlers{Cleanups: []func(){func() { log("cleanup") }}})
	unsub := f.sess.IO.Outbound.Subscribe(func(m msg.Message) {
		if isPrompt(m) {
			log("prompt")
		}
	})
	defer unsub()

	f.run(fmt.Sprintf("kill %d", bg))

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"cleanup", "prompt"}, events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestActivateLink(t *testing.T) {
	f := setup(t, true)
	activated := make(chan struct{})
	f.sess.AddLinks("[ ok ]", []session.Link{{LinkText: "ok", Callback: func() { close(activated) }}})

	f.sess.IO.Inbound.Write(msg.ActivateLink{LineText: "[ ok ]", LinkText: "ok"})
	select {
	case <-activated:
	default:
		t.Errorf("link callback not called")
	}
	// Unknown links are ignored.
	f.sess.IO.Inbound.Write(msg.ActivateLink{LineText: "[ ok ]", LinkText: "nope"})
}
