package msg

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWire_SubscribeAndUnsubscribe(t *testing.T) {
	var w Wire
	var a, b []Message
	unsubA := w.Subscribe(func(m Message) { a = append(a, m) })
	w.Subscribe(func(m Message) { b = append(b, m) })

	w.Write(Info{"one"})
	unsubA()
	w.Write(Info{"two"})

	if diff := cmp.Diff([]Message{Info{"one"}}, a); diff != "" {
		t.Errorf("first subscriber (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Message{Info{"one"}, Info{"two"}}, b); diff != "" {
		t.Errorf("second subscriber (-want +got):\n%s", diff)
	}
}

func TestRecorder_WaitFor(t *testing.T) {
	var w Wire
	r, stop := Record(&w)
	defer stop()

	go w.Write(Prompt{"$ "})
	got := r.WaitFor(func(m Message) bool { _, ok := m.(Prompt); return ok })
	if got != (Prompt{"$ "}) {
		t.Errorf("WaitFor -> %v", got)
	}
}

var keyTests = []struct {
	m    Message
	want string
}{
	{SendLine{}, "send-line"},
	{SendKillSignal{}, "send-kill-sig"},
	{RequestHistoryLine{}, "req-history-line"},
	{HistoryLine{}, "send-history-line"},
	{LineReceived{}, "line-received-ack"},
}

func TestKeys(t *testing.T) {
	for _, test := range keyTests {
		if got := test.m.Key(); got != test.want {
			t.Errorf("%T.Key() -> %q, want %q", test.m, got, test.want)
		}
	}
}
