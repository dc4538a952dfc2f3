// Package msg defines the messages exchanged between a jsh session and its
// terminal front-end, and the wires that carry them.
package msg

// Message is implemented by every message type. Key identifies the message
// kind on the wire.
type Message interface {
	Key() string
}

// Inbound messages, sent by the front-end.
type (
	// RequestHistoryLine asks for the history entry Index positions back from
	// the most recent one.
	RequestHistoryLine struct{ Index int }
	// SendLine delivers one line of user input.
	SendLine struct{ Line string }
	// SendKillSignal interrupts the foreground job.
	SendKillSignal struct{}
	// ActivateLink reports a click on a link written by choice.
	ActivateLink struct {
		LineText string
		LinkText string
	}
)

// Outbound messages, sent by the session.
type (
	// Prompt sets the prompt shown before the next input line.
	Prompt struct{ Prompt string }
	Info   struct{ Text string }
	Error  struct{ Text string }
	Clear  struct{}
	// LineReceived acknowledges a SendLine.
	LineReceived struct{}
	// HistoryLine answers a RequestHistoryLine.
	HistoryLine struct {
		Line      string
		NextIndex int
	}
	// Output carries an item written to the terminal device.
	Output struct{ Data any }
	// External carries an event for observers outside the terminal.
	External struct{ Event ExternalEvent }
)

// ExternalEvent is the payload of External.
type ExternalEvent interface {
	ExternalKey() string
}

// AutoReSourceFile asks observers to re-source the file at Path.
type AutoReSourceFile struct{ Path string }

// LeaderAct is an action on the session leader.
type LeaderAct string

const (
	LeaderStarted LeaderAct = "started"
	LeaderPaused  LeaderAct = "paused"
	LeaderResumed LeaderAct = "resumed"
	LeaderEnded   LeaderAct = "ended"
)

// ProcessLeader reports a change of the session leader.
type ProcessLeader struct {
	Pid int
	Act LeaderAct
}

func (RequestHistoryLine) Key() string { return "req-history-line" }
func (SendLine) Key() string           { return "send-line" }
func (SendKillSignal) Key() string     { return "send-kill-sig" }
func (ActivateLink) Key() string       { return "activate-link" }

func (Prompt) Key() string       { return "send-xterm-prompt" }
func (Info) Key() string         { return "info" }
func (Error) Key() string        { return "error" }
func (Clear) Key() string        { return "clear-xterm" }
func (LineReceived) Key() string { return "line-received-ack" }
func (HistoryLine) Key() string  { return "send-history-line" }
func (Output) Key() string       { return "output" }
func (External) Key() string     { return "external" }

func (AutoReSourceFile) ExternalKey() string { return "auto-re-source-file" }
func (ProcessLeader) ExternalKey() string    { return "process-leader" }
