package msg

import "sync"

// Wire broadcasts messages to its subscribers. Write calls every subscriber
// synchronously in subscription order.
type Wire struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

type subscriber struct {
	id int
	f  func(Message)
}

// Subscribe adds a subscriber and returns a function that removes it.
func (w *Wire) Subscribe(f func(Message)) (unsubscribe func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.subs = append(w.subs, subscriber{id, f})
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, s := range w.subs {
			if s.id == id {
				w.subs = append(w.subs[:i:i], w.subs[i+1:]...)
				return
			}
		}
	}
}

// Write delivers m to all current subscribers.
func (w *Wire) Write(m Message) {
	w.mu.Lock()
	subs := make([]subscriber, len(w.subs))
	copy(subs, w.subs)
	w.mu.Unlock()
	for _, s := range subs {
		s.f(m)
	}
}

// Channel is the bidirectional link between a session and its front-end.
type Channel struct {
	// Messages from the front-end.
	Inbound Wire
	// Messages to the front-end.
	Outbound Wire
}

// NewChannel returns a new Channel with no subscribers.
func NewChannel() *Channel { return &Channel{} }

// Recorder collects the messages written to a Wire. It is safe for concurrent
// use.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	cond *sync.Cond
}

// Record subscribes a new Recorder to w.
func Record(w *Wire) (*Recorder, func()) {
	r := &Recorder{}
	r.cond = sync.NewCond(&r.mu)
	return r, w.Subscribe(r.add)
}

func (r *Recorder) add(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	r.cond.Broadcast()
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// WaitFor blocks until pred holds for some recorded message and returns it.
// Messages already recorded are considered.
func (r *Recorder) WaitFor(pred func(Message) bool) Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; ; {
		for ; i < len(r.msgs); i++ {
			if pred(r.msgs[i]) {
				return r.msgs[i]
			}
		}
		r.cond.Wait()
	}
}
