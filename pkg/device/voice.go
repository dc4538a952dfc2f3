package device

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// VoiceKey is the key of the speech device.
const VoiceKey = "/dev/voice"

// Utterance is a request to speak Text, optionally with a named voice.
type Utterance struct {
	Text  string
	Voice string
}

// Speaker speaks one utterance, returning when it has finished.
type Speaker interface {
	Speak(ctx context.Context, u Utterance) error
}

// WriterSpeaker is a Speaker that writes each utterance as a line to W.
type WriterSpeaker struct{ W io.Writer }

func (s WriterSpeaker) Speak(_ context.Context, u Utterance) error {
	if u.Voice != "" {
		_, err := fmt.Fprintf(s.W, "[%s] %s\n", u.Voice, u.Text)
		return err
	}
	_, err := fmt.Fprintln(s.W, u.Text)
	return err
}

// Voice serializes utterances: one is spoken at a time, the rest wait in
// FIFO order.
type Voice struct {
	key     string
	speaker Speaker

	mu      sync.Mutex
	busy    bool
	pending []chan struct{}
	cancel  context.CancelFunc
}

// NewVoice returns a Voice speaking through s.
func NewVoice(key string, s Speaker) *Voice {
	return &Voice{key: key, speaker: s}
}

func (v *Voice) Key() string { return v.key }

func (v *Voice) Read(context.Context, bool) (ReadResult, error) { return EOFResult, nil }

// Write speaks data, a string, an Utterance, or a chunk of those. It returns
// once the utterance has been spoken.
func (v *Voice) Write(ctx context.Context, data any) error {
	if c, ok := data.(*Chunk); ok {
		for _, item := range c.Items {
			if err := v.Write(ctx, item); err != nil {
				return err
			}
		}
		return nil
	}
	var u Utterance
	switch data := data.(type) {
	case Utterance:
		u = data
	case map[string]any:
		u.Text = fmt.Sprint(data["text"])
		if voice, ok := data["voice"].(string); ok {
			u.Voice = voice
		}
	default:
		u.Text = fmt.Sprint(data)
	}

	if err := v.acquire(ctx); err != nil {
		return err
	}
	defer v.release()
	ctx, cancel := context.WithCancel(ctx)
	v.mu.Lock()
	v.cancel = cancel
	v.mu.Unlock()
	defer cancel()
	return v.speaker.Speak(ctx, u)
}

func (v *Voice) acquire(ctx context.Context) error {
	v.mu.Lock()
	if !v.busy {
		v.busy = true
		v.mu.Unlock()
		return nil
	}
	turn := make(chan struct{})
	v.pending = append(v.pending, turn)
	v.mu.Unlock()

	select {
	case <-turn:
		return nil
	case <-ctx.Done():
		v.mu.Lock()
		defer v.mu.Unlock()
		for i, p := range v.pending {
			if p == turn {
				v.pending = append(v.pending[:i:i], v.pending[i+1:]...)
				return ctxErr(ctx)
			}
		}
		// The turn was handed over concurrently; pass it on.
		v.handOver()
		return ctxErr(ctx)
	}
}

func (v *Voice) release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancel = nil
	v.handOver()
}

// Must be called with v.mu held.
func (v *Voice) handOver() {
	if len(v.pending) == 0 {
		v.busy = false
		return
	}
	close(v.pending[0])
	v.pending = v.pending[1:]
}

// Pending returns the number of utterances waiting for their turn.
func (v *Voice) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// CancelCurrent stops the utterance being spoken, if any.
func (v *Voice) CancelCurrent() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
	}
}

func (v *Voice) CloseRead() {}

func (v *Voice) CloseWrite() {}

func (v *Voice) ReadClosed() bool { return false }

func (v *Voice) WriteClosed() bool { return false }
