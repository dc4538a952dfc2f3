// Package rpc exposes the message channel of a jsh session over JSON-RPC 2.0.
//
// Every message is named by its key. The peer sends inbound messages as
// requests or notifications; requests are answered with a null result once
// the message is delivered. Outbound messages are sent to the peer as
// notifications.
package rpc

import (
	"context"
	"encoding/json"

	gojson "github.com/goccy/go-json"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/npc-cli/jsh/pkg/logutil"
	"github.com/npc-cli/jsh/pkg/msg"
	"github.com/npc-cli/jsh/pkg/session"
)

var logger = logutil.GetLogger("[rpc] ")

var (
	errMethodNotFound = &jsonrpc2.Error{
		Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	errInvalidParams = &jsonrpc2.Error{
		Code: jsonrpc2.CodeInvalidParams, Message: "invalid params"}
)

type (
	lineParams struct {
		Line string `json:"line"`
	}
	historyParams struct {
		HistoryIndex int `json:"historyIndex"`
	}
	linkParams struct {
		LineText string `json:"lineText"`
		LinkText string `json:"linkText"`
	}
)

// Decoders of inbound messages, by key.
var decoders = map[string]func(json.RawMessage) (msg.Message, error){
	msg.SendLine{}.Key(): decodeWith(func(p lineParams) msg.Message {
		return msg.SendLine{Line: p.Line}
	}),
	msg.RequestHistoryLine{}.Key(): decodeWith(func(p historyParams) msg.Message {
		return msg.RequestHistoryLine{Index: p.HistoryIndex}
	}),
	msg.ActivateLink{}.Key(): decodeWith(func(p linkParams) msg.Message {
		return msg.ActivateLink{LineText: p.LineText, LinkText: p.LinkText}
	}),
	msg.SendKillSignal{}.Key(): func(json.RawMessage) (msg.Message, error) {
		return msg.SendKillSignal{}, nil
	},
}

func decodeWith[P any](f func(P) msg.Message) func(json.RawMessage) (msg.Message, error) {
	return func(raw json.RawMessage) (msg.Message, error) {
		var p P
		if len(raw) > 0 {
			if err := gojson.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
		}
		return f(p), nil
	}
}

// Serve relays the messages of sess over stream. The returned channel is
// closed when the peer disconnects, after which nothing more is relayed.
func Serve(ctx context.Context, sess *session.Session, stream jsonrpc2.ObjectStream) <-chan struct{} {
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(
		func(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
			return nil, deliver(sess, req)
		}))
	unsubscribe := sess.IO.Outbound.Subscribe(func(m msg.Message) {
		if err := conn.Notify(ctx, m.Key(), Params(m)); err != nil {
			logger.Debugw("cannot notify", "session", sess.Key, "key", m.Key(), "err", err)
		}
	})
	done := make(chan struct{})
	go func() {
		<-conn.DisconnectNotify()
		unsubscribe()
		logger.Infow("peer disconnected", "session", sess.Key)
		close(done)
	}()
	return done
}

func deliver(sess *session.Session, req *jsonrpc2.Request) error {
	decode, ok := decoders[req.Method]
	if !ok {
		logger.Debugw("unknown method", "session", sess.Key, "method", req.Method)
		return errMethodNotFound
	}
	var raw json.RawMessage
	if req.Params != nil {
		raw = *req.Params
	}
	m, err := decode(raw)
	if err != nil {
		logger.Debugw("bad params", "session", sess.Key, "method", req.Method, "err", err)
		return errInvalidParams
	}
	sess.IO.Inbound.Write(m)
	return nil
}

// Params returns the parameters of the notification carrying m.
func Params(m msg.Message) any {
	switch m := m.(type) {
	case msg.Prompt:
		return map[string]any{"prompt": m.Prompt}
	case msg.Info:
		return map[string]any{"msg": m.Text}
	case msg.Error:
		return map[string]any{"msg": m.Text}
	case msg.Output:
		return map[string]any{"data": m.Data}
	case msg.HistoryLine:
		return map[string]any{"line": m.Line, "nextIndex": m.NextIndex}
	case msg.External:
		return map[string]any{"msg": externalParams(m.Event)}
	}
	return map[string]any{}
}

func externalParams(e msg.ExternalEvent) map[string]any {
	p := map[string]any{"key": e.ExternalKey()}
	switch e := e.(type) {
	case msg.ProcessLeader:
		p["pid"] = e.Pid
		p["act"] = string(e.Act)
	case msg.AutoReSourceFile:
		p["path"] = e.Path
	}
	return p
}
