package rpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npc-cli/jsh/pkg/config"
	"github.com/npc-cli/jsh/pkg/msg"
	"github.com/npc-cli/jsh/pkg/shell"
	"github.com/npc-cli/jsh/pkg/testutil"
)

type notification struct {
	method string
	params map[string]any
}

type collector chan notification

func (c collector) Handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) {
	n := notification{method: req.Method}
	if req.Params != nil {
		json.Unmarshal(*req.Params, &n.params)
	}
	c <- n
}

type fixture struct {
	sh    *shell.Shell
	conn  *jsonrpc2.Conn
	notes collector
	done  <-chan struct{}
}

func setup(t *testing.T) *fixture {
	t.Helper()
	rt, err := shell.InitRuntime(config.Default(), nil)
	require.NoError(t, err)
	sh, err := rt.NewShell("")
	require.NoError(t, err)
	sh.Session().SetProfileFinished()

	ctx, cancel := context.WithCancel(context.Background())
	serverSide, clientSide := net.Pipe()
	done := Serve(ctx, sh.Session(), jsonrpc2.NewBufferedStream(serverSide, jsonrpc2.VSCodeObjectCodec{}))

	notes := make(collector, 64)
	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}), notes)
	t.Cleanup(func() {
		conn.Close()
		cancel()
		rt.Close(sh)
	})
	return &fixture{sh, conn, notes, done}
}

// Returns the next notification that is not an external event.
func (f *fixture) next(t *testing.T) notification {
	t.Helper()
	for {
		select {
		case n := <-f.notes:
			if n.method == "external" {
				continue
			}
			return n
		case <-time.After(testutil.Scaled(5 * time.Second)):
			t.Fatal("no notification")
		}
	}
}

func TestSendLine(t *testing.T) {
	f := setup(t)
	err := f.conn.Call(context.Background(), "send-line", map[string]any{"line": "echo hi"}, nil)
	require.NoError(t, err)

	assert.Equal(t, notification{"output", map[string]any{"data": "hi"}}, f.next(t))
	assert.Equal(t, notification{"send-xterm-prompt", map[string]any{"prompt": "$ "}}, f.next(t))
	assert.Equal(t, notification{"line-received-ack", map[string]any{}}, f.next(t))
}

func TestRequestHistoryLine(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.conn.Notify(context.Background(), "send-line", map[string]any{"line": "echo a"}))
	for f.next(t).method != "line-received-ack" {
	}

	require.NoError(t, f.conn.Notify(context.Background(), "req-history-line", map[string]any{"historyIndex": 0}))
	assert.Equal(t,
		notification{"send-history-line", map[string]any{"line": "echo a", "nextIndex": float64(1)}},
		f.next(t))
}

func TestErrors(t *testing.T) {
	f := setup(t)
	var rpcErr *jsonrpc2.Error

	err := f.conn.Call(context.Background(), "no-such-message", nil, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int64(jsonrpc2.CodeMethodNotFound), rpcErr.Code)

	err = f.conn.Call(context.Background(), "send-line", map[string]any{"line": 42}, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int64(jsonrpc2.CodeInvalidParams), rpcErr.Code)

	// Messages without fields need no params.
	assert.NoError(t, f.conn.Call(context.Background(), "send-kill-sig", nil, nil))
}

func TestDisconnect(t *testing.T) {
	f := setup(t)
	f.conn.Close()
	select {
	case <-f.done:
	case <-time.After(testutil.Scaled(5 * time.Second)):
		t.Fatal("Serve did not notice the disconnect")
	}
	// Outbound messages are no longer relayed.
	f.sh.Session().IO.Outbound.Write(msg.Info{Text: "late"})
}

func TestParams(t *testing.T) {
	for _, tc := range []struct {
		m    msg.Message
		want any
	}{
		{msg.Info{Text: "i"}, map[string]any{"msg": "i"}},
		{msg.Error{Text: "e"}, map[string]any{"msg": "e"}},
		{msg.Clear{}, map[string]any{}},
		{msg.External{Event: msg.ProcessLeader{Pid: 0, Act: msg.LeaderPaused}},
			map[string]any{"msg": map[string]any{"key": "process-leader", "pid": 0, "act": "paused"}}},
		{msg.External{Event: msg.AutoReSourceFile{Path: "/home/f.sh"}},
			map[string]any{"msg": map[string]any{"key": "auto-re-source-file", "path": "/home/f.sh"}}},
	} {
		assert.Equal(t, tc.want, Params(tc.m), "Params(%#v)", tc.m)
	}
}
