package lsp

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npc-cli/jsh/pkg/testutil"
)

type client struct {
	conn  *jsonrpc2.Conn
	diags chan lsp.PublishDiagnosticsParams
}

type clientHandler struct{ diags chan lsp.PublishDiagnosticsParams }

func (h clientHandler) Handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Method != "textDocument/publishDiagnostics" || req.Params == nil {
		return
	}
	var params lsp.PublishDiagnosticsParams
	if json.Unmarshal(*req.Params, &params) == nil {
		h.diags <- params
	}
}

func setup(t *testing.T) *client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	serverSide, clientSide := net.Pipe()
	Serve(ctx, serverSide)

	diags := make(chan lsp.PublishDiagnosticsParams, 16)
	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}),
		clientHandler{diags})
	t.Cleanup(func() { conn.Close() })
	return &client{conn, diags}
}

func (c *client) open(t *testing.T, uri lsp.DocumentURI, text string) lsp.PublishDiagnosticsParams {
	t.Helper()
	err := c.conn.Notify(context.Background(), "textDocument/didOpen", lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{URI: uri, LanguageID: "sh", Text: text}})
	require.NoError(t, err)
	return c.nextDiags(t)
}

func (c *client) nextDiags(t *testing.T) lsp.PublishDiagnosticsParams {
	t.Helper()
	select {
	case d := <-c.diags:
		return d
	case <-time.After(testutil.Scaled(5 * time.Second)):
		t.Fatal("no diagnostics published")
		return lsp.PublishDiagnosticsParams{}
	}
}

func (c *client) complete(t *testing.T, uri lsp.DocumentURI, line, char int) []lsp.CompletionItem {
	t.Helper()
	var items []lsp.CompletionItem
	err := c.conn.Call(context.Background(), "textDocument/completion", lsp.CompletionParams{
		TextDocumentPositionParams: lsp.TextDocumentPositionParams{
			TextDocument: lsp.TextDocumentIdentifier{URI: uri},
			Position:     lsp.Position{Line: line, Character: char},
		}}, &items)
	require.NoError(t, err)
	return items
}

func labels(items []lsp.CompletionItem) []string {
	var out []string
	for _, item := range items {
		out = append(out, item.Label)
	}
	return out
}

func TestInitialize(t *testing.T) {
	c := setup(t)
	var result lsp.InitializeResult
	require.NoError(t, c.conn.Call(context.Background(), "initialize", lsp.InitializeParams{}, &result))
	assert.True(t, result.Capabilities.HoverProvider)
	require.NotNil(t, result.Capabilities.CompletionProvider)
}

func TestUnknownMethod(t *testing.T) {
	c := setup(t)
	err := c.conn.Call(context.Background(), "workspace/symbol", nil, nil)
	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int64(jsonrpc2.CodeMethodNotFound), rpcErr.Code)
}

func TestDiagnostics(t *testing.T) {
	c := setup(t)
	d := c.open(t, "file:///ok.sh", "echo ok\n")
	assert.Empty(t, d.Diagnostics)

	err := c.conn.Notify(context.Background(), "textDocument/didChange", lsp.DidChangeTextDocumentParams{
		TextDocument:   lsp.VersionedTextDocumentIdentifier{TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: "file:///ok.sh"}},
		ContentChanges: []lsp.TextDocumentContentChangeEvent{{Text: "echo a\necho )"}},
	})
	require.NoError(t, err)
	d = c.nextDiags(t)
	require.Len(t, d.Diagnostics, 1)
	diag := d.Diagnostics[0]
	assert.Equal(t, lsp.Error, diag.Severity)
	assert.Equal(t, "parse", diag.Source)
	assert.Equal(t, 1, diag.Range.Start.Line)
}

func TestCompletion_Commands(t *testing.T) {
	c := setup(t)
	c.open(t, "file:///a.sh", "greet() { echo hi; }\ngr")

	items := c.complete(t, "file:///a.sh", 1, 2)
	assert.Equal(t, []string{"greet"}, labels(items))
	assert.Equal(t, lsp.CIKFunction, items[0].Kind)

	// Declarations survive an edit that does not parse.
	c.open(t, "file:///a.sh", "greet() { echo hi; }\necho 'x\nec")
	assert.Contains(t, labels(c.complete(t, "file:///a.sh", 2, 2)), "echo")
}

func TestCompletion_Variables(t *testing.T) {
	c := setup(t)
	c.open(t, "file:///v.sh", "name=1\nnumber=2\nother=3\necho $n")

	items := c.complete(t, "file:///v.sh", 3, 7)
	assert.Equal(t, []string{"$name", "$number"}, labels(items))
	assert.Equal(t, lsp.CIKVariable, items[0].Kind)
	assert.Equal(t, lsp.Range{Start: lsp.Position{Line: 3, Character: 5}, End: lsp.Position{Line: 3, Character: 7}},
		items[0].TextEdit.Range)
}

func TestCompletion_Options(t *testing.T) {
	c := setup(t)
	c.open(t, "file:///o.sh", "ls -")

	assert.Equal(t, []string{"-1", "-l", "-a"}, labels(c.complete(t, "file:///o.sh", 0, 4)))
}

func TestHover(t *testing.T) {
	c := setup(t)
	c.open(t, "file:///h.sh", "greet() { :; }\necho hi; greet")

	hover := func(line, char int) *lsp.Hover {
		var h *lsp.Hover
		err := c.conn.Call(context.Background(), "textDocument/hover", lsp.TextDocumentPositionParams{
			TextDocument: lsp.TextDocumentIdentifier{URI: "file:///h.sh"},
			Position:     lsp.Position{Line: line, Character: char},
		}, &h)
		require.NoError(t, err)
		return h
	}

	h := hover(1, 1)
	require.NotNil(t, h)
	require.Len(t, h.Contents, 1)
	assert.Contains(t, h.Contents[0].Value, "builtin echo")

	h = hover(1, 11)
	require.NotNil(t, h)
	assert.Equal(t, "function greet", h.Contents[0].Value)

	assert.Nil(t, hover(1, 6))
}

func TestWordAt(t *testing.T) {
	for _, tc := range []struct {
		s        string
		idx      int
		from, to int
	}{
		{"echo hi", 2, 0, 4},
		{"echo hi", 5, 5, 7},
		{"a|bc", 4, 2, 4},
		{"", 0, 0, 0},
	} {
		from, to := wordAt(tc.s, tc.idx)
		assert.Equal(t, [2]int{tc.from, tc.to}, [2]int{from, to}, "wordAt(%q, %d)", tc.s, tc.idx)
	}
	assert.Equal(t, "ls", commandWord("x; ls -a -", 10))
}

func TestPositions(t *testing.T) {
	s := "a\r\nb😀c"
	assert.Equal(t, lsp.Position{Line: 1, Character: 0}, lspPositionFromIdx(s, 3))
	assert.Equal(t, lsp.Position{Line: 1, Character: 3}, lspPositionFromIdx(s, 8))
	assert.Equal(t, 8, lspPositionToIdx(s, lsp.Position{Line: 1, Character: 3}))
}
