package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
	"mvdan.cc/sh/v3/syntax"

	"github.com/npc-cli/jsh/pkg/eval"
	"github.com/npc-cli/jsh/pkg/parse"
)

var (
	errMethodNotFound = &jsonrpc2.Error{
		Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	errInvalidParams = &jsonrpc2.Error{
		Code: jsonrpc2.CodeInvalidParams, Message: "invalid params"}
)

// An open document. Names are kept from the last version that parsed, so
// completion keeps working while a statement is half typed.
type document struct {
	content string
	funcs   []string
	vars    []string
}

type server struct {
	docs map[lsp.DocumentURI]*document
}

func newServer() *server {
	return &server{make(map[lsp.DocumentURI]*document)}
}

func handler(s *server) jsonrpc2.Handler {
	return routingHandler(map[string]method{
		"initialize":              s.initialize,
		"textDocument/didOpen":    s.didOpen,
		"textDocument/didChange":  s.didChange,
		"textDocument/didClose":   s.didClose,
		"textDocument/hover":      s.hover,
		"textDocument/completion": s.completion,

		"initialized":                     noop,
		"shutdown":                        noop,
		"exit":                            noop,
		"workspace/didChangeWatchedFiles": noop,
	})
}

type method func(context.Context, jsonrpc2.JSONRPC2, json.RawMessage) (any, error)

func noop(_ context.Context, _ jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	return nil, nil
}

func routingHandler(methods map[string]method) jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		fn, ok := methods[req.Method]
		if !ok {
			logger.Debugw("unknown method", "method", req.Method)
			return nil, errMethodNotFound
		}
		var params json.RawMessage
		if req.Params != nil {
			params = *req.Params
		}
		return fn(ctx, conn, params)
	})
}

// Handler implementations. These are all called synchronously.

func (s *server) initialize(_ context.Context, _ jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	return &lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync: &lsp.TextDocumentSyncOptionsOrKind{
				Options: &lsp.TextDocumentSyncOptions{
					OpenClose: true,
					Change:    lsp.TDSKFull,
				},
			},
			CompletionProvider: &lsp.CompletionOptions{TriggerCharacters: []string{"$", "-"}},
			HoverProvider:      true,
		},
	}, nil
}

func (s *server) didOpen(ctx context.Context, conn jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.DidOpenTextDocumentParams
	if json.Unmarshal(rawParams, &params) != nil {
		return nil, errInvalidParams
	}
	s.update(ctx, conn, params.TextDocument.URI, params.TextDocument.Text)
	return nil, nil
}

func (s *server) didChange(ctx context.Context, conn jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.DidChangeTextDocumentParams
	if json.Unmarshal(rawParams, &params) != nil || len(params.ContentChanges) == 0 {
		return nil, errInvalidParams
	}
	// Only full syncs are advertised, so the last change is the whole text.
	changes := params.ContentChanges
	s.update(ctx, conn, params.TextDocument.URI, changes[len(changes)-1].Text)
	return nil, nil
}

func (s *server) didClose(_ context.Context, _ jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.DidCloseTextDocumentParams
	if json.Unmarshal(rawParams, &params) != nil {
		return nil, errInvalidParams
	}
	delete(s.docs, params.TextDocument.URI)
	return nil, nil
}

func (s *server) update(ctx context.Context, conn jsonrpc2.JSONRPC2, uri lsp.DocumentURI, content string) {
	doc, ok := s.docs[uri]
	if !ok {
		doc = &document{}
		s.docs[uri] = doc
	}
	doc.content = content
	f, err := parse.Parse(content, parse.Options{})
	if err == nil {
		doc.funcs, doc.vars = declaredNames(f)
	}
	go publishDiagnostics(ctx, conn, uri, diagnostics(content, err))
}

func (s *server) hover(_ context.Context, _ jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.TextDocumentPositionParams
	if json.Unmarshal(rawParams, &params) != nil {
		return nil, errInvalidParams
	}
	doc, ok := s.docs[params.TextDocument.URI]
	if !ok {
		return nil, nil
	}
	from, to := wordAt(doc.content, lspPositionToIdx(doc.content, params.Position))
	word := doc.content[from:to]
	text, ok := eval.BuiltinDoc(word)
	if ok {
		text = "builtin " + word + ": " + text
	} else if contains(doc.funcs, word) {
		text = "function " + word
	} else {
		return nil, nil
	}
	rg := lspRange(doc.content, from, to)
	return lsp.Hover{
		Contents: []lsp.MarkedString{{Language: "text", Value: text}},
		Range:    &rg,
	}, nil
}

func (s *server) completion(_ context.Context, _ jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.CompletionParams
	if json.Unmarshal(rawParams, &params) != nil {
		return nil, errInvalidParams
	}
	doc, ok := s.docs[params.TextDocument.URI]
	if !ok {
		return []lsp.CompletionItem{}, nil
	}
	content := doc.content
	dot := lspPositionToIdx(content, params.Position)
	from, _ := wordAt(content, dot)
	prefix := content[from:dot]
	replace := lspRange(content, from, dot)

	items := []lsp.CompletionItem{}
	add := func(label string, kind lsp.CompletionItemKind, detail string) {
		if strings.HasPrefix(label, prefix) {
			items = append(items, lsp.CompletionItem{
				Label:    label,
				Kind:     kind,
				Detail:   detail,
				TextEdit: &lsp.TextEdit{Range: replace, NewText: label},
			})
		}
	}
	switch {
	case strings.HasPrefix(prefix, "$"):
		for _, name := range doc.vars {
			add("$"+name, lsp.CIKVariable, "variable")
		}
	case strings.HasPrefix(prefix, "-"):
		for _, spec := range eval.BuiltinOptions(commandWord(content, from)) {
			if spec.Short != 0 {
				add("-"+string(spec.Short), lsp.CIKValue, "option")
			} else {
				add("--"+spec.Long, lsp.CIKValue, "option")
			}
		}
	default:
		for _, name := range eval.BuiltinNames() {
			summary, _ := eval.BuiltinDoc(name)
			add(name, lsp.CIKFunction, summary)
		}
		for _, name := range doc.funcs {
			add(name, lsp.CIKFunction, "function")
		}
	}
	return items, nil
}

func publishDiagnostics(ctx context.Context, conn jsonrpc2.JSONRPC2, uri lsp.DocumentURI, diags []lsp.Diagnostic) {
	err := conn.Notify(ctx, "textDocument/publishDiagnostics",
		lsp.PublishDiagnosticsParams{URI: uri, Diagnostics: diags})
	if err != nil {
		logger.Debugw("cannot publish diagnostics", "uri", uri, "err", err)
	}
}

func diagnostics(content string, err error) []lsp.Diagnostic {
	if err == nil {
		return []lsp.Diagnostic{}
	}
	var perr *parse.Error
	if !errors.As(err, &perr) {
		return []lsp.Diagnostic{}
	}
	at := int(perr.Offset)
	return []lsp.Diagnostic{{
		Range:    lspRange(content, at, at+1),
		Severity: lsp.Error,
		Source:   "parse",
		Message:  perr.Text,
	}}
}

// Returns the sorted names of the functions and variables declared in f.
func declaredNames(f *syntax.File) (funcs, vars []string) {
	seen := map[string]bool{}
	syntax.Walk(f, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.FuncDecl:
			if !seen["f"+n.Name.Value] {
				seen["f"+n.Name.Value] = true
				funcs = append(funcs, n.Name.Value)
			}
		case *syntax.Assign:
			if n.Name != nil && !seen["v"+n.Name.Value] {
				seen["v"+n.Name.Value] = true
				vars = append(vars, n.Name.Value)
			}
		}
		return true
	})
	sort.Strings(funcs)
	sort.Strings(vars)
	return funcs, vars
}

func isWordBreak(b byte) bool {
	return strings.IndexByte(" \t\r\n;|&()<>`\"'", b) >= 0
}

func isCommandBreak(b byte) bool {
	return strings.IndexByte("\n;|&(`", b) >= 0
}

// Returns the byte range of the word containing idx.
func wordAt(s string, idx int) (from, to int) {
	from, to = idx, idx
	for from > 0 && !isWordBreak(s[from-1]) {
		from--
	}
	for to < len(s) && !isWordBreak(s[to]) {
		to++
	}
	return from, to
}

// Returns the first word of the simple command that the word starting at
// idx belongs to.
func commandWord(s string, idx int) string {
	start := idx
	for start > 0 && !isCommandBreak(s[start-1]) {
		start--
	}
	fields := strings.Fields(s[start:idx])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func lspRange(s string, from, to int) lsp.Range {
	return lsp.Range{
		Start: lspPositionFromIdx(s, from),
		End:   lspPositionFromIdx(s, to),
	}
}

func lspPositionToIdx(s string, pos lsp.Position) int {
	var idx int
	walkString(s, func(i int, p lsp.Position) bool {
		idx = i
		return p.Line < pos.Line || (p.Line == pos.Line && p.Character < pos.Character)
	})
	return idx
}

func lspPositionFromIdx(s string, idx int) lsp.Position {
	var pos lsp.Position
	walkString(s, func(i int, p lsp.Position) bool {
		pos = p
		return i < idx
	})
	return pos
}

// Generates (index, lspPosition) pairs in s, stopping if f returns false.
func walkString(s string, f func(i int, p lsp.Position) bool) {
	var p lsp.Position
	lastCR := false

	for i, r := range s {
		if !f(i, p) {
			return
		}
		switch {
		case r == '\r':
			p.Line++
			p.Character = 0
		case r == '\n':
			if !lastCR {
				p.Line++
				p.Character = 0
			}
		case r <= 0xFFFF:
			// One UTF-16 unit.
			p.Character++
		default:
			p.Character += 2
		}
		lastCR = r == '\r'
	}
	f(len(s), p)
}
