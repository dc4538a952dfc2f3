// Package parse wraps the shell parser of mvdan.cc/sh for jsh: it detects
// incomplete interactive input, caches parsed sources and reconstructs source
// text from syntax trees.
package parse

import (
	"bytes"
	"errors"
	"strings"
	"sync"

	"mvdan.cc/sh/v3/syntax"
)

// Options configures a parse.
type Options struct {
	// Interactive makes Parse return (nil, nil) when the source is an
	// incomplete statement.
	Interactive   bool
	KeepComments  bool
	Variant       syntax.LangVariant
	StopAt        string
	RecoverErrors int
}

// Error is a parse error.
type Error struct {
	Filename   string
	Incomplete bool
	Text       string
	// Position of the error. Line and Col start at 1 and are zero when
	// unknown; Offset is in bytes.
	Line, Col uint
	Offset    uint
}

func (e *Error) Error() string { return e.Text }

// Parse parses src.
func Parse(src string, opts Options) (*syntax.File, error) {
	if opts.Interactive {
		incomplete, err := incompleteInteractive(src, opts)
		if incomplete {
			return nil, nil
		}
		if err != nil {
			return nil, convertError(err)
		}
	}
	f, err := newParser(opts).Parse(strings.NewReader(src), "")
	if err != nil {
		return nil, convertError(err)
	}
	return f, nil
}

func newParser(opts Options) *syntax.Parser {
	variant := opts.Variant
	if variant == 0 {
		variant = syntax.LangBash
	}
	options := []syntax.ParserOption{
		syntax.KeepComments(opts.KeepComments), syntax.Variant(variant)}
	if opts.StopAt != "" {
		options = append(options, syntax.StopAt(opts.StopAt))
	}
	if opts.RecoverErrors != 0 {
		options = append(options, syntax.RecoverErrors(opts.RecoverErrors))
	}
	return syntax.NewParser(options...)
}

// Reports whether src stops in the middle of a statement. The interactive
// parser expects a terminating newline.
func incompleteInteractive(src string, opts Options) (bool, error) {
	if !strings.HasSuffix(src, "\n") {
		src += "\n"
	}
	p := newParser(opts)
	incomplete := false
	err := p.Interactive(strings.NewReader(src), func([]*syntax.Stmt) bool {
		incomplete = p.Incomplete()
		return true
	})
	var perr syntax.ParseError
	if errors.As(err, &perr) && perr.Incomplete {
		return true, nil
	}
	return incomplete, err
}

func convertError(err error) error {
	var perr syntax.ParseError
	if errors.As(err, &perr) {
		return &Error{Filename: perr.Filename, Incomplete: perr.Incomplete, Text: perr.Error(),
			Line: perr.Pos.Line(), Col: perr.Pos.Col(), Offset: perr.Pos.Offset()}
	}
	return &Error{Text: err.Error()}
}

// Source reconstructs the source of node on a single line.
func Source(node syntax.Node) string {
	return print(node, syntax.SingleLine(true))
}

// MultilineSource reconstructs the source of node, keeping line breaks.
func MultilineSource(node syntax.Node) string {
	return print(node, syntax.Indent(2))
}

func print(node syntax.Node, opt syntax.PrinterOption) string {
	var buf bytes.Buffer
	if err := syntax.NewPrinter(opt).Print(&buf, node); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Service parses sources, caching the trees of non-interactive parses. Trees
// are never mutated after parsing, so cached trees are shared.
type Service struct {
	mu    sync.Mutex
	cache map[string]*syntax.File
}

// NewService returns a Service with an empty cache.
func NewService() *Service {
	return &Service{cache: make(map[string]*syntax.File)}
}

// Parse parses src non-interactively, using the cache when possible.
func (s *Service) Parse(src string) (*syntax.File, error) {
	s.mu.Lock()
	f, ok := s.cache[src]
	s.mu.Unlock()
	if ok {
		return f, nil
	}
	f, err := Parse(src, Options{})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[src] = f
	s.mu.Unlock()
	return f, nil
}

// Status is the outcome of TryParseBuffer.
type Status int

const (
	Complete Status = iota
	Incomplete
	Failed
)

// BufferResult is the result of TryParseBuffer.
type BufferResult struct {
	Status Status
	// Set when Status is Complete.
	File *syntax.File
	Src  string
	// Set when Status is Failed.
	Err error
}

// TryParseBuffer parses the lines of an interactive input buffer.
func (s *Service) TryParseBuffer(lines []string) BufferResult {
	src := strings.Join(lines, "\n") + "\n"
	f, err := Parse(src, Options{Interactive: true})
	switch {
	case err != nil:
		return BufferResult{Status: Failed, Err: err}
	case f == nil:
		return BufferResult{Status: Incomplete}
	default:
		return BufferResult{Status: Complete, File: f, Src: src}
	}
}
