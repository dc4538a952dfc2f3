// Package lsp implements a language server for jsh scripts.
package lsp

import (
	"context"
	"io"
	"os"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/npc-cli/jsh/pkg/logutil"
	"github.com/npc-cli/jsh/pkg/prog"
)

var logger = logutil.GetLogger("[lsp] ")

// Program is the LSP subprogram, run with -lsp.
type Program struct{}

func (Program) Run(fds [3]*os.File, f *prog.Flags, _ []string) error {
	if !f.LSP {
		return prog.ErrNotSuitable
	}
	<-Serve(context.Background(), transport{fds[0], fds[1]})
	return nil
}

// Serve serves the language server protocol on rwc. The returned channel is
// closed when the client disconnects.
func Serve(ctx context.Context, rwc io.ReadWriteCloser) <-chan struct{} {
	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{}),
		handler(newServer()))
	return conn.DisconnectNotify()
}

type transport struct{ in, out *os.File }

func (c transport) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c transport) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c transport) Close() error {
	if err := c.in.Close(); err != nil {
		c.out.Close()
		return err
	}
	return c.out.Close()
}
