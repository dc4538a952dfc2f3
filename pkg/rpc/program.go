package rpc

import (
	"context"
	"os"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/npc-cli/jsh/pkg/prog"
	"github.com/npc-cli/jsh/pkg/shell"
)

// Program serves one session on stdio, run with -rpc. Messages are framed
// with Content-Length headers.
type Program struct{}

func (Program) Run(fds [3]*os.File, f *prog.Flags, _ []string) error {
	if !f.RPC {
		return prog.ErrNotSuitable
	}
	rt, err := shell.InitRuntime(f.Config, nil)
	if err != nil {
		return err
	}
	sh, err := rt.NewShell(f.Session)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(sh); err != nil {
			logger.Warnw("cannot close runtime", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := Serve(ctx, sh.Session(),
		jsonrpc2.NewBufferedStream(stdio{fds[0], fds[1]}, jsonrpc2.VSCodeObjectCodec{}))
	go sh.RunProfile()
	<-done
	return nil
}

type stdio struct{ in, out *os.File }

func (c stdio) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c stdio) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c stdio) Close() error {
	if err := c.in.Close(); err != nil {
		c.out.Close()
		return err
	}
	return c.out.Close()
}
