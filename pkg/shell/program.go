package shell

import (
	"context"
	"os"

	"github.com/npc-cli/jsh/pkg/device"
	"github.com/npc-cli/jsh/pkg/eval"
	"github.com/npc-cli/jsh/pkg/prog"
	"github.com/npc-cli/jsh/pkg/session"
	"github.com/npc-cli/jsh/pkg/sys"
)

// Program is the line-mode shell on stdio. It is the fallback subprogram and
// takes no arguments.
type Program struct{}

func (Program) Run(fds [3]*os.File, f *prog.Flags, args []string) error {
	if len(args) > 0 {
		return prog.BadUsage("arguments are not supported")
	}
	rt, err := InitRuntime(f.Config, device.WriterSpeaker{W: fds[2]})
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

	h := NewStdioHost(sh.Session(), fds[0], fds[1])
	stopRender := h.Render()
	defer stopRender()

	sigCh, stopSignals := sys.NotifySignals()
	defer stopSignals()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relaySignals(ctx, sigCh, h, fds[1])

	sh.RunProfile()
	if err := h.Run(ctx); err != nil {
		return err
	}
	return prog.Exit(sh.Session().LastExit(&session.Meta{}))
}

func relaySignals(ctx context.Context, sigCh <-chan os.Signal, h *Host, out *os.File) {
	for {
		select {
		case sig := <-sigCh:
			if sig == sys.SIGWINCH {
				if _, col := sys.WinSize(out); col > 0 {
					h.sess.SetVar(eval.LeaderMeta(h.sess), "COLUMNS", float64(col))
				}
				continue
			}
			logger.Debugw("relaying signal", "session", h.sess.Key, "signal", sig)
			h.Interrupt()
		case <-ctx.Done():
			return
		}
	}
}
