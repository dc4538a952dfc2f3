package eval

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/syntax"

	"github.com/npc-cli/jsh/pkg/device"
	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/parse"
	"github.com/npc-cli/jsh/pkg/session"
)

// Flattens a | b | c into its stages and the operators between them.
func flattenPipeline(cmd *syntax.BinaryCmd) ([]*syntax.Stmt, []syntax.BinCmdOperator) {
	var stages []*syntax.Stmt
	var ops []syntax.BinCmdOperator
	var visit func(s *syntax.Stmt)
	visit = func(s *syntax.Stmt) {
		if b, ok := s.Cmd.(*syntax.BinaryCmd); ok && isPipe(b.Op) && !s.Negated && !s.Background && len(s.Redirs) == 0 {
			visit(b.X)
			ops = append(ops, b.Op)
			visit(b.Y)
			return
		}
		stages = append(stages, s)
	}
	visit(cmd.X)
	ops = append(ops, cmd.Op)
	visit(cmd.Y)
	return stages, ops
}

func isPipe(op syntax.BinCmdOperator) bool { return op == syntax.Pipe || op == syntax.PipeAll }

// Runs the stages of a pipeline concurrently, each in a child process of the
// same group, connected by fifos. The first stage to fail interrupts the
// others. The exit code is that of the last stage.
func (fr *Frame) pipeline(cmd *syntax.BinaryCmd, meta *session.Meta) (int, error) {
	stages, ops := flattenPipeline(cmd)
	fifos := make([]*device.Fifo, len(stages)-1)
	for i := range fifos {
		fifos[i] = device.NewFifo("/dev/fifo-"+uuid.NewString(), fr.sess.Config().PipeBuffer)
		if err := fr.sess.Devices.Add(fifos[i]); err != nil {
			return 1, err
		}
		defer fr.sess.Devices.Remove(fifos[i].Key())
	}

	jobs := make([]*job, len(stages))
	for i, s := range stages {
		m := meta.Clone()
		if i > 0 {
			m.FD[0] = fifos[i-1].Key()
		}
		if i < len(fifos) {
			m.FD[1] = fifos[i].Key()
			if ops[i] == syntax.PipeAll {
				m.FD[2] = fifos[i].Key()
			}
		}
		j, err := fr.ev.prepare(fr.sess, m, SpawnOpts{By: ByPipe, Src: parse.Source(s)})
		if err != nil {
			for _, prev := range jobs[:i] {
				fr.sess.RemoveProcess(prev.meta.Pid)
			}
			return errs.ExitCode(err), err
		}
		jobs[i] = j
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		firstErr error
		codes    = make([]int, len(stages))
	)
	for i, j := range jobs {
		g.Go(func() error {
			code, err := j.run([]*syntax.Stmt{stages[i]})
			if i < len(fifos) {
				fifos[i].CloseWrite()
			}
			if i > 0 {
				fifos[i-1].CloseRead()
			}
			if errors.Is(err, errs.ReaderGone{}) {
				code, err = 0, nil
			}
			codes[i] = code
			if err == nil {
				return nil
			}

			mu.Lock()
			first := firstErr == nil
			if first {
				firstErr = err
			}
			mu.Unlock()
			if first {
				var others []int
				for k, o := range jobs {
					if k != i {
						others = append(others, o.meta.Pid)
					}
				}
				fr.sess.Kill(others, session.KillOpts{SIGINT: true})
			}
			return err
		})
	}
	g.Wait()
	return codes[len(codes)-1], firstErr
}
