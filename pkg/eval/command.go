package eval

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/parse"
	"github.com/npc-cli/jsh/pkg/session"
)

// Runs a simple or compound command with its redirects applied to a clone of
// meta. A shell error is annotated with the call stack and the command name.
func (fr *Frame) command(cmd syntax.Command, redirs []*syntax.Redirect, meta *session.Meta) (code int, err error) {
	meta = meta.Clone()
	name := commandName(cmd)
	defer func() {
		if err != nil {
			err = annotate(err, meta.Stack, name)
		}
	}()

	undo, err := fr.redirect(redirs, meta)
	defer undo()
	if err != nil {
		return errs.ExitCode(err), err
	}

	switch cmd := cmd.(type) {
	case *syntax.CallExpr:
		return fr.callExpr(cmd, meta)
	case *syntax.Block:
		return fr.stmts(cmd.Stmts, meta)
	case *syntax.Subshell:
		return fr.ev.Spawn(fr.sess, cmd.Stmts, meta, SpawnOpts{
			By: BySubshell, Src: parse.Source(cmd), LocalPWD: true})
	case *syntax.BinaryCmd:
		return fr.binaryCmd(cmd, meta)
	case *syntax.FuncDecl:
		return fr.funcDecl(cmd)
	case *syntax.DeclClause:
		return fr.declClause(cmd, meta)
	default:
		return 2, &errs.ShellError{Message: "not implemented", ExitCode: 2, Cause: errs.ErrNotImplemented}
	}
}

func commandName(cmd syntax.Command) string {
	switch cmd := cmd.(type) {
	case *syntax.CallExpr:
		if len(cmd.Args) > 0 {
			return cmd.Args[0].Lit()
		}
		return ""
	case *syntax.DeclClause:
		return cmd.Variant.Value
	case *syntax.IfClause:
		return "if"
	case *syntax.WhileClause:
		if cmd.Until {
			return "until"
		}
		return "while"
	case *syntax.ForClause:
		return "for"
	case *syntax.CaseClause:
		return "case"
	case *syntax.TestClause:
		return "[["
	case *syntax.ArithmCmd:
		return "(("
	case *syntax.LetClause:
		return "let"
	case *syntax.TimeClause:
		return "time"
	case *syntax.CoprocClause:
		return "coproc"
	}
	return ""
}

// Prefixes the message of a shell error with the call stack and name. Kill
// signals and errors of vanished readers pass unchanged.
func annotate(err error, stack []string, name string) error {
	if errs.AsKill(err) != nil || errors.Is(err, errs.ReaderGone{}) {
		return err
	}
	sh := errs.Normalize(err).(*errs.ShellError)
	prefix := stack
	if name != "" {
		prefix = append(append([]string(nil), stack...), name)
	}
	if len(prefix) == 0 || sh.Message == "" {
		return sh
	}
	return &errs.ShellError{
		Message:  fmt.Sprintf("%s: %s", strings.Join(prefix, ": "), sh.Message),
		ExitCode: sh.ExitCode,
		Cause:    sh.Cause,
	}
}

func (fr *Frame) callExpr(cmd *syntax.CallExpr, meta *session.Meta) (int, error) {
	for _, as := range cmd.Assigns {
		if err := fr.assign(as, meta, false); err != nil {
			return errs.ExitCode(err), err
		}
	}
	if len(cmd.Args) == 0 {
		return 0, nil
	}
	args, err := fr.fields(cmd.Args, meta)
	if err != nil {
		return errs.ExitCode(err), err
	}
	if len(args) == 0 {
		return 0, nil
	}

	name := args[0]
	if b, ok := builtins[name]; ok {
		return fr.runBuiltin(meta, func(api *API) error { return b.run(api, args[1:]) })
	}
	if f := fr.sess.Func(name); f != nil {
		return fr.ev.Spawn(fr.sess, []*syntax.Stmt{f.Body}, meta.WithStack(name), SpawnOpts{
			By: ByFunction, Src: f.Src, Positionals: args[1:]})
	}
	return fr.runBuiltin(meta, func(api *API) error { return callPath(api, args) })
}

// Resolves the command name as a variable path. A Callable is invoked with
// the other arguments; otherwise every argument is resolved and the values
// found are written out.
func callPath(api *API, args []string) error {
	if c, ok := api.Get(args[:1])[0].(Callable); ok {
		return c.Call(api, args[1:])
	}
	found := false
	for _, v := range api.Get(args) {
		if v == nil {
			continue
		}
		found = true
		if err := api.Put(v); err != nil {
			return err
		}
	}
	if !found {
		return errs.New("not found", 127)
	}
	return nil
}

// Runs a command implemented in Go with an API bound to meta.
func (fr *Frame) runBuiltin(meta *session.Meta, f func(*API) error) (int, error) {
	api := newAPI(fr, meta)
	err := f(api)
	api.close()
	if err != nil {
		return errs.ExitCode(err), err
	}
	return api.exitCode, nil
}

func (fr *Frame) binaryCmd(cmd *syntax.BinaryCmd, meta *session.Meta) (int, error) {
	switch cmd.Op {
	case syntax.AndStmt, syntax.OrStmt:
		code, err := fr.stmt(cmd.X, meta)
		if err != nil {
			return code, err
		}
		fr.sess.SetLastExit(meta, code)
		if (code == 0) == (cmd.Op == syntax.AndStmt) {
			return fr.stmt(cmd.Y, meta)
		}
		return code, nil
	case syntax.Pipe, syntax.PipeAll:
		return fr.pipeline(cmd, meta)
	}
	return 2, &errs.ShellError{Message: "not implemented", ExitCode: 2, Cause: errs.ErrNotImplemented}
}

func (fr *Frame) funcDecl(fd *syntax.FuncDecl) (int, error) {
	if fd.Name == nil {
		return 2, errs.New("function name required", 2)
	}
	fr.sess.AddFunc(&session.Func{
		Name: fd.Name.Value,
		Body: fd.Body,
		Src:  parse.MultilineSource(fd.Body),
	})
	return 0, nil
}
