// Package prog provides the entry point to jsh. It parses command-line flags,
// loads the configuration, sets up logging and runs the first suitable
// subprogram: the language server, the JSON-RPC bridge or the line-mode shell.
package prog

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/npc-cli/jsh/pkg/config"
	"github.com/npc-cli/jsh/pkg/logutil"
)

// Flags keeps command-line flags and the configuration they amend.
type Flags struct {
	Log, LogLevel, DB string

	Help, Version, BuildInfo, JSON bool

	LSP, RPC bool
	// Key of the session to create. Empty means a fresh key.
	Session string

	// Config is loaded from the environment, then overridden by the flags
	// above that are set.
	Config *config.Config
}

func newFlagSet(f *Flags) *flag.FlagSet {
	fs := flag.NewFlagSet("jsh", flag.ContinueOnError)
	// Error and usage will be printed explicitly.
	fs.SetOutput(io.Discard)

	fs.StringVar(&f.Log, "log", "", "a file to write the debug log to")
	fs.StringVar(&f.LogLevel, "log-level", "", "minimum level of logged messages")
	fs.StringVar(&f.DB, "db", "", "path to the database; in-memory when empty")

	fs.BoolVar(&f.Help, "help", false, "show usage help and quit")
	fs.BoolVar(&f.Version, "version", false, "show version and quit")
	fs.BoolVar(&f.BuildInfo, "buildinfo", false, "show build info and quit")
	fs.BoolVar(&f.JSON, "json", false, "show output in JSON; useful with -buildinfo")

	fs.BoolVar(&f.LSP, "lsp", false, "run the language server instead of the shell")
	fs.BoolVar(&f.RPC, "rpc", false, "serve the session over JSON-RPC on stdio")
	fs.StringVar(&f.Session, "session", "", "key of the session to create")
	return fs
}

func usage(out io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(out, "Usage: jsh [flags]")
	fmt.Fprintln(out, "Supported flags:")
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// Run parses command-line flags and runs the first applicable subprogram. It
// returns the exit status of the program.
func Run(fds [3]*os.File, args []string, p Program) int {
	f := &Flags{}
	fs := newFlagSet(f)
	err := fs.Parse(args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			// -h is not defined, unlike -help.
			fmt.Fprintln(fds[2], "flag provided but not defined: -h")
		} else {
			fmt.Fprintln(fds[2], err)
		}
		usage(fds[2], fs)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(fds[2], err)
		return 2
	}
	applyFlags(cfg, f)
	f.Config = cfg

	if err := logutil.SetOutputFile(cfg.Logging.File); err != nil {
		fmt.Fprintln(fds[2], "Warning: cannot open log file:", err)
	}
	if err := logutil.SetLevel(cfg.Logging.Level); err != nil {
		fmt.Fprintln(fds[2], "Warning: bad log level:", err)
	}

	if f.Help {
		usage(fds[1], fs)
		return 0
	}

	err = p.Run(fds, f, fs.Args())
	if err == nil {
		return 0
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(fds[2], msg)
	}
	var bad badUsageError
	var exit exitError
	switch {
	case errors.As(err, &bad):
		usage(fds[2], fs)
	case errors.As(err, &exit):
		return exit.exit
	}
	return 2
}

func applyFlags(cfg *config.Config, f *Flags) {
	if f.Log != "" {
		cfg.Logging.File = f.Log
	}
	if f.LogLevel != "" {
		cfg.Logging.Level = f.LogLevel
	}
	if f.DB != "" {
		cfg.Store.DBPath = f.DB
	}
}

// Composite returns a Program that tries each of the given programs,
// terminating at the first one that doesn't return ErrNotSuitable.
func Composite(programs ...Program) Program {
	return compositeProgram(programs)
}

type compositeProgram []Program

func (cp compositeProgram) Run(fds [3]*os.File, f *Flags, args []string) error {
	for _, p := range cp {
		err := p.Run(fds, f, args)
		if err != ErrNotSuitable {
			return err
		}
	}
	return ErrNotSuitable
}

// ErrNotSuitable may be returned by Program.Run to signify that the Program
// should not be run. It is useful when a Program is used in Composite.
var ErrNotSuitable = errors.New("internal error: no suitable subprogram")

// BadUsage returns an error that makes Run print msg and the usage, and exit
// with 2.
func BadUsage(msg string) error { return badUsageError{msg} }

type badUsageError struct{ msg string }

func (e badUsageError) Error() string { return e.msg }

// Exit returns an error that makes Run exit with the given code without
// printing anything. Exit(0) returns nil.
func Exit(exit int) error {
	if exit == 0 {
		return nil
	}
	return exitError{exit}
}

type exitError struct{ exit int }

func (e exitError) Error() string { return "" }

// Program is a subprogram.
type Program interface {
	Run(fds [3]*os.File, f *Flags, args []string) error
}
