// Package errs declares the error types used by the jsh runtime.
package errs

import (
	"errors"
	"fmt"
)

// DefaultKillCode is the exit code of a process that has been interrupted.
const DefaultKillCode = 130

// ShellError is a recoverable error raised while expanding or running a
// command. It carries the exit code the failing command should report.
type ShellError struct {
	Message  string
	ExitCode int
	Cause    error
}

// New returns a *ShellError with the given message and exit code.
func New(message string, exitCode int) *ShellError {
	return &ShellError{Message: message, ExitCode: exitCode}
}

// Newf is like New, but formats the message.
func Newf(exitCode int, format string, args ...any) *ShellError {
	return &ShellError{Message: fmt.Sprintf(format, args...), ExitCode: exitCode}
}

func (e *ShellError) Error() string { return e.Message }

func (e *ShellError) Unwrap() error { return e.Cause }

// KillSignal unwinds the call chain of a process. It is not user-facing.
//
// Depth counts the process frames that should consume the signal: each process
// boundary it crosses decrements Depth, and the boundary where it reaches 0
// stops it. A Depth of 0 means the signal unwinds to the top.
type KillSignal struct {
	Pid        int
	SessionKey string
	ExitCode   int
	Depth      int
}

// NewKill returns a *KillSignal for the given process with the default exit
// code.
func NewKill(sessionKey string, pid int) *KillSignal {
	return &KillSignal{Pid: pid, SessionKey: sessionKey, ExitCode: DefaultKillCode}
}

func (k *KillSignal) Error() string {
	return fmt.Sprintf("killed: %s (%d) exit %d", k.SessionKey, k.Pid, k.ExitCode)
}

// ReaderGone is raised when writing to a pipe whose reader has stopped reading.
type ReaderGone struct{}

func (ReaderGone) Error() string { return "reader gone" }

// ErrNotImplemented is the cause of errors raised for syntax that jsh parses
// but does not run.
var ErrNotImplemented = errors.New("not implemented")

// Normalize converts err into either a *KillSignal or a *ShellError. Other
// errors are wrapped into a *ShellError with exit code 1.
func Normalize(err error) error {
	var kill *KillSignal
	if errors.As(err, &kill) {
		return kill
	}
	var sh *ShellError
	if errors.As(err, &sh) {
		return sh
	}
	return &ShellError{Message: err.Error(), ExitCode: 1, Cause: err}
}

// AsKill returns the *KillSignal in err's chain, or nil.
func AsKill(err error) *KillSignal {
	var kill *KillSignal
	if errors.As(err, &kill) {
		return kill
	}
	return nil
}

// ExitCode returns the exit code carried by err. A nil error has exit code 0,
// and errors of unknown types have exit code 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var kill *KillSignal
	if errors.As(err, &kill) {
		return kill.ExitCode
	}
	var sh *ShellError
	if errors.As(err, &sh) {
		return sh.ExitCode
	}
	return 1
}
