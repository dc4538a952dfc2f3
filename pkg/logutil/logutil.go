// Package logutil provides logging utilities.
package logutil

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	out   = &switchWriter{w: io.Discard}
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
	base  = zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()), out, level))
)

// GetLogger gets a logger with the given prefix. The prefix is trimmed of
// brackets and spaces and used as the logger name. Loggers discard everything
// until SetOutput or SetOutputFile is called.
func GetLogger(prefix string) *zap.SugaredLogger {
	return base.Named(strings.Trim(prefix, "[] ")).Sugar()
}

// SetOutput redirects the output of all loggers obtained with GetLogger to the
// new io.Writer.
func SetOutput(w io.Writer) {
	out.set(w, nil)
}

// SetOutputFile redirects the output of all loggers obtained with GetLogger to
// the named file. If the old output was a file opened by SetOutputFile, it is
// closed. The new file is truncated. SetOutputFile("") is equivalent to
// SetOutput(io.Discard).
func SetOutputFile(fname string) error {
	if fname == "" {
		SetOutput(io.Discard)
		return nil
	}
	file, err := os.OpenFile(fname, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	out.set(file, file)
	return nil
}

// SetLevel sets the minimum level of all loggers. It accepts the level names
// understood by zap ("debug", "info", "warn", "error").
func SetLevel(name string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.CallerKey = ""
	return cfg
}

// switchWriter is a zapcore.WriteSyncer whose destination can be replaced
// while loggers are in use.
type switchWriter struct {
	mu    sync.Mutex
	w     io.Writer
	owned *os.File
}

func (s *switchWriter) set(w io.Writer, owned *os.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owned != nil {
		s.owned.Close()
	}
	s.w, s.owned = w, owned
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owned != nil {
		return s.owned.Sync()
	}
	return nil
}
