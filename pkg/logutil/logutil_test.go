package logutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetLogger_SetOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)

	GetLogger("[eval] ").Infow("spawned", "pid", 3)

	got := buf.String()
	if !strings.Contains(got, "eval") || !strings.Contains(got, "spawned") ||
		!strings.Contains(got, `"pid": 3`) {
		t.Errorf("log output %q missing name, message or field", got)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)
	if err := SetLevel("warn"); err != nil {
		t.Fatal(err)
	}
	defer SetLevel("info")

	GetLogger("x").Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
	if SetLevel("bogus") == nil {
		t.Errorf("SetLevel accepted an invalid level")
	}
}

func TestSetOutputFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "log")
	if err := SetOutputFile(fname); err != nil {
		t.Fatal(err)
	}
	GetLogger("[shell] ").Info("hello")
	SetOutputFile("")

	content, err := os.ReadFile(fname)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "hello") {
		t.Errorf("log file content %q, want it to contain hello", content)
	}
}
