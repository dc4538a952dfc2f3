// Package progtest runs [prog.Program] instances on pipes and checks what
// they write.
package progtest

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/npc-cli/jsh/pkg/prog"
)

// Case is a test case for Test, built with ThatJsh.
type Case struct {
	args  []string
	stdin string
	want  result
}

type result struct {
	exitCode       int
	stdout, stderr outputMatcher
}

type outputMatcher struct {
	text     string
	contains bool
}

func (m outputMatcher) matches(s string) bool {
	if m.contains {
		return strings.Contains(s, m.text)
	}
	return s == m.text
}

// ThatJsh returns a Case running the program with the given arguments after
// "jsh". By default it expects nothing on stdout and stderr, and exit 0.
func ThatJsh(args ...string) Case {
	return Case{args: append([]string{"jsh"}, args...)}
}

// WithStdin returns an altered Case whose stdin carries s.
func (c Case) WithStdin(s string) Case {
	c.stdin = s
	return c
}

// DoesNothing returns c unchanged. It is for readability.
func (c Case) DoesNothing() Case { return c }

// ExitsWith returns an altered Case requiring the given exit code.
func (c Case) ExitsWith(code int) Case {
	c.want.exitCode = code
	return c
}

// WritesStdout returns an altered Case requiring stdout to be exactly s.
func (c Case) WritesStdout(s string) Case {
	c.want.stdout = outputMatcher{s, false}
	return c
}

// WritesStdoutContaining returns an altered Case requiring stdout to contain
// s.
func (c Case) WritesStdoutContaining(s string) Case {
	c.want.stdout = outputMatcher{s, true}
	return c
}

// WritesStderr returns an altered Case requiring stderr to be exactly s.
func (c Case) WritesStderr(s string) Case {
	c.want.stderr = outputMatcher{s, false}
	return c
}

// WritesStderrContaining returns an altered Case requiring stderr to contain
// s.
func (c Case) WritesStderrContaining(s string) Case {
	c.want.stderr = outputMatcher{s, true}
	return c
}

// Test runs p for every case and checks the outcome.
func Test(t *testing.T, p prog.Program, cases ...Case) {
	t.Helper()
	for _, c := range cases {
		t.Run(strings.Join(c.args, " "), func(t *testing.T) {
			t.Helper()
			exit, stdout, stderr := Run(t, p, c.stdin, c.args...)
			if exit != c.want.exitCode {
				t.Errorf("got exit %v, want %v", exit, c.want.exitCode)
			}
			if !c.want.stdout.matches(stdout) {
				t.Errorf("got stdout %q, want %q (contains: %v)", stdout, c.want.stdout.text, c.want.stdout.contains)
			}
			if !c.want.stderr.matches(stderr) {
				t.Errorf("got stderr %q, want %q (contains: %v)", stderr, c.want.stderr.text, c.want.stderr.contains)
			}
		})
	}
}

// Run runs p with the given stdin and arguments, returning the exit code and
// everything written to stdout and stderr.
func Run(t testing.TB, p prog.Program, stdin string, args ...string) (int, string, string) {
	t.Helper()
	r0, w0 := pipe(t)
	r1, w1 := pipe(t)
	r2, w2 := pipe(t)

	go func() {
		io.WriteString(w0, stdin)
		w0.Close()
	}()
	outCh, errCh := readAll(r1), readAll(r2)

	exit := prog.Run([3]*os.File{r0, w1, w2}, args, p)
	w1.Close()
	w2.Close()
	return exit, <-outCh, <-errCh
}

func pipe(t testing.TB) (*os.File, *os.File) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

// Reads in the background so that a program writing more than a pipe can
// buffer doesn't block.
func readAll(r io.Reader) <-chan string {
	ch := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(r)
		ch <- string(data)
	}()
	return ch
}
