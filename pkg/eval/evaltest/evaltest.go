// Package evaltest supports testing the jsh interpreter.
//
// Each test case is built with That, which takes lines of code to run in a
// fresh session, and refined with methods that state the expected outcome.
// The lines are run in turn, like input typed at the prompt; values written
// to stdout and messages written to stderr are captured.
//
//	Test(t,
//		That("a=1; a+=1; echo $a").Puts("2"),
//		That("return 3").ExitsWith(3),
//	)
package evaltest

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/npc-cli/jsh/pkg/config"
	"github.com/npc-cli/jsh/pkg/device"
	"github.com/npc-cli/jsh/pkg/eval"
	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/parse"
	"github.com/npc-cli/jsh/pkg/session"
	"github.com/npc-cli/jsh/pkg/store"
)

// Case is a test case that can be used in Test.
type Case struct {
	codes  []string
	setup  func(*session.Session)
	verify func(*testing.T, *session.Session)
	want   result
}

type result struct {
	out      []any
	stderr   []string
	exitCode int
}

// That returns a new Case with the specified source code. The lines are run
// one after another in the same session.
func That(lines ...string) Case {
	return Case{codes: lines}
}

// Then returns a new Case that runs the given lines after those of c.
func (c Case) Then(lines ...string) Case {
	c.codes = append(append([]string(nil), c.codes...), lines...)
	return c
}

// WithSetup returns a new Case with a setup function run on the session
// before any code.
func (c Case) WithSetup(f func(*session.Session)) Case {
	c.setup = f
	return c
}

// Passes returns a new Case that additionally checks the session with f after
// the code has run.
func (c Case) Passes(f func(*testing.T, *session.Session)) Case {
	c.verify = f
	return c
}

// Puts returns an altered Case that requires the values written to stdout to
// match vs. Values implementing ValueMatcher match by their own rules.
func (c Case) Puts(vs ...any) Case {
	c.want.out = vs
	return c
}

// PrintsStderrWith returns an altered Case that requires some message written
// to stderr to contain s.
func (c Case) PrintsStderrWith(s string) Case {
	c.want.stderr = append(append([]string(nil), c.want.stderr...), s)
	return c
}

// ExitsWith returns an altered Case that requires the exit code of the last
// line to be code. The default is 0.
func (c Case) ExitsWith(code int) Case {
	c.want.exitCode = code
	return c
}

// DoesNothing returns c unchanged. It makes explicit that a case puts nothing
// and exits with 0.
func (c Case) DoesNothing() Case { return c }

// Test is a shorthand for TestWithSetup when no setup is needed.
func Test(t *testing.T, tests ...Case) {
	t.Helper()
	TestWithSetup(t, func(*session.Session) {}, tests...)
}

// TestWithSetup runs test cases. Each case runs in a fresh session, set up by
// setup and then by the setup of the case.
func TestWithSetup(t *testing.T, setup func(*session.Session), tests ...Case) {
	t.Helper()
	for _, tc := range tests {
		t.Run(strings.Join(tc.codes, "\n"), func(t *testing.T) {
			t.Helper()
			ev, sess := NewSession(t)
			setup(sess)
			if tc.setup != nil {
				tc.setup(sess)
			}

			r := evalAndCollect(t, ev, sess, tc.codes)

			if !matchOut(tc.want.out, r.out) {
				t.Errorf("got out %s, want %s", reprs(r.out), reprs(tc.want.out))
			}
			for _, want := range tc.want.stderr {
				if !containsAny(r.stderr, want) {
					t.Errorf("got stderr %q, want a message containing %q", r.stderr, want)
				}
			}
			if r.exitCode != tc.want.exitCode {
				t.Errorf("got exit code %d, want %d", r.exitCode, tc.want.exitCode)
			}
			if tc.verify != nil {
				tc.verify(t, sess)
			}
		})
	}
}

// NewSession returns an Evaler and a session created in a new registry backed
// by an in-memory store. The session is removed when the test finishes.
func NewSession(t testing.TB) (*eval.Evaler, *session.Session) {
	t.Helper()
	reg := session.NewRegistry(config.Default().Shell, store.NewMemStore())
	sess, err := reg.Create(session.NewKey(), nil)
	if err != nil {
		t.Fatal(err)
	}
	sess.SetProfileFinished()
	t.Cleanup(func() { reg.Remove(sess.Key) })
	return eval.NewEvaler(reg), sess
}

// Capture is a device collecting everything written to it.
type Capture struct {
	*device.Var
	mu    sync.Mutex
	items []any
}

// NewCapture returns a Capture with the given key, added to the devices of
// sess.
func NewCapture(sess *session.Session, key string) *Capture {
	c := &Capture{}
	c.Var = device.NewVar(key, device.VarArray, device.VarAccess{
		Get: func() any { return nil },
		Set: func(v any) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.items = append(c.items, v.([]any)...)
			return nil
		},
	})
	sess.Devices.Add(c)
	return c
}

// Items returns a copy of what has been written so far.
func (c *Capture) Items() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.items...)
}

// Run runs one line of code in the session leader of sess, with stdin on
// /dev/null and stdout and stderr on the given devices. A kill signal is
// handled like one reaching the prompt. It returns the exit code.
func Run(t testing.TB, ev *eval.Evaler, sess *session.Session, code string, out, stderr string) int {
	t.Helper()
	f, err := parse.Parse(code, parse.Options{})
	if err != nil {
		t.Fatalf("Parse(%q) error: %s", code, err)
	}
	meta := eval.LeaderMeta(sess)
	meta.FD[0] = device.NullKey
	meta.FD[1] = out
	meta.FD[2] = stderr
	exit, err := ev.Spawn(sess, f.Stmts, meta, eval.SpawnOpts{By: eval.ByRoot, Src: code})
	if kill := errs.AsKill(err); kill != nil {
		ev.HandleTopLevel(sess, kill)
	}
	return exit
}

func evalAndCollect(t *testing.T, ev *eval.Evaler, sess *session.Session, codes []string) result {
	out := NewCapture(sess, "/dev/test-out")
	stderr := NewCapture(sess, "/dev/test-err")

	var r result
	for _, code := range codes {
		r.exitCode = Run(t, ev, sess, code, out.Key(), stderr.Key())
	}
	r.out = out.Items()
	for _, item := range stderr.Items() {
		r.stderr = append(r.stderr, stripAnsi(fmt.Sprint(item)))
	}
	return r
}

var ansiRegexp = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripAnsi(s string) string { return ansiRegexp.ReplaceAllString(s, "") }

func containsAny(messages []string, s string) bool {
	for _, m := range messages {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

func matchOut(want, got []any) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if !match(got[i], want[i]) {
			return false
		}
	}
	return true
}

func match(got, want any) bool {
	if m, ok := want.(ValueMatcher); ok {
		return m.matchValue(got)
	}
	if g, ok := got.(float64); ok {
		if w, ok := want.(float64); ok {
			return matchFloat64(g, w, 0)
		}
	}
	return cmp.Equal(got, want)
}

func reprs(values []any) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%#v", v)
	}
	b.WriteByte(']')
	return b.String()
}
