package prog_test

import (
	"os"
	"testing"

	. "github.com/npc-cli/jsh/pkg/prog"
	"github.com/npc-cli/jsh/pkg/prog/progtest"
)

var (
	Test    = progtest.Test
	ThatJsh = progtest.ThatJsh
)

func TestCommonFlagHandling(t *testing.T) {
	Test(t, testProgram{},
		ThatJsh("-bad-flag").
			ExitsWith(2).
			WritesStderrContaining("flag provided but not defined: -bad-flag\nUsage:"),
		// -h is treated as a bad flag
		ThatJsh("-h").
			ExitsWith(2).
			WritesStderrContaining("flag provided but not defined: -h\nUsage:"),

		ThatJsh("-help").
			WritesStdoutContaining("Usage: jsh [flags]"),
		ThatJsh("-log-level", "nonsense").
			WritesStderrContaining("Warning: bad log level"),
	)
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Setenv("JSH_DB", "from-env.db")
	t.Setenv("JSH_HISTORY_MAX", "7")
	var got *Flags
	p := flagsProgram{func(f *Flags) { got = f }}

	Test(t, p, ThatJsh("-db", "from-flag.db", "-session", "tty-x"))
	if got.Config.Store.DBPath != "from-flag.db" {
		t.Errorf("DBPath = %q, want the flag value", got.Config.Store.DBPath)
	}
	if got.Config.Shell.HistoryMax != 7 {
		t.Errorf("HistoryMax = %d, want the environment value", got.Config.Shell.HistoryMax)
	}
	if got.Session != "tty-x" {
		t.Errorf("Session = %q, want tty-x", got.Session)
	}
}

func TestBadConfig(t *testing.T) {
	t.Setenv("JSH_HISTORY_MAX", "lots")
	Test(t, testProgram{},
		ThatJsh().ExitsWith(2).WritesStderrContaining("failed to load config"),
	)
}

func TestNoSuitableSubprogram(t *testing.T) {
	Test(t, testProgram{notSuitable: true},
		ThatJsh().
			ExitsWith(2).
			WritesStderr("internal error: no suitable subprogram\n"),
	)
}

func TestComposite(t *testing.T) {
	Test(t,
		Composite(testProgram{notSuitable: true}, testProgram{writeOut: "program 2"}),
		ThatJsh().WritesStdout("program 2"),
	)
}

func TestComposite_NoSuitableSubprogram(t *testing.T) {
	Test(t,
		Composite(testProgram{notSuitable: true}, testProgram{notSuitable: true}),
		ThatJsh().
			ExitsWith(2).
			WritesStderr("internal error: no suitable subprogram\n"),
	)
}

func TestComposite_PreferEarlierSubprogram(t *testing.T) {
	Test(t,
		Composite(
			testProgram{writeOut: "program 1"}, testProgram{writeOut: "program 2"}),
		ThatJsh().WritesStdout("program 1"),
	)
}

func TestBadUsageError(t *testing.T) {
	Test(t,
		testProgram{returnErr: BadUsage("lorem ipsum")},
		ThatJsh().ExitsWith(2).WritesStderrContaining("lorem ipsum\n"),
	)
}

func TestExitError(t *testing.T) {
	Test(t, testProgram{returnErr: Exit(3)},
		ThatJsh().ExitsWith(3),
	)
}

func TestExitError_0(t *testing.T) {
	Test(t, testProgram{returnErr: Exit(0)},
		ThatJsh().ExitsWith(0),
	)
}

type testProgram struct {
	notSuitable bool
	writeOut    string
	returnErr   error
}

func (p testProgram) Run(fds [3]*os.File, _ *Flags, args []string) error {
	if p.notSuitable {
		return ErrNotSuitable
	}
	fds[1].WriteString(p.writeOut)
	return p.returnErr
}

type flagsProgram struct{ f func(*Flags) }

func (p flagsProgram) Run(_ [3]*os.File, f *Flags, _ []string) error {
	p.f(f)
	return nil
}
