package eval_test

import (
	"testing"

	. "github.com/npc-cli/jsh/pkg/eval/evaltest"
)

func TestPipeline(t *testing.T) {
	Test(t,
		That("echo a | read").Puts("a"),
		That("echo -a 1 2 | read | read").Puts([]any{"1", "2"}),
		That("echo -n 1 2 3 | read x; echo $x").Puts("1"),
		That("echo a | false").ExitsWith(1),
		That("false | echo a").Puts("a"),
		That("echo a | nosuch").ExitsWith(127).PrintsStderrWith("nosuch: not found"),
		That("f() { read; read; }; echo -n 1 2 | f").Puts(1.0, 2.0),
		That("(echo a; echo b) | { read; read; }").Puts("a", "b"),
	)
}
