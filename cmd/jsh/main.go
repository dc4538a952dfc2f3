// Jsh is a POSIX-like shell whose processes are cooperative jobs inside one
// Go process. It runs a line-mode shell on stdio, serves a session over
// JSON-RPC with -rpc, or serves the language protocol with -lsp.
package main

import (
	"os"

	"github.com/npc-cli/jsh/pkg/buildinfo"
	"github.com/npc-cli/jsh/pkg/lsp"
	"github.com/npc-cli/jsh/pkg/prog"
	"github.com/npc-cli/jsh/pkg/rpc"
	"github.com/npc-cli/jsh/pkg/shell"
)

func main() {
	os.Exit(prog.Run(
		[3]*os.File{os.Stdin, os.Stdout, os.Stderr}, os.Args,
		prog.Composite(buildinfo.Program{}, lsp.Program{}, rpc.Program{}, shell.Program{})))
}
