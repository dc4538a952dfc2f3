package eval

import (
	"sort"

	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/getopt"
)

// A command implemented in Go.
type builtin struct {
	run  func(api *API, args []string) error
	opts []*getopt.OptionSpec
	// One-line summary.
	doc string
}

var builtins = map[string]*builtin{}

func addBuiltins(m map[string]*builtin) {
	for name, b := range m {
		builtins[name] = b
	}
}

// BuiltinNames returns the sorted names of the builtin commands.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuiltinDoc returns the summary of a builtin command.
func BuiltinDoc(name string) (string, bool) {
	b, ok := builtins[name]
	if !ok {
		return "", false
	}
	return b.doc, true
}

// BuiltinOptions returns the options a builtin command accepts.
func BuiltinOptions(name string) []*getopt.OptionSpec {
	if b, ok := builtins[name]; ok {
		return b.opts
	}
	return nil
}

// Parses args against the options of a builtin. Unknown options are errors.
func parseOpts(args []string, specs []*getopt.OptionSpec) (getopt.Opts, []string, error) {
	opts, operands := getopt.Parse(args, specs)
	if unknown := opts.Unknown(); len(unknown) > 0 {
		return opts, nil, errs.Newf(2, "unknown option %s", unknown[0])
	}
	return opts, operands, nil
}
