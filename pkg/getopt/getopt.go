// Package getopt implements the option parser of jsh builtins.
//
// Builtin options are boolean switches. Short options may be chained (-la),
// long options start with two dashes (--STOP). Options may appear anywhere
// among the arguments; parsing stops after "--". A lone "-" is an operand, and
// so is a negative number unless its first digit is a short option of the
// builtin (ls -1).
package getopt

import (
	"strconv"
	"strings"
)

// OptionSpec is a builtin option.
type OptionSpec struct {
	// Short option. Set to 0 for long-only.
	Short rune
	// Long option. Set to "" for short-only.
	Long string
}

// Name returns the long name of the option if it has one, and its short name
// otherwise.
func (s *OptionSpec) Name() string {
	if s.Long != "" {
		return s.Long
	}
	return string(s.Short)
}

// Option represents a parsed option.
type Option struct {
	Spec    *OptionSpec
	Unknown bool
	Long    bool
}

func (o *Option) String() string {
	if o.Long {
		return "--" + o.Spec.Long
	}
	return "-" + string(o.Spec.Short)
}

// Opts is the set of options found by Parse.
type Opts struct {
	Options []*Option
	set     map[string]bool
}

// Has reports whether the option with the given name was given. The name is
// the long name of a spec, or its short name as a one-character string.
func (o Opts) Has(name string) bool { return o.set[name] }

// Unknown returns the options matching no spec.
func (o Opts) Unknown() []*Option {
	var unknown []*Option
	for _, opt := range o.Options {
		if opt.Unknown {
			unknown = append(unknown, opt)
		}
	}
	return unknown
}

// Parse separates options from operands. Unknown options are kept, marked as
// such, and left for the caller to judge.
func Parse(args []string, specs []*OptionSpec) (Opts, []string) {
	opts := Opts{set: map[string]bool{}}
	var operands []string
	add := func(opt *Option) {
		opts.Options = append(opts.Options, opt)
		opts.set[opt.Spec.Name()] = true
		if opt.Spec.Short != 0 {
			opts.set[string(opt.Spec.Short)] = true
		}
	}
	stop := false
	for _, arg := range args {
		switch {
		case stop || !isOption(arg, specs):
			operands = append(operands, arg)
		case arg == "--":
			stop = true
		case strings.HasPrefix(arg, "--"):
			add(parseLong(arg[2:], specs))
		default:
			for _, r := range arg[1:] {
				add(parseShort(r, specs))
			}
		}
	}
	return opts, operands
}

func isOption(arg string, specs []*OptionSpec) bool {
	if len(arg) < 2 || arg[0] != '-' {
		return false
	}
	if _, err := strconv.ParseFloat(arg, 64); err != nil {
		return true
	}
	for _, spec := range specs {
		if spec.Short != 0 && spec.Short == rune(arg[1]) {
			return true
		}
	}
	return false
}

func parseShort(r rune, specs []*OptionSpec) *Option {
	for _, spec := range specs {
		if spec.Short == r {
			return &Option{Spec: spec}
		}
	}
	return &Option{Spec: &OptionSpec{Short: r}, Unknown: true}
}

func parseLong(s string, specs []*OptionSpec) *Option {
	for _, spec := range specs {
		if spec.Long == s {
			return &Option{Spec: spec, Long: true}
		}
	}
	return &Option{Spec: &OptionSpec{Long: s}, Unknown: true, Long: true}
}

// Complete returns the options of specs that can complete a partial argument:
// long options for "--prefix", short options for "-" or a chain of short
// options. It returns nil when the argument is not an option.
func Complete(arg string, specs []*OptionSpec) []string {
	var candidates []string
	switch {
	case strings.HasPrefix(arg, "--"):
		for _, spec := range specs {
			if spec.Long != "" && strings.HasPrefix(spec.Long, arg[2:]) {
				candidates = append(candidates, "--"+spec.Long)
			}
		}
	case strings.HasPrefix(arg, "-"):
		for _, spec := range specs {
			if spec.Short != 0 && !strings.ContainsRune(arg[1:], spec.Short) {
				candidates = append(candidates, arg+string(spec.Short))
			}
		}
	}
	return candidates
}
