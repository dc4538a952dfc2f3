package eval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/goccy/go-json"

	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/getopt"
)

// Variables, functions and the working directory.

func init() {
	addBuiltins(map[string]*builtin{
		"cd":      {run: cd, doc: "Change the working directory"},
		"pwd":     {run: pwd, doc: "Output the working directory"},
		"set":     {run: set, doc: "Set the value at a path, parsed as JSON"},
		"rm":      {run: rm, doc: "Remove variables", opts: []*getopt.OptionSpec{{Short: 'f'}}},
		"unset":   {run: unset, doc: "Remove variables and shell functions"},
		"local":   {run: local, doc: "Declare local variables"},
		"shift":   {run: shift, doc: "Shift positional parameters to the left"},
		"session": {run: sessionCmd, doc: "Output the session key"},
		"declare": {run: declare, doc: "List variables and function definitions",
			opts: []*getopt.OptionSpec{{Short: 'f'}, {Short: 'F'}, {Short: 'x'}, {Short: 'p'}}},
		"ls": {run: ls, doc: "List variables",
			opts: []*getopt.OptionSpec{{Short: '1'}, {Short: 'l'}, {Short: 'a'}}},
	})
}

func cd(api *API, args []string) error {
	if len(args) > 1 {
		return errs.New("usage: `cd /`, `cd`, `cd foo/bar`, `cd /foo/bar`, `cd ..` and `cd -`", 1)
	}
	sess, meta := api.sess, api.meta
	prev, _ := sess.GetVar(meta, "OLDPWD").(string)
	curr, _ := sess.GetVar(meta, "PWD").(string)

	var next string
	switch {
	case len(args) == 0 || args[0] == "":
		next = sess.Home
	case args[0] == "-":
		next = prev
	default:
		next = "/" + strings.Join(sess.NormalizePath(args[0], curr), "/")
		if sess.GetVarDeep(meta, next) == nil {
			return errs.Newf(1, "%s not found", args[0])
		}
	}
	sess.SetVar(meta, "OLDPWD", curr)
	sess.SetVar(meta, "PWD", next)
	return nil
}

func pwd(api *API, _ []string) error {
	return api.Put(api.sess.GetVar(api.meta, "PWD"))
}

func set(api *API, args []string) error {
	if len(args) != 2 {
		return errs.New("usage: set path value", 2)
	}
	return api.Set(args[0], ParseArg(args[1]))
}

func rm(api *API, args []string) error {
	opts, operands, err := parseOpts(args, builtins["rm"].opts)
	if err != nil {
		return err
	}
	for _, path := range operands {
		if err := api.sess.RemoveVarDeep(api.meta, path, opts.Has("f")); err != nil {
			return err
		}
	}
	return nil
}

func unset(api *API, args []string) error {
	for _, name := range args {
		api.sess.UnsetVar(api.meta, name)
		api.sess.RemoveFunc(name)
	}
	return nil
}

func local(api *API, args []string) error {
	if api.meta.Pid == 0 {
		return errs.New("session leader doesn't support local variables", 1)
	}
	if strings.Contains(strings.Join(args, " "), "=") {
		return errs.New("usage: `local x y z` (assign values elsewhere)", 1)
	}
	for _, name := range args {
		if name != "" {
			api.sess.SetLocalVar(api.meta, name, nil)
		}
	}
	return nil
}

func shift(api *API, args []string) error {
	n := 1
	if len(args) > 0 {
		var err error
		if n, err = strconv.Atoi(args[0]); err != nil || n < 0 {
			return errs.New("usage: `shift [n]` for non-negative integer n", 1)
		}
	}
	api.sess.ShiftPositionals(api.meta.Pid, n)
	return nil
}

func sessionCmd(api *API, _ []string) error {
	return api.Put(api.meta.SessionKey)
}

func declare(api *API, args []string) error {
	opts, operands, err := parseOpts(args, builtins["declare"].opts)
	if err != nil {
		return err
	}
	noOpts := len(opts.Options) == 0
	showVars := opts.Has("x") || opts.Has("p") || noOpts
	showFuncs := opts.Has("f") || noOpts
	var prefixes []string
	if !noOpts {
		prefixes = operands
	}
	matches := func(name string) bool {
		if len(prefixes) == 0 {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	}

	var lines []string
	if showVars {
		vars := api.sess.VisibleVars(api.meta)
		names := make([]string, 0, len(vars))
		for name := range vars {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !matches(name) {
				continue
			}
			v := vars[name]
			colour := ansiYellowBright
			if _, ok := v.(string); ok {
				colour = ansiWhite
			}
			lines = append(lines, ansiBlueBold+name+ansiReset+"="+colour+renderValue(v)+ansiReset)
		}
	}
	funcs := api.sess.Funcs()
	if showFuncs {
		exact := ""
		if len(prefixes) == 1 && api.sess.Func(prefixes[0]) != nil {
			exact = prefixes[0]
		}
		for _, f := range funcs {
			if !matches(f.Name) || (exact != "" && f.Name != exact) {
				continue
			}
			def := ansiBlueBold + f.Name + ansiWhite + " ()" + ansiBoldReset + " " + f.Src + ansiReset
			lines = append(lines, strings.Split(def, "\n")...)
			lines = append(lines, "")
		}
	}
	if opts.Has("F") {
		for _, f := range funcs {
			if matches(f.Name) {
				lines = append(lines, ansiWhite+"declare -f "+f.Name+ansiReset)
			}
		}
	}
	for _, line := range lines {
		if err := api.Put(line); err != nil {
			return err
		}
	}
	return nil
}

// Renders a variable value for declare: strings quoted, other values as
// compact JSON.
func renderValue(v any) string {
	if _, ok := v.(Callable); ok {
		return "[function]"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ToString(v)
	}
	return string(data)
}

func ls(api *API, args []string) error {
	opts, operands, err := parseOpts(args, builtins["ls"].opts)
	if err != nil {
		return err
	}
	pwd, _ := api.sess.GetVar(api.meta, "PWD").(string)
	queries := operands
	if len(queries) == 0 {
		queries = []string{""}
	}

	for _, q := range queries {
		keys, ok := api.sess.ListDir(api.meta, q)
		if !ok && api.sess.Get(api.meta, q) == nil {
			api.sess.WriteMsg(fmt.Sprintf("ls: %q is not defined", q), true)
			continue
		}
		if len(queries) > 1 {
			if err := api.Put(ansiBlueBold + q + ":"); err != nil {
				return err
			}
		}
		if pwd == api.sess.Home && !opts.Has("a") {
			keys = filterKeys(keys, func(k string) bool {
				return strings.ToUpper(k) != k || unicode.IsDigit(rune(k[0]))
			})
		}

		var items []string
		switch {
		case opts.Has("l"):
			types := make([]string, len(keys))
			width := 0
			for i, k := range keys {
				types[i] = TypeName(api.sess.Get(api.meta, joinPath(q, k)))
				width = max(width, len(types[i]))
			}
			for i, k := range keys {
				items = append(items, fmt.Sprintf("%s%-*s%s %s%s", ansiYellowBright, width, types[i], ansiWhite, k, ansiReset))
			}
		case opts.Has("1"):
			items = keys
		default:
			items = columns(keys, api.termWidth())
		}
		for _, item := range items {
			if err := api.Put(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}

func filterKeys(keys []string, keep func(string) bool) []string {
	var out []string
	for _, k := range keys {
		if k != "" && keep(k) {
			out = append(out, k)
		}
	}
	return out
}
