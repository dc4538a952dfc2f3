package eval

import (
	"strconv"
	"strings"

	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/msg"
)

// Exit codes, timing and sourcing.

func init() {
	addBuiltins(map[string]*builtin{
		"true":   {run: trueCmd, doc: "Exit with code 0"},
		"false":  {run: falseCmd, doc: "Exit with code 1"},
		"return": {run: returnCmd, doc: "Exit from a function"},
		"test":   {run: test, doc: "Exit with code 0 if the expression holds"},
		"sleep":  {run: sleep, doc: "Wait for a number of seconds"},
		"poll":   {run: poll, doc: "Output 1, 2, 3, ... at a fixed interval"},
		"source": {run: source, doc: "Run shell code stored in a variable"},
	})
}

func trueCmd(*API, []string) error { return nil }

func falseCmd(api *API, _ []string) error {
	api.SetExitCode(1)
	return nil
}

func returnCmd(api *API, args []string) error {
	code := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return errs.New("numeric argument required", 2)
		}
		code = n
	}
	kill := api.KillError(code)
	kill.Depth = 1
	return kill
}

func test(api *API, args []string) error {
	ok, err := evalTest(args)
	if err != nil {
		return err
	}
	if !ok {
		api.SetExitCode(1)
	}
	return nil
}

// Evaluates the operands of test. A single operand is parsed as JSON and
// tested for truthiness.
func evalTest(args []string) (bool, error) {
	if len(args) > 0 && args[0] == "!" {
		ok, err := evalTest(args[1:])
		return !ok, err
	}
	switch len(args) {
	case 0:
		return false, nil
	case 1:
		return Truthy(ParseArg(args[0])), nil
	case 2:
		switch args[0] {
		case "-z":
			return args[1] == "", nil
		case "-n":
			return args[1] != "", nil
		}
	case 3:
		x, op, y := args[0], args[1], args[2]
		switch op {
		case "=", "==":
			return x == y, nil
		case "!=":
			return x != y, nil
		case "-eq", "-ne", "-lt", "-le", "-gt", "-ge":
			a, errA := strconv.Atoi(strings.TrimSpace(x))
			b, errB := strconv.Atoi(strings.TrimSpace(y))
			if errA != nil || errB != nil {
				return false, errs.New("integer expression expected", 2)
			}
			switch op {
			case "-eq":
				return a == b, nil
			case "-ne":
				return a != b, nil
			case "-lt":
				return a < b, nil
			case "-le":
				return a <= b, nil
			case "-gt":
				return a > b, nil
			default:
				return a >= b, nil
			}
		}
	}
	return Truthy(ParseArg(strings.Join(args, " "))), nil
}

// Parses the first argument as a number of seconds, defaulting to def.
func secondsArg(args []string, def float64) float64 {
	if len(args) == 0 {
		return def
	}
	if f, ok := ToNumber(ParseArg(args[0])); ok {
		return f
	}
	return 0
}

func sleep(api *API, args []string) error {
	return api.Sleep(secondsArg(args, 1))
}

func poll(api *API, args []string) error {
	seconds := secondsArg(args, 1)
	if seconds <= 0 {
		seconds = 1
	}
	return api.Poll(seconds)
}

func source(api *API, args []string) error {
	if len(args) == 0 {
		return errs.New("usage: source path [args...]", 2)
	}
	path := args[0]
	v := api.Get(args[:1])[0]
	if v == nil {
		return errs.Newf(1, "%q not found", path)
	}
	script, ok := v.(string)
	if !ok {
		return errs.Newf(1, "%q is not a string", path)
	}
	file, err := api.fr.ev.parser.Parse(script)
	if err != nil {
		return errs.Newf(2, "%s: %s", path, err)
	}

	code, err := api.fr.ev.Spawn(api.sess, file.Stmts, api.meta, SpawnOpts{
		By: BySource, Src: script, Positionals: args[1:]})
	api.SetExitCode(code)

	pwd, _ := api.sess.GetVar(api.meta, "PWD").(string)
	if abs := "/" + strings.Join(api.sess.NormalizePath(path, pwd), "/"); strings.HasPrefix(abs, "/etc/") {
		api.sess.IO.Outbound.Write(msg.External{Event: msg.AutoReSourceFile{Path: abs}})
	}
	return err
}
