package eval

import (
	"errors"
	"io"
	"math"
	"strings"

	"github.com/npc-cli/jsh/pkg/device"
	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/getopt"
)

// Input and output.

func init() {
	addBuiltins(map[string]*builtin{
		"echo": {run: echo, doc: "Output arguments as a space-separated string",
			opts: []*getopt.OptionSpec{{Short: 'a'}, {Short: 'n'}}},
		"get":    {run: get, doc: "Output the value at each path"},
		"read":   {run: read, doc: "Read one item from stdin into a variable or stdout"},
		"say":    {run: say, doc: "Speak arguments, or stdin, through the voice device"},
		"choice": {run: choice, doc: "Write text with links and output the value of the one clicked"},
	})
}

func echo(api *API, args []string) error {
	opts, operands := getopt.Parse(args, builtins["echo"].opts)
	switch {
	case opts.Has("a"):
		arr := make([]any, len(operands))
		for i, s := range operands {
			if opts.Has("n") {
				arr[i] = toNumberOrNaN(s)
			} else {
				arr[i] = s
			}
		}
		return api.Put(arr)
	case opts.Has("n"):
		for _, s := range operands {
			if err := api.Put(toNumberOrNaN(s)); err != nil {
				return err
			}
		}
		return nil
	}
	return api.Put(strings.Join(args, " "))
}

func toNumberOrNaN(s string) float64 {
	if f, ok := ToNumber(s); ok {
		return f
	}
	return math.NaN()
}

func get(api *API, args []string) error {
	for _, v := range api.Get(args) {
		if v == nil {
			continue
		}
		if err := api.Put(v); err != nil {
			return err
		}
	}
	return nil
}

func read(api *API, args []string) error {
	if len(args) > 1 {
		return errs.New("usage: read [name]", 2)
	}
	v, err := api.Read(false)
	if errors.Is(err, io.EOF) {
		api.SetExitCode(1)
		return nil
	} else if err != nil {
		return err
	}
	if len(args) == 1 {
		api.sess.SetVar(api.meta, args[0], v)
		return nil
	}
	return api.Put(v)
}

func say(api *API, args []string) error {
	if _, ok := api.sess.Devices.Get(device.VoiceKey); !ok {
		return errs.New("no voice device", 1)
	}
	api.Redirect(map[int]string{1: device.VoiceKey})
	if len(args) > 0 {
		return api.Put(strings.Join(args, " "))
	}
	for {
		v, err := api.Read(false)
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		if err := api.Put(v); err != nil {
			return err
		}
	}
}

func choice(api *API, args []string) error {
	if !api.IsTTYAt(1) {
		return errs.New("stdout must be a tty", 1)
	}
	if api.IsTTYAt(0) {
		return api.Choice(strings.Join(args, " "), "")
	}
	for {
		v, err := api.Read(false)
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		if err := api.Choice(ToString(v), ""); err != nil {
			return err
		}
	}
}
