package eval

func init() {
	addBuiltins(map[string]*builtin{
		"[]":      {run: arrayCmd, doc: "Alias for array"},
		"array":   {run: arrayCmd, doc: "Output the arguments, parsed as JSON, as one array"},
		"help":    {run: help, doc: "List the builtin commands"},
		"history": {run: history, doc: "List previous commands"},
	})
}

func arrayCmd(api *API, args []string) error {
	arr := make([]any, len(args))
	for i, arg := range args {
		arr[i] = ParseArg(arg)
	}
	return api.Put(arr)
}

func help(api *API, _ []string) error {
	lines := []string{"The following commands are supported:"}
	for _, line := range columns(BuiltinNames(), api.termWidth()) {
		lines = append(lines, ansiBlueBold+line)
	}
	lines = append(lines, "", "View shell functions via "+ansiBlueBold+"declare -F"+ansiReset+".")
	for _, line := range lines {
		if err := api.Put(line); err != nil {
			return err
		}
	}
	return nil
}

func history(api *API, _ []string) error {
	for _, line := range api.sess.History() {
		if err := api.Put(line); err != nil {
			return err
		}
	}
	return nil
}
