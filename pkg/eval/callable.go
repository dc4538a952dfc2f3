package eval

// Callable is a value that can be invoked as a command. A variable holding a
// Callable runs it when its path is used as the command name; the remaining
// arguments are passed as args.
type Callable interface {
	Call(api *API, args []string) error
}

// CallableFunc adapts a function to Callable.
type CallableFunc func(api *API, args []string) error

func (f CallableFunc) Call(api *API, args []string) error { return f(api, args) }
