package eval

// Escape sequences understood by the terminal front-end.
const (
	ansiReset        = "\x1b[0m"
	ansiBold         = "\x1b[1m"
	ansiBoldReset    = "\x1b[22m"
	ansiRed          = "\x1b[31m"
	ansiWhite        = "\x1b[37m"
	ansiGrey         = "\x1b[90m"
	ansiItalic       = "\x1b[3m"
	ansiBlueBold     = "\x1b[1;34m"
	ansiYellowBright = "\x1b[93m"
)
