//go:build !unix

package sys

import (
	"os"
	"syscall"
)

// There is no window size change signal; use an impossible value.
const sigWINCH = syscall.Signal(-1)

func winSize(*os.File) (row, col int) { return -1, -1 }
