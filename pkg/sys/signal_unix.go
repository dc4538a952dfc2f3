//go:build unix

package sys

import (
	"os"
	"os/signal"
	"syscall"
)

func notifySignals() (<-chan os.Signal, func()) {
	sigCh := make(chan os.Signal, sigsChanBufferSize)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGWINCH)
	return sigCh, func() { signal.Stop(sigCh) }
}
