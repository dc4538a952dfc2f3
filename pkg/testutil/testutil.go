// Package testutil contains common test utilities.
package testutil

import "time"

// Cleanuper wraps the Cleanup method. It is a subset of [testing.TB], thus
// satisfied by [*testing.T] and [*testing.B].
type Cleanuper interface {
	Cleanup(func())
}

// Fataler is the subset of [testing.TB] used by Eventually.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Set sets *p to v and restores the old value on cleanup.
func Set[T any](c Cleanuper, p *T, v T) {
	old := *p
	*p = v
	c.Cleanup(func() { *p = old })
}

// Eventually polls cond until it holds, failing the test if it does not hold
// within one scaled second.
func Eventually(t Fataler, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(Scaled(time.Second))
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
