package testutil

import (
	"testing"
	"time"
)

func TestScaled(t *testing.T) {
	t.Setenv(TimeScaleEnv, "2")
	if got := Scaled(time.Second); got != 2*time.Second {
		t.Errorf("Scaled -> %v, want 2s", got)
	}
	t.Setenv(TimeScaleEnv, "bad")
	if got := Scaled(time.Second); got != time.Second {
		t.Errorf("Scaled with bad scale -> %v, want 1s", got)
	}
}

func TestSet(t *testing.T) {
	x := 1
	t.Run("inner", func(t *testing.T) {
		Set(t, &x, 2)
		if x != 2 {
			t.Errorf("x = %d, want 2", x)
		}
	})
	if x != 1 {
		t.Errorf("x not restored, got %d", x)
	}
}

func TestEventually(t *testing.T) {
	n := 0
	Eventually(t, func() bool { n++; return n > 3 })
}
