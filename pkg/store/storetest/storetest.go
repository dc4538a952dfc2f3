// Package storetest keeps test suites against storedefs.Sink.
package storetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npc-cli/jsh/pkg/store/storedefs"
)

// TestSink tests the methods of storedefs.Sink.
func TestSink(t *testing.T, s storedefs.Sink) {
	_, err := s.Get("home@tty-1")
	assert.ErrorIs(t, err, storedefs.ErrNoKey)

	require.NoError(t, s.Set("home@tty-1", "foo: 1\n"))
	require.NoError(t, s.Set("history@tty-1", "- echo\n"))
	require.NoError(t, s.Set("home@tty-2", "{}\n"))

	v, err := s.Get("home@tty-1")
	require.NoError(t, err)
	assert.Equal(t, "foo: 1\n", v)

	require.NoError(t, s.Set("home@tty-1", "foo: 2\n"))
	v, _ = s.Get("home@tty-1")
	assert.Equal(t, "foo: 2\n", v)

	keys, err := s.Keys("home@")
	require.NoError(t, err)
	assert.Equal(t, []string{"home@tty-1", "home@tty-2"}, keys)

	require.NoError(t, s.Del("home@tty-1"))
	require.NoError(t, s.Del("home@tty-1"))
	_, err = s.Get("home@tty-1")
	assert.ErrorIs(t, err, storedefs.ErrNoKey)
}
