package eval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mvdan.cc/sh/v3/syntax"
)

func parseArithm(t *testing.T, src string) syntax.ArithmExpr {
	t.Helper()
	f, err := syntax.NewParser().Parse(strings.NewReader("echo $(("+src+"))"), "")
	require.NoError(t, err)
	call := f.Stmts[0].Cmd.(*syntax.CallExpr)
	return call.Args[1].Parts[0].(*syntax.ArithmExp).X
}

func TestShortCircuits(t *testing.T) {
	for src, want := range map[string]bool{
		"1 + 2":                   false,
		"x++ * 3":                 false,
		"1 + (0 || 2)":            true,
		"-(a && b)":               true,
		"c ? 1 : 2":               true,
		"$(echo $((0 && 1))) + 1": false,
	} {
		assert.Equal(t, want, shortCircuits(parseArithm(t, src)), "shortCircuits(%q)", src)
	}
}

func TestCheckArithm(t *testing.T) {
	assert.NoError(t, checkArithm(parseArithm(t, "x += y++")))

	literalTarget := &syntax.UnaryArithm{Op: syntax.Inc, Post: true, X: intWord(1)}
	err := checkArithm(&syntax.BinaryArithm{Op: syntax.Add, X: intWord(2), Y: literalTarget})
	assert.ErrorContains(t, err, "attempted assignment to non-variable")
}
