package eval

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"mvdan.cc/sh/v3/syntax"

	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/session"
)

// Reports whether pe is a plain $@ or $*.
func allPositionals(pe *syntax.ParamExp) bool {
	name := pe.Param.Value
	return (name == "@" || name == "*") && !pe.Length && !pe.Excl &&
		pe.Index == nil && pe.Slice == nil && pe.Repl == nil && pe.Exp == nil && pe.Names == 0
}

func (fr *Frame) paramExp(pe *syntax.ParamExp, meta *session.Meta) (any, error) {
	if pe.Excl || pe.Names != 0 {
		return nil, &errs.ShellError{Message: "not implemented", ExitCode: 2, Cause: errs.ErrNotImplemented}
	}
	name := pe.Param.Value
	v, set := fr.param(name, meta)
	if pe.Index != nil {
		var err error
		if v, err = fr.index(v, pe.Index, meta); err != nil {
			return nil, err
		}
		set = v != nil
	}

	switch {
	case pe.Length:
		return float64(length(v)), nil
	case pe.Slice != nil:
		return fr.slice(v, pe.Slice, meta)
	case pe.Repl != nil:
		from, err := fr.literal(pe.Repl.Orig, meta)
		if err != nil {
			return nil, err
		}
		to, err := fr.literal(pe.Repl.With, meta)
		if err != nil {
			return nil, err
		}
		n := 1
		if pe.Repl.All {
			n = -1
		}
		return strings.Replace(ToString(v), from, to, n), nil
	case pe.Exp != nil:
		return fr.paramOp(name, v, set, pe.Exp, meta)
	}
	return v, nil
}

// Returns the value of a special parameter, positional or variable, and
// whether it is set.
func (fr *Frame) param(name string, meta *session.Meta) (any, bool) {
	switch name {
	case "@", "*":
		return strings.Join(fr.sess.Positionals(meta.Pid)[1:], " "), true
	case "#":
		return float64(len(fr.sess.Positionals(meta.Pid)) - 1), true
	case "?":
		return float64(fr.sess.LastExit(meta)), true
	case "$":
		return float64(meta.Pid), true
	case "!":
		return float64(fr.sess.LastBg()), true
	}
	if n, err := strconv.Atoi(name); err == nil {
		pos := fr.sess.Positionals(meta.Pid)
		if n >= 0 && n < len(pos) {
			return pos[n], true
		}
		return nil, false
	}
	v, ok := fr.sess.LookupVar(meta, name)
	return v, ok && v != nil
}

func (fr *Frame) index(v any, idx syntax.ArithmExpr, meta *session.Meta) (any, error) {
	if w, ok := idx.(*syntax.Word); ok {
		if lit := w.Lit(); lit == "@" || lit == "*" {
			return v, nil
		}
		if m, ok := v.(map[string]any); ok {
			key, err := fr.literal(w, meta)
			if err != nil {
				return nil, err
			}
			return m[key], nil
		}
	}
	switch v := v.(type) {
	case []any:
		f, err := fr.arithm(idx, meta)
		if err != nil {
			return nil, err
		}
		i := int(f)
		if i < 0 {
			i += len(v)
		}
		if i < 0 || i >= len(v) {
			return nil, nil
		}
		return v[i], nil
	case map[string]any:
		f, err := fr.arithm(idx, meta)
		if err != nil {
			return nil, err
		}
		return v[formatNumber(f)], nil
	case string:
		f, err := fr.arithm(idx, meta)
		if err != nil {
			return nil, err
		}
		// A scalar behaves as an array of one element.
		if int(f) == 0 {
			return v, nil
		}
	}
	return nil, nil
}

func length(v any) int {
	switch v := v.(type) {
	case nil:
		return 0
	case string:
		return utf8.RuneCountInString(v)
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	}
	return utf8.RuneCountInString(ToString(v))
}

// Implements ${x:off:len} over the runes of a string or the items of an
// array. Negative offsets count from the end; a negative length is an offset
// from the end.
func (fr *Frame) slice(v any, sl *syntax.Slice, meta *session.Meta) (any, error) {
	var n int
	arr, isArr := v.([]any)
	var runes []rune
	if isArr {
		n = len(arr)
	} else {
		runes = []rune(ToString(v))
		n = len(runes)
	}

	off, err := fr.arithm(sl.Offset, meta)
	if err != nil {
		return nil, err
	}
	start := clampIndex(int(off), n)
	end := n
	if sl.Length != nil {
		l, err := fr.arithm(sl.Length, meta)
		if err != nil {
			return nil, err
		}
		if l < 0 {
			end = clampIndex(int(l), n)
		} else {
			end = min(start+int(l), n)
		}
	}
	if end < start {
		end = start
	}
	if isArr {
		return append([]any(nil), arr[start:end]...), nil
	}
	return string(runes[start:end]), nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return max(0, min(i, n))
}

// Implements the default, alternate, assign and error operators.
func (fr *Frame) paramOp(name string, v any, set bool, exp *syntax.Expansion, meta *session.Meta) (any, error) {
	null := !set || v == ""
	word := func() (string, error) { return fr.literal(exp.Word, meta) }

	switch exp.Op {
	case syntax.DefaultUnset, syntax.DefaultUnsetOrNull:
		if !set || (exp.Op == syntax.DefaultUnsetOrNull && null) {
			return word()
		}
	case syntax.AlternateUnset, syntax.AlternateUnsetOrNull:
		if !set || (exp.Op == syntax.AlternateUnsetOrNull && null) {
			return "", nil
		}
		return word()
	case syntax.AssignUnset, syntax.AssignUnsetOrNull:
		if !set || (exp.Op == syntax.AssignUnsetOrNull && null) {
			w, err := word()
			if err != nil {
				return nil, err
			}
			fr.sess.SetVar(meta, name, w)
			return w, nil
		}
	case syntax.ErrorUnset, syntax.ErrorUnsetOrNull:
		if !set || (exp.Op == syntax.ErrorUnsetOrNull && null) {
			w, err := word()
			if err != nil {
				return nil, err
			}
			if w == "" {
				w = "parameter null or not set"
			}
			return nil, errs.Newf(1, "%s: %s", name, w)
		}
	default:
		return nil, &errs.ShellError{Message: "not implemented", ExitCode: 2, Cause: errs.ErrNotImplemented}
	}
	return v, nil
}
