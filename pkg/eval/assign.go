package eval

import (
	"maps"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/session"
)

// Runs one assignment. With local set, the variable is declared in the scope
// of meta's process.
func (fr *Frame) assign(as *syntax.Assign, meta *session.Meta, local bool) error {
	set := fr.sess.SetVar
	if local {
		set = fr.sess.SetLocalVar
	}

	if as.Name == nil {
		s, err := fr.literal(as.Value, meta)
		if err != nil {
			return err
		}
		if name, value, ok := strings.Cut(s, "="); ok && syntax.ValidName(name) {
			set(meta, name, value)
		}
		return nil
	}

	name := as.Name.Value
	var v any
	var err error
	switch {
	case as.Array != nil:
		v, err = fr.arrayValue(as.Array, meta)
	case as.Naked:
		if local {
			v, _ = fr.sess.LookupVar(meta, name)
		} else {
			return nil
		}
	default:
		v, err = fr.assignValue(as.Value, meta)
	}
	if err != nil {
		return err
	}

	old := fr.sess.GetVar(meta, name)
	if as.Index != nil {
		v, err = fr.assignIndex(old, as.Index, v, as.Append, meta)
		if err != nil {
			return err
		}
	} else if as.Append {
		v = appendValue(old, v)
	}
	set(meta, name, v)
	return nil
}

// Returns a copy of the container old with the element at idx assigned.
// Arrays grow with nulls as needed.
func (fr *Frame) assignIndex(old any, idx syntax.ArithmExpr, v any, appending bool, meta *session.Meta) (any, error) {
	if m, ok := old.(map[string]any); ok {
		key, err := fr.indexKey(idx, meta)
		if err != nil {
			return nil, err
		}
		m = maps.Clone(m)
		if appending {
			v = appendValue(m[key], v)
		}
		m[key] = v
		return m, nil
	}

	f, err := fr.arithm(idx, meta)
	if err != nil {
		return nil, err
	}
	arr, _ := old.([]any)
	arr = append([]any(nil), arr...)
	i := int(f)
	if i < 0 {
		i += len(arr)
	}
	if i < 0 {
		return nil, errs.Newf(1, "%s: bad array subscript", formatNumber(f))
	}
	for len(arr) <= i {
		arr = append(arr, nil)
	}
	if appending {
		v = appendValue(arr[i], v)
	}
	arr[i] = v
	return arr, nil
}

func (fr *Frame) indexKey(idx syntax.ArithmExpr, meta *session.Meta) (string, error) {
	if w, ok := idx.(*syntax.Word); ok {
		return fr.literal(w, meta)
	}
	f, err := fr.arithm(idx, meta)
	if err != nil {
		return "", err
	}
	return formatNumber(f), nil
}

// Evaluates (a b c) to an array, or ([k]=v ...) to a map.
func (fr *Frame) arrayValue(ae *syntax.ArrayExpr, meta *session.Meta) (any, error) {
	keyed := false
	for _, el := range ae.Elems {
		if el.Index != nil {
			keyed = true
			break
		}
	}
	if keyed {
		m := map[string]any{}
		for _, el := range ae.Elems {
			if el.Index == nil {
				return nil, errs.New("cannot mix keyed and unkeyed elements", 1)
			}
			key, err := fr.indexKey(el.Index, meta)
			if err != nil {
				return nil, err
			}
			if m[key], err = fr.assignValue(el.Value, meta); err != nil {
				return nil, err
			}
		}
		return m, nil
	}

	arr := []any{}
	for _, el := range ae.Elems {
		if el.Value == nil {
			continue
		}
		fields, err := fr.fields([]*syntax.Word{el.Value}, meta)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			arr = append(arr, f)
		}
	}
	return arr, nil
}

// Runs local, declare, typeset and export.
func (fr *Frame) declClause(dc *syntax.DeclClause, meta *session.Meta) (int, error) {
	switch variant := dc.Variant.Value; variant {
	case "local":
		if meta.Pid == 0 {
			return 1, errs.New("session leader doesn't support local variables", 1)
		}
		for _, as := range dc.Args {
			if err := fr.assign(as, meta, true); err != nil {
				return errs.ExitCode(err), err
			}
		}
		return 0, nil
	case "declare", "typeset":
		if allNaked(dc.Args) {
			args, err := fr.nakedArgs(dc.Args, meta)
			if err != nil {
				return errs.ExitCode(err), err
			}
			return fr.runBuiltin(meta, func(api *API) error { return builtins["declare"].run(api, args) })
		}
		fallthrough
	case "export":
		for _, as := range dc.Args {
			if err := fr.assign(as, meta, false); err != nil {
				return errs.ExitCode(err), err
			}
		}
		return 0, nil
	}
	return 2, &errs.ShellError{Message: "not implemented", ExitCode: 2, Cause: errs.ErrNotImplemented}
}

func allNaked(args []*syntax.Assign) bool {
	for _, as := range args {
		if !as.Naked {
			return false
		}
	}
	return true
}

func (fr *Frame) nakedArgs(args []*syntax.Assign, meta *session.Meta) ([]string, error) {
	var out []string
	for _, as := range args {
		if as.Name != nil {
			out = append(out, as.Name.Value)
			continue
		}
		fields, err := fr.fields([]*syntax.Word{as.Value}, meta)
		if err != nil {
			return nil, err
		}
		out = append(out, fields...)
	}
	return out, nil
}
