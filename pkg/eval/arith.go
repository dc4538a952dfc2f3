package eval

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"

	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/session"
)

// Evaluates an arithmetic expression over integers. Operators are applied by
// expand.Arithm; &&, || and ?: are evaluated here since they must not
// evaluate the operand they skip.
func (fr *Frame) arithm(x syntax.ArithmExpr, meta *session.Meta) (float64, error) {
	if err := checkArithm(x); err != nil {
		return 0, err
	}
	n, err := fr.arithmInt(x, meta)
	if err != nil {
		var shErr *errs.ShellError
		if errors.As(err, &shErr) {
			return 0, err
		}
		return 0, errs.New(err.Error(), 1)
	}
	return float64(n), nil
}

func (fr *Frame) arithmInt(x syntax.ArithmExpr, meta *session.Meta) (int, error) {
	cfg := fr.arithmConfig(meta)
	switch x := x.(type) {
	case *syntax.ParenArithm:
		return fr.arithmInt(x.X, meta)
	case *syntax.UnaryArithm:
		if x.Op == syntax.Inc || x.Op == syntax.Dec || !shortCircuits(x.X) {
			break
		}
		n, err := fr.arithmInt(x.X, meta)
		if err != nil {
			return 0, err
		}
		return expand.Arithm(cfg, &syntax.UnaryArithm{Op: x.Op, X: intWord(n)})
	case *syntax.BinaryArithm:
		switch x.Op {
		case syntax.AndArit, syntax.OrArit:
			l, err := fr.arithmInt(x.X, meta)
			if err != nil {
				return 0, err
			}
			if (l != 0) == (x.Op == syntax.OrArit) {
				return oneIf(l != 0), nil
			}
			r, err := fr.arithmInt(x.Y, meta)
			if err != nil {
				return 0, err
			}
			return oneIf(r != 0), nil
		case syntax.TernQuest:
			alts, ok := x.Y.(*syntax.BinaryArithm)
			if !ok || alts.Op != syntax.TernColon {
				return 0, errs.New("ternary operator missing :", 1)
			}
			cond, err := fr.arithmInt(x.X, meta)
			if err != nil {
				return 0, err
			}
			if cond != 0 {
				return fr.arithmInt(alts.X, meta)
			}
			return fr.arithmInt(alts.Y, meta)
		}
		if !shortCircuits(x) {
			break
		}
		// Operands are evaluated here and the operator applied to their
		// values. An assignment keeps its target.
		var l syntax.ArithmExpr = x.X
		if !isArithmAssign(x.Op) {
			n, err := fr.arithmInt(x.X, meta)
			if err != nil {
				return 0, err
			}
			l = intWord(n)
		}
		r, err := fr.arithmInt(x.Y, meta)
		if err != nil {
			return 0, err
		}
		return expand.Arithm(cfg, &syntax.BinaryArithm{Op: x.Op, X: l, Y: intWord(r)})
	}
	return expand.Arithm(cfg, x)
}

func (fr *Frame) arithmConfig(meta *session.Meta) *expand.Config {
	return &expand.Config{
		Env: arithmEnv{fr.sess, meta},
		CmdSubst: func(w io.Writer, cs *syntax.CmdSubst) error {
			v, err := fr.cmdSubst(cs, meta)
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, ToString(v))
			return err
		},
	}
}

// Exposes the variables of a process to the expand package. Values written
// back by arithmetic are stored as numbers.
type arithmEnv struct {
	sess *session.Session
	meta *session.Meta
}

var _ expand.WriteEnviron = arithmEnv{}

func (e arithmEnv) Get(name string) expand.Variable {
	v, ok := e.sess.LookupVar(e.meta, name)
	if !ok || v == nil {
		return expand.Variable{}
	}
	switch v := v.(type) {
	case []any:
		list := make([]string, len(v))
		for i, elem := range v {
			list[i] = ToString(elem)
		}
		return expand.Variable{Set: true, Kind: expand.Indexed, List: list}
	case map[string]any:
		m := make(map[string]string, len(v))
		for k, elem := range v {
			m[k] = ToString(elem)
		}
		return expand.Variable{Set: true, Kind: expand.Associative, Map: m}
	}
	return expand.Variable{Set: true, Kind: expand.String, Str: ToString(v)}
}

func (e arithmEnv) Set(name string, vr expand.Variable) error {
	if !syntax.ValidName(name) {
		return fmt.Errorf("%s: attempted assignment to non-variable", name)
	}
	if !vr.IsSet() {
		e.sess.UnsetVar(e.meta, name)
		return nil
	}
	s := vr.String()
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		e.sess.SetVar(e.meta, name, float64(n))
	} else {
		e.sess.SetVar(e.meta, name, s)
	}
	return nil
}

func (e arithmEnv) Each(f func(name string, vr expand.Variable) bool) {
	for name := range e.sess.VisibleVars(e.meta) {
		if !f(name, e.Get(name)) {
			return
		}
	}
}

// Reports whether x holds an operator that skips an operand.
func shortCircuits(x syntax.ArithmExpr) bool {
	found := false
	syntax.Walk(x, func(node syntax.Node) bool {
		switch node := node.(type) {
		case *syntax.CmdSubst:
			return false
		case *syntax.BinaryArithm:
			switch node.Op {
			case syntax.AndArit, syntax.OrArit, syntax.TernQuest:
				found = true
			}
		}
		return !found
	})
	return found
}

// Rejects increments and assignments whose target is not a variable name,
// which expand.Arithm does not check.
func checkArithm(x syntax.ArithmExpr) error {
	var err error
	syntax.Walk(x, func(node syntax.Node) bool {
		var target syntax.ArithmExpr
		switch node := node.(type) {
		case *syntax.CmdSubst:
			return false
		case *syntax.UnaryArithm:
			if node.Op == syntax.Inc || node.Op == syntax.Dec {
				target = node.X
			}
		case *syntax.BinaryArithm:
			if isArithmAssign(node.Op) {
				target = node.X
			}
		}
		if target == nil {
			return true
		}
		if w, ok := target.(*syntax.Word); !ok || !syntax.ValidName(w.Lit()) {
			err = errs.New("attempted assignment to non-variable", 1)
		}
		return err == nil
	})
	return err
}

func isArithmAssign(op syntax.BinAritOperator) bool {
	switch op {
	case syntax.Assgn, syntax.AddAssgn, syntax.SubAssgn, syntax.MulAssgn, syntax.QuoAssgn,
		syntax.RemAssgn, syntax.AndAssgn, syntax.OrAssgn, syntax.XorAssgn, syntax.ShlAssgn, syntax.ShrAssgn:
		return true
	}
	return false
}

func intWord(n int) *syntax.Word {
	return &syntax.Word{Parts: []syntax.WordPart{&syntax.Lit{Value: strconv.Itoa(n)}}}
}

func oneIf(b bool) int {
	if b {
		return 1
	}
	return 0
}
