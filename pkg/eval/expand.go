package eval

import (
	"strings"

	"github.com/google/uuid"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"

	"github.com/npc-cli/jsh/pkg/device"
	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/parse"
	"github.com/npc-cli/jsh/pkg/session"
)

// Accumulates the fields of a word. Text is appended to the open field;
// splitting closes it.
type fieldBuilder struct {
	fields []string
	open   bool
	// noSplit turns splitting into appending.
	noSplit bool
}

func (b *fieldBuilder) add(s string) {
	if !b.open {
		b.fields = append(b.fields, "")
		b.open = true
	}
	b.fields[len(b.fields)-1] += s
}

func (b *fieldBuilder) close() { b.open = false }

// Appends s split on whitespace. Leading and trailing whitespace separate
// fields without creating empty ones.
func (b *fieldBuilder) split(s string) {
	if b.noSplit {
		b.add(s)
		return
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		if s != "" {
			b.close()
		}
		return
	}
	if isSpace(s[0]) {
		b.close()
	}
	for i, w := range words {
		if i > 0 {
			b.close()
		}
		b.add(w)
	}
	if isSpace(s[len(s)-1]) {
		b.close()
	}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// Expands words into fields: braces first, then every part.
func (fr *Frame) fields(words []*syntax.Word, meta *session.Meta) ([]string, error) {
	var out []string
	for _, w := range words {
		for _, bw := range braces(w) {
			var b fieldBuilder
			if err := fr.expandParts(&b, bw.Parts, meta); err != nil {
				return nil, err
			}
			out = append(out, b.fields...)
		}
	}
	return out, nil
}

// Expands a word into a single string without splitting or brace expansion.
// A nil word expands to "".
func (fr *Frame) literal(w *syntax.Word, meta *session.Meta) (string, error) {
	if w == nil {
		return "", nil
	}
	b := fieldBuilder{noSplit: true}
	if err := fr.expandParts(&b, w.Parts, meta); err != nil {
		return "", err
	}
	return strings.Join(b.fields, " "), nil
}

// Expands the value of an assignment. A value made of a single substitution
// whose result is not a string keeps the raw result.
func (fr *Frame) assignValue(w *syntax.Word, meta *session.Meta) (any, error) {
	if w == nil {
		return "", nil
	}
	if len(w.Parts) == 1 {
		var v any
		var err error
		switch p := w.Parts[0].(type) {
		case *syntax.ParamExp:
			v, err = fr.paramExp(p, meta)
		case *syntax.CmdSubst:
			v, err = fr.cmdSubst(p, meta)
		case *syntax.ArithmExp:
			v, err = fr.arithm(p.X, meta)
		default:
			return fr.literal(w, meta)
		}
		if err != nil {
			return nil, err
		}
		if v == nil {
			return "", nil
		}
		return v, nil
	}
	return fr.literal(w, meta)
}

// Returns the alternatives of brace expressions in unquoted literals of w.
// w itself is not modified. Other parts are carried along unexpanded.
func braces(w *syntax.Word) []*syntax.Word {
	hasBrace := false
	for _, part := range w.Parts {
		if lit, ok := part.(*syntax.Lit); ok && strings.Contains(lit.Value, "{") {
			hasBrace = true
			break
		}
	}
	if !hasBrace {
		return []*syntax.Word{w}
	}
	// SplitBraces only looks at words made entirely of literals, so every
	// other part is swapped for a placeholder literal and restored after.
	// A placeholder holds no brace syntax and is never a sequence bound.
	held := make(map[*syntax.Lit]syntax.WordPart)
	cp := &syntax.Word{Parts: make([]syntax.WordPart, len(w.Parts))}
	for i, part := range w.Parts {
		if _, ok := part.(*syntax.Lit); ok {
			cp.Parts[i] = part
			continue
		}
		ph := &syntax.Lit{Value: "\x00"}
		held[ph] = part
		cp.Parts[i] = ph
	}
	if !syntax.SplitBraces(cp) {
		return []*syntax.Word{w}
	}
	alts := expand.Braces(cp)
	out := make([]*syntax.Word, len(alts))
	for i, alt := range alts {
		parts := make([]syntax.WordPart, len(alt.Parts))
		for j, part := range alt.Parts {
			if lit, ok := part.(*syntax.Lit); ok && held[lit] != nil {
				part = held[lit]
			}
			parts[j] = part
		}
		out[i] = &syntax.Word{Parts: parts}
	}
	return out
}

func (fr *Frame) expandParts(b *fieldBuilder, parts []syntax.WordPart, meta *session.Meta) error {
	for i, part := range parts {
		switch p := part.(type) {
		case *syntax.Lit:
			s := unescape(p.Value, unquotedEscapes)
			if i == 0 {
				s = fr.tilde(s)
			}
			b.add(s)
		case *syntax.SglQuoted:
			if p.Dollar {
				b.add(decodeDollarQuoted(p.Value))
			} else {
				b.add(p.Value)
			}
		case *syntax.DblQuoted:
			if err := fr.dblQuoted(b, p, meta); err != nil {
				return err
			}
		case *syntax.ParamExp:
			if allPositionals(p) {
				for j, arg := range fr.sess.Positionals(meta.Pid)[1:] {
					if j > 0 {
						b.close()
					}
					b.split(arg)
				}
				continue
			}
			v, err := fr.paramExp(p, meta)
			if err != nil {
				return err
			}
			b.split(ToString(v))
		case *syntax.CmdSubst:
			v, err := fr.cmdSubst(p, meta)
			if err != nil {
				return err
			}
			b.split(ToString(v))
		case *syntax.ArithmExp:
			n, err := fr.arithm(p.X, meta)
			if err != nil {
				return err
			}
			b.split(formatNumber(n))
		case *syntax.ExtGlob:
			b.add(p.Op.String() + p.Pattern.Value + ")")
		default:
			return &errs.ShellError{Message: "not implemented", ExitCode: 2, Cause: errs.ErrNotImplemented}
		}
	}
	return nil
}

func (fr *Frame) dblQuoted(b *fieldBuilder, dq *syntax.DblQuoted, meta *session.Meta) error {
	if len(dq.Parts) == 1 {
		if pe, ok := dq.Parts[0].(*syntax.ParamExp); ok && pe.Param.Value == "@" && allPositionals(pe) {
			// "$@" is one field per positional.
			for j, arg := range fr.sess.Positionals(meta.Pid)[1:] {
				if j > 0 {
					b.close()
				}
				b.add(arg)
			}
			return nil
		}
	}
	b.add("")
	for _, part := range dq.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			b.add(unescape(p.Value, quotedEscapes))
		case *syntax.ParamExp:
			v, err := fr.paramExp(p, meta)
			if err != nil {
				return err
			}
			b.add(ToString(v))
		case *syntax.CmdSubst:
			v, err := fr.cmdSubst(p, meta)
			if err != nil {
				return err
			}
			b.add(ToString(v))
		case *syntax.ArithmExp:
			n, err := fr.arithm(p.X, meta)
			if err != nil {
				return err
			}
			b.add(formatNumber(n))
		default:
			return &errs.ShellError{Message: "not implemented", ExitCode: 2, Cause: errs.ErrNotImplemented}
		}
	}
	return nil
}

// Expands a leading ~ or ~/ to the session home.
func (fr *Frame) tilde(s string) string {
	if s == "~" || strings.HasPrefix(s, "~/") {
		return fr.sess.Home + s[1:]
	}
	return s
}

const (
	quotedEscapes   = "\"\\$`"
	unquotedEscapes = "\"\\$`' "
)

// Removes backslashes escaping a character of escapable, and line
// continuations.
func unescape(s, escapable string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			next := s[i+1]
			if next == '\n' {
				i++
				continue
			}
			if strings.IndexByte(escapable, next) >= 0 {
				sb.WriteByte(next)
				i++
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// Decodes the escapes of $'...'.
func decodeDollarQuoted(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch c := s[i]; c {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'e', 'E':
			sb.WriteByte(0x1b)
		case '\'', '"', '\\':
			sb.WriteByte(c)
		case 'x':
			if i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
				sb.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
				i += 2
			} else {
				sb.WriteString("\\x")
			}
		default:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c <= '9':
		return c - '0'
	case c >= 'a':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// Runs a command substitution in a child process and returns what it wrote:
// a single item as is, strings joined by newlines, or otherwise an array.
func (fr *Frame) cmdSubst(cs *syntax.CmdSubst, meta *session.Meta) (any, error) {
	var out any
	key := "/dev/subst-" + uuid.NewString()
	d := device.NewVar(key, device.VarArray, device.VarAccess{
		Get: func() any { return out },
		Set: func(v any) error { out = v; return nil },
	})
	if err := fr.sess.Devices.Add(d); err != nil {
		return nil, err
	}

	sub := meta.Clone()
	sub.FD[1] = key
	// The device goes away with the process, even if it is killed.
	_, err := fr.ev.Spawn(fr.sess, cs.Stmts, sub, SpawnOpts{
		By: BySubst, Src: parse.Source(cs),
		Cleanups: []func(){func() { fr.sess.Devices.Remove(key) }},
	})
	if err != nil {
		fr.sess.Devices.Remove(key)
		return nil, err
	}

	d.CloseWrite()
	items, _ := out.([]any)
	switch len(items) {
	case 0:
		return "", nil
	case 1:
		if s, ok := items[0].(string); ok {
			return strings.TrimRight(s, "\n"), nil
		}
		return items[0], nil
	}
	lines := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return items, nil
		}
		lines[i] = s
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n"), nil
}
