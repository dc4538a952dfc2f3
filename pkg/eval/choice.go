package eval

import (
	"regexp"
	"strings"

	"github.com/npc-cli/jsh/pkg/device"
	"github.com/npc-cli/jsh/pkg/session"
)

// Matches [ label ](value) unless the bracket starts an escape sequence.
var (
	choiceLinkRegexp = regexp.MustCompile(`(^|[^\x1b])\[ ([^()]+?) \]\((.*?)\)`)
	ansiRegexp       = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
)

func stripAnsi(s string) string { return ansiRegexp.ReplaceAllString(s, "") }

type choiceLine struct {
	// Text written to the terminal, with links shown as [ label ].
	ttyText string
	// ttyText without escape sequences, identifying the line.
	key   string
	links []choiceLink
}

type choiceLink struct {
	label string
	value string
}

// The value chosen by following the link. A value of "-" chooses nothing;
// an empty value parses the label.
func (l choiceLink) chosen() (any, bool) {
	switch l.value {
	case "":
		return ParseArg(l.label), true
	case "-":
		return nil, false
	}
	return ParseArg(l.value), true
}

func parseChoiceLine(text string) choiceLine {
	var sb strings.Builder
	var links []choiceLink
	pos := 0
	for _, m := range choiceLinkRegexp.FindAllStringSubmatchIndex(text, -1) {
		start := m[0] + (m[3] - m[2])
		if start > pos {
			sb.WriteString(ansiWhite + text[pos:start] + ansiReset)
		}
		label := text[m[4]:m[5]]
		sb.WriteString(ansiReset + "[" + ansiBold + ansiWhite + " " + label + " " + ansiReset + "]")
		links = append(links, choiceLink{label: stripAnsi(label), value: text[m[6]:m[7]]})
		pos = m[1]
	}
	if pos < len(text) || len(links) == 0 {
		sb.WriteString(ansiWhite + text[pos:] + ansiReset)
	}
	tty := sb.String()
	return choiceLine{ttyText: tty, key: stripAnsi(tty), links: links}
}

type choiceResult struct {
	v  any
	ok bool
}

// Choice writes text with its links rendered, then, if there are any links,
// waits until one is activated and writes its value. With varName set the
// value goes to that variable instead of stdout.
func (api *API) Choice(text, varName string) error {
	lines := strings.Split(strings.ReplaceAll(text, "\r", ""), "\n")
	parsed := make([]choiceLine, len(lines))
	hasLinks := false
	for i, line := range lines {
		parsed[i] = parseChoiceLine(line)
		if err := api.Put(parsed[i].ttyText); err != nil {
			return err
		}
		hasLinks = hasLinks || len(parsed[i].links) > 0
	}
	if !hasLinks {
		return nil
	}

	chosen := make(chan choiceResult, 1)
	for _, pl := range parsed {
		if len(pl.links) == 0 {
			continue
		}
		links := make([]session.Link, len(pl.links))
		for i, l := range pl.links {
			links[i] = session.Link{LinkText: l.label, Callback: func() {
				v, ok := l.chosen()
				select {
				case chosen <- choiceResult{v, ok}:
				default:
				}
			}}
		}
		api.sess.AddLinks(pl.key, links)
		defer api.sess.RemoveLinks(pl.key)
	}

	var res choiceResult
	select {
	case res = <-chosen:
	case <-api.ctx.Done():
		return api.killErr(api.ctx.Err())
	}
	if !res.ok {
		return nil
	}
	if varName != "" {
		prev := api.meta.FD[1]
		key, isNew := api.fr.varDevice(api.meta, varName, device.VarLast)
		api.meta.FD[1] = key
		defer func() {
			api.meta.FD[1] = prev
			if isNew {
				api.sess.Devices.Remove(key)
			}
		}()
	}
	return api.Put(res.v)
}
