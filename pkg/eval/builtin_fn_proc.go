package eval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/npc-cli/jsh/pkg/getopt"
	"github.com/npc-cli/jsh/pkg/session"
)

// Job control.

func init() {
	addBuiltins(map[string]*builtin{
		"kill": {run: kill, doc: "Interrupt, pause or resume processes",
			opts: []*getopt.OptionSpec{{Long: "all"}, {Long: "ALL"}, {Long: "STOP"}, {Long: "CONT"}, {Long: "GROUP"}}},
		"ps": {run: ps, doc: "List processes",
			opts: []*getopt.OptionSpec{{Short: 'a'}, {Short: 's'}}},
		"ptags": {run: ptags, doc: "Show or update the tags of the current process"},
	})
}

func kill(api *API, args []string) error {
	opts, operands, err := parseOpts(args, builtins["kill"].opts)
	if err != nil {
		return err
	}
	var pids []int
	if opts.Has("all") || opts.Has("ALL") {
		for _, p := range api.sess.Processes(-1) {
			pids = append(pids, p.Pid)
		}
	} else {
		for _, op := range operands {
			if n, ok := ParseArg(op).(float64); ok {
				pids = append(pids, int(n))
			}
		}
	}
	api.sess.Kill(pids, session.KillOpts{
		SIGINT: !opts.Has("STOP") && !opts.Has("CONT"),
		STOP:   opts.Has("STOP"),
		CONT:   opts.Has("CONT"),
		Group:  opts.Has("GROUP"),
	})
	return nil
}

var statusColour = map[session.Status]string{
	session.Suspended: ansiGrey + ansiItalic,
	session.Running:   ansiWhite,
	session.Killed:    ansiRed,
}

func ps(api *API, args []string) error {
	opts, _, err := parseOpts(args, builtins["ps"].opts)
	if err != nil {
		return err
	}
	showSrc := opts.Has("s")
	lines := []string{ansiBlueBold + fmt.Sprintf("%-5s %-5s %-5s", "pid", "ppid", "pgid") + ansiReset}
	for _, p := range api.sess.Processes(-1) {
		if !opts.Has("a") && p.Pid != p.Pgid {
			continue
		}
		colour := statusColour[p.Status]
		info := fmt.Sprintf("%-5d %-5d %-5d", p.Pid, p.Ppid, p.Pgid)

		var tags, src, srcColour string
		if showSrc {
			data, _ := json.Marshal(p.Tags)
			tags = string(data)
		} else {
			tags = tagsPreview(p.Tags)
			src = truncateOneLine(p.Src, 30)
			if p.Status == session.Suspended {
				srcColour = colour
			}
		}
		lines = append(lines, colour+info+ansiReset+ansiYellowBright+tags+ansiReset+srcColour+src)
		if showSrc {
			for _, l := range strings.Split(p.Src, "\n") {
				lines = append(lines, ansiReset+l)
			}
		}
	}
	for _, line := range lines {
		if err := api.Put(line); err != nil {
			return err
		}
	}
	return nil
}

// Renders tags as [k] or [k=v], followed by a space if there are any.
func tagsPreview(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		if v := tags[k]; v != "" {
			fmt.Fprintf(&sb, "[%s=%s]", k, v)
		} else {
			fmt.Fprintf(&sb, "[%s]", k)
		}
	}
	sb.WriteString(" ")
	return sb.String()
}

func truncateOneLine(text string, maxLen int) string {
	text = strings.TrimLeft(text, " \t\n")
	if len(text) <= maxLen {
		return text
	}
	first, _, _ := strings.Cut(text, "\n")
	if len(first) > maxLen {
		first = first[:maxLen]
	}
	return first + " ..."
}

func ptags(api *API, args []string) error {
	if len(args) == 0 {
		tags := map[string]any{}
		for k, v := range api.Process().Tags {
			tags[k] = v
		}
		return api.Put(tags)
	}
	updates := map[string]*string{}
	for _, arg := range args {
		k, v, hasValue := strings.Cut(arg, "=")
		switch {
		case !hasValue:
			updates[k] = new(string)
		case v == "":
			updates[k] = nil
		default:
			updates[k] = &v
		}
	}
	api.sess.UpdateTags(api.meta.Pid, updates)
	return nil
}
