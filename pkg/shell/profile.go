package shell

import (
	"fmt"
	"strings"

	"github.com/npc-cli/jsh/pkg/eval"
)

const (
	ansiReset    = "\x1b[0m"
	ansiRed      = "\x1b[31m"
	ansiWhite    = "\x1b[37m"
	ansiBlueBold = "\x1b[1;34m"
)

// RunProfile runs the PROFILE variable of the session line by line, as if
// typed at the prompt but without history or intermediate prompts. Afterwards
// the profile counts as finished and the leader is parked as suspended until
// the next command.
func (sh *Shell) RunProfile() {
	profile := eval.ToString(sh.sess.GetVar(eval.LeaderMeta(sh.sess), "PROFILE"))

	sh.setProfileRunning(true)
	sh.sess.WriteMsg(fmt.Sprintf("%s%s%s running %s%s/PROFILE%s",
		ansiBlueBold, sh.sess.Key, ansiWhite, ansiBlueBold, sh.sess.Home, ansiReset), false)
	for _, line := range strings.Split(profile, "\n") {
		sh.runLine(line)
	}
	// An unterminated statement at the end of the profile is dropped.
	sh.clearBuffer()

	sh.sess.SetProfileFinished()
	sh.sess.ParkLeader()
	sh.setProfileRunning(false)
	sh.prompt(promptReady)
}

func (sh *Shell) setProfileRunning(running bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.historyEnabled = !running
	sh.prompting = !running
}

// SourceExternal runs src in a new child of the session leader, without
// waiting for the profile. It is meant for sources written outside the
// terminal, such as function definitions reloaded from a file.
func (sh *Shell) SourceExternal(src string) error {
	f, err := sh.ev.Parser().Parse(src)
	if err != nil {
		return fmt.Errorf("parse external source: %w", err)
	}
	// The child shares the foreground group, so a kill it ends with must not
	// reach the group.
	code, err := sh.ev.Spawn(sh.sess, f.Stmts, eval.LeaderMeta(sh.sess), eval.SpawnOpts{By: eval.BySourceExternal})
	if err != nil {
		return fmt.Errorf("source external: exit %d: %w", code, err)
	}
	return nil
}
