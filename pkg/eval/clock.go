package eval

import "time"

// Clock used by sleep and poll. Tests replace these.
var (
	timeNow       = time.Now
	timeAfterFunc = func(d time.Duration, f func()) (stop func() bool) {
		return time.AfterFunc(d, f).Stop
	}
)
