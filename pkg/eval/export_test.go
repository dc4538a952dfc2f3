package eval

var (
	TimeNow       = &timeNow
	TimeAfterFunc = &timeAfterFunc
)
