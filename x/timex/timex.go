package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// UnixMs converts a time to Unix milliseconds.
func UnixMs(t time.Time) int64 { return t.UnixMilli() }

// Clock supplies the current time. Services take a Clock so state machines
// and throttles can be driven by a fake in tests.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }
