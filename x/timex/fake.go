package timex

import "time"

// Fake is a manually advanced Clock for tests. Not safe for concurrent use;
// tests drive the code under test and the clock from one goroutine.
type Fake struct {
	t time.Time
}

// NewFake starts a fake clock at an arbitrary fixed instant.
func NewFake() *Fake {
	return &Fake{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *Fake) Now() time.Time { return f.t }

// Advance moves the clock forward.
func (f *Fake) Advance(d time.Duration) { f.t = f.t.Add(d) }
