package button

import (
	"time"

	"provisioncode-go/types"
	"provisioncode-go/x/timex"
)

// Monitor turns a stream of sampled button levels into press commands. It is
// pure and edge-triggered: at most one command per press/release cycle,
// emitted on the release edge once the held duration is known.
type Monitor struct {
	cfg     types.ButtonConfig
	pressed bool
	downAt  time.Time
}

func NewMonitor(cfg types.ButtonConfig) *Monitor {
	return &Monitor{cfg: cfg}
}

// ApplyConfig swaps thresholds. An in-flight press keeps its press time and
// is classified with the new thresholds on release.
func (m *Monitor) ApplyConfig(cfg types.ButtonConfig) {
	m.cfg = cfg
}

// Sample feeds one logical level (true = pressed) observed at now. Returns a
// command with Kind PressNone except on a qualifying release edge.
func (m *Monitor) Sample(pressed bool, now time.Time) types.ButtonCommand {
	switch {
	case pressed && !m.pressed:
		m.pressed = true
		m.downAt = now
	case !pressed && m.pressed:
		m.pressed = false
		held := now.Sub(m.downAt)
		if kind := m.classify(held); kind != types.PressNone {
			return types.ButtonCommand{
				Kind:   kind,
				HeldMs: uint32(held / time.Millisecond),
				TS:     timex.UnixMs(now),
			}
		}
	}
	return types.ButtonCommand{Kind: types.PressNone}
}

func (m *Monitor) classify(held time.Duration) types.PressKind {
	switch {
	case held >= time.Duration(m.cfg.LongHoldMs)*time.Millisecond:
		return types.PressLong
	case held > time.Duration(m.cfg.DebounceMs)*time.Millisecond:
		return types.PressShort
	default:
		// Bounce, not a press.
		return types.PressNone
	}
}
