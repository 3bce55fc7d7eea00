package button

import (
	"testing"
	"time"

	"provisioncode-go/types"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func at(ms int64) time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }

// press simulates a full press/release cycle and returns the release command.
func press(m *Monitor, downMs, upMs int64) types.ButtonCommand {
	m.Sample(true, at(downMs))
	return m.Sample(false, at(upMs))
}

func TestBounceIgnored(t *testing.T) {
	m := NewMonitor(types.DefaultButtonConfig())
	if cmd := press(m, 0, 30); cmd.Kind != types.PressNone {
		t.Fatalf("30 ms bounce classified as %s", cmd.Kind)
	}
}

func TestShortPress(t *testing.T) {
	m := NewMonitor(types.DefaultButtonConfig())
	cmd := press(m, 0, 300)
	if cmd.Kind != types.PressShort {
		t.Fatalf("300 ms press classified as %s", cmd.Kind)
	}
	if cmd.HeldMs != 300 {
		t.Fatalf("held: got %d ms", cmd.HeldMs)
	}
}

func TestLongHold(t *testing.T) {
	m := NewMonitor(types.DefaultButtonConfig())
	if cmd := press(m, 0, 4500); cmd.Kind != types.PressLong {
		t.Fatalf("4.5 s hold classified as %s", cmd.Kind)
	}
}

func TestThresholdEdges(t *testing.T) {
	cases := []struct {
		heldMs int64
		want   types.PressKind
	}{
		{50, types.PressNone},  // debounce boundary is exclusive
		{51, types.PressShort},
		{2999, types.PressShort},
		{3000, types.PressLong}, // long boundary is inclusive
	}
	for _, tc := range cases {
		m := NewMonitor(types.DefaultButtonConfig())
		if cmd := press(m, 0, tc.heldMs); cmd.Kind != tc.want {
			t.Errorf("%d ms: got %s, want %s", tc.heldMs, cmd.Kind, tc.want)
		}
	}
}

func TestOneCommandPerCycle(t *testing.T) {
	m := NewMonitor(types.DefaultButtonConfig())

	// Held level repeats must not emit anything.
	m.Sample(true, at(0))
	for ms := int64(10); ms <= 5000; ms += 10 {
		if cmd := m.Sample(true, at(ms)); cmd.Kind != types.PressNone {
			t.Fatalf("command emitted while held at %d ms", ms)
		}
	}
	if cmd := m.Sample(false, at(5010)); cmd.Kind != types.PressLong {
		t.Fatalf("release after 5 s classified as %s", cmd.Kind)
	}
	// Released level repeats must not emit anything either.
	if cmd := m.Sample(false, at(5020)); cmd.Kind != types.PressNone {
		t.Fatalf("command emitted while released: %s", cmd.Kind)
	}
}

func TestBackToBackPresses(t *testing.T) {
	m := NewMonitor(types.DefaultButtonConfig())
	if cmd := press(m, 0, 300); cmd.Kind != types.PressShort {
		t.Fatalf("first press: %s", cmd.Kind)
	}
	if cmd := press(m, 400, 3500); cmd.Kind != types.PressLong {
		t.Fatalf("second press: %s", cmd.Kind)
	}
}

func TestApplyConfigMidPress(t *testing.T) {
	m := NewMonitor(types.DefaultButtonConfig())
	m.Sample(true, at(0))

	cfg := types.DefaultButtonConfig()
	cfg.LongHoldMs = 100
	m.ApplyConfig(cfg)

	// New threshold applies at release; press time is kept.
	if cmd := m.Sample(false, at(200)); cmd.Kind != types.PressLong {
		t.Fatalf("got %s after threshold change", cmd.Kind)
	}
}
