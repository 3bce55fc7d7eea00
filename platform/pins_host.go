//go:build !rp2040 && !rp2350

package platform

import "sync"

// Pin is an in-memory level for host builds. The value is shared, so a
// sim harness can drive the level the button sampler reads and observe
// what the heartbeat writes to the LED.
type Pin struct {
	st *pinState
}

type pinState struct {
	mu    sync.Mutex
	n     int
	level bool
}

// ButtonPin returns a fake input resting at the pull-up level, high.
func ButtonPin(n int) Pin {
	return Pin{st: &pinState{n: n, level: true}}
}

// LEDPin returns a fake output, initially off.
func LEDPin(n int) Pin {
	return Pin{st: &pinState{n: n}}
}

func (p Pin) Number() int { return p.st.n }

func (p Pin) Get() bool {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return p.st.level
}

func (p Pin) Set(on bool) {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	p.st.level = on
}
