//go:build rp2040 || rp2350

package platform

import "machine"

// Pin wraps a machine pin with the level accessors the button sampler
// and the heartbeat LED consume.
type Pin struct {
	p machine.Pin
	n int
}

// ButtonPin claims pin n as an input with the pull-up enabled, for an
// active-low button wired to ground.
func ButtonPin(n int) Pin {
	p := machine.Pin(n)
	p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return Pin{p: p, n: n}
}

// LEDPin claims pin n as an output, initially off.
func LEDPin(n int) Pin {
	p := machine.Pin(n)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Set(false)
	return Pin{p: p, n: n}
}

func (p Pin) Number() int { return p.n }
func (p Pin) Get() bool   { return p.p.Get() }
func (p Pin) Set(on bool) { p.p.Set(on) }
