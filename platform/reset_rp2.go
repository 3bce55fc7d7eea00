//go:build rp2040 || rp2350

package platform

import "machine"

// Reboot resets the CPU. It does not return.
func Reboot() {
	machine.CPUReset()
}
