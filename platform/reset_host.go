//go:build !rp2040 && !rp2350

package platform

import "os"

// Reboot exits the process. On a host build the supervisor owns the
// restart.
func Reboot() {
	os.Exit(0)
}
