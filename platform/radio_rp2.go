//go:build rp2040 || rp2350

package platform

import (
	"tinygo.org/x/drivers/netlink/probe"

	"provisioncode-go/radio"
)

// ProbeRadio detects the on-board WiFi chip and wraps it as a Link.
func ProbeRadio() *radio.Link {
	link, dev := probe.Probe()
	return radio.NewLink(link, dev)
}
