// Package radio adapts a netlink WiFi driver to the provisioning surfaces:
// bounded station connect, AP mode for the portal, and a non-blocking link
// snapshot fed by driver notifications.
package radio

import (
	"net/netip"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers/netlink"

	"provisioncode-go/errcode"
	"provisioncode-go/types"
)

// AddrProvider reports the interface address once the link is up.
// netdev.Netdever satisfies this; the linux AT-modem driver provides its own.
type AddrProvider interface {
	Addr() (netip.Addr, error)
}

// Link drives one netlink device. Up() is safe to call from any goroutine;
// everything else runs on the owning service goroutine.
type Link struct {
	link  netlink.Netlinker
	addrs AddrProvider

	up      uint32 // driver notifications land here, possibly from an ISR
	powered uint32
	apMode  bool
}

func NewLink(l netlink.Netlinker, addrs AddrProvider) *Link {
	r := &Link{link: l, addrs: addrs, powered: 1}
	l.NetNotify(r.onEvent)
	return r
}

func (r *Link) onEvent(e netlink.Event) {
	switch e {
	case netlink.EventNetUp:
		atomic.StoreUint32(&r.up, 1)
	case netlink.EventNetDown:
		atomic.StoreUint32(&r.up, 0)
	}
}

func (r *Link) PowerOn() error {
	atomic.StoreUint32(&r.powered, 1)
	return nil
}

// PowerOff drops any association. Most WiFi co-processors have no separate
// power rail under netlink; disconnected with the powered flag cleared is as
// far down as the driver goes.
func (r *Link) PowerOff() {
	r.link.NetDisconnect()
	atomic.StoreUint32(&r.up, 0)
	atomic.StoreUint32(&r.powered, 0)
}

func (r *Link) Connect(cred types.Credential, timeout time.Duration) error {
	if atomic.LoadUint32(&r.powered) == 0 {
		return errcode.RadioOff
	}
	err := r.link.NetConnect(&netlink.ConnectParams{
		Ssid:           cred.SSID,
		Passphrase:     cred.Passphrase,
		ConnectMode:    netlink.ConnectModeSTA,
		ConnectTimeout: timeout,
		Retries:        1,
	})
	if err != nil {
		return err
	}
	r.apMode = false
	atomic.StoreUint32(&r.up, 1)
	return nil
}

func (r *Link) Disconnect() {
	r.link.NetDisconnect()
	atomic.StoreUint32(&r.up, 0)
}

func (r *Link) Up() bool {
	return atomic.LoadUint32(&r.powered) == 1 &&
		atomic.LoadUint32(&r.up) == 1 &&
		!r.apMode
}

func (r *Link) Addr() netip.Addr {
	if r.addrs == nil {
		return netip.Addr{}
	}
	a, err := r.addrs.Addr()
	if err != nil {
		return netip.Addr{}
	}
	return a
}

// StartAP brings the radio up as an open access point for the portal.
func (r *Link) StartAP(ssid string) error {
	err := r.link.NetConnect(&netlink.ConnectParams{
		Ssid:        ssid,
		ConnectMode: netlink.ConnectModeAP,
	})
	if err != nil {
		return err
	}
	r.apMode = true
	return nil
}

func (r *Link) StopAP() {
	if !r.apMode {
		return
	}
	r.link.NetDisconnect()
	r.apMode = false
	atomic.StoreUint32(&r.up, 0)
}
