//go:build !rp2040 && !rp2350

package radio

import (
	"net/netip"
	"sync"
	"time"

	"provisioncode-go/errcode"
	"provisioncode-go/types"
)

// Sim is a scriptable radio for host runs: the daemon's demo mode and
// integration tests. Knobs are safe to poke from test goroutines.
type Sim struct {
	mu sync.Mutex

	powered bool
	up      bool
	ap      string
	addr    netip.Addr

	// AcceptSSID limits which credential connects; empty accepts any.
	AcceptSSID string
	// ConnectErr, when set, fails the next Connect and is then cleared.
	ConnectErr error
	// ConnectDelay simulates association latency, capped at the timeout.
	ConnectDelay time.Duration
}

func NewSim() *Sim {
	return &Sim{
		powered: true,
		addr:    netip.MustParseAddr("192.168.1.64"),
	}
}

func (s *Sim) PowerOn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powered = true
	return nil
}

func (s *Sim) PowerOff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powered = false
	s.up = false
	s.ap = ""
}

func (s *Sim) Connect(cred types.Credential, timeout time.Duration) error {
	s.mu.Lock()
	delay := s.ConnectDelay
	s.mu.Unlock()
	if delay > 0 {
		if delay > timeout {
			delay = timeout
		}
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.powered {
		return errcode.RadioOff
	}
	if s.ConnectErr != nil {
		err := s.ConnectErr
		s.ConnectErr = nil
		return err
	}
	if s.AcceptSSID != "" && cred.SSID != s.AcceptSSID {
		return errcode.ConnectFailed
	}
	s.up = true
	return nil
}

func (s *Sim) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.up = false
}

func (s *Sim) Up() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.powered && s.up && s.ap == ""
}

func (s *Sim) Addr() netip.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.up {
		return netip.Addr{}
	}
	return s.addr
}

func (s *Sim) StartAP(ssid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.powered {
		return errcode.RadioOff
	}
	s.ap = ssid
	return nil
}

func (s *Sim) StopAP() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ap = ""
}

// APActive reports the announced SSID, for tests and the portal page.
func (s *Sim) APActive() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ap, s.ap != ""
}

// DropLink simulates losing the association mid-session.
func (s *Sim) DropLink() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.up = false
}

// RestoreLink simulates the association coming back.
func (s *Sim) RestoreLink() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.powered {
		s.up = true
	}
}
