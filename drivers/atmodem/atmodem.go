// Package atmodem drives an ESP-AT WiFi modem over a serial port and
// exposes it through the netlink interfaces, so it can stand in for an
// on-board radio:
//
//	m := atmodem.New(port)
//	err := m.Init(ctx)       // handshake, echo off
//	link := radio.NewLink(m, m)
//
// The modem speaks the stock Espressif AT command set: CWJAP to join a
// network, CWSAP for the setup access point, CIFSR for the assigned
// address. Unsolicited "WIFI DISCONNECT" reports surface as netlink
// events.
package atmodem

import (
	"context"
	"errors"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/drivers/netlink"
)

// Port is the serial line to the modem. Reads must honour the context.
type Port interface {
	Write(b []byte) (int, error)
	RecvSomeContext(ctx context.Context, buf []byte) (int, error)
}

// Errors returned by the driver.
var (
	ErrTimeout    = errors.New("atmodem: timeout")
	ErrCommand    = errors.New("atmodem: command rejected")
	ErrJoinFailed = errors.New("atmodem: join failed")
	ErrNoSSID     = errors.New("atmodem: empty ssid")
	ErrNoAddress  = errors.New("atmodem: no address assigned")
	ErrNoUART     = errors.New("atmodem: no such uart")
)

// AT commands without arguments.
const (
	cmdPing      = "AT"
	cmdEchoOff   = "ATE0"
	cmdModeSTA   = "AT+CWMODE=1"
	cmdModeAP    = "AT+CWMODE=2"
	cmdQuit      = "AT+CWQAP"
	cmdAddrQuery = "AT+CIFSR"
)

// Unsolicited report lines.
const (
	urcConnected  = "WIFI CONNECTED"
	urcGotIP      = "WIFI GOT IP"
	urcDisconnect = "WIFI DISCONNECT"
)

const (
	cmdTimeout  = 2 * time.Second
	joinTimeout = 15 * time.Second
	apTimeout   = 5 * time.Second

	setupChannel = 6 // WiFi channel for the setup access point
)

// Modem serializes AT commands over a Port and tracks link state from
// the modem's unsolicited reports.
type Modem struct {
	port Port

	// cmdMu serializes command/response exchanges.
	cmdMu sync.Mutex
	lines chan string

	mu     sync.Mutex
	joined bool
	ap     bool
	notify func(netlink.Event)

	cancel context.CancelFunc
}

// New wraps a port and starts the reader. Call Init before first use.
func New(port Port) *Modem {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Modem{
		port:   port,
		lines:  make(chan string, 16),
		cancel: cancel,
	}
	go m.readLoop(ctx)
	return m
}

// Close stops the reader. The port stays open; its opener owns it.
func (m *Modem) Close() {
	m.cancel()
}

// Init checks the modem is alive and turns command echo off.
func (m *Modem) Init(ctx context.Context) error {
	if _, err := m.cmd(ctx, cmdPing); err != nil {
		return err
	}
	_, err := m.cmd(ctx, cmdEchoOff)
	return err
}

// NetConnect joins a network in station mode, or brings up the setup
// access point when params selects AP mode.
func (m *Modem) NetConnect(params *netlink.ConnectParams) error {
	if params.Ssid == "" {
		return ErrNoSSID
	}
	if params.ConnectMode == netlink.ConnectModeAP {
		return m.startAP(params.Ssid)
	}
	return m.join(params)
}

func (m *Modem) join(params *netlink.ConnectParams) error {
	timeout := params.ConnectTimeout
	if timeout <= 0 {
		timeout = joinTimeout
	}
	attempts := params.Retries
	if attempts < 1 {
		attempts = 1
	}

	join := "AT+CWJAP=\"" + escape(params.Ssid) + "\",\"" + escape(params.Passphrase) + "\""
	var last error
	for i := 0; i < attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		_, err := m.cmd(ctx, cmdModeSTA)
		if err == nil {
			_, err = m.cmd(ctx, join)
		}
		cancel()
		if err == nil {
			m.mu.Lock()
			m.joined = true
			m.ap = false
			m.mu.Unlock()
			return nil
		}
		if errors.Is(err, ErrCommand) {
			err = ErrJoinFailed
		}
		last = err
	}
	return last
}

func (m *Modem) startAP(ssid string) error {
	ctx, cancel := context.WithTimeout(context.Background(), apTimeout)
	defer cancel()
	if _, err := m.cmd(ctx, cmdModeAP); err != nil {
		return err
	}
	sap := "AT+CWSAP=\"" + escape(ssid) + "\",\"\"," + strconv.Itoa(setupChannel) + ",0"
	if _, err := m.cmd(ctx, sap); err != nil {
		return err
	}
	m.mu.Lock()
	m.ap = true
	m.mu.Unlock()
	return nil
}

// NetDisconnect leaves the joined network, or tears down the setup
// access point by dropping back to station mode.
func (m *Modem) NetDisconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()
	m.mu.Lock()
	ap := m.ap
	m.ap = false
	m.joined = false
	m.mu.Unlock()
	if ap {
		_, _ = m.cmd(ctx, cmdModeSTA)
		return
	}
	_, _ = m.cmd(ctx, cmdQuit)
}

// NetNotify registers the link event callback. Events fire from the
// reader goroutine.
func (m *Modem) NetNotify(cb func(netlink.Event)) {
	m.mu.Lock()
	m.notify = cb
	m.mu.Unlock()
}

// Addr queries the modem for its current address: the station address
// when joined, the access point address while the setup network is up.
func (m *Modem) Addr() (netip.Addr, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()
	lines, err := m.cmd(ctx, cmdAddrQuery)
	if err != nil {
		return netip.Addr{}, err
	}
	m.mu.Lock()
	want := "+CIFSR:STAIP,"
	if m.ap {
		want = "+CIFSR:APIP,"
	}
	m.mu.Unlock()
	for _, l := range lines {
		if !strings.HasPrefix(l, want) {
			continue
		}
		return netip.ParseAddr(strings.Trim(l[len(want):], "\""))
	}
	return netip.Addr{}, ErrNoAddress
}

// cmd writes one command line and collects the response up to the
// terminal OK/ERROR/FAIL.
func (m *Modem) cmd(ctx context.Context, line string) ([]string, error) {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	// Drop response lines a timed-out predecessor left behind.
drain:
	for {
		select {
		case <-m.lines:
		default:
			break drain
		}
	}

	if _, err := m.port.Write([]byte(line + "\r\n")); err != nil {
		return nil, err
	}

	var got []string
	for {
		select {
		case l := <-m.lines:
			switch l {
			case "OK":
				return got, nil
			case "ERROR":
				return got, ErrCommand
			case "FAIL":
				return got, ErrJoinFailed
			}
			if l == line {
				continue // command echo before ATE0 takes effect
			}
			got = append(got, l)
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return got, ErrTimeout
			}
			return got, ctx.Err()
		}
	}
}

func (m *Modem) readLoop(ctx context.Context) {
	var (
		buf  [64]byte
		line []byte
	)
	for {
		n, err := m.port.RecvSomeContext(ctx, buf[:])
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			if b == '\n' {
				m.dispatch(strings.TrimRight(string(line), "\r"))
				line = line[:0]
				continue
			}
			if len(line) >= 512 {
				line = line[:0] // runaway line, resync on next newline
			}
			line = append(line, b)
		}
	}
}

// dispatch routes one complete line: unsolicited link reports update
// state and fire the callback, everything else feeds the pending
// command.
func (m *Modem) dispatch(line string) {
	switch line {
	case "":
		return
	case urcConnected:
		return
	case urcGotIP:
		m.event(true)
		return
	case urcDisconnect:
		m.event(false)
		return
	}
	select {
	case m.lines <- line:
	default:
		// No command waiting and the buffer is full. Stale chatter.
	}
}

func (m *Modem) event(up bool) {
	m.mu.Lock()
	m.joined = up
	cb := m.notify
	m.mu.Unlock()
	if cb == nil {
		return
	}
	if up {
		cb(netlink.EventNetUp)
		return
	}
	cb(netlink.EventNetDown)
}

// escape quotes an AT string argument: backslash, quote and comma are
// special per the Espressif command syntax.
func escape(s string) string {
	if !strings.ContainsAny(s, "\\\",") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '"', ',':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
