// Package portal runs the AP-mode provisioning session: an open setup
// network plus a small HTTP UI that captures wifi credentials and tries
// to join the chosen network. At most one session runs at a time and the
// session enforces its own timeout.
package portal

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"provisioncode-go/credstore"
	"provisioncode-go/errcode"
	"provisioncode-go/types"
	"provisioncode-go/x/strx"
)

// ErrBusy is returned by Start while a session is already open.
var ErrBusy = errors.New("portal session already running")

// Radio is the slice of the radio the portal drives: AP mode for the
// session itself and one bounded STA join once credentials arrive.
type Radio interface {
	StartAP(ssid string) error
	StopAP()
	Connect(cred types.Credential, timeout time.Duration) error
	Up() bool
}

// Options tune a Service beyond PortalConfig.
type Options struct {
	Name           string        // device name on pages, default "provisioner"
	Version        string        // firmware version for /info
	ConnectTimeout time.Duration // bound on the post-save join, default 10s
}

type session struct {
	ln    net.Listener
	srv   *http.Server
	timer *time.Timer
}

// Service owns at most one provisioning session.
type Service struct {
	radio Radio
	store credstore.Store
	cfg   types.PortalConfig
	opts  Options

	mu   sync.Mutex
	sess *session

	// joinMu serializes join attempts so two quick form submits cannot
	// fight over the radio.
	joinMu sync.Mutex
}

func New(radio Radio, store credstore.Store, cfg types.PortalConfig, opts Options) *Service {
	if cfg == (types.PortalConfig{}) {
		cfg = types.DefaultPortalConfig()
	}
	opts.Name = strx.Coalesce(opts.Name, "provisioner")
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return &Service{radio: radio, store: store, cfg: cfg, opts: opts}
}

// Start opens the setup network and serves the config UI until Stop or
// the session timeout. A second Start while running returns ErrBusy.
func (s *Service) Start(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return &errcode.E{C: errcode.PortalBusy, Op: "portal.start", Err: ErrBusy}
	}
	if err := s.radio.StartAP(s.cfg.SSID); err != nil {
		return &errcode.E{C: errcode.PortalFailed, Op: "portal.start", Err: err}
	}
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Port))
	if err != nil {
		s.radio.StopAP()
		return &errcode.E{C: errcode.PortalFailed, Op: "portal.start", Err: err}
	}
	sess := &session{
		ln:  ln,
		srv: &http.Server{Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second},
	}
	sess.timer = time.AfterFunc(timeout, s.expire)
	s.sess = sess
	go func() { _ = sess.srv.Serve(ln) }()
	println("CONFIG: portal started (ssid " + s.cfg.SSID + ")")
	return nil
}

// Running reports whether a session is open.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess != nil
}

// Addr returns the UI listener address, or "" when no session is open.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return ""
	}
	return s.sess.ln.Addr().String()
}

// Stop closes the session. Safe to call when none is running.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Service) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return
	}
	println("CONFIG: portal timeout")
	s.stopLocked()
}

func (s *Service) stopLocked() {
	if s.sess == nil {
		return
	}
	s.sess.timer.Stop()
	s.sess.srv.Close()
	s.radio.StopAP()
	s.sess = nil
	println("CONFIG: portal closed")
}

// join tears the setup network down and tries the freshly saved
// credential. On failure the setup network comes back so the operator
// can retry, as long as the session is still open.
func (s *Service) join(cred types.Credential) {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()
	if s.radio.Up() {
		return
	}
	s.radio.StopAP()
	err := s.radio.Connect(cred, s.opts.ConnectTimeout)
	if err == nil {
		return
	}
	println("CONFIG: join failed:", err.Error())

	// Restart the setup network under the session lock so a concurrent
	// Stop cannot leave the AP on after teardown.
	s.mu.Lock()
	if s.sess != nil {
		if apErr := s.radio.StartAP(s.cfg.SSID); apErr != nil {
			println("CONFIG: setup network restart failed:", apErr.Error())
		}
	}
	s.mu.Unlock()
}
