package updater

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"provisioncode-go/bus"
	"provisioncode-go/errcode"
	"provisioncode-go/types"
	"provisioncode-go/x/timex"
)

// ErrBusy is returned to a second concurrent upload.
var ErrBusy = errors.New("update already in progress")

var (
	topicBegin    = bus.Topic{types.TokUpdate, types.TokBegin}
	topicProgress = bus.Topic{types.TokUpdate, types.TokProgress}
	topicEnd      = bus.Topic{types.TokUpdate, types.TokEnd}
)

// Options tune the service. Zero values get defaults.
type Options struct {
	Name    string               // device name shown on the info page
	Version string               // version string shown on the info page
	Sink    func() (Sink, error) // image sink factory, default per platform
	Clock   timex.Clock
}

type instance struct {
	handle types.UpdateHandle
	ln     net.Listener
	srv    *http.Server
	link   types.LinkInfo
}

// Service owns at most one live listener instance. Start while running
// returns the live handle; Stop with a stale handle is a no-op.
type Service struct {
	conn  *bus.Connection
	cfg   types.UpdaterConfig
	opts  Options
	clock timex.Clock
	hub   *hub
	boot  time.Time

	mu        sync.Mutex
	seq       types.UpdateHandle
	cur       *instance
	uploading bool
}

// New builds the service. Port 0 binds an ephemeral port.
func New(conn *bus.Connection, cfg types.UpdaterConfig, opts Options) *Service {
	if opts.Sink == nil {
		opts.Sink = defaultSink
	}
	if opts.Clock == nil {
		opts.Clock = timex.System{}
	}
	return &Service{
		conn:  conn,
		cfg:   cfg,
		opts:  opts,
		clock: opts.Clock,
		hub:   newHub(),
		boot:  opts.Clock.Now(),
	}
}

// Start binds the listener and begins serving. Idempotent while running.
func (s *Service) Start(link types.LinkInfo) (types.UpdateHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		return s.cur.handle, nil
	}

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Port))
	if err != nil {
		return 0, &errcode.E{C: errcode.ListenerFailed, Op: "updater.start", Err: err}
	}

	s.seq++
	inst := &instance{
		handle: s.seq,
		ln:     ln,
		link:   link,
	}
	inst.srv = &http.Server{
		Handler:           s.routes(inst),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.cur = inst
	go func() { _ = inst.srv.Serve(ln) }()

	println("HTTP: update server listening on", s.displayAddr(inst))
	return inst.handle, nil
}

// Stop tears down the instance identified by h. Stale handles are ignored.
func (s *Service) Stop(h types.UpdateHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.handle != h {
		return
	}
	_ = s.cur.srv.Close()
	s.cur = nil
	println("HTTP: update server stopped")
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Addr reports the live listener address, empty when stopped.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return ""
	}
	return s.cur.ln.Addr().String()
}

// displayAddr prefers the link's address over the wildcard listen address.
func (s *Service) displayAddr(inst *instance) string {
	port := strconv.Itoa(s.cfg.Port)
	if _, p, err := net.SplitHostPort(inst.ln.Addr().String()); err == nil {
		port = p
	}
	if inst.link.Addr != "" {
		return net.JoinHostPort(inst.link.Addr, port)
	}
	return inst.ln.Addr().String()
}

// ---- one upload at a time ----

func (s *Service) beginUpload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploading {
		return ErrBusy
	}
	s.uploading = true
	return nil
}

func (s *Service) endUpload() {
	s.mu.Lock()
	s.uploading = false
	s.mu.Unlock()
}

// ---- bus events ----

func (s *Service) publishBegin(total int64) {
	ev := types.UpdateBegin{Total: total, TS: timex.UnixMs(s.clock.Now())}
	s.conn.Publish(s.conn.NewMessage(topicBegin, ev, false))
	s.hub.broadcast(wsEvent{Kind: "begin", Begin: &ev})
}

func (s *Service) publishProgress(done, total int64) {
	ev := types.UpdateProgress{BytesDone: done, BytesTotal: total, TS: timex.UnixMs(s.clock.Now())}
	s.conn.Publish(s.conn.NewMessage(topicProgress, ev, false))
	s.hub.broadcast(wsEvent{Kind: "progress", Progress: &ev})
}

func (s *Service) publishEnd(ok bool, errMsg string, bytes int64, sum string) {
	ev := types.UpdateEnd{OK: ok, Err: errMsg, Bytes: bytes, SHA256: sum, TS: timex.UnixMs(s.clock.Now())}
	s.conn.Publish(s.conn.NewMessage(topicEnd, ev, false))
	s.hub.broadcast(wsEvent{Kind: "end", End: &ev})
}

// wsEvent is the envelope sent to /events watchers.
type wsEvent struct {
	Kind     string                `json:"kind"`
	Begin    *types.UpdateBegin    `json:"begin,omitempty"`
	Progress *types.UpdateProgress `json:"progress,omitempty"`
	End      *types.UpdateEnd      `json:"end,omitempty"`
}
