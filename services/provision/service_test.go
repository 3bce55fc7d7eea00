package provision

import (
	"context"
	"sync"
	"testing"
	"time"

	"provisioncode-go/bus"
	"provisioncode-go/credstore"
	"provisioncode-go/radio"
	"provisioncode-go/types"
)

// ---- bus-driven fakes ----
//
// The service runs on its own goroutine, so these fakes synchronize with the
// test through mutexes and notification channels rather than bare fields.

type startRec struct {
	handle types.UpdateHandle
	link   types.LinkInfo
}

type chanUpdater struct {
	mu      sync.Mutex
	running bool
	handle  types.UpdateHandle
	seq     types.UpdateHandle
	starts  chan startRec
	stops   chan types.UpdateHandle
}

func newChanUpdater() *chanUpdater {
	return &chanUpdater{
		starts: make(chan startRec, 8),
		stops:  make(chan types.UpdateHandle, 8),
	}
}

func (u *chanUpdater) Start(link types.LinkInfo) (types.UpdateHandle, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		return u.handle, nil
	}
	u.seq++
	u.handle = u.seq
	u.running = true
	select {
	case u.starts <- startRec{handle: u.handle, link: link}:
	default:
	}
	return u.handle, nil
}

func (u *chanUpdater) Stop(h types.UpdateHandle) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running && h == u.handle {
		u.running = false
		select {
		case u.stops <- h:
		default:
		}
	}
}

func (u *chanUpdater) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

type chanPortal struct {
	mu      sync.Mutex
	running bool
	starts  chan time.Duration
}

func newChanPortal() *chanPortal {
	return &chanPortal{starts: make(chan time.Duration, 8)}
}

func (p *chanPortal) Start(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = true
	select {
	case p.starts <- timeout:
	default:
	}
	return nil
}

func (p *chanPortal) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *chanPortal) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
}

// ---- fixture ----

type svcFixture struct {
	bus     *bus.Bus
	client  *bus.Connection
	sim     *radio.Sim
	store   *credstore.Mem
	upd     *chanUpdater
	portal  *chanPortal
	reboots chan struct{}
}

// startService runs the service on its own goroutine. prep runs before the
// goroutine starts and is the last safe moment for unguarded setup.
func startService(t *testing.T, cfg types.ProvisionConfig, prep func(*svcFixture)) *svcFixture {
	t.Helper()
	f := &svcFixture{
		bus:     bus.NewBus(16),
		sim:     radio.NewSim(),
		store:   credstore.NewMem(),
		upd:     newChanUpdater(),
		portal:  newChanPortal(),
		reboots: make(chan struct{}, 1),
	}
	f.client = f.bus.NewConnection("test")
	if prep != nil {
		prep(f)
	}

	svc := New(f.bus.NewConnection("provision"), Deps{
		Radio:   f.sim,
		Store:   f.store,
		Updater: f.upd,
		Portal:  f.portal,
	}, Options{
		Config: cfg,
		Reboot: func() {
			select {
			case f.reboots <- struct{}{}:
			default:
			}
		},
		PollEvery: 10 * time.Millisecond,
		BootDelay: 300 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Run(ctx)
	return f
}

func cfgNoAuto() types.ProvisionConfig {
	cfg := types.DefaultProvisionConfig()
	cfg.AutoConnect = false
	return cfg
}

func recvWithin[T any](t *testing.T, ch <-chan T, d time.Duration) (T, bool) {
	t.Helper()
	var zero T
	select {
	case v := <-ch:
		return v, true
	case <-time.After(d):
		return zero, false
	}
}

func waitState(t *testing.T, f *svcFixture, want types.ProvisionState) types.StateChange {
	t.Helper()
	sub := f.client.Subscribe(topicState)
	defer sub.Unsubscribe()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-sub.Channel():
			if c, ok := msg.Payload.(types.StateChange); ok && c.To == want {
				return c
			}
		case <-deadline:
			t.Fatalf("timeout waiting for state %s", want)
		}
	}
}

func control(t *testing.T, f *svcFixture, verb string) *bus.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := f.client.NewMessage(bus.Topic{types.TokProvision, types.TokControl, verb}, nil, false)
	reply, err := f.client.RequestWait(ctx, req)
	if err != nil {
		t.Fatalf("control %s failed: %v", verb, err)
	}
	return reply
}

// ---- tests ----

func TestRunSeedsRetainedTopics(t *testing.T) {
	f := startService(t, cfgNoAuto(), nil)

	stateSub := f.client.Subscribe(topicState)
	defer stateSub.Unsubscribe()
	if msg, ok := recvWithin(t, stateSub.Channel(), time.Second); !ok {
		t.Fatal("no retained provision/state")
	} else if c := msg.Payload.(types.StateChange); c.To != types.StateIdle || c.Reason != "boot" {
		t.Fatalf("unexpected boot state: %+v", c)
	}

	linkSub := f.client.Subscribe(topicLink)
	defer linkSub.Unsubscribe()
	if msg, ok := recvWithin(t, linkSub.Channel(), time.Second); !ok {
		t.Fatal("no retained net/link")
	} else if l := msg.Payload.(types.LinkInfo); l.Up() {
		t.Fatalf("link should boot down: %+v", l)
	}
}

func TestControlProvisionServes(t *testing.T) {
	f := startService(t, cfgNoAuto(), func(f *svcFixture) {
		f.store.Preload(types.Credential{SSID: "lab", Passphrase: "hunter2"})
	})

	reply := control(t, f, types.CtrlProvision)
	if ok, _ := reply.Payload.(types.OKReply); !ok.OK {
		t.Fatalf("unexpected reply: %+v", reply.Payload)
	}

	waitState(t, f, types.StateServingUpdates)
	rec, ok := recvWithin(t, f.upd.starts, time.Second)
	if !ok {
		t.Fatal("update service never started")
	}
	if rec.link.SSID != "lab" || !rec.link.Up() {
		t.Fatalf("update service got wrong link: %+v", rec.link)
	}
}

func TestControlStatus(t *testing.T) {
	f := startService(t, cfgNoAuto(), nil)

	reply := control(t, f, types.CtrlStatus)
	st, ok := reply.Payload.(types.StatusReply)
	if !ok {
		t.Fatalf("unexpected reply type: %+v", reply.Payload)
	}
	if st.State != types.StateIdle || st.LinkLost {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestControlUnknownVerb(t *testing.T) {
	f := startService(t, cfgNoAuto(), nil)

	reply := control(t, f, "reprovision")
	er, ok := reply.Payload.(types.ErrorReply)
	if !ok || er.OK {
		t.Fatalf("expected error reply, got %+v", reply.Payload)
	}
	if er.Error != "invalid_params" {
		t.Fatalf("unexpected error code %q", er.Error)
	}
}

func TestButtonShortDisables(t *testing.T) {
	f := startService(t, cfgNoAuto(), nil)

	f.client.Publish(f.client.NewMessage(topicButton, types.ButtonCommand{Kind: types.PressShort, HeldMs: 300}, false))

	c := waitState(t, f, types.StateDisabled)
	if c.Reason != "operator_shutdown" {
		t.Fatalf("unexpected reason %q", c.Reason)
	}
}

func TestAutoConnectOnConfig(t *testing.T) {
	f := startService(t, cfgNoAuto(), func(f *svcFixture) {
		f.store.Preload(types.Credential{SSID: "lab", Passphrase: "hunter2"})
	})

	cfg := types.DefaultProvisionConfig()
	f.client.Publish(f.client.NewMessage(topicConfig, cfg, true))

	waitState(t, f, types.StateServingUpdates)
}

func TestAutoConnectBootTimerWithoutConfig(t *testing.T) {
	f := startService(t, types.DefaultProvisionConfig(), func(f *svcFixture) {
		f.store.Preload(types.Credential{SSID: "lab", Passphrase: "hunter2"})
	})

	// No config service in this fixture; the boot timer fires the attempt.
	waitState(t, f, types.StateServingUpdates)
}

func TestFailedUpdateRestartsListener(t *testing.T) {
	f := startService(t, cfgNoAuto(), func(f *svcFixture) {
		f.store.Preload(types.Credential{SSID: "lab", Passphrase: "hunter2"})
	})
	control(t, f, types.CtrlProvision)
	first, ok := recvWithin(t, f.upd.starts, time.Second)
	if !ok {
		t.Fatal("update service never started")
	}

	f.client.Publish(f.client.NewMessage(
		bus.Topic{types.TokUpdate, types.TokEnd},
		types.UpdateEnd{OK: false, Err: "short write"},
		false,
	))

	if h, ok := recvWithin(t, f.upd.stops, time.Second); !ok {
		t.Fatal("stale instance never stopped")
	} else if h != first.handle {
		t.Fatalf("stopped wrong instance: %d != %d", h, first.handle)
	}
	second, ok := recvWithin(t, f.upd.starts, time.Second)
	if !ok {
		t.Fatal("replacement instance never started")
	}
	if second.handle == first.handle {
		t.Fatal("replacement reused the stale handle")
	}
}

func TestSuccessfulUpdateReboots(t *testing.T) {
	cfg := cfgNoAuto()
	cfg.RebootGraceMs = 30
	f := startService(t, cfg, func(f *svcFixture) {
		f.store.Preload(types.Credential{SSID: "lab", Passphrase: "hunter2"})
	})
	control(t, f, types.CtrlProvision)
	waitState(t, f, types.StateServingUpdates)

	f.client.Publish(f.client.NewMessage(
		bus.Topic{types.TokUpdate, types.TokEnd},
		types.UpdateEnd{OK: true, Bytes: 2048},
		false,
	))

	if _, ok := recvWithin(t, f.reboots, 2*time.Second); !ok {
		t.Fatal("reboot never requested")
	}
}

func TestPortalJoinMovesToServing(t *testing.T) {
	f := startService(t, cfgNoAuto(), nil)

	control(t, f, types.CtrlProvision)
	timeout, ok := recvWithin(t, f.portal.starts, time.Second)
	if !ok {
		t.Fatal("portal never started")
	}
	if timeout != 180*time.Second {
		t.Fatalf("portal timeout: got %v, want 180s", timeout)
	}

	// Portal session persists a credential and the radio joins.
	f.store.Preload(types.Credential{SSID: "garage", Passphrase: "x"})
	f.sim.RestoreLink()

	waitState(t, f, types.StateServingUpdates)
	rec, ok := recvWithin(t, f.upd.starts, time.Second)
	if !ok {
		t.Fatal("update service never started")
	}
	if rec.link.SSID != "garage" {
		t.Fatalf("wrong link context after portal join: %+v", rec.link)
	}
}
