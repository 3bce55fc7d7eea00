package provision

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"provisioncode-go/credstore"
	"provisioncode-go/types"
	"provisioncode-go/x/timex"
)

// -----------------------------------------------------------------------------
// fakes
// -----------------------------------------------------------------------------

type fakeRadio struct {
	powered     bool
	up          bool
	connectErr  error
	connects    int
	disconnects int
	powerOffs   int
	lastCred    types.Credential
	lastTimeout time.Duration
	addr        netip.Addr
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{powered: true, addr: netip.MustParseAddr("192.168.1.77")}
}

func (f *fakeRadio) PowerOn() error { f.powered = true; return nil }

func (f *fakeRadio) PowerOff() { f.powered = false; f.up = false; f.powerOffs++ }

func (f *fakeRadio) Connect(cred types.Credential, timeout time.Duration) error {
	f.connects++
	f.lastCred = cred
	f.lastTimeout = timeout
	if f.connectErr != nil {
		return f.connectErr
	}
	f.up = true
	return nil
}

func (f *fakeRadio) Disconnect() { f.up = false; f.disconnects++ }

func (f *fakeRadio) Up() bool { return f.powered && f.up }

func (f *fakeRadio) Addr() netip.Addr { return f.addr }

type fakeUpdater struct {
	running  bool
	handle   types.UpdateHandle
	nextID   types.UpdateHandle
	startErr error
	starts   int
	stops    int
	lastLink types.LinkInfo
}

func (u *fakeUpdater) Start(link types.LinkInfo) (types.UpdateHandle, error) {
	if u.running {
		return u.handle, nil
	}
	if u.startErr != nil {
		return 0, u.startErr
	}
	u.starts++
	u.nextID++
	u.handle = u.nextID
	u.running = true
	u.lastLink = link
	return u.handle, nil
}

func (u *fakeUpdater) Stop(h types.UpdateHandle) {
	if u.running && h == u.handle {
		u.running = false
		u.stops++
	}
}

func (u *fakeUpdater) Running() bool { return u.running }

type fakePortal struct {
	running  bool
	startErr error
	starts   int
	stops    int
	timeout  time.Duration
}

func (p *fakePortal) Start(timeout time.Duration) error {
	if p.startErr != nil {
		return p.startErr
	}
	p.starts++
	p.running = true
	p.timeout = timeout
	return nil
}

func (p *fakePortal) Running() bool { return p.running }
func (p *fakePortal) Stop()         { p.running = false; p.stops++ }

type eventLog struct {
	states  []types.StateChange
	links   []types.LinkInfo
	reboots int
}

func (e *eventLog) StateChanged(c types.StateChange) { e.states = append(e.states, c) }
func (e *eventLog) LinkChanged(l types.LinkInfo)     { e.links = append(e.links, l) }
func (e *eventLog) RebootRequested()                 { e.reboots++ }

func (e *eventLog) lastState(t *testing.T) types.StateChange {
	t.Helper()
	if len(e.states) == 0 {
		t.Fatal("no state changes recorded")
	}
	return e.states[len(e.states)-1]
}

// -----------------------------------------------------------------------------
// harness
// -----------------------------------------------------------------------------

type harness struct {
	m      *Machine
	radio  *fakeRadio
	store  *credstore.Mem
	upd    *fakeUpdater
	portal *fakePortal
	clock  *timex.Fake
	ev     *eventLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		radio:  newFakeRadio(),
		store:  credstore.NewMem(),
		upd:    &fakeUpdater{},
		portal: &fakePortal{},
		clock:  timex.NewFake(),
		ev:     &eventLog{},
	}
	h.m = NewMachine(Deps{
		Radio:   h.radio,
		Store:   h.store,
		Updater: h.upd,
		Portal:  h.portal,
		Clock:   h.clock,
		Events:  h.ev,
	}, types.DefaultProvisionConfig())
	return h
}

func (h *harness) saveCred() {
	h.store.Preload(types.Credential{SSID: "lab", Passphrase: "hunter2"})
}

// serve drives the machine from Idle into ServingUpdates.
func (h *harness) serve(t *testing.T) {
	t.Helper()
	h.saveCred()
	h.m.RequestProvision()
	if h.m.State() != types.StateServingUpdates {
		t.Fatalf("setup: expected serving_updates, got %s", h.m.State())
	}
}

// tick advances the clock and polls once.
func (h *harness) tick(d time.Duration) {
	h.clock.Advance(d)
	h.m.Poll()
}

func expectState(t *testing.T, h *harness, want types.ProvisionState) {
	t.Helper()
	if got := h.m.State(); got != want {
		t.Fatalf("state: got %s, want %s", got, want)
	}
}

// -----------------------------------------------------------------------------
// transitions
// -----------------------------------------------------------------------------

func TestBootsIdle(t *testing.T) {
	h := newHarness(t)
	expectState(t, h, types.StateIdle)
	if len(h.ev.states) != 0 {
		t.Fatalf("no transitions expected at boot, got %v", h.ev.states)
	}
}

func TestProvisionWithSavedCredentialServes(t *testing.T) {
	h := newHarness(t)
	h.saveCred()

	h.m.RequestProvision()

	expectState(t, h, types.StateServingUpdates)
	if h.radio.connects != 1 {
		t.Fatalf("expected one connect attempt, got %d", h.radio.connects)
	}
	if h.radio.lastCred.SSID != "lab" {
		t.Fatalf("connected with wrong credential: %+v", h.radio.lastCred)
	}
	if h.radio.lastTimeout != 10*time.Second {
		t.Fatalf("connect window not bounded: %v", h.radio.lastTimeout)
	}
	if h.upd.starts != 1 {
		t.Fatalf("expected update service started once, got %d", h.upd.starts)
	}
	if h.upd.lastLink.Link != types.LinkUp || h.upd.lastLink.SSID != "lab" {
		t.Fatalf("update service got wrong link context: %+v", h.upd.lastLink)
	}
	if h.upd.lastLink.Addr != "192.168.1.77" {
		t.Fatalf("update service missing address: %+v", h.upd.lastLink)
	}

	// Transition trace: idle -> connecting_saved -> serving_updates.
	if len(h.ev.states) != 2 {
		t.Fatalf("expected 2 transitions, got %v", h.ev.states)
	}
	if h.ev.states[0].To != types.StateConnectingSaved || h.ev.states[1].To != types.StateServingUpdates {
		t.Fatalf("unexpected transition trace: %v", h.ev.states)
	}
}

func TestProvisionWithoutCredentialOpensPortal(t *testing.T) {
	h := newHarness(t)

	h.m.RequestProvision()

	expectState(t, h, types.StatePortalActive)
	if h.radio.connects != 0 {
		t.Fatal("must not attempt connect without a credential")
	}
	if h.portal.starts != 1 {
		t.Fatalf("expected portal started once, got %d", h.portal.starts)
	}
	if h.portal.timeout != 180*time.Second {
		t.Fatalf("portal session timeout: got %v, want 180s", h.portal.timeout)
	}
}

func TestConnectFailureOpensPortal(t *testing.T) {
	h := newHarness(t)
	h.saveCred()
	h.radio.connectErr = errors.New("auth failed")

	h.m.RequestProvision()

	expectState(t, h, types.StatePortalActive)
	if h.upd.starts != 0 {
		t.Fatal("update service must not start without a link")
	}
}

func TestPortalStartFailureFallsToIdle(t *testing.T) {
	h := newHarness(t)
	h.portal.startErr = errors.New("ap init failed")

	h.m.RequestProvision()

	expectState(t, h, types.StateIdle)
	last := h.ev.lastState(t)
	if last.Reason != "portal_failed" {
		t.Fatalf("unexpected reason %q", last.Reason)
	}
}

func TestListenerFailureFallsToIdle(t *testing.T) {
	h := newHarness(t)
	h.saveCred()
	h.upd.startErr = errors.New("port busy")

	h.m.RequestProvision()

	expectState(t, h, types.StateIdle)
	if h.radio.disconnects == 0 {
		t.Fatal("link must be released when the listener cannot start")
	}
}

func TestPortalProvisionedMovesToServing(t *testing.T) {
	h := newHarness(t)
	h.m.RequestProvision()
	expectState(t, h, types.StatePortalActive)

	// Portal session saved a credential and joined the network.
	h.store.Preload(types.Credential{SSID: "garage", Passphrase: "x"})
	h.radio.up = true
	h.tick(time.Second)

	expectState(t, h, types.StateServingUpdates)
	if h.upd.lastLink.SSID != "garage" {
		t.Fatalf("link context not refreshed after portal save: %+v", h.upd.lastLink)
	}
	if h.portal.stops != 0 {
		t.Fatal("portal may remain open after provisioning")
	}
}

func TestPortalExpiryWithLinkServes(t *testing.T) {
	h := newHarness(t)
	h.m.RequestProvision()

	h.store.Preload(types.Credential{SSID: "garage", Passphrase: "x"})
	h.radio.up = true
	h.portal.running = false
	h.tick(time.Second)

	expectState(t, h, types.StateServingUpdates)
}

func TestPortalExpiryWithoutLinkIdles(t *testing.T) {
	h := newHarness(t)
	h.m.RequestProvision()

	h.portal.running = false
	h.tick(time.Second)

	expectState(t, h, types.StateIdle)
	if h.ev.lastState(t).Reason != "portal_expired" {
		t.Fatalf("unexpected reason %q", h.ev.lastState(t).Reason)
	}
}

func TestSecondProvisionRequestIgnoredWhilePortalActive(t *testing.T) {
	h := newHarness(t)
	h.m.RequestProvision()
	expectState(t, h, types.StatePortalActive)

	h.m.RequestProvision()
	h.m.RequestProvision()

	expectState(t, h, types.StatePortalActive)
	if h.portal.starts != 1 {
		t.Fatalf("expected a single portal session, got %d starts", h.portal.starts)
	}
}

// -----------------------------------------------------------------------------
// serving: link supervision
// -----------------------------------------------------------------------------

func TestLinkLossDegradesWithoutTeardown(t *testing.T) {
	h := newHarness(t)
	h.serve(t)

	h.radio.up = false
	h.tick(5 * time.Second)

	expectState(t, h, types.StateServingUpdates)
	if !h.m.LinkLost() {
		t.Fatal("expected degraded sub-condition")
	}
	if h.upd.stops != 0 {
		t.Fatal("update service must not be torn down on link loss")
	}
	last := h.ev.lastState(t)
	if last.Reason != "link_lost" || !last.LinkLost {
		t.Fatalf("unexpected change record: %+v", last)
	}
	if n := len(h.ev.links); n == 0 || h.ev.links[n-1].Link != types.LinkDegraded {
		t.Fatalf("link snapshot should be degraded, got %+v", h.ev.links)
	}
	if h.ev.links[len(h.ev.links)-1].SSID != "lab" {
		t.Fatal("degraded snapshot must keep the network name")
	}
}

func TestLinkCheckHonorsInterval(t *testing.T) {
	h := newHarness(t)
	h.serve(t)

	h.radio.up = false
	h.tick(2 * time.Second)

	if h.m.LinkLost() {
		t.Fatal("link check ran before its interval elapsed")
	}
	h.tick(3 * time.Second)
	if !h.m.LinkLost() {
		t.Fatal("link check missed after interval elapsed")
	}
}

func TestLinkRestoreKeepsSurvivingUpdater(t *testing.T) {
	h := newHarness(t)
	h.serve(t)

	h.radio.up = false
	h.tick(5 * time.Second)
	h.radio.up = true
	h.tick(5 * time.Second)

	expectState(t, h, types.StateServingUpdates)
	if h.m.LinkLost() {
		t.Fatal("degraded flag must clear on restore")
	}
	// The instance survived the outage; it is kept, not churned.
	if h.upd.starts != 1 || h.upd.stops != 0 {
		t.Fatalf("unexpected updater churn: starts=%d stops=%d", h.upd.starts, h.upd.stops)
	}
}

func TestLinkRestoreRestartsDeadUpdater(t *testing.T) {
	h := newHarness(t)
	h.serve(t)
	first := h.upd.handle

	h.radio.up = false
	h.tick(5 * time.Second)
	// The instance died with the link.
	h.upd.running = false

	h.radio.up = true
	h.tick(5 * time.Second)

	expectState(t, h, types.StateServingUpdates)
	if h.upd.starts != 2 {
		t.Fatalf("expected a fresh instance, starts=%d", h.upd.starts)
	}
	if h.upd.handle == first {
		t.Fatal("expected a new handle for the fresh instance")
	}
}

// -----------------------------------------------------------------------------
// updates
// -----------------------------------------------------------------------------

func TestSuccessfulUpdateRebootsAfterGrace(t *testing.T) {
	h := newHarness(t)
	h.serve(t)

	h.m.HandleUpdateEnd(types.UpdateEnd{OK: true, Bytes: 1024})
	h.m.Poll()
	if h.ev.reboots != 0 {
		t.Fatal("reboot must wait for the grace delay")
	}

	h.tick(2 * time.Second)
	if h.ev.reboots != 1 {
		t.Fatalf("expected reboot after grace, got %d", h.ev.reboots)
	}
}

func TestFailedUpdateForcesFreshInstance(t *testing.T) {
	h := newHarness(t)
	h.serve(t)
	first := h.upd.handle

	h.m.HandleUpdateEnd(types.UpdateEnd{OK: false, Err: "short write"})
	h.tick(time.Second)

	expectState(t, h, types.StateServingUpdates)
	if h.upd.stops != 1 || h.upd.starts != 2 {
		t.Fatalf("expected stop+start, got stops=%d starts=%d", h.upd.stops, h.upd.starts)
	}
	if h.upd.handle == first {
		t.Fatal("stale handle must not survive a failed update")
	}
	if h.ev.reboots != 0 {
		t.Fatal("failed update must not reboot")
	}
}

func TestProgressLoggingThrottled(t *testing.T) {
	// The throttle is time-based via the injected clock; this exercises the
	// bookkeeping rather than counting log lines.
	h := newHarness(t)
	h.serve(t)

	h.m.HandleUpdateBegin(types.UpdateBegin{Total: 4096})
	h.m.HandleUpdateProgress(types.UpdateProgress{BytesDone: 1024, BytesTotal: 4096})
	stamp := h.m.lastProgressLog

	h.clock.Advance(200 * time.Millisecond)
	h.m.HandleUpdateProgress(types.UpdateProgress{BytesDone: 2048, BytesTotal: 4096})
	if !h.m.lastProgressLog.Equal(stamp) {
		t.Fatal("progress log not throttled within the interval")
	}

	h.clock.Advance(time.Second)
	h.m.HandleUpdateProgress(types.UpdateProgress{BytesDone: 3072, BytesTotal: 4096})
	if h.m.lastProgressLog.Equal(stamp) {
		t.Fatal("progress log should emit after the interval")
	}
}

// -----------------------------------------------------------------------------
// shutdown
// -----------------------------------------------------------------------------

func TestShortPressTearsDownInOrder(t *testing.T) {
	h := newHarness(t)
	h.serve(t)

	h.m.HandleButton(types.ButtonCommand{Kind: types.PressShort})

	expectState(t, h, types.StateDisabled)
	if h.upd.stops != 1 {
		t.Fatalf("update service not stopped: %d", h.upd.stops)
	}
	if h.radio.powerOffs != 1 {
		t.Fatalf("radio not powered off: %d", h.radio.powerOffs)
	}
	if h.radio.disconnects == 0 {
		t.Fatal("radio not disconnected")
	}
}

func TestShortPressFromPortalStopsSession(t *testing.T) {
	h := newHarness(t)
	h.m.RequestProvision()
	expectState(t, h, types.StatePortalActive)

	h.m.HandleButton(types.ButtonCommand{Kind: types.PressShort})

	expectState(t, h, types.StateDisabled)
	if h.portal.stops != 1 {
		t.Fatalf("portal not stopped: %d", h.portal.stops)
	}
}

func TestShortPressIdempotentWhileDisabled(t *testing.T) {
	h := newHarness(t)
	h.m.HandleButton(types.ButtonCommand{Kind: types.PressShort})
	states := len(h.ev.states)

	h.m.HandleButton(types.ButtonCommand{Kind: types.PressShort})

	expectState(t, h, types.StateDisabled)
	if len(h.ev.states) != states {
		t.Fatal("repeated short press must not emit another transition")
	}
}

func TestShutdownCancelsPendingReboot(t *testing.T) {
	h := newHarness(t)
	h.serve(t)

	h.m.HandleUpdateEnd(types.UpdateEnd{OK: true})
	h.m.HandleButton(types.ButtonCommand{Kind: types.PressShort})
	h.tick(5 * time.Second)

	if h.ev.reboots != 0 {
		t.Fatal("operator shutdown must cancel the pending reboot")
	}
}

func TestLongHoldFromDisabledPowersOnAndConnects(t *testing.T) {
	h := newHarness(t)
	h.saveCred()
	h.m.HandleButton(types.ButtonCommand{Kind: types.PressShort})
	expectState(t, h, types.StateDisabled)

	h.m.HandleButton(types.ButtonCommand{Kind: types.PressLong})

	expectState(t, h, types.StateServingUpdates)
	if !h.radio.powered {
		t.Fatal("radio must be powered on before connecting")
	}
}

func TestLongHoldFromDisabledWithoutCredentialOpensPortal(t *testing.T) {
	h := newHarness(t)
	h.m.HandleButton(types.ButtonCommand{Kind: types.PressShort})

	h.m.HandleButton(types.ButtonCommand{Kind: types.PressLong})

	expectState(t, h, types.StatePortalActive)
}
