package provision

import (
	"errors"
	"net/netip"
	"time"

	"provisioncode-go/credstore"
	"provisioncode-go/types"
	"provisioncode-go/x/mathx"
	"provisioncode-go/x/timex"
)

// Radio is the network link surface the machine drives. Connect blocks for at
// most the given timeout; everything else returns immediately.
type Radio interface {
	PowerOn() error
	PowerOff()
	Connect(cred types.Credential, timeout time.Duration) error
	Disconnect()
	Up() bool
	Addr() netip.Addr
}

// Updater serves the firmware update endpoint. Start while running is a
// no-op returning the live handle; Stop with a stale handle is a no-op.
type Updater interface {
	Start(link types.LinkInfo) (types.UpdateHandle, error)
	Stop(types.UpdateHandle)
	Running() bool
}

// Portal runs the interactive provisioning session. Start returns
// portal.ErrBusy while a session is active.
type Portal interface {
	Start(timeout time.Duration) error
	Running() bool
	Stop()
}

// Events receives machine notifications. Implementations must not block;
// they run on the polling goroutine.
type Events interface {
	StateChanged(types.StateChange)
	LinkChanged(types.LinkInfo)
	RebootRequested()
}

// Deps are the machine's collaborators.
type Deps struct {
	Radio   Radio
	Store   credstore.Store
	Updater Updater
	Portal  Portal
	Clock   timex.Clock
	Events  Events
}

// Updater recovery modes while serving.
const (
	restartNone   uint8 = iota
	restartIfDown       // link dropped; replace only a dead instance
	restartForce        // failed update; always replace the instance
)

// Machine is the connectivity state machine. It is single-threaded: all
// methods must be called from one goroutine (the owning service loop), and
// no method blocks beyond the bounded connect window.
type Machine struct {
	deps Deps
	cfg  types.ProvisionConfig

	state     types.ProvisionState
	linkLost  bool
	restart   uint8
	updHandle types.UpdateHandle
	ssid      string
	radioOn   bool

	lastLinkCheck   time.Time
	lastProgressLog time.Time
	rebootAt        time.Time

	portalNoted bool // "request ignored" logged once per portal session
}

// NewMachine builds the machine in Idle with the given configuration.
func NewMachine(deps Deps, cfg types.ProvisionConfig) *Machine {
	if deps.Clock == nil {
		deps.Clock = timex.System{}
	}
	return &Machine{
		deps:    deps,
		cfg:     cfg,
		state:   types.StateIdle,
		radioOn: true,
	}
}

func (m *Machine) State() types.ProvisionState { return m.state }

// LinkLost reports the degraded sub-condition while serving.
func (m *Machine) LinkLost() bool { return m.linkLost }

// ApplyConfig replaces the timing configuration. Takes effect from the next
// poll; an active portal session keeps its original deadline.
func (m *Machine) ApplyConfig(cfg types.ProvisionConfig) {
	m.cfg = cfg
}

func (m *Machine) connectTimeout() time.Duration {
	return time.Duration(m.cfg.ConnectTimeoutMs) * time.Millisecond
}

func (m *Machine) portalTimeout() time.Duration {
	return time.Duration(m.cfg.PortalTimeoutMs) * time.Millisecond
}

func (m *Machine) linkPoll() time.Duration {
	return time.Duration(m.cfg.LinkPollMs) * time.Millisecond
}

// HandleButton maps a classified press onto the machine.
func (m *Machine) HandleButton(cmd types.ButtonCommand) {
	switch cmd.Kind {
	case types.PressLong:
		m.RequestProvision()
	case types.PressShort:
		m.RequestShutdown()
	}
}

// RequestProvision starts a stored-credential connection attempt. In
// PortalActive and ConnectingSaved the request is ignored; in Disabled the
// radio is powered back on first.
func (m *Machine) RequestProvision() {
	switch m.state {
	case types.StatePortalActive:
		if !m.portalNoted {
			println("STATE: provision request ignored (portal active)")
			m.portalNoted = true
		}
		return
	case types.StateConnectingSaved:
		return
	case types.StateServingUpdates:
		println("STATE: provision request ignored (already serving)")
		return
	case types.StateDisabled:
		if err := m.deps.Radio.PowerOn(); err != nil {
			println("WIFI: radio power on failed:", err.Error())
			return
		}
		m.radioOn = true
	}
	m.beginConnect()
}

// beginConnect performs the bounded connect attempt. This is the only place
// the machine blocks, and only up to the configured connect timeout.
func (m *Machine) beginConnect() {
	m.transition(types.StateConnectingSaved, "provision_requested")

	cred, err := m.deps.Store.Load()
	if err != nil {
		if errors.Is(err, credstore.ErrNoCredential) {
			println("WIFI: no saved credentials")
		} else {
			println("WIFI: credential load failed:", err.Error())
		}
		m.fallToPortal("no_credential")
		return
	}

	m.ssid = cred.SSID
	println("WIFI: connecting to", cred.SSID)
	if err := m.deps.Radio.Connect(cred, m.connectTimeout()); err != nil {
		println("WIFI: connect failed:", err.Error())
		m.fallToPortal("connect_failed")
		return
	}

	m.announceLinkUp()
	m.enterServing("connected")
}

// fallToPortal opens the provisioning portal; if that fails the machine
// settles in Idle.
func (m *Machine) fallToPortal(reason string) {
	if err := m.deps.Portal.Start(m.portalTimeout()); err != nil {
		println("CONFIG: portal failed to start:", err.Error())
		m.transition(types.StateIdle, "portal_failed")
		return
	}
	m.portalNoted = false
	m.transition(types.StatePortalActive, reason)
}

// enterServing starts the update service and moves to ServingUpdates. A
// listener failure is a resource error: log, release the link, settle Idle.
func (m *Machine) enterServing(reason string) {
	h, err := m.deps.Updater.Start(m.currentLink())
	if err != nil {
		println("HTTP: update server failed to start:", err.Error())
		m.deps.Radio.Disconnect()
		m.noteLinkDown()
		m.transition(types.StateIdle, "listener_failed")
		return
	}
	m.updHandle = h
	m.restart = restartNone
	m.linkLost = false
	m.lastLinkCheck = m.deps.Clock.Now()
	m.transition(types.StateServingUpdates, reason)
}

// RequestShutdown tears everything down in fixed order: update service,
// portal, then radio. Always honored, from any state.
func (m *Machine) RequestShutdown() {
	println("STATE: shutdown requested")
	if m.deps.Updater.Running() {
		m.deps.Updater.Stop(m.updHandle)
	}
	if m.deps.Portal.Running() {
		m.deps.Portal.Stop()
	}
	if m.radioOn {
		m.deps.Radio.Disconnect()
		m.deps.Radio.PowerOff()
		m.radioOn = false
		println("WIFI: radio disabled")
	}
	m.noteLinkDown()
	m.rebootAt = time.Time{}
	m.linkLost = false
	m.restart = restartNone
	if m.state != types.StateDisabled {
		m.transition(types.StateDisabled, "operator_shutdown")
	}
}

// Poll advances time-driven behavior: portal session supervision, the
// periodic link check while serving, pending reboot and stale-updater
// recovery. Never blocks.
func (m *Machine) Poll() {
	now := m.deps.Clock.Now()

	switch m.state {
	case types.StatePortalActive:
		m.pollPortal()
	case types.StateServingUpdates:
		m.pollServing(now)
	}
}

func (m *Machine) pollPortal() {
	if m.deps.Radio.Up() {
		// Credentials saved through the portal and joined. The session may
		// stay open until its own deadline.
		m.ssid = m.savedSSID()
		m.announceLinkUp()
		m.enterServing("portal_provisioned")
		return
	}
	if !m.deps.Portal.Running() {
		m.transition(types.StateIdle, "portal_expired")
	}
}

func (m *Machine) pollServing(now time.Time) {
	if !m.rebootAt.IsZero() && !now.Before(m.rebootAt) {
		m.rebootAt = time.Time{}
		m.deps.Events.RebootRequested()
		return
	}

	if now.Sub(m.lastLinkCheck) >= m.linkPoll() {
		m.lastLinkCheck = now
		up := m.deps.Radio.Up()
		switch {
		case !up && !m.linkLost:
			m.linkLost = true
			if m.restart == restartNone {
				m.restart = restartIfDown
			}
			println("WIFI: connection lost")
			m.noteLinkDegraded()
			m.notify(types.StateServingUpdates, "link_lost")
		case up && m.linkLost:
			m.linkLost = false
			println("WIFI: connection restored")
			m.noteLinkUp()
			m.notify(types.StateServingUpdates, "link_restored")
		}
	}

	if m.restart != restartNone && !m.linkLost {
		m.recoverUpdater()
	}
}

// recoverUpdater replaces the update service instance per the pending
// restart mode: a forced restart always swaps instances, a link-loss restart
// only replaces one that died with the link.
func (m *Machine) recoverUpdater() {
	mode := m.restart
	m.restart = restartNone
	if mode == restartForce && m.deps.Updater.Running() {
		m.deps.Updater.Stop(m.updHandle)
	}
	if m.deps.Updater.Running() {
		return
	}
	h, err := m.deps.Updater.Start(m.currentLink())
	if err != nil {
		println("HTTP: update server restart failed:", err.Error())
		m.deps.Radio.Disconnect()
		m.noteLinkDown()
		m.transition(types.StateIdle, "listener_failed")
		return
	}
	m.updHandle = h
}

// HandleUpdateBegin logs the start of an upload.
func (m *Machine) HandleUpdateBegin(ev types.UpdateBegin) {
	if ev.Total >= 0 {
		println("OTA: update started (total", ev.Total, "bytes)")
	} else {
		println("OTA: update started")
	}
	m.lastProgressLog = time.Time{}
}

// HandleUpdateProgress logs progress, throttled to one line per interval.
func (m *Machine) HandleUpdateProgress(ev types.UpdateProgress) {
	now := m.deps.Clock.Now()
	interval := time.Duration(m.cfg.ProgressLogMs) * time.Millisecond
	if !m.lastProgressLog.IsZero() && now.Sub(m.lastProgressLog) < interval {
		return
	}
	m.lastProgressLog = now
	if ev.BytesTotal > 0 {
		pct := mathx.RoundDiv(uint64(ev.BytesDone)*100, uint64(ev.BytesTotal))
		println("OTA: progress", ev.BytesDone, "/", ev.BytesTotal, "bytes,", pct, "%")
	} else {
		println("OTA: progress", ev.BytesDone, "bytes")
	}
}

// HandleUpdateEnd schedules the post-update reboot on success; on failure
// the updater instance is marked stale and replaced on the next poll.
func (m *Machine) HandleUpdateEnd(ev types.UpdateEnd) {
	if ev.OK {
		println("OTA: update complete, rebooting")
		grace := time.Duration(m.cfg.RebootGraceMs) * time.Millisecond
		m.rebootAt = m.deps.Clock.Now().Add(grace)
		return
	}
	println("OTA: update failed:", ev.Err)
	m.restart = restartForce
}

// currentLink snapshots the link for the update service and observers.
func (m *Machine) currentLink() types.LinkInfo {
	info := types.LinkInfo{
		Link: types.LinkDown,
		TS:   timex.UnixMs(m.deps.Clock.Now()),
	}
	if m.deps.Radio.Up() {
		info.Link = types.LinkUp
		info.SSID = m.ssid
		if a := m.deps.Radio.Addr(); a.IsValid() {
			info.Addr = a.String()
		}
	}
	return info
}

func (m *Machine) savedSSID() string {
	cred, err := m.deps.Store.Load()
	if err != nil {
		return ""
	}
	return cred.SSID
}

// announceLinkUp logs the establish line and publishes the link snapshot.
func (m *Machine) announceLinkUp() {
	info := m.currentLink()
	println("WIFI: connected, IP address:", info.Addr)
	m.deps.Events.LinkChanged(info)
}

func (m *Machine) noteLinkUp() {
	m.deps.Events.LinkChanged(m.currentLink())
}

func (m *Machine) noteLinkDown() {
	m.deps.Events.LinkChanged(types.LinkInfo{
		Link: types.LinkDown,
		TS:   timex.UnixMs(m.deps.Clock.Now()),
	})
}

// noteLinkDegraded marks the serving-with-lost-link condition: the update
// service is still up, so the SSID stays in the snapshot for observers.
func (m *Machine) noteLinkDegraded() {
	m.deps.Events.LinkChanged(types.LinkInfo{
		Link: types.LinkDegraded,
		SSID: m.ssid,
		TS:   timex.UnixMs(m.deps.Clock.Now()),
	})
}

// transition moves to a new state and notifies observers.
func (m *Machine) transition(to types.ProvisionState, reason string) {
	from := m.state
	m.state = to
	println("STATE:", string(from), "->", string(to), "("+reason+")")
	m.deps.Events.StateChanged(types.StateChange{
		From:     from,
		To:       to,
		Reason:   reason,
		LinkLost: m.linkLost,
		TS:       timex.UnixMs(m.deps.Clock.Now()),
	})
}

// notify publishes a same-state change (degraded flag flips).
func (m *Machine) notify(state types.ProvisionState, reason string) {
	m.deps.Events.StateChanged(types.StateChange{
		From:     state,
		To:       state,
		Reason:   reason,
		LinkLost: m.linkLost,
		TS:       timex.UnixMs(m.deps.Clock.Now()),
	})
}
