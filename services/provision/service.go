package provision

import (
	"context"
	"time"

	"provisioncode-go/bus"
	"provisioncode-go/errcode"
	"provisioncode-go/types"
	"provisioncode-go/x/jsonx"
	"provisioncode-go/x/timex"
)

var (
	topicConfig  = bus.Topic{types.TokConfig, types.TokProvision}
	topicButton  = bus.Topic{types.TokInput, types.TokButton}
	topicUpdate  = bus.Topic{types.TokUpdate, bus.WildcardAll}
	topicControl = bus.Topic{types.TokProvision, types.TokControl, bus.WildcardOne}
	topicState   = bus.Topic{types.TokProvision, types.TokState}
	topicLink    = bus.Topic{types.TokNet, types.TokLink}
	topicSvc     = bus.Topic{types.TokSvc, types.TokProvision, types.TokState}
)

// Options tune the service loop. Zero values get defaults.
type Options struct {
	Config    types.ProvisionConfig // initial config until one arrives on the bus
	Reboot    func()                // invoked after a successful update's grace delay
	PollEvery time.Duration         // machine poll cadence, default 250 ms
	BootDelay time.Duration         // auto-connect fallback when no config arrives, default 1 s
}

// Service runs the connectivity machine on the bus: button presses, update
// events and control requests in; retained state and link snapshots out.
type Service struct {
	conn   *bus.Connection
	m      *Machine
	clock  timex.Clock
	reboot func()
	poll   time.Duration
	boot   time.Duration

	cfg      types.ProvisionConfig
	autoDone bool
}

// New wires the machine to a bus connection. The service itself is the
// machine's Events sink; anything set in deps.Events is replaced.
func New(conn *bus.Connection, deps Deps, opts Options) *Service {
	if opts.PollEvery <= 0 {
		opts.PollEvery = 250 * time.Millisecond
	}
	if opts.BootDelay <= 0 {
		opts.BootDelay = time.Second
	}
	cfg := opts.Config
	if cfg == (types.ProvisionConfig{}) {
		cfg = types.DefaultProvisionConfig()
	}
	cfg = cfg.Normalize()
	if deps.Clock == nil {
		deps.Clock = timex.System{}
	}

	s := &Service{
		conn:   conn,
		clock:  deps.Clock,
		reboot: opts.Reboot,
		poll:   opts.PollEvery,
		boot:   opts.BootDelay,
		cfg:    cfg,
	}
	deps.Events = s
	s.m = NewMachine(deps, cfg)
	return s
}

// Machine exposes the wrapped state machine for direct inspection.
func (s *Service) Machine() *Machine { return s.m }

func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	btnSub := s.conn.Subscribe(topicButton)
	updSub := s.conn.Subscribe(topicUpdate)
	ctrlSub := s.conn.Subscribe(topicControl)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(btnSub)
	defer s.conn.Unsubscribe(updSub)
	defer s.conn.Unsubscribe(ctrlSub)

	// Seed the retained topics so late subscribers always resolve.
	s.StateChanged(types.StateChange{To: s.m.State(), Reason: "boot", TS: timex.UnixMs(s.clock.Now())})
	s.LinkChanged(types.LinkInfo{Link: types.LinkDown, TS: timex.UnixMs(s.clock.Now())})
	s.publishSvcState("idle", "awaiting_config")

	bootTimer := time.NewTimer(s.boot)
	defer bootTimer.Stop()
	tick := time.NewTicker(s.poll)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.publishSvcState("stopped", "context_cancelled")
			return

		case msg := <-cfgSub.Channel():
			s.applyConfig(msg.Payload)
			s.autoConnect()

		case msg := <-btnSub.Channel():
			cmd, ok := msg.Payload.(types.ButtonCommand)
			if !ok && jsonx.Decode(msg.Payload, &cmd) != nil {
				continue
			}
			s.m.HandleButton(cmd)

		case msg := <-updSub.Channel():
			s.handleUpdateEvent(msg)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-bootTimer.C:
			s.autoConnect()

		case <-tick.C:
			s.m.Poll()
		}
	}
}

// applyConfig overlays the payload on the current config so absent fields
// keep their values.
func (s *Service) applyConfig(payload any) {
	cfg := s.cfg
	if typed, ok := payload.(types.ProvisionConfig); ok {
		cfg = typed
	} else if err := jsonx.Decode(payload, &cfg); err != nil {
		println("CONFIG: bad provision config:", err.Error())
		return
	}
	cfg = cfg.Normalize()
	s.cfg = cfg
	s.m.ApplyConfig(cfg)
	s.publishSvcState("ready", "configured")
}

// autoConnect fires the boot-time stored-credential attempt at most once,
// on first config or on the boot timer, whichever comes first.
func (s *Service) autoConnect() {
	if s.autoDone {
		return
	}
	s.autoDone = true
	if s.cfg.AutoConnect && s.m.State() == types.StateIdle {
		println("SETUP: auto-connect")
		s.m.RequestProvision()
	}
}

func (s *Service) handleUpdateEvent(msg *bus.Message) {
	if len(msg.Topic) != 2 {
		return
	}
	switch msg.Topic[1] {
	case types.TokBegin:
		ev, ok := msg.Payload.(types.UpdateBegin)
		if !ok && jsonx.Decode(msg.Payload, &ev) != nil {
			return
		}
		s.m.HandleUpdateBegin(ev)
	case types.TokProgress:
		ev, ok := msg.Payload.(types.UpdateProgress)
		if !ok && jsonx.Decode(msg.Payload, &ev) != nil {
			return
		}
		s.m.HandleUpdateProgress(ev)
	case types.TokEnd:
		ev, ok := msg.Payload.(types.UpdateEnd)
		if !ok && jsonx.Decode(msg.Payload, &ev) != nil {
			return
		}
		s.m.HandleUpdateEnd(ev)
	}
}

func (s *Service) handleControl(msg *bus.Message) {
	if len(msg.Topic) != 3 {
		return
	}
	verb, _ := msg.Topic[2].(string)
	switch verb {
	case types.CtrlProvision:
		s.m.RequestProvision()
		s.reply(msg, types.OKReply{OK: true})
	case types.CtrlDisable:
		s.m.RequestShutdown()
		s.reply(msg, types.OKReply{OK: true})
	case types.CtrlStatus:
		s.reply(msg, types.StatusReply{
			State:    s.m.State(),
			LinkLost: s.m.LinkLost(),
			TS:       timex.UnixMs(s.clock.Now()),
		})
	default:
		s.replyErr(msg, string(errcode.InvalidParams))
	}
}

// ---- machine events ----

func (s *Service) StateChanged(c types.StateChange) {
	s.conn.Publish(s.conn.NewMessage(topicState, c, true))
}

func (s *Service) LinkChanged(l types.LinkInfo) {
	s.conn.Publish(s.conn.NewMessage(topicLink, l, true))
}

func (s *Service) RebootRequested() {
	if s.reboot != nil {
		s.reboot()
	}
}

// ---- bus helpers ----

func (s *Service) publishSvcState(level, status string) {
	s.conn.Publish(s.conn.NewMessage(topicSvc, types.SvcState{
		Level:  level,
		Status: status,
		TS:     timex.UnixMs(s.clock.Now()),
	}, true))
}

func (s *Service) reply(req *bus.Message, p any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, p, false)
}

func (s *Service) replyErr(req *bus.Message, code string) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, types.ErrorReply{OK: false, Error: code}, false)
}
