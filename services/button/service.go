package button

import (
	"context"
	"time"

	"provisioncode-go/bus"
	"provisioncode-go/types"
	"provisioncode-go/x/jsonx"
	"provisioncode-go/x/timex"
)

var (
	topicConfig = bus.Topic{types.TokConfig, types.TokButton}
	topicButton = bus.Topic{types.TokInput, types.TokButton}
)

// Pin is the raw level source. Get reports the electrical level, true = high.
type Pin interface {
	Get() bool
}

// Service samples the button pin and publishes classified presses on
// input/button. Press commands are not retained; only the boot-time
// PressNone is, so the topic always resolves for late subscribers.
type Service struct {
	conn *bus.Connection
	pin  Pin
	cfg  types.ButtonConfig
	mon  *Monitor
}

func New(conn *bus.Connection, pin Pin, cfg types.ButtonConfig) *Service {
	if cfg.SampleMs <= 0 {
		cfg = types.DefaultButtonConfig()
	}
	cfg = cfg.Normalize()
	return &Service{
		conn: conn,
		pin:  pin,
		cfg:  cfg,
		mon:  NewMonitor(cfg),
	}
}

func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)

	s.conn.Publish(s.conn.NewMessage(topicButton,
		types.ButtonCommand{Kind: types.PressNone, TS: timex.NowMs()}, true))

	tick := time.NewTicker(s.sampleEvery())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-cfgSub.Channel():
			cfg, ok := msg.Payload.(types.ButtonConfig)
			if !ok {
				cfg = s.cfg
				if jsonx.Decode(msg.Payload, &cfg) != nil {
					continue
				}
			}
			cfg = cfg.Normalize()
			s.cfg = cfg
			s.mon.ApplyConfig(cfg)
			tick.Reset(s.sampleEvery())

		case now := <-tick.C:
			cmd := s.mon.Sample(s.logicalPressed(s.pin.Get()), now)
			if cmd.Kind != types.PressNone {
				s.conn.Publish(s.conn.NewMessage(topicButton, cmd, false))
			}
		}
	}
}

func (s *Service) sampleEvery() time.Duration {
	ms := s.cfg.SampleMs
	if ms <= 0 {
		ms = 10
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Service) logicalPressed(level bool) bool {
	if s.cfg.ActiveLow {
		return !level
	}
	return level
}
