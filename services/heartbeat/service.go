// Package heartbeat blinks the status LED and counts beats, publishing
// each one so host tooling can watch the device tick.
package heartbeat

import (
	"context"
	"time"

	"provisioncode-go/bus"
	"provisioncode-go/types"
	"provisioncode-go/x/jsonx"
)

var (
	topicConfig = bus.Topic{types.TokConfig, types.TokHeartbeat}
	topicBeat   = bus.Topic{types.TokHeartbeat}
)

// LED is the sliver of the status pin the blinker drives.
type LED interface {
	Set(on bool)
}

type Service struct {
	conn *bus.Connection
	led  LED
	cfg  types.HeartbeatConfig
}

func New(conn *bus.Connection, led LED, cfg types.HeartbeatConfig) *Service {
	if cfg.IntervalMs == 0 {
		cfg = types.DefaultHeartbeatConfig()
	}
	return &Service{conn: conn, led: led, cfg: cfg}
}

// Run toggles the LED at half the beat interval and publishes one
// retained Heartbeat per full cycle. Blocks until ctx is done.
func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer cfgSub.Unsubscribe()

	boot := time.Now()
	var count uint32
	on := false

	tick := time.NewTicker(s.half())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.led.Set(false)
			return
		case msg := <-cfgSub.Channel():
			next := s.cfg
			if c, ok := msg.Payload.(types.HeartbeatConfig); ok {
				next = c
			} else if err := jsonx.Decode(msg.Payload, &next); err != nil {
				println("CONFIG: bad heartbeat config:", err.Error())
				continue
			}
			s.cfg = next
			tick.Reset(s.half())
		case <-tick.C:
			on = !on
			s.led.Set(on)
			if on {
				continue
			}
			count++
			println(count)
			ev := types.Heartbeat{Count: count, UptimeMs: time.Since(boot).Milliseconds()}
			s.conn.Publish(s.conn.NewMessage(topicBeat, ev, true))
		}
	}
}

func (s *Service) half() time.Duration {
	ms := s.cfg.IntervalMs
	if ms == 0 {
		ms = types.DefaultHeartbeatConfig().IntervalMs
	}
	d := time.Duration(ms) * time.Millisecond / 2
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}
