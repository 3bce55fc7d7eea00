package button

import (
	"context"
	"sync"
	"testing"
	"time"

	"provisioncode-go/bus"
	"provisioncode-go/types"
)

type fakePin struct {
	mu    sync.Mutex
	level bool
}

func (p *fakePin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *fakePin) set(level bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
}

func startButton(t *testing.T, cfg types.ButtonConfig) (*fakePin, *bus.Subscription) {
	t.Helper()
	b := bus.NewBus(16)
	// Active-low: released level is high.
	pin := &fakePin{level: true}
	svc := New(b.NewConnection("button"), pin, cfg)

	client := b.NewConnection("test")
	sub := client.Subscribe(topicButton)
	t.Cleanup(sub.Unsubscribe)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Run(ctx)
	return pin, sub
}

func nextCommand(t *testing.T, sub *bus.Subscription, d time.Duration) (types.ButtonCommand, bool) {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		cmd, ok := msg.Payload.(types.ButtonCommand)
		if !ok {
			t.Fatalf("unexpected payload %T", msg.Payload)
		}
		return cmd, true
	case <-time.After(d):
		return types.ButtonCommand{}, false
	}
}

func fastConfig() types.ButtonConfig {
	cfg := types.DefaultButtonConfig()
	cfg.SampleMs = 1
	cfg.DebounceMs = 20
	cfg.LongHoldMs = 400
	return cfg
}

func TestBootPublishesRetainedNone(t *testing.T) {
	_, sub := startButton(t, fastConfig())
	cmd, ok := nextCommand(t, sub, time.Second)
	if !ok {
		t.Fatal("no boot command on input/button")
	}
	if cmd.Kind != types.PressNone {
		t.Fatalf("boot command: %s", cmd.Kind)
	}
}

func TestShortPressPublished(t *testing.T) {
	pin, sub := startButton(t, fastConfig())
	nextCommand(t, sub, time.Second) // boot none

	pin.set(false) // pressed (active low)
	time.Sleep(100 * time.Millisecond)
	pin.set(true)

	cmd, ok := nextCommand(t, sub, time.Second)
	if !ok {
		t.Fatal("no command after press")
	}
	if cmd.Kind != types.PressShort {
		t.Fatalf("got %s (held %d ms)", cmd.Kind, cmd.HeldMs)
	}
}

func TestLongHoldPublished(t *testing.T) {
	pin, sub := startButton(t, fastConfig())
	nextCommand(t, sub, time.Second)

	pin.set(false)
	time.Sleep(600 * time.Millisecond)
	pin.set(true)

	cmd, ok := nextCommand(t, sub, time.Second)
	if !ok {
		t.Fatal("no command after hold")
	}
	if cmd.Kind != types.PressLong {
		t.Fatalf("got %s (held %d ms)", cmd.Kind, cmd.HeldMs)
	}
}
