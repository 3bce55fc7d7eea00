//go:build !rp2040 && !rp2350

// Package telemetry mirrors retained device state to an MQTT broker so
// dashboards away from the bench can watch provisioning progress. Host
// builds only; the device itself never carries a broker client.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"provisioncode-go/bus"
	"provisioncode-go/types"
)

// mirrored lists the bus topics forwarded to the broker: the retained
// state topics plus the update event stream, so a dashboard can follow
// an OTA away from the bench. Config topics stay local: they can carry
// broker credentials.
var mirrored = []bus.Topic{
	{types.TokProvision, types.TokState},
	{types.TokNet, types.TokLink},
	{types.TokHeartbeat},
	{types.TokSvc, bus.WildcardOne, types.TokState},
	{types.TokUpdate, bus.WildcardAll},
}

// Mirror forwards retained bus state to MQTT.
type Mirror struct {
	conn   *bus.Connection
	client pahomqtt.Client
	prefix string
	log    *zap.Logger
}

// New connects to the broker and returns a Mirror ready to Run. The
// connection carries a retained will on <prefix>/online so the broker
// flips the device to offline if the daemon dies.
func New(conn *bus.Connection, cfg types.TelemetryConfig, log *zap.Logger) (*Mirror, error) {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "provision"
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "provisiond"
	}
	m := &Mirror{conn: conn, prefix: prefix, log: log}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(prefix+"/online", "false", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			m.log.Info("MQTT connected", zap.String("broker", cfg.Broker))
			m.publish(prefix+"/online", []byte("true"), true)
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			m.log.Warn("MQTT connection lost", zap.Error(err))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// The connect handler publishes through m.client, so it must be set
	// before Connect can fire it.
	m.client = pahomqtt.NewClient(opts)
	token := m.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return m, nil
}

// Run mirrors until ctx ends, then marks the device offline and
// disconnects.
func (m *Mirror) Run(ctx context.Context) {
	agg := make(chan *bus.Message, 64)
	subs := make([]*bus.Subscription, 0, len(mirrored))
	for _, topic := range mirrored {
		sub := m.conn.Subscribe(topic)
		subs = append(subs, sub)
		go func(sub *bus.Subscription) {
			for msg := range sub.Channel() {
				select {
				case agg <- msg:
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}

	m.log.Info("telemetry mirror started", zap.String("prefix", m.prefix))
	for {
		select {
		case <-ctx.Done():
			for _, sub := range subs {
				sub.Unsubscribe()
			}
			m.publishSync(m.prefix+"/online", []byte("false"))
			m.client.Disconnect(1000)
			m.log.Info("telemetry mirror stopped")
			return
		case msg := <-agg:
			topic, payload, ok := frame(m.prefix, msg)
			if !ok {
				continue
			}
			// Bus-retained state stays retained on the broker; update
			// events pass through as plain messages.
			m.publish(topic, payload, msg.Retained)
		}
	}
}

// frame turns a bus message into broker topic and payload bytes.
func frame(prefix string, msg *bus.Message) (string, []byte, bool) {
	topic := prefix
	for _, tok := range msg.Topic {
		s, ok := tok.(string)
		if !ok {
			s = fmt.Sprint(tok)
		}
		topic += "/" + s
	}

	switch p := msg.Payload.(type) {
	case []byte:
		return topic, p, true
	case string:
		return topic, []byte(p), true
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return "", nil, false
		}
		return topic, data, true
	}
}

func (m *Mirror) publish(topic string, payload []byte, retained bool) {
	token := m.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			m.log.Warn("MQTT publish timeout", zap.String("topic", topic))
		} else if err := token.Error(); err != nil {
			m.log.Warn("MQTT publish error", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

func (m *Mirror) publishSync(topic string, payload []byte) {
	token := m.client.Publish(topic, 1, true, payload)
	token.WaitTimeout(2 * time.Second)
}
