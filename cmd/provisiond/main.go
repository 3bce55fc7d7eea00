// Command provisiond runs the provisioning stack as a linux daemon: the
// same state machine, portal and update server as the firmware, driving
// either a simulated radio or a serial ESP-AT modem.
//
//	provisiond [config.yaml]
//
// SIGUSR1 injects a short button press, SIGUSR2 a long hold, so the
// disable and provision paths can be exercised without hardware.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"provisioncode-go/bus"
	"provisioncode-go/credstore"
	"provisioncode-go/drivers/atmodem"
	"provisioncode-go/logging"
	"provisioncode-go/platform"
	"provisioncode-go/radio"
	"provisioncode-go/services/heartbeat"
	"provisioncode-go/services/portal"
	"provisioncode-go/services/provision"
	"provisioncode-go/services/telemetry"
	"provisioncode-go/services/updater"
	"provisioncode-go/types"
	"provisioncode-go/version"
	"provisioncode-go/x/timex"
)

// wifiRadio is the union of what the machine and the portal drive. Both
// radio implementations satisfy it.
type wifiRadio interface {
	PowerOn() error
	PowerOff()
	Connect(cred types.Credential, timeout time.Duration) error
	Disconnect()
	Up() bool
	Addr() netip.Addr
	StartAP(ssid string) error
	StopAP()
}

func main() {
	cfgPath := "provisiond.yaml"
	explicit := len(os.Args) > 1
	if explicit {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		cfg, err = defaultConfig(), nil
	}
	if err == nil {
		err = cfg.validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "provisiond:", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Log.Level); err != nil {
		fmt.Fprintln(os.Stderr, "provisiond:", err)
		os.Exit(1)
	}
	defer logging.Sync()
	log := logging.GetLogger()
	log.Info("provisiond starting",
		zap.String("version", version.Full()),
		zap.String("device", cfg.Device.Name),
		zap.String("radio", cfg.Radio.Driver))

	rdev, modem, err := openRadio(cfg)
	if err != nil {
		log.Fatal("open radio", zap.Error(err))
	}
	if modem != nil {
		defer modem.Close()
	}

	store, err := credstore.OpenBolt(cfg.Store.Path)
	if err != nil {
		log.Fatal("open credential store", zap.Error(err))
	}
	defer store.Close()

	b := bus.NewBus(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upd := updater.New(b.NewConnection("updater"), cfg.Updater, updater.Options{
		Name:    cfg.Device.Name,
		Version: version.Version,
	})
	prt := portal.New(rdev, store, cfg.Portal, portal.Options{
		Name:           cfg.Device.Name,
		Version:        version.Version,
		ConnectTimeout: time.Duration(cfg.Provision.ConnectTimeoutMs) * time.Millisecond,
	})

	rebootCh := make(chan struct{})
	prov := provision.New(b.NewConnection("provision"), provision.Deps{
		Radio:   rdev,
		Store:   store,
		Updater: upd,
		Portal:  prt,
	}, provision.Options{
		Config: cfg.Provision,
		Reboot: func() { close(rebootCh) },
	})

	hb := heartbeat.New(b.NewConnection("heartbeat"),
		platform.LEDPin(cfg.Heartbeat.LEDPin), cfg.Heartbeat)

	if cfg.Telemetry.Enabled {
		mirror, err := telemetry.New(b.NewConnection("telemetry"), cfg.Telemetry.TelemetryConfig, log)
		if err != nil {
			log.Warn("mqtt mirror unavailable", zap.Error(err))
		} else {
			go mirror.Run(ctx)
		}
	}

	if cfg.Discovery.Enabled && cfg.Updater.Port > 0 {
		txt := []string{"version=" + version.Version, "device=" + cfg.Device.Name}
		mdns, err := zeroconf.Register(cfg.Device.Name, "_provision._tcp", "local.",
			cfg.Updater.Port, txt, nil)
		if err != nil {
			log.Warn("mdns register", zap.Error(err))
		} else {
			defer mdns.Shutdown()
			log.Info("mdns announced",
				zap.String("service", "_provision._tcp"),
				zap.Int("port", cfg.Updater.Port))
		}
	}

	go hb.Run(ctx)
	go prov.Run(ctx)
	log.Info("provisiond ready")

	conn := b.NewConnection("daemon")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	for {
		select {
		case <-rebootCh:
			log.Info("restarting after update; exiting for the supervisor")
			return

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				log.Info("synthetic short press")
				injectPress(conn, types.PressShort)
			case syscall.SIGUSR2:
				log.Info("synthetic long hold")
				injectPress(conn, types.PressLong)
			default:
				signal.Stop(sigCh)
				log.Info("shutting down", zap.String("signal", sig.String()))
				requestDisable(conn, log)
				return
			}
		}
	}
}

func openRadio(cfg *Config) (wifiRadio, *atmodem.Modem, error) {
	if cfg.Radio.Driver != "atmodem" {
		return radio.NewSim(), nil, nil
	}
	port, err := atmodem.OpenSerial(cfg.Radio.Port, cfg.Radio.Baud)
	if err != nil {
		return nil, nil, err
	}
	modem := atmodem.New(port)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := modem.Init(ctx); err != nil {
		modem.Close()
		return nil, nil, err
	}
	return radio.NewLink(modem, modem), modem, nil
}

// injectPress feeds a synthetic button command to the machine, the same
// shape the pin sampler publishes.
func injectPress(conn *bus.Connection, kind types.PressKind) {
	held := uint32(100)
	if kind == types.PressLong {
		held = 3_500
	}
	conn.Publish(conn.NewMessage(bus.Topic{types.TokInput, types.TokButton}, types.ButtonCommand{
		Kind:   kind,
		HeldMs: held,
		TS:     timex.NowMs(),
	}, false))
}

// requestDisable asks the machine to shut down, which stops the update
// server, the portal and the radio in order before the reply comes back.
func requestDisable(conn *bus.Connection, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	topic := bus.Topic{types.TokProvision, types.TokControl, types.CtrlDisable}
	if _, err := conn.RequestWait(ctx, conn.NewMessage(topic, nil, false)); err != nil {
		log.Warn("disable request", zap.Error(err))
	}
}
