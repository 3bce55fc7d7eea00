// Firmware entry point. Wires the board resources to the services and
// runs the connectivity machine: saved-credential join with a setup
// portal fallback, a firmware update endpoint while the link is up, a
// button for provisioning and disable, and a heartbeat LED.
//
// Builds for rp2040/rp2350 boards with TinyGo; the host build runs the
// same graph against a simulated radio and in-memory stores.
package main

import (
	"context"
	"time"

	"provisioncode-go/bus"
	"provisioncode-go/platform"
	"provisioncode-go/services/button"
	"provisioncode-go/services/configsvc"
	"provisioncode-go/services/heartbeat"
	"provisioncode-go/services/portal"
	"provisioncode-go/services/provision"
	"provisioncode-go/services/updater"
	"provisioncode-go/types"
	"provisioncode-go/version"
)

func section(name string, cfg any) {
	if err := configsvc.Section(name, cfg); err != nil {
		println("CONFIG: bad", name, "section:", err.Error())
	}
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("SETUP: provisioner", version.Full())
	println("SETUP: board", platform.BoardName)

	ctx := context.Background()
	b := bus.NewBus(8)

	if err := configsvc.Publish(b.NewConnection("config")); err != nil {
		println("CONFIG: no profile:", err.Error())
	}

	provCfg := types.DefaultProvisionConfig()
	section("provision", &provCfg)
	btnCfg := types.DefaultButtonConfig()
	section("button", &btnCfg)
	updCfg := types.DefaultUpdaterConfig()
	section("updater", &updCfg)
	prtCfg := types.DefaultPortalConfig()
	section("portal", &prtCfg)
	hbCfg := types.DefaultHeartbeatConfig()
	section("heartbeat", &hbCfg)

	res := boardResources(btnCfg.Pin, hbCfg.LEDPin)

	upd := updater.New(b.NewConnection("updater"), updCfg, updater.Options{
		Name:    platform.BoardName,
		Version: version.Version,
	})
	prt := portal.New(res.radio, res.store, prtCfg, portal.Options{
		Name:           platform.BoardName,
		Version:        version.Version,
		ConnectTimeout: time.Duration(provCfg.ConnectTimeoutMs) * time.Millisecond,
	})
	prov := provision.New(b.NewConnection("provision"), provision.Deps{
		Radio:   res.radio,
		Store:   res.store,
		Updater: upd,
		Portal:  prt,
	}, provision.Options{
		Config: provCfg,
		Reboot: platform.Reboot,
	})

	btn := button.New(b.NewConnection("button"), res.button, btnCfg)
	hb := heartbeat.New(b.NewConnection("heartbeat"), res.led, hbCfg)

	go btn.Run(ctx)
	go hb.Run(ctx)

	prov.Run(ctx)
}
