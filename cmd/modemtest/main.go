//go:build !rp2040 && !rp2350

// Command modemtest exercises an ESP-AT modem on a serial port from the
// bench: init, an optional join or setup AP, then live link events
// until interrupted.
//
// Usage:
//
//	modemtest -port /dev/ttyUSB0 -ssid lab -pass secret
//	modemtest -port /dev/ttyUSB0 -ap
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tinygo.org/x/drivers/netlink"

	"provisioncode-go/drivers/atmodem"
	"provisioncode-go/x/strx"
)

var (
	portFlag = flag.String("port", "/dev/ttyUSB0", "serial device of the modem")
	baudFlag = flag.Int("baud", 115200, "baud rate")
	ssidFlag = flag.String("ssid", "", "network to join")
	passFlag = flag.String("pass", "", "passphrase")
	apFlag   = flag.Bool("ap", false, "raise the setup AP instead of joining")
)

func fatal(msg string, err error) {
	println("modemtest:", msg+":", err.Error())
	os.Exit(1)
}

func main() {
	flag.Parse()

	port, err := atmodem.OpenSerial(*portFlag, *baudFlag)
	if err != nil {
		fatal("open "+*portFlag, err)
	}
	m := atmodem.New(port)
	defer m.Close()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = m.Init(initCtx)
	cancel()
	if err != nil {
		fatal("modem init", err)
	}
	println("modemtest: modem answering on", *portFlag)

	m.NetNotify(func(ev netlink.Event) {
		switch ev {
		case netlink.EventNetUp:
			println("modemtest: link up")
		case netlink.EventNetDown:
			println("modemtest: link down")
		}
	})

	switch {
	case *apFlag:
		ssid := strx.Coalesce(*ssidFlag, "modemtest-setup")
		if err := m.NetConnect(&netlink.ConnectParams{
			Ssid:        ssid,
			ConnectMode: netlink.ConnectModeAP,
		}); err != nil {
			fatal("AP start", err)
		}
		println("modemtest: AP", ssid, "up,", addrString(m))
	case *ssidFlag != "":
		if err := m.NetConnect(&netlink.ConnectParams{
			Ssid:           *ssidFlag,
			Passphrase:     *passFlag,
			ConnectTimeout: 15 * time.Second,
			Retries:        3,
		}); err != nil {
			fatal("join "+*ssidFlag, err)
		}
		println("modemtest: joined", *ssidFlag+",", addrString(m))
	default:
		println("modemtest: idle, watching link events")
	}

	<-ctx.Done()
	m.NetDisconnect()
	println("modemtest: bye")
}

func addrString(m *atmodem.Modem) string {
	addr, err := m.Addr()
	if err != nil {
		return "address unknown (" + err.Error() + ")"
	}
	return "address " + addr.String()
}
