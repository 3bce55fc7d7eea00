//go:build rp2040 || rp2350

// Command boardtest checks the board bring-up: LED, button, radio probe
// and the saved-credential join. Flash it in place of the firmware and
// read the verdicts over the serial console.
package main

import (
	"errors"
	"time"

	"provisioncode-go/credstore"
	"provisioncode-go/platform"
	"provisioncode-go/radio"
	"provisioncode-go/types"
)

const (
	buttonWindow = 5 * time.Second
	joinTimeout  = 10 * time.Second
	sampleEvery  = 10 * time.Millisecond
)

func verdict(name string, ok bool) {
	if ok {
		println("[boardtest] PASS:", name)
	} else {
		println("[boardtest] FAIL:", name)
	}
}

// watchButton waits for one press within the window.
func watchButton(pin platform.Pin, activeLow bool, window time.Duration) bool {
	dead := time.Now().Add(window)
	for time.Now().Before(dead) {
		pressed := pin.Get()
		if activeLow {
			pressed = !pressed
		}
		if pressed {
			return true
		}
		time.Sleep(sampleEvery)
	}
	return false
}

// radioCheck probes the chip, then joins the saved network if one
// exists. With nothing saved it raises and drops the setup AP instead,
// which still proves the chip answers.
func radioCheck(link *radio.Link) bool {
	cred, err := credstore.NewFlash().Load()
	if err != nil {
		if !errors.Is(err, credstore.ErrNoCredential) {
			println("[boardtest] credential load failed:", err.Error())
			return false
		}
		println("[boardtest] no saved network, trying the setup AP")
		if err := link.StartAP("boardtest-setup"); err != nil {
			println("[boardtest] AP start failed:", err.Error())
			return false
		}
		println("[boardtest] AP up at", link.Addr().String())
		time.Sleep(2 * time.Second)
		link.StopAP()
		return true
	}

	println("[boardtest] joining", cred.SSID)
	if err := link.Connect(cred, joinTimeout); err != nil {
		println("[boardtest] join failed:", err.Error())
		return false
	}
	println("[boardtest] joined, address", link.Addr().String())
	link.Disconnect()
	return true
}

// flashVerdict mirrors the serial verdict on the LED: double short
// blink for pass, one long blink for fail.
func flashVerdict(led platform.Pin, pass bool) {
	if pass {
		for i := 0; i < 2; i++ {
			led.Set(true)
			time.Sleep(120 * time.Millisecond)
			led.Set(false)
			time.Sleep(200 * time.Millisecond)
		}
		return
	}
	led.Set(true)
	time.Sleep(400 * time.Millisecond)
	led.Set(false)
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[boardtest] board:", platform.BoardName)

	btnCfg := types.DefaultButtonConfig()
	hbCfg := types.DefaultHeartbeatConfig()
	led := platform.LEDPin(hbCfg.LEDPin)
	btn := platform.ButtonPin(btnCfg.Pin)

	println("[boardtest] LED blink on pin", hbCfg.LEDPin)
	for i := 0; i < 3; i++ {
		led.Set(true)
		time.Sleep(150 * time.Millisecond)
		led.Set(false)
		time.Sleep(250 * time.Millisecond)
	}

	println("[boardtest] press the button on pin", btnCfg.Pin, "within 5s")
	pressed := watchButton(btn, btnCfg.ActiveLow, buttonWindow)
	verdict("button", pressed)

	println("[boardtest] probing radio")
	radioOK := radioCheck(platform.ProbeRadio())
	verdict("radio", radioOK)

	flashVerdict(led, pressed && radioOK)
	println("[boardtest] done")
}
