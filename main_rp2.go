//go:build rp2040 || rp2350

package main

import (
	"provisioncode-go/credstore"
	"provisioncode-go/platform"
	"provisioncode-go/radio"
)

type resources struct {
	radio  *radio.Link
	store  *credstore.Flash
	button platform.Pin
	led    platform.Pin
}

// boardResources claims the pins and brings up the on-board radio.
func boardResources(buttonPin, ledPin int) resources {
	return resources{
		radio:  platform.ProbeRadio(),
		store:  credstore.NewFlash(),
		button: platform.ButtonPin(buttonPin),
		led:    platform.LEDPin(ledPin),
	}
}
