//go:build !rp2040 && !rp2350

package main

import (
	"provisioncode-go/credstore"
	"provisioncode-go/platform"
	"provisioncode-go/radio"
)

type resources struct {
	radio  *radio.Sim
	store  *credstore.Mem
	button platform.Pin
	led    platform.Pin
}

// boardResources builds the simulated board: a radio that joins any
// network, an empty credential store, pins at their resting levels.
func boardResources(buttonPin, ledPin int) resources {
	return resources{
		radio:  radio.NewSim(),
		store:  credstore.NewMem(),
		button: platform.ButtonPin(buttonPin),
		led:    platform.LEDPin(ledPin),
	}
}
