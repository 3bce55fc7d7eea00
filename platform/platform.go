// Package platform binds board resources to the interfaces the services
// consume: GPIO levels for the button and heartbeat LED, the WiFi radio,
// and CPU reset. Pico builds back these with the machine package and the
// on-board radio; host builds provide in-memory fakes so the same
// firmware graph runs as a regular process.
package platform
