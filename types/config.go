package types

import "provisioncode-go/x/mathx"

// Service configuration payloads, published retained on config/<service>.
// Producers start from the Default* values and overlay the profile or file
// on top, so an absent field keeps its default.

// ProvisionConfig is supplied on topic "config/provision".
type ProvisionConfig struct {
	AutoConnect      bool   `json:"auto_connect" yaml:"auto_connect"`
	ConnectTimeoutMs uint32 `json:"connect_timeout_ms" yaml:"connect_timeout_ms"`
	PortalTimeoutMs  uint32 `json:"portal_timeout_ms" yaml:"portal_timeout_ms"`
	LinkPollMs       uint32 `json:"link_poll_ms" yaml:"link_poll_ms"`
	RebootGraceMs    uint32 `json:"reboot_grace_ms" yaml:"reboot_grace_ms"`
	ProgressLogMs    uint32 `json:"progress_log_ms" yaml:"progress_log_ms"`
}

func DefaultProvisionConfig() ProvisionConfig {
	return ProvisionConfig{
		AutoConnect:      true,
		ConnectTimeoutMs: 10_000,
		PortalTimeoutMs:  180_000,
		LinkPollMs:       5_000,
		RebootGraceMs:    2_000,
		ProgressLogMs:    1_000,
	}
}

// Normalize clamps the interval fields into workable ranges so a bad
// profile or bus payload cannot stall the poll loop.
func (c ProvisionConfig) Normalize() ProvisionConfig {
	c.ConnectTimeoutMs = mathx.Clamp(c.ConnectTimeoutMs, 1_000, 60_000)
	c.PortalTimeoutMs = mathx.Clamp(c.PortalTimeoutMs, 10_000, 3_600_000)
	c.LinkPollMs = mathx.Clamp(c.LinkPollMs, 500, 60_000)
	c.RebootGraceMs = mathx.Min(c.RebootGraceMs, 60_000)
	c.ProgressLogMs = mathx.Clamp(c.ProgressLogMs, 200, 10_000)
	return c
}

// ButtonConfig is supplied on topic "config/button".
type ButtonConfig struct {
	Pin        int    `json:"pin" yaml:"pin"`
	ActiveLow  bool   `json:"active_low" yaml:"active_low"`
	SampleMs   uint32 `json:"sample_ms" yaml:"sample_ms"`
	DebounceMs uint32 `json:"debounce_ms" yaml:"debounce_ms"` // presses at or under this are bounce
	LongHoldMs uint32 `json:"long_hold_ms" yaml:"long_hold_ms"`
}

func DefaultButtonConfig() ButtonConfig {
	return ButtonConfig{
		Pin:        0,
		ActiveLow:  true,
		SampleMs:   10,
		DebounceMs: 50,
		LongHoldMs: 3_000,
	}
}

// Normalize keeps the sampler timings sane. Debounce above the long-hold
// threshold would classify every press as bounce.
func (c ButtonConfig) Normalize() ButtonConfig {
	c.SampleMs = mathx.Clamp(c.SampleMs, 1, 1_000)
	c.LongHoldMs = mathx.Clamp(c.LongHoldMs, 100, 60_000)
	c.DebounceMs = mathx.Min(c.DebounceMs, c.LongHoldMs)
	return c
}

// UpdaterConfig is supplied on topic "config/updater".
type UpdaterConfig struct {
	Port int `json:"port" yaml:"port"`
}

func DefaultUpdaterConfig() UpdaterConfig {
	return UpdaterConfig{
		Port: 8080,
	}
}

// PortalConfig is supplied on topic "config/portal".
type PortalConfig struct {
	SSID string `json:"ssid" yaml:"ssid"`
	Port int    `json:"port" yaml:"port"`
}

func DefaultPortalConfig() PortalConfig {
	return PortalConfig{
		SSID: "provisioner-setup",
		Port: 80,
	}
}

// HeartbeatConfig is supplied on topic "config/heartbeat".
type HeartbeatConfig struct {
	IntervalMs uint32 `json:"interval_ms" yaml:"interval_ms"`
	LEDPin     int    `json:"led_pin" yaml:"led_pin"`
}

func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		IntervalMs: 2_000,
		LEDPin:     25,
	}
}

// TelemetryConfig is supplied on topic "config/telemetry" (host builds).
type TelemetryConfig struct {
	Broker   string `json:"broker" yaml:"broker"`
	ClientID string `json:"client_id" yaml:"client_id"`
	Prefix   string `json:"prefix" yaml:"prefix"`
	Username string `json:"username,omitempty" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"password"`
}
