package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"provisioncode-go/types"
)

// Config is the daemon configuration file. Fields absent from the file
// keep their defaults, so an empty file runs the simulated radio.
type Config struct {
	Device struct {
		Name string `yaml:"name"`
	} `yaml:"device"`
	Radio struct {
		Driver string `yaml:"driver"` // "sim" or "atmodem"
		Port   string `yaml:"port"`   // serial device for the atmodem driver
		Baud   int    `yaml:"baud"`
	} `yaml:"radio"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Provision types.ProvisionConfig `yaml:"provision"`
	Updater   types.UpdaterConfig   `yaml:"updater"`
	Portal    types.PortalConfig    `yaml:"portal"`
	Heartbeat types.HeartbeatConfig `yaml:"heartbeat"`
	Telemetry TelemetrySection      `yaml:"telemetry"`
	Discovery struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"discovery"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// TelemetrySection gates the MQTT mirror on top of its connection
// settings.
type TelemetrySection struct {
	Enabled               bool `yaml:"enabled"`
	types.TelemetryConfig `yaml:",inline"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Device.Name = "provisioner"
	if host, err := os.Hostname(); err == nil && host != "" {
		cfg.Device.Name = host
	}
	cfg.Radio.Driver = "sim"
	cfg.Radio.Baud = 115200
	cfg.Store.Path = "provisiond.db"
	cfg.Provision = types.DefaultProvisionConfig()
	cfg.Updater = types.DefaultUpdaterConfig()
	cfg.Portal = types.DefaultPortalConfig()
	cfg.Heartbeat = types.DefaultHeartbeatConfig()
	cfg.Discovery.Enabled = true
	cfg.Log.Level = "info"
	return cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Radio.Driver {
	case "sim":
	case "atmodem":
		if c.Radio.Port == "" {
			return fmt.Errorf("radio.port is required for the atmodem driver")
		}
	default:
		return fmt.Errorf("unknown radio driver %q (supported: sim, atmodem)", c.Radio.Driver)
	}
	if c.Updater.Port < 0 || c.Updater.Port > 65535 {
		return fmt.Errorf("updater.port %d out of range", c.Updater.Port)
	}
	if c.Portal.Port < 0 || c.Portal.Port > 65535 {
		return fmt.Errorf("portal.port %d out of range", c.Portal.Port)
	}
	if c.Telemetry.Enabled && c.Telemetry.Broker == "" {
		return fmt.Errorf("telemetry.broker is required when telemetry is enabled")
	}
	return nil
}
