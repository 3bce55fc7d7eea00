// Package configsvc publishes the boot configuration: one retained
// {"config", <service>} message per top-level section of the selected
// profile. Consumers overlay their section on package defaults, so a
// profile only states what differs from stock.
package configsvc

import (
	"embed"
	"encoding/json"
	"errors"

	"provisioncode-go/bus"
	"provisioncode-go/types"
)

//go:embed profiles/*.json
var profiles embed.FS

// Profile selects the embedded profile by name. The build-tag default
// suits the target board; override with
// -ldflags "-X provisioncode-go/services/configsvc.Profile=pico2".
var Profile string

func active() string {
	if Profile != "" {
		return Profile
	}
	return defaultProfile
}

// Load returns the raw bytes of the active profile.
func Load() ([]byte, error) {
	raw, err := profiles.ReadFile("profiles/" + active() + ".json")
	if err != nil {
		return nil, errors.New("no embedded profile " + active())
	}
	return raw, nil
}

// Publish splits the active profile into per-service retained config
// messages. Payloads stay raw JSON; each consumer decodes its own
// section over its defaults.
func Publish(conn *bus.Connection) error {
	raw, err := Load()
	if err != nil {
		return err
	}
	return publishRaw(conn, raw)
}

func publishRaw(conn *bus.Connection, raw []byte) error {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return err
	}
	for name, section := range sections {
		conn.Publish(conn.NewMessage(bus.Topic{types.TokConfig, name}, []byte(section), true))
	}
	return nil
}

// Section decodes one section of the active profile into cfg, leaving
// cfg untouched when the profile has no such section. Pass a pointer to
// a defaults-initialized config.
func Section(name string, cfg any) error {
	raw, err := Load()
	if err != nil {
		return err
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return err
	}
	section, ok := sections[name]
	if !ok {
		return nil
	}
	return json.Unmarshal(section, cfg)
}
