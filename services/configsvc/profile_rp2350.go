//go:build rp2350

package configsvc

const defaultProfile = "pico2"
