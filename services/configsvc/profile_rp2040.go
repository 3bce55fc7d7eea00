//go:build rp2040

package configsvc

const defaultProfile = "pico"
