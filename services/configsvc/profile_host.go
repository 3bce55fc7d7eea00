//go:build !rp2040 && !rp2350

package configsvc

const defaultProfile = "sim"
