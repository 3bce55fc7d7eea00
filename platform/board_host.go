//go:build !rp2040 && !rp2350

package platform

// BoardName matches the embedded config profile for host builds.
const BoardName = "sim"
