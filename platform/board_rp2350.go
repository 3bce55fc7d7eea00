//go:build rp2350

package platform

// BoardName matches the embedded config profile for this board.
const BoardName = "pico2"
