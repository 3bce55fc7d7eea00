//go:build rp2040

package platform

// BoardName matches the embedded config profile for this board.
const BoardName = "pico"
