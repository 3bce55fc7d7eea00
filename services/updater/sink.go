// Package updater serves the firmware update endpoint: a small HTTP server
// started and stopped by the connectivity core, streaming uploads into an
// image sink and narrating begin/progress/end on the bus.
package updater

import "io"

// Sink receives one streamed firmware image. Commit seals the image and
// reports how much arrived and its digest; Abort discards a partial upload.
// Flashing the image is out of scope here; the sink only stages it.
type Sink interface {
	io.Writer
	Commit() (bytes int64, sha256Hex string, err error)
	Abort()
}
