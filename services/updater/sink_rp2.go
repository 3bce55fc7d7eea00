//go:build rp2040 || rp2350

package updater

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// discardSink counts and hashes the stream without storing it. The device
// has nowhere to stage a full image; length + digest are still reported so
// the sender can verify the transfer.
type discardSink struct {
	h hash.Hash
	n int64
}

func newDiscardSink() (Sink, error) {
	return &discardSink{h: sha256.New()}, nil
}

func (s *discardSink) Write(p []byte) (int, error) {
	s.h.Write(p)
	s.n += int64(len(p))
	return len(p), nil
}

func (s *discardSink) Commit() (int64, string, error) {
	return s.n, hex.EncodeToString(s.h.Sum(nil)), nil
}

func (s *discardSink) Abort() {}

func defaultSink() (Sink, error) { return newDiscardSink() }
