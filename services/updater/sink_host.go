//go:build !rp2040 && !rp2350

package updater

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"os"
)

// fileSink stages the image in a temp file. The committed file is left in
// place for inspection; the daemon's staging dir is cleaned by the OS.
type fileSink struct {
	f *os.File
	h hash.Hash
	n int64
}

func newFileSink(dir string) (Sink, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "firmware-*.bin")
	if err != nil {
		return nil, err
	}
	return &fileSink{f: f, h: sha256.New()}, nil
}

func (s *fileSink) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	if n > 0 {
		s.h.Write(p[:n])
		s.n += int64(n)
	}
	return n, err
}

func (s *fileSink) Commit() (int64, string, error) {
	if err := s.f.Close(); err != nil {
		return s.n, "", err
	}
	return s.n, hex.EncodeToString(s.h.Sum(nil)), nil
}

func (s *fileSink) Abort() {
	name := s.f.Name()
	_ = s.f.Close()
	_ = os.Remove(name)
}

func defaultSink() (Sink, error) { return newFileSink("") }
