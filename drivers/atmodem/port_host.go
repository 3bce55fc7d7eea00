//go:build !rp2040 && !rp2350

package atmodem

import (
	"context"
	"time"

	"go.bug.st/serial"
)

// OpenSerial opens a host serial device wired to the modem, 8N1.
func OpenSerial(device string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	// USB CDC adapters want DTR/RTS asserted before they transmit.
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)
	// Short read timeout so RecvSomeContext can poll the context.
	_ = port.SetReadTimeout(100 * time.Millisecond)
	return &serialPort{p: port}, nil
}

type serialPort struct{ p serial.Port }

func (s *serialPort) Write(b []byte) (int, error) { return s.p.Write(b) }

// RecvSomeContext reads with the port's short timeout in a loop so a
// cancelled context is honoured between attempts.
func (s *serialPort) RecvSomeContext(ctx context.Context, buf []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := s.p.Read(buf)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return n, nil
		}
	}
}

// Close releases the device.
func (s *serialPort) Close() error { return s.p.Close() }
