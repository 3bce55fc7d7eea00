//go:build rp2040 || rp2350

package atmodem

import (
	"context"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// UARTConfig selects the hardware UART wired to the modem.
type UARTConfig struct {
	ID   int // 0 or 1
	Baud uint32
	TX   int
	RX   int
}

// OpenUART claims a hardware UART and adapts it to the modem Port.
func OpenUART(cfg UARTConfig) (Port, error) {
	var hw *uartx.UART
	switch cfg.ID {
	case 0:
		hw = uartx.UART0
	case 1:
		hw = uartx.UART1
	default:
		return nil, ErrNoUART
	}
	// Defaults inside uartx apply when fields are zero.
	_ = hw.Configure(uartx.UARTConfig{
		BaudRate: cfg.Baud,
		TX:       machine.Pin(cfg.TX),
		RX:       machine.Pin(cfg.RX),
	})
	return &uartPort{u: hw}, nil
}

type uartPort struct{ u *uartx.UART }

func (p *uartPort) Write(b []byte) (int, error) { return p.u.Write(b) }

func (p *uartPort) RecvSomeContext(ctx context.Context, buf []byte) (int, error) {
	return p.u.RecvSomeContext(ctx, buf)
}
