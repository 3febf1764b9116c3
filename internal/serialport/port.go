// internal/serialport/port.go
package serialport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/goburrow/serial"
)

// Config describes one UART. Zero values are filled by Open with 8N1.
type Config struct {
	Device   string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string // "N", "E" or "O"
	Timeout  time.Duration

	// RS485 enables kernel-driven DE/RE direction control. Adapters with
	// automatic direction switching leave it off.
	RS485 bool
}

// Port is what the protocol code needs from a serial line.
type Port interface {
	io.ReadWriteCloser
}

// Open opens the device with a read timeout so protocol loops never block forever.
func Open(c Config) (Port, error) {
	if c.Device == "" {
		return nil, errors.New("serialport: device required")
	}
	if c.BaudRate <= 0 {
		return nil, fmt.Errorf("serialport: invalid baud rate %d", c.BaudRate)
	}

	cfg := &serial.Config{
		Address:  c.Device,
		BaudRate: c.BaudRate,
		DataBits: orDefault(c.DataBits, 8),
		StopBits: orDefault(c.StopBits, 1),
		Parity:   c.Parity,
		Timeout:  c.Timeout,
		RS485: serial.RS485Config{
			Enabled: c.RS485,
		},
	}
	if cfg.Parity == "" {
		cfg.Parity = "N"
	}

	p, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", c.Device, err)
	}
	return p, nil
}

// IsTimeout reports whether err is a read timeout rather than a dead port.
func IsTimeout(err error) bool {
	if errors.Is(err, serial.ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Drain discards whatever is waiting in the receive buffer. It stops on the
// first timeout, so the port must have a short read timeout.
func Drain(p io.Reader) {
	var buf [64]byte
	for i := 0; i < 16; i++ {
		n, err := p.Read(buf[:])
		if err != nil || n == 0 {
			return
		}
	}
}

func orDefault(v, d int) int {
	if v == 0 {
		return d
	}
	return v
}
