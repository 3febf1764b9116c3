// internal/inverter/client.go
package inverter

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	gridx "github.com/grid-x/modbus"

	"github.com/tamzrod/bms-bridge/internal/rtu"
	"github.com/tamzrod/bms-bridge/internal/serialport"
)

// Transporter moves one RTU ADU and returns the raw reply. Both the grid-x
// RTU-over-TCP handler and the goburrow RTU serial handler satisfy it.
type Transporter interface {
	Connect() error
	Close() error
	Send(adu []byte) ([]byte, error)
}

// Config is the priority register location.
type Config struct {
	Unit     byte
	Register uint16
}

// Client speaks to one priority register. All framing and validation is
// done here; the transport only moves bytes.
type Client struct {
	cfg Config
	tr  Transporter

	mu        sync.Mutex
	connected bool
}

// NewClient wraps a transport. The connection is opened lazily.
func NewClient(cfg Config, tr Transporter) *Client {
	return &Client{cfg: cfg, tr: tr}
}

// NewRTUOverTCP dials a serial gateway that forwards raw RTU frames over TCP.
func NewRTUOverTCP(address string, timeout time.Duration) Transporter {
	h := gridx.NewRTUOverTCPClientHandler(address)
	h.Timeout = timeout
	return h
}

// NewRTUSerial talks to the inverter directly on a local UART.
func NewRTUSerial(c serialport.Config) Transporter {
	h := modbus.NewRTUClientHandler(c.Device)
	h.BaudRate = c.BaudRate
	h.DataBits = 8
	h.Parity = "N"
	h.StopBits = 1
	h.Timeout = c.Timeout
	h.RS485.Enabled = c.RS485
	if c.Parity != "" {
		h.Parity = c.Parity
	}
	return h
}

// Close drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return c.tr.Close()
}

// ReadMode reads and validates the priority register.
func (c *Client) ReadMode() (uint16, error) {
	resp, err := c.send(rtu.ReadRequest(c.cfg.Unit, modbus.FuncCodeReadHoldingRegisters, c.cfg.Register, 1))
	if err != nil {
		return 0, err
	}
	v, err := c.parseRead(resp)
	c.discardOnValidation(err)
	return v, err
}

// WriteMode writes the priority register with FC16 and checks the echo.
// FC6 is never used; the gateway firmware does not forward it reliably.
func (c *Client) WriteMode(v uint16) error {
	if v > 1 {
		return fmt.Errorf("%w: refusing to write %d", ErrValueRange, v)
	}
	resp, err := c.send(rtu.WriteMultipleRequest(c.cfg.Unit, c.cfg.Register, []uint16{v}))
	if err != nil {
		return err
	}
	err = c.parseWrite(resp)
	c.discardOnValidation(err)
	return err
}

// discardOnValidation drops the link after a rejected reply. The transport
// reads a computed length and never drains, so the rest of a garbled reply
// would otherwise be read as the start of the next one.
func (c *Client) discardOnValidation(err error) {
	if Kind(err) != KindValidation {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		_ = c.tr.Close()
		c.connected = false
	}
}

func (c *Client) send(req []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		if err := c.tr.Connect(); err != nil {
			return nil, fmt.Errorf("inverter: connect: %w", err)
		}
		c.connected = true
	}

	resp, err := c.tr.Send(req)
	if err != nil {
		// Drop the link; the next cycle reconnects.
		_ = c.tr.Close()
		c.connected = false
		return nil, fmt.Errorf("inverter: send: %w", err)
	}
	return resp, nil
}

// frame runs the checks common to every reply.
func (c *Client) frame(resp []byte) (rtu.Frame, error) {
	f, err := rtu.Parse(resp)
	if err != nil {
		return rtu.Frame{}, fmt.Errorf("inverter: %w", err)
	}
	if f.Unit != c.cfg.Unit {
		return rtu.Frame{}, fmt.Errorf("%w: got=%d want=%d", ErrUnit, f.Unit, c.cfg.Unit)
	}
	if f.IsException() {
		return rtu.Frame{}, f.Exception()
	}
	return f, nil
}

func (c *Client) parseRead(resp []byte) (uint16, error) {
	f, err := c.frame(resp)
	if err != nil {
		return 0, err
	}

	// Some gateways answer FC3 with FC4.
	if f.Function != modbus.FuncCodeReadHoldingRegisters && f.Function != modbus.FuncCodeReadInputRegisters {
		return 0, fmt.Errorf("%w: %d", ErrFunction, f.Function)
	}
	if len(f.Data) < 1 {
		return 0, ErrMalformed
	}
	if f.Data[0] != 2 {
		return 0, fmt.Errorf("%w: %d", ErrByteCount, f.Data[0])
	}
	if len(f.Data) != 3 {
		return 0, fmt.Errorf("%w: data length %d", ErrMalformed, len(f.Data))
	}

	v := binary.BigEndian.Uint16(f.Data[1:])
	if v > 1 {
		return 0, fmt.Errorf("%w: %d", ErrValueRange, v)
	}
	return v, nil
}

func (c *Client) parseWrite(resp []byte) error {
	f, err := c.frame(resp)
	if err != nil {
		return err
	}
	if f.Function != modbus.FuncCodeWriteMultipleRegisters {
		return fmt.Errorf("%w: %d", ErrFunction, f.Function)
	}
	if len(f.Data) != 4 {
		return fmt.Errorf("%w: data length %d", ErrMalformed, len(f.Data))
	}

	addr := binary.BigEndian.Uint16(f.Data[0:])
	qty := binary.BigEndian.Uint16(f.Data[2:])
	if addr != c.cfg.Register || qty != 1 {
		return fmt.Errorf("%w: addr=0x%04X qty=%d", ErrEcho, addr, qty)
	}
	return nil
}
