// internal/poller/rs485/client.go
package rs485

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tamzrod/bms-bridge/internal/pylon"
	"github.com/tamzrod/bms-bridge/internal/serialport"
)

// Client implements poller.Client over a half-duplex RS-485 line.
// It only moves frames: build, send, read one reply, validate. No retries.
type Client struct {
	mu      sync.Mutex
	port    io.ReadWriteCloser
	timeout time.Duration
}

// Config is minimal transport config.
type Config struct {
	Port    serialport.Config
	Timeout time.Duration // whole-response deadline
}

// maxResponse bounds a reply; the largest INFO field is 0xFFF characters.
const maxResponse = 18 + pylon.MaxInfoLen

// New opens the serial port.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		return nil, errors.New("rs485 client: timeout must be > 0")
	}
	p, err := serialport.Open(cfg.Port)
	if err != nil {
		return nil, err
	}
	return NewWithPort(p, cfg.Timeout), nil
}

// NewWithPort wraps an already open port. The port's own read timeout must be
// short compared to timeout; it bounds how long the flush before each request takes.
func NewWithPort(p io.ReadWriteCloser, timeout time.Duration) *Client {
	return &Client{port: p, timeout: timeout}
}

// Close closes the port.
func (c *Client) Close() error {
	if c == nil || c.port == nil {
		return nil
	}
	return c.port.Close()
}

// ---- poller.Client interface ----

// Query sends one command for one battery and returns the validated reply.
func (c *Client) Query(addr, cmd byte, battery int) (*pylon.Response, error) {
	req, err := pylon.BuildBatteryRequest(addr, cmd, battery)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Anything still in the receive buffer is a late reply to an earlier request.
	serialport.Drain(c.port)

	if _, err := c.port.Write(req); err != nil {
		return nil, fmt.Errorf("rs485 client: write: %w", err)
	}

	raw, err := c.readFrame()
	if err != nil {
		return nil, err
	}
	return pylon.ParseResponse(raw, addr)
}

// readFrame collects bytes until EOI or the deadline.
func (c *Client) readFrame() ([]byte, error) {
	deadline := time.Now().Add(c.timeout)
	buf := make([]byte, 0, 256)
	chunk := make([]byte, 128)

	for {
		n, err := c.port.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if s := bytes.IndexByte(buf, pylon.SOI); s >= 0 {
				if e := bytes.IndexByte(buf[s:], pylon.EOI); e >= 0 {
					return buf[s : s+e+1], nil
				}
			}
			if len(buf) > maxResponse {
				return nil, fmt.Errorf("%w: no EOI within %d bytes", pylon.ErrMalformed, len(buf))
			}
		}

		if err != nil && !serialport.IsTimeout(err) {
			return nil, fmt.Errorf("rs485 client: read: %w", err)
		}

		if time.Now().After(deadline) {
			if len(buf) == 0 {
				return nil, pylon.ErrTimeout
			}
			return nil, fmt.Errorf("%w: %d bytes without EOI", pylon.ErrTimeout, len(buf))
		}
	}
}
