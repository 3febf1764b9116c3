// internal/poller/builder.go
package poller

import (
	"time"

	cfg "github.com/tamzrod/bms-bridge/internal/config"
	"github.com/tamzrod/bms-bridge/internal/poller/rs485"
	"github.com/tamzrod/bms-bridge/internal/serialport"
)

// Build constructs a Poller and wires the RS-485 client lifecycle.
// The port is reused while healthy. On transport death the poller discards
// the client and uses factory on a future tick.
func Build(c cfg.RS485Config) (*Poller, error) {
	// client factory: ONE attempt per call
	factory := func() (Client, error) {
		return rs485.New(rs485.Config{
			Port: serialport.Config{
				Device:   c.Device,
				BaudRate: c.BaudRate,
				Parity:   c.Parity,
				Timeout:  time.Duration(c.ReadSliceMs) * time.Millisecond,
				RS485:    c.DirectionControl,
			},
			Timeout: time.Duration(c.TimeoutMs) * time.Millisecond,
		})
	}

	// initial client (fail fast at startup)
	client, err := factory()
	if err != nil {
		return nil, err
	}

	return New(
		Config{
			Address:       c.Address,
			Batteries:     c.Batteries,
			LiveInterval:  time.Duration(c.LiveIntervalMs) * time.Millisecond,
			AlarmInterval: time.Duration(c.AlarmIntervalMs) * time.Millisecond,
		},
		client,
		factory,
	)
}
