// internal/poller/poller.go
package poller

import (
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/bms-bridge/internal/pylon"
)

// Client abstracts the RS-485 exchange the poller needs.
type Client interface {
	Query(addr, cmd byte, battery int) (*pylon.Response, error)
	Close() error
}

// Factory opens a new client. One attempt per call.
type Factory func() (Client, error)

// Config is the minimal runtime config the poller needs.
type Config struct {
	Address       byte
	Batteries     []int
	LiveInterval  time.Duration
	AlarmInterval time.Duration
}

// Poller is a dumb, clock-driven reader. It decodes but never interprets.
type Poller struct {
	cfg     Config
	client  Client
	factory Factory
	guard   *BusGuard
}

// New creates a poller with immutable config. client may be nil when factory
// is set; the first cycle will open it.
func New(cfg Config, client Client, factory Factory) (*Poller, error) {
	if len(cfg.Batteries) == 0 {
		return nil, errors.New("poller: at least one battery required")
	}
	if cfg.LiveInterval <= 0 {
		return nil, errors.New("poller: live interval must be > 0")
	}
	if cfg.AlarmInterval <= 0 {
		return nil, errors.New("poller: alarm interval must be > 0")
	}
	if client == nil && factory == nil {
		return nil, errors.New("poller: client or factory required")
	}
	return &Poller{cfg: cfg, client: client, factory: factory, guard: NewBusGuard()}, nil
}

// Guard exposes the bus guard so other bus users can share it.
func (p *Poller) Guard() *BusGuard { return p.guard }

// PollOnce runs one cycle: every battery, strictly in order.
// Per battery it is all-or-nothing: a result carries Info only when the
// frame validated and the INFO decoded completely.
func (p *Poller) PollOnce(class Class) PollResult {
	res := PollResult{
		Class:   class,
		Command: class.Command(),
		At:      time.Now(),
	}

	if !p.guard.TryAcquire() {
		res.Err = ErrBusBusy
		return res
	}
	defer p.guard.Release()

	if p.client == nil {
		c, err := p.factory()
		if err != nil {
			res.Err = fmt.Errorf("poller: open client: %w", err)
			return res
		}
		p.client = c
	}

	res.Batteries = make([]BatteryResult, 0, len(p.cfg.Batteries))
	for _, idx := range p.cfg.Batteries {
		br := p.pollBattery(res.Command, idx)
		res.Batteries = append(res.Batteries, br)

		if isTransportDeath(br.Err) && p.factory != nil {
			// Discard the client; a future cycle reopens it.
			_ = p.client.Close()
			p.client = nil
			for _, rest := range p.cfg.Batteries[len(res.Batteries):] {
				res.Batteries = append(res.Batteries, BatteryResult{Battery: rest, Err: br.Err})
			}
			break
		}
	}

	return res
}

func (p *Poller) pollBattery(cmd byte, idx int) BatteryResult {
	start := time.Now()
	br := BatteryResult{Battery: idx}

	resp, err := p.client.Query(p.cfg.Address, cmd, idx)
	if err == nil {
		br.Info, err = pylon.Decode(cmd, resp.Info)
	}
	if err != nil {
		br.Info = nil
		br.Err = fmt.Errorf("battery %d: %w", idx, err)
	}
	br.Took = time.Since(start)
	return br
}

// isTransportDeath separates a dead port from a device that did not answer
// or answered badly.
func isTransportDeath(err error) bool {
	return err != nil && pylon.Kind(err) == "transport"
}

// Close releases the client.
func (p *Poller) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
