// internal/poller/guard.go
package poller

import "errors"

// ErrBusBusy means another exchange holds the bus.
var ErrBusBusy = errors.New("poller: rs485 bus busy")

// BusGuard serializes access to a shared half-duplex bus.
type BusGuard struct {
	ch chan struct{}
}

// NewBusGuard returns a free guard.
func NewBusGuard() *BusGuard {
	return &BusGuard{ch: make(chan struct{}, 1)}
}

// TryAcquire takes the bus if it is free. It never blocks.
func (g *BusGuard) TryAcquire() bool {
	select {
	case g.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the bus. Releasing a free guard is a no-op.
func (g *BusGuard) Release() {
	select {
	case <-g.ch:
	default:
	}
}

// Held reports whether the bus is currently taken.
func (g *BusGuard) Held() bool { return len(g.ch) == 1 }
