// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/bms-bridge/internal/pylon"
)

// Class selects which command a poll cycle sends.
type Class uint8

const (
	ClassLive  Class = iota // analog values, 0x42
	ClassAlarm              // alarm info, 0x44
)

// Command is the RS-485 command byte for the class.
func (c Class) Command() byte {
	if c == ClassAlarm {
		return pylon.CmdAlarm
	}
	return pylon.CmdAnalog
}

func (c Class) String() string {
	if c == ClassAlarm {
		return "alarm"
	}
	return "live"
}

// BatteryResult is the outcome for one battery inside one cycle.
// Info is set only when the exchange and the decode both succeeded.
type BatteryResult struct {
	Battery int
	Info    any
	Err     error
	Took    time.Duration
}

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	Class   Class
	Command byte
	At      time.Time

	Batteries []BatteryResult

	// Err is set when the whole cycle could not run (bus busy, no client).
	Err error
}
