// internal/inverter/cycle.go
package inverter

import (
	"errors"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// Stage is where a cycle stopped.
type Stage string

const (
	StageRead  Stage = "read"
	StageWrite Stage = "write"
	StageDone  Stage = "done"
)

// Result is the outcome of one read-verify-write cycle.
// It is produced by the worker and applied by the state owner.
type Result struct {
	Reason  string
	Desired uint16
	At      time.Time

	ReadOK  bool
	Read    uint16
	Wrote   bool // a write was attempted
	WriteOK bool

	Stage Stage
	Err   error
}

// Cycle reads the register, compares with desired and writes only on mismatch.
// It never retries; the caller schedules the next attempt.
func (c *Client) Cycle(desired uint16, reason string) Result {
	res := Result{Reason: reason, Desired: desired, At: time.Now(), Stage: StageRead}

	cur, err := c.ReadMode()
	if err != nil {
		res.Err = fmt.Errorf("inverter: read: %w", err)
		return res
	}
	res.ReadOK = true
	res.Read = cur

	if cur == desired {
		res.Stage = StageDone
		return res
	}

	res.Stage = StageWrite
	res.Wrote = true
	if err := c.WriteMode(desired); err != nil {
		res.Err = fmt.Errorf("inverter: write: %w", err)
		return res
	}
	res.WriteOK = true
	res.Stage = StageDone
	return res
}

// OK reports whether the inverter is now in the desired mode.
func (r Result) OK() bool { return r.Err == nil && r.Stage == StageDone }

// PriorityState is the cached view of the inverter priority register.
type PriorityState struct {
	Current uint16
	Known   bool
	Desired uint16

	ReadAttempts  uint64
	ReadSuccesses uint64
	ReadFailures  uint64

	WriteAttempts  uint64
	WriteSuccesses uint64
	WriteFailures  uint64

	Exceptions uint64

	LastErr   error
	LastKind  string
	LastCycle time.Time
}

// Apply folds a cycle result into the state. Current only moves on a
// validated read or a confirmed write.
func (s *PriorityState) Apply(r Result) {
	s.LastCycle = r.At
	s.LastErr = r.Err
	s.LastKind = Kind(r.Err)

	var me *modbus.ModbusError
	if errors.As(r.Err, &me) {
		s.Exceptions++
	}

	s.ReadAttempts++
	if !r.ReadOK {
		s.ReadFailures++
		return
	}
	s.ReadSuccesses++
	s.Current = r.Read
	s.Known = true

	if !r.Wrote {
		return
	}
	s.WriteAttempts++
	if !r.WriteOK {
		s.WriteFailures++
		return
	}
	s.WriteSuccesses++
	s.Current = r.Desired
}

// InSync reports whether the last known mode matches the desired one.
func (s *PriorityState) InSync() bool {
	return s.Known && s.Current == s.Desired
}
