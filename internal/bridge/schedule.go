// internal/bridge/schedule.go
package bridge

import (
	"time"

	"github.com/tamzrod/bms-bridge/internal/control"
	"github.com/tamzrod/bms-bridge/internal/inverter"
)

// pending is deferred work with a deadline. It never blocks; the tick
// checks it.
type pending struct {
	set    bool
	due    time.Time
	reason string
}

// arm sets the deadline. An already armed deadline is only ever pulled in,
// so repeated signals coalesce instead of pushing the cycle out.
func (p *pending) arm(due time.Time, reason string) {
	if p.set && !due.Before(p.due) {
		return
	}
	p.set = true
	p.due = due
	p.reason = reason
}

func (p *pending) clear() { *p = pending{} }

func (p pending) ready(now time.Time) bool {
	return p.set && !now.Before(p.due)
}

// schedule tracks the three reasons to run an inverter cycle.
type schedule struct {
	debounce pending // state change
	retry    pending // last cycle failed

	// next is the safety-net deadline; zero disables it.
	next time.Time

	inFlight bool
}

// due returns the reason for a cycle at now, if there is one.
func (s *schedule) due(now time.Time) (string, bool) {
	switch {
	case s.debounce.ready(now):
		return s.debounce.reason, true
	case s.retry.ready(now):
		return s.retry.reason, true
	case !s.next.IsZero() && !now.Before(s.next):
		return "interval", true
	}
	return "", false
}

// started consumes every pending reason for the cycle just dispatched.
func (s *schedule) started() {
	s.debounce.clear()
	s.retry.clear()
	s.next = time.Time{}
	s.inFlight = true
}

// --------------------
// Tick
// --------------------

// Tick advances staleness, seconds-in-error and the inverter schedule.
// Nothing here blocks.
func (b *Bridge) Tick(now time.Time) {
	changed := false

	if b.cfg.CANEnabled && b.st.CAN.Check(now) {
		b.log.Warn().
			Dur("silent", now.Sub(b.st.CAN.Last())).
			Msg("can telemetry stale")
		b.sourceStale(SourceCAN)
		b.markStale(SourceCAN, true)
		changed = true
	}

	for _, rec := range b.st.Batteries {
		f := b.st.Fresh[rec.Index]
		if f == nil || !f.Check(now) {
			continue
		}
		name := SourceBattery(rec.Index)
		b.log.Warn().
			Int("battery", rec.Index).
			Dur("silent", now.Sub(f.Last())).
			Msg("rs485 telemetry stale")
		b.sourceStale(name)
		b.markStale(name, true)
		changed = true
	}

	if changed {
		b.publishImage()
	}

	b.tickSeconds()
	b.dispatch(now)
}

// RequestCycle asks for an immediate inverter cycle, subject to the same
// gating as every other cycle.
func (b *Bridge) RequestCycle(reason string) {
	now := b.now()
	b.sched.debounce.arm(now, reason)
	b.dispatch(now)
}

// actionable reports whether the telemetry is good enough to drive the inverter.
func (b *Bridge) actionable() bool {
	if !b.st.Snapshot.Complete() {
		return false
	}
	return !(b.cfg.CANEnabled && b.st.CAN.Stale())
}

// dispatch starts a cycle when one is due. With one in flight, or with
// untrusted telemetry, pending work simply waits for a later tick.
func (b *Bridge) dispatch(now time.Time) {
	if b.deps.Inverter == nil || b.sched.inFlight {
		return
	}
	reason, ok := b.sched.due(now)
	if !ok || !b.actionable() {
		return
	}

	desired := control.DesiredMode(b.st.Outputs)
	b.st.Inverter.Desired = desired
	b.sched.started()

	b.log.Debug().Str("reason", reason).Uint16("desired", desired).Msg("inverter cycle dispatched")
	b.deps.Inverter.Trigger(inverter.Request{Desired: desired, Reason: reason})
}
