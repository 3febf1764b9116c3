// internal/telemetry/freshness.go
package telemetry

import "time"

// Freshness tracks whether a source is stale.
//
// Check is the only way to become stale; MarkSuccess is the only way to recover.
// MarkSuccess never consults the stale flag or the window, so a success always
// clears staleness regardless of what the timer currently reads.
type Freshness struct {
	Window time.Duration

	last  time.Time
	stale bool
}

// NewFreshness starts the window at start so a source that never reports
// still goes stale.
func NewFreshness(window time.Duration, start time.Time) *Freshness {
	return &Freshness{Window: window, last: start}
}

// MarkSuccess records a successful update. It returns true if the source was stale.
func (f *Freshness) MarkSuccess(at time.Time) bool {
	was := f.stale
	f.stale = false
	f.last = at
	return was
}

// Check marks the source stale if the window elapsed. It returns true on the
// transition into stale only.
func (f *Freshness) Check(now time.Time) bool {
	if f.stale || f.Window <= 0 {
		return false
	}
	if now.Sub(f.last) > f.Window {
		f.stale = true
		return true
	}
	return false
}

// Stale reports the current flag.
func (f *Freshness) Stale() bool { return f.stale }

// Last is the time of the last success (or start).
func (f *Freshness) Last() time.Time { return f.last }
