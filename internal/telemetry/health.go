// internal/telemetry/health.go
package telemetry

// DefaultAlarmThreshold is the consecutive-failure count that latches a poll alarm.
const DefaultAlarmThreshold = 10

// PollHealth tracks consecutive poll failures for one battery.
// The alarm latches at Threshold and clears only on success, never on time.
type PollHealth struct {
	Threshold int
	Failures  int
	Alarm     bool

	// LastErr is the most recent failure; nil after a success.
	LastErr error
}

// Fail records one failed poll. It returns true when the alarm latched on this call.
func (h *PollHealth) Fail(err error) bool {
	h.Failures++
	h.LastErr = err

	threshold := h.Threshold
	if threshold <= 0 {
		threshold = DefaultAlarmThreshold
	}

	if !h.Alarm && h.Failures >= threshold {
		h.Alarm = true
		return true
	}
	return false
}

// Succeed resets the counter. It returns true when a latched alarm was cleared.
func (h *PollHealth) Succeed() bool {
	cleared := h.Alarm
	h.Failures = 0
	h.Alarm = false
	h.LastErr = nil
	return cleared
}
