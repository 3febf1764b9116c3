// internal/telemetry/health_test.go
package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollHealth_AlarmLatchesAtThreshold(t *testing.T) {
	h := PollHealth{Threshold: DefaultAlarmThreshold}
	fail := errors.New("timeout")

	for i := 1; i <= 9; i++ {
		require.False(t, h.Fail(fail), "failure %d", i)
		require.False(t, h.Alarm, "failure %d", i)
	}

	assert.True(t, h.Fail(fail), "10th failure must latch")
	assert.True(t, h.Alarm)

	// further failures keep the alarm but do not re-report the latch
	assert.False(t, h.Fail(fail))
	assert.True(t, h.Alarm)
	assert.Equal(t, 11, h.Failures)

	assert.True(t, h.Succeed())
	assert.False(t, h.Alarm)
	assert.Equal(t, 0, h.Failures)
	assert.NoError(t, h.LastErr)
}

func TestPollHealth_ZeroThresholdUsesDefault(t *testing.T) {
	var h PollHealth
	for i := 0; i < DefaultAlarmThreshold-1; i++ {
		h.Fail(errors.New("x"))
	}
	assert.False(t, h.Alarm)
	h.Fail(errors.New("x"))
	assert.True(t, h.Alarm)
}

func TestFreshness_RecoveryIndependentOfTimer(t *testing.T) {
	start := time.Unix(1000, 0)
	f := NewFreshness(30*time.Second, start)

	require.False(t, f.Check(start.Add(10*time.Second)))
	require.True(t, f.Check(start.Add(31*time.Second)))
	require.True(t, f.Stale())

	// Success arrives with a timestamp the staleness check would still call old.
	recovered := f.MarkSuccess(start.Add(5 * time.Second))
	assert.True(t, recovered)
	assert.False(t, f.Stale())
}

func TestFreshness_TransitionReportedOnce(t *testing.T) {
	start := time.Unix(0, 0)
	f := NewFreshness(time.Second, start)

	assert.True(t, f.Check(start.Add(2*time.Second)))
	assert.False(t, f.Check(start.Add(3*time.Second)))
	assert.True(t, f.MarkSuccess(start.Add(3*time.Second)))
	assert.False(t, f.MarkSuccess(start.Add(4*time.Second)))
}

func TestSnapshot_SOCUntrustedUntilSet(t *testing.T) {
	var s Snapshot

	_, ok := s.SOC()
	assert.False(t, ok)
	assert.False(t, s.Complete())

	s.Charge.Set(Charge{SOC: 42, SOH: 99}, time.Now())
	soc, ok := s.SOC()
	assert.True(t, ok)
	assert.Equal(t, uint16(42), soc)
	assert.False(t, s.Complete())

	s.Flags.Set(BMSFlags{ChargeEnabled: true}, time.Now())
	assert.True(t, s.Complete())
}
