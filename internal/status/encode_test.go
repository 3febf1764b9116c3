// internal/status/encode_test.go
package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode_BitPositions(t *testing.T) {
	v := Encode(Flags{ChargeEnabled: true, DischargeBlocked: true, TelemetryValid: true})

	assert.Equal(t, uint16(1<<BitChargeEnabled|1<<BitDischargeBlocked|1<<BitTelemetryValid), v)
}

func TestEncode_ZeroFlags(t *testing.T) {
	assert.Equal(t, uint16(0), Encode(Flags{}))
}

func TestDecode_IgnoresUnknownBits(t *testing.T) {
	f := Decode(1<<BitPollAlarm | 1<<12)

	assert.True(t, f.PollAlarm)
	assert.Equal(t, uint16(1<<BitPollAlarm), Encode(f))
}

func TestHealthName(t *testing.T) {
	assert.Equal(t, "stale", HealthName(HealthStale))
	assert.Equal(t, "unknown", HealthName(99))
}
