// internal/metrics/metrics_test.go
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/bms-bridge/internal/emulator"
)

func TestNewRegistersCollectors(t *testing.T) {
	m := New()

	m.CANFrames.WithLabelValues("limits", "ok").Inc()
	m.RS485Polls.WithLabelValues(Battery(1), "live", "timeout").Add(2)
	m.SOC.Set(76)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CANFrames.WithLabelValues("limits", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RS485Polls.WithLabelValues("1", "live", "timeout")))
	assert.Equal(t, -1.0, testutil.ToFloat64(m.InverterMode))

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRegisterEmulator(t *testing.T) {
	m := New()
	var s emulator.Stats
	m.RegisterEmulator(&s)

	s.CRCErrors.Add(3)

	n, err := testutil.GatherAndCount(m.Registry, "bms_bridge_emulator_crc_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBool(t *testing.T) {
	assert.Equal(t, 1.0, Bool(true))
	assert.Equal(t, 0.0, Bool(false))
}
