// internal/canbus/decoder_test.go
package canbus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/bms-bridge/internal/telemetry"
)

func newDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder(DefaultFrames())
	require.NoError(t, err)
	return d
}

func TestDecodeLimitsFrame(t *testing.T) {
	d := newDecoder(t)
	var s telemetry.Snapshot
	at := time.Unix(1000, 0)

	kind, err := d.Decode(0x351, []byte{0xE8, 0x03, 0x0F, 0x02, 0x0A, 0x02, 0x20, 0x03}, &s, at)
	require.NoError(t, err)
	assert.Equal(t, KindLimits, kind)

	l, ok := s.Limits.Get()
	require.True(t, ok)
	assert.InDelta(t, 100.0, l.ChargeVoltageMax, 1e-9)
	assert.InDelta(t, 52.7, l.ChargeCurrentLimit, 1e-9)
	assert.InDelta(t, 52.2, l.DischargeCurrentLimit, 1e-9)
	assert.InDelta(t, 80.0, l.LowVoltageLimit, 1e-9)
	assert.Equal(t, at, s.Limits.UpdatedAt)
}

func TestDecodeChargeAndFlags(t *testing.T) {
	d := newDecoder(t)
	var s telemetry.Snapshot
	now := time.Now()

	_, ok := s.SOC()
	assert.False(t, ok, "soc must not be trusted before its frame")

	_, err := d.Decode(0x355, []byte{0x4B, 0x00, 0x62, 0x00}, &s, now)
	require.NoError(t, err)
	soc, ok := s.SOC()
	require.True(t, ok)
	assert.Equal(t, uint16(75), soc)
	assert.Equal(t, uint16(98), s.Charge.Value.SOH)

	// charge + discharge enabled, force-charge request, escalation bits 4/3 = 0b10
	_, err = d.Decode(0x35C, []byte{0xF0}, &s, now)
	require.NoError(t, err)
	f := s.Flags.Value
	assert.True(t, f.ChargeEnabled)
	assert.True(t, f.DischargeEnabled)
	assert.True(t, f.ForceChargeRequested)
	assert.Equal(t, uint8(0b10), f.Escalation)
	assert.True(t, s.Complete())
}

func TestDecodeExtremes(t *testing.T) {
	d := newDecoder(t)
	var s telemetry.Snapshot

	// 3.456 V, 3.301 V, 2981 dK (25.0 °C), 2911 dK (18.0 °C)
	payload := []byte{0x80, 0x0D, 0xE5, 0x0C, 0xA5, 0x0B, 0x5F, 0x0B}
	_, err := d.Decode(0x370, payload, &s, time.Now())
	require.NoError(t, err)

	x := s.Extremes.Value
	assert.InDelta(t, 3.456, x.CellVoltageMax, 1e-9)
	assert.InDelta(t, 3.301, x.CellVoltageMin, 1e-9)
	assert.InDelta(t, 24.95, x.TempMax, 1e-9)
	assert.InDelta(t, 17.95, x.TempMin, 1e-9)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		id      uint32
		payload []byte
		want    error
		stat    func(Stats) uint64
	}{
		{"short limits", 0x351, []byte{0xE8, 0x03}, ErrLength, func(s Stats) uint64 { return s.LengthErrors }},
		{"padded flags", 0x35C, []byte{0xC0, 0x00}, ErrLength, func(s Stats) uint64 { return s.LengthErrors }},
		{"soc over 100", 0x355, []byte{0x65, 0x00, 0x64, 0x00}, ErrImplausible, func(s Stats) uint64 { return s.Implausible }},
		// 0xFFFF dK is far above 100 °C
		{"hot sensor", 0x370, []byte{0x80, 0x0D, 0xE5, 0x0C, 0xFF, 0xFF, 0x5F, 0x0B}, ErrImplausible, func(s Stats) uint64 { return s.Implausible }},
		// 0 dK is -273 °C
		{"cold sensor", 0x370, []byte{0x80, 0x0D, 0xE5, 0x0C, 0xA5, 0x0B, 0x00, 0x00}, ErrImplausible, func(s Stats) uint64 { return s.Implausible }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDecoder(t)
			var s telemetry.Snapshot

			_, err := d.Decode(tt.id, tt.payload, &s, time.Now())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
			assert.Equal(t, uint64(1), tt.stat(d.Stats()))

			assert.False(t, s.Limits.Valid)
			assert.False(t, s.Charge.Valid)
			assert.False(t, s.Flags.Valid)
			assert.False(t, s.Extremes.Valid)
		})
	}
}

func TestRejectedFrameKeepsPreviousGroup(t *testing.T) {
	d := newDecoder(t)
	var s telemetry.Snapshot
	first := time.Unix(10, 0)

	_, err := d.Decode(0x355, []byte{0x32, 0x00, 0x64, 0x00}, &s, first)
	require.NoError(t, err)

	_, err = d.Decode(0x355, []byte{0xC8, 0x00, 0x64, 0x00}, &s, first.Add(time.Second))
	require.Error(t, err)

	assert.Equal(t, uint16(50), s.Charge.Value.SOC)
	assert.Equal(t, first, s.Charge.UpdatedAt)
}

func TestUnknownIDIgnored(t *testing.T) {
	d := newDecoder(t)
	var s telemetry.Snapshot

	kind, err := d.Decode(0x359, []byte{1, 2, 3}, &s, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, KindUnknown, kind)
	assert.Equal(t, uint64(1), d.Stats().Ignored)
	assert.Equal(t, uint64(0), d.Stats().LengthErrors)
}

func TestConfigurableFrames(t *testing.T) {
	frames := DefaultFrames()
	frames[1].Length = 8 // firmware that pads the SOC frame

	d, err := NewDecoder(frames)
	require.NoError(t, err)

	var s telemetry.Snapshot
	_, err = d.Decode(0x355, []byte{0x3C, 0x00, 0x63, 0x00, 0, 0, 0, 0}, &s, time.Now())
	require.NoError(t, err)
	assert.Equal(t, uint16(60), s.Charge.Value.SOC)
}

func TestNewDecoderRejectsBadTable(t *testing.T) {
	_, err := NewDecoder([]FrameSpec{
		{Kind: KindLimits, ID: 0x351, Length: 8},
		{Kind: KindCharge, ID: 0x351, Length: 4},
	})
	assert.Error(t, err)

	_, err = NewDecoder([]FrameSpec{{Kind: KindFlags, ID: 0x35C, Length: 9}})
	assert.Error(t, err)

	_, err = NewDecoder([]FrameSpec{{Kind: Kind(42), ID: 0x35C, Length: 1}})
	assert.Error(t, err)
}
