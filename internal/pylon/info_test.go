// internal/pylon/info_test.go
package pylon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const analogInfo = "1101" + // flag, battery
	"02" + "0CE4" + "0CF0" + // 2 cells: 3.300 V, 3.312 V
	"02" + "0BA5" + "0BAF" + // 2 temps: 25.0 °C, 26.0 °C
	"FF9C" + // -1.00 A
	"C350" + // 50.000 V
	"2710" + // 100.00 Ah remaining
	"03" + // user-defined
	"4E20" + // 200.00 Ah total
	"0032" // 50 cycles

func TestDecodeAnalog(t *testing.T) {
	a, err := DecodeAnalog(analogInfo)
	require.NoError(t, err)

	assert.Equal(t, 1, a.Battery)
	assert.Equal(t, []float64{3.3, 3.312}, a.CellVoltages)
	assert.InDeltaSlice(t, []float64{25.0, 26.0}, a.Temperatures, 1e-9)
	assert.InDelta(t, -1.0, a.Current, 1e-9)
	assert.InDelta(t, 50.0, a.Voltage, 1e-9)
	assert.InDelta(t, 100.0, a.RemainingAh, 1e-9)
	assert.InDelta(t, 200.0, a.TotalAh, 1e-9)
	assert.Equal(t, 50, a.Cycles)
	assert.InDelta(t, 50.0, a.SOC(), 1e-9)

	lo, hi, ok := a.CellExtremes()
	require.True(t, ok)
	assert.Equal(t, 3.3, lo)
	assert.Equal(t, 3.312, hi)
}

func TestDecodeAnalog_TruncatedFailsWhole(t *testing.T) {
	a, err := DecodeAnalog(analogInfo[:len(analogInfo)-2])
	require.ErrorIs(t, err, ErrMalformed)
	assert.Empty(t, a.CellVoltages)
}

func TestDecodeAnalog_BadHex(t *testing.T) {
	_, err := DecodeAnalog("11010G")
	assert.ErrorIs(t, err, ErrMalformed)
}

const alarmInfo = "1100" +
	"03" + "80" + "02" + "00" + // cell1 balancing, cell2 overvolt
	"02" + "00" + "01" + // sensor2 undertemp
	"00" + "00" + "00" + // current/voltage alarms
	"10" + // protection: overtemp
	"06" + // MOSFET: charge + discharge
	"00" // state

func TestDecodeAlarm(t *testing.T) {
	a, err := DecodeAlarm(alarmInfo)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, a.BalancingCells)
	assert.Equal(t, []int{2}, a.OvervoltCells)
	assert.Empty(t, a.UndervoltCells)
	assert.Equal(t, []int{2}, a.UndertempSensors)
	assert.Equal(t, []string{"overtemp"}, a.Alarms)
	assert.True(t, a.HasMOSFET)
	assert.True(t, a.ChargeMOSFET)
	assert.True(t, a.DischargeMOSFET)
	assert.False(t, a.Normal())
}

func TestDecodeAlarm_WithoutTrailer(t *testing.T) {
	a, err := DecodeAlarm("1100" + "01" + "00" + "01" + "00" + "00" + "02" + "00" + "00")
	require.NoError(t, err)

	assert.False(t, a.HasMOSFET)
	assert.Equal(t, []string{"pack_overvolt"}, a.Alarms)
}

func TestDecodeAlarm_TruncatedBeforeProtection(t *testing.T) {
	_, err := DecodeAlarm("1100" + "02" + "00")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_UnknownCommand(t *testing.T) {
	_, err := Decode(0x4F, "")
	assert.Error(t, err)
}

func TestDeciKelvinToCelsius(t *testing.T) {
	assert.InDelta(t, 0.0, DeciKelvinToCelsius(2731), 1e-9)
	assert.InDelta(t, -10.0, DeciKelvinToCelsius(2631), 1e-9)
}
