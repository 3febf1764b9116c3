// internal/emulator/registers_test.go
package emulator

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/bms-bridge/internal/pylon"
	"github.com/tamzrod/bms-bridge/internal/rtu"
	"github.com/tamzrod/bms-bridge/internal/status"
	"github.com/tamzrod/bms-bridge/internal/telemetry"
)

func newRegisters() *Registers {
	return NewRegisters(DefaultLayout(), zerolog.Nop())
}

func regsOf(t *testing.T, resp []byte) []uint16 {
	t.Helper()
	f, err := rtu.Parse(resp)
	require.NoError(t, err)
	require.False(t, f.IsException(), "unexpected exception %v", f.Exception())
	require.Equal(t, int(f.Data[0]), len(f.Data)-1)

	out := make([]uint16, f.Data[0]/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(f.Data[1+2*i:])
	}
	return out
}

func exceptionOf(t *testing.T, resp []byte) byte {
	t.Helper()
	f, err := rtu.Parse(resp)
	require.NoError(t, err)
	require.True(t, f.IsException())
	return f.Data[0]
}

func sampleImage() *Image {
	var s telemetry.Snapshot
	at := time.Now()
	s.Limits.Set(telemetry.Limits{ChargeVoltageMax: 53.2, ChargeCurrentLimit: 52.7, DischargeCurrentLimit: 52.2, LowVoltageLimit: 48}, at)
	s.Charge.Set(telemetry.Charge{SOC: 76, SOH: 99}, at)
	s.Extremes.Set(telemetry.Extremes{CellVoltageMax: 3.345, CellVoltageMin: 3.301, TempMax: 24.5, TempMin: -3.25}, at)

	b1 := telemetry.NewBatteryRecord(1, 10)
	b1.Analog.Set(pylon.AnalogInfo{CellVoltages: make([]float64, 16), Voltage: 53.10, Current: -10.5, Cycles: 120}, at)
	b2 := telemetry.NewBatteryRecord(2, 10)
	b2.Analog.Set(pylon.AnalogInfo{CellVoltages: make([]float64, 16), Voltage: 53.30, Current: -9.5, Cycles: 140}, at)
	b3 := telemetry.NewBatteryRecord(3, 10) // never polled

	return BuildImage(Inputs{
		Snapshot:  s,
		Batteries: []*telemetry.BatteryRecord{b1, b2, b3},
		Flags:     status.Flags{ChargeEnabled: true, DischargeEnabled: true, TelemetryValid: true},
	})
}

func TestBuildImageScaling(t *testing.T) {
	r := sampleImage().Regs

	assert.Equal(t, uint16(16), r[OffCellCount])
	assert.Equal(t, uint16(5320), r[OffPackVoltage])
	assert.Equal(t, int16(-2000), int16(r[OffPackCurrent]))
	assert.Equal(t, uint16(5320), r[OffChargeVoltage])
	assert.Equal(t, uint16(527), r[OffChargeCurrent])
	assert.Equal(t, uint16(522), r[OffDischargeCurr])
	assert.Equal(t, uint16(76), r[OffSOC])
	assert.Equal(t, uint16(99), r[OffSOH])
	assert.Equal(t, int16(2450), int16(r[OffTempMax]))
	assert.Equal(t, int16(-325), int16(r[OffTempMin]))
	assert.Equal(t, uint16(3345), r[OffCellVoltageMax])
	assert.Equal(t, uint16(3301), r[OffCellVoltageMin])
	assert.Equal(t, uint16(4800), r[OffLowVoltageLimit])
	assert.Equal(t, uint16(140), r[OffCycles])

	f := status.Decode(r[OffStatus])
	assert.True(t, f.ChargeEnabled)
	assert.True(t, f.TelemetryValid)
	assert.False(t, f.CANStale)

	for off := OffCycles + 1; off < OffStatus; off++ {
		assert.Zero(t, r[off], "unfilled offset 0x%02X", off)
	}
}

func TestBuildImageInvalidGroupsReadZero(t *testing.T) {
	img := BuildImage(Inputs{})
	for i, v := range img.Regs {
		assert.Zero(t, v, "offset 0x%02X", i)
	}
}

func TestReadBatteryBlock(t *testing.T) {
	r := newRegisters()
	r.Publish(sampleImage())

	for _, fc := range []byte{modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters} {
		resp := r.HandleADU(rtu.ReadRequest(1, fc, 0, BatteryRegs))
		regs := regsOf(t, resp)
		require.Len(t, regs, BatteryRegs)
		assert.Equal(t, uint16(76), regs[OffSOC])
	}

	regs := regsOf(t, r.HandleADU(rtu.ReadRequest(1, 3, OffStatus, 1)))
	assert.Equal(t, r.Image().Regs[OffStatus], regs[0])
}

func TestReadOutsideBlock(t *testing.T) {
	r := newRegisters()

	resp := r.HandleADU(rtu.ReadRequest(1, 3, 0x20, 9)) // 0x20..0x28
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataAddress), exceptionOf(t, resp))

	resp = r.HandleADU(rtu.ReadRequest(2, 3, ConfigRegs, 1))
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataAddress), exceptionOf(t, resp))

	resp = r.HandleADU(rtu.ReadRequest(1, 3, 0, 0))
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataValue), exceptionOf(t, resp))

	assert.Equal(t, uint64(3), r.Stats.Exceptions.Load())
}

func TestUnsupportedFunction(t *testing.T) {
	r := newRegisters()

	resp := r.HandleADU(rtu.Seal([]byte{1, modbus.FuncCodeReadCoils, 0, 0, 0, 1}))
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalFunction), exceptionOf(t, resp))

	resp = r.HandleADU(rtu.Seal([]byte{1, modbus.FuncCodeWriteSingleRegister, 0, 0, 0, 1}))
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalFunction), exceptionOf(t, resp))

	// battery block is read-only
	resp = r.HandleADU(rtu.WriteMultipleRequest(1, 0, []uint16{1}))
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalFunction), exceptionOf(t, resp))
}

func TestMalformedBody(t *testing.T) {
	r := newRegisters()

	resp := r.HandleADU(rtu.Seal([]byte{1, 3, 0, 0}))
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataValue), exceptionOf(t, resp))

	// byte count disagrees with quantity
	resp = r.HandleADU(rtu.Seal([]byte{2, 16, 0, 0, 0, 2, 2, 0, 1}))
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataValue), exceptionOf(t, resp))
}

func TestBadCRCAndForeignUnitAreSilent(t *testing.T) {
	r := newRegisters()

	req := rtu.ReadRequest(1, 3, 0, 1)
	req[len(req)-1] ^= 0xFF
	assert.Nil(t, r.HandleADU(req))
	assert.Equal(t, uint64(1), r.Stats.CRCErrors.Load())

	assert.Nil(t, r.HandleADU(rtu.ReadRequest(7, 3, 0, 1)))
	assert.Equal(t, uint64(1), r.Stats.Ignored.Load())
	assert.Zero(t, r.Stats.Requests.Load())
}

func TestConfigEcho(t *testing.T) {
	r := newRegisters()

	values := []uint16{0x1111, 0x2222, 0x3333}
	resp := r.HandleADU(rtu.WriteMultipleRequest(2, 0x09, values))
	f, err := rtu.Parse(resp)
	require.NoError(t, err)
	require.False(t, f.IsException())
	assert.Equal(t, uint16(0x09), binary.BigEndian.Uint16(f.Data[0:]))
	assert.Equal(t, uint16(3), binary.BigEndian.Uint16(f.Data[2:]))

	regs := regsOf(t, r.HandleADU(rtu.ReadRequest(2, 3, 0x08, 5)))
	assert.Equal(t, []uint16{0, 0x1111, 0x2222, 0x3333, 0}, regs)
	assert.Equal(t, uint16(0x2222), r.ConfigBlock()[OffACFrequency])

	// config block does not answer input-register reads
	resp = r.HandleADU(rtu.ReadRequest(2, 4, 0, 1))
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalFunction), exceptionOf(t, resp))

	// write crossing the end of the block
	resp = r.HandleADU(rtu.WriteMultipleRequest(2, ConfigRegs-1, []uint16{1, 2}))
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataAddress), exceptionOf(t, resp))
}

func TestConfigWriteLongerThanBlock(t *testing.T) {
	r := newRegisters()

	// a legal FC16 quantity that overruns the block is an address fault
	resp := r.HandleADU(rtu.WriteMultipleRequest(2, 0, make([]uint16, ConfigRegs+1)))
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataAddress), exceptionOf(t, resp))
	assert.ErrorIs(t, r.Write(2, 0, make([]uint16, ConfigRegs+1)), ErrIllegalAddress)

	// beyond what FC16 allows at all
	assert.ErrorIs(t, r.Write(2, 0, make([]uint16, maxWriteQty+1)), ErrIllegalValue)
	assert.ErrorIs(t, r.Write(2, 0, nil), ErrIllegalValue)

	assert.Equal(t, [ConfigRegs]uint16{}, r.ConfigBlock(), "rejected writes leave the block untouched")
}

func TestNonZeroBases(t *testing.T) {
	r := NewRegisters(Layout{BatteryUnit: 1, BatteryBase: 0x1000, ConfigUnit: 2, ConfigBase: 0x2000}, zerolog.Nop())
	r.Publish(sampleImage())

	regs := regsOf(t, r.HandleADU(rtu.ReadRequest(1, 3, 0x1000+OffSOC, 1)))
	assert.Equal(t, []uint16{76}, regs)

	resp := r.HandleADU(rtu.ReadRequest(1, 3, 0x0FFF, 1))
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataAddress), exceptionOf(t, resp))

	require.NoError(t, r.Write(2, 0x2000, []uint16{5}))
	assert.Equal(t, uint16(5), r.ConfigBlock()[0])
}

func TestPublishSwapsImage(t *testing.T) {
	r := newRegisters()
	before := r.Image()
	r.Publish(sampleImage())
	assert.NotSame(t, before, r.Image())
	assert.Zero(t, before.Regs[OffSOC], "published images are never mutated")

	r.Publish(nil)
	assert.Equal(t, uint16(76), r.Image().Regs[OffSOC])
}
