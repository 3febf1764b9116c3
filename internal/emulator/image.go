// internal/emulator/image.go
package emulator

import (
	"math"

	"github.com/tamzrod/bms-bridge/internal/status"
	"github.com/tamzrod/bms-bridge/internal/telemetry"
)

// Battery unit register offsets, relative to the battery base address.
const (
	OffCellCount       = 0x00
	OffPackVoltage     = 0x01
	OffPackCurrent     = 0x02
	OffChargeVoltage   = 0x03
	OffChargeCurrent   = 0x04
	OffDischargeCurr   = 0x05
	OffSOC             = 0x06
	OffSOH             = 0x07
	OffTempMax         = 0x08
	OffTempMin         = 0x09
	OffCellVoltageMax  = 0x0A
	OffCellVoltageMin  = 0x0B
	OffLowVoltageLimit = 0x0C
	OffCycles          = 0x0D
	OffStatus          = 0x27

	BatteryRegs = 0x28
)

// Image is one immutable battery register block. The orchestrator builds a
// new one on every change and publishes it; nothing mutates it afterwards.
type Image struct {
	Regs [BatteryRegs]uint16
}

// Status returns the decoded composite status register.
func (img *Image) Status() status.Flags {
	return status.Decode(img.Regs[OffStatus])
}

// Inputs is everything an image is derived from.
type Inputs struct {
	Snapshot  telemetry.Snapshot
	Batteries []*telemetry.BatteryRecord
	Flags     status.Flags
}

// BuildImage renders inputs through the fixed scale table.
// Any group that never became valid leaves its registers at zero.
func BuildImage(in Inputs) *Image {
	img := &Image{}
	r := &img.Regs

	if l, ok := in.Snapshot.Limits.Get(); ok {
		r[OffChargeVoltage] = scaleU(l.ChargeVoltageMax, 100)
		r[OffChargeCurrent] = scaleU(l.ChargeCurrentLimit, 10)
		r[OffDischargeCurr] = scaleU(l.DischargeCurrentLimit, 10)
		r[OffLowVoltageLimit] = scaleU(l.LowVoltageLimit, 100)
	}

	if c, ok := in.Snapshot.Charge.Get(); ok {
		r[OffSOC] = c.SOC
		r[OffSOH] = c.SOH
	}

	if x, ok := in.Snapshot.Extremes.Get(); ok {
		r[OffTempMax] = scaleS(x.TempMax, 100)
		r[OffTempMin] = scaleS(x.TempMin, 100)
		r[OffCellVoltageMax] = scaleU(x.CellVoltageMax, 1000)
		r[OffCellVoltageMin] = scaleU(x.CellVoltageMin, 1000)
	}

	// Batteries sit in parallel: voltages average, currents add.
	var (
		n       int
		voltSum float64
		current float64
		cells   int
		cycles  int
	)
	for _, b := range in.Batteries {
		a, ok := b.Analog.Get()
		if !ok {
			continue
		}
		n++
		voltSum += a.Voltage
		current += a.Current
		if len(a.CellVoltages) > cells {
			cells = len(a.CellVoltages)
		}
		if a.Cycles > cycles {
			cycles = a.Cycles
		}
	}
	if n > 0 {
		r[OffCellCount] = uint16(cells)
		r[OffPackVoltage] = scaleU(voltSum/float64(n), 100)
		r[OffPackCurrent] = scaleS(current, 100)
		r[OffCycles] = clampU(float64(cycles))
	}

	r[OffStatus] = status.Encode(in.Flags)
	return img
}

func scaleU(v, k float64) uint16 {
	return clampU(math.Round(v * k))
}

func clampU(v float64) uint16 {
	switch {
	case v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(v)
	}
}

// scaleS encodes a signed value as two's complement in a register.
func scaleS(v, k float64) uint16 {
	s := math.Round(v * k)
	switch {
	case s <= math.MinInt16:
		s = math.MinInt16
	case s >= math.MaxInt16:
		s = math.MaxInt16
	}
	return uint16(int16(s))
}
