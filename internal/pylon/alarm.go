// internal/pylon/alarm.go
package pylon

import "fmt"

// Per-cell / per-sensor status byte values.
const (
	statusBelow     byte = 0x01
	statusAbove     byte = 0x02
	statusBalancing byte = 0x80
)

// Protection status byte (status1) bits.
var protectionNames = [...]string{
	"module_overvolt",
	"module_undervolt",
	"charge_overcurrent",
	"discharge_overcurrent",
	"overtemp",
	"undertemp",
}

// MOSFET status byte (status2) bits.
const (
	mosfetCharge    byte = 0x02
	mosfetDischarge byte = 0x04
)

// AlarmInfo is the decoded INFO of a 0x44 alarm-info response.
// Cell and sensor numbers are 1-based.
type AlarmInfo struct {
	Flag    byte
	Battery int

	CellStatus []byte
	TempStatus []byte

	BalancingCells   []int
	OvervoltCells    []int
	UndervoltCells   []int
	OvertempSensors  []int
	UndertempSensors []int

	ChargeCurrentAlarm    byte
	VoltageAlarm          byte
	DischargeCurrentAlarm byte
	Protection            byte

	// HasMOSFET is false when the device omits the MOSFET/state trailer.
	HasMOSFET       bool
	ChargeMOSFET    bool
	DischargeMOSFET bool
	State           byte

	Alarms []string
}

// DecodeAlarm parses a 0x44 INFO field. Everything through the protection byte
// is mandatory; the MOSFET and operating-state bytes are read when present.
func DecodeAlarm(info string) (AlarmInfo, error) {
	c := &cursor{s: info}
	var a AlarmInfo

	a.Flag = c.u8()
	a.Battery = int(c.u8())

	cells := int(c.u8())
	a.CellStatus = make([]byte, 0, cells)
	for i := 0; i < cells; i++ {
		a.CellStatus = append(a.CellStatus, c.u8())
	}

	temps := int(c.u8())
	a.TempStatus = make([]byte, 0, temps)
	for i := 0; i < temps; i++ {
		a.TempStatus = append(a.TempStatus, c.u8())
	}

	a.ChargeCurrentAlarm = c.u8()
	a.VoltageAlarm = c.u8()
	a.DischargeCurrentAlarm = c.u8()
	a.Protection = c.u8()

	if c.err != nil {
		return AlarmInfo{}, c.err
	}

	if c.remaining() >= 2 {
		m := c.u8()
		a.HasMOSFET = true
		a.ChargeMOSFET = m&mosfetCharge != 0
		a.DischargeMOSFET = m&mosfetDischarge != 0
	}
	if c.remaining() >= 2 {
		a.State = c.u8()
	}
	if c.err != nil {
		return AlarmInfo{}, c.err
	}

	for i, s := range a.CellStatus {
		if s&statusBalancing != 0 {
			a.BalancingCells = append(a.BalancingCells, i+1)
		}
		switch s &^ statusBalancing {
		case statusBelow:
			a.UndervoltCells = append(a.UndervoltCells, i+1)
		case statusAbove:
			a.OvervoltCells = append(a.OvervoltCells, i+1)
		}
	}
	for i, s := range a.TempStatus {
		switch s {
		case statusBelow:
			a.UndertempSensors = append(a.UndertempSensors, i+1)
		case statusAbove:
			a.OvertempSensors = append(a.OvertempSensors, i+1)
		}
	}

	a.Alarms = a.alarmNames()
	return a, nil
}

func (a AlarmInfo) alarmNames() []string {
	var out []string
	if a.ChargeCurrentAlarm == statusBelow || a.ChargeCurrentAlarm == statusAbove {
		out = append(out, "charge_overcurrent")
	}
	switch a.VoltageAlarm {
	case statusBelow:
		out = append(out, "pack_undervolt")
	case statusAbove:
		out = append(out, "pack_overvolt")
	}
	if a.DischargeCurrentAlarm == statusBelow || a.DischargeCurrentAlarm == statusAbove {
		out = append(out, "discharge_overcurrent")
	}
	for bit, name := range protectionNames {
		if a.Protection&(1<<bit) == 0 {
			continue
		}
		if !contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// Normal reports whether no cell, sensor, or pack alarm is active.
func (a AlarmInfo) Normal() bool {
	return len(a.Alarms) == 0 &&
		len(a.OvervoltCells) == 0 && len(a.UndervoltCells) == 0 &&
		len(a.OvertempSensors) == 0 && len(a.UndertempSensors) == 0
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// Decode dispatches on the command that produced the response.
func Decode(cmd byte, info string) (any, error) {
	switch cmd {
	case CmdAnalog:
		return DecodeAnalog(info)
	case CmdAlarm:
		return DecodeAlarm(info)
	default:
		return nil, fmt.Errorf("pylon: no decoder for command 0x%02X", cmd)
	}
}
