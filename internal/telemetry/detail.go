// internal/telemetry/detail.go
package telemetry

import (
	"time"

	"github.com/tamzrod/bms-bridge/internal/pylon"
)

// BatteryRecord is the RS-485 detail for one battery index.
// Each half is replaced wholesale by a successful poll of that kind.
type BatteryRecord struct {
	Index  int
	Analog Group[pylon.AnalogInfo]
	Alarm  Group[pylon.AlarmInfo]
	Health PollHealth
}

// NewBatteryRecord creates an empty record with the given alarm threshold.
func NewBatteryRecord(index, alarmThreshold int) *BatteryRecord {
	return &BatteryRecord{
		Index:  index,
		Health: PollHealth{Threshold: alarmThreshold},
	}
}

// Apply stores a successful decode for the given command.
func (r *BatteryRecord) Apply(cmd byte, info any, at time.Time) {
	switch v := info.(type) {
	case pylon.AnalogInfo:
		if cmd == pylon.CmdAnalog {
			r.Analog.Set(v, at)
		}
	case pylon.AlarmInfo:
		if cmd == pylon.CmdAlarm {
			r.Alarm.Set(v, at)
		}
	}
}

// LastSuccess is the most recent successful update of either half.
func (r *BatteryRecord) LastSuccess() time.Time {
	a := r.Analog.UpdatedAt
	if r.Alarm.UpdatedAt.After(a) {
		return r.Alarm.UpdatedAt
	}
	return a
}
