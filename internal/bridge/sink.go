// internal/bridge/sink.go
package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tamzrod/bms-bridge/internal/poller"
	"github.com/tamzrod/bms-bridge/internal/telemetry"
)

// write forwards one value to the sink. The sink filters repeats itself.
func (b *Bridge) write(topic string, value any) {
	if err := b.deps.Writer.Write(topic, value); err != nil {
		b.log.Debug().Err(err).Str("topic", topic).Msg("sink write failed")
	}
}

// ---- CAN groups ----

func (b *Bridge) sinkLimits() {
	l, ok := b.st.Snapshot.Limits.Get()
	if !ok {
		return
	}
	b.write("limit/charge_voltage", l.ChargeVoltageMax)
	b.write("limit/charge_current", l.ChargeCurrentLimit)
	b.write("limit/discharge_current", l.DischargeCurrentLimit)
	b.write("limit/low_voltage", l.LowVoltageLimit)
}

func (b *Bridge) sinkCharge() {
	c, ok := b.st.Snapshot.Charge.Get()
	if !ok {
		return
	}
	b.write("soc", c.SOC)
	b.write("soh", c.SOH)

	if m := b.deps.Metrics; m != nil {
		m.SOC.Set(float64(c.SOC))
		m.SOH.Set(float64(c.SOH))
	}
}

func (b *Bridge) sinkFlags() {
	f, ok := b.st.Snapshot.Flags.Get()
	if !ok {
		return
	}
	b.write("flags", fmt.Sprintf("0x%02X", f.Raw))
	b.write("flags/charge_enabled", f.ChargeEnabled)
	b.write("flags/discharge_enabled", f.DischargeEnabled)
	b.write("flags/force_charge_request", f.ForceChargeRequested)
	b.write("flags/escalation", int(f.Escalation))
}

func (b *Bridge) sinkExtremes() {
	x, ok := b.st.Snapshot.Extremes.Get()
	if !ok {
		return
	}
	b.write("ext/cell_v_max", x.CellVoltageMax)
	b.write("ext/cell_v_min", x.CellVoltageMin)
	b.write("ext/temp_max", x.TempMax)
	b.write("ext/temp_min", x.TempMin)
}

// ---- control ----

func (b *Bridge) sinkControl() {
	ctl := b.deps.Controller
	o := b.st.Outputs

	b.write("control/discharge_blocked", ctl.DischargeBlocked())
	b.write("control/force_charge_active", ctl.ForceChargeActive())
	b.write("control/final_charge", o.FinalCharge)
	b.write("control/final_discharge", o.FinalDischarge)
	b.write("control/force_charge", o.ForceCharge)
	b.write("control/desired_mode", o.DesiredMode)
}

// ---- inverter ----

func (b *Bridge) sinkInverter() {
	s := &b.st.Inverter
	if s.Known {
		b.write("inverter/mode", s.Current)
	}
	b.write("inverter/desired", s.Desired)
	b.write("inverter/in_sync", s.InSync())
	b.write("inverter/last_error", s.LastKind)
}

// ---- RS-485 ----

func (b *Bridge) sinkBattery(rec *telemetry.BatteryRecord, class poller.Class) {
	prefix := SourceBattery(rec.Index) + "/"

	switch class {
	case poller.ClassLive:
		a, ok := rec.Analog.Get()
		if !ok {
			return
		}
		b.write(prefix+"voltage", a.Voltage)
		b.write(prefix+"current", a.Current)
		b.write(prefix+"soc", a.SOC())
		b.write(prefix+"remaining_ah", a.RemainingAh)
		b.write(prefix+"total_ah", a.TotalAh)
		b.write(prefix+"cycles", a.Cycles)
		if lo, hi, ok := a.CellExtremes(); ok {
			b.write(prefix+"cell_v_min", lo)
			b.write(prefix+"cell_v_max", hi)
			b.write(prefix+"cell_v_delta", hi-lo)
		}
		for i, t := range a.Temperatures {
			b.write(prefix+"temp/"+strconv.Itoa(i+1), t)
		}

	case poller.ClassAlarm:
		a, ok := rec.Alarm.Get()
		if !ok {
			return
		}
		b.write(prefix+"alarms", joinOr(a.Alarms, "none"))
		b.write(prefix+"balancing", len(a.BalancingCells))
		b.write(prefix+"protection", fmt.Sprintf("0x%02X", a.Protection))
		if a.HasMOSFET {
			b.write(prefix+"charge_mosfet", a.ChargeMOSFET)
			b.write(prefix+"discharge_mosfet", a.DischargeMOSFET)
			b.write(prefix+"state", fmt.Sprintf("0x%02X", a.State))
		}
	}

	b.write(prefix+"poll_failures", rec.Health.Failures)
	b.write(prefix+"poll_alarm", rec.Health.Alarm)
}

func joinOr(v []string, empty string) string {
	if len(v) == 0 {
		return empty
	}
	return strings.Join(v, ",")
}
