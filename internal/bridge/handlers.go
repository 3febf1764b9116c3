// internal/bridge/handlers.go
package bridge

import (
	"errors"

	"github.com/tamzrod/bms-bridge/internal/canbus"
	"github.com/tamzrod/bms-bridge/internal/control"
	"github.com/tamzrod/bms-bridge/internal/emulator"
	"github.com/tamzrod/bms-bridge/internal/inverter"
	"github.com/tamzrod/bms-bridge/internal/metrics"
	"github.com/tamzrod/bms-bridge/internal/poller"
	"github.com/tamzrod/bms-bridge/internal/pylon"
	"github.com/tamzrod/bms-bridge/internal/status"
	"github.com/tamzrod/bms-bridge/internal/telemetry"
)

// --------------------
// CAN
// --------------------

// HandleCAN decodes one frame into the snapshot. A rejected frame leaves the
// previous group in place and does not count as a success for staleness.
func (b *Bridge) HandleCAN(f canbus.Frame) {
	if b.deps.Decoder == nil {
		return
	}

	kind, err := b.deps.Decoder.Decode(f.ID, f.Data, &b.st.Snapshot, f.At)
	if err != nil {
		b.log.Debug().Err(err).Str("group", kind.String()).Msg("can frame rejected")
		b.countCAN(kind, canResult(err))
		return
	}
	if kind == canbus.KindUnknown {
		b.countCAN(kind, "ignored")
		return
	}
	b.countCAN(kind, "ok")

	if b.st.CAN.MarkSuccess(f.At) {
		b.log.Info().Msg("can telemetry recovered")
	}
	b.sourceOK(SourceCAN)
	b.markStale(SourceCAN, false)

	switch kind {
	case canbus.KindLimits:
		b.sinkLimits()
	case canbus.KindCharge:
		b.sinkCharge()
		b.evaluate("soc")
	case canbus.KindFlags:
		b.sinkFlags()
		b.evaluate("bms flags")
	case canbus.KindExtremes:
		b.sinkExtremes()
	}

	b.publishImage()
}

func canResult(err error) string {
	switch {
	case errors.Is(err, canbus.ErrLength):
		return "length"
	case errors.Is(err, canbus.ErrImplausible):
		return "implausible"
	default:
		return "error"
	}
}

// evaluate runs the hysteresis on the current SOC, recomputes the outputs and
// signals the inverter when the discharge block or the desired mode moved.
func (b *Bridge) evaluate(reason string) {
	ctl := b.deps.Controller

	var ch control.Change
	if !b.cfg.ControlDisabled {
		if soc, ok := b.st.Snapshot.SOC(); ok {
			ch = ctl.Update(soc)
			if ch.Any() {
				b.log.Info().
					Uint16("soc", soc).
					Bool("discharge_blocked", ctl.DischargeBlocked()).
					Bool("force_charge", ctl.ForceChargeActive()).
					Msg("control state changed")
			}
		}
	}

	prev := control.DesiredMode(b.st.Outputs)
	bms, _ := b.st.Snapshot.Flags.Get()
	b.st.Outputs = ctl.Outputs(bms)

	if ch.DischargeBlock || control.DesiredMode(b.st.Outputs) != prev {
		b.sched.debounce.arm(b.now().Add(b.cfg.InverterDebounce), reason)
	}

	b.sinkControl()
	if m := b.deps.Metrics; m != nil {
		m.DischargeBlocked.Set(metrics.Bool(!b.st.Outputs.FinalDischarge))
		m.ForceCharge.Set(metrics.Bool(b.st.Outputs.ForceCharge))
	}
}

// --------------------
// RS-485
// --------------------

// HandlePoll folds one poll cycle into the battery records.
func (b *Bridge) HandlePoll(res poller.PollResult) {
	if res.Err != nil {
		if errors.Is(res.Err, poller.ErrBusBusy) {
			b.log.Debug().Str("class", res.Class.String()).Msg("rs485 poll skipped, bus busy")
			return
		}
		// The cycle never reached the bus; every battery missed this poll.
		b.log.Warn().Err(res.Err).Str("class", res.Class.String()).Msg("rs485 poll cycle failed")
		for _, rec := range b.st.Batteries {
			b.pollFailed(rec, res.Class, res.Err)
		}
		b.publishImage()
		return
	}

	for _, br := range res.Batteries {
		rec := b.battery(br.Battery)
		if rec == nil {
			continue
		}
		if br.Err != nil {
			b.pollFailed(rec, res.Class, br.Err)
			continue
		}
		b.pollSucceeded(rec, res, br)
	}

	b.publishImage()
}

func (b *Bridge) pollSucceeded(rec *telemetry.BatteryRecord, res poller.PollResult, br poller.BatteryResult) {
	rec.Apply(res.Command, br.Info, res.At)

	if rec.Health.Succeed() {
		b.log.Info().Int("battery", rec.Index).Msg("rs485 poll alarm cleared")
	}
	if f := b.st.Fresh[rec.Index]; f != nil && f.MarkSuccess(res.At) {
		b.log.Info().Int("battery", rec.Index).Msg("rs485 telemetry recovered")
	}

	name := SourceBattery(rec.Index)
	b.sourceOK(name)
	b.markStale(name, false)

	if m := b.deps.Metrics; m != nil {
		m.RS485Polls.WithLabelValues(metrics.Battery(rec.Index), res.Class.String(), "ok").Inc()
		m.PollAlarm.WithLabelValues(metrics.Battery(rec.Index)).Set(0)
	}
	b.sinkBattery(rec, res.Class)
}

func (b *Bridge) pollFailed(rec *telemetry.BatteryRecord, class poller.Class, err error) {
	kind := pylon.Kind(err)

	if rec.Health.Fail(err) {
		b.log.Warn().Err(err).
			Int("battery", rec.Index).
			Int("failures", rec.Health.Failures).
			Msg("rs485 poll alarm latched")
	} else {
		b.log.Debug().Err(err).
			Int("battery", rec.Index).
			Str("class", class.String()).
			Str("kind", kind).
			Msg("rs485 poll failed")
	}

	b.sourceFailed(SourceBattery(rec.Index), err)

	if m := b.deps.Metrics; m != nil {
		m.RS485Polls.WithLabelValues(metrics.Battery(rec.Index), class.String(), kind).Inc()
		m.PollAlarm.WithLabelValues(metrics.Battery(rec.Index)).Set(metrics.Bool(rec.Health.Alarm))
	}
	b.write(SourceBattery(rec.Index)+"/poll_failures", rec.Health.Failures)
	b.write(SourceBattery(rec.Index)+"/poll_alarm", rec.Health.Alarm)
}

// --------------------
// Inverter
// --------------------

// HandleInverter folds a finished cycle into the priority state and
// schedules what comes next.
func (b *Bridge) HandleInverter(res inverter.Result) {
	b.sched.inFlight = false
	b.st.Inverter.Apply(res)

	at := res.At
	if at.IsZero() {
		at = b.now()
	}

	if res.OK() {
		b.sched.retry.clear()
		if b.cfg.InverterInterval > 0 {
			b.sched.next = at.Add(b.cfg.InverterInterval)
		}
		b.sourceOK(SourceInverter)

		// The decision moved while the cycle was on the wire.
		if want := control.DesiredMode(b.st.Outputs); want != res.Desired {
			b.sched.debounce.arm(at, "desired changed")
		}
	} else {
		if b.cfg.InverterRetry > 0 {
			b.sched.retry.arm(at.Add(b.cfg.InverterRetry), "retry")
		}
		b.sourceFailed(SourceInverter, res.Err)
	}

	if m := b.deps.Metrics; m != nil {
		m.InverterCycles.WithLabelValues(string(res.Stage), inverter.Kind(res.Err)).Inc()
		if b.st.Inverter.Known {
			m.InverterMode.Set(float64(b.st.Inverter.Current))
		}
	}
	b.sinkInverter()
}

// --------------------
// Image
// --------------------

// flags assembles the composite status register from the current state.
func (b *Bridge) flags() status.Flags {
	bms, _ := b.st.Snapshot.Flags.Get()
	o := b.st.Outputs
	canStale := b.cfg.CANEnabled && b.st.CAN.Stale()

	f := status.Flags{
		ChargeEnabled:         o.FinalCharge,
		DischargeEnabled:      o.FinalDischarge,
		ForceCharge:           o.ForceCharge,
		BMSForceChargeRequest: bms.ForceChargeRequested,

		DischargeBlocked:  b.deps.Controller.DischargeBlocked(),
		ForceChargeActive: b.deps.Controller.ForceChargeActive(),

		CANStale:       canStale,
		TelemetryValid: b.st.Snapshot.Complete() && !canStale,
	}

	for _, rec := range b.st.Batteries {
		if rec.Health.Alarm {
			f.PollAlarm = true
		}
		if fr := b.st.Fresh[rec.Index]; fr != nil && fr.Stale() {
			f.RS485Stale = true
		}
	}
	return f
}

// publishImage swaps a freshly built register image into the emulator.
func (b *Bridge) publishImage() {
	b.deps.Registers.Publish(emulator.BuildImage(emulator.Inputs{
		Snapshot:  b.st.Snapshot,
		Batteries: b.st.Batteries,
		Flags:     b.flags(),
	}))
}

func (b *Bridge) countCAN(kind canbus.Kind, result string) {
	if m := b.deps.Metrics; m != nil {
		m.CANFrames.WithLabelValues(kind.String(), result).Inc()
	}
}

func (b *Bridge) markStale(source string, stale bool) {
	if m := b.deps.Metrics; m != nil {
		m.SourceStale.WithLabelValues(source).Set(metrics.Bool(stale))
	}
}
