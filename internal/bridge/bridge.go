// internal/bridge/bridge.go
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/bms-bridge/internal/canbus"
	"github.com/tamzrod/bms-bridge/internal/control"
	"github.com/tamzrod/bms-bridge/internal/emulator"
	"github.com/tamzrod/bms-bridge/internal/inverter"
	"github.com/tamzrod/bms-bridge/internal/metrics"
	"github.com/tamzrod/bms-bridge/internal/poller"
	"github.com/tamzrod/bms-bridge/internal/status"
	"github.com/tamzrod/bms-bridge/internal/telemetry"
	"github.com/tamzrod/bms-bridge/internal/writer"
)

// Source names used for status and staleness reporting.
const (
	SourceCAN      = "can"
	SourceInverter = "inverter"
)

// SourceBattery names the RS-485 source of one battery.
func SourceBattery(idx int) string { return fmt.Sprintf("rs485/battery%d", idx) }

// Trigger starts one inverter cycle. *inverter.Worker satisfies it.
type Trigger interface {
	Trigger(req inverter.Request)
}

// Config holds the timing the orchestrator needs. Zero durations disable
// the corresponding behaviour.
type Config struct {
	CANEnabled    bool
	CANStaleAfter time.Duration

	Batteries       []int
	AlarmThreshold  int
	RS485StaleAfter time.Duration

	// ControlDisabled keeps the controller out of the loop. Both hysteresis
	// flags stay cleared and only the BMS flags drive the outputs.
	ControlDisabled bool

	InverterInterval time.Duration
	InverterRetry    time.Duration
	InverterDebounce time.Duration
}

// Deps are the collaborators. Only Registers and Controller are required.
type Deps struct {
	Decoder    *canbus.Decoder
	Controller *control.Controller
	Registers  *emulator.Registers

	Inverter Trigger
	Writer   writer.Writer
	Status   writer.StatusWriter
	Metrics  *metrics.Metrics

	Log zerolog.Logger
}

// Inputs are the channels the loop selects on. A nil channel is never ready,
// so a disabled source is simply left nil.
type Inputs struct {
	CAN      <-chan canbus.Frame
	Polls    <-chan poller.PollResult
	Inverter <-chan inverter.Result
	Manual   <-chan struct{}
}

// State is everything the orchestrator owns. It is only touched from the
// loop goroutine.
type State struct {
	Snapshot telemetry.Snapshot
	Outputs  control.Outputs

	CAN       *telemetry.Freshness
	Batteries []*telemetry.BatteryRecord
	Fresh     map[int]*telemetry.Freshness

	Inverter inverter.PriorityState

	Sources map[string]*status.Source
}

// Bridge is the orchestrator.
type Bridge struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
	now  func() time.Time

	st    State
	sched schedule
}

// New validates the wiring and prepares the initial state.
func New(cfg Config, deps Deps) (*Bridge, error) {
	if deps.Controller == nil {
		return nil, errors.New("bridge: controller is required")
	}
	if deps.Registers == nil {
		return nil, errors.New("bridge: registers are required")
	}
	if cfg.CANEnabled && deps.Decoder == nil {
		return nil, errors.New("bridge: CAN enabled without a decoder")
	}
	if deps.Writer == nil {
		deps.Writer = writer.New("", writer.DefaultPolicy(), nil)
	}

	b := &Bridge{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.With().Str("component", "bridge").Logger(),
		now:  time.Now,
	}
	b.reset(b.now())

	if cfg.ControlDisabled {
		deps.Controller.Disable()
	}
	return b, nil
}

// reset builds the initial state with every window starting at start.
func (b *Bridge) reset(start time.Time) {
	b.st = State{
		CAN:     telemetry.NewFreshness(b.cfg.CANStaleAfter, start),
		Fresh:   make(map[int]*telemetry.Freshness, len(b.cfg.Batteries)),
		Sources: make(map[string]*status.Source),
	}

	canHealth := status.HealthUnknown
	if !b.cfg.CANEnabled {
		canHealth = status.HealthDisabled
	}
	b.st.Sources[SourceCAN] = &status.Source{Health: canHealth}

	for _, idx := range b.cfg.Batteries {
		b.st.Batteries = append(b.st.Batteries, telemetry.NewBatteryRecord(idx, b.cfg.AlarmThreshold))
		b.st.Fresh[idx] = telemetry.NewFreshness(b.cfg.RS485StaleAfter, start)
		b.st.Sources[SourceBattery(idx)] = &status.Source{Health: status.HealthUnknown}
	}

	invHealth := status.HealthUnknown
	if b.deps.Inverter == nil {
		invHealth = status.HealthDisabled
	}
	b.st.Sources[SourceInverter] = &status.Source{Health: invHealth}

	b.st.Outputs = b.deps.Controller.Outputs(telemetry.BMSFlags{})
	b.sched = schedule{next: start}
}

// State exposes the owned state for tests and diagnostics. Callers must not
// retain it across loop iterations.
func (b *Bridge) State() *State { return &b.st }

// Run processes inputs until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, in Inputs) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	// Re-assert everything on start.
	b.publishImage()
	b.writeAllStatus()

	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("orchestrator stopped")
			return

		case f, ok := <-in.CAN:
			if !ok {
				in.CAN = nil
				continue
			}
			b.HandleCAN(f)

		case res, ok := <-in.Polls:
			if !ok {
				in.Polls = nil
				continue
			}
			b.HandlePoll(res)

		case res, ok := <-in.Inverter:
			if !ok {
				in.Inverter = nil
				continue
			}
			b.HandleInverter(res)

		case <-in.Manual:
			b.RequestCycle("manual")

		case now := <-tick.C:
			b.Tick(now)
		}
	}
}

// battery returns the record for a configured battery, nil otherwise.
func (b *Bridge) battery(idx int) *telemetry.BatteryRecord {
	for _, r := range b.st.Batteries {
		if r.Index == idx {
			return r
		}
	}
	return nil
}
