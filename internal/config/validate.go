// internal/config/validate.go
package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tamzrod/bms-bridge/internal/control"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}

	// ------------------------------------------------------------
	// LOGGING
	// ------------------------------------------------------------

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level %q: %w", cfg.Log.Level, err)
	}
	if cfg.Log.Format != "console" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json, got %q", cfg.Log.Format)
	}

	// ------------------------------------------------------------
	// SOURCES
	// ------------------------------------------------------------

	if !cfg.CAN.Enabled() && !cfg.RS485.Enabled() {
		return errors.New("no telemetry source: set can.interface and/or rs485.device")
	}

	if err := validateCAN(cfg.CAN); err != nil {
		return err
	}
	if err := validateRS485(cfg.RS485); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// EMULATOR UNITS
	// ------------------------------------------------------------

	e := cfg.Emulator
	if err := validUnit("emulator.battery_unit", e.BatteryUnit); err != nil {
		return err
	}
	if err := validUnit("emulator.config_unit", e.ConfigUnit); err != nil {
		return err
	}
	if e.BatteryUnit == e.ConfigUnit {
		return fmt.Errorf(
			"emulator unit collision: battery_unit and config_unit are both %d",
			e.BatteryUnit,
		)
	}
	if e.Serial.Device == "" && e.TCPListen == "" {
		return errors.New("emulator: set serial.device and/or tcp_listen")
	}
	if e.Serial.Device != "" {
		if err := validateSerial("emulator.serial", e.Serial); err != nil {
			return err
		}
		if e.Serial.Device == cfg.RS485.Device {
			return fmt.Errorf(
				"serial device collision: %s used by emulator and rs485",
				e.Serial.Device,
			)
		}
	}

	// ------------------------------------------------------------
	// CONTROL (hysteresis ordering)
	// ------------------------------------------------------------

	if err := Thresholds(cfg.Control).Validate(); err != nil {
		return err
	}
	if _, err := control.ParseOverride(cfg.Control.DischargeOverride); err != nil {
		return fmt.Errorf("control.discharge_override: %w", err)
	}
	if _, err := control.ParseOverride(cfg.Control.ForceOverride); err != nil {
		return fmt.Errorf("control.force_override: %w", err)
	}

	// ------------------------------------------------------------
	// INVERTER
	// ------------------------------------------------------------

	if err := validateInverter(cfg); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// SINK
	// ------------------------------------------------------------

	m := cfg.MQTT
	if m.Enabled() {
		if m.MinIntervalMs < 0 || m.HeartbeatMs < 0 || m.TimeoutMs <= 0 {
			return errors.New("mqtt: intervals must not be negative")
		}
		if m.Threshold < 0 {
			return fmt.Errorf("mqtt.threshold must be >= 0, got %v", m.Threshold)
		}
	}

	return nil
}

// Thresholds converts the control section for the controller.
func Thresholds(c ControlConfig) control.Thresholds {
	return control.Thresholds{
		DischargeBlockOn:  c.DischargeBlock.On,
		DischargeBlockOff: c.DischargeBlock.Off,
		ForceChargeOn:     c.ForceCharge.On,
		ForceChargeOff:    c.ForceCharge.Off,
	}
}

func validateCAN(c CANConfig) error {
	if !c.Enabled() {
		return nil
	}
	if c.StaleAfterMs <= 0 {
		return fmt.Errorf("can.stale_after_ms must be > 0, got %d", c.StaleAfterMs)
	}

	// key = frame id
	owner := make(map[uint32]string)
	frames := []struct {
		name string
		f    CANFrameConfig
	}{
		{"limits", c.Frames.Limits},
		{"soc", c.Frames.SOC},
		{"flags", c.Frames.Flags},
		{"extremes", c.Frames.Extremes},
	}
	for _, fr := range frames {
		if fr.f.ID > 0x7FF {
			return fmt.Errorf("can.frames.%s: id 0x%X is not a standard identifier", fr.name, fr.f.ID)
		}
		if fr.f.Length < 1 || fr.f.Length > 8 {
			return fmt.Errorf("can.frames.%s: length %d out of range 1..8", fr.name, fr.f.Length)
		}
		if prev, exists := owner[fr.f.ID]; exists {
			return fmt.Errorf(
				"can frame id collision: 0x%03X used by %s and %s",
				fr.f.ID,
				prev,
				fr.name,
			)
		}
		owner[fr.f.ID] = fr.name
	}
	return nil
}

func validateRS485(r RS485Config) error {
	if !r.Enabled() {
		return nil
	}
	if err := validateSerial("rs485", r.SerialConfig); err != nil {
		return err
	}
	if len(r.Batteries) == 0 {
		return errors.New("rs485.batteries: at least one battery index required")
	}

	seen := make(map[int]bool)
	for _, b := range r.Batteries {
		if b < 0 || b > 255 {
			return fmt.Errorf("rs485.batteries: index %d out of range 0..255", b)
		}
		if seen[b] {
			return fmt.Errorf("rs485.batteries: duplicate index %d", b)
		}
		seen[b] = true
	}

	for name, v := range map[string]int{
		"timeout_ms":        r.TimeoutMs,
		"live_interval_ms":  r.LiveIntervalMs,
		"alarm_interval_ms": r.AlarmIntervalMs,
		"stale_after_ms":    r.StaleAfterMs,
		"alarm_threshold":   r.AlarmThreshold,
	} {
		if v <= 0 {
			return fmt.Errorf("rs485.%s must be > 0, got %d", name, v)
		}
	}
	if r.TimeoutMs >= r.LiveIntervalMs {
		return fmt.Errorf(
			"rs485.timeout_ms (%d) must be shorter than live_interval_ms (%d)",
			r.TimeoutMs,
			r.LiveIntervalMs,
		)
	}
	return nil
}

func validateInverter(cfg *Config) error {
	inv := cfg.Inverter

	switch inv.Transport {
	case TransportRTUOverTCP, TransportRTUSerial:
	default:
		return fmt.Errorf("inverter.transport must be %s or %s, got %q", TransportRTUOverTCP, TransportRTUSerial, inv.Transport)
	}
	if !inv.Enabled() {
		return nil
	}

	if err := validUnit("inverter.unit_id", inv.UnitID); err != nil {
		return err
	}
	if inv.Transport == TransportRTUSerial {
		if err := validateSerial("inverter.serial", inv.Serial); err != nil {
			return err
		}
		if inv.Serial.Device == cfg.RS485.Device || inv.Serial.Device == cfg.Emulator.Serial.Device {
			return fmt.Errorf("serial device collision: %s used by inverter", inv.Serial.Device)
		}
	}

	for name, v := range map[string]int{
		"timeout_ms":  inv.TimeoutMs,
		"interval_ms": inv.IntervalMs,
		"retry_ms":    inv.RetryMs,
		"debounce_ms": inv.DebounceMs,
	} {
		if v <= 0 {
			return fmt.Errorf("inverter.%s must be > 0, got %d", name, v)
		}
	}
	return nil
}

func validateSerial(section string, s SerialConfig) error {
	if s.BaudRate <= 0 {
		return fmt.Errorf("%s.baud_rate must be > 0, got %d", section, s.BaudRate)
	}
	switch s.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("%s.parity must be N, E or O, got %q", section, s.Parity)
	}
	if s.ReadSliceMs <= 0 {
		return fmt.Errorf("%s.read_slice_ms must be > 0, got %d", section, s.ReadSliceMs)
	}
	return nil
}

func validUnit(name string, u uint8) error {
	if u < 1 || u > 247 {
		return fmt.Errorf("%s must be in 1..247, got %d", name, u)
	}
	return nil
}
