// internal/config/normalize.go
package config

import (
	"net"
	"strconv"
)

// Defaults.
const (
	DefaultCANStaleMs = 30_000

	DefaultRS485Baud       = 9600
	DefaultRS485TimeoutMs  = 1_500
	DefaultReadSliceMs     = 50
	DefaultLiveIntervalMs  = 10_000
	DefaultAlarmIntervalMs = 30_000
	DefaultRS485StaleMs    = 90_000
	DefaultAlarmThreshold  = 10
	DefaultRS485Address    = 2

	DefaultInverterPort       = 9999
	DefaultInverterUnit       = 10
	DefaultPriorityRegister   = 0x9608
	DefaultInverterTimeoutMs  = 1_500
	DefaultInverterIntervalMs = 4 * 60 * 60 * 1000
	DefaultInverterRetryMs    = 30_000
	DefaultInverterDebounceMs = 1_000

	DefaultMQTTPrefix        = "bms"
	DefaultMQTTMinIntervalMs = 5_000
	DefaultMQTTHeartbeatMs   = 60_000
	DefaultMQTTThreshold     = 0.01
	DefaultMQTTTimeoutMs     = 5_000
)

// Normalize fills defaults. It is allowed to mutate configuration.
// It runs before Validate so validation sees the effective values.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ---- log ----
	setStr(&cfg.Log.Level, "info")
	setStr(&cfg.Log.Format, "console")

	// ---- can ----
	setInt(&cfg.CAN.StaleAfterMs, DefaultCANStaleMs)
	f := &cfg.CAN.Frames
	setFrame(&f.Limits, 0x351, 8)
	setFrame(&f.SOC, 0x355, 4)
	setFrame(&f.Flags, 0x35C, 1)
	setFrame(&f.Extremes, 0x370, 8)

	// ---- rs485 ----
	r := &cfg.RS485
	normalizeSerial(&r.SerialConfig)
	setInt(&r.TimeoutMs, DefaultRS485TimeoutMs)
	setInt(&r.LiveIntervalMs, DefaultLiveIntervalMs)
	setInt(&r.AlarmIntervalMs, DefaultAlarmIntervalMs)
	setInt(&r.StaleAfterMs, DefaultRS485StaleMs)
	setInt(&r.AlarmThreshold, DefaultAlarmThreshold)
	if r.Address == 0 {
		r.Address = DefaultRS485Address
	}

	// ---- emulator ----
	e := &cfg.Emulator
	normalizeSerial(&e.Serial)
	if e.BatteryUnit == 0 {
		e.BatteryUnit = 1
	}
	if e.ConfigUnit == 0 {
		e.ConfigUnit = 2
	}
	if e.TCPMaxClients == 0 {
		e.TCPMaxClients = 4
	}

	// ---- control ----
	c := &cfg.Control
	if c.DischargeBlock == (HysteresisConfig{}) {
		c.DischargeBlock = HysteresisConfig{On: 50, Off: 55}
	}
	if c.ForceCharge == (HysteresisConfig{}) {
		c.ForceCharge = HysteresisConfig{On: 45, Off: 50}
	}
	setStr(&c.DischargeOverride, "auto")
	setStr(&c.ForceOverride, "auto")

	// ---- inverter ----
	inv := &cfg.Inverter
	setStr(&inv.Transport, TransportRTUOverTCP)
	if inv.Address != "" {
		if _, _, err := net.SplitHostPort(inv.Address); err != nil {
			inv.Address = net.JoinHostPort(inv.Address, strconv.Itoa(DefaultInverterPort))
		}
	}
	normalizeSerial(&inv.Serial)
	if inv.UnitID == 0 {
		inv.UnitID = DefaultInverterUnit
	}
	if inv.Register == 0 {
		inv.Register = DefaultPriorityRegister
	}
	setInt(&inv.TimeoutMs, DefaultInverterTimeoutMs)
	setInt(&inv.IntervalMs, DefaultInverterIntervalMs)
	setInt(&inv.RetryMs, DefaultInverterRetryMs)
	setInt(&inv.DebounceMs, DefaultInverterDebounceMs)

	// ---- mqtt ----
	m := &cfg.MQTT
	setStr(&m.Prefix, DefaultMQTTPrefix)
	setStr(&m.ClientID, "bms-bridge")
	setInt(&m.MinIntervalMs, DefaultMQTTMinIntervalMs)
	setInt(&m.HeartbeatMs, DefaultMQTTHeartbeatMs)
	setInt(&m.TimeoutMs, DefaultMQTTTimeoutMs)
	if m.Threshold == 0 {
		m.Threshold = DefaultMQTTThreshold
	}
}

func normalizeSerial(s *SerialConfig) {
	setInt(&s.BaudRate, DefaultRS485Baud)
	setStr(&s.Parity, "N")
	setInt(&s.ReadSliceMs, DefaultReadSliceMs)
}

func setStr(p *string, d string) {
	if *p == "" {
		*p = d
	}
}

// setInt fills zero only; negative values are left for Validate to reject.
func setInt(p *int, d int) {
	if *p == 0 {
		*p = d
	}
}

func setFrame(f *CANFrameConfig, id uint32, length int) {
	if f.ID == 0 {
		f.ID = id
	}
	if f.Length == 0 {
		f.Length = length
	}
}
