// internal/config/validate_test.go
package config

import "testing"

// helper to build a valid config quickly
func base() *Config {
	cfg := &Config{
		CAN: CANConfig{Interface: "can0"},
		RS485: RS485Config{
			SerialConfig: SerialConfig{Device: "/dev/ttyUSB0"},
			Batteries:    []int{1, 2},
		},
		Emulator: EmulatorConfig{
			Serial: SerialConfig{Device: "/dev/ttyUSB1"},
		},
		Inverter: InverterConfig{Address: "192.168.1.50"},
	}
	Normalize(cfg)
	return cfg
}

// ---- tests ----

func TestValidate_Defaults(t *testing.T) {
	cfg := base()

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Inverter.Address != "192.168.1.50:9999" {
		t.Fatalf("inverter address got=%s want=%s", cfg.Inverter.Address, "192.168.1.50:9999")
	}
	if cfg.RS485.TimeoutMs != 1500 {
		t.Fatalf("rs485 timeout got=%d want=%d", cfg.RS485.TimeoutMs, 1500)
	}
	if cfg.Control.DischargeBlock.Off != 55 || cfg.Control.ForceCharge.On != 45 {
		t.Fatalf("hysteresis defaults not applied: %+v", cfg.Control)
	}
}

func TestValidate_HysteresisOrdering(t *testing.T) {
	cfg := base()
	cfg.Control.ForceCharge = HysteresisConfig{On: 45, Off: 56} // off above discharge_block off

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected hysteresis error, got nil")
	}
}

func TestValidate_HysteresisInverted(t *testing.T) {
	cfg := base()
	cfg.Control.DischargeBlock = HysteresisConfig{On: 55, Off: 50}

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected hysteresis error, got nil")
	}
}

func TestValidate_UnitCollision(t *testing.T) {
	cfg := base()
	cfg.Emulator.ConfigUnit = cfg.Emulator.BatteryUnit

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected unit collision error, got nil")
	}
}

func TestValidate_UnitRange(t *testing.T) {
	cfg := base()
	cfg.Inverter.UnitID = 248

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected unit range error, got nil")
	}
}

func TestValidate_EmptyBatteries(t *testing.T) {
	cfg := base()
	cfg.RS485.Batteries = nil

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected batteries error, got nil")
	}
}

func TestValidate_DuplicateBattery(t *testing.T) {
	cfg := base()
	cfg.RS485.Batteries = []int{1, 2, 1}

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected duplicate battery error, got nil")
	}
}

func TestValidate_NegativeInterval(t *testing.T) {
	cfg := base()
	cfg.Inverter.RetryMs = -1

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected interval error, got nil")
	}
}

func TestValidate_SerialCollision(t *testing.T) {
	cfg := base()
	cfg.Emulator.Serial.Device = cfg.RS485.Device

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected serial collision error, got nil")
	}
}

func TestValidate_CANFrameCollision(t *testing.T) {
	cfg := base()
	cfg.CAN.Frames.Flags.ID = cfg.CAN.Frames.SOC.ID

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected frame id collision error, got nil")
	}
}

func TestValidate_NoSource(t *testing.T) {
	cfg := base()
	cfg.CAN.Interface = ""
	cfg.RS485.Device = ""

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected no-source error, got nil")
	}
}

func TestValidate_BadOverride(t *testing.T) {
	cfg := base()
	cfg.Control.ForceOverride = "sometimes"

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected override error, got nil")
	}
}

func TestValidate_InverterOptional(t *testing.T) {
	cfg := base()
	cfg.Inverter.Address = ""

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Inverter.Enabled() {
		t.Fatalf("inverter should be disabled without an address")
	}
}
