// internal/telemetry/snapshot.go
package telemetry

import "time"

// Group is one frame-owned slice of telemetry.
// Value is meaningless until Valid is true.
type Group[T any] struct {
	Value     T
	Valid     bool
	UpdatedAt time.Time
}

// Set replaces the whole group at once.
func (g *Group[T]) Set(v T, at time.Time) {
	g.Value = v
	g.Valid = true
	g.UpdatedAt = at
}

// Get returns the value and whether it has ever been set.
func (g Group[T]) Get() (T, bool) {
	return g.Value, g.Valid
}

// Limits is the BMS charge/discharge envelope.
type Limits struct {
	ChargeVoltageMax      float64 // V
	ChargeCurrentLimit    float64 // A
	DischargeCurrentLimit float64 // A
	LowVoltageLimit       float64 // V
}

// Charge holds state of charge and state of health in percent.
type Charge struct {
	SOC uint16
	SOH uint16
}

// BMSFlags are the BMS safety flags. They always take precedence over the controller.
type BMSFlags struct {
	ChargeEnabled        bool
	DischargeEnabled     bool
	ForceChargeRequested bool

	// Escalation carries bits 4 and 3 of the flags byte, uninterpreted.
	Escalation uint8
	Raw        uint8
}

// Extremes are the pack-wide min/max cell voltages and temperatures.
type Extremes struct {
	CellVoltageMax float64 // V
	CellVoltageMin float64 // V
	TempMax        float64 // °C
	TempMin        float64 // °C
}

// Snapshot is the shared CAN telemetry model.
// Each group is overwritten atomically by its own frame.
type Snapshot struct {
	Limits   Group[Limits]
	Charge   Group[Charge]
	Flags    Group[BMSFlags]
	Extremes Group[Extremes]
}

// SOC returns the state of charge if it has been received at least once.
func (s *Snapshot) SOC() (uint16, bool) {
	c, ok := s.Charge.Get()
	return c.SOC, ok
}

// Complete reports whether the groups the controller depends on are trusted.
func (s *Snapshot) Complete() bool {
	return s.Charge.Valid && s.Flags.Valid
}
