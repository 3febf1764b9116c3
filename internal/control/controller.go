// internal/control/controller.go
package control

import (
	"fmt"

	"github.com/tamzrod/bms-bridge/internal/telemetry"
)

// Inverter priority register values.
const (
	ModeBattery uint16 = 0
	ModeGrid    uint16 = 1
)

// Thresholds are SOC percentages. Each machine turns on below On and
// turns off at Off, so On < Off always holds.
type Thresholds struct {
	DischargeBlockOn  uint16
	DischargeBlockOff uint16
	ForceChargeOn     uint16
	ForceChargeOff    uint16
}

// DefaultThresholds leaves a 5% dead band on each machine.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DischargeBlockOn:  50,
		DischargeBlockOff: 55,
		ForceChargeOn:     45,
		ForceChargeOff:    50,
	}
}

// Validate rejects orderings that would let the two machines fight.
func (t Thresholds) Validate() error {
	if t.DischargeBlockOn >= t.DischargeBlockOff {
		return fmt.Errorf("control: discharge_block on (%d) must be below off (%d)", t.DischargeBlockOn, t.DischargeBlockOff)
	}
	if t.ForceChargeOn >= t.ForceChargeOff {
		return fmt.Errorf("control: force_charge on (%d) must be below off (%d)", t.ForceChargeOn, t.ForceChargeOff)
	}
	if t.ForceChargeOff >= t.DischargeBlockOff {
		return fmt.Errorf("control: force_charge off (%d) must be below discharge_block off (%d)", t.ForceChargeOff, t.DischargeBlockOff)
	}
	if t.DischargeBlockOff > 100 {
		return fmt.Errorf("control: discharge_block off (%d) above 100", t.DischargeBlockOff)
	}
	return nil
}

// State is the controller's own memory. It changes only on threshold
// crossings or Disable.
type State struct {
	DischargeBlocked  bool
	ForceChargeActive bool
}

// Outputs is what the rest of the bridge acts on.
type Outputs struct {
	FinalCharge    bool
	FinalDischarge bool
	ForceCharge    bool
	DesiredMode    uint16
}

// Change reports which decisions flipped during one Update.
type Change struct {
	DischargeBlock bool
	ForceCharge    bool
}

// Any reports whether anything flipped.
func (c Change) Any() bool { return c.DischargeBlock || c.ForceCharge }

// Controller runs the discharge-block and force-charge machines.
// It is not safe for concurrent use; the orchestrator owns it.
type Controller struct {
	thresholds Thresholds
	state      State

	DischargeOverride Override
	ForceOverride     Override
}

// New returns a controller with both decisions cleared.
func New(t Thresholds) (*Controller, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Controller{thresholds: t}, nil
}

// Thresholds returns the configured thresholds.
func (c *Controller) Thresholds() Thresholds { return c.thresholds }

// State returns the raw decisions, before overrides.
func (c *Controller) State() State { return c.state }

// Update feeds one SOC sample through both machines.
func (c *Controller) Update(soc uint16) Change {
	var ch Change
	t := c.thresholds

	switch {
	case !c.state.DischargeBlocked && soc < t.DischargeBlockOn:
		c.state.DischargeBlocked = true
		ch.DischargeBlock = true
	case c.state.DischargeBlocked && soc > t.DischargeBlockOff:
		c.state.DischargeBlocked = false
		ch.DischargeBlock = true
	}

	switch {
	case !c.state.ForceChargeActive && soc < t.ForceChargeOn:
		c.state.ForceChargeActive = true
		ch.ForceCharge = true
	case c.state.ForceChargeActive && soc >= t.ForceChargeOff:
		c.state.ForceChargeActive = false
		ch.ForceCharge = true
	}

	return ch
}

// Disable clears both decisions.
func (c *Controller) Disable() Change {
	ch := Change{
		DischargeBlock: c.state.DischargeBlocked,
		ForceCharge:    c.state.ForceChargeActive,
	}
	c.state = State{}
	return ch
}

// DischargeBlocked is the effective decision after the manual override.
func (c *Controller) DischargeBlocked() bool {
	return c.DischargeOverride.Apply(c.state.DischargeBlocked)
}

// ForceChargeActive is the effective decision after the manual override.
func (c *Controller) ForceChargeActive() bool {
	return c.ForceOverride.Apply(c.state.ForceChargeActive)
}

// Outputs combines the decisions with the BMS flags. BMS flags always win:
// the controller can only take permissions away or add a charge request.
func (c *Controller) Outputs(bms telemetry.BMSFlags) Outputs {
	o := Outputs{
		FinalCharge:    bms.ChargeEnabled,
		FinalDischarge: bms.DischargeEnabled && !c.DischargeBlocked(),
		ForceCharge:    c.ForceChargeActive() || bms.ForceChargeRequested,
	}
	o.DesiredMode = DesiredMode(o)
	return o
}

// DesiredMode maps outputs to the inverter priority register.
func DesiredMode(o Outputs) uint16 {
	if !o.FinalDischarge || o.ForceCharge {
		return ModeGrid
	}
	return ModeBattery
}
