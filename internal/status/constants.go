// internal/status/constants.go
package status

// Composite status register layout.
// These bit positions are read by the inverter and MUST NOT be configurable.

// ---- BMS-DERIVED BITS ----

// BitChargeEnabled is set when charging is permitted (BMS flag, never restricted).
const BitChargeEnabled = 0

// BitDischargeEnabled is set when discharge is permitted after the
// discharge-block decision has been applied on top of the BMS flag.
const BitDischargeEnabled = 1

// BitForceCharge is set when either the controller or the BMS requests a force charge.
const BitForceCharge = 2

// BitBMSForceChargeRequest mirrors the raw BMS force-charge request flag.
const BitBMSForceChargeRequest = 3

// ---- CONTROLLER BITS ----

// BitDischargeBlocked mirrors the SOC hysteresis discharge-block decision.
const BitDischargeBlocked = 4

// BitForceChargeActive mirrors the SOC hysteresis force-charge decision.
const BitForceChargeActive = 5

// ---- SOURCE HEALTH BITS ----

// BitCANStale is set while CAN telemetry is unavailable.
const BitCANStale = 8

// BitRS485Stale is set while any configured battery has no fresh RS-485 data.
const BitRS485Stale = 9

// BitPollAlarm is set while any battery has a latched poll alarm.
const BitPollAlarm = 10

// BitTelemetryValid is set once SOC and flags have both been received at least once.
const BitTelemetryValid = 15

// ---- HEALTH CODES ----

// HealthUnknown represents a source that has never produced data.
const HealthUnknown uint16 = 0

// HealthOK represents a source with fresh data.
const HealthOK uint16 = 1

// HealthError represents a source whose last exchange failed.
const HealthError uint16 = 2

// HealthStale represents a source whose data aged out.
const HealthStale uint16 = 3

// HealthDisabled represents a source that is not configured.
const HealthDisabled uint16 = 4

// HealthName renders a health code for logs and the sink.
func HealthName(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthStale:
		return "stale"
	case HealthDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// ---- LAST ERROR CODES ----

// ErrCodeNone means the last exchange succeeded.
const ErrCodeNone uint16 = 0

// ErrCodeGeneric is an error that exposes nothing more specific.
const ErrCodeGeneric uint16 = 1

// ErrCodeTimeout means the peer did not answer in time.
const ErrCodeTimeout uint16 = 2

// ErrCodeValidation means a reply was received but rejected (checksum, length, range).
const ErrCodeValidation uint16 = 3

// ErrCodeStale means no update arrived within the staleness window.
const ErrCodeStale uint16 = 4

// ErrCodeDeviceBase is OR-ed with a device return code (RS-485 RTN).
const ErrCodeDeviceBase uint16 = 0x100

// ErrCodeExceptionBase is OR-ed with a Modbus exception code.
const ErrCodeExceptionBase uint16 = 0x200
