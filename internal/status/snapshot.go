// internal/status/snapshot.go
package status

// Flags is the decoded form of the composite status register.
// It contains no logic; Encode/Decode are the only place bits get meaning.
type Flags struct {
	ChargeEnabled         bool
	DischargeEnabled      bool
	ForceCharge           bool
	BMSForceChargeRequest bool

	DischargeBlocked  bool
	ForceChargeActive bool

	CANStale   bool
	RS485Stale bool
	PollAlarm  bool

	TelemetryValid bool
}

// Source is the health of one data source (CAN, one RS-485 battery, the inverter link).
type Source struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
}
