// internal/status/encode.go
package status

// Encode packs Flags into the composite status register.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(f Flags) uint16 {
	var v uint16

	set := func(on bool, bit uint) {
		if on {
			v |= 1 << bit
		}
	}

	set(f.ChargeEnabled, BitChargeEnabled)
	set(f.DischargeEnabled, BitDischargeEnabled)
	set(f.ForceCharge, BitForceCharge)
	set(f.BMSForceChargeRequest, BitBMSForceChargeRequest)
	set(f.DischargeBlocked, BitDischargeBlocked)
	set(f.ForceChargeActive, BitForceChargeActive)
	set(f.CANStale, BitCANStale)
	set(f.RS485Stale, BitRS485Stale)
	set(f.PollAlarm, BitPollAlarm)
	set(f.TelemetryValid, BitTelemetryValid)

	return v
}

// Decode is the inverse of Encode. Unknown bits are ignored.
func Decode(v uint16) Flags {
	has := func(bit uint) bool { return v&(1<<bit) != 0 }

	return Flags{
		ChargeEnabled:         has(BitChargeEnabled),
		DischargeEnabled:      has(BitDischargeEnabled),
		ForceCharge:           has(BitForceCharge),
		BMSForceChargeRequest: has(BitBMSForceChargeRequest),
		DischargeBlocked:      has(BitDischargeBlocked),
		ForceChargeActive:     has(BitForceChargeActive),
		CANStale:              has(BitCANStale),
		RS485Stale:            has(BitRS485Stale),
		PollAlarm:             has(BitPollAlarm),
		TelemetryValid:        has(BitTelemetryValid),
	}
}
