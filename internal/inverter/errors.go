// internal/inverter/errors.go
package inverter

import (
	"errors"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/bms-bridge/internal/rtu"
	"github.com/tamzrod/bms-bridge/internal/serialport"
)

// Validation failures. The gateway is lossy, so every one of these is
// expected in the field and none of them may touch cached state.
var (
	ErrMalformed  = errors.New("inverter: malformed response")
	ErrUnit       = errors.New("inverter: unit id mismatch")
	ErrFunction   = errors.New("inverter: unexpected function code")
	ErrByteCount  = errors.New("inverter: unexpected byte count")
	ErrValueRange = errors.New("inverter: priority value out of range")
	ErrEcho       = errors.New("inverter: write echo mismatch")
)

// Error kinds, in the order Kind checks them.
const (
	KindOK         = "ok"
	KindException  = "exception"
	KindValidation = "validation"
	KindTimeout    = "timeout"
	KindTransport  = "transport"
)

// Kind classifies a cycle error.
func Kind(err error) string {
	if err == nil {
		return KindOK
	}

	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return KindException
	}

	for _, v := range []error{ErrMalformed, ErrUnit, ErrFunction, ErrByteCount, ErrValueRange, ErrEcho, rtu.ErrCRC, rtu.ErrShort} {
		if errors.Is(err, v) {
			return KindValidation
		}
	}

	if serialport.IsTimeout(err) {
		return KindTimeout
	}
	return KindTransport
}
