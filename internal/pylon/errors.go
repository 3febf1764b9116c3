// internal/pylon/errors.go
package pylon

import (
	"errors"
	"fmt"
)

// Validation failures are reported distinctly so the poller can count them
// separately from unreachability.
var (
	ErrTimeout         = errors.New("pylon: response timeout")
	ErrShort           = errors.New("pylon: response too short")
	ErrChecksum        = errors.New("pylon: checksum mismatch")
	ErrReturnCode      = errors.New("pylon: non-zero return code")
	ErrAddressMismatch = errors.New("pylon: address mismatch")
	ErrMalformed       = errors.New("pylon: malformed frame")
)

// ReturnCodeError is a protocol-level rejection: the device answered, but
// refused the request. It indicates a malformed request, not an unreachable device.
type ReturnCodeError struct {
	RTN byte
}

func (e *ReturnCodeError) Error() string {
	return fmt.Sprintf("pylon: return code 0x%02X (%s)", e.RTN, returnCodeName(e.RTN))
}

// Is lets errors.Is(err, ErrReturnCode) match.
func (e *ReturnCodeError) Is(target error) bool { return target == ErrReturnCode }

// Code exposes the raw return code.
func (e *ReturnCodeError) Code() uint16 { return uint16(e.RTN) }

func returnCodeName(rtn byte) string {
	switch rtn {
	case 0x01:
		return "version error"
	case 0x02:
		return "chksum error"
	case 0x03:
		return "lchksum error"
	case 0x04:
		return "cid2 invalid"
	case 0x05:
		return "command format error"
	case 0x06:
		return "invalid data"
	case 0x90:
		return "adr error"
	case 0x91:
		return "communication error"
	default:
		return "unknown"
	}
}

// Kind names the failure class of err for counters and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrChecksum):
		return "checksum"
	case errors.Is(err, ErrReturnCode):
		return "return_code"
	case errors.Is(err, ErrAddressMismatch):
		return "address_mismatch"
	case errors.Is(err, ErrShort):
		return "short"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "transport"
	}
}
