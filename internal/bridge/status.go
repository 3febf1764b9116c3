// internal/bridge/status.go
package bridge

import (
	"errors"
	"sort"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/bms-bridge/internal/canbus"
	"github.com/tamzrod/bms-bridge/internal/inverter"
	"github.com/tamzrod/bms-bridge/internal/pylon"
	"github.com/tamzrod/bms-bridge/internal/serialport"
	"github.com/tamzrod/bms-bridge/internal/status"
)

// sourceOK records a success. Recovery resets the error code and the
// seconds-in-error counter.
func (b *Bridge) sourceOK(name string) {
	s := b.st.Sources[name]
	if s == nil {
		return
	}
	if s.Health == status.HealthOK && s.LastErrorCode == 0 && s.SecondsInError == 0 {
		return
	}
	*s = status.Source{Health: status.HealthOK}
	b.writeStatus(name)
}

// sourceFailed records a failure. seconds_in_error only moves on the tick.
func (b *Bridge) sourceFailed(name string, err error) {
	s := b.st.Sources[name]
	if s == nil {
		return
	}
	code := errorCode(err)
	if s.Health == status.HealthError && s.LastErrorCode == code {
		return
	}
	s.Health = status.HealthError
	s.LastErrorCode = code
	b.writeStatus(name)
}

func (b *Bridge) sourceStale(name string) {
	s := b.st.Sources[name]
	if s == nil || s.Health == status.HealthStale {
		return
	}
	s.Health = status.HealthStale
	s.LastErrorCode = status.ErrCodeStale
	b.writeStatus(name)
}

// tickSeconds counts seconds for every source that is not healthy.
func (b *Bridge) tickSeconds() {
	for _, name := range b.sourceNames() {
		s := b.st.Sources[name]
		if s.Health == status.HealthOK || s.Health == status.HealthDisabled {
			continue
		}
		if s.SecondsInError < 65535 {
			s.SecondsInError++
			b.writeStatus(name)
		}
	}
}

func (b *Bridge) writeStatus(name string) {
	if b.deps.Status == nil {
		return
	}
	if err := b.deps.Status.WriteStatus(name, *b.st.Sources[name]); err != nil {
		b.log.Debug().Err(err).Str("source", name).Msg("status write failed")
	}
}

func (b *Bridge) writeAllStatus() {
	for _, name := range b.sourceNames() {
		b.writeStatus(name)
	}
}

func (b *Bridge) sourceNames() []string {
	names := make([]string, 0, len(b.st.Sources))
	for name := range b.st.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// errorCode extracts a best-effort uint16 code from an error without assuming
// concrete types. Device return codes and Modbus exceptions keep their raw
// value under a base; everything else maps onto a coarse class.
func errorCode(err error) uint16 {
	if err == nil {
		return status.ErrCodeNone
	}

	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return status.ErrCodeExceptionBase | uint16(me.ExceptionCode)
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		return status.ErrCodeDeviceBase | a.Code()
	}
	var b coderB
	if errors.As(err, &b) {
		return status.ErrCodeDeviceBase | b.ErrorCode()
	}

	switch {
	case errors.Is(err, pylon.ErrTimeout), serialport.IsTimeout(err):
		return status.ErrCodeTimeout
	case inverter.Kind(err) == inverter.KindValidation,
		errors.Is(err, pylon.ErrChecksum),
		errors.Is(err, pylon.ErrShort),
		errors.Is(err, pylon.ErrMalformed),
		errors.Is(err, pylon.ErrAddressMismatch),
		errors.Is(err, canbus.ErrLength),
		errors.Is(err, canbus.ErrImplausible):
		return status.ErrCodeValidation
	}

	return status.ErrCodeGeneric
}
