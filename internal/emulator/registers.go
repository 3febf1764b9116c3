// internal/emulator/registers.go
package emulator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
)

// ConfigRegs is the size of the inverter-written configuration block.
const ConfigRegs = 32

// OffACFrequency holds what the inverter shows as AC frequency. Its meaning
// was found empirically; it is logged on change and otherwise passed through.
const OffACFrequency = 0x0A

// maxReadQty is the Modbus limit for FC3/FC4.
const (
	maxReadQty  = 125
	maxWriteQty = 123
)

var (
	ErrIllegalFunction = errors.New("emulator: illegal function")
	ErrIllegalAddress  = errors.New("emulator: illegal data address")
	ErrIllegalValue    = errors.New("emulator: illegal data value")
)

// exceptionCode maps a register error onto its Modbus exception.
func exceptionCode(err error) byte {
	switch {
	case errors.Is(err, ErrIllegalFunction):
		return modbus.ExceptionCodeIllegalFunction
	case errors.Is(err, ErrIllegalAddress):
		return modbus.ExceptionCodeIllegalDataAddress
	case errors.Is(err, ErrIllegalValue):
		return modbus.ExceptionCodeIllegalDataValue
	default:
		return modbus.ExceptionCodeServerDeviceFailure
	}
}

// Layout places both units on the bus.
type Layout struct {
	BatteryUnit byte
	BatteryBase uint16
	ConfigUnit  byte
	ConfigBase  uint16
}

// DefaultLayout puts the battery block at unit 1 and the config echo at unit 2.
func DefaultLayout() Layout {
	return Layout{BatteryUnit: 1, BatteryBase: 0, ConfigUnit: 2, ConfigBase: 0}
}

// Stats are emulator counters, safe to read from any goroutine.
type Stats struct {
	Requests   atomic.Uint64
	Responses  atomic.Uint64
	Exceptions atomic.Uint64
	CRCErrors  atomic.Uint64
	Ignored    atomic.Uint64
}

// Registers is the register logic shared by the RTU and TCP faces.
type Registers struct {
	layout Layout
	log    zerolog.Logger

	image atomic.Pointer[Image]

	mu     sync.Mutex
	config [ConfigRegs]uint16

	Stats Stats
}

// NewRegisters starts with an all-zero image.
func NewRegisters(layout Layout, log zerolog.Logger) *Registers {
	r := &Registers{layout: layout, log: log}
	r.image.Store(&Image{})
	return r
}

// Publish swaps in a new image. img must not be modified afterwards.
func (r *Registers) Publish(img *Image) {
	if img == nil {
		return
	}
	r.image.Store(img)
}

// Image returns the image currently served.
func (r *Registers) Image() *Image { return r.image.Load() }

// Serves reports whether unit is one of ours.
func (r *Registers) Serves(unit byte) bool {
	return unit == r.layout.BatteryUnit || unit == r.layout.ConfigUnit
}

// Read serves FC3/FC4. The battery block answers both; the config block is
// holding registers only.
func (r *Registers) Read(unit, fc byte, addr, qty uint16) ([]uint16, error) {
	if qty == 0 || qty > maxReadQty {
		return nil, fmt.Errorf("%w: quantity %d", ErrIllegalValue, qty)
	}

	switch unit {
	case r.layout.BatteryUnit:
		if fc != modbus.FuncCodeReadHoldingRegisters && fc != modbus.FuncCodeReadInputRegisters {
			return nil, ErrIllegalFunction
		}
		off, err := window(addr, qty, r.layout.BatteryBase, BatteryRegs)
		if err != nil {
			return nil, err
		}
		img := r.image.Load()
		out := make([]uint16, qty)
		copy(out, img.Regs[off:off+int(qty)])
		return out, nil

	case r.layout.ConfigUnit:
		if fc != modbus.FuncCodeReadHoldingRegisters {
			return nil, ErrIllegalFunction
		}
		off, err := window(addr, qty, r.layout.ConfigBase, ConfigRegs)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		out := make([]uint16, qty)
		copy(out, r.config[off:off+int(qty)])
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unit %d", ErrIllegalAddress, unit)
	}
}

// Write stores an FC16 write into the config block verbatim.
func (r *Registers) Write(unit byte, addr uint16, values []uint16) error {
	if unit != r.layout.ConfigUnit {
		// battery block is read-only
		return ErrIllegalFunction
	}
	if len(values) == 0 || len(values) > maxWriteQty {
		return fmt.Errorf("%w: quantity %d", ErrIllegalValue, len(values))
	}

	off, err := window(addr, uint16(len(values)), r.layout.ConfigBase, ConfigRegs)
	if err != nil {
		return err
	}

	r.mu.Lock()
	prevFreq := r.config[OffACFrequency]
	copy(r.config[off:], values)
	freq := r.config[OffACFrequency]
	r.mu.Unlock()

	if freq != prevFreq {
		r.log.Info().Uint16("value", freq).Uint16("prev", prevFreq).Msg("inverter ac frequency display changed")
	}
	r.log.Debug().Uint16("addr", addr).Int("qty", len(values)).Msg("config block written")
	return nil
}

// ConfigBlock returns a copy of the echo block.
func (r *Registers) ConfigBlock() [ConfigRegs]uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

// window maps [addr, addr+qty) onto a block at base of size n.
func window(addr, qty, base uint16, n int) (int, error) {
	start := int(addr) - int(base)
	if start < 0 || start+int(qty) > n {
		return 0, fmt.Errorf("%w: addr=0x%04X qty=%d", ErrIllegalAddress, addr, qty)
	}
	return start, nil
}
