// internal/canbus/decoder.go
package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/bms-bridge/internal/telemetry"
)

var (
	ErrLength      = errors.New("canbus: payload length mismatch")
	ErrImplausible = errors.New("canbus: implausible value")
)

// Plausibility window for temperatures. A corrupted but well-sized payload
// decodes to values far outside it.
const (
	TempMinC = -40.0
	TempMaxC = 100.0
)

// Kind identifies a decoded frame group.
type Kind int

const (
	KindUnknown Kind = iota
	KindLimits
	KindCharge
	KindFlags
	KindExtremes
)

func (k Kind) String() string {
	switch k {
	case KindLimits:
		return "limits"
	case KindCharge:
		return "soc_soh"
	case KindFlags:
		return "flags"
	case KindExtremes:
		return "extremes"
	default:
		return "unknown"
	}
}

// FrameSpec binds an identifier and payload length to a frame group.
type FrameSpec struct {
	Kind   Kind
	ID     uint32
	Length int
}

// DefaultFrames is the Pylontech-profile broadcast set.
func DefaultFrames() []FrameSpec {
	return []FrameSpec{
		{Kind: KindLimits, ID: 0x351, Length: 8},
		{Kind: KindCharge, ID: 0x355, Length: 4},
		{Kind: KindFlags, ID: 0x35C, Length: 1},
		{Kind: KindExtremes, ID: 0x370, Length: 8},
	}
}

type decodeFunc func(p []byte, s *telemetry.Snapshot, at time.Time) error

type entry struct {
	frame  FrameSpec
	decode decodeFunc
}

// Stats are decoder counters. Ignored frames are not errors.
type Stats struct {
	Decoded      uint64
	Ignored      uint64
	LengthErrors uint64
	Implausible  uint64
}

// Decoder maps frame identifiers to snapshot updates.
// It is receive-only and holds no transport.
type Decoder struct {
	table map[uint32]entry
	stats Stats
}

// NewDecoder builds the lookup table. Duplicate IDs are a configuration error.
func NewDecoder(frames []FrameSpec) (*Decoder, error) {
	d := &Decoder{table: make(map[uint32]entry, len(frames))}

	for _, f := range frames {
		fn := decoderFor(f.Kind)
		if fn == nil {
			return nil, fmt.Errorf("canbus: no decoder for kind %d", f.Kind)
		}
		if f.Length <= 0 || f.Length > 8 {
			return nil, fmt.Errorf("canbus: frame 0x%03X length %d out of range", f.ID, f.Length)
		}
		if _, dup := d.table[f.ID]; dup {
			return nil, fmt.Errorf("canbus: duplicate frame id 0x%03X", f.ID)
		}
		d.table[f.ID] = entry{frame: f, decode: fn}
	}

	return d, nil
}

func decoderFor(k Kind) decodeFunc {
	switch k {
	case KindLimits:
		return decodeLimits
	case KindCharge:
		return decodeCharge
	case KindFlags:
		return decodeFlags
	case KindExtremes:
		return decodeExtremes
	default:
		return nil
	}
}

// Decode applies one frame to s. Unknown identifiers return KindUnknown and no error.
// On error the snapshot is untouched.
func (d *Decoder) Decode(id uint32, payload []byte, s *telemetry.Snapshot, at time.Time) (Kind, error) {
	e, ok := d.table[id]
	if !ok {
		d.stats.Ignored++
		return KindUnknown, nil
	}

	if len(payload) != e.frame.Length {
		d.stats.LengthErrors++
		return e.frame.Kind, fmt.Errorf("%w: id=0x%03X got=%d want=%d", ErrLength, id, len(payload), e.frame.Length)
	}

	if err := e.decode(payload, s, at); err != nil {
		d.stats.Implausible++
		return e.frame.Kind, err
	}

	d.stats.Decoded++
	return e.frame.Kind, nil
}

// Stats returns a copy of the counters.
func (d *Decoder) Stats() Stats { return d.stats }

// ---- frame decoders ----

func le16(p []byte, i int) uint16 {
	return binary.LittleEndian.Uint16(p[i*2 : i*2+2])
}

func decodeLimits(p []byte, s *telemetry.Snapshot, at time.Time) error {
	s.Limits.Set(telemetry.Limits{
		ChargeVoltageMax:      float64(le16(p, 0)) / 10,
		ChargeCurrentLimit:    float64(le16(p, 1)) / 10,
		DischargeCurrentLimit: float64(le16(p, 2)) / 10,
		LowVoltageLimit:       float64(le16(p, 3)) / 10,
	}, at)
	return nil
}

func decodeCharge(p []byte, s *telemetry.Snapshot, at time.Time) error {
	soc, soh := le16(p, 0), le16(p, 1)
	if soc > 100 || soh > 100 {
		return fmt.Errorf("%w: soc=%d soh=%d", ErrImplausible, soc, soh)
	}
	s.Charge.Set(telemetry.Charge{SOC: soc, SOH: soh}, at)
	return nil
}

func decodeFlags(p []byte, s *telemetry.Snapshot, at time.Time) error {
	b := p[0]
	s.Flags.Set(telemetry.BMSFlags{
		ChargeEnabled:        b&0x80 != 0,
		DischargeEnabled:     b&0x40 != 0,
		ForceChargeRequested: b&0x20 != 0,
		Escalation:           (b >> 3) & 0x03,
		Raw:                  b,
	}, at)
	return nil
}

func decodeExtremes(p []byte, s *telemetry.Snapshot, at time.Time) error {
	x := telemetry.Extremes{
		CellVoltageMax: float64(le16(p, 0)) / 1000,
		CellVoltageMin: float64(le16(p, 1)) / 1000,
		TempMax:        DeciKelvinToCelsius(le16(p, 2)),
		TempMin:        DeciKelvinToCelsius(le16(p, 3)),
	}
	if !plausibleTemp(x.TempMax) || !plausibleTemp(x.TempMin) {
		return fmt.Errorf("%w: temp max=%.1f min=%.1f", ErrImplausible, x.TempMax, x.TempMin)
	}
	s.Extremes.Set(x, at)
	return nil
}

// DeciKelvinToCelsius converts tenths of a kelvin to °C.
func DeciKelvinToCelsius(v uint16) float64 {
	return float64(v)/10 - 273.15
}

func plausibleTemp(c float64) bool {
	return c >= TempMinC && c <= TempMaxC
}
