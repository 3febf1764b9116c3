// internal/rtu/frame.go
package rtu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/goburrow/modbus"
	"github.com/sigurn/crc16"
)

// Modbus RTU ADU helpers shared by the register emulator (slave side) and
// the inverter control client (master side).

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

var (
	ErrShort = errors.New("rtu: frame too short")
	ErrCRC   = errors.New("rtu: crc mismatch")
)

// MinFrame is unit + function + CRC.
const MinFrame = 4

// MaxFrame is the RTU ADU limit.
const MaxFrame = 256

// CRC returns the CRC-16/MODBUS of data.
func CRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Seal appends the CRC, low byte first.
func Seal(pdu []byte) []byte {
	crc := CRC(pdu)
	return append(pdu, byte(crc), byte(crc>>8))
}

// Check verifies the trailing CRC of a complete ADU.
func Check(adu []byte) error {
	if len(adu) < MinFrame {
		return ErrShort
	}
	n := len(adu) - 2
	got := binary.LittleEndian.Uint16(adu[n:])
	if want := CRC(adu[:n]); got != want {
		return fmt.Errorf("%w: got=0x%04X want=0x%04X", ErrCRC, got, want)
	}
	return nil
}

// Frame is a validated ADU split into parts. Data excludes the function code and CRC.
type Frame struct {
	Unit     byte
	Function byte
	Data     []byte
}

// Parse checks the CRC and splits the ADU.
func Parse(adu []byte) (Frame, error) {
	if err := Check(adu); err != nil {
		return Frame{}, err
	}
	return Frame{
		Unit:     adu[0],
		Function: adu[1],
		Data:     adu[2 : len(adu)-2],
	}, nil
}

// IsException reports whether the function code carries the exception bit.
func (f Frame) IsException() bool { return f.Function&0x80 != 0 }

// Exception converts an exception frame into a goburrow ModbusError.
func (f Frame) Exception() error {
	if !f.IsException() {
		return nil
	}
	var code byte
	if len(f.Data) > 0 {
		code = f.Data[0]
	}
	return &modbus.ModbusError{FunctionCode: f.Function, ExceptionCode: code}
}

// ---- request builders ----

// ReadRequest builds an FC3/FC4 request.
func ReadRequest(unit, fc byte, addr, qty uint16) []byte {
	b := []byte{unit, fc, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(b[2:], addr)
	binary.BigEndian.PutUint16(b[4:], qty)
	return Seal(b)
}

// WriteMultipleRequest builds an FC16 request.
func WriteMultipleRequest(unit byte, addr uint16, values []uint16) []byte {
	b := make([]byte, 7, 7+2*len(values)+2)
	b[0] = unit
	b[1] = modbus.FuncCodeWriteMultipleRegisters
	binary.BigEndian.PutUint16(b[2:], addr)
	binary.BigEndian.PutUint16(b[4:], uint16(len(values)))
	b[6] = byte(2 * len(values))
	for _, v := range values {
		b = binary.BigEndian.AppendUint16(b, v)
	}
	return Seal(b)
}

// ---- response builders ----

// RegistersResponse builds a read reply for FC3/FC4.
func RegistersResponse(unit, fc byte, regs []uint16) []byte {
	b := make([]byte, 3, 3+2*len(regs)+2)
	b[0] = unit
	b[1] = fc
	b[2] = byte(2 * len(regs))
	for _, r := range regs {
		b = binary.BigEndian.AppendUint16(b, r)
	}
	return Seal(b)
}

// WriteMultipleResponse echoes address and quantity for FC16.
func WriteMultipleResponse(unit byte, addr, qty uint16) []byte {
	b := []byte{unit, modbus.FuncCodeWriteMultipleRegisters, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(b[2:], addr)
	binary.BigEndian.PutUint16(b[4:], qty)
	return Seal(b)
}

// ExceptionResponse builds an exception reply.
func ExceptionResponse(unit, fc, code byte) []byte {
	return Seal([]byte{unit, fc | 0x80, code})
}

// ExpectedRequestLen returns the full ADU length of a request once enough of
// its header has arrived, or 0 if more bytes are needed to tell. Unknown
// function codes return -1; the caller falls back to inter-frame silence.
func ExpectedRequestLen(head []byte) int {
	if len(head) < 2 {
		return 0
	}
	switch head[1] {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		return 8
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		if len(head) < 7 {
			return 0
		}
		return 9 + int(head[6])
	default:
		return -1
	}
}
