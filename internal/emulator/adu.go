// internal/emulator/adu.go
package emulator

import (
	"encoding/binary"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/bms-bridge/internal/rtu"
)

// HandleADU answers one RTU request. It returns nil when no reply may be
// sent: bad CRC or a unit that is not ours. Every other request gets a
// response or an exception.
func (r *Registers) HandleADU(adu []byte) []byte {
	f, err := rtu.Parse(adu)
	if err != nil {
		r.Stats.CRCErrors.Add(1)
		r.log.Debug().Err(err).Int("len", len(adu)).Msg("rtu frame dropped")
		return nil
	}
	if !r.Serves(f.Unit) {
		r.Stats.Ignored.Add(1)
		return nil
	}

	r.Stats.Requests.Add(1)

	resp := r.dispatch(f)
	if resp[1]&0x80 != 0 {
		r.Stats.Exceptions.Add(1)
	} else {
		r.Stats.Responses.Add(1)
	}
	return resp
}

func (r *Registers) dispatch(f rtu.Frame) []byte {
	switch f.Function {
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		if len(f.Data) != 4 {
			return r.exception(f, modbus.ExceptionCodeIllegalDataValue)
		}
		addr := binary.BigEndian.Uint16(f.Data[0:])
		qty := binary.BigEndian.Uint16(f.Data[2:])

		regs, err := r.Read(f.Unit, f.Function, addr, qty)
		if err != nil {
			return r.exception(f, exceptionCode(err))
		}
		return rtu.RegistersResponse(f.Unit, f.Function, regs)

	case modbus.FuncCodeWriteMultipleRegisters:
		if len(f.Data) < 5 {
			return r.exception(f, modbus.ExceptionCodeIllegalDataValue)
		}
		addr := binary.BigEndian.Uint16(f.Data[0:])
		qty := binary.BigEndian.Uint16(f.Data[2:])
		count := int(f.Data[4])
		if count != 2*int(qty) || len(f.Data) != 5+count {
			return r.exception(f, modbus.ExceptionCodeIllegalDataValue)
		}

		values := make([]uint16, qty)
		for i := range values {
			values[i] = binary.BigEndian.Uint16(f.Data[5+2*i:])
		}
		if err := r.Write(f.Unit, addr, values); err != nil {
			return r.exception(f, exceptionCode(err))
		}
		return rtu.WriteMultipleResponse(f.Unit, addr, qty)

	default:
		return r.exception(f, modbus.ExceptionCodeIllegalFunction)
	}
}

func (r *Registers) exception(f rtu.Frame, code byte) []byte {
	r.log.Debug().Uint8("unit", f.Unit).Uint8("fc", f.Function).Uint8("exception", code).Msg("rtu exception")
	return rtu.ExceptionResponse(f.Unit, f.Function, code)
}
