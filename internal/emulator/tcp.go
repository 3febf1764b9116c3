// internal/emulator/tcp.go
package emulator

import (
	"errors"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
	smodbus "github.com/simonvetter/modbus"
)

// tcpHandler exposes the same registers over Modbus TCP.
type tcpHandler struct {
	regs *Registers
}

var _ smodbus.RequestHandler = (*tcpHandler)(nil)

func (h *tcpHandler) HandleCoils(*smodbus.CoilsRequest) ([]bool, error) {
	return nil, smodbus.ErrIllegalFunction
}

func (h *tcpHandler) HandleDiscreteInputs(*smodbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, smodbus.ErrIllegalFunction
}

func (h *tcpHandler) HandleHoldingRegisters(req *smodbus.HoldingRegistersRequest) ([]uint16, error) {
	if !h.regs.Serves(req.UnitId) {
		return nil, smodbus.ErrIllegalDataAddress
	}
	h.regs.Stats.Requests.Add(1)

	if req.IsWrite {
		if err := h.regs.Write(req.UnitId, req.Addr, req.Args); err != nil {
			return nil, h.fail(err)
		}
		h.regs.Stats.Responses.Add(1)
		return nil, nil
	}

	regs, err := h.regs.Read(req.UnitId, modbus.FuncCodeReadHoldingRegisters, req.Addr, req.Quantity)
	if err != nil {
		return nil, h.fail(err)
	}
	h.regs.Stats.Responses.Add(1)
	return regs, nil
}

func (h *tcpHandler) HandleInputRegisters(req *smodbus.InputRegistersRequest) ([]uint16, error) {
	if !h.regs.Serves(req.UnitId) {
		return nil, smodbus.ErrIllegalDataAddress
	}
	h.regs.Stats.Requests.Add(1)

	regs, err := h.regs.Read(req.UnitId, modbus.FuncCodeReadInputRegisters, req.Addr, req.Quantity)
	if err != nil {
		return nil, h.fail(err)
	}
	h.regs.Stats.Responses.Add(1)
	return regs, nil
}

func (h *tcpHandler) fail(err error) error {
	h.regs.Stats.Exceptions.Add(1)
	switch {
	case errors.Is(err, ErrIllegalFunction):
		return smodbus.ErrIllegalFunction
	case errors.Is(err, ErrIllegalAddress):
		return smodbus.ErrIllegalDataAddress
	case errors.Is(err, ErrIllegalValue):
		return smodbus.ErrIllegalDataValue
	default:
		return smodbus.ErrServerDeviceFailure
	}
}

// TCPServer is the optional Modbus TCP face.
type TCPServer struct {
	srv *smodbus.ModbusServer
}

// NewTCPServer binds listen (host:port) to the registers. Start must be called.
func NewTCPServer(regs *Registers, listen string, timeout time.Duration, maxClients uint) (*TCPServer, error) {
	if listen == "" {
		return nil, errors.New("emulator: tcp listen address required")
	}
	srv, err := smodbus.NewServer(&smodbus.ServerConfiguration{
		URL:        "tcp://" + listen,
		Timeout:    timeout,
		MaxClients: maxClients,
	}, &tcpHandler{regs: regs})
	if err != nil {
		return nil, fmt.Errorf("emulator: tcp server: %w", err)
	}
	return &TCPServer{srv: srv}, nil
}

func (s *TCPServer) Start() error { return s.srv.Start() }

func (s *TCPServer) Stop() error { return s.srv.Stop() }
