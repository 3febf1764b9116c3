// internal/inverter/client_test.go
package inverter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/bms-bridge/internal/rtu"
)

const (
	testUnit = 10
	testReg  = 0x9608
)

// fakeTransport returns scripted replies in order and records requests.
type fakeTransport struct {
	replies  [][]byte
	errs     []error
	sent     [][]byte
	connects int
	closes   int
}

func (f *fakeTransport) Connect() error { f.connects++; return nil }
func (f *fakeTransport) Close() error   { f.closes++; return nil }

func (f *fakeTransport) Send(adu []byte) ([]byte, error) {
	f.sent = append(f.sent, append([]byte(nil), adu...))
	i := len(f.sent) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.replies) {
		return nil, errors.New("no reply scripted")
	}
	return f.replies[i], nil
}

func readReply(v uint16) []byte {
	return rtu.RegistersResponse(testUnit, modbus.FuncCodeReadHoldingRegisters, []uint16{v})
}

func newClient(tr Transporter) *Client {
	return NewClient(Config{Unit: testUnit, Register: testReg}, tr)
}

func TestCycleNoWriteWhenInSync(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{readReply(1)}}
	res := newClient(tr).Cycle(1, "test")

	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.False(t, res.Wrote)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, rtu.ReadRequest(testUnit, 3, testReg, 1), tr.sent[0])
}

func TestCycleWritesWithFC16(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{
		readReply(0),
		rtu.WriteMultipleResponse(testUnit, testReg, 1),
	}}
	res := newClient(tr).Cycle(1, "test")

	require.NoError(t, res.Err)
	assert.True(t, res.WriteOK)
	require.Len(t, tr.sent, 2)
	assert.Equal(t, byte(modbus.FuncCodeWriteMultipleRegisters), tr.sent[1][1])
	assert.Equal(t, rtu.WriteMultipleRequest(testUnit, testReg, []uint16{1}), tr.sent[1])

	var s PriorityState
	s.Desired = 1
	s.Apply(res)
	assert.Equal(t, uint16(1), s.Current)
	assert.True(t, s.InSync())
	assert.Equal(t, uint64(1), s.WriteSuccesses)
}

func TestReadAcceptsInputRegisterReply(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{rtu.RegistersResponse(testUnit, modbus.FuncCodeReadInputRegisters, []uint16{0})}}
	v, err := newClient(tr).ReadMode()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), v)
}

func TestRejectedReadsLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
		want  error
	}{
		{"byte count 4", rtu.Seal([]byte{testUnit, 3, 4, 0, 0, 0, 1}), ErrByteCount},
		{"value 57", readReply(57), ErrValueRange},
		{"wrong unit", rtu.RegistersResponse(11, 3, []uint16{0}), ErrUnit},
		{"wrong function", rtu.RegistersResponse(testUnit, 6, []uint16{0}), ErrFunction},
		{"bad crc", func() []byte { b := readReply(0); b[len(b)-1] ^= 1; return b }(), rtu.ErrCRC},
		{"truncated", rtu.Seal([]byte{testUnit, 3, 2, 0}), ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := PriorityState{Current: 1, Known: true, Desired: 0}

			tr := &fakeTransport{replies: [][]byte{tt.reply}}
			res := newClient(tr).Cycle(0, "test")
			require.Error(t, res.Err)
			assert.ErrorIs(t, res.Err, tt.want)
			assert.Equal(t, KindValidation, Kind(res.Err))
			assert.Len(t, tr.sent, 1, "no write after a rejected read")
			assert.Equal(t, 1, tr.closes, "link dropped after a rejected reply")

			s.Apply(res)
			assert.Equal(t, uint16(1), s.Current)
			assert.True(t, s.Known)
			assert.Equal(t, uint64(1), s.ReadFailures)
			assert.Zero(t, s.WriteAttempts)
		})
	}
}

func TestException(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{rtu.ExceptionResponse(testUnit, 3, modbus.ExceptionCodeIllegalDataAddress)}}
	res := newClient(tr).Cycle(1, "test")

	var me *modbus.ModbusError
	require.True(t, errors.As(res.Err, &me))
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataAddress), me.ExceptionCode)
	assert.Equal(t, KindException, Kind(res.Err))

	var s PriorityState
	s.Apply(res)
	assert.Equal(t, uint64(1), s.Exceptions)
	assert.False(t, s.Known)
}

func TestWriteEchoMismatch(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{
		readReply(0),
		rtu.WriteMultipleResponse(testUnit, testReg+1, 1),
	}}
	res := newClient(tr).Cycle(1, "test")
	assert.ErrorIs(t, res.Err, ErrEcho)
	assert.Equal(t, StageWrite, res.Stage)

	s := PriorityState{Desired: 1}
	s.Apply(res)
	assert.Equal(t, uint16(0), s.Current, "validated read is kept, failed write is not")
	assert.Equal(t, uint64(1), s.WriteFailures)
	assert.False(t, s.InSync())
}

func TestTransportErrorReconnects(t *testing.T) {
	tr := &fakeTransport{
		errs:    []error{errors.New("connection reset")},
		replies: [][]byte{nil, readReply(1)},
	}
	c := newClient(tr)

	res := c.Cycle(1, "test")
	assert.Equal(t, KindTransport, Kind(res.Err))
	assert.Equal(t, 1, tr.closes)

	res = c.Cycle(1, "test")
	require.NoError(t, res.Err)
	assert.Equal(t, 2, tr.connects)
}

func TestWriteModeRefusesOutOfRange(t *testing.T) {
	tr := &fakeTransport{}
	err := newClient(tr).WriteMode(2)
	assert.ErrorIs(t, err, ErrValueRange)
	assert.Empty(t, tr.sent)
}

func TestWorkerCoalescesTriggers(t *testing.T) {
	tr := &fakeTransport{replies: [][]byte{readReply(0), readReply(0)}}
	w := NewWorker(newClient(tr), zerolog.Nop())

	// Queue before Run: the second trigger replaces the first.
	w.Trigger(Request{Desired: 1, Reason: "a"})
	w.Trigger(Request{Desired: 0, Reason: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Result)
	go w.Run(ctx, out)

	select {
	case res := <-out:
		assert.Equal(t, "b", res.Reason)
		assert.True(t, res.OK())
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}

	select {
	case res := <-out:
		t.Fatalf("unexpected second cycle: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
}
