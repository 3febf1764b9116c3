// internal/canbus/source.go
package canbus

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/brutella/can"
	"github.com/rs/zerolog"
)

// Frame is one received CAN frame, copied out of the driver buffer.
type Frame struct {
	ID   uint32
	Data []byte
	At   time.Time
}

const (
	idMask         = 0x1FFFFFFF
	reconnectDelay = 5 * time.Second
)

// Source receives frames from a SocketCAN interface.
//
// It only subscribes; nothing in this package calls Publish. The interface
// itself must be brought up in listen-only mode so the controller never
// acknowledges frames on a bus shared with the inverter.
type Source struct {
	Interface string
	Log       zerolog.Logger
}

// Run forwards frames to out until ctx is cancelled, reopening the socket
// when the interface disappears.
func (s *Source) Run(ctx context.Context, out chan<- Frame) {
	for {
		err := s.listenOnce(ctx, out)
		if ctx.Err() != nil {
			return
		}
		s.Log.Error().Err(err).Str("iface", s.Interface).Msg("can bus unavailable, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Source) listenOnce(ctx context.Context, out chan<- Frame) error {
	iface, err := net.InterfaceByName(s.Interface)
	if err != nil {
		return fmt.Errorf("canbus: interface %s: %w", s.Interface, err)
	}

	conn, err := can.NewReadWriteCloserForInterface(iface)
	if err != nil {
		return fmt.Errorf("canbus: bind %s: %w", s.Interface, err)
	}

	bus := can.NewBus(conn)
	bus.SubscribeFunc(func(f can.Frame) {
		n := int(f.Length)
		if n > len(f.Data) {
			n = len(f.Data)
		}
		data := make([]byte, n)
		copy(data, f.Data[:n])

		select {
		case out <- Frame{ID: f.ID & idMask, Data: data, At: time.Now()}:
		case <-ctx.Done():
		}
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = bus.Disconnect()
		case <-stop:
		}
	}()

	s.Log.Info().Str("iface", s.Interface).Msg("listening on can bus")
	return bus.ConnectAndPublish()
}
