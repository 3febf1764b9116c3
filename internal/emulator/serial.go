// internal/emulator/serial.go
package emulator

import (
	"context"
	"io"

	"github.com/tamzrod/bms-bridge/internal/rtu"
	"github.com/tamzrod/bms-bridge/internal/serialport"
)

// ServeRTU answers RTU requests on a serial line until ctx is cancelled or
// the port fails.
//
// Frames are delimited by their expected length when the function code is
// known, otherwise by the read timeout, which stands in for the 3.5-character
// silence. The port must be opened with a short read timeout.
func (r *Registers) ServeRTU(ctx context.Context, port io.ReadWriter) error {
	buf := make([]byte, 0, rtu.MaxFrame)
	chunk := make([]byte, rtu.MaxFrame)

	for ctx.Err() == nil {
		n, err := port.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}

		if err != nil {
			if !serialport.IsTimeout(err) {
				return err
			}
			// silence: whatever is buffered is one frame
			if len(buf) > 0 {
				if werr := r.reply(port, buf); werr != nil {
					return werr
				}
				buf = buf[:0]
			}
			continue
		}

		for len(buf) > 0 {
			want := rtu.ExpectedRequestLen(buf)
			if want <= 0 || want > len(buf) {
				break
			}
			if werr := r.reply(port, buf[:want]); werr != nil {
				return werr
			}
			buf = append(buf[:0], buf[want:]...)
		}

		if len(buf) > rtu.MaxFrame {
			r.log.Warn().Int("len", len(buf)).Msg("rtu buffer overflow, discarding")
			buf = buf[:0]
		}
	}

	return ctx.Err()
}

func (r *Registers) reply(w io.Writer, req []byte) error {
	resp := r.HandleADU(req)
	if resp == nil {
		return nil
	}
	_, err := w.Write(resp)
	return err
}
