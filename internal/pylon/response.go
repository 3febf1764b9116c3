// internal/pylon/response.go
package pylon

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Response is a fully validated device answer.
type Response struct {
	Addr byte
	RTN  byte

	// Info is the INFO field as sent (uppercase hex).
	Info string
}

// InfoBytes decodes the INFO field.
func (r *Response) InfoBytes() ([]byte, error) {
	b, err := hex.DecodeString(r.Info)
	if err != nil {
		return nil, fmt.Errorf("%w: info not hex: %v", ErrMalformed, err)
	}
	return b, nil
}

// Trim drops any bytes before the first SOI and anything after the first EOI
// that follows it. Noise before SOI is normal on a shared half-duplex line.
func Trim(raw []byte) []byte {
	i := bytes.IndexByte(raw, SOI)
	if i < 0 {
		return nil
	}
	raw = raw[i:]
	if j := bytes.IndexByte(raw, EOI); j >= 0 {
		raw = raw[:j+1]
	}
	return raw
}

// ParseResponse validates a raw answer for a request sent to addr.
// Every check must pass; any failure discards the whole frame.
func ParseResponse(raw []byte, addr byte) (*Response, error) {
	frame := Trim(raw)
	if frame == nil {
		return nil, fmt.Errorf("%w: no start of frame", ErrMalformed)
	}
	if len(frame) < MinResponseLen {
		return nil, fmt.Errorf("%w: len=%d", ErrShort, len(frame))
	}
	if frame[len(frame)-1] != EOI {
		return nil, fmt.Errorf("%w: missing end of frame", ErrMalformed)
	}

	// Line noise on RTN or ADR must read as a checksum failure, not as a
	// device verdict.
	if !VerifyChecksum(frame) {
		return nil, ErrChecksum
	}

	rtn, err := parseHexByte(string(frame[offRTN : offRTN+2]))
	if err != nil {
		return nil, fmt.Errorf("%w: rtn %q", ErrMalformed, frame[offRTN:offRTN+2])
	}
	if rtn != 0x00 {
		return nil, &ReturnCodeError{RTN: rtn}
	}

	gotAddr, err := parseHexByte(string(frame[offADR : offADR+2]))
	if err != nil {
		return nil, fmt.Errorf("%w: adr %q", ErrMalformed, frame[offADR:offADR+2])
	}
	if gotAddr != addr {
		return nil, fmt.Errorf("%w: got=%d want=%d", ErrAddressMismatch, gotAddr, addr)
	}

	info := string(frame[offINFO : len(frame)-5])
	if err := checkLenID(string(frame[offLENID:offINFO]), len(info)); err != nil {
		return nil, err
	}

	return &Response{Addr: gotAddr, RTN: rtn, Info: info}, nil
}

func checkLenID(field string, infoLen int) error {
	v, err := strconv.ParseUint(field, 16, 16)
	if err != nil {
		return fmt.Errorf("%w: lenid %q", ErrMalformed, field)
	}
	n := int(v & 0x0FFF)
	if n != infoLen {
		return fmt.Errorf("%w: lenid length=%d info=%d", ErrMalformed, n, infoLen)
	}
	if byte(v>>12) != LenChecksum(n) {
		return fmt.Errorf("%w: lenid checksum %q", ErrMalformed, field)
	}
	return nil
}
