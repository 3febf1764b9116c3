// internal/pylon/frame.go
package pylon

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Frame layout (ASCII):
//
//	~ VER(2) ADR(2) CID1(2) CID2|RTN(2) LENID(4) INFO(n) CHKSUM(4) \r
const (
	SOI = '~'
	EOI = '\r'

	// Version is the fixed protocol version field.
	Version = "20"
	// DeviceType is CID1 for a lithium battery pack.
	DeviceType = "46"

	CmdAnalog byte = 0x42
	CmdAlarm  byte = 0x44

	// MaxInfoLen is the largest INFO length LENID can carry (3 hex digits).
	MaxInfoLen = 0xFFF

	// MinResponseLen is SOI + 12 header chars + CHKSUM + EOI with empty INFO.
	MinResponseLen = 18

	offADR   = 3
	offRTN   = 7
	offLENID = 9
	offINFO  = 13
)

// LenChecksum returns the LENID checksum nibble for an INFO length:
// (16 - sum of the three length nibbles) mod 16.
func LenChecksum(infoLen int) byte {
	sum := (infoLen>>8)&0xF + (infoLen>>4)&0xF + infoLen&0xF
	return byte((16 - sum%16) % 16)
}

// LenID renders the 4-hex LENID field for an INFO length.
func LenID(infoLen int) (string, error) {
	if infoLen < 0 || infoLen > MaxInfoLen {
		return "", fmt.Errorf("pylon: info length %d out of range", infoLen)
	}
	return fmt.Sprintf("%X%03X", LenChecksum(infoLen), infoLen), nil
}

// Checksum is the 16-bit two's complement of the byte sum of body,
// where body runs from VER through INFO.
func Checksum(body []byte) uint16 {
	var sum uint32
	for _, b := range body {
		sum += uint32(b)
	}
	return uint16(^sum + 1)
}

func checksumHex(body []byte) string {
	return fmt.Sprintf("%04X", Checksum(body))
}

// BuildRequest encodes a command frame. info is raw bytes; it is hex-encoded on the wire.
func BuildRequest(addr, cmd byte, info []byte) ([]byte, error) {
	return build(addr, cmd, strings.ToUpper(hex.EncodeToString(info)))
}

// BuildBatteryRequest encodes a per-battery command whose INFO is the battery index.
func BuildBatteryRequest(addr, cmd byte, battery int) ([]byte, error) {
	if battery < 0 || battery > 0xFF {
		return nil, fmt.Errorf("pylon: battery index %d out of range", battery)
	}
	return BuildRequest(addr, cmd, []byte{byte(battery)})
}

// BuildResponse encodes a device answer. infoHex is sent as-is.
func BuildResponse(addr, rtn byte, infoHex string) ([]byte, error) {
	return build(addr, rtn, infoHex)
}

func build(addr, code byte, infoHex string) ([]byte, error) {
	lenID, err := LenID(len(infoHex))
	if err != nil {
		return nil, err
	}

	var body strings.Builder
	body.Grow(12 + len(infoHex))
	body.WriteString(Version)
	body.WriteString(hex2(addr))
	body.WriteString(DeviceType)
	body.WriteString(hex2(code))
	body.WriteString(lenID)
	body.WriteString(infoHex)

	b := []byte(body.String())

	out := make([]byte, 0, len(b)+6)
	out = append(out, SOI)
	out = append(out, b...)
	out = append(out, checksumHex(b)...)
	out = append(out, EOI)
	return out, nil
}

func hex2(v byte) string {
	return fmt.Sprintf("%02X", v)
}

// VerifyChecksum recomputes the checksum of a complete frame
// (SOI through EOI) and compares it with the trailing four hex digits.
func VerifyChecksum(frame []byte) bool {
	if len(frame) < 6 || frame[0] != SOI || frame[len(frame)-1] != EOI {
		return false
	}
	body := frame[1 : len(frame)-5]
	recv := string(frame[len(frame)-5 : len(frame)-1])
	return recv == checksumHex(body)
}

func parseHexByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}
