package wire

import "fmt"

// HeaderSize is the size in bytes of the fixed SPDM message header:
// spdm_version, request_response_code, param1, param2.
const HeaderSize = 4

// Header is the 4-byte prefix of every SPDM message (spec.md §6.1). All
// integers on the wire are little-endian; the header itself is all
// single bytes so no byte-order conversion applies to it.
type Header struct {
	SPDMVersion        uint8
	RequestResponseCode RequestResponseCode
	Param1             uint8
	Param2             uint8
}

// Encode writes the header into the front of buf, which must have
// length >= HeaderSize.
func (h Header) Encode(buf []byte) {
	buf[0] = h.SPDMVersion
	buf[1] = byte(h.RequestResponseCode)
	buf[2] = h.Param1
	buf[3] = h.Param2
}

// DecodeHeader parses the fixed header from the front of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("wire: short message header: %d bytes", len(buf))
	}
	return Header{
		SPDMVersion:        buf[0],
		RequestResponseCode: RequestResponseCode(buf[1]),
		Param1:             buf[2],
		Param2:             buf[3],
	}, nil
}

// IsRequest reports whether code has the request high bit (0x80) set.
// ERROR (0xFF) also has the bit set but is distinguished by direction at
// the call site, exactly as spec.md §6.1 describes.
func (c RequestResponseCode) IsRequest() bool {
	return c&0x80 != 0
}
