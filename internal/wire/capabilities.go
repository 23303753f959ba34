package wire

import "fmt"

// CapabilityFlags is the 32-bit GET_CAPABILITIES/CAPABILITIES flag field.
type CapabilityFlags uint32

const (
	CapCertCap          CapabilityFlags = 1 << 1
	CapChalCap          CapabilityFlags = 1 << 2
	CapMeasCap          CapabilityFlags = 1 << 3
	CapMeasFreshCap     CapabilityFlags = 1 << 4
	CapEncryptCap       CapabilityFlags = 1 << 5
	CapMacCap           CapabilityFlags = 1 << 6
	CapMutAuthCap       CapabilityFlags = 1 << 7
	CapKeyExCap         CapabilityFlags = 1 << 8
	CapPskCap           CapabilityFlags = 1 << 9
	CapEncapCap         CapabilityFlags = 1 << 11
	CapHBeatCap         CapabilityFlags = 1 << 12
	CapKeyUpdCap        CapabilityFlags = 1 << 13
	CapHandshakeInClear CapabilityFlags = 1 << 14
	CapPubKeyIDCap      CapabilityFlags = 1 << 15
)

// GetCapabilitiesRequest is the GET_CAPABILITIES request body (beyond
// the fixed header): a reserved byte, the requester's CT exponent, two
// reserved bytes, and the requester's capability flags.
type GetCapabilitiesRequest struct {
	SPDMVersion uint8
	CTExponent  uint8
	Flags       CapabilityFlags
}

func (r GetCapabilitiesRequest) Encode() []byte {
	buf := make([]byte, HeaderSize+8)
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: GetCapabilities}.Encode(buf)
	buf[4] = 0 // reserved
	buf[5] = r.CTExponent
	buf[6] = 0
	buf[7] = 0
	putU32(buf[8:12], uint32(r.Flags))
	return buf
}

// CapabilitiesResponse is the decoded CAPABILITIES message body.
type CapabilitiesResponse struct {
	Header     Header
	CTExponent uint8
	Flags      CapabilityFlags
}

func DecodeCapabilitiesResponse(buf []byte) (*CapabilitiesResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != Capabilities {
		return nil, fmt.Errorf("wire: expected CAPABILITIES (0x%02x), got 0x%02x", Capabilities, h.RequestResponseCode)
	}
	rest := buf[HeaderSize:]
	if len(rest) < 8 {
		return nil, fmt.Errorf("wire: short CAPABILITIES body: %d bytes", len(rest))
	}
	return &CapabilitiesResponse{
		Header:     h,
		CTExponent: rest[1],
		Flags:      CapabilityFlags(getU32(rest[4:8])),
	}, nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func getU16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
