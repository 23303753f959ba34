package wire

import "fmt"

// GetDigestsRequest carries only the fixed header.
type GetDigestsRequest struct {
	SPDMVersion uint8
}

func (r GetDigestsRequest) Encode() []byte {
	buf := make([]byte, HeaderSize)
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: GetDigests}.Encode(buf)
	return buf
}

// DigestsResponse is the decoded DIGESTS message: param2 of the header
// carries a slot-populated bitmask (bit i set => slot i has a cert
// chain), followed by one digest of hashSize bytes per populated slot,
// in ascending slot order.
type DigestsResponse struct {
	Header   Header
	SlotMask uint8
	Digests  map[int][]byte
}

func DecodeDigestsResponse(buf []byte, hashSize int) (*DigestsResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != Digests {
		return nil, fmt.Errorf("wire: expected DIGESTS (0x%02x), got 0x%02x", Digests, h.RequestResponseCode)
	}
	mask := h.Param2
	rest := buf[HeaderSize:]
	digests := make(map[int][]byte)
	off := 0
	for slot := 0; slot < 8; slot++ {
		if mask&(1<<uint(slot)) == 0 {
			continue
		}
		if off+hashSize > len(rest) {
			return nil, fmt.Errorf("wire: DIGESTS body too short for slot %d", slot)
		}
		d := make([]byte, hashSize)
		copy(d, rest[off:off+hashSize])
		digests[slot] = d
		off += hashSize
	}
	return &DigestsResponse{Header: h, SlotMask: mask, Digests: digests}, nil
}
