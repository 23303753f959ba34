package wire

import "fmt"

// FinishRequest is the FINISH request: param1 carries a "signature
// included" flag (set when mutual-auth requires a requester signature
// ahead of the HMAC — not used by this module's default PSK-less
// mutual-auth path, which always signs via Challenge instead), param2
// the requester slot id, followed by the requester verify-data HMAC.
type FinishRequest struct {
	SPDMVersion      uint8
	SignatureIncluded bool
	SlotID           uint8
	Signature        []byte // present only if SignatureIncluded
	VerifyData       []byte
}

func (r FinishRequest) Encode() []byte {
	param1 := uint8(0)
	if r.SignatureIncluded {
		param1 = 1
	}
	buf := make([]byte, HeaderSize+len(r.Signature)+len(r.VerifyData))
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: Finish, Param1: param1, Param2: r.SlotID}.Encode(buf)
	off := HeaderSize
	copy(buf[off:], r.Signature)
	off += len(r.Signature)
	copy(buf[off:], r.VerifyData)
	return buf
}

// FinishResponse is the decoded FINISH_RSP body: just the responder's
// verify-data HMAC (present unless the handshake was in the clear).
type FinishResponse struct {
	Header     Header
	VerifyData []byte
}

func DecodeFinishResponse(buf []byte, hashSize int, handshakeInClear bool) (*FinishResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != FinishRsp {
		return nil, fmt.Errorf("wire: expected FINISH_RSP (0x%02x), got 0x%02x", FinishRsp, h.RequestResponseCode)
	}
	rest := buf[HeaderSize:]
	if handshakeInClear {
		return &FinishResponse{Header: h}, nil
	}
	if len(rest) < hashSize {
		return nil, fmt.Errorf("wire: short FINISH_RSP body")
	}
	return &FinishResponse{Header: h, VerifyData: append([]byte{}, rest[:hashSize]...)}, nil
}
