package wire

import "fmt"

// PskExchangeRequest is the PSK_EXCHANGE request: param1 the
// measurement-hash type, a PSK hint identifying which pre-shared key to
// use, and a requester random nonce.
type PskExchangeRequest struct {
	SPDMVersion        uint8
	MeasurementHashType uint8
	PSKHint            []byte
	RequesterContext   []byte
}

func (r PskExchangeRequest) Encode() []byte {
	buf := make([]byte, HeaderSize+4+len(r.PSKHint)+len(r.RequesterContext))
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: PskExchange, Param1: r.MeasurementHashType}.Encode(buf)
	off := HeaderSize
	putU16(buf[off:off+2], uint16(len(r.PSKHint)))
	putU16(buf[off+2:off+4], uint16(len(r.RequesterContext)))
	off += 4
	copy(buf[off:], r.PSKHint)
	off += len(r.PSKHint)
	copy(buf[off:], r.RequesterContext)
	return buf
}

// PskExchangeResponse is the decoded PSK_EXCHANGE_RSP body.
type PskExchangeResponse struct {
	Header             Header
	HeartbeatPeriod    uint8
	MeasurementSummary []byte
	ResponderContext   []byte
	ResponderVerifyData []byte
	UpToVerifyData     []byte
}

func DecodePskExchangeResponse(buf []byte, hashSize int, hasMeasurementSummary bool) (*PskExchangeResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != PskExchangeRsp {
		return nil, fmt.Errorf("wire: expected PSK_EXCHANGE_RSP (0x%02x), got 0x%02x", PskExchangeRsp, h.RequestResponseCode)
	}
	rest := buf[HeaderSize:]
	if len(rest) < 4 {
		return nil, fmt.Errorf("wire: short PSK_EXCHANGE_RSP body")
	}
	heartbeat := rest[0]
	respCtxLen := int(getU16(rest[2:4]))
	off := 4

	var measSummary []byte
	if hasMeasurementSummary {
		if len(rest) < off+hashSize {
			return nil, fmt.Errorf("wire: short PSK_EXCHANGE_RSP measurement summary")
		}
		measSummary = append([]byte{}, rest[off:off+hashSize]...)
		off += hashSize
	}

	if len(rest) < off+respCtxLen {
		return nil, fmt.Errorf("wire: short PSK_EXCHANGE_RSP responder context")
	}
	respCtx := append([]byte{}, rest[off:off+respCtxLen]...)
	off += respCtxLen

	if len(rest) < off+hashSize {
		return nil, fmt.Errorf("wire: short PSK_EXCHANGE_RSP verify data")
	}
	upToVerify := buf[:HeaderSize+off]
	verifyData := append([]byte{}, rest[off:off+hashSize]...)

	return &PskExchangeResponse{
		Header:             h,
		HeartbeatPeriod:    heartbeat,
		MeasurementSummary: measSummary,
		ResponderContext:   respCtx,
		ResponderVerifyData: verifyData,
		UpToVerifyData:     upToVerify,
	}, nil
}

// PskFinishRequest carries the requester's verify-data HMAC.
type PskFinishRequest struct {
	SPDMVersion uint8
	VerifyData  []byte
}

func (r PskFinishRequest) Encode() []byte {
	buf := make([]byte, HeaderSize+len(r.VerifyData))
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: PskFinish}.Encode(buf)
	copy(buf[HeaderSize:], r.VerifyData)
	return buf
}

// PskFinishResponse carries only the fixed header; PSK_FINISH_RSP has
// no body.
type PskFinishResponse struct {
	Header Header
}

func DecodePskFinishResponse(buf []byte) (*PskFinishResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != PskFinishRsp {
		return nil, fmt.Errorf("wire: expected PSK_FINISH_RSP (0x%02x), got 0x%02x", PskFinishRsp, h.RequestResponseCode)
	}
	return &PskFinishResponse{Header: h}, nil
}
