package wire

import "fmt"

// MutAuthRequested bits decoded from KEY_EXCHANGE_RSP's Param1: whether
// the responder wants mutual authentication, and if so, by which
// encapsulated exchange the requester must then serve (spec.md §4.2.7,
// mirroring the original's mut_auth_requested parameter threaded through
// spdm_encapsulated_request).
const (
	MutAuthRequested                = 1 << 0
	MutAuthRequestedWithEncapRequest = 1 << 1
	MutAuthRequestedWithGetDigests   = 1 << 2
)

// KeyExchangeRequest is the KEY_EXCHANGE request: param1 is the
// measurement-hash type governing whether measurements are included
// (spec.md §4.2.4), param2 is the slot id, followed by a requester
// random nonce and the requester's DHE public key.
type KeyExchangeRequest struct {
	SPDMVersion       uint8
	MeasurementHashType uint8
	SlotID            uint8
	RandomNonce       [NonceSize]byte
	ExchangeData      []byte // requester's DHE public key
	OpaqueData        []byte
}

func (r KeyExchangeRequest) Encode() []byte {
	buf := make([]byte, HeaderSize+2+NonceSize+len(r.ExchangeData)+2+len(r.OpaqueData))
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: KeyExchange, Param1: r.MeasurementHashType, Param2: r.SlotID}.Encode(buf)
	off := HeaderSize
	putU16(buf[off:off+2], uint16(len(r.ExchangeData)))
	off += 2
	copy(buf[off:], r.RandomNonce[:])
	off += NonceSize
	copy(buf[off:], r.ExchangeData)
	off += len(r.ExchangeData)
	putU16(buf[off:off+2], uint16(len(r.OpaqueData)))
	off += 2
	copy(buf[off:], r.OpaqueData)
	return buf
}

// KeyExchangeResponse is the decoded KEY_EXCHANGE_RSP body up to (and
// including) the responder's signature and verify-data HMAC, used to
// derive TH1 and validate both. req_slot_id_param, mut_auth_requested,
// and heartbeat_period come from the header's param1/param2 plus the
// first response byte per spec.md §4.2.4.
type KeyExchangeResponse struct {
	Header            Header
	HeartbeatPeriod   uint8
	RandomNonce       [NonceSize]byte
	ExchangeData      []byte // responder's DHE public key
	MeasurementSummary []byte
	OpaqueData        []byte
	Signature         []byte
	ResponderVerifyData []byte
	// MutAuthRequested is Header.Param1's mut_auth_requested bits.
	MutAuthRequested uint8
	// UpToSignature is the message bytes from the header through the
	// end of opaque data, used as input to TH1 prior to the signature.
	UpToSignature []byte
	// UpToVerifyData additionally includes the signature, used as
	// input to the HMAC verification of ResponderVerifyData.
	UpToVerifyData []byte
}

// DecodeKeyExchangeResponse decodes a KEY_EXCHANGE_RSP message.
// dheKeySize is the negotiated DHE public key size, hashSize the
// negotiated hash size (used for the optional measurement summary and
// the verify-data HMAC, whose size equals the hash digest size),
// sigSize the negotiated signature size, and hasMeasurementSummary
// mirrors the requested measurement-hash type.
func DecodeKeyExchangeResponse(buf []byte, dheKeySize, hashSize, sigSize int, hasMeasurementSummary bool) (*KeyExchangeResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != KeyExchangeRsp {
		return nil, fmt.Errorf("wire: expected KEY_EXCHANGE_RSP (0x%02x), got 0x%02x", KeyExchangeRsp, h.RequestResponseCode)
	}
	rest := buf[HeaderSize:]
	need := 2 + NonceSize + dheKeySize
	if len(rest) < need {
		return nil, fmt.Errorf("wire: short KEY_EXCHANGE_RSP body")
	}
	heartbeat := rest[0]
	var nonce [NonceSize]byte
	copy(nonce[:], rest[2:2+NonceSize])
	off := 2 + NonceSize
	exch := append([]byte{}, rest[off:off+dheKeySize]...)
	off += dheKeySize

	var measSummary []byte
	if hasMeasurementSummary {
		if len(rest) < off+hashSize {
			return nil, fmt.Errorf("wire: short KEY_EXCHANGE_RSP measurement summary")
		}
		measSummary = append([]byte{}, rest[off:off+hashSize]...)
		off += hashSize
	}

	if len(rest) < off+2 {
		return nil, fmt.Errorf("wire: short KEY_EXCHANGE_RSP opaque length")
	}
	opaqueLen := int(getU16(rest[off : off+2]))
	off += 2
	if len(rest) < off+opaqueLen {
		return nil, fmt.Errorf("wire: short KEY_EXCHANGE_RSP opaque data")
	}
	opaque := append([]byte{}, rest[off:off+opaqueLen]...)
	off += opaqueLen

	upToSig := buf[:HeaderSize+off]

	if len(rest) < off+sigSize+hashSize {
		return nil, fmt.Errorf("wire: short KEY_EXCHANGE_RSP signature/verify-data")
	}
	sig := append([]byte{}, rest[off:off+sigSize]...)
	off += sigSize
	upToVerify := buf[:HeaderSize+off]
	verifyData := append([]byte{}, rest[off:off+hashSize]...)

	return &KeyExchangeResponse{
		Header:             h,
		HeartbeatPeriod:    heartbeat,
		RandomNonce:        nonce,
		ExchangeData:       exch,
		MeasurementSummary: measSummary,
		OpaqueData:         opaque,
		Signature:          sig,
		ResponderVerifyData: verifyData,
		MutAuthRequested:   h.Param1,
		UpToSignature:      upToSig,
		UpToVerifyData:     upToVerify,
	}, nil
}
