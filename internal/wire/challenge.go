package wire

import "fmt"

const NonceSize = 32

// ChallengeAuthBasicMutAuthReq is CHALLENGE_AUTH Header.Param1 bit[7]:
// the responder is requesting basic mutual authentication (spec.md
// §4.2.7), mirroring the original's mut_auth_requested parameter.
const ChallengeAuthBasicMutAuthReq = 1 << 7

// ChallengeRequest is the CHALLENGE request: param1 is the slot id
// (0xFF for "raw public key, no certificate" per spec.md §4.2.4),
// param2 is the requested measurement-summary-hash type, followed by a
// 32-byte requester nonce.
type ChallengeRequest struct {
	SPDMVersion           uint8
	SlotID                uint8
	MeasurementSummaryType uint8
	Nonce                 [NonceSize]byte
}

func (r ChallengeRequest) Encode() []byte {
	buf := make([]byte, HeaderSize+NonceSize)
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: Challenge, Param1: r.SlotID, Param2: r.MeasurementSummaryType}.Encode(buf)
	copy(buf[4:], r.Nonce[:])
	return buf
}

// ChallengeAuthResponse is the decoded CHALLENGE_AUTH body: a cert-chain
// hash, the responder's nonce, an optional measurement-summary hash, an
// opaque-data blob, and a trailing signature covering the transcript up
// to (but not including) the signature itself.
type ChallengeAuthResponse struct {
	Header               Header
	CertChainHash        []byte
	Nonce                [NonceSize]byte
	MeasurementSummaryHash []byte
	OpaqueData           []byte
	Signature            []byte
	// SignedPortion is the full message, header through opaque data,
	// that the signature is computed over when concatenated after the
	// A1, B and CHALLENGE request transcript bytes per spec.md §4.2.4.
	SignedPortion []byte
	// BasicMutAuthRequested is Header.Param1's ChallengeAuthBasicMutAuthReq bit.
	BasicMutAuthRequested bool
}

// DecodeChallengeAuthResponse decodes a CHALLENGE_AUTH message. hashSize
// is the negotiated hash digest size (for the cert-chain hash and the
// optional measurement-summary hash, when present); sigSize is the
// negotiated asymmetric signature size.
func DecodeChallengeAuthResponse(buf []byte, hashSize, sigSize int, hasMeasurementSummary bool) (*ChallengeAuthResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != ChallengeAuth {
		return nil, fmt.Errorf("wire: expected CHALLENGE_AUTH (0x%02x), got 0x%02x", ChallengeAuth, h.RequestResponseCode)
	}
	rest := buf[HeaderSize:]
	need := hashSize + NonceSize
	if len(rest) < need {
		return nil, fmt.Errorf("wire: short CHALLENGE_AUTH body: need %d, got %d", need, len(rest))
	}
	certHash := append([]byte{}, rest[:hashSize]...)
	var nonce [NonceSize]byte
	copy(nonce[:], rest[hashSize:hashSize+NonceSize])
	off := hashSize + NonceSize

	var measSummary []byte
	if hasMeasurementSummary {
		if len(rest) < off+hashSize {
			return nil, fmt.Errorf("wire: short CHALLENGE_AUTH measurement summary")
		}
		measSummary = append([]byte{}, rest[off:off+hashSize]...)
		off += hashSize
	}

	if len(rest) < off+2 {
		return nil, fmt.Errorf("wire: short CHALLENGE_AUTH opaque length")
	}
	opaqueLen := int(getU16(rest[off : off+2]))
	off += 2
	if len(rest) < off+opaqueLen+sigSize {
		return nil, fmt.Errorf("wire: short CHALLENGE_AUTH body for opaque+signature")
	}
	opaque := append([]byte{}, rest[off:off+opaqueLen]...)
	off += opaqueLen
	sig := append([]byte{}, rest[off:off+sigSize]...)
	off += sigSize

	return &ChallengeAuthResponse{
		Header:               h,
		CertChainHash:        certHash,
		Nonce:                nonce,
		MeasurementSummaryHash: measSummary,
		OpaqueData:           opaque,
		Signature:            sig,
		SignedPortion:        buf[:len(buf)-sigSize],
		BasicMutAuthRequested: h.Param1&ChallengeAuthBasicMutAuthReq != 0,
	}, nil
}
