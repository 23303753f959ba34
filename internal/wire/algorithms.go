package wire

import "fmt"

// Algorithm identifiers, one bit per option, as carried in the
// NEGOTIATE_ALGORITHMS request and ALGORITHMS response selection
// fields. These mirror libspdm's base_hash_algo / base_asym_algo /
// dhe_named_group / aead_cipher_suite / key_schedule bitmaps, trimmed to
// the algorithms this module's CryptoProvider can plausibly support.
type (
	HashAlgo   uint32
	AsymAlgo   uint32
	DHEAlgo    uint16
	AEADAlgo   uint16
	KeySchedule uint16
)

const (
	HashSHA256 HashAlgo = 1 << 0
	HashSHA384 HashAlgo = 1 << 1
	HashSHA512 HashAlgo = 1 << 2
	HashSM3    HashAlgo = 1 << 3 // named per original_source sm3.c; no default provider

	AsymRSASSA3072 AsymAlgo = 1 << 1
	AsymECDSAP256  AsymAlgo = 1 << 4
	AsymECDSAP384  AsymAlgo = 1 << 5
	AsymEdDSA25519 AsymAlgo = 1 << 9

	DHESECP256R1 DHEAlgo = 1 << 1
	DHESECP384R1 DHEAlgo = 1 << 2
	DHEX25519    DHEAlgo = 1 << 3

	AEADAES128GCM       AEADAlgo = 1 << 0
	AEADAES256GCM       AEADAlgo = 1 << 1
	AEADChaCha20Poly1305 AEADAlgo = 1 << 2 // named per original_source aead_chacha20_poly1305.c; no default provider

	KeyScheduleSPDM KeySchedule = 1 << 0
)

// NegotiateAlgorithmsRequest is the simplified NEGOTIATE_ALGORITHMS
// request body: the requester's measurement spec and its supported
// algorithm bitmaps.
type NegotiateAlgorithmsRequest struct {
	SPDMVersion   uint8
	MeasurementSpec uint8
	BaseAsymAlgo  AsymAlgo
	BaseHashAlgo  HashAlgo
	DHENamedGroup DHEAlgo
	AEADCipher    AEADAlgo
	KeySchedule   KeySchedule
}

func (r NegotiateAlgorithmsRequest) Encode() []byte {
	buf := make([]byte, HeaderSize+24)
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: NegotiateAlgorithms}.Encode(buf)
	buf[4] = r.MeasurementSpec
	buf[5] = 0
	putU32(buf[6:10], uint32(r.BaseAsymAlgo))
	putU32(buf[10:14], uint32(r.BaseHashAlgo))
	putU16(buf[14:16], uint16(r.DHENamedGroup))
	putU16(buf[16:18], uint16(r.AEADCipher))
	putU16(buf[18:20], uint16(r.KeySchedule))
	return buf
}

// AlgorithmsResponse is the decoded ALGORITHMS message: the single
// selected algorithm from each category.
type AlgorithmsResponse struct {
	Header        Header
	MeasurementSpec uint8
	BaseAsymSel   AsymAlgo
	BaseHashSel   HashAlgo
	DHESel        DHEAlgo
	AEADSel       AEADAlgo
	KeyScheduleSel KeySchedule
}

func DecodeAlgorithmsResponse(buf []byte) (*AlgorithmsResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != Algorithms {
		return nil, fmt.Errorf("wire: expected ALGORITHMS (0x%02x), got 0x%02x", Algorithms, h.RequestResponseCode)
	}
	rest := buf[HeaderSize:]
	if len(rest) < 16 {
		return nil, fmt.Errorf("wire: short ALGORITHMS body: %d bytes", len(rest))
	}
	return &AlgorithmsResponse{
		Header:         h,
		MeasurementSpec: rest[0],
		BaseAsymSel:    AsymAlgo(getU32(rest[2:6])),
		BaseHashSel:    HashAlgo(getU32(rest[6:10])),
		DHESel:         DHEAlgo(getU16(rest[10:12])),
		AEADSel:        AEADAlgo(getU16(rest[12:14])),
		KeyScheduleSel: KeySchedule(getU16(rest[14:16])),
	}, nil
}

// SingleBit reports whether exactly one bit is set, used to validate
// that the responder's ALGORITHMS response selected (not offered) a
// single concrete algorithm per category.
func SingleBit(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}
