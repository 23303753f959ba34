package wire

import "fmt"

// GetCertificateRequest is one chunk request in the chunked
// certificate-chain retrieval loop described in spec.md §4.2.3.
type GetCertificateRequest struct {
	SPDMVersion uint8
	SlotID      uint8
	Offset      uint16
	Length      uint16
}

func (r GetCertificateRequest) Encode() []byte {
	buf := make([]byte, HeaderSize+4)
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: GetCertificate, Param1: r.SlotID}.Encode(buf)
	putU16(buf[4:6], r.Offset)
	putU16(buf[6:8], r.Length)
	return buf
}

// CertificateResponse is one decoded chunk of CERTIFICATE: the portion
// returned this round, and the remaining byte count yet to be fetched.
// The caller loop (get_certificate.go) terminates when RemainderLength
// reaches zero.
type CertificateResponse struct {
	Header          Header
	PortionLength   uint16
	RemainderLength uint16
	CertChain       []byte
}

func DecodeCertificateResponse(buf []byte) (*CertificateResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != Certificate {
		return nil, fmt.Errorf("wire: expected CERTIFICATE (0x%02x), got 0x%02x", Certificate, h.RequestResponseCode)
	}
	rest := buf[HeaderSize:]
	if len(rest) < 4 {
		return nil, fmt.Errorf("wire: short CERTIFICATE body: %d bytes", len(rest))
	}
	portionLen := getU16(rest[0:2])
	remainderLen := getU16(rest[2:4])
	chain := rest[4:]
	if len(chain) < int(portionLen) {
		return nil, fmt.Errorf("wire: CERTIFICATE declares portion_length %d but only %d bytes follow", portionLen, len(chain))
	}
	return &CertificateResponse{
		Header:          h,
		PortionLength:   portionLen,
		RemainderLength: remainderLen,
		CertChain:       chain[:portionLen],
	}, nil
}
