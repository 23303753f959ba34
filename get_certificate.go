package spdm

import (
	"context"
	"crypto/x509"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// CertificateChainInfo is returned by GetCertificate on success.
type CertificateChainInfo struct {
	SlotID   uint8
	RootHash []byte
	Chain    []*x509.Certificate
}

// GetCertificate retrieves a certificate chain for slotID in a
// caller-controlled chunked loop (spec.md §4.2.3): each request carries
// offset and length, the response carries portion_length and
// remainder_length, and the loop terminates when remainder_length==0.
// Every chunk's response bytes are appended to transcript B as they
// arrive. Once the full chain is assembled, its leaf is verified
// against CertPolicy. chunkSize bounds each request's requested length
// (the responder may return fewer bytes than requested, never more).
func (c *Connection) GetCertificate(ctx context.Context, slotID uint8, chunkSize uint16) (*CertificateChainInfo, error) {
	if err := c.requireState(AfterDigests, "GetCertificate"); err != nil {
		return nil, err
	}
	hashSize, err := HashSize(c.hashAlgo)
	if err != nil {
		return nil, err
	}

	tb := c.transcripts.get(TranscriptB)
	var full []byte
	offset := uint16(0)

	for {
		reqBytes := wire.GetCertificateRequest{
			SPDMVersion: c.selectedVersion,
			SlotID:      slotID,
			Offset:      offset,
			Length:      chunkSize,
		}.Encode()

		respBytes, r, err := c.roundTrip(ctx, tb, reqBytes, wire.Certificate, wire.GetCertificate)
		if err != nil {
			return nil, err
		}

		cr, err := wire.DecodeCertificateResponse(respBytes)
		if err != nil {
			r.Rollback()
			return nil, wrapError(DeviceError, "GetCertificate", "malformed CERTIFICATE response", err)
		}

		r.Commit()
		tb.Append(respBytes).Commit()

		full = append(full, cr.CertChain...)
		offset += cr.PortionLength
		if cr.RemainderLength == 0 {
			break
		}
	}

	if len(full) < 4+hashSize {
		return nil, newError(DeviceError, "GetCertificate", "assembled certificate chain shorter than its fixed header")
	}
	rootHash := append([]byte{}, full[4:4+hashSize]...)
	chain, err := x509.ParseCertificates(full[4+hashSize:])
	if err != nil {
		return nil, wrapError(DeviceError, "GetCertificate", "failed to parse certificate chain DER", err)
	}
	if len(chain) == 0 {
		return nil, newError(DeviceError, "GetCertificate", "certificate chain contained no certificates")
	}

	if c.certPolicy == nil {
		return nil, newError(Unsupported, "GetCertificate", "no CertPolicy configured")
	}
	ok, err := c.certPolicy.VerifyChain(chain[0], chain[1:], slotID)
	if err != nil {
		return nil, wrapError(SecurityViolation, "GetCertificate", "certificate chain verification failed", err)
	}
	if !ok {
		return nil, newError(SecurityViolation, "GetCertificate", "certificate chain did not verify against the configured root of trust")
	}

	c.peerCertificates[slotID] = chain
	c.state = AfterCertificate

	return &CertificateChainInfo{SlotID: slotID, RootHash: rootHash, Chain: chain}, nil
}
