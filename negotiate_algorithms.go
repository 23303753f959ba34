package spdm

import (
	"context"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// AlgorithmsInfo is returned by NegotiateAlgorithms on success: the
// single algorithm the responder selected from each category.
type AlgorithmsInfo struct {
	Hash        HashAlgorithm
	Asym        AsymAlgo
	DHE         DHEAlgorithm
	AEAD        AEADAlgorithm
	KeySchedule KeySchedule
}

// NegotiateAlgorithms issues NEGOTIATE_ALGORITHMS (spec.md §4.2.2).
// Floor: AfterCapabilities. Once this succeeds, transcript hashes can
// be computed (A1 now spans GET_VERSION through ALGORITHMS), enabling
// Challenge and KeyExchange.
//
// This module models NEGOTIATE_ALGORITHMS as a single-selection
// bitmask exchange rather than the full DMTF priority-ranked
// ReqAlgStruct extension list: spec.md §3.1's data model only calls for
// "Selected hash, measurement-hash, signature, key-exchange, AEAD, key-
// schedule" on the connection, not a priority-negotiation wire
// structure, so the simplification is deliberate (see DESIGN.md).
func (c *Connection) NegotiateAlgorithms(ctx context.Context) (*AlgorithmsInfo, error) {
	if err := c.requireState(AfterCapabilities, "NegotiateAlgorithms"); err != nil {
		return nil, err
	}

	tb := c.transcripts.get(TranscriptA1)
	reqBytes := wire.NegotiateAlgorithmsRequest{
		SPDMVersion:   c.selectedVersion,
		BaseAsymAlgo:  c.cfg.SupportedAsym,
		BaseHashAlgo:  c.cfg.SupportedHash,
		DHENamedGroup: c.cfg.SupportedDHE,
		AEADCipher:    c.cfg.SupportedAEAD,
		KeySchedule:   c.cfg.SupportedKeySchedule,
	}.Encode()

	respBytes, r, err := c.roundTrip(ctx, tb, reqBytes, wire.Algorithms, wire.NegotiateAlgorithms)
	if err != nil {
		return nil, err
	}

	ar, err := wire.DecodeAlgorithmsResponse(respBytes)
	if err != nil {
		r.Rollback()
		return nil, wrapError(DeviceError, "NegotiateAlgorithms", "malformed ALGORITHMS response", err)
	}
	if !wire.SingleBit(uint32(ar.BaseHashSel)) || !wire.SingleBit(uint32(ar.BaseAsymSel)) ||
		!wire.SingleBit(uint32(ar.DHESel)) || !wire.SingleBit(uint32(ar.AEADSel)) {
		r.Rollback()
		return nil, newError(DeviceError, "NegotiateAlgorithms", "ALGORITHMS response did not select a single concrete algorithm per category")
	}

	r.Commit()
	tb.Append(respBytes).Commit()

	c.hashAlgo = ar.BaseHashSel
	c.asymAlgo = ar.BaseAsymSel
	c.dheAlgo = ar.DHESel
	c.aeadAlgo = ar.AEADSel
	c.keySchedule = ar.KeyScheduleSel
	c.state = AfterNegotiateAlgorithms

	return &AlgorithmsInfo{
		Hash:        ar.BaseHashSel,
		Asym:        ar.BaseAsymSel,
		DHE:         ar.DHESel,
		AEAD:        ar.AEADSel,
		KeySchedule: ar.KeyScheduleSel,
	}, nil
}
