package spdm

import (
	"context"
	"crypto/rand"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// ChallengeInfo is returned by Challenge on success.
type ChallengeInfo struct {
	Nonce                  [wire.NonceSize]byte
	MeasurementSummaryHash []byte
	// MutAuthRequested reports CHALLENGE_AUTH's basic_mut_auth_req bit
	// (spec.md §4.2.7); when true the caller must serve the responder's
	// encapsulated requests via ProcessEncapsulatedRequests.
	MutAuthRequested bool
}

// Challenge issues CHALLENGE and unconditionally verifies the
// responder's signature over A1 ∥ B ∥ C, where C is the CHALLENGE
// request followed by the CHALLENGE_AUTH response up to its signature
// (spec.md §4.2.4). slotID == 0xFF means "raw public key, no certificate"
// (spec.md §4.2.4) — in that case (and for any slot GetCertificate
// hasn't populated) the caller must have provisioned a key via
// SetPeerRawPublicKey, or Challenge fails Unsupported rather than
// skipping verification.
func (c *Connection) Challenge(ctx context.Context, slotID uint8, measurementSummaryType uint8) (*ChallengeInfo, error) {
	if err := c.requireState(AfterCertificate, "Challenge"); err != nil {
		return nil, err
	}
	hashSize, err := HashSize(c.hashAlgo)
	if err != nil {
		return nil, err
	}
	sigSize, err := SignatureSize(c.asymAlgo)
	if err != nil {
		return nil, err
	}

	var nonce [wire.NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, wrapError(DeviceError, "Challenge", "failed to generate requester nonce", err)
	}

	tb := c.transcripts.get(TranscriptC)
	reqBytes := wire.ChallengeRequest{
		SPDMVersion:            c.selectedVersion,
		SlotID:                 slotID,
		MeasurementSummaryType: measurementSummaryType,
		Nonce:                  nonce,
	}.Encode()

	respBytes, r, err := c.roundTrip(ctx, tb, reqBytes, wire.ChallengeAuth, wire.Challenge)
	if err != nil {
		return nil, err
	}

	hasMeasurementSummary := measurementSummaryType != 0
	car, err := wire.DecodeChallengeAuthResponse(respBytes, hashSize, sigSize, hasMeasurementSummary)
	if err != nil {
		r.Rollback()
		return nil, wrapError(DeviceError, "Challenge", "malformed CHALLENGE_AUTH response", err)
	}

	pub, err := c.resolvePeerPublicKey(slotID)
	if err != nil {
		r.Rollback()
		return nil, err
	}

	rr := tb.Append(car.SignedPortion)
	message := c.combinedTranscript(TranscriptA1, TranscriptB, TranscriptC)
	if err := c.crypto.VerifySignature(c.asymAlgo, pub, message, car.Signature); err != nil {
		rr.Rollback()
		r.Rollback()
		return nil, err
	}
	rr.Commit()
	r.Commit()

	c.state = AfterAuthenticate
	return &ChallengeInfo{
		Nonce:                  car.Nonce,
		MeasurementSummaryHash: car.MeasurementSummaryHash,
		MutAuthRequested:       car.BasicMutAuthRequested,
	}, nil
}

// combinedTranscript concatenates the current bytes of each named
// transcript, in order, for use as a signature or HMAC input (spec.md
// §4.2.4's "hash(A1 ∥ B ∥ C...)" notation).
func (c *Connection) combinedTranscript(ids ...TranscriptID) []byte {
	var out []byte
	for _, id := range ids {
		out = append(out, c.transcripts.get(id).Bytes()...)
	}
	return out
}
