package spdm

import (
	"context"
	"crypto/hmac"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// FinishInfo is returned by Finish on success.
type FinishInfo struct{}

// Finish sends RequesterVerifyData (an HMAC over TH2, which includes
// the Finish request up to its own HMAC field), receives
// ResponderVerifyData, and on successful verification derives
// application-phase keys from TH3 (spec.md §4.2.4). slotID must match
// the slot used for the preceding KeyExchange when mutual auth requires
// a requester signature; this module's default path does not include a
// requester signature in Finish (SignatureIncluded is always false),
// since challenge-based mutual auth is handled separately by Challenge.
func (c *Connection) Finish(ctx context.Context, session *Session, slotID uint8) (*FinishInfo, error) {
	if err := session.checkUsable(); err != nil {
		return nil, err
	}
	hashSize, err := HashSize(c.hashAlgo)
	if err != nil {
		return nil, err
	}

	reqHeaderBytes := wire.FinishRequest{SPDMVersion: c.selectedVersion, SlotID: slotID}.Encode()
	th2Input := append(append([]byte{}, session.transcriptTH.Bytes()...), reqHeaderBytes...)

	hasher, err := c.crypto.Hasher(c.hashAlgo)
	if err != nil {
		return nil, err
	}
	h := hasher()
	h.Write(th2Input)
	th2 := h.Sum(nil)

	verifyKeyReq, err := hkdfExpandLabel(c.crypto, c.hashAlgo, session.sharedSecret, "finish req verify", th2, hashSize)
	if err != nil {
		return nil, err
	}
	requesterVerifyData, err := c.crypto.HMAC(c.hashAlgo, verifyKeyReq, th2Input)
	if err != nil {
		return nil, err
	}

	reqBytes := wire.FinishRequest{
		SPDMVersion: c.selectedVersion,
		SlotID:      slotID,
		VerifyData:  requesterVerifyData,
	}.Encode()

	tempTB := &TranscriptBuffer{}
	respBytes, r, err := c.roundTrip(ctx, tempTB, reqBytes, wire.FinishRsp, wire.Finish)
	if err != nil {
		return nil, err
	}

	fr, err := wire.DecodeFinishResponse(respBytes, hashSize, false)
	if err != nil {
		r.Rollback()
		return nil, wrapError(DeviceError, "Finish", "malformed FINISH_RSP response", err)
	}

	th2FullInput := append(append([]byte{}, th2Input...), requesterVerifyData...)
	verifyKeyRsp, err := hkdfExpandLabel(c.crypto, c.hashAlgo, session.sharedSecret, "finish rsp verify", th2, hashSize)
	if err != nil {
		r.Rollback()
		return nil, err
	}
	expectedRspVerify, err := c.crypto.HMAC(c.hashAlgo, verifyKeyRsp, th2FullInput)
	if err != nil {
		r.Rollback()
		return nil, err
	}
	if !hmac.Equal(expectedRspVerify, fr.VerifyData) {
		r.Rollback()
		return nil, newError(SecurityViolation, "Finish", "ResponderVerifyData HMAC verification failed")
	}

	r.Commit()
	session.transcriptTH.Append(reqBytes).Commit()
	session.transcriptTH.Append(respBytes).Commit()

	h3 := hasher()
	h3.Write(session.transcriptTH.Bytes())
	th3 := h3.Sum(nil)

	if err := session.deriveApplicationKeys(session.sharedSecret, th3); err != nil {
		return nil, err
	}

	return &FinishInfo{}, nil
}
