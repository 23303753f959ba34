package spdm

import (
	"context"
	"crypto/hmac"
	"crypto/rand"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// PskExchangeInfo is returned by PskExchange on success.
type PskExchangeInfo struct {
	Session            *Session
	HeartbeatPeriod    uint8
	MeasurementSummary []byte
}

// PskExchange issues PSK_EXCHANGE (spec.md §4.2.5): the same TH1-bound
// handshake shape as KeyExchange, without an asymmetric signature — the
// shared secret is psk (the caller's copy of the key identified by
// pskHint) rather than a DH output.
func (c *Connection) PskExchange(ctx context.Context, pskHint, psk []byte, measurementHashType uint8) (*PskExchangeInfo, error) {
	if err := c.requireState(AfterNegotiateAlgorithms, "PskExchange"); err != nil {
		return nil, err
	}
	hashSize, err := HashSize(c.hashAlgo)
	if err != nil {
		return nil, err
	}

	requesterContext := make([]byte, wire.NonceSize)
	if _, err := rand.Read(requesterContext); err != nil {
		return nil, wrapError(DeviceError, "PskExchange", "failed to generate requester context", err)
	}

	session := c.registerSession(SessionTypePSK)

	reqBytes := wire.PskExchangeRequest{
		SPDMVersion:         c.selectedVersion,
		MeasurementHashType: measurementHashType,
		PSKHint:             pskHint,
		RequesterContext:    requesterContext,
	}.Encode()

	tempTB := &TranscriptBuffer{}
	respBytes, r, err := c.roundTrip(ctx, tempTB, reqBytes, wire.PskExchangeRsp, wire.PskExchange)
	if err != nil {
		delete(c.sessions, session.ID)
		return nil, err
	}

	hasMeasurementSummary := measurementHashType != 0
	per, err := wire.DecodePskExchangeResponse(respBytes, hashSize, hasMeasurementSummary)
	if err != nil {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, wrapError(DeviceError, "PskExchange", "malformed PSK_EXCHANGE_RSP response", err)
	}

	hasher, err := c.crypto.Hasher(c.hashAlgo)
	if err != nil {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, err
	}
	prefix := c.combinedTranscript(TranscriptA1, TranscriptB)
	th1Input := append(append(append([]byte{}, prefix...), reqBytes...), per.UpToVerifyData...)
	h := hasher()
	h.Write(th1Input)
	th1 := h.Sum(nil)

	verifyKey, err := hkdfExpandLabel(c.crypto, c.hashAlgo, psk, "psk exchange verify", th1, hashSize)
	if err != nil {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, err
	}
	expectedVerify, err := c.crypto.HMAC(c.hashAlgo, verifyKey, th1Input)
	if err != nil {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, err
	}
	if !hmac.Equal(expectedVerify, per.ResponderVerifyData) {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, newError(SecurityViolation, "PskExchange", "ResponderVerifyData HMAC verification failed")
	}

	r.Commit()
	session.transcriptTH.Append(reqBytes).Commit()
	session.transcriptTH.Append(respBytes).Commit()

	session.sharedSecret = psk
	if err := session.deriveHandshakeKeys(psk, th1); err != nil {
		delete(c.sessions, session.ID)
		return nil, err
	}
	session.HeartbeatPeriod = uint16(per.HeartbeatPeriod)

	return &PskExchangeInfo{
		Session:            session,
		HeartbeatPeriod:    per.HeartbeatPeriod,
		MeasurementSummary: per.MeasurementSummary,
	}, nil
}
