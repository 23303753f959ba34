package spdm

import (
	"context"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// KeyExchangeInfo is returned by KeyExchange on success.
type KeyExchangeInfo struct {
	Session            *Session
	HeartbeatPeriod    uint8
	MeasurementSummary []byte
	// MutAuthRequested is wire.KeyExchangeResponse's mut_auth_requested
	// bits (spec.md §4.2.7); a caller that sees MutAuthRequested != 0
	// must serve the responder's encapsulated requests via
	// ProcessEncapsulatedRequests once the session is established.
	MutAuthRequested uint8
}

// ecdhCurve maps a negotiated DHE group to a crypto/ecdh curve.
func ecdhCurve(alg DHEAlgorithm) (ecdh.Curve, error) {
	switch alg {
	case DHESECP256R1:
		return ecdh.P256(), nil
	case DHESECP384R1:
		return ecdh.P384(), nil
	case DHEX25519:
		return ecdh.X25519(), nil
	default:
		return nil, newError(Unsupported, "ecdhCurve", "DHE group has no default provider")
	}
}

// dhePublicKeyToWire converts a crypto/ecdh public key to SPDM's
// on-wire DHE exchange-data encoding. For the NIST curves, crypto/ecdh's
// Bytes() returns the SEC1 uncompressed-point form (a 0x04 prefix
// followed by the X and Y coordinates), while SPDM's exchange_data
// field carries only the concatenated X||Y coordinates (DHEPublicKeySize
// in algorithms.go: 64/96 bytes for P256/P384, not 65/97) — the prefix
// byte is stripped. X25519 has no such prefix and is passed through
// unchanged.
func dhePublicKeyToWire(alg DHEAlgorithm, pub *ecdh.PublicKey) []byte {
	b := pub.Bytes()
	switch alg {
	case DHESECP256R1, DHESECP384R1:
		return b[1:]
	default:
		return b
	}
}

// wireToDHEPublicKey is the inverse of dhePublicKeyToWire: it restores
// the SEC1 prefix crypto/ecdh expects before parsing a NIST-curve peer
// public key read off the wire.
func wireToDHEPublicKey(curve ecdh.Curve, alg DHEAlgorithm, data []byte) (*ecdh.PublicKey, error) {
	switch alg {
	case DHESECP256R1, DHESECP384R1:
		prefixed := make([]byte, 1+len(data))
		prefixed[0] = 0x04
		copy(prefixed[1:], data)
		return curve.NewPublicKey(prefixed)
	default:
		return curve.NewPublicKey(data)
	}
}

// KeyExchange issues KEY_EXCHANGE, derives TH1 = hash(A1 ∥ B ∥
// KE_request ∥ KE_response_up_to_sig), unconditionally verifies the
// responder's signature over TH1 and its ResponderVerifyData HMAC, and
// derives handshake keys for a new Session (spec.md §4.2.4). slotID ==
// 0xFF means "raw public key, no certificate" — in that case (and for
// any slot GetCertificate hasn't populated) the caller must have
// provisioned a key via SetPeerRawPublicKey, or KeyExchange fails
// Unsupported rather than skipping verification; measurementHashType
// governs whether a measurement summary is included, mirroring
// Challenge.
func (c *Connection) KeyExchange(ctx context.Context, slotID uint8, measurementHashType uint8) (*KeyExchangeInfo, error) {
	if err := c.requireState(AfterNegotiateAlgorithms, "KeyExchange"); err != nil {
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
	dheSize, err := DHEPublicKeySize(c.dheAlgo)
	if err != nil {
		return nil, err
	}
	curve, err := ecdhCurve(c.dheAlgo)
	if err != nil {
		return nil, err
	}

	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, wrapError(DeviceError, "KeyExchange", "failed to generate ephemeral DHE key", err)
	}

	var nonce [wire.NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, wrapError(DeviceError, "KeyExchange", "failed to generate requester nonce", err)
	}

	session := c.registerSession(SessionTypeMutualAuth)

	reqBytes := wire.KeyExchangeRequest{
		SPDMVersion:         c.selectedVersion,
		MeasurementHashType: measurementHashType,
		SlotID:              slotID,
		RandomNonce:         nonce,
		ExchangeData:        dhePublicKeyToWire(c.dheAlgo, priv.PublicKey()),
	}.Encode()

	tempTB := &TranscriptBuffer{}
	respBytes, r, err := c.roundTrip(ctx, tempTB, reqBytes, wire.KeyExchangeRsp, wire.KeyExchange)
	if err != nil {
		delete(c.sessions, session.ID)
		return nil, err
	}

	hasMeasurementSummary := measurementHashType != 0
	ker, err := wire.DecodeKeyExchangeResponse(respBytes, dheSize, hashSize, sigSize, hasMeasurementSummary)
	if err != nil {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, wrapError(DeviceError, "KeyExchange", "malformed KEY_EXCHANGE_RSP response", err)
	}

	peerPub, err := wireToDHEPublicKey(curve, c.dheAlgo, ker.ExchangeData)
	if err != nil {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, wrapError(DeviceError, "KeyExchange", "invalid responder DHE public key", err)
	}
	sharedSecret, err := priv.ECDH(peerPub)
	if err != nil {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, wrapError(SecurityViolation, "KeyExchange", "ECDH shared-secret computation failed", err)
	}

	hasher, err := c.crypto.Hasher(c.hashAlgo)
	if err != nil {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, err
	}
	prefix := c.combinedTranscript(TranscriptA1, TranscriptB)
	th1Input := append(append(append([]byte{}, prefix...), reqBytes...), ker.UpToSignature...)
	h := hasher()
	h.Write(th1Input)
	th1 := h.Sum(nil)

	pub, err := c.resolvePeerPublicKey(slotID)
	if err != nil {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, err
	}
	if err := c.crypto.VerifySignature(c.asymAlgo, pub, th1, ker.Signature); err != nil {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, err
	}

	// ResponderVerifyData is an HMAC over the transcript through the
	// signature, keyed by a handshake secret derived from the shared
	// secret and TH1 — the same labelled-HKDF shape used for the session
	// keys themselves (see hkdfExpandLabel in session.go), simplified here
	// to a single verify-data key rather than TLS1.3's separate finished-key
	// derivation (documented as a deliberate simplification in DESIGN.md).
	verifyKey, err := hkdfExpandLabel(c.crypto, c.hashAlgo, sharedSecret, "key exchange verify", th1, hashSize)
	if err != nil {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, err
	}
	thForVerify := append(append([]byte{}, th1Input...), ker.Signature...)
	expectedVerify, err := c.crypto.HMAC(c.hashAlgo, verifyKey, thForVerify)
	if err != nil {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, err
	}
	if !hmac.Equal(expectedVerify, ker.ResponderVerifyData) {
		r.Rollback()
		delete(c.sessions, session.ID)
		return nil, newError(SecurityViolation, "KeyExchange", "ResponderVerifyData HMAC verification failed")
	}

	r.Commit()
	session.transcriptTH.Append(reqBytes).Commit()
	session.transcriptTH.Append(respBytes).Commit()

	session.sharedSecret = sharedSecret
	if err := session.deriveHandshakeKeys(sharedSecret, th1); err != nil {
		delete(c.sessions, session.ID)
		return nil, err
	}
	session.HeartbeatPeriod = uint16(ker.HeartbeatPeriod)

	return &KeyExchangeInfo{
		Session:            session,
		HeartbeatPeriod:    ker.HeartbeatPeriod,
		MeasurementSummary: ker.MeasurementSummary,
		MutAuthRequested:   ker.MutAuthRequested,
	}, nil
}
