package spdm

import (
	"encoding/binary"
	"fmt"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// SessionState is the session lifecycle enum (spec.md §3.3).
type SessionState int

const (
	SessionNotStarted SessionState = iota
	SessionHandshaking
	SessionEstablishedApplication
	SessionTerminating
)

func (s SessionState) String() string {
	switch s {
	case SessionNotStarted:
		return "NotStarted"
	case SessionHandshaking:
		return "Handshaking"
	case SessionEstablishedApplication:
		return "EstablishedApplication"
	case SessionTerminating:
		return "Terminating"
	default:
		return "Unknown"
	}
}

// SessionType distinguishes a KeyExchange-established session from a
// PSK one (spec.md §3.3); the key schedule's input secret differs but
// the derived key shape does not.
type SessionType int

const (
	SessionTypeMutualAuth SessionType = iota
	SessionTypePSK
)

// directionKeys bundles one direction's (request or response) current
// encryption key, salt, and sequence number for one phase (handshake or
// application), per spec.md §3.3.
type directionKeys struct {
	key []byte
	salt []byte
	seq  uint64
}

// nonce builds the AEAD nonce for the current sequence number by
// XORing the big-endian sequence number into the low 8 bytes of salt,
// the construction go-smb2's session.go uses for its AES-GCM/CCM
// transform headers.
func (d *directionKeys) nonce() []byte {
	n := make([]byte, len(d.salt))
	copy(n, d.salt)
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], d.seq)
	off := len(n) - 8
	for i := 0; i < 8; i++ {
		n[off+i] ^= seqBytes[i]
	}
	return n
}

// Session is a negotiated SPDM secure session (spec.md §3.3). It is
// created by a successful KeyExchange or PskExchange and owned
// exclusively by its Connection (spec.md §3.4); like the connection
// itself it carries no internal synchronization (spec.md §5).
type Session struct {
	ID              uint32
	State           SessionState
	Type            SessionType
	HeartbeatPeriod uint16

	hashAlgo HashAlgorithm
	aeadAlgo AEADAlgorithm
	crypto   CryptoProvider

	reqHandshake, rspHandshake     directionKeys
	reqApplication, rspApplication directionKeys

	// sharedSecret is the DH shared secret (KeyExchange) or the raw PSK
	// (PskExchange) this session's key schedule is rooted in; Finish and
	// PskFinish need it again to derive the application-phase keys from
	// TH3.
	sharedSecret []byte

	// transcriptTH accumulates the handshake transcript hash input
	// (TH1/TH2/TH3, spec.md §3.3/§4.2.4) for this session. Distinct from
	// the connection-level A1/B/C transcripts because a connection may
	// host multiple sessions (spec.md §9 open question), each with its
	// own handshake binding.
	transcriptTH TranscriptBuffer
}

func newSession(id uint32, typ SessionType, crypto CryptoProvider, hashAlgo HashAlgorithm, aeadAlgo AEADAlgorithm) *Session {
	return &Session{
		ID:       id,
		State:    SessionNotStarted,
		Type:     typ,
		hashAlgo: hashAlgo,
		aeadAlgo: aeadAlgo,
		crypto:   crypto,
	}
}

// aeadKeySaltSize reports the key and salt sizes for alg, mirroring
// libspdm's AEAD_KEY_SIZE/AEAD_IV_SIZE tables.
func aeadKeySaltSize(alg AEADAlgorithm) (keySize, saltSize int, err error) {
	switch alg {
	case AEADAESGCM128:
		return 16, 12, nil
	case AEADAESGCM256:
		return 32, 12, nil
	default:
		return 0, 0, newError(Unsupported, "aeadKeySaltSize", fmt.Sprintf("AEAD algorithm %v has no default key schedule", alg))
	}
}

// hkdfExpandLabel implements the TH-keyed labelled expansion spec.md
// §4.2.4 calls for ("derives handshake keys via HKDF... TH1 =
// hash(...)"), following the same label-prefixed HKDF-Expand shape
// avahowell-occlude's deriveHKDFKeys uses, adapted to SPDM's
// "derived_key1"/"derived_key2"/"finished" style labels instead of a
// PAKE protocol's.
func hkdfExpandLabel(crypto CryptoProvider, hashAlgo HashAlgorithm, secret []byte, label string, context []byte, length int) ([]byte, error) {
	info := append([]byte("spdm "+label+" "), context...)
	return crypto.HKDFExpand(hashAlgo, secret, info, length)
}

// deriveHandshakeKeys derives the four handshake-phase direction keys
// from the shared secret (DH output for KeyExchange, the PSK itself for
// PskExchange) and TH1, per spec.md §4.2.4/§4.2.5.
func (s *Session) deriveHandshakeKeys(sharedSecret, th1 []byte) error {
	keySize, saltSize, err := aeadKeySaltSize(s.aeadAlgo)
	if err != nil {
		return err
	}
	reqSecret, err := hkdfExpandLabel(s.crypto, s.hashAlgo, sharedSecret, "req hs secret", th1, keySize+saltSize)
	if err != nil {
		return err
	}
	rspSecret, err := hkdfExpandLabel(s.crypto, s.hashAlgo, sharedSecret, "rsp hs secret", th1, keySize+saltSize)
	if err != nil {
		return err
	}
	s.reqHandshake = directionKeys{key: reqSecret[:keySize], salt: reqSecret[keySize:]}
	s.rspHandshake = directionKeys{key: rspSecret[:keySize], salt: rspSecret[keySize:]}
	s.State = SessionHandshaking
	return nil
}

// deriveApplicationKeys derives the application-phase direction keys
// from TH3 once Finish/PskFinish has verified the handshake, per
// spec.md §4.2.4.
func (s *Session) deriveApplicationKeys(sharedSecret, th3 []byte) error {
	keySize, saltSize, err := aeadKeySaltSize(s.aeadAlgo)
	if err != nil {
		return err
	}
	reqSecret, err := hkdfExpandLabel(s.crypto, s.hashAlgo, sharedSecret, "req app secret", th3, keySize+saltSize)
	if err != nil {
		return err
	}
	rspSecret, err := hkdfExpandLabel(s.crypto, s.hashAlgo, sharedSecret, "rsp app secret", th3, keySize+saltSize)
	if err != nil {
		return err
	}
	s.reqApplication = directionKeys{key: reqSecret[:keySize], salt: reqSecret[keySize:]}
	s.rspApplication = directionKeys{key: rspSecret[:keySize], salt: rspSecret[keySize:]}
	s.State = SessionEstablishedApplication
	return nil
}

// directionFor selects the request- or response-direction key set for
// the session's current phase.
func (s *Session) directionFor(requestDirection bool) *directionKeys {
	handshake := s.State == SessionHandshaking
	switch {
	case requestDirection && handshake:
		return &s.reqHandshake
	case requestDirection && !handshake:
		return &s.reqApplication
	case !requestDirection && handshake:
		return &s.rspHandshake
	default:
		return &s.rspApplication
	}
}

// EncodeSecured wraps plaintext as a session-secured application
// message (spec.md §4.4): AEAD-seal under the request-direction key for
// the session's current phase, advancing its sequence number exactly
// once (spec.md §8 invariant 4), and frame it with a SecuredHeader.
func (s *Session) EncodeSecured(plaintext []byte) ([]byte, error) {
	if s.State == SessionTerminating || s.State == SessionNotStarted {
		return nil, newError(SecurityViolation, "EncodeSecured", "session is not in an encryptable state")
	}
	dir := s.directionFor(true)
	sealed, err := s.crypto.AEADSeal(s.aeadAlgo, dir.key, dir.nonce(), plaintext, nil)
	if err != nil {
		return nil, err
	}
	dir.seq++
	buf := make([]byte, wire.SecuredHeaderSize+len(sealed))
	wire.SecuredHeader{SessionID: s.ID, Length: uint16(len(sealed))}.Encode(buf)
	copy(buf[wire.SecuredHeaderSize:], sealed)
	return buf, nil
}

// DecodeSecured unwraps a session-secured application message received
// from the responder, verifying its AEAD tag under the
// response-direction key and advancing that direction's sequence
// number. An AEAD failure is fatal and the caller must destroy the
// session (spec.md §4.4).
func (s *Session) DecodeSecured(buf []byte) ([]byte, error) {
	if s.State == SessionTerminating || s.State == SessionNotStarted {
		return nil, newError(SecurityViolation, "DecodeSecured", "session is not in a decryptable state")
	}
	hdr, err := wire.DecodeSecuredHeader(buf)
	if err != nil {
		return nil, wrapError(DeviceError, "DecodeSecured", "malformed secured message header", err)
	}
	if hdr.SessionID != s.ID {
		return nil, newError(DeviceError, "DecodeSecured", "secured message session id mismatch")
	}
	rest := buf[wire.SecuredHeaderSize:]
	if len(rest) < int(hdr.Length) {
		return nil, newError(DeviceError, "DecodeSecured", "secured message shorter than declared length")
	}
	dir := s.directionFor(false)
	pt, err := s.crypto.AEADOpen(s.aeadAlgo, dir.key, dir.nonce(), rest[:hdr.Length], nil)
	if err != nil {
		s.State = SessionTerminating
		return nil, err
	}
	dir.seq++
	return pt, nil
}

// rotateApplicationKey implements the KEY_UPDATE key-derivation step
// (spec.md §4.2.8): the direction's next key and salt are derived from
// its current key alone (not from TH3 or the shared secret again),
// following the one-way ratchet libspdm's spdm_compute_key_update uses,
// and its sequence number resets to zero for the new key's lifetime.
func (s *Session) rotateApplicationKey(requestDirection bool) error {
	if s.State != SessionEstablishedApplication {
		return newError(Unsupported, "rotateApplicationKey", "key update is only valid once application keys are established")
	}
	keySize, saltSize, err := aeadKeySaltSize(s.aeadAlgo)
	if err != nil {
		return err
	}
	dir := s.directionFor(requestDirection)
	next, err := hkdfExpandLabel(s.crypto, s.hashAlgo, dir.key, "key update", nil, keySize+saltSize)
	if err != nil {
		return err
	}
	dir.key = next[:keySize]
	dir.salt = next[keySize:]
	dir.seq = 0
	return nil
}

// RequestSequenceNumber reports the request-direction sequence number
// for the session's current phase, the count of secured messages
// successfully sent on it (spec.md §8 invariant 4).
func (s *Session) RequestSequenceNumber() uint64 {
	return s.directionFor(true).seq
}

// terminate marks the session Terminating; any subsequent use of its
// keys fails with a SecurityViolation Error whose message names
// SESSION_INVALID (spec.md §4.2.6, §8 round-trip law).
func (s *Session) terminate() {
	s.State = SessionTerminating
}

// checkUsable returns a SecurityViolation error if the session has been
// torn down, per spec.md §8: "EndSession(s) followed by any operation
// using s fails with SESSION_INVALID."
func (s *Session) checkUsable() error {
	if s.State == SessionTerminating {
		return newError(SecurityViolation, "checkUsable", "session is terminated (SESSION_INVALID)")
	}
	return nil
}
