package spdm

import (
	"context"
	"crypto/x509"
	"time"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// ConnectionState is the ordered connection state machine (spec.md
// §3.1). Transactions are only permitted when the connection's current
// state is at or beyond their prerequisite floor.
type ConnectionState int

const (
	NotStarted ConnectionState = iota
	AfterVersion
	AfterCapabilities
	AfterNegotiateAlgorithms
	AfterDigests
	AfterCertificate
	AfterAuthenticate
	Negotiated
)

func (s ConnectionState) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case AfterVersion:
		return "AfterVersion"
	case AfterCapabilities:
		return "AfterCapabilities"
	case AfterNegotiateAlgorithms:
		return "AfterNegotiateAlgorithms"
	case AfterDigests:
		return "AfterDigests"
	case AfterCertificate:
		return "AfterCertificate"
	case AfterAuthenticate:
		return "AfterAuthenticate"
	case Negotiated:
		return "Negotiated"
	default:
		return "Unknown"
	}
}

// Config configures a Connection, following the teacher's
// functional-struct-literal pattern (Negotiator/Dialer) rather than a
// CLI or environment-parsed configuration surface (spec.md §1 excludes
// CLI wrappers as a Non-goal).
type Config struct {
	// SupportedVersions is the requester's offered SPDM version set; the
	// order is not significant, since GetVersion picks the numerically
	// highest version both sides support. Defaults to {1.2, 1.1, 1.0} if nil.
	SupportedVersions []uint8

	// LocalCapabilities is the requester's own capability flags sent in
	// GET_CAPABILITIES.
	LocalCapabilities wire.CapabilityFlags
	// CTExponent is the requester's own response-timeout exponent.
	CTExponent uint8

	// SupportedHash, SupportedAsym, SupportedDHE, SupportedAEAD, and
	// SupportedKeySchedule are the requester's offered algorithm bitmaps
	// for NEGOTIATE_ALGORITHMS.
	SupportedHash        HashAlgorithm
	SupportedAsym        AsymAlgo
	SupportedDHE         DHEAlgorithm
	SupportedAEAD        AEADAlgorithm
	SupportedKeySchedule KeySchedule

	// Crypto is the pluggable crypto provider; defaults to
	// DefaultCryptoProvider{} if nil.
	Crypto CryptoProvider
	// CertPolicy is the pluggable root-of-trust verifier.
	CertPolicy CertPolicy
	// Transport is the pluggable device-I/O capability; required.
	Transport Transport

	// Timeout bounds every individual Send/Receive call. Defaults to 30s.
	Timeout time.Duration

	// WaitForResponse is called by the RESPONSE_NOT_READY recovery path
	// (spec.md §4.3, §9 open question: "the exact wait... is
	// implementation-defined; expose as a user-supplied hook"). Defaults
	// to sleeping 2^rdExponent microseconds.
	WaitForResponse func(rdExponent, rdTm uint8)
}

// Connection holds the SPDM protocol state machine described by spec.md
// §3.1: connection state, negotiated version/capabilities/algorithms,
// peer and local certificate chains, the managed transcript buffers,
// and the set of live sessions. It exclusively owns its transcripts and
// sessions; crypto and transport are weak references held for its
// lifetime (spec.md §3.4). It is not internally synchronized — a caller
// using one Connection from multiple goroutines must serialize
// externally (spec.md §5).
type Connection struct {
	cfg Config

	transport  Transport
	crypto     CryptoProvider
	certPolicy CertPolicy

	state ConnectionState

	selectedVersion   uint8
	responderVersions []wire.VersionEntry

	localCaps  wire.CapabilityFlags
	localCTExp uint8
	peerCaps   wire.CapabilityFlags
	peerCTExp  uint8

	hashAlgo    HashAlgorithm
	asymAlgo    AsymAlgo
	dheAlgo     DHEAlgorithm
	aeadAlgo    AEADAlgorithm
	keySchedule KeySchedule

	peerCertificates  map[uint8][]*x509.Certificate
	localCertificates map[uint8][]*x509.Certificate
	peerRawPublicKeys map[uint8]any

	transcripts transcripts

	sessions          map[uint32]*Session
	nextSessionLow16  uint16
}

// NewConnection builds a Connection from cfg, applying defaults the way
// go-smb2's Dialer does for its Negotiator fields.
func NewConnection(cfg Config) (*Connection, error) {
	if cfg.Transport == nil {
		return nil, newError(Unsupported, "NewConnection", "Config.Transport is required")
	}
	if cfg.Crypto == nil {
		cfg.Crypto = DefaultCryptoProvider{}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SupportedVersions == nil {
		cfg.SupportedVersions = []uint8{wire.Version12, wire.Version11, wire.Version10}
	}
	if cfg.WaitForResponse == nil {
		cfg.WaitForResponse = func(rdExponent, rdTm uint8) {
			time.Sleep(time.Duration(1<<rdExponent) * time.Microsecond)
		}
	}
	return &Connection{
		cfg:               cfg,
		transport:         cfg.Transport,
		crypto:            cfg.Crypto,
		certPolicy:        cfg.CertPolicy,
		state:             NotStarted,
		peerCertificates:  make(map[uint8][]*x509.Certificate),
		localCertificates: make(map[uint8][]*x509.Certificate),
		peerRawPublicKeys: make(map[uint8]any),
		sessions:          make(map[uint32]*Session),
	}, nil
}

// SetPeerRawPublicKey provisions the responder's raw public key for
// slotID, typically slot 0xFF (spec.md §4.2.4's "raw public key, no
// certificate" path), letting Challenge and KeyExchange verify a
// responder signature for that slot without a certificate chain on
// file. pub is an ed25519.PublicKey, *rsa.PublicKey, or *ecdsa.PublicKey matching the
// negotiated asymmetric algorithm, the same shape CryptoProvider.
// VerifySignature expects.
func (c *Connection) SetPeerRawPublicKey(slotID uint8, pub any) {
	c.peerRawPublicKeys[slotID] = pub
}

// resolvePeerPublicKey returns the key Challenge or KeyExchange must
// verify a responder signature against for slotID: the certificate
// chain's leaf key if GetCertificate populated one, or a raw public key
// provisioned via SetPeerRawPublicKey. Neither being on file is
// Unsupported, never a silent skip — a signature must always be
// checked against some key (spec.md §4.2.4).
func (c *Connection) resolvePeerPublicKey(slotID uint8) (any, error) {
	if chain, ok := c.peerCertificates[slotID]; ok && len(chain) > 0 {
		return chain[0].PublicKey, nil
	}
	if pub, ok := c.peerRawPublicKeys[slotID]; ok {
		return pub, nil
	}
	return nil, newError(Unsupported, "resolvePeerPublicKey", "no certificate chain or raw public key on file for slot")
}

// State reports the connection's current state.
func (c *Connection) State() ConnectionState {
	return c.state
}

// Session looks up a live session by its full 32-bit id.
func (c *Connection) Session(id uint32) (*Session, bool) {
	s, ok := c.sessions[id]
	return s, ok
}

func (c *Connection) waitForResponse(rdExponent, rdTm uint8) {
	c.cfg.WaitForResponse(rdExponent, rdTm)
}

// resetForResynch implements spec.md §3.1's REQUEST_RESYNCH invariant:
// connection_state resets to NotStarted, all transcripts are emptied,
// and all sessions are destroyed.
func (c *Connection) resetForResynch() {
	c.state = NotStarted
	c.transcripts.resetAll()
	for id, s := range c.sessions {
		s.terminate()
		delete(c.sessions, id)
	}
}

// requireState fails with Unsupported if the connection's state is
// below floor, implementing the generic transaction contract's
// prestate check (spec.md §4.1 step 1).
func (c *Connection) requireState(floor ConnectionState, op string) error {
	if c.state < floor {
		return newError(Unsupported, op, "connection state "+c.state.String()+" is below the required floor "+floor.String())
	}
	return nil
}

// registerSession allocates a new session id (low 16 bits requester-
// chosen, per spec.md §3.3) and stores the session.
func (c *Connection) registerSession(typ SessionType) *Session {
	c.nextSessionLow16++
	id := uint32(c.nextSessionLow16)
	s := newSession(id, typ, c.crypto, c.hashAlgo, c.aeadAlgo)
	c.sessions[id] = s
	return s
}

// bindResponderSessionID merges the responder-chosen high 16 bits into
// a session id that was provisionally registered with only the
// requester's low 16 bits set, per spec.md §3.3.
func (c *Connection) bindResponderSessionID(s *Session, responderHigh16 uint16) {
	delete(c.sessions, s.ID)
	s.ID = (uint32(responderHigh16) << 16) | (s.ID & 0xFFFF)
	c.sessions[s.ID] = s
}

// roundTrip implements the generic transaction contract's send/receive
// span (spec.md §4.1 steps 3-6) for connection-level (pre-session)
// transactions: it speculatively appends reqBytes to tb, sends it,
// receives the reply, and either returns the reply's bytes with the
// reservation left uncommitted and ready for the caller's own
// verification (expected code observed), delegates to the error
// handler (ERROR observed, possibly retried exactly once), or fails
// with DeviceError and rolls back (any other code).
func (c *Connection) roundTrip(ctx context.Context, tb *TranscriptBuffer, reqBytes []byte, expectedCode, originalCode wire.RequestResponseCode) ([]byte, *reservation, error) {
	r := tb.Append(reqBytes)

	if err := c.transport.Send(ctx, nil, reqBytes, c.cfg.Timeout); err != nil {
		r.Rollback()
		return nil, nil, wrapError(DeviceError, "roundTrip", "transport send failed", err)
	}
	respBytes, err := c.transport.Receive(ctx, nil, c.cfg.Timeout)
	if err != nil {
		r.Rollback()
		return nil, nil, wrapError(DeviceError, "roundTrip", "transport receive failed", err)
	}

	h, err := wire.DecodeHeader(respBytes)
	if err != nil {
		r.Rollback()
		return nil, nil, wrapError(DeviceError, "roundTrip", "malformed response header", err)
	}

	if h.RequestResponseCode == wire.Error {
		respBytes, err = c.handleErrorResponse(ctx, tb, r, respBytes, originalCode, c.cfg.Timeout)
		if err != nil {
			return nil, nil, err
		}
		// handleErrorResponse only returns success on the
		// RESPONSE_NOT_READY retry path, with r still uncommitted;
		// re-decode the final header.
		h, err = wire.DecodeHeader(respBytes)
		if err != nil {
			r.Rollback()
			return nil, nil, wrapError(DeviceError, "roundTrip", "malformed response header after retry", err)
		}
	}

	// DELIVER_ENCAPSULATED_RESPONSE may be answered either by a bare ACK
	// or by an ENCAPSULATED_REQUEST carrying the responder's next request.
	piggyback := expectedCode == wire.EncapsulatedResponseAck && h.RequestResponseCode == wire.EncapsulatedRequest
	if h.RequestResponseCode != expectedCode && !piggyback {
		r.Rollback()
		return nil, nil, newError(DeviceError, "roundTrip", "unexpected response code")
	}

	return respBytes, r, nil
}

// securedRoundTrip sends plaintext as a session-secured application
// message and returns the decrypted plaintext of the reply (spec.md
// §4.4). It is used by in-session transactions (Heartbeat, KeyUpdate,
// EndSession) that carry no connection-level transcript binding. Unlike
// roundTrip it does not run the full §4.3 RESPONSE_NOT_READY retry loop
// — an in-session ERROR is treated as either a retryable Busy
// (NoResponse) or fatal (DeviceError), since the responder has already
// finished the one-shot handshake retry window by the time a session
// exists.
func (c *Connection) securedRoundTrip(ctx context.Context, session *Session, plaintext []byte, expectedCode wire.RequestResponseCode) ([]byte, error) {
	if err := session.checkUsable(); err != nil {
		return nil, err
	}

	secured, err := session.EncodeSecured(plaintext)
	if err != nil {
		return nil, err
	}
	if err := c.transport.Send(ctx, &session.ID, secured, c.cfg.Timeout); err != nil {
		return nil, wrapError(DeviceError, "securedRoundTrip", "transport send failed", err)
	}

	respSecured, err := c.transport.Receive(ctx, &session.ID, c.cfg.Timeout)
	if err != nil {
		return nil, wrapError(DeviceError, "securedRoundTrip", "transport receive failed", err)
	}
	plainResp, err := session.DecodeSecured(respSecured)
	if err != nil {
		return nil, err
	}

	h, err := wire.DecodeHeader(plainResp)
	if err != nil {
		return nil, wrapError(DeviceError, "securedRoundTrip", "malformed secured response header", err)
	}
	if h.RequestResponseCode == wire.Error {
		ep, err := wire.DecodeErrorResponse(plainResp)
		if err != nil {
			return nil, wrapError(DeviceError, "securedRoundTrip", "malformed ERROR payload", err)
		}
		if ep.Code == wire.ErrorCodeBusy {
			return nil, newError(NoResponse, "securedRoundTrip", "responder reported BUSY")
		}
		return nil, newError(DeviceError, "securedRoundTrip", "responder returned a fatal ERROR code")
	}
	if h.RequestResponseCode != expectedCode {
		return nil, newError(DeviceError, "securedRoundTrip", "unexpected response code")
	}
	return plainResp, nil
}
