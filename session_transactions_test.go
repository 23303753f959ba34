package spdm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// mirroredPeerSession returns a Session whose request/response
// direction keys are swapped relative to s, so that s.EncodeSecured is
// decodable via the returned session's DecodeSecured and vice versa —
// the shape a real responder's session state would take. Both sessions
// derive from the same deterministic inputs (establishedSession), so
// the swapped fields line up byte-for-byte.
func mirroredPeerSession(t *testing.T) *Session {
	t.Helper()
	peer := establishedSession(t)
	peer.reqApplication, peer.rspApplication = peer.rspApplication, peer.reqApplication
	return peer
}

// peerSecuredTransport answers every secured request with a fixed
// per-request-code reply, decrypting and re-encrypting through a real
// mirrored Session so sequence numbers and (after a key update) rotated
// keys stay genuinely in sync across multiple round trips.
type peerSecuredTransport struct {
	peer     *Session
	lastSent []byte
	replyFor func(code wire.RequestResponseCode, plaintext []byte) []byte
}

func (p *peerSecuredTransport) Send(ctx context.Context, sessionID *uint32, payload []byte, timeout time.Duration) error {
	p.lastSent = append([]byte{}, payload...)
	return nil
}

func (p *peerSecuredTransport) Receive(ctx context.Context, sessionID *uint32, timeout time.Duration) ([]byte, error) {
	plaintext, err := p.peer.DecodeSecured(p.lastSent)
	if err != nil {
		return nil, err
	}
	h, err := wire.DecodeHeader(plaintext)
	if err != nil {
		return nil, err
	}
	reply := p.replyFor(h.RequestResponseCode, plaintext)
	return p.peer.EncodeSecured(reply)
}

func heartbeatAckBytes() []byte {
	return encodeHeaderOnly(wire.Version12, wire.HeartbeatAck, 0, 0)
}

func endSessionAckBytes() []byte {
	return encodeHeaderOnly(wire.Version12, wire.EndSessionAck, 0, 0)
}

func TestHeartbeat_HappyPath(t *testing.T) {
	requester := establishedSession(t)
	peer := mirroredPeerSession(t)
	transport := &peerSecuredTransport{peer: peer, replyFor: func(code wire.RequestResponseCode, _ []byte) []byte {
		require.Equal(t, wire.Heartbeat, code)
		return heartbeatAckBytes()
	}}
	conn := newTestConnection(&scriptedTransport{})
	conn.transport = transport
	conn.selectedVersion = wire.Version12

	err := conn.Heartbeat(context.Background(), requester)
	require.NoError(t, err)
}

func TestHeartbeat_BusyIsRetryable(t *testing.T) {
	requester := establishedSession(t)
	peer := mirroredPeerSession(t)
	transport := &peerSecuredTransport{peer: peer, replyFor: func(code wire.RequestResponseCode, _ []byte) []byte {
		return buildErrorResponse(wire.ErrorCodeBusy, 0, nil)
	}}
	conn := newTestConnection(&scriptedTransport{})
	conn.transport = transport
	conn.selectedVersion = wire.Version12

	err := conn.Heartbeat(context.Background(), requester)
	require.Error(t, err)
	assert.Equal(t, NoResponse, KindOf(err))
}

func TestEndSession_HappyPathTerminatesSession(t *testing.T) {
	requester := establishedSession(t)
	peer := mirroredPeerSession(t)
	transport := &peerSecuredTransport{peer: peer, replyFor: func(code wire.RequestResponseCode, _ []byte) []byte {
		require.Equal(t, wire.EndSession, code)
		return endSessionAckBytes()
	}}
	conn := newTestConnection(&scriptedTransport{})
	conn.transport = transport
	conn.selectedVersion = wire.Version12

	info, err := conn.EndSession(context.Background(), requester, 0)
	require.NoError(t, err)
	assert.NotNil(t, info)
	assert.Equal(t, SessionTerminating, requester.State)
}

func TestEndSession_RequiresUsableSession(t *testing.T) {
	conn := newTestConnection(&scriptedTransport{})
	s := newSession(1, SessionTypePSK, conn.crypto, HashSHA256, AEADAESGCM128)
	s.terminate()
	_, err := conn.EndSession(context.Background(), s, 0)
	require.Error(t, err)
	assert.Equal(t, SecurityViolation, KindOf(err))
}

func TestKeyUpdate_RotatesKeyAndResetsSequence(t *testing.T) {
	requester := establishedSession(t)
	peer := mirroredPeerSession(t)

	transport := &peerSecuredTransport{peer: peer, replyFor: func(code wire.RequestResponseCode, plaintext []byte) []byte {
		h, err := wire.DecodeHeader(plaintext)
		require.NoError(t, err)
		action := wire.KeyUpdateAction(h.Param1)
		tag := h.Param2
		if action == wire.KeyUpdateActionUpdateKey {
			require.NoError(t, peer.rotateApplicationKey(false))
		}
		ack := make([]byte, wire.HeaderSize)
		wire.Header{SPDMVersion: wire.Version12, RequestResponseCode: wire.KeyUpdateAck, Param1: uint8(action), Param2: tag}.Encode(ack)
		return ack
	}}
	conn := newTestConnection(&scriptedTransport{})
	conn.transport = transport
	conn.selectedVersion = wire.Version12

	oldKey := append([]byte{}, requester.reqApplication.key...)

	info, err := conn.KeyUpdate(context.Background(), requester)
	require.NoError(t, err)
	assert.NotNil(t, info)
	assert.NotEqual(t, oldKey, requester.reqApplication.key)

	// A subsequent Heartbeat must still decode correctly under the newly
	// rotated key, proving both sides derived it identically.
	transport.replyFor = func(code wire.RequestResponseCode, _ []byte) []byte {
		require.Equal(t, wire.Heartbeat, code)
		return heartbeatAckBytes()
	}
	require.NoError(t, conn.Heartbeat(context.Background(), requester))
}
