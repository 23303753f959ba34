package spdm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

func buildCapabilitiesResponse(flags wire.CapabilityFlags, ctExponent uint8) []byte {
	buf := make([]byte, wire.HeaderSize+8)
	wire.Header{SPDMVersion: wire.Version12, RequestResponseCode: wire.Capabilities}.Encode(buf)
	buf[wire.HeaderSize+1] = ctExponent
	off := wire.HeaderSize + 4
	buf[off] = byte(flags)
	buf[off+1] = byte(flags >> 8)
	buf[off+2] = byte(flags >> 16)
	buf[off+3] = byte(flags >> 24)
	return buf
}

func afterVersionConnection(transport *scriptedTransport) *Connection {
	conn := newTestConnection(transport)
	conn.state = AfterVersion
	conn.selectedVersion = wire.Version12
	return conn
}

func TestErrorHandler_ResponseNotReady_EchoesToken(t *testing.T) {
	rnr := buildResponseNotReady(3, wire.GetCapabilities, 42, 0)
	ok := buildCapabilitiesResponse(wire.CapCertCap, 5)
	transport := &scriptedTransport{steps: []scriptedStep{{reply: rnr}, {reply: ok}}}
	conn := afterVersionConnection(transport)

	_, err := conn.GetCapabilities(context.Background())
	require.NoError(t, err)
	require.Len(t, transport.sent, 2)

	retry, decErr := wire.DecodeHeader(transport.sent[1])
	require.NoError(t, decErr)
	assert.Equal(t, wire.RespondIfReady, retry.RequestResponseCode)
	assert.Equal(t, uint8(42), retry.Param2) // echoed token
	assert.Equal(t, uint8(wire.GetCapabilities), retry.Param1)
}

func TestErrorHandler_ResponseNotReady_RequestCodeMismatchIsFatal(t *testing.T) {
	rnr := buildResponseNotReady(3, wire.GetVersion /* wrong code */, 1, 0)
	transport := &scriptedTransport{steps: []scriptedStep{{reply: rnr}}}
	conn := afterVersionConnection(transport)

	_, err := conn.GetCapabilities(context.Background())
	require.Error(t, err)
	assert.Equal(t, DeviceError, KindOf(err))
	assert.Len(t, transport.sent, 1, "a request_code mismatch must not trigger RESPOND_IF_READY")
}

func TestErrorHandler_TransactionFailurePreservesTranscript(t *testing.T) {
	resp := buildErrorResponse(wire.ErrorCodeUnspecified, 0, nil)
	transport := &scriptedTransport{steps: []scriptedStep{{reply: resp}}}
	conn := afterVersionConnection(transport)
	conn.transcripts.get(TranscriptA1).Append([]byte{0xAA, 0xBB}).Commit()
	before := append([]byte{}, conn.transcripts.get(TranscriptA1).Bytes()...)

	_, err := conn.GetCapabilities(context.Background())
	require.Error(t, err)
	assert.Equal(t, before, conn.transcripts.get(TranscriptA1).Bytes())
}

func TestErrorHandler_ShortReplyIsDeviceError(t *testing.T) {
	// Shorter than the fixed 4-byte header: fails before the ERROR
	// dispatch is even reached.
	transport := &scriptedTransport{steps: []scriptedStep{{reply: []byte{0x01}}}}
	conn := afterVersionConnection(transport)

	_, err := conn.GetCapabilities(context.Background())
	require.Error(t, err)
	assert.Equal(t, DeviceError, KindOf(err))
}
