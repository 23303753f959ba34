package spdm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// fakeMutualAuthHandler records every embedded request it's asked to
// serve and replies with a fixed canned response body.
type fakeMutualAuthHandler struct {
	seenCodes []wire.RequestResponseCode
	reply     []byte
	err       error
}

func (h *fakeMutualAuthHandler) HandleEncapsulatedRequest(ctx context.Context, requestCode wire.RequestResponseCode, request []byte) ([]byte, error) {
	h.seenCodes = append(h.seenCodes, requestCode)
	if h.err != nil {
		return nil, h.err
	}
	return h.reply, nil
}

func buildEncapsulatedRequestResponse(requestID uint8, payloadType wire.EncapResponsePayloadType, embedded []byte) []byte {
	var payload []byte
	switch payloadType {
	case wire.EncapPayloadAbsent:
		payload = nil
	case wire.EncapPayloadReqSlotNumber:
		payload = []byte{0}
	default:
		payload = embedded
	}
	buf := make([]byte, wire.HeaderSize+len(payload))
	wire.Header{SPDMVersion: wire.Version12, RequestResponseCode: wire.EncapsulatedRequest, Param1: requestID}.Encode(buf)
	copy(buf[wire.HeaderSize:], payload)
	return buf
}

func buildEncapsulatedResponseAck() []byte {
	return encodeHeaderOnly(wire.Version12, wire.EncapsulatedResponseAck, 0, 0)
}

func buildEncapsulatedSlotNumberResponse(requestID, slotIDParam uint8) []byte {
	buf := make([]byte, wire.HeaderSize+1)
	wire.Header{SPDMVersion: wire.Version12, RequestResponseCode: wire.EncapsulatedRequest, Param1: requestID}.Encode(buf)
	buf[wire.HeaderSize] = slotIDParam
	return buf
}

func negotiatedConnectionWithCaps(transport *scriptedTransport, local, peer wire.CapabilityFlags) *Connection {
	conn := newTestConnection(transport)
	conn.state = AfterNegotiateAlgorithms
	conn.selectedVersion = wire.Version12
	conn.localCaps = local
	conn.peerCaps = peer
	return conn
}

func TestProcessEncapsulatedRequests_RequiresNegotiatedState(t *testing.T) {
	conn := newTestConnection(&scriptedTransport{})
	_, err := conn.ProcessEncapsulatedRequests(context.Background(), &fakeMutualAuthHandler{})
	require.Error(t, err)
	assert.Equal(t, Unsupported, KindOf(err))
}

func TestProcessEncapsulatedRequests_RequiresBothSidesEncapCap(t *testing.T) {
	conn := negotiatedConnectionWithCaps(&scriptedTransport{}, 0, wire.CapEncapCap|wire.CapMutAuthCap)
	_, err := conn.ProcessEncapsulatedRequests(context.Background(), &fakeMutualAuthHandler{})
	require.Error(t, err)
	assert.Equal(t, Unsupported, KindOf(err))
}

func TestProcessEncapsulatedRequests_RequiresPeerMutAuthCap(t *testing.T) {
	conn := negotiatedConnectionWithCaps(&scriptedTransport{}, wire.CapEncapCap, wire.CapEncapCap)
	_, err := conn.ProcessEncapsulatedRequests(context.Background(), &fakeMutualAuthHandler{})
	require.Error(t, err)
	assert.Equal(t, Unsupported, KindOf(err))
}

func TestProcessEncapsulatedRequests_AbsentTerminatesImmediately(t *testing.T) {
	resp := buildEncapsulatedRequestResponse(1, wire.EncapPayloadAbsent, nil)
	transport := &scriptedTransport{steps: []scriptedStep{{reply: resp}}}
	conn := negotiatedConnectionWithCaps(transport, wire.CapEncapCap, wire.CapEncapCap|wire.CapMutAuthCap)

	handler := &fakeMutualAuthHandler{}
	info, err := conn.ProcessEncapsulatedRequests(context.Background(), handler)
	require.NoError(t, err)
	assert.Equal(t, 0, info.RequestsServed)
	assert.Empty(t, handler.seenCodes)
}

func TestProcessEncapsulatedRequests_ServesOneEmbeddedRequestThenFreshPoll(t *testing.T) {
	embedded := encodeHeaderOnly(wire.Version12, wire.GetDigests, 0, 0)
	first := buildEncapsulatedRequestResponse(1, wire.EncapPayloadRequest, embedded)
	ack := buildEncapsulatedResponseAck()
	second := buildEncapsulatedRequestResponse(2, wire.EncapPayloadAbsent, nil)

	transport := &scriptedTransport{steps: []scriptedStep{
		{reply: first},
		{reply: ack},
		{reply: second},
	}}
	conn := negotiatedConnectionWithCaps(transport, wire.CapEncapCap, wire.CapEncapCap|wire.CapMutAuthCap)

	handler := &fakeMutualAuthHandler{reply: []byte{0xAA, 0xBB}}
	info, err := conn.ProcessEncapsulatedRequests(context.Background(), handler)
	require.NoError(t, err)
	assert.Equal(t, 1, info.RequestsServed)
	assert.Equal(t, []wire.RequestResponseCode{wire.GetDigests}, handler.seenCodes)
}

func TestProcessEncapsulatedRequests_AckPiggybacksNextRequest(t *testing.T) {
	embedded1 := encodeHeaderOnly(wire.Version12, wire.GetDigests, 0, 0)
	embedded2 := encodeHeaderOnly(wire.Version12, wire.GetCertificate, 0, 0)
	first := buildEncapsulatedRequestResponse(1, wire.EncapPayloadRequest, embedded1)
	ackWithNext := buildEncapsulatedRequestResponse(2, wire.EncapPayloadRequest, embedded2)
	finalAck := buildEncapsulatedResponseAck()

	transport := &scriptedTransport{steps: []scriptedStep{
		{reply: first},
		{reply: ackWithNext},
		{reply: finalAck},
	}}
	conn := negotiatedConnectionWithCaps(transport, wire.CapEncapCap, wire.CapEncapCap|wire.CapMutAuthCap)

	handler := &fakeMutualAuthHandler{reply: []byte{0x01}}
	info, err := conn.ProcessEncapsulatedRequests(context.Background(), handler)
	require.NoError(t, err)
	assert.Equal(t, 2, info.RequestsServed)
	assert.Equal(t, []wire.RequestResponseCode{wire.GetDigests, wire.GetCertificate}, handler.seenCodes)
	require.Len(t, transport.sent, 3, "no extra GET_ENCAPSULATED_REQUEST poll once the ACK piggybacked the next request")
}

func TestProcessEncapsulatedRequests_SlotNumberTerminatesWithoutDelivering(t *testing.T) {
	resp := buildEncapsulatedSlotNumberResponse(1, 3)
	transport := &scriptedTransport{steps: []scriptedStep{{reply: resp}}}
	conn := negotiatedConnectionWithCaps(transport, wire.CapEncapCap, wire.CapEncapCap|wire.CapMutAuthCap)

	handler := &fakeMutualAuthHandler{}
	info, err := conn.ProcessEncapsulatedRequests(context.Background(), handler)
	require.NoError(t, err)
	assert.Equal(t, 0, info.RequestsServed)
	assert.Empty(t, handler.seenCodes)
	assert.Equal(t, uint8(3), info.ReqSlotIDParam)
	assert.Len(t, transport.sent, 1, "SLOT_NUMBER is terminal: no DELIVER_ENCAPSULATED_RESPONSE should be sent")
}

func TestProcessEncapsulatedRequests_SlotNumberAfterEmbeddedRequestTerminates(t *testing.T) {
	embedded := encodeHeaderOnly(wire.Version12, wire.GetDigests, 0, 0)
	first := buildEncapsulatedRequestResponse(1, wire.EncapPayloadRequest, embedded)
	ack := buildEncapsulatedResponseAck()
	slotNumber := buildEncapsulatedSlotNumberResponse(2, 5)

	transport := &scriptedTransport{steps: []scriptedStep{
		{reply: first},
		{reply: ack},
		{reply: slotNumber},
	}}
	conn := negotiatedConnectionWithCaps(transport, wire.CapEncapCap, wire.CapEncapCap|wire.CapMutAuthCap)

	handler := &fakeMutualAuthHandler{reply: []byte{0xAA}}
	info, err := conn.ProcessEncapsulatedRequests(context.Background(), handler)
	require.NoError(t, err)
	assert.Equal(t, 1, info.RequestsServed)
	assert.Equal(t, uint8(5), info.ReqSlotIDParam)
}

func TestProcessEncapsulatedRequests_HandlerErrorIsFatal(t *testing.T) {
	embedded := encodeHeaderOnly(wire.Version12, wire.GetDigests, 0, 0)
	first := buildEncapsulatedRequestResponse(1, wire.EncapPayloadRequest, embedded)
	transport := &scriptedTransport{steps: []scriptedStep{{reply: first}}}
	conn := negotiatedConnectionWithCaps(transport, wire.CapEncapCap, wire.CapEncapCap|wire.CapMutAuthCap)

	handler := &fakeMutualAuthHandler{err: errTestTransport}
	_, err := conn.ProcessEncapsulatedRequests(context.Background(), handler)
	require.Error(t, err)
	assert.Equal(t, DeviceError, KindOf(err))
}
