package spdm

import (
	"context"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// MutualAuthHandler services encapsulated requests the responder issues
// to authenticate the requester during mutual authentication (spec.md
// §4.2.7). It is a narrow, single-method capability interface in the
// same spirit as the teacher's Initiator — the caller supplies whatever
// local key material and certificate chain answering an embedded
// GET_DIGESTS/GET_CERTIFICATE/CHALLENGE/KEY_UPDATE request requires, and
// hands back the already-encoded response body; this module does not
// interpret the embedded request beyond its header, since it has no
// certificate chain or private key of its own to serve these requests
// generically.
type MutualAuthHandler interface {
	HandleEncapsulatedRequest(ctx context.Context, requestCode wire.RequestResponseCode, request []byte) (response []byte, err error)
}

// EncapsulatedInfo is returned by ProcessEncapsulatedRequests on success.
type EncapsulatedInfo struct {
	// RequestsServed counts the embedded requests handed to handler.
	RequestsServed int
	// ReqSlotIDParam is set when the loop terminated via PayloadType
	// SLOT_NUMBER rather than ABSENT (spec.md §4.2.7): the requester slot
	// id the responder wants used for a subsequent mutual-auth operation.
	ReqSlotIDParam uint8
}

// ProcessEncapsulatedRequests drives the GET_ENCAPSULATED_REQUEST loop
// (spec.md §4.2.7): repeatedly fetch the responder's next embedded
// request, hand it to handler, and deliver the handler's response, until
// the responder reports no further work — PayloadType ABSENT or
// SLOT_NUMBER are both terminal. It requires CapEncapCap on both sides
// and CapMutAuthCap on the peer.
func (c *Connection) ProcessEncapsulatedRequests(ctx context.Context, handler MutualAuthHandler) (*EncapsulatedInfo, error) {
	if err := c.requireState(AfterNegotiateAlgorithms, "ProcessEncapsulatedRequests"); err != nil {
		return nil, err
	}
	if c.localCaps&wire.CapEncapCap == 0 || c.peerCaps&wire.CapEncapCap == 0 {
		return nil, newError(Unsupported, "ProcessEncapsulatedRequests", "encapsulated requests were not negotiated by both sides")
	}
	if c.peerCaps&wire.CapMutAuthCap == 0 {
		return nil, newError(Unsupported, "ProcessEncapsulatedRequests", "peer did not advertise mutual authentication support")
	}

	info := &EncapsulatedInfo{}

	reqBytes := wire.GetEncapsulatedRequestRequest{SPDMVersion: c.selectedVersion}.Encode()
	tempTB := &TranscriptBuffer{}
	respBytes, r, err := c.roundTrip(ctx, tempTB, reqBytes, wire.EncapsulatedRequest, wire.GetEncapsulatedRequest)
	if err != nil {
		return nil, err
	}
	encReq, err := wire.DecodeEncapsulatedRequestResponse(respBytes)
	if err != nil {
		r.Rollback()
		return nil, wrapError(DeviceError, "ProcessEncapsulatedRequests", "malformed ENCAPSULATED_REQUEST response", err)
	}
	r.Commit()

	for encReq.PayloadType != wire.EncapPayloadAbsent && encReq.PayloadType != wire.EncapPayloadReqSlotNumber {
		var responsePayload []byte

		if encReq.PayloadType == wire.EncapPayloadRequest {
			embeddedHeader, err := wire.DecodeHeader(encReq.Payload)
			if err != nil {
				return nil, wrapError(DeviceError, "ProcessEncapsulatedRequests", "malformed embedded encapsulated request", err)
			}
			responsePayload, err = handler.HandleEncapsulatedRequest(ctx, embeddedHeader.RequestResponseCode, encReq.Payload)
			if err != nil {
				return nil, wrapError(DeviceError, "ProcessEncapsulatedRequests", "mutual auth handler failed", err)
			}
			info.RequestsServed++
		}

		deliverBytes := wire.DeliverEncapsulatedResponseRequest{
			SPDMVersion: c.selectedVersion,
			RequestID:   encReq.RequestID,
			Payload:     responsePayload,
		}.Encode()

		tempTB = &TranscriptBuffer{}
		ackBytes, ackR, err := c.roundTrip(ctx, tempTB, deliverBytes, wire.EncapsulatedResponseAck, wire.DeliverEncapsulatedResponse)
		if err != nil {
			return nil, err
		}

		nextEncReq, err := wire.DecodeEncapsulatedRequestResponse(ackBytes)
		if err == nil {
			// Some responders piggyback the next embedded request on the
			// ACK itself rather than requiring a fresh
			// GET_ENCAPSULATED_REQUEST round trip.
			ackR.Commit()
			encReq = nextEncReq
			continue
		}

		if _, err := wire.DecodeEncapsulatedResponseAckResponse(ackBytes); err != nil {
			ackR.Rollback()
			return nil, wrapError(DeviceError, "ProcessEncapsulatedRequests", "malformed ENCAPSULATED_RESPONSE_ACK response", err)
		}
		ackR.Commit()

		reqBytes = wire.GetEncapsulatedRequestRequest{SPDMVersion: c.selectedVersion}.Encode()
		tempTB = &TranscriptBuffer{}
		respBytes, r, err = c.roundTrip(ctx, tempTB, reqBytes, wire.EncapsulatedRequest, wire.GetEncapsulatedRequest)
		if err != nil {
			return nil, err
		}
		encReq, err = wire.DecodeEncapsulatedRequestResponse(respBytes)
		if err != nil {
			r.Rollback()
			return nil, wrapError(DeviceError, "ProcessEncapsulatedRequests", "malformed ENCAPSULATED_REQUEST response", err)
		}
		r.Commit()
	}

	if encReq.PayloadType == wire.EncapPayloadReqSlotNumber && len(encReq.Payload) == 1 {
		info.ReqSlotIDParam = encReq.Payload[0]
	}

	return info, nil
}
