package wire

import "fmt"

// EncapResponsePayloadType enumerates the ENCAPSULATED_REQUEST
// response's payload-type field (spec.md §4.2.7): ABSENT and
// SLOT_NUMBER are terminal, REQUEST carries an embedded encapsulated
// request to be serviced and replied to via
// DELIVER_ENCAPSULATED_RESPONSE.
type EncapResponsePayloadType uint8

const (
	EncapPayloadAbsent    EncapResponsePayloadType = 0
	EncapPayloadReqSlotNumber EncapResponsePayloadType = 1
	EncapPayloadRequest   EncapResponsePayloadType = 2
)

// GetEncapsulatedRequestRequest carries only the fixed header.
type GetEncapsulatedRequestRequest struct {
	SPDMVersion uint8
}

func (r GetEncapsulatedRequestRequest) Encode() []byte {
	buf := make([]byte, HeaderSize)
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: GetEncapsulatedRequest}.Encode(buf)
	return buf
}

// EncapsulatedRequestResponse is the decoded ENCAPSULATED_REQUEST
// message: param1 is the responder's request id, echoed by the
// corresponding DELIVER_ENCAPSULATED_RESPONSE, followed by the payload
// discriminated by PayloadType, which DecodeEncapsulatedRequestResponse
// deduces from the payload length (empty: EncapPayloadAbsent; a single
// byte, req_slot_id_param: EncapPayloadReqSlotNumber; longer: an embedded
// request, EncapPayloadRequest).
type EncapsulatedRequestResponse struct {
	Header      Header
	RequestID   uint8
	PayloadType EncapResponsePayloadType
	Payload     []byte
}

// DecodeEncapsulatedRequestResponse decodes an ENCAPSULATED_REQUEST
// message. The payload type is not itself on the wire in the simplified
// form this module uses (mirroring libspdm's GET_ENCAPSULATED_REQUEST /
// encap-state-machine split): an empty payload means ABSENT, a
// single-byte payload means SLOT_NUMBER (the byte is req_slot_id_param),
// and anything longer is an embedded request beginning with its own
// 4-byte SPDM header.
func DecodeEncapsulatedRequestResponse(buf []byte) (*EncapsulatedRequestResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != EncapsulatedRequest {
		return nil, fmt.Errorf("wire: expected ENCAPSULATED_REQUEST (0x%02x), got 0x%02x", EncapsulatedRequest, h.RequestResponseCode)
	}
	payload := buf[HeaderSize:]
	var pt EncapResponsePayloadType
	switch {
	case len(payload) == 0:
		pt = EncapPayloadAbsent
	case len(payload) == 1:
		pt = EncapPayloadReqSlotNumber
	default:
		pt = EncapPayloadRequest
	}
	return &EncapsulatedRequestResponse{
		Header:      h,
		RequestID:   h.Param1,
		PayloadType: pt,
		Payload:     payload,
	}, nil
}

// DeliverEncapsulatedResponseRequest wraps the requester's reply to one
// embedded encapsulated request.
type DeliverEncapsulatedResponseRequest struct {
	SPDMVersion uint8
	RequestID   uint8
	Payload     []byte
}

func (r DeliverEncapsulatedResponseRequest) Encode() []byte {
	buf := make([]byte, HeaderSize+len(r.Payload))
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: DeliverEncapsulatedResponse, Param1: r.RequestID}.Encode(buf)
	copy(buf[HeaderSize:], r.Payload)
	return buf
}

// EncapsulatedResponseAckResponse is the ACK to a delivered response.
type EncapsulatedResponseAckResponse struct {
	Header Header
}

func DecodeEncapsulatedResponseAckResponse(buf []byte) (*EncapsulatedResponseAckResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != EncapsulatedResponseAck {
		return nil, fmt.Errorf("wire: expected ENCAPSULATED_RESPONSE_ACK (0x%02x), got 0x%02x", EncapsulatedResponseAck, h.RequestResponseCode)
	}
	return &EncapsulatedResponseAckResponse{Header: h}, nil
}
