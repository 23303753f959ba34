package wire

import "fmt"

// HeartbeatRequest carries only the fixed header.
type HeartbeatRequest struct {
	SPDMVersion uint8
}

func (r HeartbeatRequest) Encode() []byte {
	buf := make([]byte, HeaderSize)
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: Heartbeat}.Encode(buf)
	return buf
}

// HeartbeatAckResponse carries only the fixed header.
type HeartbeatAckResponse struct {
	Header Header
}

func DecodeHeartbeatAckResponse(buf []byte) (*HeartbeatAckResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != HeartbeatAck {
		return nil, fmt.Errorf("wire: expected HEARTBEAT_ACK (0x%02x), got 0x%02x", HeartbeatAck, h.RequestResponseCode)
	}
	return &HeartbeatAckResponse{Header: h}, nil
}

// KeyUpdateAction distinguishes the two KEY_UPDATE sub-operations
// (update then verify) carried in param1.
type KeyUpdateAction uint8

const (
	KeyUpdateActionUpdateKey         KeyUpdateAction = 1
	KeyUpdateActionVerifyNewKey      KeyUpdateAction = 2
)

// KeyUpdateRequest is the KEY_UPDATE request: param1 the action, param2
// a caller-chosen tag echoed back by the responder.
type KeyUpdateRequest struct {
	SPDMVersion uint8
	Action      KeyUpdateAction
	Tag         uint8
}

func (r KeyUpdateRequest) Encode() []byte {
	buf := make([]byte, HeaderSize)
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: KeyUpdate, Param1: uint8(r.Action), Param2: r.Tag}.Encode(buf)
	return buf
}

// KeyUpdateAckResponse echoes the action and tag.
type KeyUpdateAckResponse struct {
	Header Header
	Action KeyUpdateAction
	Tag    uint8
}

func DecodeKeyUpdateAckResponse(buf []byte) (*KeyUpdateAckResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != KeyUpdateAck {
		return nil, fmt.Errorf("wire: expected KEY_UPDATE_ACK (0x%02x), got 0x%02x", KeyUpdateAck, h.RequestResponseCode)
	}
	return &KeyUpdateAckResponse{Header: h, Action: KeyUpdateAction(h.Param1), Tag: h.Param2}, nil
}

// EndSessionRequest is the END_SESSION request: param1 carries the
// end_session_attributes bitmask (spec.md §4.2.6, original_source
// spdm_send_receive_end_session signature).
type EndSessionRequest struct {
	SPDMVersion           uint8
	EndSessionAttributes uint8
}

func (r EndSessionRequest) Encode() []byte {
	buf := make([]byte, HeaderSize)
	Header{SPDMVersion: r.SPDMVersion, RequestResponseCode: EndSession, Param1: r.EndSessionAttributes}.Encode(buf)
	return buf
}

// EndSessionAckResponse carries only the fixed header.
type EndSessionAckResponse struct {
	Header Header
}

func DecodeEndSessionAckResponse(buf []byte) (*EndSessionAckResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != EndSessionAck {
		return nil, fmt.Errorf("wire: expected END_SESSION_ACK (0x%02x), got 0x%02x", EndSessionAck, h.RequestResponseCode)
	}
	return &EndSessionAckResponse{Header: h}, nil
}
