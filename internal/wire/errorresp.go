package wire

import "fmt"

// ErrorResponse is the decoded ERROR message body (spec.md §4.3,
// §6.1). Param1 carries the error code, param2 the error_data field,
// whose meaning is code specific and which this module does not
// interpret. For RESPONSE_NOT_READY the retry parameters and the
// RESPOND_IF_READY token are carried in the extended data (see
// DecodeResponseNotReadyExtData).
type ErrorResponse struct {
	Header    Header
	Code      ErrorCode
	Data      uint8
	Extended  []byte
}

func DecodeErrorResponse(buf []byte) (*ErrorResponse, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.RequestResponseCode != Error {
		return nil, fmt.Errorf("wire: expected ERROR (0x%02x), got 0x%02x", Error, h.RequestResponseCode)
	}
	return &ErrorResponse{
		Header:   h,
		Code:     ErrorCode(h.Param1),
		Data:     h.Param2,
		Extended: append([]byte{}, buf[HeaderSize:]...),
	}, nil
}

// ResponseNotReadyExtData is the extended error data attached to a
// RESPONSE_NOT_READY ERROR: the responder's requested retry parameters
// and an opaque token the requester must echo back in
// RESPOND_IF_READY (original_source spdm_error_data_response_not_ready_t).
type ResponseNotReadyExtData struct {
	RDExponent  uint8
	RequestCode uint8
	Token       uint8
	RDTM        uint8
}

// DecodeResponseNotReadyExtData parses the 4-byte extended data
// attached to a RESPONSE_NOT_READY ERROR's Extended field.
func DecodeResponseNotReadyExtData(extended []byte) (*ResponseNotReadyExtData, error) {
	if len(extended) < 4 {
		return nil, fmt.Errorf("wire: short RESPONSE_NOT_READY extended data")
	}
	return &ResponseNotReadyExtData{
		RDExponent:  extended[0],
		RequestCode: extended[1],
		Token:       extended[2],
		RDTM:        extended[3],
	}, nil
}

// RespondIfReadyRequest re-issues the original request code with the
// echoed token, per spec.md §4.3's RESPONSE_NOT_READY recovery path.
type RespondIfReadyRequest struct {
	SPDMVersion      uint8
	OriginalRequestCode RequestResponseCode
	Token            uint8
}

func (r RespondIfReadyRequest) Encode() []byte {
	buf := make([]byte, HeaderSize)
	Header{
		SPDMVersion:         r.SPDMVersion,
		RequestResponseCode: RespondIfReady,
		Param1:              uint8(r.OriginalRequestCode),
		Param2:              r.Token,
	}.Encode(buf)
	return buf
}
