// Package wire implements the SPDM message header, codec, and
// per-message encode/decode helpers described in spec.md §6.1. It plays
// the role the teacher's internal/smb2 package plays for SMB2: a
// self-contained wire-format layer with no knowledge of connection or
// session state.
package wire

// RequestResponseCode identifies an SPDM message type. Requests set the
// high bit (0x80) of the code; responses clear it, except ERROR and
// RESPOND_IF_READY which share the 0xFF code with the request/response
// distinguished by direction, not by value.
type RequestResponseCode uint8

const (
	GetDigests    RequestResponseCode = 0x81
	Digests       RequestResponseCode = 0x01
	GetCertificate RequestResponseCode = 0x82
	Certificate   RequestResponseCode = 0x02
	Challenge     RequestResponseCode = 0x83
	ChallengeAuth RequestResponseCode = 0x03

	GetVersion RequestResponseCode = 0x84
	Version    RequestResponseCode = 0x04

	GetEncapsulatedRequest    RequestResponseCode = 0x85
	EncapsulatedRequest       RequestResponseCode = 0x06
	DeliverEncapsulatedResponse RequestResponseCode = 0x86
	EncapsulatedResponseAck   RequestResponseCode = 0x07

	GetCapabilities RequestResponseCode = 0xE1
	Capabilities    RequestResponseCode = 0x61

	NegotiateAlgorithms RequestResponseCode = 0xE3
	Algorithms          RequestResponseCode = 0x63

	KeyExchange    RequestResponseCode = 0xE4
	KeyExchangeRsp RequestResponseCode = 0x64

	Finish    RequestResponseCode = 0xE5
	FinishRsp RequestResponseCode = 0x65

	PskExchange    RequestResponseCode = 0xE6
	PskExchangeRsp RequestResponseCode = 0x66

	PskFinish    RequestResponseCode = 0xE7
	PskFinishRsp RequestResponseCode = 0x67

	Heartbeat    RequestResponseCode = 0xE8
	HeartbeatAck RequestResponseCode = 0x68

	KeyUpdate    RequestResponseCode = 0xE9
	KeyUpdateAck RequestResponseCode = 0x69

	EndSession    RequestResponseCode = 0xEC
	EndSessionAck RequestResponseCode = 0x6C

	// Error is shared by both the ERROR response and the
	// RESPOND_IF_READY request — direction disambiguates them.
	Error           RequestResponseCode = 0xFF
	RespondIfReady  RequestResponseCode = 0xFF
)

// ErrorCode enumerates the SPDM ERROR payload's error_code field (spec.md
// §4.3, §6.1). The enum is modeled over the full byte range with
// explicit reserved variants so every switch over it can be exhaustive,
// per spec.md §9.
type ErrorCode uint8

const (
	ErrorCodeReserved00        ErrorCode = 0x00
	ErrorCodeInvalidRequest    ErrorCode = 0x01
	ErrorCodeInvalidSession    ErrorCode = 0x02
	ErrorCodeBusy              ErrorCode = 0x03
	ErrorCodeUnexpectedRequest ErrorCode = 0x04
	ErrorCodeUnspecified       ErrorCode = 0x05
	ErrorCodeDecryptError      ErrorCode = 0x06
	// 0x07-0x0B reserved
	ErrorCodeReservedRange1Lo ErrorCode = 0x07
	ErrorCodeReservedRange1Hi ErrorCode = 0x0B
	ErrorCodeInvalidRequestAfterDone ErrorCode = 0x0C
	// 0x0D-0x3E reserved
	ErrorCodeReservedRange2Lo ErrorCode = 0x0D
	ErrorCodeReservedRange2Hi ErrorCode = 0x3E
	ErrorCodeReserved3F       ErrorCode = 0x3F
	ErrorCodeVersionMismatch  ErrorCode = 0x41
	ErrorCodeResponseNotReady ErrorCode = 0x42
	ErrorCodeRequestResynch   ErrorCode = 0x43
	// 0x44-0xFC reserved
	ErrorCodeReservedRange3Lo ErrorCode = 0x44
	ErrorCodeReservedRange3Hi ErrorCode = 0xFC
	ErrorCodeReservedFD       ErrorCode = 0xFD
	ErrorCodeReservedFE       ErrorCode = 0xFE
	ErrorCodeVendorDefined    ErrorCode = 0xFF
)

// IsReserved reports whether code falls in one of the ranges spec.md §4.3
// lumps into "all other codes". The error handler does not consult it:
// every code not specifically handled there is treated identically
// (fatal).
func (c ErrorCode) IsReserved() bool {
	switch {
	case c == ErrorCodeReserved00:
		return true
	case c >= ErrorCodeReservedRange1Lo && c <= ErrorCodeReservedRange1Hi:
		return true
	case c >= ErrorCodeReservedRange2Lo && c <= ErrorCodeReservedRange2Hi:
		return true
	case c == ErrorCodeReserved3F:
		return true
	case c >= ErrorCodeReservedRange3Lo && c <= ErrorCodeReservedRange3Hi:
		return true
	case c == ErrorCodeReservedFD, c == ErrorCodeReservedFE:
		return true
	default:
		return false
	}
}

// SPDM version constants, encoded as (major<<4)|minor in the on-wire
// version_number_entry and as a single byte (major<<4)|minor in the
// message header's spdm_version field.
const (
	Version10 uint8 = 0x10
	Version11 uint8 = 0x11
	Version12 uint8 = 0x12
)
