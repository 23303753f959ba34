package wire

import "fmt"

// SecuredHeaderSize is the size of the envelope prefixed to an
// application message once it is wrapped for a session (spec.md §4.4):
// the session id and the length of the AEAD-sealed payload that
// follows (ciphertext plus trailing authentication tag).
const SecuredHeaderSize = 6

// SecuredHeader is the envelope for a session-encrypted application
// message, distinguishing it from a plain (pre-session) SPDM message at
// the transport layer.
type SecuredHeader struct {
	SessionID uint32
	Length    uint16
}

func (h SecuredHeader) Encode(buf []byte) {
	putU32(buf[0:4], h.SessionID)
	putU16(buf[4:6], h.Length)
}

func DecodeSecuredHeader(buf []byte) (SecuredHeader, error) {
	if len(buf) < SecuredHeaderSize {
		return SecuredHeader{}, fmt.Errorf("wire: short secured message header: %d bytes", len(buf))
	}
	return SecuredHeader{
		SessionID: getU32(buf[0:4]),
		Length:    getU16(buf[4:6]),
	}, nil
}
