package spdm

import (
	"context"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// EndSessionInfo is returned by EndSession on success.
type EndSessionInfo struct{}

// EndSession sends END_SESSION and, whether or not a valid
// END_SESSION_ACK is received, terminates the local session object
// (spec.md §4.2.6): any subsequent operation against it fails with a
// SecurityViolation Error whose message names SESSION_INVALID (spec.md
// §8 round-trip law). attributes carries the end_session_attributes bitmask (bit 0:
// preserve the negotiated state for a future session).
func (c *Connection) EndSession(ctx context.Context, session *Session, attributes uint8) (*EndSessionInfo, error) {
	if err := session.checkUsable(); err != nil {
		return nil, err
	}
	defer session.terminate()

	reqBytes := wire.EndSessionRequest{
		SPDMVersion:          c.selectedVersion,
		EndSessionAttributes: attributes,
	}.Encode()

	respBytes, err := c.securedRoundTrip(ctx, session, reqBytes, wire.EndSessionAck)
	if err != nil {
		return nil, err
	}
	if _, err := wire.DecodeEndSessionAckResponse(respBytes); err != nil {
		return nil, wrapError(DeviceError, "EndSession", "malformed END_SESSION_ACK response", err)
	}

	return &EndSessionInfo{}, nil
}
