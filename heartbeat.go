package spdm

import (
	"context"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// Heartbeat sends HEARTBEAT over session, an application-phase keepalive
// used to refresh the responder's liveness timer without transferring
// application data (spec.md §4.2.8). It carries no transcript binding
// beyond the sequence-numbered AEAD nonce.
func (c *Connection) Heartbeat(ctx context.Context, session *Session) error {
	reqBytes := wire.HeartbeatRequest{SPDMVersion: c.selectedVersion}.Encode()

	respBytes, err := c.securedRoundTrip(ctx, session, reqBytes, wire.HeartbeatAck)
	if err != nil {
		return err
	}
	if _, err := wire.DecodeHeartbeatAckResponse(respBytes); err != nil {
		return wrapError(DeviceError, "Heartbeat", "malformed HEARTBEAT_ACK response", err)
	}
	return nil
}
