package spdm

import (
	"context"
	"crypto/rand"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// KeyUpdateInfo is returned by KeyUpdate on success.
type KeyUpdateInfo struct{}

// KeyUpdate rotates the session's request-direction application key
// (spec.md §4.2.8). It is the two-step UpdateKey/VerifyNewKey exchange:
// the UpdateKey request is sent and acknowledged under the current key,
// the request-direction key is then rotated locally, and a VerifyNewKey
// request is sent under the new key to prove both sides derived it
// identically before any application data relies on it. A mismatched
// tag or action in either ACK is fatal — there is no rollback path for
// a key that has already been rotated, so a failed verify leaves the
// session usable only for the responder to independently decide its
// fate (documented as a deliberate simplification in DESIGN.md).
func (c *Connection) KeyUpdate(ctx context.Context, session *Session) (*KeyUpdateInfo, error) {
	if err := session.checkUsable(); err != nil {
		return nil, err
	}

	updateTag, err := randomTag()
	if err != nil {
		return nil, err
	}
	updateReq := wire.KeyUpdateRequest{
		SPDMVersion: c.selectedVersion,
		Action:      wire.KeyUpdateActionUpdateKey,
		Tag:         updateTag,
	}.Encode()

	updateResp, err := c.securedRoundTrip(ctx, session, updateReq, wire.KeyUpdateAck)
	if err != nil {
		return nil, err
	}
	updateAck, err := wire.DecodeKeyUpdateAckResponse(updateResp)
	if err != nil {
		return nil, wrapError(DeviceError, "KeyUpdate", "malformed KEY_UPDATE_ACK response", err)
	}
	if updateAck.Action != wire.KeyUpdateActionUpdateKey || updateAck.Tag != updateTag {
		return nil, newError(DeviceError, "KeyUpdate", "KEY_UPDATE_ACK did not echo the UpdateKey action and tag")
	}

	if err := session.rotateApplicationKey(true); err != nil {
		return nil, err
	}

	verifyTag, err := randomTag()
	if err != nil {
		return nil, err
	}
	verifyReq := wire.KeyUpdateRequest{
		SPDMVersion: c.selectedVersion,
		Action:      wire.KeyUpdateActionVerifyNewKey,
		Tag:         verifyTag,
	}.Encode()

	verifyResp, err := c.securedRoundTrip(ctx, session, verifyReq, wire.KeyUpdateAck)
	if err != nil {
		return nil, err
	}
	verifyAck, err := wire.DecodeKeyUpdateAckResponse(verifyResp)
	if err != nil {
		return nil, wrapError(DeviceError, "KeyUpdate", "malformed KEY_UPDATE_ACK response", err)
	}
	if verifyAck.Action != wire.KeyUpdateActionVerifyNewKey || verifyAck.Tag != verifyTag {
		return nil, newError(DeviceError, "KeyUpdate", "KEY_UPDATE_ACK did not echo the VerifyNewKey action and tag")
	}

	return &KeyUpdateInfo{}, nil
}

func randomTag() (uint8, error) {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, wrapError(DeviceError, "randomTag", "failed to generate KEY_UPDATE tag", err)
	}
	return b[0], nil
}
