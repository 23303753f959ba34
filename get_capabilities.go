package spdm

import (
	"context"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// CapabilitiesInfo is returned by GetCapabilities on success.
type CapabilitiesInfo struct {
	PeerFlags      wire.CapabilityFlags
	PeerCTExponent uint8
}

// GetCapabilities issues GET_CAPABILITIES (spec.md §4.2.2). Floor:
// AfterVersion.
func (c *Connection) GetCapabilities(ctx context.Context) (*CapabilitiesInfo, error) {
	if err := c.requireState(AfterVersion, "GetCapabilities"); err != nil {
		return nil, err
	}

	tb := c.transcripts.get(TranscriptA1)
	reqBytes := wire.GetCapabilitiesRequest{
		SPDMVersion: c.selectedVersion,
		CTExponent:  c.cfg.CTExponent,
		Flags:       c.cfg.LocalCapabilities,
	}.Encode()

	respBytes, r, err := c.roundTrip(ctx, tb, reqBytes, wire.Capabilities, wire.GetCapabilities)
	if err != nil {
		return nil, err
	}

	cr, err := wire.DecodeCapabilitiesResponse(respBytes)
	if err != nil {
		r.Rollback()
		return nil, wrapError(DeviceError, "GetCapabilities", "malformed CAPABILITIES response", err)
	}

	r.Commit()
	tb.Append(respBytes).Commit()

	c.localCaps = c.cfg.LocalCapabilities
	c.localCTExp = c.cfg.CTExponent
	c.peerCaps = cr.Flags
	c.peerCTExp = cr.CTExponent
	c.state = AfterCapabilities

	return &CapabilitiesInfo{PeerFlags: cr.Flags, PeerCTExponent: cr.CTExponent}, nil
}
