package spdm

import (
	"context"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// DigestsInfo is returned by GetDigests: the bitmask of slots the
// responder populated and each slot's certificate-chain digest.
type DigestsInfo struct {
	SlotMask uint8
	Digests  map[int][]byte
}

// GetDigests issues GET_DIGESTS (spec.md §4.2.3). Floor:
// AfterNegotiateAlgorithms.
func (c *Connection) GetDigests(ctx context.Context) (*DigestsInfo, error) {
	if err := c.requireState(AfterNegotiateAlgorithms, "GetDigests"); err != nil {
		return nil, err
	}
	hashSize, err := HashSize(c.hashAlgo)
	if err != nil {
		return nil, err
	}

	tb := c.transcripts.get(TranscriptB)
	reqBytes := wire.GetDigestsRequest{SPDMVersion: c.selectedVersion}.Encode()

	respBytes, r, err := c.roundTrip(ctx, tb, reqBytes, wire.Digests, wire.GetDigests)
	if err != nil {
		return nil, err
	}

	dr, err := wire.DecodeDigestsResponse(respBytes, hashSize)
	if err != nil {
		r.Rollback()
		return nil, wrapError(DeviceError, "GetDigests", "malformed DIGESTS response", err)
	}

	r.Commit()
	tb.Append(respBytes).Commit()

	c.state = AfterDigests
	return &DigestsInfo{SlotMask: dr.SlotMask, Digests: dr.Digests}, nil
}
