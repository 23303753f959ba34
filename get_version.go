package spdm

import (
	"context"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// VersionInfo is returned by GetVersion on success: the version this
// module selected plus the responder's full offered list.
type VersionInfo struct {
	SelectedVersion uint8
	ResponderOffers []wire.VersionEntry
}

// GetVersion issues GET_VERSION and negotiates the SPDM version
// (spec.md §4.2.1). Unlike every other transaction it may be called at
// any connection state: as its first side effect it resets the
// transcripts, clears sessions, and forces connection_state back to
// NotStarted before issuing the request — "two back-to-back GetVersion
// calls yield identical connection_state and transcript contents"
// (spec.md §8 round-trip law).
func (c *Connection) GetVersion(ctx context.Context) (*VersionInfo, error) {
	c.state = NotStarted
	c.transcripts.resetAll()
	for id, s := range c.sessions {
		s.terminate()
		delete(c.sessions, id)
	}

	tb := c.transcripts.get(TranscriptA1)
	reqBytes := wire.GetVersionRequest{}.Encode()

	respBytes, r, err := c.roundTrip(ctx, tb, reqBytes, wire.Version, wire.GetVersion)
	if err != nil {
		return nil, err
	}

	vr, err := wire.DecodeVersionResponse(respBytes)
	if err != nil {
		r.Rollback()
		return nil, wrapError(DeviceError, "GetVersion", "malformed VERSION response", err)
	}
	if len(vr.Entries) == 0 {
		r.Rollback()
		return nil, newError(DeviceError, "GetVersion", "VERSION reported zero version entries")
	}

	selected, ok := pickHighestCommonVersion(c.cfg.SupportedVersions, vr.Entries)
	if !ok {
		r.Rollback()
		return nil, newError(Unsupported, "GetVersion", "no SPDM version in common with the responder")
	}

	r.Commit()
	tb.Append(respBytes).Commit()

	c.selectedVersion = selected
	c.responderVersions = vr.Entries
	c.state = AfterVersion

	return &VersionInfo{SelectedVersion: selected, ResponderOffers: vr.Entries}, nil
}

// pickHighestCommonVersion selects the highest version present both in
// supported (requester-offered, (major<<4)|minor encoded) and offered
// (responder's VERSION entries).
func pickHighestCommonVersion(supported []uint8, offered []wire.VersionEntry) (uint8, bool) {
	best := uint8(0)
	found := false
	for _, sv := range supported {
		major := sv >> 4
		minor := sv & 0xF
		for _, oe := range offered {
			if oe.Major() == major && oe.Minor() == minor {
				if !found || sv > best {
					best = sv
					found = true
				}
				break
			}
		}
	}
	return best, found
}
