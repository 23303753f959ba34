package spdm

import (
	"context"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// PskFinishInfo is returned by PskFinish on success.
type PskFinishInfo struct{}

// PskFinish sends RequesterVerifyData over TH2 (no responder
// verify-data round trip: PSK_FINISH_RSP carries no body) and, on
// success, derives application-phase keys from TH3 (spec.md §4.2.5).
func (c *Connection) PskFinish(ctx context.Context, session *Session) (*PskFinishInfo, error) {
	if err := session.checkUsable(); err != nil {
		return nil, err
	}
	hashSize, err := HashSize(c.hashAlgo)
	if err != nil {
		return nil, err
	}

	reqHeaderBytes := wire.PskFinishRequest{SPDMVersion: c.selectedVersion}.Encode()
	th2Input := append(append([]byte{}, session.transcriptTH.Bytes()...), reqHeaderBytes...)

	hasher, err := c.crypto.Hasher(c.hashAlgo)
	if err != nil {
		return nil, err
	}
	h := hasher()
	h.Write(th2Input)
	th2 := h.Sum(nil)

	verifyKey, err := hkdfExpandLabel(c.crypto, c.hashAlgo, session.sharedSecret, "psk finish verify", th2, hashSize)
	if err != nil {
		return nil, err
	}
	requesterVerifyData, err := c.crypto.HMAC(c.hashAlgo, verifyKey, th2Input)
	if err != nil {
		return nil, err
	}

	reqBytes := wire.PskFinishRequest{
		SPDMVersion: c.selectedVersion,
		VerifyData:  requesterVerifyData,
	}.Encode()

	tempTB := &TranscriptBuffer{}
	respBytes, r, err := c.roundTrip(ctx, tempTB, reqBytes, wire.PskFinishRsp, wire.PskFinish)
	if err != nil {
		return nil, err
	}

	if _, err := wire.DecodePskFinishResponse(respBytes); err != nil {
		r.Rollback()
		return nil, wrapError(DeviceError, "PskFinish", "malformed PSK_FINISH_RSP response", err)
	}

	r.Commit()
	session.transcriptTH.Append(reqBytes).Commit()
	session.transcriptTH.Append(respBytes).Commit()

	h3 := hasher()
	h3.Write(session.transcriptTH.Bytes())
	th3 := h3.Sum(nil)

	if err := session.deriveApplicationKeys(session.sharedSecret, th3); err != nil {
		return nil, err
	}

	return &PskFinishInfo{}, nil
}
