package spdm

import (
	"context"
	"time"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

// handleErrorResponse implements the §4.3 decision table uniformly for
// every transaction. respBytes is the raw bytes of a response whose
// header decoded to wire.Error; reqReservation is the speculative
// transcript append for the original request; originalCode is the
// request code that was sent. On return, either a valid non-ERROR
// response's bytes are returned (and reqReservation is left uncommitted,
// for the caller to commit once its own verification succeeds), or an error
// is returned with reqReservation already rolled back (except
// REQUEST_RESYNCH, which resets the whole connection instead).
func (c *Connection) handleErrorResponse(ctx context.Context, tb *TranscriptBuffer, reqReservation *reservation, respBytes []byte, originalCode wire.RequestResponseCode, timeout time.Duration) ([]byte, error) {
	ep, err := wire.DecodeErrorResponse(respBytes)
	if err != nil {
		reqReservation.Rollback()
		return nil, wrapError(DeviceError, "handleErrorResponse", "malformed ERROR payload", err)
	}

	switch ep.Code {
	case wire.ErrorCodeBusy:
		logger.Printf("request 0x%02x: responder BUSY, no retry", originalCode)
		reqReservation.Rollback()
		return nil, newError(NoResponse, "handleErrorResponse", "responder reported BUSY")

	case wire.ErrorCodeRequestResynch:
		logger.Printf("request 0x%02x: responder requested REQUEST_RESYNCH, resetting connection", originalCode)
		reqReservation.Rollback()
		c.resetForResynch()
		return nil, newError(DeviceError, "handleErrorResponse", "responder requested REQUEST_RESYNCH")

	case wire.ErrorCodeResponseNotReady:
		logger.Printf("request 0x%02x: RESPONSE_NOT_READY, will retry via RESPOND_IF_READY", originalCode)
		return c.handleResponseNotReady(ctx, tb, reqReservation, ep, originalCode, timeout)

	default:
		logger.Printf("request 0x%02x: fatal ERROR code 0x%02x", originalCode, ep.Code)
		reqReservation.Rollback()
		return nil, newError(DeviceError, "handleErrorResponse", "responder returned a fatal ERROR code")
	}
}

// handleResponseNotReady implements the RESPONSE_NOT_READY row: parse
// the extended data, validate request_code matches, wait per the
// caller-supplied hook, send RESPOND_IF_READY, and process exactly one
// reply — a second ERROR terminates the transaction, it is not
// recursively retried (spec.md §4.3, §8 invariant 5, §9 open question:
// a request_code mismatch is treated as fatal).
func (c *Connection) handleResponseNotReady(ctx context.Context, tb *TranscriptBuffer, reqReservation *reservation, ep *wire.ErrorResponse, originalCode wire.RequestResponseCode, timeout time.Duration) ([]byte, error) {
	ext, err := wire.DecodeResponseNotReadyExtData(ep.Extended)
	if err != nil {
		reqReservation.Rollback()
		return nil, wrapError(DeviceError, "handleResponseNotReady", "malformed RESPONSE_NOT_READY extended data", err)
	}
	if wire.RequestResponseCode(ext.RequestCode) != originalCode {
		reqReservation.Rollback()
		return nil, newError(DeviceError, "handleResponseNotReady", "RESPONSE_NOT_READY request_code does not match the originating request")
	}

	c.waitForResponse(ext.RDExponent, ext.RDTM)

	retryReq := wire.RespondIfReadyRequest{
		SPDMVersion:         c.selectedVersion,
		OriginalRequestCode: originalCode,
		Token:               ext.Token,
	}.Encode()

	if err := c.transport.Send(ctx, nil, retryReq, timeout); err != nil {
		reqReservation.Rollback()
		return nil, wrapError(DeviceError, "handleResponseNotReady", "RESPOND_IF_READY send failed", err)
	}
	respBytes, err := c.transport.Receive(ctx, nil, timeout)
	if err != nil {
		reqReservation.Rollback()
		return nil, wrapError(DeviceError, "handleResponseNotReady", "RESPOND_IF_READY receive failed", err)
	}

	h, err := wire.DecodeHeader(respBytes)
	if err != nil {
		reqReservation.Rollback()
		return nil, wrapError(DeviceError, "handleResponseNotReady", "malformed reply to RESPOND_IF_READY", err)
	}
	if h.RequestResponseCode == wire.Error {
		// No further retry: a second ERROR is fatal, per spec.md §8 invariant 5.
		reqReservation.Rollback()
		return nil, newError(DeviceError, "handleResponseNotReady", "RESPOND_IF_READY reply was itself an ERROR")
	}

	return respBytes, nil
}
