// Package spdm implements the requester (initiator) role of the DMTF
// Security Protocol and Data Model, following this module's
// teacher-layer convention of one file per wire transaction layered
// over a generic internal/wire codec package (see internal/wire).
//
// A Requester drives the connection-level transactions (GetVersion
// through Challenge), then the session-level ones (KeyExchange/
// PskExchange through EndSession), against a caller-supplied Transport.
// None of its methods are safe for concurrent use from multiple
// goroutines without external synchronization (spec.md §5) — Send and
// Receive on the supplied Transport are its only suspension points.
package spdm

import "context"

// Requester is the top-level entry point: a single negotiated
// connection plus whatever sessions it has established. It embeds
// *Connection so callers see one flat method set (GetVersion,
// GetCapabilities, NegotiateAlgorithms, GetDigests, GetCertificate,
// Challenge, KeyExchange, PskExchange, Finish, PskFinish, Heartbeat,
// KeyUpdate, EndSession, ProcessEncapsulatedRequests) rather than
// reaching through an inner field, the same flattening the teacher's
// top-level Session type applies over its tree connection.
type Requester struct {
	*Connection
}

// New builds a Requester from cfg. The returned value has not yet
// performed GET_VERSION; callers drive the protocol forward by calling
// its transaction methods in the order spec.md §2 describes.
func New(cfg Config) (*Requester, error) {
	conn, err := NewConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Requester{Connection: conn}, nil
}

// Negotiate runs the full connection-establishment sequence (GetVersion,
// GetCapabilities, NegotiateAlgorithms) in one call, for callers that
// have no need to inspect the intermediate results. It returns the
// final AlgorithmsInfo, from which GetDigests/GetCertificate/Challenge
// may proceed.
func (r *Requester) Negotiate(ctx context.Context) (*AlgorithmsInfo, error) {
	if _, err := r.GetVersion(ctx); err != nil {
		return nil, err
	}
	if _, err := r.GetCapabilities(ctx); err != nil {
		return nil, err
	}
	return r.NegotiateAlgorithms(ctx)
}
