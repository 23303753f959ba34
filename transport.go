package spdm

import (
	"context"
	"time"
)

// Transport is the pluggable device-I/O capability handle spec.md §4.4
// and §6.2 describe: two blocking callbacks, synchronous from the
// caller's view, that move opaque bytes to and from the responder. A
// non-nil sessionID means the payload is (or must be) a session-secured
// application message (internal/wire.SecuredHeader); framing and
// sequence-number bookkeeping for that case is handled by Session, not
// by the Transport implementation itself — Transport only moves bytes.
//
// Implementations must treat Send/Receive as the only suspension
// points in this module (spec.md §5): everything else is synchronous
// CPU work on the calling goroutine.
type Transport interface {
	// Send transmits payload, blocking until it is accepted by the
	// underlying link or timeout elapses. A deadline expiry must be
	// reported as an Error with Kind Timeout.
	Send(ctx context.Context, sessionID *uint32, payload []byte, timeout time.Duration) error

	// Receive blocks for the next message addressed to this connection
	// (or, when sessionID is non-nil, this session) and returns its raw
	// bytes. A deadline expiry must be reported as an Error with Kind
	// Timeout.
	Receive(ctx context.Context, sessionID *uint32, timeout time.Duration) ([]byte, error)
}

// defaultTimeout is used when a Config does not specify one.
const defaultTimeout = 30 * time.Second
