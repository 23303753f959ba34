package spdm

import (
	"context"
	"errors"
	"time"

	"github.com/raghuncstate/go-spdm/internal/wire"
)

var errTestTransport = errors.New("scriptedTransport: simulated transport failure")

// scriptedStep is one Send/Receive pair a scriptedTransport plays back,
// in the style of the mock transport the original's
// unit_test/test_spdm_requester suite drives its cases through.
type scriptedStep struct {
	reply []byte
	err   error
}

// scriptedTransport is a fake Transport that plays back a fixed
// sequence of replies and records every payload sent, so tests can
// assert both the returned outcome and the exact bytes exchanged.
type scriptedTransport struct {
	steps []scriptedStep
	idx   int
	sent  [][]byte
}

func (t *scriptedTransport) Send(ctx context.Context, sessionID *uint32, payload []byte, timeout time.Duration) error {
	t.sent = append(t.sent, append([]byte{}, payload...))
	return nil
}

func (t *scriptedTransport) Receive(ctx context.Context, sessionID *uint32, timeout time.Duration) ([]byte, error) {
	if t.idx >= len(t.steps) {
		return nil, errors.New("scriptedTransport: script exhausted")
	}
	step := t.steps[t.idx]
	t.idx++
	if step.err != nil {
		return nil, step.err
	}
	return step.reply, nil
}

func encodeHeaderOnly(version uint8, code wire.RequestResponseCode, p1, p2 uint8) []byte {
	buf := make([]byte, wire.HeaderSize)
	wire.Header{SPDMVersion: version, RequestResponseCode: code, Param1: p1, Param2: p2}.Encode(buf)
	return buf
}

func buildVersionResponse(entries []wire.VersionEntry) []byte {
	buf := make([]byte, 6+2*len(entries))
	wire.Header{SPDMVersion: wire.Version10, RequestResponseCode: wire.Version}.Encode(buf)
	buf[5] = byte(len(entries))
	for i, e := range entries {
		off := 6 + 2*i
		buf[off] = byte(e)
		buf[off+1] = byte(e >> 8)
	}
	return buf
}

func buildErrorResponse(code wire.ErrorCode, data uint8, extended []byte) []byte {
	buf := make([]byte, wire.HeaderSize+len(extended))
	wire.Header{SPDMVersion: wire.Version10, RequestResponseCode: wire.Error, Param1: uint8(code), Param2: data}.Encode(buf)
	copy(buf[wire.HeaderSize:], extended)
	return buf
}

func buildResponseNotReady(rdExponent uint8, requestCode wire.RequestResponseCode, token, rdtm uint8) []byte {
	return buildErrorResponse(wire.ErrorCodeResponseNotReady, 0, []byte{rdExponent, uint8(requestCode), token, rdtm})
}

func newTestConnection(transport *scriptedTransport) *Connection {
	conn, err := NewConnection(Config{Transport: transport})
	if err != nil {
		panic(err)
	}
	return conn
}
