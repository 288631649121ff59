// Package transport provides line-oriented session semantics — one JSON
// envelope per text frame — on top of internal/wsframe's client-side
// WebSocket framing.
package transport

import (
	"io"

	"mudvaultmesh/internal/wsframe"
)

// ResultKind classifies what ReadNext produced.
type ResultKind int

const (
	// ResultEnvelope carries one complete JSON envelope read from the wire.
	ResultEnvelope ResultKind = iota
	// ResultPong indicates a liveness pong was received; Envelope is empty.
	ResultPong
	// ResultClosed indicates the peer closed the connection cleanly.
	ResultClosed
)

// Result is what Session.ReadNext returns on success.
type Result struct {
	Kind     ResultKind
	Envelope []byte
}

// Session wraps a framed WebSocket connection with envelope-at-a-time
// read/write. It does not itself retry partial reads — wsframe.Conn already
// buffers a partial frame across Read calls — but it is the boundary the
// rest of the client talks to, so that boundary can change independently
// of the framing layer.
type Session struct {
	conn *wsframe.Conn
}

// Dial performs the WebSocket opening handshake over rw and returns a
// Session ready to exchange envelopes. Any handshake failure is permanent
// for this attempt — the caller tears down and retries later per the
// connection state machine's backoff policy.
func Dial(rw io.ReadWriter, params wsframe.HandshakeParams) (*Session, error) {
	conn, err := wsframe.Handshake(rw, params)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn}, nil
}

// Send writes one JSON envelope as a single WebSocket text frame.
func (s *Session) Send(envelopeJSON []byte) error {
	return s.conn.WriteText(envelopeJSON)
}

// Ping sends a heartbeat ping control frame.
func (s *Session) Ping() error {
	return s.conn.WritePing(nil)
}

// ReadNext blocks until the next application-visible event: an envelope, a
// pong (liveness signal), or a clean close. Any I/O or protocol error is
// returned as err and is terminal for this Session.
func (s *Session) ReadNext() (Result, error) {
	ev, err := s.conn.Next()
	if err != nil {
		return Result{}, err
	}
	switch ev.Kind {
	case wsframe.EventData:
		return Result{Kind: ResultEnvelope, Envelope: ev.Payload}, nil
	case wsframe.EventPong:
		return Result{Kind: ResultPong}, nil
	case wsframe.EventClosed:
		return Result{Kind: ResultClosed}, nil
	default:
		return Result{}, io.ErrUnexpectedEOF
	}
}

// Close sends a close frame. It does not close the underlying rw — the
// caller (connection state machine) owns that lifecycle, mirroring the
// teacher's ownership split between Room (state) and the net.Conn it is
// handed.
func (s *Session) Close() error {
	return s.conn.Close(1000, "bye")
}
