package transport

import (
	"bytes"
	"encoding/binary"
	"testing"

	"mudvaultmesh/internal/wsframe"
)

func serverEncode(opcode byte, payload []byte) []byte {
	first := byte(0x80) | opcode
	length := len(payload)
	var header []byte
	switch {
	case length < 126:
		header = []byte{first, byte(length)}
	case length <= 0xFFFF:
		header = make([]byte, 4)
		header[0] = first
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(length))
	default:
		header = make([]byte, 10)
	}
	return append(header, payload...)
}

// respondingRW captures the client's handshake request to compute a valid
// Sec-WebSocket-Accept, then serves serverFrames as the post-handshake
// frame stream. Bytes the client writes after the handshake go to out.
type respondingRW struct {
	req          bytes.Buffer
	resp         *bytes.Reader
	serverFrames []byte
	out          bytes.Buffer
}

func (r *respondingRW) Write(p []byte) (int, error) {
	if r.resp != nil {
		return r.out.Write(p)
	}
	n, err := r.req.Write(p)
	if r.resp == nil && bytes.Contains(r.req.Bytes(), []byte("\r\n\r\n")) {
		key := extractKey(r.req.String())
		accept := wsframe.AcceptHash(key)
		head := "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: " + accept + "\r\n\r\n"
		full := append([]byte(head), r.serverFrames...)
		r.resp = bytes.NewReader(full)
	}
	return n, err
}

func (r *respondingRW) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func extractKey(req string) string {
	const marker = "Sec-WebSocket-Key: "
	i := bytes.Index([]byte(req), []byte(marker))
	if i < 0 {
		return ""
	}
	rest := req[i+len(marker):]
	j := bytes.IndexByte([]byte(rest), '\r')
	if j < 0 {
		return rest
	}
	return rest[:j]
}

func dialWithComputedAccept(t *testing.T, serverFrames []byte) (*Session, *bytes.Buffer) {
	t.Helper()
	rw := &respondingRW{serverFrames: serverFrames}
	sess, err := Dial(rw, wsframe.HandshakeParams{Host: "mesh.example:8081", Path: "/"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return sess, &rw.out
}

func TestSessionReadNextEnvelope(t *testing.T) {
	payload := []byte(`{"type":"tell"}`)
	sess, _ := dialWithComputedAccept(t, serverEncode(wsframe.OpText, payload))

	res, err := sess.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if res.Kind != ResultEnvelope || string(res.Envelope) != string(payload) {
		t.Fatalf("got %+v", res)
	}
}

func TestSessionReadNextPong(t *testing.T) {
	sess, _ := dialWithComputedAccept(t, serverEncode(wsframe.OpPong, []byte("x")))
	res, err := sess.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if res.Kind != ResultPong {
		t.Fatalf("got %+v, want ResultPong", res)
	}
}

func TestSessionReadNextClosed(t *testing.T) {
	sess, _ := dialWithComputedAccept(t, serverEncode(wsframe.OpClose, []byte{0x03, 0xe8}))
	res, err := sess.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if res.Kind != ResultClosed {
		t.Fatalf("got %+v, want ResultClosed", res)
	}
}

func TestSessionSendWritesMaskedFrame(t *testing.T) {
	sess, out := dialWithComputedAccept(t, nil)
	before := out.Len()
	if err := sess.Send([]byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.Len() <= before {
		t.Fatal("expected Send to write bytes to the underlying stream")
	}
}
