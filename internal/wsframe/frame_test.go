package wsframe

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"
)

// serverEncode builds an unmasked server-to-client frame for test fixtures.
func serverEncode(opcode byte, payload []byte, fin bool) []byte {
	first := opcode & 0x0F
	if fin {
		first |= 0x80
	}
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
		header[0] = first
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(length))
	}
	return append(header, payload...)
}

func newTestConn(serverFrames []byte) (*Conn, *bytes.Buffer) {
	clientOut := &bytes.Buffer{}
	rw := &dualBuffer{in: bytes.NewBuffer(serverFrames), out: clientOut}
	return newConn(rw, bufio.NewReader(rw), DefaultMaxPayload), clientOut
}

// dualBuffer separates the read and write directions so reads from a prior
// Write never loop back.
type dualBuffer struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (d *dualBuffer) Read(p []byte) (int, error)  { return d.in.Read(p) }
func (d *dualBuffer) Write(p []byte) (int, error) { return d.out.Write(p) }

func TestWriteTextMasksAndFramesCorrectly(t *testing.T) {
	conn, out := newTestConn(nil)
	payload := []byte(`{"type":"ping"}`)
	if err := conn.WriteText(payload); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	data := out.Bytes()
	if data[0] != 0x81 { // FIN=1, opcode=text
		t.Fatalf("first byte = 0x%x, want 0x81", data[0])
	}
	if data[1]&0x80 == 0 {
		t.Fatal("MASK bit must be set on client frames")
	}
	length := int(data[1] & 0x7F)
	if length != len(payload) {
		t.Fatalf("length = %d, want %d", length, len(payload))
	}
	mask := data[2:6]
	got := make([]byte, length)
	copy(got, data[6:6+length])
	for i := range got {
		got[i] ^= mask[i%4]
	}
	if string(got) != string(payload) {
		t.Fatalf("unmasked payload = %q, want %q", got, payload)
	}
}

func TestHeaderLengthEncoding(t *testing.T) {
	cases := []struct {
		name   string
		length int
	}{
		{"125 fits 7-bit", 125},
		{"126 needs 16-bit ext", 126},
		{"65535 fits 16-bit", 65535},
		{"65536 needs 64-bit ext", 65536},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := encodeHeader(OpText, c.length, true)
			switch {
			case c.length < 126:
				if len(h) != 2 {
					t.Fatalf("header length = %d, want 2", len(h))
				}
			case c.length <= 0xFFFF:
				if len(h) != 4 || h[1]&0x7F != 126 {
					t.Fatalf("expected 4-byte header with ext16 marker, got %v", h)
				}
			default:
				if len(h) != 10 || h[1]&0x7F != 127 {
					t.Fatalf("expected 10-byte header with ext64 marker, got %v", h)
				}
			}
		})
	}
}

func TestNextDeliversTextFrame(t *testing.T) {
	payload := []byte(`{"type":"pong"}`)
	conn, _ := newTestConn(serverEncode(OpText, payload, true))
	ev, err := conn.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Kind != EventData || string(ev.Payload) != string(payload) {
		t.Fatalf("got %+v", ev)
	}
}

func TestNextAnswersPingWithPongTransparently(t *testing.T) {
	pingPayload := []byte("keepalive")
	textPayload := []byte(`{"type":"tell"}`)
	frames := append(serverEncode(OpPing, pingPayload, true), serverEncode(OpText, textPayload, true)...)
	conn, out := newTestConn(frames)

	ev, err := conn.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Kind != EventData {
		t.Fatalf("expected ping to be answered transparently and text frame surfaced, got %+v", ev)
	}

	sent := out.Bytes()
	if sent[0]&0x0F != OpPong {
		t.Fatalf("expected an automatic pong reply, first frame opcode = 0x%x", sent[0]&0x0F)
	}
}

func TestNextSurfacesPong(t *testing.T) {
	conn, _ := newTestConn(serverEncode(OpPong, []byte("abc"), true))
	ev, err := conn.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Kind != EventPong || string(ev.Payload) != "abc" {
		t.Fatalf("got %+v", ev)
	}
}

func TestNextSurfacesClose(t *testing.T) {
	conn, out := newTestConn(serverEncode(OpClose, []byte{0x03, 0xe8}, true))
	ev, err := conn.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Kind != EventClosed {
		t.Fatalf("got %+v, want EventClosed", ev)
	}
	if out.Len() == 0 {
		t.Fatal("expected a best-effort close reply to be written")
	}
}

func TestNextRejectsFragmentation(t *testing.T) {
	conn, _ := newTestConn(serverEncode(OpText, []byte("partial"), false))
	_, err := conn.Next()
	if err != ErrFragmented {
		t.Fatalf("err = %v, want ErrFragmented", err)
	}
}

func TestNextRejectsOversizedPayload(t *testing.T) {
	big := make([]byte, 200)
	conn, _ := newTestConn(serverEncode(OpText, big, true))
	conn.maxPayload = 100
	_, err := conn.Next()
	if err != ErrPayloadTooLarge {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestNextRejectsUnknownOpcode(t *testing.T) {
	conn, _ := newTestConn(serverEncode(0x3, []byte("x"), true))
	_, err := conn.Next()
	if err == nil {
		t.Fatal("expected an error for a reserved opcode")
	}
}
