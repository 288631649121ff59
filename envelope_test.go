package mesh

import (
	"testing"
	"time"
)

func TestEnvelopeEncodeDecodeRoundTrip(t *testing.T) {
	e := NewEnvelope(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "Alpha", KindTell)
	e.To = Party{MUD: "Beta", User: "Alice"}
	e.From.User = "Bob"
	e.Payload = []byte(`{"message":"hi"}`)

	raw := e.Encode()
	got, derr := DecodeEnvelope(raw)
	if derr != nil {
		t.Fatalf("DecodeEnvelope: %v", derr)
	}
	if got.Version != ProtocolVersion {
		t.Errorf("version = %q", got.Version)
	}
	if got.ID != e.ID {
		t.Errorf("id = %q, want %q", got.ID, e.ID)
	}
	if got.Type != KindTell {
		t.Errorf("type = %q", got.Type)
	}
	if got.From.MUD != "Alpha" || got.From.User != "Bob" {
		t.Errorf("from = %+v", got.From)
	}
	if got.To.MUD != "Beta" || got.To.User != "Alice" {
		t.Errorf("to = %+v", got.To)
	}
	msg, ok := got.PayloadString("message")
	if !ok || msg != "hi" {
		t.Errorf("payload.message = %q, %v", msg, ok)
	}
	if got.Metadata.Priority != 5 || got.Metadata.TTL != 300 {
		t.Errorf("metadata = %+v", got.Metadata)
	}
}

func TestDecodeEnvelopeRejectsMissingVersion(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"type":"tell","from":{"mud":"Beta"}}`))
	if err == nil || err.Kind != KindProtocol {
		t.Fatalf("err = %v, want protocol error", err)
	}
}

func TestDecodeEnvelopeRejectsIncompatibleMajorVersion(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":"2.0","type":"tell","from":{"mud":"Beta"}}`))
	if err == nil || err.Kind != KindProtocol {
		t.Fatalf("err = %v, want protocol error", err)
	}
}

func TestDecodeEnvelopeRejectsUnknownType(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":"1.0","type":"bogus","from":{"mud":"Beta"}}`))
	if err == nil || err.Kind != KindProtocol {
		t.Fatalf("err = %v, want protocol error", err)
	}
}

func TestDecodeEnvelopeRejectsMissingFromMUD(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":"1.0","type":"tell","from":{}}`))
	if err == nil || err.Kind != KindProtocol {
		t.Fatalf("err = %v, want protocol error", err)
	}
}

func TestDecodeEnvelopeKnownSample(t *testing.T) {
	raw := []byte(`{"version":"1.0","id":"a1","timestamp":"2024-01-01T00:00:00Z","type":"tell","from":{"mud":"Beta","user":"Alice"},"to":{"mud":"Alpha","user":"Bob"},"payload":{"message":"hi"},"metadata":{"priority":5,"ttl":300,"encoding":"utf-8","language":"en"}}`)
	e, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if e.From.User != "Alice" || e.To.User != "Bob" {
		t.Fatalf("got %+v", e)
	}
	msg, _ := e.PayloadString("message")
	if msg != "hi" {
		t.Fatalf("message = %q", msg)
	}
}

func TestEnvelopeIDsAreUnique(t *testing.T) {
	a := NewEnvelope(time.Now(), "Alpha", KindPing)
	b := NewEnvelope(time.Now(), "Alpha", KindPing)
	if a.ID == b.ID {
		t.Fatal("expected distinct envelope ids")
	}
}
