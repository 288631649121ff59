package mesh

import (
	"time"

	"github.com/google/uuid"

	"mudvaultmesh/internal/envelope"
)

// ProtocolVersion is the wire protocol version this client speaks and the
// only major version it accepts on inbound envelopes (§6).
const ProtocolVersion = "1.0"

// Kind is the closed set of message kinds carried in an envelope's "type"
// field (§3). Any other wire value is a protocol error.
type Kind string

const (
	KindTell     Kind = "tell"
	KindEmote    Kind = "emote"
	KindEmoteTo  Kind = "emoteto"
	KindChannel  Kind = "channel"
	KindWho      Kind = "who"
	KindFinger   Kind = "finger"
	KindLocate   Kind = "locate"
	KindPresence Kind = "presence"
	KindAuth     Kind = "auth"
	KindPing     Kind = "ping"
	KindPong     Kind = "pong"
	KindErr      Kind = "error"
)

// knownKinds is used to reject any value outside the closed set.
var knownKinds = map[Kind]bool{
	KindTell: true, KindEmote: true, KindEmoteTo: true, KindChannel: true,
	KindWho: true, KindFinger: true, KindLocate: true, KindPresence: true,
	KindAuth: true, KindPing: true, KindPong: true, KindErr: true,
}

// IsKnownKind reports whether k is one of the closed set of message kinds.
func IsKnownKind(k Kind) bool { return knownKinds[Kind(k)] }

// Party is the from/to identity pair on an envelope: a MUD name, and
// optionally a user on that MUD.
type Party struct {
	MUD  string
	User string // empty when the envelope addresses a whole MUD
}

// Metadata is the fixed envelope metadata block.
type Metadata struct {
	Priority int // 1-10
	TTL      int // seconds
	Encoding string
	Language string
}

// Envelope is the fixed-shape wire message exchanged with the gateway (§3).
type Envelope struct {
	Version   string
	ID        string
	Timestamp time.Time
	Type      Kind
	From      Party
	To        Party
	Payload   []byte // raw JSON object/array/string, passed through verbatim
	Metadata  Metadata
}

// NewEnvelope builds an outbound envelope with a fresh unique ID and the
// current wallclock timestamp, leaving Payload/Metadata for the caller to
// fill in. fromMUD must equal the configured local MUD name (Invariant e).
func NewEnvelope(now time.Time, fromMUD string, kind Kind) Envelope {
	return Envelope{
		Version:   ProtocolVersion,
		ID:        uuid.NewString(),
		Timestamp: now,
		Type:      kind,
		From:      Party{MUD: fromMUD},
		Metadata:  Metadata{Priority: 5, TTL: 300, Encoding: "utf-8", Language: "en"},
	}
}

// Encode serialises e as the JSON envelope shape the gateway expects.
func (e Envelope) Encode() []byte {
	from := envelope.NewBuilder().Str("mud", e.From.MUD)
	if e.From.User != "" {
		from.Str("user", e.From.User)
	}

	to := envelope.NewBuilder().Str("mud", e.To.MUD)
	if e.To.User != "" {
		to.Str("user", e.To.User)
	}

	meta := envelope.NewBuilder().
		Int("priority", int64(e.Metadata.Priority)).
		Int("ttl", int64(e.Metadata.TTL)).
		Str("encoding", e.Metadata.Encoding).
		Str("language", e.Metadata.Language).
		Bytes()

	b := envelope.NewBuilder().
		Str("version", e.Version).
		Str("id", e.ID).
		Str("timestamp", e.Timestamp.UTC().Format(time.RFC3339)).
		Str("type", string(e.Type)).
		Raw("from", from.Bytes()).
		Raw("to", to.Bytes()).
		Raw("metadata", meta)

	if len(e.Payload) > 0 {
		b.Raw("payload", e.Payload)
	} else {
		b.Raw("payload", []byte("{}"))
	}
	return b.Bytes()
}

// DecodeEnvelope parses raw per the fixed envelope shape. It returns a
// protocol error (never a panic) when version is missing, the major
// version is incompatible, type is unknown, or from.mud is absent — per
// the router's decode contract (§4.5).
func DecodeEnvelope(raw []byte) (Envelope, *Error) {
	version, ok := envelope.GetString(raw, "version")
	if !ok {
		return Envelope{}, newError(KindProtocol, "envelope missing version")
	}
	if majorVersion(version) != majorVersion(ProtocolVersion) {
		return Envelope{}, newError(KindProtocol, "incompatible protocol version %q", version)
	}

	typ, ok := envelope.GetString(raw, "type")
	if !ok {
		return Envelope{}, newError(KindProtocol, "envelope missing type")
	}
	if !IsKnownKind(Kind(typ)) {
		return Envelope{}, newError(KindProtocol, "unknown message type %q", typ)
	}

	fromMUD, ok := envelope.GetString(raw, "from.mud")
	if !ok || fromMUD == "" {
		return Envelope{}, newError(KindProtocol, "envelope missing from.mud")
	}

	id, _ := envelope.GetString(raw, "id")
	tsStr, _ := envelope.GetString(raw, "timestamp")
	ts, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		ts = time.Time{}
	}

	e := Envelope{
		Version:   version,
		ID:        id,
		Timestamp: ts,
		Type:      Kind(typ),
		From:      Party{MUD: fromMUD},
	}
	if u, ok := envelope.GetString(raw, "from.user"); ok {
		e.From.User = u
	}
	if toMUD, ok := envelope.GetString(raw, "to.mud"); ok {
		e.To.MUD = toMUD
	}
	if toUser, ok := envelope.GetString(raw, "to.user"); ok {
		e.To.User = toUser
	}
	if payload, ok := envelope.GetRaw(raw, "payload"); ok {
		e.Payload = payload
	}
	if p, ok := envelope.GetInt(raw, "metadata.priority"); ok {
		e.Metadata.Priority = int(p)
	}
	if ttl, ok := envelope.GetInt(raw, "metadata.ttl"); ok {
		e.Metadata.TTL = int(ttl)
	}
	if enc, ok := envelope.GetString(raw, "metadata.encoding"); ok {
		e.Metadata.Encoding = enc
	}
	if lang, ok := envelope.GetString(raw, "metadata.language"); ok {
		e.Metadata.Language = lang
	}
	return e, nil
}

// majorVersion returns the portion of a "major.minor" version string
// before the first dot.
func majorVersion(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] == '.' {
			return v[:i]
		}
	}
	return v
}

// PayloadString is a convenience accessor for a single string field inside
// Payload, e.g. PayloadString("message").
func (e Envelope) PayloadString(key string) (string, bool) {
	return envelope.GetString(e.Payload, key)
}

// PayloadInt is a convenience accessor for a single integer field inside
// Payload.
func (e Envelope) PayloadInt(key string) (int64, bool) {
	return envelope.GetInt(e.Payload, key)
}
