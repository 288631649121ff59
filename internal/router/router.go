// Package router implements the inbound message dispatcher (§4.5): classify
// a decoded envelope by its message kind and invoke the matching handler,
// plus a correlation table for request/reply kinds (who, finger, locate)
// that expires unanswered requests after a fixed TTL.
//
// Grounded on the teacher's internal/ws.handler's large switch on
// protocol.Message.Type (server/internal/ws/handler.go) for the dispatch
// shape, and the sweep-and-release idiom from room.go's
// CheckMuteExpiry/PurgeExpiredBans for the correlation table's expiry.
package router

import "sync"

// Handlers holds one callback per known message kind. A nil callback means
// that kind is silently ignored (still counted, never causes an error).
type Handlers struct {
	OnTell     func(id, fromMUD, fromUser, toUser string, payload []byte)
	OnEmote    func(id, fromMUD, fromUser string, payload []byte)
	OnEmoteTo  func(id, fromMUD, fromUser, toUser string, payload []byte)
	OnChannel  func(id, fromMUD, fromUser, channel string, payload []byte)
	OnWho      func(id, fromMUD string, payload []byte)
	OnFinger   func(id, fromMUD string, payload []byte)
	OnLocate   func(id, fromMUD string, payload []byte)
	OnPresence func(id, fromMUD string, payload []byte)
	OnAuth     func(id, fromMUD string, payload []byte)
	OnPing     func(id, fromMUD string, payload []byte)
	OnPong     func(id, fromMUD string, payload []byte)
	OnError    func(id, fromMUD string, payload []byte)

	// Unknown is invoked for any kind not in the closed set. The default
	// router behavior for this, absent a handler, is to drop silently.
	Unknown func(kind, id, fromMUD string, payload []byte)
}

// Router classifies decoded envelope fields and invokes the matching
// Handlers callback. Router itself holds no mutable state; it is safe for
// concurrent use as long as Handlers' callbacks are.
type Router struct {
	h Handlers
}

// New returns a Router dispatching to h.
func New(h Handlers) *Router {
	return &Router{h: h}
}

// Route dispatches one decoded envelope by kind. fromUser/toUser/channel
// are extracted by the caller from the envelope's from/to parties as
// appropriate for the kind; callers pass "" for fields that kind doesn't
// use.
func (r *Router) Route(kind, id, fromMUD, fromUser, toUser, channel string, payload []byte) {
	switch kind {
	case "tell":
		if r.h.OnTell != nil {
			r.h.OnTell(id, fromMUD, fromUser, toUser, payload)
		}
	case "emote":
		if r.h.OnEmote != nil {
			r.h.OnEmote(id, fromMUD, fromUser, payload)
		}
	case "emoteto":
		if r.h.OnEmoteTo != nil {
			r.h.OnEmoteTo(id, fromMUD, fromUser, toUser, payload)
		}
	case "channel":
		if r.h.OnChannel != nil {
			r.h.OnChannel(id, fromMUD, fromUser, channel, payload)
		}
	case "who":
		if r.h.OnWho != nil {
			r.h.OnWho(id, fromMUD, payload)
		}
	case "finger":
		if r.h.OnFinger != nil {
			r.h.OnFinger(id, fromMUD, payload)
		}
	case "locate":
		if r.h.OnLocate != nil {
			r.h.OnLocate(id, fromMUD, payload)
		}
	case "presence":
		if r.h.OnPresence != nil {
			r.h.OnPresence(id, fromMUD, payload)
		}
	case "auth":
		if r.h.OnAuth != nil {
			r.h.OnAuth(id, fromMUD, payload)
		}
	case "ping":
		if r.h.OnPing != nil {
			r.h.OnPing(id, fromMUD, payload)
		}
	case "pong":
		if r.h.OnPong != nil {
			r.h.OnPong(id, fromMUD, payload)
		}
	case "error":
		if r.h.OnError != nil {
			r.h.OnError(id, fromMUD, payload)
		}
	default:
		if r.h.Unknown != nil {
			r.h.Unknown(kind, id, fromMUD, payload)
		}
	}
}

// correlationTTLSeconds is how long an outbound who/finger/locate request
// waits for a reply before it is considered abandoned.
const correlationTTLSeconds = 30

type pending struct {
	kind      string
	createdAt int64
}

// Correlator tracks outstanding request/reply pairs for who, finger, and
// locate, which — unlike tell/emote/channel — expect exactly one
// asynchronous reply per request.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]pending
}

// NewCorrelator returns an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]pending)}
}

// Register records envelope id as awaiting a reply, timestamped nowUnix.
func (c *Correlator) Register(id, kind string, nowUnix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = pending{kind: kind, createdAt: nowUnix}
}

// Resolve removes and returns the pending request matching id, reporting
// whether one was found. Callers invoke this when a reply envelope
// arrives referencing id.
func (c *Correlator) Resolve(id string) (kind string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, found := c.pending[id]
	if !found {
		return "", false
	}
	delete(c.pending, id)
	return p.kind, true
}

// SweepExpired removes and returns the ids of every request that has been
// pending for at least correlationTTLSeconds as of nowUnix, following the
// teacher's scan-collect-release sweep shape.
func (c *Correlator) SweepExpired(nowUnix int64) []string {
	c.mu.Lock()
	var expired []string
	for id, p := range c.pending {
		if nowUnix-p.createdAt >= correlationTTLSeconds {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return expired
}

// Pending reports how many requests are currently awaiting a reply.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
