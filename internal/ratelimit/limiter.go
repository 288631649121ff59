// Package ratelimit implements the per-operation-kind sliding rate limiter
// (§4.8): fixed 60-second windows keyed by window_start_second, counted
// per local-user identifier.
//
// Grounded on the teacher's Room.CheckControlRate, with its bug fixed: the
// teacher resets its counter whenever the wall-clock second changes
// (`now.Sub(last) >= time.Second`), which produces one-second windows
// wearing a per-minute limit's clothes. Design Note §9 Open Question (b)
// pins the intended behavior as a true 60-second window; this package
// implements that directly.
package ratelimit

import "sync"

// maxTrackedIdentifiers bounds memory for long-lived processes, mirroring
// the teacher's maxMsgOwners-style bounded eviction (room.go) applied to
// rate-limit state instead of message ownership.
const maxTrackedIdentifiers = 10000

const windowSeconds = 60

type counter struct {
	windowStart int64
	count       int
}

// kindState tracks one operation kind's per-identifier counters.
type kindState struct {
	limit    int
	counters map[string]*counter
	order    []string // insertion order, for bounded eviction
}

func newKindState(limit int) *kindState {
	return &kindState{limit: limit, counters: make(map[string]*counter)}
}

func (ks *kindState) allow(identifier string, nowUnix int64) bool {
	if ks.limit <= 0 {
		return true
	}
	c, ok := ks.counters[identifier]
	if !ok {
		if len(ks.order) >= maxTrackedIdentifiers {
			oldest := ks.order[0]
			ks.order = ks.order[1:]
			delete(ks.counters, oldest)
		}
		c = &counter{windowStart: nowUnix}
		ks.counters[identifier] = c
		ks.order = append(ks.order, identifier)
	}

	if nowUnix-c.windowStart >= windowSeconds {
		c.windowStart = nowUnix
		c.count = 0
	}

	if c.count >= ks.limit {
		return false
	}
	c.count++
	return true
}

// Limiter tracks rate-limit counters for a fixed set of operation kinds.
type Limiter struct {
	mu    sync.Mutex
	kinds map[string]*kindState
}

// New returns a Limiter with the given per-kind caps (messages per 60s
// window). A cap of 0 means unlimited for that kind.
func New(caps map[string]int) *Limiter {
	l := &Limiter{kinds: make(map[string]*kindState, len(caps))}
	for kind, limit := range caps {
		l.kinds[kind] = newKindState(limit)
	}
	return l
}

// Allow reports whether an operation of the given kind by identifier is
// within its rate limit at nowUnix (unix seconds), and — if so — counts it
// against the current window. A rejected attempt never consumes a slot
// (Invariant: rate-limited requests do not increment the counter).
func (l *Limiter) Allow(kind, identifier string, nowUnix int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ks, ok := l.kinds[kind]
	if !ok {
		// An untracked kind has no configured cap: unlimited by definition.
		return true
	}
	return ks.allow(identifier, nowUnix)
}
