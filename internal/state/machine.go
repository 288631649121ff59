// Package state implements the connection state machine (§4.4):
// disconnected → connecting → handshaking → authenticating → authenticated,
// with exponential-backoff reconnection and ping/pong liveness tracking.
//
// Grounded on the teacher's Client.sendHealth (server/client.go): the same
// atomic-counter circuit-breaker shape — consecutive failures drive
// skip/backoff behavior, a success resets the counter — is reused here to
// drive reconnect backoff instead of datagram-send skipping.
package state

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Phase is one state of the connection lifecycle.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Handshaking
	Authenticating
	Authenticated
	Fatal
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// legalTransitions enumerates the edges of the state machine. A Fatal
// transition is always legal from any phase (abandoning reconnection
// attempts, or a host-initiated shutdown).
var legalTransitions = map[Phase][]Phase{
	Disconnected:   {Connecting, Fatal},
	Connecting:     {Handshaking, Disconnected, Fatal},
	Handshaking:    {Authenticating, Disconnected, Fatal},
	Authenticating: {Authenticated, Disconnected, Fatal},
	Authenticated:  {Disconnected, Fatal},
}

func isLegal(from, to Phase) bool {
	if to == Fatal {
		return true
	}
	for _, p := range legalTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// retryHealth tracks consecutive connect failures, the same shape as the
// teacher's sendHealth circuit breaker: a monotonically increasing failure
// counter that a single success resets to zero.
type retryHealth struct {
	failures atomic.Uint32
}

func (h *retryHealth) recordFailure() uint32 {
	return h.failures.Add(1)
}

func (h *retryHealth) recordSuccess() {
	h.failures.Store(0)
}

func (h *retryHealth) count() uint32 {
	return h.failures.Load()
}

// Machine tracks connection phase, reconnect backoff, and heartbeat
// liveness for a single mesh session.
type Machine struct {
	mu    sync.RWMutex
	phase Phase

	retry retryHealth

	lastPingSent      atomic.Int64 // unix seconds
	lastPongReceived  atomic.Int64 // unix seconds
	oldestUnackedPing atomic.Int64 // unix seconds; 0 means no ping is outstanding
}

// New returns a Machine starting in the Disconnected phase.
func New() *Machine {
	return &Machine{phase: Disconnected}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Transition moves the machine to 'to', reporting whether the edge from
// the current phase was legal. An illegal transition leaves the phase
// unchanged.
func (m *Machine) Transition(to Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !isLegal(m.phase, to) {
		return false
	}
	if to == Authenticated {
		m.retry.recordSuccess()
	}
	m.phase = to
	return true
}

// RecordConnectFailure registers a failed connection attempt and returns
// the new consecutive-failure count, for use in computing the next
// backoff delay.
func (m *Machine) RecordConnectFailure() uint32 {
	return m.retry.recordFailure()
}

// ConsecutiveFailures returns the current consecutive connect-failure count.
func (m *Machine) ConsecutiveFailures() uint32 {
	return m.retry.count()
}

// ResetFailures clears the consecutive connect-failure count without
// requiring a transition through Authenticated, for an operator-forced
// reconnect (the "reconnect" player command resets the attempt counter
// per its documented effect).
func (m *Machine) ResetFailures() {
	m.retry.recordSuccess()
}

// NextBackoff computes the exponential reconnect delay for the current
// failure count: base * factor^(failures-1), capped at max. A failure
// count of zero yields base. factor <= 1 is treated as the spec's default
// of 2 (retry_backoff, §6).
func (m *Machine) NextBackoff(base, max time.Duration, factor float64) time.Duration {
	if factor <= 1 {
		factor = 2
	}
	n := m.retry.count()
	if n == 0 {
		return base
	}
	delay := float64(base)
	for i := uint32(0); i < n-1 && delay < float64(max); i++ {
		delay *= factor
		if delay <= 0 || math.IsInf(delay, 0) { // overflow guard
			return max
		}
	}
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}

// ShouldAbandon reports whether the consecutive failure count has reached
// maxRetries (a maxRetries of 0 means unlimited retries).
func (m *Machine) ShouldAbandon(maxRetries int) bool {
	if maxRetries <= 0 {
		return false
	}
	return int(m.retry.count()) >= maxRetries
}

// RecordPingSent notes that a ping was sent at nowUnix. If no ping is
// currently outstanding, nowUnix also becomes the oldest-unacked-ping
// timestamp IsAlive measures against; a ping sent while an earlier one is
// still unacked does not push that timestamp forward, so liveness is
// judged against the first ping that went unanswered, not the most recent
// one (otherwise a steady stream of pings with no pongs would keep
// resetting the clock and the timeout could never trip).
func (m *Machine) RecordPingSent(nowUnix int64) {
	m.lastPingSent.Store(nowUnix)
	m.oldestUnackedPing.CompareAndSwap(0, nowUnix)
}

// RecordPongReceived notes that a pong was received at nowUnix and clears
// the oldest-unacked-ping marker — the connection is live again until the
// next ping goes unanswered.
func (m *Machine) RecordPongReceived(nowUnix int64) {
	m.lastPongReceived.Store(nowUnix)
	m.oldestUnackedPing.Store(0)
}

// LastPingSent returns the unix-second timestamp of the most recently sent
// ping, or 0 if none has been sent yet.
func (m *Machine) LastPingSent() int64 {
	return m.lastPingSent.Load()
}

// LastPongReceived returns the unix-second timestamp of the most recently
// received pong, or 0 if none has been received yet.
func (m *Machine) LastPongReceived() int64 {
	return m.lastPongReceived.Load()
}

// IsAlive reports whether the oldest still-unacknowledged ping is younger
// than timeoutSeconds. If no ping is currently outstanding (none sent yet,
// or the most recent one was already acked), the connection is considered
// alive.
func (m *Machine) IsAlive(nowUnix int64, timeoutSeconds int64) bool {
	oldest := m.oldestUnackedPing.Load()
	if oldest == 0 {
		return true
	}
	return nowUnix-oldest < timeoutSeconds
}
