// Package directory implements the gateway-fed peer-MUD and remote-user
// caches (§4.9): short-lived, TTL-expiring lookup tables swept for
// staleness on a timer. The client fills the remote-user table from
// "presence" envelopes and the peer-MUD table from the from.mud of every
// inbound envelope.
//
// Grounded on the teacher's Room.CheckMuteExpiry (server/room.go), which
// scans its client map for expired state under the lock, collects the
// expired keys, releases the lock, then acts on the collected set. The
// sweep methods here follow that same scan-collect-release shape.
package directory

import "sync"

// PeerMUD describes a remote mud as last reported by the gateway.
type PeerMUD struct {
	Name      string
	Host      string
	Port      int
	UserCount int
	expiresAt int64 // unix seconds
}

// RemoteUser describes a remote user as last reported by a locate/who reply.
type RemoteUser struct {
	Name      string
	MUD       string
	Idle      int64
	expiresAt int64 // unix seconds
}

// defaultTTLSeconds controls how long a cached entry is considered fresh
// absent an explicit TTL from the caller (§3: 1 hour for both peer-MUD and
// remote-user records).
const defaultTTLSeconds = 3600

// Cache holds peer-MUD and remote-user entries with independent TTLs.
type Cache struct {
	mu    sync.RWMutex
	muds  map[string]*PeerMUD
	users map[string]*RemoteUser // keyed by "user@mud"
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		muds:  make(map[string]*PeerMUD),
		users: make(map[string]*RemoteUser),
	}
}

// PutMUD records or refreshes a peer mud entry, valid until nowUnix+ttl.
// A ttl of 0 uses defaultTTLSeconds.
func (c *Cache) PutMUD(m PeerMUD, nowUnix int64, ttlSeconds int64) {
	if ttlSeconds <= 0 {
		ttlSeconds = defaultTTLSeconds
	}
	m.expiresAt = nowUnix + ttlSeconds
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muds[m.Name] = &m
}

// TouchMUD records a sighting of name at nowUnix, refreshing its TTL.
// Per §4.9 the peer-MUD cache is "updated by any envelope bearing
// from.mud", not just explicit directory listings, so an unknown mud gets
// a bare placeholder entry and a known one just has its TTL extended.
func (c *Cache) TouchMUD(name string, nowUnix int64) {
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.muds[name]
	if !ok {
		m = &PeerMUD{Name: name}
		c.muds[name] = m
	}
	m.expiresAt = nowUnix + defaultTTLSeconds
}

// MUD returns the cached peer mud entry, if present and not yet swept.
func (c *Cache) MUD(name string) (PeerMUD, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.muds[name]
	if !ok {
		return PeerMUD{}, false
	}
	return *m, true
}

// MUDs returns a snapshot of every cached peer mud.
func (c *Cache) MUDs() []PeerMUD {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PeerMUD, 0, len(c.muds))
	for _, m := range c.muds {
		out = append(out, *m)
	}
	return out
}

// PutUser records or refreshes a remote user entry, keyed by "user@mud".
func (c *Cache) PutUser(u RemoteUser, nowUnix int64, ttlSeconds int64) {
	if ttlSeconds <= 0 {
		ttlSeconds = defaultTTLSeconds
	}
	u.expiresAt = nowUnix + ttlSeconds
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.Name+"@"+u.MUD] = &u
}

// User returns the cached remote user entry, if present and not yet swept.
func (c *Cache) User(name, mud string) (RemoteUser, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[name+"@"+mud]
	if !ok {
		return RemoteUser{}, false
	}
	return *u, true
}

// SweepExpired evicts every entry (mud or user) whose TTL has elapsed as
// of nowUnix, returning how many of each were removed. Intended to be
// called periodically, the way the teacher's main loop calls
// CheckMuteExpiry on a ticker.
func (c *Cache) SweepExpired(nowUnix int64) (mudsExpired, usersExpired int) {
	c.mu.Lock()
	var expiredMUDs []string
	for name, m := range c.muds {
		if nowUnix >= m.expiresAt {
			expiredMUDs = append(expiredMUDs, name)
		}
	}
	for _, name := range expiredMUDs {
		delete(c.muds, name)
	}

	var expiredUsers []string
	for key, u := range c.users {
		if nowUnix >= u.expiresAt {
			expiredUsers = append(expiredUsers, key)
		}
	}
	for _, key := range expiredUsers {
		delete(c.users, key)
	}
	c.mu.Unlock()

	return len(expiredMUDs), len(expiredUsers)
}
