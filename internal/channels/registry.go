// Package channels implements the channel registry (§4.6): named channels
// with a purely local member set. Joining is local state only — the
// gateway is informed, but membership authority stays local (Invariant a).
package channels

import (
	"regexp"
	"sync"
)

// NamePattern is the validation regex for channel names (§3).
var NamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// Channel is the registry's view of one named channel: its gateway-supplied
// metadata plus the locally-joined member set.
type Channel struct {
	Name        string
	Description string
	Moderated   bool
	members     map[string]struct{}
}

// IsMember reports whether user has joined this channel.
func (c *Channel) IsMember(user string) bool {
	_, ok := c.members[normalize(user)]
	return ok
}

// Members returns the current local member set, newest additions in no
// particular guaranteed order (callers that need a stable order should
// sort it themselves).
func (c *Channel) Members() []string {
	out := make([]string, 0, len(c.members))
	for m := range c.members {
		out = append(out, m)
	}
	return out
}

// Registry owns every known channel. Channel records are retained even
// after their last local member leaves, so gateway-announced metadata
// (description, moderated flag) isn't lost — per §4.6.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// ValidName reports whether name matches the channel-name regex.
func ValidName(name string) bool {
	return NamePattern.MatchString(name)
}

func normalize(user string) string {
	return user // case sensitivity is the host's concern for player names
}

// getOrCreate returns the named channel, creating it with default
// attributes if it doesn't exist yet. Caller must hold r.mu for writing.
func (r *Registry) getOrCreate(name string) *Channel {
	if ch, ok := r.channels[name]; ok {
		return ch
	}
	ch := &Channel{Name: name, members: make(map[string]struct{})}
	r.channels[name] = ch
	return ch
}

// Join adds user to channel's local member set, creating the channel with
// default attributes if it is unknown. Returns false if name fails
// validation.
func (r *Registry) Join(name, user string) bool {
	if !ValidName(name) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := r.getOrCreate(name)
	ch.members[normalize(user)] = struct{}{}
	return true
}

// Leave removes user from channel's local member set. The channel record
// itself is retained even if this empties the member set. Returns false if
// the channel is unknown.
func (r *Registry) Leave(name, user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[name]
	if !ok {
		return false
	}
	delete(ch.members, normalize(user))
	return true
}

// IsMember reports whether user has joined the named channel.
func (r *Registry) IsMember(name, user string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	if !ok {
		return false
	}
	return ch.IsMember(user)
}

// Members returns the local member set of the named channel, or nil if the
// channel is unknown.
func (r *Registry) Members(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	if !ok {
		return nil
	}
	return ch.Members()
}

// Get returns a copy of the named channel's metadata, or ok=false if
// unknown.
func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	if !ok {
		return Channel{}, false
	}
	return Channel{Name: ch.Name, Description: ch.Description, Moderated: ch.Moderated}, true
}

// SetMetadata updates the gateway-announced description/moderated flag for
// a channel, creating it if unknown.
func (r *Registry) SetMetadata(name, description string, moderated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := r.getOrCreate(name)
	ch.Description = description
	ch.Moderated = moderated
}

// List returns the names of every known channel (including empty ones
// retained after their last member left), in no particular order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.channels))
	for name := range r.channels {
		out = append(out, name)
	}
	return out
}
