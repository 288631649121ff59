package mesh

import "time"

// Style tags a piece of text delivered to a local player so the embedder
// can map it to its own colour/format preferences. The core never decides
// how a style renders — that is entirely the host's business.
type Style int

const (
	StyleTell Style = iota
	StyleEmote
	StyleChannel
	StyleInfo
	StyleError
)

// LocalUser is the minimal, opaque identity of a local player that the core
// needs: something it can hand back to the host adapter unmodified. The
// host is free to wrap its own richer player struct behind this.
type LocalUser interface {
	// Name returns the player's canonical display name (used, lower-cased,
	// for case-insensitive matching against to.user).
	Name() string
}

// Capability names consulted by HostAdapter.UserCan.
type Capability string

const (
	CapUseTell    Capability = "use-tell"
	CapUseChannel Capability = "use-channel"
	CapUseWho     Capability = "use-who"
	CapUseFinger  Capability = "use-finger"
)

// LogLevel mirrors the severity levels the host's own logger understands.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

// HostAdapter is the one abstraction the core requires from its embedding
// MUD, per §4.10. It intentionally exposes nothing more: the core never
// touches the host's player table, command parser, or terminal layer
// directly.
type HostAdapter interface {
	// FindLocalUser performs a case-insensitive exact lookup.
	FindLocalUser(name string) (LocalUser, bool)

	// ForEachOnlineUser visits every local player exactly once. Iteration
	// order is the host's choice.
	ForEachOnlineUser(f func(LocalUser))

	// Deliver sends text to a local player, tagged with the style the host
	// should use to render it.
	Deliver(user LocalUser, text string, style Style)

	// NowMonotonic and NowWallclock are the core's only clock sources, so
	// tests can inject a fake clock without touching real time.
	NowMonotonic() time.Duration
	NowWallclock() time.Time

	// Log records an operator-facing message; never shown to players.
	Log(level LogLevel, message string)

	// UserLevel returns the host's notion of a player's privilege level,
	// used to gate player commands per the configured minimum level.
	UserLevel(user LocalUser) int

	// UserCan reports whether user is permitted to use a given feature.
	UserCan(user LocalUser, capability Capability) bool

	// FilterProfanity is an external predicate/rewriter. The Client calls
	// it on outgoing tell, emote, emoteto and channel text only when
	// Config.FilterProfanity is set; otherwise no filtering is applied. The
	// core never implements its own filter, per Design Note §9 Open
	// Question (c).
	FilterProfanity(text string) string
}
