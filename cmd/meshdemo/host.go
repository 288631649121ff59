package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	mesh "mudvaultmesh"
)

// demoUser is the terminal demo's stand-in for a real player record. It
// satisfies mesh.LocalUser.
type demoUser struct {
	name  string
	level int
}

func (u *demoUser) Name() string { return u.name }

// demoHost implements mesh.HostAdapter against a terminal instead of a real
// MUD's player table and command parser. It tracks a small set of virtual
// local players (the operator plus any "asuser" aliases created at the
// prompt) so the REPL can exercise multi-user fan-out (Emote, channel
// messages) without a second process.
type demoHost struct {
	mu      sync.Mutex
	users   map[string]*demoUser
	out     io.Writer
	color   bool
	started time.Time
}

func newDemoHost(enableColor bool) *demoHost {
	out := io.Writer(os.Stdout)
	if enableColor {
		out = colorable.NewColorableStdout()
	}
	h := &demoHost{
		users:   make(map[string]*demoUser),
		out:     out,
		color:   enableColor,
		started: time.Now(),
	}
	h.users["you"] = &demoUser{name: "you", level: 100}
	return h
}

// terminalSupportsColor mirrors the teacher's enable_color toggle: auto-detect
// a color-capable terminal unless the operator overrides it with -color.
func terminalSupportsColor() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func (h *demoHost) addUser(name string) *demoUser {
	h.mu.Lock()
	defer h.mu.Unlock()
	name = strings.ToLower(name)
	if u, ok := h.users[name]; ok {
		return u
	}
	u := &demoUser{name: name, level: 0}
	h.users[name] = u
	return u
}

func (h *demoHost) FindLocalUser(name string) (mesh.LocalUser, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	u, ok := h.users[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return u, true
}

func (h *demoHost) ForEachOnlineUser(f func(mesh.LocalUser)) {
	h.mu.Lock()
	users := make([]*demoUser, 0, len(h.users))
	for _, u := range h.users {
		users = append(users, u)
	}
	h.mu.Unlock()
	for _, u := range users {
		f(u)
	}
}

func (h *demoHost) Deliver(user mesh.LocalUser, text string, style mesh.Style) {
	if h.color {
		fmt.Fprintf(h.out, "%s[%s] %s%s\n", colorPrefix(style), user.Name(), text, colorReset)
		return
	}
	fmt.Fprintf(h.out, "[%s:%s] %s\n", styleTag(style), user.Name(), text)
}

func (h *demoHost) NowMonotonic() time.Duration { return time.Since(h.started) }
func (h *demoHost) NowWallclock() time.Time     { return time.Now() }

func (h *demoHost) Log(level mesh.LogLevel, message string) {
	log.Printf("[%s] %s", logLevelTag(level), message)
}

func (h *demoHost) UserLevel(user mesh.LocalUser) int {
	du, ok := user.(*demoUser)
	if !ok {
		return 0
	}
	return du.level
}

func (h *demoHost) UserCan(user mesh.LocalUser, capability mesh.Capability) bool {
	return true
}

func (h *demoHost) FilterProfanity(text string) string {
	return strings.NewReplacer("darn", "****").Replace(text)
}

func styleTag(s mesh.Style) string {
	switch s {
	case mesh.StyleTell:
		return "tell"
	case mesh.StyleEmote:
		return "emote"
	case mesh.StyleChannel:
		return "channel"
	case mesh.StyleError:
		return "error"
	default:
		return "info"
	}
}

const colorReset = "\x1b[0m"

func colorPrefix(s mesh.Style) string {
	switch s {
	case mesh.StyleTell:
		return "\x1b[36m" // cyan
	case mesh.StyleEmote:
		return "\x1b[35m" // magenta
	case mesh.StyleChannel:
		return "\x1b[33m" // yellow
	case mesh.StyleError:
		return "\x1b[31m" // red
	default:
		return "\x1b[37m" // white
	}
}

func logLevelTag(l mesh.LogLevel) string {
	switch l {
	case mesh.LogDebug:
		return "debug"
	case mesh.LogInfo:
		return "info"
	case mesh.LogWarn:
		return "warn"
	case mesh.LogError:
		return "error"
	default:
		return "log"
	}
}
